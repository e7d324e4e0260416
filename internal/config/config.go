package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Env      string `validate:"oneof=development testing staging production"`
	LogLevel string
	LogDir   string
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Finance  FinanceConfig
	Booking  BookingConfig
	Search   SearchConfig
	Mail     MailConfig
	Auth     AuthConfig
	Jobs     JobsConfig

	Subscription SubscriptionConfig
}

type ServerConfig struct {
	Port         string `validate:"required"`
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host           string `validate:"required"`
	Port           string `validate:"required,numeric"`
	Username       string `validate:"required"`
	Password       string
	Database       string `validate:"required"`
	SSLMode        string `validate:"oneof=disable require verify-ca verify-full"`
	MaxOpenConns   int    `validate:"gte=1"`
	MaxIdleConns   int    `validate:"gte=0"`
	MaxLifetime    time.Duration
	MigrationsPath string `validate:"required"`
	AutoMigrate    bool
}

type RedisConfig struct {
	Addr     string `validate:"required,hostname_port"`
	Password string
	DB       int `validate:"gte=0"`
}

type KafkaConfig struct {
	Brokers      []string `validate:"required_if=Enabled true,dive,hostname_port"`
	GroupID      string   `validate:"required"`
	Enabled      bool
	CreateTopics bool
}

type FinanceConfig struct {
	PricingBatchSize int           `validate:"gte=1"`
	PricingLockTTL   time.Duration `validate:"gt=0"`
	CashflowLockTTL  time.Duration `validate:"gt=0"`
	InvoiceDir       string
	InvoiceFont      string
}

type BookingConfig struct {
	StockLockTTL        time.Duration `validate:"gt=0"`
	ExpirationBatchSize int           `validate:"gte=1"`
}

type SearchConfig struct {
	BackendURL string `validate:"omitempty,url"`
	APIKey     string
	IndexName  string `validate:"required"`
	BatchSize  int    `validate:"gte=1"`
	LockTTL    time.Duration
}

type MailConfig struct {
	MailerSendAPIKey string
	FromEmail        string `validate:"required,email"`
	FromName         string
	Templates        MailTemplates
}

// MailTemplates holds MailerSend template IDs.
type MailTemplates struct {
	BookingConfirmation    string
	BookingCancellation    string
	CollectiveConfirmation string
	AccountActivation      string
}

type SubscriptionConfig struct {
	MaxIdentityAttempts int `validate:"gte=1"`
	IdentityMaintenance bool
}

type AuthConfig struct {
	Enabled      bool
	IssuerURL    string `validate:"required_if=Enabled true"`
	ClientID     string `validate:"required_if=Enabled true"`
	WebhookToken string
}

// JobsConfig holds cron specs for the worker.
type JobsConfig struct {
	PriceEvents       string `validate:"required"`
	CancelExpired     string `validate:"required"`
	CollectiveAutoUse string `validate:"required"`
	CollectiveExpire  string `validate:"required"`
	RecreditUnderage  string `validate:"required"`
	IndexQueuedOffers string `validate:"required"`
	GenerateCashflows string
	Timeout           time.Duration
}

// Load reads .env (if present) then the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
		LogDir:   getEnv("LOG_DIR", "logs"),
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			Username:       getEnv("DB_USERNAME", "pass_culture"),
			Password:       getEnv("DB_PASSWORD", "passq"),
			Database:       getEnv("DB_NAME", "pass_culture"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:   getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:   getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:    time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "file://migrations"),
			AutoMigrate:    getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID: getEnv("KAFKA_GROUP_ID", "pcapi-worker"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),

			CreateTopics: getEnvBool("KAFKA_CREATE_TOPICS", true),
		},
		Finance: FinanceConfig{
			PricingBatchSize: getEnvInt("FINANCE_PRICING_BATCH_SIZE", 500),
			PricingLockTTL:   getEnvDuration("FINANCE_PRICING_LOCK_TTL", 5*time.Minute),
			CashflowLockTTL:  getEnvDuration("FINANCE_CASHFLOW_LOCK_TTL", 30*time.Minute),
			InvoiceDir:       getEnv("FINANCE_INVOICE_DIR", "invoices"),
			InvoiceFont:      getEnv("FINANCE_INVOICE_FONT", "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf"),
		},
		Booking: BookingConfig{
			StockLockTTL:        getEnvDuration("BOOKING_STOCK_LOCK_TTL", 10*time.Second),
			ExpirationBatchSize: getEnvInt("BOOKING_EXPIRATION_BATCH_SIZE", 500),
		},
		Search: SearchConfig{
			BackendURL: getEnv("SEARCH_BACKEND_URL", ""),
			APIKey:     getEnv("SEARCH_API_KEY", ""),
			IndexName:  getEnv("SEARCH_INDEX_NAME", "offers"),
			BatchSize:  getEnvInt("SEARCH_BATCH_SIZE", 1000),
			LockTTL:    getEnvDuration("SEARCH_LOCK_TTL", 2*time.Minute),
		},
		Mail: MailConfig{
			MailerSendAPIKey: getEnv("MAILERSEND_API_KEY", ""),
			FromEmail:        getEnv("MAIL_FROM_EMAIL", "support@passculture.app"),
			FromName:         getEnv("MAIL_FROM_NAME", "pass Culture"),
			Templates: MailTemplates{
				BookingConfirmation:    getEnv("MAIL_TEMPLATE_BOOKING_CONFIRMATION", ""),
				BookingCancellation:    getEnv("MAIL_TEMPLATE_BOOKING_CANCELLATION", ""),
				CollectiveConfirmation: getEnv("MAIL_TEMPLATE_COLLECTIVE_CONFIRMATION", ""),
				AccountActivation:      getEnv("MAIL_TEMPLATE_ACCOUNT_ACTIVATION", ""),
			},
		},
		Auth: AuthConfig{
			Enabled:      getEnvBool("AUTH_ENABLED", false),
			IssuerURL:    getEnv("OIDC_ISSUER_URL", ""),
			ClientID:     getEnv("OIDC_CLIENT_ID", ""),
			WebhookToken: getEnv("IDENTITY_WEBHOOK_TOKEN", ""),
		},
		Subscription: SubscriptionConfig{
			MaxIdentityAttempts: getEnvInt("SUBSCRIPTION_MAX_IDENTITY_ATTEMPTS", 3),
			IdentityMaintenance: getEnvBool("SUBSCRIPTION_IDENTITY_MAINTENANCE", false),
		},
		Jobs: JobsConfig{
			PriceEvents:       getEnv("JOB_PRICE_EVENTS", "*/10 * * * *"),
			CancelExpired:     getEnv("JOB_CANCEL_EXPIRED", "0 3 * * *"),
			CollectiveAutoUse: getEnv("JOB_COLLECTIVE_AUTO_USE", "0 * * * *"),
			CollectiveExpire:  getEnv("JOB_COLLECTIVE_EXPIRE", "30 * * * *"),
			RecreditUnderage:  getEnv("JOB_RECREDIT_UNDERAGE", "0 5 * * *"),
			IndexQueuedOffers: getEnv("JOB_INDEX_QUEUED_OFFERS", "* * * * *"),
			GenerateCashflows: getEnv("JOB_GENERATE_CASHFLOWS", ""),
			Timeout:           getEnvDuration("JOB_TIMEOUT", 10*time.Minute),
		},
	}
}

// Validate checks struct tags and returns the first violations in one error.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// DSN builds the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
