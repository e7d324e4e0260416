package app

import (
	"context"
	"fmt"

	"pcapi/internal/booking"
	"pcapi/internal/config"
	"pcapi/internal/database"
	"pcapi/internal/deposit"
	"pcapi/internal/educational"
	"pcapi/internal/finance"
	"pcapi/internal/jobs"
	"pcapi/internal/kafka"
	"pcapi/internal/lock"
	"pcapi/internal/logger"
	"pcapi/internal/notifications"
	"pcapi/internal/search"
	"pcapi/internal/subscription"

	"github.com/go-redis/redis/v8"
	"github.com/uptrace/bun"
)

// App holds the connections and services shared by the api and the worker.
type App struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *bun.DB
	Redis  *redis.Client

	Publisher  kafka.Publisher
	Producer   *kafka.Producer
	Dispatcher *kafka.Dispatcher

	Deposits     *deposit.Service
	Bookings     *booking.Service
	Collective   *educational.Service
	Subscription *subscription.Service
	Finance      *finance.Service
	Search       *search.Service
	Handlers     *jobs.Handlers
}

// New connects to PostgreSQL and Redis and builds every service. With Kafka
// disabled, events are delivered in process to the same handlers the worker
// consumes with.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	rdb, err := database.ConnectRedis(ctx, cfg.Redis, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &App{Config: cfg, Logger: log, DB: db, Redis: rdb}
	locker := lock.NewRedis(rdb, log)

	a.Finance = finance.NewService(&finance.DB{Bun: db}, locker, log, finance.Options{
		PricingLockTTL:  cfg.Finance.PricingLockTTL,
		CashflowLockTTL: cfg.Finance.CashflowLockTTL,
		InvoiceDir:      cfg.Finance.InvoiceDir,
		InvoiceFont:     cfg.Finance.InvoiceFont,
	})

	var backend search.Backend
	if cfg.Search.BackendURL != "" {
		backend = search.NewHTTPBackend(cfg.Search.BackendURL, cfg.Search.APIKey, cfg.Search.IndexName)
	} else {
		log.Warn("SEARCH", "SEARCH_BACKEND_URL not set, offers are indexed in memory")
		backend = search.NewMemoryBackend()
	}
	a.Search = search.NewService(&search.DB{Bun: db}, search.NewQueue(rdb), backend, locker, log, search.Options{
		BatchSize: cfg.Search.BatchSize,
		LockTTL:   cfg.Search.LockTTL,
	})
	a.Handlers = jobs.NewHandlers(a.Finance, a.Search, log)

	if cfg.Kafka.Enabled {
		if cfg.Kafka.CreateTopics {
			if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, kafka.AllTopics(), log); err != nil {
				log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
			}
		}
		a.Producer = kafka.NewProducer(cfg.Kafka.Brokers, log)
		a.Publisher = a.Producer
		log.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		log.Warn("KAFKA", "Kafka disabled, events are dispatched in process")
		a.Dispatcher = kafka.NewDispatcher(log)
		a.Handlers.Subscribe(a.Dispatcher)
		a.Publisher = a.Dispatcher
	}

	mailer := notifications.NewMailer(cfg.Mail.MailerSendAPIKey, cfg.Mail.FromName, cfg.Mail.FromEmail, log)
	notifier := notifications.NewNotifier(mailer, cfg.Mail.Templates)

	a.Deposits = deposit.NewService(&deposit.DB{Bun: db}, log)
	a.Bookings = booking.NewService(&booking.DB{Bun: db}, a.Deposits, locker, a.Publisher, notifier, log, cfg.Booking.StockLockTTL)
	a.Collective = educational.NewService(&educational.DB{Bun: db}, locker, a.Publisher, notifier, log, cfg.Booking.StockLockTTL)
	a.Subscription = subscription.NewService(&subscription.DB{Bun: db}, a.Deposits, a.Publisher, notifier, log, subscription.Options{
		MaxIdentityAttempts: cfg.Subscription.MaxIdentityAttempts,
		IdentityMaintenance: cfg.Subscription.IdentityMaintenance,
	})

	return a, nil
}

// Ping checks PostgreSQL.
func (a *App) Ping(ctx context.Context) error {
	return a.DB.PingContext(ctx)
}

// PingRedis checks Redis.
func (a *App) PingRedis(ctx context.Context) error {
	return a.Redis.Ping(ctx).Err()
}

func (a *App) Close() {
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			a.Logger.Error("KAFKA", fmt.Sprintf("Failed to close producer: %v", err))
		}
	}
	if err := a.Redis.Close(); err != nil {
		a.Logger.Error("DATABASE", fmt.Sprintf("Failed to close redis: %v", err))
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Error("DATABASE", fmt.Sprintf("Failed to close database: %v", err))
	}
}
