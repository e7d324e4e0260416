package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 500, cfg.Finance.PricingBatchSize)
	assert.Equal(t, 10*time.Second, cfg.Booking.StockLockTTL)
	assert.Equal(t, 10*time.Minute, cfg.Jobs.Timeout)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Empty(t, cfg.Jobs.GenerateCashflows)
	assert.False(t, cfg.IsProduction())
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("FINANCE_PRICING_LOCK_TTL", "90s")
	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("KAFKA_ENABLED", "false")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 90*time.Second, cfg.Finance.PricingLockTTL)
	assert.Equal(t, 7, cfg.Database.MaxOpenConns)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestInvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "many")
	t.Setenv("SERVER_READ_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := Load()
	cfg.Env = "moon"
	cfg.Finance.PricingBatchSize = 0
	cfg.Auth.Enabled = true
	cfg.Auth.ClientID = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Config.Env")
	assert.Contains(t, err.Error(), "PricingBatchSize")
	assert.Contains(t, err.Error(), "ClientID")
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Username: "u", Password: "p", Host: "db", Port: "5433", Database: "pc", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5433/pc?sslmode=disable", d.DSN())
}
