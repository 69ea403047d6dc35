package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigmarket/backend/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 4001, cfg.Port)
	assert.Equal(t, "INR", cfg.Razorpay.Currency)
	assert.Equal(t, config.GatewayRazorpay, cfg.Razorpay.Gateway)
	assert.Equal(t, 15*time.Minute, cfg.ExpirySweepInterval)
	assert.Equal(t, 5*time.Second, cfg.Razorpay.Timeout)
	assert.Less(t, cfg.Razorpay.Timeout, cfg.Redis.LockTTL)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORAGE_DRIVER", "memory")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_DriverURLs(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")
	_, err := config.Load()
	assert.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("STORAGE_DRIVER", "mongo")
	t.Setenv("MONGODB_URL", "")
	_, err = config.Load()
	assert.ErrorContains(t, err, "MONGODB_URL")

	t.Setenv("STORAGE_DRIVER", "cassandra")
	_, err = config.Load()
	assert.ErrorContains(t, err, "STORAGE_DRIVER")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE_DRIVER", "mongo")
	t.Setenv("MONGODB_URL", "mongodb://localhost:27017")
	t.Setenv("CORS_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("PAYMENT_GATEWAY", "mock")
	t.Setenv("EXPIRY_SWEEP_INTERVAL", "0")
	t.Setenv("APP_ENV", "production")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, config.GatewayMock, cfg.Razorpay.Gateway)
	assert.Zero(t, cfg.ExpirySweepInterval)
	assert.True(t, cfg.IsProduction())

	t.Setenv("PAYMENT_GATEWAY", "stripe")
	_, err = config.Load()
	assert.ErrorContains(t, err, "PAYMENT_GATEWAY")
}

func TestLoad_GatewayTimeoutBelowLockTTL(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_LOCK_TTL", "3s")
	t.Setenv("RAZORPAY_TIMEOUT", "5s")

	_, err := config.Load()
	assert.ErrorContains(t, err, "RAZORPAY_TIMEOUT")

	t.Setenv("RAZORPAY_TIMEOUT", "2s")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Razorpay.Timeout)
}
