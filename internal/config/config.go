package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Payment gateways.
const (
	GatewayRazorpay = "razorpay"
	GatewayMock     = "mock"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	AppEnv        string   `env:"APP_ENV" envDefault:"development"`
	Port          int      `env:"PORT" envDefault:"4001"`
	JWTSecret     string   `env:"JWT_SECRET,required,notEmpty"`
	CORSOrigins   []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	AdminEmail    string   `env:"ADMIN_EMAIL" envDefault:"admin@gigmarket.local"`
	AdminPassword string   `env:"ADMIN_PASSWORD" envDefault:"admin123"`

	Storage  StorageConfig
	Redis    RedisConfig
	Razorpay RazorpayConfig

	ExpirySweepInterval time.Duration `env:"EXPIRY_SWEEP_INTERVAL" envDefault:"15m"`
}

// StorageConfig selects and locates the persistence backend.
type StorageConfig struct {
	Driver        string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`
	MongoURL      string `env:"MONGODB_URL"`
	MongoDatabase string `env:"MONGODB_DATABASE" envDefault:"gigmarket"`
}

// RedisConfig is optional; without a URL locks stay in-process.
type RedisConfig struct {
	URL     string        `env:"REDIS_URL"`
	LockTTL time.Duration `env:"REDIS_LOCK_TTL" envDefault:"10s"`
}

// RazorpayConfig holds gateway credentials. Empty credentials leave the gateway unavailable.
type RazorpayConfig struct {
	Gateway       string `env:"PAYMENT_GATEWAY" envDefault:"razorpay"`
	KeyID         string `env:"RAZORPAY_KEY_ID"`
	KeySecret     string `env:"RAZORPAY_KEY_SECRET"`
	WebhookSecret string `env:"RAZORPAY_WEBHOOK_SECRET"`
	Currency      string `env:"PAYMENT_CURRENCY" envDefault:"INR"`
	// Timeout bounds each gateway call, which runs while the user lock is held.
	Timeout time.Duration `env:"RAZORPAY_TIMEOUT" envDefault:"5s"`
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	// The .env file is optional.
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}
	return &cfg, nil
}

// IsProduction reports whether logs and errors should be in production form.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production" || c.AppEnv == "staging"
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	case DriverMongo:
		if c.Storage.MongoURL == "" {
			return errors.New("MONGODB_URL is required for the mongo driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}

	switch c.Razorpay.Gateway {
	case GatewayRazorpay, GatewayMock:
	default:
		return fmt.Errorf("unknown PAYMENT_GATEWAY %q", c.Razorpay.Gateway)
	}

	if c.Razorpay.Timeout <= 0 {
		return errors.New("RAZORPAY_TIMEOUT must be positive")
	}
	if c.Redis.URL != "" && c.Razorpay.Timeout >= c.Redis.LockTTL {
		return fmt.Errorf("RAZORPAY_TIMEOUT (%s) must be shorter than REDIS_LOCK_TTL (%s)", c.Razorpay.Timeout, c.Redis.LockTTL)
	}

	if c.ExpirySweepInterval < 0 {
		return errors.New("EXPIRY_SWEEP_INTERVAL must not be negative")
	}
	return nil
}
