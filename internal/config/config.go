package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime setting of the storefront server.
type Config struct {
	AppPort          string
	DatabaseDriver   string
	DatabaseDSN      string
	JWTSecret        string
	RabbitMQURL      string
	StripeSecretKey  string
	PaymentTimeout   time.Duration
	ChargeStaleAfter time.Duration
	LogLevel         string
	LogFormat        string
	SeedCatalog      bool
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_DSN", "storefront.db?_busy_timeout=5000&_txlock=immediate")
	v.SetDefault("JWT_SECRET", "change_me")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("STRIPE_SECRET_KEY", "")
	v.SetDefault("PAYMENT_TIMEOUT", "15s")
	v.SetDefault("CHARGE_STALE_AFTER", "10m")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SEED_CATALOG", false)
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	// A missing .env is fine; the environment still applies.
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppPort:          v.GetString("APP_PORT"),
		DatabaseDriver:   v.GetString("DATABASE_DRIVER"),
		DatabaseDSN:      v.GetString("DATABASE_DSN"),
		JWTSecret:        v.GetString("JWT_SECRET"),
		RabbitMQURL:      v.GetString("RABBITMQ_URL"),
		StripeSecretKey:  v.GetString("STRIPE_SECRET_KEY"),
		PaymentTimeout:   v.GetDuration("PAYMENT_TIMEOUT"),
		ChargeStaleAfter: v.GetDuration("CHARGE_STALE_AFTER"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		LogFormat:        v.GetString("LOG_FORMAT"),
		SeedCatalog:      v.GetBool("SEED_CATALOG"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.PaymentTimeout <= 0 {
		return fmt.Errorf("PAYMENT_TIMEOUT must be positive, got %s", c.PaymentTimeout)
	}
	// A checkout makes up to three processor calls before it charges.
	if c.ChargeStaleAfter <= 3*c.PaymentTimeout {
		return fmt.Errorf("CHARGE_STALE_AFTER (%s) must exceed three times PAYMENT_TIMEOUT (%s)", c.ChargeStaleAfter, c.PaymentTimeout)
	}
	return nil
}
