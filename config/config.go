package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"fulfillment-service/database"
	aws_pkg "fulfillment-service/pkg/aws"
	"fulfillment-service/providers"
	"fulfillment-service/services"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	dbSecretName     = "fulfillment/DB_CREDENTIALS"
	remoteSecretName = "fulfillment/PAYMENT_REMOTE"
)

// Config holds all configuration for the fulfillment service.
type Config struct {
	Port     string
	Env      string
	Postgres database.PostgresConfig
	RedisURL string

	// Pricing
	ShippingFlatFee       decimal.Decimal
	FreeShippingThreshold decimal.NullDecimal
	TaxEnabled            bool
	TaxRatePercent        decimal.Decimal

	// Payments
	DefaultProvider       string
	Mock                  providers.ProviderSettings
	Remote                providers.ProviderSettings
	CallbackGuardTTL      time.Duration
	CallbackRatePerMinute int

	// SNS topic for invoice lifecycle events
	InvoiceEventsTopicARN string
	UseSecrets            bool
}

// LoadConfig reads configuration from the environment (and an optional .env file) with an
// optional Secrets Manager override.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnv("PORT", "8091"),
		Env:  getEnv("APP_ENV", "development"),
		Postgres: database.PostgresConfig{
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DB:       os.Getenv("POSTGRES_DB"),
			Host:     os.Getenv("POSTGRES_HOST"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			TimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),
		},
		RedisURL:              os.Getenv("REDIS_URL"),
		DefaultProvider:       getEnv("PAYMENT_DEFAULT_PROVIDER", providers.MockProviderName),
		InvoiceEventsTopicARN: os.Getenv("INVOICE_EVENTS_TOPIC_ARN"),
		UseSecrets:            os.Getenv("AWS_USE_SECRETS") == "true",
	}

	var err error
	if cfg.ShippingFlatFee, err = getDecimal("SHIPPING_FLAT_FEE", "0"); err != nil {
		return nil, err
	}
	if raw := os.Getenv("SHIPPING_FREE_THRESHOLD"); raw != "" {
		threshold, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SHIPPING_FREE_THRESHOLD: %w", err)
		}
		cfg.FreeShippingThreshold = decimal.NewNullDecimal(threshold)
	}
	if cfg.TaxEnabled, err = getBool("TAX_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.TaxRatePercent, err = getDecimal("TAX_RATE_PERCENT", "0"); err != nil {
		return nil, err
	}

	if cfg.Mock.Enabled, err = getBool("PAYMENT_MOCK_ENABLED", true); err != nil {
		return nil, err
	}
	cfg.Mock.CallbackURL = getEnv("PAYMENT_MOCK_CALLBACK_URL", "http://localhost:"+cfg.Port+"/payments/callback")

	if cfg.Remote.Enabled, err = getBool("PAYMENT_REMOTE_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.Remote.Sandbox, err = getBool("PAYMENT_REMOTE_SANDBOX", true); err != nil {
		return nil, err
	}
	timeoutSeconds, err := getInt("PAYMENT_REMOTE_TIMEOUT_SECONDS", 10)
	if err != nil {
		return nil, err
	}
	cfg.Remote.Timeout = time.Duration(timeoutSeconds) * time.Second
	cfg.Remote.MerchantID = os.Getenv("PAYMENT_REMOTE_MERCHANT_ID")
	cfg.Remote.CallbackURL = getEnv("PAYMENT_REMOTE_CALLBACK_URL", cfg.Mock.CallbackURL)
	cfg.Remote.BaseURL = os.Getenv("PAYMENT_REMOTE_BASE_URL")
	cfg.Remote.Currency = os.Getenv("PAYMENT_REMOTE_CURRENCY")
	minorUnits, err := getInt("PAYMENT_REMOTE_MINOR_UNITS", 0)
	if err != nil {
		return nil, err
	}
	cfg.Remote.MinorUnits = int32(minorUnits)

	ttlSeconds, err := getInt("CALLBACK_GUARD_TTL_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	cfg.CallbackGuardTTL = time.Duration(ttlSeconds) * time.Second
	if cfg.CallbackRatePerMinute, err = getInt("CALLBACK_RATE_PER_MINUTE", 60); err != nil {
		return nil, err
	}

	// Override DB credentials and the merchant id from Secrets Manager when running on AWS
	if cfg.UseSecrets {
		if awsCfg, err := aws_pkg.LoadAWSConfig(context.Background()); err == nil {
			cfg.ApplySecrets(context.Background(), aws_pkg.NewSecretsClient(awsCfg))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplySecrets overlays values found in Secrets Manager. Missing secrets leave the environment values in place.
func (c *Config) ApplySecrets(ctx context.Context, sm aws_pkg.SecretGetter) {
	if m, err := aws_pkg.GetSecretMap(ctx, sm, dbSecretName); err == nil {
		if v, ok := m["POSTGRES_USER"]; ok && v != "" {
			c.Postgres.User = v
		}
		if v, ok := m["POSTGRES_PASSWORD"]; ok && v != "" {
			c.Postgres.Password = v
		}
		if v, ok := m["POSTGRES_DB"]; ok && v != "" {
			c.Postgres.DB = v
		}
		if v, ok := m["POSTGRES_HOST"]; ok && v != "" {
			c.Postgres.Host = v
		}
		if v, ok := m["POSTGRES_PORT"]; ok && v != "" {
			c.Postgres.Port = v
		}
	}
	if m, err := aws_pkg.GetSecretMap(ctx, sm, remoteSecretName); err == nil {
		if v, ok := m["PAYMENT_REMOTE_MERCHANT_ID"]; ok && v != "" {
			c.Remote.MerchantID = v
		}
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Postgres.User == "" || c.Postgres.Password == "" || c.Postgres.DB == "" || c.Postgres.Host == "" {
		return fmt.Errorf("database config incomplete")
	}
	if c.ShippingFlatFee.IsNegative() || c.TaxRatePercent.IsNegative() {
		return fmt.Errorf("shipping fee and tax rate must not be negative")
	}
	if c.Remote.Enabled && c.Remote.MerchantID == "" {
		return fmt.Errorf("PAYMENT_REMOTE_MERCHANT_ID is required when the remote provider is enabled")
	}
	if c.Remote.Enabled && c.Remote.BaseURL == "" {
		return fmt.Errorf("PAYMENT_REMOTE_BASE_URL is required when the remote provider is enabled")
	}
	if c.Remote.MinorUnits < 0 {
		return fmt.Errorf("PAYMENT_REMOTE_MINOR_UNITS must not be negative")
	}
	switch strings.ToLower(c.DefaultProvider) {
	case providers.MockProviderName:
		if !c.Mock.Enabled {
			return fmt.Errorf("default payment provider %q is disabled", c.DefaultProvider)
		}
	case providers.RemoteProviderName:
		if !c.Remote.Enabled {
			return fmt.Errorf("default payment provider %q is disabled", c.DefaultProvider)
		}
	default:
		return fmt.Errorf("unknown PAYMENT_DEFAULT_PROVIDER %q", c.DefaultProvider)
	}
	return nil
}

// PricingConfig is the single source of shipping and tax for checkout and previews.
func (c *Config) PricingConfig() services.PricingConfig {
	return services.PricingConfig{
		ShippingFlatFee:       c.ShippingFlatFee,
		FreeShippingThreshold: c.FreeShippingThreshold,
		TaxEnabled:            c.TaxEnabled,
		TaxRatePercent:        c.TaxRatePercent,
	}
}

func (c *Config) GatewaySettings() providers.Settings {
	return providers.Settings{
		DefaultProvider: c.DefaultProvider,
		Mock:            c.Mock,
		Remote:          c.Remote,
	}
}

// IsProduction reports whether APP_ENV selects production logging and gin release mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDecimal(key, fallback string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(getEnv(key, fallback))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
