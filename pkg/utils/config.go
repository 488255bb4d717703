package utils

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvProduction = "production"

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Payment  PaymentConfig
	Ledger   LedgerConfig
}

type AppConfig struct {
	Name    string
	Env     string
	Port    string
	Debug   bool
	LogPath string
}

// IsProduction reports whether degraded payment modes must be disabled.
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Env, EnvProduction)
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	MaxConns int32
}

type PaymentConfig struct {
	StripeSecretKey   string
	WebhookSecret     string
	SandboxMaxAmount  float64 // major units, 0 disables the ceiling; always 0 in production
	DefaultCurrency   string
	MaxNetworkRetries int64
	WebhookTolerance  time.Duration
}

type LedgerConfig struct {
	Path string
}

func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")

	// Set defaults
	viper.SetDefault("APP_NAME", "travel-booking-payments")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DEBUG", false)
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_MAX_CONNS", 10)
	viper.SetDefault("LOG_PATH", "logs/")
	viper.SetDefault("PAYMENT_SANDBOX_MAX_AMOUNT", 999999.99)
	viper.SetDefault("PAYMENT_DEFAULT_CURRENCY", "LKR")
	viper.SetDefault("PAYMENT_GATEWAY_MAX_RETRIES", 2)
	viper.SetDefault("PAYMENT_WEBHOOK_TOLERANCE", "5m")
	viper.SetDefault("LEDGER_PATH", "data/payments-ledger.db")

	// .env is optional when everything comes from the environment
	if err := viper.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	viper.AutomaticEnv()

	config := &Config{
		App: AppConfig{
			Name:    viper.GetString("APP_NAME"),
			Env:     viper.GetString("APP_ENV"),
			Port:    viper.GetString("PORT"),
			Debug:   viper.GetBool("DEBUG"),
			LogPath: viper.GetString("LOG_PATH"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			Name:     viper.GetString("DB_NAME"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASS"),
			MaxConns: viper.GetInt32("DB_MAX_CONNS"),
		},
		Payment: PaymentConfig{
			StripeSecretKey:   viper.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret:     viper.GetString("STRIPE_WEBHOOK_SECRET"),
			SandboxMaxAmount:  viper.GetFloat64("PAYMENT_SANDBOX_MAX_AMOUNT"),
			DefaultCurrency:   strings.ToUpper(viper.GetString("PAYMENT_DEFAULT_CURRENCY")),
			MaxNetworkRetries: viper.GetInt64("PAYMENT_GATEWAY_MAX_RETRIES"),
			WebhookTolerance:  viper.GetDuration("PAYMENT_WEBHOOK_TOLERANCE"),
		},
		Ledger: LedgerConfig{
			Path: viper.GetString("LEDGER_PATH"),
		},
	}

	if config.App.IsProduction() {
		if config.Payment.WebhookSecret == "" {
			return nil, errors.New("STRIPE_WEBHOOK_SECRET is required in production")
		}
		// production charges the full booking amount
		config.Payment.SandboxMaxAmount = 0
	}

	return config, nil
}
