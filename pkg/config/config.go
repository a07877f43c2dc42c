package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StorageFirestore = "firestore"
	StorageMemory    = "memory"
)

type Config struct {
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	StorageDriver             string `env:"STORAGE_DRIVER" envDefault:"firestore"`
	FirebaseProject           string `env:"FIREBASE_PROJECT_ID"`
	FirebaseServiceAccount    string `env:"FIREBASE_SERVICE_ACCOUNT_JSON"`
	FirebaseServiceAccountDir string `env:"FIREBASE_SERVICE_ACCOUNT_PATH" envDefault:"./firebase-adminsdk.json"`
	DevAuth                   bool   `env:"DEV_AUTH" envDefault:"false"`

	Ledger     LedgerConfig
	Withdrawal WithdrawalConfig
	Payout     PayoutConfig

	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
}

type LedgerConfig struct {
	SupportedCurrencies []string `env:"SUPPORTED_CURRENCIES" envSeparator:"," envDefault:"USD,AED,EUR,GBP"`
	PrimaryCurrency     string   `env:"PRIMARY_CURRENCY" envDefault:"USD"`
	HistoryLimit        int      `env:"LEDGER_HISTORY_LIMIT" envDefault:"100"`
	WriteAttempts       int      `env:"LEDGER_WRITE_ATTEMPTS" envDefault:"5"`
}

// WithdrawalConfig limits apply per currency.
type WithdrawalConfig struct {
	MinAmount    decimal.Decimal `env:"WITHDRAWAL_MIN_AMOUNT" envDefault:"10"`
	DailyLimit   decimal.Decimal `env:"WITHDRAWAL_DAILY_LIMIT" envDefault:"5000"`
	MonthlyLimit decimal.Decimal `env:"WITHDRAWAL_MONTHLY_LIMIT" envDefault:"50000"`
	RatePerHour  int             `env:"WITHDRAW_RATE_PER_HOUR" envDefault:"10"`
}

type PayoutConfig struct {
	StripeSecretKey    string        `env:"STRIPE_SECRET_KEY"`
	PayPalClientID     string        `env:"PAYPAL_CLIENT_ID"`
	PayPalClientSecret string        `env:"PAYPAL_CLIENT_SECRET"`
	PayPalBaseURL      string        `env:"PAYPAL_BASE_URL" envDefault:"https://api-m.sandbox.paypal.com"`
	BreakerThreshold   int           `env:"PAYOUT_BREAKER_THRESHOLD" envDefault:"5"`
	BreakerCooldown    time.Duration `env:"PAYOUT_BREAKER_COOLDOWN" envDefault:"30s"`
}

var parsers = map[reflect.Type]env.ParserFunc{
	reflect.TypeOf(decimal.Decimal{}): func(v string) (interface{}, error) {
		return decimal.NewFromString(v)
	},
}

func Load() (*Config, error) {
	// .env is optional outside development
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.ParseWithFuncs(cfg, parsers); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.StorageDriver != StorageFirestore && c.StorageDriver != StorageMemory {
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.StorageDriver == StorageFirestore && c.FirebaseProject == "" {
		return fmt.Errorf("FIREBASE_PROJECT_ID is required for firestore storage")
	}
	if c.DevAuth && c.IsProduction() {
		return fmt.Errorf("DEV_AUTH cannot be enabled in production")
	}
	if !c.DevAuth && c.FirebaseProject == "" {
		return fmt.Errorf("FIREBASE_PROJECT_ID is required unless DEV_AUTH is enabled")
	}

	for i, cur := range c.Ledger.SupportedCurrencies {
		c.Ledger.SupportedCurrencies[i] = strings.ToUpper(strings.TrimSpace(cur))
	}
	c.Ledger.PrimaryCurrency = strings.ToUpper(c.Ledger.PrimaryCurrency)

	found := false
	for _, cur := range c.Ledger.SupportedCurrencies {
		if cur == c.Ledger.PrimaryCurrency {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("PRIMARY_CURRENCY %s is not in SUPPORTED_CURRENCIES", c.Ledger.PrimaryCurrency)
	}

	if c.Ledger.HistoryLimit <= 0 {
		return fmt.Errorf("LEDGER_HISTORY_LIMIT must be positive")
	}
	if c.Ledger.WriteAttempts <= 0 {
		c.Ledger.WriteAttempts = 1
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
