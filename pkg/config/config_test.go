package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("DEV_AUTH", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, []string{"USD", "AED", "EUR", "GBP"}, cfg.Ledger.SupportedCurrencies)
	assert.Equal(t, "USD", cfg.Ledger.PrimaryCurrency)
	assert.Equal(t, 100, cfg.Ledger.HistoryLimit)
	assert.True(t, decimal.NewFromInt(5000).Equal(cfg.Withdrawal.DailyLimit))
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("FIREBASE_PROJECT_ID", "walletledger-dev")
	t.Setenv("SUPPORTED_CURRENCIES", "usd, eur")
	t.Setenv("PRIMARY_CURRENCY", "eur")
	t.Setenv("WITHDRAWAL_DAILY_LIMIT", "250.50")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"USD", "EUR"}, cfg.Ledger.SupportedCurrencies)
	assert.Equal(t, "EUR", cfg.Ledger.PrimaryCurrency)
	assert.Equal(t, "250.5", cfg.Withdrawal.DailyLimit.String())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "unknown storage driver",
			env:  map[string]string{"STORAGE_DRIVER": "postgres"},
		},
		{
			name: "firestore without project",
			env:  map[string]string{"STORAGE_DRIVER": "firestore", "FIREBASE_PROJECT_ID": ""},
		},
		{
			name: "memory without auth source",
			env:  map[string]string{"STORAGE_DRIVER": "memory", "FIREBASE_PROJECT_ID": "", "DEV_AUTH": "false"},
		},
		{
			name: "dev auth in production",
			env:  map[string]string{"STORAGE_DRIVER": "memory", "DEV_AUTH": "true", "ENVIRONMENT": "production"},
		},
		{
			name: "primary currency not supported",
			env:  map[string]string{"STORAGE_DRIVER": "memory", "DEV_AUTH": "true", "PRIMARY_CURRENCY": "JPY"},
		},
		{
			name: "bad decimal",
			env:  map[string]string{"STORAGE_DRIVER": "memory", "DEV_AUTH": "true", "WITHDRAWAL_MIN_AMOUNT": "ten"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
