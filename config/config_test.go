package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_PaymentSection(t *testing.T) {
	path := writeConfig(t, `
payment:
  bank_feed:
    base_url: https://feed.example.com
    api_key: feed-key
    account_number: "0123456789"
  qr:
    base_url: https://qr.example.com
    client_id: cid
    api_key: qr-key
    account_no: "0123456789"
  lookback_minutes: 10
  plans:
    - months: 1
      price: "50000"
    - months: 3
      price: "100000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "feed-key", cfg.Payment.BankFeed.APIKey)
	assert.Equal(t, "0123456789", cfg.Payment.QR.AccountNo)
	assert.Equal(t, 10*time.Minute, cfg.Payment.Lookback())

	prices, err := cfg.Payment.PlanPrices()
	require.NoError(t, err)
	assert.True(t, prices[1].Equal(decimal.NewFromInt(50000)))
	assert.True(t, prices[3].Equal(decimal.NewFromInt(100000)))
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "server:\n  host: 127.0.0.1\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Payment.Lookback())
	assert.Equal(t, 15*time.Second, cfg.Payment.PollInterval())
	assert.Equal(t, 50, cfg.Payment.BankFeed.Limit)
	// 凭证没有默认值
	assert.Empty(t, cfg.Payment.BankFeed.APIKey)
	assert.Empty(t, cfg.Payment.QR.APIKey)
}

func TestLoad_PrefersLocalConfig(t *testing.T) {
	path := writeConfig(t, "jwt:\n  secret: public\n")
	local := filepath.Join(filepath.Dir(path), "config.local.yaml")
	require.NoError(t, os.WriteFile(local, []byte("jwt:\n  secret: private\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "private", cfg.JWT.Secret)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPaymentConfig_PlanPrices_Invalid(t *testing.T) {
	cfg := PaymentConfig{Plans: []PlanConfig{{Months: 1, Price: "abc"}}}

	_, err := cfg.PlanPrices()
	assert.Error(t, err)
}

func TestPaymentConfig_LockTTLFallback(t *testing.T) {
	assert.Equal(t, 30*time.Second, PaymentConfig{}.LockTTL())
	assert.Equal(t, 5*time.Second, PaymentConfig{LockTTLSeconds: 5}.LockTTL())
}

func TestPaymentConfig_Location(t *testing.T) {
	loc, err := PaymentConfig{Timezone: "UTC"}.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	_, err = PaymentConfig{Timezone: "Mars/Olympus"}.Location()
	assert.Error(t, err)
}
