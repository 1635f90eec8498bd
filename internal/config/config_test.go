package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Storage:   StorageConfig{Driver: "memory"},
		Auth:      AuthConfig{JWTSecret: "secret"},
		Pricing:   PricingConfig{RoundingMode: "half_up", Taxes: []string{"GST:18"}},
		Numbering: NumberingConfig{Timezone: "Asia/Kolkata"},
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ORDERING_STORAGE_DRIVER", "memory")
	t.Setenv("ORDERING_AUTH_JWT_SECRET", "secret")
	t.Setenv("PORT", "9000")

	cfg, err := Load([]string{})
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "half_up", cfg.Pricing.RoundingMode)
	assert.Equal(t, "orders", cfg.Events.Exchange)
	assert.Equal(t, float64(20), cfg.RateLimit.RequestsPerSecond)
}

func TestDatabaseURLFallback(t *testing.T) {
	t.Setenv("ORDERING_AUTH_JWT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/ordering")

	cfg, err := Load([]string{})
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://localhost/ordering", cfg.Storage.DatabaseURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"postgres without url", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }},
		{"missing jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"bad rounding", func(c *Config) { c.Pricing.RoundingMode = "ceil" }},
		{"bad timezone", func(c *Config) { c.Numbering.Timezone = "Mars/Olympus" }},
		{"bad tax rate", func(c *Config) { c.Pricing.Taxes[0] = "GST:lots" }},
		{"tax without rate", func(c *Config) { c.Pricing.Taxes[0] = "GST" }},
		{"negative tax rate", func(c *Config) { c.Pricing.Taxes[0] = "GST:-1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	rates, err := cfg.Pricing.TaxRates()
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.True(t, decimal.NewFromInt(18).Equal(rates[0].RatePercent))
}
