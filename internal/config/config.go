// Package config loads the service configuration.
package config

import (
	"os"
	"strings"
	"time"
	_ "time/tzdata" // business day zones on hosts without zoneinfo

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/kiwari-pos/ordering/internal/money"
)

// Config holds the complete application configuration, loadable from
// environment variables (ORDERING_ prefix), flags, or YAML config files.
type Config struct {
	Addr      string `default:"0.0.0.0:8081" usage:"API server listen address"`
	Storage   StorageConfig
	Auth      AuthConfig
	Pricing   PricingConfig
	Numbering NumberingConfig
	Gateway   GatewayConfig
	Events    EventsConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// StorageConfig selects the order repository.
type StorageConfig struct {
	Driver      string `default:"postgres" usage:"Repository backend: postgres or memory"`
	DatabaseURL string `usage:"PostgreSQL connection URL (ORDERING_STORAGE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Migrate     bool   `default:"true" usage:"Apply schema migrations on start"`
}

type AuthConfig struct {
	JWTSecret string `usage:"HMAC secret for access tokens" flag:"jwt-secret"`
	// PINHash is the bcrypt hash of the manager override PIN. Empty disables
	// PIN overrides; admins can still override.
	PINHash string `usage:"bcrypt hash of the manager override PIN" flag:"pin-hash"`
}

// PricingConfig is the deployment-wide tax and rounding setup.
type PricingConfig struct {
	Taxes        []string `usage:"Flat taxes applied to every order, as NAME:RATE_PERCENT"`
	RoundOff     bool     `default:"true" usage:"Round final amounts to whole currency units"`
	RoundingMode string   `default:"half_up" usage:"Round-off tie breaking: half_up or half_even"`
}

// NumberingConfig controls daily order numbers.
type NumberingConfig struct {
	Timezone string `default:"Asia/Kolkata" usage:"IANA zone that decides the business day"`
}

// GatewayConfig configures the online payment provider.
type GatewayConfig struct {
	BaseURL   string        `default:"https://api.razorpay.com" usage:"Payment gateway API base URL"`
	KeyID     string        `usage:"Gateway key id, also handed to clients" flag:"gateway-key-id"`
	KeySecret string        `usage:"Gateway key secret, used for signatures" flag:"gateway-key-secret"`
	Currency  string        `default:"INR" usage:"ISO currency of gateway payments"`
	Timeout   time.Duration `default:"10s" usage:"Bound on every gateway call"`
}

// EventsConfig configures the broker order events are mirrored to.
// An empty URL keeps events in-process.
type EventsConfig struct {
	AMQPURL  string `usage:"AMQP broker URL" flag:"amqp-url"`
	Exchange string `default:"orders" usage:"Topic exchange for order events"`
}

// RateLimitConfig controls the per-principal token bucket limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64       `default:"20" usage:"Sustained requests per second per principal"`
	Burst             int           `default:"40" usage:"Burst size per principal"`
	EntryTTL          time.Duration `default:"10m" usage:"Idle time before a principal's bucket is dropped"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// Load loads configuration from command line args, environment variables
// and YAML config files, then validates it.
func Load(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		Args:      args,
		EnvPrefix: "ORDERING",
		Files:     []string{"config.yaml", "/etc/ordering/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the conventional DATABASE_URL and PORT
// variables onto the prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Storage.DatabaseURL == "" {
		c.Storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8081" {
		c.Addr = "0.0.0.0:" + port
	}
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return errors.New("database URL is required: set ORDERING_STORAGE_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("jwt secret is required")
	}
	if !money.RoundingMode(c.Pricing.RoundingMode).Valid() {
		return errors.Errorf("unknown rounding mode %q", c.Pricing.RoundingMode)
	}
	if _, err := c.Numbering.Location(); err != nil {
		return err
	}
	if _, err := c.Pricing.TaxRates(); err != nil {
		return err
	}
	return nil
}

// Location resolves the business day zone.
func (n NumberingConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(n.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "numbering timezone %q", n.Timezone)
	}
	return loc, nil
}

// TaxRates parses the configured taxes.
func (p PricingConfig) TaxRates() ([]money.TaxRate, error) {
	rates := make([]money.TaxRate, 0, len(p.Taxes))
	for _, t := range p.Taxes {
		name, pct, ok := strings.Cut(t, ":")
		if !ok || name == "" {
			return nil, errors.Errorf("tax %q: want NAME:RATE_PERCENT", t)
		}
		rate, err := decimal.NewFromString(pct)
		if err != nil {
			return nil, errors.Wrapf(err, "tax %q rate", name)
		}
		if rate.IsNegative() {
			return nil, errors.Errorf("tax %q has negative rate %s", name, rate)
		}
		rates = append(rates, money.TaxRate{Name: name, RatePercent: rate})
	}
	return rates, nil
}
