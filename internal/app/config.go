package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration, loadable from
// environment variables (FULFILL_ prefix), flags, or YAML config files.
type Config struct {
	Addr              string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL       string `usage:"PostgreSQL connection URL (FULFILL_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL      string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	APIKeyPepper      string `usage:"HMAC pepper for API key hashing (FULFILL_API_KEY_PEPPER)" flag:"api-key-pepper"`
	ShippingCost      string `default:"5.00" usage:"Flat shipping cost added to every order" flag:"shipping-cost"`
	OrderNumberPrefix string `default:"ORD-" usage:"Prefix for generated order numbers" flag:"order-number-prefix"`
	SMTP              SMTPConfig
	RateLimit         RateLimitConfig
	CORS              CORSConfig
	Graceful          GracefulConfig
}

// SMTPConfig controls outbound order notification email. An empty Addr
// disables real delivery and falls back to log-only notifications.
type SMTPConfig struct {
	Addr     string `default:"" usage:"SMTP server address (host:port); empty disables email" flag:"smtp-addr"`
	Host     string `default:"" usage:"SMTP hostname for AUTH" flag:"smtp-host"`
	Username string `default:"" usage:"SMTP username" flag:"smtp-username"`
	Password string `default:"" usage:"SMTP password" flag:"smtp-password"`
	From     string `default:"orders@localhost" usage:"From address for notifications" flag:"smtp-from"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// ShippingCostDecimal parses the configured flat shipping cost.
func (c *Config) ShippingCostDecimal() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.ShippingCost)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse shipping cost")
	}
	if d.IsNegative() {
		return decimal.Zero, errors.New("shipping cost must not be negative")
	}
	return d, nil
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "FULFILL",
		Files:     []string{"config.yaml", "/etc/fulfillment/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set FULFILL_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and
// PORT to the application's FULFILL_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
