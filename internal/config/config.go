// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache / streams (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Base URL used when rendering short links into message bodies
	// (e.g. https://brn.cs).
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Where unknown or expired short codes redirect to. The click
	// experience degrades to the storefront rather than an error page.
	FallbackRedirectURL string `env:"FALLBACK_REDIRECT_URL" envDefault:"https://jerseypickles.com"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// SMS gateway
	ProviderBaseURL    string `env:"PROVIDER_BASE_URL" envDefault:"https://api.smsgateway.example.com/v2"`
	ProviderAPIKey     string `env:"PROVIDER_API_KEY"`
	ProviderFromNumber string `env:"PROVIDER_FROM_NUMBER"`
	ProviderProfileID  string `env:"PROVIDER_MESSAGING_PROFILE_ID"`

	// Discount rule provisioning side channel
	DiscountServiceURL string `env:"DISCOUNT_SERVICE_URL"`
	DiscountAPIToken   string `env:"DISCOUNT_API_TOKEN"`

	// Campaign dispatch. SendInterval is the fixed delay between
	// provider calls within one campaign (gateway rate limit policy).
	SendInterval      time.Duration `env:"SEND_INTERVAL" envDefault:"1100ms"`
	DispatchBatchSize int           `env:"DISPATCH_BATCH_SIZE" envDefault:"50"`
	DispatchLockTTL   time.Duration `env:"DISPATCH_LOCK_TTL" envDefault:"30s"`

	// Bounce escalation policy. A customer is suppressed after this
	// many soft bounces, or immediately on a hard bounce.
	SoftBounceLimit int `env:"SOFT_BOUNCE_LIMIT" envDefault:"3"`

	// Short link tracking caps. Click history and the unique-IP set
	// are truncated, not exact; these bound their growth.
	ShortCodeLength   int `env:"SHORT_CODE_LENGTH" envDefault:"6"`
	ClickHistoryLimit int `env:"CLICK_HISTORY_LIMIT" envDefault:"100"`
	UniqueIPLimit     int `env:"UNIQUE_IP_LIMIT" envDefault:"1000"`

	// Attribution cookie set on redirect, consumed by conversion linkage.
	AttributionCookieName string        `env:"ATTRIBUTION_COOKIE_NAME" envDefault:"bc_attr"`
	AttributionCookieTTL  time.Duration `env:"ATTRIBUTION_COOKIE_TTL" envDefault:"720h"`

	// Rate limiting
	RateLimitAPIEnabled      bool `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	RateLimitAPIRPM          int  `env:"RATE_LIMIT_API_RPM" envDefault:"300"`
	RateLimitAPIBurst        int  `env:"RATE_LIMIT_API_BURST" envDefault:"50"`
	RateLimitRedirectEnabled bool `env:"RATE_LIMIT_REDIRECT_ENABLED" envDefault:"true"`
	RateLimitRedirectRPS     int  `env:"RATE_LIMIT_REDIRECT_RPS" envDefault:"100"`
	RateLimitRedirectBurst   int  `env:"RATE_LIMIT_REDIRECT_BURST" envDefault:"20"`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
