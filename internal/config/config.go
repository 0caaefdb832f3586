// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Storage backend: postgres or memory
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`

	// Database (PostgreSQL), required when StorageDriver is postgres
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"16"`

	// Cache (Redis). Empty disables rate limiting, the event stream and session watermarks.
	RedisURL       string `env:"REDIS_URL"`
	RedisNamespace string `env:"REDIS_NAMESPACE" envDefault:"familyshare"`
	RedisPoolSize  int    `env:"REDIS_POOL_SIZE" envDefault:"20"`

	// Access tokens minted by the account backend
	JWTSecret string `env:"AUTH_JWT_SECRET,required,notEmpty"`
	JWTIssuer string `env:"AUTH_JWT_ISSUER" envDefault:""`

	// Account backend profile API. Empty falls back to user ids as display names.
	AccountAPIURL     string        `env:"ACCOUNT_API_URL" envDefault:""`
	AccountAPIKey     string        `env:"ACCOUNT_API_KEY" envDefault:""`
	AccountAPITimeout time.Duration `env:"ACCOUNT_API_TIMEOUT" envDefault:"3s"`

	// Key for per-alert sighting pseudonyms
	PseudonymSecret string `env:"PSEUDONYM_SECRET,required,notEmpty"`

	// MQTT location ingest. Empty broker disables the subscriber.
	MQTTBrokerURL     string `env:"MQTT_BROKER_URL" envDefault:""`
	MQTTClientID      string `env:"MQTT_CLIENT_ID" envDefault:"familyshare-api"`
	MQTTLocationTopic string `env:"MQTT_LOCATION_TOPIC" envDefault:"familyshare/location/+"`
	MQTTUsername      string `env:"MQTT_USERNAME" envDefault:""`
	MQTTPassword      string `env:"MQTT_PASSWORD" envDefault:""`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting
	RateLimitAPIEnabled       bool `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	RateLimitAPIRPS           int  `env:"RATE_LIMIT_API_RPS" envDefault:"20"`
	RateLimitAPIBurst         int  `env:"RATE_LIMIT_API_BURST" envDefault:"40"`
	RateLimitCheckInsPerHour  int  `env:"RATE_LIMIT_CHECKIN_PER_HOUR" envDefault:"30"`
	RateLimitSightingsPerHour int  `env:"RATE_LIMIT_SIGHTING_PER_HOUR" envDefault:"20"`
	RateLimitIPRPS            int  `env:"RATE_LIMIT_IP_RPS" envDefault:"50"`
	RateLimitIPBurst          int  `env:"RATE_LIMIT_IP_BURST" envDefault:"100"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

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

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate checks cross-field requirements env tags cannot express.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORAGE_DRIVER=postgres")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.RateLimitAPIRPS <= 0 || c.RateLimitAPIBurst <= 0 {
		return errors.New("RATE_LIMIT_API_RPS and RATE_LIMIT_API_BURST must be positive")
	}
	if c.RateLimitIPRPS <= 0 || c.RateLimitIPBurst <= 0 {
		return errors.New("RATE_LIMIT_IP_RPS and RATE_LIMIT_IP_BURST must be positive")
	}
	if c.RateLimitCheckInsPerHour <= 0 || c.RateLimitSightingsPerHour <= 0 {
		return errors.New("RATE_LIMIT_CHECKIN_PER_HOUR and RATE_LIMIT_SIGHTING_PER_HOUR must be positive")
	}
	return nil
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
