package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration, loaded from environment
// variables.
type Config struct {
	Env      string `envconfig:"ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`

	Server    ServerConfig
	Fetch     FetchConfig
	Generator GeneratorConfig
	Photos    PhotoConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	EnableCORS      bool          `envconfig:"SERVER_ENABLE_CORS" default:"true"`
}

// Addr returns the server listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FetchConfig holds page-fetch settings.
type FetchConfig struct {
	Timeout       time.Duration `envconfig:"FETCH_TIMEOUT" default:"15s"`
	SkipTier2     bool          `envconfig:"FETCH_SKIP_TIER2" default:"false"`
	EnableTier2   bool          `envconfig:"FETCH_ENABLE_TIER2" default:"false"`
	Tier2Headless bool          `envconfig:"FETCH_TIER2_HEADLESS" default:"true"`
}

// GeneratorConfig holds text-generation backend settings.
type GeneratorConfig struct {
	APIKey       string        `envconfig:"ANTHROPIC_API_KEY" required:"true"`
	BaseURL      string        `envconfig:"GENERATOR_BASE_URL" default:"https://api.anthropic.com"`
	Model        string        `envconfig:"GENERATOR_MODEL" default:"claude-sonnet-4-20250514"`
	MaxTokens    int           `envconfig:"GENERATOR_MAX_TOKENS" default:"2048"`
	Timeout      time.Duration `envconfig:"GENERATOR_TIMEOUT" default:"120s"`
	RateLimitRPM int           `envconfig:"GENERATOR_RATE_LIMIT_RPM" default:"50"`
	CacheTTL     time.Duration `envconfig:"GENERATOR_CACHE_TTL" default:"1h"`
}

// PhotoConfig holds photo classification thresholds. Defaults match
// the classifier's built-in criteria.
type PhotoConfig struct {
	MinWidth       int     `envconfig:"PHOTO_MIN_WIDTH" default:"200"`
	MinHeight      int     `envconfig:"PHOTO_MIN_HEIGHT" default:"150"`
	MinArea        int     `envconfig:"PHOTO_MIN_AREA" default:"40000"`
	MinAspectRatio float64 `envconfig:"PHOTO_MIN_ASPECT_RATIO" default:"0.4"`
	MaxAspectRatio float64 `envconfig:"PHOTO_MAX_ASPECT_RATIO" default:"3.0"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var problems []string

	if c.Generator.APIKey == "" {
		problems = append(problems, "ANTHROPIC_API_KEY is required")
	}
	if c.Fetch.Timeout <= 0 {
		problems = append(problems, "FETCH_TIMEOUT must be positive")
	}
	if c.Photos.MinAspectRatio >= c.Photos.MaxAspectRatio {
		problems = append(problems, "PHOTO_MIN_ASPECT_RATIO must be below PHOTO_MAX_ASPECT_RATIO")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// GetLogLevel returns the effective log level.
func (c *Config) GetLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}
