package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	LogLevel    string   `mapstructure:"LOG_LEVEL"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	RedisURL string `mapstructure:"REDIS_URL"`

	MySQLHost            string `mapstructure:"MYSQL_HOST"`
	MySQLPort            string `mapstructure:"MYSQL_PORT"`
	MySQLUser            string `mapstructure:"MYSQL_USER"`
	MySQLPassword        string `mapstructure:"MYSQL_PASSWORD"`
	MySQLDatabase        string `mapstructure:"MYSQL_DATABASE"`
	MySQLConnectionLimit int    `mapstructure:"MYSQL_CONNECTION_LIMIT"`

	CypressAPIKey    string `mapstructure:"CYPRESS_API_KEY"`
	CypressBaseURL   string `mapstructure:"CYPRESS_BASE_URL"`
	CypressTimeoutMS int    `mapstructure:"CYPRESS_TIMEOUT_MS"`

	MaxRetries  int `mapstructure:"MAX_RETRIES"`
	BaseDelayMS int `mapstructure:"BASE_DELAY_MS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REDIS_URL", "redis://localhost:6379")
	v.SetDefault("MYSQL_HOST", "localhost")
	v.SetDefault("MYSQL_PORT", "3306")
	v.SetDefault("MYSQL_USER", "root")
	v.SetDefault("MYSQL_CONNECTION_LIMIT", 10)
	v.SetDefault("CYPRESS_TIMEOUT_MS", 30000)
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("BASE_DELAY_MS", 5000)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("MYSQL_HOST")
	v.BindEnv("MYSQL_PORT")
	v.BindEnv("MYSQL_USER")
	v.BindEnv("MYSQL_PASSWORD")
	v.BindEnv("MYSQL_DATABASE")
	v.BindEnv("MYSQL_CONNECTION_LIMIT")
	v.BindEnv("CYPRESS_API_KEY")
	v.BindEnv("CYPRESS_BASE_URL")
	v.BindEnv("CYPRESS_TIMEOUT_MS")
	v.BindEnv("MAX_RETRIES")
	v.BindEnv("BASE_DELAY_MS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.MySQLDatabase == "" {
		return nil, fmt.Errorf("MYSQL_DATABASE is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// MySQLDSN builds the go-sql-driver DSN for the configured MySQL target.
// parseTime is enabled so DATE/TIMESTAMP columns scan into time.Time, and
// the session location is pinned to UTC to match how report dates are stored.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC",
		c.MySQLUser, c.MySQLPassword, c.MySQLHost, c.MySQLPort, c.MySQLDatabase)
}

// Validate checks that the configuration is safe to run. The Cypress
// credentials are deliberately not required here: the report builder fails
// per-job when they are missing, so the notification and pull-request
// pipelines can still run without them.
func (c *Config) Validate() error {
	if c.MySQLConnectionLimit <= 0 {
		return fmt.Errorf("MYSQL_CONNECTION_LIMIT must be positive, got %d", c.MySQLConnectionLimit)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}
	if c.BaseDelayMS <= 0 {
		return fmt.Errorf("BASE_DELAY_MS must be positive, got %d", c.BaseDelayMS)
	}
	if c.CypressTimeoutMS <= 0 {
		return fmt.Errorf("CYPRESS_TIMEOUT_MS must be positive, got %d", c.CypressTimeoutMS)
	}
	return nil
}
