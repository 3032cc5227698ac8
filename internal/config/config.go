// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv string `env:"APP_ENV" envDefault:"development"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis). Empty disables the monthly summary cache.
	RedisURL string `env:"REDIS_URL" envDefault:""`

	// Closed set of valid expense category labels, as a JSON array of
	// strings, e.g. ["Food","Transport","Entertainment"].
	ExpenseCategories string `env:"EXPENSE_CATEGORIES,required"`

	// Pagination
	DefaultPageSize int `env:"DEFAULT_PAGE_SIZE" envDefault:"20"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Categories parses the EXPENSE_CATEGORIES JSON array. Blank entries are
// dropped; an empty result is an error since the service would reject every
// expense.
func (c *Config) Categories() ([]string, error) {
	var raw []string
	if err := json.Unmarshal([]byte(c.ExpenseCategories), &raw); err != nil {
		return nil, fmt.Errorf("parse EXPENSE_CATEGORIES: %w", err)
	}

	categories := make([]string, 0, len(raw))
	for _, category := range raw {
		trimmed := strings.TrimSpace(category)
		if trimmed != "" {
			categories = append(categories, trimmed)
		}
	}

	if len(categories) == 0 {
		return nil, fmt.Errorf("EXPENSE_CATEGORIES must list at least one category")
	}

	return categories, nil
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
