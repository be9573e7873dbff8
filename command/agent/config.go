// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the runtime configuration of the dispatch agent. Every field
// is sourced from the environment so the binary can run unchanged in a
// container, a unit file, or a developer shell.
type Config struct {
	// HTTPAddr is the listen address of the API server.
	HTTPAddr string

	// DatabaseURL is the postgres DSN.
	DatabaseURL string

	// JWTSecret signs access tokens. The agent refuses to start without it.
	JWTSecret string

	// JWTAccessTTL bounds a normal session; JWTRememberTTL applies when the
	// login request sets remember=true.
	JWTAccessTTL   time.Duration
	JWTRememberTTL time.Duration

	// TravelProviderURL enables the remote travel-time provider. Empty means
	// great-circle estimates only.
	TravelProviderURL   string
	TravelProviderToken string
	TravelCacheSize     int

	// SMSProviderURL enables outbound customer notifications. Empty means
	// messages are logged and recorded but not delivered.
	SMSProviderURL   string
	SMSProviderToken string

	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string
}

// DefaultConfig returns the agent defaults before the environment is applied.
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:        ":8600",
		JWTAccessTTL:    time.Hour,
		JWTRememberTTL:  168 * time.Hour,
		TravelCacheSize: 4096,
		LogLevel:        "info",
	}
}

// LoadConfig builds the agent configuration from the process environment.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.TravelProviderURL = os.Getenv("TRAVEL_PROVIDER_URL")
	cfg.TravelProviderToken = os.Getenv("TRAVEL_PROVIDER_TOKEN")
	cfg.SMSProviderURL = os.Getenv("SMS_PROVIDER_URL")
	cfg.SMSProviderToken = os.Getenv("SMS_PROVIDER_TOKEN")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	var err error
	if cfg.JWTAccessTTL, err = durationEnv("JWT_ACCESS_TTL", cfg.JWTAccessTTL); err != nil {
		return nil, err
	}
	if cfg.JWTRememberTTL, err = durationEnv("JWT_REMEMBER_TTL", cfg.JWTRememberTTL); err != nil {
		return nil, err
	}
	if v := os.Getenv("TRAVEL_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid TRAVEL_CACHE_SIZE %q", v)
		}
		cfg.TravelCacheSize = n
	}

	return cfg, cfg.Validate()
}

// Validate checks the fields the agent cannot run without.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.JWTAccessTTL <= 0 || c.JWTRememberTTL < c.JWTAccessTTL {
		return fmt.Errorf("token TTLs must be positive and remember >= access")
	}
	return nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
