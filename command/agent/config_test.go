// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"testing"
	"time"

	"github.com/shoenig/test/must"
)

func TestLoadConfig_defaultsAndOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/dispatch_test")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := LoadConfig()
	must.NoError(t, err)
	must.Eq(t, ":8600", cfg.HTTPAddr)
	must.Eq(t, time.Hour, cfg.JWTAccessTTL)
	must.Eq(t, 168*time.Hour, cfg.JWTRememberTTL)
	must.Eq(t, 4096, cfg.TravelCacheSize)

	t.Setenv("HTTP_ADDR", "127.0.0.1:9001")
	t.Setenv("JWT_ACCESS_TTL", "30m")
	t.Setenv("TRAVEL_CACHE_SIZE", "128")

	cfg, err = LoadConfig()
	must.NoError(t, err)
	must.Eq(t, "127.0.0.1:9001", cfg.HTTPAddr)
	must.Eq(t, 30*time.Minute, cfg.JWTAccessTTL)
	must.Eq(t, 128, cfg.TravelCacheSize)
}

func TestLoadConfig_rejectsBadInput(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/dispatch_test")
	t.Setenv("JWT_SECRET", "s3cret")

	t.Setenv("TRAVEL_CACHE_SIZE", "zero")
	_, err := LoadConfig()
	must.Error(t, err)
	t.Setenv("TRAVEL_CACHE_SIZE", "")

	t.Setenv("JWT_ACCESS_TTL", "yesterday")
	_, err = LoadConfig()
	must.Error(t, err)
	t.Setenv("JWT_ACCESS_TTL", "")

	// Remember TTL may not undercut the access TTL.
	t.Setenv("JWT_REMEMBER_TTL", "1m")
	_, err = LoadConfig()
	must.Error(t, err)
}

func TestLoadConfig_requiredFields(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "s3cret")
	_, err := LoadConfig()
	must.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://localhost/dispatch_test")
	t.Setenv("JWT_SECRET", "")
	_, err = LoadConfig()
	must.Error(t, err)
}
