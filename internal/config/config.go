/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// EventBusBackend selects how snapshots and transitions travel between instances.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusRedis  EventBusBackend = "redis"
	EventBusNATS   EventBusBackend = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string // Public base URL used in calendar feeds
	DBBackend   DatabaseBackend
	DBDSN       string

	// Evaluation loop
	TickInterval              time.Duration
	DefaultMinIntervalMinutes int
	Timezone                  string
	Location                  *time.Location
	ComputeRateLimit          int // requests per minute per client on /timeline/compute

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	LeaderElectionEnabled bool
	CacheEnabled          bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string
	EventBus              EventBusBackend
	NATSURL               string

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"TIMELINE_ENV", "GRIMNIR_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"TIMELINE_HTTP_BIND", "GRIMNIR_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"TIMELINE_HTTP_PORT", "GRIMNIR_HTTP_PORT"}, 8080),
		BaseURL:     getEnvAny([]string{"TIMELINE_BASE_URL", "GRIMNIR_BASE_URL"}, ""),
		DBBackend:   DatabaseBackend(getEnvAny([]string{"TIMELINE_DB_BACKEND", "GRIMNIR_DB_BACKEND"}, string(DatabasePostgres))),
		DBDSN:       getEnvAny([]string{"TIMELINE_DB_DSN", "GRIMNIR_DB_DSN"}, ""),

		TickInterval:              time.Duration(getEnvIntAny([]string{"TIMELINE_TICK_SECONDS"}, 30)) * time.Second,
		DefaultMinIntervalMinutes: getEnvIntAny([]string{"TIMELINE_DEFAULT_MIN_INTERVAL_MINUTES"}, 11),
		Timezone:                  getEnvAny([]string{"TIMELINE_TIMEZONE"}, "UTC"),
		ComputeRateLimit:          getEnvIntAny([]string{"TIMELINE_COMPUTE_RATE_LIMIT"}, 60),

		// Tracing configuration
		TracingEnabled:    getEnvBoolAny([]string{"TIMELINE_TRACING_ENABLED", "GRIMNIR_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"TIMELINE_OTLP_ENDPOINT", "GRIMNIR_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"TIMELINE_TRACING_SAMPLE_RATE", "GRIMNIR_TRACING_SAMPLE_RATE"}, 1.0),

		// Multi-instance configuration
		LeaderElectionEnabled: getEnvBoolAny([]string{"TIMELINE_LEADER_ELECTION_ENABLED", "GRIMNIR_LEADER_ELECTION_ENABLED"}, false),
		CacheEnabled:          getEnvBoolAny([]string{"TIMELINE_CACHE_ENABLED"}, false),
		RedisAddr:             getEnvAny([]string{"TIMELINE_REDIS_ADDR", "GRIMNIR_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:         getEnvAny([]string{"TIMELINE_REDIS_PASSWORD", "GRIMNIR_REDIS_PASSWORD"}, ""),
		RedisDB:               getEnvIntAny([]string{"TIMELINE_REDIS_DB", "GRIMNIR_REDIS_DB"}, 0),
		InstanceID:            getEnvAny([]string{"TIMELINE_INSTANCE_ID", "GRIMNIR_INSTANCE_ID"}, ""),
		EventBus:              EventBusBackend(strings.ToLower(getEnvAny([]string{"TIMELINE_EVENT_BUS"}, string(EventBusMemory)))),
		NATSURL:               getEnvAny([]string{"TIMELINE_NATS_URL", "NATS_URL"}, "nats://localhost:4222"),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("TIMELINE_DB_DSN or GRIMNIR_DB_DSN must be provided")
	}

	if cfg.EventBus != EventBusMemory && cfg.EventBus != EventBusRedis && cfg.EventBus != EventBusNATS {
		return nil, fmt.Errorf("unsupported event bus %q", cfg.EventBus)
	}

	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("TIMELINE_TICK_SECONDS must be positive")
	}

	if cfg.DefaultMinIntervalMinutes <= 0 {
		cfg.DefaultMinIntervalMinutes = 11
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if cfg.LeaderElectionEnabled && cfg.EventBus == EventBusMemory && strings.EqualFold(cfg.Environment, "production") {
		return nil, fmt.Errorf("TIMELINE_EVENT_BUS must be redis or nats when leader election is enabled in production")
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":             "use TIMELINE_ENV",
		"LEADER_ELECTION_ENABLED": "use TIMELINE_LEADER_ELECTION_ENABLED",
		"TRACING_ENABLED":         "use TIMELINE_TRACING_ENABLED",
		"OTLP_ENDPOINT":           "use TIMELINE_OTLP_ENDPOINT",
		"MIN_INTERVAL_MINUTES":    "use TIMELINE_DEFAULT_MIN_INTERVAL_MINUTES",
		"GRIMNIR_DB_DSN":          "use TIMELINE_DB_DSN",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
