package config

import (
	"testing"
	"time"
)

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("TIMELINE_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("TIMELINE_ENV", "development")
	t.Setenv("TIMELINE_TICK_SECONDS", "15")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN == "" {
		t.Fatal("expected DB DSN to be set")
	}
	if cfg.TickInterval != 15*time.Second {
		t.Fatalf("TickInterval = %v, want 15s", cfg.TickInterval)
	}
	if cfg.DefaultMinIntervalMinutes != 11 {
		t.Fatalf("DefaultMinIntervalMinutes = %d, want 11", cfg.DefaultMinIntervalMinutes)
	}
	if cfg.Location != time.UTC {
		t.Fatalf("Location = %v, want UTC", cfg.Location)
	}
	if cfg.EventBus != EventBusMemory {
		t.Fatalf("EventBus = %q, want memory", cfg.EventBus)
	}
}

func TestLoadAcceptsLegacyPrefix(t *testing.T) {
	t.Setenv("GRIMNIR_DB_DSN", "file::memory:")
	t.Setenv("GRIMNIR_DB_BACKEND", "sqlite")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Fatalf("DBBackend = %q, want sqlite", cfg.DBBackend)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}

func TestLoadRequiresDSN(t *testing.T) {
	t.Setenv("TIMELINE_DB_DSN", "")
	t.Setenv("GRIMNIR_DB_DSN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without DSN")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "backend", key: "TIMELINE_DB_BACKEND", val: "oracle"},
		{name: "event bus", key: "TIMELINE_EVENT_BUS", val: "kafka"},
		{name: "timezone", key: "TIMELINE_TIMEZONE", val: "Mars/Olympus"},
		{name: "tick", key: "TIMELINE_TICK_SECONDS", val: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TIMELINE_DB_DSN", "file::memory:")
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestLoadNonPositiveMinIntervalFallsBack(t *testing.T) {
	t.Setenv("TIMELINE_DB_DSN", "file::memory:")
	t.Setenv("TIMELINE_DEFAULT_MIN_INTERVAL_MINUTES", "-4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DefaultMinIntervalMinutes != 11 {
		t.Fatalf("DefaultMinIntervalMinutes = %d, want 11", cfg.DefaultMinIntervalMinutes)
	}
}

func TestLoadProductionLeaderElectionNeedsSharedBus(t *testing.T) {
	t.Setenv("TIMELINE_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("TIMELINE_ENV", "production")
	t.Setenv("TIMELINE_LEADER_ELECTION_ENABLED", "true")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail with in-memory bus")
	}

	t.Setenv("TIMELINE_EVENT_BUS", "redis")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config with redis bus to load: %v", err)
	}
}
