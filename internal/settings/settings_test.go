/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/timeline/internal/cache"
	"github.com/friendsincode/timeline/internal/config"
	"github.com/friendsincode/timeline/internal/db"
	"github.com/friendsincode/timeline/internal/events"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.Connect(&config.Config{DBBackend: config.DatabaseSQLite, DBDSN: ":memory:"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(database) })
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func TestMinIntervalDefaultAndUpdate(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus()
	sub := bus.Subscribe(events.EventSettingsUpdated)
	svc := NewService(newTestDB(t), nil, bus, 0, zerolog.Nop())

	got, err := svc.MinInterval(ctx)
	if err != nil || got != 11 {
		t.Fatalf("MinInterval = %d, %v", got, err)
	}

	row, err := svc.Update(ctx, 25)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if row.MinIntervalMinutes != 25 {
		t.Fatalf("row = %+v", row)
	}
	if p := <-sub; p["min_interval_minutes"] != 25 {
		t.Fatalf("event = %v", p)
	}

	if got, _ := svc.MinInterval(ctx); got != 25 {
		t.Fatalf("MinInterval after update = %d", got)
	}
}

func TestUpdateRejectsOutOfRange(t *testing.T) {
	svc := NewService(newTestDB(t), nil, nil, 0, zerolog.Nop())
	for _, minutes := range []int{0, -3, 1441} {
		if _, err := svc.Update(context.Background(), minutes); !errors.Is(err, ErrInvalidMinInterval) {
			t.Errorf("Update(%d) err = %v", minutes, err)
		}
	}
}

func TestMinIntervalReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := cache.DefaultConfig()
	cfg.RedisAddr = mr.Addr()
	c, err := cache.New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	database := newTestDB(t)
	svc := NewService(database, c, nil, 0, zerolog.Nop())

	if _, err := svc.MinInterval(ctx); err != nil {
		t.Fatalf("MinInterval: %v", err)
	}
	if got, ok := c.GetMinInterval(ctx); !ok || got != 11 {
		t.Fatalf("cache = %d, %v", got, ok)
	}

	// Served from cache even if the row changes behind our back.
	if err := database.Exec("UPDATE system_settings SET min_interval_minutes = 40").Error; err != nil {
		t.Fatalf("exec: %v", err)
	}
	if got, _ := svc.MinInterval(ctx); got != 11 {
		t.Fatalf("MinInterval = %d, want cached 11", got)
	}

	if _, err := svc.Update(ctx, 30); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, ok := c.GetMinInterval(ctx); ok {
		t.Fatal("update did not invalidate cache")
	}
	if got, _ := svc.MinInterval(ctx); got != 30 {
		t.Fatalf("MinInterval = %d, want 30", got)
	}
}

func TestResolveFallsBack(t *testing.T) {
	database := newTestDB(t)
	svc := NewService(database, nil, nil, 0, zerolog.Nop())

	if minutes, fallback := svc.Resolve(context.Background()); minutes != 11 || fallback {
		t.Fatalf("Resolve = %d, %v", minutes, fallback)
	}

	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	_ = sqlDB.Close()

	minutes, fallback := svc.Resolve(context.Background())
	if !fallback || minutes != 11 {
		t.Fatalf("Resolve with closed db = %d, %v", minutes, fallback)
	}

	custom := NewService(database, nil, nil, 7, zerolog.Nop())
	if minutes, _ := custom.Resolve(context.Background()); minutes != 7 {
		t.Fatalf("custom fallback = %d", minutes)
	}
}
