/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/timeline/internal/config"
	"github.com/friendsincode/timeline/internal/db"
	"github.com/friendsincode/timeline/internal/events"
	"github.com/friendsincode/timeline/internal/models"
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

func TestStartRecordsConfigurationChanges(t *testing.T) {
	bus := events.NewBus()
	svc := NewService(newTestDB(t), bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Start subscribes asynchronously; keep publishing until it is listening.
	deadline := time.Now().Add(2 * time.Second)
	for {
		bus.Publish(events.EventChannelCreated, events.Payload{"channel_id": "news"})
		if _, total, _ := svc.Query(context.Background(), QueryFilters{}); total > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("audit service never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	bus.Publish(events.EventSettingsUpdated, events.Payload{"min_interval_minutes": 20})
	bus.Publish(events.EventAuditWebhookCreate, events.Payload{
		"resource_id": "hook-1",
		"channel_id":  "news",
		"url":         "https://example.org/hook",
	})

	action := models.AuditActionSettingsUpdate
	deadline = time.Now().Add(2 * time.Second)
	var settings []models.AuditLog
	for {
		settings, _, _ = svc.Query(context.Background(), QueryFilters{Action: &action})
		if len(settings) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("settings entries = %d", len(settings))
		}
		time.Sleep(10 * time.Millisecond)
	}
	if settings[0].ChannelID != nil || settings[0].ResourceType != "settings" {
		t.Fatalf("settings entry = %+v", settings[0])
	}
	if v, ok := settings[0].Details["min_interval_minutes"].(float64); !ok || v != 20 {
		t.Fatalf("details = %v", settings[0].Details)
	}

	hookAction := models.AuditActionWebhookCreate
	deadline = time.Now().Add(2 * time.Second)
	var hooks []models.AuditLog
	for {
		hooks, _, _ = svc.Query(context.Background(), QueryFilters{Action: &hookAction})
		if len(hooks) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("webhook create never recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if hooks[0].ResourceID != "hook-1" || hooks[0].ChannelID == nil || *hooks[0].ChannelID != "news" {
		t.Fatalf("webhook entry = %+v", hooks[0])
	}
	if hooks[0].Details["url"] != "https://example.org/hook" {
		t.Fatalf("details = %v", hooks[0].Details)
	}
}

func TestFollowerDoesNotRecord(t *testing.T) {
	svc := NewService(newTestDB(t), events.NewBus(), zerolog.Nop())
	svc.SetLeaderCheck(func() bool { return false })

	svc.logAuditEntry(context.Background(), models.AuditActionChannelDelete, "channel", events.Payload{"channel_id": "news"})

	if _, total, err := svc.Query(context.Background(), QueryFilters{}); err != nil || total != 0 {
		t.Fatalf("total = %d, err = %v", total, err)
	}
}

func TestQueryFilters(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newTestDB(t), events.NewBus(), zerolog.Nop())

	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	news, music := "news", "music"
	entries := []models.AuditLog{
		{Timestamp: base, ChannelID: &news, Action: models.AuditActionChannelCreate, ResourceType: "channel", ResourceID: news},
		{Timestamp: base.Add(time.Hour), ChannelID: &music, Action: models.AuditActionChannelCreate, ResourceType: "channel", ResourceID: music},
		{Timestamp: base.Add(2 * time.Hour), ChannelID: &news, Action: models.AuditActionChannelUpdate, ResourceType: "channel", ResourceID: news},
		{Timestamp: base.Add(3 * time.Hour), Action: models.AuditActionSettingsUpdate, ResourceType: "settings"},
	}
	for i := range entries {
		if err := svc.Log(ctx, &entries[i]); err != nil {
			t.Fatalf("log: %v", err)
		}
	}

	create := models.AuditActionChannelCreate
	start := base.Add(30 * time.Minute)
	end := base.Add(2 * time.Hour)

	tests := []struct {
		name    string
		filters QueryFilters
		total   int64
		first   models.AuditAction
	}{
		{name: "all newest first", filters: QueryFilters{}, total: 4, first: models.AuditActionSettingsUpdate},
		{name: "by channel", filters: QueryFilters{ChannelID: &news}, total: 2, first: models.AuditActionChannelUpdate},
		{name: "by action", filters: QueryFilters{Action: &create}, total: 2, first: models.AuditActionChannelCreate},
		{name: "time window", filters: QueryFilters{StartTime: &start, EndTime: &end}, total: 2, first: models.AuditActionChannelUpdate},
		{name: "paged", filters: QueryFilters{Limit: 1, Offset: 1}, total: 4, first: models.AuditActionChannelUpdate},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logs, total, err := svc.Query(ctx, tc.filters)
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if total != tc.total {
				t.Fatalf("total = %d, want %d", total, tc.total)
			}
			if len(logs) == 0 || logs[0].Action != tc.first {
				t.Fatalf("first = %+v, want %s", logs, tc.first)
			}
		})
	}
}
