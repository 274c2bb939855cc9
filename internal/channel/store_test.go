/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package channel

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/timeline/internal/cache"
	"github.com/friendsincode/timeline/internal/clock"
	"github.com/friendsincode/timeline/internal/config"
	"github.com/friendsincode/timeline/internal/db"
	"github.com/friendsincode/timeline/internal/events"
	"github.com/friendsincode/timeline/internal/timeline"
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

func TestStoreCreateAndList(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newTestDB(t), nil, nil, zerolog.Nop())

	inputs := []Input{
		{Name: "Zeta", Position: 1},
		{Name: "Beta", Position: 0, Slots: []SlotInput{
			{DayOfWeek: 2, StartTime: "9:30", DurationMinutes: 15},
			{DayOfWeek: 1, StartTime: "10:00", DurationMinutes: 30},
		}},
		{Name: "Alpha", Position: 1},
	}
	for _, in := range inputs {
		if _, err := store.Create(ctx, in); err != nil {
			t.Fatalf("create %s: %v", in.Name, err)
		}
	}

	channels, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var names []string
	for _, ch := range channels {
		names = append(names, ch.Name)
	}
	if got := strings.Join(names, ","); got != "Beta,Alpha,Zeta" {
		t.Fatalf("order = %s", got)
	}

	beta := channels[0]
	if len(beta.Slots) != 2 || beta.Slots[0].DayOfWeek != 1 {
		t.Fatalf("slots not preloaded in order: %+v", beta.Slots)
	}
	if beta.Slots[1].StartTime != "09:30" {
		t.Fatalf("start time not normalized: %q", beta.Slots[1].StartTime)
	}
}

func TestStoreCreateKeepsInactive(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newTestDB(t), nil, nil, zerolog.Nop())

	off := false
	created, err := store.Create(ctx, Input{ID: "paused", Name: "Paused", Active: &off})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Active {
		t.Fatal("returned channel is active")
	}
	stored, err := store.Get(ctx, "paused")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Active {
		t.Fatal("stored channel is active")
	}
	engine, err := store.EngineChannels(ctx)
	if err != nil {
		t.Fatalf("engine channels: %v", err)
	}
	if len(engine) != 0 {
		t.Fatalf("inactive channel evaluated: %+v", engine)
	}
}

func TestStoreValidation(t *testing.T) {
	store := NewStore(newTestDB(t), nil, nil, zerolog.Nop())

	tests := []struct {
		name string
		in   Input
	}{
		{"missing name", Input{Name: " "}},
		{"bad id", Input{Name: "x", ID: "not-a-uuid"}},
		{"bad timezone", Input{Name: "x", Timezone: "Mars/Olympus"}},
		{"bad weekday", Input{Name: "x", Slots: []SlotInput{{DayOfWeek: 7, StartTime: "10:00"}}}},
		{"bad start", Input{Name: "x", Slots: []SlotInput{{DayOfWeek: 1, StartTime: "25:00"}}}},
		{"negative duration", Input{Name: "x", Slots: []SlotInput{{DayOfWeek: 1, StartTime: "10:00", DurationMinutes: -5}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.Create(context.Background(), tt.in); !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestStoreReplaceScheduleAndDelete(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus()
	updated := bus.Subscribe(events.EventChannelUpdated)
	deleted := bus.Subscribe(events.EventChannelDeleted)

	store := NewStore(newTestDB(t), nil, bus, zerolog.Nop())
	ch, err := store.Create(ctx, Input{Name: "News", Slots: []SlotInput{{DayOfWeek: 1, StartTime: "08:00", DurationMinutes: 10}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.ReplaceSchedule(ctx, ch.ID, []SlotInput{
		{DayOfWeek: 3, StartTime: "12:00", DurationMinutes: 60},
		{DayOfWeek: 5, StartTime: "18:00", DurationMinutes: 45},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if len(got.Slots) != 2 || got.Slots[0].DayOfWeek != 3 {
		t.Fatalf("slots = %+v", got.Slots)
	}
	if p := <-updated; p["channel_id"] != ch.ID {
		t.Fatalf("update event = %v", p)
	}

	if _, err := store.ReplaceSchedule(ctx, "00000000-0000-0000-0000-000000000000", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("replace missing = %v", err)
	}

	if err := store.Delete(ctx, ch.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if p := <-deleted; p["channel_id"] != ch.ID {
		t.Fatalf("delete event = %v", p)
	}
	if _, err := store.Get(ctx, ch.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete = %v", err)
	}
	if err := store.Delete(ctx, ch.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete = %v", err)
	}
}

func TestStoreEngineChannelsUsesCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := cache.DefaultConfig()
	cfg.RedisAddr = mr.Addr()
	c, err := cache.New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	inactive := false
	store := NewStore(newTestDB(t), c, nil, zerolog.Nop())
	if _, err := store.Create(ctx, Input{
		Name:     "Berlin",
		Timezone: "Europe/Berlin",
		Slots:    []SlotInput{{DayOfWeek: 1, StartTime: "10:00", DurationMinutes: 30}},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Create(ctx, Input{Name: "Off", Active: &inactive}); err != nil {
		t.Fatalf("create inactive: %v", err)
	}

	first, err := store.EngineChannels(ctx)
	if err != nil {
		t.Fatalf("engine channels: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("got %d channels, want only the active one", len(first))
	}
	if !mr.Exists(cache.KeyChannelList) {
		t.Fatal("channel list was not cached")
	}

	second, err := store.EngineChannels(ctx)
	if err != nil {
		t.Fatalf("cached engine channels: %v", err)
	}
	if second[0].Location == nil || second[0].Location.String() != "Europe/Berlin" {
		t.Fatalf("location = %v", second[0].Location)
	}
	want := clock.WeeklySlot{Day: time.Monday, Start: 10 * time.Hour, Duration: 30 * time.Minute}
	if len(second[0].Schedule) != 1 || second[0].Schedule[0] != want {
		t.Fatalf("schedule = %+v", second[0].Schedule)
	}

	// A mutation invalidates the cached list.
	if _, err := store.Create(ctx, Input{Name: "Late"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if mr.Exists(cache.KeyChannelList) {
		t.Fatal("channel list cache survived a mutation")
	}
}

func TestToEngineSkipsUnparsableSlots(t *testing.T) {
	store := NewStore(newTestDB(t), nil, nil, zerolog.Nop())
	ch, err := store.Create(context.Background(), Input{Name: "x", Slots: []SlotInput{{DayOfWeek: 0, StartTime: "23:50", DurationMinutes: 20}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ch.Slots[0].StartTime = "garbage"
	ch.Timezone = "Nowhere/City"

	got := ToEngine(*ch)
	if len(got.Schedule) != 0 || got.Location != nil {
		t.Fatalf("ToEngine = %+v", got)
	}

	// The engine still reports the channel.
	states := timeline.ComputeStates([]timeline.Channel{got}, 11, time.Now())
	if states[ch.ID].State() != timeline.StateDefault {
		t.Fatalf("state = %s", states[ch.ID].State())
	}
}
