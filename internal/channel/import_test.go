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

	"github.com/rs/zerolog"

	"github.com/friendsincode/timeline/internal/events"
)

const sampleFile = `
channels:
  - name: Morning
    timezone: Europe/Berlin
    slots:
      - day: monday
        start: "10:00"
        minutes: 30
      - day: "5"
        start: "06:15"
        minutes: 45
  - name: Night
    position: 2
    slots:
      - day: sun
        start: "23:50"
        minutes: 20
  - name: Paused
    active: false
`

func TestImportYAML(t *testing.T) {
	inputs, err := ImportYAML(strings.NewReader(sampleFile))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(inputs) != 3 {
		t.Fatalf("got %d inputs", len(inputs))
	}
	morning := inputs[0]
	if morning.Timezone != "Europe/Berlin" || len(morning.Slots) != 2 {
		t.Fatalf("morning = %+v", morning)
	}
	if morning.Slots[1].DayOfWeek != 5 || morning.Slots[1].DurationMinutes != 45 {
		t.Fatalf("second slot = %+v", morning.Slots[1])
	}

	engine := EngineChannelsFromInputs(inputs)
	if len(engine) != 2 {
		t.Fatalf("inactive channel should be skipped, got %d", len(engine))
	}
	if engine[1].ID != "Night" || engine[1].Schedule[0].Day != time.Sunday {
		t.Fatalf("night = %+v", engine[1])
	}
}

func TestImportYAMLErrors(t *testing.T) {
	tests := map[string]string{
		"unknown weekday": "channels:\n  - name: x\n    slots:\n      - day: funday\n        start: \"10:00\"\n",
		"unknown field":   "channels:\n  - name: x\n    colour: red\n",
		"bad start":       "channels:\n  - name: x\n    slots:\n      - day: mon\n        start: \"10\"\n",
		"missing name":    "channels:\n  - timezone: UTC\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ImportYAML(strings.NewReader(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if inputs, err := ImportYAML(strings.NewReader("")); err != nil || inputs != nil {
		t.Fatalf("empty file = %v, %v", inputs, err)
	}
}

func TestParseWeekday(t *testing.T) {
	for in, want := range map[string]int{"Sunday": 0, "tue": 2, " SAT ": 6, "3": 3} {
		got, err := ParseWeekday(in)
		if err != nil || got != want {
			t.Errorf("ParseWeekday(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	if _, err := ParseWeekday("7"); !errors.Is(err, ErrInvalid) {
		t.Errorf("ParseWeekday(7) err = %v", err)
	}
}

func TestStoreImportReplace(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newTestDB(t), nil, nil, zerolog.Nop())

	if _, err := store.Create(ctx, Input{Name: "Old"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	inputs, err := ImportYAML(strings.NewReader(sampleFile))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	n, err := store.Import(ctx, inputs, true)
	if err != nil || n != 3 {
		t.Fatalf("import = %d, %v", n, err)
	}

	channels, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(channels) != 3 {
		t.Fatalf("got %d channels after replace", len(channels))
	}
	for _, ch := range channels {
		if ch.Name == "Old" {
			t.Fatal("replace kept existing channel")
		}
		if ch.Name == "Paused" && ch.Active {
			t.Fatal("inactive flag lost on import")
		}
	}
}

func TestStoreImportRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus()
	created := bus.Subscribe(events.EventChannelCreated)
	defer bus.Unsubscribe(events.EventChannelCreated, created)
	deleted := bus.Subscribe(events.EventChannelDeleted)
	defer bus.Unsubscribe(events.EventChannelDeleted, deleted)
	store := NewStore(newTestDB(t), nil, bus, zerolog.Nop())

	if _, err := store.Create(ctx, Input{ID: "news", Name: "News"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	<-created

	inputs := []Input{
		{ID: "morning", Name: "Morning"},
		{ID: "morning", Name: "Duplicate"},
	}
	if _, err := store.Import(ctx, inputs, true); err == nil {
		t.Fatal("expected duplicate id to fail the import")
	}

	channels, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(channels) != 1 || channels[0].ID != "news" {
		t.Fatalf("channels after failed import = %+v", channels)
	}
	select {
	case ev := <-created:
		t.Fatalf("created event after failed import: %v", ev)
	case ev := <-deleted:
		t.Fatalf("deleted event after failed import: %v", ev)
	default:
	}
}
