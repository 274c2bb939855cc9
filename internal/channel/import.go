/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/friendsincode/timeline/internal/events"
	"github.com/friendsincode/timeline/internal/models"
	"github.com/friendsincode/timeline/internal/timeline"
)

// File is the YAML channel list format:
//
//	channels:
//	  - name: Morning
//	    timezone: Europe/Berlin
//	    slots:
//	      - day: monday
//	        start: "10:00"
//	        minutes: 30
type File struct {
	Channels []FileChannel `yaml:"channels"`
}

// FileChannel is one channel entry of a File.
type FileChannel struct {
	ID       string     `yaml:"id"`
	Name     string     `yaml:"name"`
	Position int        `yaml:"position"`
	Timezone string     `yaml:"timezone"`
	Active   *bool      `yaml:"active"`
	Slots    []FileSlot `yaml:"slots"`
}

// FileSlot accepts the weekday as a name ("mon", "Monday") or number (0 = Sunday).
type FileSlot struct {
	Day     string `yaml:"day"`
	Start   string `yaml:"start"`
	Minutes int    `yaml:"minutes"`
}

var weekdays = map[string]int{
	"sun": 0, "sunday": 0,
	"mon": 1, "monday": 1,
	"tue": 2, "tuesday": 2,
	"wed": 3, "wednesday": 3,
	"thu": 4, "thursday": 4,
	"fri": 5, "friday": 5,
	"sat": 6, "saturday": 6,
}

// ParseWeekday parses a weekday name or number.
func ParseWeekday(value string) (int, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if d, ok := weekdays[v]; ok {
		return d, nil
	}
	if d, err := strconv.Atoi(v); err == nil && d >= 0 && d <= 6 {
		return d, nil
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalid, value)
}

// ImportYAML reads a channel list file into create inputs.
func ImportYAML(r io.Reader) ([]Input, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode channel file: %w", err)
	}

	inputs := make([]Input, 0, len(f.Channels))
	for i, fc := range f.Channels {
		in := Input{
			ID:       fc.ID,
			Name:     fc.Name,
			Position: fc.Position,
			Timezone: fc.Timezone,
			Active:   fc.Active,
		}
		for j, fs := range fc.Slots {
			day, err := ParseWeekday(fs.Day)
			if err != nil {
				return nil, fmt.Errorf("channel %d slot %d: %w", i, j, err)
			}
			in.Slots = append(in.Slots, SlotInput{
				DayOfWeek:       day,
				StartTime:       fs.Start,
				DurationMinutes: fs.Minutes,
			})
		}
		if err := validate(in); err != nil {
			return nil, fmt.Errorf("channel %d (%s): %w", i, fc.Name, err)
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// EngineChannelsFromInputs converts file inputs for offline evaluation.
// Entries without an id are keyed by name.
func EngineChannelsFromInputs(inputs []Input) []timeline.Channel {
	out := make([]timeline.Channel, 0, len(inputs))
	for _, in := range inputs {
		if in.Active != nil && !*in.Active {
			continue
		}
		id := in.ID
		if id == "" {
			id = in.Name
		}
		out = append(out, timeline.Channel{
			ID:       id,
			Location: location(in.Timezone),
			Schedule: weeklySchedule(in.Slots, func(sl SlotInput) (int, string, int) {
				return sl.DayOfWeek, sl.StartTime, sl.DurationMinutes
			}),
		})
	}
	return out
}

// Import creates the given channels in one transaction. With replace,
// existing channels are removed first; a failing input leaves the stored
// channels untouched.
func (s *Store) Import(ctx context.Context, inputs []Input, replace bool) (int, error) {
	for _, in := range inputs {
		if err := validate(in); err != nil {
			return 0, fmt.Errorf("import %q: %w", in.Name, err)
		}
	}

	created := make([]*models.Channel, 0, len(inputs))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if replace {
			all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
			if err := all.Delete(&models.ScheduledSlot{}).Error; err != nil {
				return fmt.Errorf("clear slots: %w", err)
			}
			if err := all.Delete(&models.Channel{}).Error; err != nil {
				return fmt.Errorf("clear channels: %w", err)
			}
		}
		for _, in := range inputs {
			ch, err := createTx(tx, in)
			if err != nil {
				return fmt.Errorf("import %q: %w", in.Name, err)
			}
			created = append(created, ch)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if replace {
		s.logger.Warn().Msg("existing channels replaced by import")
		s.changed(ctx, events.EventChannelDeleted, "")
	}
	for _, ch := range created {
		s.changed(ctx, events.EventChannelCreated, ch.ID)
	}
	s.logger.Info().Int("channels", len(created)).Bool("replace", replace).Msg("channels imported")
	return len(created), nil
}
