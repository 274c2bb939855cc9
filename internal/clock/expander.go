/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package clock

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Weekly is the default Expander.
type Weekly struct{}

// Expand returns the active, upcoming and most recently ended occurrences of
// slots relative to now. Day and time-of-day are interpreted in loc (UTC when
// nil). Invalid slots are skipped and negative durations count as zero.
func (Weekly) Expand(slots []WeeklySlot, now time.Time, loc *time.Location) Window {
	return Expand(slots, now, loc)
}

// Plan lists every occurrence starting in [from, from+horizon), ordered by
// start time.
func (Weekly) Plan(slots []WeeklySlot, from time.Time, horizon time.Duration, loc *time.Location) []Occurrence {
	return Plan(slots, from, horizon, loc)
}

// Expand is the function form of Weekly.Expand.
func Expand(slots []WeeklySlot, now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}

	var w Window
	for _, slot := range slots {
		if !slot.Valid() {
			continue
		}
		for _, occ := range occurrencesAround(slot, now, loc) {
			w.consider(occ, now)
		}
	}
	return w
}

// Plan is the function form of Weekly.Plan.
func Plan(slots []WeeklySlot, from time.Time, horizon time.Duration, loc *time.Location) []Occurrence {
	if loc == nil {
		loc = time.UTC
	}
	if horizon <= 0 {
		horizon = Week
	}
	end := from.Add(horizon)

	weeks := int(horizon/Week) + 2
	plans := make([]Occurrence, 0, len(slots)*weeks)
	for _, slot := range slots {
		if !slot.Valid() {
			continue
		}
		for i := -1; i < weeks; i++ {
			occ := occurrenceAt(slot, from, loc, i)
			if occ.StartsAt.Before(from) || !occ.StartsAt.Before(end) {
				continue
			}
			plans = append(plans, occ)
		}
	}

	sort.SliceStable(plans, func(i, j int) bool {
		if plans[i].StartsAt.Equal(plans[j].StartsAt) {
			return plans[i].EndsAt.Before(plans[j].EndsAt)
		}
		return plans[i].StartsAt.Before(plans[j].StartsAt)
	})
	return plans
}

// Valid reports whether the slot can be projected onto a calendar.
func (s WeeklySlot) Valid() bool {
	if s.Day < time.Sunday || s.Day > time.Saturday {
		return false
	}
	return s.Start >= 0 && s.Start < 24*time.Hour
}

func (s WeeklySlot) length() time.Duration {
	switch {
	case s.Duration < 0:
		return 0
	case s.Duration > Week:
		return Week
	}
	return s.Duration
}

// consider folds one occurrence into the window.
func (w *Window) consider(occ Occurrence, now time.Time) {
	if occ.Contains(now) {
		// Overlapping slots: keep the one that runs longest, then the earliest.
		if w.Active == nil ||
			occ.EndsAt.After(w.Active.EndsAt) ||
			(occ.EndsAt.Equal(w.Active.EndsAt) && occ.StartsAt.Before(w.Active.StartsAt)) {
			o := occ
			w.Active = &o
		}
	}
	if occ.StartsAt.After(now) {
		if w.Upcoming == nil || occ.StartsAt.Before(w.Upcoming.StartsAt) {
			o := occ
			w.Upcoming = &o
		}
	}
	if !occ.EndsAt.After(now) {
		if w.Recent == nil || occ.EndsAt.After(w.Recent.EndsAt) {
			o := occ
			w.Recent = &o
		}
	}
}

// occurrencesAround returns the slot's occurrences from two weeks before the
// week containing now up to the week after it. Two trailing weeks are needed
// so a slot longer than the gap to its next start still yields a recent end.
func occurrencesAround(slot WeeklySlot, now time.Time, loc *time.Location) []Occurrence {
	out := make([]Occurrence, 0, 4)
	for weeks := -2; weeks <= 1; weeks++ {
		out = append(out, occurrenceAt(slot, now, loc, weeks))
	}
	return out
}

// occurrenceAt builds the occurrence in the week containing ref, shifted by
// the given number of weeks. time.Date normalizes day overflow and keeps
// wall-clock alignment across DST changes.
func occurrenceAt(slot WeeklySlot, ref time.Time, loc *time.Location, weeks int) Occurrence {
	local := ref.In(loc)
	y, m, d := local.Date()
	offset := int(slot.Day) - int(local.Weekday())

	h := int(slot.Start / time.Hour)
	minute := int(slot.Start % time.Hour / time.Minute)
	sec := int(slot.Start % time.Minute / time.Second)

	start := time.Date(y, m, d+offset+7*weeks, h, minute, sec, 0, loc)
	return Occurrence{StartsAt: start, EndsAt: start.Add(slot.length())}
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS" into an offset from midnight.
func ParseTimeOfDay(value string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", value)
	}

	limits := []int{23, 59, 59}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var offset time.Duration
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid time of day %q", value)
		}
		offset += time.Duration(n) * units[i]
	}
	return offset, nil
}

// FormatTimeOfDay renders an offset from midnight as "HH:MM".
func FormatTimeOfDay(offset time.Duration) string {
	h := int(offset / time.Hour)
	m := int(offset % time.Hour / time.Minute)
	return fmt.Sprintf("%02d:%02d", h, m)
}
