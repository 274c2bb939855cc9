/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package timeline

import (
	"fmt"
	"time"
)

// FormatRemaining renders a countdown as HH:MM:SS. Non-positive values render
// as 00:00:00 and hours are not capped.
func FormatRemaining(seconds int64) string {
	if seconds <= 0 {
		return "00:00:00"
	}
	h := seconds / 3600
	m := seconds % 3600 / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// SecondsUntil returns the whole seconds from now until target, never negative.
func SecondsUntil(target, now time.Time) int64 {
	d := target.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}

// FormatInstant renders t as "15:04" when it falls on the same local day as
// now and as "02.01, 15:04" otherwise.
func FormatInstant(t, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	lt, ln := t.In(loc), now.In(loc)
	ty, tm, td := lt.Date()
	ny, nm, nd := ln.Date()
	if ty == ny && tm == nm && td == nd {
		return lt.Format("15:04")
	}
	return lt.Format("02.01, 15:04")
}

// Display holds pre-formatted strings for one channel, relative to now.
type Display struct {
	State         State  `json:"state"`
	Remaining     string `json:"remaining,omitempty"`
	StartsIn      string `json:"starts_in,omitempty"`
	EndedAgo      string `json:"ended_ago,omitempty"`
	NextSlot      string `json:"next_slot,omitempty"`
	PreviousSlot  string `json:"previous_slot,omitempty"`
	PreviousEnded string `json:"previous_ended,omitempty"`
}

// Describe formats info for display at now in loc.
func Describe(info ChannelStateInfo, now time.Time, loc *time.Location) Display {
	d := Display{State: info.State()}
	if end, ok := info.CurrentEndTime(); ok {
		d.Remaining = FormatRemaining(SecondsUntil(end, now))
	}
	if start, ok := info.NextStartTime(); ok && info.State() == StateNext {
		d.StartsIn = FormatRemaining(SecondsUntil(start, now))
	}
	if end, ok := info.PreviousEndTime(); ok {
		d.EndedAgo = FormatRemaining(SecondsUntil(now, end))
		d.PreviousEnded = FormatInstant(end, now, loc)
	}
	if ref := info.Adjacent.Next; ref != nil {
		d.NextSlot = FormatInstant(ref.At, now, loc)
	}
	if ref := info.Adjacent.Previous; ref != nil {
		d.PreviousSlot = FormatInstant(ref.At, now, loc)
	}
	return d
}
