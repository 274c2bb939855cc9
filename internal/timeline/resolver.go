/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package timeline

import (
	"time"

	"github.com/friendsincode/timeline/internal/clock"
)

// Classify maps a window onto a single state. Rules are checked in order and
// the first match wins; both interval boundaries are inclusive.
func Classify(w clock.Window, now time.Time, minInterval time.Duration) State {
	switch {
	case w.Empty():
		return StateDefault
	case w.Active != nil:
		return StateCurrent
	case w.Upcoming != nil && w.Upcoming.StartsAt.Sub(now) <= minInterval:
		return StateNext
	case w.Recent != nil && now.Sub(w.Recent.EndsAt) <= minInterval:
		return StatePrevious
	default:
		return StateDefault
	}
}

// Assemble builds the result for one channel from its window and state.
// Adjacent refs use the start of the upcoming and recent occurrences and are
// left empty for the default state.
func Assemble(state State, w clock.Window, loc *time.Location) ChannelStateInfo {
	if loc == nil {
		loc = time.UTC
	}

	var info ChannelStateInfo
	switch state {
	case StateCurrent:
		cur := Current{EndsAt: w.Active.EndsAt.In(loc)}
		if w.Upcoming != nil {
			cur.NextStartsAt = timePtr(w.Upcoming.StartsAt.In(loc))
		}
		info.Status = cur
	case StateNext:
		info.Status = Next{StartsAt: w.Upcoming.StartsAt.In(loc)}
	case StatePrevious:
		info.Status = Previous{EndedAt: w.Recent.EndsAt.In(loc)}
	default:
		return ChannelStateInfo{Status: Idle{}}
	}

	if w.Upcoming != nil {
		info.Adjacent.Next = newSlotRef(w.Upcoming.StartsAt, loc)
	}
	if w.Recent != nil {
		info.Adjacent.Previous = newSlotRef(w.Recent.StartsAt, loc)
	}
	return info
}
