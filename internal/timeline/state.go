/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package timeline

import (
	"encoding/json"
	"fmt"
	"time"
)

// State enumerates the display states of a channel relative to now.
type State string

const (
	StateCurrent  State = "current"
	StateNext     State = "next"
	StatePrevious State = "previous"
	StateDefault  State = "default"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateCurrent, StateNext, StatePrevious, StateDefault:
		return true
	}
	return false
}

// Status is the primary classification of a channel. The concrete types are
// Current, Next, Previous and Idle; each carries only the instants that make
// sense for it.
type Status interface {
	State() State
	isStatus()
}

// Current is reported while a slot is running.
type Current struct {
	EndsAt time.Time
	// NextStartsAt is the following slot start, if one is scheduled.
	NextStartsAt *time.Time
}

// Next is reported when a slot starts within the minimum interval.
type Next struct {
	StartsAt time.Time
}

// Previous is reported when a slot ended within the minimum interval.
type Previous struct {
	EndedAt time.Time
}

// Idle is reported when nothing is near now.
type Idle struct{}

func (Current) State() State  { return StateCurrent }
func (Next) State() State     { return StateNext }
func (Previous) State() State { return StatePrevious }
func (Idle) State() State     { return StateDefault }

func (Current) isStatus()  {}
func (Next) isStatus()     {}
func (Previous) isStatus() {}
func (Idle) isStatus()     {}

// SlotRef points at an adjacent slot for display.
type SlotRef struct {
	At        time.Time
	Date      string // "2006-01-02" in the channel's location
	TimeOfDay string // "HH:MM" in the channel's location
}

func newSlotRef(at time.Time, loc *time.Location) *SlotRef {
	local := at.In(loc)
	return &SlotRef{At: local, Date: local.Format("2006-01-02"), TimeOfDay: local.Format("15:04")}
}

// Adjacent holds the slots around now, independent of the primary status.
type Adjacent struct {
	Next     *SlotRef
	Previous *SlotRef
}

// ChannelStateInfo is the per-channel result of an evaluation. Values are
// immutable once produced; callers replace them wholesale.
type ChannelStateInfo struct {
	Status   Status
	Adjacent Adjacent
}

// State returns the primary state.
func (i ChannelStateInfo) State() State {
	if i.Status == nil {
		return StateDefault
	}
	return i.Status.State()
}

// CurrentEndTime returns when the running slot ends.
func (i ChannelStateInfo) CurrentEndTime() (time.Time, bool) {
	if c, ok := i.Status.(Current); ok {
		return c.EndsAt, true
	}
	return time.Time{}, false
}

// NextStartTime returns the next slot start for next channels, and the
// following slot for current channels.
func (i ChannelStateInfo) NextStartTime() (time.Time, bool) {
	switch s := i.Status.(type) {
	case Next:
		return s.StartsAt, true
	case Current:
		if s.NextStartsAt != nil {
			return *s.NextStartsAt, true
		}
	}
	return time.Time{}, false
}

// PreviousEndTime returns when the last slot ended for previous channels.
func (i ChannelStateInfo) PreviousEndTime() (time.Time, bool) {
	if p, ok := i.Status.(Previous); ok {
		return p.EndedAt, true
	}
	return time.Time{}, false
}

// wireState is the flat JSON shape read by dashboard timers.
type wireState struct {
	State            State      `json:"state"`
	CurrentEndTime   *time.Time `json:"currentEndTime,omitempty"`
	NextStartTime    *time.Time `json:"nextStartTime,omitempty"`
	NextSlotDate     *time.Time `json:"nextSlotDate,omitempty"`
	NextSlotTime     string     `json:"nextSlotTime,omitempty"`
	PreviousSlotDate *time.Time `json:"previousSlotDate,omitempty"`
	PreviousSlotTime string     `json:"previousSlotTime,omitempty"`
	PreviousEndTime  *time.Time `json:"previousEndTime,omitempty"`
}

// MarshalJSON flattens the status variant into the wire format.
func (i ChannelStateInfo) MarshalJSON() ([]byte, error) {
	w := wireState{State: i.State()}
	switch s := i.Status.(type) {
	case Current:
		w.CurrentEndTime = timePtr(s.EndsAt)
		if s.NextStartsAt != nil {
			w.NextStartTime = timePtr(*s.NextStartsAt)
		}
	case Next:
		w.NextStartTime = timePtr(s.StartsAt)
	case Previous:
		w.PreviousEndTime = timePtr(s.EndedAt)
	}
	if ref := i.Adjacent.Next; ref != nil {
		w.NextSlotDate = timePtr(ref.At)
		w.NextSlotTime = ref.TimeOfDay
	}
	if ref := i.Adjacent.Previous; ref != nil {
		w.PreviousSlotDate = timePtr(ref.At)
		w.PreviousSlotTime = ref.TimeOfDay
	}
	return json.Marshal(w)
}

// UnmarshalJSON rebuilds the status variant from the wire format. Fields that
// do not belong to the declared state are ignored.
func (i *ChannelStateInfo) UnmarshalJSON(data []byte) error {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	out := ChannelStateInfo{}
	switch w.State {
	case StateCurrent:
		if w.CurrentEndTime == nil {
			return fmt.Errorf("current state without currentEndTime")
		}
		out.Status = Current{EndsAt: *w.CurrentEndTime, NextStartsAt: w.NextStartTime}
	case StateNext:
		if w.NextStartTime == nil {
			return fmt.Errorf("next state without nextStartTime")
		}
		out.Status = Next{StartsAt: *w.NextStartTime}
	case StatePrevious:
		if w.PreviousEndTime == nil {
			return fmt.Errorf("previous state without previousEndTime")
		}
		out.Status = Previous{EndedAt: *w.PreviousEndTime}
	case StateDefault, "":
		out.Status = Idle{}
	default:
		return fmt.Errorf("unknown channel state %q", w.State)
	}

	if out.State() != StateDefault {
		if w.NextSlotDate != nil {
			out.Adjacent.Next = &SlotRef{At: *w.NextSlotDate, Date: w.NextSlotDate.Format("2006-01-02"), TimeOfDay: w.NextSlotTime}
		}
		if w.PreviousSlotDate != nil {
			out.Adjacent.Previous = &SlotRef{At: *w.PreviousSlotDate, Date: w.PreviousSlotDate.Format("2006-01-02"), TimeOfDay: w.PreviousSlotTime}
		}
	}

	*i = out
	return nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
