/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package timeline

import (
	"sort"
	"time"

	"github.com/friendsincode/timeline/internal/clock"
)

// DefaultMinIntervalMinutes applies when the configured interval is missing
// or not positive.
const DefaultMinIntervalMinutes = 11

// Channel is the engine's read-only view of a channel.
type Channel struct {
	ID       string
	Schedule []clock.WeeklySlot
	// Location interprets weekday and time-of-day. Nil means the engine default.
	Location *time.Location
}

// Engine evaluates channel states. The zero value is not usable; use New.
type Engine struct {
	expander clock.Expander
	now      func() time.Time
	loc      *time.Location
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocation sets the location used for channels that carry none.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithExpander replaces the weekly expander.
func WithExpander(x clock.Expander) Option {
	return func(e *Engine) {
		if x != nil {
			e.expander = x
		}
	}
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		expander: clock.Weekly{},
		now:      time.Now,
		loc:      time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine = New()

// ComputeStates classifies every channel at now. Each input id appears once
// in the result; for duplicate ids the first channel wins.
func ComputeStates(channels []Channel, minIntervalMinutes int, now time.Time) map[string]ChannelStateInfo {
	return defaultEngine.ComputeStates(channels, minIntervalMinutes, now)
}

// ComputeStates classifies every channel at now.
func (e *Engine) ComputeStates(channels []Channel, minIntervalMinutes int, now time.Time) map[string]ChannelStateInfo {
	if minIntervalMinutes <= 0 {
		minIntervalMinutes = DefaultMinIntervalMinutes
	}
	minInterval := time.Duration(minIntervalMinutes) * time.Minute

	out := make(map[string]ChannelStateInfo, len(channels))
	for _, ch := range channels {
		if _, seen := out[ch.ID]; seen {
			continue
		}
		out[ch.ID] = e.Evaluate(ch, minInterval, now)
	}
	return out
}

// ComputeStatesNow classifies every channel at the engine's current time.
func (e *Engine) ComputeStatesNow(channels []Channel, minIntervalMinutes int) map[string]ChannelStateInfo {
	return e.ComputeStates(channels, minIntervalMinutes, e.now())
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Evaluate classifies a single channel.
func (e *Engine) Evaluate(ch Channel, minInterval time.Duration, now time.Time) ChannelStateInfo {
	loc := ch.Location
	if loc == nil {
		loc = e.loc
	}
	w := e.expander.Expand(ch.Schedule, now, loc)
	return Assemble(Classify(w, now, minInterval), w, loc)
}

// Plan lists the occurrences of ch starting in [from, from+horizon).
func (e *Engine) Plan(ch Channel, from time.Time, horizon time.Duration) []clock.Occurrence {
	loc := ch.Location
	if loc == nil {
		loc = e.loc
	}
	return e.expander.Plan(ch.Schedule, from, horizon, loc)
}

// Counts tallies results per state. Every state is present in the map.
func Counts(states map[string]ChannelStateInfo) map[State]int {
	counts := map[State]int{
		StateCurrent:  0,
		StateNext:     0,
		StatePrevious: 0,
		StateDefault:  0,
	}
	for _, info := range states {
		counts[info.State()]++
	}
	return counts
}

// Transition records a channel whose state differs between two evaluations.
type Transition struct {
	ChannelID string
	From      State
	To        State
}

// Transitions lists channels whose state changed from prev to next, ordered
// by channel id. Channels absent from prev are compared against default;
// channels absent from next are ignored.
func Transitions(prev, next map[string]ChannelStateInfo) []Transition {
	var out []Transition
	for id, info := range next {
		from := StateDefault
		if p, ok := prev[id]; ok {
			from = p.State()
		}
		if to := info.State(); to != from {
			out = append(out, Transition{ChannelID: id, From: from, To: to})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}
