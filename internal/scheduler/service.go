/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/timeline/internal/events"
	"github.com/friendsincode/timeline/internal/scheduler/state"
	"github.com/friendsincode/timeline/internal/telemetry"
	"github.com/friendsincode/timeline/internal/timeline"
)

// DefaultTickInterval is used when New receives a non-positive interval.
const DefaultTickInterval = 30 * time.Second

// ChannelSource loads the channels to evaluate.
type ChannelSource interface {
	EngineChannels(ctx context.Context) ([]timeline.Channel, error)
}

// IntervalSource resolves the minimum interval for an evaluation.
type IntervalSource interface {
	Resolve(ctx context.Context) (minutes int, fallback bool)
}

// Service runs the evaluation loop and publishes snapshots.
type Service struct {
	channels ChannelSource
	settings IntervalSource
	engine   *timeline.Engine
	store    *state.Store
	bus      events.Publisher
	logger   zerolog.Logger
	interval time.Duration

	// mu serializes evaluations so transitions are computed against the
	// snapshot they replace.
	mu    sync.Mutex
	hooks []func()
}

// New constructs the scheduler service. bus may be nil.
func New(channels ChannelSource, settings IntervalSource, engine *timeline.Engine, store *state.Store, bus events.Publisher, interval time.Duration, logger zerolog.Logger) *Service {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if engine == nil {
		engine = timeline.New()
	}
	return &Service{
		channels: channels,
		settings: settings,
		engine:   engine,
		store:    store,
		bus:      bus,
		interval: interval,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// OnEvaluate registers a function run after every successful evaluation.
// Must be called before Run.
func (s *Service) OnEvaluate(fn func()) {
	s.hooks = append(s.hooks, fn)
}

// Store returns the snapshot store the service publishes into.
func (s *Service) Store() *state.Store {
	return s.store
}

// Run evaluates immediately, then on every tick and whenever channels or
// settings change, until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var changed []events.Subscriber
	if s.bus != nil {
		for _, et := range invalidatingEvents {
			sub := s.bus.Subscribe(et)
			changed = append(changed, sub)
			defer s.bus.Unsubscribe(et, sub)
		}
	}
	refresh := mergeSubscribers(ctx, changed)

	s.logger.Info().Dur("interval", s.interval).Msg("scheduler loop started")
	s.evaluate(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.evaluate(ctx)
		case <-refresh:
			s.evaluate(ctx)
		}
	}
}

var invalidatingEvents = []events.EventType{
	events.EventChannelCreated,
	events.EventChannelUpdated,
	events.EventChannelDeleted,
	events.EventSettingsUpdated,
}

// mergeSubscribers folds several subscribers into one coalescing signal.
func mergeSubscribers(ctx context.Context, subs []events.Subscriber) <-chan struct{} {
	out := make(chan struct{}, 1)
	for _, sub := range subs {
		go func(sub events.Subscriber) {
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-sub:
					if !ok {
						return
					}
					select {
					case out <- struct{}{}:
					default:
					}
				}
			}
		}(sub)
	}
	return out
}

func (s *Service) evaluate(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error().Err(err).Msg("timeline evaluation failed")
	}
}

// Refresh evaluates every channel now, publishes the snapshot and emits
// transition events. The previous snapshot stays published on error.
func (s *Service) Refresh(ctx context.Context) (*state.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "scheduler", "evaluate")
	defer span.End()

	telemetry.SchedulerTicksTotal.Inc()
	started := time.Now()

	channels, err := s.channels.EngineChannels(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.SchedulerErrorsTotal.WithLabelValues("load_channels").Inc()
		return nil, fmt.Errorf("load channels: %w", err)
	}

	minutes, fallback := s.settings.Resolve(ctx)
	if fallback {
		telemetry.SchedulerErrorsTotal.WithLabelValues("settings").Inc()
	}

	now := s.engine.Now()
	snap := &state.Snapshot{
		GeneratedAt:        now,
		MinIntervalMinutes: minutes,
		SettingsFallback:   fallback,
		Channels:           s.engine.ComputeStates(channels, minutes, now),
		Order:              order(channels),
	}

	prev := s.store.Swap(snap)
	telemetry.EvaluationDuration.Observe(time.Since(started).Seconds())
	telemetry.AddSpanAttributes(span, map[string]any{
		"channels":             len(snap.Order),
		"min_interval_minutes": minutes,
		"generated_at":         now,
		"settings_fallback":    fallback,
	})
	record(snap)

	s.publish(prev, snap)

	for _, hook := range s.hooks {
		hook()
	}
	return snap, nil
}

func (s *Service) publish(prev, next *state.Snapshot) {
	if s.bus == nil {
		return
	}

	// Only the first snapshot of the process goes undiffed. A new leader
	// diffs against the snapshot it last installed while following.
	if prev != nil {
		at := next.GeneratedAt.UTC().Format(time.RFC3339)
		for _, tr := range timeline.Transitions(prev.Channels, next.Channels) {
			telemetry.StateTransitionsTotal.WithLabelValues(string(tr.From), string(tr.To)).Inc()
			s.logger.Info().
				Str("channel_id", tr.ChannelID).
				Str("from", string(tr.From)).
				Str("to", string(tr.To)).
				Msg("channel state changed")
			s.bus.Publish(events.EventStateChanged, events.Payload{
				"channel_id": tr.ChannelID,
				"from":       string(tr.From),
				"to":         string(tr.To),
				"at":         at,
				"info":       next.Channels[tr.ChannelID],
			})
		}
	}

	s.bus.Publish(events.EventTimelineUpdated, events.Payload{
		"generated_at": next.GeneratedAt.UTC().Format(time.RFC3339Nano),
		"snapshot":     next,
	})
}

// Follow installs snapshots published by the leader until the context is
// cancelled. Snapshots older than the current one are ignored.
func (s *Service) Follow(ctx context.Context) error {
	if s.bus == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	sub := s.bus.Subscribe(events.EventTimelineUpdated)
	defer s.bus.Unsubscribe(events.EventTimelineUpdated, sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-sub:
			if !ok {
				return nil
			}
			snap, err := SnapshotFromPayload(payload)
			if err != nil {
				s.logger.Warn().Err(err).Msg("ignoring malformed timeline update")
				continue
			}
			if s.store.InstallIfNewer(snap) {
				record(snap)
				s.logger.Debug().Time("generated_at", snap.GeneratedAt).Msg("installed leader snapshot")
			}
		}
	}
}

// SnapshotFromPayload extracts the snapshot of a timeline.updated event,
// whether delivered in-process or decoded from another node.
func SnapshotFromPayload(payload events.Payload) (*state.Snapshot, error) {
	switch v := payload["snapshot"].(type) {
	case *state.Snapshot:
		if v == nil {
			return nil, errors.New("empty snapshot")
		}
		return v, nil
	case nil:
		return nil, errors.New("payload has no snapshot")
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode snapshot: %w", err)
		}
		var snap state.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		if snap.GeneratedAt.IsZero() {
			return nil, errors.New("snapshot without generated_at")
		}
		return &snap, nil
	}
}

func record(snap *state.Snapshot) {
	for st, n := range timeline.Counts(snap.Channels) {
		telemetry.ChannelsByState.WithLabelValues(string(st)).Set(float64(n))
	}
	telemetry.SnapshotGeneratedTimestamp.Set(float64(snap.GeneratedAt.Unix()))
}

// order returns channel ids in input order, first occurrence only.
func order(channels []timeline.Channel) []string {
	seen := make(map[string]struct{}, len(channels))
	ids := make([]string, 0, len(channels))
	for _, ch := range channels {
		if _, dup := seen[ch.ID]; dup {
			continue
		}
		seen[ch.ID] = struct{}{}
		ids = append(ids, ch.ID)
	}
	return ids
}
