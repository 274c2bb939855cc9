/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"sync"

	"github.com/friendsincode/timeline/internal/telemetry"
)

// EventType enumerates event categories.
type EventType string

const (
	// Timeline evaluation events
	EventTimelineUpdated EventType = "timeline.updated"
	EventStateChanged    EventType = "timeline.state_changed"

	// Cache invalidation events
	EventChannelCreated  EventType = "cache.channel_created"
	EventChannelUpdated  EventType = "cache.channel_updated"
	EventChannelDeleted  EventType = "cache.channel_deleted"
	EventSettingsUpdated EventType = "cache.settings_updated"

	// Audit events
	EventAuditWebhookCreate EventType = "audit.webhook_create"
	EventAuditWebhookDelete EventType = "audit.webhook_delete"

	EventHealth EventType = "health"
)

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Publisher is implemented by the in-process Bus and the distributed buses.
type Publisher interface {
	Subscribe(eventType EventType) Subscriber
	Publish(eventType EventType, payload Payload)
	Unsubscribe(eventType EventType, sub Subscriber)
}

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu     sync.RWMutex
	subs   map[EventType][]Subscriber
	buffer int
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return NewBufferedBus(8)
}

// NewBufferedBus creates an event bus whose subscriber channels hold size
// pending payloads before publishes start dropping.
func NewBufferedBus(size int) *Bus {
	if size < 1 {
		size = 1
	}
	return &Bus{subs: make(map[EventType][]Subscriber), buffer: size}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, b.buffer)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Slow subscribers miss the payload.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	// Sends never block, so holding the read lock keeps Unsubscribe from
	// closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
			telemetry.EventBusDropsTotal.WithLabelValues(string(eventType)).Inc()
		}
	}
}

// Unsubscribe removes the subscriber and closes it.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}
