/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/friendsincode/timeline/internal/events"
)

func newRedisBus(t *testing.T, addr, nodeID string) *RedisBus {
	t.Helper()

	cfg := DefaultRedisConfig()
	cfg.Addr = addr
	cfg.DialTimeout = time.Second

	bus, err := NewRedisBus(cfg, nodeID, zerolog.Nop())
	if err != nil {
		t.Fatalf("new redis bus: %v", err)
	}
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func receive(t *testing.T, sub events.Subscriber) events.Payload {
	t.Helper()
	select {
	case payload := <-sub:
		return payload
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for payload")
		return nil
	}
}

func TestRedisBusRelaysBetweenNodes(t *testing.T) {
	mr := miniredis.RunT(t)

	leader := newRedisBus(t, mr.Addr(), "leader")
	follower := newRedisBus(t, mr.Addr(), "follower")

	sub := follower.Subscribe(events.EventTimelineUpdated)
	leader.Publish(events.EventTimelineUpdated, events.Payload{"generated_at": "2026-10-19T10:00:00Z"})

	got := receive(t, sub)
	if got["generated_at"] != "2026-10-19T10:00:00Z" {
		t.Fatalf("payload = %v", got)
	}
}

func TestRedisBusDeliversLocallyWithoutEcho(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := newRedisBus(t, mr.Addr(), "solo")

	sub := bus.Subscribe(events.EventStateChanged)
	bus.Publish(events.EventStateChanged, events.Payload{"channel_id": "a"})

	if got := receive(t, sub); got["channel_id"] != "a" {
		t.Fatalf("payload = %v", got)
	}

	// The Redis copy of our own message must not be delivered a second time.
	select {
	case dup := <-sub:
		t.Fatalf("unexpected echo %v", dup)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisBusFallsBackWhenUnavailable(t *testing.T) {
	bus := newRedisBus(t, "127.0.0.1:1", "offline")
	if !bus.useFallback {
		t.Fatal("expected fallback mode when Redis is down")
	}

	sub := bus.Subscribe(events.EventHealth)
	bus.Publish(events.EventHealth, events.Payload{"ok": true})
	if got := receive(t, sub); got["ok"] != true {
		t.Fatalf("payload = %v", got)
	}
}

func TestNATSBusFallsBackWhenUnavailable(t *testing.T) {
	cfg := DefaultNATSConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.Timeout = 200 * time.Millisecond

	bus, err := NewNATSBus(cfg, "", zerolog.Nop())
	if err != nil {
		t.Fatalf("new nats bus: %v", err)
	}
	defer bus.Close()

	if bus.Connected() {
		t.Fatal("expected no NATS connection")
	}
	if bus.NodeID() == "" {
		t.Fatal("expected generated node id")
	}

	sub := bus.Subscribe(events.EventStateChanged)
	bus.Publish(events.EventStateChanged, events.Payload{"to": "current"})
	if got := receive(t, sub); got["to"] != "current" {
		t.Fatalf("payload = %v", got)
	}
}

func TestWireMessageRoundTrip(t *testing.T) {
	data, err := marshalMessage(events.EventStateChanged, events.Payload{"from": "next", "to": "current"}, "node-a")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	msg, err := unmarshalMessage(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.NodeID != "node-a" || msg.EventType != events.EventStateChanged || msg.MessageID == "" {
		t.Fatalf("message = %+v", msg)
	}
	if _, err := unmarshalMessage([]byte("{")); err == nil {
		t.Fatal("expected error for truncated message")
	}
}
