/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/timeline/internal/events"
	"github.com/friendsincode/timeline/internal/scheduler"
	"github.com/friendsincode/timeline/internal/telemetry"
)

const streamPingInterval = 15 * time.Second

// handleTimelineStream pushes every published snapshot and state change to a
// websocket client. The current snapshot is sent on connect.
func (a *API) handleTimelineStream(w http.ResponseWriter, r *http.Request) {
	if a.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event_bus_unavailable")
		return
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	updates := a.bus.Subscribe(events.EventTimelineUpdated)
	defer a.bus.Unsubscribe(events.EventTimelineUpdated, updates)
	changes := a.bus.Subscribe(events.EventStateChanged)
	defer a.bus.Unsubscribe(events.EventStateChanged, changes)

	// Clients only receive; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	if snap := a.store.Load(); snap != nil {
		initial := events.Payload{
			"generated_at": snap.GeneratedAt.UTC().Format(time.RFC3339Nano),
			"snapshot":     snap,
		}
		if err := a.writeEvent(ctx, conn, events.EventTimelineUpdated, initial); err != nil {
			a.logger.Debug().Err(err).Msg("websocket initial write failed")
			return
		}
	}

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case payload, ok := <-updates:
			if !ok {
				return
			}
			// Relayed payloads arrive decoded; normalise to the typed snapshot.
			if snap, err := scheduler.SnapshotFromPayload(payload); err == nil {
				payload = events.Payload{"generated_at": payload["generated_at"], "snapshot": snap}
			}
			if err := a.writeEvent(ctx, conn, events.EventTimelineUpdated, payload); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case payload, ok := <-changes:
			if !ok {
				return
			}
			if err := a.writeEvent(ctx, conn, events.EventStateChanged, payload); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

func (a *API) writeEvent(ctx context.Context, conn *ws.Conn, eventType events.EventType, payload events.Payload) error {
	data := map[string]any{
		"type":    eventType,
		"payload": payload,
	}
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, bytes)
}
