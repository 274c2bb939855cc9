/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/timeline/internal/channel"
	"github.com/friendsincode/timeline/internal/timeline"
)

// maxComputeChannels bounds a single compute request.
const maxComputeChannels = 500

type channelStateResponse struct {
	ChannelID string                    `json:"channel_id"`
	Info      timeline.ChannelStateInfo `json:"info"`
	Display   *timeline.Display         `json:"display,omitempty"`
}

type timelineResponse struct {
	GeneratedAt        time.Time              `json:"generated_at"`
	MinIntervalMinutes int                    `json:"min_interval_minutes"`
	SettingsFallback   bool                   `json:"settings_fallback,omitempty"`
	Channels           []channelStateResponse `json:"channels"`
}

func wantDisplay(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("display"))
	return v
}

func (a *API) stateResponse(id string, info timeline.ChannelStateInfo, now time.Time, display bool) channelStateResponse {
	resp := channelStateResponse{ChannelID: id, Info: info}
	if display {
		d := timeline.Describe(info, now, a.loc)
		resp.Display = &d
	}
	return resp
}

// handleTimeline returns the latest published snapshot in channel order.
func (a *API) handleTimeline(w http.ResponseWriter, r *http.Request) {
	snap := a.store.Load()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "timeline_not_ready")
		return
	}

	display := wantDisplay(r)
	now := a.engine.Now()
	resp := timelineResponse{
		GeneratedAt:        snap.GeneratedAt.UTC(),
		MinIntervalMinutes: snap.MinIntervalMinutes,
		SettingsFallback:   snap.SettingsFallback,
		Channels:           make([]channelStateResponse, 0, len(snap.Order)),
	}
	for _, id := range snap.Order {
		resp.Channels = append(resp.Channels, a.stateResponse(id, snap.Channels[id], now, display))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleTimelineChannel(w http.ResponseWriter, r *http.Request) {
	snap := a.store.Load()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "timeline_not_ready")
		return
	}

	id := chi.URLParam(r, "channelID")
	info, ok := snap.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "channel_not_found")
		return
	}
	writeJSON(w, http.StatusOK, a.stateResponse(id, info, a.engine.Now(), wantDisplay(r)))
}

type computeChannel struct {
	ID       string              `json:"id"`
	Timezone string              `json:"timezone,omitempty"`
	Slots    []channel.SlotInput `json:"slots"`
}

type computeRequest struct {
	Now                string           `json:"now,omitempty"`
	MinIntervalMinutes int              `json:"min_interval_minutes,omitempty"`
	Display            bool             `json:"display,omitempty"`
	Channels           []computeChannel `json:"channels"`
}

// handleCompute evaluates caller-supplied channels without touching stored
// state. A missing or non-positive interval uses the engine default.
func (a *API) handleCompute(w http.ResponseWriter, r *http.Request) {
	var req computeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if len(req.Channels) > maxComputeChannels {
		writeError(w, http.StatusRequestEntityTooLarge, "too_many_channels")
		return
	}

	now := a.engine.Now()
	if req.Now != "" {
		parsed, err := time.Parse(time.RFC3339, req.Now)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_now")
			return
		}
		now = parsed
	}

	inputs := make([]channel.Input, 0, len(req.Channels))
	for _, c := range req.Channels {
		if strings.TrimSpace(c.ID) == "" {
			writeError(w, http.StatusBadRequest, "channel_id_required")
			return
		}
		if c.Timezone != "" {
			if _, err := time.LoadLocation(c.Timezone); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_timezone")
				return
			}
		}
		inputs = append(inputs, channel.Input{ID: c.ID, Name: c.ID, Timezone: c.Timezone, Slots: c.Slots})
	}

	channels := channel.EngineChannelsFromInputs(inputs)
	states := a.engine.ComputeStates(channels, req.MinIntervalMinutes, now)

	minutes := req.MinIntervalMinutes
	if minutes <= 0 {
		minutes = timeline.DefaultMinIntervalMinutes
	}
	resp := timelineResponse{
		GeneratedAt:        now.UTC(),
		MinIntervalMinutes: minutes,
		Channels:           make([]channelStateResponse, 0, len(states)),
	}
	seen := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		if _, dup := seen[ch.ID]; dup {
			continue
		}
		seen[ch.ID] = struct{}{}
		resp.Channels = append(resp.Channels, a.stateResponse(ch.ID, states[ch.ID], now, req.Display))
	}
	writeJSON(w, http.StatusOK, resp)
}
