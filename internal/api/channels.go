/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/timeline/internal/channel"
	"github.com/friendsincode/timeline/internal/schedule"
)

const (
	defaultOccurrenceDays = 7
	maxOccurrenceDays     = 28
)

func (a *API) handleChannelsList(w http.ResponseWriter, r *http.Request) {
	channels, err := a.channels.List(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("list channels failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
}

func (a *API) handleChannelsCreate(w http.ResponseWriter, r *http.Request) {
	var in channel.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	ch, err := a.channels.Create(r.Context(), in)
	if err != nil {
		a.writeChannelError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (a *API) handleChannelsGet(w http.ResponseWriter, r *http.Request) {
	ch, err := a.channels.Get(r.Context(), chi.URLParam(r, "channelID"))
	if err != nil {
		a.writeChannelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (a *API) handleChannelsDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.channels.Delete(r.Context(), chi.URLParam(r, "channelID")); err != nil {
		a.writeChannelError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleChannelSchedule replaces every slot of a channel.
func (a *API) handleChannelSchedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Slots []channel.SlotInput `json:"slots"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	ch, err := a.channels.ReplaceSchedule(r.Context(), chi.URLParam(r, "channelID"), req.Slots)
	if err != nil {
		a.writeChannelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// handleChannelICal exports the weekly schedule as an iCalendar feed.
func (a *API) handleChannelICal(w http.ResponseWriter, r *http.Request) {
	ch, err := a.channels.Get(r.Context(), chi.URLParam(r, "channelID"))
	if err != nil {
		a.writeChannelError(w, err)
		return
	}

	result := schedule.ExportICal(*ch, channel.Location(*ch, a.loc), a.engine.Now())
	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

type occurrenceResponse struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Date     string    `json:"date"`
	Time     string    `json:"time"`
}

// handleChannelOccurrences lists upcoming slot occurrences for the next
// ?days=N days.
func (a *API) handleChannelOccurrences(w http.ResponseWriter, r *http.Request) {
	days := defaultOccurrenceDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxOccurrenceDays {
			writeError(w, http.StatusBadRequest, "invalid_days")
			return
		}
		days = n
	}

	ch, err := a.channels.Get(r.Context(), chi.URLParam(r, "channelID"))
	if err != nil {
		a.writeChannelError(w, err)
		return
	}

	loc := channel.Location(*ch, a.loc)
	from := a.engine.Now()
	target := channel.ToEngine(*ch)
	target.Location = loc
	planned := a.engine.Plan(target, from, time.Duration(days)*24*time.Hour)

	out := make([]occurrenceResponse, 0, len(planned))
	for _, occ := range planned {
		local := occ.StartsAt.In(loc)
		out = append(out, occurrenceResponse{
			StartsAt: occ.StartsAt,
			EndsAt:   occ.EndsAt,
			Date:     local.Format("2006-01-02"),
			Time:     local.Format("15:04"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channel_id":  ch.ID,
		"timezone":    loc.String(),
		"from":        from.UTC(),
		"days":        days,
		"occurrences": out,
	})
}

func (a *API) writeChannelError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, channel.ErrNotFound):
		writeError(w, http.StatusNotFound, "channel_not_found")
	case errors.Is(err, channel.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		a.logger.Error().Err(err).Msg("channel operation failed")
		writeError(w, http.StatusInternalServerError, "db_error")
	}
}
