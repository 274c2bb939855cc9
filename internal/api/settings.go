/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"

	"github.com/friendsincode/timeline/internal/models"
	"github.com/friendsincode/timeline/internal/settings"
)

func settingsResponse(row *models.SystemSettings) map[string]any {
	return map[string]any{
		"min_interval_minutes": row.MinIntervalMinutes,
		"updated_at":           row.UpdatedAt,
	}
}

func (a *API) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	row, err := a.settings.Get(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("load settings failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse(row))
}

func (a *API) handleSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MinIntervalMinutes *int `json:"min_interval_minutes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.MinIntervalMinutes == nil {
		writeError(w, http.StatusBadRequest, "min_interval_minutes_required")
		return
	}

	row, err := a.settings.Update(r.Context(), *req.MinIntervalMinutes)
	if errors.Is(err, settings.ErrInvalidMinInterval) {
		writeError(w, http.StatusBadRequest, "invalid_min_interval")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("update settings failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse(row))
}
