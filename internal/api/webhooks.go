/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/timeline/internal/webhooks"
)

// WebhookAPI handles webhook management endpoints.
type WebhookAPI struct {
	*API
	webhookSvc *webhooks.Service
}

// NewWebhookAPI creates a new webhook API handler.
func NewWebhookAPI(api *API, webhookSvc *webhooks.Service) *WebhookAPI {
	return &WebhookAPI{
		API:        api,
		webhookSvc: webhookSvc,
	}
}

// RegisterRoutes registers webhook API routes.
func (w *WebhookAPI) RegisterRoutes(r chi.Router) {
	r.Route("/webhooks", func(r chi.Router) {
		r.Get("/", w.handleList)
		r.Post("/", w.handleCreate)
		r.Delete("/{id}", w.handleDelete)
		r.Post("/{id}/test", w.handleTest)
	})
}

func (w *WebhookAPI) handleList(rw http.ResponseWriter, r *http.Request) {
	list, err := w.webhookSvc.List(r.Context())
	if err != nil {
		w.logger.Error().Err(err).Msg("list webhooks failed")
		writeError(rw, http.StatusInternalServerError, "failed to fetch webhooks")
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"webhooks": list,
	})
}

// handleCreate stores a webhook. The signing secret is only returned here.
func (w *WebhookAPI) handleCreate(rw http.ResponseWriter, r *http.Request) {
	var req struct {
		ChannelID *string `json:"channel_id"`
		URL       string  `json:"url"`
		Events    string  `json:"events"` // comma-separated: slot_started,slot_ended
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(rw, http.StatusBadRequest, "invalid_json")
		return
	}

	target, err := w.webhookSvc.Create(r.Context(), req.ChannelID, req.URL, req.Events)
	if errors.Is(err, webhooks.ErrInvalid) {
		writeError(rw, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		w.logger.Error().Err(err).Msg("create webhook failed")
		writeError(rw, http.StatusInternalServerError, "failed to create webhook")
		return
	}

	writeJSON(rw, http.StatusCreated, map[string]any{
		"webhook": target,
		"secret":  target.Secret,
	})
}

func (w *WebhookAPI) handleDelete(rw http.ResponseWriter, r *http.Request) {
	err := w.webhookSvc.Delete(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, webhooks.ErrNotFound) {
		writeError(rw, http.StatusNotFound, "webhook not found")
		return
	}
	if err != nil {
		w.logger.Error().Err(err).Msg("delete webhook failed")
		writeError(rw, http.StatusInternalServerError, "failed to delete webhook")
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// handleTest sends a sample event to the webhook.
func (w *WebhookAPI) handleTest(rw http.ResponseWriter, r *http.Request) {
	target, err := w.webhookSvc.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, webhooks.ErrNotFound) {
		writeError(rw, http.StatusNotFound, "webhook not found")
		return
	}
	if err != nil {
		writeError(rw, http.StatusInternalServerError, "failed to fetch webhook")
		return
	}

	if err := w.webhookSvc.TestWebhook(r.Context(), target); err != nil {
		writeJSON(rw, http.StatusBadGateway, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"success": true})
}
