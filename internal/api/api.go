/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/friendsincode/timeline/internal/audit"
	"github.com/friendsincode/timeline/internal/channel"
	"github.com/friendsincode/timeline/internal/events"
	"github.com/friendsincode/timeline/internal/scheduler/state"
	"github.com/friendsincode/timeline/internal/settings"
	"github.com/friendsincode/timeline/internal/timeline"
)

// DefaultComputeRateLimit is the per-client request budget per minute for
// the compute endpoint.
const DefaultComputeRateLimit = 60

const maxBodyBytes = 1 << 20

// API exposes HTTP handlers.
type API struct {
	channels     *channel.Store
	settings     *settings.Service
	store        *state.Store
	engine       *timeline.Engine
	bus          events.Publisher
	loc          *time.Location
	computeLimit int
	webhookAPI   *WebhookAPI
	auditSvc     *audit.Service
	logger       zerolog.Logger
}

// New creates the API. loc is the default location for channels without a
// timezone and for display formatting.
func New(channels *channel.Store, settingsSvc *settings.Service, store *state.Store, engine *timeline.Engine, bus events.Publisher, loc *time.Location, logger zerolog.Logger) *API {
	if engine == nil {
		engine = timeline.New()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &API{
		channels:     channels,
		settings:     settingsSvc,
		store:        store,
		engine:       engine,
		bus:          bus,
		loc:          loc,
		computeLimit: DefaultComputeRateLimit,
		logger:       logger.With().Str("component", "api").Logger(),
	}
}

// SetComputeRateLimit sets requests per minute per client for
// POST /timeline/compute. Non-positive disables limiting.
func (a *API) SetComputeRateLimit(perMinute int) {
	a.computeLimit = perMinute
}

// SetWebhookAPI mounts the webhook management routes.
func (a *API) SetWebhookAPI(w *WebhookAPI) {
	a.webhookAPI = w
}

// SetAuditService mounts GET /audit backed by svc.
func (a *API) SetAuditService(svc *audit.Service) {
	a.auditSvc = svc
}

// Routes registers all API routes.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Route("/timeline", func(r chi.Router) {
			r.Get("/", a.handleTimeline)
			r.Get("/ws", a.handleTimelineStream)
			r.Get("/channels/{channelID}", a.handleTimelineChannel)

			if a.computeLimit > 0 {
				r.With(httprate.LimitByIP(a.computeLimit, time.Minute)).Post("/compute", a.handleCompute)
			} else {
				r.Post("/compute", a.handleCompute)
			}
		})

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", a.handleChannelsList)
			r.Post("/", a.handleChannelsCreate)
			r.Route("/{channelID}", func(r chi.Router) {
				r.Get("/", a.handleChannelsGet)
				r.Delete("/", a.handleChannelsDelete)
				r.Put("/schedule", a.handleChannelSchedule)
				r.Get("/schedule.ics", a.handleChannelICal)
				r.Get("/occurrences", a.handleChannelOccurrences)
			})
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", a.handleSettingsGet)
			r.Patch("/", a.handleSettingsUpdate)
		})

		if a.webhookAPI != nil {
			a.webhookAPI.RegisterRoutes(r)
		}
		if a.auditSvc != nil {
			r.Get("/audit", a.handleAuditList)
		}
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if snap := a.store.Load(); snap != nil {
		resp["generated_at"] = snap.GeneratedAt.UTC()
		resp["channels"] = len(snap.Order)
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected trailing data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
