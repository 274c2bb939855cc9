/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/timeline/internal/events"
	"github.com/friendsincode/timeline/internal/models"
	"github.com/friendsincode/timeline/internal/telemetry"
	"github.com/friendsincode/timeline/internal/timeline"
)

var (
	// ErrNotFound is returned when a webhook target does not exist.
	ErrNotFound = errors.New("webhook not found")
	// ErrInvalid wraps validation failures.
	ErrInvalid = errors.New("invalid webhook")
)

// Payload is the body POSTed to webhook endpoints.
type Payload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	ChannelID string    `json:"channel_id"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	At        string    `json:"at,omitempty"`
	State     any       `json:"state,omitempty"`
}

// Service handles webhook targets and delivery.
type Service struct {
	db     *gorm.DB
	bus    events.Publisher
	logger zerolog.Logger
	client *http.Client

	// leader reports whether this instance may dispatch. Nil means always.
	leader func() bool
	wg     sync.WaitGroup
}

// NewService creates a new webhook service.
func NewService(db *gorm.DB, bus events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "webhooks").Logger(),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetLeaderCheck restricts dispatch to instances for which fn returns true.
// Transitions relayed from another node reach every instance's bus.
func (s *Service) SetLeaderCheck(fn func() bool) {
	s.leader = fn
}

// Start listens for state changes until the context is cancelled, then
// waits for in-flight deliveries.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Msg("webhook service starting")

	changed := s.bus.Subscribe(events.EventStateChanged)
	defer func() {
		s.bus.Unsubscribe(events.EventStateChanged, changed)
		s.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("webhook service stopping")
			return
		case payload, ok := <-changed:
			if !ok {
				return
			}
			s.handleStateChanged(ctx, payload)
		}
	}
}

func (s *Service) handleStateChanged(ctx context.Context, payload events.Payload) {
	if s.leader != nil && !s.leader() {
		return
	}

	channelID, _ := payload["channel_id"].(string)
	if channelID == "" {
		return
	}
	from, _ := payload["from"].(string)
	to, _ := payload["to"].(string)
	at, _ := payload["at"].(string)

	base := Payload{
		Timestamp: time.Now().UTC(),
		ChannelID: channelID,
		From:      from,
		To:        to,
		At:        at,
		State:     payload["info"],
	}

	for _, event := range eventsFor(timeline.State(from), timeline.State(to)) {
		p := base
		p.Event = string(event)
		s.fireWebhooks(ctx, event, p)
	}
}

// eventsFor maps a transition to the webhook events it triggers.
func eventsFor(from, to timeline.State) []models.WebhookEventType {
	out := []models.WebhookEventType{models.WebhookEventStateChanged}
	if from == timeline.StateCurrent {
		out = append(out, models.WebhookEventSlotEnded)
	}
	if to == timeline.StateCurrent {
		out = append(out, models.WebhookEventSlotStarted)
	}
	return out
}

func (s *Service) fireWebhooks(ctx context.Context, event models.WebhookEventType, payload Payload) {
	var targets []models.WebhookTarget
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Where("channel_id IS NULL OR channel_id = ?", payload.ChannelID).
		Find(&targets).Error
	if err != nil {
		s.logger.Error().Err(err).Str("channel_id", payload.ChannelID).Msg("failed to fetch webhooks")
		return
	}

	for _, target := range targets {
		if !target.Accepts(event, payload.ChannelID) {
			continue
		}
		s.wg.Add(1)
		go func(target models.WebhookTarget) {
			defer s.wg.Done()
			if err := s.send(ctx, target, payload); err != nil {
				s.logger.Warn().Err(err).Str("webhook", target.ID).Str("event", payload.Event).Msg("webhook delivery failed")
			}
		}(target)
	}
}

func (s *Service) send(ctx context.Context, target models.WebhookTarget, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		s.logDelivery(target, payload.Event, body, 0, "", err.Error(), 0)
		return fmt.Errorf("create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Timeline-Webhook/1.0")
	req.Header.Set("X-Timeline-Event", payload.Event)
	req.Header.Set("X-Timeline-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	if target.Secret != "" {
		req.Header.Set("X-Timeline-Signature", Sign(body, target.Secret))
	}

	started := time.Now()
	resp, err := s.client.Do(req)
	elapsed := time.Since(started)
	if err != nil {
		telemetry.WebhookDeliveriesTotal.WithLabelValues(payload.Event, "failure").Inc()
		s.logDelivery(target, payload.Event, body, 0, "", err.Error(), elapsed)
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		telemetry.WebhookDeliveriesTotal.WithLabelValues(payload.Event, "failure").Inc()
		s.logDelivery(target, payload.Event, body, resp.StatusCode, string(snippet), "", elapsed)
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	telemetry.WebhookDeliveriesTotal.WithLabelValues(payload.Event, "success").Inc()
	s.logDelivery(target, payload.Event, body, resp.StatusCode, string(snippet), "", elapsed)
	s.logger.Debug().Str("webhook", target.ID).Str("event", payload.Event).Int("status", resp.StatusCode).Msg("webhook delivered")
	return nil
}

// Sign returns the X-Timeline-Signature value for body.
func Sign(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

func (s *Service) logDelivery(target models.WebhookTarget, event string, body []byte, status int, response, errMsg string, elapsed time.Duration) {
	entry := &models.WebhookLog{
		ID:         uuid.NewString(),
		TargetID:   target.ID,
		Event:      event,
		Payload:    string(body),
		StatusCode: status,
		Response:   response,
		Error:      errMsg,
		Duration:   int(elapsed.Milliseconds()),
	}
	if err := s.db.Create(entry).Error; err != nil {
		s.logger.Error().Err(err).Msg("failed to log webhook delivery")
	}
}

// List returns every webhook target.
func (s *Service) List(ctx context.Context) ([]models.WebhookTarget, error) {
	var targets []models.WebhookTarget
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&targets).Error; err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	return targets, nil
}

// Get returns one webhook target.
func (s *Service) Get(ctx context.Context, id string) (*models.WebhookTarget, error) {
	var target models.WebhookTarget
	err := s.db.WithContext(ctx).First(&target, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	return &target, nil
}

// Create validates and stores a webhook target. The generated secret is
// returned once in the result.
func (s *Service) Create(ctx context.Context, channelID *string, rawURL, eventList string) (*models.WebhookTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: url must be absolute http(s)", ErrInvalid)
	}
	for _, e := range strings.Split(eventList, ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		switch models.WebhookEventType(e) {
		case models.WebhookEventStateChanged, models.WebhookEventSlotStarted, models.WebhookEventSlotEnded:
		default:
			return nil, fmt.Errorf("%w: unknown event %q", ErrInvalid, e)
		}
	}
	if channelID != nil && *channelID == "" {
		channelID = nil
	}

	target := models.NewWebhookTarget(channelID, rawURL, eventList)
	if err := s.db.WithContext(ctx).Create(target).Error; err != nil {
		return nil, fmt.Errorf("create webhook: %w", err)
	}
	s.logger.Info().Str("webhook", target.ID).Str("url", target.URL).Msg("webhook created")
	if s.bus != nil {
		s.bus.Publish(events.EventAuditWebhookCreate, events.Payload{
			"resource_id": target.ID,
			"channel_id":  derefString(target.ChannelID),
			"url":         target.URL,
			"events":      target.Events,
		})
	}
	return target, nil
}

// Delete removes a webhook target and its delivery log.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.WebhookTarget{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("delete webhook: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("target_id = ?", id).Delete(&models.WebhookLog{}).Error
	})
	if err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.Publish(events.EventAuditWebhookDelete, events.Payload{"resource_id": id})
	}
	return nil
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// TestWebhook sends a sample state change to a target.
func (s *Service) TestWebhook(ctx context.Context, target *models.WebhookTarget) error {
	channelID := "test-channel"
	if target.ChannelID != nil {
		channelID = *target.ChannelID
	}
	now := time.Now().UTC()
	return s.send(ctx, *target, Payload{
		Event:     "test",
		Timestamp: now,
		ChannelID: channelID,
		From:      string(timeline.StateNext),
		To:        string(timeline.StateCurrent),
		At:        now.Format(time.RFC3339),
	})
}
