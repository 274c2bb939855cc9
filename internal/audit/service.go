/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/timeline/internal/events"
	"github.com/friendsincode/timeline/internal/models"
)

// DefaultQueryLimit caps Query when no limit is given.
const DefaultQueryLimit = 100

// Service handles audit logging by subscribing to events and storing audit entries.
type Service struct {
	db     *gorm.DB
	bus    events.Publisher
	leader func() bool
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		now:    time.Now,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// SetLeaderCheck restricts recording to instances for which fn returns true.
// Changes made on any node are relayed to the leader by the distributed bus.
func (s *Service) SetLeaderCheck(fn func() bool) {
	s.leader = fn
}

// Start subscribes to configuration change events and records them until
// the context is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Msg("audit service starting")

	channelCreated := s.bus.Subscribe(events.EventChannelCreated)
	channelUpdated := s.bus.Subscribe(events.EventChannelUpdated)
	channelDeleted := s.bus.Subscribe(events.EventChannelDeleted)
	settingsUpdated := s.bus.Subscribe(events.EventSettingsUpdated)
	webhookCreated := s.bus.Subscribe(events.EventAuditWebhookCreate)
	webhookDeleted := s.bus.Subscribe(events.EventAuditWebhookDelete)

	defer func() {
		s.bus.Unsubscribe(events.EventChannelCreated, channelCreated)
		s.bus.Unsubscribe(events.EventChannelUpdated, channelUpdated)
		s.bus.Unsubscribe(events.EventChannelDeleted, channelDeleted)
		s.bus.Unsubscribe(events.EventSettingsUpdated, settingsUpdated)
		s.bus.Unsubscribe(events.EventAuditWebhookCreate, webhookCreated)
		s.bus.Unsubscribe(events.EventAuditWebhookDelete, webhookDeleted)
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return

		case payload := <-channelCreated:
			s.logAuditEntry(ctx, models.AuditActionChannelCreate, "channel", payload)

		case payload := <-channelUpdated:
			s.logAuditEntry(ctx, models.AuditActionChannelUpdate, "channel", payload)

		case payload := <-channelDeleted:
			s.logAuditEntry(ctx, models.AuditActionChannelDelete, "channel", payload)

		case payload := <-settingsUpdated:
			s.logAuditEntry(ctx, models.AuditActionSettingsUpdate, "settings", payload)

		case payload := <-webhookCreated:
			s.logAuditEntry(ctx, models.AuditActionWebhookCreate, "webhook", payload)

		case payload := <-webhookDeleted:
			s.logAuditEntry(ctx, models.AuditActionWebhookDelete, "webhook", payload)
		}
	}
}

// logAuditEntry creates an audit log entry from an event payload.
func (s *Service) logAuditEntry(ctx context.Context, action models.AuditAction, resourceType string, payload events.Payload) {
	if s.leader != nil && !s.leader() {
		return
	}

	entry := &models.AuditLog{
		Action:       action,
		ResourceType: resourceType,
		Details:      make(map[string]any),
	}

	if channelID, ok := payload["channel_id"].(string); ok && channelID != "" {
		entry.ChannelID = &channelID
	}
	if resourceID, ok := payload["resource_id"].(string); ok {
		entry.ResourceID = resourceID
	} else if entry.ChannelID != nil {
		entry.ResourceID = *entry.ChannelID
	}

	for k, v := range payload {
		switch k {
		case "channel_id", "resource_id":
		default:
			entry.Details[k] = v
		}
	}

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(action)).
			Msg("failed to log audit entry")
	}
}

// Log records an audit entry directly (for non-event-bus actions).
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	now := s.now().UTC()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	s.logger.Debug().
		Str("action", string(entry.Action)).
		Str("id", entry.ID).
		Msg("audit entry logged")

	return nil
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	ChannelID *string
	Action    *models.AuditAction
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// Query retrieves audit logs with filters, most recent first, along with the
// total number of matching rows.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filters.ChannelID != nil {
		query = query.Where("channel_id = ?", *filters.ChannelID)
	}
	if filters.Action != nil {
		query = query.Where("action = ?", *filters.Action)
	}
	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", filters.StartTime.UTC())
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", filters.EndTime.UTC())
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(DefaultQueryLimit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
