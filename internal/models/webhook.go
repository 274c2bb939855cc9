/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// WebhookEventType defines types of webhook events.
type WebhookEventType string

const (
	WebhookEventStateChanged WebhookEventType = "state_changed"
	WebhookEventSlotStarted  WebhookEventType = "slot_started"
	WebhookEventSlotEnded    WebhookEventType = "slot_ended"
)

// WebhookTarget stores a webhook subscription. A nil ChannelID subscribes to
// every channel.
type WebhookTarget struct {
	ID        string  `gorm:"type:uuid;primaryKey" json:"id"`
	ChannelID *string `gorm:"type:uuid;index" json:"channel_id,omitempty"`
	URL       string  `gorm:"type:varchar(512);not null" json:"url"`
	Events    string  `gorm:"type:varchar(255)" json:"events"` // comma-separated: state_changed,slot_started
	Secret    string  `gorm:"type:varchar(255)" json:"-"`      // for HMAC signing
	Active    bool    `gorm:"not null;default:true" json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (WebhookTarget) TableName() string {
	return "webhook_targets"
}

// NewWebhookTarget creates a new webhook target with a random secret.
func NewWebhookTarget(channelID *string, url, events string) *WebhookTarget {
	return &WebhookTarget{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		URL:       url,
		Events:    events,
		Secret:    uuid.NewString(),
		Active:    true,
	}
}

// Accepts reports whether the target subscribes to event on channelID.
// An empty event list accepts everything.
func (t WebhookTarget) Accepts(event WebhookEventType, channelID string) bool {
	if t.ChannelID != nil && *t.ChannelID != channelID {
		return false
	}
	if strings.TrimSpace(t.Events) == "" {
		return true
	}
	for _, e := range strings.Split(t.Events, ",") {
		if WebhookEventType(strings.TrimSpace(e)) == event {
			return true
		}
	}
	return false
}

// WebhookLog records webhook delivery attempts.
type WebhookLog struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	TargetID   string    `gorm:"type:uuid;index;not null" json:"target_id"`
	Event      string    `gorm:"type:varchar(64);not null" json:"event"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	StatusCode int       `json:"status_code"`
	Response   string    `gorm:"type:text" json:"response,omitempty"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	Duration   int       `json:"duration_ms"` // Response time in milliseconds
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (WebhookLog) TableName() string {
	return "webhook_logs"
}
