/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited action.
type AuditAction string

// Audit action constants for configuration changes.
const (
	AuditActionChannelCreate  AuditAction = "channel.create"
	AuditActionChannelUpdate  AuditAction = "channel.update"
	AuditActionChannelDelete  AuditAction = "channel.delete"
	AuditActionSettingsUpdate AuditAction = "settings.update"
	AuditActionWebhookCreate  AuditAction = "webhook.create"
	AuditActionWebhookDelete  AuditAction = "webhook.delete"
)

// AuditLog records a change to the configuration the timeline is computed from.
type AuditLog struct {
	ID           string         `gorm:"type:uuid;primaryKey" json:"id"`
	Timestamp    time.Time      `gorm:"index:idx_audit_timestamp;not null" json:"timestamp"`
	ChannelID    *string        `gorm:"type:varchar(64);index:idx_audit_channel" json:"channel_id,omitempty"` // NULL for global changes
	Action       AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null" json:"action"`
	ResourceType string         `gorm:"type:varchar(64)" json:"resource_type"` // "channel", "settings", "webhook"
	ResourceID   string         `gorm:"type:varchar(64)" json:"resource_id,omitempty"`
	Details      map[string]any `gorm:"type:text;serializer:json" json:"details,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
