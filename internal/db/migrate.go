/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/friendsincode/timeline/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.SystemSettings{},

		// Channels and their weekly schedules
		&models.Channel{},
		&models.ScheduledSlot{},

		// Webhooks
		&models.WebhookTarget{},
		&models.WebhookLog{},

		// Audit trail
		&models.AuditLog{},
	); err != nil {
		return err
	}

	if err := ensureSettingsRow(database); err != nil {
		return err
	}
	if err := clampNegativeDurations(database); err != nil {
		return err
	}

	return nil
}

// ensureSettingsRow creates the singleton settings row so readers never see
// a missing record on a fresh database.
func ensureSettingsRow(database *gorm.DB) error {
	if _, err := models.GetSystemSettings(database); err != nil {
		return fmt.Errorf("ensure system settings: %w", err)
	}
	return nil
}

// clampNegativeDurations repairs rows written before duration validation.
func clampNegativeDurations(database *gorm.DB) error {
	if err := database.Model(&models.ScheduledSlot{}).
		Where("duration_minutes < 0").
		Update("duration_minutes", 0).Error; err != nil {
		return fmt.Errorf("clamp negative slot durations: %w", err)
	}
	return nil
}
