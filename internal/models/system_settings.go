/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"gorm.io/gorm"
)

// SystemSettings stores runtime-configurable settings.
// Uses singleton pattern with a fixed ID=1 row.
type SystemSettings struct {
	ID                 int `gorm:"primaryKey"`
	MinIntervalMinutes int `gorm:"not null;default:11"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TableName returns the table name for GORM.
func (SystemSettings) TableName() string {
	return "system_settings"
}

// Bounds for MinIntervalMinutes.
const (
	MinIntervalMinutesFloor   = 1
	MinIntervalMinutesCeiling = 1440
)

// IsValidMinInterval checks if minutes is an allowed minimum interval.
func IsValidMinInterval(minutes int) bool {
	return minutes >= MinIntervalMinutesFloor && minutes <= MinIntervalMinutesCeiling
}

// GetSystemSettings retrieves the singleton settings row, creating it if it doesn't exist.
func GetSystemSettings(db *gorm.DB) (*SystemSettings, error) {
	var settings SystemSettings
	result := db.Attrs(SystemSettings{MinIntervalMinutes: 11}).FirstOrCreate(&settings, SystemSettings{ID: 1})
	if result.Error != nil {
		return nil, result.Error
	}
	return &settings, nil
}
