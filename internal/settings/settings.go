/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package settings serves the runtime-configurable minimum interval.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/timeline/internal/cache"
	"github.com/friendsincode/timeline/internal/events"
	"github.com/friendsincode/timeline/internal/models"
	"github.com/friendsincode/timeline/internal/telemetry"
	"github.com/friendsincode/timeline/internal/timeline"
)

// ErrInvalidMinInterval is returned for values outside 1..1440 minutes.
var ErrInvalidMinInterval = errors.New("min interval out of range")

// Service reads and updates system settings.
type Service struct {
	db       *gorm.DB
	cache    *cache.Cache
	bus      events.Publisher
	logger   zerolog.Logger
	fallback int
}

// NewService creates a settings service. fallback is returned by Resolve
// when settings cannot be read; values <= 0 mean the engine default.
func NewService(db *gorm.DB, c *cache.Cache, bus events.Publisher, fallback int, logger zerolog.Logger) *Service {
	if fallback <= 0 {
		fallback = timeline.DefaultMinIntervalMinutes
	}
	return &Service{
		db:       db,
		cache:    c,
		bus:      bus,
		fallback: fallback,
		logger:   logger.With().Str("component", "settings").Logger(),
	}
}

// MinInterval returns the configured minimum interval in minutes.
func (s *Service) MinInterval(ctx context.Context) (int, error) {
	if minutes, ok := s.cache.GetMinInterval(ctx); ok {
		return minutes, nil
	}

	row, err := models.GetSystemSettings(s.db.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("load settings: %w", err)
	}

	if err := s.cache.SetMinInterval(ctx, row.MinIntervalMinutes); err != nil {
		s.logger.Debug().Err(err).Msg("failed to cache min interval")
	}
	return row.MinIntervalMinutes, nil
}

// Resolve returns the minimum interval for an evaluation. When settings
// cannot be read it logs, counts the fallback and returns the default with
// fallback set.
func (s *Service) Resolve(ctx context.Context) (minutes int, fallback bool) {
	minutes, err := s.MinInterval(ctx)
	if err == nil && minutes > 0 {
		return minutes, false
	}

	telemetry.SettingsFallbackTotal.Inc()
	if err != nil {
		s.logger.Warn().Err(err).Int("fallback_minutes", s.fallback).Msg("settings unavailable, using default min interval")
	} else {
		s.logger.Warn().Int("stored", minutes).Int("fallback_minutes", s.fallback).Msg("stored min interval not positive, using default")
	}
	return s.fallback, true
}

// Update validates and persists a new minimum interval.
func (s *Service) Update(ctx context.Context, minutes int) (*models.SystemSettings, error) {
	if !models.IsValidMinInterval(minutes) {
		return nil, fmt.Errorf("%w: %d (allowed %d-%d)", ErrInvalidMinInterval, minutes,
			models.MinIntervalMinutesFloor, models.MinIntervalMinutesCeiling)
	}

	var row *models.SystemSettings
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := models.GetSystemSettings(tx)
		if err != nil {
			return err
		}
		if err := tx.Model(current).Update("min_interval_minutes", minutes).Error; err != nil {
			return err
		}
		current.MinIntervalMinutes = minutes
		row = current
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}

	if err := s.cache.InvalidateMinInterval(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate min interval cache")
	}
	if s.bus != nil {
		s.bus.Publish(events.EventSettingsUpdated, events.Payload{"min_interval_minutes": minutes})
	}

	s.logger.Info().Int("min_interval_minutes", minutes).Msg("settings updated")
	return row, nil
}

// Get returns the settings row.
func (s *Service) Get(ctx context.Context) (*models.SystemSettings, error) {
	row, err := models.GetSystemSettings(s.db.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return row, nil
}
