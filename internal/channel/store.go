/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package channel persists channels and their weekly schedules.
package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/timeline/internal/cache"
	"github.com/friendsincode/timeline/internal/clock"
	"github.com/friendsincode/timeline/internal/events"
	"github.com/friendsincode/timeline/internal/models"
	"github.com/friendsincode/timeline/internal/timeline"
)

var (
	// ErrNotFound is returned when a channel does not exist.
	ErrNotFound = errors.New("channel not found")
	// ErrInvalid wraps validation failures.
	ErrInvalid = errors.New("invalid channel")
)

// SlotInput describes one weekly slot in a create or replace request.
type SlotInput struct {
	DayOfWeek       int    `json:"day_of_week" yaml:"day_of_week"`
	StartTime       string `json:"start_time" yaml:"start_time"`
	DurationMinutes int    `json:"duration_minutes" yaml:"duration_minutes"`
}

// Input describes a channel to create.
type Input struct {
	ID       string      `json:"id,omitempty" yaml:"id"`
	Name     string      `json:"name" yaml:"name"`
	Position int         `json:"position" yaml:"position"`
	Timezone string      `json:"timezone,omitempty" yaml:"timezone"`
	Active   *bool       `json:"active,omitempty" yaml:"active"`
	Slots    []SlotInput `json:"slots" yaml:"slots"`
}

// Store is the gorm-backed channel repository.
type Store struct {
	db     *gorm.DB
	cache  *cache.Cache
	bus    events.Publisher
	logger zerolog.Logger
}

// NewStore creates a channel store. cache and bus may be nil.
func NewStore(db *gorm.DB, c *cache.Cache, bus events.Publisher, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		cache:  c,
		bus:    bus,
		logger: logger.With().Str("component", "channel_store").Logger(),
	}
}

// List returns every channel ordered by position then name, slots preloaded.
func (s *Store) List(ctx context.Context) ([]models.Channel, error) {
	var channels []models.Channel
	err := s.db.WithContext(ctx).
		Preload("Slots", func(db *gorm.DB) *gorm.DB {
			return db.Order("day_of_week ASC, start_time ASC")
		}).
		Order("position ASC, name ASC").
		Find(&channels).Error
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return channels, nil
}

// Get returns one channel with its slots.
func (s *Store) Get(ctx context.Context, id string) (*models.Channel, error) {
	var ch models.Channel
	err := s.db.WithContext(ctx).
		Preload("Slots", func(db *gorm.DB) *gorm.DB {
			return db.Order("day_of_week ASC, start_time ASC")
		}).
		First(&ch, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return &ch, nil
}

// Create validates and stores a new channel with its schedule.
func (s *Store) Create(ctx context.Context, in Input) (*models.Channel, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	var ch *models.Channel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ch, err = createTx(tx, in)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}

	s.logger.Info().Str("channel_id", ch.ID).Str("name", ch.Name).Int("slots", len(ch.Slots)).Msg("channel created")
	s.changed(ctx, events.EventChannelCreated, ch.ID)
	return ch, nil
}

// createTx inserts a validated channel and its slots inside tx.
func createTx(tx *gorm.DB, in Input) (*models.Channel, error) {
	active := in.Active == nil || *in.Active
	ch := &models.Channel{
		ID:       in.ID,
		Name:     strings.TrimSpace(in.Name),
		Position: in.Position,
		Timezone: in.Timezone,
		Active:   active,
	}
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	ch.Slots = buildSlots(ch.ID, in.Slots)

	if err := tx.Omit("Slots").Create(ch).Error; err != nil {
		return nil, err
	}
	if len(ch.Slots) > 0 {
		if err := tx.Create(&ch.Slots).Error; err != nil {
			return nil, err
		}
	}
	// The column default replaces a false Active on insert and is written
	// back into ch, so branch on the requested value.
	if !active {
		if err := tx.Model(&models.Channel{}).Where("id = ?", ch.ID).Update("active", false).Error; err != nil {
			return nil, err
		}
		ch.Active = false
	}
	return ch, nil
}

// ReplaceSchedule swaps a channel's slots for the given ones.
func (s *Store) ReplaceSchedule(ctx context.Context, id string, slots []SlotInput) (*models.Channel, error) {
	if err := validateSlots(slots); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Channel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		if err := tx.Where("channel_id = ?", id).Delete(&models.ScheduledSlot{}).Error; err != nil {
			return err
		}
		rows := buildSlots(id, slots)
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Channel{}).Where("id = ?", id).Update("updated_at", time.Now()).Error
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("replace schedule: %w", err)
	}

	s.logger.Info().Str("channel_id", id).Int("slots", len(slots)).Msg("channel schedule replaced")
	s.changed(ctx, events.EventChannelUpdated, id)
	return s.Get(ctx, id)
}

// Delete removes a channel and its slots.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("channel_id = ?", id).Delete(&models.ScheduledSlot{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Channel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}

	s.logger.Info().Str("channel_id", id).Msg("channel deleted")
	s.changed(ctx, events.EventChannelDeleted, id)
	return nil
}

// EngineChannels returns the active channels in engine form, reading the
// cache first and repopulating it on a miss.
func (s *Store) EngineChannels(ctx context.Context) ([]timeline.Channel, error) {
	if cached, ok := s.cache.GetChannelList(ctx); ok {
		out := make([]timeline.Channel, 0, len(cached))
		for _, c := range cached {
			out = append(out, fromCached(c))
		}
		return out, nil
	}

	channels, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	cached := make([]cache.CachedChannel, 0, len(channels))
	out := make([]timeline.Channel, 0, len(channels))
	for _, ch := range channels {
		if !ch.Active {
			continue
		}
		cached = append(cached, toCached(ch))
		out = append(out, ToEngine(ch))
	}

	if err := s.cache.SetChannelList(ctx, cached); err != nil {
		s.logger.Debug().Err(err).Msg("failed to cache channel list")
	}
	return out, nil
}

func (s *Store) changed(ctx context.Context, event events.EventType, id string) {
	if err := s.cache.InvalidateChannelList(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate channel list cache")
	}
	if s.bus != nil {
		s.bus.Publish(event, events.Payload{"channel_id": id})
	}
}

func buildSlots(channelID string, in []SlotInput) []models.ScheduledSlot {
	slots := make([]models.ScheduledSlot, 0, len(in))
	for _, sl := range in {
		start, _ := clock.ParseTimeOfDay(sl.StartTime)
		slots = append(slots, models.ScheduledSlot{
			ID:              uuid.NewString(),
			ChannelID:       channelID,
			DayOfWeek:       sl.DayOfWeek,
			StartTime:       clock.FormatTimeOfDay(start),
			DurationMinutes: sl.DurationMinutes,
		})
	}
	return slots
}

func validate(in Input) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalid)
	}
	if in.ID != "" {
		if _, err := uuid.Parse(in.ID); err != nil {
			return fmt.Errorf("%w: id must be a UUID", ErrInvalid)
		}
	}
	if in.Timezone != "" {
		if _, err := time.LoadLocation(in.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalid, in.Timezone)
		}
	}
	return validateSlots(in.Slots)
}

func validateSlots(slots []SlotInput) error {
	for i, sl := range slots {
		if sl.DayOfWeek < 0 || sl.DayOfWeek > 6 {
			return fmt.Errorf("%w: slot %d: day_of_week must be 0-6", ErrInvalid, i)
		}
		if _, err := clock.ParseTimeOfDay(sl.StartTime); err != nil {
			return fmt.Errorf("%w: slot %d: start_time must be HH:MM", ErrInvalid, i)
		}
		if sl.DurationMinutes < 0 {
			return fmt.Errorf("%w: slot %d: duration_minutes must not be negative", ErrInvalid, i)
		}
	}
	return nil
}
