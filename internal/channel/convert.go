package channel

import (
	"time"

	"github.com/friendsincode/timeline/internal/cache"
	"github.com/friendsincode/timeline/internal/clock"
	"github.com/friendsincode/timeline/internal/models"
	"github.com/friendsincode/timeline/internal/timeline"
)

// ToEngine converts a stored channel into the engine's view. Slots whose start
// time does not parse are dropped; an unknown timezone falls back to the
// engine default.
func ToEngine(ch models.Channel) timeline.Channel {
	return timeline.Channel{
		ID:       ch.ID,
		Location: location(ch.Timezone),
		Schedule: WeeklySlots(ch.Slots),
	}
}

// WeeklySlots converts stored slots for occurrence planning.
func WeeklySlots(slots []models.ScheduledSlot) []clock.WeeklySlot {
	return weeklySchedule(slots, func(sl models.ScheduledSlot) (int, string, int) {
		return sl.DayOfWeek, sl.StartTime, sl.DurationMinutes
	})
}

// weeklySchedule converts any slot representation, dropping entries whose
// start time does not parse.
func weeklySchedule[S any](slots []S, fields func(S) (day int, start string, minutes int)) []clock.WeeklySlot {
	out := make([]clock.WeeklySlot, 0, len(slots))
	for _, sl := range slots {
		if ws, ok := weeklySlot(fields(sl)); ok {
			out = append(out, ws)
		}
	}
	return out
}

// Location returns the channel's timezone, or fallback when unset or unknown.
func Location(ch models.Channel, fallback *time.Location) *time.Location {
	if loc := location(ch.Timezone); loc != nil {
		return loc
	}
	return fallback
}

func weeklySlot(day int, start string, minutes int) (clock.WeeklySlot, bool) {
	offset, err := clock.ParseTimeOfDay(start)
	if err != nil {
		return clock.WeeklySlot{}, false
	}
	return clock.WeeklySlot{
		Day:      time.Weekday(day),
		Start:    offset,
		Duration: time.Duration(minutes) * time.Minute,
	}, true
}

func location(name string) *time.Location {
	if name == "" {
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil
	}
	return loc
}

func toCached(ch models.Channel) cache.CachedChannel {
	c := cache.CachedChannel{
		ID:       ch.ID,
		Name:     ch.Name,
		Position: ch.Position,
		Timezone: ch.Timezone,
		Slots:    make([]cache.CachedSlot, 0, len(ch.Slots)),
	}
	for _, sl := range ch.Slots {
		c.Slots = append(c.Slots, cache.CachedSlot{
			DayOfWeek:       sl.DayOfWeek,
			StartTime:       sl.StartTime,
			DurationMinutes: sl.DurationMinutes,
		})
	}
	return c
}

func fromCached(c cache.CachedChannel) timeline.Channel {
	return timeline.Channel{
		ID:       c.ID,
		Location: location(c.Timezone),
		Schedule: weeklySchedule(c.Slots, func(sl cache.CachedSlot) (int, string, int) {
			return sl.DayOfWeek, sl.StartTime, sl.DurationMinutes
		}),
	}
}
