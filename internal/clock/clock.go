package clock

import "time"

// Week is the period of every channel schedule.
const Week = 7 * 24 * time.Hour

// WeeklySlot describes one recurring entry of a weekly schedule. Start is the
// offset from local midnight of Day.
type WeeklySlot struct {
	Day      time.Weekday
	Start    time.Duration
	Duration time.Duration
}

// Occurrence is a concrete calendar instance of a WeeklySlot.
type Occurrence struct {
	StartsAt time.Time
	EndsAt   time.Time
}

// Contains reports whether instant falls inside [StartsAt, EndsAt).
func (o Occurrence) Contains(instant time.Time) bool {
	return !instant.Before(o.StartsAt) && instant.Before(o.EndsAt)
}

// Duration returns the length of the occurrence.
func (o Occurrence) Duration() time.Duration {
	return o.EndsAt.Sub(o.StartsAt)
}

// Window holds the occurrences of a schedule nearest to a reference instant.
// Any field may be nil.
type Window struct {
	Active   *Occurrence
	Upcoming *Occurrence
	Recent   *Occurrence
}

// Empty reports whether no occurrence qualified.
func (w Window) Empty() bool {
	return w.Active == nil && w.Upcoming == nil && w.Recent == nil
}

// Expander projects weekly schedules onto the calendar.
type Expander interface {
	Expand(slots []WeeklySlot, now time.Time, loc *time.Location) Window
	Plan(slots []WeeklySlot, from time.Time, horizon time.Duration, loc *time.Location) []Occurrence
}
