/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/timeline/internal/clock"
	"github.com/friendsincode/timeline/internal/models"
)

// ExportICalResult contains the iCal export data.
type ExportICalResult struct {
	Data        []byte
	Filename    string
	ContentType string
}

var icalDays = [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// ExportICal renders a channel's weekly slots as recurring events. Each
// event starts at the slot's first occurrence at or after now.
func ExportICal(ch models.Channel, loc *time.Location, now time.Time) *ExportICalResult {
	if loc == nil {
		loc = time.UTC
	}

	var buf bytes.Buffer
	buf.WriteString("BEGIN:VCALENDAR\r\n")
	buf.WriteString("VERSION:2.0\r\n")
	buf.WriteString("PRODID:-//Timeline//Channel Schedule//EN\r\n")
	buf.WriteString(fmt.Sprintf("X-WR-CALNAME:%s\r\n", escapeICalText(ch.Name)))
	if loc != time.UTC {
		buf.WriteString(fmt.Sprintf("X-WR-TIMEZONE:%s\r\n", loc.String()))
	}
	buf.WriteString("CALSCALE:GREGORIAN\r\n")
	buf.WriteString("METHOD:PUBLISH\r\n")

	stamp := formatICalTime(now)
	for _, sl := range ch.Slots {
		start, err := clock.ParseTimeOfDay(sl.StartTime)
		if err != nil {
			continue
		}
		weekly := clock.WeeklySlot{
			Day:      time.Weekday(sl.DayOfWeek),
			Start:    start,
			Duration: time.Duration(sl.DurationMinutes) * time.Minute,
		}

		occ := clock.Plan([]clock.WeeklySlot{weekly}, now, clock.Week, loc)
		if len(occ) == 0 {
			continue
		}
		first := occ[0]

		buf.WriteString("BEGIN:VEVENT\r\n")
		buf.WriteString(fmt.Sprintf("UID:%s@timeline\r\n", sl.ID))
		buf.WriteString(fmt.Sprintf("DTSTAMP:%s\r\n", stamp))
		buf.WriteString(fmt.Sprintf("DTSTART%s\r\n", formatICalLocal(first.StartsAt, loc)))
		buf.WriteString(fmt.Sprintf("DTEND%s\r\n", formatICalLocal(first.EndsAt, loc)))
		buf.WriteString(fmt.Sprintf("RRULE:FREQ=WEEKLY;BYDAY=%s\r\n", icalDays[sl.DayOfWeek]))
		buf.WriteString(fmt.Sprintf("SUMMARY:%s\r\n", escapeICalText(ch.Name)))
		buf.WriteString("END:VEVENT\r\n")
	}

	buf.WriteString("END:VCALENDAR\r\n")

	name := slugify(ch.Name)
	if name == "" {
		name = ch.ID
	}
	return &ExportICalResult{
		Data:        buf.Bytes(),
		Filename:    name + "-schedule.ics",
		ContentType: "text/calendar; charset=utf-8",
	}
}

func formatICalTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// formatICalLocal returns the property suffix for a date-time, including
// the TZID parameter for non-UTC locations.
func formatICalLocal(t time.Time, loc *time.Location) string {
	if loc == time.UTC {
		return ":" + formatICalTime(t)
	}
	return fmt.Sprintf(";TZID=%s:%s", loc.String(), t.In(loc).Format("20060102T150405"))
}

func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
