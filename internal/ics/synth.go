package ics

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"turnocal/internal/model"
	"turnocal/internal/roster"
)

// Rendered timed shift: "HH:MM (D)".
var timedRe = regexp.MustCompile(`^(\d{2}):(\d{2}) \((\d+)\)$`)

// ErrNotSchedulable marks a rendered value that yields no calendar event.
var ErrNotSchedulable = errors.New("value is not a schedulable shift")

// Synthesize turns one person's rendered day cells (cells[d-1] is day d)
// into calendar events ordered by day.
//
//   - Special codes span 00:01-23:59 of the civil day.
//   - "HH:MM (D)" starts at that local time and ends D hours later, even when
//     that crosses midnight.
//   - Anything else (unknown codes, the invalid-format sentinel, hours
//     outside the clock) is skipped and reported in the error slice.
func Synthesize(person string, cells []string, a model.Anchor, loc *time.Location) ([]model.CalendarEvent, []error) {
	days, err := MonthDays(a, loc)
	if err != nil {
		return nil, []error{err}
	}

	var (
		events  []model.CalendarEvent
		skipped []error
	)
	for i, value := range cells {
		if value == "" {
			continue
		}
		if i >= len(days) {
			skipped = append(skipped, fmt.Errorf("%s day %d: beyond %s", person, i+1, a))
			continue
		}
		ev, err := eventFor(person, i+1, value, days[i])
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		events = append(events, ev)
	}
	return events, skipped
}

func eventFor(person string, day int, value string, midnight time.Time) (model.CalendarEvent, error) {
	at := func(h, m int) time.Time {
		return time.Date(midnight.Year(), midnight.Month(), midnight.Day(), h, m, 0, 0, midnight.Location())
	}

	if roster.IsSpecial(value) {
		return model.CalendarEvent{
			Person:  person,
			Day:     day,
			Kind:    model.EventSpecial,
			Summary: value,
			Start:   at(0, 1),
			End:     at(23, 59),
		}, nil
	}

	m := timedRe.FindStringSubmatch(value)
	if m == nil {
		return model.CalendarEvent{}, fmt.Errorf("%s day %d %q: %w", person, day, value, ErrNotSchedulable)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	hours, err := strconv.Atoi(m[3])
	if err != nil || hour > 23 || minute > 59 || hours <= 0 {
		return model.CalendarEvent{}, fmt.Errorf("%s day %d %q: %w", person, day, value, ErrNotSchedulable)
	}

	start := at(hour, minute)
	return model.CalendarEvent{
		Person:  person,
		Day:     day,
		Kind:    model.EventTimed,
		Summary: fmt.Sprintf("Turno: %s:%s (%dh)", m[1], m[2], hours),
		Start:   start,
		End:     start.Add(time.Duration(hours) * time.Hour),
	}, nil
}
