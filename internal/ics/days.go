package ics

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"turnocal/internal/model"
)

// MonthDays returns local midnight of every civil day of the anchored month
// in loc, index 0 being the 1st. The series is a DAILY rule from the 1st to
// the last day, so DST transitions never shift a day boundary.
func MonthDays(a model.Anchor, loc *time.Location) ([]time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	first := time.Date(a.Year, a.Month, 1, 0, 0, 0, 0, loc)
	last := time.Date(a.Year, a.Month, a.Days(), 0, 0, 0, 0, loc)

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: first,
		Until:   last,
	})
	if err != nil {
		return nil, fmt.Errorf("ics: month rule for %s: %w", a, err)
	}

	days := r.All()
	if len(days) != a.Days() {
		return nil, fmt.Errorf("ics: month rule for %s produced %d days, want %d", a, len(days), a.Days())
	}
	return days, nil
}
