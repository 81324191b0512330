package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RawGrid is the table produced by a grid extractor. Row 0 is the header;
// column 0 of every later row names a person. A nil cell means the extractor
// found nothing there.
type RawGrid [][]*string

// Header returns row 0, or nil for an empty grid.
func (g RawGrid) Header() []*string {
	if len(g) == 0 {
		return nil
	}
	return g[0]
}

// Body returns every row after the header.
func (g RawGrid) Body() [][]*string {
	if len(g) < 2 {
		return nil
	}
	return g[1:]
}

// Strings renders the grid as plain text rows, nil cells becoming "".
func (g RawGrid) Strings() [][]string {
	out := make([][]string, 0, len(g))
	for _, row := range g {
		line := make([]string, len(row))
		for i, c := range row {
			if c != nil {
				line[i] = *c
			}
		}
		out = append(out, line)
	}
	return out
}

// Cell is a convenience constructor for grid literals.
func Cell(s string) *string {
	return &s
}

// Anchor identifies the reporting period of one import.
type Anchor struct {
	Month time.Month
	Year  int
}

// MonthName returns the English month name, e.g. "April".
func (a Anchor) MonthName() string {
	return a.Month.String()
}

// Days returns the number of days in the anchored month.
func (a Anchor) Days() int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(a.Year, a.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (a Anchor) String() string {
	return fmt.Sprintf("%s %d", a.MonthName(), a.Year)
}

// Partition is the historical store's unit of storage. It shares the
// anchor's shape: one partition per (month, year).
type Partition Anchor

// Key is the directory name of the partition, e.g. "April-2025".
func (p Partition) Key() string {
	return fmt.Sprintf("%s-%d", time.Month(p.Month).String(), p.Year)
}

func (p Partition) Anchor() Anchor {
	return Anchor(p)
}

func (p Partition) String() string {
	return p.Key()
}

// Before orders partitions chronologically.
func (p Partition) Before(o Partition) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// ParsePartition parses the "<MonthName>-<Year>" form produced by Key.
// Month names are matched case-insensitively.
func ParsePartition(s string) (Partition, error) {
	s = strings.TrimSpace(s)
	i := strings.LastIndex(s, "-")
	if i <= 0 || i == len(s)-1 {
		return Partition{}, fmt.Errorf("%w: %q", ErrInvalidPartition, s)
	}
	month, ok := MonthByName(s[:i])
	if !ok {
		return Partition{}, fmt.Errorf("%w: unknown month in %q", ErrInvalidPartition, s)
	}
	year, err := strconv.Atoi(s[i+1:])
	if err != nil || year < 1900 {
		return Partition{}, fmt.Errorf("%w: bad year in %q", ErrInvalidPartition, s)
	}
	return Partition{Month: month, Year: year}, nil
}

// MonthByName looks up an English month name case-insensitively.
func MonthByName(name string) (time.Month, bool) {
	for m := time.January; m <= time.December; m++ {
		if strings.EqualFold(m.String(), strings.TrimSpace(name)) {
			return m, true
		}
	}
	return 0, false
}

// EventKind distinguishes all-day special codes from timed shifts.
type EventKind string

const (
	EventSpecial EventKind = "special"
	EventTimed   EventKind = "timed"
)

// CalendarEvent is one person's shift on one day, localized to the
// configured civil timezone.
type CalendarEvent struct {
	Person  string
	Day     int
	Kind    EventKind
	Summary string

	Start time.Time
	End   time.Time
}
