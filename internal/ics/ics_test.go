package ics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnocal/internal/model"
)

func rome(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)
	return loc
}

func dayCells(days int, set map[int]string) []string {
	out := make([]string, days)
	for d, v := range set {
		out[d-1] = v
	}
	return out
}

func TestMonthDays_DSTMonth(t *testing.T) {
	loc := rome(t)
	days, err := MonthDays(model.Anchor{Month: time.March, Year: 2025}, loc)
	require.NoError(t, err)
	require.Len(t, days, 31)
	for i, d := range days {
		assert.Equal(t, i+1, d.Day())
		assert.Equal(t, 0, d.Hour())
		assert.Equal(t, loc, d.Location())
	}
}

func TestSynthesize_TimedShift(t *testing.T) {
	loc := rome(t)
	april := model.Anchor{Month: time.April, Year: 2025}

	events, skipped := Synthesize("ROSSI", dayCells(30, map[int]string{10: "07:30 (4)"}), april, loc)

	require.Empty(t, skipped)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, model.EventTimed, ev.Kind)
	assert.Equal(t, 10, ev.Day)
	assert.Equal(t, "Turno: 07:30 (4h)", ev.Summary)
	assert.True(t, ev.Start.Equal(time.Date(2025, time.April, 10, 7, 30, 0, 0, loc)))
	assert.True(t, ev.End.Equal(time.Date(2025, time.April, 10, 11, 30, 0, 0, loc)))
	assert.Equal(t, "2025-04-10T07:30:00+02:00", ev.Start.Format(time.RFC3339))
}

func TestSynthesize_SpecialAndMidnight(t *testing.T) {
	loc := rome(t)
	jan := model.Anchor{Month: time.January, Year: 2024}

	events, skipped := Synthesize("NERI", dayCells(31, map[int]string{
		1:  "OFF",
		2:  "20:00 (8)",
		3:  "XYZ",
		4:  "Formato non valido",
		5:  "25:00 (8)",
		31: "FER",
	}), jan, loc)

	require.Len(t, events, 3)
	assert.Len(t, skipped, 3)
	for _, err := range skipped {
		assert.True(t, errors.Is(err, ErrNotSchedulable))
	}

	off := events[0]
	assert.Equal(t, model.EventSpecial, off.Kind)
	assert.Equal(t, "OFF", off.Summary)
	assert.True(t, off.Start.Equal(time.Date(2024, time.January, 1, 0, 1, 0, 0, loc)))
	assert.True(t, off.End.Equal(time.Date(2024, time.January, 1, 23, 59, 0, 0, loc)))

	night := events[1]
	assert.True(t, night.End.Equal(time.Date(2024, time.January, 3, 4, 0, 0, 0, loc)))
	assert.True(t, night.End.After(night.Start))

	assert.Equal(t, 31, events[2].Day)
}

func TestWriter_RoundTrip(t *testing.T) {
	loc := rome(t)
	april := model.Anchor{Month: time.April, Year: 2025}
	events, _ := Synthesize("ROSSI", dayCells(30, map[int]string{3: "R1", 10: "07:30 (4)"}), april, loc)

	w := Writer{
		Dir:      t.TempDir(),
		Location: loc,
		Now:      func() time.Time { return time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC) },
	}
	path, err := w.Write("ROSSI", april, events)
	require.NoError(t, err)
	assert.Equal(t, "rossi_april.ics", filepath.Base(path))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "X-WR-TIMEZONE:Europe/Rome")
	assert.Contains(t, string(body), "UID:rossi-2025-04-03@turnocal")
	assert.Contains(t, string(body), "UID:rossi-2025-04-10@turnocal")

	parsed, err := ParseFeed(body, loc)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	for i := range events {
		assert.Equal(t, events[i].Summary, parsed[i].Summary)
		assert.Equal(t, events[i].Kind, parsed[i].Kind)
		assert.Equal(t, "ROSSI", parsed[i].Person)
		assert.True(t, events[i].Start.Equal(parsed[i].Start))
		assert.True(t, events[i].End.Equal(parsed[i].End))
	}
	assert.Equal(t, 3, parsed[0].Day)
}

func TestFeedName(t *testing.T) {
	assert.Equal(t, "de luca_march.ics", FeedName("De Luca", "March"))
	assert.Equal(t, "a_b_may.ics", FeedName("a/b", "May"))
}
