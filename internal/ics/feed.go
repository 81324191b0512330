package ics

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"turnocal/internal/fsutil"
	appLog "turnocal/internal/log"
	"turnocal/internal/model"
)

const productID = "-//turnocal//Shift Roster//IT"

// Writer serializes per-person feeds into Dir.
type Writer struct {
	Dir      string
	Location *time.Location

	// Now stamps DTSTAMP; time.Now when nil.
	Now func() time.Time
}

// FeedName is the deterministic file name of a person's monthly feed,
// e.g. "rossi_april.ics".
func FeedName(person, monthName string) string {
	clean := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(strings.ToLower(strings.TrimSpace(person)))
	return fmt.Sprintf("%s_%s.ics", clean, strings.ToLower(monthName))
}

// FeedPath joins dir with FeedName.
func FeedPath(dir, person string, a model.Anchor) string {
	return filepath.Join(dir, FeedName(person, a.MonthName()))
}

// Encode renders events as an iCalendar document.
func (w Writer) Encode(person string, a model.Anchor, events []model.CalendarEvent) string {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	loc := w.Location
	if loc == nil {
		loc = time.Local
	}

	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(fmt.Sprintf("%s %s", person, a))
	cal.SetXWRTimezone(loc.String())

	stamp := now().UTC()
	for _, ev := range events {
		ve := cal.AddEvent(eventUID(person, ev))
		ve.SetDtStampTime(stamp)
		ve.SetSummary(ev.Summary)
		ve.SetDescription(person)
		ve.SetProperty(ical.ComponentPropertyCategories, string(ev.Kind))
		ve.SetStartAt(ev.Start)
		ve.SetEndAt(ev.End)
	}
	return cal.Serialize()
}

// Write encodes the feed and stores it atomically, returning its path.
func (w Writer) Write(person string, a model.Anchor, events []model.CalendarEvent) (string, error) {
	if w.Dir == "" {
		return "", fmt.Errorf("ics: feed directory is empty")
	}
	path := FeedPath(w.Dir, person, a)
	body := w.Encode(person, a, events)
	if err := fsutil.WriteFileAtomic(path, []byte(body), 0o644); err != nil {
		appLog.Error("ics feed write failed", err, "person", person, "path", path)
		return "", err
	}
	appLog.Info("ics feed written", "person", person, "period", a.String(), "event_count", len(events), "path", path)
	return path, nil
}

// eventUID is <person>-<year>-<month>-<day>@turnocal, stable across rewrites.
func eventUID(person string, ev model.CalendarEvent) string {
	slug := strings.ToLower(strings.Join(strings.Fields(person), "-"))
	return fmt.Sprintf("%s-%s@turnocal", slug, ev.Start.Format("2006-01-02"))
}
