package ics

import (
	"bytes"
	"errors"
	"sort"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "turnocal/internal/log"
	"turnocal/internal/model"
)

// ParseFeed reads a feed produced by Writer back into events localized to
// loc. Events missing DTSTART/DTEND are logged and skipped.
func ParseFeed(body []byte, loc *time.Location) ([]model.CalendarEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]model.CalendarEvent, 0)
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve, loc)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Error("ics vevent parse failed", perr)
			continue
		}
		events = append(events, ev)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
	return events, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (model.CalendarEvent, error) {
	var out model.CalendarEvent

	start, err := ve.GetStartAt()
	if err != nil {
		return out, err
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return out, err
	}
	out.Start = start.In(loc)
	out.End = end.In(loc)
	out.Day = out.Start.Day()

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Person = p.Value
	}
	out.Kind = model.EventTimed
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil && p.Value == string(model.EventSpecial) {
		out.Kind = model.EventSpecial
	}
	return out, nil
}
