package roster

import (
	"strconv"
	"strings"

	appLog "turnocal/internal/log"
	"turnocal/internal/model"
)

// NameColumn is the first column header of a roster table.
const NameColumn = "Name"

// Row is one person's month: Cells[d-1] holds the rendered value for day d.
type Row struct {
	Name  string
	Cells []string
}

// Cell returns the rendered value for a 1-based day, "" when out of range.
func (r Row) Cell(day int) string {
	if day < 1 || day > len(r.Cells) {
		return ""
	}
	return r.Cells[day-1]
}

// Record returns the row as table text: name followed by every day.
func (r Row) Record() []string {
	return append([]string{r.Name}, r.Cells...)
}

// Roster is the decoded table of one import.
type Roster struct {
	Anchor    model.Anchor
	Days      int
	Rows      []Row
	Anomalies []*model.DecodeError
}

// Header returns ["Name", "1", ..., "N"].
func (r Roster) Header() []string {
	return Header(r.Days)
}

// Header returns the roster column names for an N-day month.
func Header(days int) []string {
	h := make([]string, 0, days+1)
	h = append(h, NameColumn)
	for d := 1; d <= days; d++ {
		h = append(h, strconv.Itoa(d))
	}
	return h
}

// Table returns the header followed by every row.
func (r Roster) Table() [][]string {
	out := make([][]string, 0, len(r.Rows)+1)
	out = append(out, r.Header())
	for _, row := range r.Rows {
		out = append(out, row.Record())
	}
	return out
}

// Find looks a person up by name, ignoring case and surrounding space.
func (r Roster) Find(name string) (Row, bool) {
	key := PersonKey(name)
	for _, row := range r.Rows {
		if PersonKey(row.Name) == key {
			return row, true
		}
	}
	return Row{}, false
}

// PersonKey is the comparison form of a person name.
func PersonKey(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// CanonicalName keeps the text before the first comma ("ROSSI, Mario" -> "ROSSI").
func CanonicalName(cell string) string {
	if i := strings.Index(cell, ","); i >= 0 {
		cell = cell[:i]
	}
	return strings.TrimSpace(cell)
}

// Translate decodes every person row of grid (the header row is skipped)
// into a roster covering each day of the anchored month. A person seen on
// several rows keeps a single row; later non-empty cells win.
func Translate(grid model.RawGrid, a model.Anchor) Roster {
	days := a.Days()
	out := Roster{Anchor: a, Days: days}
	index := make(map[string]int)

	for _, src := range grid.Body() {
		if len(src) == 0 || src[0] == nil {
			continue
		}
		name := CanonicalName(*src[0])
		if name == "" {
			continue
		}

		key := PersonKey(name)
		pos, seen := index[key]
		if !seen {
			pos = len(out.Rows)
			index[key] = pos
			out.Rows = append(out.Rows, Row{Name: name, Cells: make([]string, days)})
		}
		row := &out.Rows[pos]

		for day := 1; day <= days; day++ {
			if day >= len(src) || src[day] == nil {
				continue
			}
			d := Decode(*src[day])
			switch d.Kind {
			case KindEmpty:
				continue
			case KindAnomaly:
				derr := &model.DecodeError{Person: name, Day: day, Token: *src[day], Cause: d.Err}
				out.Anomalies = append(out.Anomalies, derr)
				appLog.Debug("roster: cell decode anomaly", "person", name, "day", day, "token", *src[day], "err", d.Err)
			}
			row.Cells[day-1] = d.Render()
		}
	}

	return out
}
