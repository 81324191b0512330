package roster

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"turnocal/internal/model"
)

// Italian month abbreviations as they appear in roster headers.
var monthAbbr = map[string]time.Month{
	"gen": time.January,
	"feb": time.February,
	"mar": time.March,
	"apr": time.April,
	"mag": time.May,
	"giu": time.June,
	"lug": time.July,
	"ago": time.August,
	"set": time.September,
	"ott": time.October,
	"nov": time.November,
	"dic": time.December,
}

// Abbreviation, optional trailing letters ("gennaio"), optional single
// separator, then a 2- or 4-digit year not followed by another digit.
var anchorRe = regexp.MustCompile(`(?i)(gen|feb|mar|apr|mag|giu|lug|ago|set|ott|nov|dic)[a-z]*[-_\s]?(\d{4}|\d{2})(?:\D|$)`)

// ResolveAnchor scans a header row left to right and returns the anchor of
// the first cell carrying a month/year token.
func ResolveAnchor(header []*string) (model.Anchor, error) {
	for _, cell := range header {
		if cell == nil {
			continue
		}
		if a, ok := matchAnchor(*cell); ok {
			return a, nil
		}
	}
	return model.Anchor{}, model.ErrAnchorNotFound
}

// ResolveGridAnchor applies ResolveAnchor to the grid's header row.
func ResolveGridAnchor(grid model.RawGrid) (model.Anchor, error) {
	if len(grid) == 0 {
		return model.Anchor{}, model.ErrEmptyExtraction
	}
	return ResolveAnchor(grid.Header())
}

// tokenRe is anchorRe for a whole token, so "Smarch-2025" is not March.
var tokenRe = regexp.MustCompile(`(?i)^(gen|feb|mar|apr|mag|giu|lug|ago|set|ott|nov|dic)[a-z]*[-_\s]?(\d{4}|\d{2})$`)

func matchAnchor(cell string) (model.Anchor, bool) {
	return anchorFromMatch(anchorRe.FindStringSubmatch(cell))
}

func anchorFromMatch(m []string) (model.Anchor, bool) {
	if m == nil {
		return model.Anchor{}, false
	}
	month, ok := monthAbbr[strings.ToLower(m[1])]
	if !ok {
		return model.Anchor{}, false
	}
	yearText := m[2]
	if len(yearText) == 2 {
		yearText = "20" + yearText
	}
	year, err := strconv.Atoi(yearText)
	if err != nil || year < 1900 {
		return model.Anchor{}, false
	}
	return model.Anchor{Month: month, Year: year}, true
}

// ParseAnchor resolves a single token such as "gen-24" or "DIC_2025".
func ParseAnchor(s string) (model.Anchor, error) {
	if a, ok := anchorFromMatch(tokenRe.FindStringSubmatch(strings.TrimSpace(s))); ok {
		return a, nil
	}
	return model.Anchor{}, fmt.Errorf("%w: %q", model.ErrAnchorNotFound, s)
}

// ParsePartition accepts a partition key ("April-2025") or the roster
// token of its month ("apr-25"). When neither parses, the key error is
// returned.
func ParsePartition(s string) (model.Partition, error) {
	p, err := model.ParsePartition(s)
	if err == nil {
		return p, nil
	}
	if a, aerr := ParseAnchor(s); aerr == nil {
		return model.Partition(a), nil
	}
	return model.Partition{}, err
}
