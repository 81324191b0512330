package roster

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags a decoded shift cell.
type Kind int

const (
	KindEmpty Kind = iota
	KindSpecial
	KindTimed
	KindUnknown
	KindAnomaly
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindSpecial:
		return "special"
	case KindTimed:
		return "timed"
	case KindUnknown:
		return "unknown"
	case KindAnomaly:
		return "anomaly"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// InvalidFormat is what an anomalous cell renders as.
const InvalidFormat = "Formato non valido"

// SpecialCodes are the all-day event codes.
var SpecialCodes = map[string]struct{}{
	"R1":   {},
	"R2":   {},
	"FER":  {},
	"R0":   {},
	"OFF":  {},
	"FEST": {},
}

// IsSpecial reports whether a rendered value is one of SpecialCodes.
func IsSpecial(v string) bool {
	_, ok := SpecialCodes[v]
	return ok
}

// Shift length in hours keyed by the code's leading letter.
var durationPrefix = map[byte]int{
	'd': 4,
	'e': 5,
	'f': 6,
	'g': 7,
	'h': 8,
}

// Descriptor is the decoded meaning of one roster cell.
//
// Code is set for KindSpecial and KindUnknown. StartHour, StartMinute and
// Duration are set for KindTimed. Err is set for KindAnomaly.
type Descriptor struct {
	Kind Kind

	Code string

	StartHour   int
	StartMinute int
	Duration    int

	Err error
}

// Render returns the textual form stored in the roster table.
func (d Descriptor) Render() string {
	switch d.Kind {
	case KindSpecial, KindUnknown:
		return d.Code
	case KindTimed:
		return fmt.Sprintf("%02d:%02d (%d)", d.StartHour, d.StartMinute, d.Duration)
	case KindAnomaly:
		return InvalidFormat
	default:
		return ""
	}
}

// Normalize lower-cases raw cell text and drops everything outside [a-z0-9].
func Normalize(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Decode classifies one raw cell. The precedence is fixed: empty, special
// code, duration-prefixed slot code, anything else preserved upper-cased.
// Slot indices are not range checked, so hour 24 and above render as-is.
func Decode(raw string) Descriptor {
	token := Normalize(raw)
	if token == "" {
		return Descriptor{Kind: KindEmpty}
	}

	upper := strings.ToUpper(token)
	if IsSpecial(upper) {
		return Descriptor{Kind: KindSpecial, Code: upper}
	}

	hours, ok := durationPrefix[token[0]]
	if !ok {
		return Descriptor{Kind: KindUnknown, Code: upper}
	}
	digits := onlyDigits(token[1:])
	if digits == "" {
		return Descriptor{Kind: KindUnknown, Code: upper}
	}

	slot, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return Descriptor{Kind: KindAnomaly, Code: upper, Err: err}
	}

	// Each slot is half an hour.
	minute := 0
	if slot%2 != 0 {
		minute = 30
	}
	return Descriptor{
		Kind:        KindTimed,
		StartHour:   int(slot / 2),
		StartMinute: minute,
		Duration:    hours,
	}
}

func onlyDigits(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
