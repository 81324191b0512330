package model

import (
	"errors"
	"fmt"
)

var (
	// ErrAnchorNotFound is returned when the header row carries no month/year token.
	ErrAnchorNotFound = errors.New("month/year anchor not found in header row")

	// ErrEmptyExtraction is returned when the extractor produced no usable table.
	ErrEmptyExtraction = errors.New("no table found in document")

	// ErrDecodeAnomaly marks a cell whose numeric part could not be parsed.
	// It never aborts a translation.
	ErrDecodeAnomaly = errors.New("shift code decode anomaly")

	ErrPartitionNotFound = errors.New("partition not found")
	ErrPersonNotFound    = errors.New("person not found")

	// ErrStoreUnavailable wraps any I/O failure of the historical store.
	ErrStoreUnavailable = errors.New("historical store unavailable")

	ErrDayOutOfRange    = errors.New("day out of range for partition")
	ErrInvalidPartition = errors.New("invalid partition")
)

// DecodeError records one cell that failed numeric decoding.
type DecodeError struct {
	Person string
	Day    int
	Token  string
	Cause  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q (person %q, day %d): %v", e.Token, e.Person, e.Day, e.Cause)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecodeAnomaly, e.Cause}
}

// IsNotFound reports whether err is a query-time lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPartitionNotFound) ||
		errors.Is(err, ErrPersonNotFound)
}

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrAnchorNotFound) ||
		errors.Is(err, ErrEmptyExtraction) ||
		errors.Is(err, ErrDayOutOfRange) ||
		errors.Is(err, ErrInvalidPartition)
}
