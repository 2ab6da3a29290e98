package extract

import (
	"errors"
	"fmt"
)

// Kind classifies a final extraction failure.
type Kind string

const (
	// KindTransport means the page could not be fetched on any attempt.
	KindTransport Kind = "transport_failure"
	// KindEmpty means fetches succeeded but neither the primary strategy
	// nor the fallback pass produced any items.
	KindEmpty Kind = "empty_extraction_failure"
)

// Error is the single failure an extraction surfaces: the last error kind
// plus how many attempts were spent. Intermediate failures are absorbed.
type Error struct {
	Kind     Kind
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extraction failed after %d attempt(s) (%s): %v", e.Attempts, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind of an extraction error, or "" if err is
// not one.
func KindOf(err error) Kind {
	var xerr *Error
	if errors.As(err, &xerr) {
		return xerr.Kind
	}
	return ""
}
