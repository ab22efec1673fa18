package models

import (
	"errors"
	"fmt"
)

// ErrLaneNotConfigured is returned when a component is asked about a lane that
// has no embedding model or collection configured. Fatal, never retried.
var ErrLaneNotConfigured = errors.New("lane not configured")

// ErrAllLanesFailed is returned when every lane (and sub-topic) search failed
// and no candidates could be produced at all. A single lane failing is not an
// error; the query degrades to the remaining lanes.
var ErrAllLanesFailed = errors.New("all lane searches failed")

// ErrEnhancementUnavailable marks a failed LLM enhancement call. It is always
// recovered locally by the fallback enhancer and never reaches a caller.
var ErrEnhancementUnavailable = errors.New("query enhancement unavailable")

// DimensionMismatchError reports a disagreement between an existing vector
// collection's size and the dimensionality being requested, or between an
// embedding response and the configured lane dimension.
type DimensionMismatchError struct {
	Collection string
	Want       int
	Got        int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch for %s: want %d, got %d", e.Collection, e.Want, e.Got)
}

// IsDimensionMismatch reports whether err is a DimensionMismatchError.
func IsDimensionMismatch(err error) bool {
	var dm *DimensionMismatchError
	return errors.As(err, &dm)
}
