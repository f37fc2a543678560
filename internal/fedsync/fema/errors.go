package fema

import (
	"fmt"
)

// Fetch stages reported by TransportError.
const (
	StageCount = "count"
	StagePage  = "page"
)

// TransportError reports a failed request to the dataset API. It is fatal to
// the dataset fetch it occurred in.
type TransportError struct {
	Dataset string
	Stage   string
	// Offset is the $skip of the failed page; -1 for the count request.
	Offset int
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Stage == StageCount {
		return fmt.Sprintf("fema: %s count request failed (status %d): %v", e.Dataset, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fema: %s page at offset %d failed (status %d): %v", e.Dataset, e.Offset, e.StatusCode, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
