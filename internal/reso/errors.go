package reso

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a single-listing lookup matches nothing upstream
var ErrNotFound = errors.New("reso: listing not found")

// TransportError reports a network failure or a non-2xx response
type TransportError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("reso: %s returned status %d: %s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("reso: request %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// EnvelopeError reports a response body that is not a valid listing envelope
type EnvelopeError struct {
	Err error
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("reso: malformed response envelope: %v", e.Err)
}

func (e *EnvelopeError) Unwrap() error {
	return e.Err
}
