package scrape

import (
	"errors"
	"fmt"
)

// Error taxonomy for a single-id pipeline pass. Request failures and
// malformed documents are transient and worth retrying; an incomplete
// record is a permanent skip.
var (
	// ErrMalformedDocument indicates a page too broken to locate any
	// labeled table rows.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrIncompleteRecord indicates the identifying code could not be
	// derived. Not retryable.
	ErrIncompleteRecord = errors.New("incomplete record")
)

// RequestError describes a failed retrieval of one resource. Exactly one of
// the failure modes applies: Timeout, a transport error (Err set, no
// status), or an unexpected HTTP status.
type RequestError struct {
	URL        string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *RequestError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("request to %s timed out", e.URL)
	case e.StatusCode != 0:
		return fmt.Sprintf("request to %s returned HTTP %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
	}
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a pipeline error is transient. Network,
// timeout, HTTP-status, and malformed-document failures may clear on a
// later attempt; everything else is permanent.
func Retryable(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return true
	}
	return errors.Is(err, ErrMalformedDocument)
}
