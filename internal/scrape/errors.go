package scrape

import (
	"errors"
	"fmt"
)

// FailureClass buckets fetch errors for retry policy and event reporting.
type FailureClass string

// Failure classes carried on FetchError.
const (
	FailTimeout    FailureClass = "timeout"
	FailConnection FailureClass = "connection"
	FailHTTP       FailureClass = "http"
	FailUnknown    FailureClass = "unknown"
)

// FetchError is the typed failure returned by a Fetcher.
type FetchError struct {
	Class      FailureClass
	StatusCode int
	URL        string
	Err        error
}

func (e *FetchError) Error() string {
	if e.Class == FailHTTP {
		return fmt.Sprintf("fetch %s: http %d", e.URL, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Class, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Class)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying on the next
// scheduled cycle. Timeouts, connection errors, and 5xx responses are
// transient; 4xx and malformed input are permanent and never retried faster
// than the normal interval.
func (e *FetchError) Transient() bool {
	switch e.Class {
	case FailTimeout, FailConnection:
		return true
	case FailHTTP:
		return e.StatusCode >= 500
	default:
		return false
	}
}

// ErrNotFound is returned by stores when a target has no recorded data.
var ErrNotFound = errors.New("not found")

// ClassifyError extracts a coarse category label from a job error for event
// payloads and status history.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		if fe.Class == FailHTTP {
			return fmt.Sprintf("http_%d", fe.StatusCode)
		}
		return string(fe.Class)
	}
	return "internal"
}
