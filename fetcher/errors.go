package fetcher

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout marks a request that did not complete in time.
	ErrTimeout = errors.New("request timed out")

	// ErrStatus marks a response with a non-2xx status.
	ErrStatus = errors.New("unexpected status")
)

// FetchError describes a failed request. StatusCode is zero when no response
// was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
