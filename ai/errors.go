package ai

import (
	"errors"
	"fmt"
)

// Sentinel errors callers branch on.
var (
	// ErrCacheNotResolved is returned when a chat is requested before the
	// cached context has been resolved.
	ErrCacheNotResolved = errors.New("no cached content found, ensure cache is initialized")

	// ErrUnsupportedFormat is returned for grounding documents in a format
	// the loader cannot read. A configuration error, fatal to resolution.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrEmptyResponse is returned when the model reply carries no candidates.
	ErrEmptyResponse = errors.New("empty response from model")
)

// RemoteError wraps a failure talking to the hosted model service. These
// are potentially transient and must never be confused with configuration
// errors such as a missing grounding document.
type RemoteError struct {
	Op     string
	Status int
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gemini: %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("gemini: %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsRemote reports whether err originated in a remote-service call.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
