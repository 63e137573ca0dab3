package toolclient

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstream covers non-auth failure statuses, transport errors and timeouts.
	ErrUpstream = errors.New("tool server error")

	// ErrAuthenticationFailed is returned for HTTP 401.
	ErrAuthenticationFailed = errors.New("tool server authentication failed")

	// ErrForbidden is returned for HTTP 403.
	ErrForbidden = errors.New("tool server access forbidden")
)

// Error carries the upstream detail of a failed invocation.
type Error struct {
	Tool       string
	ServerURL  string
	StatusCode int    // 0 when no response was received
	Body       string // upstream response body, verbatim
	Err        error  // one of the package sentinels
	Cause      error  // transport or context error, if any
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("tool %s at %s: %v (status %d): %s", e.Tool, e.ServerURL, e.Err, e.StatusCode, e.Body)
	case e.Cause != nil:
		return fmt.Sprintf("tool %s at %s: %v: %v", e.Tool, e.ServerURL, e.Err, e.Cause)
	default:
		return fmt.Sprintf("tool %s at %s: %v", e.Tool, e.ServerURL, e.Err)
	}
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}

	return []error{e.Err, e.Cause}
}

func classify(statusCode int) error {
	switch statusCode {
	case 401:
		return ErrAuthenticationFailed
	case 403:
		return ErrForbidden
	default:
		return ErrUpstream
	}
}

// IsAuthenticationFailed checks if an error is a 401 from a tool server.
func IsAuthenticationFailed(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed)
}

// IsForbidden checks if an error is a 403 from a tool server.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
