package bridge

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when the bridge rejects the configured
// credential. It is never retried.
var ErrUnauthorized = errors.New("bridge: unauthorized")

// ErrToolNotFound is the sentinel wrapped by NotFoundError so callers can
// match with errors.Is.
var ErrToolNotFound = errors.New("bridge: not found")

// InvocationError indicates the bridge accepted the call but the tool
// reported a failure in its response payload.
type InvocationError struct {
	Tool   string
	Detail string
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("tool call %s failed: %s", e.Tool, e.Detail)
}

// NotFoundError indicates a 404 from the bridge. Route distinguishes a
// missing /call route (old server) from a missing tool on a current server.
type NotFoundError struct {
	Tool   string
	Route  bool
	Detail string
}

func (e *NotFoundError) Error() string {
	if e.Route {
		return fmt.Sprintf("bridge route not found calling %s: %s", e.Tool, e.Detail)
	}
	return fmt.Sprintf("tool %s not found: %s", e.Tool, e.Detail)
}

// Unwrap lets errors.Is(err, ErrToolNotFound) match.
func (e *NotFoundError) Unwrap() error { return ErrToolNotFound }

// ExhaustedError is returned after all retry attempts fail. Last holds the
// final observed failure.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("bridge request failed after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap exposes the last underlying failure.
func (e *ExhaustedError) Unwrap() error { return e.Last }
