// Package result defines the canonical backend-agnostic execution result
// and the normalization of heterogeneous bridge payloads into it.
package result

// Backend identifies which execution path produced a result.
type Backend string

// Backend markers.
const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
	BackendNone   Backend = "none"
)

// Result is the canonical shape every execution path converges to. No
// caller-visible code branches on backend-specific payload fields outside
// this package.
type Result struct {
	// Succeeded reports whether a backend executed the request.
	Succeeded bool

	// Rows is the full row count when known. nil means unknown, which is
	// distinct from a known zero.
	Rows *int

	// Rendered is the human-readable answer. Non-empty whenever Succeeded
	// is true.
	Rendered string

	// RawError carries the underlying failure text, if any.
	RawError string

	// Backend records which path produced this result.
	Backend Backend
}

// NoBackend builds the terminal result used when no execution path is
// usable. The message is always non-empty so callers get an explanation
// instead of a crash.
func NoBackend(message string) Result {
	if message == "" {
		message = "No execution backend available."
	}
	return Result{Backend: BackendNone, Rendered: message}
}

// Failure builds a non-executed result carrying a backend failure that
// became the final visible outcome.
func Failure(backend Backend, message string, err error) Result {
	r := Result{Backend: backend, Rendered: message}
	if err != nil {
		r.RawError = err.Error()
		if r.Rendered == "" {
			r.Rendered = "Execution failed: " + err.Error()
		}
	}
	return r
}

func intPtr(n int) *int { return &n }
