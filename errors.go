package recall

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Kind classifies an engine error for callers and for the wire envelope.
type Kind string

const (
	// KindInvalidInput marks malformed caller input (bad project ID grammar,
	// unknown memory type, empty scope). Never retryable.
	KindInvalidInput Kind = "invalid_input"
	// KindNotFound marks a missing project, document, chunk, or fact.
	KindNotFound Kind = "not_found"
	// KindConflict marks a write rejected in favor of existing state. Part of
	// the wire taxonomy; fact collisions currently report through
	// AddFactResult.Ignored instead of an error, so no code path emits it.
	KindConflict Kind = "conflict"
	// KindExternalTimeout marks an embed/complete call that hit its deadline.
	KindExternalTimeout Kind = "external_timeout"
	// KindExternalFailure marks any other embed/complete failure.
	KindExternalFailure Kind = "external_failure"
	// KindCorruption marks an on-disk invariant violation. The affected
	// project is switched read-only in memory until an operator intervenes.
	KindCorruption Kind = "corruption"
	// KindExhausted marks an out-of-space condition, retryable after cleanup.
	KindExhausted Kind = "exhausted"
	// KindInternal marks everything else.
	KindInternal Kind = "internal"
)

// Error is a structured engine error. Kind drives the wire envelope and the
// retry policy; Existing optionally carries the conflicting row for
// KindConflict.
type Error struct {
	Kind     Kind
	Message  string
	Existing any   // populated for KindConflict
	Err      error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller may usefully retry the operation.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindExternalTimeout, KindExternalFailure, KindExhausted:
		return true
	default:
		return false
	}
}

// E builds an *Error with the given kind and formatted message.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error wrapping a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// --- HTTP transport errors (providers) ---

// ErrHTTP is an HTTP-level provider error. Retry middleware inspects Status
// and RetryAfter to decide whether and when to retry.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrProvider is a non-HTTP provider failure (marshal, decode, missing field).
type ErrProvider struct {
	Provider string
	Message  string
}

func (e *ErrProvider) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ParseRetryAfter parses an HTTP Retry-After header value: either delay
// seconds or an HTTP-date. Returns 0 when the value is absent or unparseable.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
