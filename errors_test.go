package recall

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorKinds(t *testing.T) {
	err := E(KindNotFound, "document %s", "abc")
	if got := err.Error(); got != "not_found: document abc" {
		t.Errorf("Error() = %q", got)
	}
	if !IsKind(err, KindNotFound) {
		t.Error("IsKind(KindNotFound) = false")
	}
	if IsKind(err, KindConflict) {
		t.Error("IsKind(KindConflict) = true")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindExhausted, cause, "write chunk")
	if !errors.Is(err, cause) {
		t.Error("wrapped cause lost")
	}
	if KindOf(err) != KindExhausted {
		t.Errorf("KindOf = %s", KindOf(err))
	}
	// Wrapping through fmt.Errorf keeps the kind reachable.
	outer := fmt.Errorf("ingest: %w", err)
	if KindOf(outer) != KindExhausted {
		t.Errorf("KindOf through fmt.Errorf = %s", KindOf(outer))
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Errorf("KindOf(plain) = %s", got)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{KindInvalidInput, false},
		{KindNotFound, false},
		{KindConflict, false},
		{KindExternalTimeout, true},
		{KindExternalFailure, true},
		{KindCorruption, false},
		{KindExhausted, true},
		{KindInternal, false},
	}
	for _, c := range cases {
		if got := E(c.kind, "x").Retryable(); got != c.want {
			t.Errorf("Retryable(%s) = %v, want %v", c.kind, got, c.want)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := ParseRetryAfter("7"); got != 7*time.Second {
		t.Errorf("seconds form = %v", got)
	}
	if got := ParseRetryAfter(""); got != 0 {
		t.Errorf("empty = %v", got)
	}
	if got := ParseRetryAfter("soon"); got != 0 {
		t.Errorf("garbage = %v", got)
	}
	if got := ParseRetryAfter("-1"); got != 0 {
		t.Errorf("negative = %v", got)
	}
	future := time.Now().Add(30 * time.Second).UTC().Format(time.RFC1123)
	if got := ParseRetryAfter(future); got <= 0 || got > 30*time.Second {
		t.Errorf("http-date = %v", got)
	}
}
