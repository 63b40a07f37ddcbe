package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestPool(t *testing.T, size int) *Pool {
	t.Helper()
	p, err := NewPool(filepath.Join(t.TempDir(), "test.db"), size, nil)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func TestPoolAcquireRelease(t *testing.T) {
	p := newTestPool(t, 2)
	ctx := context.Background()

	h, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if p.Idle() != 1 {
		t.Errorf("idle = %d after acquire, want 1", p.Idle())
	}
	p.Release(h)
	if p.Idle() != 2 {
		t.Errorf("idle = %d after release, want 2", p.Idle())
	}
}

func TestPoolOverflow(t *testing.T) {
	p := newTestPool(t, 1)
	ctx := context.Background()

	h1, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	h2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire overflow: %v", err)
	}
	if !h2.overflow {
		t.Error("second handle not tagged overflow")
	}

	// Overflow handle is usable.
	var one int
	if err := h2.DB().QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		t.Errorf("overflow handle query: %v", err)
	}

	// Releasing an overflow handle closes it rather than pooling it.
	p.Release(h2)
	if p.Idle() != 0 {
		t.Errorf("idle = %d after overflow release, want 0", p.Idle())
	}
	p.Release(h1)
	if p.Idle() != 1 {
		t.Errorf("idle = %d, want 1", p.Idle())
	}
}

func TestPoolBrokenHandleDiscarded(t *testing.T) {
	p := newTestPool(t, 1)
	ctx := context.Background()

	h, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	h.MarkBroken()
	p.Release(h)
	if p.Idle() != 0 {
		t.Errorf("broken handle was pooled, idle = %d", p.Idle())
	}

	// The pool still serves via overflow.
	h2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire after broken: %v", err)
	}
	p.Release(h2)
}

func TestPoolWithReleasesOnError(t *testing.T) {
	p := newTestPool(t, 1)
	ctx := context.Background()

	err := p.With(ctx, func(h *Handle) error {
		return context.Canceled
	})
	if err != context.Canceled {
		t.Fatalf("With = %v", err)
	}
	if p.Idle() != 1 {
		t.Errorf("handle not returned after fn error, idle = %d", p.Idle())
	}
}

func TestPoolCloseIdempotent(t *testing.T) {
	p := newTestPool(t, 2)
	p.Close()
	p.Close()
	if _, err := p.Acquire(context.Background()); err == nil {
		t.Fatal("Acquire after Close succeeded")
	}
}

func TestPoolSizeValidation(t *testing.T) {
	if _, err := NewPool(filepath.Join(t.TempDir(), "x.db"), 0, nil); err == nil {
		t.Fatal("NewPool(size=0) succeeded")
	}
}
