package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
)

// Handle is one database connection owned by a Pool. A handle must not be
// shared between goroutines and must not be retained past Release.
type Handle struct {
	db       *sql.DB
	overflow bool // opened past pool capacity; closed on release
	broken   bool // failed in use; discarded on release
}

// DB returns the underlying connection. Each handle serializes through a
// single SQLite connection (SetMaxOpenConns(1)).
func (h *Handle) DB() *sql.DB { return h.db }

// MarkBroken flags the handle so Release discards it instead of pooling.
// Call it after an error that leaves the connection in an unknown state.
func (h *Handle) MarkBroken() { h.broken = true }

// Pool is a bounded LIFO pool of SQLite handles for one database file.
// All handles are opened up front with write-ahead journaling, NORMAL
// durability, and foreign-key enforcement. When the pool is empty, Acquire
// opens an overflow handle that is closed on release rather than pooled.
type Pool struct {
	path   string
	size   int
	logger *slog.Logger

	mu     sync.Mutex
	idle   []*Handle // LIFO stack
	closed bool
}

// NewPool opens size handles against the database at path. size must be at
// least 1.
func NewPool(path string, size int, logger *slog.Logger) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool: size must be >= 1, got %d", size)
	}
	if logger == nil {
		logger = nopLogger
	}
	p := &Pool{path: path, size: size, logger: logger}
	for i := 0; i < size; i++ {
		h, err := p.open(false)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("pool: open handle %d: %w", i, err)
		}
		p.idle = append(p.idle, h)
	}
	p.logger.Debug("pool: opened", "path", path, "size", size)
	return p, nil
}

// open creates and configures a single handle.
func (p *Pool) open(overflow bool) (*Handle, error) {
	db, err := sql.Open("sqlite", p.path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA synchronous=NORMAL`,
		`PRAGMA foreign_keys=ON`,
		`PRAGMA busy_timeout=5000`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return &Handle{db: db, overflow: overflow}, nil
}

// Acquire returns a handle, testing pooled handles with a trivial statement
// first. Unhealthy handles are discarded and replaced. When no pooled handle
// is available an overflow handle is opened.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, fmt.Errorf("pool: closed")
		}
		var h *Handle
		if n := len(p.idle); n > 0 {
			h = p.idle[n-1]
			p.idle = p.idle[:n-1]
		}
		p.mu.Unlock()

		if h == nil {
			ov, err := p.open(true)
			if err != nil {
				return nil, fmt.Errorf("pool: open overflow: %w", err)
			}
			p.logger.Debug("pool: overflow handle opened", "path", p.path)
			return ov, nil
		}

		var one int
		if err := h.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
			if ctx.Err() != nil {
				p.release(h)
				return nil, ctx.Err()
			}
			// Lost handle: discard and reopen a replacement in its place.
			h.db.Close()
			p.logger.Warn("pool: discarded unhealthy handle", "path", p.path, "error", err)
			if fresh, ferr := p.open(false); ferr == nil {
				return fresh, nil
			}
			continue
		}
		return h, nil
	}
}

// Release returns a handle to the pool. Overflow, broken, and surplus
// handles are closed. Release never fails.
func (p *Pool) Release(h *Handle) {
	if h == nil {
		return
	}
	p.release(h)
}

func (p *Pool) release(h *Handle) {
	if h.overflow || h.broken {
		h.db.Close()
		return
	}
	p.mu.Lock()
	if p.closed || len(p.idle) >= p.size {
		p.mu.Unlock()
		h.db.Close()
		return
	}
	p.idle = append(p.idle, h)
	p.mu.Unlock()
}

// With runs fn with an acquired handle, guaranteeing release on every exit
// path. If fn returns an error the handle is still returned to the pool.
func (p *Pool) With(ctx context.Context, fn func(h *Handle) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(h)
	return fn(h)
}

// Close closes all pooled handles. Idempotent. Handles currently acquired
// are closed when released.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, h := range idle {
		h.db.Close()
	}
	p.logger.Debug("pool: closed", "path", p.path)
}

// Idle reports the number of pooled handles currently available.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}
