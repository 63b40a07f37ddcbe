// Package sqlite implements recall.Store with pure-Go SQLite and in-process
// brute-force vector search. Zero CGO required.
//
// On-disk layout, per tenant:
//
//	<root>/registry.db                        project registry
//	<root>/<project_id>/relational.db         facts, history, episodes,
//	                                          documents, chunks
//	<root>/<project_id>/semantic/vectors.db   vector index file
//
// Each project gets its own connection pool and its own vector index, so a
// query against one project cannot observe another project's state.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nevindra/recall"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// nopLogger discards all output.
var nopLogger = recall.NopLogger()

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a structured logger. When set, the store emits debug logs
// for every operation including timing, row counts, and key parameters.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithPoolSize sets the number of connections per project database (default 5).
func WithPoolSize(n int) Option {
	return func(s *Store) { s.poolSize = n }
}

// WithDimensions sets the embedding dimension D (default 384). Every stored
// chunk embedding must match exactly.
func WithDimensions(d int) Option {
	return func(s *Store) { s.dim = d }
}

// WithDedupMode sets the episode deduplication window (default per_day).
func WithDedupMode(m recall.DedupMode) Option {
	return func(s *Store) { s.dedupMode = m }
}

// WithMinEpisodeConfidence sets the episode insertion gate (default 0.6).
func WithMinEpisodeConfidence(c float64) Option {
	return func(s *Store) { s.minEpisodeConf = c }
}

// Store implements recall.Store backed by per-project SQLite files.
type Store struct {
	root           string
	dim            int
	poolSize       int
	dedupMode      recall.DedupMode
	minEpisodeConf float64
	logger         *slog.Logger
	sessionStart   int64

	registry *sql.DB
	indexes  *indexManager

	mu       sync.Mutex
	pools    map[string]*Pool
	readOnly map[string]bool // projects frozen after a corruption finding
	closed   bool
}

var _ recall.Store = (*Store)(nil)

// Open creates or opens a store rooted at dataRoot.
func Open(ctx context.Context, dataRoot string, opts ...Option) (*Store, error) {
	s := &Store{
		root:           dataRoot,
		dim:            384,
		poolSize:       5,
		dedupMode:      recall.DedupPerDay,
		minEpisodeConf: 0.6,
		logger:         nopLogger,
		sessionStart:   recall.NowUnix(),
		pools:          make(map[string]*Pool),
		readOnly:       make(map[string]bool),
	}
	for _, o := range opts {
		o(s)
	}
	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create data root: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dataRoot, "registry.db"))
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := initSchema(ctx, db, registrySchema); err != nil {
		db.Close()
		return nil, err
	}
	s.registry = db
	s.indexes = newIndexManager(dataRoot, s.dim, s.logger)
	s.logger.Debug("sqlite: store opened", "root", dataRoot, "dim", s.dim, "pool_size", s.poolSize)
	return s, nil
}

// Close closes the registry, all project pools, and all vector indexes.
// Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pools := s.pools
	s.pools = map[string]*Pool{}
	s.mu.Unlock()

	for _, p := range pools {
		p.Close()
	}
	s.indexes.CloseAll()
	err := s.registry.Close()
	s.logger.Debug("sqlite: store closed", "root", s.root)
	return err
}

// --- Registry ---

// EnsureProject validates projectID and registers it on first use, creating
// its directory and relational schema.
func (s *Store) EnsureProject(ctx context.Context, projectID string) error {
	if err := recall.ValidateProjectID(projectID); err != nil {
		return err
	}
	res, err := s.registry.ExecContext(ctx,
		`INSERT OR IGNORE INTO projects (id, created_at) VALUES (?, ?)`,
		projectID, recall.NowUnix())
	if err != nil {
		return fmt.Errorf("register project: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Info("sqlite: project created", "project_id", projectID)
	}
	// Opening the pool initializes the relational schema.
	_, err = s.pool(ctx, projectID)
	return err
}

// ListProjects returns registered projects, oldest first.
func (s *Store) ListProjects(ctx context.Context) ([]recall.ProjectInfo, error) {
	rows, err := s.registry.QueryContext(ctx,
		`SELECT id, created_at FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []recall.ProjectInfo
	for rows.Next() {
		var p recall.ProjectInfo
		if err := rows.Scan(&p.ID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// DeleteProject tears down one tenant: pool, vector index, registry row, and
// the project directory with all four entity kinds. Idempotent; other
// projects are untouched.
func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	if err := recall.ValidateProjectID(projectID); err != nil {
		return err
	}
	s.mu.Lock()
	if p, ok := s.pools[projectID]; ok {
		p.Close()
		delete(s.pools, projectID)
	}
	delete(s.readOnly, projectID)
	s.mu.Unlock()

	s.indexes.Remove(projectID)

	if _, err := s.registry.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, projectID); err != nil {
		return fmt.Errorf("deregister project: %w", err)
	}
	if err := os.RemoveAll(filepath.Join(s.root, projectID)); err != nil {
		return fmt.Errorf("remove project dir: %w", err)
	}
	s.logger.Info("sqlite: project deleted", "project_id", projectID)
	return nil
}

// --- per-project plumbing ---

// pool returns (lazily opening) the connection pool for a project.
func (s *Store) pool(ctx context.Context, projectID string) (*Pool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("store closed")
	}
	if p, ok := s.pools[projectID]; ok {
		s.mu.Unlock()
		return p, nil
	}
	s.mu.Unlock()

	dir := filepath.Join(s.root, projectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create project dir: %w", err)
	}
	p, err := NewPool(filepath.Join(dir, "relational.db"), s.poolSize, s.logger)
	if err != nil {
		return nil, err
	}
	err = p.With(ctx, func(h *Handle) error {
		return initSchema(ctx, h.DB(), projectSchema)
	})
	if err != nil {
		p.Close()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.pools[projectID]; ok {
		// Lost the race; keep the first pool.
		go p.Close()
		return existing, nil
	}
	s.pools[projectID] = p
	return p, nil
}

// writeGuard validates the project, refuses writes to projects frozen by a
// corruption finding, and registers the project on first write.
func (s *Store) writeGuard(ctx context.Context, projectID string) (*Pool, error) {
	if err := recall.ValidateProjectID(projectID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	frozen := s.readOnly[projectID]
	s.mu.Unlock()
	if frozen {
		return nil, recall.E(recall.KindCorruption,
			"project %s is read-only after a corruption finding", projectID)
	}
	if err := s.EnsureProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.pool(ctx, projectID)
}

// readPool validates the project and returns its pool; unknown projects
// report not_found.
func (s *Store) readPool(ctx context.Context, projectID string) (*Pool, error) {
	if err := recall.ValidateProjectID(projectID); err != nil {
		return nil, err
	}
	var one int
	err := s.registry.QueryRowContext(ctx,
		`SELECT 1 FROM projects WHERE id = ?`, projectID).Scan(&one)
	if err == sql.ErrNoRows {
		return nil, recall.E(recall.KindNotFound, "project %s not found", projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup project: %w", err)
	}
	return s.pool(ctx, projectID)
}

// markCorrupt freezes a project in memory and returns a corruption error.
// Operator intervention (restart after repair) clears the flag.
func (s *Store) markCorrupt(projectID, detail string) error {
	s.mu.Lock()
	s.readOnly[projectID] = true
	s.mu.Unlock()
	s.logger.Error("sqlite: corruption detected, project frozen",
		"project_id", projectID, "detail", detail)
	return recall.E(recall.KindCorruption, "project %s: %s", projectID, detail)
}

// errKind maps driver errors to structured kinds where the text allows.
func errKind(err error) recall.Kind {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if strings.Contains(msg, "disk is full") || strings.Contains(msg, "database or disk is full") {
		return recall.KindExhausted
	}
	return recall.KindInternal
}

// --- shared helpers ---

// startOfUTCDay returns the Unix second beginning the UTC day containing ts.
func startOfUTCDay(ts int64) int64 {
	t := time.Unix(ts, 0).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix()
}

// validateLabel enforces the syntactic contract for scopes and categories:
// non-empty, at most 64 characters. The value set is open.
func validateLabel(name, v string) error {
	if v == "" {
		return recall.E(recall.KindInvalidInput, "%s must be non-empty", name)
	}
	if len(v) > 64 {
		return recall.E(recall.KindInvalidInput, "%s exceeds 64 chars", name)
	}
	return nil
}

// serializeEmbedding converts []float32 to a JSON array string.
func serializeEmbedding(embedding []float32) string {
	data, _ := json.Marshal(embedding)
	return string(data)
}

// deserializeEmbedding parses a JSON array string back to []float32.
func deserializeEmbedding(s string) ([]float32, error) {
	var v []float32
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}

// cosineSimilarity computes the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}
