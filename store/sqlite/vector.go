package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// VectorIndex is one project's vector index: a SQLite file under
// <project>/semantic/ holding chunk embeddings, searched in-process with
// brute-force cosine similarity. Writes are serialized by a mutex; reads
// share the connection.
type VectorIndex struct {
	projectID string
	dim       int
	db        *sql.DB
	logger    *slog.Logger
	wmu       sync.Mutex
}

// vectorEntry pairs a chunk with its embedding for insertion.
type vectorEntry struct {
	chunkID   string
	docID     string
	embedding []float32
}

// scoredID is a search candidate before the chunk rows are joined in.
type scoredID struct {
	chunkID string
	score   float32
}

func openVectorIndex(ctx context.Context, dir, projectID string, dim int, logger *slog.Logger) (*VectorIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "vectors.db"))
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := initSchema(ctx, db, vectorSchema); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("vector: index opened", "project_id", projectID, "dim", dim)
	return &VectorIndex{projectID: projectID, dim: dim, db: db, logger: logger}, nil
}

// Add inserts all entries in one transaction. Dimensions were validated by
// the caller; a mismatch here is a programming error and aborts the batch.
func (v *VectorIndex) Add(ctx context.Context, entries []vectorEntry) error {
	v.wmu.Lock()
	defer v.wmu.Unlock()

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, e := range entries {
		if len(e.embedding) != v.dim {
			return fmt.Errorf("vector %s: dimension %d, index wants %d", e.chunkID, len(e.embedding), v.dim)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO vectors (chunk_id, doc_id, embedding) VALUES (?, ?, ?)`,
			e.chunkID, e.docID, serializeEmbedding(e.embedding))
		if err != nil {
			return fmt.Errorf("insert vector: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteDoc removes all vectors belonging to a document.
func (v *VectorIndex) DeleteDoc(ctx context.Context, docID string) error {
	v.wmu.Lock()
	defer v.wmu.Unlock()
	_, err := v.db.ExecContext(ctx, `DELETE FROM vectors WHERE doc_id = ?`, docID)
	if err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return nil
}

// Search scans the index and returns the topK chunk IDs by cosine
// similarity, score descending. A stored vector whose dimension no longer
// matches the index is a corruption finding, reported via errCorrupt.
func (v *VectorIndex) Search(ctx context.Context, query []float32, topK int) ([]scoredID, error) {
	rows, err := v.db.QueryContext(ctx, `SELECT chunk_id, embedding FROM vectors`)
	if err != nil {
		return nil, fmt.Errorf("scan vectors: %w", err)
	}
	defer rows.Close()

	var results []scoredID
	scanned := 0
	for rows.Next() {
		var chunkID, embJSON string
		if err := rows.Scan(&chunkID, &embJSON); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		scanned++
		stored, err := deserializeEmbedding(embJSON)
		if err != nil || len(stored) != v.dim {
			return nil, &errCorrupt{detail: fmt.Sprintf("vector %s has dimension %d, index wants %d", chunkID, len(stored), v.dim)}
		}
		results = append(results, scoredID{chunkID: chunkID, score: cosineSimilarity(query, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vectors: %w", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > topK {
		results = results[:topK]
	}
	v.logger.Debug("vector: search", "project_id", v.projectID, "scanned", scanned, "returned", len(results))
	return results, nil
}

// Count returns the number of stored vectors.
func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := v.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n)
	return n, err
}

// Close closes the index file.
func (v *VectorIndex) Close() error { return v.db.Close() }

// errCorrupt marks an on-disk invariant violation inside the index.
type errCorrupt struct{ detail string }

func (e *errCorrupt) Error() string { return e.detail }

// --- index manager ---

// indexManager owns per-project vector index handles: lazy-create on first
// access, cached, dropped on project removal. The per-project disk layout
// guarantees a query against one project cannot observe another's vectors.
type indexManager struct {
	root   string
	dim    int
	logger *slog.Logger

	mu      sync.Mutex
	indexes map[string]*VectorIndex
}

func newIndexManager(root string, dim int, logger *slog.Logger) *indexManager {
	return &indexManager{root: root, dim: dim, logger: logger, indexes: make(map[string]*VectorIndex)}
}

// Get returns the project's index, creating it on first access at
// <root>/<project_id>/semantic/.
func (m *indexManager) Get(ctx context.Context, projectID string) (*VectorIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx, ok := m.indexes[projectID]; ok {
		return idx, nil
	}
	dir := filepath.Join(m.root, projectID, "semantic")
	idx, err := openVectorIndex(ctx, dir, projectID, m.dim, m.logger)
	if err != nil {
		return nil, err
	}
	m.indexes[projectID] = idx
	return idx, nil
}

// Remove drops the project's handle. Idempotent; on-disk files are the
// caller's to delete.
func (m *indexManager) Remove(projectID string) {
	m.mu.Lock()
	idx, ok := m.indexes[projectID]
	delete(m.indexes, projectID)
	m.mu.Unlock()
	if ok {
		idx.Close()
		m.logger.Debug("vector: index released", "project_id", projectID)
	}
}

// CloseAll releases every handle, for process shutdown.
func (m *indexManager) CloseAll() {
	m.mu.Lock()
	indexes := m.indexes
	m.indexes = map[string]*VectorIndex{}
	m.mu.Unlock()
	for _, idx := range indexes {
		idx.Close()
	}
}
