// Package postgres implements recall.SemanticStore using PostgreSQL with
// pgvector for native vector similarity search. It is the server-grade
// alternative to the embedded SQLite backend: one database, per-project
// isolation enforced through project_id predicates on every statement, and
// HNSW indexes in place of brute-force scans.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/recall"
)

// Store implements recall.SemanticStore backed by PostgreSQL with pgvector.
type Store struct {
	pool *pgxpool.Pool
	cfg  pgConfig
}

// pgConfig holds store configuration set via Option functions.
type pgConfig struct {
	embeddingDimension int // 0 = untyped vector
	hnswM              int // 0 = pgvector default (16)
	hnswEFConstruction int // 0 = pgvector default (64)
	hnswEFSearch       int // 0 = pgvector default (40)
}

// Option configures a PostgreSQL Store.
type Option func(*pgConfig)

// WithEmbeddingDimension sets the vector column dimension (e.g. 384, 768).
// When set, CREATE TABLE uses vector(N) instead of untyped vector, catching
// dimension mismatches at insert time. Only affects new table creation.
func WithEmbeddingDimension(dim int) Option {
	return func(c *pgConfig) { c.embeddingDimension = dim }
}

// WithHNSWM sets the HNSW m parameter (max connections per node).
// Only affects index creation (CREATE INDEX IF NOT EXISTS).
func WithHNSWM(m int) Option {
	return func(c *pgConfig) { c.hnswM = m }
}

// WithEFConstruction sets the HNSW ef_construction parameter.
// Only affects index creation.
func WithEFConstruction(ef int) Option {
	return func(c *pgConfig) { c.hnswEFConstruction = ef }
}

// WithEFSearch sets the HNSW ef_search parameter, applied during Init.
func WithEFSearch(ef int) Option {
	return func(c *pgConfig) { c.hnswEFSearch = ef }
}

var _ recall.SemanticStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	var cfg pgConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &Store{pool: pool, cfg: cfg}
}

// vectorType returns "vector" or "vector(N)" depending on config.
func (s *Store) vectorType() string {
	if s.cfg.embeddingDimension > 0 {
		return fmt.Sprintf("vector(%d)", s.cfg.embeddingDimension)
	}
	return "vector"
}

// hnswWithClause returns the WITH (...) clause for HNSW index creation,
// or an empty string if no tuning params are set.
func (s *Store) hnswWithClause() string {
	var parts []string
	if s.cfg.hnswM > 0 {
		parts = append(parts, fmt.Sprintf("m = %d", s.cfg.hnswM))
	}
	if s.cfg.hnswEFConstruction > 0 {
		parts = append(parts, fmt.Sprintf("ef_construction = %d", s.cfg.hnswEFConstruction))
	}
	if len(parts) == 0 {
		return ""
	}
	return " WITH (" + strings.Join(parts, ", ") + ")"
}

// Init creates the pgvector extension, tables, and indexes.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	vtype := s.vectorType()
	hnswWith := s.hnswWithClause()

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			source TEXT NOT NULL,
			source_type TEXT NOT NULL,
			metadata JSONB,
			ingested_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS documents_project_idx ON documents(project_id, ingested_at DESC)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			doc_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			content TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			embedding %s,
			metadata JSONB
		)`, vtype),
		`CREATE INDEX IF NOT EXISTS chunks_doc_idx ON chunks(doc_id)`,
		`CREATE INDEX IF NOT EXISTS chunks_project_idx ON chunks(project_id)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS chunks_embedding_idx ON chunks USING hnsw (embedding vector_cosine_ops)%s`, hnswWith),
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}

	if s.cfg.hnswEFSearch > 0 {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("SET hnsw.ef_search = %d", s.cfg.hnswEFSearch)); err != nil {
			return fmt.Errorf("postgres: set ef_search: %w", err)
		}
	}
	return nil
}

// AddDocument inserts a document and all its chunks in a single transaction.
func (s *Store) AddDocument(ctx context.Context, doc recall.Document, chunks []recall.Chunk) error {
	if err := recall.ValidateProjectID(doc.ProjectID); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return recall.E(recall.KindInvalidInput, "document has no chunks")
	}
	if doc.ID == "" {
		doc.ID = recall.NewID()
	}
	doc.IngestedAt = recall.NowUnix()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO documents (id, project_id, source, source_type, metadata, ingested_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		doc.ID, doc.ProjectID, doc.Source, doc.SourceType, metaJSON(doc.Metadata), doc.IngestedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert document: %w", err)
	}

	for i, chunk := range chunks {
		if chunk.ID == "" {
			chunk.ID = recall.NewID()
		}
		if chunk.Ordinal != i {
			return recall.E(recall.KindInvalidInput,
				"chunk ordinals must be contiguous from 0, got %d at position %d", chunk.Ordinal, i)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO chunks (id, doc_id, project_id, content, ordinal, embedding, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6::vector, $7::jsonb)`,
			chunk.ID, doc.ID, doc.ProjectID, chunk.Text, chunk.Ordinal,
			serializeEmbedding(chunk.Embedding), metaJSON(chunk.Metadata))
		if err != nil {
			return fmt.Errorf("postgres: insert chunk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// Search performs vector similarity search within one project using
// pgvector's cosine distance operator, post-filtered by metadata predicates.
func (s *Store) Search(ctx context.Context, projectID string, queryEmbedding []float32, topK int, filter recall.SearchFilter) ([]recall.ScoredChunk, error) {
	if err := recall.ValidateProjectID(projectID); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}
	embStr := serializeEmbedding(queryEmbedding)

	where := `project_id = $2 AND embedding IS NOT NULL`
	args := []any{embStr, projectID, topK}
	p := 4
	for k, v := range filter {
		where += fmt.Sprintf(` AND metadata->>$%d = $%d`, p, p+1)
		args = append(args, k, v)
		p += 2
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, doc_id, project_id, content, ordinal, metadata,
		        1 - (embedding <=> $1::vector) AS score
		 FROM chunks
		 WHERE `+where+`
		 ORDER BY embedding <=> $1::vector
		 LIMIT $3`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: search chunks: %w", err)
	}
	defer rows.Close()

	var results []recall.ScoredChunk
	for rows.Next() {
		var c recall.Chunk
		var meta []byte
		var score float32
		if err := rows.Scan(&c.ID, &c.DocID, &c.ProjectID, &c.Text, &c.Ordinal, &meta, &score); err != nil {
			return nil, fmt.Errorf("postgres: scan chunk: %w", err)
		}
		c.Metadata = parseMeta(meta)
		results = append(results, recall.ScoredChunk{Chunk: c, Score: score})
	}
	return results, rows.Err()
}

// DeleteDocument removes a document and all its chunks in a single
// transaction. A missing document reports not_found.
func (s *Store) DeleteDocument(ctx context.Context, projectID, docID string) error {
	if err := recall.ValidateProjectID(projectID); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE project_id = $1 AND doc_id = $2`, projectID, docID); err != nil {
		return fmt.Errorf("postgres: delete chunks: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM documents WHERE project_id = $1 AND id = $2`, projectID, docID)
	if err != nil {
		return fmt.Errorf("postgres: delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return recall.E(recall.KindNotFound, "document %s not found", docID)
	}
	return tx.Commit(ctx)
}

// GetChunk fetches one chunk by ID within a project.
func (s *Store) GetChunk(ctx context.Context, projectID, chunkID string) (recall.Chunk, error) {
	if err := recall.ValidateProjectID(projectID); err != nil {
		return recall.Chunk{}, err
	}
	var c recall.Chunk
	var meta []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, doc_id, project_id, content, ordinal, metadata
		 FROM chunks WHERE project_id = $1 AND id = $2`, projectID, chunkID).
		Scan(&c.ID, &c.DocID, &c.ProjectID, &c.Text, &c.Ordinal, &meta)
	if err == pgx.ErrNoRows {
		return recall.Chunk{}, recall.E(recall.KindNotFound, "chunk %s not found", chunkID)
	}
	if err != nil {
		return recall.Chunk{}, fmt.Errorf("postgres: get chunk: %w", err)
	}
	c.Metadata = parseMeta(meta)
	return c, nil
}

// ListDocuments returns the project's documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, projectID string) ([]recall.Document, error) {
	if err := recall.ValidateProjectID(projectID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT d.id, d.project_id, d.source, d.source_type, d.metadata, d.ingested_at,
		 (SELECT COUNT(*) FROM chunks c WHERE c.doc_id = d.id)
		 FROM documents d WHERE d.project_id = $1
		 ORDER BY d.ingested_at DESC, d.id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list documents: %w", err)
	}
	defer rows.Close()

	var docs []recall.Document
	for rows.Next() {
		var d recall.Document
		var meta []byte
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.Source, &d.SourceType, &meta, &d.IngestedAt, &d.ChunkCount); err != nil {
			return nil, fmt.Errorf("postgres: scan document: %w", err)
		}
		d.Metadata = parseMeta(meta)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Close is a no-op. The caller owns the pool and manages its lifecycle.
func (s *Store) Close() error {
	return nil
}

// --- Helpers ---

func metaJSON(m map[string]string) *string {
	if len(m) == 0 {
		return nil
	}
	data, _ := json.Marshal(m)
	v := string(data)
	return &v
}

func parseMeta(data []byte) map[string]string {
	if len(data) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// serializeEmbedding converts []float32 to a string like "[0.1,0.2,0.3]"
// suitable for pgvector's text input format.
func serializeEmbedding(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
