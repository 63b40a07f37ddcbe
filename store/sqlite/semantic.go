package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nevindra/recall"
)

func (s *Store) validateDocument(doc recall.Document, chunks []recall.Chunk) error {
	if err := recall.ValidateProjectID(doc.ProjectID); err != nil {
		return err
	}
	if doc.Source == "" {
		return recall.E(recall.KindInvalidInput, "document source must be non-empty")
	}
	if len(chunks) == 0 {
		return recall.E(recall.KindInvalidInput, "document has no chunks")
	}
	for i, c := range chunks {
		if c.Text == "" {
			return recall.E(recall.KindInvalidInput, "chunk %d has empty text", i)
		}
		if c.Ordinal != i {
			return recall.E(recall.KindInvalidInput, "chunk ordinals must be contiguous from 0, got %d at position %d", c.Ordinal, i)
		}
		if len(c.Embedding) != s.dim {
			return recall.E(recall.KindInvalidInput,
				"chunk %d embedding has dimension %d, store wants %d", i, len(c.Embedding), s.dim)
		}
	}
	return nil
}

// AddDocument stores a document and its chunks all-or-nothing. Vectors land
// in the index first; if the relational commit then fails they are scrubbed,
// and a leftover orphan is skipped at search time anyway because the chunk
// join finds no row.
func (s *Store) AddDocument(ctx context.Context, doc recall.Document, chunks []recall.Chunk) error {
	start := time.Now()
	if err := s.validateDocument(doc, chunks); err != nil {
		return err
	}
	pool, err := s.writeGuard(ctx, doc.ProjectID)
	if err != nil {
		return err
	}
	idx, err := s.indexes.Get(ctx, doc.ProjectID)
	if err != nil {
		return err
	}

	if doc.ID == "" {
		doc.ID = recall.NewID()
	}
	doc.IngestedAt = recall.NowUnix()

	entries := make([]vectorEntry, len(chunks))
	for i := range chunks {
		if chunks[i].ID == "" {
			chunks[i].ID = recall.NewID()
		}
		chunks[i].DocID = doc.ID
		chunks[i].ProjectID = doc.ProjectID
		entries[i] = vectorEntry{chunkID: chunks[i].ID, docID: doc.ID, embedding: chunks[i].Embedding}
	}
	if err := idx.Add(ctx, entries); err != nil {
		return fmt.Errorf("index document: %w", err)
	}

	err = pool.With(ctx, func(h *Handle) error {
		tx, err := h.DB().BeginTx(ctx, nil)
		if err != nil {
			h.MarkBroken()
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		_, err = tx.ExecContext(ctx,
			`INSERT INTO documents (id, project_id, source, source_type, metadata, ingested_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			doc.ID, doc.ProjectID, doc.Source, doc.SourceType, marshalMeta(doc.Metadata), doc.IngestedAt)
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		for _, c := range chunks {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO chunks (id, doc_id, project_id, text, ordinal, metadata, inserted_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				c.ID, c.DocID, c.ProjectID, c.Text, c.Ordinal, marshalMeta(c.Metadata), doc.IngestedAt)
			if err != nil {
				return fmt.Errorf("insert chunk: %w", err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		// Roll back the vectors already written for this document.
		if derr := idx.DeleteDoc(context.WithoutCancel(ctx), doc.ID); derr != nil {
			s.logger.Warn("sqlite: orphan vectors left after failed ingest",
				"project_id", doc.ProjectID, "doc_id", doc.ID, "error", derr)
		}
		if k := errKind(err); k == recall.KindExhausted {
			return recall.Wrap(k, err, "add document")
		}
		return err
	}
	s.logger.Debug("sqlite: document added",
		"project_id", doc.ProjectID, "doc_id", doc.ID, "chunks", len(chunks),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Search runs vector search over the project's index, joins the winning
// chunks back in, and applies metadata equality predicates. With a filter in
// play the index is oversampled so post-filtering can still fill topK.
func (s *Store) Search(ctx context.Context, projectID string, queryEmbedding []float32, topK int, filter recall.SearchFilter) ([]recall.ScoredChunk, error) {
	start := time.Now()
	if len(queryEmbedding) != s.dim {
		return nil, recall.E(recall.KindInvalidInput,
			"query embedding has dimension %d, store wants %d", len(queryEmbedding), s.dim)
	}
	if topK <= 0 {
		topK = 10
	}
	pool, err := s.readPool(ctx, projectID)
	if err != nil {
		return nil, err
	}
	idx, err := s.indexes.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}

	fetch := topK
	if len(filter) > 0 {
		fetch = topK * 4
	}
	candidates, err := idx.Search(ctx, queryEmbedding, fetch)
	if err != nil {
		var corrupt *errCorrupt
		if errors.As(err, &corrupt) {
			return nil, s.markCorrupt(projectID, corrupt.detail)
		}
		return nil, err
	}

	var results []recall.ScoredChunk
	err = pool.With(ctx, func(h *Handle) error {
		for _, cand := range candidates {
			c, err := scanChunk(ctx, h.DB(), projectID, cand.chunkID)
			if err == sql.ErrNoRows {
				// Orphan vector from a failed ingest; not an answer.
				continue
			}
			if err != nil {
				return err
			}
			if !matchesFilter(c.Metadata, filter) {
				continue
			}
			results = append(results, recall.ScoredChunk{Chunk: c, Score: cand.score})
			if len(results) == topK {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sqlite: semantic search",
		"project_id", projectID, "top_k", topK, "candidates", len(candidates),
		"results", len(results), "duration_ms", time.Since(start).Milliseconds())
	return results, nil
}

func scanChunk(ctx context.Context, db *sql.DB, projectID, chunkID string) (recall.Chunk, error) {
	var c recall.Chunk
	var meta sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT id, doc_id, project_id, text, ordinal, metadata
		 FROM chunks WHERE project_id = ? AND id = ?`, projectID, chunkID).
		Scan(&c.ID, &c.DocID, &c.ProjectID, &c.Text, &c.Ordinal, &meta)
	if err != nil {
		return c, err
	}
	c.Metadata = unmarshalMeta(meta)
	return c, nil
}

func matchesFilter(meta map[string]string, filter recall.SearchFilter) bool {
	for k, want := range filter {
		if meta[k] != want {
			return false
		}
	}
	return true
}

// DeleteDocument removes a document with its chunks, then scrubs the vector
// index. A stray vector surviving an index failure is skipped at search time.
func (s *Store) DeleteDocument(ctx context.Context, projectID, docID string) error {
	pool, err := s.writeGuard(ctx, projectID)
	if err != nil {
		return err
	}
	err = pool.With(ctx, func(h *Handle) error {
		tx, err := h.DB().BeginTx(ctx, nil)
		if err != nil {
			h.MarkBroken()
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		res, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE project_id = ? AND id = ?`, projectID, docID)
		if err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return recall.E(recall.KindNotFound, "document %s not found", docID)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, docID); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return err
	}

	idx, err := s.indexes.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if err := idx.DeleteDoc(ctx, docID); err != nil {
		s.logger.Warn("sqlite: stray vectors left after document delete",
			"project_id", projectID, "doc_id", docID, "error", err)
	}
	s.logger.Debug("sqlite: document deleted", "project_id", projectID, "doc_id", docID)
	return nil
}

// GetChunk fetches one chunk by ID.
func (s *Store) GetChunk(ctx context.Context, projectID, chunkID string) (recall.Chunk, error) {
	pool, err := s.readPool(ctx, projectID)
	if err != nil {
		return recall.Chunk{}, err
	}
	var c recall.Chunk
	err = pool.With(ctx, func(h *Handle) error {
		var err error
		c, err = scanChunk(ctx, h.DB(), projectID, chunkID)
		if err == sql.ErrNoRows {
			return recall.E(recall.KindNotFound, "chunk %s not found", chunkID)
		}
		if err != nil {
			return fmt.Errorf("load chunk: %w", err)
		}
		return nil
	})
	return c, err
}

// ListDocuments returns the project's documents, newest first, with chunk
// counts filled in.
func (s *Store) ListDocuments(ctx context.Context, projectID string) ([]recall.Document, error) {
	pool, err := s.readPool(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var docs []recall.Document
	err = pool.With(ctx, func(h *Handle) error {
		rows, err := h.DB().QueryContext(ctx,
			`SELECT d.id, d.project_id, d.source, d.source_type, d.metadata, d.ingested_at,
			 (SELECT COUNT(*) FROM chunks c WHERE c.doc_id = d.id)
			 FROM documents d WHERE d.project_id = ?
			 ORDER BY d.ingested_at DESC, d.id`, projectID)
		if err != nil {
			return fmt.Errorf("list documents: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var d recall.Document
			var meta sql.NullString
			if err := rows.Scan(&d.ID, &d.ProjectID, &d.Source, &d.SourceType, &meta,
				&d.IngestedAt, &d.ChunkCount); err != nil {
				return fmt.Errorf("scan document: %w", err)
			}
			d.Metadata = unmarshalMeta(meta)
			docs = append(docs, d)
		}
		return rows.Err()
	})
	return docs, err
}

func marshalMeta(m map[string]string) any {
	if len(m) == 0 {
		return nil
	}
	data, _ := json.Marshal(m)
	return string(data)
}

func unmarshalMeta(s sql.NullString) map[string]string {
	if !s.Valid || s.String == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil
	}
	return m
}
