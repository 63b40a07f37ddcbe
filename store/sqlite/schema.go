package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// registrySchema backs the root-level registry.db.
var registrySchema = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	)`,
}

// projectSchema backs each project's relational.db.
var projectSchema = []string{
	`CREATE TABLE IF NOT EXISTS facts (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		scope TEXT NOT NULL,
		category TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		confidence REAL NOT NULL,
		source TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		deleted INTEGER NOT NULL DEFAULT 0
	)`,
	// One active row per key; soft-deleted rows fall out of the index so the
	// key can be reused.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_facts_key
		ON facts(project_id, scope, category, key) WHERE deleted = 0`,
	`CREATE TABLE IF NOT EXISTS fact_history (
		fact_id TEXT NOT NULL REFERENCES facts(id),
		ts INTEGER NOT NULL,
		prev_value TEXT NOT NULL,
		prev_confidence REAL NOT NULL,
		reason TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fact_history_fact ON fact_history(fact_id)`,
	`CREATE TABLE IF NOT EXISTS episodes (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		situation TEXT NOT NULL,
		action TEXT NOT NULL,
		outcome TEXT NOT NULL,
		lesson TEXT NOT NULL,
		lesson_type TEXT NOT NULL,
		confidence REAL NOT NULL,
		quality REAL NOT NULL,
		fingerprint TEXT NOT NULL,
		ref_count INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_episodes_fp ON episodes(project_id, fingerprint)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		source TEXT NOT NULL,
		source_type TEXT NOT NULL,
		metadata TEXT,
		ingested_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL REFERENCES documents(id),
		project_id TEXT NOT NULL,
		text TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		metadata TEXT,
		inserted_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id)`,
}

// vectorSchema backs each project's semantic/vectors.db index file.
var vectorSchema = []string{
	`CREATE TABLE IF NOT EXISTS vectors (
		chunk_id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		embedding TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vectors_doc ON vectors(doc_id)`,
}

// initSchema applies DDL statements; all statements are idempotent.
func initSchema(ctx context.Context, db *sql.DB, ddl []string) error {
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
