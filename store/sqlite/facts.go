package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nevindra/recall"
)

// validateFact checks the syntactic contract for an incoming fact.
func validateFact(f recall.Fact) error {
	if err := recall.ValidateProjectID(f.ProjectID); err != nil {
		return err
	}
	for name, v := range map[string]string{"scope": f.Scope, "category": f.Category, "key": f.Key} {
		if err := validateLabel(name, v); err != nil {
			return err
		}
	}
	if f.Value == "" {
		return recall.E(recall.KindInvalidInput, "value must be non-empty")
	}
	if recall.SourceRank(f.Source) == 0 {
		return recall.E(recall.KindInvalidInput, "unknown source %q", f.Source)
	}
	return nil
}

// clamp01 forces a confidence-like value into [0, 1]. Out-of-range input is
// clamped, never rejected.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// AddFact upserts a fact. The winner of a collision is decided by confidence
// first, then source rank; a full tie goes to the newer write. A losing write
// still leaves an observation entry in the history so repeated sightings of a
// value are auditable.
func (s *Store) AddFact(ctx context.Context, f recall.Fact) (recall.AddFactResult, error) {
	start := time.Now()
	if err := validateFact(f); err != nil {
		return recall.AddFactResult{}, err
	}
	f.Confidence = clamp01(f.Confidence)
	pool, err := s.writeGuard(ctx, f.ProjectID)
	if err != nil {
		return recall.AddFactResult{}, err
	}

	var result recall.AddFactResult
	err = pool.With(ctx, func(h *Handle) error {
		tx, err := h.DB().BeginTx(ctx, nil)
		if err != nil {
			h.MarkBroken()
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		now := recall.NowUnix()
		var existing recall.Fact
		err = tx.QueryRowContext(ctx,
			`SELECT id, value, confidence, source, created_at FROM facts
			 WHERE project_id = ? AND scope = ? AND category = ? AND key = ? AND deleted = 0`,
			f.ProjectID, f.Scope, f.Category, f.Key).
			Scan(&existing.ID, &existing.Value, &existing.Confidence, &existing.Source, &existing.CreatedAt)

		switch {
		case err == sql.ErrNoRows:
			f.ID = recall.NewID()
			f.CreatedAt = now
			f.UpdatedAt = now
			_, err = tx.ExecContext(ctx,
				`INSERT INTO facts (id, project_id, scope, category, key, value, confidence, source, created_at, updated_at, deleted)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
				f.ID, f.ProjectID, f.Scope, f.Category, f.Key, f.Value, f.Confidence, f.Source, f.CreatedAt, f.UpdatedAt)
			if err != nil {
				return fmt.Errorf("insert fact: %w", err)
			}
			if err := appendHistory(ctx, tx, f.ID, now, "", 0, "created"); err != nil {
				return err
			}
			result = recall.AddFactResult{Fact: f}

		case err != nil:
			h.MarkBroken()
			return fmt.Errorf("lookup fact: %w", err)

		default:
			wins := f.Confidence > existing.Confidence ||
				recall.SourceRank(f.Source) > recall.SourceRank(existing.Source) ||
				(f.Confidence == existing.Confidence &&
					recall.SourceRank(f.Source) == recall.SourceRank(existing.Source))
			if !wins {
				if err := appendHistory(ctx, tx, existing.ID, now, existing.Value, existing.Confidence, "observed"); err != nil {
					return err
				}
				kept, err := loadFact(ctx, tx, f.ProjectID, existing.ID)
				if err != nil {
					return err
				}
				result = recall.AddFactResult{Fact: kept, Ignored: true}
				break
			}
			_, err = tx.ExecContext(ctx,
				`UPDATE facts SET value = ?, confidence = ?, source = ?, updated_at = ? WHERE id = ?`,
				f.Value, f.Confidence, f.Source, now, existing.ID)
			if err != nil {
				return fmt.Errorf("update fact: %w", err)
			}
			if err := appendHistory(ctx, tx, existing.ID, now, existing.Value, existing.Confidence, "updated"); err != nil {
				return err
			}
			f.ID = existing.ID
			f.CreatedAt = existing.CreatedAt
			f.UpdatedAt = now
			result = recall.AddFactResult{Fact: f, Replaced: true}
		}

		return tx.Commit()
	})
	if err != nil {
		if k := errKind(err); k == recall.KindExhausted {
			return recall.AddFactResult{}, recall.Wrap(k, err, "add fact")
		}
		return recall.AddFactResult{}, err
	}
	s.logger.Debug("sqlite: fact added",
		"project_id", f.ProjectID, "scope", f.Scope, "key", f.Key,
		"replaced", result.Replaced, "ignored", result.Ignored,
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

func appendHistory(ctx context.Context, tx *sql.Tx, factID string, ts int64, prevValue string, prevConf float64, reason string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO fact_history (fact_id, ts, prev_value, prev_confidence, reason) VALUES (?, ?, ?, ?, ?)`,
		factID, ts, prevValue, prevConf, reason)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func loadFact(ctx context.Context, tx *sql.Tx, projectID, factID string) (recall.Fact, error) {
	var f recall.Fact
	err := tx.QueryRowContext(ctx,
		`SELECT id, project_id, scope, category, key, value, confidence, source, created_at, updated_at
		 FROM facts WHERE project_id = ? AND id = ? AND deleted = 0`,
		projectID, factID).
		Scan(&f.ID, &f.ProjectID, &f.Scope, &f.Category, &f.Key, &f.Value,
			&f.Confidence, &f.Source, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return f, recall.E(recall.KindNotFound, "fact %s not found", factID)
	}
	if err != nil {
		return f, fmt.Errorf("load fact: %w", err)
	}
	return f, nil
}

// QueryFacts returns active facts matching the query, ordered by confidence
// descending then recency.
func (s *Store) QueryFacts(ctx context.Context, projectID string, q recall.FactQuery) ([]recall.Fact, error) {
	start := time.Now()
	pool, err := s.readPool(ctx, projectID)
	if err != nil {
		return nil, err
	}

	where := `project_id = ? AND deleted = 0 AND confidence >= ?`
	args := []any{projectID, q.MinConfidence}
	if q.Scope != "" {
		where += ` AND scope = ?`
		args = append(args, q.Scope)
	}
	if q.Category != "" {
		where += ` AND category = ?`
		args = append(args, q.Category)
	}
	if q.Key != "" {
		where += ` AND key = ?`
		args = append(args, q.Key)
	}
	query := `SELECT id, project_id, scope, category, key, value, confidence, source, created_at, updated_at
		 FROM facts WHERE ` + where + ` ORDER BY confidence DESC, updated_at DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	var facts []recall.Fact
	err = pool.With(ctx, func(h *Handle) error {
		rows, err := h.DB().QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query facts: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var f recall.Fact
			if err := rows.Scan(&f.ID, &f.ProjectID, &f.Scope, &f.Category, &f.Key, &f.Value,
				&f.Confidence, &f.Source, &f.CreatedAt, &f.UpdatedAt); err != nil {
				return fmt.Errorf("scan fact: %w", err)
			}
			facts = append(facts, f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sqlite: facts queried",
		"project_id", projectID, "scope", q.Scope, "count", len(facts),
		"duration_ms", time.Since(start).Milliseconds())
	return facts, nil
}

// ListScopes returns the distinct scopes with at least one active fact.
func (s *Store) ListScopes(ctx context.Context, projectID string) ([]string, error) {
	return s.listDistinct(ctx, projectID,
		`SELECT DISTINCT scope FROM facts WHERE project_id = ? AND deleted = 0 ORDER BY scope`,
		projectID)
}

// ListCategories returns the distinct categories within a scope.
func (s *Store) ListCategories(ctx context.Context, projectID, scope string) ([]string, error) {
	if err := validateLabel("scope", scope); err != nil {
		return nil, err
	}
	return s.listDistinct(ctx, projectID,
		`SELECT DISTINCT category FROM facts WHERE project_id = ? AND scope = ? AND deleted = 0 ORDER BY category`,
		projectID, scope)
}

func (s *Store) listDistinct(ctx context.Context, projectID, query string, args ...any) ([]string, error) {
	pool, err := s.readPool(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var values []string
	err = pool.With(ctx, func(h *Handle) error {
		rows, err := h.DB().QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list distinct: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return fmt.Errorf("scan value: %w", err)
			}
			values = append(values, v)
		}
		return rows.Err()
	})
	return values, err
}

// DeleteFact soft-deletes a fact. The row stays for the audit trail; the key
// becomes reusable because the uniqueness index covers active rows only.
func (s *Store) DeleteFact(ctx context.Context, projectID, factID string) error {
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

		f, err := loadFact(ctx, tx, projectID, factID)
		if err != nil {
			return err
		}
		now := recall.NowUnix()
		if _, err := tx.ExecContext(ctx,
			`UPDATE facts SET deleted = 1, updated_at = ? WHERE id = ?`, now, f.ID); err != nil {
			return fmt.Errorf("delete fact: %w", err)
		}
		if err := appendHistory(ctx, tx, f.ID, now, f.Value, f.Confidence, "deleted"); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return err
	}
	s.logger.Debug("sqlite: fact deleted", "project_id", projectID, "fact_id", factID)
	return nil
}

// FactHistory returns the audit trail for a fact, oldest first. The fact may
// be soft-deleted; its trail remains readable.
func (s *Store) FactHistory(ctx context.Context, projectID, factID string) ([]recall.FactChange, error) {
	pool, err := s.readPool(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var changes []recall.FactChange
	err = pool.With(ctx, func(h *Handle) error {
		var one int
		err := h.DB().QueryRowContext(ctx,
			`SELECT 1 FROM facts WHERE project_id = ? AND id = ?`, projectID, factID).Scan(&one)
		if err == sql.ErrNoRows {
			return recall.E(recall.KindNotFound, "fact %s not found", factID)
		}
		if err != nil {
			return fmt.Errorf("lookup fact: %w", err)
		}

		rows, err := h.DB().QueryContext(ctx,
			`SELECT fact_id, ts, prev_value, prev_confidence, reason
			 FROM fact_history WHERE fact_id = ? ORDER BY ts, rowid`, factID)
		if err != nil {
			return fmt.Errorf("query history: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var c recall.FactChange
			if err := rows.Scan(&c.FactID, &c.Timestamp, &c.PrevValue, &c.PrevConfidence, &c.Reason); err != nil {
				return fmt.Errorf("scan change: %w", err)
			}
			changes = append(changes, c)
		}
		return rows.Err()
	})
	return changes, err
}
