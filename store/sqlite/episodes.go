package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nevindra/recall"
)

func validateEpisode(e recall.Episode) error {
	if err := recall.ValidateProjectID(e.ProjectID); err != nil {
		return err
	}
	for name, v := range map[string]string{
		"situation": e.Situation, "action": e.Action, "outcome": e.Outcome, "lesson": e.Lesson,
	} {
		if v == "" {
			return recall.E(recall.KindInvalidInput, "%s must be non-empty", name)
		}
	}
	switch e.LessonType {
	case recall.LessonPattern, recall.LessonAntipattern, recall.LessonProcedure, recall.LessonWarning:
	default:
		return recall.E(recall.KindInvalidInput, "unknown lesson type %q", e.LessonType)
	}
	return nil
}

// dedupFloor returns the lower updated_at bound inside which a matching
// fingerprint counts as a duplicate. Zero means no bound.
func (s *Store) dedupFloor(now int64) int64 {
	switch s.dedupMode {
	case recall.DedupPerDay:
		return startOfUTCDay(now)
	case recall.DedupPerSession:
		return s.sessionStart
	default:
		return 0
	}
}

// AddEpisode inserts an episode. A duplicate fingerprint inside the dedup
// window bumps the existing row's ref_count instead of inserting; an episode
// under the confidence floor is discarded without error.
func (s *Store) AddEpisode(ctx context.Context, e recall.Episode) (recall.AddEpisodeResult, error) {
	start := time.Now()
	if err := validateEpisode(e); err != nil {
		return recall.AddEpisodeResult{}, err
	}
	e.Confidence = clamp01(e.Confidence)
	e.Quality = clamp01(e.Quality)
	if e.Confidence < s.minEpisodeConf {
		s.logger.Debug("sqlite: episode discarded",
			"project_id", e.ProjectID, "confidence", e.Confidence, "floor", s.minEpisodeConf)
		return recall.AddEpisodeResult{Episode: e, Discarded: true}, nil
	}
	pool, err := s.writeGuard(ctx, e.ProjectID)
	if err != nil {
		return recall.AddEpisodeResult{}, err
	}

	e.Fingerprint = recall.EpisodeFingerprint(e.Situation, e.Action, e.Outcome)
	now := recall.NowUnix()
	floor := s.dedupFloor(now)

	var result recall.AddEpisodeResult
	err = pool.With(ctx, func(h *Handle) error {
		tx, err := h.DB().BeginTx(ctx, nil)
		if err != nil {
			h.MarkBroken()
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		var existingID string
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM episodes
			 WHERE project_id = ? AND fingerprint = ? AND updated_at >= ?
			 ORDER BY updated_at DESC LIMIT 1`,
			e.ProjectID, e.Fingerprint, floor).Scan(&existingID)

		switch {
		case err == sql.ErrNoRows:
			e.ID = recall.NewID()
			e.RefCount = 1
			e.CreatedAt = now
			e.UpdatedAt = now
			_, err = tx.ExecContext(ctx,
				`INSERT INTO episodes (id, project_id, situation, action, outcome, lesson, lesson_type,
				 confidence, quality, fingerprint, ref_count, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				e.ID, e.ProjectID, e.Situation, e.Action, e.Outcome, e.Lesson, e.LessonType,
				e.Confidence, e.Quality, e.Fingerprint, e.RefCount, e.CreatedAt, e.UpdatedAt)
			if err != nil {
				return fmt.Errorf("insert episode: %w", err)
			}
			result = recall.AddEpisodeResult{Episode: e}

		case err != nil:
			h.MarkBroken()
			return fmt.Errorf("lookup episode: %w", err)

		default:
			_, err = tx.ExecContext(ctx,
				`UPDATE episodes SET ref_count = ref_count + 1, updated_at = ? WHERE id = ?`,
				now, existingID)
			if err != nil {
				return fmt.Errorf("bump episode: %w", err)
			}
			merged, err := loadEpisode(ctx, tx, existingID)
			if err != nil {
				return err
			}
			result = recall.AddEpisodeResult{Episode: merged, Deduped: true}
		}

		return tx.Commit()
	})
	if err != nil {
		if k := errKind(err); k == recall.KindExhausted {
			return recall.AddEpisodeResult{}, recall.Wrap(k, err, "add episode")
		}
		return recall.AddEpisodeResult{}, err
	}
	s.logger.Debug("sqlite: episode added",
		"project_id", e.ProjectID, "lesson_type", e.LessonType,
		"deduped", result.Deduped, "ref_count", result.Episode.RefCount,
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

func loadEpisode(ctx context.Context, tx *sql.Tx, id string) (recall.Episode, error) {
	var e recall.Episode
	err := tx.QueryRowContext(ctx,
		`SELECT id, project_id, situation, action, outcome, lesson, lesson_type,
		 confidence, quality, fingerprint, ref_count, created_at, updated_at
		 FROM episodes WHERE id = ?`, id).
		Scan(&e.ID, &e.ProjectID, &e.Situation, &e.Action, &e.Outcome, &e.Lesson, &e.LessonType,
			&e.Confidence, &e.Quality, &e.Fingerprint, &e.RefCount, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return e, fmt.Errorf("load episode: %w", err)
	}
	return e, nil
}

// QueryEpisodes returns episodes matching the query, scored by
// confidence*quality and ordered by score descending then recency.
func (s *Store) QueryEpisodes(ctx context.Context, projectID string, q recall.EpisodeQuery) ([]recall.ScoredEpisode, error) {
	start := time.Now()
	pool, err := s.readPool(ctx, projectID)
	if err != nil {
		return nil, err
	}

	where := `project_id = ? AND confidence >= ? AND quality >= ?`
	args := []any{projectID, q.MinConfidence, q.MinQuality}
	if q.LessonType != "" {
		where += ` AND lesson_type = ?`
		args = append(args, q.LessonType)
	}
	if q.Contains != "" {
		where += ` AND (situation LIKE ? OR lesson LIKE ?)`
		pattern := "%" + q.Contains + "%"
		args = append(args, pattern, pattern)
	}
	query := `SELECT id, project_id, situation, action, outcome, lesson, lesson_type,
		 confidence, quality, fingerprint, ref_count, created_at, updated_at
		 FROM episodes WHERE ` + where + `
		 ORDER BY confidence * quality DESC, updated_at DESC`
	if q.TopK > 0 {
		query += ` LIMIT ?`
		args = append(args, q.TopK)
	}

	var episodes []recall.ScoredEpisode
	err = pool.With(ctx, func(h *Handle) error {
		rows, err := h.DB().QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query episodes: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var e recall.Episode
			if err := rows.Scan(&e.ID, &e.ProjectID, &e.Situation, &e.Action, &e.Outcome, &e.Lesson,
				&e.LessonType, &e.Confidence, &e.Quality, &e.Fingerprint, &e.RefCount,
				&e.CreatedAt, &e.UpdatedAt); err != nil {
				return fmt.Errorf("scan episode: %w", err)
			}
			episodes = append(episodes, recall.ScoredEpisode{Episode: e, Score: e.Confidence * e.Quality})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sqlite: episodes queried",
		"project_id", projectID, "count", len(episodes),
		"duration_ms", time.Since(start).Milliseconds())
	return episodes, nil
}

// ListRecentEpisodes returns the most recently touched episodes, newest first.
func (s *Store) ListRecentEpisodes(ctx context.Context, projectID string, limit int) ([]recall.Episode, error) {
	if limit <= 0 {
		limit = 20
	}
	pool, err := s.readPool(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var episodes []recall.Episode
	err = pool.With(ctx, func(h *Handle) error {
		rows, err := h.DB().QueryContext(ctx,
			`SELECT id, project_id, situation, action, outcome, lesson, lesson_type,
			 confidence, quality, fingerprint, ref_count, created_at, updated_at
			 FROM episodes WHERE project_id = ?
			 ORDER BY updated_at DESC, id LIMIT ?`, projectID, limit)
		if err != nil {
			return fmt.Errorf("list episodes: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var e recall.Episode
			if err := rows.Scan(&e.ID, &e.ProjectID, &e.Situation, &e.Action, &e.Outcome, &e.Lesson,
				&e.LessonType, &e.Confidence, &e.Quality, &e.Fingerprint, &e.RefCount,
				&e.CreatedAt, &e.UpdatedAt); err != nil {
				return fmt.Errorf("scan episode: %w", err)
			}
			episodes = append(episodes, e)
		}
		return rows.Err()
	})
	return episodes, err
}
