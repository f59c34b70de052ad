// Package resultcache persists full lot analyses keyed by lot id.
// Rows remember the corpus mtime they were computed against; a row older
// than the current corpus is stale.
package resultcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/tenderwatch/internal/database"
)

// Entry is one cached analysis
type Entry struct {
	LotID       string
	Data        json.RawMessage
	FinalScore  float64
	FinalLevel  string
	CorpusMTime time.Time
	AnalyzedAt  time.Time
}

// Repository provides cache operations over the analysis_cache table
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new cache repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Store upserts one analysis. data is marshalled to JSON.
func (r *Repository) Store(ctx context.Context, lotID string, data interface{}, score float64, level string, corpusMTime time.Time) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis %s: %w", lotID, err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO analysis_cache (lot_id, data, final_score, final_level, corpus_mtime, analyzed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		lotID, string(jsonData), score, level, corpusMTime.UnixNano(), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to store analysis %s: %w", lotID, err)
	}
	return nil
}

// StoreBatch upserts many analyses in one transaction
func (r *Repository) StoreBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO analysis_cache (lot_id, data, final_score, final_level, corpus_mtime, analyzed_at)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare cache insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			analyzedAt := e.AnalyzedAt
			if analyzedAt.IsZero() {
				analyzedAt = time.Now()
			}
			if _, err := stmt.ExecContext(ctx, e.LotID, string(e.Data), e.FinalScore, e.FinalLevel,
				e.CorpusMTime.UnixNano(), analyzedAt.UnixNano()); err != nil {
				return fmt.Errorf("failed to store analysis %s: %w", e.LotID, err)
			}
		}
		return nil
	})
}

// GetIfFresh returns the analysis only if it was computed against a corpus
// at least as new as corpusMTime. Returns nil, nil when missing or stale.
func (r *Repository) GetIfFresh(ctx context.Context, lotID string, corpusMTime time.Time) (json.RawMessage, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM analysis_cache WHERE lot_id = ? AND corpus_mtime >= ?`,
		lotID, corpusMTime.UnixNano(),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis %s: %w", lotID, err)
	}
	return json.RawMessage(data), nil
}

// Get returns the analysis regardless of staleness. Returns nil, nil if missing.
func (r *Repository) Get(ctx context.Context, lotID string) (*Entry, error) {
	var (
		e                 Entry
		data              string
		mtime, analyzedAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT lot_id, data, final_score, final_level, corpus_mtime, analyzed_at FROM analysis_cache WHERE lot_id = ?`,
		lotID,
	).Scan(&e.LotID, &data, &e.FinalScore, &e.FinalLevel, &mtime, &analyzedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis %s: %w", lotID, err)
	}
	e.Data = json.RawMessage(data)
	e.CorpusMTime = time.Unix(0, mtime)
	e.AnalyzedAt = time.Unix(0, analyzedAt)
	return &e, nil
}

// FreshIDs returns the ids with a fresh row
func (r *Repository) FreshIDs(ctx context.Context, corpusMTime time.Time) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT lot_id FROM analysis_cache WHERE corpus_mtime >= ?`, corpusMTime.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to list cached analyses: %w", err)
	}
	defer rows.Close()

	ids := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan cached lot id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// DeleteStale removes rows computed against an older corpus.
// Returns the number of rows deleted.
func (r *Repository) DeleteStale(ctx context.Context, corpusMTime time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM analysis_cache WHERE corpus_mtime < ?`, corpusMTime.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale analyses: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// Count returns the number of cached analyses
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analysis_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count analyses: %w", err)
	}
	return n, nil
}

// CountByLevel returns fresh analyses per final level
func (r *Repository) CountByLevel(ctx context.Context, corpusMTime time.Time) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT final_level, COUNT(*) FROM analysis_cache WHERE corpus_mtime >= ? GROUP BY final_level`,
		corpusMTime.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to count analyses by level: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var level string
		var n int
		if err := rows.Scan(&level, &n); err != nil {
			return nil, fmt.Errorf("failed to scan level count: %w", err)
		}
		out[level] = n
	}
	return out, rows.Err()
}

// StartRun records the start of a worker run
func (r *Repository) StartRun(ctx context.Context, runID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO analysis_runs (run_id, started_at) VALUES (?, ?)`, runID, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", runID, err)
	}
	return nil
}

// FinishRun records the outcome of a worker run
func (r *Repository) FinishRun(ctx context.Context, runID string, analyzed, failed int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE analysis_runs SET finished_at = ?, analyzed = ?, failed = ? WHERE run_id = ?`,
		time.Now().UnixNano(), analyzed, failed, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	return nil
}
