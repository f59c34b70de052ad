package resultcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
CREATE TABLE analysis_cache (
    lot_id TEXT PRIMARY KEY,
    data TEXT NOT NULL,
    final_score REAL NOT NULL DEFAULT 0,
    final_level TEXT NOT NULL DEFAULT 'LOW',
    corpus_mtime INTEGER NOT NULL,
    analyzed_at INTEGER NOT NULL
);
CREATE TABLE analysis_runs (
    run_id TEXT PRIMARY KEY,
    started_at INTEGER NOT NULL,
    finished_at INTEGER,
    analyzed INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0
);
`

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var (
	older = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	newer = time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
)

func TestStoreAndGetIfFresh(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))

	analysis := map[string]interface{}{"lot_id": "1001", "final_score": 72.5}
	require.NoError(t, repo.Store(ctx, "1001", analysis, 72.5, "HIGH", older))

	data, err := repo.GetIfFresh(ctx, "1001", older)
	require.NoError(t, err)
	require.NotNil(t, data)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, 72.5, parsed["final_score"])

	data, err = repo.GetIfFresh(ctx, "1001", newer)
	require.NoError(t, err)
	assert.Nil(t, data, "row older than the corpus is stale")

	entry, err := repo.Get(ctx, "1001")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "HIGH", entry.FinalLevel)
	assert.True(t, entry.CorpusMTime.Equal(older))

	missing, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_Replaces(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))

	require.NoError(t, repo.Store(ctx, "1001", map[string]int{"v": 1}, 10, "LOW", older))
	require.NoError(t, repo.Store(ctx, "1001", map[string]int{"v": 2}, 60, "HIGH", newer))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := repo.GetIfFresh(ctx, "1001", newer)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(data))
}

func TestStoreBatchAndLevels(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))

	require.NoError(t, repo.StoreBatch(ctx, []Entry{
		{LotID: "1", Data: json.RawMessage(`{}`), FinalScore: 10, FinalLevel: "LOW", CorpusMTime: newer},
		{LotID: "2", Data: json.RawMessage(`{}`), FinalScore: 80, FinalLevel: "CRITICAL", CorpusMTime: newer},
		{LotID: "3", Data: json.RawMessage(`{}`), FinalScore: 15, FinalLevel: "LOW", CorpusMTime: newer},
		{LotID: "4", Data: json.RawMessage(`{}`), FinalScore: 90, FinalLevel: "CRITICAL", CorpusMTime: older},
	}))
	require.NoError(t, repo.StoreBatch(ctx, nil))

	levels, err := repo.CountByLevel(ctx, newer)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"LOW": 2, "CRITICAL": 1}, levels)

	ids, err := repo.FreshIDs(ctx, newer)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"1": true, "2": true, "3": true}, ids)
}

func TestDeleteStale(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))

	require.NoError(t, repo.Store(ctx, "old", map[string]int{}, 0, "LOW", older))
	require.NoError(t, repo.Store(ctx, "new", map[string]int{}, 0, "LOW", newer))

	deleted, err := repo.DeleteStale(ctx, newer)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewRepository(db)

	require.NoError(t, repo.StartRun(ctx, "run-1"))
	require.NoError(t, repo.FinishRun(ctx, "run-1", 48, 2))

	var analyzed, failed int
	var finished sql.NullInt64
	require.NoError(t, db.QueryRow(`SELECT analyzed, failed, finished_at FROM analysis_runs WHERE run_id = ?`, "run-1").
		Scan(&analyzed, &failed, &finished))
	assert.Equal(t, 48, analyzed)
	assert.Equal(t, 2, failed)
	assert.True(t, finished.Valid)
}

func TestCleanupJob(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))
	require.NoError(t, repo.Store(ctx, "old", map[string]int{}, 0, "LOW", older))

	job := NewCleanupJob(repo, func() (time.Time, error) { return newer, nil }, zerolog.Nop())
	assert.Equal(t, "cache_cleanup", job.Name())
	require.NoError(t, job.Run())

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	failing := NewCleanupJob(repo, func() (time.Time, error) { return time.Time{}, errors.New("no corpus") }, zerolog.Nop())
	assert.Error(t, failing.Run())
}
