package di

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tenderwatch/internal/config"
	"github.com/aristath/tenderwatch/internal/scheduler"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "raw"), 0755))

	lots := "["
	for i := 0; i < 30; i++ {
		if i > 0 {
			lots += ","
		}
		lots += fmt.Sprintf(`{"lot_id": "%d", "desc_ru": "Поставка офисной бумаги, партия %d", "budget": %d, "participants_count": 3, "customer_bin": "C%d", "winner_bin": "S%d"}`,
			i, i, 1000*(i+1), i%2, i%3)
	}
	lots += "]"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "raw", "real_lots.json"), []byte(lots), 0644))

	return &config.Config{
		DataDir:           dir,
		CacheDBPath:       filepath.Join(dir, "cache", "analysis.db"),
		ModelsDir:         filepath.Join(dir, "models"),
		EmbeddingProvider: config.EmbeddingTFIDF,
		GraphEnabled:      true,
		ModelStore:        config.ModelStoreFile,
		Worker: config.WorkerConfig{
			BatchSize:       5,
			RefreshSchedule: "0 */10 * * * *",
			CleanupSchedule: "0 30 3 * * *",
			RetrainSchedule: "0 0 4 * * *",
			MetricsSchedule: "@every 30s",
		},
		GoszakupBaseURL:   "http://localhost",
		GoszakupRateLimit: 60,
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)
	container, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.CacheRepo)
	assert.NotNil(t, container.Goszakup)
	assert.Equal(t, filepath.Join(cfg.ModelsDir, "scorer.msgpack"), container.ModelStore.Location())
	assert.Equal(t, filepath.Join(cfg.DataDir, "raw", "real_lots.json"), container.Source.Path())

	require.NoError(t, container.Analyzer.Initialize(context.Background()))
	assert.Len(t, container.Analyzer.LotIDs(), 30)

	fa, err := container.Analyzer.AnalyzeLot(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, "3", fa.Lot.ID)

	n, err := container.CacheRepo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWire_BadCalibration(t *testing.T) {
	cfg := testConfig(t)
	cfg.CalibrationPath = filepath.Join(cfg.DataDir, "missing.yaml")

	_, err := Wire(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestRegisterJobs(t *testing.T) {
	cfg := testConfig(t)
	container, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	sched := scheduler.New(zerolog.Nop())
	jobs, err := RegisterJobs(context.Background(), container, sched, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 4, sched.Len())
	assert.Nil(t, jobs.MetricsExport)

	cfg.MetricsTextfile = filepath.Join(cfg.DataDir, "metrics.prom")
	sched = scheduler.New(zerolog.Nop())
	jobs, err = RegisterJobs(context.Background(), container, sched, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 5, sched.Len())
	require.NotNil(t, jobs.MetricsExport)
	require.NoError(t, sched.RunNow(jobs.MetricsExport))
	_, err = os.Stat(cfg.MetricsTextfile)
	assert.NoError(t, err)

	_, err = RegisterJobs(context.Background(), &Container{}, sched, zerolog.Nop())
	assert.Error(t, err)
}
