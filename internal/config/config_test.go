package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TENDERWATCH_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "cache", "analysis.db"), cfg.CacheDBPath)
	assert.Equal(t, filepath.Join(dir, "models"), cfg.ModelsDir)
	assert.Equal(t, EmbeddingTFIDF, cfg.EmbeddingProvider)
	assert.Equal(t, ModelStoreFile, cfg.ModelStore)
	assert.True(t, cfg.GraphEnabled)
	assert.Equal(t, 50, cfg.Worker.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Worker.BatchPause)
	assert.Equal(t, 60, cfg.GoszakupRateLimit)
	assert.Zero(t, cfg.RealDataThreshold)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TENDERWATCH_DATA_DIR", t.TempDir())
	t.Setenv("BATCH_SIZE", "10")
	t.Setenv("BATCH_PAUSE", "3")
	t.Setenv("GRAPH_ENABLED", "off")
	t.Setenv("FORCE_TRAIN", "yes")
	t.Setenv("MAX_CPU_PERCENT", "70.5")
	t.Setenv("EMBEDDING_PROVIDER", "OpenAI")
	t.Setenv("EMBEDDING_BASE_URL", "http://localhost:8080/v1")
	t.Setenv("REAL_DATA_THRESHOLD", "500")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Worker.BatchSize)
	assert.Equal(t, 3*time.Second, cfg.Worker.BatchPause)
	assert.False(t, cfg.GraphEnabled)
	assert.True(t, cfg.ForceTrain)
	assert.Equal(t, 70.5, cfg.Worker.MaxCPUPercent)
	assert.Equal(t, EmbeddingOpenAI, cfg.EmbeddingProvider)
	assert.Equal(t, 500, cfg.RealDataThreshold)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			EmbeddingProvider: EmbeddingTFIDF,
			ModelStore:        ModelStoreFile,
			Worker:            WorkerConfig{BatchSize: 1},
			GoszakupRateLimit: 60,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown embedder", func(c *Config) { c.EmbeddingProvider = "bert" }},
		{"openai without endpoint", func(c *Config) { c.EmbeddingProvider = EmbeddingOpenAI }},
		{"s3 without bucket", func(c *Config) { c.ModelStore = ModelStoreS3 }},
		{"unknown store", func(c *Config) { c.ModelStore = "gcs" }},
		{"zero batch", func(c *Config) { c.Worker.BatchSize = 0 }},
		{"negative pause", func(c *Config) { c.Worker.BatchPause = -time.Second }},
		{"zero rate", func(c *Config) { c.GoszakupRateLimit = 0 }},
		{"negative threshold", func(c *Config) { c.RealDataThreshold = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestResolveCorpusPath(t *testing.T) {
	dir := t.TempDir()
	c := &Config{DataDir: dir}
	assert.Equal(t, filepath.Join(dir, "raw", "real_lots.json"), c.ResolveCorpusPath())

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "raw"), 0755))
	details := filepath.Join(dir, "raw", "lot_details.json")
	require.NoError(t, os.WriteFile(details, []byte("[]"), 0644))
	assert.Equal(t, details, c.ResolveCorpusPath())

	c.CorpusPath = "/explicit.json"
	assert.Equal(t, "/explicit.json", c.ResolveCorpusPath())
}

func TestLoadCalibration(t *testing.T) {
	cal, err := LoadCalibration("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCalibration(), cal)
	assert.Equal(t, 0.70, cal.Fusion.RuleWeight)
	assert.Equal(t, 1.8, cal.Rules.ScoreDivisor)

	path := filepath.Join(t.TempDir(), "calibration.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fusion:\n  rule_weight: 0.5\ngraph:\n  repeated_pairing: 4\n"), 0644))
	cal, err = LoadCalibration(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cal.Fusion.RuleWeight)
	assert.Equal(t, 0.20, cal.Fusion.ModelWeight, "unset keys keep defaults")
	assert.Equal(t, 4, cal.Graph.RepeatedPairing)
	assert.Equal(t, 5, cal.Graph.CommunitySize)
}

func TestLoadCalibration_Invalid(t *testing.T) {
	dir := t.TempDir()

	overweight := filepath.Join(dir, "over.yaml")
	require.NoError(t, os.WriteFile(overweight, []byte("fusion:\n  model_weight: 0.9\n"), 0644))
	_, err := LoadCalibration(overweight)
	assert.Error(t, err)

	levels := filepath.Join(dir, "levels.yaml")
	require.NoError(t, os.WriteFile(levels, []byte("levels:\n  high: 10\n"), 0644))
	_, err = LoadCalibration(levels)
	assert.Error(t, err)

	_, err = LoadCalibration(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
