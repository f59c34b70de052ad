package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/tenderwatch/internal/clients/goszakup"
	"github.com/aristath/tenderwatch/internal/config"
	"github.com/aristath/tenderwatch/internal/corpus"
	"github.com/aristath/tenderwatch/internal/metrics"
	"github.com/aristath/tenderwatch/internal/modules/analyzer"
	"github.com/aristath/tenderwatch/internal/modules/scorer"
	"github.com/aristath/tenderwatch/internal/modules/similarity"
)

// InitializeServices builds the pipeline components into the container
func InitializeServices(ctx context.Context, container *Container, log zerolog.Logger) error {
	cfg := container.Config

	cal, err := config.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		return err
	}
	if cfg.RealDataThreshold > 0 {
		cal.Scorer.RealDataThreshold = cfg.RealDataThreshold
	}
	container.Calibration = cal

	container.Goszakup = goszakup.NewClient(cfg.GoszakupBaseURL, cfg.GoszakupToken, cfg.GoszakupRateLimit, log)
	container.Source = corpus.NewFileSource(cfg.ResolveCorpusPath())
	container.Metrics = metrics.New()

	store, err := newModelStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	container.ModelStore = store

	deps := analyzer.NewDeps(container.Source, cal, newEmbedder(cfg), cfg.GraphEnabled, log)
	deps.Store = store
	deps.Cache = container.CacheRepo
	deps.Metrics = container.Metrics
	deps.LabelsPath = cfg.LabelsPath
	deps.ForceTrain = cfg.ForceTrain

	container.Analyzer = analyzer.New(deps, log)
	container.Worker = analyzer.NewWorker(container.Analyzer, cfg.Worker, nil, log)

	log.Info().
		Str("corpus", container.Source.Path()).
		Str("embedder", cfg.EmbeddingProvider).
		Str("model_store", store.Location()).
		Bool("graph", cfg.GraphEnabled).
		Msg("Services initialized")
	return nil
}

// newEmbedder returns nil for TF-IDF, which the index builds itself
func newEmbedder(cfg *config.Config) similarity.Embedder {
	if cfg.EmbeddingProvider == config.EmbeddingOpenAI {
		return similarity.NewOpenAIEmbedder(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel)
	}
	return nil
}

func newModelStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (scorer.ModelStore, error) {
	if cfg.ModelStore == config.ModelStoreS3 {
		store, err := scorer.NewS3Store(ctx, cfg.S3, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 model store: %w", err)
		}
		return store, nil
	}
	return scorer.NewFileStore(cfg.ModelsDir), nil
}
