package scheduler

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tenderwatch/internal/database"
	"github.com/aristath/tenderwatch/internal/modules/scorer"
)

// Refresher reloads the pipeline when the corpus changed
type Refresher interface {
	RefreshIfChanged(ctx context.Context) (bool, error)
}

// Trainer retrains the learned scorer
type Trainer interface {
	Train(ctx context.Context) (*scorer.ModelBundle, error)
}

// Runner is a context-aware unit of background work
type Runner interface {
	Run(ctx context.Context) error
}

// CorpusRefreshJob reinitializes the analyzer after a corpus change and
// then lets the background worker analyze the new lots
type CorpusRefreshJob struct {
	ctx       context.Context
	refresher Refresher
	worker    Runner
	log       zerolog.Logger

	mu sync.Mutex
}

// NewCorpusRefreshJob creates the corpus_refresh job; worker may be nil
func NewCorpusRefreshJob(ctx context.Context, refresher Refresher, worker Runner, log zerolog.Logger) *CorpusRefreshJob {
	return &CorpusRefreshJob{
		ctx:       ctx,
		refresher: refresher,
		worker:    worker,
		log:       log.With().Str("job", "corpus_refresh").Logger(),
	}
}

// Name returns the job name
func (j *CorpusRefreshJob) Name() string {
	return "corpus_refresh"
}

// Run refreshes and, when a worker is attached, analyzes outstanding lots.
// Calls from the scheduler and the file watcher are serialized.
func (j *CorpusRefreshJob) Run() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	changed, err := j.refresher.RefreshIfChanged(j.ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Corpus refresh failed")
		return err
	}
	if changed {
		j.log.Info().Msg("Corpus reloaded")
	}
	if j.worker == nil {
		return nil
	}
	if err := j.worker.Run(j.ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// OnChange adapts the job to the corpus watcher callback
func (j *CorpusRefreshJob) OnChange(ctx context.Context) {
	_ = j.Run()
}

// ModelRetrainJob retrains the scorer when the labels file changed since
// the last training
type ModelRetrainJob struct {
	ctx        context.Context
	trainer    Trainer
	labelsPath string
	log        zerolog.Logger

	lastSeen time.Time
}

// NewModelRetrainJob creates the model_retrain job. The current labels
// file counts as already trained on.
func NewModelRetrainJob(ctx context.Context, trainer Trainer, labelsPath string, log zerolog.Logger) *ModelRetrainJob {
	j := &ModelRetrainJob{
		ctx:        ctx,
		trainer:    trainer,
		labelsPath: labelsPath,
		log:        log.With().Str("job", "model_retrain").Logger(),
	}
	j.lastSeen, _ = j.labelsMTime()
	return j
}

func (j *ModelRetrainJob) labelsMTime() (time.Time, error) {
	if j.labelsPath == "" {
		return time.Time{}, os.ErrNotExist
	}
	info, err := os.Stat(j.labelsPath)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Name returns the job name
func (j *ModelRetrainJob) Name() string {
	return "model_retrain"
}

// Run retrains if the labels file is newer than the last run
func (j *ModelRetrainJob) Run() error {
	mtime, err := j.labelsMTime()
	if err != nil {
		j.log.Debug().Err(err).Msg("No labels file, skipping retrain")
		return nil
	}
	if !mtime.After(j.lastSeen) {
		j.log.Debug().Msg("Labels unchanged, skipping retrain")
		return nil
	}

	b, err := j.trainer.Train(j.ctx)
	if err != nil {
		if errors.Is(err, scorer.ErrInsufficientData) {
			j.log.Warn().Err(err).Msg("Retrain skipped")
			j.lastSeen = mtime
			return nil
		}
		j.log.Error().Err(err).Msg("Retrain failed")
		return err
	}
	j.lastSeen = mtime
	j.log.Info().
		Str("run_id", b.RunID).
		Int("samples", b.Samples).
		Str("label_source", b.LabelSource).
		Msg("Scorer retrained")
	return nil
}

// WALCheckpointJob truncates the cache database WAL after background writes
type WALCheckpointJob struct {
	db  *database.DB
	log zerolog.Logger
}

// NewWALCheckpointJob creates the wal_checkpoint job
func NewWALCheckpointJob(db *database.DB, log zerolog.Logger) *WALCheckpointJob {
	return &WALCheckpointJob{db: db, log: log.With().Str("job", "wal_checkpoint").Logger()}
}

// Name returns the job name
func (j *WALCheckpointJob) Name() string {
	return "wal_checkpoint"
}

// Run checkpoints the database
func (j *WALCheckpointJob) Run() error {
	if err := j.db.WALCheckpoint(); err != nil {
		j.log.Warn().Err(err).Str("database", j.db.Name()).Msg("WAL checkpoint failed")
		return err
	}
	j.log.Debug().Str("database", j.db.Name()).Msg("WAL checkpointed")
	return nil
}
