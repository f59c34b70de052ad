package resultcache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CleanupJob removes analyses computed against an older corpus
type CleanupJob struct {
	repo        *Repository
	corpusMTime func() (time.Time, error)
	log         zerolog.Logger
}

// NewCleanupJob creates the job; corpusMTime reports the current corpus modification time
func NewCleanupJob(repo *Repository, corpusMTime func() (time.Time, error), log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo:        repo,
		corpusMTime: corpusMTime,
		log:         log.With().Str("job", "cache_cleanup").Logger(),
	}
}

// Run deletes stale rows
func (j *CleanupJob) Run() error {
	mtime, err := j.corpusMTime()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to stat corpus")
		return err
	}

	deleted, err := j.repo.DeleteStale(context.Background(), mtime)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete stale analyses")
		return err
	}

	if deleted > 0 {
		j.log.Info().
			Int64("deleted", deleted).
			Time("corpus_mtime", mtime).
			Msg("Cleaned up stale cache entries")
	}
	return nil
}

// Name returns the job name for scheduling and logging
func (j *CleanupJob) Name() string {
	return "cache_cleanup"
}
