package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/tenderwatch/internal/metrics"
	"github.com/aristath/tenderwatch/internal/resultcache"
	"github.com/aristath/tenderwatch/internal/scheduler"
)

// JobInstances holds the registered jobs for manual triggering
type JobInstances struct {
	CorpusRefresh *scheduler.CorpusRefreshJob
	CacheCleanup  *resultcache.CleanupJob
	ModelRetrain  *scheduler.ModelRetrainJob
	WALCheckpoint *scheduler.WALCheckpointJob
	MetricsExport *metrics.ExportJob // nil without METRICS_TEXTFILE
}

// RegisterJobs creates the background jobs and registers them on sched
func RegisterJobs(ctx context.Context, container *Container, sched *scheduler.Scheduler, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.Analyzer == nil {
		return nil, fmt.Errorf("container is not initialized")
	}
	cfg := container.Config
	w := cfg.Worker

	jobs := &JobInstances{
		CorpusRefresh: scheduler.NewCorpusRefreshJob(ctx, container.Analyzer, container.Worker, log),
		CacheCleanup:  resultcache.NewCleanupJob(container.CacheRepo, container.Source.MTime, log),
		ModelRetrain:  scheduler.NewModelRetrainJob(ctx, container.Analyzer, cfg.LabelsPath, log),
		WALCheckpoint: scheduler.NewWALCheckpointJob(container.CacheDB, log),
	}

	register := []struct {
		schedule string
		job      scheduler.Job
	}{
		{w.RefreshSchedule, jobs.CorpusRefresh},
		{w.CleanupSchedule, jobs.CacheCleanup},
		{w.RetrainSchedule, jobs.ModelRetrain},
		{w.CleanupSchedule, jobs.WALCheckpoint},
	}
	if cfg.MetricsTextfile != "" {
		jobs.MetricsExport = metrics.NewExportJob(container.Metrics, cfg.MetricsTextfile, log)
		register = append(register, struct {
			schedule string
			job      scheduler.Job
		}{w.MetricsSchedule, jobs.MetricsExport})
	}

	for _, r := range register {
		if err := sched.AddJob(r.schedule, r.job); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}
