package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/tenderwatch/internal/corpus"
	"github.com/aristath/tenderwatch/internal/di"
	"github.com/aristath/tenderwatch/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run background analysis, scheduled jobs and the corpus watcher",
	Long: `Run until SIGINT or SIGTERM.

On start every lot without a fresh cached result is analyzed in batches,
pausing while the host is busy. The corpus file is watched and reloaded on
change; scheduled jobs refresh the corpus, purge stale cache rows, retrain
the model when the labels file changes and export metrics.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := initAnalyzer(ctx); err != nil {
		return err
	}

	sched := scheduler.New(log)
	jobs, err := di.RegisterJobs(ctx, container, sched, log)
	if err != nil {
		return err
	}
	sched.Start()
	log.Info().Int("jobs", sched.Len()).Msg("Scheduler started")

	watcher := corpus.NewWatcher(container.Source.Path(), corpus.DefaultDebounce, jobs.CorpusRefresh.OnChange, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watcher.Run(gctx)
	})
	g.Go(func() error {
		// Initial pass over lots without fresh results
		if err := jobs.CorpusRefresh.Run(); err != nil {
			log.Error().Err(err).Msg("Initial analysis pass failed")
		}
		return nil
	})

	<-ctx.Done()
	log.Info().Msg("Shutting down worker...")

	sched.Stop()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Worker stopped with error")
	}

	// Persist results analyzed since the last batch
	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := container.Worker.Flush(flushCtx); err != nil {
		log.Error().Err(err).Msg("Failed to flush analysis results")
	}
	if jobs.MetricsExport != nil {
		_ = jobs.MetricsExport.Run()
	}

	status := container.Worker.Snapshot()
	log.Info().
		Int("analyzed", status.Analyzed).
		Int("failed", status.Failed).
		Int("total", status.Total).
		Msg("Worker stopped")
	return nil
}
