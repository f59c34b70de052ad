package analyzer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/tenderwatch/internal/config"
	"github.com/aristath/tenderwatch/internal/domain"
	"github.com/aristath/tenderwatch/internal/resultcache"
)

// maxThrottleWaits bounds the extra pauses taken before one batch
const maxThrottleWaits = 3

// ResourceSampler reports host CPU and memory usage in percent
type ResourceSampler interface {
	Sample(ctx context.Context) (cpuPercent, memPercent float64, err error)
}

// HostSampler samples the local host with gopsutil
type HostSampler struct{}

// Sample measures CPU over 100ms and the current memory usage
func (HostSampler) Sample(ctx context.Context) (float64, float64, error) {
	cpus, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false)
	if err != nil {
		return 0, 0, err
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	var c float64
	if len(cpus) > 0 {
		c = cpus[0]
	}
	return c, vm.UsedPercent, nil
}

// WorkerStatus is a point-in-time copy of the worker's progress
type WorkerStatus struct {
	Running   bool            `json:"running"`
	Total     int             `json:"total"`
	Analyzed  int             `json:"analyzed"`
	Failed    int             `json:"failed"`
	Unflushed int             `json:"unflushed"`
	Results   []*FullAnalysis `json:"-"`
}

// Worker analyzes the lots nobody has asked for yet, in throttled batches.
// It is the single writer of its results log.
type Worker struct {
	a       *Analyzer
	cfg     config.WorkerConfig
	sampler ResourceSampler
	sleep   func(ctx context.Context, d time.Duration) error
	log     zerolog.Logger

	mu       sync.Mutex
	running  bool
	total    int
	analyzed int
	failed   int
	results  []*FullAnalysis
	pending  []resultcache.Entry
	mtime    time.Time
}

// NewWorker creates a worker; a nil sampler uses HostSampler
func NewWorker(a *Analyzer, cfg config.WorkerConfig, sampler ResourceSampler, log zerolog.Logger) *Worker {
	if sampler == nil {
		sampler = HostSampler{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Worker{
		a:       a,
		cfg:     cfg,
		sampler: sampler,
		sleep:   sleepCtx,
		log:     log.With().Str("component", "analysis_worker").Logger(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// todo lists corpus lots with neither an in-memory nor a fresh cached result
func (w *Worker) todo(ctx context.Context) ([]domain.Lot, time.Time, error) {
	st := w.a.current()
	if st == nil {
		return nil, time.Time{}, ErrNotInitialized
	}

	fresh := map[string]bool{}
	if w.a.deps.Cache != nil {
		ids, err := w.a.deps.Cache.FreshIDs(ctx, st.mtime)
		if err != nil {
			w.log.Warn().Err(err).Msg("Failed to list cached analyses, analyzing everything")
		} else {
			fresh = ids
		}
	}

	var lots []domain.Lot
	for _, lot := range st.lots {
		if fresh[lot.LotID] || w.a.isRecorded(lot.LotID) {
			continue
		}
		lots = append(lots, lot)
	}
	return lots, st.mtime, nil
}

// Run processes every outstanding lot and persists the results. It returns
// early with ctx.Err() on cancellation; call Flush afterwards.
func (w *Worker) Run(ctx context.Context) error {
	lots, mtime, err := w.todo(ctx)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.running = true
	w.total = len(lots)
	w.analyzed = 0
	w.failed = 0
	w.mtime = mtime
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	if len(lots) == 0 {
		w.log.Debug().Msg("Nothing to analyze")
		return nil
	}
	w.log.Info().Int("lots", len(lots)).Int("batch_size", w.cfg.BatchSize).Msg("Background analysis started")

	for start := 0; start < len(lots); start += w.cfg.BatchSize {
		if start > 0 {
			if err := w.sleep(ctx, w.cfg.BatchPause); err != nil {
				return err
			}
		}
		if err := w.throttle(ctx); err != nil {
			return err
		}

		end := start + w.cfg.BatchSize
		if end > len(lots) {
			end = len(lots)
		}
		for _, lot := range lots[start:end] {
			if err := ctx.Err(); err != nil {
				return err
			}
			w.process(ctx, lot)
		}
		w.log.Debug().Int("done", end).Int("total", len(lots)).Msg("Batch analyzed")
	}

	if err := w.Flush(ctx); err != nil {
		return err
	}
	status := w.Snapshot()
	w.log.Info().Int("analyzed", status.Analyzed).Int("failed", status.Failed).Msg("Background analysis finished")
	return nil
}

func (w *Worker) process(ctx context.Context, lot domain.Lot) {
	fa, err := w.a.analyze(ctx, lot)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.failed++
		w.log.Error().Err(err).Str("lot_id", lot.LotID).Msg("Lot analysis failed")
		return
	}
	w.a.record(fa)
	w.results = append(w.results, fa)
	w.analyzed++
	if entry, err := cacheEntry(fa, w.mtime); err == nil {
		w.pending = append(w.pending, entry)
	}
	w.a.deps.Metrics.SetWorkerAnalyzed(w.analyzed)
}

// throttle waits while the host is above its CPU or memory ceiling,
// at most maxThrottleWaits times
func (w *Worker) throttle(ctx context.Context) error {
	for i := 0; i < maxThrottleWaits; i++ {
		cpuPct, memPct, err := w.sampler.Sample(ctx)
		if err != nil {
			w.log.Debug().Err(err).Msg("Resource sampling failed")
			return nil
		}
		if cpuPct <= w.cfg.MaxCPUPercent && memPct <= w.cfg.MaxMemoryPercent {
			return nil
		}
		w.log.Info().
			Float64("cpu_percent", cpuPct).
			Float64("memory_percent", memPct).
			Msg("Host busy, pausing analysis")
		if err := w.sleep(ctx, w.cfg.BatchPause); err != nil {
			return err
		}
	}
	return nil
}

// Flush persists results not yet written to the cache
func (w *Worker) Flush(ctx context.Context) error {
	w.mu.Lock()
	pending := w.pending
	w.pending = nil
	w.mu.Unlock()

	if len(pending) == 0 || w.a.deps.Cache == nil {
		return nil
	}
	if err := w.a.deps.Cache.StoreBatch(ctx, pending); err != nil {
		w.mu.Lock()
		w.pending = append(pending, w.pending...)
		w.mu.Unlock()
		return err
	}
	w.log.Info().Int("entries", len(pending)).Msg("Analyses persisted")
	return nil
}

// Snapshot returns a copy of the progress and results log
func (w *Worker) Snapshot() WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerStatus{
		Running:   w.running,
		Total:     w.total,
		Analyzed:  w.analyzed,
		Failed:    w.failed,
		Unflushed: len(w.pending),
		Results:   append([]*FullAnalysis(nil), w.results...),
	}
}

// Name identifies the worker as a scheduled job
func (w *Worker) Name() string {
	return "background_analysis"
}
