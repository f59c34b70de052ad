// Package metrics exposes pipeline measurements as Prometheus metrics and
// exports them for node-exporter's textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/aristath/tenderwatch/internal/domain"
)

const namespace = "tenderwatch"

// analysisBuckets are in seconds; single-lot analysis is sub-second
var analysisBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}

// Prometheus implements analyzer.Metrics on its own registry
type Prometheus struct {
	registry *prometheus.Registry

	analyses       *prometheus.CounterVec
	duration       prometheus.Histogram
	failures       prometheus.Counter
	workerAnalyzed prometheus.Gauge
	trainingRuns   *prometheus.CounterVec
	lastExport     prometheus.Gauge
}

// New registers the metrics on a fresh registry
func New() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Lot analyses by final risk level",
		}, []string{"level"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Duration of one lot analysis",
			Buckets:   analysisBuckets,
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_failures_total",
			Help:      "Lot analyses that failed",
		}),
		workerAnalyzed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_analyzed",
			Help:      "Lots analyzed by the current background run",
		}),
		trainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_runs_total",
			Help:      "Scorer training runs by label source",
		}, []string{"label_source"}),
		lastExport: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metrics_export_timestamp_seconds",
			Help:      "Unix time of the last textfile export",
		}),
	}
	p.registry.MustRegister(p.analyses, p.duration, p.failures, p.workerAnalyzed, p.trainingRuns, p.lastExport)

	for _, l := range domain.AllLevels {
		p.analyses.WithLabelValues(string(l))
	}
	return p
}

// Registry returns the underlying registry
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prometheus) ObserveAnalysis(level domain.RiskLevel, d time.Duration) {
	p.analyses.WithLabelValues(string(level)).Inc()
	p.duration.Observe(d.Seconds())
}

func (p *Prometheus) AnalysisFailed() {
	p.failures.Inc()
}

func (p *Prometheus) SetWorkerAnalyzed(n int) {
	p.workerAnalyzed.Set(float64(n))
}

func (p *Prometheus) TrainingRun(labelSource string) {
	p.trainingRuns.WithLabelValues(labelSource).Inc()
}

// WriteTextfile writes the registry in text exposition format. The write is
// atomic so the collector never reads a partial file.
func (p *Prometheus) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	p.lastExport.SetToCurrentTime()
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// ExportJob writes the textfile on a schedule
type ExportJob struct {
	metrics *Prometheus
	path    string
	log     zerolog.Logger
}

// NewExportJob creates the metrics_export job
func NewExportJob(m *Prometheus, path string, log zerolog.Logger) *ExportJob {
	return &ExportJob{metrics: m, path: path, log: log.With().Str("job", "metrics_export").Logger()}
}

// Run exports once
func (j *ExportJob) Run() error {
	if err := j.metrics.WriteTextfile(j.path); err != nil {
		j.log.Error().Err(err).Msg("Metrics export failed")
		return err
	}
	j.log.Debug().Str("path", j.path).Msg("Metrics exported")
	return nil
}

// Name returns the job name
func (j *ExportJob) Name() string {
	return "metrics_export"
}
