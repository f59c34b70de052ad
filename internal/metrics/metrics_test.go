package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tenderwatch/internal/domain"
	"github.com/aristath/tenderwatch/internal/modules/analyzer"
)

var _ analyzer.Metrics = (*Prometheus)(nil)

func TestObserveAnalysis(t *testing.T) {
	p := New()
	p.ObserveAnalysis(domain.RiskHigh, 20*time.Millisecond)
	p.ObserveAnalysis(domain.RiskHigh, 30*time.Millisecond)
	p.ObserveAnalysis(domain.RiskLow, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.analyses.WithLabelValues("HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.analyses.WithLabelValues("LOW")))
	assert.Equal(t, 0.0, testutil.ToFloat64(p.analyses.WithLabelValues("CRITICAL")))
	assert.Equal(t, 1, testutil.CollectAndCount(p.duration))
}

func TestCountersAndGauges(t *testing.T) {
	p := New()
	p.AnalysisFailed()
	p.SetWorkerAnalyzed(42)
	p.TrainingRun("pseudo")
	p.TrainingRun("pseudo")

	assert.Equal(t, 1.0, testutil.ToFloat64(p.failures))
	assert.Equal(t, 42.0, testutil.ToFloat64(p.workerAnalyzed))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.trainingRuns.WithLabelValues("pseudo")))
}

func TestConcurrentRecording(t *testing.T) {
	p := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.ObserveAnalysis(domain.RiskMedium, time.Millisecond)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50.0, testutil.ToFloat64(p.analyses.WithLabelValues("MEDIUM")))
}

func TestExportJob_WritesTextfile(t *testing.T) {
	p := New()
	p.ObserveAnalysis(domain.RiskCritical, time.Millisecond)
	path := filepath.Join(t.TempDir(), "textfile", "tenderwatch.prom")

	job := NewExportJob(p, path, zerolog.Nop())
	require.NoError(t, job.Run())
	assert.Equal(t, "metrics_export", job.Name())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `tenderwatch_analyses_total{level="CRITICAL"} 1`)
	assert.Contains(t, text, "tenderwatch_metrics_export_timestamp_seconds")
	assert.True(t, strings.Contains(text, "# TYPE tenderwatch_analysis_duration_seconds histogram"))
}
