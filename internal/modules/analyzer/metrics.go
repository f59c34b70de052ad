package analyzer

import (
	"time"

	"github.com/aristath/tenderwatch/internal/domain"
)

// Metrics receives pipeline measurements
type Metrics interface {
	ObserveAnalysis(level domain.RiskLevel, d time.Duration)
	AnalysisFailed()
	SetWorkerAnalyzed(n int)
	TrainingRun(labelSource string)
}

// NoopMetrics discards everything
type NoopMetrics struct{}

func (NoopMetrics) ObserveAnalysis(domain.RiskLevel, time.Duration) {}
func (NoopMetrics) AnalysisFailed()                                 {}
func (NoopMetrics) SetWorkerAnalyzed(int)                           {}
func (NoopMetrics) TrainingRun(string)                              {}
