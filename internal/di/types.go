// Package di wires the pipeline from configuration.
package di

import (
	"github.com/aristath/tenderwatch/internal/clients/goszakup"
	"github.com/aristath/tenderwatch/internal/config"
	"github.com/aristath/tenderwatch/internal/corpus"
	"github.com/aristath/tenderwatch/internal/database"
	"github.com/aristath/tenderwatch/internal/metrics"
	"github.com/aristath/tenderwatch/internal/modules/analyzer"
	"github.com/aristath/tenderwatch/internal/modules/scorer"
	"github.com/aristath/tenderwatch/internal/resultcache"
)

// Container holds every long-lived component
type Container struct {
	Config      *config.Config
	Calibration config.Calibration

	// Databases
	CacheDB *database.DB // Analysis results keyed by lot id

	// Clients
	Goszakup *goszakup.Client // Upstream lots API

	// Repositories
	CacheRepo *resultcache.Repository

	// Pipeline
	Source     *corpus.FileSource
	ModelStore scorer.ModelStore
	Metrics    *metrics.Prometheus
	Analyzer   *analyzer.Analyzer
	Worker     *analyzer.Worker
}

// Close releases the databases
func (c *Container) Close() error {
	if c.CacheDB != nil {
		return c.CacheDB.Close()
	}
	return nil
}
