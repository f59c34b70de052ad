package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/tenderwatch/internal/config"
	"github.com/aristath/tenderwatch/internal/database"
	"github.com/aristath/tenderwatch/internal/resultcache"
)

// InitializeDatabases opens and migrates the analysis cache
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{Config: cfg}

	// cache.db - ephemeral, rebuilt from the corpus at any time
	cacheDB, err := database.New(database.Config{
		Path:    cfg.CacheDBPath,
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	if err := cacheDB.Migrate(); err != nil {
		cacheDB.Close()
		return nil, fmt.Errorf("failed to migrate cache database: %w", err)
	}
	container.CacheDB = cacheDB
	container.CacheRepo = resultcache.NewRepository(cacheDB.Conn())

	log.Info().Str("path", cfg.CacheDBPath).Msg("Cache database ready")
	return container, nil
}
