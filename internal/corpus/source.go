// Package corpus loads the lot corpus the pipeline is fitted on and watches
// it for changes.
package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aristath/tenderwatch/internal/domain"
)

// ErrNotFound is returned when the corpus file does not exist
var ErrNotFound = errors.New("corpus not found")

// Source provides the corpus and a modification time used for cache freshness
type Source interface {
	Name() string
	Load(ctx context.Context) ([]domain.Lot, error)
	MTime() (time.Time, error)
}

// FileSource reads a JSON corpus from disk
type FileSource struct {
	path string
}

// NewFileSource creates a source for the given corpus file
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name returns the corpus path
func (s *FileSource) Name() string { return s.path }

// Path returns the corpus path
func (s *FileSource) Path() string { return s.path }

// Load decodes the corpus file
func (s *FileSource) Load(ctx context.Context) ([]domain.Lot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer f.Close()

	lots, err := domain.DecodeLots(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	return lots, nil
}

// MTime returns the corpus file modification time
func (s *FileSource) MTime() (time.Time, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Save writes lots as a JSON array, replacing the file atomically
func (s *FileSource) Save(lots []domain.Lot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create corpus directory: %w", err)
	}
	data, err := json.MarshalIndent(lots, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode corpus: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write corpus: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace corpus: %w", err)
	}
	return nil
}

// Fetcher pages lots from the upstream API
type Fetcher interface {
	FetchAll(ctx context.Context, pageSize, maxPages int) ([]domain.Lot, error)
}

// ClientSource pulls the corpus from the upstream API. Its MTime is the time
// of the last successful load.
type ClientSource struct {
	fetcher  Fetcher
	pageSize int
	maxPages int
	now      func() time.Time

	mu       sync.Mutex
	loadedAt time.Time
}

// NewClientSource creates an upstream-backed source
func NewClientSource(fetcher Fetcher, pageSize, maxPages int) *ClientSource {
	return &ClientSource{fetcher: fetcher, pageSize: pageSize, maxPages: maxPages, now: time.Now}
}

// Name identifies the source
func (s *ClientSource) Name() string { return "goszakup" }

// Load fetches every page
func (s *ClientSource) Load(ctx context.Context) ([]domain.Lot, error) {
	lots, err := s.fetcher.FetchAll(ctx, s.pageSize, s.maxPages)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch corpus: %w", err)
	}
	s.mu.Lock()
	s.loadedAt = s.now()
	s.mu.Unlock()
	return lots, nil
}

// MTime returns when the corpus was last fetched
func (s *ClientSource) MTime() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadedAt.IsZero() {
		return time.Time{}, ErrNotFound
	}
	return s.loadedAt, nil
}
