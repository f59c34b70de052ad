package scorer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrModelNotFound is returned by a ModelStore holding no bundle
var ErrModelNotFound = errors.New("model bundle not found")

// ModelStore persists model bundles
type ModelStore interface {
	Load(ctx context.Context) (*ModelBundle, error)
	Save(ctx context.Context, b *ModelBundle) error
	Location() string
}

// BundleFile is the bundle's file name in every store
const BundleFile = "scorer.msgpack"

// FileStore keeps the bundle under a local directory
type FileStore struct {
	dir string
}

// NewFileStore creates a store in dir
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Location returns the bundle path
func (s *FileStore) Location() string {
	return filepath.Join(s.dir, BundleFile)
}

// Load reads the bundle
func (s *FileStore) Load(_ context.Context) (*ModelBundle, error) {
	data, err := os.ReadFile(s.Location())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model bundle: %w", err)
	}
	return DecodeBundle(data)
}

// Save writes the bundle through a temp file and rename
func (s *FileStore) Save(_ context.Context, b *ModelBundle) error {
	data, err := b.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	tmp := s.Location() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write model bundle: %w", err)
	}
	if err := os.Rename(tmp, s.Location()); err != nil {
		return fmt.Errorf("failed to replace model bundle: %w", err)
	}
	return nil
}
