// Package file stores the automation state document as a JSON file
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/dapen17/vps1/internal/domain/automation/deps"
	"github.com/dapen17/vps1/internal/domain/automation/entities"
)

// Repository implements deps.StateRepository on top of a single JSON file
type Repository struct {
	path   string
	logger zerolog.Logger
}

// NewRepository creates a file repository for path
func NewRepository(path string, logger zerolog.Logger) *Repository {
	return &Repository{
		path:   path,
		logger: logger.With().Str("component", "state_file").Str("path", path).Logger(),
	}
}

// Path returns the location of the state file
func (r *Repository) Path() string {
	return r.path
}

// Load reads and decodes the state file
func (r *Repository) Load(ctx context.Context) (*entities.Document, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, deps.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	if len(data) == 0 {
		return nil, deps.ErrStateNotFound
	}

	var doc entities.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode state file: %w", err)
	}

	return &doc, nil
}

// Save encodes doc and replaces the state file atomically
func (r *Repository) Save(ctx context.Context, doc *entities.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	r.logger.Debug().Int("bytes", len(data)).Msg("State file written")
	return nil
}

// ReadRaw returns the current file content, used for backups
func (r *Repository) ReadRaw() ([]byte, error) {
	return os.ReadFile(r.path)
}

var _ deps.StateRepository = (*Repository)(nil)
