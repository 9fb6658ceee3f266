// Package workers contains background jobs of the automation domain
package workers

import (
	"context"
	"crypto/sha256"
	"errors"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dapen17/vps1/internal/domain/automation/deps"
)

// StateSource exposes the raw persisted state document
type StateSource interface {
	Path() string
	ReadRaw() ([]byte, error)
}

// BackupWorker periodically copies the state document to the snapshot store
type BackupWorker struct {
	source   StateSource
	uploader deps.SnapshotUploader
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger

	lastMu   sync.Mutex
	lastSize int
	lastHash [32]byte

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBackupWorker creates a new backup worker
func NewBackupWorker(source StateSource, uploader deps.SnapshotUploader, interval time.Duration, logger zerolog.Logger) *BackupWorker {
	ctx, cancel := context.WithCancel(context.Background())
	if interval <= 0 {
		interval = time.Hour
	}
	return &BackupWorker{
		source:   source,
		uploader: uploader,
		interval: interval,
		timeout:  30 * time.Second,
		logger:   logger.With().Str("component", "state_backup").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the backup loop
func (w *BackupWorker) Start() {
	w.logger.Info().Dur("interval", w.interval).Msg("starting state backup worker")

	w.wg.Add(1)
	go w.run()
}

// Stop stops the loop and uploads a last snapshot
func (w *BackupWorker) Stop(ctx context.Context) {
	w.cancel()
	w.wg.Wait()

	if err := w.Backup(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("final state backup failed")
	}
	w.logger.Info().Msg("state backup worker stopped")
}

func (w *BackupWorker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(w.ctx, w.timeout)
			if err := w.Backup(ctx); err != nil {
				w.logger.Warn().Err(err).Msg("state backup failed")
			}
			cancel()
		}
	}
}

// Backup uploads the state document unless it is unchanged since the last upload
func (w *BackupWorker) Backup(ctx context.Context) error {
	data, err := w.source.ReadRaw()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	hash := sha256.Sum256(data)
	w.lastMu.Lock()
	unchanged := w.lastSize == len(data) && w.lastHash == hash
	w.lastMu.Unlock()
	if unchanged {
		w.logger.Debug().Msg("state unchanged, skipping backup")
		return nil
	}

	if err := w.uploader.UploadSnapshot(ctx, filepath.Base(w.source.Path()), data); err != nil {
		return err
	}

	w.lastMu.Lock()
	w.lastSize, w.lastHash = len(data), hash
	w.lastMu.Unlock()

	w.logger.Info().Int("size", len(data)).Msg("state snapshot uploaded")
	return nil
}
