// Package indexstore persists index snapshots and swaps them in atomically.
//
// The store owns three sibling directories: the live slot readers load from,
// a staging slot a new snapshot is written into, and a backup slot the old
// live snapshot is parked in while staging is renamed over it. A reader
// therefore always finds either the previous complete snapshot or the new
// one.
package indexstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/errors"
)

// SnapshotFile is the name of the snapshot inside each slot.
const SnapshotFile = "posts.idx"

// Slots names the three slot directories.
type Slots struct {
	Live    string
	Staging string
	Backup  string
}

// Info describes the live snapshot without decoding its payload.
type Info struct {
	Path      string
	Size      int64
	PostCount int
	TagCount  int
	BuiltAt   time.Time
}

// Store publishes, loads and deletes the index snapshot across its slots.
type Store struct {
	fs     afero.Fs
	slots  Slots
	logger *slog.Logger
}

// NewStore derives the slot paths from cfg.IndexDir and the slot suffixes.
func NewStore(fsys afero.Fs, cfg config.BlogConfig) *Store {
	live := filepath.Clean(cfg.IndexDir)
	return &Store{
		fs: fsys,
		slots: Slots{
			Live:    live,
			Staging: live + cfg.StagingSuffix,
			Backup:  live + cfg.BackupSuffix,
		},
		logger: slog.Default().With("component", "index-store"),
	}
}

// Slots returns the slot paths.
func (s *Store) Slots() Slots { return s.slots }

// Publish writes idx into the staging slot and swaps it in as the live
// slot. On any failure the previous live snapshot stays authoritative.
func (s *Store) Publish(idx *index.Index) error {
	start := time.Now()
	if err := s.cleanup(); err != nil {
		return err
	}

	size, err := s.writeStaging(idx)
	if err != nil {
		if rmErr := s.fs.RemoveAll(s.slots.Staging); rmErr != nil {
			s.logger.Warn("failed to remove partial staging slot", "path", s.slots.Staging, "error", rmErr)
		}
		return fmt.Errorf("%w: %w", apperrors.ErrWriteFailed, err)
	}

	hadLive, err := s.exists(s.slots.Live)
	if err != nil {
		return fmt.Errorf("%w: checking live slot: %w", apperrors.ErrPublishFailed, err)
	}
	if hadLive {
		if err := s.fs.Rename(s.slots.Live, s.slots.Backup); err != nil {
			return fmt.Errorf("%w: moving live slot aside: %w", apperrors.ErrPublishFailed, err)
		}
	}
	if err := s.fs.Rename(s.slots.Staging, s.slots.Live); err != nil {
		if hadLive {
			if restoreErr := s.fs.Rename(s.slots.Backup, s.slots.Live); restoreErr != nil {
				s.logger.Error("failed to restore previous live slot",
					"backup", s.slots.Backup,
					"error", restoreErr,
				)
			}
		}
		return fmt.Errorf("%w: promoting staging slot: %w", apperrors.ErrPublishFailed, err)
	}

	if hadLive {
		if err := s.fs.RemoveAll(s.slots.Backup); err != nil {
			s.logger.Warn("failed to remove backup slot, next publish will retry",
				"path", s.slots.Backup,
				"error", err,
			)
		}
	}
	s.logger.Info("index published",
		"generation", idx.Generation(),
		"posts", idx.Len(),
		"size", humanize.Bytes(uint64(size)),
		"duration", time.Since(start),
	)
	return nil
}

// Load reads and decodes the live snapshot.
func (s *Store) Load() (*index.Index, error) {
	path := s.snapshotPath(s.slots.Live)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrIndexMissing, path)
		}
		return nil, fmt.Errorf("%w: reading %s: %w", apperrors.ErrIndexCorrupt, path, err)
	}
	idx, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrIndexCorrupt, path, err)
	}
	return idx, nil
}

// Info reads the live snapshot header.
func (s *Store) Info() (Info, error) {
	path := s.snapshotPath(s.slots.Live)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, fmt.Errorf("%w: %s", apperrors.ErrIndexMissing, path)
		}
		return Info{}, fmt.Errorf("reading %s: %w", path, err)
	}
	h, err := ReadHeader(data)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %w", apperrors.ErrIndexCorrupt, path, err)
	}
	return Info{
		Path:      path,
		Size:      int64(len(data)),
		PostCount: int(h.PostCount),
		TagCount:  int(h.TagCount),
		BuiltAt:   h.BuiltAtTime(),
	}, nil
}

// Delete removes every slot. Deleting an absent index succeeds.
func (s *Store) Delete() error {
	for _, dir := range []string{s.slots.Staging, s.slots.Backup, s.slots.Live} {
		if err := s.fs.RemoveAll(dir); err != nil {
			return fmt.Errorf("%w: removing %s: %w", apperrors.ErrCleanupFailed, dir, err)
		}
	}
	s.logger.Info("index deleted", "path", s.slots.Live)
	return nil
}

// cleanup clears leftovers of an interrupted publish. A backup without a live
// slot means the swap stopped halfway, so the backup is put back first.
func (s *Store) cleanup() error {
	liveExists, err := s.exists(s.slots.Live)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrCleanupFailed, err)
	}
	backupExists, err := s.exists(s.slots.Backup)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrCleanupFailed, err)
	}
	if !liveExists && backupExists {
		s.logger.Warn("restoring backup slot left by an interrupted publish", "path", s.slots.Backup)
		if err := s.fs.Rename(s.slots.Backup, s.slots.Live); err != nil {
			return fmt.Errorf("%w: restoring backup: %w", apperrors.ErrCleanupFailed, err)
		}
	}

	for _, dir := range []string{s.slots.Staging, s.slots.Backup} {
		if err := s.fs.RemoveAll(dir); err != nil {
			return fmt.Errorf("%w: removing %s: %w", apperrors.ErrCleanupFailed, dir, err)
		}
		still, err := s.exists(dir)
		if err != nil {
			return fmt.Errorf("%w: %w", apperrors.ErrCleanupFailed, err)
		}
		if still {
			return fmt.Errorf("%w: %s still present", apperrors.ErrCleanupFailed, dir)
		}
	}
	return nil
}

func (s *Store) writeStaging(idx *index.Index) (int64, error) {
	if err := s.fs.MkdirAll(s.slots.Staging, 0o755); err != nil {
		return 0, fmt.Errorf("creating staging slot: %w", err)
	}
	f, err := s.fs.OpenFile(s.snapshotPath(s.slots.Staging), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("creating snapshot file: %w", err)
	}
	n, err := Encode(f, idx)
	if err != nil {
		f.Close()
		return n, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return n, fmt.Errorf("syncing snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("closing snapshot file: %w", err)
	}
	return n, nil
}

func (s *Store) exists(path string) (bool, error) {
	return afero.Exists(s.fs, path)
}

func (s *Store) snapshotPath(slot string) string {
	return filepath.Join(slot, SnapshotFile)
}
