package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"TapeDeck/internal/domain/models"
	"TapeDeck/pkg/logger"
)

// ErrNotFound is returned when no persisted state exists yet.
var ErrNotFound = errors.New("persist: not found")

// FileStore persists the durable state subset and the scanner cache as
// JSON files next to each other. Writes go through a temp file and
// rename so a crash mid-write never leaves a torn file.
type FileStore struct {
	statePath string
	scanPath  string
	log       *logger.Logger
}

// NewFileStore creates a file-backed persister rooted at statePath. The
// scan cache lives alongside it.
func NewFileStore(statePath string, log *logger.Logger) *FileStore {
	dir := filepath.Dir(statePath)
	return &FileStore{
		statePath: statePath,
		scanPath:  filepath.Join(dir, "scan_cache.json"),
		log:       log,
	}
}

func (f *FileStore) Load(ctx context.Context) (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := readJSON(f.statePath, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (f *FileStore) Save(ctx context.Context, snap *models.Snapshot) error {
	return writeJSON(f.statePath, snap)
}

// LoadScan returns the cached scan results if they are younger than
// maxAge, ErrNotFound otherwise.
func (f *FileStore) LoadScan(ctx context.Context, maxAge time.Duration) (*models.ScanState, error) {
	var scan models.ScanState
	if err := readJSON(f.scanPath, &scan); err != nil {
		return nil, err
	}
	if maxAge > 0 && time.Since(scan.UpdatedAt) > maxAge {
		return nil, ErrNotFound
	}
	return &scan, nil
}

func (f *FileStore) SaveScan(ctx context.Context, scan *models.ScanState) error {
	return writeJSON(f.scanPath, scan)
}

func readJSON(path string, dest interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("persist read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("persist parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("persist mkdir: %w", err)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("persist marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("persist write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("persist rename: %w", err)
	}
	return nil
}
