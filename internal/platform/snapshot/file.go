// Package snapshot persists record store snapshots to a single storage slot
// and writes them back asynchronously as the store changes.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/carehub/carehub/internal/domain/records"
)

// FileAdapter keeps the snapshot in one JSON file.
type FileAdapter struct {
	Path string
}

// NewFileAdapter returns an adapter for the file at path.
func NewFileAdapter(path string) *FileAdapter {
	return &FileAdapter{Path: path}
}

// Load reads the snapshot file. A missing or empty file is an empty slot.
func (a *FileAdapter) Load(_ context.Context) (*records.Snapshot, error) {
	data, err := os.ReadFile(a.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	return records.DecodeSnapshot(data)
}

// Save writes the snapshot to a temporary file next to Path and renames it
// into place, so readers never observe a partial write.
func (a *FileAdapter) Save(ctx context.Context, snap *records.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := records.EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(a.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(a.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, a.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot file: %w", err)
	}
	return nil
}

func (a *FileAdapter) String() string {
	return "file:" + a.Path
}
