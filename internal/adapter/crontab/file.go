package crontab

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/semmidev/obx/internal/domain"
)

// FileTable is a schedule table kept in a file in user crontab format
// (no user field). Commits write a sibling temp file and rename it over the
// table.
type FileTable struct {
	path string
}

func NewFileTable(path string) *FileTable {
	return &FileTable{path: path}
}

func (t *FileTable) Read(ctx context.Context) (string, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return "", &domain.ScheduleReadError{
			Missing: errors.Is(err, fs.ErrNotExist),
			Err:     err,
		}
	}
	return string(data), nil
}

func (t *FileTable) Commit(ctx context.Context, text string) error {
	if err := t.commit(text); err != nil {
		return &domain.ScheduleWriteError{Err: err}
	}
	return nil
}

func (t *FileTable) commit(text string) error {
	mode := fs.FileMode(0644)
	if info, err := os.Stat(t.path); err == nil {
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(t.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp table: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp table: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod temp table: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		return fmt.Errorf("install table: %w", err)
	}
	committed = true
	return nil
}
