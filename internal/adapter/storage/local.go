package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/semmidev/obx/internal/domain"
)

const partialSuffix = ".partial"

type LocalStorage struct {
	basePath string
}

func NewLocal(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// CheckWritable creates and removes a probe file in the output directory.
func (l *LocalStorage) CheckWritable() error {
	f, err := os.CreateTemp(l.basePath, ".obx-probe-*")
	if err != nil {
		return fmt.Errorf("output directory %s is not writable: %w", l.basePath, err)
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("failed to remove probe file: %w", err)
	}
	return nil
}

// CreatePartial opens a hidden ".{name}.partial" file that becomes name on
// Commit.
func (l *LocalStorage) CreatePartial(name string) (domain.PartialFile, error) {
	finalPath := filepath.Join(l.basePath, name)
	if _, err := os.Lstat(finalPath); err == nil {
		return nil, fmt.Errorf("archive %s already exists", finalPath)
	}

	partialPath := filepath.Join(l.basePath, "."+name+partialSuffix)
	f, err := os.OpenFile(partialPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create partial archive: %w", err)
	}
	return &PartialFile{file: f, finalPath: finalPath}, nil
}

func (l *LocalStorage) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files = append(files, entry.Name())
	}

	return files, nil
}

func (l *LocalStorage) Delete(ctx context.Context, name string) error {
	if name != filepath.Base(name) {
		return fmt.Errorf("invalid file name %q", name)
	}
	filePath := filepath.Join(l.basePath, name)
	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// PartialFile is an archive under construction in the output directory.
type PartialFile struct {
	file      *os.File
	finalPath string
	done      bool
}

func (p *PartialFile) Write(b []byte) (int, error) {
	return p.file.Write(b)
}

func (p *PartialFile) Name() string {
	return p.file.Name()
}

// Commit flushes the file to disk and renames it to its final name.
func (p *PartialFile) Commit() (string, error) {
	if p.done {
		return "", errors.New("partial archive already closed")
	}
	p.done = true

	if err := p.file.Sync(); err != nil {
		p.file.Close()
		os.Remove(p.file.Name())
		return "", fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := p.file.Close(); err != nil {
		os.Remove(p.file.Name())
		return "", fmt.Errorf("failed to close archive: %w", err)
	}
	if _, err := os.Lstat(p.finalPath); err == nil {
		os.Remove(p.file.Name())
		return "", fmt.Errorf("archive %s already exists", p.finalPath)
	}
	if err := os.Rename(p.file.Name(), p.finalPath); err != nil {
		os.Remove(p.file.Name())
		return "", fmt.Errorf("failed to rename archive: %w", err)
	}
	syncDir(filepath.Dir(p.finalPath))
	return p.finalPath, nil
}

// Discard closes and removes the partial file. It is safe after Commit.
func (p *PartialFile) Discard() error {
	if p.done {
		return nil
	}
	p.done = true
	p.file.Close()
	if err := os.Remove(p.file.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove partial archive: %w", err)
	}
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}
