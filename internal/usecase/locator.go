package usecase

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/mitchellh/go-homedir"
	"github.com/semmidev/obx/internal/domain"
)

// DataDirReader extracts the data directory from an installation config
// file. It returns "" when the file has no such option.
type DataDirReader interface {
	DataDir(path string) (string, error)
}

type LocatorOptions struct {
	// DataDirs come from structured configuration and are probed first.
	DataDirs []string
	// ConfigFiles are installation config files parsed for a data directory.
	ConfigFiles []string
	Candidates  []domain.FilestoreCandidate
	GOOS        string
}

// Locator resolves the filestore directory of a database.
type Locator struct {
	opts   LocatorOptions
	reader DataDirReader
	logger Logger
}

func NewLocator(opts LocatorOptions, reader DataDirReader, logger Logger) *Locator {
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	return &Locator{opts: opts, reader: reader, logger: logger}
}

// Locate validates override when given, otherwise probes the candidates in
// priority order and returns the first valid directory.
func (l *Locator) Locate(database, override string) (string, error) {
	if override != "" {
		path, err := homedir.Expand(override)
		if err != nil {
			path = override
		}
		if err := validateFilestore(path); err != nil {
			return "", l.overrideError(database, override, err)
		}
		return path, nil
	}

	candidates := l.Candidates(database)
	path, err := Resolve(candidates, validateFilestore)
	if err != nil {
		var perm *domain.FilestorePermissionError
		if errors.As(err, &perm) {
			return "", err
		}
		return "", &domain.FilestoreNotFoundError{Database: database, Probed: candidates}
	}
	l.logger.Infof("[%s] Detected filestore: %s", database, path)
	return path, nil
}

func (l *Locator) overrideError(database, path string, err error) error {
	var perm *domain.FilestorePermissionError
	if errors.As(err, &perm) {
		return err
	}
	return &domain.FilestoreNotFoundError{
		Database: database,
		Probed:   []string{path},
		Reason:   err.Error(),
	}
}

// Candidates returns the probe list for database in priority order.
func (l *Locator) Candidates(database string) []string {
	var paths []string
	seen := make(map[string]bool)
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		paths = append(paths, p)
	}

	for _, dir := range l.opts.DataDirs {
		add(filestoreInDataDir(dir, database))
	}

	if l.reader != nil {
		for _, file := range l.opts.ConfigFiles {
			expanded, err := homedir.Expand(file)
			if err != nil {
				continue
			}
			dir, err := l.reader.DataDir(expanded)
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					l.logger.Warnf("[%s] Skipping config file %s: %v", database, expanded, err)
				}
				continue
			}
			add(filestoreInDataDir(dir, database))
		}
	}

	for _, c := range l.opts.Candidates {
		if !c.AppliesTo(l.opts.GOOS) {
			continue
		}
		p := c.Path(database)
		if !c.NeedsDatabase() {
			// A template without {db} names a filestore root.
			p = filepath.Join(p, database)
		}
		if expanded, err := homedir.Expand(p); err == nil {
			p = expanded
		}
		add(p)
	}
	return paths
}

func filestoreInDataDir(dataDir, database string) string {
	if dataDir == "" {
		return ""
	}
	if expanded, err := homedir.Expand(dataDir); err == nil {
		dataDir = expanded
	}
	return filepath.Join(dataDir, "filestore", database)
}

// Resolve returns the first candidate accepted by validate. Rejected
// candidates are not fatal. When every candidate is rejected the first
// permission error is returned, otherwise errNoCandidate.
func Resolve(candidates []string, validate func(string) error) (string, error) {
	var permErr error
	for _, c := range candidates {
		err := validate(c)
		if err == nil {
			return c, nil
		}
		var perm *domain.FilestorePermissionError
		if permErr == nil && errors.As(err, &perm) {
			permErr = err
		}
	}
	if permErr != nil {
		return "", permErr
	}
	return "", errNoCandidate
}

var errNoCandidate = errors.New("no candidate matched")

// validateFilestore accepts existing, readable, non-empty directories.
func validateFilestore(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return &domain.FilestorePermissionError{Path: path, Err: err}
		}
		return fmt.Errorf("%s does not exist", path)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	dir, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return &domain.FilestorePermissionError{Path: path, Err: err}
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer dir.Close()

	if _, err := dir.Readdirnames(1); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s is empty", path)
		}
		if errors.Is(err, fs.ErrPermission) {
			return &domain.FilestorePermissionError{Path: path, Err: err}
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}
