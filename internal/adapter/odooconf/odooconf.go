// Package odooconf reads Odoo server configuration files.
package odooconf

import (
	"fmt"
	"os"

	"gopkg.in/ini.v1"
)

const (
	optionsSection = "options"
	dataDirKey     = "data_dir"
)

type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

// DataDir returns the data_dir option of the [options] section, or "" when
// the file does not set it. A missing file yields an error matching
// fs.ErrNotExist.
func (r *Reader) DataDir(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}

	cfg, err := ini.LoadSources(ini.LoadOptions{
		Insensitive:         true,
		IgnoreInlineComment: true,
		AllowBooleanKeys:    true,
	}, path)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", path, err)
	}

	section, err := cfg.GetSection(optionsSection)
	if err != nil {
		return "", nil
	}
	if !section.HasKey(dataDirKey) {
		return "", nil
	}
	return section.Key(dataDirKey).String(), nil
}
