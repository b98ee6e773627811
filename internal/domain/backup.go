package domain

import (
	"errors"
	"fmt"
	"time"
)

// TimestampLayout is the layout used in archive names.
const TimestampLayout = "20060102_150405"

const (
	ArchiveExt         = ".zip"
	FilestoreEntryName = "filestore.zip"
)

// BackupRequest describes one backup run. It is built once per invocation
// and never modified afterwards.
type BackupRequest struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// FilestorePath is optional. When empty the locator probes for it.
	FilestorePath string
	OutputPath    string
	Timestamp     time.Time
}

func (r BackupRequest) Validate() error {
	if r.Database == "" {
		return errors.New("database name is required")
	}
	if r.OutputPath == "" {
		return errors.New("output path is required")
	}
	if r.Port < 0 || r.Port > 65535 {
		return fmt.Errorf("invalid port %d", r.Port)
	}
	if r.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	return nil
}

// ArchiveName returns {database}_{YYYYMMDD}_{HHMMSS}.zip for the request's
// start time.
func (r BackupRequest) ArchiveName() string {
	return fmt.Sprintf("%s_%s%s", r.Database, r.Timestamp.Format(TimestampLayout), ArchiveExt)
}

// DumpEntryName is the name of the SQL dump inside the archive.
func (r BackupRequest) DumpEntryName() string {
	return r.Database + ".sql"
}

// String never includes the password.
func (r BackupRequest) String() string {
	password := ""
	if r.Password != "" {
		password = "****"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s filestore=%q output=%q",
		r.User, password, r.Host, r.Port, r.Database, r.FilestorePath, r.OutputPath)
}

// BackupArtifact is the result of a successful run.
type BackupArtifact struct {
	Path           string
	Database       string
	DumpSize       int64
	FilestoreFiles int
	FilestoreSize  int64
	ArchiveSize    int64
	CreatedAt      time.Time
	Duration       time.Duration
}
