package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrCancelled is returned when a run is interrupted through its context.
var ErrCancelled = errors.New("backup cancelled")

// StageError attributes a failure to the stage the run was performing.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage recorded in err, if any.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return StageFailed, false
}

// ConnectionError reports an authentication or network failure while
// contacting the database server.
type ConnectionError struct {
	Host string
	Port int
	// Code is the server error code name when one was returned.
	Code string
	Err  error
}

func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("connect to %s:%d", e.Host, e.Port)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	return msg + ": " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// FilestoreNotFoundError means no valid filestore directory was found.
type FilestoreNotFoundError struct {
	Database string
	Probed   []string
	// Reason is set when an explicit path was given but is unusable.
	Reason string
}

func (e *FilestoreNotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("filestore for %q not usable: %s", e.Database, e.Reason)
	}
	return fmt.Sprintf("filestore for %q not found (probed %d locations: %s)",
		e.Database, len(e.Probed), strings.Join(e.Probed, ", "))
}

// FilestorePermissionError means a filestore exists but cannot be read.
type FilestorePermissionError struct {
	Path string
	Err  error
}

func (e *FilestorePermissionError) Error() string {
	return fmt.Sprintf("filestore %s is not readable: %v", e.Path, e.Err)
}

func (e *FilestorePermissionError) Unwrap() error { return e.Err }

// DumpProcessError reports a missing dump utility or a non-zero exit.
type DumpProcessError struct {
	Binary   string
	ExitCode int
	Stderr   string
	Missing  bool
	Err      error
}

func (e *DumpProcessError) Error() string {
	switch {
	case e.Missing:
		return fmt.Sprintf("%s not found, install the PostgreSQL client tools: %v", e.Binary, e.Err)
	case e.Stderr != "":
		return fmt.Sprintf("%s exited with code %d: %s", e.Binary, e.ExitCode, e.Stderr)
	default:
		return fmt.Sprintf("%s failed: %v", e.Binary, e.Err)
	}
}

func (e *DumpProcessError) Unwrap() error { return e.Err }

// ArchiveWriteError reports an I/O failure while writing the archive.
type ArchiveWriteError struct {
	Path string
	Op   string
	Err  error
}

func (e *ArchiveWriteError) Error() string {
	return fmt.Sprintf("archive %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *ArchiveWriteError) Unwrap() error { return e.Err }

// ScheduleReadError means the existing schedule table could not be read.
// Callers treat it as an empty table.
type ScheduleReadError struct {
	Missing bool
	Err     error
}

func (e *ScheduleReadError) Error() string {
	if e.Missing {
		return fmt.Sprintf("no existing schedule table: %v", e.Err)
	}
	return fmt.Sprintf("read schedule table: %v", e.Err)
}

func (e *ScheduleReadError) Unwrap() error { return e.Err }

// ScheduleWriteError means installing the new table failed.
type ScheduleWriteError struct {
	Err error
}

func (e *ScheduleWriteError) Error() string {
	return fmt.Sprintf("install schedule table: %v", e.Err)
}

func (e *ScheduleWriteError) Unwrap() error { return e.Err }

// Cancelled wraps a context error so that it matches both ErrCancelled and
// the original context error.
func Cancelled(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return fmt.Errorf("%w: %w", ErrCancelled, context.Canceled)
}
