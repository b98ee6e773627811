package usecase

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/semmidev/obx/internal/domain"
)

// Cleanup removes archives of one database older than the retention window.
// Only names of the form {database}_{YYYYMMDD}_{HHMMSS}.zip are considered.
type Cleanup struct {
	storage       domain.Storage
	logger        Logger
	retentionDays int
	now           func() time.Time
}

func NewCleanup(storage domain.Storage, logger Logger, retentionDays int) *Cleanup {
	return &Cleanup{
		storage:       storage,
		logger:        logger,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// Execute returns the names it deleted. Individual delete failures are
// logged and skipped.
func (uc *Cleanup) Execute(ctx context.Context, database string) ([]string, error) {
	if uc.retentionDays <= 0 {
		return nil, nil
	}
	uc.logger.Infof("[%s] Starting cleanup, retention: %d days", database, uc.retentionDays)

	cutoff := uc.now().AddDate(0, 0, -uc.retentionDays)
	files, err := uc.storage.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	pattern := archivePattern(database)
	var deleted []string
	for _, filename := range files {
		timestamp, ok := archiveTimestamp(pattern, filename)
		if !ok || !timestamp.Before(cutoff) {
			continue
		}

		uc.logger.Infof("[%s] Deleting old backup: %s", database, filename)
		if err := uc.storage.Delete(ctx, filename); err != nil {
			uc.logger.Errorf("[%s] Failed to delete %s: %v", database, filename, err)
			continue
		}
		deleted = append(deleted, filename)
	}

	uc.logger.Infof("[%s] Deleted %d old backup(s)", database, len(deleted))
	return deleted, nil
}

func archivePattern(database string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(database) + `_(\d{8}_\d{6})` + regexp.QuoteMeta(domain.ArchiveExt) + `$`)
}

func archiveTimestamp(pattern *regexp.Regexp, filename string) (time.Time, bool) {
	matches := pattern.FindStringSubmatch(filename)
	if len(matches) < 2 {
		return time.Time{}, false
	}

	timestamp, err := time.ParseInLocation(domain.TimestampLayout, matches[1], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return timestamp, true
}
