package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/semmidev/obx/internal/domain"
)

type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

type FilestoreLocator interface {
	Locate(database, override string) (string, error)
}

const notifyTimeout = 30 * time.Second

// Backup coordinates one backup run from connection check to finalized
// archive.
type Backup struct {
	db       domain.Database
	locator  FilestoreLocator
	store    OutputStore
	builder  *ArchiveBuilder
	notifier domain.Notifier
	logger   Logger
}

func NewBackup(
	db domain.Database,
	locator FilestoreLocator,
	store OutputStore,
	compressor domain.Compressor,
	notifier domain.Notifier,
	logger Logger,
) *Backup {
	return &Backup{
		db:       db,
		locator:  locator,
		store:    store,
		builder:  NewArchiveBuilder(store, compressor, logger),
		notifier: notifier,
		logger:   logger,
	}
}

// Execute runs req to completion. Every error is a *domain.StageError
// naming the stage that failed. Nothing is retried.
func (uc *Backup) Execute(ctx context.Context, req domain.BackupRequest, observer domain.Observer) (domain.BackupArtifact, error) {
	if observer == nil {
		observer = domain.NopObserver{}
	}
	runID := uuid.NewString()[:8]
	uc.logger.Infof("[%s] Starting backup run %s: %s", req.Database, runID, req)

	artifact, err := uc.run(ctx, req, observer)
	if err != nil {
		observer.StageChanged(domain.StageFailed)
		stage, _ := domain.FailedStage(err)
		uc.logger.Errorf("[%s] Backup run %s failed at %s: %v", req.Database, runID, stage, err)
		uc.notifyFailure(ctx, req.Database, err)
		return domain.BackupArtifact{}, err
	}

	observer.StageChanged(domain.StageDone)
	uc.logger.Infof("[%s] Backup run %s completed in %s: %s (%s, dump %s, %d filestore files, %s)",
		req.Database, runID, artifact.Duration.Round(time.Millisecond), artifact.Path,
		humanize.Bytes(uint64(artifact.ArchiveSize)), humanize.Bytes(uint64(artifact.DumpSize)),
		artifact.FilestoreFiles, humanize.Bytes(uint64(artifact.FilestoreSize)))
	uc.notifySuccess(ctx, artifact)
	return artifact, nil
}

func (uc *Backup) run(ctx context.Context, req domain.BackupRequest, observer domain.Observer) (domain.BackupArtifact, error) {
	start := time.Now()
	observer.StageChanged(domain.StageIdle)

	if err := req.Validate(); err != nil {
		return domain.BackupArtifact{}, stageErr(domain.StageIdle, fmt.Errorf("invalid request: %w", err))
	}
	if err := uc.store.CheckWritable(); err != nil {
		return domain.BackupArtifact{}, stageErr(domain.StageIdle,
			&domain.ArchiveWriteError{Path: req.OutputPath, Op: "check writable", Err: err})
	}

	if err := ctx.Err(); err != nil {
		return domain.BackupArtifact{}, stageErr(domain.StageConnectionValidated, domain.Cancelled(err))
	}
	if err := uc.db.Ping(ctx); err != nil {
		if ctx.Err() != nil {
			err = domain.Cancelled(ctx.Err())
		}
		return domain.BackupArtifact{}, stageErr(domain.StageConnectionValidated, err)
	}
	observer.StageChanged(domain.StageConnectionValidated)

	if err := ctx.Err(); err != nil {
		return domain.BackupArtifact{}, stageErr(domain.StageFilestoreResolved, domain.Cancelled(err))
	}
	filestore, err := uc.locator.Locate(req.Database, req.FilestorePath)
	if err != nil {
		return domain.BackupArtifact{}, stageErr(domain.StageFilestoreResolved, err)
	}
	observer.StageChanged(domain.StageFilestoreResolved)

	if err := ctx.Err(); err != nil {
		return domain.BackupArtifact{}, stageErr(domain.StageDumpInProgress, domain.Cancelled(err))
	}
	artifact, err := uc.builder.Build(ctx, req, filestore, uc.db, observer)
	if err != nil {
		return domain.BackupArtifact{}, err
	}
	if artifact.FilestoreFiles == 0 {
		uc.logger.Warnf("[%s] Filestore %s contained no files, check the filestore path", req.Database, filestore)
	}

	artifact.Duration = time.Since(start)
	return artifact, nil
}

func (uc *Backup) notifySuccess(ctx context.Context, artifact domain.BackupArtifact) {
	if uc.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := uc.notifier.NotifySuccess(ctx, artifact); err != nil {
		uc.logger.Warnf("[%s] Failed to send notification: %v", artifact.Database, err)
	}
}

func (uc *Backup) notifyFailure(ctx context.Context, database string, runErr error) {
	if uc.notifier == nil || errors.Is(runErr, domain.ErrCancelled) {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := uc.notifier.NotifyFailure(ctx, database, runErr); err != nil {
		uc.logger.Warnf("[%s] Failed to send notification: %v", database, err)
	}
}
