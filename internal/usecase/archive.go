package usecase

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"time"

	"github.com/semmidev/obx/internal/domain"
)

// OutputStore is the output directory archives are written to.
type OutputStore interface {
	domain.Storage
	CheckWritable() error
	CreatePartial(name string) (domain.PartialFile, error)
}

type Dumper interface {
	Dump(ctx context.Context, w io.Writer) error
}

// ArchiveBuilder writes the database dump and the filestore bundle into one
// archive. On any failure the partial archive is discarded.
type ArchiveBuilder struct {
	store      OutputStore
	compressor domain.Compressor
	logger     Logger
}

func NewArchiveBuilder(store OutputStore, compressor domain.Compressor, logger Logger) *ArchiveBuilder {
	return &ArchiveBuilder{
		store:      store,
		compressor: compressor,
		logger:     logger,
	}
}

// countingWriter counts bytes and remembers the first write error.
type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	if err != nil && c.err == nil {
		c.err = err
	}
	return n, err
}

// Build produces the archive for req using filestore as the filestore root.
func (b *ArchiveBuilder) Build(
	ctx context.Context,
	req domain.BackupRequest,
	filestore string,
	dumper Dumper,
	observer domain.Observer,
) (artifact domain.BackupArtifact, err error) {
	name := req.ArchiveName()

	partial, err := b.store.CreatePartial(name)
	if err != nil {
		return artifact, stageErr(domain.StageDumpInProgress,
			&domain.ArchiveWriteError{Path: name, Op: "create", Err: err})
	}
	defer func() {
		if err == nil {
			return
		}
		if derr := partial.Discard(); derr != nil {
			b.logger.Errorf("[%s] Failed to remove partial archive %s: %v", req.Database, partial.Name(), derr)
		}
	}()

	out := &countingWriter{w: partial}
	archive := b.compressor.NewArchive(out)

	observer.StageChanged(domain.StageDumpInProgress)
	b.logger.Infof("[%s] Dumping database...", req.Database)
	dumpSize, err := b.writeDump(ctx, archive, out, req, dumper)
	if err != nil {
		return artifact, stageErr(domain.StageDumpInProgress, err)
	}

	if err := ctx.Err(); err != nil {
		return artifact, stageErr(domain.StageFilestoreCompressing, domain.Cancelled(err))
	}
	observer.StageChanged(domain.StageFilestoreCompressing)
	b.logger.Infof("[%s] Compressing filestore %s...", req.Database, filestore)
	stats, err := b.writeFilestore(ctx, archive, out, partial.Name(), filestore, observer)
	if err != nil {
		return artifact, stageErr(domain.StageFilestoreCompressing, err)
	}

	if err := ctx.Err(); err != nil {
		return artifact, stageErr(domain.StageArchiveFinalized, domain.Cancelled(err))
	}
	if err := archive.Close(); err != nil {
		return artifact, stageErr(domain.StageArchiveFinalized,
			&domain.ArchiveWriteError{Path: partial.Name(), Op: "close", Err: err})
	}
	path, err := partial.Commit()
	if err != nil {
		return artifact, stageErr(domain.StageArchiveFinalized,
			&domain.ArchiveWriteError{Path: partial.Name(), Op: "commit", Err: err})
	}
	observer.StageChanged(domain.StageArchiveFinalized)

	return domain.BackupArtifact{
		Path:           path,
		Database:       req.Database,
		DumpSize:       dumpSize,
		FilestoreFiles: stats.Files,
		FilestoreSize:  stats.Bytes,
		ArchiveSize:    out.n,
		CreatedAt:      time.Now(),
	}, nil
}

func (b *ArchiveBuilder) writeDump(
	ctx context.Context,
	archive domain.ArchiveWriter,
	out *countingWriter,
	req domain.BackupRequest,
	dumper Dumper,
) (int64, error) {
	w, err := archive.Entry(req.DumpEntryName(), domain.EntryDeflate)
	if err != nil {
		return 0, &domain.ArchiveWriteError{Path: req.ArchiveName(), Op: "create dump entry", Err: err}
	}

	entry := &countingWriter{w: w}
	if err := dumper.Dump(ctx, entry); err != nil {
		switch {
		case ctx.Err() != nil:
			return entry.n, domain.Cancelled(ctx.Err())
		case out.err != nil:
			return entry.n, &domain.ArchiveWriteError{Path: req.ArchiveName(), Op: "write dump", Err: out.err}
		case entry.err != nil:
			return entry.n, &domain.ArchiveWriteError{Path: req.ArchiveName(), Op: "write dump", Err: entry.err}
		}
		return entry.n, err
	}
	return entry.n, nil
}

func (b *ArchiveBuilder) writeFilestore(
	ctx context.Context,
	archive domain.ArchiveWriter,
	out *countingWriter,
	archivePath string,
	root string,
	observer domain.Observer,
) (domain.BundleStats, error) {
	w, err := archive.Entry(domain.FilestoreEntryName, domain.EntryStore)
	if err != nil {
		return domain.BundleStats{}, &domain.ArchiveWriteError{Path: archivePath, Op: "create filestore entry", Err: err}
	}

	stats, err := b.compressor.BundleDirectory(ctx, root, w, observer.FileAdded)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return stats, domain.Cancelled(ctx.Err())
		case out.err != nil:
			return stats, &domain.ArchiveWriteError{Path: archivePath, Op: "write filestore", Err: out.err}
		case errors.Is(err, fs.ErrPermission):
			return stats, &domain.FilestorePermissionError{Path: root, Err: err}
		}
		return stats, &domain.ArchiveWriteError{Path: archivePath, Op: "bundle filestore", Err: err}
	}
	return stats, nil
}

func stageErr(stage domain.Stage, err error) error {
	return &domain.StageError{Stage: stage, Err: err}
}
