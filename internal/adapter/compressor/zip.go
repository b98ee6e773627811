package compressor

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/semmidev/obx/internal/domain"
)

type ZipCompressor struct {
	level int
}

// NewZip returns a compressor writing deflate entries at level
// (flate.DefaultCompression when out of range).
func NewZip(level int) *ZipCompressor {
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		level = flate.DefaultCompression
	}
	return &ZipCompressor{level: level}
}

func (z *ZipCompressor) newWriter(w io.Writer) *zip.Writer {
	zw := zip.NewWriter(w)
	level := z.level
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})
	return zw
}

func (z *ZipCompressor) NewArchive(w io.Writer) domain.ArchiveWriter {
	return &zipArchive{zw: z.newWriter(w)}
}

type zipArchive struct {
	zw *zip.Writer
}

func (a *zipArchive) Entry(name string, method domain.EntryMethod) (io.Writer, error) {
	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	}
	if method == domain.EntryStore {
		header.Method = zip.Store
	}
	header.SetMode(0o600)

	w, err := a.zw.CreateHeader(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create entry %s: %w", name, err)
	}
	return w, nil
}

func (a *zipArchive) Close() error {
	if err := a.zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

// BundleDirectory writes every regular file below root into a zip stream on
// w, named by its slash separated path relative to root. Symlinks and other
// special files are skipped.
func (z *ZipCompressor) BundleDirectory(
	ctx context.Context,
	root string,
	w io.Writer,
	onFile func(relPath string, size int64),
) (domain.BundleStats, error) {
	var stats domain.BundleStats
	zw := z.newWriter(w)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		size, err := addFile(zw, header, path)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", rel, err)
		}

		stats.Files++
		stats.Bytes += size
		if onFile != nil {
			onFile(header.Name, size)
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	if err := zw.Close(); err != nil {
		return stats, fmt.Errorf("failed to finish bundle: %w", err)
	}
	return stats, nil
}

func addFile(zw *zip.Writer, header *zip.FileHeader, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w, err := zw.CreateHeader(header)
	if err != nil {
		return 0, err
	}
	return io.Copy(w, f)
}
