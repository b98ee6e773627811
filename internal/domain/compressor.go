package domain

import (
	"context"
	"io"
)

type EntryMethod int

const (
	EntryDeflate EntryMethod = iota
	EntryStore
)

type ArchiveWriter interface {
	// Entry starts a new entry; the previous entry is finished implicitly.
	Entry(name string, method EntryMethod) (io.Writer, error)
	Close() error
}

type BundleStats struct {
	Files int
	Bytes int64
}

type Compressor interface {
	NewArchive(w io.Writer) ArchiveWriter
	// BundleDirectory writes the tree under root into w as a nested archive.
	BundleDirectory(ctx context.Context, root string, w io.Writer, onFile func(relPath string, size int64)) (BundleStats, error)
}
