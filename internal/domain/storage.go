package domain

import (
	"context"
	"io"
)

type Storage interface {
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// PartialFile is an archive being written. It only becomes visible under its
// final name on Commit; Discard removes it.
type PartialFile interface {
	io.Writer
	Name() string
	Commit() (string, error)
	Discard() error
}
