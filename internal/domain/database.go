package domain

import (
	"context"
	"io"
)

type Database interface {
	// Dump streams a plain SQL dump of the database into w.
	Dump(ctx context.Context, w io.Writer) error
	GetName() string
	Ping(ctx context.Context) error
}
