package domain

import "context"

type Notifier interface {
	NotifySuccess(ctx context.Context, artifact BackupArtifact) error
	NotifyFailure(ctx context.Context, database string, err error) error
}
