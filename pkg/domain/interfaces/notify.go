package interfaces

import (
	"context"

	"github.com/secmon-lab/beetleboard/pkg/domain/model"
)

// Notifier tells operators that a sync run failed
type Notifier interface {
	NotifySyncFailure(ctx context.Context, reason error) error
}

// Archiver keeps a copy of every published snapshot outside the KV store
type Archiver interface {
	Archive(ctx context.Context, snapshot *model.Snapshot) error
}
