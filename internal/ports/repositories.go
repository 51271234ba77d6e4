package ports

import (
	"context"
	"time"

	"github.com/taskmaster/tasksync/internal/domain/entities"
)

// KeyValueStore defines the interface for the persistent key-value medium.
// Values are opaque text; the kvstore adapter handles JSON encoding on top.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// TaskStore defines the interface for the ordered in-memory task collection.
// Every mutation is mirrored to persistent storage; persistence failures are
// logged by the implementation and never returned.
type TaskStore interface {
	List() []entities.Task
	Get(id string) (entities.Task, bool)
	ReplaceAll(ctx context.Context, tasks []entities.Task)
	Add(ctx context.Context, task entities.Task)
	Remove(ctx context.Context, id string) (entities.Task, error)
	Toggle(ctx context.Context, id string) (entities.Task, error)
	Stats() entities.TaskStats
	LastSync() (time.Time, bool)
	SetLastSync(ctx context.Context, t time.Time)
}
