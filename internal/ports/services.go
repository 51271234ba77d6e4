package ports

import (
	"context"

	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/domain/reconcile"
)

// TaskGateway defines the three webhook operations. Implementations never touch
// local state; callers decide what to do with the results.
type TaskGateway interface {
	FetchAll(ctx context.Context) (reconcile.Result, error)
	PushDelete(ctx context.Context, task entities.Task) (*DeleteReply, error)
	PushSync(ctx context.Context, tasks []entities.Task) (reconcile.Result, error)
}

// Notifier receives user-facing notifications
type Notifier interface {
	Notify(ctx context.Context, n entities.Notification)
}

// TaskService interface for local task operations
type TaskService interface {
	AddTask(ctx context.Context, req CreateTaskRequest) (*entities.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ToggleTask(ctx context.Context, id string) (*entities.Task, error)
	ListTasks(ctx context.Context) *TaskListResponse
}

// SyncService interface for webhook synchronization
type SyncService interface {
	Initialize(ctx context.Context)
	Refresh(ctx context.Context) (*FetchOutcome, error)
	Sync(ctx context.Context) (*SyncOutcome, error)
	Ready() bool
}

// Request/Response Types

// CreateTaskRequest is the payload of a local task submission
type CreateTaskRequest struct {
	Title       string            `json:"title" validate:"required,max=500"`
	Description string            `json:"description" validate:"max=5000"`
	DueDate     string            `json:"dueDate" validate:"required,datetime=2006-01-02"`
	Priority    entities.Priority `json:"priority" validate:"omitempty,oneof=Low Medium High"`
}

// DeleteReply is the webhook answer to a delete notification
type DeleteReply struct {
	Message string `json:"message"`
}

// TaskListResponse is the local collection with its summary
type TaskListResponse struct {
	Tasks          []entities.Task    `json:"tasks" yaml:"tasks"`
	PendingNumbers []int              `json:"pendingNumbers" yaml:"pendingNumbers"`
	Stats          entities.TaskStats `json:"stats" yaml:"stats"`
	LastSync       *string            `json:"lastSync" yaml:"lastSync"`
}

// FetchOutcome describes a completed fetch-all
type FetchOutcome struct {
	Skipped      bool                  `json:"skipped"`
	Shape        string                `json:"shape,omitempty"`
	Tasks        int                   `json:"tasks"`
	Notification entities.Notification `json:"notification"`
}

// SyncOutcome describes a completed sync
type SyncOutcome struct {
	Shape        string                `json:"shape"`
	Tasks        int                   `json:"tasks"`
	FellBack     bool                  `json:"fellBack"`
	Notification entities.Notification `json:"notification"`
}
