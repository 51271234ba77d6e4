package entities

import (
	"encoding/json"
	"errors"
	"time"
)

// Common errors
var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrInvalidTask   = errors.New("invalid task")
	ErrNotConfigured = errors.New("webhook endpoint not configured")
)

// Enums and types
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "Pending"
	TaskStatusCompleted TaskStatus = "Completed"
	// TaskStatusSynced is written by the spreadsheet workflow and never kept locally.
	TaskStatusSynced TaskStatus = "Synced"
)

// IsKnown reports whether the status is one of the two local states.
func (s TaskStatus) IsKnown() bool {
	return s == TaskStatusPending || s == TaskStatusCompleted
}

// Toggled returns the opposite local state. Anything that is not Completed flips to Completed.
func (s TaskStatus) Toggled() TaskStatus {
	if s == TaskStatusCompleted {
		return TaskStatusPending
	}
	return TaskStatusCompleted
}

// Task represents a task record as stored locally and exchanged with the webhook
type Task struct {
	ID          string          `json:"id" yaml:"id"`
	Title       string          `json:"title" yaml:"title"`
	Description string          `json:"description" yaml:"description"`
	DueDate     string          `json:"dueDate" yaml:"dueDate"`
	Priority    Priority        `json:"priority" yaml:"priority"`
	Status      TaskStatus      `json:"status" yaml:"status"`
	CreatedAt   string          `json:"createdAt" yaml:"createdAt"`
	RowNumber   json.RawMessage `json:"row_number,omitempty" yaml:"-"`
}

// IsCompleted reports whether the task is done
func (t *Task) IsCompleted() bool {
	return t.Status == TaskStatusCompleted
}

// TaskStats summarizes a task collection
type TaskStats struct {
	Total     int `json:"total" yaml:"total"`
	Completed int `json:"completed" yaml:"completed"`
	Pending   int `json:"pending" yaml:"pending"`
}

// ComputeStats counts tasks by status. Statuses other than Pending and Completed
// only contribute to the total.
func ComputeStats(tasks []Task) TaskStats {
	stats := TaskStats{Total: len(tasks)}
	for i := range tasks {
		switch tasks[i].Status {
		case TaskStatusCompleted:
			stats.Completed++
		case TaskStatusPending:
			stats.Pending++
		}
	}
	return stats
}

// PendingNumbers assigns a 1-based display number to each pending task in list order.
// Tasks that are not pending get 0.
func PendingNumbers(tasks []Task) []int {
	numbers := make([]int, len(tasks))
	n := 0
	for i := range tasks {
		if tasks[i].Status == TaskStatusPending {
			n++
			numbers[i] = n
		}
	}
	return numbers
}

// NotificationKind classifies a user-facing notification
type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationError   NotificationKind = "error"
	NotificationInfo    NotificationKind = "info"
)

// Notification is a transient message emitted after every terminal outcome of
// add, delete, fetch and sync.
type Notification struct {
	Kind    NotificationKind `json:"type" yaml:"type"`
	Message string           `json:"message" yaml:"message"`
}

// ISOTimeLayout matches the millisecond UTC timestamps the webhook and the stored
// records use (e.g. 2024-05-01T09:30:00.000Z).
const ISOTimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in ISOTimeLayout
func FormatTime(t time.Time) string {
	return t.UTC().Format(ISOTimeLayout)
}

// ParseTime accepts ISOTimeLayout and plain RFC 3339
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(ISOTimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
