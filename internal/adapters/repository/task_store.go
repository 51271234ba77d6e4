package repository

import (
	"context"
	"sync"
	"time"

	"github.com/taskmaster/tasksync/internal/adapters/kvstore"
	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
	"github.com/taskmaster/tasksync/internal/infrastructure/metrics"
)

// Keys names the two persisted entries
type Keys struct {
	Tasks    string
	LastSync string
}

// DefaultKeys are the keys the browser client used
var DefaultKeys = Keys{Tasks: "smart-tasks", LastSync: "last-sync"}

// TaskStore implements ports.TaskStore on top of a kvstore.Adapter
type TaskStore struct {
	mu       sync.RWMutex
	tasks    []entities.Task
	lastSync *time.Time

	store   *kvstore.Adapter
	keys    Keys
	metrics *metrics.Metrics
	logger  *logger.Logger
}

// NewTaskStore loads the persisted collection. Absent or unreadable data
// starts an empty store.
func NewTaskStore(ctx context.Context, store *kvstore.Adapter, keys Keys, m *metrics.Metrics, log *logger.Logger) *TaskStore {
	s := &TaskStore{
		store:   store,
		keys:    keys,
		metrics: m,
		logger:  log.WithComponent("task_store"),
	}

	s.tasks = kvstore.Get(ctx, store, keys.Tasks, []entities.Task{})
	if s.tasks == nil {
		s.tasks = []entities.Task{}
	}

	if raw := kvstore.Get[*string](ctx, store, keys.LastSync, nil); raw != nil {
		if t, err := entities.ParseTime(*raw); err == nil {
			s.lastSync = &t
		} else {
			s.logger.Warnw("Ignoring unparsable last sync time", "value", *raw, "error", err)
		}
	}

	s.logger.Infow("Task store loaded", "tasks", len(s.tasks))
	s.publish()
	return s
}

// List returns a copy of the collection in display order
func (s *TaskStore) List() []entities.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entities.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Get looks a task up by id
func (s *TaskStore) Get(id string) (entities.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.tasks[i], true
	}
	return entities.Task{}, false
}

// ReplaceAll swaps the whole collection, keeping the given order
func (s *TaskStore) ReplaceAll(ctx context.Context, tasks []entities.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make([]entities.Task, len(tasks))
	copy(s.tasks, tasks)
	s.persist(ctx)
}

// Add prepends task
func (s *TaskStore) Add(ctx context.Context, task entities.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append([]entities.Task{task}, s.tasks...)
	s.persist(ctx)
}

// Remove deletes the task with id and returns it
func (s *TaskStore) Remove(ctx context.Context, id string) (entities.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return entities.Task{}, &entities.NotFoundError{ID: id}
	}

	removed := s.tasks[i]
	s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
	s.persist(ctx)
	return removed, nil
}

// Toggle flips the task between Pending and Completed and returns the result
func (s *TaskStore) Toggle(ctx context.Context, id string) (entities.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return entities.Task{}, &entities.NotFoundError{ID: id}
	}

	s.tasks[i].Status = s.tasks[i].Status.Toggled()
	s.persist(ctx)
	return s.tasks[i], nil
}

// Stats summarizes the collection
func (s *TaskStore) Stats() entities.TaskStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return entities.ComputeStats(s.tasks)
}

// LastSync returns the last successful fetch or sync time
func (s *TaskStore) LastSync() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastSync == nil {
		return time.Time{}, false
	}
	return *s.lastSync, true
}

// SetLastSync records a successful fetch or sync
func (s *TaskStore) SetLastSync(ctx context.Context, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t = t.UTC()
	s.lastSync = &t
	if err := s.store.Set(ctx, s.keys.LastSync, entities.FormatTime(t)); err != nil {
		s.logger.Errorw("Failed to persist last sync time", "error", err)
	}
}

func (s *TaskStore) indexOf(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// persist must be called with mu held. Failures stay in memory only.
func (s *TaskStore) persist(ctx context.Context) {
	if err := s.store.Set(ctx, s.keys.Tasks, s.tasks); err != nil {
		s.logger.Errorw("Failed to persist tasks", "tasks", len(s.tasks), "error", err)
	}
	s.publish()
}

func (s *TaskStore) publish() {
	stats := entities.ComputeStats(s.tasks)
	s.metrics.SetTasks(stats.Pending, stats.Completed, stats.Total)
}
