package services

import (
	"context"
	"sync"
	"testing"

	"github.com/taskmaster/tasksync/internal/adapters/kvstore"
	"github.com/taskmaster/tasksync/internal/adapters/repository"
	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/domain/reconcile"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
	"github.com/taskmaster/tasksync/internal/ports"
)

type mockGateway struct {
	mu          sync.Mutex
	fetchCalls  int
	deleteCalls int
	syncCalls   int

	FetchAllFunc   func(ctx context.Context) (reconcile.Result, error)
	PushDeleteFunc func(ctx context.Context, task entities.Task) (*ports.DeleteReply, error)
	PushSyncFunc   func(ctx context.Context, tasks []entities.Task) (reconcile.Result, error)
}

func (m *mockGateway) FetchAll(ctx context.Context) (reconcile.Result, error) {
	m.mu.Lock()
	m.fetchCalls++
	m.mu.Unlock()
	if m.FetchAllFunc != nil {
		return m.FetchAllFunc(ctx)
	}
	return reconcile.Result{Shape: reconcile.ShapeEmpty}, nil
}

func (m *mockGateway) PushDelete(ctx context.Context, task entities.Task) (*ports.DeleteReply, error) {
	m.mu.Lock()
	m.deleteCalls++
	m.mu.Unlock()
	if m.PushDeleteFunc != nil {
		return m.PushDeleteFunc(ctx, task)
	}
	return &ports.DeleteReply{}, nil
}

func (m *mockGateway) PushSync(ctx context.Context, tasks []entities.Task) (reconcile.Result, error) {
	m.mu.Lock()
	m.syncCalls++
	m.mu.Unlock()
	if m.PushSyncFunc != nil {
		return m.PushSyncFunc(ctx, tasks)
	}
	return reconcile.Result{Shape: reconcile.ShapeEmpty}, nil
}

func (m *mockGateway) calls() (fetch, del, sync int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls, m.deleteCalls, m.syncCalls
}

type mockNotifier struct {
	mu   sync.Mutex
	seen []entities.Notification
}

func (m *mockNotifier) Notify(_ context.Context, n entities.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, n)
}

func (m *mockNotifier) last(t *testing.T) entities.Notification {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.seen) == 0 {
		t.Fatal("expected a notification, got none")
	}
	return m.seen[len(m.seen)-1]
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

func newTestStore(t *testing.T, tasks ...entities.Task) *repository.TaskStore {
	t.Helper()
	ctx := context.Background()
	adapter := kvstore.NewAdapter(kvstore.NewMemory(), logger.NewNop())
	store := repository.NewTaskStore(ctx, adapter, repository.DefaultKeys, nil, logger.NewNop())
	if len(tasks) > 0 {
		store.ReplaceAll(ctx, tasks)
	}
	return store
}

func task(id, title string) entities.Task {
	return entities.Task{
		ID:        id,
		Title:     title,
		Priority:  entities.PriorityMedium,
		Status:    entities.TaskStatusPending,
		CreatedAt: "2024-05-01T09:30:00.000Z",
	}
}

func ids(tasks []entities.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}
