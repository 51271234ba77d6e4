package repository

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/taskmaster/tasksync/internal/adapters/kvstore"
	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
	"github.com/taskmaster/tasksync/internal/infrastructure/metrics"
)

type brokenBackend struct {
	*kvstore.Memory
}

func (brokenBackend) Set(context.Context, string, string) error {
	return errors.New("quota exceeded")
}

func newStore(t *testing.T, backend *kvstore.Memory) *TaskStore {
	t.Helper()
	adapter := kvstore.NewAdapter(backend, logger.NewNop())
	return NewTaskStore(context.Background(), adapter, DefaultKeys, nil, logger.NewNop())
}

func sampleTasks() []entities.Task {
	return []entities.Task{
		{ID: "1", Title: "first", Priority: entities.PriorityHigh, Status: entities.TaskStatusPending, CreatedAt: "2024-05-01T09:30:00.000Z", RowNumber: json.RawMessage("2")},
		{ID: "2", Title: "second", Priority: entities.PriorityLow, Status: entities.TaskStatusCompleted, CreatedAt: "2024-05-01T09:31:00.000Z"},
	}
}

func TestTaskStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	file, err := kvstore.NewFile(path)
	if err != nil {
		t.Fatal(err)
	}
	store := NewTaskStore(ctx, kvstore.NewAdapter(file, logger.NewNop()), DefaultKeys, nil, logger.NewNop())
	store.ReplaceAll(ctx, sampleTasks())
	syncedAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store.SetLastSync(ctx, syncedAt)

	reopened, err := kvstore.NewFile(path)
	if err != nil {
		t.Fatal(err)
	}
	restored := NewTaskStore(ctx, kvstore.NewAdapter(reopened, logger.NewNop()), DefaultKeys, nil, logger.NewNop())

	if got := restored.List(); !reflect.DeepEqual(got, sampleTasks()) {
		t.Errorf("tasks did not survive reload:\n got  %+v\n want %+v", got, sampleTasks())
	}
	last, ok := restored.LastSync()
	if !ok || !last.Equal(syncedAt) {
		t.Errorf("expected last sync %v, got %v (ok=%v)", syncedAt, last, ok)
	}
}

func TestTaskStoreEmptyByDefault(t *testing.T) {
	store := newStore(t, kvstore.NewMemory())

	if len(store.List()) != 0 {
		t.Errorf("expected empty store, got %d tasks", len(store.List()))
	}
	if _, ok := store.LastSync(); ok {
		t.Error("expected no last sync on a fresh store")
	}
}

func TestTaskStoreAddPrepends(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, kvstore.NewMemory())
	store.ReplaceAll(ctx, sampleTasks())

	store.Add(ctx, entities.Task{ID: "3", Title: "newest", Status: entities.TaskStatusPending})

	got := store.List()
	if len(got) != 3 || got[0].ID != "3" || got[1].ID != "1" || got[2].ID != "2" {
		t.Errorf("expected new task first, got %+v", got)
	}
}

func TestTaskStoreRemove(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, kvstore.NewMemory())
	store.ReplaceAll(ctx, sampleTasks())

	removed, err := store.Remove(ctx, "1")
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if removed.Title != "first" {
		t.Errorf("expected removed task to be returned, got %+v", removed)
	}
	if got := store.List(); len(got) != 1 || got[0].ID != "2" {
		t.Errorf("unexpected remaining tasks %+v", got)
	}

	_, err = store.Remove(ctx, "missing")
	if !errors.Is(err, entities.ErrTaskNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	var nf *entities.NotFoundError
	if !errors.As(err, &nf) || nf.ID != "missing" {
		t.Errorf("expected NotFoundError for id, got %v", err)
	}
}

func TestTaskStoreToggle(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, kvstore.NewMemory())
	store.ReplaceAll(ctx, sampleTasks())

	toggled, err := store.Toggle(ctx, "1")
	if err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if toggled.Status != entities.TaskStatusCompleted {
		t.Errorf("expected Completed, got %s", toggled.Status)
	}

	toggled, _ = store.Toggle(ctx, "1")
	if toggled.Status != entities.TaskStatusPending {
		t.Errorf("expected Pending after second toggle, got %s", toggled.Status)
	}

	if _, err := store.Toggle(ctx, "missing"); !errors.Is(err, entities.ErrTaskNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestTaskStoreListIsACopy(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, kvstore.NewMemory())
	store.ReplaceAll(ctx, sampleTasks())

	list := store.List()
	list[0].Title = "mutated"

	if task, _ := store.Get("1"); task.Title != "first" {
		t.Errorf("store was mutated through List: %q", task.Title)
	}
}

func TestTaskStoreSwallowsPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	adapter := kvstore.NewAdapter(brokenBackend{kvstore.NewMemory()}, logger.NewNop())
	store := NewTaskStore(ctx, adapter, DefaultKeys, metrics.New(), logger.NewNop())

	store.Add(ctx, entities.Task{ID: "1", Title: "kept in memory", Status: entities.TaskStatusPending})
	store.SetLastSync(ctx, time.Now())

	if got := store.List(); len(got) != 1 {
		t.Errorf("expected in-memory state to survive write failure, got %+v", got)
	}
	if _, ok := store.LastSync(); !ok {
		t.Error("expected last sync to be kept in memory")
	}
}

func TestTaskStoreStats(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, kvstore.NewMemory())
	store.ReplaceAll(ctx, sampleTasks())

	want := entities.TaskStats{Total: 2, Completed: 1, Pending: 1}
	if got := store.Stats(); got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}
