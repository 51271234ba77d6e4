package services

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/domain/reconcile"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
	"github.com/taskmaster/tasksync/internal/infrastructure/metrics"
	"github.com/taskmaster/tasksync/internal/ports"
)

var syncNow = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

func newSyncService(gw *mockGateway, store ports.TaskStore, n *mockNotifier) *SyncService {
	s := NewSyncService(gw, store, n, metrics.New(), logger.NewNop())
	s.now = func() time.Time { return syncNow }
	return s
}

func TestFetchEmptyBody(t *testing.T) {
	store := newTestStore(t, task("old", "stale"))
	gw := &mockGateway{}
	n := &mockNotifier{}
	s := newSyncService(gw, store, n)

	outcome, err := s.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if outcome.Tasks != 0 || len(store.List()) != 0 {
		t.Errorf("expected empty store, got %d tasks", len(store.List()))
	}
	if last, ok := store.LastSync(); !ok || !last.Equal(syncNow) {
		t.Errorf("expected last sync to be updated, got %v ok=%v", last, ok)
	}
	if got := n.last(t); got.Kind != entities.NotificationInfo || got.Message != "No tasks found in Google Sheets" {
		t.Errorf("unexpected notification %+v", got)
	}
}

func TestFetchLoadsTasks(t *testing.T) {
	store := newTestStore(t)
	gw := &mockGateway{FetchAllFunc: func(context.Context) (reconcile.Result, error) {
		return reconcile.Result{Shape: reconcile.ShapeDirect, Tasks: []entities.Task{task("2", "b"), task("1", "a")}}, nil
	}}
	n := &mockNotifier{}
	s := newSyncService(gw, store, n)

	if _, err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got := ids(store.List()); !reflect.DeepEqual(got, []string{"2", "1"}) {
		t.Errorf("expected remote order, got %v", got)
	}
	if got := n.last(t); got.Kind != entities.NotificationSuccess || got.Message != "Loaded 2 tasks from Google Sheets" {
		t.Errorf("unexpected notification %+v", got)
	}
}

func TestRefreshSurfacesErrors(t *testing.T) {
	store := newTestStore(t, task("1", "kept"))
	gw := &mockGateway{FetchAllFunc: func(context.Context) (reconcile.Result, error) {
		return reconcile.Result{}, &entities.TransportError{Operation: "fetch", StatusCode: 500}
	}}
	n := &mockNotifier{}
	s := newSyncService(gw, store, n)

	if _, err := s.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if got := n.last(t); got.Kind != entities.NotificationError {
		t.Errorf("expected error notification, got %+v", got)
	}
	if len(store.List()) != 1 {
		t.Error("expected local tasks to be kept")
	}
	if _, ok := store.LastSync(); ok {
		t.Error("last sync must not change on failure")
	}
}

func TestInitializeRunsOnceAndSwallowsErrors(t *testing.T) {
	store := newTestStore(t, task("1", "offline"))
	gw := &mockGateway{FetchAllFunc: func(context.Context) (reconcile.Result, error) {
		return reconcile.Result{}, &entities.TransportError{Operation: "fetch", Err: errors.New("connection refused")}
	}}
	n := &mockNotifier{}
	s := newSyncService(gw, store, n)

	s.Initialize(context.Background())
	s.Initialize(context.Background())

	if fetches, _, _ := gw.calls(); fetches != 1 {
		t.Errorf("expected exactly one startup fetch, got %d", fetches)
	}
	if !s.Ready() {
		t.Error("expected service to be ready after initialization")
	}
	if n.count() != 0 {
		t.Errorf("startup failures must not notify, got %d notifications", n.count())
	}
	if got := ids(store.List()); !reflect.DeepEqual(got, []string{"1"}) {
		t.Errorf("expected persisted tasks to be kept, got %v", got)
	}
}

func TestSkipInitialFetch(t *testing.T) {
	gw := &mockGateway{}
	s := newSyncService(gw, newTestStore(t), &mockNotifier{})

	s.SkipInitialFetch()
	s.Initialize(context.Background())

	if fetches, _, _ := gw.calls(); fetches != 0 {
		t.Errorf("expected no startup fetch, got %d", fetches)
	}
	if !s.Ready() {
		t.Error("expected service to be ready")
	}
}

func TestConcurrentFetchIsDropped(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	gw := &mockGateway{FetchAllFunc: func(context.Context) (reconcile.Result, error) {
		close(started)
		<-release
		return reconcile.Result{Shape: reconcile.ShapeEmpty}, nil
	}}
	s := newSyncService(gw, newTestStore(t), &mockNotifier{})

	done := make(chan error, 1)
	go func() {
		_, err := s.Refresh(context.Background())
		done <- err
	}()
	<-started

	outcome, err := s.Refresh(context.Background())
	if err != nil {
		t.Fatalf("second refresh should not error: %v", err)
	}
	if !outcome.Skipped {
		t.Error("expected second refresh to be skipped")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}
	if fetches, _, _ := gw.calls(); fetches != 1 {
		t.Errorf("expected one request, got %d", fetches)
	}
}

func TestSyncAdoptsCompleteResponse(t *testing.T) {
	store := newTestStore(t, task("1", "local"))
	var pushed []entities.Task
	gw := &mockGateway{PushSyncFunc: func(_ context.Context, tasks []entities.Task) (reconcile.Result, error) {
		pushed = tasks
		return reconcile.Result{Shape: reconcile.ShapeWrapped, Tasks: []entities.Task{task("10", "x"), task("11", "y")}}, nil
	}}
	n := &mockNotifier{}
	s := newSyncService(gw, store, n)

	outcome, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if len(pushed) != 1 || pushed[0].ID != "1" {
		t.Errorf("expected local tasks to be pushed, got %v", ids(pushed))
	}
	if outcome.FellBack {
		t.Error("did not expect a fallback")
	}
	if got := ids(store.List()); !reflect.DeepEqual(got, []string{"10", "11"}) {
		t.Errorf("expected webhook tasks, got %v", got)
	}
	if got := n.last(t); got.Message != "Synced and loaded 2 tasks from the webhook!" {
		t.Errorf("unexpected notification %+v", got)
	}
	if fetches, _, _ := gw.calls(); fetches != 0 {
		t.Errorf("expected no fetch, got %d", fetches)
	}
}

func TestSyncSingleObjectFallsBack(t *testing.T) {
	store := newTestStore(t, task("1", "local"))
	gw := &mockGateway{
		PushSyncFunc: func(context.Context, []entities.Task) (reconcile.Result, error) {
			return reconcile.Result{Shape: reconcile.ShapeSingle, Tasks: []entities.Task{task("7", "Solo")}}, nil
		},
		FetchAllFunc: func(context.Context) (reconcile.Result, error) {
			return reconcile.Result{Shape: reconcile.ShapeDirect, Tasks: []entities.Task{task("5", "e"), task("6", "f"), task("7", "Solo")}}, nil
		},
	}
	n := &mockNotifier{}
	s := newSyncService(gw, store, n)

	outcome, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("fallback must not surface an error: %v", err)
	}
	if !outcome.FellBack || outcome.Tasks != 3 {
		t.Errorf("unexpected outcome %+v", outcome)
	}
	if got := ids(store.List()); !reflect.DeepEqual(got, []string{"5", "6", "7"}) {
		t.Errorf("expected store to reflect the fetch, got %v", got)
	}
	got := n.last(t)
	if got.Kind != entities.NotificationSuccess || got.Message != "Sync completed - refreshed all tasks from the webhook" {
		t.Errorf("unexpected notification %+v", got)
	}
	if n.count() != 1 {
		t.Errorf("expected only the sync notification, got %d", n.count())
	}
}

func TestSyncUnusableResponsesFallBack(t *testing.T) {
	shapes := []reconcile.Result{
		{Shape: reconcile.ShapeEmpty},
		{Shape: reconcile.ShapeInvalid, Err: errors.New("bad json")},
		{Shape: reconcile.ShapeNone},
		{Shape: reconcile.ShapeDirect},
	}

	for _, res := range shapes {
		res := res
		t.Run(res.Shape.String(), func(t *testing.T) {
			store := newTestStore(t, task("1", "local"))
			gw := &mockGateway{
				PushSyncFunc: func(context.Context, []entities.Task) (reconcile.Result, error) { return res, nil },
				FetchAllFunc: func(context.Context) (reconcile.Result, error) {
					return reconcile.Result{Shape: reconcile.ShapeDirect, Tasks: []entities.Task{task("9", "remote")}}, nil
				},
			}
			n := &mockNotifier{}
			s := newSyncService(gw, store, n)

			if _, err := s.Sync(context.Background()); err != nil {
				t.Fatalf("Sync failed: %v", err)
			}
			if got := ids(store.List()); !reflect.DeepEqual(got, []string{"9"}) {
				t.Errorf("expected fetched tasks, got %v", got)
			}
			if got := n.last(t); got.Message != "Sync completed - refreshed tasks from the webhook" {
				t.Errorf("unexpected notification %+v", got)
			}
			if _, ok := store.LastSync(); !ok {
				t.Error("expected last sync after fallback")
			}
		})
	}
}

func TestSyncFallbackFetchErrorIsSwallowed(t *testing.T) {
	store := newTestStore(t, task("1", "local"))
	gw := &mockGateway{
		FetchAllFunc: func(context.Context) (reconcile.Result, error) {
			return reconcile.Result{}, &entities.MalformedResponseError{Operation: "fetch", Err: errors.New("bad")}
		},
	}
	n := &mockNotifier{}
	s := newSyncService(gw, store, n)

	if _, err := s.Sync(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := n.last(t); got.Kind != entities.NotificationSuccess {
		t.Errorf("expected success notification, got %+v", got)
	}
	if got := ids(store.List()); !reflect.DeepEqual(got, []string{"1"}) {
		t.Errorf("expected local tasks to be kept, got %v", got)
	}
	if last, ok := store.LastSync(); !ok || !last.Equal(syncNow) {
		t.Errorf("expected last sync %v after fallback, got %v (set=%t)", syncNow, last, ok)
	}
}

func TestSyncFallbackWhileFetchingStampsLastSync(t *testing.T) {
	store := newTestStore(t, task("1", "local"))
	gw := &mockGateway{}
	n := &mockNotifier{}
	s := newSyncService(gw, store, n)
	s.fetching.Store(true)

	out, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !out.FellBack {
		t.Error("expected a fallback")
	}
	if fetches, _, _ := gw.calls(); fetches != 0 {
		t.Errorf("expected the fallback fetch to be dropped, got %d calls", fetches)
	}
	if _, ok := store.LastSync(); !ok {
		t.Error("expected last sync after a reported success")
	}
}

func TestSyncErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{
			name:    "timeout",
			err:     &entities.TimeoutError{Operation: "sync", After: 30 * time.Second},
			message: "Sync timed out after 30 seconds. Please check your webhook workflow.",
		},
		{
			name:    "unreachable",
			err:     &entities.TransportError{Operation: "sync", Err: errors.New("dial tcp: connection refused")},
			message: "Unable to connect to the webhook. Please check your webhook URL and internet connection.",
		},
		{
			name:    "http status",
			err:     &entities.TransportError{Operation: "sync", StatusCode: 502},
			message: "Sync failed: sync: HTTP error! status: 502",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t, task("2", "b"), task("1", "a"))
			gw := &mockGateway{PushSyncFunc: func(context.Context, []entities.Task) (reconcile.Result, error) {
				return reconcile.Result{}, tt.err
			}}
			n := &mockNotifier{}
			s := newSyncService(gw, store, n)

			_, err := s.Sync(context.Background())
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
			if got := ids(store.List()); !reflect.DeepEqual(got, []string{"2", "1"}) {
				t.Errorf("store must be unchanged, got %v", got)
			}
			if _, ok := store.LastSync(); ok {
				t.Error("last sync must not be set on failure")
			}
			got := n.last(t)
			if got.Kind != entities.NotificationError || got.Message != tt.message {
				t.Errorf("unexpected notification %+v", got)
			}
			if fetches, _, _ := gw.calls(); fetches != 0 {
				t.Errorf("errors must not trigger a fetch, got %d", fetches)
			}
		})
	}
}

func TestSyncWaitsForSlot(t *testing.T) {
	s := newSyncService(&mockGateway{}, newTestStore(t), &mockNotifier{})
	s.syncSlot <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := s.Sync(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the waiting caller to give up with its context, got %v", err)
	}
}
