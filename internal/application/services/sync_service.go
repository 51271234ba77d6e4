package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskmaster/tasksync/internal/adapters/notify"
	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/domain/reconcile"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
	"github.com/taskmaster/tasksync/internal/infrastructure/metrics"
	"github.com/taskmaster/tasksync/internal/ports"
)

// Notification texts shown after fetch and sync
const (
	msgLoaded          = "Loaded %d tasks from Google Sheets"
	msgNoTasks         = "No tasks found in Google Sheets"
	msgFetchFailed     = "Failed to load tasks: %v"
	msgSynced          = "Synced and loaded %d tasks from the webhook!"
	msgSyncRefreshed   = "Sync completed - refreshed tasks from the webhook"
	msgSyncRefreshAll  = "Sync completed - refreshed all tasks from the webhook"
	msgSyncTimeout     = "Sync timed out after %d seconds. Please check your webhook workflow."
	msgSyncUnreachable = "Unable to connect to the webhook. Please check your webhook URL and internet connection."
	msgSyncFailed      = "Sync failed: %v"
)

// SyncService coordinates the startup fetch, manual refreshes and manual syncs
type SyncService struct {
	gateway  ports.TaskGateway
	store    ports.TaskStore
	notifier ports.Notifier
	metrics  *metrics.Metrics
	logger   *logger.Logger
	now      func() time.Time

	initOnce sync.Once
	ready    atomic.Bool
	fetching atomic.Bool
	syncSlot chan struct{}
}

// NewSyncService creates a new sync service
func NewSyncService(gateway ports.TaskGateway, store ports.TaskStore, notifier ports.Notifier, m *metrics.Metrics, logger *logger.Logger) *SyncService {
	return &SyncService{
		gateway:  gateway,
		store:    store,
		notifier: notifier,
		metrics:  m,
		logger:   logger.WithComponent("sync"),
		now:      time.Now,
		syncSlot: make(chan struct{}, 1),
	}
}

// Initialize runs the startup fetch once. Failures keep the persisted tasks
// and are only logged: offline use is expected.
func (s *SyncService) Initialize(ctx context.Context) {
	s.initOnce.Do(func() {
		defer s.ready.Store(true)

		s.logger.Info("Initializing - fetching tasks from the webhook")
		if _, err := s.fetch(ctx, true); err != nil {
			s.logger.Warnw("Startup fetch failed, keeping local tasks", "error", err, "tasks", len(s.store.List()))
		}
	})
}

// SkipInitialFetch marks the service ready without contacting the webhook.
// A later Initialize is a no-op.
func (s *SyncService) SkipInitialFetch() {
	s.initOnce.Do(func() {
		s.logger.Info("Startup fetch disabled, serving local tasks")
		s.ready.Store(true)
	})
}

// Ready reports whether the startup fetch has finished
func (s *SyncService) Ready() bool {
	return s.ready.Load()
}

// Refresh is a user-initiated fetch. Errors are surfaced as notifications and returned.
func (s *SyncService) Refresh(ctx context.Context) (*ports.FetchOutcome, error) {
	outcome, err := s.fetch(ctx, true)
	if err != nil {
		s.notifier.Notify(ctx, notify.Error(fmt.Sprintf(msgFetchFailed, err)))
		return nil, err
	}
	return outcome, nil
}

// fetch replaces the store with the remote list. A call made while another is
// in flight is dropped. announce controls the success notification.
func (s *SyncService) fetch(ctx context.Context, announce bool) (*ports.FetchOutcome, error) {
	if !s.fetching.CompareAndSwap(false, true) {
		s.logger.Debug("Already fetching tasks, skipping duplicate call")
		return &ports.FetchOutcome{Skipped: true}, nil
	}
	defer s.fetching.Store(false)

	res, err := s.gateway.FetchAll(ctx)
	if err != nil {
		s.metrics.IncRun("fetch", "error")
		return nil, fmt.Errorf("failed to fetch tasks: %w", err)
	}

	tasks := []entities.Task{}
	if res.Complete() {
		tasks = res.Tasks
	}

	s.store.ReplaceAll(ctx, tasks)
	s.store.SetLastSync(ctx, s.now())
	s.metrics.IncRun("fetch", "ok")

	n := notify.Info(msgNoTasks)
	if len(tasks) > 0 {
		n = notify.Success(fmt.Sprintf(msgLoaded, len(tasks)))
	}
	if announce {
		s.notifier.Notify(ctx, n)
	}

	s.logger.Infow("Fetched tasks", "shape", res.Shape.String(), "tasks", len(tasks))
	return &ports.FetchOutcome{
		Shape:        res.Shape.String(),
		Tasks:        len(tasks),
		Notification: n,
	}, nil
}

// Sync pushes the local collection and adopts what the webhook returns. Only
// one sync runs at a time; later callers wait for the slot.
func (s *SyncService) Sync(ctx context.Context) (*ports.SyncOutcome, error) {
	select {
	case s.syncSlot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.syncSlot }()

	tasks := s.store.List()
	s.logger.Infow("Syncing tasks", "tasks", len(tasks))

	res, err := s.gateway.PushSync(ctx, tasks)
	if err != nil {
		s.metrics.IncRun("sync", "error")
		s.notifier.Notify(ctx, notify.Error(syncErrorMessage(err)))
		s.logger.Errorw("Sync failed", "error", err)
		return nil, fmt.Errorf("failed to sync tasks: %w", err)
	}

	if res.Complete() {
		s.store.ReplaceAll(ctx, res.Tasks)
		s.store.SetLastSync(ctx, s.now())
		s.metrics.IncRun("sync", "ok")

		n := notify.Success(fmt.Sprintf(msgSynced, len(res.Tasks)))
		s.notifier.Notify(ctx, n)
		return &ports.SyncOutcome{
			Shape:        res.Shape.String(),
			Tasks:        len(res.Tasks),
			Notification: n,
		}, nil
	}

	return s.fallback(ctx, res), nil
}

// fallback recovers a complete ordered list through a full fetch. Fetch errors
// are logged; the sync is still reported as successful and stamps last-sync.
func (s *SyncService) fallback(ctx context.Context, res reconcile.Result) *ports.SyncOutcome {
	s.metrics.IncFallback(res.Shape.String())
	s.logger.Infow("Sync response unusable, refreshing from the webhook", "shape", res.Shape.String())

	if _, err := s.fetch(ctx, false); err != nil {
		s.logger.Warnw("Fallback fetch failed", "error", err)
	}
	s.store.SetLastSync(ctx, s.now())
	s.metrics.IncRun("sync", "fallback")

	n := notify.Success(msgSyncRefreshed)
	if res.Shape == reconcile.ShapeSingle {
		n = notify.Success(msgSyncRefreshAll)
	}
	s.notifier.Notify(ctx, n)

	return &ports.SyncOutcome{
		Shape:        res.Shape.String(),
		Tasks:        len(s.store.List()),
		FellBack:     true,
		Notification: n,
	}
}

func syncErrorMessage(err error) string {
	var timeout *entities.TimeoutError
	var transport *entities.TransportError

	switch {
	case errors.As(err, &timeout):
		return fmt.Sprintf(msgSyncTimeout, int(timeout.After.Seconds()))
	case errors.As(err, &transport) && transport.Unreachable():
		return msgSyncUnreachable
	default:
		return fmt.Sprintf(msgSyncFailed, err)
	}
}
