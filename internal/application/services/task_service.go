package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/taskmaster/tasksync/internal/adapters/notify"
	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
	"github.com/taskmaster/tasksync/internal/ports"
)

const (
	msgTaskAdded        = "Task added successfully!"
	msgTaskNotFound     = "Task not found"
	msgTaskDeleted      = "Task deleted successfully"
	msgDeletedOffline   = "Task deleted locally (webhook connection failed)"
	msgDeletedWithError = "Task deleted locally (webhook error)"
)

// DefaultDeliveryTimeout bounds a detached delete notification
const DefaultDeliveryTimeout = 2 * time.Minute

// TaskService handles local task operations
type TaskService struct {
	store    ports.TaskStore
	gateway  ports.TaskGateway
	notifier ports.Notifier
	validate *validator.Validate
	logger   *logger.Logger
	now      func() time.Time

	deliveryTimeout time.Duration
	deliveries      sync.WaitGroup

	idMu   sync.Mutex
	lastID int64
}

// NewTaskService creates a new task service
func NewTaskService(store ports.TaskStore, gateway ports.TaskGateway, notifier ports.Notifier, logger *logger.Logger) *TaskService {
	return &TaskService{
		store:           store,
		gateway:         gateway,
		notifier:        notifier,
		validate:        validator.New(),
		logger:          logger.WithComponent("tasks"),
		now:             time.Now,
		deliveryTimeout: DefaultDeliveryTimeout,
	}
}

// AddTask validates and prepends a new Pending task
func (s *TaskService) AddTask(ctx context.Context, req ports.CreateTaskRequest) (*entities.Task, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)

	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrInvalidTask, err)
	}

	if req.Priority == "" {
		req.Priority = entities.PriorityMedium
	}

	now := s.now()
	task := entities.Task{
		ID:          s.nextID(now),
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Priority:    req.Priority,
		Status:      entities.TaskStatusPending,
		CreatedAt:   entities.FormatTime(now),
	}

	s.store.Add(ctx, task)
	s.notifier.Notify(ctx, notify.Success(msgTaskAdded))

	s.logger.Infow("Task created successfully", "task_id", task.ID, "title", task.Title)
	return &task, nil
}

// DeleteTask removes the task locally at once, then tells the webhook in the
// background. The local removal is never rolled back.
func (s *TaskService) DeleteTask(ctx context.Context, id string) error {
	removed, err := s.store.Remove(ctx, id)
	if err != nil {
		s.notifier.Notify(ctx, notify.Error(msgTaskNotFound))
		return err
	}

	s.logger.Infow("Task deleted locally", "task_id", id)

	s.deliveries.Add(1)
	go s.deliverDelete(context.WithoutCancel(ctx), removed)
	return nil
}

func (s *TaskService) deliverDelete(ctx context.Context, task entities.Task) {
	defer s.deliveries.Done()

	ctx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()

	reply, err := s.gateway.PushDelete(ctx, task)
	if err != nil {
		s.logger.Warnw("Failed to notify webhook of deletion", "task_id", task.ID, "error", err)

		var transport *entities.TransportError
		if errors.As(err, &transport) && transport.Unreachable() {
			s.notifier.Notify(ctx, notify.Info(msgDeletedOffline))
		} else {
			s.notifier.Notify(ctx, notify.Info(msgDeletedWithError))
		}
		return
	}

	message := msgTaskDeleted
	if reply != nil && reply.Message != "" {
		message = reply.Message
	}
	s.notifier.Notify(ctx, notify.Success(message))
}

// Wait blocks until every pending delete notification has finished
func (s *TaskService) Wait() {
	s.deliveries.Wait()
}

// ToggleTask flips a task between Pending and Completed
func (s *TaskService) ToggleTask(ctx context.Context, id string) (*entities.Task, error) {
	task, err := s.store.Toggle(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("Task toggled", "task_id", id, "status", task.Status)
	return &task, nil
}

// ListTasks returns the collection with its summary
func (s *TaskService) ListTasks(ctx context.Context) *ports.TaskListResponse {
	tasks := s.store.List()

	resp := &ports.TaskListResponse{
		Tasks:          tasks,
		PendingNumbers: entities.PendingNumbers(tasks),
		Stats:          entities.ComputeStats(tasks),
	}
	if last, ok := s.store.LastSync(); ok {
		formatted := entities.FormatTime(last)
		resp.LastSync = &formatted
	}
	return resp
}

// nextID returns a millisecond timestamp, bumped when two tasks are created
// within the same millisecond
func (s *TaskService) nextID(now time.Time) string {
	s.idMu.Lock()
	defer s.idMu.Unlock()

	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return strconv.FormatInt(id, 10)
}
