package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
	"github.com/taskmaster/tasksync/internal/ports"
)

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// NotificationCenter exposes the visible notification
type NotificationCenter interface {
	Current() (entities.Notification, bool)
	Dismiss()
}

// TaskHandler handles task-related requests
type TaskHandler struct {
	taskService ports.TaskService
	logger      *logger.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(taskService ports.TaskService, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		logger:      logger,
	}
}

// ListTasks handles listing the local collection
func (h *TaskHandler) ListTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, h.taskService.ListTasks(c.Request().Context()))
}

// CreateTask handles task creation
func (h *TaskHandler) CreateTask(c echo.Context) error {
	var req ports.CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	task, err := h.taskService.AddTask(c.Request().Context(), req)
	if err != nil {
		h.logger.Warnw("Create task failed", "error", err)
		return mapError(err)
	}

	return c.JSON(http.StatusCreated, task)
}

// DeleteTask handles optimistic task deletion
func (h *TaskHandler) DeleteTask(c echo.Context) error {
	id := c.Param("id")

	if err := h.taskService.DeleteTask(c.Request().Context(), id); err != nil {
		h.logger.Warnw("Delete task failed", "error", err, "task_id", id)
		return mapError(err)
	}

	return c.JSON(http.StatusAccepted, MessageResponse{Message: "Task deleted locally"})
}

// ToggleTask handles flipping a task between Pending and Completed
func (h *TaskHandler) ToggleTask(c echo.Context) error {
	id := c.Param("id")

	task, err := h.taskService.ToggleTask(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, task)
}

// SyncHandler handles webhook synchronization requests
type SyncHandler struct {
	syncService ports.SyncService
	logger      *logger.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(syncService ports.SyncService, logger *logger.Logger) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		logger:      logger,
	}
}

// Refresh handles a manual fetch of all tasks
func (h *SyncHandler) Refresh(c echo.Context) error {
	outcome, err := h.syncService.Refresh(c.Request().Context())
	if err != nil {
		h.logger.Warnw("Refresh failed", "error", err)
		return mapError(err)
	}

	return c.JSON(http.StatusOK, outcome)
}

// Sync handles a manual push of the local collection
func (h *SyncHandler) Sync(c echo.Context) error {
	outcome, err := h.syncService.Sync(c.Request().Context())
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, outcome)
}

// NotificationHandler exposes the current notification
type NotificationHandler struct {
	center NotificationCenter
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(center NotificationCenter) *NotificationHandler {
	return &NotificationHandler{center: center}
}

// Current returns the visible notification or 204
func (h *NotificationHandler) Current(c echo.Context) error {
	n, ok := h.center.Current()
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, n)
}

// Dismiss hides the visible notification
func (h *NotificationHandler) Dismiss(c echo.Context) error {
	h.center.Dismiss()
	return c.NoContent(http.StatusNoContent)
}

// mapError translates domain errors to HTTP errors
func mapError(err error) error {
	var (
		timeout   *entities.TimeoutError
		transport *entities.TransportError
		malformed *entities.MalformedResponseError
	)

	switch {
	case errors.Is(err, entities.ErrTaskNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Task not found")
	case errors.Is(err, entities.ErrInvalidTask):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, entities.ErrNotConfigured):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &timeout):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &transport), errors.As(err, &malformed):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
