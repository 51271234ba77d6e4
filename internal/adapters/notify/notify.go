// Package notify delivers the transient success, error and info messages that
// follow every add, delete, fetch and sync.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
	"github.com/taskmaster/tasksync/internal/ports"
)

// DefaultDuration is how long a notification stays visible
const DefaultDuration = 5 * time.Second

// Center keeps the latest notification until it is dismissed or expires
type Center struct {
	duration time.Duration

	mu      sync.Mutex
	current *entities.Notification
	seq     uint64
	timer   *time.Timer
}

func NewCenter(duration time.Duration) *Center {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Center{duration: duration}
}

// Notify replaces the current notification and restarts the expiry timer
func (c *Center) Notify(_ context.Context, n entities.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	seq := c.seq
	c.current = &n

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.duration, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.seq == seq {
			c.current = nil
		}
	})
}

// Current returns the visible notification, if any
func (c *Center) Current() (entities.Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return entities.Notification{}, false
	}
	return *c.current, true
}

// Dismiss hides the current notification
func (c *Center) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.current = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Log writes notifications to the application log
type Log struct {
	logger *logger.Logger
}

func NewLog(log *logger.Logger) *Log {
	return &Log{logger: log.WithComponent("notify")}
}

func (l *Log) Notify(_ context.Context, n entities.Notification) {
	switch n.Kind {
	case entities.NotificationError:
		l.logger.Warnw(n.Message, "kind", n.Kind)
	default:
		l.logger.Infow(n.Message, "kind", n.Kind)
	}
}

// Console prints notifications for one-shot CLI commands
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Notify(_ context.Context, n entities.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "[%s] %s\n", n.Kind, n.Message)
}

// Multi fans a notification out to several notifiers in order
type Multi []ports.Notifier

func (m Multi) Notify(ctx context.Context, n entities.Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}

// Success, Error and Info build notifications of each kind
func Success(message string) entities.Notification {
	return entities.Notification{Kind: entities.NotificationSuccess, Message: message}
}

func Error(message string) entities.Notification {
	return entities.Notification{Kind: entities.NotificationError, Message: message}
}

func Info(message string) entities.Notification {
	return entities.Notification{Kind: entities.NotificationInfo, Message: message}
}
