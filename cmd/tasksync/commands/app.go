package commands

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/taskmaster/tasksync/internal/adapters/kvstore"
	"github.com/taskmaster/tasksync/internal/adapters/notify"
	"github.com/taskmaster/tasksync/internal/adapters/repository"
	"github.com/taskmaster/tasksync/internal/adapters/webhook"
	"github.com/taskmaster/tasksync/internal/application/services"
	"github.com/taskmaster/tasksync/internal/domain/reconcile"
	"github.com/taskmaster/tasksync/internal/infrastructure/config"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
	"github.com/taskmaster/tasksync/internal/infrastructure/metrics"
	"github.com/taskmaster/tasksync/internal/ports"
)

// GlobalFlags are shared by every command
type GlobalFlags struct {
	ConfigPath string
	Ephemeral  bool
}

// RegisterGlobalFlags adds the persistent flags to root
func RegisterGlobalFlags(root *cobra.Command) *GlobalFlags {
	flags := &GlobalFlags{}
	root.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "", "config file (yaml, json or toml)")
	root.PersistentFlags().BoolVar(&flags.Ephemeral, "ephemeral", false, "keep tasks in memory only")
	return flags
}

// app holds the wired services for one command invocation
type app struct {
	cfg     *config.Config
	logger  *logger.Logger
	metrics *metrics.Metrics
	kv      *kvstore.Adapter
	store   *repository.TaskStore
	tasks   *services.TaskService
	sync    *services.SyncService

	background sync.WaitGroup
}

// sinkFactory returns the notification sinks a command wants in addition to the log
type sinkFactory func(cfg *config.Config) []ports.Notifier

func bootstrap(ctx context.Context, flags *GlobalFlags, sinks sinkFactory) (*app, error) {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if flags.Ephemeral {
		cfg.Storage.Backend = config.BackendMemory
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	backend, err := kvstore.Open(ctx, cfg, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}
	kv := kvstore.NewAdapter(backend, appLogger)

	keys := repository.Keys{Tasks: cfg.Storage.TasksKey, LastSync: cfg.Storage.LastSyncKey}
	store := repository.NewTaskStore(ctx, kv, keys, m, appLogger)

	gateway := webhook.New(cfg.Webhook, nil, reconcile.Options{StrictStatus: cfg.Sync.StrictStatus}, m, appLogger)

	notifiers := notify.Multi{notify.NewLog(appLogger)}
	if sinks != nil {
		notifiers = append(notifiers, sinks(cfg)...)
	}
	telegram, err := telegramNotifier(cfg, appLogger)
	if err != nil {
		kv.Close()
		return nil, err
	}
	if telegram != nil {
		notifiers = append(notifiers, telegram)
	}

	return &app{
		cfg:     cfg,
		logger:  appLogger,
		metrics: m,
		kv:      kv,
		store:   store,
		tasks:   services.NewTaskService(store, gateway, notifiers, appLogger),
		sync:    services.NewSyncService(gateway, store, notifiers, m, appLogger),
	}, nil
}

func telegramNotifier(cfg *config.Config, log *logger.Logger) (ports.Notifier, error) {
	if cfg.Notify.TelegramToken == "" {
		return nil, nil
	}
	t, err := notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram notifier: %w", err)
	}
	return t, nil
}

// goBackground runs fn on its own goroutine; close waits for it
func (a *app) goBackground(fn func()) {
	a.background.Add(1)
	go func() {
		defer a.background.Done()
		fn()
	}()
}

// close waits for background work and detached webhook deliveries, then
// releases storage
func (a *app) close() {
	a.background.Wait()
	a.tasks.Wait()
	if err := a.kv.Close(); err != nil {
		a.logger.Warnw("Failed to close storage", "error", err)
	}
	_ = a.logger.Sync()
}

// consoleSinks prints notifications of one-shot commands on the command's output
func consoleSinks(cmd *cobra.Command) sinkFactory {
	return func(*config.Config) []ports.Notifier {
		return []ports.Notifier{notify.NewConsole(cmd.OutOrStdout())}
	}
}
