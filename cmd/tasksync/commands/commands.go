package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskmaster/tasksync/internal/adapters/notify"
	"github.com/taskmaster/tasksync/internal/infrastructure/config"
	"github.com/taskmaster/tasksync/internal/infrastructure/database"
	"github.com/taskmaster/tasksync/internal/infrastructure/scheduler"
	"github.com/taskmaster/tasksync/internal/infrastructure/server"
	"github.com/taskmaster/tasksync/internal/ports"
)

// Build information, set with -ldflags
var (
	Version   = "1.0.0"
	BuildDate = "unknown"
	GitCommit = "development"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command
func NewServeCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the tasksync API server",
		Long:  "Fetch tasks from the webhook, then serve the local task API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), flags)
		},
	}
}

func runServer(parent context.Context, flags *GlobalFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var center *notify.Center
	a, err := bootstrap(ctx, flags, func(cfg *config.Config) []ports.Notifier {
		center = notify.NewCenter(cfg.Notify.Duration)
		return []ports.Notifier{center}
	})
	if err != nil {
		return err
	}
	defer a.close()

	srv, err := server.New(a.cfg, server.Dependencies{
		TaskService: a.tasks,
		SyncService: a.sync,
		Center:      center,
		Metrics:     a.metrics,
		Storage:     a.kv,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	if a.cfg.Sync.FetchOnStart {
		a.goBackground(func() { a.sync.Initialize(ctx) })
	} else {
		a.sync.SkipInitialFetch()
	}

	if a.cfg.Sync.AutoInterval > 0 {
		jobs := scheduler.New(time.Local, a.logger)
		if _, err := jobs.Every("auto-sync", a.cfg.Sync.AutoInterval, func() {
			jobCtx, cancel := context.WithTimeout(ctx, a.cfg.Webhook.SyncTimeout+shutdownTimeout)
			defer cancel()
			if _, err := a.sync.Sync(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warnw("Scheduled sync failed", "error", err)
			}
		}); err != nil {
			return err
		}
		jobs.Start()
		defer jobs.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infow("Starting tasksync API server",
			"address", a.cfg.Server.GetAddress(),
			"environment", a.cfg.App.Environment,
			"storage", a.cfg.Storage.Backend,
		)
		errCh <- srv.Start(a.cfg.Server.GetAddress())
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.logger.Info("Server exited gracefully")
	return nil
}

// NewMigrateCommand creates the migrate command with subcommands
func NewMigrateCommand(flags *GlobalFlags) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long:  "Manage the postgres storage schema (up, down, version)",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Run all up migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), flags, func(m *database.Migrator) error {
				changed, err := m.Up()
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				printMigrationResult(cmd, "up", changed)
				return nil
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Run all down migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), flags, func(m *database.Migrator) error {
				changed, err := m.Down()
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				printMigrationResult(cmd, "down", changed)
				return nil
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), flags, func(m *database.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return fmt.Errorf("failed to get migration version: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Current migration version: %d\n", version)
				fmt.Fprintf(cmd.OutOrStdout(), "Dirty: %t\n", dirty)
				return nil
			})
		},
	})

	return migrateCmd
}

func withMigrator(ctx context.Context, flags *GlobalFlags, fn func(*database.Migrator) error) error {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	m, err := database.NewMigrator(db)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	return fn(m)
}

func printMigrationResult(cmd *cobra.Command, direction string, changed bool) {
	if !changed {
		fmt.Fprintln(cmd.OutOrStdout(), "No migrations to run")
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migration %s completed successfully\n", direction)
}

// NewHashKeyCommand prints the bcrypt hash for security.api_key_hash
func NewHashKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <key>",
		Short: "Hash an API key for the server configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := server.HashAPIKey(args[0])
			if err != nil {
				return fmt.Errorf("failed to hash key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print tasksync version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tasksync v%s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Build Date: %s\n", BuildDate)
			fmt.Fprintf(cmd.OutOrStdout(), "Git Commit: %s\n", GitCommit)
		},
	}
}
