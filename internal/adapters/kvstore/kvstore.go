// Package kvstore persists opaque string values under string keys and layers
// JSON encoding on top of them.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/taskmaster/tasksync/internal/infrastructure/config"
	"github.com/taskmaster/tasksync/internal/infrastructure/database"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
	"github.com/taskmaster/tasksync/internal/ports"
)

// Adapter reads and writes JSON-encoded values through a backend
type Adapter struct {
	backend ports.KeyValueStore
	logger  *logger.Logger
}

// NewAdapter wraps backend
func NewAdapter(backend ports.KeyValueStore, log *logger.Logger) *Adapter {
	return &Adapter{
		backend: backend,
		logger:  log.WithComponent("kvstore"),
	}
}

// Get decodes the value stored under key into a T. Missing keys, read errors
// and undecodable values all yield def; errors are logged, never returned.
func Get[T any](ctx context.Context, a *Adapter, key string, def T) T {
	raw, found, err := a.backend.Get(ctx, key)
	if err != nil {
		a.logger.Errorw("Failed to read key", "key", key, "error", err)
		return def
	}
	if !found {
		return def
	}

	var value T
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		a.logger.Errorw("Failed to decode stored value", "key", key, "error", err)
		return def
	}
	return value
}

// Set encodes v as JSON and writes it under key. Failures are logged and returned.
func (a *Adapter) Set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		a.logger.LogStoreWrite(key, 0, err)
		return fmt.Errorf("failed to encode value for %s: %w", key, err)
	}

	err = a.backend.Set(ctx, key, string(data))
	a.logger.LogStoreWrite(key, len(data), err)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// pinger is implemented by backends that live behind a network connection
type pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks the backend's server, if it has one. Local backends always pass.
func (a *Adapter) Ping(ctx context.Context) error {
	if p, ok := a.backend.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close closes the backend
func (a *Adapter) Close() error {
	return a.backend.Close()
}

// Open builds the backend selected by cfg.Storage.Backend
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (ports.KeyValueStore, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return NewMemory(), nil
	case config.BackendFile:
		return NewFile(cfg.Storage.Path)
	case config.BackendSQLite:
		return NewSQLite(cfg.Storage.SQLiteDSN, log)
	case config.BackendPostgres:
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		migrator, err := database.NewMigrator(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		if _, err := migrator.Up(); err != nil {
			db.Close()
			return nil, err
		}
		return NewPostgres(db), nil
	case config.BackendRedis:
		return NewRedis(ctx, cfg.Redis, cfg.Storage.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
