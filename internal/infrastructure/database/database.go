// Package database opens the postgres pool behind the postgres storage backend
// and owns its schema migrations.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/taskmaster/tasksync/internal/infrastructure/config"
)

const pingTimeout = 5 * time.Second

// DB is the sqlx pool used by the kv_entries store and the migrator
type DB struct {
	DB *sqlx.DB
}

// New opens a pool sized by cfg and fails unless postgres answers a ping
func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	conn, err := sqlx.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	db := &DB{DB: conn}
	if err := db.Ping(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Ping reports whether postgres answers within a few seconds. /ready uses it
// when tasks live in postgres.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres unreachable: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
