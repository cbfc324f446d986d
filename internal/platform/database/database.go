// Package database opens and verifies the PostgreSQL connection the engine's
// stores are built on.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Open establishes a PostgreSQL connection using dsn and verifies
// connectivity with a ping. The returned *sql.DB must be closed by the
// caller.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Configure applies the given pool sizes to db; a non-positive value leaves
// that setting at its default.
func Configure(db *sql.DB, maxOpenConns, maxIdleConns, connMaxLifetimeSeconds int) {
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	if connMaxLifetimeSeconds > 0 {
		db.SetConnMaxLifetime(time.Duration(connMaxLifetimeSeconds) * time.Second)
	}
}
