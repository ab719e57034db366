// Package storage persists the dashboard's query history and an archive of
// alert lifecycle events in SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens (creating if needed) the SQLite database at path and applies
// the schema
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// one writer keeps SQLite from returning SQLITE_BUSY under load
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the tables and indexes if they do not exist
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS query_history (
			id TEXT PRIMARY KEY,
			endpoint_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			query TEXT NOT NULL,
			operation_name TEXT NOT NULL DEFAULT '',
			variables_json TEXT NOT NULL DEFAULT '{}',
			favorite INTEGER NOT NULL DEFAULT 0,
			usage_count INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			last_used_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_query_history_endpoint ON query_history(endpoint_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS query_usage (
			endpoint_id TEXT NOT NULL,
			signature TEXT NOT NULL,
			count INTEGER NOT NULL,
			last_used_at INTEGER NOT NULL,
			PRIMARY KEY (endpoint_id, signature)
		)`,
		`CREATE TABLE IF NOT EXISTS alert_archive (
			id TEXT PRIMARY KEY,
			rule_id TEXT NOT NULL,
			endpoint_id TEXT NOT NULL,
			severity TEXT NOT NULL,
			status TEXT NOT NULL,
			triggered_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			alert_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_archive_triggered ON alert_archive(triggered_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
