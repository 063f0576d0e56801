// Package database owns the pgx pool and the in-code schema bootstrap.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the projects table if needed. Keeping the bootstrap in
// code means a fresh environment needs no migration tooling.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	file_name TEXT NOT NULL,
	file_kind TEXT,
	file_size BIGINT NOT NULL DEFAULT 0,
	file_hash TEXT,
	object_key TEXT,
	status TEXT NOT NULL,
	file_status TEXT NOT NULL,
	progress DOUBLE PRECISION NOT NULL DEFAULT 0,
	error_message TEXT,
	word_count INTEGER NOT NULL DEFAULT 0,
	paragraph_count INTEGER NOT NULL DEFAULT 0,
	sentence_count INTEGER NOT NULL DEFAULT 0,
	chapter_count INTEGER NOT NULL DEFAULT 0,
	character_count INTEGER NOT NULL DEFAULT 0,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_projects_owner_status ON projects(owner_id, status, is_deleted);
CREATE INDEX IF NOT EXISTS idx_projects_file_status ON projects(file_status, created_at);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
