// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"clinic-forms/internal/common/config"

	_ "github.com/lib/pq"
)

// SubmissionsSchema creates the audit table. Rows are insert-only.
const SubmissionsSchema = `
CREATE TABLE IF NOT EXISTS form_submissions (
	id           TEXT PRIMARY KEY,
	form         TEXT NOT NULL,
	status       TEXT NOT NULL,
	email_status TEXT NOT NULL,
	message_id   TEXT,
	payload      JSONB NOT NULL,
	assets       JSONB NOT NULL DEFAULT '[]',
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS form_submissions_form_created_idx ON form_submissions (form, created_at DESC);
`

// PostgresClient wraps the SQL database connection
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres creates a new PostgreSQL client. sql.Open does not dial; use
// Ping to check connectivity.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

// EnsureSchema applies SubmissionsSchema.
func (c *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := c.DB.ExecContext(ctx, SubmissionsSchema); err != nil {
		return fmt.Errorf("apply submissions schema: %w", err)
	}
	return nil
}

// Ping tests the database connection
func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close closes the database connection
func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// Exec executes a query that doesn't return rows
func (c *PostgresClient) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.DB.ExecContext(ctx, query, args...)
}
