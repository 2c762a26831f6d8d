package postgres

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func NewClient(ctx context.Context, connectionString string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Ping to verify connection using a short timeout context
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return pool, nil
}

// RunMigrations creates necessary tables if they don't exist
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
	CREATE TABLE IF NOT EXISTS workflows (
		id UUID PRIMARY KEY,
		kind TEXT NOT NULL,
		correlation_code TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		plant TEXT NOT NULL DEFAULT '',
		auditor TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS photo_sets (
		id UUID PRIMARY KEY,
		workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
		area TEXT NOT NULL,
		levantamiento TEXT NOT NULL DEFAULT '',
		gerencia TEXT NOT NULL DEFAULT '',
		foto_urls JSONB NOT NULL DEFAULT '[]',
		staged_objects JSONB NOT NULL DEFAULT '[]',
		status TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		UNIQUE (workflow_id, area)
	);
	CREATE INDEX IF NOT EXISTS idx_photo_sets_workflow ON photo_sets(workflow_id);
	`
	_, err := pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create workflow tables: %w", err)
	}
	log.Println("Migrations executed successfully")
	return nil
}
