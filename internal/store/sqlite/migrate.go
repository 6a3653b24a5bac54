package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the latest schema version supported by the migrator.
const SchemaVersion = 1

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS emotional_events (
		id TEXT PRIMARY KEY,
		stimulus_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		state TEXT NOT NULL,
		intensity REAL NOT NULL,
		previous_state TEXT NOT NULL DEFAULT '',
		decision TEXT NOT NULL,
		reasoning TEXT NOT NULL DEFAULT '',
		outcome_id TEXT NULL,
		created_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS pending_outcomes (
		id TEXT PRIMARY KEY,
		action_type TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT '',
		event_id TEXT NOT NULL,
		artifact_id TEXT NOT NULL,
		target_id TEXT NOT NULL DEFAULT '',
		check_after TEXT NOT NULL,
		initial_metrics TEXT NULL,
		latest_metrics TEXT NULL,
		outcome_score REAL NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'evaluating', 'completed', 'failed')),
		attempts INTEGER NOT NULL DEFAULT 0,
		claimed_at TEXT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (status <> 'completed' OR outcome_score IS NOT NULL)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_pending_outcomes_status_check_after ON pending_outcomes(status, check_after);`,
	`CREATE TABLE IF NOT EXISTS patterns (
		state TEXT NOT NULL,
		decision TEXT NOT NULL,
		count INTEGER NOT NULL,
		avg_score REAL NOT NULL,
		success_count INTEGER NOT NULL,
		success_rate REAL NOT NULL,
		should_continue INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (state, decision)
	);`,
	`CREATE TABLE IF NOT EXISTS relationships (
		counterparty_id TEXT PRIMARY KEY,
		interaction_count INTEGER NOT NULL,
		first_seen TEXT NOT NULL,
		last_interaction TEXT NOT NULL,
		vibe REAL NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS affect_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		current_state TEXT NOT NULL,
		previous_state TEXT NOT NULL DEFAULT '',
		intensity REAL NOT NULL,
		updated_at TEXT NOT NULL
	);`,
}

// Migrate ensures the SQLite schema exists and is upgraded to SchemaVersion.
func Migrate(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("failed to migrate: db is nil")
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read current schema version: %w", err)
	}
	if current >= SchemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range migrationStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration statement %d: %w", i, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES (?);`, SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}
	return nil
}
