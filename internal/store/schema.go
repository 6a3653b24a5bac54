package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// schemaStatements creates the tables the store needs. Every statement is
// idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS emotional_events (
        id TEXT PRIMARY KEY,
        stimulus_id TEXT NOT NULL,
        author_id TEXT NOT NULL,
        state TEXT NOT NULL,
        intensity DOUBLE PRECISION NOT NULL,
        previous_state TEXT NOT NULL DEFAULT '',
        decision TEXT NOT NULL,
        reasoning TEXT NOT NULL DEFAULT '',
        outcome_id TEXT,
        created_at TIMESTAMPTZ NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS pending_outcomes (
        id TEXT PRIMARY KEY,
        action_type TEXT NOT NULL,
        state TEXT NOT NULL DEFAULT '',
        event_id TEXT NOT NULL,
        artifact_id TEXT NOT NULL,
        target_id TEXT NOT NULL DEFAULT '',
        check_after TIMESTAMPTZ NOT NULL,
        initial_metrics JSONB,
        latest_metrics JSONB,
        outcome_score DOUBLE PRECISION,
        status TEXT NOT NULL CHECK (status IN ('pending', 'evaluating', 'completed', 'failed')),
        attempts INTEGER NOT NULL DEFAULT 0,
        claimed_at TIMESTAMPTZ,
        last_error TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL,
        CHECK (status <> 'completed' OR outcome_score IS NOT NULL)
    )`,
	`CREATE INDEX IF NOT EXISTS pending_outcomes_due_idx ON pending_outcomes (status, check_after)`,
	`CREATE TABLE IF NOT EXISTS patterns (
        state TEXT NOT NULL,
        decision TEXT NOT NULL,
        count INTEGER NOT NULL,
        avg_score DOUBLE PRECISION NOT NULL,
        success_count INTEGER NOT NULL,
        success_rate DOUBLE PRECISION NOT NULL,
        should_continue BOOLEAN NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL,
        PRIMARY KEY (state, decision)
    )`,
	`CREATE TABLE IF NOT EXISTS relationships (
        counterparty_id TEXT PRIMARY KEY,
        interaction_count INTEGER NOT NULL,
        first_seen TIMESTAMPTZ NOT NULL,
        last_interaction TIMESTAMPTZ NOT NULL,
        vibe DOUBLE PRECISION NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS affect_state (
        id SMALLINT PRIMARY KEY CHECK (id = 1),
        current_state TEXT NOT NULL,
        previous_state TEXT NOT NULL DEFAULT '',
        intensity DOUBLE PRECISION NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL
    )`,
}

// Migrate applies the schema in a single transaction.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	for i, stmt := range schemaStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Schema applied", zap.Int("statements", len(schemaStatements)))
	return nil
}

const outcomeColumns = `id, action_type, state, event_id, artifact_id, target_id,
        check_after, initial_metrics, latest_metrics, outcome_score, status, attempts,
        claimed_at, last_error, created_at, updated_at`

const (
	sqlInsertEvent = `
        INSERT INTO emotional_events (id, stimulus_id, author_id, state, intensity, previous_state, decision, reasoning, outcome_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	sqlAttachOutcome = `
        UPDATE emotional_events SET outcome_id = $2 WHERE id = $1
    `
	sqlInsertOutcome = `
        INSERT INTO pending_outcomes (id, action_type, state, event_id, artifact_id, target_id, check_after, initial_metrics, status, attempts, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `
	sqlSelectOutcome = `
        SELECT ` + outcomeColumns + `
        FROM pending_outcomes WHERE id = $1
    `
	sqlClaimDue = `
        UPDATE pending_outcomes SET status = 'evaluating', claimed_at = $1, updated_at = $1
        WHERE id IN (
            SELECT id FROM pending_outcomes
            WHERE (status = 'pending' AND check_after <= $1)
               OR ($3 AND status = 'evaluating' AND claimed_at <= $4)
            ORDER BY check_after ASC
            LIMIT $2
            FOR UPDATE SKIP LOCKED
        )
        RETURNING ` + outcomeColumns + `
    `
	sqlCompleteOutcome = `
        UPDATE pending_outcomes
        SET status = 'completed', latest_metrics = $2, outcome_score = $3, claimed_at = NULL, updated_at = $4
        WHERE id = $1 AND status = 'evaluating'
    `
	sqlFailOutcome = `
        UPDATE pending_outcomes
        SET status = 'failed', last_error = $2, attempts = attempts + 1, claimed_at = NULL, updated_at = $3
        WHERE id = $1 AND status = 'evaluating'
    `
	sqlRequeueOutcome = `
        UPDATE pending_outcomes
        SET status = 'pending', check_after = $2, attempts = $3, last_error = $4, claimed_at = NULL, updated_at = $5
        WHERE id = $1 AND status = 'evaluating'
    `
	sqlOutcomeStatus = `
        SELECT status FROM pending_outcomes WHERE id = $1
    `
	sqlSelectPatterns = `
        SELECT state, decision, count, avg_score, success_count, success_rate, should_continue, updated_at
        FROM patterns
    `
	// The update side reads the stored row, so concurrent writers each add
	// their own sample.
	sqlRecordPattern = `
        INSERT INTO patterns (state, decision, count, avg_score, success_count, success_rate, should_continue, updated_at)
        VALUES ($1, $2, 1, $3, $4, $5, $6, $7)
        ON CONFLICT (state, decision) DO UPDATE SET
            count = patterns.count + 1,
            avg_score = patterns.avg_score + ($3 - patterns.avg_score) / (patterns.count + 1),
            success_count = patterns.success_count + $4,
            success_rate = (patterns.success_count + $4)::double precision / (patterns.count + 1),
            should_continue = (patterns.success_count + $4)::double precision / (patterns.count + 1) > $8,
            updated_at = $7
        RETURNING state, decision, count, avg_score, success_count, success_rate, should_continue, updated_at
    `
	sqlSelectRelationship = `
        SELECT counterparty_id, interaction_count, first_seen, last_interaction, vibe
        FROM relationships WHERE counterparty_id = $1
    `
	sqlUpsertRelationship = `
        INSERT INTO relationships (counterparty_id, interaction_count, first_seen, last_interaction, vibe)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (counterparty_id) DO UPDATE SET
            interaction_count = EXCLUDED.interaction_count,
            last_interaction = EXCLUDED.last_interaction,
            vibe = EXCLUDED.vibe
    `
	sqlSelectAffect = `
        SELECT current_state, previous_state, intensity, updated_at FROM affect_state WHERE id = 1
    `
	sqlUpsertAffect = `
        INSERT INTO affect_state (id, current_state, previous_state, intensity, updated_at)
        VALUES (1, $1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE SET
            current_state = EXCLUDED.current_state,
            previous_state = EXCLUDED.previous_state,
            intensity = EXCLUDED.intensity,
            updated_at = EXCLUDED.updated_at
    `
)
