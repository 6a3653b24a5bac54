// Package sqlite is the single-file schemas.Store used for local runs. All
// timestamps are stored as fixed-width UTC text so that string comparison
// orders them chronologically.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/xkilldash9x/resonance/api/schemas"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store provides SQLite-backed persistence.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

var _ schemas.Store = (*Store)(nil)

// Open creates the database file if needed, applies migrations and returns
// a ready store.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Claims and transitions share a single connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Named("store.sqlite").Info("SQLite store ready", zap.String("path", path))
	return &Store{db: db, log: logger.Named("store.sqlite")}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// -- Events --

func (s *Store) SaveEvent(ctx context.Context, ev schemas.EmotionalEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO emotional_events (id, stimulus_id, author_id, state, intensity, previous_state, decision, reasoning, outcome_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.StimulusID, ev.AuthorID, string(ev.State), ev.Intensity, string(ev.PreviousState),
		string(ev.Decision), ev.Reasoning, nullString(ev.OutcomeID), formatTime(ev.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (s *Store) AttachOutcome(ctx context.Context, eventID, outcomeID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE emotional_events SET outcome_id = ? WHERE id = ?`, outcomeID, eventID)
	if err != nil {
		return fmt.Errorf("failed to attach outcome: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return schemas.ErrNotFound
	}
	return nil
}

// Event returns one stored event.
func (s *Store) Event(ctx context.Context, id string) (schemas.EmotionalEvent, error) {
	var ev schemas.EmotionalEvent
	var state, previous, decision, createdAt string
	var outcomeID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, stimulus_id, author_id, state, intensity, previous_state, decision, reasoning, outcome_id, created_at
		 FROM emotional_events WHERE id = ?`, id,
	).Scan(&ev.ID, &ev.StimulusID, &ev.AuthorID, &state, &ev.Intensity, &previous, &decision, &ev.Reasoning, &outcomeID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return schemas.EmotionalEvent{}, schemas.ErrNotFound
	}
	if err != nil {
		return schemas.EmotionalEvent{}, fmt.Errorf("failed to get event: %w", err)
	}
	ev.State, ev.PreviousState = schemas.EmotionalState(state), schemas.EmotionalState(previous)
	ev.Decision = schemas.DecisionType(decision)
	ev.OutcomeID = outcomeID.String
	if ev.CreatedAt, err = parseTime(createdAt); err != nil {
		return schemas.EmotionalEvent{}, fmt.Errorf("failed to parse event created_at: %w", err)
	}
	return ev, nil
}

// -- Outcomes --

const outcomeColumns = `id, action_type, state, event_id, artifact_id, target_id, check_after,
	initial_metrics, latest_metrics, outcome_score, status, attempts, claimed_at, last_error,
	created_at, updated_at`

func (s *Store) CreateOutcome(ctx context.Context, o schemas.PendingOutcome) error {
	initial, err := encodeMetrics(o.InitialMetrics)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_outcomes (id, action_type, state, event_id, artifact_id, target_id, check_after, initial_metrics, status, attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, string(o.ActionType), string(o.State), o.EventID, o.ArtifactID, o.TargetID,
		formatTime(o.CheckAfter), initial, string(o.Status), o.Attempts,
		formatTime(o.CreatedAt), formatTime(o.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert pending outcome: %w", err)
	}
	return nil
}

func (s *Store) GetOutcome(ctx context.Context, id string) (schemas.PendingOutcome, error) {
	o, err := scanOutcome(s.db.QueryRowContext(ctx, `SELECT `+outcomeColumns+` FROM pending_outcomes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return schemas.PendingOutcome{}, schemas.ErrNotFound
	}
	if err != nil {
		return schemas.PendingOutcome{}, fmt.Errorf("failed to get outcome: %w", err)
	}
	return o, nil
}

// ClaimDueOutcomes claims in one UPDATE ... RETURNING statement, which SQLite
// executes under its single write lock.
func (s *Store) ClaimDueOutcomes(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]schemas.PendingOutcome, error) {
	if limit <= 0 {
		return nil, nil
	}
	nowStr := formatTime(now)
	rows, err := s.db.QueryContext(ctx,
		`UPDATE pending_outcomes SET status = 'evaluating', claimed_at = ?1, updated_at = ?1
		 WHERE id IN (
			SELECT id FROM pending_outcomes
			WHERE (status = 'pending' AND check_after <= ?1)
			   OR (?3 AND status = 'evaluating' AND claimed_at <= ?4)
			ORDER BY check_after ASC
			LIMIT ?2
		 )
		 RETURNING `+outcomeColumns,
		nowStr, limit, lease > 0, formatTime(now.Add(-lease)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due outcomes: %w", err)
	}
	defer rows.Close()

	var claimed []schemas.PendingOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed outcome: %w", err)
		}
		claimed = append(claimed, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	sortByCheckAfter(claimed)
	return claimed, nil
}

func (s *Store) CompleteOutcome(ctx context.Context, id string, latest *schemas.Metrics, score float64, now time.Time) error {
	metrics, err := encodeMetrics(latest)
	if err != nil {
		return err
	}
	return s.transition(ctx, id,
		`UPDATE pending_outcomes SET status = 'completed', latest_metrics = ?, outcome_score = ?, claimed_at = NULL, updated_at = ?
		 WHERE id = ? AND status = 'evaluating'`,
		metrics, score, formatTime(now), id,
	)
}

func (s *Store) FailOutcome(ctx context.Context, id string, reason string, now time.Time) error {
	return s.transition(ctx, id,
		`UPDATE pending_outcomes SET status = 'failed', last_error = ?, attempts = attempts + 1, claimed_at = NULL, updated_at = ?
		 WHERE id = ? AND status = 'evaluating'`,
		reason, formatTime(now), id,
	)
}

func (s *Store) RequeueOutcome(ctx context.Context, id string, checkAfter time.Time, attempts int, reason string, now time.Time) error {
	return s.transition(ctx, id,
		`UPDATE pending_outcomes SET status = 'pending', check_after = ?, attempts = ?, last_error = ?, claimed_at = NULL, updated_at = ?
		 WHERE id = ? AND status = 'evaluating'`,
		formatTime(checkAfter), attempts, reason, formatTime(now), id,
	)
}

func (s *Store) transition(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to transition outcome %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM pending_outcomes WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return schemas.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read status of outcome %s: %w", id, err)
	}
	return fmt.Errorf("%w: outcome %s is %s", schemas.ErrInvalidTransition, id, status)
}

// -- Patterns --

func (s *Store) LoadPatterns(ctx context.Context) ([]schemas.Pattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state, decision, count, avg_score, success_count, success_rate, should_continue, updated_at FROM patterns`)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []schemas.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return patterns, nil
}

// RecordPattern inserts the first sample of a key or increments the existing
// row in the same statement. Unqualified columns in the update refer to the
// stored row.
func (s *Store) RecordPattern(ctx context.Context, sample schemas.PatternSample) (schemas.Pattern, error) {
	first := schemas.Pattern{}.Fold(sample)
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO patterns (state, decision, count, avg_score, success_count, success_rate, should_continue, updated_at)
		 VALUES (?1, ?2, 1, ?3, ?4, ?5, ?6, ?7)
		 ON CONFLICT (state, decision) DO UPDATE SET
			count = count + 1,
			avg_score = avg_score + (?3 - avg_score) / (count + 1),
			success_count = success_count + ?4,
			success_rate = CAST(success_count + ?4 AS REAL) / (count + 1),
			should_continue = CAST(success_count + ?4 AS REAL) / (count + 1) > ?8,
			updated_at = ?7
		 RETURNING state, decision, count, avg_score, success_count, success_rate, should_continue, updated_at`,
		string(sample.State), string(sample.Decision), sample.Score, first.SuccessCount, first.SuccessRate,
		first.ShouldContinue, formatTime(sample.At), sample.ContinueThreshold,
	)
	p, err := scanPattern(row)
	if err != nil {
		return schemas.Pattern{}, fmt.Errorf("failed to record pattern: %w", err)
	}
	return p, nil
}

func scanPattern(row rowScanner) (schemas.Pattern, error) {
	var p schemas.Pattern
	var state, decision, updatedAt string
	if err := row.Scan(&state, &decision, &p.Count, &p.AvgScore, &p.SuccessCount, &p.SuccessRate, &p.ShouldContinue, &updatedAt); err != nil {
		return schemas.Pattern{}, fmt.Errorf("failed to scan pattern row: %w", err)
	}
	p.State, p.Decision = schemas.EmotionalState(state), schemas.DecisionType(decision)
	var err error
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return schemas.Pattern{}, fmt.Errorf("failed to parse pattern updated_at: %w", err)
	}
	return p, nil
}

// -- Relationships --

func (s *Store) GetRelationship(ctx context.Context, counterpartyID string) (schemas.Relationship, error) {
	var rel schemas.Relationship
	var firstSeen, last string
	err := s.db.QueryRowContext(ctx,
		`SELECT counterparty_id, interaction_count, first_seen, last_interaction, vibe FROM relationships WHERE counterparty_id = ?`,
		counterpartyID,
	).Scan(&rel.CounterpartyID, &rel.InteractionCount, &firstSeen, &last, &rel.Vibe)
	if errors.Is(err, sql.ErrNoRows) {
		return schemas.Relationship{}, schemas.ErrNotFound
	}
	if err != nil {
		return schemas.Relationship{}, fmt.Errorf("failed to get relationship: %w", err)
	}
	if rel.FirstSeen, err = parseTime(firstSeen); err != nil {
		return schemas.Relationship{}, fmt.Errorf("failed to parse first_seen: %w", err)
	}
	if rel.LastInteraction, err = parseTime(last); err != nil {
		return schemas.Relationship{}, fmt.Errorf("failed to parse last_interaction: %w", err)
	}
	return rel, nil
}

func (s *Store) UpsertRelationship(ctx context.Context, rel schemas.Relationship) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relationships (counterparty_id, interaction_count, first_seen, last_interaction, vibe)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (counterparty_id) DO UPDATE SET
			interaction_count = excluded.interaction_count,
			last_interaction = excluded.last_interaction,
			vibe = excluded.vibe`,
		rel.CounterpartyID, rel.InteractionCount, formatTime(rel.FirstSeen), formatTime(rel.LastInteraction), rel.Vibe,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert relationship: %w", err)
	}
	return nil
}

// -- Affect --

func (s *Store) LoadAffect(ctx context.Context) (schemas.AffectSnapshot, error) {
	var snap schemas.AffectSnapshot
	var current, previous, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT current_state, previous_state, intensity, updated_at FROM affect_state WHERE id = 1`,
	).Scan(&current, &previous, &snap.Intensity, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return schemas.AffectSnapshot{}, schemas.ErrNotFound
	}
	if err != nil {
		return schemas.AffectSnapshot{}, fmt.Errorf("failed to load affect state: %w", err)
	}
	snap.Current, snap.Previous = schemas.EmotionalState(current), schemas.EmotionalState(previous)
	if snap.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return schemas.AffectSnapshot{}, fmt.Errorf("failed to parse affect updated_at: %w", err)
	}
	return snap, nil
}

func (s *Store) SaveAffect(ctx context.Context, snap schemas.AffectSnapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO affect_state (id, current_state, previous_state, intensity, updated_at)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			current_state = excluded.current_state,
			previous_state = excluded.previous_state,
			intensity = excluded.intensity,
			updated_at = excluded.updated_at`,
		string(snap.Current), string(snap.Previous), snap.Intensity, formatTime(snap.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save affect state: %w", err)
	}
	return nil
}
