package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/resonance/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Store provides a PostgreSQL implementation of schemas.Store.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.Store = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// -- Events --

func (s *Store) SaveEvent(ctx context.Context, ev schemas.EmotionalEvent) error {
	_, err := s.pool.Exec(ctx, sqlInsertEvent,
		ev.ID, ev.StimulusID, ev.AuthorID, string(ev.State), ev.Intensity,
		string(ev.PreviousState), string(ev.Decision), ev.Reasoning, nullString(ev.OutcomeID),
		ev.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert emotional event: %w", err)
	}
	return nil
}

func (s *Store) AttachOutcome(ctx context.Context, eventID, outcomeID string) error {
	tag, err := s.pool.Exec(ctx, sqlAttachOutcome, eventID, outcomeID)
	if err != nil {
		return fmt.Errorf("failed to attach outcome to event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return schemas.ErrNotFound
	}
	return nil
}

// -- Outcomes --

func (s *Store) CreateOutcome(ctx context.Context, o schemas.PendingOutcome) error {
	initial, err := encodeMetrics(o.InitialMetrics)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, sqlInsertOutcome,
		o.ID, string(o.ActionType), string(o.State), o.EventID, o.ArtifactID, o.TargetID,
		o.CheckAfter.UTC(), initial, string(o.Status), o.Attempts,
		o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert pending outcome: %w", err)
	}
	return nil
}

func (s *Store) GetOutcome(ctx context.Context, id string) (schemas.PendingOutcome, error) {
	o, err := scanOutcome(s.pool.QueryRow(ctx, sqlSelectOutcome, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return schemas.PendingOutcome{}, schemas.ErrNotFound
	}
	if err != nil {
		return schemas.PendingOutcome{}, fmt.Errorf("failed to get pending outcome: %w", err)
	}
	return o, nil
}

// ClaimDueOutcomes moves due records to evaluating in a single statement.
// Rows locked by a concurrent claim are skipped rather than waited on.
func (s *Store) ClaimDueOutcomes(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]schemas.PendingOutcome, error) {
	if limit <= 0 {
		return nil, nil
	}
	now = now.UTC()
	rows, err := s.pool.Query(ctx, sqlClaimDue, now, limit, lease > 0, now.Add(-lease))
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

	// RETURNING does not preserve the subquery order.
	sort.SliceStable(claimed, func(i, j int) bool { return claimed[i].CheckAfter.Before(claimed[j].CheckAfter) })
	return claimed, nil
}

func (s *Store) CompleteOutcome(ctx context.Context, id string, latest *schemas.Metrics, score float64, now time.Time) error {
	metrics, err := encodeMetrics(latest)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, sqlCompleteOutcome, id, metrics, score, now.UTC())
	if err != nil {
		return fmt.Errorf("failed to complete outcome: %w", err)
	}
	return s.checkTransition(ctx, tag, id)
}

func (s *Store) FailOutcome(ctx context.Context, id string, reason string, now time.Time) error {
	tag, err := s.pool.Exec(ctx, sqlFailOutcome, id, reason, now.UTC())
	if err != nil {
		return fmt.Errorf("failed to fail outcome: %w", err)
	}
	return s.checkTransition(ctx, tag, id)
}

func (s *Store) RequeueOutcome(ctx context.Context, id string, checkAfter time.Time, attempts int, reason string, now time.Time) error {
	tag, err := s.pool.Exec(ctx, sqlRequeueOutcome, id, checkAfter.UTC(), attempts, reason, now.UTC())
	if err != nil {
		return fmt.Errorf("failed to requeue outcome: %w", err)
	}
	return s.checkTransition(ctx, tag, id)
}

// checkTransition distinguishes a missing record from one that was not
// evaluating when a conditional update touched no rows.
func (s *Store) checkTransition(ctx context.Context, tag pgconn.CommandTag, id string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	var status string
	err := s.pool.QueryRow(ctx, sqlOutcomeStatus, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return schemas.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read outcome status: %w", err)
	}
	return fmt.Errorf("%w: outcome %s is %s", schemas.ErrInvalidTransition, id, status)
}

// -- Patterns --

func (s *Store) LoadPatterns(ctx context.Context) ([]schemas.Pattern, error) {
	rows, err := s.pool.Query(ctx, sqlSelectPatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []schemas.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern row: %w", err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return patterns, nil
}

// RecordPattern folds one sample into its row in a single upsert and returns
// the amended aggregate.
func (s *Store) RecordPattern(ctx context.Context, sample schemas.PatternSample) (schemas.Pattern, error) {
	first := schemas.Pattern{}.Fold(sample)
	row := s.pool.QueryRow(ctx, sqlRecordPattern,
		string(sample.State), string(sample.Decision), sample.Score, first.SuccessCount, first.SuccessRate,
		first.ShouldContinue, sample.At.UTC(), sample.ContinueThreshold,
	)
	p, err := scanPattern(row)
	if err != nil {
		return schemas.Pattern{}, fmt.Errorf("failed to record pattern: %w", err)
	}
	return p, nil
}

func scanPattern(row pgx.Row) (schemas.Pattern, error) {
	var p schemas.Pattern
	var state, decision string
	if err := row.Scan(&state, &decision, &p.Count, &p.AvgScore, &p.SuccessCount, &p.SuccessRate, &p.ShouldContinue, &p.UpdatedAt); err != nil {
		return schemas.Pattern{}, err
	}
	p.State, p.Decision = schemas.EmotionalState(state), schemas.DecisionType(decision)
	return p, nil
}

// -- Relationships --

func (s *Store) GetRelationship(ctx context.Context, counterpartyID string) (schemas.Relationship, error) {
	var rel schemas.Relationship
	err := s.pool.QueryRow(ctx, sqlSelectRelationship, counterpartyID).
		Scan(&rel.CounterpartyID, &rel.InteractionCount, &rel.FirstSeen, &rel.LastInteraction, &rel.Vibe)
	if errors.Is(err, pgx.ErrNoRows) {
		return schemas.Relationship{}, schemas.ErrNotFound
	}
	if err != nil {
		return schemas.Relationship{}, fmt.Errorf("failed to get relationship: %w", err)
	}
	return rel, nil
}

func (s *Store) UpsertRelationship(ctx context.Context, rel schemas.Relationship) error {
	_, err := s.pool.Exec(ctx, sqlUpsertRelationship,
		rel.CounterpartyID, rel.InteractionCount, rel.FirstSeen.UTC(), rel.LastInteraction.UTC(), rel.Vibe,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert relationship: %w", err)
	}
	return nil
}

// -- Affect --

func (s *Store) LoadAffect(ctx context.Context) (schemas.AffectSnapshot, error) {
	var snap schemas.AffectSnapshot
	var current, previous string
	err := s.pool.QueryRow(ctx, sqlSelectAffect).Scan(&current, &previous, &snap.Intensity, &snap.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return schemas.AffectSnapshot{}, schemas.ErrNotFound
	}
	if err != nil {
		return schemas.AffectSnapshot{}, fmt.Errorf("failed to load affect state: %w", err)
	}
	snap.Current, snap.Previous = schemas.EmotionalState(current), schemas.EmotionalState(previous)
	return snap, nil
}

func (s *Store) SaveAffect(ctx context.Context, snap schemas.AffectSnapshot) error {
	_, err := s.pool.Exec(ctx, sqlUpsertAffect, string(snap.Current), string(snap.Previous), snap.Intensity, snap.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save affect state: %w", err)
	}
	return nil
}

// -- Helpers --

func scanOutcome(row pgx.Row) (schemas.PendingOutcome, error) {
	var o schemas.PendingOutcome
	var action, state, status string
	var initial, latest []byte
	err := row.Scan(
		&o.ID, &action, &state, &o.EventID, &o.ArtifactID, &o.TargetID,
		&o.CheckAfter, &initial, &latest, &o.Score, &status, &o.Attempts,
		&o.ClaimedAt, &o.LastError, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return schemas.PendingOutcome{}, err
	}
	o.ActionType = schemas.DecisionType(action)
	o.State = schemas.EmotionalState(state)
	o.Status = schemas.OutcomeStatus(status)
	if o.InitialMetrics, err = decodeMetrics(initial); err != nil {
		return schemas.PendingOutcome{}, err
	}
	if o.LatestMetrics, err = decodeMetrics(latest); err != nil {
		return schemas.PendingOutcome{}, err
	}
	return o, nil
}

func encodeMetrics(m *schemas.Metrics) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metrics: %w", err)
	}
	return b, nil
}

func decodeMetrics(b []byte) (*schemas.Metrics, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var m schemas.Metrics
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	return &m, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
