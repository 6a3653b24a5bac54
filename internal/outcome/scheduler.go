// internal/outcome/scheduler.go
package outcome

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/resonance/api/schemas"
	"github.com/xkilldash9x/resonance/internal/config"
	"github.com/xkilldash9x/resonance/internal/observability"
)

// uuidNewString is a package-level variable that allows mocking uuid generation in tests.
var uuidNewString = uuid.NewString

// MetricsFetcher is the slice of the platform client the scheduler needs.
type MetricsFetcher interface {
	FetchMetrics(ctx context.Context, artifactID string) (*schemas.Metrics, error)
}

// Recorder receives every completed score. The pattern aggregator implements it.
type Recorder interface {
	RecordOutcome(ctx context.Context, state schemas.EmotionalState, decision schemas.DecisionType, score float64) schemas.Pattern
}

// Action describes an executed action that needs deferred evaluation.
type Action struct {
	Type           schemas.DecisionType
	State          schemas.EmotionalState
	EventID        string
	ArtifactID     string
	TargetID       string
	InitialMetrics *schemas.Metrics
}

// DrainResult summarizes one drain pass. Checked counts claimed records;
// Scored counts those that reached completed.
type DrainResult struct {
	Checked  int `json:"checked"`
	Scored   int `json:"scored"`
	Requeued int `json:"requeued"`
	Failed   int `json:"failed"`
}

// Scheduler owns the PendingOutcome lifecycle: pending -> evaluating ->
// completed | failed, with evaluating -> pending for bounded retries.
type Scheduler struct {
	store    schemas.OutcomeStore
	recorder Recorder
	cfg      config.SchedulerConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewScheduler creates a scheduler. recorder may be nil.
func NewScheduler(store schemas.OutcomeStore, recorder Recorder, cfg config.SchedulerConfig, logger *zap.Logger) *Scheduler {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Scheduler{
		store:    store,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger.Named("scheduler"),
		now:      time.Now,
	}
}

// CreatePending persists a pending outcome due after the configured check delay.
func (s *Scheduler) CreatePending(ctx context.Context, action Action) (string, error) {
	if !action.Type.Executes() {
		return "", fmt.Errorf("action type %q does not produce an outcome", action.Type)
	}

	now := s.now()
	rec := schemas.PendingOutcome{
		ID:             uuidNewString(),
		ActionType:     action.Type,
		State:          action.State,
		EventID:        action.EventID,
		ArtifactID:     action.ArtifactID,
		TargetID:       action.TargetID,
		CheckAfter:     now.Add(s.cfg.CheckDelay),
		InitialMetrics: action.InitialMetrics,
		Status:         schemas.OutcomePending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateOutcome(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to create pending outcome: %w", err)
	}

	s.logger.Debug("Pending outcome created", observability.OutcomeFields(rec)...)
	return rec.ID, nil
}

// DrainDue claims up to limit due records and evaluates each one. The claim
// commits before any metrics fetch starts, so overlapping drains never
// evaluate the same record.
func (s *Scheduler) DrainDue(ctx context.Context, limit int, fetcher MetricsFetcher) (DrainResult, error) {
	var result DrainResult
	if limit <= 0 {
		return result, nil
	}

	claimed, err := s.store.ClaimDueOutcomes(ctx, s.now(), limit, s.cfg.ClaimLease)
	if err != nil {
		return result, fmt.Errorf("failed to claim due outcomes: %w", err)
	}
	result.Checked = len(claimed)

	for _, rec := range claimed {
		if ctx.Err() != nil {
			// Unprocessed claims stay evaluating until the lease expires.
			break
		}
		switch s.evaluate(ctx, rec, fetcher) {
		case statusScored:
			result.Scored++
		case statusRequeued:
			result.Requeued++
		case statusFailed:
			result.Failed++
		}
	}

	if result.Checked > 0 {
		s.logger.Info("Outcome drain finished",
			zap.Int("checked", result.Checked),
			zap.Int("scored", result.Scored),
			zap.Int("requeued", result.Requeued),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

type evalStatus int

const (
	statusSkipped evalStatus = iota
	statusScored
	statusRequeued
	statusFailed
)

func (s *Scheduler) evaluate(ctx context.Context, rec schemas.PendingOutcome, fetcher MetricsFetcher) (status evalStatus) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered during outcome evaluation",
				zap.Any("panic_value", r),
				zap.String("outcome_id", rec.ID),
				zap.Stack("stack"),
			)
			status = s.fail(ctx, rec, fmt.Sprintf("panic during evaluation: %v", r))
		}
	}()

	if !HasMetrics(rec.ActionType) {
		return s.complete(ctx, rec, nil, Score(rec.ActionType, nil))
	}

	metrics, err := s.fetch(ctx, rec.ArtifactID, fetcher)
	attempts := rec.Attempts + 1
	switch {
	case err != nil:
		reason := fmt.Sprintf("metrics fetch failed: %v", err)
		if attempts >= s.cfg.MaxAttempts {
			return s.fail(ctx, rec, reason)
		}
		return s.requeue(ctx, rec, attempts, reason)
	case metrics == nil:
		if attempts >= s.cfg.MaxAttempts {
			// Completed but unverifiable.
			return s.complete(ctx, rec, nil, NeutralScore)
		}
		return s.requeue(ctx, rec, attempts, "metrics temporarily unavailable")
	default:
		return s.complete(ctx, rec, metrics, Score(rec.ActionType, metrics))
	}
}

func (s *Scheduler) fetch(ctx context.Context, artifactID string, fetcher MetricsFetcher) (*schemas.Metrics, error) {
	if fetcher == nil {
		return nil, errors.New("no metrics fetcher configured")
	}
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}
	return fetcher.FetchMetrics(ctx, artifactID)
}

func (s *Scheduler) complete(ctx context.Context, rec schemas.PendingOutcome, latest *schemas.Metrics, score float64) evalStatus {
	if err := s.store.CompleteOutcome(ctx, rec.ID, latest, score, s.now()); err != nil {
		s.logTransitionError("complete", rec, err)
		return statusSkipped
	}

	rec.Status = schemas.OutcomeCompleted
	rec.Score = &score
	s.logger.Info("Outcome scored", observability.OutcomeFields(rec)...)

	if s.recorder != nil && rec.State != "" {
		s.recorder.RecordOutcome(ctx, rec.State, rec.ActionType, score)
	}
	return statusScored
}

func (s *Scheduler) requeue(ctx context.Context, rec schemas.PendingOutcome, attempts int, reason string) evalStatus {
	now := s.now()
	if err := s.store.RequeueOutcome(ctx, rec.ID, now.Add(s.cfg.RetryDelay), attempts, reason, now); err != nil {
		s.logTransitionError("requeue", rec, err)
		return statusSkipped
	}
	s.logger.Info("Outcome requeued for retry",
		zap.String("outcome_id", rec.ID),
		zap.Int("attempts", attempts),
		zap.Int("max_attempts", s.cfg.MaxAttempts),
		zap.String("reason", reason),
	)
	return statusRequeued
}

func (s *Scheduler) fail(ctx context.Context, rec schemas.PendingOutcome, reason string) evalStatus {
	if err := s.store.FailOutcome(ctx, rec.ID, reason, s.now()); err != nil {
		s.logTransitionError("fail", rec, err)
		return statusSkipped
	}
	s.logger.Warn("Outcome failed", zap.String("outcome_id", rec.ID), zap.String("reason", reason))
	return statusFailed
}

func (s *Scheduler) logTransitionError(op string, rec schemas.PendingOutcome, err error) {
	if errors.Is(err, schemas.ErrInvalidTransition) {
		// Another drain reclaimed the record after our lease expired.
		s.logger.Warn("Outcome no longer evaluating; dropping result",
			zap.String("op", op), zap.String("outcome_id", rec.ID))
		return
	}
	s.logger.Error("Failed to update outcome", zap.String("op", op), zap.String("outcome_id", rec.ID), zap.Error(err))
}
