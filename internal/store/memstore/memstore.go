// Package memstore is an in-process schemas.Store used for dry runs and tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xkilldash9x/resonance/api/schemas"
)

// Store keeps every record in maps guarded by a single mutex. The outcome
// claim is atomic because it runs entirely under that mutex.
type Store struct {
	mu            sync.Mutex
	events        map[string]schemas.EmotionalEvent
	outcomes      map[string]schemas.PendingOutcome
	patterns      map[schemas.PatternKey]schemas.Pattern
	relationships map[string]schemas.Relationship
	affect        *schemas.AffectSnapshot
}

var _ schemas.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		events:        make(map[string]schemas.EmotionalEvent),
		outcomes:      make(map[string]schemas.PendingOutcome),
		patterns:      make(map[schemas.PatternKey]schemas.Pattern),
		relationships: make(map[string]schemas.Relationship),
	}
}

func (s *Store) SaveEvent(_ context.Context, event schemas.EmotionalEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
	return nil
}

func (s *Store) AttachOutcome(_ context.Context, eventID, outcomeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	if !ok {
		return schemas.ErrNotFound
	}
	ev.OutcomeID = outcomeID
	s.events[eventID] = ev
	return nil
}

// Event returns a stored event. Tests only.
func (s *Store) Event(id string) (schemas.EmotionalEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	return ev, ok
}

// Events returns every stored event ordered by creation time.
func (s *Store) Events() []schemas.EmotionalEvent {
	s.mu.Lock()
	out := make([]schemas.EmotionalEvent, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) CreateOutcome(_ context.Context, outcome schemas.PendingOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[outcome.ID] = cloneOutcome(outcome)
	return nil
}

func (s *Store) GetOutcome(_ context.Context, id string) (schemas.PendingOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outcomes[id]
	if !ok {
		return schemas.PendingOutcome{}, schemas.ErrNotFound
	}
	return cloneOutcome(o), nil
}

func (s *Store) ClaimDueOutcomes(_ context.Context, now time.Time, limit int, lease time.Duration) ([]schemas.PendingOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []schemas.PendingOutcome
	for _, o := range s.outcomes {
		if claimable(o, now, lease) {
			due = append(due, o)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CheckAfter.Before(due[j].CheckAfter) })
	if len(due) > limit {
		due = due[:limit]
	}

	claimedAt := now
	for i := range due {
		due[i].Status = schemas.OutcomeEvaluating
		due[i].ClaimedAt = &claimedAt
		due[i].UpdatedAt = now
		s.outcomes[due[i].ID] = due[i]
		due[i] = cloneOutcome(due[i])
	}
	return due, nil
}

func claimable(o schemas.PendingOutcome, now time.Time, lease time.Duration) bool {
	switch o.Status {
	case schemas.OutcomePending:
		return !o.CheckAfter.After(now)
	case schemas.OutcomeEvaluating:
		return lease > 0 && o.ClaimedAt != nil && !o.ClaimedAt.After(now.Add(-lease))
	}
	return false
}

func (s *Store) CompleteOutcome(_ context.Context, id string, latest *schemas.Metrics, score float64, now time.Time) error {
	return s.transition(id, func(o *schemas.PendingOutcome) {
		o.Status = schemas.OutcomeCompleted
		o.LatestMetrics = cloneMetrics(latest)
		o.Score = &score
		o.ClaimedAt = nil
		o.UpdatedAt = now
	})
}

func (s *Store) FailOutcome(_ context.Context, id string, reason string, now time.Time) error {
	return s.transition(id, func(o *schemas.PendingOutcome) {
		o.Status = schemas.OutcomeFailed
		o.LastError = reason
		o.Attempts++
		o.ClaimedAt = nil
		o.UpdatedAt = now
	})
}

func (s *Store) RequeueOutcome(_ context.Context, id string, checkAfter time.Time, attempts int, reason string, now time.Time) error {
	return s.transition(id, func(o *schemas.PendingOutcome) {
		o.Status = schemas.OutcomePending
		o.CheckAfter = checkAfter
		o.Attempts = attempts
		o.LastError = reason
		o.ClaimedAt = nil
		o.UpdatedAt = now
	})
}

// transition applies fn only to a record that is currently evaluating.
func (s *Store) transition(id string, fn func(*schemas.PendingOutcome)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outcomes[id]
	if !ok {
		return schemas.ErrNotFound
	}
	if o.Status != schemas.OutcomeEvaluating {
		return schemas.ErrInvalidTransition
	}
	fn(&o)
	s.outcomes[id] = o
	return nil
}

func (s *Store) LoadPatterns(_ context.Context) ([]schemas.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schemas.Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) RecordPattern(_ context.Context, sample schemas.PatternSample) (schemas.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.patterns[sample.Key()].Fold(sample)
	s.patterns[sample.Key()] = p
	return p, nil
}

// PutPattern stores p as-is, replacing any existing aggregate. Fixtures only.
func (s *Store) PutPattern(p schemas.Pattern) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[p.Key()] = p
}

func (s *Store) GetRelationship(_ context.Context, counterpartyID string) (schemas.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel, ok := s.relationships[counterpartyID]
	if !ok {
		return schemas.Relationship{}, schemas.ErrNotFound
	}
	return rel, nil
}

func (s *Store) UpsertRelationship(_ context.Context, rel schemas.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relationships[rel.CounterpartyID] = rel
	return nil
}

func (s *Store) LoadAffect(_ context.Context) (schemas.AffectSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.affect == nil {
		return schemas.AffectSnapshot{}, schemas.ErrNotFound
	}
	return *s.affect, nil
}

func (s *Store) SaveAffect(_ context.Context, snap schemas.AffectSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.affect = &snap
	return nil
}

func (s *Store) Close() error { return nil }

func cloneMetrics(m *schemas.Metrics) *schemas.Metrics {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

func cloneOutcome(o schemas.PendingOutcome) schemas.PendingOutcome {
	o.InitialMetrics = cloneMetrics(o.InitialMetrics)
	o.LatestMetrics = cloneMetrics(o.LatestMetrics)
	if o.Score != nil {
		v := *o.Score
		o.Score = &v
	}
	if o.ClaimedAt != nil {
		t := *o.ClaimedAt
		o.ClaimedAt = &t
	}
	return o
}
