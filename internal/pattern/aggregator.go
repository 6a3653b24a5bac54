// internal/pattern/aggregator.go
package pattern

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/resonance/api/schemas"
	"github.com/xkilldash9x/resonance/internal/config"
)

const (
	minAdjustment = 0.5
	maxAdjustment = 1.5
)

// Lookup is the consumer view of one aggregate.
type Lookup struct {
	Count          int     `json:"count"`
	AvgScore       float64 `json:"avg_score"`
	SuccessRate    float64 `json:"success_rate"`
	ShouldContinue bool    `json:"should_continue"`
	// Surfaced is false while the key has fewer than the minimum sample count.
	// The other fields are zero in that case.
	Surfaced bool `json:"surfaced"`
}

// Aggregator maintains rolling outcome statistics per (state, decision). It is
// read concurrently by the gate chain and written only by the outcome
// scheduler's finalize step.
type Aggregator struct {
	mu     sync.RWMutex
	stats  map[schemas.PatternKey]schemas.Pattern
	store  schemas.PatternStore
	cfg    config.PatternsConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewAggregator creates an empty aggregator. store may be nil, in which case
// aggregates live only in memory.
func NewAggregator(store schemas.PatternStore, cfg config.PatternsConfig, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		stats:  make(map[schemas.PatternKey]schemas.Pattern),
		store:  store,
		cfg:    cfg,
		logger: logger.Named("patterns"),
		now:    time.Now,
	}
}

// Load replaces the in-memory aggregates with the persisted ones. On error the
// current aggregates are kept.
func (a *Aggregator) Load(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	patterns, err := a.store.LoadPatterns(ctx)
	if err != nil {
		return fmt.Errorf("failed to load patterns: %w", err)
	}

	loaded := make(map[schemas.PatternKey]schemas.Pattern, len(patterns))
	for _, p := range patterns {
		loaded[p.Key()] = p
	}

	a.mu.Lock()
	a.stats = loaded
	a.mu.Unlock()

	a.logger.Info("Loaded pattern aggregates", zap.Int("count", len(loaded)))
	return nil
}

// RecordOutcome folds a completed outcome score into its aggregate. The store
// applies the increment to its own row, so history written by other processes
// or never loaded here is preserved, and the returned row refreshes the cache.
// Store failures are logged, not returned; the sample is then folded into the
// cache only.
func (a *Aggregator) RecordOutcome(ctx context.Context, state schemas.EmotionalState, decision schemas.DecisionType, score float64) schemas.Pattern {
	sample := schemas.PatternSample{
		State:             state,
		Decision:          decision,
		Score:             score,
		Success:           score > a.cfg.SuccessThreshold,
		ContinueThreshold: a.cfg.ContinueThreshold,
		At:                a.now(),
	}
	key := sample.Key()

	if a.store != nil {
		stored, err := a.store.RecordPattern(ctx, sample)
		if err == nil {
			a.mu.Lock()
			// A concurrent writer may already have cached a later row.
			if cached, ok := a.stats[key]; !ok || stored.Count >= cached.Count {
				a.stats[key] = stored
			}
			a.mu.Unlock()
			return stored
		}
		a.logger.Warn("Failed to persist pattern aggregate", zap.Error(err),
			zap.String("state", string(state)), zap.String("decision", string(decision)))
	}

	a.mu.Lock()
	p := a.stats[key].Fold(sample)
	a.stats[key] = p
	a.mu.Unlock()
	return p
}

// Lookup returns the aggregate for a key, or an unsurfaced result when the key
// has too few samples.
func (a *Aggregator) Lookup(state schemas.EmotionalState, decision schemas.DecisionType) Lookup {
	a.mu.RLock()
	p, ok := a.stats[schemas.PatternKey{State: state, Decision: decision}]
	a.mu.RUnlock()

	if !ok || p.Count < a.cfg.MinSamples {
		return Lookup{}
	}
	return Lookup{
		Count:          p.Count,
		AvgScore:       p.AvgScore,
		SuccessRate:    p.SuccessRate,
		ShouldContinue: p.ShouldContinue,
		Surfaced:       true,
	}
}

// Adjustment is the multiplicative weight a pattern contributes to the spark
// score, bounded to [0.5, 1.5]. Unsurfaced keys are neutral, and a key that
// should not continue can only dampen.
func (a *Aggregator) Adjustment(state schemas.EmotionalState, decision schemas.DecisionType) float64 {
	l := a.Lookup(state, decision)
	if !l.Surfaced {
		return 1.0
	}
	adj := math.Max(minAdjustment, math.Min(maxAdjustment, 0.5+l.AvgScore))
	if !l.ShouldContinue {
		adj = math.Min(adj, 1.0)
	}
	return adj
}

// Surfaced returns every aggregate that meets the minimum sample count,
// ordered by state then decision.
func (a *Aggregator) Surfaced() []schemas.Pattern {
	a.mu.RLock()
	out := make([]schemas.Pattern, 0, len(a.stats))
	for _, p := range a.stats {
		if p.Count >= a.cfg.MinSamples {
			out = append(out, p)
		}
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].State != out[j].State {
			return out[i].State < out[j].State
		}
		return out[i].Decision < out[j].Decision
	})
	return out
}
