package pattern

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/resonance/api/schemas"
	"github.com/xkilldash9x/resonance/internal/config"
	"github.com/xkilldash9x/resonance/internal/mocks"
	"github.com/xkilldash9x/resonance/internal/store/memstore"
)

func defaultCfg() config.PatternsConfig {
	return config.PatternsConfig{MinSamples: 3, SuccessThreshold: 0.5, ContinueThreshold: 0.4}
}

func newTestAggregator(t *testing.T, store schemas.PatternStore) *Aggregator {
	t.Helper()
	a := NewAggregator(store, defaultCfg(), zaptest.NewLogger(t))
	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }
	return a
}

func TestLookup_NotSurfacedBelowMinSamples(t *testing.T) {
	a := newTestAggregator(t, nil)
	ctx := context.Background()

	assert.False(t, a.Lookup(schemas.StateCurious, schemas.DecisionReply).Surfaced, "unknown key")

	a.RecordOutcome(ctx, schemas.StateCurious, schemas.DecisionReply, 0.9)
	a.RecordOutcome(ctx, schemas.StateCurious, schemas.DecisionReply, 0.9)
	l := a.Lookup(schemas.StateCurious, schemas.DecisionReply)
	assert.False(t, l.Surfaced)
	assert.Equal(t, Lookup{}, l)
	assert.Equal(t, 1.0, a.Adjustment(schemas.StateCurious, schemas.DecisionReply))
	assert.Empty(t, a.Surfaced())

	a.RecordOutcome(ctx, schemas.StateCurious, schemas.DecisionReply, 0.3)
	l = a.Lookup(schemas.StateCurious, schemas.DecisionReply)
	assert.True(t, l.Surfaced)
	assert.Equal(t, 3, l.Count)
	assert.InDelta(t, 0.7, l.AvgScore, 1e-9)
	assert.InDelta(t, 2.0/3.0, l.SuccessRate, 1e-9)
	assert.True(t, l.ShouldContinue)
}

func TestRecordOutcome_SuccessThresholdIsStrict(t *testing.T) {
	a := newTestAggregator(t, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		a.RecordOutcome(ctx, schemas.StateDelighted, schemas.DecisionLike, 0.5)
	}
	l := a.Lookup(schemas.StateDelighted, schemas.DecisionLike)
	assert.Equal(t, 0.0, l.SuccessRate, "a score of exactly 0.5 is not a success")
	assert.False(t, l.ShouldContinue)
}

func TestAdjustment(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		scores   []float64
		expected float64
	}{
		{"strong pattern boosts", []float64{1.0, 1.0, 1.0}, 1.5},
		{"average pattern", []float64{0.6, 0.6, 0.6}, 1.1},
		{"weak pattern dampens", []float64{0.0, 0.0, 0.0}, 0.5},
		// avg 0.67 would give 1.17, but a success rate of 1/3 caps it at neutral.
		{"should not continue caps at neutral", []float64{1.0, 0.5, 0.5}, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAggregator(t, nil)
			for _, s := range tt.scores {
				a.RecordOutcome(ctx, schemas.StateExcited, schemas.DecisionQuote, s)
			}
			adj := a.Adjustment(schemas.StateExcited, schemas.DecisionQuote)
			assert.InDelta(t, tt.expected, adj, 1e-9)
			assert.GreaterOrEqual(t, adj, 0.5)
			assert.LessOrEqual(t, adj, 1.5)
		})
	}
}

func TestRecordOutcome_WritesThrough(t *testing.T) {
	store := new(mocks.MockStore)
	a := newTestAggregator(t, store)
	ctx := context.Background()

	stored := schemas.Pattern{State: schemas.StatePlayful, Decision: schemas.DecisionReply, Count: 7, AvgScore: 0.7, SuccessCount: 6, SuccessRate: 6.0 / 7, ShouldContinue: true}
	store.On("RecordPattern", ctx, mock.MatchedBy(func(s schemas.PatternSample) bool {
		return s.State == schemas.StatePlayful && s.Decision == schemas.DecisionReply && s.Score == 0.8 && s.Success && s.ContinueThreshold == 0.4
	})).Return(stored, nil).Once()

	p := a.RecordOutcome(ctx, schemas.StatePlayful, schemas.DecisionReply, 0.8)
	assert.Equal(t, stored, p, "the stored row is authoritative")
	assert.Equal(t, 7, a.Lookup(schemas.StatePlayful, schemas.DecisionReply).Count)
	store.AssertExpectations(t)
}

func TestRecordOutcome_StoreFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := new(mocks.MockStore)
	a := NewAggregator(store, defaultCfg(), zap.New(core))
	ctx := context.Background()

	store.On("RecordPattern", ctx, mock.Anything).Return(schemas.Pattern{}, errors.New("db down"))

	p := a.RecordOutcome(ctx, schemas.StateCurious, schemas.DecisionLike, 0.5)
	assert.Equal(t, 1, p.Count, "in-memory aggregate still advances")
	assert.Equal(t, 1, logs.FilterMessage("Failed to persist pattern aggregate").Len())
}

func TestLoad(t *testing.T) {
	store := new(mocks.MockStore)
	a := newTestAggregator(t, store)
	ctx := context.Background()

	store.On("LoadPatterns", ctx).Return([]schemas.Pattern{
		{State: schemas.StateCurious, Decision: schemas.DecisionReply, Count: 10, AvgScore: 0.8, SuccessCount: 8, SuccessRate: 0.8, ShouldContinue: true},
		{State: schemas.StateWary, Decision: schemas.DecisionSkip, Count: 1, AvgScore: 0.3},
	}, nil).Once()

	require.NoError(t, a.Load(ctx))
	l := a.Lookup(schemas.StateCurious, schemas.DecisionReply)
	assert.True(t, l.Surfaced)
	assert.Equal(t, 10, l.Count)
	assert.InDelta(t, 1.3, a.Adjustment(schemas.StateCurious, schemas.DecisionReply), 1e-9)

	surfaced := a.Surfaced()
	require.Len(t, surfaced, 1)
	assert.Equal(t, schemas.StateCurious, surfaced[0].State)
}

func TestLoad_ErrorKeepsState(t *testing.T) {
	store := new(mocks.MockStore)
	a := newTestAggregator(t, store)
	ctx := context.Background()

	store.On("RecordPattern", ctx, mock.Anything).Return(schemas.Pattern{}, errors.New("db down"))
	for i := 0; i < 3; i++ {
		a.RecordOutcome(ctx, schemas.StateCurious, schemas.DecisionLike, 0.9)
	}
	store.On("LoadPatterns", ctx).Return(nil, errors.New("unreachable")).Once()

	err := a.Load(ctx)
	assert.ErrorContains(t, err, "failed to load patterns")
	assert.True(t, a.Lookup(schemas.StateCurious, schemas.DecisionLike).Surfaced)
}

// flakyLoadStore fails LoadPatterns a set number of times.
type flakyLoadStore struct {
	*memstore.Store
	loadFailures int
}

func (s *flakyLoadStore) LoadPatterns(ctx context.Context) ([]schemas.Pattern, error) {
	if s.loadFailures > 0 {
		s.loadFailures--
		return nil, errors.New("connection reset")
	}
	return s.Store.LoadPatterns(ctx)
}

func TestRecordOutcome_FailedLoadKeepsStoredHistory(t *testing.T) {
	ctx := context.Background()
	backing := memstore.New()
	backing.PutPattern(schemas.Pattern{
		State: schemas.StateCurious, Decision: schemas.DecisionReply,
		Count: 50, AvgScore: 0.8, SuccessCount: 40, SuccessRate: 0.8, ShouldContinue: true,
	})
	store := &flakyLoadStore{Store: backing, loadFailures: 1}
	a := newTestAggregator(t, store)

	require.Error(t, a.Load(ctx))
	p := a.RecordOutcome(ctx, schemas.StateCurious, schemas.DecisionReply, 0.1)

	assert.Equal(t, 51, p.Count)
	assert.Equal(t, 40, p.SuccessCount)
	assert.InDelta(t, 0.8+(0.1-0.8)/51, p.AvgScore, 1e-9)

	rows, err := backing.LoadPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, p, rows[0])
	assert.Equal(t, 51, a.Lookup(schemas.StateCurious, schemas.DecisionReply).Count)
}

func TestRecordOutcome_TwoAggregatorsShareStore(t *testing.T) {
	ctx := context.Background()
	backing := memstore.New()
	runAgg := newTestAggregator(t, backing)
	drainAgg := newTestAggregator(t, backing)

	runAgg.RecordOutcome(ctx, schemas.StateExcited, schemas.DecisionQuote, 0.9)
	drainAgg.RecordOutcome(ctx, schemas.StateExcited, schemas.DecisionQuote, 0.2)
	last := runAgg.RecordOutcome(ctx, schemas.StateExcited, schemas.DecisionQuote, 0.7)

	assert.Equal(t, 3, last.Count)
	assert.Equal(t, 2, last.SuccessCount)
	rows, err := backing.LoadPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].Count)
	assert.InDelta(t, 0.6, rows[0].AvgScore, 1e-9)
}

func TestAggregator_ConcurrentAccess(t *testing.T) {
	a := newTestAggregator(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				a.RecordOutcome(ctx, schemas.StateCurious, schemas.DecisionReply, 0.6)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = a.Adjustment(schemas.StateCurious, schemas.DecisionReply)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, a.Lookup(schemas.StateCurious, schemas.DecisionReply).Count)
}
