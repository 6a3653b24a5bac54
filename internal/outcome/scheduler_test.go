package outcome

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
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

// -- Test Helpers --

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordedScore struct {
	state    schemas.EmotionalState
	decision schemas.DecisionType
	score    float64
}

type fakeRecorder struct {
	mu     sync.Mutex
	scores []recordedScore
}

func (r *fakeRecorder) RecordOutcome(_ context.Context, state schemas.EmotionalState, decision schemas.DecisionType, score float64) schemas.Pattern {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores = append(r.scores, recordedScore{state, decision, score})
	return schemas.Pattern{State: state, Decision: decision}
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scores)
}

func testCfg() config.SchedulerConfig {
	return config.SchedulerConfig{
		CheckDelay:   24 * time.Hour,
		PollInterval: time.Minute,
		DrainLimit:   10,
		MaxAttempts:  3,
		RetryDelay:   time.Hour,
		ClaimLease:   15 * time.Minute,
		FetchTimeout: time.Second,
	}
}

type harness struct {
	sched    *Scheduler
	store    *memstore.Store
	clock    *fakeClock
	recorder *fakeRecorder
	platform *mocks.MockPlatform
}

func newHarness(t *testing.T, cfg config.SchedulerConfig) *harness {
	t.Helper()
	h := &harness{
		store:    memstore.New(),
		clock:    &fakeClock{now: time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)},
		recorder: &fakeRecorder{},
		platform: new(mocks.MockPlatform),
	}
	h.sched = NewScheduler(h.store, h.recorder, cfg, zaptest.NewLogger(t))
	h.sched.now = h.clock.Now
	return h
}

func (h *harness) create(t *testing.T, action schemas.DecisionType) string {
	t.Helper()
	id, err := h.sched.CreatePending(context.Background(), Action{
		Type: action, State: schemas.StateCurious, EventID: "ev-1", ArtifactID: "art-" + string(action), TargetID: "st-1",
	})
	require.NoError(t, err)
	return id
}

func (h *harness) get(t *testing.T, id string) schemas.PendingOutcome {
	t.Helper()
	o, err := h.store.GetOutcome(context.Background(), id)
	require.NoError(t, err)
	return o
}

// -- CreatePending --

func TestCreatePending(t *testing.T) {
	h := newHarness(t, testCfg())
	original := uuidNewString
	uuidNewString = func() string { return "fixed-id" }
	t.Cleanup(func() { uuidNewString = original })

	id := h.create(t, schemas.DecisionReply)
	assert.Equal(t, "fixed-id", id)

	o := h.get(t, id)
	assert.Equal(t, schemas.OutcomePending, o.Status)
	assert.Equal(t, h.clock.Now().Add(24*time.Hour), o.CheckAfter)
	assert.Equal(t, schemas.StateCurious, o.State)
	assert.Nil(t, o.Score)
}

func TestCreatePending_RejectsNonExecutingActions(t *testing.T) {
	h := newHarness(t, testCfg())
	for _, d := range []schemas.DecisionType{schemas.DecisionSkip, schemas.DecisionResearch, "bogus"} {
		_, err := h.sched.CreatePending(context.Background(), Action{Type: d})
		assert.Error(t, err, d)
	}
}

func TestCreatePending_StoreError(t *testing.T) {
	store := new(mocks.MockStore)
	sched := NewScheduler(store, nil, testCfg(), zaptest.NewLogger(t))
	store.On("CreateOutcome", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	_, err := sched.CreatePending(context.Background(), Action{Type: schemas.DecisionReply})
	assert.ErrorContains(t, err, "failed to create pending outcome")
}

// -- DrainDue --

func TestDrainDue_NothingBeforeCheckAfter(t *testing.T) {
	h := newHarness(t, testCfg())
	id := h.create(t, schemas.DecisionReply)

	h.clock.Advance(24*time.Hour - time.Second)
	res, err := h.sched.DrainDue(context.Background(), 10, h.platform)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Checked)
	assert.Equal(t, 0, res.Scored)
	assert.Equal(t, schemas.OutcomePending, h.get(t, id).Status)
	h.platform.AssertNotCalled(t, "FetchMetrics", mock.Anything, mock.Anything)
}

func TestDrainDue_ScoresDueRecords(t *testing.T) {
	h := newHarness(t, testCfg())
	ctx := context.Background()
	reply := h.create(t, schemas.DecisionReply)
	like := h.create(t, schemas.DecisionLike)
	follow := h.create(t, schemas.DecisionFollow)

	h.platform.On("FetchMetrics", mock.Anything, "art-reply").
		Return(&schemas.Metrics{Likes: 10, Replies: 3, Shares: 2}, nil).Once()

	h.clock.Advance(24 * time.Hour)
	res, err := h.sched.DrainDue(ctx, 10, h.platform)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Checked: 3, Scored: 3}, res)
	h.platform.AssertExpectations(t)

	r := h.get(t, reply)
	assert.Equal(t, schemas.OutcomeCompleted, r.Status)
	require.NotNil(t, r.Score)
	assert.InDelta(t, 0.85, *r.Score, 1e-9)
	require.NotNil(t, r.LatestMetrics)
	assert.Equal(t, 3, r.LatestMetrics.Replies)

	assert.Equal(t, LikeScore, *h.get(t, like).Score)
	assert.Equal(t, NeutralScore, *h.get(t, follow).Score)
	h.platform.AssertNotCalled(t, "FetchMetrics", mock.Anything, "art-like")

	assert.Equal(t, 3, h.recorder.count())

	// Completed records are never drained again.
	h.clock.Advance(48 * time.Hour)
	res, err = h.sched.DrainDue(ctx, 10, h.platform)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{}, res)
}

func TestDrainDue_RetryThenFail(t *testing.T) {
	h := newHarness(t, testCfg())
	ctx := context.Background()
	id := h.create(t, schemas.DecisionQuote)
	h.platform.On("FetchMetrics", mock.Anything, "art-quote").Return(nil, errors.New("503"))

	h.clock.Advance(24 * time.Hour)
	for attempt := 1; attempt < 3; attempt++ {
		res, err := h.sched.DrainDue(ctx, 10, h.platform)
		require.NoError(t, err)
		assert.Equal(t, DrainResult{Checked: 1, Requeued: 1}, res)

		o := h.get(t, id)
		assert.Equal(t, schemas.OutcomePending, o.Status)
		assert.Equal(t, attempt, o.Attempts)
		assert.Equal(t, h.clock.Now().Add(time.Hour), o.CheckAfter)

		// Not due again until the retry delay passes.
		res, _ = h.sched.DrainDue(ctx, 10, h.platform)
		assert.Equal(t, 0, res.Checked)
		h.clock.Advance(time.Hour)
	}

	res, err := h.sched.DrainDue(ctx, 10, h.platform)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Checked: 1, Failed: 1}, res)

	o := h.get(t, id)
	assert.Equal(t, schemas.OutcomeFailed, o.Status)
	assert.Contains(t, o.LastError, "metrics fetch failed")
	assert.Nil(t, o.Score)
	assert.Zero(t, h.recorder.count(), "failed outcomes never feed patterns")
}

func TestDrainDue_SingleAttemptFailsImmediately(t *testing.T) {
	cfg := testCfg()
	cfg.MaxAttempts = 1
	h := newHarness(t, cfg)
	id := h.create(t, schemas.DecisionReply)
	h.platform.On("FetchMetrics", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	h.clock.Advance(24 * time.Hour)
	res, err := h.sched.DrainDue(context.Background(), 10, h.platform)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Checked: 1, Failed: 1}, res)
	assert.Equal(t, schemas.OutcomeFailed, h.get(t, id).Status)
}

func TestDrainDue_UnavailableMetricsCompleteNeutralAfterRetries(t *testing.T) {
	cfg := testCfg()
	cfg.MaxAttempts = 2
	h := newHarness(t, cfg)
	ctx := context.Background()
	id := h.create(t, schemas.DecisionOriginalPost)
	h.platform.On("FetchMetrics", mock.Anything, mock.Anything).Return(nil, nil)

	h.clock.Advance(24 * time.Hour)
	res, _ := h.sched.DrainDue(ctx, 10, h.platform)
	assert.Equal(t, DrainResult{Checked: 1, Requeued: 1}, res)

	h.clock.Advance(time.Hour)
	res, _ = h.sched.DrainDue(ctx, 10, h.platform)
	assert.Equal(t, DrainResult{Checked: 1, Scored: 1}, res)

	o := h.get(t, id)
	assert.Equal(t, schemas.OutcomeCompleted, o.Status)
	assert.Equal(t, NeutralScore, *o.Score)
	assert.Nil(t, o.LatestMetrics)
}

func TestDrainDue_RecoversPanics(t *testing.T) {
	h := newHarness(t, testCfg())
	id := h.create(t, schemas.DecisionReply)
	h.platform.On("FetchMetrics", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("platform exploded")
	}).Return(nil, nil)

	h.clock.Advance(24 * time.Hour)
	res, err := h.sched.DrainDue(context.Background(), 10, h.platform)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Checked: 1, Failed: 1}, res)
	assert.Contains(t, h.get(t, id).LastError, "panic during evaluation")
}

func TestDrainDue_ClaimError(t *testing.T) {
	store := new(mocks.MockStore)
	sched := NewScheduler(store, nil, testCfg(), zaptest.NewLogger(t))
	store.On("ClaimDueOutcomes", mock.Anything, mock.Anything, 5, 15*time.Minute).Return(nil, errors.New("conn refused"))

	_, err := sched.DrainDue(context.Background(), 5, nil)
	assert.ErrorContains(t, err, "failed to claim due outcomes")
}

func TestDrainDue_LostLeaseDropsResult(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := new(mocks.MockStore)
	recorder := &fakeRecorder{}
	sched := NewScheduler(store, recorder, testCfg(), zap.New(core))

	rec := schemas.PendingOutcome{ID: "o-1", ActionType: schemas.DecisionLike, State: schemas.StateDelighted, Status: schemas.OutcomeEvaluating}
	store.On("ClaimDueOutcomes", mock.Anything, mock.Anything, 10, mock.Anything).Return([]schemas.PendingOutcome{rec}, nil)
	store.On("CompleteOutcome", mock.Anything, "o-1", (*schemas.Metrics)(nil), LikeScore, mock.Anything).
		Return(fmt.Errorf("complete: %w", schemas.ErrInvalidTransition))

	res, err := sched.DrainDue(context.Background(), 10, nil)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Checked: 1}, res)
	assert.Zero(t, recorder.count())
	assert.Equal(t, 1, logs.FilterMessage("Outcome no longer evaluating; dropping result").Len())
}

func TestDrainDue_ZeroLimit(t *testing.T) {
	h := newHarness(t, testCfg())
	h.create(t, schemas.DecisionLike)
	h.clock.Advance(48 * time.Hour)

	res, err := h.sched.DrainDue(context.Background(), 0, h.platform)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{}, res)
}

// Overlapping drains must never score the same record twice.
func TestDrainDue_ConcurrentDrainsScoreOnce(t *testing.T) {
	h := newHarness(t, testCfg())
	const n = 60
	for i := 0; i < n; i++ {
		h.create(t, schemas.DecisionReply)
	}

	var fetches atomic.Int64
	h.platform.On("FetchMetrics", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		fetches.Add(1)
	}).Return(&schemas.Metrics{Likes: 1}, nil)

	h.clock.Advance(24 * time.Hour)

	var wg sync.WaitGroup
	var scored atomic.Int64
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				res, err := h.sched.DrainDue(context.Background(), 4, h.platform)
				if err != nil || res.Checked == 0 {
					return
				}
				scored.Add(int64(res.Scored))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(n), scored.Load())
	assert.Equal(t, int64(n), fetches.Load(), "each record is fetched exactly once")
	assert.Equal(t, n, h.recorder.count())
}
