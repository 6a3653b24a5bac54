package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/resonance/api/schemas"
)

func TestEventFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	ev := schemas.EmotionalEvent{
		ID:            "ev-1",
		StimulusID:    "st-1",
		AuthorID:      "alice",
		State:         schemas.StateExcited,
		Intensity:     0.75,
		PreviousState: schemas.StateCurious,
		Decision:      schemas.DecisionQuote,
		Reasoning:     "matched 3 triggers",
	}
	logger.Info("Stimulus processed", EventFields(ev)...)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		ctx := entries[0].ContextMap()
		assert.Equal(t, "excited", ctx["state"])
		assert.Equal(t, "curious", ctx["previous_state"])
		assert.Equal(t, "quote", ctx["decision"])
		assert.Equal(t, 0.75, ctx["intensity"])
		assert.NotContains(t, ctx, "outcome_id")
	}
}

func TestOutcomeFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	score := 0.6

	logger.Info("scored", OutcomeFields(schemas.PendingOutcome{
		ID: "o-1", ActionType: schemas.DecisionReply, Status: schemas.OutcomeCompleted, Score: &score,
	})...)

	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "completed", ctx["status"])
	assert.Equal(t, 0.6, ctx["outcome_score"])
}
