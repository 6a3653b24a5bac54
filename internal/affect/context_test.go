package affect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/resonance/api/schemas"
)

func TestAgentContext_Next(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	start := NewAgentContext()

	next := start.Next(Classification{State: schemas.StateExcited, Intensity: 0.75}, now)

	assert.Equal(t, schemas.StateExcited, next.Current)
	assert.Equal(t, schemas.StateCurious, next.Previous)
	assert.Equal(t, 0.75, next.Intensity)
	assert.Equal(t, now, next.UpdatedAt)
	assert.True(t, next.Transitioned())

	// The original value is untouched.
	assert.Equal(t, schemas.StateCurious, start.Current)
	assert.Empty(t, start.Previous)
	assert.False(t, start.Transitioned())

	same := next.Next(Classification{State: schemas.StateExcited, Intensity: 0.6}, now)
	assert.False(t, same.Transitioned())
}

func TestAgentContext_SnapshotRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := NewAgentContext().Next(Classification{State: schemas.StatePlayful, Intensity: 0.6}, now)

	assert.Equal(t, ctx, FromSnapshot(ctx.Snapshot()))
}

func TestFromSnapshot_Invalid(t *testing.T) {
	assert.Equal(t, NewAgentContext(), FromSnapshot(schemas.AffectSnapshot{}))
	assert.Equal(t, NewAgentContext(), FromSnapshot(schemas.AffectSnapshot{Current: "grumpy", Intensity: 0.8}))

	restored := FromSnapshot(schemas.AffectSnapshot{Current: schemas.StateWary, Previous: "grumpy", Intensity: 5})
	assert.Equal(t, schemas.StateWary, restored.Current)
	assert.Empty(t, restored.Previous)
	assert.Equal(t, MaxIntensity, restored.Intensity)
}

func TestValence(t *testing.T) {
	for _, s := range schemas.AllStates {
		v := Valence(s)
		assert.GreaterOrEqual(t, v, -1.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Less(t, Valence(schemas.StateWary), 0.0)
	assert.Greater(t, Valence(schemas.StateDelighted), Valence(schemas.StateCurious))
}
