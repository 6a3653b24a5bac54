package affect

import (
	"time"

	"github.com/xkilldash9x/resonance/api/schemas"
)

// AgentContext is the agent's affective state pair. It is a value: each
// processing step returns a new context instead of mutating a shared one.
type AgentContext struct {
	Current   schemas.EmotionalState
	Previous  schemas.EmotionalState
	Intensity float64
	UpdatedAt time.Time
}

// NewAgentContext returns the resting context: curious at base intensity with
// no previous state.
func NewAgentContext() AgentContext {
	return AgentContext{Current: schemas.DefaultState, Intensity: BaseIntensity}
}

// FromSnapshot restores a persisted context. Invalid snapshots fall back to
// the resting context.
func FromSnapshot(snap schemas.AffectSnapshot) AgentContext {
	if !snap.Current.Valid() {
		return NewAgentContext()
	}
	ctx := AgentContext{
		Current:   snap.Current,
		Intensity: clampIntensity(snap.Intensity),
		UpdatedAt: snap.UpdatedAt,
	}
	if snap.Previous.Valid() {
		ctx.Previous = snap.Previous
	}
	return ctx
}

// Snapshot returns the persisted form of c.
func (c AgentContext) Snapshot() schemas.AffectSnapshot {
	return schemas.AffectSnapshot{
		Current:   c.Current,
		Previous:  c.Previous,
		Intensity: c.Intensity,
		UpdatedAt: c.UpdatedAt,
	}
}

// Next applies a classification and returns the resulting context. The
// receiver is left untouched.
func (c AgentContext) Next(cl Classification, now time.Time) AgentContext {
	return AgentContext{
		Current:   cl.State,
		Previous:  c.Current,
		Intensity: clampIntensity(cl.Intensity),
		UpdatedAt: now,
	}
}

// Transitioned reports whether the last step changed the current state.
func (c AgentContext) Transitioned() bool {
	return c.Previous != "" && c.Previous != c.Current
}

func clampIntensity(v float64) float64 {
	switch {
	case v < BaseIntensity:
		return BaseIntensity
	case v > MaxIntensity:
		return MaxIntensity
	}
	return v
}

var valence = map[schemas.EmotionalState]float64{
	schemas.StateDelighted:     1.0,
	schemas.StateAppreciative:  1.0,
	schemas.StateExcited:       0.7,
	schemas.StatePlayful:       0.6,
	schemas.StateCurious:       0.4,
	schemas.StateContemplative: 0.3,
	schemas.StateConfused:      -0.1,
	schemas.StateWary:          -1.0,
}

// Valence is the affinity signal a state contributes to a relationship, in [-1, 1].
func Valence(state schemas.EmotionalState) float64 {
	return valence[state]
}
