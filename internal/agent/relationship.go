package agent

import (
	"math"
	"time"

	"github.com/xkilldash9x/resonance/api/schemas"
	"github.com/xkilldash9x/resonance/internal/affect"
)

// vibeSmoothing is the weight of the newest interaction in the vibe EMA.
const vibeSmoothing = 0.2

// updateRelationship folds one interaction into rel. A nil rel starts a new
// relationship.
func updateRelationship(rel *schemas.Relationship, counterpartyID string, state schemas.EmotionalState, now time.Time) schemas.Relationship {
	if rel == nil {
		return schemas.Relationship{
			CounterpartyID:   counterpartyID,
			InteractionCount: 1,
			FirstSeen:        now,
			LastInteraction:  now,
			Vibe:             clampVibe(vibeSmoothing * affect.Valence(state)),
		}
	}
	next := *rel
	next.InteractionCount++
	next.LastInteraction = now
	next.Vibe = clampVibe((1-vibeSmoothing)*rel.Vibe + vibeSmoothing*affect.Valence(state))
	return next
}

func clampVibe(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
