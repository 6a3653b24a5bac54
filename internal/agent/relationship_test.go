package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/resonance/api/schemas"
)

func TestUpdateRelationship(t *testing.T) {
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	rel := updateRelationship(nil, "alice", schemas.StateDelighted, first)
	assert.Equal(t, schemas.Relationship{
		CounterpartyID:   "alice",
		InteractionCount: 1,
		FirstSeen:        first,
		LastInteraction:  first,
		Vibe:             0.2,
	}, rel)

	rel = updateRelationship(&rel, "alice", schemas.StateWary, later)
	assert.Equal(t, 2, rel.InteractionCount)
	assert.Equal(t, first, rel.FirstSeen)
	assert.Equal(t, later, rel.LastInteraction)
	assert.InDelta(t, 0.8*0.2-0.2, rel.Vibe, 1e-9)
}

func TestUpdateRelationship_VibeStaysBounded(t *testing.T) {
	rel := &schemas.Relationship{CounterpartyID: "bob", Vibe: 1}
	for i := 0; i < 50; i++ {
		next := updateRelationship(rel, "bob", schemas.StateAppreciative, time.Now())
		rel = &next
	}
	assert.LessOrEqual(t, rel.Vibe, 1.0)

	for i := 0; i < 50; i++ {
		next := updateRelationship(rel, "bob", schemas.StateWary, time.Now())
		rel = &next
	}
	assert.GreaterOrEqual(t, rel.Vibe, -1.0)
	assert.Less(t, rel.Vibe, -0.99)
}
