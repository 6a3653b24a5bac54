package gate

import (
	"context"
	"fmt"
	"math"

	"github.com/xkilldash9x/resonance/api/schemas"
)

// PatternWeigher supplies the learned multiplier for a (state, decision) pair.
// The pattern aggregator implements it.
type PatternWeigher interface {
	Adjustment(state schemas.EmotionalState, decision schemas.DecisionType) float64
}

const (
	maxSpark          = 10.0
	minLearned        = 0.5
	maxLearned        = 1.5
	topicStep         = 0.05
	maxTopicWeight    = 1.2
	minCounterparty   = 0.8
	maxCounterparty   = 1.25
	familiarityBonus  = 0.05
	familiarityFloor  = 5
	counterpartyScale = 0.2
)

// TriageGate scores how strongly a stimulus should trigger engagement and
// vetoes anything below the threshold. It is cheap and runs first.
type TriageGate struct {
	patterns  PatternWeigher
	threshold float64
}

// NewTriageGate creates the triage gate. patterns may be nil.
func NewTriageGate(patterns PatternWeigher, threshold float64) *TriageGate {
	return &TriageGate{patterns: patterns, threshold: threshold}
}

func (g *TriageGate) Name() string { return "triage" }

func (g *TriageGate) Evaluate(_ context.Context, ev *Evaluation) (Verdict, error) {
	spark := g.Spark(ev)
	ev.Spark = spark

	if spark < g.threshold {
		return Verdict{
			Reason:      fmt.Sprintf("insufficient spark (%.2f < %.2f)", spark, g.threshold),
			Remediation: "wait for a stronger or more relevant stimulus",
		}, nil
	}
	return Verdict{Approved: true, Reason: fmt.Sprintf("spark %.2f", spark)}, nil
}

// Spark is clamp(intensity*10*learned, 0, 10), where learned is the product
// of the pattern, topic and counterparty weights bounded to [0.5, 1.5].
func (g *TriageGate) Spark(ev *Evaluation) float64 {
	patternAdj := 1.0
	if g.patterns != nil {
		patternAdj = g.patterns.Adjustment(ev.Classification.State, ev.Decision.Type)
	}
	learned := clamp(patternAdj*TopicWeight(ev.Classification.DomainMatches)*CounterpartyWeight(ev.Relationship), minLearned, maxLearned)
	return clamp(ev.Classification.Intensity*maxSpark*learned, 0, maxSpark)
}

// TopicWeight boosts on-topic stimuli: 1 + 0.05 per domain match, capped at 1.2.
func TopicWeight(domainMatches int) float64 {
	if domainMatches <= 0 {
		return 1.0
	}
	return math.Min(maxTopicWeight, 1.0+topicStep*float64(domainMatches))
}

// CounterpartyWeight favors authors the agent gets along with, within [0.8, 1.25].
func CounterpartyWeight(rel *schemas.Relationship) float64 {
	if rel == nil {
		return 1.0
	}
	w := 1.0 + counterpartyScale*rel.Vibe
	if rel.InteractionCount >= familiarityFloor {
		w += familiarityBonus
	}
	return clamp(w, minCounterparty, maxCounterparty)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
