// internal/affect/classifier.go
package affect

import (
	"fmt"
	"math"
	"strings"

	"github.com/xkilldash9x/resonance/api/schemas"
)

const (
	// BaseIntensity is the floor for any classification, and the exact value for empty input.
	BaseIntensity = 0.3
	// MaxIntensity caps keyword-derived intensity below 1.0.
	MaxIntensity = 0.9

	triggerWeight = 0.15
	domainWeight  = 0.10
)

// Bucket is a coarse intensity band used to look up the suggested decision.
type Bucket string

const (
	BucketLow  Bucket = "low"
	BucketMid  Bucket = "mid"
	BucketHigh Bucket = "high"
)

// BucketFor maps an intensity onto its band: low < 0.5 <= mid < 0.7 <= high.
func BucketFor(intensity float64) Bucket {
	switch {
	case intensity >= 0.7:
		return BucketHigh
	case intensity >= 0.5:
		return BucketMid
	default:
		return BucketLow
	}
}

// Classification is the output of the stimulus classifier.
type Classification struct {
	State             schemas.EmotionalState `json:"state"`
	Intensity         float64                `json:"intensity"`
	Reasoning         string                 `json:"reasoning"`
	SuggestedDecision schemas.DecisionType   `json:"suggested_decision"`
	TriggerMatches    int                    `json:"trigger_matches"`
	DomainMatches     int                    `json:"domain_matches"`
}

// Bucket returns the intensity band of c.
func (c Classification) Bucket() Bucket {
	return BucketFor(c.Intensity)
}

var defaultTriggers = map[schemas.EmotionalState][]string{
	schemas.StateCurious:       {"wonder", "curious", "how does", "what if", "anyone know", "ever noticed", "rabbit hole"},
	schemas.StateDelighted:     {"love this", "amazing", "beautiful", "made my day", "so good", "delightful", "wholesome"},
	schemas.StateConfused:      {"confused", "doesn't make sense", "don't understand", "what does this mean", "unclear", "wait what"},
	schemas.StateExcited:       {"breaking", "just launched", "announcing", "finally", "huge news", "can't wait", "!!!"},
	schemas.StatePlayful:       {"lol", "lmao", "haha", "meme", "joke", "😂"},
	schemas.StateContemplative: {"meaning of", "reflect", "philosophy", "consciousness", "existential", "thinking about"},
	schemas.StateAppreciative:  {"thank you", "thanks", "grateful", "appreciate", "shoutout", "kudos"},
	schemas.StateWary:          {"scam", "giveaway", "dm me", "airdrop", "guaranteed returns", "click this link", "free money"},
}

var defaultDomainVocabulary = []string{
	"artificial intelligence", "llm", "language model", "neural net", "agents", "emergent",
	"open source", "machine learning", "embedding", "inference", "gpu", "alignment",
}

// decisionTable holds the suggested decision per (state, bucket). Wary maps to
// skip in every bucket.
var decisionTable = map[schemas.EmotionalState]map[Bucket]schemas.DecisionType{
	schemas.StateCurious:       {BucketLow: schemas.DecisionLike, BucketMid: schemas.DecisionReply, BucketHigh: schemas.DecisionReply},
	schemas.StateConfused:      {BucketLow: schemas.DecisionSkip, BucketMid: schemas.DecisionLike, BucketHigh: schemas.DecisionReply},
	schemas.StateDelighted:     {BucketLow: schemas.DecisionLike, BucketMid: schemas.DecisionLike, BucketHigh: schemas.DecisionQuote},
	schemas.StateExcited:       {BucketLow: schemas.DecisionLike, BucketMid: schemas.DecisionQuote, BucketHigh: schemas.DecisionQuote},
	schemas.StatePlayful:       {BucketLow: schemas.DecisionLike, BucketMid: schemas.DecisionReply, BucketHigh: schemas.DecisionReply},
	schemas.StateContemplative: {BucketLow: schemas.DecisionSkip, BucketMid: schemas.DecisionLike, BucketHigh: schemas.DecisionResearch},
	schemas.StateAppreciative:  {BucketLow: schemas.DecisionLike, BucketMid: schemas.DecisionLike, BucketHigh: schemas.DecisionFollow},
	schemas.StateWary:          {BucketLow: schemas.DecisionSkip, BucketMid: schemas.DecisionSkip, BucketHigh: schemas.DecisionSkip},
}

// SuggestDecision looks up the decision for a state at the given intensity.
// Unknown states suggest skip.
func SuggestDecision(state schemas.EmotionalState, intensity float64) schemas.DecisionType {
	if state == schemas.StateWary {
		return schemas.DecisionSkip
	}
	row, ok := decisionTable[state]
	if !ok {
		return schemas.DecisionSkip
	}
	return row[BucketFor(intensity)]
}

// Classifier maps stimulus text to an emotional state by keyword matching. It
// holds only immutable tables and is safe for concurrent use.
type Classifier struct {
	triggers map[schemas.EmotionalState][]string
	domain   []string
}

// NewClassifier returns a classifier with the built-in trigger and domain tables.
func NewClassifier() *Classifier {
	return &Classifier{triggers: defaultTriggers, domain: defaultDomainVocabulary}
}

// Classify is total: it never fails and never panics on any input.
func (c *Classifier) Classify(text string) Classification {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Classification{
			State:             schemas.DefaultState,
			Intensity:         BaseIntensity,
			Reasoning:         "empty stimulus; defaulting to curious at base intensity",
			SuggestedDecision: schemas.DecisionSkip,
		}
	}

	best := schemas.DefaultState
	bestCount := 0
	var bestHits []string
	tied := false
	for _, state := range schemas.AllStates {
		hits := matchPhrases(normalized, c.triggers[state])
		switch {
		case len(hits) > bestCount:
			best, bestCount, bestHits, tied = state, len(hits), hits, false
		case len(hits) == bestCount && bestCount > 0:
			tied = true
		}
	}
	if tied {
		// Ties resolve to the default state, never to table order. This holds
		// when wary is among the tied states too: "scam lol" is curious and
		// loses the wary skip, leaving the gate chain to judge it.
		best = schemas.DefaultState
		bestHits = matchPhrases(normalized, c.triggers[best])
	}

	domainHits := matchPhrases(normalized, c.domain)
	intensity := BaseIntensity + triggerWeight*float64(bestCount) + domainWeight*float64(len(domainHits))
	// Rounded to hundredths so bucket boundaries are not subject to float drift.
	intensity = math.Min(MaxIntensity, math.Round(intensity*100)/100)

	return Classification{
		State:             best,
		Intensity:         intensity,
		Reasoning:         reasoning(best, bestCount, bestHits, domainHits, tied),
		SuggestedDecision: SuggestDecision(best, intensity),
		TriggerMatches:    bestCount,
		DomainMatches:     len(domainHits),
	}
}

func matchPhrases(text string, phrases []string) []string {
	var hits []string
	for _, p := range phrases {
		if strings.Contains(text, p) {
			hits = append(hits, p)
		}
	}
	return hits
}

func reasoning(state schemas.EmotionalState, count int, hits, domainHits []string, tied bool) string {
	var sb strings.Builder
	switch {
	case count == 0:
		sb.WriteString("no trigger phrases matched; defaulting to curious")
	case tied:
		fmt.Fprintf(&sb, "tie at %d trigger match(es); resolved to %s", count, state)
	default:
		fmt.Fprintf(&sb, "%s via %d trigger match(es) %q", state, count, hits)
	}
	if len(domainHits) > 0 {
		fmt.Fprintf(&sb, "; %d domain keyword(s) %q", len(domainHits), domainHits)
	}
	return sb.String()
}
