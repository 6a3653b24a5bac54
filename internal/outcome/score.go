// internal/outcome/score.go
package outcome

import (
	"math"

	"github.com/xkilldash9x/resonance/api/schemas"
)

const (
	// NeutralScore marks an outcome that completed but could not be verified.
	NeutralScore = 0.3
	// LikeScore is the fixed score for likes, which have no downstream metric.
	LikeScore = 0.5

	conversationBonus = 0.1
	impressionCap     = 5.0
)

// Weights are the per-metric contributions for one action type.
type Weights struct {
	Like       float64
	Reply      float64
	Share      float64
	Impression float64
}

// weightTable only lists action types whose artifacts have engagement metrics.
// Conversational actions weight replies far above likes.
var weightTable = map[schemas.DecisionType]Weights{
	schemas.DecisionReply:        {Like: 0.02, Reply: 0.15, Share: 0.05, Impression: 0.05},
	schemas.DecisionQuote:        {Like: 0.03, Reply: 0.10, Share: 0.06, Impression: 0.04},
	schemas.DecisionOriginalPost: {Like: 0.03, Reply: 0.05, Share: 0.08, Impression: 0.04},
}

// WeightsFor returns the weight table for an action type.
func WeightsFor(action schemas.DecisionType) (Weights, bool) {
	w, ok := weightTable[action]
	return w, ok
}

// HasMetrics reports whether an action type is scored from fetched engagement.
func HasMetrics(action schemas.DecisionType) bool {
	_, ok := weightTable[action]
	return ok
}

// Score computes the outcome score in [0, 1]. Likes score LikeScore regardless
// of metrics; other types without a weight table, and any nil metrics, score
// NeutralScore.
func Score(action schemas.DecisionType, m *schemas.Metrics) float64 {
	if action == schemas.DecisionLike {
		return LikeScore
	}
	w, ok := weightTable[action]
	if !ok || m == nil {
		return NeutralScore
	}

	score := float64(nonNegative(m.Likes))*w.Like +
		float64(nonNegative(m.Replies))*w.Reply +
		float64(nonNegative(m.Shares))*w.Share +
		math.Min(float64(nonNegative(m.Impressions))/1000, impressionCap)*w.Impression
	if m.Replies > 0 {
		score += conversationBonus
	}
	return math.Max(0, math.Min(1, score))
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
