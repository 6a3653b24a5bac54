package schemas

import "time"

// OutcomeStatus is the lifecycle state of a PendingOutcome.
type OutcomeStatus string

const (
	OutcomePending    OutcomeStatus = "pending"
	OutcomeEvaluating OutcomeStatus = "evaluating"
	OutcomeCompleted  OutcomeStatus = "completed"
	OutcomeFailed     OutcomeStatus = "failed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s OutcomeStatus) Terminal() bool {
	return s == OutcomeCompleted || s == OutcomeFailed
}

// Metrics is an engagement snapshot for one posted artifact.
type Metrics struct {
	Likes       int `json:"likes"`
	Replies     int `json:"replies"`
	Shares      int `json:"shares"`
	Impressions int `json:"impressions"`
}

// PendingOutcome tracks an executed action until its effect can be measured.
// The outcome scheduler is the only writer of Status.
type PendingOutcome struct {
	ID         string       `json:"id"`
	ActionType DecisionType `json:"action_type"`
	// State is the emotional state the action was taken in; it keys the
	// pattern aggregate the score feeds.
	State          EmotionalState `json:"state"`
	EventID        string         `json:"event_id"`
	ArtifactID     string         `json:"artifact_id"`
	TargetID       string         `json:"target_id,omitempty"`
	CheckAfter     time.Time      `json:"check_after"`
	InitialMetrics *Metrics       `json:"initial_metrics,omitempty"`
	LatestMetrics  *Metrics       `json:"latest_metrics,omitempty"`
	Score          *float64       `json:"outcome_score,omitempty"`
	Status         OutcomeStatus  `json:"status"`
	Attempts       int            `json:"attempts"`
	ClaimedAt      *time.Time     `json:"claimed_at,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// PatternKey identifies an aggregate.
type PatternKey struct {
	State    EmotionalState `json:"state"`
	Decision DecisionType   `json:"decision"`
}

// Pattern holds rolling outcome statistics for one (state, decision) pair.
// Records are amended, never deleted.
type Pattern struct {
	State          EmotionalState `json:"state"`
	Decision       DecisionType   `json:"decision"`
	Count          int            `json:"count"`
	AvgScore       float64        `json:"avg_score"`
	SuccessCount   int            `json:"success_count"`
	SuccessRate    float64        `json:"success_rate"`
	ShouldContinue bool           `json:"should_continue"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Key returns the aggregate key of p.
func (p Pattern) Key() PatternKey {
	return PatternKey{State: p.State, Decision: p.Decision}
}

// PatternSample is one completed outcome to fold into its aggregate.
type PatternSample struct {
	State    EmotionalState
	Decision DecisionType
	Score    float64
	// Success reports whether Score cleared the success threshold.
	Success bool
	// ContinueThreshold is the success rate above which the pattern should continue.
	ContinueThreshold float64
	At                time.Time
}

// Key returns the aggregate key the sample belongs to.
func (s PatternSample) Key() PatternKey {
	return PatternKey{State: s.State, Decision: s.Decision}
}

// Fold returns p amended by one sample. The SQL stores apply the same
// arithmetic in their upserts.
func (p Pattern) Fold(s PatternSample) Pattern {
	p.State, p.Decision = s.State, s.Decision
	p.Count++
	p.AvgScore += (s.Score - p.AvgScore) / float64(p.Count)
	if s.Success {
		p.SuccessCount++
	}
	p.SuccessRate = float64(p.SuccessCount) / float64(p.Count)
	p.ShouldContinue = p.SuccessRate > s.ContinueThreshold
	p.UpdatedAt = s.At
	return p
}
