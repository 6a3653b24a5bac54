package schemas

import "time"

// EmotionalState is one label from the closed set of affective dispositions the
// agent can be in. Exactly one is current at any time.
type EmotionalState string

const (
	StateCurious       EmotionalState = "curious"
	StateDelighted     EmotionalState = "delighted"
	StateConfused      EmotionalState = "confused"
	StateExcited       EmotionalState = "excited"
	StatePlayful       EmotionalState = "playful"
	StateContemplative EmotionalState = "contemplative"
	StateAppreciative  EmotionalState = "appreciative"
	StateWary          EmotionalState = "wary"
)

// DefaultState is the canonical tie-break and the state for empty input.
const DefaultState = StateCurious

// AllStates lists the closed set in a stable order. Classification ties are
// broken toward DefaultState, never by this order.
var AllStates = []EmotionalState{
	StateCurious,
	StateDelighted,
	StateConfused,
	StateExcited,
	StatePlayful,
	StateContemplative,
	StateAppreciative,
	StateWary,
}

// StateProfile is the static guidance attached to each state. It is consumed by
// the text generator only.
type StateProfile struct {
	Description string `json:"description"`
	Energy      string `json:"energy"`
	Voice       string `json:"voice"`
}

var stateProfiles = map[EmotionalState]StateProfile{
	StateCurious:       {"Drawn in by an open question.", "medium", "Ask one sharp follow-up question; no lecturing."},
	StateDelighted:     {"Genuinely pleased by something good.", "high", "Warm and specific about what landed."},
	StateConfused:      {"Something does not add up yet.", "low", "Name the exact gap; ask rather than assert."},
	StateExcited:       {"Energized by news or a launch.", "high", "Short, punchy, one concrete reason it matters."},
	StatePlayful:       {"In on the joke.", "medium", "Light, quick, never at anyone's expense."},
	StateContemplative: {"Turning a bigger idea over.", "low", "Measured; one thought, fully formed."},
	StateAppreciative:  {"Grateful for someone's work.", "medium", "Credit the person and the specific thing."},
	StateWary:          {"Something feels off.", "low", "Say nothing."},
}

// Valid reports whether s belongs to the closed set.
func (s EmotionalState) Valid() bool {
	_, ok := stateProfiles[s]
	return ok
}

// Profile returns the static guidance for s, or the zero profile for unknown states.
func (s EmotionalState) Profile() StateProfile {
	return stateProfiles[s]
}

// StimulusType categorizes where a stimulus came from.
type StimulusType string

const (
	StimulusPost    StimulusType = "post"
	StimulusMention StimulusType = "mention"
	StimulusReply   StimulusType = "reply"
)

// Stimulus is an incoming text-bearing event. It is never modified after receipt.
type Stimulus struct {
	Type       StimulusType `json:"type"`
	ExternalID string       `json:"external_id"`
	Text       string       `json:"text"`
	AuthorID   string       `json:"author_id"`
	Timestamp  time.Time    `json:"timestamp"`
}

// DecisionType is the tag of the Decision variant.
type DecisionType string

const (
	DecisionReply        DecisionType = "reply"
	DecisionQuote        DecisionType = "quote"
	DecisionLike         DecisionType = "like"
	DecisionFollow       DecisionType = "follow"
	DecisionSkip         DecisionType = "skip"
	DecisionResearch     DecisionType = "research"
	DecisionOriginalPost DecisionType = "original_post"
)

// Valid reports whether d is a known decision tag.
func (d DecisionType) Valid() bool {
	switch d {
	case DecisionReply, DecisionQuote, DecisionLike, DecisionFollow,
		DecisionSkip, DecisionResearch, DecisionOriginalPost:
		return true
	}
	return false
}

// Executes reports whether the decision results in a platform action.
func (d DecisionType) Executes() bool {
	switch d {
	case DecisionSkip, DecisionResearch:
		return false
	}
	return d.Valid()
}

// CarriesContent reports whether the decision needs generated text.
func (d DecisionType) CarriesContent() bool {
	switch d {
	case DecisionReply, DecisionQuote, DecisionOriginalPost:
		return true
	}
	return false
}

// Decision is what the agent tells the action executor to do.
type Decision struct {
	Type     DecisionType `json:"type"`
	TargetID string       `json:"target_id,omitempty"`
	Content  string       `json:"content,omitempty"`
}

// EmotionalEvent is the immutable log of one processed stimulus. OutcomeID is
// the only field written after creation.
type EmotionalEvent struct {
	ID            string         `json:"id"`
	StimulusID    string         `json:"stimulus_id"`
	AuthorID      string         `json:"author_id"`
	State         EmotionalState `json:"state"`
	Intensity     float64        `json:"intensity"`
	PreviousState EmotionalState `json:"previous_state,omitempty"`
	Decision      DecisionType   `json:"decision"`
	Reasoning     string         `json:"reasoning"`
	OutcomeID     string         `json:"outcome_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// AffectSnapshot is the persisted form of the agent's current/previous state pair.
type AffectSnapshot struct {
	Current   EmotionalState `json:"current"`
	Previous  EmotionalState `json:"previous,omitempty"`
	Intensity float64        `json:"intensity"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Relationship is the rolling summary kept per counterparty.
type Relationship struct {
	CounterpartyID   string    `json:"counterparty_id"`
	InteractionCount int       `json:"interaction_count"`
	FirstSeen        time.Time `json:"first_seen"`
	LastInteraction  time.Time `json:"last_interaction"`
	// Vibe is an affinity score in [-1, 1].
	Vibe float64 `json:"vibe"`
}
