package schemas

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidTransition is returned when a conditional status update matches no row,
	// e.g. completing an outcome that is not currently evaluating.
	ErrInvalidTransition = errors.New("invalid outcome status transition")
)

// -- Store Interfaces --

// EventStore persists the emotional event log.
type EventStore interface {
	SaveEvent(ctx context.Context, event EmotionalEvent) error
	// AttachOutcome is the only mutation allowed on a stored event.
	AttachOutcome(ctx context.Context, eventID, outcomeID string) error
}

// OutcomeStore persists deferred outcome records. Status changes are conditional
// on the current status so that concurrent drains cannot double-score a record.
type OutcomeStore interface {
	CreateOutcome(ctx context.Context, outcome PendingOutcome) error
	GetOutcome(ctx context.Context, id string) (PendingOutcome, error)
	// ClaimDueOutcomes atomically moves up to limit records to evaluating. A record
	// is due when it is pending with check_after <= now, or when it has been
	// evaluating since before now-lease (lease <= 0 disables reclaiming).
	ClaimDueOutcomes(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]PendingOutcome, error)
	CompleteOutcome(ctx context.Context, id string, latest *Metrics, score float64, now time.Time) error
	FailOutcome(ctx context.Context, id string, reason string, now time.Time) error
	// RequeueOutcome returns an evaluating record to pending for a later retry.
	RequeueOutcome(ctx context.Context, id string, checkAfter time.Time, attempts int, reason string, now time.Time) error
}

// PatternStore persists pattern aggregates.
type PatternStore interface {
	LoadPatterns(ctx context.Context) ([]Pattern, error)
	// RecordPattern folds one sample into the stored aggregate atomically and
	// returns the amended row.
	RecordPattern(ctx context.Context, sample PatternSample) (Pattern, error)
}

// RelationshipStore persists per-counterparty summaries.
type RelationshipStore interface {
	// GetRelationship returns ErrNotFound for a counterparty never seen before.
	GetRelationship(ctx context.Context, counterpartyID string) (Relationship, error)
	UpsertRelationship(ctx context.Context, rel Relationship) error
}

// AffectStore persists the agent's state pair across restarts.
type AffectStore interface {
	LoadAffect(ctx context.Context) (AffectSnapshot, error)
	SaveAffect(ctx context.Context, snap AffectSnapshot) error
}

// Store is the full relational store consumed by the agent.
type Store interface {
	EventStore
	OutcomeStore
	PatternStore
	RelationshipStore
	AffectStore
	Close() error
}

// -- Platform Interface --

// ActionReceipt is returned by the platform after a successful post.
type ActionReceipt struct {
	ArtifactID string    `json:"artifact_id"`
	PostedAt   time.Time `json:"posted_at"`
}

// Platform is the social network client.
type Platform interface {
	// FetchStimuli returns new timeline items and mentions, oldest first.
	FetchStimuli(ctx context.Context, limit int) ([]Stimulus, error)
	// PostAction executes a decision. An error means nothing was posted.
	PostAction(ctx context.Context, decision Decision) (ActionReceipt, error)
	// FetchMetrics returns nil metrics (and a nil error) when engagement is
	// temporarily unavailable, which is distinct from zero engagement.
	FetchMetrics(ctx context.Context, artifactID string) (*Metrics, error)
}

// -- LLM Interfaces --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions controls creativity and output format.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
}

// GenerationRequest encapsulates a complete request to the LLM, including the
// system and user prompts, the desired model tier, and generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model. The returned text is an untyped payload; callers decode it strictly.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	Close() error
}
