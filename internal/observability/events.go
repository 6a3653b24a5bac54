package observability

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/resonance/api/schemas"
)

// EventFields flattens an emotional event into structured log fields. Every
// processed stimulus is logged with these fields; that log line is the
// telemetry stream for the affect loop.
func EventFields(ev schemas.EmotionalEvent) []zap.Field {
	fields := []zap.Field{
		zap.String("event_id", ev.ID),
		zap.String("stimulus_id", ev.StimulusID),
		zap.String("author_id", ev.AuthorID),
		zap.String("state", string(ev.State)),
		zap.Float64("intensity", ev.Intensity),
		zap.String("decision", string(ev.Decision)),
		zap.String("reasoning", ev.Reasoning),
	}
	if ev.PreviousState != "" {
		fields = append(fields, zap.String("previous_state", string(ev.PreviousState)))
	}
	if ev.OutcomeID != "" {
		fields = append(fields, zap.String("outcome_id", ev.OutcomeID))
	}
	return fields
}

// OutcomeFields flattens a pending outcome for logging.
func OutcomeFields(o schemas.PendingOutcome) []zap.Field {
	fields := []zap.Field{
		zap.String("outcome_id", o.ID),
		zap.String("action_type", string(o.ActionType)),
		zap.String("artifact_id", o.ArtifactID),
		zap.String("status", string(o.Status)),
		zap.Int("attempts", o.Attempts),
	}
	if o.Score != nil {
		fields = append(fields, zap.Float64("outcome_score", *o.Score))
	}
	return fields
}
