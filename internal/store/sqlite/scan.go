package sqlite

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/xkilldash9x/resonance/api/schemas"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutcome(row rowScanner) (schemas.PendingOutcome, error) {
	var o schemas.PendingOutcome
	var action, state, status, checkAfter, createdAt, updatedAt string
	var initial, latest, claimedAt sql.NullString
	var score sql.NullFloat64

	err := row.Scan(&o.ID, &action, &state, &o.EventID, &o.ArtifactID, &o.TargetID, &checkAfter,
		&initial, &latest, &score, &status, &o.Attempts, &claimedAt, &o.LastError, &createdAt, &updatedAt)
	if err != nil {
		return schemas.PendingOutcome{}, err
	}

	o.ActionType = schemas.DecisionType(action)
	o.State = schemas.EmotionalState(state)
	o.Status = schemas.OutcomeStatus(status)
	if score.Valid {
		v := score.Float64
		o.Score = &v
	}
	if o.InitialMetrics, err = decodeMetrics(initial); err != nil {
		return schemas.PendingOutcome{}, err
	}
	if o.LatestMetrics, err = decodeMetrics(latest); err != nil {
		return schemas.PendingOutcome{}, err
	}
	if o.CheckAfter, err = parseTime(checkAfter); err != nil {
		return schemas.PendingOutcome{}, fmt.Errorf("failed to parse check_after: %w", err)
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return schemas.PendingOutcome{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return schemas.PendingOutcome{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if claimedAt.Valid {
		t, err := parseTime(claimedAt.String)
		if err != nil {
			return schemas.PendingOutcome{}, fmt.Errorf("failed to parse claimed_at: %w", err)
		}
		o.ClaimedAt = &t
	}
	return o, nil
}

func sortByCheckAfter(outcomes []schemas.PendingOutcome) {
	sort.SliceStable(outcomes, func(i, j int) bool { return outcomes[i].CheckAfter.Before(outcomes[j].CheckAfter) })
}

func encodeMetrics(m *schemas.Metrics) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metrics: %w", err)
	}
	return string(b), nil
}

func decodeMetrics(s sql.NullString) (*schemas.Metrics, error) {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil, nil
	}
	var m schemas.Metrics
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	return &m, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
