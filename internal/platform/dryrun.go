package platform

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/resonance/api/schemas"
)

// DryRunPrefix marks synthetic artifact ids.
const DryRunPrefix = "dryrun-"

// DryRun logs decisions instead of posting them. Stimuli are still read from
// the wrapped platform when one is given.
type DryRun struct {
	source schemas.Platform
	logger *zap.Logger
	now    func() time.Time
}

var _ schemas.Platform = (*DryRun)(nil)

// NewDryRun creates a dry-run platform. source may be nil, in which case no
// stimuli are ever returned.
func NewDryRun(source schemas.Platform, logger *zap.Logger) *DryRun {
	return &DryRun{source: source, logger: logger.Named("platform.dryrun"), now: time.Now}
}

func (d *DryRun) FetchStimuli(ctx context.Context, limit int) ([]schemas.Stimulus, error) {
	if d.source == nil {
		return nil, nil
	}
	return d.source.FetchStimuli(ctx, limit)
}

func (d *DryRun) PostAction(_ context.Context, decision schemas.Decision) (schemas.ActionReceipt, error) {
	receipt := schemas.ActionReceipt{ArtifactID: DryRunPrefix + uuid.NewString(), PostedAt: d.now()}
	d.logger.Info("Dry run: action not posted",
		zap.String("decision", string(decision.Type)),
		zap.String("target_id", decision.TargetID),
		zap.String("content", decision.Content),
		zap.String("artifact_id", receipt.ArtifactID),
	)
	return receipt, nil
}

// FetchMetrics reports synthetic artifacts as unavailable.
func (d *DryRun) FetchMetrics(ctx context.Context, artifactID string) (*schemas.Metrics, error) {
	if strings.HasPrefix(artifactID, DryRunPrefix) || d.source == nil {
		return nil, nil
	}
	return d.source.FetchMetrics(ctx, artifactID)
}
