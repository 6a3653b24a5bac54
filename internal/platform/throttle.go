package platform

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/resonance/api/schemas"
)

// ErrRateLimited is returned by Throttled.PostAction when the action budget
// is exhausted. Nothing was posted.
var ErrRateLimited = errors.New("platform action rate limit reached")

// Throttled caps the rate of outgoing actions. Reads pass through unthrottled.
type Throttled struct {
	inner   schemas.Platform
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ schemas.Platform = (*Throttled)(nil)

// NewThrottled allows actionsPerHour actions on average with the given burst.
// actionsPerHour <= 0 disables the limit.
func NewThrottled(inner schemas.Platform, actionsPerHour float64, burst int, logger *zap.Logger) *Throttled {
	limit := rate.Inf
	if actionsPerHour > 0 {
		limit = rate.Every(time.Duration(float64(time.Hour) / actionsPerHour))
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.Named("platform.throttle"),
	}
}

func (t *Throttled) FetchStimuli(ctx context.Context, limit int) ([]schemas.Stimulus, error) {
	return t.inner.FetchStimuli(ctx, limit)
}

// PostAction refuses immediately rather than waiting for a token.
func (t *Throttled) PostAction(ctx context.Context, decision schemas.Decision) (schemas.ActionReceipt, error) {
	if !t.limiter.Allow() {
		t.logger.Info("Action budget exhausted; skipping", zap.String("decision", string(decision.Type)))
		return schemas.ActionReceipt{}, ErrRateLimited
	}
	return t.inner.PostAction(ctx, decision)
}

func (t *Throttled) FetchMetrics(ctx context.Context, artifactID string) (*schemas.Metrics, error) {
	return t.inner.FetchMetrics(ctx, artifactID)
}
