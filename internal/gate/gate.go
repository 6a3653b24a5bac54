// internal/gate/gate.go
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/resonance/api/schemas"
	"github.com/xkilldash9x/resonance/internal/affect"
)

// ErrComposeFailed marks a content generation failure between the intent and
// content stages.
var ErrComposeFailed = errors.New("content composition failed")

// Verdict is one gate's judgment.
type Verdict struct {
	Gate        string `json:"gate"`
	Approved    bool   `json:"approved"`
	Reason      string `json:"reason"`
	Remediation string `json:"remediation,omitempty"`
}

// Evaluation is the context every gate sees. Gates may annotate it (the triage
// gate records the spark score) but must not change the decision type.
type Evaluation struct {
	Stimulus       schemas.Stimulus
	Classification affect.Classification
	Context        affect.AgentContext
	Decision       schemas.Decision
	// Relationship is nil for a counterparty never seen before.
	Relationship *schemas.Relationship
	Spark        float64
}

// Gate is one stage of the approval chain.
type Gate interface {
	Name() string
	Evaluate(ctx context.Context, ev *Evaluation) (Verdict, error)
}

// ComposeFunc generates the content for a decision that carries text.
type ComposeFunc func(ctx context.Context, ev *Evaluation) (string, error)

// Result is the overall outcome of a chain evaluation.
type Result struct {
	Approved bool             `json:"approved"`
	Decision schemas.Decision `json:"decision"`
	Verdicts []Verdict        `json:"verdicts"`
	// Reason and Remediation come from the vetoing verdict when rejected.
	Reason      string  `json:"reason"`
	Remediation string  `json:"remediation,omitempty"`
	Spark       float64 `json:"spark"`
}

// Chain runs intent gates, then composes content, then runs content gates.
// Any veto stops the chain. Any error, timeout, panic or composition failure
// is a veto: the chain never approves without an explicit pass from every gate.
type Chain struct {
	intent      []Gate
	content     []Gate
	gateTimeout time.Duration
	logger      *zap.Logger
}

// NewChain builds a chain. gateTimeout <= 0 disables the per-gate deadline.
func NewChain(intent, content []Gate, gateTimeout time.Duration, logger *zap.Logger) *Chain {
	return &Chain{
		intent:      intent,
		content:     content,
		gateTimeout: gateTimeout,
		logger:      logger.Named("gates"),
	}
}

// Evaluate runs the full chain for ev. ev.Decision.Content is filled by
// compose for decisions that carry content.
func (c *Chain) Evaluate(ctx context.Context, ev *Evaluation, compose ComposeFunc) Result {
	res := Result{Decision: ev.Decision}

	for _, g := range c.intent {
		v := c.runGate(ctx, g, ev)
		res.Verdicts = append(res.Verdicts, v)
		if !v.Approved {
			return c.reject(res, ev, v)
		}
	}

	if ev.Decision.Type.CarriesContent() {
		content, err := c.compose(ctx, ev, compose)
		if err != nil {
			v := Verdict{Gate: "compose", Reason: err.Error(), Remediation: "retry on a later stimulus"}
			c.logger.Warn("Content composition failed; rejecting", zap.Error(err), zap.String("stimulus_id", ev.Stimulus.ExternalID))
			res.Verdicts = append(res.Verdicts, v)
			return c.reject(res, ev, v)
		}
		ev.Decision.Content = content
	}

	for _, g := range c.content {
		v := c.runGate(ctx, g, ev)
		res.Verdicts = append(res.Verdicts, v)
		if !v.Approved {
			return c.reject(res, ev, v)
		}
	}

	res.Approved = true
	res.Decision = ev.Decision
	res.Spark = ev.Spark
	res.Reason = "approved by every gate"
	return res
}

func (c *Chain) reject(res Result, ev *Evaluation, v Verdict) Result {
	res.Approved = false
	res.Decision = ev.Decision
	res.Spark = ev.Spark
	res.Reason = v.Reason
	res.Remediation = v.Remediation
	c.logger.Info("Action rejected",
		zap.String("gate", v.Gate),
		zap.String("reason", v.Reason),
		zap.String("decision", string(ev.Decision.Type)),
		zap.String("stimulus_id", ev.Stimulus.ExternalID),
	)
	return res
}

// runGate evaluates one gate with a deadline. It converts errors and panics
// into rejecting verdicts.
func (c *Chain) runGate(ctx context.Context, g Gate, ev *Evaluation) (v Verdict) {
	name := g.Name()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Panic recovered during gate evaluation",
				zap.String("gate", name),
				zap.Any("panic_value", r),
				zap.Stack("stack"),
			)
			v = Verdict{Gate: name, Reason: fmt.Sprintf("gate panicked: %v", r)}
		}
	}()

	if c.gateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.gateTimeout)
		defer cancel()
	}

	v, err := g.Evaluate(ctx, ev)
	if err != nil {
		c.logger.Warn("Gate evaluation failed; failing closed", zap.String("gate", name), zap.Error(err))
		return Verdict{Gate: name, Reason: fmt.Sprintf("evaluation failed: %v", err)}
	}
	v.Gate = name
	return v
}

func (c *Chain) compose(ctx context.Context, ev *Evaluation, compose ComposeFunc) (content string, err error) {
	if compose == nil {
		return "", fmt.Errorf("%w: no composer configured", ErrComposeFailed)
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Panic recovered during composition", zap.Any("panic_value", r), zap.Stack("stack"))
			err = fmt.Errorf("%w: panic: %v", ErrComposeFailed, r)
		}
	}()
	content, err = compose(ctx, ev)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrComposeFailed, err)
	}
	return content, nil
}
