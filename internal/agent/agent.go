// internal/agent/agent.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/resonance/api/schemas"
	"github.com/xkilldash9x/resonance/internal/affect"
	"github.com/xkilldash9x/resonance/internal/config"
	"github.com/xkilldash9x/resonance/internal/gate"
	"github.com/xkilldash9x/resonance/internal/observability"
	"github.com/xkilldash9x/resonance/internal/outcome"
	"github.com/xkilldash9x/resonance/internal/pattern"
	"github.com/xkilldash9x/resonance/internal/platform"
)

// uuidNewString is a package-level variable that allows mocking uuid generation in tests.
var uuidNewString = uuid.NewString

// Dependencies are the collaborators an Agent is assembled from.
type Dependencies struct {
	Store      schemas.Store
	Platform   schemas.Platform
	LLM        schemas.LLMClient
	Aggregator *pattern.Aggregator
	Scheduler  *outcome.Scheduler
	// Seen is optional; a cache sized from config is created when nil.
	Seen *SeenCache
}

// StimulusResult describes what happened to one stimulus.
type StimulusResult struct {
	StimulusID     string                 `json:"stimulus_id"`
	Classification affect.Classification  `json:"classification"`
	Decision       schemas.Decision       `json:"decision"`
	Verdicts       []gate.Verdict         `json:"verdicts,omitempty"`
	Spark          float64                `json:"spark"`
	Executed       bool                   `json:"executed"`
	Reason         string                 `json:"reason,omitempty"`
	EventID        string                 `json:"event_id,omitempty"`
	OutcomeID      string                 `json:"outcome_id,omitempty"`
	ArtifactID     string                 `json:"artifact_id,omitempty"`
	State          schemas.EmotionalState `json:"state"`
}

// CycleResult summarizes one stimulus cycle.
type CycleResult struct {
	Fetched    int `json:"fetched"`
	Duplicates int `json:"duplicates"`
	Processed  int `json:"processed"`
	Executed   int `json:"executed"`
	Rejected   int `json:"rejected"`
	Failed     int `json:"failed"`
}

// Agent runs the stimulus cycle and the outcome poll.
type Agent struct {
	cfg        config.Interface
	logger     *zap.Logger
	classifier *affect.Classifier
	chain      *gate.Chain
	composer   *Composer
	store      schemas.Store
	platform   schemas.Platform
	aggregator *pattern.Aggregator
	scheduler  *outcome.Scheduler
	seen       *SeenCache
	now        func() time.Time
}

// New assembles an agent and its gate chain.
func New(cfg config.Interface, deps Dependencies, logger *zap.Logger) (*Agent, error) {
	if deps.Store == nil || deps.Platform == nil || deps.LLM == nil {
		return nil, errors.New("agent requires a store, a platform and an LLM client")
	}
	if deps.Aggregator == nil || deps.Scheduler == nil {
		return nil, errors.New("agent requires a pattern aggregator and an outcome scheduler")
	}

	agentCfg := cfg.Agent()
	gatesCfg := cfg.Gates()
	seen := deps.Seen
	if seen == nil {
		seen = NewSeenCache(agentCfg.SeenCacheSize, agentCfg.SeenCacheTTL)
	}

	chain := gate.NewChain(
		[]gate.Gate{
			gate.NewTriageGate(deps.Aggregator, gatesCfg.SparkThreshold),
			gate.NewPrincipleGate(deps.LLM),
		},
		[]gate.Gate{gate.NewContentGate(deps.LLM, gatesCfg)},
		agentCfg.CallTimeout,
		logger,
	)

	return &Agent{
		cfg:        cfg,
		logger:     logger.Named("agent"),
		classifier: affect.NewClassifier(),
		chain:      chain,
		composer:   NewComposer(deps.LLM, gatesCfg.MaxContentLength),
		store:      deps.Store,
		platform:   deps.Platform,
		aggregator: deps.Aggregator,
		scheduler:  deps.Scheduler,
		seen:       seen,
		now:        time.Now,
	}, nil
}

// Restore loads the persisted agent context and pattern aggregates. Both are
// best-effort: failures fall back to the resting context and empty patterns.
func (a *Agent) Restore(ctx context.Context) affect.AgentContext {
	if err := a.aggregator.Load(ctx); err != nil {
		a.logger.Warn("Failed to load patterns, starting empty", zap.Error(err))
	}

	snap, err := a.store.LoadAffect(ctx)
	if err != nil {
		if !errors.Is(err, schemas.ErrNotFound) {
			a.logger.Warn("Failed to load agent context, starting at rest", zap.Error(err))
		}
		return affect.NewAgentContext()
	}
	restored := affect.FromSnapshot(snap)
	a.logger.Info("Agent context restored",
		zap.String("state", string(restored.Current)),
		zap.Float64("intensity", restored.Intensity),
	)
	return restored
}

// RunCycle fetches a batch of stimuli and processes them in order, threading
// the agent context through each one. It stops between stimuli when ctx is
// cancelled and persists the final context.
func (a *Agent) RunCycle(ctx context.Context, ac affect.AgentContext) (affect.AgentContext, CycleResult) {
	var result CycleResult

	fetchCtx, cancel := a.callContext(ctx)
	stimuli, err := a.platform.FetchStimuli(fetchCtx, a.cfg.Agent().StimuliPerCycle)
	cancel()
	if err != nil {
		a.logger.Warn("Failed to fetch stimuli, skipping cycle", zap.Error(err))
		return ac, result
	}
	result.Fetched = len(stimuli)

	for _, st := range stimuli {
		if ctx.Err() != nil {
			a.logger.Info("Cycle interrupted by shutdown", zap.Int("remaining", len(stimuli)-result.Processed-result.Duplicates))
			break
		}
		if st.ExternalID != "" && a.seen.Seen(st.ExternalID) {
			result.Duplicates++
			continue
		}

		var res StimulusResult
		ac, res = a.ProcessStimulus(ctx, ac, st)
		result.Processed++
		switch {
		case res.Executed:
			result.Executed++
		case res.EventID == "":
			result.Failed++
		case len(res.Verdicts) > 0:
			result.Rejected++
		}
	}

	a.saveContext(ctx, ac)
	a.logger.Info("Cycle complete",
		zap.Int("fetched", result.Fetched),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("processed", result.Processed),
		zap.Int("executed", result.Executed),
		zap.Int("rejected", result.Rejected),
		zap.Int("failed", result.Failed),
	)
	return ac, result
}

// ProcessStimulus classifies st, runs the gate chain, executes an approved
// decision and records the event. The returned context reflects the new
// classification whether or not anything was posted.
func (a *Agent) ProcessStimulus(ctx context.Context, ac affect.AgentContext, st schemas.Stimulus) (affect.AgentContext, StimulusResult) {
	now := a.now()
	cl := a.classifier.Classify(st.Text)
	next := ac.Next(cl, now)
	res := StimulusResult{
		StimulusID:     st.ExternalID,
		Classification: cl,
		State:          cl.State,
		Decision:       schemas.Decision{Type: cl.SuggestedDecision, TargetID: st.ExternalID},
	}

	if next.Transitioned() {
		a.logger.Debug("State transition",
			zap.String("from", string(next.Previous)),
			zap.String("to", string(next.Current)),
		)
	}

	rel, relKnown := a.relationship(ctx, st.AuthorID)

	if res.Decision.Type.Executes() {
		ev := &gate.Evaluation{
			Stimulus:       st,
			Classification: cl,
			Context:        next,
			Decision:       res.Decision,
			Relationship:   rel,
		}
		verdict := a.chain.Evaluate(ctx, ev, a.composer.Compose)
		res.Verdicts = verdict.Verdicts
		res.Spark = verdict.Spark
		if verdict.Approved {
			res.Decision = verdict.Decision
		} else {
			res.Reason = verdict.Reason
			res.Decision = schemas.Decision{Type: schemas.DecisionSkip, TargetID: st.ExternalID}
		}
	}

	if res.Decision.Type.Executes() {
		receipt, err := a.execute(ctx, res.Decision)
		if err != nil {
			res.Reason = err.Error()
			if errors.Is(err, platform.ErrRateLimited) {
				a.logger.Info("Action skipped by rate limiter", zap.String("decision", string(res.Decision.Type)), zap.String("stimulus_id", st.ExternalID))
			} else {
				a.logger.Warn("Action execution failed, skipping", zap.String("decision", string(res.Decision.Type)), zap.String("stimulus_id", st.ExternalID), zap.Error(err))
			}
			return next, res
		}
		res.Executed = true
		res.ArtifactID = receipt.ArtifactID
	}

	// A posted action must be recorded even if shutdown cancels ctx mid-post.
	persistCtx := context.WithoutCancel(ctx)

	event := schemas.EmotionalEvent{
		ID:            uuidNewString(),
		StimulusID:    st.ExternalID,
		AuthorID:      st.AuthorID,
		State:         cl.State,
		Intensity:     cl.Intensity,
		PreviousState: next.Previous,
		Decision:      res.Decision.Type,
		Reasoning:     eventReasoning(cl, res.Reason),
		CreatedAt:     now,
	}
	res.EventID = event.ID
	saveCtx, cancel := a.callContext(persistCtx)
	err := a.store.SaveEvent(saveCtx, event)
	cancel()
	if err != nil {
		a.logger.Error("Failed to persist emotional event", zap.String("event_id", event.ID), zap.Error(err))
	}

	if res.Executed {
		res.OutcomeID = a.trackOutcome(persistCtx, event, res)
		event.OutcomeID = res.OutcomeID
	}
	a.logger.Info("Stimulus processed", append(observability.EventFields(event), zap.Float64("spark", res.Spark))...)

	// An unreadable relationship is left alone; writing a fresh record would
	// reset its history.
	if st.AuthorID != "" && relKnown {
		updated := updateRelationship(rel, st.AuthorID, cl.State, now)
		relCtx, cancel := a.callContext(persistCtx)
		err := a.store.UpsertRelationship(relCtx, updated)
		cancel()
		if err != nil {
			a.logger.Warn("Failed to update relationship", zap.String("counterparty_id", st.AuthorID), zap.Error(err))
		}
	}
	if st.ExternalID != "" {
		a.seen.Mark(st.ExternalID)
	}
	return next, res
}

// DrainOnce runs one outcome poll.
func (a *Agent) DrainOnce(ctx context.Context) (outcome.DrainResult, error) {
	return a.scheduler.DrainDue(ctx, a.cfg.Scheduler().DrainLimit, a.platform)
}

// Run restores state and runs the stimulus cycle and the outcome poll until
// ctx is cancelled. The first cycle starts immediately.
func (a *Agent) Run(ctx context.Context) error {
	ac := a.Restore(ctx)
	agentCfg := a.cfg.Agent()
	schedCfg := a.cfg.Scheduler()
	if agentCfg.CycleInterval <= 0 || schedCfg.PollInterval <= 0 {
		return fmt.Errorf("cycle_interval and poll_interval must be positive (got %s, %s)", agentCfg.CycleInterval, schedCfg.PollInterval)
	}

	a.logger.Info("Agent started",
		zap.Duration("cycle_interval", agentCfg.CycleInterval),
		zap.Duration("poll_interval", schedCfg.PollInterval),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(agentCfg.CycleInterval)
		defer ticker.Stop()
		for {
			ac, _ = a.RunCycle(gctx, ac)
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
	g.Go(func() error {
		ticker := time.NewTicker(schedCfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
			res, err := a.DrainOnce(gctx)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				a.logger.Warn("Outcome drain failed", zap.Error(err))
				continue
			}
			if res.Checked > 0 {
				a.logger.Info("Outcome drain complete",
					zap.Int("checked", res.Checked),
					zap.Int("scored", res.Scored),
					zap.Int("requeued", res.Requeued),
					zap.Int("failed", res.Failed),
				)
			}
		}
	})

	err := g.Wait()
	a.logger.Info("Agent stopped")
	return err
}

func (a *Agent) execute(ctx context.Context, decision schemas.Decision) (schemas.ActionReceipt, error) {
	callCtx, cancel := a.callContext(ctx)
	defer cancel()
	receipt, err := a.platform.PostAction(callCtx, decision)
	if err != nil {
		return schemas.ActionReceipt{}, fmt.Errorf("failed to post %s: %w", decision.Type, err)
	}
	return receipt, nil
}

// trackOutcome snapshots initial metrics, creates the pending outcome and links
// it to the event. It returns the outcome id, or "" if it could not be stored.
func (a *Agent) trackOutcome(ctx context.Context, event schemas.EmotionalEvent, res StimulusResult) string {
	callCtx, cancel := a.callContext(ctx)
	initial, err := a.platform.FetchMetrics(callCtx, res.ArtifactID)
	cancel()
	if err != nil {
		a.logger.Debug("Initial metrics unavailable", zap.String("artifact_id", res.ArtifactID), zap.Error(err))
		initial = nil
	}

	createCtx, cancel := a.callContext(ctx)
	outcomeID, err := a.scheduler.CreatePending(createCtx, outcome.Action{
		Type:           res.Decision.Type,
		State:          event.State,
		EventID:        event.ID,
		ArtifactID:     res.ArtifactID,
		TargetID:       res.Decision.TargetID,
		InitialMetrics: initial,
	})
	cancel()
	if err != nil {
		a.logger.Error("Failed to schedule outcome check", zap.String("event_id", event.ID), zap.Error(err))
		return ""
	}
	attachCtx, cancel := a.callContext(ctx)
	defer cancel()
	if err := a.store.AttachOutcome(attachCtx, event.ID, outcomeID); err != nil {
		a.logger.Warn("Failed to link outcome to event", zap.String("event_id", event.ID), zap.String("outcome_id", outcomeID), zap.Error(err))
	}
	return outcomeID
}

// relationship reads the author's summary. Unknown authors and read failures
// both yield nil, which weighs as neutral. ok is false only for a failed read,
// in which case the stored record must not be overwritten.
func (a *Agent) relationship(ctx context.Context, authorID string) (rel *schemas.Relationship, ok bool) {
	if authorID == "" {
		return nil, true
	}
	stored, err := a.store.GetRelationship(ctx, authorID)
	if err != nil {
		if errors.Is(err, schemas.ErrNotFound) {
			return nil, true
		}
		a.logger.Warn("Failed to load relationship", zap.String("counterparty_id", authorID), zap.Error(err))
		return nil, false
	}
	return &stored, true
}

func (a *Agent) saveContext(ctx context.Context, ac affect.AgentContext) {
	// Persist even when ctx is already cancelled by shutdown.
	saveCtx, cancel := a.callContext(context.WithoutCancel(ctx))
	defer cancel()
	if err := a.store.SaveAffect(saveCtx, ac.Snapshot()); err != nil {
		a.logger.Warn("Failed to persist agent context", zap.Error(err))
	}
}

func (a *Agent) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout := a.cfg.Agent().CallTimeout; timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func eventReasoning(cl affect.Classification, rejection string) string {
	if rejection == "" {
		return cl.Reasoning
	}
	return fmt.Sprintf("%s; not acted on: %s", cl.Reasoning, rejection)
}
