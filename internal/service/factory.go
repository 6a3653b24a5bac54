// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/resonance/api/schemas"
	"github.com/xkilldash9x/resonance/internal/agent"
	"github.com/xkilldash9x/resonance/internal/config"
	"github.com/xkilldash9x/resonance/internal/outcome"
	"github.com/xkilldash9x/resonance/internal/pattern"
)

// ComponentFactory creates the set of components a command runs on. The
// abstraction lets commands be tested without a database or network.
type ComponentFactory interface {
	// Create wires the store, platform, aggregator and scheduler. When
	// withAgent is set it also creates the LLM client and the agent.
	Create(ctx context.Context, cfg config.Interface, withAgent bool, logger *zap.Logger) (*Components, error)
}

type concreteFactory struct {
	initStore    func(context.Context, config.DatabaseConfig, *zap.Logger) (schemas.Store, error)
	initPlatform func(config.PlatformConfig, *zap.Logger) (schemas.Platform, error)
	initLLM      func(context.Context, config.AgentConfig, *zap.Logger) (schemas.LLMClient, error)
}

// NewComponentFactory creates the production component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{
		initStore:    InitializeStore,
		initPlatform: InitializePlatform,
		initLLM:      InitializeLLMClient,
	}
}

func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, withAgent bool, logger *zap.Logger) (*Components, error) {
	components := &Components{}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Store
	s, err := f.initStore(ctx, cfg.Database(), logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.Store = s
	logger.Debug("Store initialized.", zap.String("type", cfg.Database().Type))

	// 2. Platform
	p, err := f.initPlatform(cfg.Platform(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize platform client: %w", err)
		return nil, initializationErr
	}
	components.Platform = p
	logger.Debug("Platform client initialized.")

	// 3. Patterns and scheduler
	components.Aggregator = pattern.NewAggregator(s, cfg.Patterns(), logger)
	components.Scheduler = outcome.NewScheduler(s, components.Aggregator, cfg.Scheduler(), logger)

	if !withAgent {
		logger.Info("Components initialized (offline mode).")
		return components, nil
	}

	// 4. LLM client
	llm, err := f.initLLM(ctx, cfg.Agent(), logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.LLM = llm

	// 5. Agent
	a, err := agent.New(cfg, agent.Dependencies{
		Store:      s,
		Platform:   p,
		LLM:        llm,
		Aggregator: components.Aggregator,
		Scheduler:  components.Scheduler,
	}, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create agent: %w", err)
		return nil, initializationErr
	}
	components.Agent = a

	logger.Info("All components initialized successfully.")
	return components, nil
}
