// File: internal/service/components.go
package service

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/resonance/api/schemas"
	"github.com/xkilldash9x/resonance/internal/agent"
	"github.com/xkilldash9x/resonance/internal/observability"
	"github.com/xkilldash9x/resonance/internal/outcome"
	"github.com/xkilldash9x/resonance/internal/pattern"
)

// Components holds every initialized service a command needs and owns their
// lifecycle. LLM and Agent are nil for commands that do not evaluate stimuli.
type Components struct {
	Store      schemas.Store
	Platform   schemas.Platform
	LLM        schemas.LLMClient
	Aggregator *pattern.Aggregator
	Scheduler  *outcome.Scheduler
	Agent      *agent.Agent
}

// Shutdown releases resources in reverse order of creation. It is safe to call
// on partially initialized components.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	if c.LLM != nil {
		if err := c.LLM.Close(); err != nil {
			logger.Warn("Error closing LLM client.", zap.Error(err))
		} else {
			logger.Debug("LLM client closed.")
		}
	}

	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			logger.Warn("Error closing store.", zap.Error(err))
		} else {
			logger.Debug("Store closed.")
		}
	}

	logger.Info("All components shut down successfully.")
}
