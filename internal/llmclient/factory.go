// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/resonance/api/schemas"
	"github.com/xkilldash9x/resonance/internal/config"
)

// NewClient builds the tiered LLMRouter described by cfg.LLM. A default model
// name that has no entry in the models map is treated as a bare Gemini model
// using the router-level API key.
func NewClient(ctx context.Context, cfg config.AgentConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	routerCfg := cfg.LLM

	fastCfg, err := resolveModel(routerCfg, "DefaultFastModel", routerCfg.DefaultFastModel)
	if err != nil {
		return nil, err
	}
	powerfulCfg, err := resolveModel(routerCfg, "DefaultPowerfulModel", routerCfg.DefaultPowerfulModel)
	if err != nil {
		return nil, err
	}

	fast, err := newProviderClient(ctx, fastCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Fast tier LLM client (Model: %s): %w", routerCfg.DefaultFastModel, err)
	}
	powerful, err := newProviderClient(ctx, powerfulCfg, logger)
	if err != nil {
		_ = fast.Close()
		return nil, fmt.Errorf("failed to initialize Powerful tier LLM client (Model: %s): %w", routerCfg.DefaultPowerfulModel, err)
	}

	return NewLLMRouter(logger, fast, powerful)
}

func resolveModel(routerCfg config.LLMRouterConfig, field, name string) (config.LLMModelConfig, error) {
	if name == "" {
		return config.LLMModelConfig{}, fmt.Errorf("configuration error: %s is not specified in LLMRouterConfig", field)
	}

	modelCfg, ok := routerCfg.Models[name]
	if !ok {
		modelCfg = config.LLMModelConfig{Provider: config.ProviderGemini, Model: name}
	}
	if modelCfg.Model == "" {
		modelCfg.Model = name
	}
	if modelCfg.APIKey == "" {
		modelCfg.APIKey = routerCfg.APIKey
	}
	return modelCfg, nil
}

func newProviderClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	case "":
		return nil, fmt.Errorf("LLM provider is not specified in the model configuration")
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", cfg.Provider, config.ProviderGemini)
	}
}
