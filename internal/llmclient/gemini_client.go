// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/resonance/api/schemas"
	"github.com/xkilldash9x/resonance/internal/config"
)

// contentGenerator is the slice of the genai SDK the client depends on.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient implements the schemas.LLMClient interface on top of the
// Google genai SDK.
type GeminiClient struct {
	models         contentGenerator
	logger         *zap.Logger
	config         config.LLMModelConfig
	backoffFactory func() backoff.BackOff
}

// NewGeminiClient initializes the client.
func NewGeminiClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("Gemini model name is required")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.APITimeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.APITimeout}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return newGeminiClientWithGenerator(client.Models, cfg, logger), nil
}

func newGeminiClientWithGenerator(models contentGenerator, cfg config.LLMModelConfig, logger *zap.Logger) *GeminiClient {
	return &GeminiClient{
		models: models,
		config: cfg,
		logger: logger.Named("llm_client.gemini").With(zap.String("model", cfg.Model)),
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 2 * time.Minute
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
}

// Generate sends the prompts to Gemini and returns the generated text, retrying
// transient failures.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(req.UserPrompt, genai.RoleUser)}
	genConfig := c.buildGenerateConfig(req)

	var responseContent string
	operation := func() error {
		startTime := time.Now()
		resp, err := c.models.GenerateContent(ctx, c.config.Model, contents, genConfig)
		duration := time.Since(startTime)
		if err != nil {
			return c.classifyError(err)
		}

		text, err := extractText(resp)
		if err != nil {
			return err
		}

		fields := []zap.Field{zap.Duration("duration", duration)}
		if resp.UsageMetadata != nil {
			fields = append(fields,
				zap.Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
				zap.Int32("completion_tokens", resp.UsageMetadata.CandidatesTokenCount),
				zap.Int32("total_tokens", resp.UsageMetadata.TotalTokenCount),
			)
		}
		c.logger.Debug("LLM generation complete (Gemini)", fields...)

		responseContent = text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.backoffFactory(), ctx)); err != nil {
		return "", err
	}
	return responseContent, nil
}

// Close satisfies schemas.LLMClient. The genai client holds no resources that
// need releasing.
func (c *GeminiClient) Close() error { return nil }

func (c *GeminiClient) buildGenerateConfig(req schemas.GenerationRequest) *genai.GenerateContentConfig {
	temperature := float32(req.Options.Temperature)
	if temperature == 0 {
		temperature = c.config.Temperature
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temperature),
	}
	if req.SystemPrompt != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if c.config.TopP > 0 {
		genConfig.TopP = genai.Ptr(c.config.TopP)
	}
	if c.config.TopK > 0 {
		genConfig.TopK = genai.Ptr(float32(c.config.TopK))
	}
	if c.config.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(c.config.MaxTokens)
	}
	if req.Options.ForceJSONFormat {
		genConfig.ResponseMIMEType = "application/json"
	}
	return genConfig
}

// classifyError marks non-transient API failures as permanent so the backoff
// loop stops early.
func (c *GeminiClient) classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			c.logger.Warn("Transient Gemini API error, retrying...", zap.Int("status", apiErr.Code), zap.Error(err))
			return fmt.Errorf("gemini API error: %w", err)
		default:
			c.logger.Error("Gemini API returned error status", zap.Int("status", apiErr.Code), zap.Error(err))
			return backoff.Permanent(fmt.Errorf("gemini API error: %w", err))
		}
	}

	c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
	return fmt.Errorf("failed to execute Gemini request: %w", err)
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		reason := string(candidate.FinishReason)
		if reason == "SAFETY" || reason == "BLOCKLIST" || reason == "PROHIBITED_CONTENT" {
			return "", backoff.Permanent(fmt.Errorf("gemini API blocked the request (Reason: %s)", reason))
		}
		return "", fmt.Errorf("gemini API returned empty content parts (Reason: %s)", reason)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}
