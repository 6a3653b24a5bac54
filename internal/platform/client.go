// Package platform holds the social network adapters. Client talks to the
// platform REST API; Throttled and DryRun wrap any schemas.Platform.
package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/resonance/api/schemas"
	"github.com/xkilldash9x/resonance/internal/config"
	"github.com/xkilldash9x/resonance/internal/network"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StatusError is returned for a non-success HTTP response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("platform %s %s returned status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client implements schemas.Platform over the platform REST API.
type Client struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	logger         *zap.Logger
	backoffFactory func() backoff.BackOff
}

var _ schemas.Platform = (*Client)(nil)

// NewClient creates an API client from the platform configuration.
func NewClient(cfg config.PlatformConfig, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("platform base_url is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid platform base_url %q: %w", cfg.BaseURL, err)
	}

	httpCfg := network.NewDefaultClientConfig()
	httpCfg.Logger = logger
	if cfg.Timeout > 0 {
		httpCfg.RequestTimeout = cfg.Timeout
	}
	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid platform proxy_url %q: %w", cfg.ProxyURL, err)
		}
		httpCfg.ProxyURL = proxy
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: network.NewClient(httpCfg),
		logger:     logger.Named("platform"),
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return backoff.WithMaxRetries(b, 4)
		},
	}, nil
}

type stimuliResponse struct {
	Stimuli []schemas.Stimulus `json:"stimuli"`
}

// FetchStimuli returns new timeline items and mentions, oldest first.
func (c *Client) FetchStimuli(ctx context.Context, limit int) ([]schemas.Stimulus, error) {
	var resp stimuliResponse
	path := fmt.Sprintf("/v1/stimuli?limit=%d", limit)
	if _, err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch stimuli: %w", err)
	}
	return resp.Stimuli, nil
}

// PostAction executes a decision. It is never retried: a lost response may
// still have posted.
func (c *Client) PostAction(ctx context.Context, decision schemas.Decision) (schemas.ActionReceipt, error) {
	body, err := json.Marshal(decision)
	if err != nil {
		return schemas.ActionReceipt{}, fmt.Errorf("failed to marshal decision: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/actions", bytes.NewReader(body))
	if err != nil {
		return schemas.ActionReceipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return schemas.ActionReceipt{}, fmt.Errorf("failed to post action: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return schemas.ActionReceipt{}, statusError(req, resp)
	}

	var receipt schemas.ActionReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return schemas.ActionReceipt{}, fmt.Errorf("failed to decode action receipt: %w", err)
	}
	if receipt.ArtifactID == "" {
		return schemas.ActionReceipt{}, fmt.Errorf("platform returned an action receipt without artifact_id")
	}
	c.logger.Debug("Action posted", zap.String("decision", string(decision.Type)), zap.String("artifact_id", receipt.ArtifactID))
	return receipt, nil
}

// FetchMetrics returns nil metrics when the platform answers 202 or 204,
// meaning engagement is not computed yet.
func (c *Client) FetchMetrics(ctx context.Context, artifactID string) (*schemas.Metrics, error) {
	var m schemas.Metrics
	status, err := c.getJSON(ctx, "/v1/artifacts/"+url.PathEscape(artifactID)+"/metrics", &m)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metrics for %s: %w", artifactID, err)
	}
	if status == http.StatusAccepted || status == http.StatusNoContent {
		return nil, nil
	}
	return &m, nil
}

// getJSON performs an idempotent GET with retries on transport errors, 429
// and 5xx. It returns the final status code.
func (c *Client) getJSON(ctx context.Context, path string, out any) (int, error) {
	var status int
	operation := func() error {
		req, err := c.newRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Warn("Network error during platform request, retrying...", zap.String("path", path), zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		switch {
		case status == http.StatusAccepted || status == http.StatusNoContent:
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		case status == http.StatusOK:
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
			}
			return nil
		case status == http.StatusTooManyRequests || status >= 500:
			err := statusError(req, resp)
			c.logger.Warn("Transient platform error, retrying...", zap.Int("status", status), zap.String("path", path))
			return err
		default:
			return backoff.Permanent(statusError(req, resp))
		}
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.backoffFactory(), ctx)); err != nil {
		return status, err
	}
	return status, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func statusError(req *http.Request, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Method: req.Method, Path: req.URL.Path, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
