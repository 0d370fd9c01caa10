// Package reasoning talks to the external reasoning service: an
// Ollama-compatible completion API behind one or more endpoints, with
// per-endpoint circuit breaking and client-side rate limiting.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"datachat/internal/config"
	"datachat/internal/domain"
)

// ErrUnavailable means no endpoint could serve the request: all breakers
// open, or every attempt failed. Callers degrade to limited mode.
var ErrUnavailable = errors.New("reasoning service unavailable")

var _ domain.Completer = (*Client)(nil)

// Client is a domain.Completer over a pool of reasoning endpoints.
// Endpoints are tried in configuration order, skipping open breakers.
type Client struct {
	endpoints  []config.Endpoint
	model      string
	apiKey     string
	internalTO time.Duration
	externalTO time.Duration
	attempts   int

	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *Breaker
	logger     *slog.Logger
}

// generateRequest is the completion API request body.
type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	System  string   `json:"system,omitempty"`
	Stream  bool     `json:"stream"`
	Options *options `json:"options,omitempty"`
}

type options struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewClient builds a Client from configuration. The breaker covers every
// configured endpoint.
func NewClient(cfg config.ReasoningConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	urls := make([]string, len(cfg.Endpoints))
	for i, ep := range cfg.Endpoints {
		urls[i] = ep.URL
	}
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 10
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 2
	}
	return &Client{
		endpoints:  cfg.Endpoints,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		internalTO: cfg.InternalTimeout,
		externalTO: cfg.ExternalTimeout,
		attempts:   attempts,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		breaker:    NewBreaker(urls, cfg.Cooldown, cfg.CooldownAllOpen),
		logger:     logger,
	}
}

// Available reports whether at least one endpoint would currently be tried.
// It transitions cooled-down breakers to half-open as a side effect.
func (c *Client) Available() bool {
	for _, ep := range c.endpoints {
		if c.breaker.Allow(ep.URL) {
			return true
		}
	}
	return false
}

// Complete runs one completion against the first healthy endpoint,
// retrying across the pool up to the attempt budget. Returns
// ErrUnavailable when nothing answered.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if len(c.endpoints) == 0 {
		return "", ErrUnavailable
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	// The attempt budget is shared across the pool, not per endpoint.
	var lastErr error
	tried := 0
	for tried < c.attempts {
		progressed := false
		for _, ep := range c.endpoints {
			if tried >= c.attempts {
				break
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if !c.breaker.Allow(ep.URL) {
				continue
			}
			tried++
			progressed = true
			text, err := c.completeOnce(ctx, ep, req)
			if err == nil {
				c.breaker.Success(ep.URL)
				return text, nil
			}
			c.breaker.Failure(ep.URL)
			c.logger.Warn("reasoning endpoint failed",
				"endpoint", ep.URL, "internal", ep.Internal, "attempt", tried, "error", err)
			lastErr = err
		}
		if !progressed {
			break
		}
	}

	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
	}
	return "", ErrUnavailable
}

func (c *Client) completeOnce(ctx context.Context, ep config.Endpoint, req domain.CompletionRequest) (string, error) {
	timeout := c.externalTO
	if ep.Internal {
		timeout = c.internalTO
	}
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body := generateRequest{
		Model:  c.model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
	}
	if req.MaxTokens > 0 || req.Temperature > 0 {
		body.Options = &options{NumPredict: req.MaxTokens, Temperature: req.Temperature}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("post completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("completion status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Response == "" {
		return "", errors.New("empty completion response")
	}
	return out.Response, nil
}
