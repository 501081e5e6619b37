// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package llm is a minimal client for OpenAI-compatible chat completion APIs.

The client sends a single system+user message pair and returns the first
choice's content. Outgoing calls are throttled with a token bucket so a burst
of recommendation requests cannot exhaust the provider's quota.

Errors wrap resilience.ErrSourceUnavailable for transport failures, throttling
and non-200 responses, and resilience.ErrSourceMalformedResponse when the body
cannot be decoded, so callers can classify them with errors.Is.
*/
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/resilience"
)

const (
	chatCompletionsPath = "/chat/completions"
	maxErrorBody        = 512
	maxResponseBody     = 4 << 20

	systemPrompt = "You are a precise TV recommendation assistant. Answer with JSON only."
)

// ErrEmptyCompletion is returned when the provider answers without choices.
var ErrEmptyCompletion = errors.New("llm: completion has no choices")

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Config holds client settings.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Temperature       *float64
	MaxTokens         int

	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client
}

// Client implements sources.Completer over HTTP. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	endpoint   string
	cfg        Config
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// New creates a client. A non-positive RequestsPerSecond disables throttling.
//
//nolint:gocritic // hugeParam: config is passed once at startup
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm: base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		httpClient: httpClient,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + chatCompletionsPath,
		cfg:        cfg,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger.With().Str("component", "llm").Str("model", cfg.Model).Logger(),
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// Complete sends prompt as a user message and returns the assistant reply.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := c.complete(ctx, prompt)
	metrics.RecordAICompletion(c.cfg.Model, err, time.Since(start))
	return text, err
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: llm: rate limited: %w", resilience.ErrSourceUnavailable, err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: llm: request failed: %w", resilience.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", fmt.Errorf("%w: llm: read body: %w", resilience.ErrSourceUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("completion request rejected")
		return "", fmt.Errorf("%w: llm: status %d: %s", resilience.ErrSourceUnavailable, resp.StatusCode, truncate(raw))
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: llm: decode response: %w", resilience.ErrSourceMalformedResponse, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("%w: llm: %s: %s", resilience.ErrSourceUnavailable, out.Error.Type, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: %w", resilience.ErrSourceMalformedResponse, ErrEmptyCompletion)
	}

	c.logger.Debug().
		Str("finish_reason", out.Choices[0].FinishReason).
		Int("response_len", len(out.Choices[0].Message.Content)).
		Msg("completion received")
	return out.Choices[0].Message.Content, nil
}

// truncate shortens an error body to at most maxErrorBody bytes without
// splitting a UTF-8 sequence.
func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= maxErrorBody {
		return s
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
