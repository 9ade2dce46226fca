// Package llm provides a provider-agnostic chat client with retry and
// fallback support. Providers are selected by which API key is present,
// in a fixed preference order: Anthropic, then OpenAI, then Google.
// With no key configured the client runs in offline mode and Chat returns
// an empty string; callers degrade to their template output.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"time"
)

// maxResponseSize limits the LLM response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// provider is one upstream chat API.
type provider interface {
	name() string
	chat(ctx context.Context, httpClient *http.Client, prompt, systemPrompt string, maxTokens int) (string, error)
}

// Client is the provider chain. The first provider is the active one;
// later entries are fallbacks when a call fails.
type Client struct {
	providers  []provider
	httpClient *http.Client
	retry      RetryConfig
	logger     *slog.Logger
}

// Status reports which providers are configured and which one is active.
type Status struct {
	Active      string   `json:"active"`
	Available   []string `json:"available"`
	IsLLM       bool     `json:"is_llm"`
	OfflineMode bool     `json:"offline_mode"`
}

// ChatOption customizes a single Chat call.
type ChatOption func(*chatParams)

type chatParams struct {
	systemPrompt string
	maxTokens    int
}

// WithSystemPrompt sets the system prompt for the call.
func WithSystemPrompt(prompt string) ChatOption {
	return func(p *chatParams) {
		p.systemPrompt = prompt
	}
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int) ChatOption {
	return func(p *chatParams) {
		p.maxTokens = n
	}
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retry = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClientFromEnv builds the provider chain from ANTHROPIC_API_KEY,
// OPENAI_API_KEY, and GOOGLE_API_KEY. Any subset may be present.
func NewClientFromEnv(opts ...ClientOption) *Client {
	var providers []provider
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		providers = append(providers, newAnthropicProvider(key, ""))
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		providers = append(providers, newOpenAIProvider(key, ""))
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		providers = append(providers, newGoogleProvider(key, ""))
	}
	return newClient(providers, opts...)
}

func newClient(providers []provider, opts ...ClientOption) *Client {
	c := &Client{
		providers: providers,
		retry:     DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // LLM responses can be slow
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Available reports whether any provider is configured.
func (c *Client) Available() bool {
	return len(c.providers) > 0
}

// ActiveProvider returns the active provider name, or "offline".
func (c *Client) ActiveProvider() string {
	if len(c.providers) == 0 {
		return "offline"
	}
	return c.providers[0].name()
}

// Status returns the provider chain snapshot.
func (c *Client) Status() Status {
	available := make([]string, len(c.providers))
	for i, p := range c.providers {
		available[i] = p.name()
	}
	return Status{
		Active:      c.ActiveProvider(),
		Available:   available,
		IsLLM:       len(c.providers) > 0,
		OfflineMode: len(c.providers) == 0,
	}
}

// Chat sends a prompt through the provider chain. A failing provider is
// logged and the next one is tried; with no provider configured the call
// returns ("", nil) so callers can fall back to template output.
func (c *Client) Chat(ctx context.Context, prompt string, opts ...ChatOption) (string, error) {
	params := chatParams{maxTokens: 2048}
	for _, opt := range opts {
		opt(&params)
	}

	if len(c.providers) == 0 {
		return "", nil
	}

	var lastErr error
	for _, p := range c.providers {
		answer, err := c.chatWithRetry(ctx, p, prompt, params)
		if err == nil {
			return answer, nil
		}
		lastErr = err
		c.logger.Warn("LLM provider call failed, trying next",
			"provider", p.name(),
			"error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("all LLM providers failed: %w", lastErr)
}

// chatWithRetry retries transient failures (429 and 5xx responses surface
// as retryableError) with exponential backoff and jitter.
func (c *Client) chatWithRetry(ctx context.Context, p provider, prompt string, params chatParams) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.retry.backoff(attempt)); err != nil {
				return "", err
			}
		}
		answer, err := p.chat(ctx, c.httpClient, prompt, params.systemPrompt, params.maxTokens)
		if err == nil {
			return answer, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return "", err
		}
	}
	return "", lastErr
}

// RetryConfig bounds transient-failure retries.
type RetryConfig struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  2,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  8 * time.Second,
	}
}

// backoff returns the delay before the given attempt (1-based), doubling
// each time with up to 25% random jitter.
func (r RetryConfig) backoff(attempt int) time.Duration {
	d := r.BaseBackoff << (attempt - 1)
	if d > r.MaxBackoff {
		d = r.MaxBackoff
	}
	jitter := time.Duration(rand.Int64N(int64(d)/4 + 1))
	return d + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryableError marks a transient upstream failure (429 or 5xx).
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
