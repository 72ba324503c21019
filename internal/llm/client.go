package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Fallback payload values returned by Complete when a call fails.
const (
	FallbackAnswer      = "The system is temporarily unable to process this query."
	FallbackExplanation = "completion service unavailable"
)

// ClientConfig holds the per-call settings of a Client.
type ClientConfig struct {
	// SystemPrompt is sent as the system role. Default: SystemPrompt.
	SystemPrompt string

	// Temperature is the sampling temperature. Default: 0.1.
	Temperature float64

	// MaxTokens caps the completion length. Default: 1000.
	MaxTokens int

	// Timeout bounds each call. Default: 60s.
	Timeout time.Duration

	// RequestsPerSecond limits the call rate; zero disables limiting.
	RequestsPerSecond float64

	// Burst is the limiter bucket size. Default: 1.
	Burst int

	// Breaker configures the circuit breaker. Zero fields take defaults.
	Breaker CircuitBreakerConfig
}

// DefaultClientConfig returns the default client settings.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		SystemPrompt: SystemPrompt,
		Temperature:  0.1,
		MaxTokens:    1000,
		Timeout:      60 * time.Second,
		Burst:        1,
		Breaker:      DefaultCircuitBreakerConfig(),
	}
}

// Client turns a prompt into completion text. It adds the fixed system
// role, a per-call timeout, rate limiting and a circuit breaker around a
// TextGenerator. Complete never fails: errors become a JSON fallback payload
// that DecodeIntent and DecodeAnswer report as ParseServiceFailure.
type Client struct {
	gen     TextGenerator
	cfg     ClientConfig
	limiter *rate.Limiter
	breaker *CircuitBreaker
	logger  *slog.Logger
}

// NewClient wraps gen. Zero config fields take their defaults, except
// RequestsPerSecond where zero means unlimited.
func NewClient(gen TextGenerator, cfg ClientConfig, logger *slog.Logger) *Client {
	def := DefaultClientConfig()
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = def.SystemPrompt
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		gen:     gen,
		cfg:     cfg,
		breaker: NewCircuitBreakerWithConfig(cfg.Breaker, logger),
		logger:  logger,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	return c
}

// Complete sends prompt and returns the completion text, or the fallback
// payload when the call fails for any reason.
func (c *Client) Complete(ctx context.Context, prompt string) string {
	text, err := c.Generate(ctx, prompt)
	if err != nil {
		c.logger.Error("completion call failed",
			"model", c.gen.GetModel(),
			"breaker", c.breaker.State(),
			"error", err)
		return FallbackResponse(err)
	}
	return text
}

// Generate sends prompt and returns the completion text or the error.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	text, err := c.breaker.Execute(ctx, func() (string, error) {
		out, err := c.gen.Generate(ctx, ChatRequest{
			SystemPrompt: c.cfg.SystemPrompt,
			Prompt:       prompt,
			Temperature:  c.cfg.Temperature,
			MaxTokens:    c.cfg.MaxTokens,
		})
		if err != nil {
			return "", err
		}
		if out == "" {
			return "", ErrEmptyCompletion
		}
		return out, nil
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return "", fmt.Errorf("completion circuit breaker open: %w", err)
		}
		return "", err
	}
	return text, nil
}

// Breaker exposes the client's circuit breaker.
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// Model returns the underlying provider's model name.
func (c *Client) Model() string {
	return c.gen.GetModel()
}

// FallbackResponse renders the JSON payload returned in place of a
// completion when the call fails.
func FallbackResponse(err error) string {
	msg := "completion call failed"
	if err != nil {
		msg += ": " + err.Error()
	}
	payload := map[string]interface{}{
		"error":       msg,
		"answer":      FallbackAnswer,
		"confidence":  0.0,
		"explanation": FallbackExplanation,
	}
	out, mErr := json.MarshalToString(payload)
	if mErr != nil {
		return `{"error":"completion call failed","answer":"` + FallbackAnswer + `","confidence":0.0,"explanation":"` + FallbackExplanation + `"}`
	}
	return out
}
