package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator is a scripted TextGenerator.
type fakeGenerator struct {
	mu       sync.Mutex
	response string
	err      error
	delay    time.Duration
	requests []ChatRequest
}

func (f *fakeGenerator) Generate(ctx context.Context, req ChatRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	resp, err, delay := f.response, f.err, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return resp, err
}

func (f *fakeGenerator) GetModel() string { return "fake-model" }

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func TestClient_Complete_PassesSettings(t *testing.T) {
	gen := &fakeGenerator{response: `{"answer": "ok"}`}
	c := NewClient(gen, ClientConfig{Temperature: 0.3, MaxTokens: 256}, nil)

	out := c.Complete(context.Background(), "question")

	assert.Equal(t, `{"answer": "ok"}`, out)
	require.Equal(t, 1, gen.calls())
	req := gen.requests[0]
	assert.Equal(t, SystemPrompt, req.SystemPrompt)
	assert.Equal(t, "question", req.Prompt)
	assert.InDelta(t, 0.3, req.Temperature, 1e-9)
	assert.Equal(t, 256, req.MaxTokens)
}

func TestClient_Complete_Defaults(t *testing.T) {
	gen := &fakeGenerator{response: "x"}
	c := NewClient(gen, ClientConfig{}, nil)

	c.Complete(context.Background(), "q")

	assert.InDelta(t, 0.1, gen.requests[0].Temperature, 1e-9)
	assert.Equal(t, 1000, gen.requests[0].MaxTokens)
	assert.Equal(t, "fake-model", c.Model())
}

// TestClient_Complete_Fallback verifies a transport failure turns into the
// fallback payload rather than an error.
func TestClient_Complete_Fallback(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("dial tcp: connection refused")}
	c := NewClient(gen, ClientConfig{}, nil)

	out := c.Complete(context.Background(), "q")

	_, err := DecodeAnswer(out)
	kind, ok := ParseErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, ParseServiceFailure, kind)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestClient_Complete_EmptyResponse(t *testing.T) {
	c := NewClient(&fakeGenerator{response: ""}, ClientConfig{}, nil)

	_, err := DecodeAnswer(c.Complete(context.Background(), "q"))
	kind, _ := ParseErrorKindOf(err)
	assert.Equal(t, ParseServiceFailure, kind)
}

func TestClient_Complete_Timeout(t *testing.T) {
	gen := &fakeGenerator{response: "late", delay: time.Second}
	c := NewClient(gen, ClientConfig{Timeout: 20 * time.Millisecond}, nil)

	start := time.Now()
	out := c.Complete(context.Background(), "q")

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Contains(t, out, "deadline exceeded")
}

func TestClient_CircuitOpensAfterFailures(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("503 service unavailable")}
	c := NewClient(gen, ClientConfig{Breaker: CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Minute}}, nil)

	for i := 0; i < 3; i++ {
		_, err := c.Generate(context.Background(), "q")
		require.Error(t, err)
	}
	assert.Equal(t, "open", c.Breaker().State())

	_, err := c.Generate(context.Background(), "q")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, gen.calls(), "open circuit must not reach the provider")

	m := c.Breaker().Metrics()
	assert.Equal(t, uint64(3), m.TotalFailures)
	assert.Equal(t, uint64(1), m.Rejected)
}

func TestClient_RateLimited(t *testing.T) {
	gen := &fakeGenerator{response: "ok"}
	c := NewClient(gen, ClientConfig{RequestsPerSecond: 1, Burst: 1}, nil)

	require.Equal(t, "ok", c.Complete(context.Background(), "first"))

	// The bucket is empty, so the second call waits past the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Generate(ctx, "second")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, 1, gen.calls())
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures:          1,
		Timeout:              20 * time.Millisecond,
		HalfOpenMaxSuccesses: 1,
	}, nil)
	ctx := context.Background()

	_, err := cb.Execute(ctx, func() (string, error) { return "", errors.New("boom") })
	require.Error(t, err)
	assert.Equal(t, "open", cb.State())

	time.Sleep(40 * time.Millisecond)
	out, err := cb.Execute(ctx, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := NewCircuitBreaker(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := cb.Execute(ctx, func() (string, error) {
		called = true
		return "", nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
