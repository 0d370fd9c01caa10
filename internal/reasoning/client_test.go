package reasoning

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datachat/internal/config"
	"datachat/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, nil))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func completionServer(t *testing.T, calls *atomic.Int64, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/generate", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.NotEmpty(t, req.Model)

		json.NewEncoder(w).Encode(generateResponse{Response: reply, Done: true})
	}))
}

func testConfig(urls ...string) config.ReasoningConfig {
	eps := make([]config.Endpoint, len(urls))
	for i, u := range urls {
		eps[i] = config.Endpoint{URL: u, Internal: true}
	}
	return config.ReasoningConfig{
		Endpoints:       eps,
		Model:           "llama3.1-gguf",
		InternalTimeout: 2 * time.Second,
		ExternalTimeout: 2 * time.Second,
		MaxAttempts:     2,
		RateLimitRPS:    1000,
		RateLimitBurst:  1000,
	}
}

func TestComplete_HappyPath(t *testing.T) {
	var calls atomic.Int64
	srv := completionServer(t, &calls, `{"action":"NONE"}`)
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), discardLogger())
	text, err := c.Complete(context.Background(), domain.CompletionRequest{
		System: "responda em json",
		Prompt: "quantos contatos temos?",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"action":"NONE"}`, text)
	assert.Equal(t, int64(1), calls.Load())
}

func TestComplete_FailsOverToSecondEndpoint(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	var calls atomic.Int64
	good := completionServer(t, &calls, "ola!")
	defer good.Close()

	c := NewClient(testConfig(bad.URL, good.URL), discardLogger())
	text, err := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "oi"})
	require.NoError(t, err)
	assert.Equal(t, "ola!", text)

	// The failing endpoint's breaker is now open; it is skipped next time.
	assert.Equal(t, StateOpen, c.breaker.State(bad.URL))
	assert.False(t, c.breaker.Allow(bad.URL))
}

func TestComplete_AllEndpointsDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), discardLogger())
	_, err := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "oi"})
	require.ErrorIs(t, err, ErrUnavailable)

	// Subsequent calls short-circuit without touching the network.
	assert.False(t, c.Available())
	_, err = c.Complete(context.Background(), domain.CompletionRequest{Prompt: "oi"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestComplete_NoEndpointsConfigured(t *testing.T) {
	c := NewClient(config.ReasoningConfig{Model: "llama3.1-gguf"}, discardLogger())
	_, err := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "oi"})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, c.Available())
}

func TestComplete_AttemptBudgetIsShared(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	// Three endpoints behind the same failing server, budget of 2.
	c := NewClient(testConfig(srv.URL, srv.URL, srv.URL), discardLogger())
	_, err := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "oi"})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.LessOrEqual(t, calls.Load(), int64(2))
}

func TestComplete_SendsAuthorizationHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(generateResponse{Response: "ok", Done: true})
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.APIKey = "secret-token"
	c := NewClient(cfg, discardLogger())
	_, err := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "oi"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
}
