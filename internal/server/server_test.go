package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitormoschetta/study-buddy/internal/config"
	"github.com/vitormoschetta/study-buddy/internal/handler"
	"github.com/vitormoschetta/study-buddy/internal/metrics"
	"github.com/vitormoschetta/study-buddy/internal/provider"
	"github.com/vitormoschetta/study-buddy/internal/service"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.FromLookup(func(string) (string, bool) { return "", false })
	require.NoError(t, err)
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

type countingProvider struct {
	calls atomic.Int32
	gen   provider.Func
}

func (p *countingProvider) Generate(ctx context.Context, prompt string) (string, error) {
	p.calls.Add(1)
	return p.gen(ctx, prompt)
}

func newTestServer(t *testing.T, cfg config.Config, p provider.Provider, m *metrics.Metrics) *httptest.Server {
	t.Helper()
	h := handler.NewHandler(service.NewChatService(p), zerolog.Nop(), handler.Options{
		ModelName:      cfg.GeminiModel,
		MetricsEnabled: m != nil,
	})
	s := NewServer(cfg, zerolog.Nop(), m)
	s.SetupRouter(h)

	ts := httptest.NewServer(s.Router)
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string, headers map[string]string) (*http.Response, string) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(raw)
}

var jsonHeaders = map[string]string{"Content-Type": "application/json"}

func TestHealthRoute(t *testing.T) {
	ts := newTestServer(t, testConfig(t), &countingProvider{}, nil)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/health", "", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","message":"Study Buddy backend is running"}`, body)
}

func TestChatRouteScenarios(t *testing.T) {
	p := &countingProvider{gen: func(ctx context.Context, prompt string) (string, error) {
		if prompt == "User: What is 2+2?\nAI:" {
			return "4", nil
		}
		return "", fmt.Errorf("unexpected prompt %q", prompt)
	}}
	ts := newTestServer(t, testConfig(t), p, nil)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/chat", `{"text":"What is 2+2?"}`, jsonHeaders)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"response":"4"}`, body)

	resp, body = do(t, http.MethodPost, ts.URL+"/api/chat", `{}`, jsonHeaders)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Message is required and must be a string"}`, body)

	assert.Equal(t, int32(1), p.calls.Load())
}

func TestChatRouteProviderFailureIsIsolated(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	p := &countingProvider{gen: func(ctx context.Context, prompt string) (string, error) {
		if fail.Load() {
			return "", errors.New("upstream exploded: secret detail")
		}
		return "recovered", nil
	}}
	ts := newTestServer(t, testConfig(t), p, nil)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/chat", `{"text":"hi"}`, jsonHeaders)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Internal server error"}`, body)
	assert.NotContains(t, body, "secret detail")

	fail.Store(false)
	resp, body = do(t, http.MethodPost, ts.URL+"/api/chat", `{"text":"hi"}`, jsonHeaders)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"response":"recovered"}`, body)
}

func TestChatRouteMissingCredential(t *testing.T) {
	cfg := testConfig(t)
	require.Empty(t, cfg.GeminiAPIKey)
	g := provider.NewGemini(provider.GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel}, zerolog.Nop())
	ts := newTestServer(t, cfg, g, nil)

	for i := 0; i < 3; i++ {
		resp, body := do(t, http.MethodPost, ts.URL+"/api/chat", `{"text":"hi"}`, jsonHeaders)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.JSONEq(t, `{"error":"Internal server error"}`, body)
	}

	resp, _ := do(t, http.MethodGet, ts.URL+"/api/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChatRouteBodyLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxBodyBytes = 32
	p := &countingProvider{gen: func(ctx context.Context, prompt string) (string, error) { return "ok", nil }}
	ts := newTestServer(t, cfg, p, nil)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/chat", `{"text":"`+strings.Repeat("x", 100)+`"}`, jsonHeaders)

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Request entity too large"}`, body)
	assert.Zero(t, p.calls.Load())
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, testConfig(t), &countingProvider{}, nil)

	resp, _ := do(t, http.MethodOptions, ts.URL+"/api/chat", "", map[string]string{
		"Origin":                         "http://localhost:5173",
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "Content-Type",
	})
	assert.Less(t, resp.StatusCode, 300)
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/health", "", map[string]string{"Origin": "http://localhost:5173"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestUnknownRouteAndMethod(t *testing.T) {
	ts := newTestServer(t, testConfig(t), &countingProvider{}, nil)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Not found"}`, body)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/chat", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Method not allowed"}`, body)
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New()
	p := &countingProvider{gen: func(ctx context.Context, prompt string) (string, error) { return "ok", nil }}
	ts := newTestServer(t, testConfig(t), provider.NewInstrumented(p, m), m)

	do(t, http.MethodPost, ts.URL+"/api/chat", `{"text":"hi"}`, jsonHeaders)
	do(t, http.MethodPost, ts.URL+"/api/chat", `{}`, jsonHeaders)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/api/chat", "POST", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/api/chat", "POST", "400")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProviderCalls.WithLabelValues("success")))

	resp, body := do(t, http.MethodGet, ts.URL+"/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "study_buddy_http_requests_total")
}

func TestMetricsRouteDisabled(t *testing.T) {
	ts := newTestServer(t, testConfig(t), &countingProvider{}, nil)

	resp, _ := do(t, http.MethodGet, ts.URL+"/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	cfg := testConfig(t)
	h := handler.NewHandler(service.NewChatService(&countingProvider{}), zerolog.Nop(), handler.Options{})
	s := NewServer(cfg, zerolog.Nop(), nil)
	s.SetupRouter(h)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/api/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServeWithoutRouter(t *testing.T) {
	s := NewServer(testConfig(t), zerolog.Nop(), nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	assert.Error(t, s.Serve(context.Background(), ln))
}

func TestHealthRouteAnswersHead(t *testing.T) {
	ts := newTestServer(t, testConfig(t), &countingProvider{}, nil)

	resp, body := do(t, http.MethodHead, ts.URL+"/api/health", "", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
}

func TestChatRouteRequestTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.RequestTimeout = 50 * time.Millisecond
	p := &countingProvider{gen: func(ctx context.Context, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	ts := newTestServer(t, cfg, p, nil)

	start := time.Now()
	resp, body := do(t, http.MethodPost, ts.URL+"/api/chat", `{"text":"hi"}`, jsonHeaders)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Internal server error"}`, body)
	assert.Equal(t, int32(1), p.calls.Load())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestServeCancelsInFlightRequestsAfterShutdownTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.ShutdownTimeout = 100 * time.Millisecond

	entered := make(chan struct{})
	released := make(chan error, 1)
	p := &countingProvider{gen: func(ctx context.Context, prompt string) (string, error) {
		close(entered)
		<-ctx.Done()
		released <- ctx.Err()
		return "", ctx.Err()
	}}
	h := handler.NewHandler(service.NewChatService(p), zerolog.Nop(), handler.Options{})
	s := NewServer(cfg, zerolog.Nop(), nil)
	s.SetupRouter(h)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	go func() {
		resp, err := http.Post("http://"+ln.Addr().String()+"/api/chat", "application/json", strings.NewReader(`{"text":"hi"}`))
		if err == nil {
			resp.Body.Close()
		}
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("provider was not called")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	select {
	case err := <-released:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight provider call was not cancelled")
	}
}
