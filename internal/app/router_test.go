package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/httpserver"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/store/memstore"
	"github.com/fairyhunter13/airdrop-analyzer/internal/config"
	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
	"github.com/fairyhunter13/airdrop-analyzer/internal/domain/mocks"
)

const (
	testKey    = "sk-or-v1-0123456789abcdef0123"
	adminToken = "s3cret-admin-token"
)

// fakeBackend answers every completion with content, or with status when non-zero.
type fakeBackend struct {
	status  atomic.Int32
	content string
	calls   atomic.Int32
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	b.calls.Add(1)
	w.Header().Set("Content-Type", "application/json")
	if s := int(b.status.Load()); s != 0 {
		w.WriteHeader(s)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": s, "message": "Invalid API key"}})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "gen-1",
		"model":   "anthropic/claude-3-sonnet",
		"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": b.content}}},
		"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
}

type harness struct {
	backend *fakeBackend
	rt      *Runtime
	handler http.Handler
}

func testConfig(baseURL string) config.Config {
	return config.Config{
		AppEnv:            "test",
		OpenRouterAPIKeys: []string{testKey},
		OpenRouterBaseURL: baseURL,
		MaxAttempts:       5,
		TransportRetries:  1,
		RequestTimeout:    5 * time.Second,
		CacheTTL:          time.Hour,
		AdminToken:        adminToken,
		RateLimitPerMin:   1000,
		CORSAllowOrigins:  "*",
		StoreBackend:      config.StoreMemory,
	}
}

func newHarness(t *testing.T, mutate func(*config.Config), repo domain.AirdropRepository, dbCheck func(context.Context) error) *harness {
	t.Helper()
	b := &fakeBackend{content: `{"project_name":"Blast","legitimacy_score":7,"detailed_analysis":"ok"}`}
	ts := httptest.NewServer(b)
	t.Cleanup(ts.Close)

	cfg := testConfig(ts.URL)
	if mutate != nil {
		mutate(&cfg)
	}
	kv, err := memstore.New(128)
	require.NoError(t, err)
	rt, err := newRuntimeWithStore(context.Background(), cfg, kv)
	require.NoError(t, err)

	srv := httpserver.NewServer(cfg, rt.Client, repo, dbCheck, nil)
	return &harness{backend: b, rt: rt, handler: BuildRouter(cfg, srv)}
}

func (h *harness) do(t *testing.T, method, path, body string, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	env := decode(t, rec)
	e, ok := env["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return e["code"].(string)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	h := newHarness(t, nil, nil, nil)

	rec := h.do(t, http.MethodGet, "/healthz", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = h.do(t, http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_AdminRequiresToken(t *testing.T) {
	h := newHarness(t, nil, nil, nil)

	rec := h.do(t, http.MethodGet, "/openrouter/keys", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))

	req := httptest.NewRequest(http.MethodGet, "/openrouter/keys", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	wrong := httptest.NewRecorder()
	h.handler.ServeHTTP(wrong, req)
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)

	rec = h.do(t, http.MethodGet, "/openrouter/keys", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), testKey, "secrets never leave the pool")
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["total"])
	assert.EqualValues(t, 1, body["available"])
}

func TestRouter_AdminDisabledWithoutToken(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.AdminToken = "" }, nil, nil)

	rec := h.do(t, http.MethodGet, "/openrouter/keys", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/openrouter/analyze", `{"project_name":"Blast"}`, false)
	assert.Equal(t, http.StatusOK, rec.Code, "analysis stays public")
}

func TestRouter_AdminTokenHash(t *testing.T) {
	hash, err := httpserver.HashToken(adminToken, httpserver.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLen: 8, KeyLen: 16})
	require.NoError(t, err)
	h := newHarness(t, func(c *config.Config) { c.AdminToken = ""; c.AdminTokenHash = hash }, nil, nil)

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/openrouter/models", "", true).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/openrouter/models", "", false).Code)
}

func TestRouter_KeyLifecycle(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	const second = "sk-or-v1-ffffffffffffffff9999"

	rec := h.do(t, http.MethodPost, "/openrouter/keys", `{"key":"`+second+`"}`, true)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "sk-or-v1...9999", decode(t, rec)["key_hint"])

	rec = h.do(t, http.MethodPost, "/openrouter/keys", `{"key":"`+second+`"}`, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["added"])

	rec = h.do(t, http.MethodPost, "/openrouter/keys", `{"key":"short"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, rec))

	rec = h.do(t, http.MethodPost, "/openrouter/keys/sk-or-v1...9999/limit", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	_, avail := h.rt.Pool.Counts()
	assert.Equal(t, 1, avail)

	rec = h.do(t, http.MethodPost, "/openrouter/keys/reset", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	_, avail = h.rt.Pool.Counts()
	assert.Equal(t, 2, avail)

	rec = h.do(t, http.MethodDelete, "/openrouter/keys/sk-or-v1...9999", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodDelete, "/openrouter/keys/sk-or-v1...9999", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_PreferenceAndModels(t *testing.T) {
	h := newHarness(t, nil, nil, nil)

	rec := h.do(t, http.MethodPost, "/openrouter/preference", `{}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/openrouter/preference", `{"prefer_free":true}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["prefer_free"])

	rec = h.do(t, http.MethodGet, "/openrouter/models", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, true, m["prefer_free"])
	assert.NotEmpty(t, m["fallback"])
}

func TestRouter_AnalyzeUsesCache(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	body := `{"project_name":"Blast","token_symbol":"BLAST"}`

	rec := h.do(t, http.MethodPost, "/openrouter/analyze", body, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode(t, rec)
	assert.Equal(t, true, first["success"])
	assert.Equal(t, domain.SourceAPI, first["source"])

	rec = h.do(t, http.MethodPost, "/openrouter/analyze", body, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.SourceCache, decode(t, rec)["source"])
	assert.EqualValues(t, 1, h.backend.calls.Load())

	rec = h.do(t, http.MethodPost, "/openrouter/analyze?use_cache=false", body, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, h.backend.calls.Load())

	rec = h.do(t, http.MethodPost, "/openrouter/analyze?use_cache=maybe", body, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/openrouter/cache/stats", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["total_cached"])

	rec = h.do(t, http.MethodPost, "/openrouter/cache/clear-expired", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["removed"])
}

func TestRouter_AnalyzeValidation(t *testing.T) {
	h := newHarness(t, nil, nil, nil)

	rec := h.do(t, http.MethodPost, "/openrouter/analyze", `{"token_symbol":"X"}`, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "projectname:required")

	rec = h.do(t, http.MethodPost, "/openrouter/analyze", `{not json`, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, h.backend.calls.Load())
}

func TestRouter_AnalyzeCredentialsExhausted(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	h.backend.status.Store(http.StatusUnauthorized)

	rec := h.do(t, http.MethodPost, "/openrouter/analyze", `{"project_name":"Blast"}`, false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "CREDENTIALS_EXHAUSTED", errorCode(t, rec))

	rec = h.do(t, http.MethodGet, "/readyz", "", false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_CompletionEndpoints(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	h.backend.content = "looks fine"

	for _, tc := range []struct{ path, body string }{
		{"/openrouter/test", `{"prompt":"hello","model":"fast"}`},
		{"/openrouter/code", `{"code":"func main() {}"}`},
		{"/openrouter/scrape-assist", `{"query":"find airdrop tweets"}`},
	} {
		rec := h.do(t, http.MethodPost, tc.path, tc.body, true)
		require.Equal(t, http.StatusOK, rec.Code, tc.path)
		assert.Equal(t, "looks fine", decode(t, rec)["content"], tc.path)
	}

	rec := h.do(t, http.MethodPost, "/openrouter/code", `{}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_ListAirdrops(t *testing.T) {
	repo := mocks.NewMockAirdropRepository(t)
	repo.On("ListLatest", mock.Anything, 5).Return([]domain.ProjectSummary{{ID: "p1", ProjectName: "Blast", OverallRating: 6}}, nil).Once()
	repo.On("ListLatest", mock.Anything, 0).Return(nil, errors.New("db down")).Once()
	h := newHarness(t, nil, repo, nil)

	rec := h.do(t, http.MethodGet, "/v1/airdrops?limit=5", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["count"])

	rec = h.do(t, http.MethodGet, "/v1/airdrops?limit=500", "", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/airdrops", "", false)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRouter_ListAirdropsWithoutStore(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	rec := h.do(t, http.MethodGet, "/v1/airdrops", "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Readyz(t *testing.T) {
	h := newHarness(t, nil, nil, func(context.Context) error { return nil })
	rec := h.do(t, http.MethodGet, "/readyz", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["ready"])

	h = newHarness(t, nil, nil, func(context.Context) error { return errors.New("conn refused") })
	rec = h.do(t, http.MethodGet, "/readyz", "", false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "conn refused"))
}

func TestParseOrigins(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", []string{"*"}},
		{"*", []string{"*"}},
		{"https://a.com, https://b.com", []string{"https://a.com", "https://b.com"}},
		{"  ,  ", []string{"*"}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ParseOrigins(c.in), c.in)
	}
}
