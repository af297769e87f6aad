// Package openrouter orchestrates chat completions against the OpenRouter API:
// it resolves logical model names, rotates credentials on quota errors, retries
// transport failures and falls back through a roster of alternate models.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/keypool"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/resolver"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/respjson"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/resultcache"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/airdrop-analyzer/internal/config"
	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

const (
	completionsPath = "/chat/completions"
	maxResponseBody = 4 << 20
)

// CredentialPool is the subset of *keypool.Pool the orchestrator relies on.
type CredentialPool interface {
	SelectNext(ctx context.Context) (keypool.Credential, bool)
	MarkExhausted(ctx context.Context, keyOrHint string) error
	ResetAll(ctx context.Context) error
	Add(ctx context.Context, key string) (bool, error)
	Remove(ctx context.Context, keyOrHint string) error
	Status() []keypool.KeyStatus
	Refresh(ctx context.Context) error
	Counts() (total, available int)
}

// AnalysisCache is the subset of *resultcache.Cache used by the analysis entry point.
type AnalysisCache interface {
	Get(ctx context.Context, id resultcache.Identity) (map[string]any, bool, error)
	Put(ctx context.Context, id resultcache.Identity, analysis map[string]any) error
	SweepExpired(ctx context.Context) (int, error)
	Stats(ctx context.Context) (resultcache.Stats, error)
}

// Limiter paces outbound attempts per credential.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// Options tunes the orchestrator. Zero values fall back to defaults.
type Options struct {
	BaseURL          string
	Referer          string
	Title            string
	PreferFree       bool
	MaxAttempts      int
	TransportRetries int
	RequestTimeout   time.Duration
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
	BackoffFactor    float64
	HTTPClient       *http.Client
	Classifier       *Classifier
	// Limiter, when set, is waited on before every HTTP attempt with the
	// credential hint as the bucket key.
	Limiter Limiter
	// Sleep waits between same-model retries; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// OptionsFromConfig maps application config onto Options.
func OptionsFromConfig(cfg config.Config) Options {
	initial, maxInterval, mult := cfg.GetAIBackoffConfig()
	return Options{
		BaseURL:          cfg.OpenRouterBaseURL,
		Referer:          cfg.OpenRouterReferer,
		Title:            cfg.OpenRouterTitle,
		PreferFree:       cfg.PreferFreeModels,
		MaxAttempts:      cfg.MaxAttempts,
		TransportRetries: cfg.TransportRetries,
		RequestTimeout:   cfg.RequestTimeout,
		BackoffInitial:   initial,
		BackoffMax:       maxInterval,
		BackoffFactor:    mult,
	}
}

func (o *Options) applyDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://openrouter.ai/api/v1"
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.TransportRetries < 0 {
		o.TransportRetries = 0
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 60 * time.Second
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 10 * time.Second
	}
	if o.BackoffFactor < 1 {
		o.BackoffFactor = 2
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if o.Classifier == nil {
		c := DefaultClassifier
		o.Classifier = &c
	}
	if o.Sleep == nil {
		o.Sleep = sleepCtx
	}
}

// Client is the request orchestrator. It is safe for concurrent use; the
// credential pool, resolver memory and cache are shared by every call.
type Client struct {
	opts     Options
	pool     CredentialPool
	resolver *resolver.Resolver
	cache    AnalysisCache
	tokens   *tokencount.Counter

	preferFree atomic.Bool

	credMu    sync.Mutex
	credKey   string
	credSpent bool
}

// New wires an orchestrator. cache may be nil when analysis caching is off.
func New(pool CredentialPool, res *resolver.Resolver, cache AnalysisCache, opts Options) *Client {
	opts.applyDefaults()
	c := &Client{
		opts:     opts,
		pool:     pool,
		resolver: res,
		cache:    cache,
		tokens:   tokencount.Default,
	}
	c.preferFree.Store(opts.PreferFree)
	_, avail := pool.Counts()
	observability.SetKeysAvailable(avail)
	return c
}

// Resolver exposes the model resolver for diagnostics.
func (c *Client) Resolver() *resolver.Resolver { return c.resolver }

type chatBody struct {
	Model       string           `json:"model"`
	Messages    []domain.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Stream      bool             `json:"stream"`
}

// send performs exactly one HTTP attempt and classifies it.
func (c *Client) send(ctx context.Context, key, model string, req domain.ChatRequest) (*domain.Completion, Classification) {
	b, err := json.Marshal(chatBody{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, Classification{Kind: domain.KindRejected, Message: fmt.Sprintf("encode request: %v", err)}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()
	r, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.opts.BaseURL+completionsPath, bytes.NewReader(b))
	if err != nil {
		return nil, Classification{Kind: domain.KindRejected, Message: fmt.Sprintf("build request: %v", err)}
	}
	c.setHeaders(r, key)

	start := time.Now()
	resp, err := c.opts.HTTPClient.Do(r)
	if err != nil {
		cls := c.opts.Classifier.Classify(0, nil, err)
		observability.ObserveAIRequest(model, outcomeLabel(cls.Kind), time.Since(start))
		return nil, cls
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		cls := c.opts.Classifier.Classify(0, nil, fmt.Errorf("read body: %w", err))
		cls.Status = resp.StatusCode
		observability.ObserveAIRequest(model, outcomeLabel(cls.Kind), time.Since(start))
		return nil, cls
	}

	cls := c.opts.Classifier.Classify(resp.StatusCode, raw, nil)
	var comp *domain.Completion
	if cls.OK() {
		comp = c.parseCompletion(raw, model, req.Messages)
		if req.ExpectJSON {
			if _, err := respjson.Extract(comp.Content); err != nil {
				cls.Kind = domain.KindMalformedResponse
				cls.Message = err.Error()
				comp = nil
			}
		}
	}
	observability.ObserveAIRequest(model, outcomeLabel(cls.Kind), time.Since(start))
	if !cls.OK() {
		slog.Debug("openrouter attempt failed",
			slog.String("model", model),
			slog.Int("status", cls.Status),
			slog.String("kind", string(cls.Kind)),
			slog.String("code", cls.Code),
			slog.String("provider", cls.Provider),
			slog.String("x_request_id", resp.Header.Get("X-Request-Id")),
			slog.String("message", cls.Message))
	}
	return comp, cls
}

func (c *Client) setHeaders(r *http.Request, key string) {
	r.Header.Set("Authorization", "Bearer "+key)
	r.Header.Set("Content-Type", "application/json")
	if c.opts.Referer != "" {
		r.Header.Set("HTTP-Referer", c.opts.Referer)
	}
	if c.opts.Title != "" {
		r.Header.Set("X-Title", c.opts.Title)
	}
	// Opt in to every provider data policy so free-tier routes stay eligible.
	for i := 1; i <= 4; i++ {
		r.Header.Set(fmt.Sprintf("Data-Policy-%d", i), "on")
	}
}

// parseCompletion assumes the body already passed the classifier.
func (c *Client) parseCompletion(raw []byte, requested string, msgs []domain.Message) *domain.Completion {
	res := gjson.ParseBytes(raw)
	comp := &domain.Completion{
		ID:      res.Get("id").String(),
		Model:   res.Get("model").String(),
		Content: res.Get("choices.0.message.content").String(),
		Raw:     raw,
		Usage: domain.Usage{
			PromptTokens:     int(res.Get("usage.prompt_tokens").Int()),
			CompletionTokens: int(res.Get("usage.completion_tokens").Int()),
			TotalTokens:      int(res.Get("usage.total_tokens").Int()),
		},
	}
	if comp.Model == "" {
		comp.Model = requested
	} else if comp.Model != requested {
		slog.Debug("model substitution detected",
			slog.String("requested_model", requested),
			slog.String("actual_model", comp.Model))
	}
	if comp.Usage.TotalTokens == 0 {
		comp.Usage = c.tokens.Estimate(msgs, comp.Content, requested)
	}
	return comp
}

func (c *Client) newBackoff() backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.opts.BackoffInitial
	expo.MaxInterval = c.opts.BackoffMax
	expo.Multiplier = c.opts.BackoffFactor
	expo.MaxElapsedTime = 0
	expo.Reset()
	return expo
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func outcomeLabel(k domain.ErrorKind) string {
	if k == domain.KindNone {
		return "ok"
	}
	return string(k)
}

// acquire returns the held credential, selecting one when none is usable.
func (c *Client) acquire(ctx context.Context) (string, bool) {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	if c.credKey != "" && !c.credSpent {
		return c.credKey, true
	}
	cred, ok := c.pool.SelectNext(ctx)
	c.publishAvailability()
	if !ok {
		return "", false
	}
	c.credKey, c.credSpent = cred.Key, false
	return cred.Key, true
}

// rotate flags failed as exhausted and moves to the next credential. When a
// concurrent orchestration already rotated, its fresh key is reused. With an
// empty pool the failed key stays held (spent) so fallback can continue on
// models that accept it, and rotate reports false.
func (c *Client) rotate(ctx context.Context, failed string) (string, bool) {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	if err := c.pool.MarkExhausted(ctx, failed); err != nil && !errors.Is(err, domain.ErrNotFound) {
		slog.Warn("mark credential exhausted failed", slog.String("key_hint", keypool.Hint(failed)), slog.Any("error", err))
	}
	if c.credKey != "" && c.credKey != failed && !c.credSpent {
		c.publishAvailability()
		return c.credKey, true
	}
	cred, ok := c.pool.SelectNext(ctx)
	c.publishAvailability()
	if !ok {
		c.credKey, c.credSpent = failed, true
		slog.Warn("credential pool exhausted", slog.String("key_hint", keypool.Hint(failed)))
		return failed, false
	}
	observability.RecordKeyRotation()
	slog.Info("rotated credential",
		slog.String("from", keypool.Hint(failed)),
		slog.String("to", keypool.Hint(cred.Key)))
	c.credKey, c.credSpent = cred.Key, false
	return cred.Key, true
}

// dropCredential forgets the held credential if it matches keyOrHint.
func (c *Client) dropCredential(keyOrHint string) {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	if c.credKey != "" && (c.credKey == keyOrHint || keypool.Hint(c.credKey) == keyOrHint) {
		c.credKey, c.credSpent = "", false
	}
}

func (c *Client) publishAvailability() {
	_, avail := c.pool.Counts()
	observability.SetKeysAvailable(avail)
}
