package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/keypool"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/openrouter"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/resultcache"
	"github.com/fairyhunter13/airdrop-analyzer/internal/config"
	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

const maxBodyBytes = 1 << 20

// AIService is the orchestration surface the handlers drive.
type AIService interface {
	GenerateProjectAnalysis(ctx context.Context, f domain.ProjectFields, useCache bool) (*domain.AnalysisResult, error)
	AnalyzeText(ctx context.Context, text, instruction, model string) (*domain.Completion, error)
	AnalyzeCode(ctx context.Context, code, instruction string) (*domain.Completion, error)
	ScrapeAssist(ctx context.Context, query string) (*domain.Completion, error)

	AddKey(ctx context.Context, key string) (bool, error)
	RemoveKey(ctx context.Context, keyOrHint string) error
	MarkKeyLimited(ctx context.Context, keyOrHint string) error
	ListKeys(ctx context.Context) []keypool.KeyStatus
	ResetKeys(ctx context.Context) error
	SetPreferFree(on bool)
	PreferFree() bool
	Models() openrouter.ModelsView
	CacheStats(ctx context.Context) (resultcache.Stats, error)
	ClearExpiredCache(ctx context.Context) (int, error)
}

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	AI         AIService
	Airdrops   domain.AirdropRepository
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
}

// NewServer constructs a Server. airdrops and the checks may be nil.
func NewServer(cfg config.Config, ai AIService, airdrops domain.AirdropRepository, dbCheck, redisCheck func(ctx context.Context) error) *Server {
	return &Server{Cfg: cfg, AI: ai, Airdrops: airdrops, DBCheck: dbCheck, RedisCheck: redisCheck}
}

var (
	vld     *validator.Validate
	vldOnce sync.Once
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// decodeJSON reads a JSON body into v and validates its struct tags.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", domain.ErrInvalidArgument, err)
	}
	if err := getValidator().Struct(v); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make([]string, 0, len(ve))
			for _, fe := range ve {
				fields = append(fields, fmt.Sprintf("%s:%s", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, strings.Join(fields, ","))
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

type addKeyRequest struct {
	Key string `json:"key" validate:"required,min=8,max=256"`
}

type preferenceRequest struct {
	PreferFree *bool `json:"prefer_free" validate:"required"`
}

type testRequest struct {
	Prompt string `json:"prompt" validate:"required,max=8000"`
	Model  string `json:"model" validate:"max=200"`
}

type codeRequest struct {
	Code        string `json:"code" validate:"required,max=100000"`
	Instruction string `json:"instruction" validate:"max=4000"`
}

type scrapeRequest struct {
	Query string `json:"query" validate:"required,max=4000"`
}

// ListKeysHandler lists credentials by hint.
func (s *Server) ListKeysHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys := s.AI.ListKeys(r.Context())
		available := 0
		for _, k := range keys {
			if !k.LimitReached {
				available++
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"keys": keys, "total": len(keys), "available": available})
	}
}

// AddKeyHandler adds a credential; re-adding a known one is a no-op.
func (s *Server) AddKeyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addKeyRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		added, err := s.AI.AddKey(r.Context(), strings.TrimSpace(req.Key))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		status := http.StatusOK
		if added {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]any{"added": added, "key_hint": keypool.Hint(req.Key)})
	}
}

// RemoveKeyHandler deletes a credential given by value or hint.
func (s *Server) RemoveKeyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if err := s.AI.RemoveKey(r.Context(), key); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": true})
	}
}

// MarkKeyLimitedHandler flags a credential exhausted.
func (s *Server) MarkKeyLimitedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if err := s.AI.MarkKeyLimited(r.Context(), key); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"limit_reached": true})
	}
}

// ResetKeysHandler clears every exhausted flag.
func (s *Server) ResetKeysHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.AI.ResetKeys(r.Context()); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reset": true, "keys": len(s.AI.ListKeys(r.Context()))})
	}
}

// ModelsHandler lists the model catalog.
func (s *Server) ModelsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.AI.Models())
	}
}

// PreferenceHandler toggles the free-model preference.
func (s *Server) PreferenceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req preferenceRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		s.AI.SetPreferFree(*req.PreferFree)
		writeJSON(w, http.StatusOK, map[string]any{"prefer_free": s.AI.PreferFree()})
	}
}

// TestHandler sends a single prompt through the orchestrator.
func (s *Server) TestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req testRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		comp, err := s.AI.AnalyzeText(r.Context(), req.Prompt, "", req.Model)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, comp)
	}
}

// AnalyzeHandler runs the project analysis. ?use_cache=false bypasses the
// result cache.
func (s *Server) AnalyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		useCache := true
		if v := r.URL.Query().Get("use_cache"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: use_cache must be a boolean", domain.ErrInvalidArgument), nil)
				return
			}
			useCache = b
		}
		var f domain.ProjectFields
		if err := decodeJSON(r, &f); err != nil {
			writeError(w, r, err, nil)
			return
		}
		res, err := s.AI.GenerateProjectAnalysis(r.Context(), f, useCache)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if !res.Success {
			writeError(w, r, fmt.Errorf("%w: %s", res.Kind.Sentinel(), res.Error), res)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// CodeHandler analyses a code snippet.
func (s *Server) CodeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req codeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		comp, err := s.AI.AnalyzeCode(r.Context(), req.Code, req.Instruction)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, comp)
	}
}

// ScrapeAssistHandler answers a scraping question.
func (s *Server) ScrapeAssistHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scrapeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		comp, err := s.AI.ScrapeAssist(r.Context(), req.Query)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, comp)
	}
}

// CacheStatsHandler reports result cache statistics.
func (s *Server) CacheStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := s.AI.CacheStats(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// ClearExpiredCacheHandler removes expired cache entries.
func (s *Server) ClearExpiredCacheHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := s.AI.ClearExpiredCache(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": n})
	}
}

// ListAirdropsHandler returns the latest rated projects.
func (s *Server) ListAirdropsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Airdrops == nil {
			writeError(w, r, fmt.Errorf("%w: airdrop store not configured", domain.ErrNotFound), nil)
			return
		}
		limitStr := r.URL.Query().Get("limit")
		if res := ValidateLimit(limitStr); !res.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid limit", domain.ErrInvalidArgument), res.Errors)
			return
		}
		limit, _ := strconv.Atoi(limitStr)
		items, err := s.Airdrops.ListLatest(r.Context(), limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if items == nil {
			items = []domain.ProjectSummary{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
	}
}

// ReadyzHandler pings the configured dependencies.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		type check struct {
			Name    string `json:"name"`
			OK      bool   `json:"ok"`
			Details string `json:"details,omitempty"`
		}
		var checks []check
		ready := true
		run := func(name string, fn func(context.Context) error) {
			if fn == nil {
				return
			}
			c := check{Name: name, OK: true}
			if err := fn(ctx); err != nil {
				c.OK = false
				c.Details = err.Error()
				ready = false
			}
			checks = append(checks, c)
		}
		run("db", s.DBCheck)
		run("redis", s.RedisCheck)

		keys := s.AI.ListKeys(ctx)
		usable := false
		for _, k := range keys {
			if !k.LimitReached {
				usable = true
				break
			}
		}
		kc := check{Name: "credentials", OK: usable}
		if !usable {
			kc.Details = "no usable credential"
			ready = false
		}
		checks = append(checks, kc)

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"ready": ready, "checks": checks})
	}
}
