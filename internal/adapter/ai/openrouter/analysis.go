package openrouter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/respjson"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/resultcache"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

// Generation settings per entry point.
const (
	analysisTemperature = 0.2
	analysisMaxTokens   = 2000
	textTemperature     = 0.3
	codeTemperature     = 0.1
	codeMaxTokens       = 2000
	scrapeTemperature   = 0.5
	scrapeMaxTokens     = 1500
)

// GenerateProjectAnalysis returns a structured project analysis, served from
// the cache when useCache is set and a fresh entry exists. Orchestration
// failures are reported in the result (Success=false with Kind); the error
// return is reserved for invalid input.
func (c *Client) GenerateProjectAnalysis(ctx context.Context, f domain.ProjectFields, useCache bool) (*domain.AnalysisResult, error) {
	if strings.TrimSpace(f.ProjectName) == "" {
		return nil, fmt.Errorf("op=openrouter.GenerateProjectAnalysis: %w: project_name required", domain.ErrInvalidArgument)
	}
	lg := observability.Logger(ctx).With(slog.String("project", f.ProjectName))
	id := resultcache.IdentityOf(f)

	if useCache && c.cache != nil {
		analysis, ok, err := c.cache.Get(ctx, id)
		if err != nil {
			lg.Warn("analysis cache read failed", slog.Any("error", err))
		}
		observability.RecordCacheLookup(ok)
		if ok {
			lg.Info("analysis served from cache")
			return &domain.AnalysisResult{Success: true, Analysis: analysis, Source: domain.SourceCache}, nil
		}
	}

	model := "smart"
	if c.PreferFree() {
		model = "free-analysis"
	}
	comp, err := c.ChatCompletion(ctx, domain.ChatRequest{
		Messages: []domain.Message{
			{Role: "system", Content: projectAnalysisSystem},
			{Role: "user", Content: ProjectPrompt(f)},
		},
		Model:       model,
		Temperature: analysisTemperature,
		MaxTokens:   analysisMaxTokens,
		ExpectJSON:  true,
	})
	if err != nil {
		return failedResult(err), nil
	}

	var analysis map[string]any
	if err := respjson.Decode(comp.Content, &analysis); err != nil {
		return &domain.AnalysisResult{
			Source: domain.SourceAPI,
			Model:  comp.Model,
			Error:  err.Error(),
			Kind:   domain.KindMalformedResponse,
		}, nil
	}

	if useCache && c.cache != nil {
		if err := c.cache.Put(ctx, id, analysis); err != nil {
			lg.Warn("analysis cache write failed", slog.Any("error", err))
		}
	}
	return &domain.AnalysisResult{Success: true, Analysis: analysis, Source: domain.SourceAPI, Model: comp.Model}, nil
}

func failedResult(err error) *domain.AnalysisResult {
	res := &domain.AnalysisResult{Source: domain.SourceAPI, Error: err.Error(), Kind: domain.KindOf(err)}
	if res.Kind == domain.KindNone {
		res.Kind = domain.ErrorKind("internal")
	}
	return res
}

// AnalyzeText asks a general crypto-analyst question. An empty model means "smart".
func (c *Client) AnalyzeText(ctx context.Context, text, instruction, model string) (*domain.Completion, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("op=openrouter.AnalyzeText: %w: text required", domain.ErrInvalidArgument)
	}
	if model == "" {
		model = "smart"
	}
	return c.ChatCompletion(ctx, domain.ChatRequest{
		Messages: []domain.Message{
			{Role: "system", Content: withInstruction(textAnalysisSystem, instruction)},
			{Role: "user", Content: text},
		},
		Model:       model,
		Temperature: textTemperature,
	})
}

// AnalyzeCode reviews or generates code with a code-oriented model.
func (c *Client) AnalyzeCode(ctx context.Context, code, instruction string) (*domain.Completion, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("op=openrouter.AnalyzeCode: %w: code required", domain.ErrInvalidArgument)
	}
	model := "powerful"
	if c.PreferFree() {
		model = "free-code"
	}
	return c.ChatCompletion(ctx, domain.ChatRequest{
		Messages: []domain.Message{
			{Role: "system", Content: withInstruction(codeSystem, instruction)},
			{Role: "user", Content: code},
		},
		Model:       model,
		Temperature: codeTemperature,
		MaxTokens:   codeMaxTokens,
	})
}

// ScrapeAssist gives scraping strategy advice for a query.
func (c *Client) ScrapeAssist(ctx context.Context, query string) (*domain.Completion, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("op=openrouter.ScrapeAssist: %w: query required", domain.ErrInvalidArgument)
	}
	model := "fast"
	if c.PreferFree() {
		model = "free-scraper"
	}
	return c.ChatCompletion(ctx, domain.ChatRequest{
		Messages: []domain.Message{
			{Role: "system", Content: scrapeAssistSystem},
			{Role: "user", Content: query},
		},
		Model:       model,
		Temperature: scrapeTemperature,
		MaxTokens:   scrapeMaxTokens,
	})
}
