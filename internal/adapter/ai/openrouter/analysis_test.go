package openrouter

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/resolver"
	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

func TestGenerateProjectAnalysis_CachesByIdentity(t *testing.T) {
	be := newBackend(t, func(c call, n int) (int, string) {
		return 200, completionBody("Here you go:\n```json\n{\"legitimacy_score\": 7, \"recommendation\": \"watch\"}\n```")
	})
	f := newFixture(t, be.srv.URL, nil, keyA)
	ctx := context.Background()

	fields := domain.ProjectFields{ProjectName: "LayerZero", TokenSymbol: "ZRO"}
	res, err := f.client.GenerateProjectAnalysis(ctx, fields, true)
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, domain.SourceAPI, res.Source)
	assert.EqualValues(t, 7, res.Analysis["legitimacy_score"])

	// Case and whitespace differences hit the same entry.
	res, err = f.client.GenerateProjectAnalysis(ctx, domain.ProjectFields{ProjectName: "  layerzero ", TokenSymbol: "zro"}, true)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, domain.SourceCache, res.Source)
	assert.Equal(t, "watch", res.Analysis["recommendation"])
	assert.Len(t, be.Calls(), 1)

	// Bypassing the cache always calls the backend.
	res, err = f.client.GenerateProjectAnalysis(ctx, fields, false)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceAPI, res.Source)
	assert.Len(t, be.Calls(), 2)

	st, err := f.client.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Total)
}

func TestGenerateProjectAnalysis_RequestShape(t *testing.T) {
	be := newBackend(t, func(c call, n int) (int, string) { return 200, completionBody(`{"ok":true}`) })
	f := newFixture(t, be.srv.URL, nil, keyA)

	_, err := f.client.GenerateProjectAnalysis(context.Background(), domain.ProjectFields{ProjectName: "Foo"}, false)
	require.NoError(t, err)

	f.client.SetPreferFree(true)
	_, err = f.client.GenerateProjectAnalysis(context.Background(), domain.ProjectFields{ProjectName: "Foo"}, false)
	require.NoError(t, err)

	calls := be.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, resolver.ClaudeSonnet, calls[0].Model)
	assert.Equal(t, resolver.MistralFree, calls[1].Model)

	body := calls[0].Body
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "system", body.Messages[0].Role)
	assert.Contains(t, body.Messages[0].Content, "Respond only with a valid JSON object")
	assert.Contains(t, body.Messages[1].Content, "Project Name: Foo")
	assert.InDelta(t, 0.2, body.Temperature, 1e-9)
	assert.Equal(t, 2000, body.MaxTokens)
	assert.False(t, body.Stream)
}

func TestGenerateProjectAnalysis_FailureIsReported(t *testing.T) {
	be := newBackend(t, func(c call, n int) (int, string) {
		return 200, completionBody("Sorry, I can't analyze that project.")
	})
	f := newFixture(t, be.srv.URL, nil, keyA)

	res, err := f.client.GenerateProjectAnalysis(context.Background(), domain.ProjectFields{ProjectName: "Foo"}, true)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.KindMalformedResponse, res.Kind)
	assert.NotEmpty(t, res.Error)

	st, err := f.client.CacheStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.Total, "failures are never cached")
}

func TestGenerateProjectAnalysis_RequiresName(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1", nil, keyA)
	_, err := f.client.GenerateProjectAnalysis(context.Background(), domain.ProjectFields{TokenSymbol: "X"}, true)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestProjectPrompt_FillsMissingFields(t *testing.T) {
	p := ProjectPrompt(domain.ProjectFields{ProjectName: "Foo", Investors: "a16z"})
	assert.Contains(t, p, "Project Name: Foo\n")
	assert.Contains(t, p, "Token Symbol: Unknown\n")
	assert.Contains(t, p, "Investors: a16z\n")
	assert.Contains(t, p, "Website: Not provided\n")
	assert.Contains(t, p, "## Tokenomics\n")
	assert.True(t, strings.HasSuffix(p, "- detailed_analysis (comprehensive text)"))
}

func TestEntryPoints_ModelSelection(t *testing.T) {
	be := newBackend(t, func(c call, n int) (int, string) { return 200, completionBody("answer") })
	f := newFixture(t, be.srv.URL, nil, keyA)
	ctx := context.Background()

	_, err := f.client.AnalyzeText(ctx, "what is an airdrop", "Be brief.", "")
	require.NoError(t, err)
	_, err = f.client.AnalyzeCode(ctx, "contract X {}", "")
	require.NoError(t, err)
	_, err = f.client.ScrapeAssist(ctx, "find airdrop lists")
	require.NoError(t, err)

	f.client.SetPreferFree(true)
	_, err = f.client.AnalyzeCode(ctx, "contract X {}", "")
	require.NoError(t, err)
	_, err = f.client.ScrapeAssist(ctx, "find airdrop lists")
	require.NoError(t, err)

	calls := be.Calls()
	require.Len(t, calls, 5)
	tests := []struct {
		model  string
		system string
		temp   float64
		max    int
	}{
		{resolver.ClaudeSonnet, textAnalysisSystem + " Be brief.", 0.3, 0},
		{resolver.GPT4Turbo, codeSystem, 0.1, 2000},
		{resolver.ClaudeHaiku, scrapeAssistSystem, 0.5, 1500},
		{resolver.MistralFree, codeSystem, 0.1, 2000},
		{resolver.LlamaFree, scrapeAssistSystem, 0.5, 1500},
	}
	for i, want := range tests {
		got := calls[i]
		assert.Equal(t, want.model, got.Model, "call %d", i)
		assert.Equal(t, want.system, got.Body.Messages[0].Content, "call %d", i)
		assert.InDelta(t, want.temp, got.Body.Temperature, 1e-9, "call %d", i)
		assert.Equal(t, want.max, got.Body.MaxTokens, "call %d", i)
	}

	_, err = f.client.AnalyzeText(ctx, " ", "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = f.client.AnalyzeCode(ctx, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = f.client.ScrapeAssist(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
