package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
	"github.com/fairyhunter13/airdrop-analyzer/internal/domain/mocks"
	"github.com/fairyhunter13/airdrop-analyzer/internal/usecase"
)

const assessmentJSON = "```json\n" + `{"is_legitimate":"Yes","related_crypto":"Scroll","required_action":"bridge","risk_level":"Low","claim_steps":["bridge","wait"],"airdrop_percentage":"7%"}` + "\n```"

func post(id, text string) domain.Post {
	return domain.Post{
		ID:     id,
		Text:   text,
		URL:    "https://x.com/s/status/" + id,
		Author: domain.Author{Username: "scroll_zkp", Followers: 1200, Verified: true},
	}
}

type pipelineFixture struct {
	src    *mocks.MockPostSource
	ai     *mocks.MockChatCompleter
	repo   *mocks.MockAirdropRepository
	pub    *mocks.MockAnalysisPublisher
	sleeps []time.Duration
	svc    usecase.PipelineService
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	f := &pipelineFixture{
		src:  mocks.NewMockPostSource(t),
		ai:   mocks.NewMockChatCompleter(t),
		repo: mocks.NewMockAirdropRepository(t),
		pub:  mocks.NewMockAnalysisPublisher(t),
	}
	f.svc = usecase.NewPipelineService(f.src, f.ai, f.repo, f.pub, 5, 2*time.Second)
	f.svc.Sleep = func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	f.svc.Now = func() time.Time { return time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC) }
	return f
}

func TestPipeline_Run_StoresAndPublishes(t *testing.T) {
	f := newPipelineFixture(t)
	posts := []domain.Post{
		post("1", "Scroll airdrop is live for early bridgers"),
		post("2", "gm"),
		post("3", "Scroll season two points announced"),
	}
	f.src.On("FetchPosts", mock.Anything, 5).Return(posts, nil).Once()
	f.ai.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(r domain.ChatRequest) bool {
		return r.Model == "smart" && r.Temperature == 0.2 && r.MaxTokens == 1000 && r.ExpectJSON &&
			len(r.Messages) == 2 && r.Messages[0].Role == "system"
	})).Return(&domain.Completion{Model: "anthropic/claude-3-sonnet", Content: assessmentJSON}, nil).Twice()
	f.repo.On("Save", mock.Anything, mock.MatchedBy(func(a domain.AnalyzedPost) bool { return a.Post.ID == "1" })).
		Return(domain.StoreOutcome{ProjectID: "p", ProjectCreated: true, AnalysisID: "a1"}, nil).Once()
	f.repo.On("Save", mock.Anything, mock.MatchedBy(func(a domain.AnalyzedPost) bool { return a.Post.ID == "3" })).
		Return(domain.StoreOutcome{ProjectID: "p", PostDuplicate: true, AnalysisID: "a3"}, nil).Once()
	f.pub.On("PublishAnalysis", mock.Anything, mock.Anything, mock.Anything).Return(nil).Twice()

	rep, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, usecase.RunReport{Fetched: 3, Skipped: 1, Stored: 1, Duplicates: 1, Published: 2}, rep)
	assert.Equal(t, []time.Duration{2 * time.Second}, f.sleeps, "delay only between model calls")

	saved := f.repo.Calls[0].Arguments.Get(1).(domain.AnalyzedPost)
	assert.Equal(t, "Scroll", saved.Assessment.RelatedCrypto)
	assert.Equal(t, []string{"bridge", "wait"}, saved.Assessment.ClaimSteps)
	assert.Equal(t, "anthropic/claude-3-sonnet", saved.Model)
	assert.JSONEq(t, `{"is_legitimate":"Yes","related_crypto":"Scroll","required_action":"bridge","risk_level":"Low","claim_steps":["bridge","wait"],"airdrop_percentage":"7%"}`, string(saved.RawJSON))
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), saved.AnalyzedAt)
}

func TestPipeline_Run_FailuresAreSkipped(t *testing.T) {
	f := newPipelineFixture(t)
	f.svc.Publisher = nil
	posts := []domain.Post{
		post("1", "first airdrop candidate text"),
		post("2", "second airdrop candidate text"),
		post("3", "third airdrop candidate text"),
	}
	f.src.On("FetchPosts", mock.Anything, 5).Return(posts, nil).Once()
	f.ai.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(r domain.ChatRequest) bool {
		return strings.Contains(r.Messages[1].Content, `Tweet: "first`)
	})).Return(nil, &domain.Error{Kind: domain.KindExhaustedAttempts, Message: "attempt limit reached"}).Once()
	f.ai.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(r domain.ChatRequest) bool {
		return strings.Contains(r.Messages[1].Content, `Tweet: "second`)
	})).Return(&domain.Completion{Content: "I cannot help with that"}, nil).Once()
	f.ai.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(r domain.ChatRequest) bool {
		return strings.Contains(r.Messages[1].Content, `Tweet: "third`)
	})).Return(&domain.Completion{Content: assessmentJSON}, nil).Once()
	f.repo.On("Save", mock.Anything, mock.Anything).Return(domain.StoreOutcome{}, errors.New("db down")).Once()

	rep, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Failed)
	assert.Zero(t, rep.Stored)
	assert.Len(t, f.sleeps, 2)
}

func TestPipeline_Run_FetchError(t *testing.T) {
	f := newPipelineFixture(t)
	f.src.On("FetchPosts", mock.Anything, 5).Return(nil, errors.New("scraper offline")).Once()

	_, err := f.svc.Run(context.Background())
	assert.ErrorContains(t, err, "op=pipeline.fetch")
}

func TestPipeline_Run_PublishErrorDoesNotFailPost(t *testing.T) {
	f := newPipelineFixture(t)
	f.src.On("FetchPosts", mock.Anything, 5).Return([]domain.Post{post("1", "an airdrop worth checking")}, nil).Once()
	f.ai.On("ChatCompletion", mock.Anything, mock.Anything).Return(&domain.Completion{Content: assessmentJSON}, nil).Once()
	f.repo.On("Save", mock.Anything, mock.Anything).Return(domain.StoreOutcome{AnalysisID: "a"}, nil).Once()
	f.pub.On("PublishAnalysis", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	rep, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Stored)
	assert.Zero(t, rep.Published)
}

func TestPipeline_Run_Cancelled(t *testing.T) {
	f := newPipelineFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.src.On("FetchPosts", mock.Anything, 5).Return([]domain.Post{post("1", "an airdrop worth checking")}, nil).Once()
	cancel()

	_, err := f.svc.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_DefaultBatch(t *testing.T) {
	f := newPipelineFixture(t)
	f.svc.Batch = 0
	f.src.On("FetchPosts", mock.Anything, 10).Return([]domain.Post{}, nil).Once()

	rep, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Fetched)
}

func TestPipeline_RunPeriodic_StopsOnCancel(t *testing.T) {
	f := newPipelineFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.src.On("FetchPosts", mock.Anything, 5).Return([]domain.Post{}, nil).Run(func(mock.Arguments) { cancel() }).Once()

	done := make(chan struct{})
	go func() {
		f.svc.RunPeriodic(ctx, time.Hour)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunPeriodic did not stop")
	}
}

func TestTweetPrompt(t *testing.T) {
	p := post("9", `Claim "ABC" now`)
	got := usecase.TweetPrompt(p)
	assert.Contains(t, got, `Tweet: "Claim \"ABC\" now"`)
	assert.Contains(t, got, "Author: @scroll_zkp (verified account with 1200 followers)")
	assert.Contains(t, got, "URL: https://x.com/s/status/9")
	assert.Contains(t, got, `"is_legitimate": "Yes/No/Maybe"`)

	p.Author = domain.Author{}
	assert.Contains(t, usecase.TweetPrompt(p), "Author: @unknown (unverified account with 0 followers)")
}
