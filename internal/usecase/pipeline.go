// Package usecase contains application business logic services.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/respjson"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

const (
	minPostLength = 10
	defaultBatch  = 10

	tweetSystemPrompt = "You are a cryptocurrency expert specializing in identifying legitimate airdrops and token opportunities. Be thorough but concise in your analysis."
)

// Pipeline outcomes, also used as metric labels.
const (
	OutcomeStored    = "stored"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// PipelineService fetches candidate posts, has each one assessed by the
// model, stores the verdicts and publishes an event per stored analysis.
type PipelineService struct {
	Source    domain.PostSource
	AI        domain.ChatCompleter
	Repo      domain.AirdropRepository
	Publisher domain.AnalysisPublisher // optional
	Batch     int
	Delay     time.Duration
	Sleep     func(ctx context.Context, d time.Duration) error
	Now       func() time.Time
}

// NewPipelineService constructs a PipelineService. pub may be nil.
func NewPipelineService(src domain.PostSource, ai domain.ChatCompleter, repo domain.AirdropRepository, pub domain.AnalysisPublisher, batch int, delay time.Duration) PipelineService {
	return PipelineService{Source: src, AI: ai, Repo: repo, Publisher: pub, Batch: batch, Delay: delay}
}

// RunReport summarises one pipeline pass.
type RunReport struct {
	Fetched    int `json:"fetched"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	Stored     int `json:"stored"`
	Duplicates int `json:"duplicates"`
	Published  int `json:"published"`
}

// Run performs one pass. Failures on single posts are logged and counted;
// only a failed fetch or a cancelled context end the pass with an error.
func (s PipelineService) Run(ctx context.Context) (RunReport, error) {
	tracer := otel.Tracer("usecase.pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.Run")
	defer span.End()

	var rep RunReport
	lg := observability.Logger(ctx)
	batch := s.Batch
	if batch <= 0 {
		batch = defaultBatch
	}
	posts, err := s.Source.FetchPosts(ctx, batch)
	if err != nil {
		return rep, fmt.Errorf("op=pipeline.fetch: %w", err)
	}
	rep.Fetched = len(posts)
	span.SetAttributes(attribute.Int("pipeline.fetched", rep.Fetched))
	lg.Info("pipeline pass started", slog.Int("posts", rep.Fetched))

	called := false
	for i, p := range posts {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if len(strings.TrimSpace(p.Text)) < minPostLength {
			rep.Skipped++
			observability.RecordPipelinePost(OutcomeSkipped)
			lg.Info("post too short, skipped", slog.String("post_id", p.ID), slog.Int("index", i))
			continue
		}
		if called && s.Delay > 0 {
			if err := s.sleep(ctx, s.Delay); err != nil {
				return rep, err
			}
		}
		called = true

		analyzed, err := s.AnalyzePost(ctx, p)
		if err != nil {
			rep.Failed++
			observability.RecordPipelinePost(OutcomeFailed)
			lg.Warn("post analysis failed", slog.String("post_id", p.ID), slog.Any("error", err))
			continue
		}
		out, err := s.Repo.Save(ctx, analyzed)
		if err != nil {
			rep.Failed++
			observability.RecordPipelinePost(OutcomeFailed)
			lg.Error("storing analysis failed", slog.String("post_id", p.ID), slog.Any("error", err))
			continue
		}
		rating := domain.ScoreAssessment(analyzed.Assessment).Overall
		observability.ObserveAirdropRating(rating)
		if out.PostDuplicate {
			rep.Duplicates++
			observability.RecordPipelinePost(OutcomeDuplicate)
		} else {
			rep.Stored++
			observability.RecordPipelinePost(OutcomeStored)
		}
		lg.Info("post analysed",
			slog.String("post_id", p.ID),
			slog.String("project", analyzed.Assessment.ProjectName()),
			slog.String("legitimacy", analyzed.Assessment.IsLegitimate),
			slog.String("risk", analyzed.Assessment.RiskLevel),
			slog.Int("overall_rating", rating),
			slog.Bool("project_created", out.ProjectCreated))

		if s.Publisher != nil {
			if err := s.Publisher.PublishAnalysis(ctx, analyzed, out); err != nil {
				lg.Warn("publishing analysis event failed", slog.String("analysis_id", out.AnalysisID), slog.Any("error", err))
			} else {
				rep.Published++
			}
		}
	}
	span.SetAttributes(attribute.Int("pipeline.stored", rep.Stored), attribute.Int("pipeline.failed", rep.Failed))
	lg.Info("pipeline pass finished",
		slog.Int("fetched", rep.Fetched),
		slog.Int("stored", rep.Stored),
		slog.Int("duplicates", rep.Duplicates),
		slog.Int("skipped", rep.Skipped),
		slog.Int("failed", rep.Failed))
	return rep, nil
}

// AnalyzePost asks the model for an assessment of p.
func (s PipelineService) AnalyzePost(ctx context.Context, p domain.Post) (domain.AnalyzedPost, error) {
	comp, err := s.AI.ChatCompletion(ctx, domain.ChatRequest{
		Messages: []domain.Message{
			{Role: "system", Content: tweetSystemPrompt},
			{Role: "user", Content: TweetPrompt(p)},
		},
		Model:       "smart",
		Temperature: 0.2,
		MaxTokens:   1000,
		ExpectJSON:  true,
	})
	if err != nil {
		return domain.AnalyzedPost{}, fmt.Errorf("op=pipeline.analyze: %w", err)
	}
	var a domain.Assessment
	if err := respjson.Decode(comp.Content, &a); err != nil {
		return domain.AnalyzedPost{}, fmt.Errorf("op=pipeline.decode: %w", err)
	}
	raw, _ := respjson.Extract(comp.Content)
	return domain.AnalyzedPost{
		Post:       p,
		Assessment: a,
		RawJSON:    raw,
		Model:      comp.Model,
		AnalyzedAt: s.now(),
	}, nil
}

// RunPeriodic runs a pass now and then every interval until ctx ends.
func (s PipelineService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("pipeline pass failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			slog.Info("pipeline stopping")
			return
		case <-ticker.C:
		}
	}
}

func (s PipelineService) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s PipelineService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// TweetPrompt builds the assessment prompt for one post.
func TweetPrompt(p domain.Post) string {
	verified := "unverified"
	if p.Author.Verified {
		verified = "verified"
	}
	username := p.Author.Username
	if username == "" {
		username = "unknown"
	}
	var b strings.Builder
	b.WriteString("Analyze this cryptocurrency tweet for airdrop or token opportunity:\n\n")
	fmt.Fprintf(&b, "Tweet: %q\n", p.Text)
	fmt.Fprintf(&b, "Author: @%s (%s account with %d followers)\n", username, verified, p.Author.Followers)
	fmt.Fprintf(&b, "URL: %s\n\n", p.URL)
	b.WriteString(`Please provide the following assessment:
1. Is this a legitimate airdrop or token opportunity? (Yes/No/Maybe)
2. What cryptocurrency or blockchain is this related to?
3. What action is required? (e.g., follow account, submit wallet, join community)
4. Risk level (Low/Medium/High) and explanation
5. Estimated value or potential (if determinable)
6. Step-by-step guide for claiming (if applicable)

Format the response as a JSON object with the following structure:
{
  "is_legitimate": "Yes/No/Maybe",
  "related_crypto": "Blockchain/Token name",
  "required_action": "Description of required actions",
  "risk_level": "Low/Medium/High",
  "risk_explanation": "Brief explanation of risks",
  "estimated_value": "Description or range if applicable",
  "claim_steps": ["Step 1", "Step 2", ...],
  "additional_notes": "Any other relevant information",
  "token_utility": "Token use, if stated",
  "airdrop_percentage": "Share of supply for the airdrop, e.g. 5%"
}
`)
	return b.String()
}
