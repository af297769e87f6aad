// Package postgres persists analysed airdrop posts in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
	unknownValue     = "Unknown"
)

// AirdropRepo stores projects, posts, analyses and tokenomics.
type AirdropRepo struct {
	Pool PgxPool
	now  func() time.Time
}

// NewAirdropRepo constructs an AirdropRepo with the given pool.
func NewAirdropRepo(p PgxPool) *AirdropRepo { return &AirdropRepo{Pool: p, now: time.Now} }

var _ domain.AirdropRepository = (*AirdropRepo)(nil)

// Save writes one analysed post in a single transaction: the project is
// found by name or created, the post is inserted unless its id is already
// stored, then the analysis and any tokenomics hints are appended.
func (r *AirdropRepo) Save(ctx context.Context, a domain.AnalyzedPost) (domain.StoreOutcome, error) {
	tracer := otel.Tracer("repo.airdrops")
	ctx, span := tracer.Start(ctx, "airdrops.Save")
	defer span.End()

	var out domain.StoreOutcome
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return out, fmt.Errorf("op=airdrop.save_begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := r.now().UTC()
	name := a.Assessment.ProjectName()
	span.SetAttributes(attribute.String("airdrop.project", name))

	q := `INSERT INTO projects (id, project_name, token_symbol, description, twitter_handle, discovery_date, last_updated)
	VALUES ($1,$2,$3,$4,$5,$6,$6)
	ON CONFLICT (project_name) DO UPDATE SET last_updated=EXCLUDED.last_updated
	RETURNING id, (xmax = 0)`
	err = tx.QueryRow(ctx, q, uuid.NewString(), name,
		nullable(domain.TokenSymbolFor(name)),
		domain.DiscoveryDescription(a.Post.Text),
		nullable(a.Post.Author.Username),
		now,
	).Scan(&out.ProjectID, &out.ProjectCreated)
	if err != nil {
		return out, fmt.Errorf("op=airdrop.save_project: %w", err)
	}

	postID := a.Post.ID
	if postID == "" {
		postID = "post-" + uuid.NewString()
	}
	q = `INSERT INTO twitter_data (id, project_id, tweet_id, tweet_text, tweet_url, author_name, author_username, followers_count, verified, engagement_score, collected_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	ON CONFLICT (tweet_id) DO NOTHING`
	tag, err := tx.Exec(ctx, q, uuid.NewString(), out.ProjectID, postID, a.Post.Text, a.Post.URL,
		a.Post.Author.Name, a.Post.Author.Username, a.Post.Author.Followers, a.Post.Author.Verified,
		a.Post.Score, now)
	if err != nil {
		return out, fmt.Errorf("op=airdrop.save_post: %w", err)
	}
	out.PostDuplicate = tag.RowsAffected() == 0

	raw := a.RawJSON
	if len(raw) == 0 {
		if raw, err = json.Marshal(a.Assessment); err != nil {
			return out, fmt.Errorf("op=airdrop.save_analysis: %w", err)
		}
	}
	scores := domain.ScoreAssessment(a.Assessment)
	out.AnalysisID = uuid.NewString()
	q = `INSERT INTO ai_analysis (id, project_id, legitimacy_score, potential_score, revenue_estimate, risk_level, overall_rating, analysis_text, ai_model_used, analysis_date)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err = tx.Exec(ctx, q, out.AnalysisID, out.ProjectID, scores.Legitimacy, scores.Potential,
		orUnknown(a.Assessment.EstimatedValue), riskLevel(a.Assessment.RiskLevel), scores.Overall,
		string(raw), orUnknown(a.Model), analyzedAt(a, now))
	if err != nil {
		return out, fmt.Errorf("op=airdrop.save_analysis: %w", err)
	}

	if a.Assessment.HasTokenomics() {
		var pct *float64
		if v, ok := domain.ParsePercentage(a.Assessment.AirdropPercentage); ok {
			pct = &v
		}
		q = `INSERT INTO tokenomics (id, project_id, airdrop_percentage, token_utility, token_type, blockchain, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`
		_, err = tx.Exec(ctx, q, uuid.NewString(), out.ProjectID, pct,
			nullable(a.Assessment.TokenUtility), unknownValue,
			nullable(domain.BlockchainFor(a.Assessment.RelatedCrypto)), now)
		if err != nil {
			return out, fmt.Errorf("op=airdrop.save_tokenomics: %w", err)
		}
		out.TokenomicsStored = true
	}

	if err := tx.Commit(ctx); err != nil {
		return out, fmt.Errorf("op=airdrop.save_commit: %w", err)
	}
	return out, nil
}

// ListLatest returns projects ordered by their most recent analysis.
func (r *AirdropRepo) ListLatest(ctx context.Context, limit int) ([]domain.ProjectSummary, error) {
	tracer := otel.Tracer("repo.airdrops")
	ctx, span := tracer.Start(ctx, "airdrops.ListLatest")
	defer span.End()

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	q := `SELECT p.id, p.project_name, COALESCE(p.token_symbol,''), COALESCE(p.twitter_handle,''),
		a.legitimacy_score, a.potential_score, a.overall_rating, a.risk_level, a.analysis_date
	FROM projects p
	JOIN LATERAL (
		SELECT legitimacy_score, potential_score, overall_rating, risk_level, analysis_date
		FROM ai_analysis WHERE project_id = p.id
		ORDER BY analysis_date DESC LIMIT 1
	) a ON TRUE
	ORDER BY a.analysis_date DESC
	LIMIT $1`
	rows, err := r.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("op=airdrop.list_latest: %w", err)
	}
	defer rows.Close()

	var out []domain.ProjectSummary
	for rows.Next() {
		var s domain.ProjectSummary
		if err := rows.Scan(&s.ID, &s.ProjectName, &s.TokenSymbol, &s.TwitterHandle,
			&s.LegitimacyScore, &s.PotentialScore, &s.OverallRating, &s.RiskLevel, &s.AnalyzedAt); err != nil {
			return nil, fmt.Errorf("op=airdrop.list_latest_scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=airdrop.list_latest_rows: %w", err)
	}
	return out, nil
}

func nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknownValue
	}
	return s
}

// riskLevel defaults to High when the model gave no level.
func riskLevel(s string) string {
	if strings.TrimSpace(s) == "" {
		return "High"
	}
	return s
}

func analyzedAt(a domain.AnalyzedPost, now time.Time) time.Time {
	if a.AnalyzedAt.IsZero() {
		return now
	}
	return a.AnalyzedAt.UTC()
}
