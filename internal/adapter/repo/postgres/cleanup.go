package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// CleanupService handles data retention for posts and analyses.
type CleanupService struct {
	Pool          PgxPool
	RetentionDays int
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(pool PgxPool, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &CleanupService{Pool: pool, RetentionDays: retentionDays}
}

// CleanupResult counts the rows removed by one pass.
type CleanupResult struct {
	Posts      int64
	Analyses   int64
	Tokenomics int64
}

// CleanupOldData removes posts, analyses and tokenomics older than the
// retention period. Projects are kept; they are the discovery history.
func (s *CleanupService) CleanupOldData(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult
	cutoff := time.Now().UTC().AddDate(0, 0, -s.RetentionDays)

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return res, fmt.Errorf("op=cleanup.begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	steps := []struct {
		name string
		q    string
		dst  *int64
	}{
		{"analyses", `WITH d AS (DELETE FROM ai_analysis WHERE analysis_date < $1 RETURNING 1) SELECT count(*) FROM d`, &res.Analyses},
		{"posts", `WITH d AS (DELETE FROM twitter_data WHERE collected_at < $1 RETURNING 1) SELECT count(*) FROM d`, &res.Posts},
		{"tokenomics", `WITH d AS (DELETE FROM tokenomics WHERE updated_at < $1 RETURNING 1) SELECT count(*) FROM d`, &res.Tokenomics},
	}
	for _, st := range steps {
		if err := tx.QueryRow(ctx, st.q, cutoff).Scan(st.dst); err != nil {
			return res, fmt.Errorf("op=cleanup.%s: %w", st.name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("op=cleanup.commit: %w", err)
	}
	slog.Info("data cleanup completed",
		slog.Int64("deleted_posts", res.Posts),
		slog.Int64("deleted_analyses", res.Analyses),
		slog.Int64("deleted_tokenomics", res.Tokenomics),
		slog.Time("cutoff", cutoff),
	)
	return res, nil
}

// RunPeriodic runs a cleanup now and then on every tick until ctx ends.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}
	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if _, err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
