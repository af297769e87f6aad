package postgres

import (
	"context"
	"fmt"
)

// Schema creates the airdrop tables. Every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS projects (
	id             TEXT PRIMARY KEY,
	project_name   TEXT NOT NULL UNIQUE,
	token_symbol   TEXT,
	description    TEXT,
	website_url    TEXT,
	twitter_handle TEXT,
	discovery_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_updated   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS twitter_data (
	id               TEXT PRIMARY KEY,
	project_id       TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	tweet_id         TEXT NOT NULL UNIQUE,
	tweet_text       TEXT NOT NULL,
	tweet_url        TEXT,
	author_name      TEXT,
	author_username  TEXT,
	followers_count  INTEGER NOT NULL DEFAULT 0,
	verified         BOOLEAN NOT NULL DEFAULT FALSE,
	engagement_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	collected_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ai_analysis (
	id               TEXT PRIMARY KEY,
	project_id       TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	legitimacy_score INTEGER NOT NULL,
	potential_score  INTEGER NOT NULL,
	revenue_estimate TEXT,
	risk_level       TEXT NOT NULL,
	overall_rating   INTEGER NOT NULL,
	analysis_text    JSONB NOT NULL,
	ai_model_used    TEXT NOT NULL,
	analysis_date    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS ai_analysis_project_date_idx ON ai_analysis (project_id, analysis_date DESC);

CREATE TABLE IF NOT EXISTS tokenomics (
	id                 TEXT PRIMARY KEY,
	project_id         TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	airdrop_percentage DOUBLE PRECISION,
	token_utility      TEXT,
	token_type         TEXT NOT NULL DEFAULT 'Unknown',
	blockchain         TEXT,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, p PgxPool) error {
	if _, err := p.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("op=postgres.EnsureSchema: %w", err)
	}
	return nil
}
