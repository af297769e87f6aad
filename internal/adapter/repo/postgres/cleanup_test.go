package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/repo/postgres"
)

func countRow(n int64) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*int64)) = n
		return nil
	}
}

func TestCleanupService_CleanupOldData_OK(t *testing.T) {
	pool := newPoolStub()
	pool.rows["DELETE FROM ai_analysis"] = countRow(3)
	pool.rows["DELETE FROM twitter_data"] = countRow(2)
	pool.rows["DELETE FROM tokenomics"] = countRow(1)
	svc := postgres.NewCleanupService(pool, 30)

	res, err := svc.CleanupOldData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, postgres.CleanupResult{Posts: 2, Analyses: 3, Tokenomics: 1}, res)
	assert.True(t, pool.committed)

	c, ok := pool.find("DELETE FROM ai_analysis")
	require.True(t, ok)
	cutoff := c.args[0].(time.Time)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -30), cutoff, time.Minute)
}

func TestCleanupService_Errors(t *testing.T) {
	pool := newPoolStub()
	pool.beginErr = errors.New("begin")
	_, err := postgres.NewCleanupService(pool, 1).CleanupOldData(context.Background())
	assert.ErrorContains(t, err, "op=cleanup.begin")

	pool = newPoolStub()
	pool.rows["DELETE FROM ai_analysis"] = countRow(0)
	_, err = postgres.NewCleanupService(pool, 1).CleanupOldData(context.Background())
	assert.ErrorContains(t, err, "op=cleanup.posts")
	assert.False(t, pool.committed)

	pool = newPoolStub()
	pool.rows["DELETE FROM"] = countRow(0)
	pool.commitErr = errors.New("commit")
	_, err = postgres.NewCleanupService(pool, 1).CleanupOldData(context.Background())
	assert.ErrorContains(t, err, "op=cleanup.commit")
}

func TestCleanupService_DefaultRetention(t *testing.T) {
	svc := postgres.NewCleanupService(newPoolStub(), 0)
	assert.Equal(t, 90, svc.RetentionDays)
}

func TestCleanupService_RunPeriodic_StopsOnCancel(t *testing.T) {
	pool := newPoolStub()
	pool.rows["DELETE FROM"] = countRow(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		postgres.NewCleanupService(pool, 1).RunPeriodic(ctx, 0)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunPeriodic did not return after cancel")
	}
}
