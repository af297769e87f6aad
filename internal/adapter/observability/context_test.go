package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerContext(t *testing.T) {
	ctx := context.Background()
	assert.Same(t, slog.Default(), Logger(ctx))

	lg := slog.New(slog.DiscardHandler)
	ctx = WithLogger(ctx, lg)
	assert.Same(t, lg, Logger(ctx))
	assert.Equal(t, ctx, WithLogger(ctx, nil))
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	assert.Equal(t, ctx, WithRequestID(ctx, ""))
	assert.Equal(t, "01HZX", RequestID(WithRequestID(ctx, "01HZX")))
}
