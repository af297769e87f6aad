package observability

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/airdrop-analyzer/internal/config"
)

func TestSetupLogger_DevAndProd(t *testing.T) {
	assert.NotNil(t, SetupLogger(config.Config{AppEnv: "dev", OTELServiceName: "svc"}))
	assert.NotNil(t, SetupLogger(config.Config{AppEnv: "prod", OTELServiceName: "svc"}))
}

func TestLogger_RedactsKeysAndRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	lg := newLogger(&buf, config.Config{AppEnv: "prod", OTELServiceName: "svc"})
	lg.Debug("hidden")
	lg.Info("upstream said", slog.String("message", "bad key sk-or-v1-abc123XYZ"), slog.Int("status", 401))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, "abc123XYZ")
	assert.Contains(t, out, "sk-or-v1-[redacted]")
	assert.Contains(t, out, `"service":"svc"`)
	assert.Contains(t, out, `"status":401`)
}

func TestSetupTracing_Disabled(t *testing.T) {
	shutdown, err := SetupTracing(config.Config{})
	require.NoError(t, err)
	assert.Nil(t, shutdown)
}

func TestSetupTracing_WithEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(config.Config{OTLPEndpoint: "localhost:4317", OTELServiceName: "test"})
	if err != nil {
		assert.Nil(t, shutdown)
		return
	}
	require.NotNil(t, shutdown)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)
}

func TestHTTPMetricsMiddleware_Basic(t *testing.T) {
	InitMetrics()
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	mw := HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))
	mw.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusNoContent, rec.Result().StatusCode)
}

func TestMetricHelpers(t *testing.T) {
	InitMetrics()
	InitMetrics()

	before := testutil.ToFloat64(AnalysisCacheLookupsTotal.WithLabelValues("hit"))
	RecordCacheLookup(true)
	RecordCacheLookup(false)
	assert.Equal(t, before+1, testutil.ToFloat64(AnalysisCacheLookupsTotal.WithLabelValues("hit")))

	SetKeysAvailable(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(AIKeysAvailable))

	rot := testutil.ToFloat64(AIKeyRotationsTotal)
	RecordKeyRotation()
	assert.Equal(t, rot+1, testutil.ToFloat64(AIKeyRotationsTotal))

	ObserveAIRequest("x/y", "succeeded", 120*time.Millisecond)
	RecordFallback("x/y")
	RecordOrchestration("succeeded")
	RecordPipelinePost("stored")
	ObserveAirdropRating(6)
	ObserveAirdropRating(42)
	RecordEventPublish(true)
	RecordEventPublish(false)
}
