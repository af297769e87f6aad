package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/httpserver"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/airdrop-analyzer/internal/config"
)

// ParseOrigins splits a comma-separated origin list, trimming spaces.
// An empty input yields ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
// Admin routes are mounted only when an admin token is configured.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(cfg.RequestTimeout + 30*time.Second))
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/openrouter", func(or chi.Router) {
		or.Group(func(pub chi.Router) {
			pub.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))
			pub.Post("/analyze", srv.AnalyzeHandler())
		})
		if !cfg.AdminEnabled() {
			return
		}
		or.Group(func(adm chi.Router) {
			adm.Use(httpserver.AdminGuard(cfg))
			adm.Get("/keys", srv.ListKeysHandler())
			adm.Post("/keys", srv.AddKeyHandler())
			adm.Post("/keys/reset", srv.ResetKeysHandler())
			adm.Delete("/keys/{key}", srv.RemoveKeyHandler())
			adm.Post("/keys/{key}/limit", srv.MarkKeyLimitedHandler())
			adm.Get("/models", srv.ModelsHandler())
			adm.Post("/preference", srv.PreferenceHandler())
			adm.Get("/cache/stats", srv.CacheStatsHandler())
			adm.Post("/cache/clear-expired", srv.ClearExpiredCacheHandler())
			adm.Group(func(calls chi.Router) {
				calls.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))
				calls.Post("/test", srv.TestHandler())
				calls.Post("/code", srv.CodeHandler())
				calls.Post("/scrape-assist", srv.ScrapeAssistHandler())
			})
		})
	})

	r.Get("/v1/airdrops", srv.ListAirdropsHandler())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", srv.ReadyzHandler())
	r.Handle("/metrics", promhttp.Handler())

	return httpserver.SecurityHeaders(r)
}
