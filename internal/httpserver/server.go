package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Config configures the top-level HTTP server: its global middleware
// stack, health-check dependencies, and where the API routes mount.
type Config struct {
	AllowedOrigins []string
	MetricsPath    string
	DB             *pgxpool.Pool
	Redis          *redis.Client
	Registry       *prometheus.Registry
}

// NewServer builds the control plane's root router: request ID, access
// logging, Prometheus timing, and panic recovery applied to every route,
// health/readiness checks, a metrics endpoint, and mountAPI's routes
// nested under /api/v1.
func NewServer(logger *slog.Logger, cfg Config, mountAPI func(r chi.Router)) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Metrics)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(cfg.DB, cfg.Redis))

	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if cfg.Registry != nil {
		r.Handle(metricsPath, promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", mountAPI)

	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	RespondOK(w, http.StatusOK, "ok", nil)
}

// handleReadyz checks that the database and (if configured) Redis are
// reachable, so orchestrators don't route traffic to a replica that can't
// actually serve requests yet.
func handleReadyz(pool *pgxpool.Pool, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				RespondErr(w, http.StatusServiceUnavailable, "database unreachable")
				return
			}
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				RespondErr(w, http.StatusServiceUnavailable, "redis unreachable")
				return
			}
		}

		RespondOK(w, http.StatusOK, "ready", nil)
	}
}
