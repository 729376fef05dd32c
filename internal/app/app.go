// Package app wires every control-plane component together and dispatches
// on the configured run mode. It is the only place in the codebase that
// knows about every package at once; everything else depends on narrow
// interfaces passed in from here.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bazaarml/controlplane/internal/apperr"
	"github.com/bazaarml/controlplane/internal/audit"
	"github.com/bazaarml/controlplane/internal/authn"
	"github.com/bazaarml/controlplane/internal/cluster"
	"github.com/bazaarml/controlplane/internal/config"
	"github.com/bazaarml/controlplane/internal/db"
	"github.com/bazaarml/controlplane/internal/deployment"
	"github.com/bazaarml/controlplane/internal/httpclient"
	"github.com/bazaarml/controlplane/internal/httpserver"
	"github.com/bazaarml/controlplane/internal/inference"
	"github.com/bazaarml/controlplane/internal/inference/entsearch"
	"github.com/bazaarml/controlplane/internal/license"
	"github.com/bazaarml/controlplane/internal/lifecycle"
	"github.com/bazaarml/controlplane/internal/modelentity"
	"github.com/bazaarml/controlplane/internal/permcache"
	"github.com/bazaarml/controlplane/internal/platform"
	"github.com/bazaarml/controlplane/internal/question"
	"github.com/bazaarml/controlplane/internal/reportqueue"
	"github.com/bazaarml/controlplane/internal/syntheticdata"
	"github.com/bazaarml/controlplane/internal/team"
	"github.com/bazaarml/controlplane/internal/telemetry"
	"github.com/bazaarml/controlplane/internal/updatelog"
	"github.com/bazaarml/controlplane/internal/user"
	"github.com/bazaarml/controlplane/internal/vault"
	"github.com/bazaarml/controlplane/internal/workflow"
)

// Run dispatches to the handler for cfg.Mode. Every mode owns its own
// dependency wiring rather than sharing a single "build everything" path,
// since a worker process has no business opening an HTTP listener and a
// deploy replica has no business connecting to the cluster driver.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger)
	case "worker":
		return runWorker(ctx, cfg, logger)
	case "sweeper":
		return runSweeper(ctx, cfg, logger)
	case "migrate":
		return platform.RunGlobalMigrations(cfg.DatabaseURL, cfg.MigrationsDir)
	case "deploy-replica":
		return runDeployReplica(ctx, cfg, logger)
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

func parseDuration(s, field string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	return d, nil
}

func newLifecycleManager(models *modelentity.Store, deployments *deployment.Store, cfg *config.Config, logger *slog.Logger) *lifecycle.Manager {
	clusterDriver := cluster.New(cfg.ClusterEndpoint, cfg.ClusterToken, httpclient.New(60*time.Second))
	lic := license.NewVerifier(cfg.LicensePath)
	return lifecycle.NewManager(models, deployments, clusterDriver, lic, logger, lifecycle.Config{
		DockerImage:     fmt.Sprintf("%s/controlplane-runtime:%s", cfg.DockerRegistry, cfg.DockerImageTag),
		PublicBaseURL:   cfg.PublicBaseURL,
		PrivateBaseURL:  cfg.PrivateBaseURL,
		TaskRunnerToken: cfg.TaskRunnerToken,
		BazaarDir:       cfg.BazaarDir,
	})
}

// runAPI serves the control plane's own HTTP API: auth, team/user
// management, model lifecycle, synthetic data, vault, workflows, audit,
// and the update-log relay the cluster driver's task runner posts to.
func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	sessionMaxAge, err := parseDuration(cfg.SessionMaxAge, "SESSION_MAX_AGE")
	if err != nil {
		return err
	}
	sessions, err := authn.NewSessionManager(cfg.SessionSecret, sessionMaxAge)
	if err != nil {
		return err
	}
	apiKeys := authn.NewAPIKeyStore(pool)
	pats := authn.NewPATStore(pool)
	rateLimiter := authn.NewRateLimiter(rdb, 10, time.Minute)
	authMiddleware := authn.NewMiddleware(sessions, apiKeys, pats)

	registry := telemetry.NewMetricsRegistry()

	auditWriter := audit.NewWriter(pool, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	teams := team.NewStore(pool)
	users := user.NewStore(pool)
	models := modelentity.NewStore(pool)
	deployments := deployment.NewStore(pool)

	vaultKey, err := vault.KeyFromString(cfg.VaultKey)
	if err != nil {
		return fmt.Errorf("parsing VAULT_KEY: %w", err)
	}
	vaultStore := vault.NewStore(pool, vaultKey)

	lifecycleMgr := newLifecycleManager(models, deployments, cfg, logger)
	workflowMgr := workflow.NewManager(models, lifecycleMgr, logger)

	sampler := syntheticdata.NewSampler(pool, 500, 2.0)
	var completer syntheticdata.Completer
	if cfg.AnthropicAPIKey != "" {
		completer = syntheticdata.NewAnthropicCompleter(cfg.AnthropicAPIKey)
	}
	llmPool := syntheticdata.NewLLMPool(completer, 4, cfg.BazaarDir+"/synthetic-traceback")
	syntheticMgr := syntheticdata.NewManager(sampler, completer, llmPool, cfg.BazaarDir)

	credentials := authn.NewCredentialHandler(pool, logger)
	teamHandler := team.NewHandler(teams, auditWriter, logger)
	userHandler := user.NewHandler(users, teams, sessions, rateLimiter, auditWriter, logger, authMiddleware.Require)
	questionStore := question.NewStore(pool)
	questionHandler := question.NewHandler(questionStore, logger)
	modelHandler := modelentity.NewHandler(models, auditWriter, logger, questionHandler)
	lifecycleHandler := lifecycle.NewHandler(lifecycleMgr, auditWriter, logger, authMiddleware.Require, httpserver.RequireTaskRunnerToken(cfg.TaskRunnerToken))
	syntheticHandler := syntheticdata.NewHandler(syntheticMgr, logger)
	vaultHandler := vault.NewHandler(vaultStore, logger)
	workflowHandler := workflow.NewHandler(workflowMgr, logger)
	auditHandler := audit.NewHandler(pool, logger)
	updatelogHandler := updatelog.NewHandler(cfg.BazaarDir, logger)

	reportLeaseTimeout, err := parseDuration(cfg.ReportLeaseTimeout, "REPORT_LEASE_TIMEOUT")
	if err != nil {
		return err
	}
	reportStore := reportqueue.NewStore(pool, cfg.ReportAttemptBound, reportLeaseTimeout)
	reportHandler := reportqueue.NewHandler(reportStore, logger, authMiddleware.Require, httpserver.RequireTaskRunnerToken(cfg.TaskRunnerToken))

	const minFreeBytes = uint64(1) << 30 // below this, accepting more update-log writes risks filling the bazaar volume
	diskGuard := updatelog.DiskGuard(cfg.BazaarDir, minFreeBytes)

	mountAPI := func(r chi.Router) {
		r.Mount("/users", userHandler.Routes())
		// lifecycleHandler.Routes() scopes its own two auth tiers internally
		// (session vs. task-runner token), so it mounts outside the
		// session-wide auth group below.
		r.Mount("/lifecycle", lifecycleHandler.Routes())
		// reportHandler.Routes() scopes its own two auth tiers internally
		// too (session for the interactive surface, task-runner token for
		// claim/complete), so it mounts alongside lifecycle rather than
		// inside the session-wide group below.
		r.Mount("/reports", reportHandler.Routes())

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Require)

			r.Mount("/teams", teamHandler.Routes())
			r.Mount("/models", modelHandler.Routes())
			r.Mount("/synthetic", syntheticHandler.Routes())
			r.Mount("/vault", vaultHandler.Routes())
			r.Mount("/workflows", workflowHandler.Routes())
			r.Mount("/audit", auditHandler.Routes())
			r.Mount("/api-keys", credentials.APIKeyRoutes())
			r.Mount("/user/tokens", credentials.PATRoutes())
		})

		r.With(diskGuard).Mount("/update-log", updatelogHandler.Routes())
	}

	srv := httpserver.NewServer(logger, httpserver.Config{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MetricsPath:    cfg.MetricsPath,
		DB:             pool,
		Redis:          rdb,
		Registry:       registry,
	}, mountAPI)

	return serveHTTP(ctx, cfg.ListenAddr(), srv, logger)
}

// runWorker processes the durable work queues that don't belong on the
// request path: report generation. Run alongside the sweeper, not instead
// of it — the two modes reconcile different kinds of drift.
func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	reportLeaseTimeout, err := parseDuration(cfg.ReportLeaseTimeout, "REPORT_LEASE_TIMEOUT")
	if err != nil {
		return err
	}
	pollInterval, err := parseDuration(cfg.WorkerPollInterval, "WORKER_POLL_INTERVAL")
	if err != nil {
		return err
	}

	reportStore := reportqueue.NewStore(pool, cfg.ReportAttemptBound, reportLeaseTimeout)
	models := modelentity.NewStore(pool)

	generate := func(ctx context.Context, r reportqueue.Report) ([]byte, error) {
		mdl, err := models.Get(ctx, r.ModelID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{
			"model_id":     mdl.ID,
			"model_name":   mdl.ModelName,
			"type":         mdl.Type,
			"train_status": mdl.TrainStatus,
			"generated_at": r.SubmittedAt,
		})
	}

	worker := reportqueue.NewWorker(reportStore, generate, pollInterval, logger)

	logger.Info("worker started", "poll_interval", pollInterval)
	return worker.Run(ctx)
}

// runSweeper reconciles deployments and models stuck in a non-terminal
// state after their owning job died without reporting back, so the
// control plane's view of the world never drifts permanently from the
// cluster's.
func runSweeper(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	sweeperInterval, err := parseDuration(cfg.SweeperInterval, "SWEEPER_INTERVAL")
	if err != nil {
		return err
	}

	models := modelentity.NewStore(pool)
	deployments := deployment.NewStore(pool)
	lifecycleMgr := newLifecycleManager(models, deployments, cfg, logger)

	sweeper := lifecycle.NewSweeper(lifecycleMgr, models, deployments, sweeperInterval, 30*time.Minute, logger)

	logger.Info("sweeper started", "interval", sweeperInterval)
	return sweeper.Run(ctx)
}

// runDeployReplica hosts exactly one model deployment's inference runtime.
// It is spawned by the cluster driver, not by an operator, with its
// identity baked into its environment by the deploy job template.
func runDeployReplica(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.ModelID == "" || cfg.DeploymentID == "" {
		return errors.New("deploy-replica mode requires MODEL_ID and DEPLOYMENT_ID")
	}

	idleTimeout, err := parseDuration(cfg.IdleTimeout, "IDLE_TIMEOUT")
	if err != nil {
		return err
	}

	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	apiKeys := authn.NewAPIKeyStore(pool)
	pats := authn.NewPATStore(pool)
	models := modelentity.NewStore(pool)

	fetcher := permissionFetcher(apiKeys, pats, models, cfg.ModelID)
	permCache := permcache.New(30*time.Second, fetcher)

	auditWriter := audit.NewWriter(pool, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	client := httpclient.New(30 * time.Second)
	controlPl := inference.NewControlPlaneClient(cfg.PrivateBaseURL, cfg.TaskRunnerToken, client)
	registry := telemetry.NewMetricsRegistry()
	engine := inference.NewHTTPEngine(cfg.EngineAddr, client)

	runtime := inference.NewRuntime(inference.Config{
		ModelID:      cfg.ModelID,
		DeploymentID: cfg.DeploymentID,
		ModelType:    cfg.ModelType,
		AllocationID: cfg.AllocationID,
		BazaarDir:    cfg.BazaarDir,
		IdleTimeout:  idleTimeout,
	}, engine, permCache, auditWriter, controlPl, registry, logger)

	var extra []func(chi.Router)
	if cfg.ModelType == "enterprise_search" && cfg.DependencyEndpoint != "" {
		var guardrail *entsearch.Guardrail
		if cfg.GuardrailEndpoint != "" {
			guardrail = entsearch.NewGuardrail(cfg.GuardrailEndpoint, client)
		}
		composer := entsearch.NewComposer(cfg.DependencyEndpoint, guardrail, client)
		entsearchHandler := entsearch.NewHandler(composer)
		extra = append(extra, func(r chi.Router) {
			r.Mount("/", entsearchHandler.Routes())
		})
	}

	return serveHTTPUntil(ctx, cfg.ListenAddr(), runtime.Router(extra...), runtime.Done(), logger)
}

// permissionFetcher resolves a bearer token to read/write/override
// permissions against the one model this replica fronts, without a
// dedicated control-plane round trip: the replica already has its own
// database connection, so it authenticates the token itself and compares
// the caller's team against the model's owning team and access level.
func permissionFetcher(apiKeys *authn.APIKeyStore, pats *authn.PATStore, models *modelentity.Store, modelIDStr string) permcache.Fetcher {
	modelID, parseErr := uuid.Parse(modelIDStr)

	return func(ctx context.Context, token string) (permcache.Permissions, error) {
		if parseErr != nil {
			return permcache.Permissions{}, parseErr
		}

		var (
			id  authn.Identity
			err error
		)
		switch {
		case strings.HasPrefix(token, "cp_"):
			id, err = apiKeys.Authenticate(ctx, token)
		case strings.HasPrefix(token, "cpat_"):
			id, err = pats.Authenticate(ctx, token)
		default:
			return permcache.Permissions{}, apperr.Unauthorized("unrecognized token format")
		}
		if err != nil {
			return permcache.Permissions{}, err
		}

		mdl, err := models.Get(ctx, modelID)
		if err != nil {
			return permcache.Permissions{}, err
		}

		if id.IsAdmin {
			return permcache.Permissions{Read: true, Write: true, Override: true}, nil
		}

		sameTeam := mdl.TeamID == id.TeamID
		switch mdl.AccessLevel {
		case modelentity.AccessPublic:
			return permcache.Permissions{Read: true, Write: sameTeam, Override: sameTeam}, nil
		default:
			return permcache.Permissions{Read: sameTeam, Write: sameTeam, Override: sameTeam}, nil
		}
	}
}

// serveHTTP runs handler until ctx is cancelled, then drains in-flight
// requests before returning.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	return serveHTTPUntil(ctx, addr, handler, nil, logger)
}

// serveHTTPUntil runs handler until either ctx is cancelled or done fires
// (used by deploy-replica mode's own idle self-termination), then drains
// in-flight requests before returning.
func serveHTTPUntil(ctx context.Context, addr string, handler http.Handler, done <-chan struct{}, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case <-done:
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}
