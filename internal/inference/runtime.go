// Package inference implements C7: the per-deployment runtime process the
// cluster driver spawns for every "deploy" job. It is a small standalone
// HTTP server — not the control plane's own API — launched in
// "deploy-replica" mode, fronting exactly one model deployment for its
// lifetime and shutting itself down once it has sat idle past its
// configured timeout.
package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bazaarml/controlplane/internal/apperr"
	"github.com/bazaarml/controlplane/internal/audit"
	"github.com/bazaarml/controlplane/internal/httpserver"
	"github.com/bazaarml/controlplane/internal/modelentity"
	"github.com/bazaarml/controlplane/internal/permcache"
	"github.com/bazaarml/controlplane/internal/telemetry"
	"github.com/bazaarml/controlplane/internal/updatelog"
)

// Engine is the actual model-serving backend a runtime fronts. The
// control plane never loads a model in-process; Engine is satisfied by
// whatever serving layer the deploy job's image bundles, reached over
// loopback or a local socket.
type Engine interface {
	Predict(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

	// Invoke forwards a model-type-specific operation (NDB's search/
	// insert/chat/…, NLP's insert_sample/stats/…) to the bundled serving
	// process at path, opaquely — the runtime never interprets these
	// payloads, only decides whether an update-log entry rides along.
	Invoke(ctx context.Context, method, path string, payload json.RawMessage) (json.RawMessage, error)
}

// Config parameterizes a single Runtime instance by the deployment it
// fronts.
type Config struct {
	ModelID      string
	DeploymentID string
	ModelType    string
	AllocationID string
	BazaarDir    string
	IdleTimeout  time.Duration
}

// Runtime is the chi-based HTTP server for one deployment replica.
type Runtime struct {
	cfg          Config
	engine       Engine
	perms        *permcache.Cache
	audit        *audit.Writer
	controlPl    *ControlPlaneClient
	registry     *prometheus.Registry
	logger       *slog.Logger
	idle         *IdleTimer
	stopSignal   chan struct{}
	updateLog    *updatelog.Writer
	allocationID uuid.UUID
}

func NewRuntime(cfg Config, engine Engine, perms *permcache.Cache, auditWriter *audit.Writer, cp *ControlPlaneClient, registry *prometheus.Registry, logger *slog.Logger) *Runtime {
	rt := &Runtime{
		cfg:        cfg,
		engine:     engine,
		perms:      perms,
		audit:      auditWriter,
		controlPl:  cp,
		registry:   registry,
		logger:     logger,
		stopSignal: make(chan struct{}),
	}
	rt.idle = NewIdleTimer(cfg.IdleTimeout, rt.onIdle)

	if cfg.AllocationID != "" {
		if id, err := uuid.Parse(cfg.AllocationID); err != nil {
			logger.Error("invalid ALLOCATION_ID, feedback will not be recorded", "error", err)
		} else {
			rt.allocationID = id
		}
	}
	if cfg.BazaarDir != "" {
		deploymentID, err := uuid.Parse(cfg.DeploymentID)
		if err != nil {
			logger.Error("invalid DEPLOYMENT_ID, feedback will not be recorded", "error", err)
		} else if w, err := updatelog.NewWriter(cfg.BazaarDir, deploymentID); err != nil {
			logger.Error("opening update log writer, feedback will not be recorded", "error", err)
		} else {
			rt.updateLog = w
		}
	}

	return rt
}

// Router builds the runtime's route table: predict is read-gated,
// feedback/update is write-gated, everything but /metrics is audited and
// touches the idle timer. extra registers additional routes (e.g. a
// composed enterprise-search deployment's /search and /unredact) on the
// same read-gated, audited group rather than a separate subrouter.
func (rt *Runtime) Router(extra ...func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(rt.touchIdle)

	r.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(rt.auditRequests)
		r.With(rt.perms.RequireRead).Post("/predict", rt.handlePredict)
		r.With(rt.perms.RequireWrite).Post("/feedback", rt.handleFeedback)
		rt.mountModelTypeRoutes(r)
		for _, fn := range extra {
			r.With(rt.perms.RequireRead).Group(fn)
		}
	})

	return r
}

// mountModelTypeRoutes adds the per-model-type route table on top of the
// common predict/feedback/metrics surface every deployment gets, the same
// way the enterprise-search composition is layered in via extra.
func (rt *Runtime) mountModelTypeRoutes(r chi.Router) {
	switch modelentity.Type(rt.cfg.ModelType) {
	case modelentity.TypeNDB:
		rt.mountNDBRoutes(r)
	case modelentity.TypeUDT:
		rt.mountNLPRoutes(r)
	case modelentity.TypeKnowledgeExtraction:
		rt.mountKnowledgeExtractionRoutes(r)
	}
}

// mountNDBRoutes wires NDB's retrieval-mutation surface: each of
// insert/delete/upvote/associate/implicit-feedback both forwards the
// request to the bundled NDB process and records a correction event in
// this allocation's update log, keyed by the distinct Kind the operation
// represents (so a retrain can weight them differently, per the glossary).
func (rt *Runtime) mountNDBRoutes(r chi.Router) {
	r.With(rt.perms.RequireRead).Post("/search", rt.forward(http.MethodPost, "/search"))
	r.With(rt.perms.RequireWrite).Post("/insert", rt.forwardAndLog("/insert", updatelog.KindInsert))
	r.With(rt.perms.RequireWrite).Post("/delete", rt.forwardAndLog("/delete", updatelog.KindDelete))
	r.With(rt.perms.RequireWrite).Post("/upvote", rt.forwardAndLog("/upvote", updatelog.KindUpvote))
	r.With(rt.perms.RequireWrite).Post("/associate", rt.forwardAndLog("/associate", updatelog.KindAssociate))
	r.With(rt.perms.RequireWrite).Post("/implicit-feedback", rt.forwardAndLog("/implicit-feedback", updatelog.KindImplicitUpvote))
	r.With(rt.perms.RequireRead).Get("/sources", rt.forward(http.MethodGet, "/sources"))
	r.With(rt.perms.RequireWrite).Post("/save", rt.forward(http.MethodPost, "/save"))
	r.With(rt.perms.RequireRead).Get("/pdf-blob", rt.forward(http.MethodGet, "/pdf-blob"))
	r.With(rt.perms.RequireRead).Get("/pdf-chunks", rt.forward(http.MethodGet, "/pdf-chunks"))
	r.With(rt.perms.RequireRead).Get("/highlighted-pdf", rt.forward(http.MethodGet, "/highlighted-pdf"))
	r.With(rt.perms.RequireRead).Post("/chat", rt.forward(http.MethodPost, "/chat"))
	r.With(rt.perms.RequireWrite).Post("/update-chat-settings", rt.forward(http.MethodPost, "/update-chat-settings"))
	r.With(rt.perms.RequireRead).Post("/get-chat-history", rt.forward(http.MethodPost, "/get-chat-history"))
}

// mountNLPRoutes wires the text/token classification surface: sample
// review and labeling are opaque to the runtime, forwarded as-is.
func (rt *Runtime) mountNLPRoutes(r chi.Router) {
	r.With(rt.perms.RequireWrite).Post("/insert_sample", rt.forward(http.MethodPost, "/insert_sample"))
	r.With(rt.perms.RequireRead).Get("/get_recent_samples", rt.forward(http.MethodGet, "/get_recent_samples"))
	r.With(rt.perms.RequireWrite).Post("/add_labels", rt.forward(http.MethodPost, "/add_labels"))
	r.With(rt.perms.RequireRead).Get("/get_labels", rt.forward(http.MethodGet, "/get_labels"))
	r.With(rt.perms.RequireRead).Get("/stats", rt.forward(http.MethodGet, "/stats"))
}

// mountKnowledgeExtractionRoutes wires the report and question/keyword
// surface. Unlike NDB/NLP's routes, these aren't served by the bundled
// engine process — reports and questions are control-plane-owned rows, so
// this replica proxies them to the control plane it was spawned by rather
// than to its local engine.
func (rt *Runtime) mountKnowledgeExtractionRoutes(r chi.Router) {
	// Reports live in the control plane's own reportqueue table (C6),
	// addressed at its top-level /reports resource rather than under this
	// model, so this replica injects its own model ID into the forward.
	r.With(rt.perms.RequireWrite).Post("/report/create", rt.forwardReportCreate())
	r.With(rt.perms.RequireRead).Get("/report/{id}", rt.forwardReportByID(http.MethodGet))
	r.With(rt.perms.RequireWrite).Delete("/report/{id}", rt.forwardReportByID(http.MethodDelete))
	r.With(rt.perms.RequireRead).Get("/reports", rt.forwardReportList())

	// Questions/keywords are nested under this model's own resource in
	// the control plane, so the incoming path is reused verbatim.
	r.With(rt.perms.RequireRead).Get("/questions", rt.forwardToControlPlane(http.MethodGet))
	r.With(rt.perms.RequireWrite).Post("/questions", rt.forwardToControlPlane(http.MethodPost))
	r.With(rt.perms.RequireWrite).Delete("/questions/{id}", rt.forwardToControlPlane(http.MethodDelete))
	r.With(rt.perms.RequireWrite).Post("/questions/{id}/keywords", rt.forwardToControlPlane(http.MethodPost))
}

// forwardReportCreate enqueues a report for this replica's own model,
// injecting model_id into the payload since the control plane's /reports
// endpoint is shared by every model rather than nested under one. It
// forwards as the original caller (not this replica's service identity),
// since the resulting report's team ownership is resolved from that
// caller's own session.
func (rt *Runtime) forwardReportCreate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := json.Marshal(map[string]string{"model_id": rt.cfg.ModelID})
		if err != nil {
			httpserver.RespondErr(w, http.StatusInternalServerError, "failed to build report request")
			return
		}
		result, err := rt.controlPl.ForwardAs(r.Context(), http.MethodPost, "/api/v1/reports", payload, r.Header.Get("Authorization"))
		if err != nil {
			httpserver.RespondErr(w, apperr.HTTPStatus(err), apperr.Message(err))
			return
		}
		httpserver.RespondOK(w, http.StatusAccepted, "report queued", result)
	}
}

func (rt *Runtime) forwardReportByID(method string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := fmt.Sprintf("/api/v1/reports/%s", chi.URLParam(r, "id"))
		result, err := rt.controlPl.ForwardAs(r.Context(), method, path, nil, r.Header.Get("Authorization"))
		if err != nil {
			httpserver.RespondErr(w, apperr.HTTPStatus(err), apperr.Message(err))
			return
		}
		httpserver.RespondOK(w, http.StatusOK, "ok", result)
	}
}

func (rt *Runtime) forwardReportList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := fmt.Sprintf("/api/v1/reports?model_id=%s", rt.cfg.ModelID)
		result, err := rt.controlPl.ForwardAs(r.Context(), http.MethodGet, path, nil, r.Header.Get("Authorization"))
		if err != nil {
			httpserver.RespondErr(w, apperr.HTTPStatus(err), apperr.Message(err))
			return
		}
		httpserver.RespondOK(w, http.StatusOK, "reports", result)
	}
}

// touchIdle resets the self-shutdown countdown on every request except
// the metrics scrape, so Prometheus polling never keeps a replica alive.
func (rt *Runtime) touchIdle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metrics" {
			rt.idle.Touch()
		}
		next.ServeHTTP(w, r)
	})
}

// auditRequests writes one audit entry for every non-metrics request: the
// action is "inference." plus the URL path, and the detail holds the raw
// query, the method and the redacted token. The client IP, the request
// body and the username are not logged.
func (rt *Runtime) auditRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The permission guards run inside this middleware, so the token is
		// read from the header here rather than from the request context.
		token := permcache.TokenFromContext(r.Context())
		if auth := r.Header.Get("Authorization"); token == "" && len(auth) > len("Bearer ") && auth[:len("Bearer ")] == "Bearer " {
			token = auth[len("Bearer "):]
		}
		detail, _ := json.Marshal(map[string]string{
			"query":  r.URL.RawQuery,
			"method": r.Method,
			"token":  redactToken(token),
		})
		deploymentID, _ := uuid.Parse(rt.cfg.DeploymentID)
		rt.audit.Log(audit.Entry{
			Action:     "inference." + r.URL.Path,
			Resource:   "deployment",
			ResourceID: deploymentID,
			Detail:     detail,
		})
		next.ServeHTTP(w, r)
	})
}

func (rt *Runtime) handlePredict(w http.ResponseWriter, r *http.Request) {
	var payload json.RawMessage
	if err := httpserver.Decode(r, &payload); err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := rt.engine.Predict(r.Context(), payload)
	status := "success"
	if err != nil {
		status = "error"
		telemetry.InferenceRequestsTotal.WithLabelValues(rt.cfg.DeploymentID, status).Inc()
		httpserver.RespondErr(w, apperr.HTTPStatus(err), apperr.Message(err))
		return
	}

	telemetry.InferenceRequestsTotal.WithLabelValues(rt.cfg.DeploymentID, status).Inc()
	httpserver.RespondOK(w, http.StatusOK, "prediction", result)
}

// handleFeedback records a correction against this replica's own
// allocation, so it survives in this allocation's update log file even if
// the replica is killed before the next retrain gathers it up.
func (rt *Runtime) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var payload json.RawMessage
	if err := httpserver.Decode(r, &payload); err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, err.Error())
		return
	}

	if rt.updateLog != nil {
		if err := rt.updateLog.Append(rt.allocationID, updatelog.KindUpvote, payload); err != nil {
			rt.logger.Error("appending feedback to update log", "error", err)
			httpserver.RespondErr(w, apperr.HTTPStatus(err), apperr.Message(err))
			return
		}
	}

	httpserver.RespondOK(w, http.StatusAccepted, "feedback accepted", nil)
}

// forward builds a handler that decodes the request body (if any) and
// hands it straight to the bundled engine at path, returning whatever the
// engine answers. It is used for every per-model-type operation whose
// business logic the runtime never inspects.
func (rt *Runtime) forward(method, path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodeOptional(r)
		if err != nil {
			httpserver.RespondErr(w, http.StatusBadRequest, err.Error())
			return
		}
		result, err := rt.engine.Invoke(r.Context(), method, path, payload)
		if err != nil {
			httpserver.RespondErr(w, apperr.HTTPStatus(err), apperr.Message(err))
			return
		}
		httpserver.RespondOK(w, http.StatusOK, "ok", result)
	}
}

// forwardAndLog is forward plus a durable record of the mutation in this
// allocation's update log under kind, so a future retrain can replay it
// even though the engine itself holds no memory of past corrections.
func (rt *Runtime) forwardAndLog(path string, kind updatelog.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodeOptional(r)
		if err != nil {
			httpserver.RespondErr(w, http.StatusBadRequest, err.Error())
			return
		}
		result, err := rt.engine.Invoke(r.Context(), http.MethodPost, path, payload)
		if err != nil {
			httpserver.RespondErr(w, apperr.HTTPStatus(err), apperr.Message(err))
			return
		}
		if rt.updateLog != nil {
			if err := rt.updateLog.Append(rt.allocationID, kind, payload); err != nil {
				rt.logger.Error("appending update log entry", "error", err, "kind", kind)
			}
		}
		httpserver.RespondOK(w, http.StatusOK, "ok", result)
	}
}

// forwardToControlPlane proxies a knowledge-extraction question request to
// the control plane that spawned this replica, as the original caller:
// those rows live in the control plane's own store (C1), not the bundled
// engine process.
func (rt *Runtime) forwardToControlPlane(method string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodeOptional(r)
		if err != nil {
			httpserver.RespondErr(w, http.StatusBadRequest, err.Error())
			return
		}
		path := fmt.Sprintf("/api/v1/models/%s%s", rt.cfg.ModelID, r.URL.Path)
		result, err := rt.controlPl.ForwardAs(r.Context(), method, path, payload, r.Header.Get("Authorization"))
		if err != nil {
			httpserver.RespondErr(w, apperr.HTTPStatus(err), apperr.Message(err))
			return
		}
		httpserver.RespondOK(w, http.StatusOK, "ok", result)
	}
}

// decodeOptional reads the request body as raw JSON, tolerating an empty
// body for GET/DELETE requests that carry no payload.
func decodeOptional(r *http.Request) (json.RawMessage, error) {
	if r.ContentLength == 0 {
		return nil, nil
	}
	var payload json.RawMessage
	if err := httpserver.Decode(r, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// onIdle fires once the idle timer lapses without a Touch. It checks
// with the control plane whether anything still counts this deployment
// active; if not, it reports itself stopped to the control plane and
// closes Done. A nonzero active count, or a failed check, re-arms the
// timer at once. The runtime does not stop its own cluster job.
func (rt *Runtime) onIdle() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := rt.controlPl.ActiveDeploymentCount(ctx, rt.cfg.ModelID)
	if err != nil {
		rt.logger.Error("idle check failed, staying up", "error", err)
		rt.idle.Touch()
		return
	}
	if count > 0 {
		rt.idle.Touch()
		return
	}

	rt.logger.Info("runtime idle, self-terminating", "deployment_id", rt.cfg.DeploymentID)
	if err := rt.controlPl.ReportStopped(ctx, rt.cfg.DeploymentID); err != nil {
		rt.logger.Error("reporting self-stop failed", "error", err)
	}
	close(rt.stopSignal)
}

// Done is closed once the runtime has decided to self-terminate; the
// hosting main() should select on it alongside signal.NotifyContext.
func (rt *Runtime) Done() <-chan struct{} {
	return rt.stopSignal
}

func redactToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
