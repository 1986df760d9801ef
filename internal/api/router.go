// Package api exposes the lifecycle operations over JSON HTTP.
package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/lifecycle"
	"passport-tracker/internal/models"
	"passport-tracker/internal/search"
	"passport-tracker/internal/workflow"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 20

// Lifecycle is the set of operations the API serves. *lifecycle.Service
// implements it.
type Lifecycle interface {
	Submit(ctx context.Context, p models.Principal, req models.SubmitRequest) (*models.Application, error)
	Track(ctx context.Context, p models.Principal, number string) (*models.ApplicationView, error)
	ListOwn(ctx context.Context, p models.Principal) ([]*models.Application, error)
	UploadDocument(ctx context.Context, p models.Principal, number string, upload models.DocumentUpload) (*models.Document, error)
	OfficerQueue(ctx context.Context, p models.Principal, limit int) ([]*models.QueueItem, error)
	StartStage(ctx context.Context, p models.Principal, stageID, remarks string) (*workflow.Result, error)
	ApproveStage(ctx context.Context, p models.Principal, stageID, remarks string) (*workflow.Result, error)
	RejectStage(ctx context.Context, p models.Principal, stageID, reason string) (*workflow.Result, error)
	Statistics(ctx context.Context, p models.Principal) (*models.Statistics, error)
	EstimationAccuracy(ctx context.Context, p models.Principal) (*models.AccuracyReport, error)
	Notifications(ctx context.Context, p models.Principal, unreadOnly bool, limit int) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, p models.Principal, id string) error
	MarkAllNotificationsRead(ctx context.Context, p models.Principal) (int, error)
	SearchApplications(ctx context.Context, p models.Principal, q search.Query) (*search.Result, error)
}

var _ Lifecycle = (*lifecycle.Service)(nil)

// HealthCheck reports whether one backend is reachable.
type HealthCheck func(ctx context.Context) error

type Options struct {
	Version string
	// Checks are consulted by /ready, keyed by backend name.
	Checks map[string]HealthCheck
	// RequestTimeout bounds every /api/v1 request; zero means no bound.
	RequestTimeout time.Duration
}

type Handler struct {
	svc    Lifecycle
	opts   Options
	logger logger.Logger
}

// NewRouter builds the chi router: health and metrics at the root, the
// authenticated API under /api/v1.
func NewRouter(svc Lifecycle, verifier TokenVerifier, opts Options, log logger.Logger) http.Handler {
	log = log.WithFields(map[string]interface{}{"component": "api"})
	h := &Handler{svc: svc, opts: opts, logger: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observe(log))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Get("/ready", h.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(middleware.Timeout(opts.RequestTimeout))
		}
		r.Use(authenticate(verifier, log))

		r.Route("/applications", func(r chi.Router) {
			r.Post("/", h.submit)
			r.Get("/", h.listOwn)
			r.Get("/{number}", h.track)
			r.Post("/{number}/documents", h.uploadDocument)
		})

		r.Get("/officer/queue", h.officerQueue)
		r.Route("/stages/{id}", func(r chi.Router) {
			r.Post("/start", h.stageAction(workflow.ActionStart))
			r.Post("/approve", h.stageAction(workflow.ActionApprove))
			r.Post("/reject", h.stageAction(workflow.ActionReject))
		})

		r.Get("/admin/statistics", h.statistics)
		r.Get("/admin/estimation-accuracy", h.estimationAccuracy)
		r.Get("/search/applications", h.searchApplications)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.notifications)
			r.Post("/read-all", h.markAllRead)
			r.Post("/{id}/read", h.markRead)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "ROUTE_NOT_FOUND", Message: "no route for " + r.URL.Path})
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.opts.Version})
}

// ready runs every backend check with a short deadline and answers 503
// when any of them fails.
func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.opts.Checks))
	for name := range h.opts.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.opts.Checks[name](ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	body := map[string]interface{}{"status": "ready", "checks": results}
	if status != http.StatusOK {
		body["status"] = "unavailable"
	}
	writeJSON(w, status, body)
}
