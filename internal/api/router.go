package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daewon/plantops/internal/auth"
	"github.com/daewon/plantops/internal/catalog"
	"github.com/daewon/plantops/internal/docstore"
	"github.com/daewon/plantops/internal/masters"
	"github.com/daewon/plantops/internal/metrics"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Store   docstore.DocumentStore
	Masters *masters.Projection
	Catalog *catalog.Service
	// Auth is nil when authentication is disabled; every route is then open.
	Auth *auth.Service
	// Events, if non-nil, is mounted at GET /events inside the guarded group.
	Events  http.Handler
	DistDir string
	Logger  *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// NewRouter creates a chi router with all API routes, to be mounted at /api.
func NewRouter(deps Deps) chi.Router {
	h := NewHandler(deps)

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	})

	r.Group(func(r chi.Router) {
		if deps.Auth != nil {
			r.Use(APIGuard(deps.Auth))
		}

		r.Get("/session", h.GetSession)

		// Masters.
		r.Get("/masters", h.GetMasters)
		r.Get("/masters/process-tag/{code}", h.GetProcessTag)
		r.Get("/masters/stream", h.StreamMasters)
		r.Get("/masters/{vocabulary}", h.GetVocabulary)
		r.Put("/masters/{vocabulary}", h.PutVocabulary)

		// Items.
		r.Post("/item-id", h.BuildItemID)
		r.Get("/items", h.ListItems)
		r.Post("/items", h.CreateItem)
		r.Post("/items/bulk", h.CreateItemsBulk)
		r.Get("/items/{id}", h.GetItem)

		// Schema inspector.
		r.Get("/schema/{collection}", h.InspectSchema)

		// SSE endpoint (protected by same guard).
		if deps.Events != nil {
			r.Get("/events", deps.Events.ServeHTTP)
		}
	})

	return r
}

// NewServer creates the root handler: health checks, metrics, the API under
// /api and the guarded pages.
func NewServer(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		if deps.Masters == nil || !deps.Masters.Running() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Mount("/api", NewRouter(deps))
	registerWeb(r, deps)
	return r
}
