package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netwatchlab/failover-gateway/internal/controller"
	"github.com/netwatchlab/failover-gateway/internal/dispatch"
	"github.com/netwatchlab/failover-gateway/internal/telemetry"
	"github.com/netwatchlab/failover-gateway/internal/topology"
)

// Handler holds the HTTP handlers and dependencies
type Handler struct {
	ctrl       *controller.Controller
	dispatcher *dispatch.Dispatcher
	graph      *topology.Graph
	sink       telemetry.Sink
	registry   *prometheus.Registry
	validate   *validator.Validate
	logger     *slog.Logger
	basePath   string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	ctrl *controller.Controller,
	dispatcher *dispatch.Dispatcher,
	graph *topology.Graph,
	sink telemetry.Sink,
	registry *prometheus.Registry,
	basePath string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		ctrl:       ctrl,
		dispatcher: dispatcher,
		graph:      graph,
		sink:       sink,
		registry:   registry,
		validate:   validator.New(),
		logger:     logger,
		basePath:   basePath,
	}
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.loggingMiddleware)
	r.Use(middleware.Recoverer)

	routesHandler := h.createRoutes()

	if h.basePath != "" {
		r.Mount(h.basePath, routesHandler)
	} else {
		r.Mount("/", routesHandler)
	}

	return r
}

// createRoutes creates the API routes
func (h *Handler) createRoutes() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Post("/ingest", h.Ingest)
		r.Get("/state", h.GetState)

		r.Get("/config", h.GetConfig)
		r.Post("/config", h.UpdateConfig)

		r.Post("/faults/inject", h.InjectFault)
		r.Post("/faults/remove", h.RemoveFault)

		r.Get("/incidents", h.ListIncidents)
	})

	if h.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	}
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr),
		)
		next.ServeHTTP(w, r)
	})
}

// errorResponse represents an error response
type errorResponse struct {
	Error string `json:"error"`
}

// respondJSON writes a JSON response
func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response",
			slog.String("error", err.Error()),
		)
	}
}

// respondError writes an error response
func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, errorResponse{Error: message})
}
