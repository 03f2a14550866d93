package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rickgao/lot-auctions/internal/api"
	"github.com/rickgao/lot-auctions/internal/auction"
	"github.com/rickgao/lot-auctions/internal/version"
)

// Clock reports the number of running auction clock tasks.
type Clock interface {
	Len() int
}

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP request handlers.
type Handler struct {
	engine *auction.Engine
	clock  Clock
	db     Pinger // nil for the memory store
	logger *slog.Logger
}

// New creates a handler set. db may be nil.
func New(engine *auction.Engine, clock Clock, db Pinger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine: engine,
		clock:  clock,
		db:     db,
		logger: logger,
	}
}

// Register adds the health and API routes to r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(h.logRequests)

	v1.HandleFunc("/auctions", h.ListAuctions).Methods(http.MethodGet)
	v1.HandleFunc("/auctions", h.CreateAuction).Methods(http.MethodPost)
	v1.HandleFunc("/auctions/summary", h.Summary).Methods(http.MethodGet)
	v1.HandleFunc("/auctions/{id}", h.GetAuction).Methods(http.MethodGet)
	v1.HandleFunc("/auctions/{id}", h.DeleteAuction).Methods(http.MethodDelete)
	v1.HandleFunc("/auctions/{id}/cancel", h.CancelAuction).Methods(http.MethodPost)
	v1.HandleFunc("/auctions/{id}/bids", h.ListBids).Methods(http.MethodGet)
	v1.HandleFunc("/auctions/{id}/bids", h.PlaceBid).Methods(http.MethodPost)
	v1.HandleFunc("/config/antisniping", h.GetAntiSniping).Methods(http.MethodGet)
	v1.HandleFunc("/config/antisniping", h.SetAntiSniping).Methods(http.MethodPut)
}

// Health reports liveness, build version and clock task count.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := api.HealthResponse{
		Status:     "healthy",
		Version:    version.Version,
		Commit:     version.Commit,
		Components: make(map[string]any),
	}

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}
	}

	if h.clock != nil {
		health.Components["clock"] = map[string]any{"tasks": h.clock.Len()}
	}

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, health)
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// logRequests logs every API request.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
