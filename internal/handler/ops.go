package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/openclaw/match-session-worker/internal/errors"
	"github.com/openclaw/match-session-worker/internal/httputil"
	"github.com/openclaw/match-session-worker/internal/jobs"
)

const readinessTimeout = 3 * time.Second

// StatsProvider exposes cumulative cleanup counters.
type StatsProvider interface {
	Stats() jobs.Stats
}

// Check probes one dependency for the readiness endpoint.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type OpsHandler struct {
	cleanup StatsProvider
	checks  []Check
}

func NewOpsHandler(cleanup StatsProvider, checks ...Check) *OpsHandler {
	return &OpsHandler{cleanup: cleanup, checks: checks}
}

func (h *OpsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Get("/stats", h.Stats)

	return r
}

// GET /health
func (h *OpsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}

// GET /ready
// Probes every dependency; the first failure is reported as 503.
func (h *OpsHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	for _, check := range h.checks {
		if err := check.Probe(ctx); err != nil {
			httputil.WriteError(w, apperrors.Connectivity(check.Name, err))
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"timestamp": time.Now().UnixMilli(),
	})
}

// GET /stats
func (h *OpsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"cleanup": h.cleanup.Stats(),
	})
}
