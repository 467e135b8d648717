package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/game-market/internal/model"
)

// HandleCategories returns the suggested category labels for the listing form.
//
// HTTP: GET /api/categories
func HandleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.Categories())
}

// Pinger is anything whose liveness the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports whether the app can reach its store.
type HealthHandler struct {
	deps   map[string]Pinger
	logger *slog.Logger
}

// NewHealthHandler checks every named dependency on each probe.
func NewHealthHandler(deps map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{deps: deps, logger: logger}
}

// HandleHealth answers load balancer probes.
//
// HTTP: GET /healthz
// 200 {"status":"ok"} or 503 {"status":"unavailable","failing":[...]}
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failing := []string{}
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			h.logger.Warn("health check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			failing = append(failing, name)
		}
	}

	if len(failing) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failing": failing})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
