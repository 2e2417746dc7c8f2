package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/vidtube/backend/internal/logging"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler responds with service health information.
type HealthHandler struct {
	// Database is pinged on every check when set.
	Database HealthChecker
}

type healthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// Handle implements GET /healthz and GET /api/v1/healthcheck.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.Database == nil {
		respondOK(ctx, w, http.StatusOK, "OK", healthStatus{Status: "ok"})
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := h.Database.Ping(pingCtx); err != nil {
		logging.FromContext(ctx).Error("database health check failed", logging.Err(err))
		respondJSON(ctx, w, http.StatusServiceUnavailable, envelope{
			Message: "database unavailable",
			Data:    healthStatus{Status: "degraded", Database: "unreachable"},
		})
		return
	}

	respondOK(ctx, w, http.StatusOK, "OK", healthStatus{Status: "ok", Database: "ok"})
}
