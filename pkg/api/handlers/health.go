package handlers

import (
	"net/http"
	"time"

	"github.com/marmos91/concess/pkg/directory"
)

// Snapshotter exposes the active directory snapshot. *directory.Store
// implements it.
type Snapshotter interface {
	Snapshot() *directory.Directory
}

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Is a directory snapshot loaded?
type HealthHandler struct {
	dir Snapshotter
}

// NewHealthHandler creates a new health handler.
//
// dir may be nil, in which case the readiness probe reports unhealthy.
func NewHealthHandler(dir Snapshotter) *HealthHandler {
	return &HealthHandler{dir: dir}
}

// Liveness handles GET /health - simple liveness probe.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "concess",
	}))
}

// Readiness handles GET /health/ready - readiness probe.
//
// Returns 200 OK once a directory snapshot is loaded, 503 Service
// Unavailable otherwise. An empty directory is ready: binds and requests
// simply fail.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.dir == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("directory not initialized"))
		return
	}

	snap := h.dir.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("directory not loaded"))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"users":     snap.UserCount(),
		"groups":    snap.GroupCount(),
		"loaded_at": snap.LoadedAt().UTC().Format(time.RFC3339),
	}))
}
