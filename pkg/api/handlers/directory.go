package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/marmos91/concess/internal/logger"
	"github.com/marmos91/concess/pkg/directory"
)

// Reloader reloads the directory from disk. The runtime implements it so an
// API reload goes through the same path as SIGHUP.
type Reloader interface {
	Reload() error
}

// DirectoryInfo is the body of GET /api/v1/directory and of a successful
// reload.
type DirectoryInfo struct {
	Path     string    `json:"path"`
	Users    int       `json:"users"`
	Groups   int       `json:"groups"`
	LoadedAt time.Time `json:"loaded_at"`
	Digest   string    `json:"digest"`
}

// DirectoryHandler serves directory status and reloads.
type DirectoryHandler struct {
	dir      Snapshotter
	reloader Reloader
}

// NewDirectoryHandler creates a handler over dir. reloader may be nil, in
// which case reloads are refused.
func NewDirectoryHandler(dir Snapshotter, reloader Reloader) *DirectoryHandler {
	return &DirectoryHandler{dir: dir, reloader: reloader}
}

// Info handles GET /api/v1/directory.
func (h *DirectoryHandler) Info(w http.ResponseWriter, r *http.Request) {
	info, ok := h.info()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("directory not loaded"))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(info))
}

// Reload handles POST /api/v1/reload.
//
// A failed reload keeps the previous snapshot in effect and answers 500 with
// the load error. A reload with no changes succeeds.
func (h *DirectoryHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse("reload not available"))
		return
	}

	if err := h.reloader.Reload(); err != nil {
		logger.Warn("API reload failed", logger.Err(err))
		var loadErr *directory.LoadError
		if errors.As(err, &loadErr) {
			writeJSON(w, http.StatusInternalServerError, errorResponse(loadErr.Error()))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse("reload failed"))
		return
	}

	info, ok := h.info()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("directory not loaded"))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(info))
}

func (h *DirectoryHandler) info() (DirectoryInfo, bool) {
	if h.dir == nil {
		return DirectoryInfo{}, false
	}
	snap := h.dir.Snapshot()
	if snap == nil {
		return DirectoryInfo{}, false
	}
	return DirectoryInfo{
		Path:     snap.Path(),
		Users:    snap.UserCount(),
		Groups:   snap.GroupCount(),
		LoadedAt: snap.LoadedAt().UTC(),
		Digest:   snap.Digest(),
	}, true
}
