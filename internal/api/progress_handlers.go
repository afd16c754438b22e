package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/ned-harvester/internal/progress/sinks"
)

// ProgressSource is the read side of the progress tracker.
type ProgressSource interface {
	Snapshot() []sinks.PoolSnapshot
	Pool(name string) (sinks.PoolSnapshot, bool)
}

// ProgressHandler exposes read-only progress endpoints.
type ProgressHandler struct {
	source ProgressSource
	logger *zap.Logger
}

// NewProgressHandler wires the progress source and logger.
func NewProgressHandler(source ProgressSource, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{source: source, logger: logger}
}

// ListPools handles GET /v1/progress. It returns {"pools": [...]}, or 503
// when no tracker is configured.
func (h *ProgressHandler) ListPools(w http.ResponseWriter, _ *http.Request) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "progress tracking unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pools": h.source.Snapshot()})
}

// GetPool handles GET /v1/progress/{pool}. It returns {"pool": {...}}, 404
// for a pool that has not reported yet, or 503 without a tracker.
func (h *ProgressHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "progress tracking unavailable")
		return
	}
	name := strings.TrimSpace(chi.URLParam(r, "pool"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "pool is required")
		return
	}
	snap, ok := h.source.Pool(name)
	if !ok {
		writeError(w, http.StatusNotFound, "pool not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pool": snap})
}
