package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"scentroute-cloud/internal/audit"
	"scentroute-cloud/internal/observability/logging"
	reconcileapp "scentroute-cloud/internal/reconcile/application"
)

// Handler exposes the sweep to external schedulers.
type Handler struct {
	runner      reconcileapp.Runner
	auditLogger audit.Logger
	logger      *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(runner reconcileapp.Runner, auditLogger audit.Logger, logger *zap.Logger) (*Handler, error) {
	if runner == nil {
		return nil, errors.New("reconcile handler: nil runner")
	}
	return &Handler{runner: runner, auditLogger: auditLogger, logger: logging.OrNop(logger)}, nil
}

// Register mounts the reconcile routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/v1/reconcile/run", h.handleRun)
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.ReconcileNow(r.Context())
	if err != nil {
		h.logger.Error("reconcile run failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
	audit.Record(r, h.auditLogger, h.logger, "reconcile.run", "reconcile", result.Cutoff.Format("2006-01-02"), map[string]any{
		"found":     result.Found,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	})
}
