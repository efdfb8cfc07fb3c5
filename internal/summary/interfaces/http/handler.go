package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"scentroute-cloud/internal/audit"
	"scentroute-cloud/internal/observability/logging"
	"scentroute-cloud/internal/observability/metrics"
	summaryapp "scentroute-cloud/internal/summary/application"
	summary "scentroute-cloud/internal/summary/domain"
)

// Handler serves daily summaries and their exports.
type Handler struct {
	service     *summaryapp.Service
	auditLogger audit.Logger
	logger      *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(service *summaryapp.Service, auditLogger audit.Logger, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("summary handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger, logger: logging.OrNop(logger)}, nil
}

// Register mounts the summary routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/v1/summary", h.handleSummary)
	r.Get("/api/v1/summary/export", h.handleExport)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	out, ok := h.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = FormatXLSX
	}
	if format != FormatXLSX && format != FormatPDF {
		http.Error(w, "format must be xlsx or pdf", http.StatusBadRequest)
		return
	}
	out, ok := h.load(w, r)
	if !ok {
		return
	}

	var (
		payload     []byte
		err         error
		contentType string
	)
	switch format {
	case FormatPDF:
		payload, err = BuildSummaryPDF(out)
		contentType = "application/pdf"
	default:
		payload, err = BuildSummaryXLSX(out)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		metrics.IncExport(format, metrics.ResultError)
		h.logger.Error("summary export failed", zap.String("format", format), zap.Error(err))
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	metrics.IncExport(format, metrics.ResultSuccess)

	filename := fmt.Sprintf("summary-%s-%s.%s", out.WorkerID, out.Date, format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
	audit.Record(r, h.auditLogger, h.logger, "summary.export", "summary", out.WorkerID+"|"+out.Date, map[string]any{
		"format": format,
		"bytes":  len(payload),
	})
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*summary.DailySummary, bool) {
	query := r.URL.Query()
	out, err := h.service.DailySummary(r.Context(), query.Get("worker_id"), query.Get("date"))
	if err != nil {
		switch {
		case errors.Is(err, summary.ErrWorkerRequired), errors.Is(err, summaryapp.ErrInvalidDate):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("daily summary failed", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return nil, false
	}
	return out, true
}
