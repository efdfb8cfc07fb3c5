package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"scentroute-cloud/internal/audit"
	"scentroute-cloud/internal/observability/logging"
	scheduleapp "scentroute-cloud/internal/schedule/application"
	schedule "scentroute-cloud/internal/schedule/domain"
	visits "scentroute-cloud/internal/visits/domain"
)

const timeLayout = time.RFC3339

// Handler serves the assignment calendar.
type Handler struct {
	service     *scheduleapp.Service
	auditLogger audit.Logger
	logger      *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(service *scheduleapp.Service, auditLogger audit.Logger, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("schedule handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger, logger: logging.OrNop(logger)}, nil
}

// Register mounts the schedule routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/schedule", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/{date}", h.handleGet)
		r.Put("/{date}", h.handleAssign)
		r.Delete("/{date}", h.handleUnassign)
	})
}

type assignmentResponse struct {
	ID         string `json:"id"`
	Date       string `json:"date"`
	TemplateID string `json:"template_id"`
	UpdatedAt  string `json:"updated_at"`
}

type assignResponse struct {
	Assignment       assignmentResponse      `json:"assignment"`
	ReplacedTemplate string                  `json:"replaced_template_id,omitempty"`
	RemovedVisits    int                     `json:"removed_visits"`
	Expansion        *visits.ExpansionResult `json:"expansion"`
}

type unassignResponse struct {
	Date          string `json:"date"`
	TemplateID    string `json:"template_id,omitempty"`
	Removed       bool   `json:"removed"`
	RemovedVisits int    `json:"removed_visits"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := make([]assignmentResponse, 0, len(list))
	for _, a := range list {
		resp = append(resp, toAssignmentResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Get(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentResponse(*a))
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TemplateID string `json:"template_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	date := chi.URLParam(r, "date")
	result, err := h.service.Assign(r.Context(), date, req.TemplateID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignResponse{
		Assignment:       toAssignmentResponse(result.Assignment),
		ReplacedTemplate: result.ReplacedTemplate,
		RemovedVisits:    result.RemovedVisits,
		Expansion:        result.Expansion,
	})
	audit.Record(r, h.auditLogger, h.logger, "schedule.assign", "schedule", result.Assignment.Date, map[string]any{
		"template_id":          req.TemplateID,
		"replaced_template_id": result.ReplacedTemplate,
		"created_visits":       result.Expansion.Created,
	})
}

func (h *Handler) handleUnassign(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Unassign(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, unassignResponse(*result))
	if result.Removed {
		audit.Record(r, h.auditLogger, h.logger, "schedule.unassign", "schedule", result.Date, map[string]any{
			"template_id":    result.TemplateID,
			"removed_visits": result.RemovedVisits,
		})
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrInvalidDate), errors.Is(err, schedule.ErrInvalidRange), errors.Is(err, schedule.ErrTemplateRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, schedule.ErrNotFound), errors.Is(err, schedule.ErrTemplateNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		h.logger.Error("schedule request failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toAssignmentResponse(a schedule.Assignment) assignmentResponse {
	return assignmentResponse{
		ID:         a.ID,
		Date:       a.Date,
		TemplateID: a.TemplateID,
		UpdatedAt:  a.UpdatedAt.Format(timeLayout),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
