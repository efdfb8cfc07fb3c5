package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"scentroute-cloud/internal/audit"
	catalogapp "scentroute-cloud/internal/catalog/application"
	catalog "scentroute-cloud/internal/catalog/domain"
	"scentroute-cloud/internal/observability/logging"
)

// Handler serves template catalog endpoints.
type Handler struct {
	service     *catalogapp.Service
	auditLogger audit.Logger
	logger      *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(service *catalogapp.Service, auditLogger audit.Logger, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("catalog handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger, logger: logging.OrNop(logger)}, nil
}

// Register mounts the catalog routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/templates", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{templateID}", h.handleGet)
		r.Patch("/{templateID}", h.handleRename)
		r.Delete("/{templateID}", h.handleDelete)
		r.Post("/{templateID}/stations", h.handleAddStation)
	})
	r.Put("/api/v1/stations/{stationID}", h.handleUpdateStation)
	r.Delete("/api/v1/stations/{stationID}", h.handleRemoveStation)
}

type templateRequest struct {
	Name string `json:"name"`
}

type templateResponse struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	StationCount *int              `json:"station_count,omitempty"`
	Stations     []stationResponse `json:"stations,omitempty"`
	CreatedAt    string            `json:"created_at"`
	UpdatedAt    string            `json:"updated_at"`
}

type stationResponse struct {
	ID            string `json:"id"`
	TemplateID    string `json:"template_id"`
	CustomerID    string `json:"customer_id,omitempty"`
	WorkerID      string `json:"worker_id,omitempty"`
	Order         int    `json:"order"`
	ScheduledTime string `json:"scheduled_time"`
	Bound         bool   `json:"bound"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListTemplates(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := make([]templateResponse, 0, len(list))
	for _, item := range list {
		count := item.StationCount
		out := toTemplateResponse(item.Template)
		out.StationCount = &count
		resp = append(resp, out)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	t, err := h.service.CreateTemplate(r.Context(), req.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTemplateResponse(*t))
	audit.Record(r, h.auditLogger, h.logger, "template.create", "template", t.ID, map[string]any{"name": t.Name})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetTemplate(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := toTemplateResponse(detail.Template)
	count := len(detail.Stations)
	resp.StationCount = &count
	resp.Stations = make([]stationResponse, 0, len(detail.Stations))
	for _, s := range detail.Stations {
		resp.Stations = append(resp.Stations, toStationResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRename(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "templateID")
	t, err := h.service.RenameTemplate(r.Context(), id, req.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateResponse(*t))
	audit.Record(r, h.auditLogger, h.logger, "template.rename", "template", id, map[string]any{"name": t.Name})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "templateID")
	if err := h.service.DeleteTemplate(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	audit.Record(r, h.auditLogger, h.logger, "template.delete", "template", id, nil)
}

func (h *Handler) handleAddStation(w http.ResponseWriter, r *http.Request) {
	var req catalogapp.StationInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	templateID := chi.URLParam(r, "templateID")
	station, err := h.service.AddStation(r.Context(), templateID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStationResponse(*station))
	audit.Record(r, h.auditLogger, h.logger, "station.add", "template", templateID, stationMeta(*station))
}

func (h *Handler) handleUpdateStation(w http.ResponseWriter, r *http.Request) {
	var req catalogapp.StationInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	station, err := h.service.UpdateStation(r.Context(), chi.URLParam(r, "stationID"), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStationResponse(*station))
	audit.Record(r, h.auditLogger, h.logger, "station.update", "station", station.ID, stationMeta(*station))
}

func (h *Handler) handleRemoveStation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "stationID")
	if err := h.service.RemoveStation(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	audit.Record(r, h.auditLogger, h.logger, "station.remove", "station", id, nil)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrEmptyName), errors.Is(err, catalog.ErrInvalidTime):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, catalog.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, catalog.ErrTemplateInUse):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("catalog request failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toTemplateResponse(t catalog.Template) templateResponse {
	return templateResponse{
		ID:        t.ID,
		Name:      t.Name,
		CreatedAt: t.CreatedAt.Format(timeLayout),
		UpdatedAt: t.UpdatedAt.Format(timeLayout),
	}
}

func toStationResponse(s catalog.Station) stationResponse {
	return stationResponse{
		ID:            s.ID,
		TemplateID:    s.TemplateID,
		CustomerID:    s.CustomerID,
		WorkerID:      s.WorkerID,
		Order:         s.Order,
		ScheduledTime: s.TimeOfDay().String(),
		Bound:         s.Bound(),
	}
}

func stationMeta(s catalog.Station) map[string]any {
	return map[string]any{
		"station_id":     s.ID,
		"customer_id":    s.CustomerID,
		"worker_id":      s.WorkerID,
		"order":          s.Order,
		"scheduled_time": s.ScheduledTime,
	}
}

const timeLayout = time.RFC3339

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
