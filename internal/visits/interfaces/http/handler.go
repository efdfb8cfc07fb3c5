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
	visitapp "scentroute-cloud/internal/visits/application"
	visits "scentroute-cloud/internal/visits/domain"
)

const (
	timeLayout = time.RFC3339
	dateLayout = "2006-01-02"
)

// Handler serves visit, visit point and service point endpoints.
type Handler struct {
	manual      *visitapp.ManualVisitService
	quantity    *visitapp.QuantityService
	points      *visitapp.ServicePointService
	loc         *time.Location
	auditLogger audit.Logger
	logger      *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(
	manual *visitapp.ManualVisitService,
	quantity *visitapp.QuantityService,
	points *visitapp.ServicePointService,
	loc *time.Location,
	auditLogger audit.Logger,
	logger *zap.Logger,
) (*Handler, error) {
	if manual == nil {
		return nil, errors.New("visits handler: nil manual visit service")
	}
	if quantity == nil {
		return nil, errors.New("visits handler: nil quantity service")
	}
	if points == nil {
		return nil, errors.New("visits handler: nil service point service")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		manual:      manual,
		quantity:    quantity,
		points:      points,
		loc:         loc,
		auditLogger: auditLogger,
		logger:      logging.OrNop(logger),
	}, nil
}

// Register mounts the visit routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/visits", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{visitID}", h.handleGet)
		r.Post("/{visitID}/complete", h.handleComplete)
	})
	r.Get("/api/v1/visit-points/{pointID}/quantity", h.handleQuantity)
	r.Put("/api/v1/visit-points/{pointID}/quantity", h.handleSetOverride)
	r.Post("/api/v1/service-points", h.handleCreateServicePoint)
	r.Put("/api/v1/service-points/{servicePointID}/refill-amount", h.handleRefillAmount)
	r.Get("/api/v1/customers/{customerID}/service-points", h.handleListServicePoints)
}

type visitResponse struct {
	ID                string                   `json:"id"`
	CustomerID        string                   `json:"customer_id,omitempty"`
	OneTimeCustomerID string                   `json:"one_time_customer_id,omitempty"`
	WorkerID          string                   `json:"worker_id"`
	ScheduledAt       string                   `json:"scheduled_at"`
	Status            string                   `json:"status"`
	OrderNumber       *int                     `json:"order_number,omitempty"`
	Notes             string                   `json:"notes,omitempty"`
	TemplateID        string                   `json:"template_id,omitempty"`
	StationID         string                   `json:"station_id,omitempty"`
	Points            []visitapp.ResolvedPoint `json:"points,omitempty"`
}

type servicePointRequest struct {
	ID           string `json:"id"`
	CustomerID   string `json:"customer_id"`
	DeviceType   string `json:"device_type"`
	ScentType    string `json:"scent_type"`
	RefillAmount int    `json:"refill_amount"`
}

type servicePointResponse servicePointRequest

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	date, err := time.ParseInLocation(dateLayout, r.URL.Query().Get("date"), h.loc)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	from, to := visits.DayBounds(date, h.loc)
	list, err := h.quantity.ListVisits(r.Context(), r.URL.Query().Get("worker_id"), from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := make([]visitResponse, 0, len(list))
	for _, v := range list {
		resp = append(resp, h.toVisitResponse(v, nil))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req visitapp.ManualVisitInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	visit, err := h.manual.CreateVisit(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toVisitResponse(*visit, nil))
	audit.Record(r, h.auditLogger, h.logger, "visit.create", "visit", visit.ID, map[string]any{
		"customer_id": visit.CustomerID,
		"worker_id":   visit.WorkerID,
		"points":      len(req.Points),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	detail, err := h.quantity.VisitDetail(r.Context(), chi.URLParam(r, "visitID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toVisitResponse(detail.Visit, detail.Points))
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "visitID")
	if err := h.manual.Complete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	audit.Record(r, h.auditLogger, h.logger, "visit.complete", "visit", id, nil)
}

func (h *Handler) handleQuantity(w http.ResponseWriter, r *http.Request) {
	point, err := h.quantity.ResolvedQuantity(r.Context(), chi.URLParam(r, "pointID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, point)
}

func (h *Handler) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Override *int `json:"override"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "pointID")
	point, err := h.quantity.SetOverride(r.Context(), id, req.Override)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, point)
	audit.Record(r, h.auditLogger, h.logger, "visit_point.override", "visit_point", id, map[string]any{"override": req.Override})
}

func (h *Handler) handleCreateServicePoint(w http.ResponseWriter, r *http.Request) {
	var req servicePointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	sp, err := h.points.Create(r.Context(), visits.ServicePoint(req))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, servicePointResponse(*sp))
	audit.Record(r, h.auditLogger, h.logger, "service_point.create", "service_point", sp.ID, map[string]any{"customer_id": sp.CustomerID})
}

func (h *Handler) handleRefillAmount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefillAmount int `json:"refill_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "servicePointID")
	sp, err := h.points.UpdateRefillAmount(r.Context(), id, req.RefillAmount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, servicePointResponse(*sp))
	audit.Record(r, h.auditLogger, h.logger, "service_point.refill_amount", "service_point", id, map[string]any{"refill_amount": req.RefillAmount})
}

func (h *Handler) handleListServicePoints(w http.ResponseWriter, r *http.Request) {
	list, err := h.points.ListByCustomer(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := make([]servicePointResponse, 0, len(list))
	for _, sp := range list {
		resp = append(resp, servicePointResponse(sp))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, visits.ErrInvalidVisit), errors.Is(err, visits.ErrNegativeQuantity):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, visits.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		h.logger.Error("visits request failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) toVisitResponse(v visits.Visit, points []visitapp.ResolvedPoint) visitResponse {
	return visitResponse{
		ID:                v.ID,
		CustomerID:        v.CustomerID,
		OneTimeCustomerID: v.OneTimeCustomerID,
		WorkerID:          v.WorkerID,
		ScheduledAt:       v.ScheduledAt.In(h.loc).Format(timeLayout),
		Status:            v.Status,
		OrderNumber:       v.OrderNumber,
		Notes:             v.Notes,
		TemplateID:        v.TemplateID,
		StationID:         v.StationID,
		Points:            points,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
