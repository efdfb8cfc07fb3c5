package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"scentroute-cloud/internal/observability/logging"
)

const maxListLimit = 500

// Reader lists audit entries of one resource.
type Reader interface {
	List(ctx context.Context, resourceType, resourceID string, limit int) ([]Entry, error)
}

// Handler serves the audit trail of a resource.
type Handler struct {
	reader Reader
	logger *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(reader Reader, logger *zap.Logger) (*Handler, error) {
	if reader == nil {
		return nil, errors.New("audit handler: nil reader")
	}
	return &Handler{reader: reader, logger: logging.OrNop(logger)}, nil
}

// Register mounts the audit routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/v1/audit/{resourceType}/{resourceID}", h.handleList)
}

type entryResponse struct {
	ID            string          `json:"id"`
	Actor         string          `json:"actor"`
	Action        string          `json:"action"`
	ResourceType  string          `json:"resource_type"`
	ResourceID    string          `json:"resource_id"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	PayloadDigest string          `json:"payload_digest,omitempty"`
	IP            string          `json:"ip,omitempty"`
	UserAgent     string          `json:"user_agent,omitempty"`
	CreatedAt     string          `json:"created_at"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxListLimit {
			http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	entries, err := h.reader.List(r.Context(), chi.URLParam(r, "resourceType"), chi.URLParam(r, "resourceID"), limit)
	if err != nil {
		h.logger.Error("audit list failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	resp := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out := entryResponse{
			ID:            e.ID,
			Actor:         e.Actor,
			Action:        e.Action,
			ResourceType:  e.ResourceType,
			ResourceID:    e.ResourceID,
			PayloadDigest: e.PayloadDigest,
			IP:            e.IP,
			UserAgent:     e.UserAgent,
			CreatedAt:     e.CreatedAt.Format(time.RFC3339),
		}
		if json.Valid(e.Metadata) {
			out.Metadata = e.Metadata
		}
		resp = append(resp, out)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
