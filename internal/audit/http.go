package audit

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// ClientIP extracts client ip from common headers or RemoteAddr.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// Actor returns the operator named in the request, or "anonymous".
func Actor(r *http.Request) string {
	if r == nil {
		return ""
	}
	if actor := strings.TrimSpace(r.Header.Get(OperatorHeader)); actor != "" {
		return actor
	}
	return "anonymous"
}

// Record writes an entry for an HTTP action. A failed write is logged, not
// returned, so the response already sent is not affected.
func Record(r *http.Request, auditLogger Logger, logger *zap.Logger, action, resourceType, resourceID string, meta map[string]any) {
	if auditLogger == nil || r == nil {
		return
	}
	payload, _ := json.Marshal(meta)
	err := auditLogger.Log(r.Context(), Entry{
		Actor:        Actor(r),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     payload,
		IP:           ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil && logger != nil {
		logger.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
