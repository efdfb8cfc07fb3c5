package audit

import (
	"context"
	"errors"
	"time"

	"scentroute-cloud/internal/store"
)

// Repository writes audit logs.
type Repository struct {
	db *store.DB
}

// NewRepository constructs an audit repository.
func NewRepository(db *store.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}

	_, err := r.db.Conn(ctx).ExecContext(ctx, r.db.Rebind(`
INSERT INTO audit_logs (
	id, actor, action, resource_type, resource_id,
	metadata, payload_digest, ip, user_agent, created_at
) VALUES (
	?,?,?,?,?,?,?,?,?,?
)`), entry.ID, entry.Actor, entry.Action, entry.ResourceType, entry.ResourceID,
		string(entry.Metadata), entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt.Truncate(time.Second))
	return err
}

// List returns the most recent entries for a resource, newest first.
func (r *Repository) List(ctx context.Context, resourceType, resourceID string, limit int) ([]Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("audit repo: nil db")
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []struct {
		ID            string    `db:"id"`
		Actor         string    `db:"actor"`
		Action        string    `db:"action"`
		ResourceType  string    `db:"resource_type"`
		ResourceID    string    `db:"resource_id"`
		Metadata      *string   `db:"metadata"`
		PayloadDigest *string   `db:"payload_digest"`
		IP            *string   `db:"ip"`
		UserAgent     *string   `db:"user_agent"`
		CreatedAt     time.Time `db:"created_at"`
	}
	err := r.db.Conn(ctx).SelectContext(ctx, &rows, r.db.Rebind(`
SELECT id, actor, action, resource_type, resource_id, metadata, payload_digest, ip, user_agent, created_at
FROM audit_logs
WHERE resource_type = ? AND resource_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`), resourceType, resourceID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, Entry{
			ID:            row.ID,
			Actor:         row.Actor,
			Action:        row.Action,
			ResourceType:  row.ResourceType,
			ResourceID:    row.ResourceID,
			Metadata:      []byte(deref(row.Metadata)),
			PayloadDigest: deref(row.PayloadDigest),
			IP:            deref(row.IP),
			UserAgent:     deref(row.UserAgent),
			CreatedAt:     row.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
