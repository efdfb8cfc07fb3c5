package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	catalog "scentroute-cloud/internal/catalog/domain"
	"scentroute-cloud/internal/store"
)

// Repository persists templates and their stations.
type Repository struct {
	db *store.DB
}

// NewRepository constructs a Repository.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

type templateRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	StationCount int       `db:"station_count"`
}

func (r templateRow) toDomain() catalog.Template {
	return catalog.Template{
		ID:        r.ID,
		Name:      r.Name,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type stationRow struct {
	ID            string         `db:"id"`
	TemplateID    string         `db:"template_id"`
	CustomerID    sql.NullString `db:"customer_id"`
	WorkerID      sql.NullString `db:"worker_id"`
	Order         int            `db:"station_order"`
	ScheduledTime sql.NullString `db:"scheduled_time"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (r stationRow) toDomain() catalog.Station {
	return catalog.Station{
		ID:            r.ID,
		TemplateID:    r.TemplateID,
		CustomerID:    r.CustomerID.String,
		WorkerID:      r.WorkerID.String,
		Order:         r.Order,
		ScheduledTime: r.ScheduledTime.String,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

// CreateTemplate inserts a template.
func (r *Repository) CreateTemplate(ctx context.Context, t *catalog.Template) error {
	if r == nil || r.db == nil {
		return errors.New("catalog repo: nil db")
	}
	if t == nil {
		return errors.New("catalog repo: nil template")
	}
	_, err := r.db.Conn(ctx).ExecContext(ctx, r.db.Rebind(`
INSERT INTO work_templates (id, name, created_at, updated_at)
VALUES (?, ?, ?, ?)`), t.ID, t.Name, t.CreatedAt, t.UpdatedAt)
	return err
}

// RenameTemplate updates the name. It returns false when no row matched.
func (r *Repository) RenameTemplate(ctx context.Context, id, name string, now time.Time) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("catalog repo: nil db")
	}
	res, err := r.db.Conn(ctx).ExecContext(ctx, r.db.Rebind(`
UPDATE work_templates SET name = ?, updated_at = ? WHERE id = ?`), name, now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteTemplate removes a template and its stations.
func (r *Repository) DeleteTemplate(ctx context.Context, id string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("catalog repo: nil db")
	}
	conn := r.db.Conn(ctx)
	if _, err := conn.ExecContext(ctx, r.db.Rebind(`DELETE FROM template_stations WHERE template_id = ?`), id); err != nil {
		return false, err
	}
	res, err := conn.ExecContext(ctx, r.db.Rebind(`DELETE FROM work_templates WHERE id = ?`), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetTemplate loads a template by id. It returns nil when absent.
func (r *Repository) GetTemplate(ctx context.Context, id string) (*catalog.Template, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("catalog repo: nil db")
	}
	var row templateRow
	err := r.db.Conn(ctx).GetContext(ctx, &row, r.db.Rebind(`
SELECT id, name, created_at, updated_at, 0 AS station_count
FROM work_templates
WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t := row.toDomain()
	return &t, nil
}

// ListTemplates returns all templates with station counts, ordered by name.
func (r *Repository) ListTemplates(ctx context.Context) ([]catalog.TemplateSummary, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("catalog repo: nil db")
	}
	var rows []templateRow
	err := r.db.Conn(ctx).SelectContext(ctx, &rows, `
SELECT t.id, t.name, t.created_at, t.updated_at, COUNT(s.id) AS station_count
FROM work_templates t
LEFT JOIN template_stations s ON s.template_id = t.id
GROUP BY t.id, t.name, t.created_at, t.updated_at
ORDER BY t.name ASC, t.id ASC`)
	if err != nil {
		return nil, err
	}
	result := make([]catalog.TemplateSummary, 0, len(rows))
	for _, row := range rows {
		result = append(result, catalog.TemplateSummary{Template: row.toDomain(), StationCount: row.StationCount})
	}
	return result, nil
}

// TemplateInUse reports whether any schedule assignment references the template.
func (r *Repository) TemplateInUse(ctx context.Context, id string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("catalog repo: nil db")
	}
	var n int
	if err := r.db.Conn(ctx).GetContext(ctx, &n, r.db.Rebind(`
SELECT COUNT(*) FROM work_schedules WHERE template_id = ?`), id); err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertStation adds a station.
func (r *Repository) InsertStation(ctx context.Context, s *catalog.Station) error {
	if r == nil || r.db == nil {
		return errors.New("catalog repo: nil db")
	}
	if s == nil {
		return errors.New("catalog repo: nil station")
	}
	_, err := r.db.Conn(ctx).ExecContext(ctx, r.db.Rebind(`
INSERT INTO template_stations (
	id, template_id, customer_id, worker_id, station_order, scheduled_time, created_at
) VALUES (
	?, ?, ?, ?, ?, ?, ?
)`), s.ID, s.TemplateID, nullString(s.CustomerID), nullString(s.WorkerID), s.Order, nullString(s.ScheduledTime), s.CreatedAt)
	return err
}

// UpdateStation replaces the mutable station fields.
func (r *Repository) UpdateStation(ctx context.Context, s *catalog.Station) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("catalog repo: nil db")
	}
	if s == nil {
		return false, errors.New("catalog repo: nil station")
	}
	res, err := r.db.Conn(ctx).ExecContext(ctx, r.db.Rebind(`
UPDATE template_stations
SET customer_id = ?, worker_id = ?, station_order = ?, scheduled_time = ?
WHERE id = ?`), nullString(s.CustomerID), nullString(s.WorkerID), s.Order, nullString(s.ScheduledTime), s.ID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteStation removes a station.
func (r *Repository) DeleteStation(ctx context.Context, id string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("catalog repo: nil db")
	}
	res, err := r.db.Conn(ctx).ExecContext(ctx, r.db.Rebind(`DELETE FROM template_stations WHERE id = ?`), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetStation loads a station by id. It returns nil when absent.
func (r *Repository) GetStation(ctx context.Context, id string) (*catalog.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("catalog repo: nil db")
	}
	var row stationRow
	err := r.db.Conn(ctx).GetContext(ctx, &row, r.db.Rebind(`
SELECT id, template_id, customer_id, worker_id, station_order, scheduled_time, created_at
FROM template_stations
WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s := row.toDomain()
	return &s, nil
}

// ListStations returns the stations of a template by order, then insertion.
func (r *Repository) ListStations(ctx context.Context, templateID string) ([]catalog.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("catalog repo: nil db")
	}
	var rows []stationRow
	err := r.db.Conn(ctx).SelectContext(ctx, &rows, r.db.Rebind(`
SELECT id, template_id, customer_id, worker_id, station_order, scheduled_time, created_at
FROM template_stations
WHERE template_id = ?
ORDER BY station_order ASC, created_at ASC, id ASC`), templateID)
	if err != nil {
		return nil, err
	}
	result := make([]catalog.Station, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}
