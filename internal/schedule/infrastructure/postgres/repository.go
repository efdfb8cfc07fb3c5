package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	schedule "scentroute-cloud/internal/schedule/domain"
	"scentroute-cloud/internal/store"
)

// Repository persists schedule assignments.
type Repository struct {
	db *store.DB
}

// NewRepository constructs a Repository.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

type assignmentRow struct {
	ID         string    `db:"id"`
	Date       string    `db:"schedule_date"`
	TemplateID string    `db:"template_id"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r assignmentRow) toDomain() schedule.Assignment {
	return schedule.Assignment{
		ID:         r.ID,
		Date:       r.Date,
		TemplateID: r.TemplateID,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

// Upsert creates the assignment for a date or replaces its template.
func (r *Repository) Upsert(ctx context.Context, a *schedule.Assignment) error {
	if r == nil || r.db == nil {
		return errors.New("schedule repo: nil db")
	}
	if a == nil {
		return errors.New("schedule repo: nil assignment")
	}
	_, err := r.db.Conn(ctx).ExecContext(ctx, r.db.Rebind(`
INSERT INTO work_schedules (
	id, template_id, schedule_date, created_at, updated_at
) VALUES (
	?, ?, ?, ?, ?
)
ON CONFLICT (schedule_date)
DO UPDATE SET
	template_id = EXCLUDED.template_id,
	updated_at = EXCLUDED.updated_at`),
		a.ID, a.TemplateID, a.Date, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

// GetByDate loads the assignment of a date. It returns nil when absent.
func (r *Repository) GetByDate(ctx context.Context, date string) (*schedule.Assignment, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("schedule repo: nil db")
	}
	var row assignmentRow
	err := r.db.Conn(ctx).GetContext(ctx, &row, r.db.Rebind(`
SELECT id, schedule_date, template_id, created_at, updated_at
FROM work_schedules
WHERE schedule_date = ?`), date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a := row.toDomain()
	return &a, nil
}

// List returns assignments with from <= date <= to, by date.
func (r *Repository) List(ctx context.Context, from, to string) ([]schedule.Assignment, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("schedule repo: nil db")
	}
	var rows []assignmentRow
	err := r.db.Conn(ctx).SelectContext(ctx, &rows, r.db.Rebind(`
SELECT id, schedule_date, template_id, created_at, updated_at
FROM work_schedules
WHERE schedule_date >= ? AND schedule_date <= ?
ORDER BY schedule_date ASC`), from, to)
	if err != nil {
		return nil, err
	}
	result := make([]schedule.Assignment, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

// DeleteByDate removes the assignment of a date.
func (r *Repository) DeleteByDate(ctx context.Context, date string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("schedule repo: nil db")
	}
	res, err := r.db.Conn(ctx).ExecContext(ctx, r.db.Rebind(`
DELETE FROM work_schedules WHERE schedule_date = ?`), date)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
