package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"scentroute-cloud/internal/store"
	visits "scentroute-cloud/internal/visits/domain"
)

// Repository persists visits, visit points and service points.
type Repository struct {
	db *store.DB
}

// NewRepository constructs a Repository.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

type visitRow struct {
	ID                string         `db:"id"`
	CustomerID        sql.NullString `db:"customer_id"`
	OneTimeCustomerID sql.NullString `db:"one_time_customer_id"`
	WorkerID          string         `db:"worker_id"`
	ScheduledAt       time.Time      `db:"scheduled_at"`
	Status            string         `db:"status"`
	OrderNumber       sql.NullInt64  `db:"order_number"`
	Notes             sql.NullString `db:"notes"`
	TemplateID        sql.NullString `db:"template_id"`
	StationID         sql.NullString `db:"station_id"`
	SourceKey         sql.NullString `db:"source_key"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func (r visitRow) toDomain() visits.Visit {
	v := visits.Visit{
		ID:                r.ID,
		CustomerID:        r.CustomerID.String,
		OneTimeCustomerID: r.OneTimeCustomerID.String,
		WorkerID:          r.WorkerID,
		ScheduledAt:       r.ScheduledAt.UTC(),
		Status:            r.Status,
		Notes:             r.Notes.String,
		TemplateID:        r.TemplateID.String,
		StationID:         r.StationID.String,
		SourceKey:         r.SourceKey.String,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
	if r.OrderNumber.Valid {
		n := int(r.OrderNumber.Int64)
		v.OrderNumber = &n
	}
	return v
}

type pointRow struct {
	ID             string         `db:"id"`
	VisitID        string         `db:"job_id"`
	ServicePointID string         `db:"service_point_id"`
	Override       sql.NullInt64  `db:"custom_refill_amount"`
	ImageURL       sql.NullString `db:"image_url"`
}

type pointDetailRow struct {
	pointRow
	CustomerID   string `db:"customer_id"`
	DeviceType   string `db:"device_type"`
	ScentType    string `db:"scent_type"`
	RefillAmount int    `db:"refill_amount"`
}

func (r pointDetailRow) toDomain() visits.PointDetail {
	point := visits.VisitPoint{
		ID:             r.ID,
		VisitID:        r.VisitID,
		ServicePointID: r.ServicePointID,
		ImageURL:       r.ImageURL.String,
	}
	if r.Override.Valid {
		n := int(r.Override.Int64)
		point.Override = &n
	}
	return visits.PointDetail{
		Point: point,
		ServicePoint: visits.ServicePoint{
			ID:           r.ServicePointID,
			CustomerID:   r.CustomerID,
			DeviceType:   r.DeviceType,
			ScentType:    r.ScentType,
			RefillAmount: r.RefillAmount,
		},
	}
}

type servicePointRow struct {
	ID           string `db:"id"`
	CustomerID   string `db:"customer_id"`
	DeviceType   string `db:"device_type"`
	ScentType    string `db:"scent_type"`
	RefillAmount int    `db:"refill_amount"`
}

func (r servicePointRow) toDomain() visits.ServicePoint {
	return visits.ServicePoint(r)
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}

func (r *Repository) check() error {
	if r == nil || r.db == nil {
		return errors.New("visits repo: nil db")
	}
	return nil
}

// CreateServicePoint inserts a service point.
func (r *Repository) CreateServicePoint(ctx context.Context, sp *visits.ServicePoint) error {
	if err := r.check(); err != nil {
		return err
	}
	_, err := r.db.Conn(ctx).ExecContext(ctx, r.db.Rebind(`
INSERT INTO service_points (id, customer_id, device_type, scent_type, refill_amount)
VALUES (?, ?, ?, ?, ?)`), sp.ID, sp.CustomerID, sp.DeviceType, sp.ScentType, sp.RefillAmount)
	return err
}

// UpdateRefillAmount changes a service point's default quantity.
func (r *Repository) UpdateRefillAmount(ctx context.Context, id string, amount int) (bool, error) {
	if err := r.check(); err != nil {
		return false, err
	}
	res, err := r.db.Conn(ctx).ExecContext(ctx, r.db.Rebind(`
UPDATE service_points SET refill_amount = ? WHERE id = ?`), amount, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetServicePoint loads a service point. It returns nil when absent.
func (r *Repository) GetServicePoint(ctx context.Context, id string) (*visits.ServicePoint, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	var row servicePointRow
	err := r.db.Conn(ctx).GetContext(ctx, &row, r.db.Rebind(`
SELECT id, customer_id, device_type, scent_type, refill_amount
FROM service_points
WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	sp := row.toDomain()
	return &sp, nil
}

// ListServicePointsByCustomer returns the customer's current service points.
func (r *Repository) ListServicePointsByCustomer(ctx context.Context, customerID string) ([]visits.ServicePoint, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	var rows []servicePointRow
	err := r.db.Conn(ctx).SelectContext(ctx, &rows, r.db.Rebind(`
SELECT id, customer_id, device_type, scent_type, refill_amount
FROM service_points
WHERE customer_id = ?
ORDER BY id ASC`), customerID)
	if err != nil {
		return nil, err
	}
	result := make([]visits.ServicePoint, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

// InsertVisit inserts a visit.
func (r *Repository) InsertVisit(ctx context.Context, v *visits.Visit) error {
	if err := r.check(); err != nil {
		return err
	}
	_, err := r.db.Conn(ctx).ExecContext(ctx, r.db.Rebind(`
INSERT INTO jobs (
	id, customer_id, one_time_customer_id, worker_id, scheduled_at, status,
	order_number, notes, template_id, station_id, source_key, created_at, updated_at
) VALUES (
	?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
)`),
		v.ID, nullString(v.CustomerID), nullString(v.OneTimeCustomerID), v.WorkerID, v.ScheduledAt, v.Status,
		nullInt(v.OrderNumber), nullString(v.Notes), nullString(v.TemplateID), nullString(v.StationID), nullString(v.SourceKey),
		v.CreatedAt, v.UpdatedAt,
	)
	return err
}

type pointInsert struct {
	ID             string         `db:"id"`
	VisitID        string         `db:"job_id"`
	ServicePointID string         `db:"service_point_id"`
	Override       sql.NullInt64  `db:"custom_refill_amount"`
	ImageURL       sql.NullString `db:"image_url"`
}

// InsertVisitPoints batch-inserts the points of a visit.
func (r *Repository) InsertVisitPoints(ctx context.Context, points []visits.VisitPoint) error {
	if err := r.check(); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}
	rows := make([]pointInsert, 0, len(points))
	for _, p := range points {
		rows = append(rows, pointInsert{
			ID:             p.ID,
			VisitID:        p.VisitID,
			ServicePointID: p.ServicePointID,
			Override:       nullInt(p.Override),
			ImageURL:       nullString(p.ImageURL),
		})
	}
	_, err := sqlx.NamedExecContext(ctx, r.db.Conn(ctx), `
INSERT INTO job_service_points (id, job_id, service_point_id, custom_refill_amount, image_url)
VALUES (:id, :job_id, :service_point_id, :custom_refill_amount, :image_url)`, rows)
	return err
}

// SourceKeyExists reports whether a visit was already expanded for key.
func (r *Repository) SourceKeyExists(ctx context.Context, key string) (bool, error) {
	if err := r.check(); err != nil {
		return false, err
	}
	var n int
	if err := r.db.Conn(ctx).GetContext(ctx, &n, r.db.Rebind(`
SELECT COUNT(*) FROM jobs WHERE source_key = ?`), key); err != nil {
		return false, err
	}
	return n > 0, nil
}

const visitColumns = `id, customer_id, one_time_customer_id, worker_id, scheduled_at, status,
	order_number, notes, template_id, station_id, source_key, created_at, updated_at`

// GetVisit loads a visit. It returns nil when absent.
func (r *Repository) GetVisit(ctx context.Context, id string) (*visits.Visit, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	var row visitRow
	err := r.db.Conn(ctx).GetContext(ctx, &row, r.db.Rebind(`
SELECT `+visitColumns+`
FROM jobs
WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	v := row.toDomain()
	return &v, nil
}

// ListVisits returns visits of a worker in [from, to), by time then order number.
func (r *Repository) ListVisits(ctx context.Context, workerID string, from, to time.Time) ([]visits.Visit, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	var rows []visitRow
	err := r.db.Conn(ctx).SelectContext(ctx, &rows, r.db.Rebind(`
SELECT `+visitColumns+`
FROM jobs
WHERE worker_id = ? AND scheduled_at >= ? AND scheduled_at < ?
ORDER BY scheduled_at ASC, order_number ASC, id ASC`), workerID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	return toVisits(rows), nil
}

// ListPendingBefore returns pending visits scheduled before cutoff.
func (r *Repository) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]visits.Visit, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	var rows []visitRow
	err := r.db.Conn(ctx).SelectContext(ctx, &rows, r.db.Rebind(`
SELECT `+visitColumns+`
FROM jobs
WHERE status = ? AND scheduled_at < ?
ORDER BY scheduled_at ASC, id ASC`), visits.StatusPending, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	return toVisits(rows), nil
}

// UpdateScheduledAt moves a pending visit. Other fields are untouched.
func (r *Repository) UpdateScheduledAt(ctx context.Context, id string, at time.Time) error {
	if err := r.check(); err != nil {
		return err
	}
	res, err := r.db.Conn(ctx).ExecContext(ctx, r.db.Rebind(`
UPDATE jobs SET scheduled_at = ? WHERE id = ? AND status = ?`), at.UTC(), id, visits.StatusPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return visits.ErrNotFound
	}
	return nil
}

// MarkCompleted closes a pending visit.
func (r *Repository) MarkCompleted(ctx context.Context, id string, now time.Time) (bool, error) {
	if err := r.check(); err != nil {
		return false, err
	}
	res, err := r.db.Conn(ctx).ExecContext(ctx, r.db.Rebind(`
UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`), visits.StatusCompleted, now, id, visits.StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const pointDetailQuery = `
SELECT jsp.id, jsp.job_id, jsp.service_point_id, jsp.custom_refill_amount, jsp.image_url,
	sp.customer_id, sp.device_type, sp.scent_type, sp.refill_amount
FROM job_service_points jsp
JOIN service_points sp ON sp.id = jsp.service_point_id
`

// ListPointDetails returns a visit's points joined with their service points.
func (r *Repository) ListPointDetails(ctx context.Context, visitID string) ([]visits.PointDetail, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	var rows []pointDetailRow
	err := r.db.Conn(ctx).SelectContext(ctx, &rows, r.db.Rebind(pointDetailQuery+`
WHERE jsp.job_id = ?
ORDER BY sp.scent_type ASC, jsp.id ASC`), visitID)
	if err != nil {
		return nil, err
	}
	result := make([]visits.PointDetail, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

// GetPointDetail loads one visit point with its service point.
func (r *Repository) GetPointDetail(ctx context.Context, pointID string) (*visits.PointDetail, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	var row pointDetailRow
	err := r.db.Conn(ctx).GetContext(ctx, &row, r.db.Rebind(pointDetailQuery+`
WHERE jsp.id = ?`), pointID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	detail := row.toDomain()
	return &detail, nil
}

// SetPointOverride sets or clears a visit point override.
func (r *Repository) SetPointOverride(ctx context.Context, pointID string, override *int) (bool, error) {
	if err := r.check(); err != nil {
		return false, err
	}
	res, err := r.db.Conn(ctx).ExecContext(ctx, r.db.Rebind(`
UPDATE job_service_points SET custom_refill_amount = ? WHERE id = ?`), nullInt(override), pointID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeletePendingForStation removes pending visits of a customer and worker in
// [from, to), points first. Completed visits are kept.
func (r *Repository) DeletePendingForStation(ctx context.Context, customerID, workerID string, from, to time.Time) (int, error) {
	return r.deletePending(ctx,
		`status = ? AND customer_id = ? AND worker_id = ? AND scheduled_at >= ? AND scheduled_at < ?`,
		visits.StatusPending, customerID, workerID, from.UTC(), to.UTC())
}

// DeletePendingExpandedFor removes pending visits expanded from a template for
// date, points first. Visits expanded for other dates are kept even when the
// reconciler has moved them onto date.
func (r *Repository) DeletePendingExpandedFor(ctx context.Context, templateID string, date time.Time) (int, error) {
	return r.deletePending(ctx,
		`status = ? AND template_id = ? AND source_key LIKE ?`,
		visits.StatusPending, templateID, visits.SourceKeyPattern(templateID, date))
}

func (r *Repository) deletePending(ctx context.Context, where string, params ...any) (int, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	conn := r.db.Conn(ctx)
	if _, err := conn.ExecContext(ctx, r.db.Rebind(`
DELETE FROM job_service_points
WHERE job_id IN (SELECT id FROM jobs WHERE `+where+`)`), params...); err != nil {
		return 0, err
	}
	res, err := conn.ExecContext(ctx, r.db.Rebind(`DELETE FROM jobs WHERE `+where), params...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func toVisits(rows []visitRow) []visits.Visit {
	result := make([]visits.Visit, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result
}
