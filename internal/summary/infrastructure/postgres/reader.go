package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"scentroute-cloud/internal/store"
	summary "scentroute-cloud/internal/summary/domain"
	visits "scentroute-cloud/internal/visits/domain"
)

// Reader loads the pending work of a worker for the daily summary.
type Reader struct {
	db *store.DB
}

// NewReader constructs a Reader.
func NewReader(db *store.DB) *Reader {
	return &Reader{db: db}
}

type pendingRow struct {
	VisitID        string         `db:"visit_id"`
	PointID        sql.NullString `db:"point_id"`
	ServicePointID sql.NullString `db:"service_point_id"`
	Override       sql.NullInt64  `db:"custom_refill_amount"`
	CustomerID     sql.NullString `db:"customer_id"`
	DeviceType     sql.NullString `db:"device_type"`
	ScentType      sql.NullString `db:"scent_type"`
	RefillAmount   sql.NullInt64  `db:"refill_amount"`
}

// PendingVisitPoints returns the worker's pending visits in [from, to) with
// their points. Visits without points are included.
func (r *Reader) PendingVisitPoints(ctx context.Context, workerID string, from, to time.Time) ([]summary.VisitPoints, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("summary reader: nil db")
	}
	var rows []pendingRow
	err := r.db.Conn(ctx).SelectContext(ctx, &rows, r.db.Rebind(`
SELECT j.id AS visit_id, jsp.id AS point_id, jsp.service_point_id, jsp.custom_refill_amount,
	sp.customer_id, sp.device_type, sp.scent_type, sp.refill_amount
FROM jobs j
LEFT JOIN job_service_points jsp ON jsp.job_id = j.id
LEFT JOIN service_points sp ON sp.id = jsp.service_point_id
WHERE j.status = ? AND j.worker_id = ? AND j.scheduled_at >= ? AND j.scheduled_at < ?
ORDER BY j.scheduled_at ASC, j.id ASC, jsp.id ASC`), visits.StatusPending, workerID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}

	var result []summary.VisitPoints
	index := map[string]int{}
	for _, row := range rows {
		i, ok := index[row.VisitID]
		if !ok {
			i = len(result)
			index[row.VisitID] = i
			result = append(result, summary.VisitPoints{VisitID: row.VisitID})
		}
		if !row.PointID.Valid || !row.ServicePointID.Valid {
			continue
		}
		point := visits.VisitPoint{
			ID:             row.PointID.String,
			VisitID:        row.VisitID,
			ServicePointID: row.ServicePointID.String,
		}
		if row.Override.Valid {
			n := int(row.Override.Int64)
			point.Override = &n
		}
		result[i].Points = append(result[i].Points, visits.PointDetail{
			Point: point,
			ServicePoint: visits.ServicePoint{
				ID:           row.ServicePointID.String,
				CustomerID:   row.CustomerID.String,
				DeviceType:   row.DeviceType.String,
				ScentType:    row.ScentType.String,
				RefillAmount: int(row.RefillAmount.Int64),
			},
		})
	}
	return result, nil
}

type equipmentRow struct {
	ID          string         `db:"id"`
	Kind        string         `db:"kind"`
	DeviceType  sql.NullString `db:"device_type"`
	BatteryType sql.NullString `db:"battery_type"`
}

var pendingEquipmentQuery = fmt.Sprintf(`
SELECT id, '%s' AS kind, device_type, battery_type
FROM installation_jobs
WHERE status = ? AND worker_id = ? AND scheduled_at >= ? AND scheduled_at < ?
UNION ALL
SELECT id, '%s' AS kind, device_type, battery_type
FROM special_jobs
WHERE status = ? AND worker_id = ? AND scheduled_at >= ? AND scheduled_at < ?
ORDER BY kind, id`, summary.KindInstallation, summary.KindSpecial)

// PendingEquipment returns the worker's pending installation and special
// visits in [from, to).
func (r *Reader) PendingEquipment(ctx context.Context, workerID string, from, to time.Time) ([]summary.EquipmentVisit, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("summary reader: nil db")
	}
	from, to = from.UTC(), to.UTC()
	var rows []equipmentRow
	err := r.db.Conn(ctx).SelectContext(ctx, &rows, r.db.Rebind(pendingEquipmentQuery),
		visits.StatusPending, workerID, from, to,
		visits.StatusPending, workerID, from, to,
	)
	if err != nil {
		return nil, err
	}
	result := make([]summary.EquipmentVisit, 0, len(rows))
	for _, row := range rows {
		result = append(result, summary.EquipmentVisit{
			ID:          row.ID,
			Kind:        row.Kind,
			DeviceType:  row.DeviceType.String,
			BatteryType: row.BatteryType.String,
		})
	}
	return result, nil
}
