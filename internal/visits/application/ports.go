package application

import (
	"context"
	"time"

	catalog "scentroute-cloud/internal/catalog/domain"
	visits "scentroute-cloud/internal/visits/domain"
)

// Repository is the visit store used by the visit use cases.
type Repository interface {
	ListServicePointsByCustomer(ctx context.Context, customerID string) ([]visits.ServicePoint, error)
	GetServicePoint(ctx context.Context, id string) (*visits.ServicePoint, error)
	InsertVisit(ctx context.Context, v *visits.Visit) error
	InsertVisitPoints(ctx context.Context, points []visits.VisitPoint) error
	SourceKeyExists(ctx context.Context, key string) (bool, error)
	GetVisit(ctx context.Context, id string) (*visits.Visit, error)
	ListVisits(ctx context.Context, workerID string, from, to time.Time) ([]visits.Visit, error)
	ListPointDetails(ctx context.Context, visitID string) ([]visits.PointDetail, error)
	GetPointDetail(ctx context.Context, pointID string) (*visits.PointDetail, error)
	SetPointOverride(ctx context.Context, pointID string, override *int) (bool, error)
	MarkCompleted(ctx context.Context, id string, now time.Time) (bool, error)
}

// StationReader loads the stations of a template.
type StationReader interface {
	ListStations(ctx context.Context, templateID string) ([]catalog.Station, error)
}

// TxRunner runs fn in one transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func withinTx(ctx context.Context, tx TxRunner, fn func(ctx context.Context) error) error {
	if tx == nil {
		return fn(ctx)
	}
	return tx.WithinTx(ctx, fn)
}
