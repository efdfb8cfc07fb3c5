package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"scentroute-cloud/internal/observability/metrics"
	summary "scentroute-cloud/internal/summary/domain"
	visits "scentroute-cloud/internal/visits/domain"
)

const dateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("summary: date must be YYYY-MM-DD")

// Reader loads pending work.
type Reader interface {
	PendingVisitPoints(ctx context.Context, workerID string, from, to time.Time) ([]summary.VisitPoints, error)
	PendingEquipment(ctx context.Context, workerID string, from, to time.Time) ([]summary.EquipmentVisit, error)
}

// Service computes daily summaries. Nothing is cached.
type Service struct {
	reader Reader
	loc    *time.Location
}

// NewService constructs a Service.
func NewService(reader Reader, loc *time.Location) (*Service, error) {
	if reader == nil {
		return nil, errors.New("summary service: nil reader")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{reader: reader, loc: loc}, nil
}

// DailySummary totals the worker's pending visits on date.
func (s *Service) DailySummary(ctx context.Context, workerID, date string) (*summary.DailySummary, error) {
	started := time.Now()
	out, err := s.compute(ctx, workerID, date)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveSummary(result, time.Since(started))
	return out, err
}

func (s *Service) compute(ctx context.Context, workerID, date string) (*summary.DailySummary, error) {
	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		return nil, summary.ErrWorkerRequired
	}
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(date), s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	from, to := visits.DayBounds(day, s.loc)

	pending, err := s.reader.PendingVisitPoints(ctx, workerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load pending visits: %w", err)
	}
	equipment, err := s.reader.PendingEquipment(ctx, workerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load equipment visits: %w", err)
	}
	out := summary.Aggregate(workerID, day.Format(dateLayout), pending, equipment)
	return &out, nil
}
