package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	visits "scentroute-cloud/internal/visits/domain"
)

// ResolvedPoint is a visit point with the quantity to refill.
type ResolvedPoint struct {
	ID             string `json:"id"`
	ServicePointID string `json:"service_point_id"`
	DeviceType     string `json:"device_type"`
	ScentType      string `json:"scent_type"`
	Override       *int   `json:"override"`
	Default        int    `json:"default"`
	Quantity       int    `json:"quantity"`
	ImageURL       string `json:"image_url,omitempty"`
}

// VisitDetail is a visit with its resolved points.
type VisitDetail struct {
	Visit  visits.Visit
	Points []ResolvedPoint
}

// QuantityService answers quantity questions through visits.Resolve.
type QuantityService struct {
	repo Repository
}

// NewQuantityService constructs a QuantityService.
func NewQuantityService(repo Repository) (*QuantityService, error) {
	if repo == nil {
		return nil, errors.New("quantity service: nil repository")
	}
	return &QuantityService{repo: repo}, nil
}

// ResolvedQuantity returns the quantity for one visit point.
func (s *QuantityService) ResolvedQuantity(ctx context.Context, pointID string) (ResolvedPoint, error) {
	detail, err := s.repo.GetPointDetail(ctx, pointID)
	if err != nil {
		return ResolvedPoint{}, fmt.Errorf("get visit point: %w", err)
	}
	if detail == nil {
		return ResolvedPoint{}, visits.ErrNotFound
	}
	return toResolved(*detail), nil
}

// VisitDetail returns a visit with every point resolved.
func (s *QuantityService) VisitDetail(ctx context.Context, visitID string) (*VisitDetail, error) {
	visit, err := s.repo.GetVisit(ctx, visitID)
	if err != nil {
		return nil, fmt.Errorf("get visit: %w", err)
	}
	if visit == nil {
		return nil, visits.ErrNotFound
	}
	details, err := s.repo.ListPointDetails(ctx, visitID)
	if err != nil {
		return nil, fmt.Errorf("list visit points: %w", err)
	}
	points := make([]ResolvedPoint, 0, len(details))
	for _, d := range details {
		points = append(points, toResolved(d))
	}
	return &VisitDetail{Visit: *visit, Points: points}, nil
}

// ListVisits returns a worker's visits scheduled in [from, to).
func (s *QuantityService) ListVisits(ctx context.Context, workerID string, from, to time.Time) ([]visits.Visit, error) {
	if workerID == "" {
		return nil, fmt.Errorf("%w: worker_id required", visits.ErrInvalidVisit)
	}
	list, err := s.repo.ListVisits(ctx, workerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	return list, nil
}

// SetOverride sets a point override, or clears it when override is nil.
func (s *QuantityService) SetOverride(ctx context.Context, pointID string, override *int) (ResolvedPoint, error) {
	if override != nil && *override < 0 {
		return ResolvedPoint{}, visits.ErrNegativeQuantity
	}
	ok, err := s.repo.SetPointOverride(ctx, pointID, override)
	if err != nil {
		return ResolvedPoint{}, fmt.Errorf("set override: %w", err)
	}
	if !ok {
		return ResolvedPoint{}, visits.ErrNotFound
	}
	return s.ResolvedQuantity(ctx, pointID)
}

func toResolved(d visits.PointDetail) ResolvedPoint {
	return ResolvedPoint{
		ID:             d.Point.ID,
		ServicePointID: d.ServicePoint.ID,
		DeviceType:     d.ServicePoint.DeviceType,
		ScentType:      d.ServicePoint.ScentType,
		Override:       d.Point.Override,
		Default:        d.ServicePoint.RefillAmount,
		Quantity:       d.Quantity(),
		ImageURL:       d.Point.ImageURL,
	}
}
