package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	visits "scentroute-cloud/internal/visits/domain"
)

// ManualPointInput selects a service point and an optional override.
type ManualPointInput struct {
	ServicePointID string `json:"service_point_id"`
	Override       *int   `json:"override,omitempty"`
}

// ManualVisitInput describes a one-off visit entered by an operator.
type ManualVisitInput struct {
	CustomerID        string             `json:"customer_id"`
	OneTimeCustomerID string             `json:"one_time_customer_id"`
	WorkerID          string             `json:"worker_id"`
	ScheduledAt       time.Time          `json:"scheduled_at"`
	OrderNumber       *int               `json:"order_number,omitempty"`
	Notes             string             `json:"notes"`
	Points            []ManualPointInput `json:"points"`
}

// ManualVisitService creates visits outside template expansion. Unlike
// expansion, points keep a nil override unless the operator sets one, so they
// follow later changes to the service point default.
type ManualVisitService struct {
	repo  Repository
	tx    TxRunner
	clock Clock
}

// NewManualVisitService constructs a ManualVisitService.
func NewManualVisitService(repo Repository, tx TxRunner, clock Clock) (*ManualVisitService, error) {
	if repo == nil {
		return nil, errors.New("manual visit service: nil repository")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &ManualVisitService{repo: repo, tx: tx, clock: clock}, nil
}

// CreateVisit stores a pending visit. With no points given, every current
// service point of the customer is attached without override.
func (s *ManualVisitService) CreateVisit(ctx context.Context, input ManualVisitInput) (*visits.Visit, error) {
	input.CustomerID = strings.TrimSpace(input.CustomerID)
	input.OneTimeCustomerID = strings.TrimSpace(input.OneTimeCustomerID)
	input.WorkerID = strings.TrimSpace(input.WorkerID)
	if input.WorkerID == "" {
		return nil, fmt.Errorf("%w: worker_id required", visits.ErrInvalidVisit)
	}
	if input.CustomerID == "" && input.OneTimeCustomerID == "" {
		return nil, fmt.Errorf("%w: customer_id or one_time_customer_id required", visits.ErrInvalidVisit)
	}
	if input.ScheduledAt.IsZero() {
		return nil, fmt.Errorf("%w: scheduled_at required", visits.ErrInvalidVisit)
	}
	for _, p := range input.Points {
		if p.Override != nil && *p.Override < 0 {
			return nil, visits.ErrNegativeQuantity
		}
	}

	now := s.clock.Now().UTC().Truncate(time.Second)
	visit := &visits.Visit{
		ID:                uuid.NewString(),
		CustomerID:        input.CustomerID,
		OneTimeCustomerID: input.OneTimeCustomerID,
		WorkerID:          input.WorkerID,
		ScheduledAt:       input.ScheduledAt.UTC().Truncate(time.Second),
		Status:            visits.StatusPending,
		OrderNumber:       input.OrderNumber,
		Notes:             input.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		points, err := s.buildPoints(ctx, visit, input.Points)
		if err != nil {
			return err
		}
		if err := s.repo.InsertVisit(ctx, visit); err != nil {
			return fmt.Errorf("insert visit: %w", err)
		}
		if err := s.repo.InsertVisitPoints(ctx, points); err != nil {
			return fmt.Errorf("insert visit points: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return visit, nil
}

// Complete marks a pending visit completed. Completed visits stay completed.
func (s *ManualVisitService) Complete(ctx context.Context, visitID string) error {
	ok, err := s.repo.MarkCompleted(ctx, visitID, s.clock.Now().UTC().Truncate(time.Second))
	if err != nil {
		return fmt.Errorf("complete visit: %w", err)
	}
	if !ok {
		existing, err := s.repo.GetVisit(ctx, visitID)
		if err != nil {
			return fmt.Errorf("get visit: %w", err)
		}
		if existing == nil {
			return visits.ErrNotFound
		}
	}
	return nil
}

func (s *ManualVisitService) buildPoints(ctx context.Context, visit *visits.Visit, inputs []ManualPointInput) ([]visits.VisitPoint, error) {
	if len(inputs) == 0 {
		if visit.CustomerID == "" {
			return nil, nil
		}
		servicePoints, err := s.repo.ListServicePointsByCustomer(ctx, visit.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("list service points: %w", err)
		}
		for _, sp := range servicePoints {
			inputs = append(inputs, ManualPointInput{ServicePointID: sp.ID})
		}
	}
	points := make([]visits.VisitPoint, 0, len(inputs))
	for _, in := range inputs {
		sp, err := s.repo.GetServicePoint(ctx, in.ServicePointID)
		if err != nil {
			return nil, fmt.Errorf("get service point: %w", err)
		}
		if sp == nil {
			return nil, fmt.Errorf("%w: service point %s", visits.ErrNotFound, in.ServicePointID)
		}
		if sp.CustomerID != visit.CustomerID {
			return nil, fmt.Errorf("%w: service point %s belongs to another customer", visits.ErrInvalidVisit, sp.ID)
		}
		points = append(points, visits.VisitPoint{
			ID:             uuid.NewString(),
			VisitID:        visit.ID,
			ServicePointID: sp.ID,
			Override:       in.Override,
		})
	}
	return points, nil
}
