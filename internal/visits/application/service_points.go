package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	visits "scentroute-cloud/internal/visits/domain"
)

// ServicePointStore persists service point reference data.
type ServicePointStore interface {
	CreateServicePoint(ctx context.Context, sp *visits.ServicePoint) error
	UpdateRefillAmount(ctx context.Context, id string, amount int) (bool, error)
	GetServicePoint(ctx context.Context, id string) (*visits.ServicePoint, error)
	ListServicePointsByCustomer(ctx context.Context, customerID string) ([]visits.ServicePoint, error)
}

// ServicePointService maintains customers' service points.
type ServicePointService struct {
	store ServicePointStore
}

// NewServicePointService constructs a ServicePointService.
func NewServicePointService(store ServicePointStore) (*ServicePointService, error) {
	if store == nil {
		return nil, errors.New("service point service: nil store")
	}
	return &ServicePointService{store: store}, nil
}

// Create registers a service point for a customer.
func (s *ServicePointService) Create(ctx context.Context, sp visits.ServicePoint) (*visits.ServicePoint, error) {
	sp.CustomerID = strings.TrimSpace(sp.CustomerID)
	if sp.CustomerID == "" {
		return nil, fmt.Errorf("%w: customer_id required", visits.ErrInvalidVisit)
	}
	if sp.RefillAmount < 0 {
		return nil, visits.ErrNegativeQuantity
	}
	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}
	if err := s.store.CreateServicePoint(ctx, &sp); err != nil {
		return nil, fmt.Errorf("create service point: %w", err)
	}
	return &sp, nil
}

// UpdateRefillAmount changes the default quantity. Open visit points without
// an override follow the new value.
func (s *ServicePointService) UpdateRefillAmount(ctx context.Context, id string, amount int) (*visits.ServicePoint, error) {
	if amount < 0 {
		return nil, visits.ErrNegativeQuantity
	}
	ok, err := s.store.UpdateRefillAmount(ctx, id, amount)
	if err != nil {
		return nil, fmt.Errorf("update refill amount: %w", err)
	}
	if !ok {
		return nil, visits.ErrNotFound
	}
	return s.store.GetServicePoint(ctx, id)
}

// ListByCustomer returns a customer's service points.
func (s *ServicePointService) ListByCustomer(ctx context.Context, customerID string) ([]visits.ServicePoint, error) {
	list, err := s.store.ListServicePointsByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("list service points: %w", err)
	}
	return list, nil
}
