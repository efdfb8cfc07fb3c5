package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	catalog "scentroute-cloud/internal/catalog/domain"
)

// Repository persists templates and stations.
type Repository interface {
	CreateTemplate(ctx context.Context, t *catalog.Template) error
	RenameTemplate(ctx context.Context, id, name string, now time.Time) (bool, error)
	DeleteTemplate(ctx context.Context, id string) (bool, error)
	GetTemplate(ctx context.Context, id string) (*catalog.Template, error)
	ListTemplates(ctx context.Context) ([]catalog.TemplateSummary, error)
	TemplateInUse(ctx context.Context, id string) (bool, error)
	InsertStation(ctx context.Context, s *catalog.Station) error
	UpdateStation(ctx context.Context, s *catalog.Station) (bool, error)
	DeleteStation(ctx context.Context, id string) (bool, error)
	GetStation(ctx context.Context, id string) (*catalog.Station, error)
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

// StationInput carries the editable station fields.
type StationInput struct {
	CustomerID    string `json:"customer_id"`
	WorkerID      string `json:"worker_id"`
	Order         int    `json:"order"`
	ScheduledTime string `json:"scheduled_time"`
}

// Service manages the template catalog.
type Service struct {
	repo  Repository
	tx    TxRunner
	clock Clock
}

// NewService constructs a Service. A nil tx runs writes without a transaction.
func NewService(repo Repository, tx TxRunner, clock Clock) (*Service, error) {
	if repo == nil {
		return nil, errors.New("catalog service: nil repository")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Service{repo: repo, tx: tx, clock: clock}, nil
}

// CreateTemplate creates an empty template.
func (s *Service) CreateTemplate(ctx context.Context, name string) (*catalog.Template, error) {
	name, err := catalog.NormalizeName(name)
	if err != nil {
		return nil, err
	}
	now := s.now()
	t := &catalog.Template{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return t, nil
}

// RenameTemplate changes a template name.
func (s *Service) RenameTemplate(ctx context.Context, id, name string) (*catalog.Template, error) {
	name, err := catalog.NormalizeName(name)
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.RenameTemplate(ctx, id, name, s.now())
	if err != nil {
		return nil, fmt.Errorf("rename template: %w", err)
	}
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return s.repo.GetTemplate(ctx, id)
}

// DeleteTemplate removes a template that no date is assigned to.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	return s.withinTx(ctx, func(ctx context.Context) error {
		inUse, err := s.repo.TemplateInUse(ctx, id)
		if err != nil {
			return fmt.Errorf("check template usage: %w", err)
		}
		if inUse {
			return catalog.ErrTemplateInUse
		}
		ok, err := s.repo.DeleteTemplate(ctx, id)
		if err != nil {
			return fmt.Errorf("delete template: %w", err)
		}
		if !ok {
			return catalog.ErrNotFound
		}
		return nil
	})
}

// ListTemplates returns templates with station counts.
func (s *Service) ListTemplates(ctx context.Context) ([]catalog.TemplateSummary, error) {
	list, err := s.repo.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return list, nil
}

// GetTemplate returns a template and its stations in display order.
func (s *Service) GetTemplate(ctx context.Context, id string) (*catalog.TemplateDetail, error) {
	t, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if t == nil {
		return nil, catalog.ErrNotFound
	}
	stations, err := s.repo.ListStations(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	catalog.SortStations(stations)
	return &catalog.TemplateDetail{Template: *t, Stations: stations}, nil
}

// AddStation appends a station to a template.
func (s *Service) AddStation(ctx context.Context, templateID string, input StationInput) (*catalog.Station, error) {
	input, err := normalizeStation(input)
	if err != nil {
		return nil, err
	}
	var station *catalog.Station
	err = s.withinTx(ctx, func(ctx context.Context) error {
		t, err := s.repo.GetTemplate(ctx, templateID)
		if err != nil {
			return fmt.Errorf("get template: %w", err)
		}
		if t == nil {
			return catalog.ErrNotFound
		}
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		station = &catalog.Station{
			ID:            id.String(),
			TemplateID:    templateID,
			CustomerID:    input.CustomerID,
			WorkerID:      input.WorkerID,
			Order:         input.Order,
			ScheduledTime: input.ScheduledTime,
			CreatedAt:     s.now(),
		}
		if err := s.repo.InsertStation(ctx, station); err != nil {
			return fmt.Errorf("insert station: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return station, nil
}

// UpdateStation replaces a station's customer, worker, order and time.
func (s *Service) UpdateStation(ctx context.Context, stationID string, input StationInput) (*catalog.Station, error) {
	input, err := normalizeStation(input)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.GetStation(ctx, stationID)
	if err != nil {
		return nil, fmt.Errorf("get station: %w", err)
	}
	if existing == nil {
		return nil, catalog.ErrNotFound
	}
	existing.CustomerID = input.CustomerID
	existing.WorkerID = input.WorkerID
	existing.Order = input.Order
	existing.ScheduledTime = input.ScheduledTime
	ok, err := s.repo.UpdateStation(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("update station: %w", err)
	}
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return existing, nil
}

// RemoveStation deletes a station.
func (s *Service) RemoveStation(ctx context.Context, stationID string) error {
	ok, err := s.repo.DeleteStation(ctx, stationID)
	if err != nil {
		return fmt.Errorf("delete station: %w", err)
	}
	if !ok {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *Service) withinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.WithinTx(ctx, fn)
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Second)
}

func normalizeStation(input StationInput) (StationInput, error) {
	input.CustomerID = strings.TrimSpace(input.CustomerID)
	input.WorkerID = strings.TrimSpace(input.WorkerID)
	input.ScheduledTime = strings.TrimSpace(input.ScheduledTime)
	if input.ScheduledTime != "" {
		tod, err := catalog.ParseTimeOfDay(input.ScheduledTime)
		if err != nil {
			return input, err
		}
		input.ScheduledTime = tod.String()
	}
	return input, nil
}
