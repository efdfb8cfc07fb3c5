package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	catalog "scentroute-cloud/internal/catalog/domain"
	"scentroute-cloud/internal/observability/logging"
	"scentroute-cloud/internal/observability/metrics"
	schedule "scentroute-cloud/internal/schedule/domain"
	visits "scentroute-cloud/internal/visits/domain"
)

// Repository persists assignments.
type Repository interface {
	Upsert(ctx context.Context, a *schedule.Assignment) error
	GetByDate(ctx context.Context, date string) (*schedule.Assignment, error)
	List(ctx context.Context, from, to string) ([]schedule.Assignment, error)
	DeleteByDate(ctx context.Context, date string) (bool, error)
}

// TemplateReader reads the template catalog.
type TemplateReader interface {
	GetTemplate(ctx context.Context, id string) (*catalog.Template, error)
	ListStations(ctx context.Context, templateID string) ([]catalog.Station, error)
}

// Expander expands a template into visits for a date.
type Expander interface {
	Expand(ctx context.Context, templateID string, date time.Time) (*visits.ExpansionResult, error)
}

// VisitRemover deletes pending visits of a day.
type VisitRemover interface {
	DeletePendingForStation(ctx context.Context, customerID, workerID string, from, to time.Time) (int, error)
	DeletePendingExpandedFor(ctx context.Context, templateID string, date time.Time) (int, error)
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

// AssignResult reports an assignment and the visits it produced.
type AssignResult struct {
	Assignment       schedule.Assignment
	ReplacedTemplate string
	RemovedVisits    int
	Expansion        *visits.ExpansionResult
}

// UnassignResult reports what an unassignment removed.
type UnassignResult struct {
	Date          string
	TemplateID    string
	Removed       bool
	RemovedVisits int
}

// Service maps dates to templates and keeps the generated visits in step.
type Service struct {
	repo      Repository
	templates TemplateReader
	expander  Expander
	remover   VisitRemover
	tx        TxRunner
	clock     Clock
	loc       *time.Location
	logger    *zap.Logger
}

// NewService constructs a Service.
func NewService(
	repo Repository,
	templates TemplateReader,
	expander Expander,
	remover VisitRemover,
	tx TxRunner,
	clock Clock,
	loc *time.Location,
	logger *zap.Logger,
) (*Service, error) {
	if repo == nil {
		return nil, errors.New("schedule service: nil repository")
	}
	if templates == nil {
		return nil, errors.New("schedule service: nil template reader")
	}
	if expander == nil {
		return nil, errors.New("schedule service: nil expander")
	}
	if remover == nil {
		return nil, errors.New("schedule service: nil visit remover")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:      repo,
		templates: templates,
		expander:  expander,
		remover:   remover,
		tx:        tx,
		clock:     clock,
		loc:       loc,
		logger:    logging.OrNop(logger),
	}, nil
}

// Assign sets the template of a date and expands it. An existing assignment
// is replaced; pending visits the previous template expanded for that date
// are removed first.
func (s *Service) Assign(ctx context.Context, date, templateID string) (*AssignResult, error) {
	day, err := schedule.ParseDate(date, s.loc)
	if err != nil {
		return nil, err
	}
	templateID = strings.TrimSpace(templateID)
	if templateID == "" {
		return nil, schedule.ErrTemplateRequired
	}
	key := day.Format(schedule.DateLayout)
	now := s.clock.Now().UTC().Truncate(time.Second)

	result := &AssignResult{}
	err = s.withinTx(ctx, func(ctx context.Context) error {
		tmpl, err := s.templates.GetTemplate(ctx, templateID)
		if err != nil {
			return fmt.Errorf("get template: %w", err)
		}
		if tmpl == nil {
			return schedule.ErrTemplateNotFound
		}
		previous, err := s.repo.GetByDate(ctx, key)
		if err != nil {
			return fmt.Errorf("get assignment: %w", err)
		}
		if err := s.repo.Upsert(ctx, &schedule.Assignment{
			ID:         uuid.NewString(),
			Date:       key,
			TemplateID: templateID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			return fmt.Errorf("upsert assignment: %w", err)
		}
		if previous != nil && previous.TemplateID != templateID {
			removed, err := s.remover.DeletePendingExpandedFor(ctx, previous.TemplateID, day)
			if err != nil {
				return fmt.Errorf("remove visits of replaced template: %w", err)
			}
			result.ReplacedTemplate = previous.TemplateID
			result.RemovedVisits = removed
		}
		expansion, err := s.expander.Expand(ctx, templateID, day)
		if err != nil {
			return fmt.Errorf("expand template: %w", err)
		}
		result.Expansion = expansion

		saved, err := s.repo.GetByDate(ctx, key)
		if err != nil {
			return fmt.Errorf("reload assignment: %w", err)
		}
		if saved == nil {
			return schedule.ErrNotFound
		}
		result.Assignment = *saved
		return nil
	})
	if err != nil {
		metrics.IncAssign(metrics.ResultError)
		return nil, err
	}
	metrics.IncAssign(metrics.ResultSuccess)
	s.logger.Info("template assigned",
		zap.String("date", key),
		zap.String("template_id", templateID),
		zap.String("replaced_template_id", result.ReplacedTemplate),
		zap.Int("removed_visits", result.RemovedVisits),
		zap.Int("created_visits", result.Expansion.Created),
	)
	return result, nil
}

// Unassign removes the assignment of a date and the pending visits matching
// its template's bound stations that day. Completed visits are kept. A date
// without assignment is a no-op.
func (s *Service) Unassign(ctx context.Context, date string) (*UnassignResult, error) {
	day, err := schedule.ParseDate(date, s.loc)
	if err != nil {
		return nil, err
	}
	key := day.Format(schedule.DateLayout)
	from, to := visits.DayBounds(day, s.loc)

	result := &UnassignResult{Date: key}
	err = s.withinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByDate(ctx, key)
		if err != nil {
			return fmt.Errorf("get assignment: %w", err)
		}
		if current == nil {
			return nil
		}
		result.TemplateID = current.TemplateID

		stations, err := s.templates.ListStations(ctx, current.TemplateID)
		if err != nil {
			return fmt.Errorf("list stations: %w", err)
		}
		for _, station := range stations {
			if !station.Bound() {
				continue
			}
			removed, err := s.remover.DeletePendingForStation(ctx, station.CustomerID, station.WorkerID, from, to)
			if err != nil {
				return fmt.Errorf("remove visits for station %s: %w", station.ID, err)
			}
			result.RemovedVisits += removed
		}
		ok, err := s.repo.DeleteByDate(ctx, key)
		if err != nil {
			return fmt.Errorf("delete assignment: %w", err)
		}
		result.Removed = ok
		return nil
	})
	if err != nil {
		metrics.IncUnassign(metrics.ResultError)
		return nil, err
	}
	metrics.IncUnassign(metrics.ResultSuccess)
	s.logger.Info("template unassigned",
		zap.String("date", key),
		zap.String("template_id", result.TemplateID),
		zap.Bool("removed", result.Removed),
		zap.Int("removed_visits", result.RemovedVisits),
	)
	return result, nil
}

// Get returns the assignment of a date.
func (s *Service) Get(ctx context.Context, date string) (*schedule.Assignment, error) {
	day, err := schedule.ParseDate(date, s.loc)
	if err != nil {
		return nil, err
	}
	a, err := s.repo.GetByDate(ctx, day.Format(schedule.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	if a == nil {
		return nil, schedule.ErrNotFound
	}
	return a, nil
}

// List returns assignments between two dates, inclusive.
func (s *Service) List(ctx context.Context, from, to string) ([]schedule.Assignment, error) {
	fromDay, err := schedule.ParseDate(from, s.loc)
	if err != nil {
		return nil, err
	}
	toDay, err := schedule.ParseDate(to, s.loc)
	if err != nil {
		return nil, err
	}
	if toDay.Before(fromDay) {
		return nil, schedule.ErrInvalidRange
	}
	list, err := s.repo.List(ctx, fromDay.Format(schedule.DateLayout), toDay.Format(schedule.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return list, nil
}

func (s *Service) withinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.WithinTx(ctx, fn)
}
