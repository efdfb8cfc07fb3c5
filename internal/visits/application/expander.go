package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	catalog "scentroute-cloud/internal/catalog/domain"
	"scentroute-cloud/internal/observability/logging"
	"scentroute-cloud/internal/observability/metrics"
	visits "scentroute-cloud/internal/visits/domain"
)

// Expander turns a (template, date) pair into pending visits.
type Expander struct {
	stations StationReader
	repo     Repository
	tx       TxRunner
	clock    Clock
	loc      *time.Location
	logger   *zap.Logger
}

// NewExpander constructs an Expander. loc is the service location used to
// place station times on the calendar.
func NewExpander(stations StationReader, repo Repository, tx TxRunner, clock Clock, loc *time.Location, logger *zap.Logger) (*Expander, error) {
	if stations == nil {
		return nil, errors.New("expander: nil station reader")
	}
	if repo == nil {
		return nil, errors.New("expander: nil repository")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Expander{
		stations: stations,
		repo:     repo,
		tx:       tx,
		clock:    clock,
		loc:      loc,
		logger:   logging.OrNop(logger),
	}, nil
}

// Expand creates one pending visit per bound station of the template on the
// calendar day of date. Each visit gets one point per service point of its
// customer, with the override frozen to the current default. Stations already
// expanded for the day are counted as existing and left alone.
func (e *Expander) Expand(ctx context.Context, templateID string, date time.Time) (*visits.ExpansionResult, error) {
	if templateID == "" {
		return nil, fmt.Errorf("%w: template id required", visits.ErrInvalidVisit)
	}
	now := e.clock.Now().UTC().Truncate(time.Second)
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, e.loc)
	result := &visits.ExpansionResult{
		TemplateID: templateID,
		Date:       day.Format("2006-01-02"),
		VisitIDs:   []string{},
		ExpandedAt: now,
	}

	err := withinTx(ctx, e.tx, func(ctx context.Context) error {
		stations, err := e.stations.ListStations(ctx, templateID)
		if err != nil {
			return fmt.Errorf("list stations: %w", err)
		}
		catalog.SortStations(stations)

		for _, station := range stations {
			if !station.Bound() {
				result.Skipped++
				continue
			}
			created, points, err := e.expandStation(ctx, templateID, station, day, now)
			if err != nil {
				return err
			}
			if created == "" {
				result.Existing++
				continue
			}
			result.Created++
			result.Points += points
			result.VisitIDs = append(result.VisitIDs, created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.AddExpansion(result.Created, result.Existing, result.Skipped)
	e.logger.Info("template expanded",
		zap.String("template_id", templateID),
		zap.String("date", result.Date),
		zap.Int("created", result.Created),
		zap.Int("existing", result.Existing),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (e *Expander) expandStation(ctx context.Context, templateID string, station catalog.Station, day, now time.Time) (string, int, error) {
	key := visits.SourceKey(templateID, station.ID, day)
	exists, err := e.repo.SourceKeyExists(ctx, key)
	if err != nil {
		return "", 0, fmt.Errorf("check source key %s: %w", key, err)
	}
	if exists {
		return "", 0, nil
	}

	order := station.Order
	visit := &visits.Visit{
		ID:          uuid.NewString(),
		CustomerID:  station.CustomerID,
		WorkerID:    station.WorkerID,
		ScheduledAt: station.TimeOfDay().On(day, e.loc).UTC(),
		Status:      visits.StatusPending,
		OrderNumber: &order,
		TemplateID:  templateID,
		StationID:   station.ID,
		SourceKey:   key,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.repo.InsertVisit(ctx, visit); err != nil {
		return "", 0, fmt.Errorf("insert visit for station %s: %w", station.ID, err)
	}

	servicePoints, err := e.repo.ListServicePointsByCustomer(ctx, station.CustomerID)
	if err != nil {
		return "", 0, fmt.Errorf("list service points of %s: %w", station.CustomerID, err)
	}
	points := make([]visits.VisitPoint, 0, len(servicePoints))
	for _, sp := range servicePoints {
		amount := sp.RefillAmount
		points = append(points, visits.VisitPoint{
			ID:             uuid.NewString(),
			VisitID:        visit.ID,
			ServicePointID: sp.ID,
			Override:       &amount,
		})
	}
	if err := e.repo.InsertVisitPoints(ctx, points); err != nil {
		return "", 0, fmt.Errorf("insert points for visit %s: %w", visit.ID, err)
	}
	return visit.ID, len(points), nil
}
