package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogapp "scentroute-cloud/internal/catalog/application"
	catalogrepo "scentroute-cloud/internal/catalog/infrastructure/postgres"
	"scentroute-cloud/internal/store"
	"scentroute-cloud/internal/store/storetest"
	visitapp "scentroute-cloud/internal/visits/application"
	visits "scentroute-cloud/internal/visits/domain"
	visitrepo "scentroute-cloud/internal/visits/infrastructure/postgres"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type fixture struct {
	db        *store.DB
	catalog   *catalogapp.Service
	stations  *catalogrepo.Repository
	repo      *visitrepo.Repository
	points    *visitapp.ServicePointService
	expander  *visitapp.Expander
	manual    *visitapp.ManualVisitService
	quantity  *visitapp.QuantityService
	loc       *time.Location
	clock     fixedClock
	template  string
	stationID map[string]string
}

func intPtr(v int) *int { return &v }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storetest.New(t)
	clock := fixedClock{now: time.Date(2026, 10, 17, 7, 0, 0, 0, time.UTC)}
	loc := time.FixedZone("UTC+2", 2*3600)

	stations := catalogrepo.NewRepository(db)
	catalogSvc, err := catalogapp.NewService(stations, db, clock)
	require.NoError(t, err)
	repo := visitrepo.NewRepository(db)
	pointSvc, err := visitapp.NewServicePointService(repo)
	require.NoError(t, err)
	expander, err := visitapp.NewExpander(stations, repo, db, clock, loc, nil)
	require.NoError(t, err)
	manual, err := visitapp.NewManualVisitService(repo, db, clock)
	require.NoError(t, err)
	quantity, err := visitapp.NewQuantityService(repo)
	require.NoError(t, err)

	return &fixture{
		db:        db,
		catalog:   catalogSvc,
		stations:  stations,
		repo:      repo,
		points:    pointSvc,
		expander:  expander,
		manual:    manual,
		quantity:  quantity,
		loc:       loc,
		clock:     clock,
		stationID: map[string]string{},
	}
}

// seed builds template "North" with two bound stations and one placeholder.
// c-1 owns two service points, c-2 owns one.
func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	tmpl, err := f.catalog.CreateTemplate(ctx, "North")
	require.NoError(t, err)
	f.template = tmpl.ID

	for name, in := range map[string]catalogapp.StationInput{
		"first":       {CustomerID: "c-1", WorkerID: "w-1", Order: 1, ScheduledTime: "10:30"},
		"second":      {CustomerID: "c-2", WorkerID: "w-1", Order: 2},
		"placeholder": {Order: 3},
	} {
		s, err := f.catalog.AddStation(ctx, tmpl.ID, in)
		require.NoError(t, err)
		f.stationID[name] = s.ID
	}

	for _, sp := range []visits.ServicePoint{
		{ID: "sp-1", CustomerID: "c-1", DeviceType: "wall", ScentType: "A", RefillAmount: 100},
		{ID: "sp-2", CustomerID: "c-1", DeviceType: "wall", ScentType: "B", RefillAmount: 40},
		{ID: "sp-3", CustomerID: "c-2", DeviceType: "tower", ScentType: "A", RefillAmount: 250},
	} {
		_, err := f.points.Create(ctx, sp)
		require.NoError(t, err)
	}
}

func TestExpand_CreatesOneVisitPerBoundStation(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()
	date := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)

	result, err := f.expander.Expand(ctx, f.template, date)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Existing)
	assert.Equal(t, 3, result.Points)
	assert.Equal(t, "2026-10-20", result.Date)
	require.Len(t, result.VisitIDs, 2)

	first, err := f.quantity.VisitDetail(ctx, result.VisitIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "c-1", first.Visit.CustomerID)
	assert.Equal(t, visits.StatusPending, first.Visit.Status)
	assert.Equal(t, f.template, first.Visit.TemplateID)
	assert.Equal(t, visits.SourceKey(f.template, f.stationID["first"], date), first.Visit.SourceKey)
	assert.True(t, first.Visit.ScheduledAt.Equal(time.Date(2026, 10, 20, 10, 30, 0, 0, f.loc)))
	require.Len(t, first.Points, 2)
	for _, p := range first.Points {
		require.NotNil(t, p.Override)
		assert.Equal(t, p.Default, *p.Override)
	}

	second, err := f.quantity.VisitDetail(ctx, result.VisitIDs[1])
	require.NoError(t, err)
	assert.True(t, second.Visit.ScheduledAt.Equal(time.Date(2026, 10, 20, 9, 0, 0, 0, f.loc)))
	require.Len(t, second.Points, 1)
}

func TestExpand_SnapshotsOverrideAgainstLaterDefaultChange(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	result, err := f.expander.Expand(ctx, f.template, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	_, err = f.points.UpdateRefillAmount(ctx, "sp-3", 300)
	require.NoError(t, err)

	detail, err := f.quantity.VisitDetail(ctx, result.VisitIDs[1])
	require.NoError(t, err)
	require.Len(t, detail.Points, 1)
	assert.Equal(t, 250, detail.Points[0].Quantity)
	assert.Equal(t, 300, detail.Points[0].Default)
}

func TestExpand_IsIdempotentPerStationAndDate(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()
	date := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)

	_, err := f.expander.Expand(ctx, f.template, date)
	require.NoError(t, err)
	again, err := f.expander.Expand(ctx, f.template, date)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 2, again.Existing)

	var n int
	require.NoError(t, f.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM jobs`))
	assert.Equal(t, 2, n)

	other, err := f.expander.Expand(ctx, f.template, date.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, other.Created)
}

type failingPoints struct {
	*visitrepo.Repository
	calls int
}

func (r *failingPoints) InsertVisitPoints(ctx context.Context, points []visits.VisitPoint) error {
	r.calls++
	if r.calls == 2 {
		return errors.New("disk full")
	}
	return r.Repository.InsertVisitPoints(ctx, points)
}

func TestExpand_RollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	expander, err := visitapp.NewExpander(f.stations, &failingPoints{Repository: f.repo}, f.db, f.clock, f.loc, nil)
	require.NoError(t, err)
	_, err = expander.Expand(ctx, f.template, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)

	var n int
	require.NoError(t, f.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM jobs`))
	assert.Equal(t, 0, n)
	require.NoError(t, f.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM job_service_points`))
	assert.Equal(t, 0, n)
}

func TestManualVisit_LeavesOverrideUnset(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	visit, err := f.manual.CreateVisit(ctx, visitapp.ManualVisitInput{
		CustomerID:  "c-1",
		WorkerID:    "w-2",
		ScheduledAt: time.Date(2026, 10, 21, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Empty(t, visit.TemplateID)

	detail, err := f.quantity.VisitDetail(ctx, visit.ID)
	require.NoError(t, err)
	require.Len(t, detail.Points, 2)
	for _, p := range detail.Points {
		assert.Nil(t, p.Override)
	}

	_, err = f.points.UpdateRefillAmount(ctx, "sp-1", 130)
	require.NoError(t, err)
	detail, err = f.quantity.VisitDetail(ctx, visit.ID)
	require.NoError(t, err)
	quantities := map[string]int{}
	for _, p := range detail.Points {
		quantities[p.ServicePointID] = p.Quantity
	}
	assert.Equal(t, map[string]int{"sp-1": 130, "sp-2": 40}, quantities)
}

func TestManualVisit_ExplicitOverrideAndValidation(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	visit, err := f.manual.CreateVisit(ctx, visitapp.ManualVisitInput{
		CustomerID:  "c-1",
		WorkerID:    "w-2",
		ScheduledAt: time.Date(2026, 10, 21, 8, 0, 0, 0, time.UTC),
		Points:      []visitapp.ManualPointInput{{ServicePointID: "sp-1", Override: intPtr(0)}},
	})
	require.NoError(t, err)
	detail, err := f.quantity.VisitDetail(ctx, visit.ID)
	require.NoError(t, err)
	require.Len(t, detail.Points, 1)
	assert.Equal(t, 0, detail.Points[0].Quantity)

	_, err = f.manual.CreateVisit(ctx, visitapp.ManualVisitInput{CustomerID: "c-1", ScheduledAt: time.Now()})
	assert.ErrorIs(t, err, visits.ErrInvalidVisit)
	_, err = f.manual.CreateVisit(ctx, visitapp.ManualVisitInput{WorkerID: "w-1", ScheduledAt: time.Now()})
	assert.ErrorIs(t, err, visits.ErrInvalidVisit)
	_, err = f.manual.CreateVisit(ctx, visitapp.ManualVisitInput{
		CustomerID:  "c-1",
		WorkerID:    "w-1",
		ScheduledAt: time.Now(),
		Points:      []visitapp.ManualPointInput{{ServicePointID: "sp-404"}},
	})
	assert.ErrorIs(t, err, visits.ErrNotFound)
}

func TestManualVisit_RejectsPointOfAnotherCustomer(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()
	var before int
	require.NoError(t, f.db.GetContext(ctx, &before, `SELECT COUNT(*) FROM jobs`))

	_, err := f.manual.CreateVisit(ctx, visitapp.ManualVisitInput{
		CustomerID:  "c-1",
		WorkerID:    "w-1",
		ScheduledAt: time.Date(2026, 10, 21, 8, 0, 0, 0, time.UTC),
		Points:      []visitapp.ManualPointInput{{ServicePointID: "sp-1"}, {ServicePointID: "sp-3"}},
	})
	assert.ErrorIs(t, err, visits.ErrInvalidVisit)

	_, err = f.manual.CreateVisit(ctx, visitapp.ManualVisitInput{
		OneTimeCustomerID: "walk-in",
		WorkerID:          "w-1",
		ScheduledAt:       time.Date(2026, 10, 21, 8, 0, 0, 0, time.UTC),
		Points:            []visitapp.ManualPointInput{{ServicePointID: "sp-1"}},
	})
	assert.ErrorIs(t, err, visits.ErrInvalidVisit)

	var after int
	require.NoError(t, f.db.GetContext(ctx, &after, `SELECT COUNT(*) FROM jobs`))
	assert.Equal(t, before, after)
}

func TestQuantityService_SetOverride(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	visit, err := f.manual.CreateVisit(ctx, visitapp.ManualVisitInput{
		CustomerID:  "c-2",
		WorkerID:    "w-1",
		ScheduledAt: time.Date(2026, 10, 21, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	detail, err := f.quantity.VisitDetail(ctx, visit.ID)
	require.NoError(t, err)
	pointID := detail.Points[0].ID

	got, err := f.quantity.ResolvedQuantity(ctx, pointID)
	require.NoError(t, err)
	assert.Equal(t, 250, got.Quantity)

	got, err = f.quantity.SetOverride(ctx, pointID, intPtr(75))
	require.NoError(t, err)
	assert.Equal(t, 75, got.Quantity)

	got, err = f.quantity.SetOverride(ctx, pointID, nil)
	require.NoError(t, err)
	assert.Equal(t, 250, got.Quantity)

	_, err = f.quantity.SetOverride(ctx, pointID, intPtr(-1))
	assert.ErrorIs(t, err, visits.ErrNegativeQuantity)
	_, err = f.quantity.ResolvedQuantity(ctx, "missing")
	assert.ErrorIs(t, err, visits.ErrNotFound)
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	visit, err := f.manual.CreateVisit(ctx, visitapp.ManualVisitInput{
		OneTimeCustomerID: "walk-in",
		WorkerID:          "w-1",
		ScheduledAt:       time.Date(2026, 10, 21, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, f.manual.Complete(ctx, visit.ID))
	require.NoError(t, f.manual.Complete(ctx, visit.ID))
	require.ErrorIs(t, f.manual.Complete(ctx, "missing"), visits.ErrNotFound)

	detail, err := f.quantity.VisitDetail(ctx, visit.ID)
	require.NoError(t, err)
	assert.Equal(t, visits.StatusCompleted, detail.Visit.Status)
	assert.Empty(t, detail.Points)
}
