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
	reconcileapp "scentroute-cloud/internal/reconcile/application"
	scheduleapp "scentroute-cloud/internal/schedule/application"
	schedule "scentroute-cloud/internal/schedule/domain"
	schedulerepo "scentroute-cloud/internal/schedule/infrastructure/postgres"
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
	db       *store.DB
	catalog  *catalogapp.Service
	stations *catalogrepo.Repository
	visits   *visitrepo.Repository
	expander *visitapp.Expander
	manual   *visitapp.ManualVisitService
	repo     *schedulerepo.Repository
	service  *scheduleapp.Service
	clock    fixedClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storetest.New(t)
	clock := fixedClock{now: time.Date(2026, 10, 17, 7, 0, 0, 0, time.UTC)}

	stations := catalogrepo.NewRepository(db)
	catalogSvc, err := catalogapp.NewService(stations, db, clock)
	require.NoError(t, err)
	vrepo := visitrepo.NewRepository(db)
	expander, err := visitapp.NewExpander(stations, vrepo, db, clock, time.UTC, nil)
	require.NoError(t, err)
	manual, err := visitapp.NewManualVisitService(vrepo, db, clock)
	require.NoError(t, err)
	repo := schedulerepo.NewRepository(db)
	svc, err := scheduleapp.NewService(repo, stations, expander, vrepo, db, clock, time.UTC, nil)
	require.NoError(t, err)

	ctx := context.Background()
	for _, sp := range []visits.ServicePoint{
		{ID: "sp-1", CustomerID: "c-1", ScentType: "A", RefillAmount: 100},
		{ID: "sp-2", CustomerID: "c-2", ScentType: "B", RefillAmount: 50},
		{ID: "sp-3", CustomerID: "c-3", ScentType: "A", RefillAmount: 70},
	} {
		require.NoError(t, vrepo.CreateServicePoint(ctx, &sp))
	}

	return &fixture{
		db:       db,
		catalog:  catalogSvc,
		stations: stations,
		visits:   vrepo,
		expander: expander,
		manual:   manual,
		repo:     repo,
		service:  svc,
		clock:    clock,
	}
}

func (f *fixture) template(t *testing.T, name string, inputs ...catalogapp.StationInput) string {
	t.Helper()
	ctx := context.Background()
	tmpl, err := f.catalog.CreateTemplate(ctx, name)
	require.NoError(t, err)
	for _, in := range inputs {
		_, err := f.catalog.AddStation(ctx, tmpl.ID, in)
		require.NoError(t, err)
	}
	return tmpl.ID
}

func (f *fixture) countVisits(t *testing.T, status string) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.GetContext(context.Background(), &n, `SELECT COUNT(*) FROM jobs WHERE status = ?`, status))
	return n
}

func (f *fixture) countAssignments(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.GetContext(context.Background(), &n, `SELECT COUNT(*) FROM work_schedules`))
	return n
}

func TestAssign_ExpandsTemplate(t *testing.T) {
	f := newFixture(t)
	north := f.template(t, "North",
		catalogapp.StationInput{CustomerID: "c-1", WorkerID: "w-1", Order: 1},
		catalogapp.StationInput{CustomerID: "c-2", WorkerID: "w-1", Order: 2},
		catalogapp.StationInput{CustomerID: "c-3", Order: 3},
	)

	result, err := f.service.Assign(context.Background(), "2026-10-20", north)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-20", result.Assignment.Date)
	assert.Equal(t, north, result.Assignment.TemplateID)
	assert.Equal(t, 2, result.Expansion.Created)
	assert.Equal(t, 1, result.Expansion.Skipped)
	assert.Empty(t, result.ReplacedTemplate)
	assert.Equal(t, 2, f.countVisits(t, visits.StatusPending))
}

func TestAssign_ReplacesExistingAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	north := f.template(t, "North", catalogapp.StationInput{CustomerID: "c-1", WorkerID: "w-1"})
	south := f.template(t, "South",
		catalogapp.StationInput{CustomerID: "c-2", WorkerID: "w-2"},
		catalogapp.StationInput{CustomerID: "c-3", WorkerID: "w-2"},
	)

	first, err := f.service.Assign(ctx, "2026-10-20", north)
	require.NoError(t, err)
	again, err := f.service.Assign(ctx, "2026-10-20", north)
	require.NoError(t, err)
	assert.Equal(t, first.Assignment.ID, again.Assignment.ID)
	assert.Equal(t, 1, again.Expansion.Existing)
	assert.Equal(t, 1, f.countVisits(t, visits.StatusPending))

	replaced, err := f.service.Assign(ctx, "2026-10-20", south)
	require.NoError(t, err)
	assert.Equal(t, north, replaced.ReplacedTemplate)
	assert.Equal(t, 1, replaced.RemovedVisits)
	assert.Equal(t, south, replaced.Assignment.TemplateID)
	assert.Equal(t, 1, f.countAssignments(t))
	assert.Equal(t, 2, f.countVisits(t, visits.StatusPending))

	got, err := f.service.Get(ctx, "2026-10-20")
	require.NoError(t, err)
	assert.Equal(t, south, got.TemplateID)
}

func TestAssign_ReplaceKeepsVisitsCarriedOverFromEarlierDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	north := f.template(t, "North", catalogapp.StationInput{CustomerID: "c-1", WorkerID: "w-1", ScheduledTime: "23:00"})
	south := f.template(t, "South", catalogapp.StationInput{CustomerID: "c-2", WorkerID: "w-2"})

	_, err := f.service.Assign(ctx, "2026-10-16", north)
	require.NoError(t, err)

	// The 10-16 visit was never done and moves to 10-17 23:00.
	reconciler, err := reconcileapp.NewReconciler(f.visits, fixedClock{now: time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)}, time.UTC, 2, nil)
	require.NoError(t, err)
	swept, err := reconciler.ReconcileNow(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, swept.Succeeded)

	_, err = f.service.Assign(ctx, "2026-10-17", north)
	require.NoError(t, err)
	replaced, err := f.service.Assign(ctx, "2026-10-17", south)
	require.NoError(t, err)
	assert.Equal(t, north, replaced.ReplacedTemplate)
	assert.Equal(t, 1, replaced.RemovedVisits)

	var carried int
	require.NoError(t, f.db.GetContext(ctx, &carried, f.db.Rebind(`SELECT COUNT(*) FROM jobs WHERE status = ? AND source_key LIKE ?`),
		visits.StatusPending, "%|2026-10-16"))
	assert.Equal(t, 1, carried)
	// Carried-over north visit plus the south visit.
	assert.Equal(t, 2, f.countVisits(t, visits.StatusPending))
}

func TestAssign_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Assign(ctx, "20-10-2026", "t-1")
	assert.ErrorIs(t, err, schedule.ErrInvalidDate)
	_, err = f.service.Assign(ctx, "2026-10-20", " ")
	assert.ErrorIs(t, err, schedule.ErrTemplateRequired)
	_, err = f.service.Assign(ctx, "2026-10-20", "missing")
	assert.ErrorIs(t, err, schedule.ErrTemplateNotFound)
	assert.Equal(t, 0, f.countAssignments(t))
}

func TestUnassign_RemovesOnlyPendingVisitsOfThatDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	north := f.template(t, "North",
		catalogapp.StationInput{CustomerID: "c-1", WorkerID: "w-1", Order: 1},
		catalogapp.StationInput{CustomerID: "c-2", WorkerID: "w-1", Order: 2},
		catalogapp.StationInput{Order: 3},
	)
	assigned, err := f.service.Assign(ctx, "2026-10-20", north)
	require.NoError(t, err)
	_, err = f.service.Assign(ctx, "2026-10-21", north)
	require.NoError(t, err)

	// One expanded visit is already done.
	require.NoError(t, f.manual.Complete(ctx, assigned.Expansion.VisitIDs[0]))
	// Same customer and worker that day, entered by hand.
	_, err = f.manual.CreateVisit(ctx, visitapp.ManualVisitInput{
		CustomerID:  "c-2",
		WorkerID:    "w-1",
		ScheduledAt: time.Date(2026, 10, 20, 15, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	// Another worker, untouched.
	_, err = f.manual.CreateVisit(ctx, visitapp.ManualVisitInput{
		CustomerID:  "c-2",
		WorkerID:    "w-9",
		ScheduledAt: time.Date(2026, 10, 20, 15, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	result, err := f.service.Unassign(ctx, "2026-10-20")
	require.NoError(t, err)
	assert.True(t, result.Removed)
	assert.Equal(t, north, result.TemplateID)
	assert.Equal(t, 2, result.RemovedVisits)

	_, err = f.service.Get(ctx, "2026-10-20")
	assert.ErrorIs(t, err, schedule.ErrNotFound)
	assert.Equal(t, 1, f.countVisits(t, visits.StatusCompleted))
	// w-9 visit plus the two visits of 2026-10-21.
	assert.Equal(t, 3, f.countVisits(t, visits.StatusPending))

	var orphans int
	require.NoError(t, f.db.GetContext(ctx, &orphans, `SELECT COUNT(*) FROM job_service_points WHERE job_id NOT IN (SELECT id FROM jobs)`))
	assert.Equal(t, 0, orphans)
}

func TestUnassign_NoOps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.service.Unassign(ctx, "2026-10-20")
	require.NoError(t, err)
	assert.False(t, result.Removed)

	empty := f.template(t, "Empty")
	_, err = f.service.Assign(ctx, "2026-10-22", empty)
	require.NoError(t, err)
	result, err = f.service.Unassign(ctx, "2026-10-22")
	require.NoError(t, err)
	assert.True(t, result.Removed)
	assert.Equal(t, 0, result.RemovedVisits)
	assert.Equal(t, 0, f.countAssignments(t))
}

type failingRemover struct {
	*visitrepo.Repository
}

func (failingRemover) DeletePendingForStation(context.Context, string, string, time.Time, time.Time) (int, error) {
	return 0, errors.New("connection reset")
}

func TestUnassign_RollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	north := f.template(t, "North", catalogapp.StationInput{CustomerID: "c-1", WorkerID: "w-1"})
	_, err := f.service.Assign(ctx, "2026-10-20", north)
	require.NoError(t, err)

	svc, err := scheduleapp.NewService(f.repo, f.stations, f.expander, failingRemover{Repository: f.visits}, f.db, f.clock, time.UTC, nil)
	require.NoError(t, err)
	_, err = svc.Unassign(ctx, "2026-10-20")
	require.Error(t, err)

	assert.Equal(t, 1, f.countAssignments(t))
	assert.Equal(t, 1, f.countVisits(t, visits.StatusPending))
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	north := f.template(t, "North")
	for _, d := range []string{"2026-10-19", "2026-10-20", "2026-10-25"} {
		_, err := f.service.Assign(ctx, d, north)
		require.NoError(t, err)
	}

	list, err := f.service.List(ctx, "2026-10-19", "2026-10-20")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2026-10-19", list[0].Date)

	_, err = f.service.List(ctx, "2026-10-20", "2026-10-19")
	assert.ErrorIs(t, err, schedule.ErrInvalidRange)
}
