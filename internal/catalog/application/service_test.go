package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogapp "scentroute-cloud/internal/catalog/application"
	catalog "scentroute-cloud/internal/catalog/domain"
	catalogrepo "scentroute-cloud/internal/catalog/infrastructure/postgres"
	"scentroute-cloud/internal/store"
	"scentroute-cloud/internal/store/storetest"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func newService(t *testing.T) (*catalogapp.Service, *store.DB) {
	t.Helper()
	db := storetest.New(t)
	svc, err := catalogapp.NewService(catalogrepo.NewRepository(db), db, fixedClock{now: time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	return svc, db
}

func TestNewService_RequiresRepository(t *testing.T) {
	_, err := catalogapp.NewService(nil, nil, nil)
	require.Error(t, err)
}

func TestCreateTemplate_RejectsBlankName(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.CreateTemplate(context.Background(), "  ")
	require.ErrorIs(t, err, catalog.ErrEmptyName)
}

func TestTemplateLifecycle(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	north, err := svc.CreateTemplate(ctx, "North")
	require.NoError(t, err)
	_, err = svc.CreateTemplate(ctx, "East")
	require.NoError(t, err)

	_, err = svc.AddStation(ctx, north.ID, catalogapp.StationInput{CustomerID: "c-1", WorkerID: "w-1", Order: 2, ScheduledTime: "10:30"})
	require.NoError(t, err)
	_, err = svc.AddStation(ctx, north.ID, catalogapp.StationInput{Order: 1})
	require.NoError(t, err)
	third, err := svc.AddStation(ctx, north.ID, catalogapp.StationInput{CustomerID: "c-3", WorkerID: "w-1", Order: 1})
	require.NoError(t, err)

	list, err := svc.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "East", list[0].Name)
	assert.Equal(t, 0, list[0].StationCount)
	assert.Equal(t, "North", list[1].Name)
	assert.Equal(t, 3, list[1].StationCount)

	detail, err := svc.GetTemplate(ctx, north.ID)
	require.NoError(t, err)
	require.Len(t, detail.Stations, 3)
	assert.Equal(t, 1, detail.Stations[0].Order)
	assert.False(t, detail.Stations[0].Bound())
	assert.Equal(t, third.ID, detail.Stations[1].ID)
	assert.Equal(t, "10:30", detail.Stations[2].ScheduledTime)

	renamed, err := svc.RenameTemplate(ctx, north.ID, "North A")
	require.NoError(t, err)
	assert.Equal(t, "North A", renamed.Name)

	updated, err := svc.UpdateStation(ctx, detail.Stations[0].ID, catalogapp.StationInput{CustomerID: "c-2", WorkerID: "w-2", Order: 5, ScheduledTime: "7:05"})
	require.NoError(t, err)
	assert.True(t, updated.Bound())
	assert.Equal(t, "07:05", updated.ScheduledTime)

	require.NoError(t, svc.RemoveStation(ctx, third.ID))
	require.ErrorIs(t, svc.RemoveStation(ctx, third.ID), catalog.ErrNotFound)

	require.NoError(t, svc.DeleteTemplate(ctx, north.ID))
	_, err = svc.GetTemplate(ctx, north.ID)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestAddStation_Validation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.AddStation(ctx, "missing", catalogapp.StationInput{})
	require.ErrorIs(t, err, catalog.ErrNotFound)

	tmpl, err := svc.CreateTemplate(ctx, "North")
	require.NoError(t, err)
	_, err = svc.AddStation(ctx, tmpl.ID, catalogapp.StationInput{ScheduledTime: "9am"})
	require.ErrorIs(t, err, catalog.ErrInvalidTime)
}

func TestDeleteTemplate_RejectsAssignedTemplate(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	tmpl, err := svc.CreateTemplate(ctx, "North")
	require.NoError(t, err)
	now := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	_, err = db.ExecContext(ctx, `INSERT INTO work_schedules (id, template_id, schedule_date, created_at, updated_at) VALUES ('a-1', ?, '2026-10-18', ?, ?)`, tmpl.ID, now, now)
	require.NoError(t, err)

	require.ErrorIs(t, svc.DeleteTemplate(ctx, tmpl.ID), catalog.ErrTemplateInUse)
	require.ErrorIs(t, svc.DeleteTemplate(ctx, "missing"), catalog.ErrNotFound)
}
