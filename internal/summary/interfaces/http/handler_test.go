package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	summaryapp "scentroute-cloud/internal/summary/application"
	summary "scentroute-cloud/internal/summary/domain"
	visits "scentroute-cloud/internal/visits/domain"
)

type stubReader struct{}

func (stubReader) PendingVisitPoints(context.Context, string, time.Time, time.Time) ([]summary.VisitPoints, error) {
	override := 250
	return []summary.VisitPoints{{
		VisitID: "v-1",
		Points: []visits.PointDetail{
			{Point: visits.VisitPoint{ID: "p-1"}, ServicePoint: visits.ServicePoint{ScentType: "Cedar", RefillAmount: 100}},
			{Point: visits.VisitPoint{ID: "p-2", Override: &override}, ServicePoint: visits.ServicePoint{ScentType: "Cedar", RefillAmount: 300}},
		},
	}}, nil
}

func (stubReader) PendingEquipment(context.Context, string, time.Time, time.Time) ([]summary.EquipmentVisit, error) {
	return []summary.EquipmentVisit{{ID: "i-1", Kind: summary.KindInstallation, DeviceType: "wall", BatteryType: "AA"}}, nil
}

func newRouter(t *testing.T) chi.Router {
	t.Helper()
	svc, err := summaryapp.NewService(stubReader{}, time.UTC)
	require.NoError(t, err)
	h, err := NewHandler(svc, nil, nil)
	require.NoError(t, err)
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func get(r chi.Router, target string) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, target, nil))
	return resp
}

func TestHandleSummary(t *testing.T) {
	r := newRouter(t)

	resp := get(r, "/api/v1/summary?worker_id=w-1&date=2026-10-17")
	require.Equal(t, http.StatusOK, resp.Code)
	var got summary.DailySummary
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, 350, got.ScentVolumes["Cedar"])
	assert.Equal(t, 1, got.BatteryCounts["AA"])
	assert.Equal(t, 1, got.DeviceCounts["wall"])

	assert.Equal(t, http.StatusBadRequest, get(r, "/api/v1/summary?date=2026-10-17").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, "/api/v1/summary?worker_id=w-1&date=tomorrow").Code)
}

func TestHandleExport(t *testing.T) {
	r := newRouter(t)

	resp := get(r, "/api/v1/summary/export?worker_id=w-1&date=2026-10-17&format=xlsx")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "summary-w-1-2026-10-17.xlsx")
	f, err := excelize.OpenReader(bytes.NewReader(resp.Body.Bytes()))
	require.NoError(t, err)
	total, err := f.GetCellValue("scents", "B7")
	require.NoError(t, err)
	assert.Equal(t, "350", total)
	rows, err := f.GetRows("equipment")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"device", "wall", "1"}, rows[3])
	assert.Equal(t, []string{"battery", "AA", "1"}, rows[4])

	resp = get(r, "/api/v1/summary/export?worker_id=w-1&date=2026-10-17&format=pdf")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/pdf", resp.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(resp.Body.Bytes(), []byte("%PDF")))

	assert.Equal(t, http.StatusBadRequest, get(r, "/api/v1/summary/export?worker_id=w-1&date=2026-10-17&format=csv").Code)
}
