package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scentroute-cloud/internal/store/storetest"
	visitapp "scentroute-cloud/internal/visits/application"
	visitrepo "scentroute-cloud/internal/visits/infrastructure/postgres"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	db := storetest.New(t)
	repo := visitrepo.NewRepository(db)
	manual, err := visitapp.NewManualVisitService(repo, db, nil)
	require.NoError(t, err)
	quantity, err := visitapp.NewQuantityService(repo)
	require.NoError(t, err)
	points, err := visitapp.NewServicePointService(repo)
	require.NoError(t, err)
	h, err := NewHandler(manual, quantity, points, time.UTC, nil, nil)
	require.NoError(t, err)
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestVisitEndpoints(t *testing.T) {
	router := newRouter(t)

	resp := do(router, http.MethodPost, "/api/v1/service-points", `{"id":"sp-1","customer_id":"c-1","device_type":"wall","scent_type":"A","refill_amount":100}`)
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = do(router, http.MethodPost, "/api/v1/visits", `{"customer_id":"c-1","worker_id":"w-1","scheduled_at":"2026-10-20T09:00:00Z"}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	var created visitResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))

	resp = do(router, http.MethodGet, "/api/v1/visits/"+created.ID, "")
	require.Equal(t, http.StatusOK, resp.Code)
	var detail visitResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &detail))
	require.Len(t, detail.Points, 1)
	assert.Nil(t, detail.Points[0].Override)
	assert.Equal(t, 100, detail.Points[0].Quantity)
	pointID := detail.Points[0].ID

	resp = do(router, http.MethodPut, "/api/v1/service-points/sp-1/refill-amount", `{"refill_amount":140}`)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = do(router, http.MethodGet, "/api/v1/visit-points/"+pointID+"/quantity", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var point visitapp.ResolvedPoint
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &point))
	assert.Equal(t, 140, point.Quantity)

	resp = do(router, http.MethodPut, "/api/v1/visit-points/"+pointID+"/quantity", `{"override":0}`)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &point))
	assert.Equal(t, 0, point.Quantity)

	resp = do(router, http.MethodGet, "/api/v1/visits?worker_id=w-1&date=2026-10-20", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var list []visitResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	require.Len(t, list, 1)

	resp = do(router, http.MethodPost, "/api/v1/visits/"+created.ID+"/complete", "")
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = do(router, http.MethodGet, "/api/v1/customers/c-1/service-points", "")
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestVisitEndpoints_Errors(t *testing.T) {
	router := newRouter(t)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/api/v1/visits", `{"worker_id":"w-1"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/api/v1/visits/missing", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/api/v1/visits?worker_id=w-1&date=tomorrow", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPut, "/api/v1/visit-points/x/quantity", `{"override":-5}`).Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodPut, "/api/v1/service-points/none/refill-amount", `{"refill_amount":5}`).Code)
}
