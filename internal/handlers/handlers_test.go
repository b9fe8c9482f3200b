package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MCPumpkingz/polar-dashboard/internal/analytics"
	"github.com/MCPumpkingz/polar-dashboard/internal/cache"
	"github.com/MCPumpkingz/polar-dashboard/internal/config"
	"github.com/MCPumpkingz/polar-dashboard/internal/models"
)

type fakeService struct {
	lastWindow int
	pingErr    error
	stats      models.StatsResponse
}

func (f *fakeService) Snapshot(_ context.Context, minutes int) (models.Snapshot, error) {
	if _, err := analytics.NewWindowSpec(minutes); err != nil {
		return models.Snapshot{}, err
	}
	f.lastWindow = minutes
	return analytics.NewSnapshot(models.DerivedMetrics{WindowMinutes: minutes, State: models.StateRecovery}), nil
}

func (f *fakeService) Dashboard(ctx context.Context, minutes int) (models.Dashboard, error) {
	snap, err := f.Snapshot(ctx, minutes)
	if err != nil {
		return models.Dashboard{}, err
	}
	return models.Dashboard{
		Snapshot:        snap,
		HeartRate:       []models.SeriesPoint{{Time: time.Unix(0, 0).UTC(), Value: 70}},
		DisplayTimeZone: "Europe/Zurich",
	}, nil
}

func (f *fakeService) Stats() models.StatsResponse { return f.stats }
func (f *fakeService) Ping(context.Context) error  { return f.pingErr }
func (f *fakeService) DefaultWindow() int          { return 15 }

type fixedClients int

func (c fixedClients) Count() int { return int(c) }

func setupRouter(t *testing.T, svc SnapshotService, latest LatestReader, clients ClientCounter) *mux.Router {
	t.Helper()
	router := mux.NewRouter()
	NewHandler(svc, latest, clients, zap.NewNop()).Register(router)
	return router
}

func do(t *testing.T, router http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSnapshotHandler(t *testing.T) {
	svc := &fakeService{}
	router := setupRouter(t, svc, nil, nil)

	rec := do(t, router, "/api/snapshot?window=30")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, 30, svc.lastWindow)

	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, models.StateRecovery, snap.State)
	assert.Equal(t, "Recovery / Flow", snap.StateName)
	assert.True(t, snap.StoreAvailable)
}

func TestSnapshotHandler_DefaultWindow(t *testing.T) {
	svc := &fakeService{}
	rec := do(t, setupRouter(t, svc, nil, nil), "/api/snapshot")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 15, svc.lastWindow)
}

func TestSnapshotHandler_InvalidWindow(t *testing.T) {
	router := setupRouter(t, &fakeService{}, nil, nil)

	for _, target := range []string{
		"/api/snapshot?window=4",
		"/api/snapshot?window=61",
		"/api/snapshot?window=fifteen",
		"/api/snapshot?window=15.5",
		"/api/dashboard?window=0",
	} {
		rec := do(t, router, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.NotEmpty(t, body["error"], target)
	}
}

func TestSnapshotHandler_MethodNotAllowed(t *testing.T) {
	router := setupRouter(t, &fakeService{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/snapshot", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDashboardHandler(t *testing.T) {
	rec := do(t, setupRouter(t, &fakeService{}, nil, nil), "/api/dashboard?window=20")
	require.Equal(t, http.StatusOK, rec.Code)

	var d models.Dashboard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, 20, d.Snapshot.WindowMinutes)
	assert.Len(t, d.HeartRate, 1)
	assert.Equal(t, "Europe/Zurich", d.DisplayTimeZone)
}

func TestStatesHandler(t *testing.T) {
	rec := do(t, setupRouter(t, &fakeService{}, nil, nil), "/api/states")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		States     []models.StateProfile `json:"states"`
		Thresholds map[string]float64    `json:"thresholds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.States, 5)
	assert.Equal(t, 0.7, body.Thresholds["mild_stress"])
	assert.Equal(t, 1.3, body.Thresholds["recovery"])
}

func TestLatestSnapshotHandler_NoCache(t *testing.T) {
	rec := do(t, setupRouter(t, &fakeService{}, nil, nil), "/api/snapshot/latest")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLatestSnapshotHandler_WithCache(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer c.Close()

	router := setupRouter(t, &fakeService{}, c, nil)

	rec := do(t, router, "/api/snapshot/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	snap := analytics.NewSnapshot(models.DerivedMetrics{WindowMinutes: 15, State: models.StateMildStress})
	require.NoError(t, c.SaveSnapshot(context.Background(), snap, true))

	rec = do(t, router, "/api/snapshot/latest")
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.StateMildStress, got.State)
}

func TestStateHistoryHandler(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer c.Close()

	for _, s := range []models.State{models.StateRecovery, models.StateBalanced, models.StateHighStress} {
		snap := analytics.NewSnapshot(models.DerivedMetrics{WindowMinutes: 15, State: s})
		require.NoError(t, c.SaveSnapshot(context.Background(), snap, true))
	}

	router := setupRouter(t, &fakeService{}, c, nil)

	rec := do(t, router, "/api/states/history?n=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body models.StateHistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []models.State{models.StateHighStress, models.StateBalanced}, body.States)
	assert.Equal(t, 2, body.Count)

	rec = do(t, router, "/api/states/history")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Count)

	for _, target := range []string{
		"/api/states/history?n=0",
		"/api/states/history?n=1001",
		"/api/states/history?n=ten",
	} {
		assert.Equal(t, http.StatusBadRequest, do(t, router, target).Code, target)
	}
}

func TestStateHistoryHandler_NoCache(t *testing.T) {
	rec := do(t, setupRouter(t, &fakeService{}, nil, nil), "/api/states/history")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	svc := &fakeService{}
	router := setupRouter(t, svc, nil, nil)

	rec := do(t, router, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "connected", status.Store)
	assert.Equal(t, "disabled", status.Redis)

	svc.pingErr = errors.New("no reachable servers")
	rec = do(t, router, "/health")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "disconnected", status.Store)
}

func TestStatsHandler(t *testing.T) {
	svc := &fakeService{stats: models.StatsResponse{Cycles: 42, StoreFailures: 2, DefaultWindow: 15, LastState: "balanced"}}
	rec := do(t, setupRouter(t, svc, nil, fixedClients(3)), "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(42), stats.Cycles)
	assert.Equal(t, int64(2), stats.StoreFailures)
	assert.Equal(t, 3, stats.LiveClients)
	assert.Equal(t, "balanced", stats.LastState)
}

func BenchmarkSnapshotHandler(b *testing.B) {
	router := mux.NewRouter()
	NewHandler(&fakeService{}, nil, nil, zap.NewNop()).Register(router)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/snapshot?window=15", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
	}
}
