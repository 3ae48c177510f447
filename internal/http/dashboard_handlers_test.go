package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DiegoBol25/Smart-Coffe-AI/internal/metrics"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/models"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/scheduler"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var (
	sensores = models.SensorReading{
		ID: "Sensores", Temperature: 21.4, Humidity: 58,
		Location:  models.GeoPoint{Latitude: 2.449515, Longitude: -76.599592},
		Timestamp: time.Date(2026, 5, 2, 14, 30, 0, 0, time.UTC),
	}
	popayan = models.WeatherSnapshot{
		Temperature: 20.1, Humidity: 62, Pressure: 1012, WindSpeed: 3.2,
		Condition: "cielo claro", LocationName: "Popayán", Country: "CO",
	}
)

// fakeController 直接操作 PresentationState，模拟事件循环
type fakeController struct {
	st         *state.PresentationState
	refreshErr error
	refreshes  int
}

func (f *fakeController) Refresh(ctx context.Context) error {
	f.refreshes++
	if f.refreshErr != nil {
		return f.refreshErr
	}
	loc := models.UserLocation{Latitude: 2.449515, Longitude: -76.599592}
	w := popayan
	f.st.ReplaceModel(models.DashboardViewModel{
		Sensors:  []models.SensorReading{sensores},
		Location: &loc,
		Weather:  &w,
	})
	return nil
}

func (f *fakeController) SelectSensor(ctx context.Context, id string) error {
	return f.st.SelectSensor(id)
}

func (f *fakeController) ClearSelection(ctx context.Context) error {
	f.st.ClearSelection()
	return nil
}

func (f *fakeController) Status() scheduler.Status {
	return scheduler.Status{Running: true, Lines: []scheduler.LineStatus{{Line: "sensors", State: scheduler.LineIdle}}}
}

func setupRouter(t *testing.T) (http.Handler, *fakeController, *state.PresentationState) {
	t.Helper()
	st := state.New()
	ctrl := &fakeController{st: st}
	h := NewDashboardHandler(ctrl, st, zap.NewNop())
	checks := map[string]HealthCheck{"redis": func(context.Context) error { return nil }}
	return NewRouter(h, metrics.New(), checks, zap.NewNop()), ctrl, st
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) Result[T] {
	t.Helper()
	var out Result[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestGetDashboard_EmptyState(t *testing.T) {
	h, _, _ := setupRouter(t)

	rec := do(t, h, http.MethodGet, "/api/v1/dashboard", "")

	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[models.DashboardSnapshot](t, rec)
	assert.Equal(t, ResultSuccess, res.Code)
	assert.Equal(t, "success", res.Type)
	assert.NotNil(t, res.Result.Model.Sensors)
	assert.Empty(t, res.Result.Model.Sensors)
	assert.Nil(t, res.Result.Model.Weather)
	assert.Nil(t, res.Result.SelectedSensorID)
}

func TestRefresh_ReturnsUpdatedSnapshot(t *testing.T) {
	h, ctrl, _ := setupRouter(t)

	rec := do(t, h, http.MethodPost, "/api/v1/dashboard/refresh", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ctrl.refreshes)
	res := decode[models.DashboardSnapshot](t, rec)
	require.Len(t, res.Result.Model.Sensors, 1)
	assert.Equal(t, "Popayán", res.Result.Model.Weather.LocationName)
	require.NotNil(t, res.Result.Model.Location)
}

func TestRefresh_StoppedIsUnavailable(t *testing.T) {
	h, ctrl, _ := setupRouter(t)
	ctrl.refreshErr = scheduler.ErrStopped

	rec := do(t, h, http.MethodPost, "/api/v1/dashboard/refresh", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	res := decode[any](t, rec)
	assert.Equal(t, ResultError, res.Code)
}

func TestSelection_Lifecycle(t *testing.T) {
	h, _, st := setupRouter(t)
	do(t, h, http.MethodPost, "/api/v1/dashboard/refresh", "")

	rec := do(t, h, http.MethodPost, "/api/v1/dashboard/selection", `{"sensor_id":"Sensores"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[state.Detail](t, rec)
	assert.False(t, detail.Result.Stale)
	assert.Equal(t, 21.4, detail.Result.Reading.Temperature)
	require.NotNil(t, detail.Result.Comparison)
	assert.InDelta(t, 1.3, detail.Result.Comparison.TemperatureDifference, 1e-9)
	assert.InDelta(t, 4.0, detail.Result.Comparison.HumidityDifference, 1e-9)

	// 传感器从模型中消失后详情仍返回上一份读数
	st.ReplaceModel(models.DashboardViewModel{Sensors: []models.SensorReading{}})
	rec = do(t, h, http.MethodGet, "/api/v1/dashboard/selection", "")
	require.Equal(t, http.StatusOK, rec.Code)
	detail = decode[state.Detail](t, rec)
	assert.True(t, detail.Result.Stale)
	assert.Equal(t, "Sensores", detail.Result.Reading.ID)

	rec = do(t, h, http.MethodDelete, "/api/v1/dashboard/selection", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/dashboard/selection", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSelection_BadRequests(t *testing.T) {
	h, _, _ := setupRouter(t)
	do(t, h, http.MethodPost, "/api/v1/dashboard/refresh", "")

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/v1/dashboard/selection", `{"sensor_id":"Lote9"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/dashboard/selection", `{"sensor_id":" "}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/dashboard/selection", `{bad`).Code)
}

func TestComparison(t *testing.T) {
	h, _, st := setupRouter(t)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/dashboard/sensors/Sensores/comparison", "").Code)

	st.ReplaceModel(models.DashboardViewModel{Sensors: []models.SensorReading{sensores}})
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodGet, "/api/v1/dashboard/sensors/Sensores/comparison", "").Code)

	do(t, h, http.MethodPost, "/api/v1/dashboard/refresh", "")
	rec := do(t, h, http.MethodGet, "/api/v1/dashboard/sensors/Sensores/comparison", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[models.Comparison](t, rec)
	assert.Equal(t, "Sensores", res.Result.SensorID)
	assert.InDelta(t, 1.3, res.Result.TemperatureDifference, 1e-9)
}

func TestStatusAndHealth(t *testing.T) {
	h, _, _ := setupRouter(t)

	rec := do(t, h, http.MethodGet, "/api/v1/dashboard/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[scheduler.Status](t, rec)
	assert.True(t, res.Result.Running)

	rec = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cafe_dashboard_http_requests_total")
}

func TestHealth_Degraded(t *testing.T) {
	st := state.New()
	h := NewDashboardHandler(&fakeController{st: st}, st, zap.NewNop())
	router := NewRouter(h, nil, map[string]HealthCheck{
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	}, zap.NewNop())

	rec := do(t, router, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestExport(t *testing.T) {
	h, _, _ := setupRouter(t)
	do(t, h, http.MethodPost, "/api/v1/dashboard/refresh", "")

	rec := do(t, h, http.MethodGet, "/api/v1/dashboard/export.xlsx", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "dashboard.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSensors, SheetWeather, SheetComparisons}, f.GetSheetList())

	id, err := f.GetCellValue(SheetSensors, "A2")
	require.NoError(t, err)
	assert.Equal(t, "Sensores", id)

	place, err := f.GetCellValue(SheetWeather, "A2")
	require.NoError(t, err)
	assert.Equal(t, "Popayán", place)

	rows, err := f.GetRows(SheetComparisons)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Sensores", rows[1][0])
}

func TestExport_WithoutWeatherHasHeadersOnly(t *testing.T) {
	data, err := GenerateDashboardExport(models.DashboardSnapshot{
		Model: models.DashboardViewModel{Sensors: []models.SensorReading{sensores}},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetWeather)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = f.GetRows(SheetSensors)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
