package state

import (
	"sync"
	"testing"
	"time"

	"github.com/DiegoBol25/Smart-Coffe-AI/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sensores = models.SensorReading{
		ID: "Sensores", Temperature: 21.4, Humidity: 58,
		Location:  models.GeoPoint{Latitude: 2.449515, Longitude: -76.599592},
		Timestamp: time.Date(2026, 5, 2, 14, 30, 0, 0, time.UTC),
	}
	popayan = models.WeatherSnapshot{Temperature: 20.1, Humidity: 62, LocationName: "Popayán", Country: "CO"}
)

func TestSelectSensor_UnknownIDRejected(t *testing.T) {
	s := New()
	s.ReplaceModel(models.DashboardViewModel{Sensors: []models.SensorReading{sensores}})

	assert.ErrorIs(t, s.SelectSensor("Lote9"), ErrSensorNotFound)
	assert.Nil(t, s.Snapshot().SelectedSensorID)
}

func TestSelectedDetail_WithComparison(t *testing.T) {
	s := New()
	s.ReplaceModel(models.DashboardViewModel{Sensors: []models.SensorReading{sensores}, Weather: &popayan})
	require.NoError(t, s.SelectSensor("Sensores"))

	d, err := s.SelectedDetail()

	require.NoError(t, err)
	assert.False(t, d.Stale)
	assert.Equal(t, sensores, d.Reading)
	require.NotNil(t, d.Comparison)
	assert.InDelta(t, 1.3, d.Comparison.TemperatureDifference, 1e-9)
	assert.InDelta(t, 4.0, d.Comparison.HumidityDifference, 1e-9)
}

func TestSelectedDetail_KeepsLastKnownGoodWhenSensorDisappears(t *testing.T) {
	s := New()
	s.ReplaceModel(models.DashboardViewModel{Sensors: []models.SensorReading{sensores}})
	require.NoError(t, s.SelectSensor("Sensores"))

	s.ReplaceModel(models.DashboardViewModel{Sensors: []models.SensorReading{}})

	d, err := s.SelectedDetail()
	require.NoError(t, err)
	assert.True(t, d.Stale)
	assert.Equal(t, 21.4, d.Reading.Temperature)
	assert.Nil(t, d.Comparison)

	snap := s.Snapshot()
	require.NotNil(t, snap.SelectedSensorID)
	assert.Equal(t, "Sensores", *snap.SelectedSensorID)
}

func TestSelectedDetail_FollowsNewReadings(t *testing.T) {
	s := New()
	s.ReplaceModel(models.DashboardViewModel{Sensors: []models.SensorReading{sensores}})
	require.NoError(t, s.SelectSensor("Sensores"))

	newer := sensores
	newer.Temperature = 23
	s.ReplaceModel(models.DashboardViewModel{Sensors: []models.SensorReading{newer}})
	s.ReplaceModel(models.DashboardViewModel{Sensors: []models.SensorReading{}})

	d, err := s.SelectedDetail()
	require.NoError(t, err)
	assert.True(t, d.Stale)
	assert.Equal(t, 23.0, d.Reading.Temperature)
}

func TestClearSelection(t *testing.T) {
	s := New()
	s.ReplaceModel(models.DashboardViewModel{Sensors: []models.SensorReading{sensores}})
	require.NoError(t, s.SelectSensor("Sensores"))

	s.ClearSelection()

	_, err := s.SelectedDetail()
	assert.ErrorIs(t, err, ErrNoSelection)
	assert.Nil(t, s.Snapshot().SelectedSensorID)
}

func TestComparison(t *testing.T) {
	s := New()
	s.ReplaceModel(models.DashboardViewModel{Sensors: []models.SensorReading{sensores}})

	_, err := s.Comparison("Sensores")
	assert.ErrorIs(t, err, ErrWeatherUnavailable)

	_, err = s.Comparison("nope")
	assert.ErrorIs(t, err, ErrSensorNotFound)

	s.ReplaceModel(models.DashboardViewModel{Sensors: []models.SensorReading{sensores}, Weather: &popayan})
	c, err := s.Comparison("Sensores")
	require.NoError(t, err)
	assert.InDelta(t, 1.3, c.TemperatureDifference, 1e-9)
}

func TestHooksAndVersion(t *testing.T) {
	s := New()
	var mu sync.Mutex
	var versions []uint64
	var refreshing []bool
	s.OnChange(func(snap models.DashboardSnapshot) {
		mu.Lock()
		versions = append(versions, snap.Version)
		refreshing = append(refreshing, snap.Refreshing)
		mu.Unlock()
	})

	s.SetRefreshing(true)
	s.SetRefreshing(true) // 无变化，不触发
	s.ReplaceModel(models.DashboardViewModel{Sensors: []models.SensorReading{sensores}})
	s.SetRefreshing(false)
	s.ClearSelection() // 未选中，不触发

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2, 3}, versions)
	assert.Equal(t, []bool{true, true, false}, refreshing)
	assert.Equal(t, uint64(3), s.Snapshot().Version)
}

func TestSnapshotIsDetached(t *testing.T) {
	s := New()
	s.ReplaceModel(models.DashboardViewModel{Sensors: []models.SensorReading{sensores}, Weather: &popayan})

	snap := s.Snapshot()
	snap.Model.Sensors[0].Temperature = 0
	snap.Model.Weather.Temperature = 0

	m := s.Model()
	assert.Equal(t, 21.4, m.Sensors[0].Temperature)
	assert.Equal(t, 20.1, m.Weather.Temperature)

	_, ok := s.Location()
	assert.False(t, ok)
}
