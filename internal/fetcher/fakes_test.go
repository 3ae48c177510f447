package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/DiegoBol25/Smart-Coffe-AI/internal/models"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/store"
)

type fakeSensorStore struct {
	rec *store.SnapshotRecord
	err error
}

func (f *fakeSensorStore) ReadSnapshot(ctx context.Context, node string) (*store.SnapshotRecord, error) {
	return f.rec, f.err
}

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newFakeKV() *fakeKV { return &fakeKV{data: make(map[string]string)} }

func (f *fakeKV) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.data[key]
	if !ok {
		return "", store.ErrMiss
	}
	return v, nil
}

func (f *fakeKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

type countingWeatherFetcher struct {
	mu    sync.Mutex
	calls int
}

func (c *countingWeatherFetcher) FetchWeather(ctx context.Context, lat, lon float64) Result[models.WeatherSnapshot] {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return Ok(models.WeatherSnapshot{Temperature: 20.1, Humidity: 62})
}

func f64(v float64) *float64 { return &v }
