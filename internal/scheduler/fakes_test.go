package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/DiegoBol25/Smart-Coffe-AI/internal/fetcher"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/models"
)

// scripted 按调用序号返回结果；gates 中对应的调用会阻塞直到测试放行
type scripted[T any] struct {
	mu       sync.Mutex
	calls    int
	gates    map[int]chan fetcher.Result[T]
	def      func() fetcher.Result[T]
	entered  chan int
	lastArgs []float64
}

func newScripted[T any](def func() fetcher.Result[T]) *scripted[T] {
	return &scripted[T]{
		gates:   make(map[int]chan fetcher.Result[T]),
		def:     def,
		entered: make(chan int, 64),
	}
}

// gate 让第 n 次调用（从 0 开始）阻塞
func (s *scripted[T]) gate(n int) chan fetcher.Result[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan fetcher.Result[T], 1)
	s.gates[n] = ch
	return ch
}

func (s *scripted[T]) setDefault(def func() fetcher.Result[T]) {
	s.mu.Lock()
	s.def = def
	s.mu.Unlock()
}

func (s *scripted[T]) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scripted[T]) call(ctx context.Context, args ...float64) fetcher.Result[T] {
	s.mu.Lock()
	n := s.calls
	s.calls++
	gate := s.gates[n]
	def := s.def
	s.lastArgs = args
	s.mu.Unlock()

	select {
	case s.entered <- n:
	default:
	}
	if gate != nil {
		select {
		case r := <-gate:
			return r
		case <-ctx.Done():
			return fetcher.Fail[T](fetcher.NewError(fetcher.KindNetworkError, "test", ctx.Err()))
		}
	}
	return def()
}

type fakeSensors struct{ *scripted[[]models.SensorReading] }

func (f fakeSensors) FetchSensors(ctx context.Context) fetcher.Result[[]models.SensorReading] {
	return f.call(ctx)
}

type fakeLocation struct{ *scripted[models.UserLocation] }

func (f fakeLocation) FetchLocation(ctx context.Context) fetcher.Result[models.UserLocation] {
	return f.call(ctx)
}

type fakeWeather struct{ *scripted[models.WeatherSnapshot] }

func (f fakeWeather) FetchWeather(ctx context.Context, lat, lon float64) fetcher.Result[models.WeatherSnapshot] {
	return f.call(ctx, lat, lon)
}

type recordingObserver struct {
	mu        sync.Mutex
	fetches   map[string]int
	skipped   map[string]int
	refreshes int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{fetches: map[string]int{}, skipped: map[string]int{}}
}

func (r *recordingObserver) ObserveFetch(line, outcome string, elapsed time.Duration) {
	r.mu.Lock()
	r.fetches[line+"/"+outcome]++
	r.mu.Unlock()
}

func (r *recordingObserver) ObserveSkippedTick(line string) {
	r.mu.Lock()
	r.skipped[line]++
	r.mu.Unlock()
}

func (r *recordingObserver) ObserveRefresh(time.Duration) {
	r.mu.Lock()
	r.refreshes++
	r.mu.Unlock()
}

func (r *recordingObserver) fetchCount(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches[key]
}

func (r *recordingObserver) refreshCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshes
}

func (r *recordingObserver) skippedCount(line string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipped[line]
}

var (
	sensorReading = models.SensorReading{
		ID: "Sensores", Temperature: 21.4, Humidity: 58,
		Location:  models.GeoPoint{Latitude: 2.449515, Longitude: -76.599592},
		Timestamp: time.Date(2026, 5, 2, 14, 30, 0, 0, time.UTC),
	}
	popayanLocation = models.UserLocation{Latitude: 2.449515, Longitude: -76.599592}
	popayanWeather  = models.WeatherSnapshot{
		Temperature: 20.1, Humidity: 62, Pressure: 1012, WindSpeed: 3.2,
		Condition: "cielo claro", LocationName: "Popayán", Country: "CO",
	}
)

func okSensors(r ...models.SensorReading) func() fetcher.Result[[]models.SensorReading] {
	return func() fetcher.Result[[]models.SensorReading] {
		out := make([]models.SensorReading, len(r))
		copy(out, r)
		return fetcher.Ok(out)
	}
}

func okLocation(l models.UserLocation) func() fetcher.Result[models.UserLocation] {
	return func() fetcher.Result[models.UserLocation] { return fetcher.Ok(l) }
}

func okWeather(w models.WeatherSnapshot) func() fetcher.Result[models.WeatherSnapshot] {
	return func() fetcher.Result[models.WeatherSnapshot] { return fetcher.Ok(w) }
}

func failWith[T any](kind fetcher.Kind, source string) func() fetcher.Result[T] {
	return func() fetcher.Result[T] {
		return fetcher.Fail[T](fetcher.NewError(kind, source, nil))
	}
}
