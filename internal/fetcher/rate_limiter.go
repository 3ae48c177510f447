package fetcher

import (
	"context"
	"fmt"

	"github.com/DiegoBol25/Smart-Coffe-AI/internal/models"

	"golang.org/x/time/rate"
)

// RateLimitedWeatherFetcher 给天气拉取加令牌桶限流（免费额度保护）
type RateLimitedWeatherFetcher struct {
	next    WeatherFetcher
	limiter *rate.Limiter
}

// NewRateLimitedWeatherFetcher rps 可以小于 1；burst 为令牌桶容量
func NewRateLimitedWeatherFetcher(next WeatherFetcher, rps float64, burst int) *RateLimitedWeatherFetcher {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedWeatherFetcher{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// FetchWeather 等待令牌后转发；等待被取消时返回 network_error
func (r *RateLimitedWeatherFetcher) FetchWeather(ctx context.Context, latitude, longitude float64) Result[models.WeatherSnapshot] {
	if err := r.limiter.Wait(ctx); err != nil {
		return Fail[models.WeatherSnapshot](NewError(KindNetworkError, SourceWeather,
			fmt.Errorf("rate limit wait canceled: %w", err)))
	}
	return r.next.FetchWeather(ctx, latitude, longitude)
}

var (
	_ WeatherFetcher  = (*OpenWeatherMapFetcher)(nil)
	_ WeatherFetcher  = (*RateLimitedWeatherFetcher)(nil)
	_ SensorFetcher   = (*SnapshotSensorFetcher)(nil)
	_ LocationFetcher = (*PermissionLocationFetcher)(nil)
)
