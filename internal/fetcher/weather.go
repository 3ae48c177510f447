package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/DiegoBol25/Smart-Coffe-AI/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultWeatherBaseURL OpenWeatherMap 当前天气 API
const DefaultWeatherBaseURL = "https://api.openweathermap.org/data/2.5"

// WeatherFetcher 按坐标拉取当前天气
type WeatherFetcher interface {
	FetchWeather(ctx context.Context, latitude, longitude float64) Result[models.WeatherSnapshot]
}

// owmResponse OpenWeatherMap /weather 响应中用到的字段
type owmResponse struct {
	Main *struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
}

// OpenWeatherMapFetcher OpenWeatherMap 客户端
type OpenWeatherMapFetcher struct {
	httpClient *resty.Client
	apiKey     string
	lang       string
	logger     *zap.Logger
}

// NewOpenWeatherMapFetcher 创建天气客户端。
// 不做重试：失败后等待下一次调度。
func NewOpenWeatherMapFetcher(baseURL, apiKey, lang string, timeout time.Duration, logger *zap.Logger) *OpenWeatherMapFetcher {
	if baseURL == "" {
		baseURL = DefaultWeatherBaseURL
	}
	if lang == "" {
		lang = "es"
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &OpenWeatherMapFetcher{
		httpClient: client,
		apiKey:     apiKey,
		lang:       lang,
		logger:     logger,
	}
}

// FetchWeather 拉取坐标处的当前天气（公制单位）
func (f *OpenWeatherMapFetcher) FetchWeather(ctx context.Context, latitude, longitude float64) Result[models.WeatherSnapshot] {
	resp, err := f.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":   strconv.FormatFloat(latitude, 'f', -1, 64),
			"lon":   strconv.FormatFloat(longitude, 'f', -1, 64),
			"appid": f.apiKey,
			"units": "metric",
			"lang":  f.lang,
		}).
		Get("/weather")
	if err != nil {
		return Fail[models.WeatherSnapshot](NewError(KindNetworkError, SourceWeather,
			fmt.Errorf("failed to execute request: %w", err)))
	}

	if resp.StatusCode() != http.StatusOK {
		f.logger.Warn("Weather API returned non-200",
			zap.Int("status", resp.StatusCode()),
			zap.Float64("latitude", latitude),
			zap.Float64("longitude", longitude),
		)
		return Fail[models.WeatherSnapshot](NewError(KindNetworkError, SourceWeather,
			fmt.Errorf("API error (status %d): %s", resp.StatusCode(), truncate(resp.String(), 256))))
	}

	var body owmResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return Fail[models.WeatherSnapshot](NewError(KindMalformedResponse, SourceWeather,
			fmt.Errorf("failed to parse response: %w", err)))
	}
	if body.Main == nil {
		return Fail[models.WeatherSnapshot](NewError(KindMalformedResponse, SourceWeather,
			errors.New("response has no main block")))
	}

	condition := ""
	if len(body.Weather) > 0 {
		condition = body.Weather[0].Description
	}

	return Ok(models.WeatherSnapshot{
		Temperature:  body.Main.Temp,
		Humidity:     body.Main.Humidity,
		Pressure:     body.Main.Pressure,
		WindSpeed:    body.Wind.Speed,
		Condition:    condition,
		LocationName: body.Name,
		Country:      body.Sys.Country,
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
