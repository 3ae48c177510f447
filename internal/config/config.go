package config

import (
	"fmt"
	"time"

	"github.com/DiegoBol25/Smart-Coffe-AI/cafe-common/config"
)

// 传感器存储类型
const (
	SensorStoreRedis    = "redis"
	SensorStorePostgres = "postgres"
)

// 位置来源
const (
	LocationProviderStatic = "static"
	LocationProviderKV     = "kv"
)

// Config 看板服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 远端传感器存储
	Sensor struct {
		Store    string  // "redis" 或 "postgres"
		Node     string  // 节点名，同时作为读数 ID，默认 "Sensores"
		FixedLat float64 // 存储不上报位置，读数挂在固定坐标上
		FixedLon float64
	}

	// 刷新调度
	Scheduler struct {
		SensorInterval  time.Duration // 默认 5 秒
		WeatherInterval time.Duration // 默认 5 分钟
		FetchTimeout    time.Duration // 单次拉取超时，默认 10 秒
	}

	// 用户位置
	Location struct {
		Provider   string // "static" 或 "kv"
		Permission string // static 模式下的权限：granted / denied
		Latitude   *float64
		Longitude  *float64
		DeviceID   string // kv 模式下的设备 ID
		Accuracy   string // low / balanced / high
	}

	// 天气 API
	Weather struct {
		BaseURL        string
		APIKey         string
		Lang           string
		RateLimitRPS   float64 // <=0 表示不限流
		RateLimitBurst int
	}

	// 视图发布
	Dashboard struct {
		CacheKey      string
		CacheTTL      time.Duration
		CacheRefresh  time.Duration // 无新快照时的重发间隔，默认 TTL/3
		EventsEnabled bool
		EventStream   string
		ConsumerGroup string
		ConsumerName  string // 为空时自动生成
	}

	MQTTEnabled    bool
	MQTTStateTopic string

	HTTPAddr string

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "cafe",
		SSLMode:  "disable",
		MaxConns: 10,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = config.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "cafe-dashboard",
		QoS:      1,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Sensor.Store = config.EnvString("SENSOR_STORE", SensorStoreRedis)
	cfg.Sensor.Node = config.EnvString("SENSOR_NODE", "Sensores")
	cfg.Sensor.FixedLat = config.EnvFloat("SENSOR_FIXED_LAT", 2.449515)
	cfg.Sensor.FixedLon = config.EnvFloat("SENSOR_FIXED_LON", -76.599592)

	cfg.Scheduler.SensorInterval = config.EnvDuration("SENSOR_INTERVAL", 5*time.Second)
	cfg.Scheduler.WeatherInterval = config.EnvDuration("WEATHER_INTERVAL", 5*time.Minute)
	cfg.Scheduler.FetchTimeout = config.EnvDuration("FETCH_TIMEOUT", 10*time.Second)

	cfg.Location.Provider = config.EnvString("LOCATION_PROVIDER", LocationProviderStatic)
	cfg.Location.Permission = config.EnvString("LOCATION_PERMISSION", "granted")
	cfg.Location.DeviceID = config.EnvString("LOCATION_DEVICE_ID", "default")
	cfg.Location.Accuracy = config.EnvString("LOCATION_ACCURACY", "balanced")
	if config.EnvString("LOCATION_LAT", "") != "" && config.EnvString("LOCATION_LON", "") != "" {
		lat := config.EnvFloat("LOCATION_LAT", 0)
		lon := config.EnvFloat("LOCATION_LON", 0)
		cfg.Location.Latitude = &lat
		cfg.Location.Longitude = &lon
	}

	cfg.Weather.BaseURL = config.EnvString("WEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5")
	cfg.Weather.APIKey = config.EnvString("WEATHER_API_KEY", "")
	cfg.Weather.Lang = config.EnvString("WEATHER_LANG", "es")
	cfg.Weather.RateLimitRPS = config.EnvFloat("WEATHER_RATE_LIMIT_RPS", 0)
	cfg.Weather.RateLimitBurst = config.EnvInt("WEATHER_RATE_LIMIT_BURST", 1)

	cfg.Dashboard.CacheKey = config.EnvString("DASHBOARD_CACHE_KEY", "cafe:dashboard:full")
	cfg.Dashboard.CacheTTL = config.EnvDuration("DASHBOARD_CACHE_TTL", 30*time.Second)
	cfg.Dashboard.CacheRefresh = config.EnvDuration("DASHBOARD_CACHE_REFRESH", cfg.Dashboard.CacheTTL/3)
	cfg.Dashboard.EventsEnabled = config.EnvBool("DASHBOARD_EVENTS_ENABLED", true)
	cfg.Dashboard.EventStream = config.EnvString("DASHBOARD_EVENT_STREAM", "cafe:dashboard:commands")
	cfg.Dashboard.ConsumerGroup = config.EnvString("DASHBOARD_CONSUMER_GROUP", "cafe-dashboard-group")
	cfg.Dashboard.ConsumerName = config.EnvString("DASHBOARD_CONSUMER_NAME", "")

	cfg.MQTTEnabled = config.EnvBool("MQTT_ENABLED", false)
	cfg.MQTTStateTopic = config.EnvString("MQTT_STATE_TOPIC", "cafe/dashboard/state")

	cfg.HTTPAddr = config.EnvString("HTTP_ADDR", ":8080")

	cfg.Log.Level = config.EnvString("LOG_LEVEL", "info")
	cfg.Log.Format = config.EnvString("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	switch c.Sensor.Store {
	case SensorStoreRedis, SensorStorePostgres:
	default:
		return fmt.Errorf("unsupported SENSOR_STORE: %s", c.Sensor.Store)
	}
	switch c.Location.Provider {
	case LocationProviderStatic, LocationProviderKV:
	default:
		return fmt.Errorf("unsupported LOCATION_PROVIDER: %s", c.Location.Provider)
	}
	switch c.Location.Accuracy {
	case "low", "balanced", "high":
	default:
		return fmt.Errorf("unsupported LOCATION_ACCURACY: %s", c.Location.Accuracy)
	}
	if c.Dashboard.CacheRefresh >= c.Dashboard.CacheTTL {
		return fmt.Errorf("DASHBOARD_CACHE_REFRESH must be shorter than DASHBOARD_CACHE_TTL")
	}
	if c.Sensor.Node == "" {
		return fmt.Errorf("SENSOR_NODE must not be empty")
	}
	if c.MQTTEnabled && c.MQTT.Broker == "" {
		return fmt.Errorf("MQTT_BROKER is required when MQTT_ENABLED=true")
	}
	return nil
}
