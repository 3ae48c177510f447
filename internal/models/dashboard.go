package models

import (
	"math"
	"time"
)

// GeoPoint 经纬度坐标
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SensorReading 单个传感器的一次读数。
// 构造后不可修改；下一次拉取产生新的读数替换旧值。
type SensorReading struct {
	ID          string    `json:"id"`
	Temperature float64   `json:"temperature"` // °C
	Humidity    float64   `json:"humidity"`    // %
	Location    GeoPoint  `json:"location"`
	Timestamp   time.Time `json:"timestamp"`
}

// UserLocation 用户设备位置（天气查询的 key，同时用于地图上的 "Mi Ubicación" 标记）
type UserLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// WeatherSnapshot 天气提供方返回数据重映射后的值对象
type WeatherSnapshot struct {
	Temperature  float64 `json:"temperature"` // °C
	Humidity     float64 `json:"humidity"`    // %
	Pressure     float64 `json:"pressure"`    // hPa
	WindSpeed    float64 `json:"wind_speed"`  // m/s
	Condition    string  `json:"condition"`
	LocationName string  `json:"location_name"`
	Country      string  `json:"country"`
}

// DashboardViewModel 看板视图模型（三个独立替换的 slice）
type DashboardViewModel struct {
	Sensors  []SensorReading  `json:"sensors"`
	Location *UserLocation    `json:"location,omitempty"`
	Weather  *WeatherSnapshot `json:"weather,omitempty"`
}

// Comparison 传感器读数与当前天气的差值（按需计算，不存储）
type Comparison struct {
	SensorID              string  `json:"sensor_id"`
	TemperatureDifference float64 `json:"temperature_difference"`
	HumidityDifference    float64 `json:"humidity_difference"`
}

// Compare 计算读数与天气快照之间的绝对差
func Compare(reading SensorReading, weather WeatherSnapshot) Comparison {
	return Comparison{
		SensorID:              reading.ID,
		TemperatureDifference: math.Abs(reading.Temperature - weather.Temperature),
		HumidityDifference:    math.Abs(reading.Humidity - weather.Humidity),
	}
}

// FindSensor 按 ID 查找读数
func (m DashboardViewModel) FindSensor(id string) (SensorReading, bool) {
	for _, s := range m.Sensors {
		if s.ID == id {
			return s, true
		}
	}
	return SensorReading{}, false
}

// Clone 深拷贝，保证调用方拿到的模型与内部状态不共享底层数组/指针
func (m DashboardViewModel) Clone() DashboardViewModel {
	out := DashboardViewModel{
		Sensors: make([]SensorReading, len(m.Sensors)),
	}
	copy(out.Sensors, m.Sensors)
	if m.Location != nil {
		loc := *m.Location
		out.Location = &loc
	}
	if m.Weather != nil {
		w := *m.Weather
		out.Weather = &w
	}
	return out
}

// DashboardSnapshot 对外发布的看板状态（HTTP / Redis 缓存 / MQTT 共用）
type DashboardSnapshot struct {
	Model            DashboardViewModel `json:"model"`
	Refreshing       bool               `json:"refreshing"`
	SelectedSensorID *string            `json:"selected_sensor_id"`
	Version          uint64             `json:"version"`
	UpdatedAt        time.Time          `json:"updated_at"`
}
