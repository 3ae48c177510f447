package aggregator

import (
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/models"
)

// Update 一次成功拉取带来的 slice 更新。nil 表示该 slice 本次没有新值。
type Update struct {
	Sensors  *[]models.SensorReading
	Location *models.UserLocation
	Weather  *models.WeatherSnapshot
}

// SensorsUpdate 构造只替换传感器 slice 的更新（空序列也是有效的新值）
func SensorsUpdate(readings []models.SensorReading) Update {
	if readings == nil {
		readings = []models.SensorReading{}
	}
	return Update{Sensors: &readings}
}

// LocationUpdate 构造只替换位置 slice 的更新
func LocationUpdate(loc models.UserLocation) Update {
	return Update{Location: &loc}
}

// WeatherUpdate 构造只替换天气 slice 的更新
func WeatherUpdate(w models.WeatherSnapshot) Update {
	return Update{Weather: &w}
}

// Assemble 合并上一版模型和一次更新，返回新模型。
// 有值的 slice 整体替换，没有值的 slice 保持不变；不做字段级合并。
// 纯函数：不修改 prev，也不与 prev 或 u 共享可变内存。
func Assemble(prev models.DashboardViewModel, u Update) models.DashboardViewModel {
	next := prev.Clone()

	if u.Sensors != nil {
		next.Sensors = make([]models.SensorReading, len(*u.Sensors))
		copy(next.Sensors, *u.Sensors)
	}
	if u.Location != nil {
		loc := *u.Location
		next.Location = &loc
	}
	if u.Weather != nil {
		w := *u.Weather
		next.Weather = &w
	}
	return next
}
