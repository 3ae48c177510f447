package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/DiegoBol25/Smart-Coffe-AI/internal/models"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/store"

	"go.uber.org/zap"
)

// DefaultSensorNode 远端存储中的传感器节点名（同时作为读数 ID）
const DefaultSensorNode = "Sensores"

// DefaultSensorLocation 传感器固定坐标。
// 远端存储不上报设备位置，所有读数都挂在这个坐标上（已知限制）。
var DefaultSensorLocation = models.GeoPoint{Latitude: 2.449515, Longitude: -76.599592}

// SensorFetcher 传感器快照拉取
type SensorFetcher interface {
	FetchSensors(ctx context.Context) Result[[]models.SensorReading]
}

// SnapshotSensorFetcher 从 SensorStore 读取单个节点并转换为读数序列
type SnapshotSensorFetcher struct {
	store    store.SensorStore
	node     string
	location models.GeoPoint
	now      func() time.Time
	logger   *zap.Logger
}

// NewSnapshotSensorFetcher 创建传感器拉取器；node 为空时使用默认节点
func NewSnapshotSensorFetcher(s store.SensorStore, node string, location models.GeoPoint, logger *zap.Logger) *SnapshotSensorFetcher {
	if node == "" {
		node = DefaultSensorNode
	}
	return &SnapshotSensorFetcher{
		store:    s,
		node:     node,
		location: location,
		now:      time.Now,
		logger:   logger,
	}
}

// FetchSensors 读取节点快照：
// 节点不存在时返回空序列；字段不全时返回 no_data_available，不产生半个读数。
func (f *SnapshotSensorFetcher) FetchSensors(ctx context.Context) Result[[]models.SensorReading] {
	rec, err := f.store.ReadSnapshot(ctx, f.node)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNodeNotFound):
			return Ok([]models.SensorReading{})
		case errors.Is(err, store.ErrMalformedSnapshot):
			return Fail[[]models.SensorReading](NewError(KindMalformedResponse, SourceSensors, err))
		default:
			return Fail[[]models.SensorReading](NewError(KindNetworkError, SourceSensors, err))
		}
	}

	if rec == nil || rec.Temperature == nil || rec.Humidity == nil {
		return Fail[[]models.SensorReading](NewError(KindNoDataAvailable, SourceSensors,
			errors.New("sensor node "+f.node+" has no complete reading")))
	}

	ts := f.now().UTC()
	if rec.CapturedAt != nil {
		ts = *rec.CapturedAt
	}

	return Ok([]models.SensorReading{{
		ID:          f.node,
		Temperature: *rec.Temperature,
		Humidity:    *rec.Humidity,
		Location:    f.location,
		Timestamp:   ts,
	}})
}
