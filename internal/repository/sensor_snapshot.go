package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/DiegoBol25/Smart-Coffe-AI/internal/store"

	"go.uber.org/zap"
)

// SensorSnapshotRepository 传感器快照仓库（PostgreSQL 实现的远端传感器存储）
//
// 表结构：
//
//	sensor_snapshots(node TEXT, temperature DOUBLE PRECISION NULL,
//	                 humidity DOUBLE PRECISION NULL, captured_at TIMESTAMPTZ)
//
// 每个节点取 captured_at 最新的一行。
type SensorSnapshotRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSensorSnapshotRepository 创建传感器快照仓库
func NewSensorSnapshotRepository(db *sql.DB, logger *zap.Logger) *SensorSnapshotRepository {
	return &SensorSnapshotRepository{
		db:     db,
		logger: logger,
	}
}

var _ store.SensorStore = (*SensorSnapshotRepository)(nil)

// ReadSnapshot 读取节点最新快照
func (r *SensorSnapshotRepository) ReadSnapshot(ctx context.Context, node string) (*store.SnapshotRecord, error) {
	query := `
		SELECT
			temperature,
			humidity,
			captured_at
		FROM sensor_snapshots
		WHERE node = $1
		ORDER BY captured_at DESC
		LIMIT 1
	`

	var temperature, humidity sql.NullFloat64
	var capturedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, node).Scan(&temperature, &humidity, &capturedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNodeNotFound
		}
		return nil, fmt.Errorf("failed to query sensor snapshot: %w", err)
	}

	rec := &store.SnapshotRecord{}
	if temperature.Valid {
		if !finite(temperature.Float64) {
			return nil, fmt.Errorf("%w: node %s: temperature %v", store.ErrMalformedSnapshot, node, temperature.Float64)
		}
		v := temperature.Float64
		rec.Temperature = &v
	}
	if humidity.Valid {
		if !finite(humidity.Float64) {
			return nil, fmt.Errorf("%w: node %s: humidity %v", store.ErrMalformedSnapshot, node, humidity.Float64)
		}
		v := humidity.Float64
		rec.Humidity = &v
	}
	if capturedAt.Valid {
		t := capturedAt.Time.UTC()
		rec.CapturedAt = &t
	}

	r.logger.Debug("Sensor snapshot loaded",
		zap.String("node", node),
		zap.Bool("temperature_present", rec.Temperature != nil),
		zap.Bool("humidity_present", rec.Humidity != nil),
	)
	return rec, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
