package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNodeNotFound 传感器节点不存在（远端尚未写入任何数据）
	ErrNodeNotFound = errors.New("sensor node not found")
	// ErrMalformedSnapshot 节点存在但内容无法解码
	ErrMalformedSnapshot = errors.New("malformed sensor snapshot")
)

// SnapshotRecord 传感器节点的原始快照。
// 字段为指针：远端可能只写入了部分字段，是否完整由调用方判断。
type SnapshotRecord struct {
	Temperature *float64
	Humidity    *float64
	CapturedAt  *time.Time
}

// SensorStore 远端传感器存储（只读）
type SensorStore interface {
	ReadSnapshot(ctx context.Context, node string) (*SnapshotRecord, error)
}

// SensorKeyPrefix Redis 中传感器节点的 key 前缀
const SensorKeyPrefix = "cafe:sensors:"

// SensorKey 构造传感器节点 key：cafe:sensors:{node}
func SensorKey(node string) string {
	return SensorKeyPrefix + node
}

// kvSnapshot Redis 中节点的 JSON 形态
type kvSnapshot struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Timestamp   *int64   `json:"timestamp,omitempty"` // unix 秒
}

// KVSensorStore 基于 KV 的传感器存储（实时数据库节点以 JSON 存在一个 key 下）
type KVSensorStore struct {
	kv KV
}

func NewKVSensorStore(kv KV) *KVSensorStore {
	return &KVSensorStore{kv: kv}
}

// ReadSnapshot 读取节点快照
func (s *KVSensorStore) ReadSnapshot(ctx context.Context, node string) (*SnapshotRecord, error) {
	raw, err := s.kv.Get(ctx, SensorKey(node))
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return nil, ErrNodeNotFound
		}
		return nil, fmt.Errorf("read sensor node %s: %w", node, err)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, ErrNodeNotFound
	}

	var snap kvSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("%w: node %s: %v", ErrMalformedSnapshot, node, err)
	}

	rec := &SnapshotRecord{
		Temperature: snap.Temperature,
		Humidity:    snap.Humidity,
	}
	if snap.Timestamp != nil {
		t := time.Unix(*snap.Timestamp, 0).UTC()
		rec.CapturedAt = &t
	}
	return rec, nil
}

// WriteSnapshot 写入节点快照（ttl=0 表示不过期）。
// 服务本身只读；供模拟器和测试造数据使用。
func (s *KVSensorStore) WriteSnapshot(ctx context.Context, node string, rec SnapshotRecord, ttl time.Duration) error {
	snap := kvSnapshot{Temperature: rec.Temperature, Humidity: rec.Humidity}
	if rec.CapturedAt != nil {
		ts := rec.CapturedAt.Unix()
		snap.Timestamp = &ts
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal sensor snapshot: %w", err)
	}
	return s.kv.Set(ctx, SensorKey(node), string(b), ttl)
}
