package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DiegoBol25/Smart-Coffe-AI/internal/models"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/store"

	"go.uber.org/zap"
)

const (
	// DefaultDashboardCacheKey 完整看板快照的缓存 key
	DefaultDashboardCacheKey = "cafe:dashboard:full"
	// DefaultDashboardCacheTTL 快照缓存过期时间
	DefaultDashboardCacheTTL = 30 * time.Second
)

// CacheManager Redis 缓存管理器（给轮询 Redis 的视图端发布快照）
type CacheManager struct {
	kv     store.KV
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewCacheManager 创建缓存管理器；key/ttl 为空时使用默认值
func NewCacheManager(kv store.KV, key string, ttl time.Duration, logger *zap.Logger) *CacheManager {
	if key == "" {
		key = DefaultDashboardCacheKey
	}
	if ttl <= 0 {
		ttl = DefaultDashboardCacheTTL
	}
	return &CacheManager{
		kv:     kv,
		key:    key,
		ttl:    ttl,
		logger: logger,
	}
}

// Key 缓存 key
func (c *CacheManager) Key() string { return c.key }

// TTL 缓存过期时间
func (c *CacheManager) TTL() time.Duration { return c.ttl }

// UpdateDashboardCache 更新完整的看板缓存
func (c *CacheManager) UpdateDashboardCache(ctx context.Context, snap models.DashboardSnapshot) error {
	jsonData, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal dashboard snapshot: %w", err)
	}

	if err := c.kv.Set(ctx, c.key, string(jsonData), c.ttl); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	c.logger.Debug("Updated dashboard cache",
		zap.String("key", c.key),
		zap.Uint64("version", snap.Version),
		zap.Int("sensor_count", len(snap.Model.Sensors)),
	)
	return nil
}
