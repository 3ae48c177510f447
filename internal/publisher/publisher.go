package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DiegoBol25/Smart-Coffe-AI/internal/aggregator"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/models"

	"go.uber.org/zap"
)

// DefaultStateTopic 看板状态的 MQTT 主题（retained）
const DefaultStateTopic = "cafe/dashboard/state"

// Sink 快照发布目标
type Sink interface {
	Name() string
	Publish(ctx context.Context, snap models.DashboardSnapshot) error
}

// MQTTClient MQTT 发布能力（cafe-common/mqtt.Client 实现）
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTSink 以 retained 消息发布看板快照，新订阅者立即拿到最新状态
type MQTTSink struct {
	client MQTTClient
	topic  string
	qos    byte
}

func NewMQTTSink(client MQTTClient, topic string, qos byte) *MQTTSink {
	if topic == "" {
		topic = DefaultStateTopic
	}
	return &MQTTSink{client: client, topic: topic, qos: qos}
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Publish(ctx context.Context, snap models.DashboardSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal dashboard snapshot: %w", err)
	}
	return s.client.Publish(s.topic, s.qos, true, payload)
}

// CacheSink 把快照写入 Redis 缓存
type CacheSink struct {
	cache *aggregator.CacheManager
}

func NewCacheSink(cache *aggregator.CacheManager) *CacheSink {
	return &CacheSink{cache: cache}
}

func (s *CacheSink) Name() string { return "redis" }

func (s *CacheSink) Publish(ctx context.Context, snap models.DashboardSnapshot) error {
	return s.cache.UpdateDashboardCache(ctx, snap)
}

// FailureRecorder 发布失败计数（metrics.Metrics 实现）
type FailureRecorder interface {
	PublishFailed(target string)
}

// Dispatcher 最新优先的快照分发：Offer 从不阻塞，
// 未发出的旧快照被新快照覆盖，后台 goroutine 依次发给所有 Sink。
type Dispatcher struct {
	sinks    []Sink
	pending  chan models.DashboardSnapshot
	timeout  time.Duration
	failures FailureRecorder
	logger   *zap.Logger

	heartbeat time.Duration
}

// NewDispatcher 创建分发器；failures 可为 nil
func NewDispatcher(sinks []Sink, failures FailureRecorder, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sinks:    sinks,
		pending:  make(chan models.DashboardSnapshot, 1),
		timeout:  5 * time.Second,
		failures: failures,
		logger:   logger,
	}
}

// SetHeartbeat 没有新快照时按间隔重发最近一次快照，续期缓存 TTL。
// interval <= 0 时关闭；需在 Run 之前调用。
func (d *Dispatcher) SetHeartbeat(interval time.Duration) {
	d.heartbeat = interval
}

// Offer 放入最新快照（可作为 state.ChangeHook 使用）
func (d *Dispatcher) Offer(snap models.DashboardSnapshot) {
	for {
		select {
		case d.pending <- snap:
			return
		default:
		}
		// 丢弃未发出的旧快照
		select {
		case <-d.pending:
		default:
		}
	}
}

// Run 持续分发，直到 ctx 结束
func (d *Dispatcher) Run(ctx context.Context) {
	var tick <-chan time.Time
	if d.heartbeat > 0 {
		ticker := time.NewTicker(d.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	var last *models.DashboardSnapshot
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-d.pending:
			last = &snap
			d.dispatch(ctx, snap)
		case <-tick:
			// 所有拉取都失败时状态不变，靠重发保住最后一次成功的快照
			if last != nil {
				d.dispatch(ctx, *last)
			}
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, snap models.DashboardSnapshot) {
	for _, sink := range d.sinks {
		pctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := sink.Publish(pctx, snap)
		cancel()
		if err != nil {
			if d.failures != nil {
				d.failures.PublishFailed(sink.Name())
			}
			d.logger.Warn("Failed to publish dashboard snapshot",
				zap.String("target", sink.Name()),
				zap.Uint64("version", snap.Version),
				zap.Error(err),
			)
		}
	}
}
