package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DiegoBol25/Smart-Coffe-AI/internal/state"

	rediscommon "github.com/DiegoBol25/Smart-Coffe-AI/cafe-common/redis"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 命令类型
const (
	EventRefresh  = "dashboard.refresh"
	EventSelect   = "sensor.select"
	EventDeselect = "sensor.deselect"
)

const (
	DefaultCommandStream = "cafe:dashboard:commands"
	DefaultConsumerGroup = "cafe-dashboard-group"
)

// ErrInvalidCommand 命令无法解析或缺少必填字段
var ErrInvalidCommand = errors.New("invalid command")

// Controller 命令的执行方（调度器实现）
type Controller interface {
	Refresh(ctx context.Context) error
	SelectSensor(ctx context.Context, id string) error
	ClearSelection(ctx context.Context) error
}

// CommandRecorder 命令处理结果计数（metrics.Metrics 实现）
type CommandRecorder interface {
	CommandProcessed(eventType, result string)
}

// DashboardCommand 看板命令
type DashboardCommand struct {
	EventType string `json:"event_type"`
	SensorID  string `json:"sensor_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// CommandConsumer Redis Streams 命令消费者
type CommandConsumer struct {
	redisClient    *redis.Client
	controller     Controller
	recorder       CommandRecorder
	logger         *zap.Logger
	stream         string
	groupName      string
	consumerName   string
	batchSize      int64
	block          time.Duration
	commandTimeout time.Duration
	retryInterval  time.Duration
	lastRetry      time.Time
}

// NewCommandConsumer 创建命令消费者；consumerName 为空时生成唯一名称
func NewCommandConsumer(
	redisClient *redis.Client,
	controller Controller,
	logger *zap.Logger,
	stream string,
	groupName string,
	consumerName string,
) *CommandConsumer {
	if stream == "" {
		stream = DefaultCommandStream
	}
	if groupName == "" {
		groupName = DefaultConsumerGroup
	}
	if consumerName == "" {
		consumerName = "cafe-dashboard-" + uuid.New().String()[:8]
	}
	return &CommandConsumer{
		redisClient:    redisClient,
		controller:     controller,
		logger:         logger,
		stream:         stream,
		groupName:      groupName,
		consumerName:   consumerName,
		batchSize:      10,
		block:          time.Second,
		commandTimeout: 30 * time.Second,
		retryInterval:  30 * time.Second,
	}
}

// SetRecorder 设置结果计数
func (c *CommandConsumer) SetRecorder(r CommandRecorder) {
	c.recorder = r
}

// ConsumerName 消费者名称
func (c *CommandConsumer) ConsumerName() string { return c.consumerName }

// Start 启动命令消费，阻塞直到 ctx 结束
func (c *CommandConsumer) Start(ctx context.Context) error {
	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, c.stream, c.groupName); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("Command consumer started",
		zap.String("stream", c.stream),
		zap.String("consumer_group", c.groupName),
		zap.String("consumer_name", c.consumerName),
	)

	// 读取失败时指数退避
	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := c.consumeCommands(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume commands",
				zap.Error(err),
				zap.Duration("backoff", backoffDuration),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoffDuration):
				backoffDuration *= 2
				if backoffDuration > maxBackoff {
					backoffDuration = maxBackoff
				}
			}
			continue
		}
		backoffDuration = time.Second
	}
}

// consumeCommands 按间隔重试 pending 中的命令，再读取一批新命令
func (c *CommandConsumer) consumeCommands(ctx context.Context) error {
	if time.Since(c.lastRetry) >= c.retryInterval {
		c.lastRetry = time.Now()
		pending, err := rediscommon.ReadPendingFromStream(
			ctx,
			c.redisClient,
			c.stream,
			c.groupName,
			c.consumerName,
			c.batchSize,
		)
		if err != nil {
			return fmt.Errorf("failed to read pending commands: %w", err)
		}
		c.handleMessages(ctx, pending)
	}

	messages, err := rediscommon.ReadFromStream(
		ctx,
		c.redisClient,
		c.stream,
		c.groupName,
		c.consumerName,
		c.batchSize,
		c.block,
	)
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}
	c.handleMessages(ctx, messages)
	return nil
}

// handleMessages 成功和永久失败的命令确认掉，暂时性失败留在 pending 等下次重试
func (c *CommandConsumer) handleMessages(ctx context.Context, messages []rediscommon.StreamMessage) {
	for _, msg := range messages {
		eventType, err := c.processCommand(ctx, msg)
		switch {
		case err == nil:
			c.record(eventType, "ok")
		case isPermanent(err):
			c.record(eventType, "rejected")
			c.logger.Warn("Rejected command",
				zap.String("message_id", msg.ID),
				zap.String("event_type", eventType),
				zap.Error(err),
			)
		default:
			c.record(eventType, "error")
			c.logger.Error("Failed to process command",
				zap.String("message_id", msg.ID),
				zap.String("event_type", eventType),
				zap.Error(err),
			)
			continue
		}
		if err := rediscommon.Ack(ctx, c.redisClient, c.stream, c.groupName, msg.ID); err != nil {
			c.logger.Warn("Failed to ack message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}
}

// isPermanent 重试也不会成功的错误
func isPermanent(err error) bool {
	return errors.Is(err, ErrInvalidCommand) || errors.Is(err, state.ErrSensorNotFound)
}

// processCommand 处理单条命令，返回命令类型（解析失败时为空）
func (c *CommandConsumer) processCommand(ctx context.Context, msg rediscommon.StreamMessage) (string, error) {
	cmd, err := ParseCommand(msg)
	if err != nil {
		return "", err
	}

	c.logger.Info("Processing dashboard command",
		zap.String("event_type", cmd.EventType),
		zap.String("sensor_id", cmd.SensorID),
		zap.String("request_id", cmd.RequestID),
	)

	cctx, cancel := context.WithTimeout(ctx, c.commandTimeout)
	defer cancel()

	switch cmd.EventType {
	case EventRefresh:
		return cmd.EventType, c.controller.Refresh(cctx)
	case EventSelect:
		return cmd.EventType, c.controller.SelectSensor(cctx, cmd.SensorID)
	case EventDeselect:
		return cmd.EventType, c.controller.ClearSelection(cctx)
	default:
		c.logger.Warn("Unknown command type",
			zap.String("event_type", cmd.EventType),
		)
		return cmd.EventType, nil
	}
}

func (c *CommandConsumer) record(eventType, result string) {
	if c.recorder == nil {
		return
	}
	if eventType == "" {
		eventType = "invalid"
	}
	c.recorder.CommandProcessed(eventType, result)
}

// ParseCommand 解析命令消息：优先读取 data 字段中的 JSON，否则读平铺字段
func ParseCommand(msg rediscommon.StreamMessage) (*DashboardCommand, error) {
	var cmd DashboardCommand

	if dataStr, ok := msg.Values["data"].(string); ok {
		if err := json.Unmarshal([]byte(dataStr), &cmd); err != nil {
			return nil, fmt.Errorf("%w: data field: %v", ErrInvalidCommand, err)
		}
	} else {
		if v, ok := msg.Values["event_type"].(string); ok {
			cmd.EventType = v
		}
		if v, ok := msg.Values["sensor_id"].(string); ok {
			cmd.SensorID = v
		}
		if v, ok := msg.Values["request_id"].(string); ok {
			cmd.RequestID = v
		}
	}

	if cmd.EventType == "" {
		return nil, fmt.Errorf("%w: missing event_type", ErrInvalidCommand)
	}
	if cmd.EventType == EventSelect && cmd.SensorID == "" {
		return nil, fmt.Errorf("%w: sensor.select requires sensor_id", ErrInvalidCommand)
	}
	return &cmd, nil
}
