package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/DiegoBol25/Smart-Coffe-AI/internal/aggregator"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/config"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/consumer"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/fetcher"
	httpapi "github.com/DiegoBol25/Smart-Coffe-AI/internal/http"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/metrics"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/models"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/publisher"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/repository"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/scheduler"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/state"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/store"

	"github.com/DiegoBol25/Smart-Coffe-AI/cafe-common/database"
	"github.com/DiegoBol25/Smart-Coffe-AI/cafe-common/logger"
	mqttcommon "github.com/DiegoBol25/Smart-Coffe-AI/cafe-common/mqtt"
	rediscommon "github.com/DiegoBol25/Smart-Coffe-AI/cafe-common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DashboardService 看板服务：调度器、状态、发布、命令消费和 HTTP API
type DashboardService struct {
	config *config.Config
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client

	state      *state.PresentationState
	scheduler  *scheduler.Scheduler
	metrics    *metrics.Metrics
	dispatcher *publisher.Dispatcher
	consumer   *consumer.CommandConsumer
	handler    http.Handler

	// mu 保护 Start 与 Stop 之间共享的生命周期字段
	mu      sync.Mutex
	stopped bool
	server  *http.Server
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDashboardService 连接外部依赖并组装服务
func NewDashboardService(cfg *config.Config, log *zap.Logger) (*DashboardService, error) {
	ctx := context.Background()

	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(ctx, redisClient); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	var db *sql.DB
	if cfg.Sensor.Store == config.SensorStorePostgres {
		var err error
		db, err = database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
	}

	var mqttClient *mqttcommon.Client
	if cfg.MQTTEnabled {
		var err error
		mqttClient, err = mqttcommon.NewClient(&cfg.MQTT, logger.Component(log, "mqtt"))
		if err != nil {
			_ = database.Close(db)
			_ = redisClient.Close()
			return nil, fmt.Errorf("failed to connect to mqtt: %w", err)
		}
	}

	return build(cfg, log, redisClient, db, mqttClient), nil
}

// build 组装组件；db 和 mqttClient 可为 nil
func build(cfg *config.Config, log *zap.Logger, redisClient *redis.Client, db *sql.DB, mqttClient *mqttcommon.Client) *DashboardService {
	kv := store.NewRedisKV(redisClient)

	var sensorStore store.SensorStore
	if db != nil {
		sensorStore = repository.NewSensorSnapshotRepository(db, logger.Component(log, "repository"))
	} else {
		sensorStore = store.NewKVSensorStore(kv)
	}
	sensorFetcher := fetcher.NewSnapshotSensorFetcher(
		sensorStore,
		cfg.Sensor.Node,
		models.GeoPoint{Latitude: cfg.Sensor.FixedLat, Longitude: cfg.Sensor.FixedLon},
		logger.Component(log, "sensors"),
	)

	var provider fetcher.LocationProvider
	if cfg.Location.Provider == config.LocationProviderKV {
		provider = fetcher.NewKVLocationProvider(kv, cfg.Location.DeviceID)
	} else {
		static := &fetcher.StaticLocationProvider{Permission: fetcher.ParsePermission(cfg.Location.Permission)}
		if cfg.Location.Latitude != nil && cfg.Location.Longitude != nil {
			static.Location = &models.UserLocation{Latitude: *cfg.Location.Latitude, Longitude: *cfg.Location.Longitude}
		}
		provider = static
	}
	locationFetcher := fetcher.NewPermissionLocationFetcher(provider, logger.Component(log, "location"))
	locationFetcher.SetAccuracy(fetcher.ParseAccuracy(cfg.Location.Accuracy))

	var weatherFetcher fetcher.WeatherFetcher = fetcher.NewOpenWeatherMapFetcher(
		cfg.Weather.BaseURL,
		cfg.Weather.APIKey,
		cfg.Weather.Lang,
		cfg.Scheduler.FetchTimeout,
		logger.Component(log, "weather"),
	)
	if cfg.Weather.RateLimitRPS > 0 {
		weatherFetcher = fetcher.NewRateLimitedWeatherFetcher(weatherFetcher, cfg.Weather.RateLimitRPS, cfg.Weather.RateLimitBurst)
	}

	st := state.New()
	m := metrics.New()

	sched := scheduler.New(scheduler.Config{
		SensorInterval:  cfg.Scheduler.SensorInterval,
		WeatherInterval: cfg.Scheduler.WeatherInterval,
		FetchTimeout:    cfg.Scheduler.FetchTimeout,
	}, sensorFetcher, locationFetcher, weatherFetcher, st, logger.Component(log, "scheduler"))
	sched.SetObserver(m)

	cacheManager := aggregator.NewCacheManager(kv, cfg.Dashboard.CacheKey, cfg.Dashboard.CacheTTL, logger.Component(log, "cache"))
	sinks := []publisher.Sink{publisher.NewCacheSink(cacheManager)}
	if mqttClient != nil {
		sinks = append(sinks, publisher.NewMQTTSink(mqttClient, cfg.MQTTStateTopic, cfg.MQTT.QoS))
	}
	dispatcher := publisher.NewDispatcher(sinks, m, logger.Component(log, "publisher"))
	heartbeat := cfg.Dashboard.CacheRefresh
	if heartbeat <= 0 {
		heartbeat = cacheManager.TTL() / 3
	}
	dispatcher.SetHeartbeat(heartbeat)
	st.OnChange(dispatcher.Offer)

	var commandConsumer *consumer.CommandConsumer
	if cfg.Dashboard.EventsEnabled {
		commandConsumer = consumer.NewCommandConsumer(
			redisClient,
			sched,
			logger.Component(log, "consumer"),
			cfg.Dashboard.EventStream,
			cfg.Dashboard.ConsumerGroup,
			cfg.Dashboard.ConsumerName,
		)
		commandConsumer.SetRecorder(m)
	}

	checks := map[string]httpapi.HealthCheck{
		"redis": func(ctx context.Context) error { return rediscommon.Ping(ctx, redisClient) },
	}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if mqttClient != nil {
		checks["mqtt"] = func(context.Context) error {
			if !mqttClient.IsConnected() {
				return errors.New("mqtt not connected")
			}
			return nil
		}
	}
	handler := httpapi.NewRouter(
		httpapi.NewDashboardHandler(sched, st, logger.Component(log, "http")),
		m, checks, logger.Component(log, "http"),
	)

	return &DashboardService{
		config:      cfg,
		logger:      log,
		db:          db,
		redisClient: redisClient,
		mqttClient:  mqttClient,
		state:       st,
		scheduler:   sched,
		metrics:     m,
		dispatcher:  dispatcher,
		consumer:    commandConsumer,
		handler:     handler,
	}
}

// Handler HTTP 路由
func (s *DashboardService) Handler() http.Handler { return s.handler }

// Start 启动全部组件，阻塞直到 ctx 结束、Stop 被调用或 HTTP 服务出错
func (s *DashboardService) Start(ctx context.Context) error {
	s.logger.Info("Starting dashboard service",
		zap.String("sensor_store", s.config.Sensor.Store),
		zap.String("location_provider", s.config.Location.Provider),
		zap.Bool("events_enabled", s.consumer != nil),
		zap.Bool("mqtt_enabled", s.mqttClient != nil),
		zap.String("http_addr", s.config.HTTPAddr),
	)

	runCtx, cancel := context.WithCancel(ctx)
	server := &http.Server{
		Addr:              s.config.HTTPAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 字段发布和 goroutine 启动都在锁内完成，Stop 要么看到完整的启动，要么先于启动
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		cancel()
		return nil
	}
	s.server = server
	s.cancel = cancel

	if err := s.scheduler.Start(runCtx); err != nil {
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatcher.Run(runCtx)
	}()

	if s.consumer != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.consumer.Start(runCtx); err != nil {
				s.logger.Error("Command consumer stopped", zap.Error(err))
			}
		}()
	}
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.config.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-runCtx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

// Stop 停止服务并关闭连接；可与 Start 并发调用
func (s *DashboardService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping dashboard service")

	s.mu.Lock()
	s.stopped = true
	server, cancel := s.server, s.cancel
	s.mu.Unlock()

	var errs []error
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		shutdownCancel()
	}

	s.scheduler.Stop()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if err := database.Close(s.db); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	if err := rediscommon.Close(s.redisClient); err != nil {
		errs = append(errs, fmt.Errorf("close redis: %w", err))
	}
	return errors.Join(errs...)
}
