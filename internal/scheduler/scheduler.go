package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DiegoBol25/Smart-Coffe-AI/internal/aggregator"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/fetcher"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/models"
	"github.com/DiegoBol25/Smart-Coffe-AI/internal/state"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrStopped 调度器已停止
	ErrStopped = errors.New("scheduler stopped")
	// ErrNotStarted 调度器尚未启动
	ErrNotStarted = errors.New("scheduler not started")
	// ErrAlreadyStarted 重复启动
	ErrAlreadyStarted = errors.New("scheduler already started")
)

const (
	DefaultSensorInterval  = 5 * time.Second
	DefaultWeatherInterval = 5 * time.Minute
	DefaultFetchTimeout    = 10 * time.Second
)

// Config 调度参数
type Config struct {
	SensorInterval  time.Duration
	WeatherInterval time.Duration
	FetchTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.SensorInterval <= 0 {
		c.SensorInterval = DefaultSensorInterval
	}
	if c.WeatherInterval <= 0 {
		c.WeatherInterval = DefaultWeatherInterval
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	return c
}

// outcome 一次拉取的结果，回送到事件循环
type outcome struct {
	line    string
	gen     uint64
	update  aggregator.Update
	err     *fetcher.FetchError
	elapsed time.Duration
	cycle   *refreshCycle
}

// refreshCycle 一次下拉刷新：传感器线路 + 位置→天气链路
type refreshCycle struct {
	id      string
	pending int
	waiters []chan error
	started time.Time
}

type commandKind int

const (
	cmdRefresh commandKind = iota
	cmdSelect
	cmdDeselect
)

type command struct {
	kind     commandKind
	sensorID string
	reply    chan error
}

// Scheduler 刷新调度器。
// 所有状态写入都发生在事件循环 goroutine 上；拉取在独立 goroutine 中执行，
// 结果通过 channel 回送。
type Scheduler struct {
	cfg      Config
	sensors  fetcher.SensorFetcher
	location fetcher.LocationFetcher
	weather  fetcher.WeatherFetcher
	state    *state.PresentationState
	observer Observer
	logger   *zap.Logger

	results  chan outcome
	commands chan command
	done     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lifeMu  sync.Mutex
	started bool
	stopped bool

	// 以下由事件循环写，Status() 并发读
	mu    sync.RWMutex
	lines map[string]*lineState

	// 仅事件循环访问
	cycle *refreshCycle
}

// New 创建调度器
func New(
	cfg Config,
	sensors fetcher.SensorFetcher,
	location fetcher.LocationFetcher,
	weather fetcher.WeatherFetcher,
	st *state.PresentationState,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:      cfg.withDefaults(),
		sensors:  sensors,
		location: location,
		weather:  weather,
		state:    st,
		observer: nopObserver{},
		logger:   logger,
		results:  make(chan outcome, 16),
		commands: make(chan command),
		done:     make(chan struct{}),
		lines: map[string]*lineState{
			LineSensors:  newLineState(LineSensors),
			LineLocation: newLineState(LineLocation),
			LineWeather:  newLineState(LineWeather),
		},
	}
}

// SetObserver 设置观察者（需在 Start 之前调用）
func (s *Scheduler) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	s.observer = o
}

// Start 启动事件循环，并立即执行一次启动拉取（不触碰 refreshing）
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("Starting refresh scheduler",
		zap.Duration("sensor_interval", s.cfg.SensorInterval),
		zap.Duration("weather_interval", s.cfg.WeatherInterval),
		zap.Duration("fetch_timeout", s.cfg.FetchTimeout),
	)

	go s.run()
	return nil
}

// Stop 一次性停止所有定时器和在途拉取，等待事件循环退出。
// 之后到达的结果全部丢弃。可重复调用。
func (s *Scheduler) Stop() {
	s.lifeMu.Lock()
	if s.stopped {
		s.lifeMu.Unlock()
		<-s.done
		return
	}
	s.stopped = true
	started := s.started
	s.lifeMu.Unlock()

	if !started {
		close(s.done)
		return
	}

	s.cancel()
	<-s.done
	s.wg.Wait()
	s.logger.Info("Refresh scheduler stopped")
}

// Refresh 下拉刷新：阻塞到本轮传感器线路和位置→天气链路都结束。
// 已有刷新进行中时合并到该轮。
func (s *Scheduler) Refresh(ctx context.Context) error {
	return s.submit(ctx, command{kind: cmdRefresh})
}

// SelectSensor 选中传感器（在事件循环上执行）
func (s *Scheduler) SelectSensor(ctx context.Context, id string) error {
	return s.submit(ctx, command{kind: cmdSelect, sensorID: id})
}

// ClearSelection 关闭详情（在事件循环上执行）
func (s *Scheduler) ClearSelection(ctx context.Context) error {
	return s.submit(ctx, command{kind: cmdDeselect})
}

// Status 各线路状态
func (s *Scheduler) Status() Status {
	s.lifeMu.Lock()
	running := s.started && !s.stopped
	s.lifeMu.Unlock()

	s.mu.RLock()
	lines := make([]LineStatus, 0, len(s.lines))
	for _, name := range []string{LineSensors, LineLocation, LineWeather} {
		lines = append(lines, s.lines[name].snapshot())
	}
	s.mu.RUnlock()

	return Status{
		Running:    running,
		Refreshing: s.state.Snapshot().Refreshing,
		Lines:      lines,
	}
}

func (s *Scheduler) submit(ctx context.Context, cmd command) error {
	s.lifeMu.Lock()
	started, stopped := s.started, s.stopped
	s.lifeMu.Unlock()
	if stopped {
		return ErrStopped
	}
	if !started {
		return ErrNotStarted
	}

	cmd.reply = make(chan error, 1)
	select {
	case s.commands <- cmd:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run 事件循环
func (s *Scheduler) run() {
	defer close(s.done)

	sensorTicker := time.NewTicker(s.cfg.SensorInterval)
	defer sensorTicker.Stop()
	weatherTicker := time.NewTicker(s.cfg.WeatherInterval)
	defer weatherTicker.Stop()

	// 启动拉取
	s.launchSensors(nil)
	s.launchLocation(nil)

	for {
		select {
		case <-s.ctx.Done():
			s.abortCycle()
			return

		case <-sensorTicker.C:
			if s.lineFetching(LineSensors) {
				s.skipTick(LineSensors)
				continue
			}
			s.launchSensors(nil)

		case <-weatherTicker.C:
			if s.lineFetching(LineWeather) {
				s.skipTick(LineWeather)
				continue
			}
			loc, ok := s.state.Location()
			if !ok {
				s.logger.Debug("Weather tick skipped, no location known")
				continue
			}
			s.launchWeather(loc, nil)

		case o := <-s.results:
			s.handleOutcome(o)

		case cmd := <-s.commands:
			s.handleCommand(cmd)
		}
	}
}

func (s *Scheduler) handleCommand(cmd command) {
	switch cmd.kind {
	case cmdRefresh:
		if s.cycle != nil {
			s.cycle.waiters = append(s.cycle.waiters, cmd.reply)
			s.logger.Debug("Refresh coalesced", zap.String("refresh_id", s.cycle.id))
			return
		}
		s.cycle = &refreshCycle{
			id:      uuid.New().String(),
			pending: 2,
			waiters: []chan error{cmd.reply},
			started: time.Now(),
		}
		s.logger.Info("Manual refresh started", zap.String("refresh_id", s.cycle.id))
		s.state.SetRefreshing(true)
		s.launchSensors(s.cycle)
		s.launchLocation(s.cycle)

	case cmdSelect:
		cmd.reply <- s.state.SelectSensor(cmd.sensorID)

	case cmdDeselect:
		s.state.ClearSelection()
		cmd.reply <- nil
	}
}

func (s *Scheduler) handleOutcome(o outcome) {
	// select 在取消和已排队结果之间随机选择，停止后到达的结果一律丢弃
	if s.ctx.Err() != nil {
		return
	}
	now := time.Now()

	s.mu.Lock()
	ls := s.lines[o.line]
	ls.end()
	applied := false
	if o.err != nil {
		ls.fail(o.err, now)
	} else {
		applied = ls.accept(o.gen, now)
	}
	s.mu.Unlock()

	switch {
	case o.err != nil:
		s.observer.ObserveFetch(o.line, string(o.err.Kind), o.elapsed)
		s.logger.Warn("Fetch failed",
			zap.String("line", o.line),
			zap.String("kind", string(o.err.Kind)),
			zap.Uint64("generation", o.gen),
			zap.Error(o.err),
		)
	case !applied:
		s.observer.ObserveFetch(o.line, string(fetcher.KindStaleResult), o.elapsed)
		s.logger.Debug("Stale result dropped",
			zap.String("line", o.line),
			zap.Uint64("generation", o.gen),
		)
	default:
		s.observer.ObserveFetch(o.line, OutcomeSuccess, o.elapsed)
		s.state.ReplaceModel(aggregator.Assemble(s.state.Model(), o.update))
	}

	switch o.line {
	case LineLocation:
		// 位置→天气：优先用刚拿到的位置，失败时用最后已知位置
		if loc, ok := s.state.Location(); ok {
			s.launchWeather(loc, o.cycle)
		} else {
			s.logger.Debug("No location known, weather fetch skipped")
			s.settle(o.cycle)
		}
	default:
		s.settle(o.cycle)
	}
}

// settle 刷新轮次中的一条线路结束
func (s *Scheduler) settle(c *refreshCycle) {
	if c == nil {
		return
	}
	c.pending--
	if c.pending > 0 {
		return
	}
	elapsed := time.Since(c.started)
	s.state.SetRefreshing(false)
	for _, w := range c.waiters {
		w <- nil
	}
	if s.cycle == c {
		s.cycle = nil
	}
	s.observer.ObserveRefresh(elapsed)
	s.logger.Info("Manual refresh completed",
		zap.String("refresh_id", c.id),
		zap.Duration("elapsed", elapsed),
	)
}

func (s *Scheduler) abortCycle() {
	if s.cycle == nil {
		return
	}
	for _, w := range s.cycle.waiters {
		w <- ErrStopped
	}
	s.cycle = nil
}

func (s *Scheduler) lineFetching(line string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lines[line].fetching()
}

func (s *Scheduler) skipTick(line string) {
	s.mu.Lock()
	s.lines[line].status.SkippedTicks++
	s.mu.Unlock()
	s.observer.ObserveSkippedTick(line)
	s.logger.Debug("Tick skipped, line still fetching", zap.String("line", line))
}

func (s *Scheduler) begin(line string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines[line].begin()
}

func (s *Scheduler) launchSensors(c *refreshCycle) {
	gen := s.begin(LineSensors)
	s.spawn(func(ctx context.Context) outcome {
		res := withTimeout(ctx, s.cfg.FetchTimeout, fetcher.SourceSensors, s.sensors.FetchSensors)
		o := outcome{line: LineSensors, gen: gen, cycle: c, err: res.Err}
		if res.IsOk() {
			o.update = aggregator.SensorsUpdate(res.Value)
		}
		return o
	})
}

func (s *Scheduler) launchLocation(c *refreshCycle) {
	gen := s.begin(LineLocation)
	s.spawn(func(ctx context.Context) outcome {
		res := withTimeout(ctx, s.cfg.FetchTimeout, fetcher.SourceLocation, s.location.FetchLocation)
		o := outcome{line: LineLocation, gen: gen, cycle: c, err: res.Err}
		if res.IsOk() {
			o.update = aggregator.LocationUpdate(res.Value)
		}
		return o
	})
}

func (s *Scheduler) launchWeather(loc models.UserLocation, c *refreshCycle) {
	gen := s.begin(LineWeather)
	s.spawn(func(ctx context.Context) outcome {
		res := withTimeout(ctx, s.cfg.FetchTimeout, fetcher.SourceWeather,
			func(ctx context.Context) fetcher.Result[models.WeatherSnapshot] {
				return s.weather.FetchWeather(ctx, loc.Latitude, loc.Longitude)
			})
		o := outcome{line: LineWeather, gen: gen, cycle: c, err: res.Err}
		if res.IsOk() {
			o.update = aggregator.WeatherUpdate(res.Value)
		}
		return o
	})
}

// spawn 在独立 goroutine 中执行拉取并把结果送回事件循环；停止后结果丢弃
func (s *Scheduler) spawn(fetch func(ctx context.Context) outcome) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		start := time.Now()
		o := fetch(s.ctx)
		o.elapsed = time.Since(start)
		select {
		case s.results <- o:
		case <-s.ctx.Done():
		}
	}()
}

// withTimeout 给单次拉取加超时；超时或被取消时返回 network_error，
// 不依赖拉取方是否响应 ctx。
func withTimeout[T any](parent context.Context, timeout time.Duration, source string,
	fetch func(ctx context.Context) fetcher.Result[T]) fetcher.Result[T] {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ch := make(chan fetcher.Result[T], 1)
	go func() {
		ch <- fetch(ctx)
	}()

	select {
	case res := <-ch:
		return res
	case <-ctx.Done():
		return fetcher.Fail[T](fetcher.NewError(fetcher.KindNetworkError, source, ctx.Err()))
	}
}
