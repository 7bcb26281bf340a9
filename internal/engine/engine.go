// Package engine 以实时节拍驱动游戏会话。
//
// 会话本身不加锁，引擎保证它只被一个 goroutine 访问：节拍与外部命令
// 在同一个事件循环里按到达顺序依次执行。
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"orderup-go/game"
	"orderup-go/infrastructure/alert"
	"orderup-go/infrastructure/logger"
	"orderup-go/order"
	"orderup-go/score"
)

var (
	ErrNotRunning = errors.New("engine not running")
	ErrStopped    = errors.New("engine stopped before command ran")
)

// EngineState 引擎状态
type EngineState int

const (
	// StateIdle 空闲状态
	StateIdle EngineState = iota
	// StateRunning 运行状态
	StateRunning
	// StateStopped 停止状态
	StateStopped
)

// String 返回状态名称
func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config 引擎配置
type Config struct {
	TickInterval time.Duration // 驱动间隔
	QueueSize    int           // 命令队列长度
}

// Components 引擎依赖组件
type Components struct {
	Session      *game.Session
	Logger       *logger.Logger
	AlertManager *alert.Manager // 可为 nil
	Clock        Clock          // 缺省 RealClock
	Ticks        TickSource     // 缺省 RealTicks
}

type command struct {
	fn   func(*game.Session) error
	done chan error
}

type pendingConfig struct {
	cfg     game.Config
	catalog *order.Catalog
}

// Engine 实时驱动器
type Engine struct {
	config   Config
	session  *game.Session
	logger   *logger.Logger
	alertMgr *alert.Manager
	clock    Clock
	ticks    TickSource

	state   EngineState
	pending *pendingConfig
	mu      sync.RWMutex

	cmds     chan command
	stopChan chan struct{}
	doneChan chan struct{}

	stats Statistics
}

// Statistics 引擎统计信息
type Statistics struct {
	StartTime     time.Time
	TotalTicks    int64
	TotalCommands int64
	LastTickTime  time.Time
}

// New 创建引擎
func New(cfg Config, components Components) (*Engine, error) {
	if components.Session == nil {
		return nil, errors.New("session is required")
	}
	if cfg.TickInterval < 0 {
		return nil, errors.New("tick_interval must be >= 0")
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if components.Logger == nil {
		components.Logger = logger.Wrap(nil)
	}
	if components.Clock == nil {
		components.Clock = RealClock{}
	}
	if components.Ticks == nil {
		components.Ticks = RealTicks
	}

	return &Engine{
		config:   cfg,
		session:  components.Session,
		logger:   components.Logger,
		alertMgr: components.AlertManager,
		clock:    components.Clock,
		ticks:    components.Ticks,
		state:    StateIdle,
		cmds:     make(chan command, cfg.QueueSize),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// Start 启动事件循环
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return fmt.Errorf("engine already started (state: %s)", e.state)
	}
	// 从 StateStopped 复启需要重建通道
	if e.state == StateStopped {
		e.stopChan = make(chan struct{})
		e.doneChan = make(chan struct{})
	}
	e.state = StateRunning
	e.stats.StartTime = e.clock.Now()
	e.mu.Unlock()

	ticks, stop := e.ticks(e.config.TickInterval)
	e.logger.Info("game engine starting", zap.Duration("tick_interval", e.config.TickInterval))
	go e.run(ctx, ticks, stop)
	return nil
}

// Stop 停止事件循环；未执行的命令返回 ErrStopped
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	select {
	case <-e.stopChan:
	default:
		close(e.stopChan)
	}

	select {
	case <-e.doneChan:
	case <-time.After(10 * time.Second):
		e.logger.Warn("timeout waiting for engine to stop")
	}

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()
	e.logger.Info("game engine stopped")
	return nil
}

func (e *Engine) run(ctx context.Context, ticks <-chan time.Time, stop func()) {
	defer close(e.doneChan)
	defer stop()

	last := e.clock.Now()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("context done, stopping engine")
			e.drain()
			return
		case <-e.stopChan:
			e.drain()
			return
		case <-ticks:
			now := e.clock.Now()
			elapsed := now.Sub(last)
			last = now
			e.session.Tick(elapsed)

			e.mu.Lock()
			e.stats.TotalTicks++
			e.stats.LastTickTime = now
			e.mu.Unlock()
		case c := <-e.cmds:
			c.done <- e.exec(c.fn)
		}
	}
}

func (e *Engine) exec(fn func(*game.Session) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command panicked: %v", r)
			e.logger.LogError(err, map[string]interface{}{"component": "engine"})
			_ = e.alertMgr.Error("engine", "command panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
		}
	}()
	e.mu.Lock()
	e.stats.TotalCommands++
	e.mu.Unlock()
	return fn(e.session)
}

// drain 让已排队但未执行的命令尽快返回
func (e *Engine) drain() {
	for {
		select {
		case c := <-e.cmds:
			c.done <- ErrStopped
		default:
			return
		}
	}
}

// Do 把 fn 投递到事件循环执行并等待结果
func (e *Engine) Do(ctx context.Context, fn func(*game.Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.RLock()
	running := e.state == StateRunning
	stopChan, doneChan := e.stopChan, e.doneChan
	e.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}

	c := command{fn: fn, done: make(chan error, 1)}
	select {
	case e.cmds <- c:
	case <-stopChan:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-c.done:
		return err
	case <-doneChan:
		// 循环退出前可能已经执行或 drain 了该命令
		select {
		case err := <-c.done:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stage 暂存新配置，下一次开局时生效
func (e *Engine) Stage(cfg game.Config, catalog *order.Catalog) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.pending = &pendingConfig{cfg: cfg, catalog: catalog}
	e.mu.Unlock()
	e.logger.Info("config staged for next round")
	return nil
}

// HasPending 是否有待生效的配置
func (e *Engine) HasPending() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pending != nil
}

func (e *Engine) applyPending(s *game.Session) {
	e.mu.Lock()
	p := e.pending
	e.mu.Unlock()
	if p == nil {
		return
	}
	if err := s.Reconfigure(p.cfg, p.catalog); err != nil {
		// 回合进行中重开：保留配置，等回合结束后的下一次开局
		e.logger.Warn("staged config not applied", zap.Error(err))
		return
	}
	e.mu.Lock()
	if e.pending == p {
		e.pending = nil
	}
	e.mu.Unlock()
	e.logger.Info("staged config applied",
		zap.Duration("round_duration", p.cfg.Round.Duration),
		zap.Int("max_active_orders", p.cfg.Orders.MaxActiveOrders))
}

// StartRound 开局，先应用暂存配置
func (e *Engine) StartRound(ctx context.Context) error {
	return e.Do(ctx, func(s *game.Session) error {
		e.applyPending(s)
		s.StartRound()
		return nil
	})
}

// PauseRound 暂停，返回是否生效
func (e *Engine) PauseRound(ctx context.Context) (bool, error) {
	var ok bool
	err := e.Do(ctx, func(s *game.Session) error {
		ok = s.PauseRound()
		return nil
	})
	return ok, err
}

// ResumeRound 恢复，返回是否生效
func (e *Engine) ResumeRound(ctx context.Context) (bool, error) {
	var ok bool
	err := e.Do(ctx, func(s *game.Session) error {
		ok = s.ResumeRound()
		return nil
	})
	return ok, err
}

// EndRound 结束回合
func (e *Engine) EndRound(ctx context.Context) error {
	return e.Do(ctx, func(s *game.Session) error {
		s.EndRound()
		return nil
	})
}

// CompleteOrder 交付订单
func (e *Engine) CompleteOrder(ctx context.Context, req game.CompleteRequest) (order.Completion, error) {
	var c order.Completion
	err := e.Do(ctx, func(s *game.Session) error {
		var err error
		c, err = s.CompleteOrder(req)
		return err
	})
	return c, err
}

// ExpireOrder 强制订单超时
func (e *Engine) ExpireOrder(ctx context.Context, ref order.Ref) error {
	return e.Do(ctx, func(s *game.Session) error {
		return s.ExpireOrder(ref)
	})
}

// Snapshot 读取 HUD 视图
func (e *Engine) Snapshot(ctx context.Context) (game.Snapshot, error) {
	var snap game.Snapshot
	err := e.Do(ctx, func(s *game.Session) error {
		snap = s.Snapshot()
		return nil
	})
	return snap, err
}

// Summary 读取统计
func (e *Engine) Summary(ctx context.Context) (score.Summary, error) {
	var sum score.Summary
	err := e.Do(ctx, func(s *game.Session) error {
		sum = s.GetGameSummary()
		return nil
	})
	return sum, err
}

// GetState 获取引擎状态
func (e *Engine) GetState() EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// GetStatistics 获取统计信息
func (e *Engine) GetStatistics() Statistics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}
