// Package round 管理回合状态机与倒计时。
package round

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"orderup-go/event"
)

// State 回合状态
type State int

const (
	// StateWaiting 等待开局
	StateWaiting State = iota
	// StateInRound 回合进行中
	StateInRound
	// StatePaused 暂停
	StatePaused
	// StateSummary 结算
	StateSummary
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING_FOR_ROUND"
	case StateInRound:
		return "IN_ROUND"
	case StatePaused:
		return "PAUSED"
	case StateSummary:
		return "SUMMARY"
	default:
		return "UNKNOWN"
	}
}

const (
	KindStarted event.Kind = "round.started"
	KindEnded   event.Kind = "round.ended"
	KindSummary event.Kind = "round.summary"
	KindPaused  event.Kind = "round.paused"
	KindResumed event.Kind = "round.resumed"
	KindTimer   event.Kind = "round.timer"
	KindWarning event.Kind = "round.warning"
	KindState   event.Kind = "round.state"
)

type StartedEvent struct {
	Round    int
	Duration time.Duration
}

type EndedEvent struct {
	Round int
}

type SummaryEvent struct {
	Round int
}

type PausedEvent struct {
	Remaining time.Duration
}

type ResumedEvent struct {
	Remaining time.Duration
}

// TimerEvent 每次 Tick 都会发布剩余时间。
type TimerEvent struct {
	Remaining time.Duration
}

// WarningEvent 剩余时间首次降到某个阈值。
type WarningEvent struct {
	Threshold time.Duration
	Remaining time.Duration
}

// StateEvent 状态实际发生变化。
type StateEvent struct {
	From State
	To   State
}

// Events 控制器对外暴露的事件。
type Events struct {
	Started *event.Topic[StartedEvent]
	Ended   *event.Topic[EndedEvent]
	Summary *event.Topic[SummaryEvent]
	Paused  *event.Topic[PausedEvent]
	Resumed *event.Topic[ResumedEvent]
	Timer   *event.Topic[TimerEvent]
	Warning *event.Topic[WarningEvent]
	State   *event.Topic[StateEvent]
}

// Ticker 在回合时钟之后推进的下游，一般是订单调度器。
type Ticker interface {
	Tick(elapsed time.Duration)
}

// Config 回合参数。
type Config struct {
	Duration time.Duration
	Warnings []time.Duration // 剩余时间提醒阈值
}

// DefaultConfig 5 分钟一局，在 2 分钟、1 分钟、30 秒时提醒。
func DefaultConfig() Config {
	return Config{
		Duration: 300 * time.Second,
		Warnings: []time.Duration{120 * time.Second, 60 * time.Second, 30 * time.Second},
	}
}

// Validate 校验回合参数。
func (c Config) Validate() error {
	if c.Duration <= 0 {
		return errors.New("round duration must be > 0")
	}
	for _, w := range c.Warnings {
		if w <= 0 {
			return fmt.Errorf("warning threshold %s must be > 0", w)
		}
	}
	return nil
}

// Controller 回合状态机与倒计时。单线程使用。
type Controller struct {
	cfg    Config
	logger *zap.Logger
	ticker Ticker

	Events Events

	state     State
	remaining time.Duration
	round     int
	warned    []bool
}

// NewController 创建控制器；hub、logger 可为 nil。
func NewController(cfg Config, hub *event.Hub, logger *zap.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid round config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = normalize(cfg)

	return &Controller{
		cfg:    cfg,
		logger: logger.Named("round"),
		warned: make([]bool, len(cfg.Warnings)),
		state:  StateWaiting,
		Events: Events{
			Started: event.NewTopic[StartedEvent](hub, KindStarted),
			Ended:   event.NewTopic[EndedEvent](hub, KindEnded),
			Summary: event.NewTopic[SummaryEvent](hub, KindSummary),
			Paused:  event.NewTopic[PausedEvent](hub, KindPaused),
			Resumed: event.NewTopic[ResumedEvent](hub, KindResumed),
			Timer:   event.NewTopic[TimerEvent](hub, KindTimer),
			Warning: event.NewTopic[WarningEvent](hub, KindWarning),
			State:   event.NewTopic[StateEvent](hub, KindState),
		},
	}, nil
}

var ErrRoundActive = errors.New("round in progress")

func normalize(cfg Config) Config {
	warnings := append([]time.Duration(nil), cfg.Warnings...)
	sort.Slice(warnings, func(i, j int) bool { return warnings[i] > warnings[j] })
	cfg.Warnings = warnings
	return cfg
}

// Reconfigure 替换回合参数，回合进行中（含暂停）时拒绝。
func (c *Controller) Reconfigure(cfg Config) error {
	if c.IsRoundActive() {
		return ErrRoundActive
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid round config: %w", err)
	}
	c.cfg = normalize(cfg)
	c.warned = make([]bool, len(c.cfg.Warnings))
	return nil
}

// SetTicker 设置每次 Tick 在时钟之后推进的下游。
func (c *Controller) SetTicker(t Ticker) { c.ticker = t }

// Config 返回回合参数（阈值已按降序排列）。
func (c *Controller) Config() Config { return c.cfg }

// StartRound 开始新回合；回合进行中再次调用会重置时钟。
func (c *Controller) StartRound() {
	c.round++
	c.remaining = c.cfg.Duration
	for i, w := range c.cfg.Warnings {
		// 高于开局时长的阈值本回合不会触发
		c.warned[i] = w > c.cfg.Duration
	}
	c.logger.Info("starting new round",
		zap.Int("round", c.round),
		zap.Duration("duration", c.cfg.Duration))
	c.setState(StateInRound)
	c.Events.Started.Publish(StartedEvent{Round: c.round, Duration: c.cfg.Duration})
}

// Tick 推进倒计时。仅在 InRound 状态生效，负值按 0 处理。
func (c *Controller) Tick(elapsed time.Duration) {
	if c.state != StateInRound {
		return
	}
	if elapsed < 0 {
		elapsed = 0
	}
	c.remaining -= elapsed
	if c.remaining < 0 {
		c.remaining = 0
	}
	c.Events.Timer.Publish(TimerEvent{Remaining: c.remaining})

	for i, w := range c.cfg.Warnings {
		if c.warned[i] || c.remaining > w {
			continue
		}
		c.warned[i] = true
		c.logger.Info("time warning", zap.Duration("threshold", w), zap.Duration("remaining", c.remaining))
		c.Events.Warning.Publish(WarningEvent{Threshold: w, Remaining: c.remaining})
	}

	if c.ticker != nil {
		c.ticker.Tick(elapsed)
	}

	if c.remaining == 0 {
		c.EndRound()
	}
}

// PauseRound 暂停；仅在 InRound 状态有效，返回是否生效。
func (c *Controller) PauseRound() bool {
	if c.state != StateInRound {
		c.logger.Debug("pause ignored", zap.Stringer("state", c.state))
		return false
	}
	c.setState(StatePaused)
	c.Events.Paused.Publish(PausedEvent{Remaining: c.remaining})
	return true
}

// ResumeRound 恢复；仅在 Paused 状态有效，返回是否生效。
func (c *Controller) ResumeRound() bool {
	if c.state != StatePaused {
		c.logger.Debug("resume ignored", zap.Stringer("state", c.state))
		return false
	}
	c.setState(StateInRound)
	c.Events.Resumed.Publish(ResumedEvent{Remaining: c.remaining})
	return true
}

// EndRound 结束回合，任意状态可调用。结算事件总是最后发布。
func (c *Controller) EndRound() {
	c.logger.Info("ending round", zap.Int("round", c.round))
	c.remaining = 0
	c.setState(StateSummary)
	c.Events.Ended.Publish(EndedEvent{Round: c.round})
	c.Events.Summary.Publish(SummaryEvent{Round: c.round})
}

func (c *Controller) setState(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.Events.State.Publish(StateEvent{From: from, To: to})
}

// State 当前状态。
func (c *Controller) State() State { return c.state }

// InRound 回合进行中且未暂停。
func (c *Controller) InRound() bool { return c.state == StateInRound }

// IsRoundActive 回合进行中（含暂停）。
func (c *Controller) IsRoundActive() bool {
	return c.state == StateInRound || c.state == StatePaused
}

// IsPaused 是否暂停。
func (c *Controller) IsPaused() bool { return c.state == StatePaused }

// RemainingTime 剩余时间。
func (c *Controller) RemainingTime() time.Duration { return c.remaining }

// Round 已开始的回合数。
func (c *Controller) Round() int { return c.round }
