// Package game 把回合控制器、订单调度器与计分账本组装成一个会话。
//
// 会话是单线程的上下文对象：所有命令与查询都必须在同一个 goroutine 中调用，
// 实时驱动见 internal/engine。
package game

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"orderup-go/event"
	"orderup-go/order"
	"orderup-go/round"
	"orderup-go/score"
)

var (
	ErrNotValidated    = errors.New("order contents not validated")
	ErrRoundInProgress = errors.New("round in progress")
)

// Config 会话参数。
type Config struct {
	Round  round.Config
	Orders order.Config
}

// DefaultConfig 默认参数。
func DefaultConfig() Config {
	return Config{
		Round:  round.DefaultConfig(),
		Orders: order.DefaultConfig(),
	}
}

// Validate 校验全部子配置。
func (c Config) Validate() error {
	if err := c.Round.Validate(); err != nil {
		return fmt.Errorf("round: %w", err)
	}
	if err := c.Orders.Validate(); err != nil {
		return fmt.Errorf("orders: %w", err)
	}
	return nil
}

// Option 构造选项。
type Option func(*Session)

// WithHub 使用外部事件中心，便于在构造前挂接 Tap。
func WithHub(h *event.Hub) Option {
	return func(s *Session) {
		if h != nil {
			s.hub = h
		}
	}
}

// WithLogger 注入日志。
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRand 注入随机源。
func WithRand(r *rand.Rand) Option {
	return func(s *Session) { s.rng = r }
}

// CompleteRequest 协作方上报的一次交付。
type CompleteRequest struct {
	Ref            order.Ref
	Validated      bool
	Points         int            // 调用方计算的分数，只做记录
	CompletionTime *time.Duration // nil 表示未计时
}

// Snapshot HUD 视图。
type Snapshot struct {
	Round         int               `json:"round"`
	State         string            `json:"state"`
	RemainingSecs float64           `json:"remainingSeconds"`
	Score         int               `json:"score"`
	Summary       SummaryView       `json:"summary"`
	ActiveOrders  []ActiveOrderView `json:"activeOrders"`
}

// SummaryView 统计视图。
type SummaryView struct {
	OrdersCompleted   int      `json:"ordersCompleted"`
	StandardCompleted int      `json:"standardCompleted"`
	ExpressCompleted  int      `json:"expressCompleted"`
	MissedExpress     int      `json:"missedExpress"`
	AverageSeconds    *float64 `json:"averageCompletionSeconds,omitempty"`
}

// ActiveOrderView 活跃订单视图。
type ActiveOrderView struct {
	InstanceID       uint64   `json:"instanceId"`
	DefinitionID     string   `json:"definitionId"`
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	Customer         string   `json:"customer,omitempty"`
	Products         []string `json:"products"`
	Points           int      `json:"points"`
	Requirements     string   `json:"requirements"`
	PriorityLevel    int      `json:"priorityLevel"`
	PriorityColor    string   `json:"priorityColor,omitempty"`
	AgeSeconds       float64  `json:"ageSeconds"`
	ExpiresInSeconds *float64 `json:"expiresInSeconds,omitempty"`
}

// Session 一局游戏的上下文对象。
type Session struct {
	hub    *event.Hub
	logger *zap.Logger
	rng    *rand.Rand

	controller *round.Controller
	scheduler  *order.Scheduler
	ledger     *score.Ledger

	undo []func()
}

// New 构造并连接各组件。
func New(cfg Config, catalog *order.Catalog, opts ...Option) (*Session, error) {
	s := &Session{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = event.NewHub()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var err error
	if s.controller, err = round.NewController(cfg.Round, s.hub, s.logger); err != nil {
		return nil, err
	}
	if s.scheduler, err = order.NewScheduler(cfg.Orders, catalog, s.hub, s.logger); err != nil {
		return nil, err
	}
	s.ledger = score.NewLedger(s.hub, s.logger)
	if s.rng != nil {
		s.scheduler.SetRand(s.rng)
	}

	s.controller.SetTicker(s.scheduler)
	s.scheduler.SetGate(s.controller)
	s.scheduler.SetRecorder(s.ledger)
	s.wire()
	return s, nil
}

func (s *Session) wire() {
	ce := s.controller.Events
	oe := s.scheduler.Events

	// 开局先清零再刷单
	sub := ce.Started.Subscribe(func(round.StartedEvent) {
		s.ledger.ResetScore()
		s.scheduler.OnRoundStart()
	})
	s.undo = append(s.undo, func() { ce.Started.Unsubscribe(sub) })

	endSub := ce.Ended.Subscribe(func(round.EndedEvent) { s.scheduler.OnRoundEnd() })
	s.undo = append(s.undo, func() { ce.Ended.Unsubscribe(endSub) })

	sumSub := ce.Summary.Subscribe(func(e round.SummaryEvent) {
		summary := s.ledger.PublishSummary()
		s.logger.Info("round summary",
			zap.Int("round", e.Round),
			zap.Int("score", summary.Score),
			zap.Int("orders_completed", summary.OrdersCompleted),
			zap.Int("missed_express", summary.MissedExpress))
	})
	s.undo = append(s.undo, func() { ce.Summary.Unsubscribe(sumSub) })

	expSub := oe.Expired.Subscribe(func(e order.ExpireEvent) {
		if e.Order.Definition.IsExpress() {
			s.ledger.RecordMissedExpressOrder()
		}
	})
	s.undo = append(s.undo, func() { oe.Expired.Unsubscribe(expSub) })
}

// Close 撤销会话建立的全部订阅。
func (s *Session) Close() {
	for i := len(s.undo) - 1; i >= 0; i-- {
		s.undo[i]()
	}
	s.undo = nil
}

// Hub 事件中心。
func (s *Session) Hub() *event.Hub { return s.hub }

// Controller 回合控制器。
func (s *Session) Controller() *round.Controller { return s.controller }

// Scheduler 订单调度器。
func (s *Session) Scheduler() *order.Scheduler { return s.scheduler }

// Ledger 计分账本。
func (s *Session) Ledger() *score.Ledger { return s.ledger }

// Reconfigure 在回合之间替换参数与目录，catalog 为 nil 时沿用原目录。
func (s *Session) Reconfigure(cfg Config, catalog *order.Catalog) error {
	if s.controller.IsRoundActive() {
		return ErrRoundInProgress
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.controller.Reconfigure(cfg.Round); err != nil {
		return err
	}
	return s.scheduler.Reconfigure(cfg.Orders, catalog)
}

// Config 当前参数。
func (s *Session) Config() Config {
	return Config{Round: s.controller.Config(), Orders: s.scheduler.Config()}
}

func (s *Session) StartRound() { s.controller.StartRound() }

func (s *Session) PauseRound() bool { return s.controller.PauseRound() }

func (s *Session) ResumeRound() bool { return s.controller.ResumeRound() }

func (s *Session) EndRound() { s.controller.EndRound() }

// Tick 推进一帧。
func (s *Session) Tick(elapsed time.Duration) { s.controller.Tick(elapsed) }

// CompleteOrder 交付一个订单。未通过校验时不改变任何状态。
func (s *Session) CompleteOrder(req CompleteRequest) (order.Completion, error) {
	if !req.Validated {
		s.logger.Info("delivery rejected", zap.Stringer("ref", req.Ref), zap.Int("reported_points", req.Points))
		return order.Completion{}, fmt.Errorf("complete %s: %w", req.Ref, ErrNotValidated)
	}
	c, err := s.scheduler.CompleteOrder(req.Ref, order.Report{CompletionTime: req.CompletionTime, ReportedPoints: req.Points})
	if err != nil {
		return order.Completion{}, err
	}
	if req.Points != c.Points {
		s.logger.Debug("reported points differ from scoring rules",
			zap.Int("reported", req.Points), zap.Int("awarded", c.Points))
	}
	return c, nil
}

// ExpireOrder 强制订单超时，与自然超时走同一条事件路径。
func (s *Session) ExpireOrder(ref order.Ref) error { return s.scheduler.ExpireOrder(ref) }

// RecordMissedExpressOrder 透传给账本。
func (s *Session) RecordMissedExpressOrder() { s.ledger.RecordMissedExpressOrder() }

func (s *Session) IsRoundActive() bool { return s.controller.IsRoundActive() }

func (s *Session) IsPaused() bool { return s.controller.IsPaused() }

func (s *Session) State() round.State { return s.controller.State() }

func (s *Session) RemainingTime() time.Duration { return s.controller.RemainingTime() }

func (s *Session) CurrentScore() int { return s.ledger.CurrentScore() }

func (s *Session) ActiveOrders() []order.ActiveOrder { return s.scheduler.ActiveOrders() }

func (s *Session) GetGameSummary() score.Summary { return s.ledger.GetGameSummary() }

// Snapshot 生成当前 HUD 视图。
func (s *Session) Snapshot() Snapshot {
	sum := s.ledger.GetGameSummary()
	snap := Snapshot{
		Round:         s.controller.Round(),
		State:         s.controller.State().String(),
		RemainingSecs: s.controller.RemainingTime().Seconds(),
		Score:         sum.Score,
		Summary: SummaryView{
			OrdersCompleted:   sum.OrdersCompleted,
			StandardCompleted: sum.StandardCompleted,
			ExpressCompleted:  sum.ExpressCompleted,
			MissedExpress:     sum.MissedExpress,
		},
	}
	if avg, ok := sum.AverageCompletionTime(); ok {
		v := avg.Seconds()
		snap.Summary.AverageSeconds = &v
	}
	active := s.scheduler.ActiveOrders()
	snap.ActiveOrders = make([]ActiveOrderView, 0, len(active))
	for _, o := range active {
		d := o.Definition
		age, _ := s.scheduler.Age(o.InstanceID)
		v := ActiveOrderView{
			InstanceID:    o.InstanceID,
			DefinitionID:  d.ID,
			Type:          string(d.Type),
			Difficulty:    string(d.Difficulty),
			Customer:      d.CustomerName,
			Products:      d.RequiredProducts,
			Points:        d.Points(),
			Requirements:  d.RequirementsDescription(),
			PriorityLevel: d.PriorityLevel,
			PriorityColor: d.PriorityColor,
			AgeSeconds:    age.Seconds(),
		}
		if d.IsExpress() {
			left := (d.ExpressTimeLimit - age).Seconds()
			if left < 0 {
				left = 0
			}
			v.ExpiresInSeconds = &left
		}
		snap.ActiveOrders = append(snap.ActiveOrders, v)
	}
	return snap
}
