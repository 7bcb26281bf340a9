package order

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"orderup-go/event"
)

// 调度器发布的事件类别。
const (
	KindSpawned   event.Kind = "order.spawned"
	KindCompleted event.Kind = "order.completed"
	KindExpired   event.Kind = "order.expired"
)

// ActiveOrder 回合内一个存活的订单实例。
type ActiveOrder struct {
	InstanceID uint64
	Definition Definition
	SpawnedAt  time.Duration // 生成时的回合内时间
}

// SpawnEvent 订单生成通知。
type SpawnEvent struct {
	Order ActiveOrder
}

// CompleteEvent 订单完成通知。
type CompleteEvent struct {
	Completion
}

// ExpireEvent 加急单超时通知。
type ExpireEvent struct {
	Order ActiveOrder
}

// Events 调度器对外暴露的事件。
type Events struct {
	Spawned   *event.Topic[SpawnEvent]
	Completed *event.Topic[CompleteEvent]
	Expired   *event.Topic[ExpireEvent]
}

// RoundGate 报告回合是否处于进行中（未暂停）。
type RoundGate interface {
	InRound() bool
}

// ScoreRecorder 接收完成结果，通常由 score.Ledger 实现。
type ScoreRecorder interface {
	CompleteOrder(isExpress bool, points int, completionTime *time.Duration)
}

// Config 调度参数，构造时给定，回合中不可修改。
type Config struct {
	SpawnInterval     time.Duration
	MaxActiveOrders   int
	InitialSpawnCount int
}

// DefaultConfig 返回默认调度参数：30 秒一单，最多 5 单，开局 3 单。
func DefaultConfig() Config {
	return Config{
		SpawnInterval:     30 * time.Second,
		MaxActiveOrders:   5,
		InitialSpawnCount: 3,
	}
}

// Validate 校验调度参数。
func (c Config) Validate() error {
	if c.SpawnInterval <= 0 {
		return errors.New("spawn interval must be > 0")
	}
	if c.MaxActiveOrders < 1 {
		return errors.New("max active orders must be >= 1")
	}
	if c.InitialSpawnCount < 0 {
		return errors.New("initial spawn count must be >= 0")
	}
	return nil
}

// Ref 指向一个活跃订单：按实例 ID，或按定义 ID（取最早生成的实例）。
type Ref struct {
	InstanceID   uint64
	DefinitionID string
}

// ByInstance 按实例 ID 引用。
func ByInstance(id uint64) Ref { return Ref{InstanceID: id} }

// ByDefinition 按定义 ID 引用。
func ByDefinition(id string) Ref { return Ref{DefinitionID: id} }

func (r Ref) String() string {
	if r.InstanceID != 0 {
		return fmt.Sprintf("#%d", r.InstanceID)
	}
	return r.DefinitionID
}

func (r Ref) matches(o ActiveOrder) bool {
	if r.InstanceID != 0 && r.InstanceID != o.InstanceID {
		return false
	}
	if r.DefinitionID != "" && r.DefinitionID != o.Definition.ID {
		return false
	}
	return r.InstanceID != 0 || r.DefinitionID != ""
}

// Report 调用方在完成订单时附带的信息。
type Report struct {
	CompletionTime *time.Duration // nil 表示未计时，不参与平均用时
	ReportedPoints int            // 调用方校验得出的分数，仅记录
}

// Completion 一次成功完成的结果。
type Completion struct {
	Order          ActiveOrder
	Points         int
	ReportedPoints int
	CompletionTime *time.Duration
}

// Scheduler 管理活跃订单集合、刷新节奏与加急超时。
// 单线程使用，不加锁。
type Scheduler struct {
	cfg      Config
	catalog  *Catalog
	logger   *zap.Logger
	rng      *rand.Rand
	gate     RoundGate
	recorder ScoreRecorder

	Events Events

	active     []ActiveOrder
	now        time.Duration
	sinceSpawn time.Duration
	nextID     uint64
}

// NewScheduler 创建调度器；hub 可为 nil，logger 为 nil 时不输出日志。
func NewScheduler(cfg Config, catalog *Catalog, hub *event.Hub, logger *zap.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:     cfg,
		catalog: catalog,
		logger:  logger.Named("orders"),
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		Events: Events{
			Spawned:   event.NewTopic[SpawnEvent](hub, KindSpawned),
			Completed: event.NewTopic[CompleteEvent](hub, KindCompleted),
			Expired:   event.NewTopic[ExpireEvent](hub, KindExpired),
		},
	}, nil
}

// SetGate 设置回合状态来源；未设置时视为始终进行中。
func (s *Scheduler) SetGate(g RoundGate) { s.gate = g }

// SetRecorder 设置完成结果的接收方。
func (s *Scheduler) SetRecorder(r ScoreRecorder) { s.recorder = r }

// SetRand 替换随机源，便于测试复现。
func (s *Scheduler) SetRand(r *rand.Rand) {
	if r != nil {
		s.rng = r
	}
}

// Reconfigure 替换调度参数与目录，仅应在回合之间调用。
func (s *Scheduler) Reconfigure(cfg Config, catalog *Catalog) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid scheduler config: %w", err)
	}
	if len(s.active) > 0 {
		return fmt.Errorf("reconfigure with %d active orders: %w", len(s.active), ErrOrdersActive)
	}
	s.cfg = cfg
	if catalog != nil {
		s.catalog = catalog
	}
	return nil
}

// Config 返回当前调度参数。
func (s *Scheduler) Config() Config { return s.cfg }

func (s *Scheduler) inRound() bool {
	return s.gate == nil || s.gate.InRound()
}

// OnRoundStart 清空状态并刷出开局订单。
func (s *Scheduler) OnRoundStart() {
	s.active = s.active[:0]
	s.now = 0
	s.sinceSpawn = 0
	s.nextID = 0

	n := min(s.cfg.InitialSpawnCount, s.cfg.MaxActiveOrders)
	s.logger.Info("round started, spawning initial orders", zap.Int("count", n))
	for i := 0; i < n; i++ {
		if _, err := s.SpawnOrder(); err != nil {
			break
		}
	}
}

// OnRoundEnd 静默清空活跃订单，不发送超时事件。
func (s *Scheduler) OnRoundEnd() {
	s.logger.Info("round ended, clearing orders", zap.Int("active", len(s.active)))
	s.active = s.active[:0]
	s.sinceSpawn = 0
}

// Tick 推进调度时间：先处理超时，再考虑刷新，单次最多刷一单。
func (s *Scheduler) Tick(elapsed time.Duration) {
	if !s.inRound() {
		return
	}
	if elapsed < 0 {
		elapsed = 0
	}
	s.now += elapsed

	s.expireOverdue()

	s.sinceSpawn += elapsed
	if s.sinceSpawn >= s.cfg.SpawnInterval && len(s.active) < s.cfg.MaxActiveOrders {
		_, _ = s.SpawnOrder()
		s.sinceSpawn = 0
	}
}

func (s *Scheduler) expireOverdue() {
	var expired []uint64
	for _, o := range s.active {
		if !o.Definition.IsExpress() {
			continue
		}
		if s.now-o.SpawnedAt >= o.Definition.ExpressTimeLimit {
			expired = append(expired, o.InstanceID)
		}
	}
	for _, id := range expired {
		s.expire(id)
	}
}

// SpawnOrder 从目录中均匀随机挑选一个定义生成实例。
func (s *Scheduler) SpawnOrder() (ActiveOrder, error) {
	if s.catalog.Len() == 0 {
		s.logger.Warn("no orders available to spawn")
		return ActiveOrder{}, ErrEmptyCatalog
	}
	if len(s.active) >= s.cfg.MaxActiveOrders {
		s.logger.Debug("spawn skipped at capacity", zap.Int("active", len(s.active)))
		return ActiveOrder{}, ErrAtCapacity
	}
	def := s.catalog.At(s.rng.IntN(s.catalog.Len()))
	s.nextID++
	o := ActiveOrder{
		InstanceID: s.nextID,
		Definition: def,
		SpawnedAt:  s.now,
	}
	s.active = append(s.active, o)
	s.logger.Info("order spawned",
		zap.Uint64("instance_id", o.InstanceID),
		zap.String("order_id", def.ID),
		zap.String("type", string(def.Type)))
	s.Events.Spawned.Publish(SpawnEvent{Order: o})
	return o, nil
}

// CompleteOrder 完成一个活跃订单并计分。订单不在活跃集合中时返回 ErrOrderNotActive，
// 不改变任何状态，重复调用安全。
func (s *Scheduler) CompleteOrder(ref Ref, report Report) (Completion, error) {
	o, ok := s.remove(ref)
	if !ok {
		s.logger.Warn("complete requested for inactive order", zap.Stringer("ref", ref))
		return Completion{}, fmt.Errorf("complete %s: %w", ref, ErrOrderNotActive)
	}
	c := Completion{
		Order:          o,
		Points:         o.Definition.Points(),
		ReportedPoints: report.ReportedPoints,
		CompletionTime: report.CompletionTime,
	}
	if s.recorder != nil {
		s.recorder.CompleteOrder(o.Definition.IsExpress(), c.Points, c.CompletionTime)
	}
	s.logger.Info("order completed",
		zap.Uint64("instance_id", o.InstanceID),
		zap.String("order_id", o.Definition.ID),
		zap.Int("points", c.Points))
	s.Events.Completed.Publish(CompleteEvent{Completion: c})
	return c, nil
}

// ExpireOrder 由外部强制令订单超时。
func (s *Scheduler) ExpireOrder(ref Ref) error {
	o, ok := s.find(ref)
	if !ok {
		s.logger.Warn("expire requested for inactive order", zap.Stringer("ref", ref))
		return fmt.Errorf("expire %s: %w", ref, ErrOrderNotActive)
	}
	s.expire(o.InstanceID)
	return nil
}

func (s *Scheduler) expire(id uint64) {
	o, ok := s.remove(ByInstance(id))
	if !ok {
		return
	}
	s.logger.Info("order expired",
		zap.Uint64("instance_id", o.InstanceID),
		zap.String("order_id", o.Definition.ID))
	s.Events.Expired.Publish(ExpireEvent{Order: o})
}

func (s *Scheduler) find(ref Ref) (ActiveOrder, bool) {
	for _, o := range s.active {
		if ref.matches(o) {
			return o, true
		}
	}
	return ActiveOrder{}, false
}

func (s *Scheduler) remove(ref Ref) (ActiveOrder, bool) {
	for i, o := range s.active {
		if ref.matches(o) {
			s.active = append(s.active[:i], s.active[i+1:]...)
			return o, true
		}
	}
	return ActiveOrder{}, false
}

// ActiveOrders 返回活跃订单快照（按生成顺序）。
func (s *Scheduler) ActiveOrders() []ActiveOrder {
	out := make([]ActiveOrder, len(s.active))
	for i, o := range s.active {
		o.Definition = o.Definition.clone()
		out[i] = o
	}
	return out
}

// Count 活跃订单数。
func (s *Scheduler) Count() int { return len(s.active) }

// Elapsed 调度器自回合开始累计的时间。
func (s *Scheduler) Elapsed() time.Duration { return s.now }

// Age 返回实例自生成以来经过的回合时间。
func (s *Scheduler) Age(id uint64) (time.Duration, bool) {
	o, ok := s.find(ByInstance(id))
	if !ok {
		return 0, false
	}
	return s.now - o.SpawnedAt, true
}
