package monitor

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orderup-go/event"
	"orderup-go/order"
	"orderup-go/round"
	"orderup-go/score"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 回合指标
	roundsStarted prometheus.Counter
	timeWarnings  prometheus.Counter
	remaining     prometheus.Gauge
	roundState    prometheus.Gauge

	// 订单指标
	ordersSpawned   *prometheus.CounterVec
	ordersCompleted *prometheus.CounterVec
	ordersExpired   *prometheus.CounterVec
	activeOrders    prometheus.Gauge
	completionTime  prometheus.Histogram

	// 计分指标
	score prometheus.Gauge

	// 系统指标
	wsConnections prometheus.Gauge
	wsDropped     prometheus.Counter
	httpRequests  *prometheus.CounterVec
	configReloads *prometheus.CounterVec

	mu  sync.Mutex
	hub *event.Hub
	sub event.Subscription
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "orderup",
		Subsystem: "game",
	}
}

// New 创建新的Monitor实例，指标注册在独立的 registry 上
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		}, labels)
	}

	return &Monitor{
		registry: reg,

		roundsStarted: counter("rounds_started_total", "已开始的回合数"),
		timeWarnings:  counter("time_warnings_total", "剩余时间提醒次数"),
		remaining:     gauge("remaining_seconds", "回合剩余秒数"),
		roundState:    gauge("round_state", "回合状态：0 等待 1 进行中 2 暂停 3 结算"),

		ordersSpawned:   counterVec("orders_spawned_total", "生成订单数", "type"),
		ordersCompleted: counterVec("orders_completed_total", "完成订单数", "type"),
		ordersExpired:   counterVec("orders_expired_total", "超时订单数", "type"),
		activeOrders:    gauge("active_orders", "当前活跃订单数"),
		completionTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "order_completion_seconds",
			Help:      "订单完成用时分布（秒）",
			Buckets:   []float64{5, 10, 15, 20, 30, 45, 60, 90, 120, 180},
		}),

		score: gauge("score", "当前团队得分"),

		wsConnections: gauge("ws_connections", "当前 websocket 连接数"),
		wsDropped:     counter("ws_dropped_total", "因客户端过慢丢弃的消息数"),
		httpRequests:  counterVec("http_requests_total", "HTTP 请求数", "route", "code"),
		configReloads: counterVec("config_reloads_total", "配置热更新次数", "result"),
	}
}

// Attach 通过 Tap 订阅 hub 上的全部事件；重复调用会先解除旧的订阅
func (m *Monitor) Attach(hub *event.Hub) {
	m.Detach()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hub = hub
	m.sub = hub.Tap(m.observe)
}

// Detach 解除订阅
func (m *Monitor) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hub != nil {
		m.hub.Untap(m.sub)
	}
	m.hub = nil
	m.sub = event.Subscription{}
}

func (m *Monitor) observe(env event.Envelope) {
	switch e := env.Payload.(type) {
	case round.StartedEvent:
		m.roundsStarted.Inc()
		m.remaining.Set(e.Duration.Seconds())
		m.activeOrders.Set(0)
	case round.TimerEvent:
		m.remaining.Set(e.Remaining.Seconds())
	case round.WarningEvent:
		m.timeWarnings.Inc()
	case round.StateEvent:
		m.roundState.Set(float64(e.To))
	case round.EndedEvent:
		m.remaining.Set(0)
		m.activeOrders.Set(0)
	case order.SpawnEvent:
		m.ordersSpawned.WithLabelValues(string(e.Order.Definition.Type)).Inc()
		m.activeOrders.Inc()
	case order.CompleteEvent:
		m.ordersCompleted.WithLabelValues(string(e.Order.Definition.Type)).Inc()
		m.activeOrders.Dec()
		if e.CompletionTime != nil {
			m.completionTime.Observe(e.CompletionTime.Seconds())
		}
	case order.ExpireEvent:
		m.ordersExpired.WithLabelValues(string(e.Order.Definition.Type)).Inc()
		m.activeOrders.Dec()
	case score.ChangedEvent:
		m.score.Set(float64(e.Score))
	}
}

// 系统相关方法
func (m *Monitor) RecordWSConnection() {
	m.wsConnections.Inc()
}

func (m *Monitor) RecordWSDisconnect() {
	m.wsConnections.Dec()
}

func (m *Monitor) RecordWSDropped() {
	m.wsDropped.Inc()
}

func (m *Monitor) RecordHTTPRequest(route, code string) {
	m.httpRequests.WithLabelValues(route, code).Inc()
}

func (m *Monitor) RecordConfigReload(ok bool) {
	result := "ok"
	if !ok {
		result = "rejected"
	}
	m.configReloads.WithLabelValues(result).Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
