// Package alert 把需要人工关注的运行故障分发到告警通道，相同告警在限流窗口内只发一次。
package alert

import (
	"fmt"
	"sync"
	"time"
)

// Level 告警级别
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// DefaultThrottle 缺省限流窗口
const DefaultThrottle = 5 * time.Minute

// Alert 告警信息
type Alert struct {
	Level     Level
	Source    string // 产生告警的组件，如 engine、hot_reload
	Message   string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Channel 告警通道
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Throttler 按 key 限流
type Throttler struct {
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewThrottler 创建限流器；now 为 nil 时用 time.Now
func NewThrottler(interval time.Duration, now func() time.Time) *Throttler {
	if now == nil {
		now = time.Now
	}
	return &Throttler{
		interval: interval,
		now:      now,
		lastSent: make(map[string]time.Time),
	}
}

// Allow 窗口内首次出现的 key 放行并记下时间
func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	last, ok := t.lastSent[key]
	if ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastSent[key] = now
	return true
}

// Clear 清空限流记录
func (t *Throttler) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = make(map[string]time.Time)
}

// Manager 告警管理器
type Manager struct {
	throttle *Throttler
	now      func() time.Time

	mu       sync.RWMutex
	channels []Channel
}

// Option 配置 Manager
type Option func(*Manager)

// WithClock 替换时钟，测试中配合假时钟推进限流窗口
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager 创建告警管理器；throttle<=0 时取 DefaultThrottle
func NewManager(channels []Channel, throttle time.Duration, opts ...Option) *Manager {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	m := &Manager{now: time.Now, channels: channels}
	for _, opt := range opts {
		opt(m)
	}
	m.throttle = NewThrottler(throttle, m.now)
	return m
}

// Send 发送告警；被限流时静默返回 nil，全部通道失败时返回最后一个错误
func (m *Manager) Send(a Alert) error {
	if m == nil {
		return nil
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = m.now()
	}
	if !m.throttle.Allow(fmt.Sprintf("%s:%s:%s", a.Level, a.Source, a.Message)) {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var lastErr error
	delivered := 0
	for _, ch := range m.channels {
		if err := ch.Send(a); err != nil {
			lastErr = fmt.Errorf("channel %s failed: %w", ch.Name(), err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return lastErr
	}
	return nil
}

// Warn 发送 WARNING 告警
func (m *Manager) Warn(source, message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: LevelWarning, Source: source, Message: message, Fields: fields})
}

// Error 发送 ERROR 告警
func (m *Manager) Error(source, message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: LevelError, Source: source, Message: message, Fields: fields})
}

// Critical 发送 CRITICAL 告警
func (m *Manager) Critical(source, message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: LevelCritical, Source: source, Message: message, Fields: fields})
}

// AddChannel 添加通道
func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

// Channels 通道名称
func (m *Manager) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

// ResetThrottle 重置限流
func (m *Manager) ResetThrottle() {
	m.throttle.Clear()
}
