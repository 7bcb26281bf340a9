package engine

import (
	"sync"
	"time"
)

// Clock 抽象时间便于测试。
type Clock interface {
	Now() time.Time
}

// RealClock 系统时钟。
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FakeClock 手动推进的时钟，测试用。
type FakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{t: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// TickSource 产生驱动信号；返回的 stop 用于释放资源。
type TickSource func(interval time.Duration) (ticks <-chan time.Time, stop func())

// RealTicks 基于 time.Ticker 的驱动源。
func RealTicks(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)
	return t.C, t.Stop
}
