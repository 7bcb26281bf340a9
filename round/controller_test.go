package round

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderup-go/event"
)

type tickLog struct {
	ticks []time.Duration
	seen  []time.Duration // 调度器被调用时控制器的剩余时间
	ctrl  *Controller
}

func (l *tickLog) Tick(elapsed time.Duration) {
	l.ticks = append(l.ticks, elapsed)
	if l.ctrl != nil {
		l.seen = append(l.seen, l.ctrl.RemainingTime())
	}
}

func newController(t *testing.T, d time.Duration) (*Controller, *event.Hub) {
	t.Helper()
	hub := event.NewHub()
	cfg := DefaultConfig()
	cfg.Duration = d
	c, err := NewController(cfg, hub, nil)
	require.NoError(t, err)
	return c, hub
}

func TestControllerStartAndTwoMinuteWarning(t *testing.T) {
	c, _ := newController(t, 300*time.Second)
	var warnings []WarningEvent
	c.Events.Warning.Subscribe(func(e WarningEvent) { warnings = append(warnings, e) })

	c.StartRound()
	assert.Equal(t, StateInRound, c.State())
	assert.Equal(t, 300*time.Second, c.RemainingTime())

	c.Tick(180 * time.Second)
	assert.Equal(t, 120*time.Second, c.RemainingTime())
	require.Len(t, warnings, 1)
	assert.Equal(t, 120*time.Second, warnings[0].Threshold)

	c.Tick(time.Second)
	assert.Len(t, warnings, 1, "two-minute warning fires once")
}

func TestControllerWarningsDescending(t *testing.T) {
	c, _ := newController(t, 300*time.Second)
	var fired []time.Duration
	c.Events.Warning.Subscribe(func(e WarningEvent) { fired = append(fired, e.Threshold) })

	c.StartRound()
	c.Tick(275 * time.Second)
	assert.Equal(t, []time.Duration{120 * time.Second, 60 * time.Second, 30 * time.Second}, fired)
}

func TestControllerWarningsAboveDurationNeverFire(t *testing.T) {
	c, _ := newController(t, 90*time.Second)
	var fired []time.Duration
	c.Events.Warning.Subscribe(func(e WarningEvent) { fired = append(fired, e.Threshold) })

	c.StartRound()
	c.Tick(time.Second)
	assert.Empty(t, fired)

	c.Tick(29 * time.Second)
	assert.Equal(t, []time.Duration{60 * time.Second}, fired)
	c.Tick(30 * time.Second)
	assert.Equal(t, []time.Duration{60 * time.Second, 30 * time.Second}, fired)
}

func TestControllerWarningsResetPerRound(t *testing.T) {
	c, _ := newController(t, 300*time.Second)
	count := 0
	c.Events.Warning.Subscribe(func(WarningEvent) { count++ })

	c.StartRound()
	c.Tick(200 * time.Second)
	require.Equal(t, 1, count)
	c.StartRound()
	c.Tick(200 * time.Second)
	assert.Equal(t, 2, count)
}

func TestControllerTimerUpdateEveryTick(t *testing.T) {
	c, _ := newController(t, 10*time.Second)
	var updates []time.Duration
	c.Events.Timer.Subscribe(func(e TimerEvent) { updates = append(updates, e.Remaining) })

	c.StartRound()
	c.Tick(time.Second)
	c.Tick(0)
	c.Tick(-5 * time.Second)
	assert.Equal(t, []time.Duration{9 * time.Second, 9 * time.Second, 9 * time.Second}, updates)
}

func TestControllerPauseStopsClock(t *testing.T) {
	c, _ := newController(t, 300*time.Second)
	ticker := &tickLog{}
	c.SetTicker(ticker)

	c.StartRound()
	c.Tick(10 * time.Second)
	require.True(t, c.PauseRound())
	assert.True(t, c.IsPaused())
	assert.True(t, c.IsRoundActive())

	for i := 0; i < 5; i++ {
		c.Tick(10 * time.Second)
	}
	assert.Equal(t, 290*time.Second, c.RemainingTime())
	assert.Len(t, ticker.ticks, 1, "scheduler not ticked while paused")

	require.True(t, c.ResumeRound())
	c.Tick(10 * time.Second)
	assert.Equal(t, 280*time.Second, c.RemainingTime())
}

func TestControllerIllegalTransitionsIgnored(t *testing.T) {
	c, hub := newController(t, 300*time.Second)
	var kinds []event.Kind
	hub.Tap(func(e event.Envelope) { kinds = append(kinds, e.Kind) })

	assert.False(t, c.PauseRound())
	assert.False(t, c.ResumeRound())
	assert.Equal(t, StateWaiting, c.State())

	c.StartRound()
	kinds = nil
	assert.False(t, c.ResumeRound())
	require.True(t, c.PauseRound())
	assert.False(t, c.PauseRound())
	assert.Equal(t, []event.Kind{KindState, KindPaused}, kinds)
}

func TestControllerEndsAtZero(t *testing.T) {
	c, hub := newController(t, 30*time.Second)
	ticker := &tickLog{ctrl: c}
	c.SetTicker(ticker)
	var kinds []event.Kind
	hub.Tap(func(e event.Envelope) {
		if e.Kind != KindTimer {
			kinds = append(kinds, e.Kind)
		}
	})

	c.StartRound()
	kinds = nil
	c.Tick(45 * time.Second)

	assert.Equal(t, StateSummary, c.State())
	assert.Equal(t, time.Duration(0), c.RemainingTime())
	assert.False(t, c.IsRoundActive())
	// 30s 阈值先于结束事件，结算事件最后
	assert.Equal(t, []event.Kind{KindWarning, KindState, KindEnded, KindSummary}, kinds)
	// 调度器在时钟递减之后被调用
	assert.Equal(t, []time.Duration{0}, ticker.seen)

	c.Tick(time.Second)
	assert.Len(t, ticker.ticks, 1)
}

func TestControllerEndRoundFromAnyState(t *testing.T) {
	c, _ := newController(t, 300*time.Second)
	summaries := 0
	c.Events.Summary.Subscribe(func(SummaryEvent) { summaries++ })

	c.EndRound()
	assert.Equal(t, StateSummary, c.State())

	c.StartRound()
	c.PauseRound()
	c.EndRound()
	assert.Equal(t, StateSummary, c.State())
	assert.Equal(t, 2, summaries)

	c.StartRound()
	assert.Equal(t, StateInRound, c.State())
	assert.Equal(t, 300*time.Second, c.RemainingTime())
}

func TestControllerRestartWhileInRound(t *testing.T) {
	c, _ := newController(t, 300*time.Second)
	starts := 0
	c.Events.Started.Subscribe(func(StartedEvent) { starts++ })

	c.StartRound()
	c.Tick(100 * time.Second)
	c.StartRound()
	assert.Equal(t, 300*time.Second, c.RemainingTime())
	assert.Equal(t, 2, starts)
	assert.Equal(t, 2, c.Round())
}

func TestControllerStateEvents(t *testing.T) {
	c, _ := newController(t, 300*time.Second)
	var changes []StateEvent
	c.Events.State.Subscribe(func(e StateEvent) { changes = append(changes, e) })

	c.StartRound()
	c.PauseRound()
	c.ResumeRound()
	c.EndRound()
	assert.Equal(t, []StateEvent{
		{From: StateWaiting, To: StateInRound},
		{From: StateInRound, To: StatePaused},
		{From: StatePaused, To: StateInRound},
		{From: StateInRound, To: StateSummary},
	}, changes)
	assert.Equal(t, "SUMMARY", c.State().String())
}

func TestConfigValidate(t *testing.T) {
	_, err := NewController(Config{}, nil, nil)
	assert.Error(t, err)
	_, err = NewController(Config{Duration: time.Minute, Warnings: []time.Duration{-time.Second}}, nil, nil)
	assert.Error(t, err)

	c, err := NewController(Config{Duration: time.Minute, Warnings: []time.Duration{10 * time.Second, 40 * time.Second}}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{40 * time.Second, 10 * time.Second}, c.Config().Warnings)
}
