// Package score 累计回合得分与订单完成统计。
package score

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"orderup-go/event"
)

const (
	KindChanged        event.Kind = "score.changed"
	KindOrderCompleted event.Kind = "score.order_completed"
	KindSummary        event.Kind = "score.summary"
)

// ChangedEvent 当前分数变化。
type ChangedEvent struct {
	Score int
}

// OrderCompletedEvent 累计完成单数变化。
type OrderCompletedEvent struct {
	Total int
}

// SummaryEvent 回合结算汇总。
type SummaryEvent struct {
	Summary Summary
}

// Events 账本对外暴露的事件。
type Events struct {
	Changed        *event.Topic[ChangedEvent]
	OrderCompleted *event.Topic[OrderCompletedEvent]
	Summary        *event.Topic[SummaryEvent]
}

// Summary 某一时刻的统计快照。
type Summary struct {
	Score               int
	OrdersCompleted     int
	StandardCompleted   int
	ExpressCompleted    int
	MissedExpress       int
	TotalCompletionTime time.Duration
	TimedCompletions    int
}

// AverageCompletionTime 平均完成用时；没有计时数据时第二个返回值为 false。
func (s Summary) AverageCompletionTime() (time.Duration, bool) {
	if s.TimedCompletions == 0 {
		return 0, false
	}
	return s.TotalCompletionTime / time.Duration(s.TimedCompletions), true
}

// String 生成确定性的可读汇总。
func (s Summary) String() string {
	avg := "N/A"
	if d, ok := s.AverageCompletionTime(); ok {
		avg = fmt.Sprintf("%.1fs", d.Seconds())
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Final Score: %d\n", s.Score)
	fmt.Fprintf(&b, "Orders Completed: %d\n", s.OrdersCompleted)
	fmt.Fprintf(&b, "Standard Orders: %d\n", s.StandardCompleted)
	fmt.Fprintf(&b, "Express Orders: %d\n", s.ExpressCompleted)
	fmt.Fprintf(&b, "Missed Express Orders: %d\n", s.MissedExpress)
	fmt.Fprintf(&b, "Average Completion Time: %s", avg)
	return b.String()
}

// Ledger 团队得分账本。只能通过方法修改。
type Ledger struct {
	state  Summary
	logger *zap.Logger

	Events Events
}

// NewLedger 创建账本；hub、logger 均可为 nil。
func NewLedger(hub *event.Hub, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		logger: logger.Named("score"),
		Events: Events{
			Changed:        event.NewTopic[ChangedEvent](hub, KindChanged),
			OrderCompleted: event.NewTopic[OrderCompletedEvent](hub, KindOrderCompleted),
			Summary:        event.NewTopic[SummaryEvent](hub, KindSummary),
		},
	}
}

// ResetScore 清零全部计数。
func (l *Ledger) ResetScore() {
	l.logger.Info("resetting score for new round")
	l.state = Summary{}
	l.Events.Changed.Publish(ChangedEvent{Score: 0})
}

// AddScore 累加分数。本层不限制正负，调用方应传入非负值。
func (l *Ledger) AddScore(points int) {
	l.state.Score += points
	l.logger.Debug("score added", zap.Int("points", points), zap.Int("total", l.state.Score))
	l.Events.Changed.Publish(ChangedEvent{Score: l.state.Score})
}

// CompleteOrder 记录一单完成。completionTime 为 nil 时不计入平均用时。
func (l *Ledger) CompleteOrder(isExpress bool, points int, completionTime *time.Duration) {
	l.state.OrdersCompleted++
	if isExpress {
		l.state.ExpressCompleted++
	} else {
		l.state.StandardCompleted++
	}
	if completionTime != nil {
		l.state.TotalCompletionTime += *completionTime
		l.state.TimedCompletions++
	}

	l.AddScore(points)
	l.Events.OrderCompleted.Publish(OrderCompletedEvent{Total: l.state.OrdersCompleted})

	l.logger.Info("order completed",
		zap.Int("total", l.state.OrdersCompleted),
		zap.Int("standard", l.state.StandardCompleted),
		zap.Int("express", l.state.ExpressCompleted))
}

// RecordMissedExpressOrder 记录一单超时的加急单。
func (l *Ledger) RecordMissedExpressOrder() {
	l.state.MissedExpress++
	l.logger.Info("express order missed", zap.Int("missed", l.state.MissedExpress))
}

// GetGameSummary 返回当前统计，无副作用。
func (l *Ledger) GetGameSummary() Summary { return l.state }

// PublishSummary 发布当前汇总，回合结算时调用。
func (l *Ledger) PublishSummary() Summary {
	s := l.state
	l.Events.Summary.Publish(SummaryEvent{Summary: s})
	return s
}

func (l *Ledger) CurrentScore() int { return l.state.Score }
func (l *Ledger) OrdersCompleted() int { return l.state.OrdersCompleted }
func (l *Ledger) StandardOrdersCompleted() int { return l.state.StandardCompleted }
func (l *Ledger) ExpressOrdersCompleted() int { return l.state.ExpressCompleted }
func (l *Ledger) MissedExpressOrders() int { return l.state.MissedExpress }
