package logger

import (
	"orderup-go/event"
	"orderup-go/order"
	"orderup-go/round"
	"orderup-go/score"
)

// AttachEvents 把会话事件写成结构化日志。计时与分数变化事件过于频繁，不记录。
// 返回的凭证交给 hub.Untap 解除。
func (l *Logger) AttachEvents(hub *event.Hub) event.Subscription {
	current := 0
	return hub.Tap(func(env event.Envelope) {
		switch e := env.Payload.(type) {
		case round.StartedEvent:
			current = e.Round
			l.LogRound("started", e.Round, round.StateInRound.String(), map[string]interface{}{
				"duration_seconds": e.Duration.Seconds(),
			})
		case round.PausedEvent:
			l.LogRound("paused", current, round.StatePaused.String(), map[string]interface{}{
				"remaining_seconds": e.Remaining.Seconds(),
			})
		case round.ResumedEvent:
			l.LogRound("resumed", current, round.StateInRound.String(), map[string]interface{}{
				"remaining_seconds": e.Remaining.Seconds(),
			})
		case round.WarningEvent:
			l.LogRound("time_warning", current, round.StateInRound.String(), map[string]interface{}{
				"threshold_seconds": e.Threshold.Seconds(),
				"remaining_seconds": e.Remaining.Seconds(),
			})
		case round.EndedEvent:
			l.LogRound("ended", e.Round, round.StateSummary.String(), nil)
		case order.SpawnEvent:
			logOrder(l, "spawned", e.Order, nil)
		case order.ExpireEvent:
			logOrder(l, "expired", e.Order, nil)
		case order.CompleteEvent:
			fields := map[string]interface{}{
				"points":          e.Points,
				"reported_points": e.ReportedPoints,
			}
			if e.CompletionTime != nil {
				fields["completion_seconds"] = e.CompletionTime.Seconds()
			}
			logOrder(l, "completed", e.Order, fields)
		case score.SummaryEvent:
			s := e.Summary
			fields := map[string]interface{}{
				"round":              current,
				"score":              s.Score,
				"orders_completed":   s.OrdersCompleted,
				"standard_completed": s.StandardCompleted,
				"express_completed":  s.ExpressCompleted,
				"missed_express":     s.MissedExpress,
			}
			if avg, ok := s.AverageCompletionTime(); ok {
				fields["average_completion_seconds"] = avg.Seconds()
			}
			l.LogScore("summary", fields)
		}
	})
}

func logOrder(l *Logger, ev string, o order.ActiveOrder, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["spawned_at_seconds"] = o.SpawnedAt.Seconds()
	l.LogOrder(ev, o.InstanceID, o.Definition.ID, string(o.Definition.Type), fields)
}
