package feed

import (
	"time"

	"orderup-go/event"
	"orderup-go/internal/store"
	"orderup-go/order"
	"orderup-go/round"
	"orderup-go/score"
)

type outboundMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type orderView struct {
	InstanceID       uint64   `json:"instanceId"`
	DefinitionID     string   `json:"definitionId"`
	Type             string   `json:"type"`
	Customer         string   `json:"customer,omitempty"`
	Products         []string `json:"products"`
	Points           int      `json:"points"`
	Requirements     string   `json:"requirements"`
	SpawnedAtSeconds float64  `json:"spawnedAtSeconds"`
	LimitSeconds     *float64 `json:"expressLimitSeconds,omitempty"`
}

type completionView struct {
	Order             orderView `json:"order"`
	Points            int       `json:"points"`
	ReportedPoints    int       `json:"reportedPoints"`
	CompletionSeconds *float64  `json:"completionSeconds,omitempty"`
}

type summaryView struct {
	Score             int      `json:"score"`
	OrdersCompleted   int      `json:"ordersCompleted"`
	StandardCompleted int      `json:"standardCompleted"`
	ExpressCompleted  int      `json:"expressCompleted"`
	MissedExpress     int      `json:"missedExpress"`
	AverageSeconds    *float64 `json:"averageCompletionSeconds,omitempty"`
	Text              string   `json:"text"`
}

type roundRecordView struct {
	Round     int         `json:"round"`
	StartedAt time.Time   `json:"startedAt"`
	EndedAt   time.Time   `json:"endedAt"`
	Summary   summaryView `json:"summary"`
}

func toRoundRecordView(rec store.RoundRecord) roundRecordView {
	return roundRecordView{
		Round:     rec.Round,
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
		Summary:   toSummaryView(rec.Summary),
	}
}

func seconds(d time.Duration) float64 { return d.Seconds() }

func secondsPtr(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	v := d.Seconds()
	return &v
}

func toOrderView(o order.ActiveOrder) orderView {
	d := o.Definition
	v := orderView{
		InstanceID:       o.InstanceID,
		DefinitionID:     d.ID,
		Type:             string(d.Type),
		Customer:         d.CustomerName,
		Products:         d.RequiredProducts,
		Points:           d.Points(),
		Requirements:     d.RequirementsDescription(),
		SpawnedAtSeconds: seconds(o.SpawnedAt),
	}
	if d.IsExpress() {
		limit := d.ExpressTimeLimit
		v.LimitSeconds = secondsPtr(&limit)
	}
	return v
}

func toSummaryView(s score.Summary) summaryView {
	v := summaryView{
		Score:             s.Score,
		OrdersCompleted:   s.OrdersCompleted,
		StandardCompleted: s.StandardCompleted,
		ExpressCompleted:  s.ExpressCompleted,
		MissedExpress:     s.MissedExpress,
		Text:              s.String(),
	}
	if avg, ok := s.AverageCompletionTime(); ok {
		v.AverageSeconds = secondsPtr(&avg)
	}
	return v
}

// toMessage 把事件转成推送给客户端的 JSON 结构；未知事件原样透传。
func toMessage(env event.Envelope) outboundMessage {
	msg := outboundMessage{Type: string(env.Kind)}
	switch e := env.Payload.(type) {
	case round.StartedEvent:
		msg.Data = map[string]interface{}{"round": e.Round, "durationSeconds": seconds(e.Duration)}
	case round.EndedEvent:
		msg.Data = map[string]interface{}{"round": e.Round}
	case round.SummaryEvent:
		msg.Data = map[string]interface{}{"round": e.Round}
	case round.PausedEvent:
		msg.Data = map[string]interface{}{"remainingSeconds": seconds(e.Remaining)}
	case round.ResumedEvent:
		msg.Data = map[string]interface{}{"remainingSeconds": seconds(e.Remaining)}
	case round.TimerEvent:
		msg.Data = map[string]interface{}{"remainingSeconds": seconds(e.Remaining)}
	case round.WarningEvent:
		msg.Data = map[string]interface{}{
			"thresholdSeconds": seconds(e.Threshold),
			"remainingSeconds": seconds(e.Remaining),
		}
	case round.StateEvent:
		msg.Data = map[string]interface{}{"from": e.From.String(), "to": e.To.String()}
	case order.SpawnEvent:
		msg.Data = toOrderView(e.Order)
	case order.ExpireEvent:
		msg.Data = toOrderView(e.Order)
	case order.CompleteEvent:
		msg.Data = toCompletionView(e.Completion)
	case score.ChangedEvent:
		msg.Data = map[string]interface{}{"score": e.Score}
	case score.OrderCompletedEvent:
		msg.Data = map[string]interface{}{"ordersCompleted": e.Total}
	case score.SummaryEvent:
		msg.Data = toSummaryView(e.Summary)
	default:
		msg.Data = env.Payload
	}
	return msg
}

func toCompletionView(c order.Completion) completionView {
	return completionView{
		Order:             toOrderView(c.Order),
		Points:            c.Points,
		ReportedPoints:    c.ReportedPoints,
		CompletionSeconds: secondsPtr(c.CompletionTime),
	}
}
