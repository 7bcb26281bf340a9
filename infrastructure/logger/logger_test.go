package logger

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"orderup-go/event"
	"orderup-go/order"
	"orderup-go/round"
	"orderup-go/score"
)

func observed(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return Wrap(zap.New(core)), logs
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orderup.log")
	l, err := New(Config{Level: "info", Outputs: []string{"file"}, OutputFile: path, Format: "json"})
	require.NoError(t, err)
	l.LogScore("summary", map[string]interface{}{"score": 1, "orders_completed": 1, "missed_express": 0})
	_ = l.Close()
	assert.FileExists(t, path)
}

func TestLogOrderFields(t *testing.T) {
	l, logs := observed(zapcore.InfoLevel)
	l.LogOrder("spawned", 3, "o-1", "EXPRESS", nil)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "order_event", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "spawned", fields["event"])
	assert.Equal(t, uint64(3), fields["instance_id"])
	assert.Equal(t, "o-1", fields["order_id"])
	assert.NotContains(t, fields, "schema_error")
}

func TestLogScoreFlagsMissingFields(t *testing.T) {
	l, logs := observed(zapcore.InfoLevel)
	l.LogScore("summary", map[string]interface{}{"score": 10})

	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].ContextMap(), "schema_error")
}

func TestLogError(t *testing.T) {
	l, logs := observed(zapcore.DebugLevel)
	l.LogError(errors.New("boom"), map[string]interface{}{"component": "feed"})

	require.Equal(t, 1, logs.FilterMessage("error_event").Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "boom", entry.ContextMap()["error"])
}

func TestAttachEvents(t *testing.T) {
	l, logs := observed(zapcore.InfoLevel)
	hub := event.NewHub()
	sub := l.AttachEvents(hub)

	started := event.NewTopic[round.StartedEvent](hub, round.KindStarted)
	timer := event.NewTopic[round.TimerEvent](hub, round.KindTimer)
	spawned := event.NewTopic[order.SpawnEvent](hub, order.KindSpawned)
	summary := event.NewTopic[score.SummaryEvent](hub, score.KindSummary)

	started.Publish(round.StartedEvent{Round: 2, Duration: time.Minute})
	timer.Publish(round.TimerEvent{Remaining: time.Second})
	spawned.Publish(order.SpawnEvent{Order: order.ActiveOrder{
		InstanceID: 1,
		Definition: order.Definition{ID: "o-1", Type: order.TypeStandard},
	}})
	summary.Publish(score.SummaryEvent{Summary: score.Summary{Score: 50, OrdersCompleted: 1}})

	msgs := make([]string, 0, logs.Len())
	for _, e := range logs.All() {
		msgs = append(msgs, e.Message)
		assert.NotContains(t, e.ContextMap(), "schema_error", e.Message)
	}
	assert.Equal(t, []string{"round_event", "order_event", "score_event"}, msgs)
	assert.Equal(t, int64(2), logs.All()[2].ContextMap()["round"])

	require.True(t, hub.Untap(sub))
	started.Publish(round.StartedEvent{Round: 3})
	assert.Equal(t, 3, logs.Len())
}
