package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicPublishInOrder(t *testing.T) {
	topic := NewTopic[int](nil, "test.int")
	var got []string
	topic.Subscribe(func(v int) { got = append(got, "a") })
	topic.Subscribe(func(v int) { got = append(got, "b") })

	topic.Publish(1)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestTopicUnsubscribe(t *testing.T) {
	topic := NewTopic[string](nil, "test.str")
	calls := 0
	sub := topic.Subscribe(func(string) { calls++ })
	require.True(t, sub.Valid())
	require.Equal(t, 1, topic.Len())

	assert.True(t, topic.Unsubscribe(sub))
	assert.False(t, topic.Unsubscribe(sub), "second unsubscribe is a no-op")
	topic.Publish("x")
	assert.Equal(t, 0, calls)
}

func TestTopicUnsubscribeForeignKind(t *testing.T) {
	a := NewTopic[int](nil, "a")
	b := NewTopic[int](nil, "b")
	sub := a.Subscribe(func(int) {})
	assert.False(t, b.Unsubscribe(sub))
	assert.Equal(t, 1, a.Len())
}

func TestTopicUnsubscribeDuringPublish(t *testing.T) {
	topic := NewTopic[int](nil, "test.self")
	var second int
	var sub Subscription
	sub = topic.Subscribe(func(int) { topic.Unsubscribe(sub) })
	topic.Subscribe(func(int) { second++ })

	topic.Publish(1)
	topic.Publish(2)
	assert.Equal(t, 2, second)
	assert.Equal(t, 1, topic.Len())
}

func TestNilHandlerIgnored(t *testing.T) {
	topic := NewTopic[int](nil, "nil")
	sub := topic.Subscribe(nil)
	assert.False(t, sub.Valid())
	assert.Equal(t, 0, topic.Len())
}

func TestHubTapSeesAllTopics(t *testing.T) {
	hub := NewHub()
	ints := NewTopic[int](hub, "ints")
	strs := NewTopic[string](hub, "strs")

	var seen []Envelope
	tap := hub.Tap(func(e Envelope) { seen = append(seen, e) })
	ints.Publish(7)
	strs.Publish("hi")

	require.Len(t, seen, 2)
	assert.Equal(t, Kind("ints"), seen[0].Kind)
	assert.Equal(t, 7, seen[0].Payload)
	assert.Equal(t, Kind("strs"), seen[1].Kind)

	assert.True(t, hub.Untap(tap))
	ints.Publish(8)
	assert.Len(t, seen, 2)
	assert.Equal(t, 0, hub.Taps())
}

func TestHubTapSeesNestedPublishInOrder(t *testing.T) {
	hub := NewHub()
	outer := NewTopic[int](hub, "outer")
	inner := NewTopic[int](hub, "inner")
	outer.Subscribe(func(v int) { inner.Publish(v + 1) })

	var kinds []Kind
	hub.Tap(func(e Envelope) { kinds = append(kinds, e.Kind) })
	outer.Publish(1)
	assert.Equal(t, []Kind{"outer", "inner"}, kinds)
}

func TestHubSubscriptionIDsUnique(t *testing.T) {
	hub := NewHub()
	a := NewTopic[int](hub, "a")
	s1 := a.Subscribe(func(int) {})
	s2 := a.Subscribe(func(int) {})
	assert.NotEqual(t, s1, s2)
	assert.Equal(t, Kind("a"), s1.Kind())
}
