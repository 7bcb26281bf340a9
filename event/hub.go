// Package event 提供同步、强类型的发布/订阅注册表。
//
// 每个有状态组件持有若干 Topic，发布在调用线程内同步完成；
// 订阅方必须在销毁前调用 Unsubscribe，处理函数内不得回调发布方的变更方法。
package event

// Kind 事件类别名称，用于 Envelope 与外部观察者（日志、指标、推送）。
type Kind string

// Envelope 是通过 Hub.Tap 观察到的任意事件。
type Envelope struct {
	Kind    Kind
	Payload any
}

// Subscription 订阅凭证，Unsubscribe 时使用。零值表示无效订阅。
type Subscription struct {
	kind Kind
	id   uint64
}

// Kind 返回订阅所属的事件类别。
func (s Subscription) Kind() Kind { return s.kind }

// Valid 报告该凭证是否来自一次成功的 Subscribe。
func (s Subscription) Valid() bool { return s.id != 0 }

type entry[T any] struct {
	id uint64
	fn func(T)
}

// Hub 把多个 Topic 串起来，并向 Tap 转发所有发布。
type Hub struct {
	nextID uint64
	taps   []entry[Envelope]
}

// NewHub 创建空的事件中心。
func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) allocID() uint64 {
	h.nextID++
	return h.nextID
}

// Tap 订阅所有经过该 Hub 的事件。
func (h *Hub) Tap(fn func(Envelope)) Subscription {
	if fn == nil {
		return Subscription{}
	}
	id := h.allocID()
	h.taps = append(h.taps, entry[Envelope]{id: id, fn: fn})
	return Subscription{kind: "*", id: id}
}

// Untap 取消 Tap 订阅。
func (h *Hub) Untap(s Subscription) bool {
	var ok bool
	h.taps, ok = remove(h.taps, s.id)
	return ok
}

// Taps 返回当前 Tap 订阅数量。
func (h *Hub) Taps() int { return len(h.taps) }

func (h *Hub) forward(kind Kind, payload any) {
	if len(h.taps) == 0 {
		return
	}
	env := Envelope{Kind: kind, Payload: payload}
	for _, e := range snapshot(h.taps) {
		e.fn(env)
	}
}

// Topic 单一事件类别的有序订阅列表。
type Topic[T any] struct {
	kind Kind
	hub  *Hub
	next uint64
	subs []entry[T]
}

// NewTopic 在 hub 上注册一个类别为 kind 的 Topic。hub 为 nil 时该 Topic 独立工作。
func NewTopic[T any](hub *Hub, kind Kind) *Topic[T] {
	return &Topic[T]{kind: kind, hub: hub}
}

// Kind 返回 Topic 的事件类别。
func (t *Topic[T]) Kind() Kind { return t.kind }

// Subscribe 追加订阅者，按订阅顺序被调用。
func (t *Topic[T]) Subscribe(fn func(T)) Subscription {
	if fn == nil {
		return Subscription{}
	}
	var id uint64
	if t.hub != nil {
		id = t.hub.allocID()
	} else {
		t.next++
		id = t.next
	}
	t.subs = append(t.subs, entry[T]{id: id, fn: fn})
	return Subscription{kind: t.kind, id: id}
}

// Unsubscribe 移除订阅；凭证不属于该 Topic 时返回 false。
func (t *Topic[T]) Unsubscribe(s Subscription) bool {
	if s.kind != t.kind {
		return false
	}
	var ok bool
	t.subs, ok = remove(t.subs, s.id)
	return ok
}

// Len 当前订阅者数量。
func (t *Topic[T]) Len() int { return len(t.subs) }

// Publish 先转发给 Hub 的 Tap，再同步通知全部订阅者。
// Tap 因此按因果顺序看到嵌套发布的事件。
// 遍历的是订阅列表的拷贝，处理函数内退订不影响本轮通知。
func (t *Topic[T]) Publish(v T) {
	if t.hub != nil {
		t.hub.forward(t.kind, v)
	}
	for _, e := range snapshot(t.subs) {
		e.fn(v)
	}
}

func snapshot[T any](subs []entry[T]) []entry[T] {
	if len(subs) == 0 {
		return nil
	}
	out := make([]entry[T], len(subs))
	copy(out, subs)
	return out
}

func remove[T any](subs []entry[T], id uint64) ([]entry[T], bool) {
	if id == 0 {
		return subs, false
	}
	for i, e := range subs {
		if e.id == id {
			out := make([]entry[T], 0, len(subs)-1)
			out = append(out, subs[:i]...)
			out = append(out, subs[i+1:]...)
			return out, true
		}
	}
	return subs, false
}
