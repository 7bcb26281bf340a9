package feed

import "sync"

type subscription[T any] struct {
	ch chan T
}

// broadcaster 扇出到多个客户端，客户端过慢时直接丢弃消息，不阻塞发布方。
type broadcaster[T any] struct {
	mu     sync.RWMutex
	subs   map[*subscription[T]]struct{}
	closed bool
	onDrop func()
}

func newBroadcaster[T any](onDrop func()) *broadcaster[T] {
	if onDrop == nil {
		onDrop = func() {}
	}
	return &broadcaster[T]{subs: make(map[*subscription[T]]struct{}), onDrop: onDrop}
}

// Subscribe 在已关闭的 broadcaster 上返回 nil。
func (b *broadcaster[T]) Subscribe(buffer int) *subscription[T] {
	sub := &subscription[T]{ch: make(chan T, buffer)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.subs[sub] = struct{}{}
	return sub
}

func (b *broadcaster[T]) Unsubscribe(sub *subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

func (b *broadcaster[T]) Broadcast(value T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub.ch <- value:
		default:
			b.onDrop()
		}
	}
}

func (b *broadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close 关闭全部订阅，流式 handler 随之退出。
func (b *broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}
