// Package eventbus is a minimal in-process pub/sub used by the per-room
// controllers to observe each other's state changes without writing into
// each other directly.
package eventbus

import "sync"

type HandlerFunc func(payload any)

type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]HandlerFunc
	closed   bool
}

func New() *Bus {
	return &Bus{handlers: make(map[string][]HandlerFunc)}
}

// Subscribe registers a handler for the topic. Handlers are invoked
// synchronously in registration order on the publisher's goroutine, so a
// publisher observes per-topic FIFO delivery.
func (b *Bus) Subscribe(topic string, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.handlers[topic] = append(b.handlers[topic], handler)
}

func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	handlers := b.handlers[topic]
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		return
	}
	for _, h := range handlers {
		h(payload)
	}
}

// Close drops all subscriptions. Publishing after Close is a no-op, which
// lets late async continuations fire harmlessly after a room is left.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = make(map[string][]HandlerFunc)
	b.closed = true
}
