package notify

import (
	"context"
	"errors"
	"sync"
)

// Handler receives notifications published on a Bus.
type Handler func(ctx context.Context, msg Message) error

// Bus is an explicit publish/subscribe Notifier. Each Bus owns its own
// subscriber list; create one per orchestrator or per session rather than
// sharing a process-wide registry.
type Bus struct {
	next Notifier

	mu       sync.RWMutex
	handlers map[uint64]subscription
	seq      uint64
}

type subscription struct {
	kind    Kind
	handler Handler
}

// NewBus creates a Bus that forwards every notification to next, if set,
// after local subscribers have seen it.
func NewBus(next Notifier) *Bus {
	return &Bus{
		next:     next,
		handlers: make(map[uint64]subscription),
	}
}

// Subscribe registers h for kind, or for every kind when kind is empty.
// The returned function removes the subscription.
func (b *Bus) Subscribe(kind Kind, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.seq++
	id := b.seq
	b.handlers[id] = subscription{kind: kind, handler: h}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// Notify delivers to matching subscribers, then to the downstream notifier.
// Every handler runs; their errors are joined.
func (b *Bus) Notify(ctx context.Context, kind Kind, recipient string, data map[string]any) error {
	msg := Message{Kind: kind, Recipient: recipient, Data: data, SentAt: now()}

	b.mu.RLock()
	matched := make([]Handler, 0, len(b.handlers))
	for _, sub := range b.handlers {
		if sub.kind == "" || sub.kind == kind {
			matched = append(matched, sub.handler)
		}
	}
	b.mu.RUnlock()

	var errs []error
	for _, h := range matched {
		if err := h(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if b.next != nil {
		if err := b.next.Notify(ctx, kind, recipient, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Notifier = (*Bus)(nil)
