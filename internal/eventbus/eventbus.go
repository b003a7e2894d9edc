// Package eventbus fans lifecycle events out to in-process subscribers such
// as the metrics collector. Delivery never blocks the publisher: a subscriber
// whose buffer is full misses the event and the bus counts it as dropped.
package eventbus

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber queue length used when none is set.
const DefaultBuffer = 8

// Event is any value published on the bus.
type Event interface{}

// EventBus is the publish side handed to supervisors, the session tracker
// and the reconciler, plus the subscribe side used by collectors.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

// Option configures a Bus.
type Option func(*Bus)

// WithBuffer sets the queue length of every subscriber channel.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// Bus is the channel based EventBus.
type Bus struct {
	buffer  int
	dropped atomic.Uint64

	mu     sync.RWMutex
	subs   []chan Event
	closed bool
}

// New creates a Bus.
func New(opts ...Option) *Bus {
	b := &Bus{buffer: DefaultBuffer}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Publish offers e to every subscriber. Publishing on a closed bus is a no-op.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber
// was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribe registers a subscriber. On a closed bus the returned channel is
// already closed.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Unsubscribe removes sub and closes it. Unknown channels are ignored.
func (b *Bus) Unsubscribe(sub <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch != sub {
			continue
		}
		b.subs = append(b.subs[:i], b.subs[i+1:]...)
		close(ch)
		return
	}
}

// Close closes every subscriber channel. It is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
