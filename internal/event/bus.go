// Package event implements the in-process broadcast bus that fans document
// events out to streaming sessions.
package event

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/alicanerdogan/livemarkdown/internal/logging"
)

const defaultSubscriberBufferSize = 100

type BusOptions struct {
	Name                 string
	SubscriberBufferSize int
	Logger               logging.Logger
}

// Stats is a point-in-time view of bus counters.
type Stats struct {
	Published   int64 `json:"published"`
	Dropped     int64 `json:"dropped"`
	Subscribers int   `json:"subscribers"`
}

// Bus is a lossy multi-producer, multi-consumer broadcast. Publish never
// blocks: when a subscriber's buffer is full its oldest buffered event is
// discarded to make room. Delivery happens under the bus lock, so every
// subscriber observes events in global publish order.
type Bus[T any] struct {
	mu          sync.Mutex
	subscribers map[uint64]subscription[T]
	nextSubID   uint64
	closed      bool
	options     BusOptions
	logger      logging.Logger
	published   atomic.Int64
	dropped     atomic.Int64
}

type subscription[T any] struct {
	id     uint64
	ch     chan T
	filter func(T) bool
}

// NewBus creates a bus that closes itself when ctx is done.
func NewBus[T any](ctx context.Context, opts BusOptions) *Bus[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.SubscriberBufferSize <= 0 {
		opts.SubscriberBufferSize = defaultSubscriberBufferSize
	}
	if opts.Name == "" {
		opts.Name = "event_bus"
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	bus := &Bus[T]{
		subscribers: make(map[uint64]subscription[T]),
		options:     opts,
		logger:      logger.WithComponent("event_bus").With("bus", opts.Name),
	}
	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			bus.Close()
		}()
	}
	return bus
}

func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	return b.SubscribeFiltered(nil)
}

// SubscribeFiltered registers a receiver for events accepted by filter. Only
// events published after the call returns are delivered. The returned cancel
// func closes the channel and may be called more than once.
func (b *Bus[T]) SubscribeFiltered(filter func(T) bool) (<-chan T, func()) {
	if b == nil {
		ch := make(chan T)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan T, b.options.SubscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.nextSubID++
	id := b.nextSubID
	b.subscribers[id] = subscription[T]{id: id, ch: ch, filter: filter}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() { b.removeSubscriber(id) })
	}
	return ch, cancel
}

// Publish delivers event to every matching subscriber without blocking.
func (b *Bus[T]) Publish(event T) {
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.published.Add(1)

	for _, sub := range b.subscribers {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		b.deliverLocked(sub, event)
	}
}

// deliverLocked performs a non-blocking send, evicting the oldest buffered
// event when the subscriber is full. Callers hold b.mu, which is also
// required to close a subscriber channel, so the send cannot race a close.
func (b *Bus[T]) deliverLocked(sub subscription[T], event T) {
	select {
	case sub.ch <- event:
		return
	default:
	}

	select {
	case <-sub.ch:
		b.dropped.Add(1)
		b.logger.Debug(context.Background(), "subscriber lagging, dropped oldest event",
			"subscriber", sub.id, "capacity", cap(sub.ch))
	default:
	}

	select {
	case sub.ch <- event:
	default:
		b.dropped.Add(1)
	}
}

func (b *Bus[T]) removeSubscriber(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub.ch)
	}
}

// Close closes every subscriber channel. Later publishes are no-ops and later
// subscriptions receive an already closed channel.
func (b *Bus[T]) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}

func (b *Bus[T]) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

func (b *Bus[T]) Stats() Stats {
	return Stats{
		Published:   b.published.Load(),
		Dropped:     b.dropped.Load(),
		Subscribers: b.SubscriberCount(),
	}
}
