package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"weatherdine/internal/domain"
)

// DefaultQueueSize is the per-subscriber buffer used by New.
const DefaultQueueSize = 256

type delivery struct {
	ctx   context.Context
	event domain.Event
}

// subscription owns a queue drained by a single goroutine, so each
// subscriber sees events in publish order.
type subscription struct {
	id      uint64
	handler domain.EventHandler
	queue   chan delivery
	done    chan struct{}
}

// Bus is an in-process, goroutine-safe event bus.
type Bus struct {
	mu        sync.RWMutex
	typed     map[domain.EventType][]*subscription
	allSubs   []*subscription
	nextID    atomic.Uint64
	queueSize int
	dropped   atomic.Uint64
	logger    *slog.Logger
	closed    bool
}

// New creates an event bus with DefaultQueueSize per subscriber.
func New(logger *slog.Logger) *Bus {
	return NewWithQueueSize(logger, DefaultQueueSize)
}

// NewWithQueueSize creates an event bus. When a subscriber's queue is full,
// new events for it are dropped and counted.
func NewWithQueueSize(logger *slog.Logger, size int) *Bus {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Bus{
		typed:     make(map[domain.EventType][]*subscription),
		queueSize: size,
		logger:    logger,
	}
}

// Publish enqueues event for matching typed subscribers and all-event
// subscribers. It never blocks on a slow handler.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, sub := range b.typed[event.Type] {
		b.enqueue(ctx, event, sub)
	}
	for _, sub := range b.allSubs {
		b.enqueue(ctx, event, sub)
	}
}

func (b *Bus) enqueue(ctx context.Context, event domain.Event, sub *subscription) {
	select {
	case sub.queue <- delivery{ctx: context.WithoutCancel(ctx), event: event}:
	default:
		b.dropped.Add(1)
		b.logger.Warn("event dropped, subscriber queue full",
			"event", string(event.Type),
			"subscription", sub.id,
		)
	}
}

func (b *Bus) newSubscription(handler domain.EventHandler) *subscription {
	sub := &subscription{
		id:      b.nextID.Add(1),
		handler: handler,
		queue:   make(chan delivery, b.queueSize),
		done:    make(chan struct{}),
	}
	go b.run(sub)
	return sub
}

func (b *Bus) run(sub *subscription) {
	defer close(sub.done)
	for d := range sub.queue {
		b.deliver(d, sub)
	}
}

func (b *Bus) deliver(d delivery, sub *subscription) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(d.event.Type),
				"panic", r,
			)
		}
	}()
	sub.handler(d.ctx, d.event)
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function that waits for queued events to drain.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	sub := b.newSubscription(handler)
	b.typed[eventType] = append(b.typed[eventType], sub)

	return b.unsubscriber(sub, func() {
		b.typed[eventType] = remove(b.typed[eventType], sub.id)
	})
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function that waits for queued events to drain.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	sub := b.newSubscription(handler)
	b.allSubs = append(b.allSubs, sub)

	return b.unsubscriber(sub, func() {
		b.allSubs = remove(b.allSubs, sub.id)
	})
}

func (b *Bus) unsubscriber(sub *subscription, detach func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if !b.closed {
				detach()
				close(sub.queue)
			}
			b.mu.Unlock()
			<-sub.done
		})
	}
}

func remove(subs []*subscription, id uint64) []*subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// Dropped reports how many deliveries were discarded because a queue was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Close prevents new publishes and waits for every queued event to be handled.
// Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var subs []*subscription
	for _, list := range b.typed {
		subs = append(subs, list...)
	}
	subs = append(subs, b.allSubs...)
	for _, s := range subs {
		close(s.queue)
	}
	b.typed = nil
	b.allSubs = nil
	b.mu.Unlock()

	for _, s := range subs {
		<-s.done
	}
}

// Emit publishes an event of type typ on bus with payload marshalled to JSON.
// The thread ID is taken from ctx. A nil bus is a no-op.
func Emit(ctx context.Context, bus domain.EventBus, typ domain.EventType, payload any) {
	if bus == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}
	bus.Publish(ctx, domain.Event{
		Type:      typ,
		Timestamp: time.Now(),
		ThreadID:  domain.ThreadIDFromContext(ctx),
		Payload:   raw,
	})
}
