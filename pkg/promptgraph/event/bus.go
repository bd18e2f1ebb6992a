package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// ErrBusClosed is returned when publishing to a closed bus.
var ErrBusClosed = errors.New("event bus is closed")

// Handler receives events. Handlers run on the publisher's goroutine and
// must not block for long.
type Handler func(ctx context.Context, evt Event)

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe removes the subscription. It is safe to call twice.
	Unsubscribe()
}

// BusConfig configures bus behavior.
type BusConfig struct {
	// Logger receives one info line per published event unless the
	// event type is silenced. Default: slog.Default().
	Logger *slog.Logger

	// OnPanic is called when a handler panics. The panic is recovered
	// and delivery continues with the next handler.
	OnPanic func(evt Event, subscriberID uint64, recovered any)
}

// Bus is an in-memory synchronous event bus. It is safe for concurrent use.
type Bus struct {
	config BusConfig

	mu            sync.RWMutex
	subscriptions map[uint64]*subscription
	quiet         map[Type]bool

	nextID atomic.Uint64
	closed atomic.Bool
}

// NewBus creates a bus.
func NewBus(config BusConfig) *Bus {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Bus{
		config:        config,
		subscriptions: make(map[uint64]*subscription),
		quiet:         make(map[Type]bool),
	}
}

type subscription struct {
	id      uint64
	types   map[Type]bool // empty = all types
	handler Handler
	bus     *Bus
}

// Silence suppresses logging for high-frequency event types such as
// flow:dirty. Delivery is unaffected. Returns the bus for chaining.
func (b *Bus) Silence(types ...Type) *Bus {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		b.quiet[t] = true
	}
	return b
}

// Publish delivers evt to every matching subscriber in subscription order.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	if b.closed.Load() {
		return fmt.Errorf("publish %s: %w", evt.Type, ErrBusClosed)
	}

	b.mu.RLock()
	subs := b.matching(evt.Type)
	quiet := b.quiet[evt.Type]
	b.mu.RUnlock()

	if !quiet {
		b.config.Logger.Info("event published",
			slog.String("event", string(evt.Type)),
			slog.String("flow_id", evt.FlowID),
			slog.Int("subscribers", len(subs)),
		)
	}

	for _, sub := range subs {
		b.deliver(ctx, sub, evt)
	}
	return nil
}

func (b *Bus) deliver(ctx context.Context, sub *subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.config.Logger.Error("event handler panicked",
				slog.String("event", string(evt.Type)),
				slog.Any("panic", r),
			)
			if b.config.OnPanic != nil {
				b.config.OnPanic(evt, sub.id, r)
			}
		}
	}()
	sub.handler(ctx, evt)
}

// Subscribe creates a subscription for specific event types.
// Returns nil if the bus is closed.
func (b *Bus) Subscribe(types []Type, handler Handler) Subscription {
	if len(types) == 0 {
		return nil
	}
	return b.subscribe(types, handler)
}

// SubscribeAll subscribes to all events. Returns nil if the bus is closed.
func (b *Bus) SubscribeAll(handler Handler) Subscription {
	return b.subscribe(nil, handler)
}

func (b *Bus) subscribe(types []Type, handler Handler) Subscription {
	if handler == nil {
		panic("event: handler cannot be nil")
	}
	if b.closed.Load() {
		return nil
	}

	sub := &subscription{
		id:      b.nextID.Add(1),
		types:   make(map[Type]bool, len(types)),
		handler: handler,
		bus:     b,
	}
	for _, t := range types {
		sub.types[t] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions[sub.id] = sub
	return sub
}

// matching returns subscriptions for an event type ordered by ID.
// Caller must hold b.mu.
func (b *Bus) matching(t Type) []*subscription {
	subs := make([]*subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		if len(sub.types) == 0 || sub.types[t] {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
	return subs
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Close removes all subscriptions. Further publishes fail with ErrBusClosed.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = make(map[uint64]*subscription)
	return nil
}

// Unsubscribe removes the subscription.
func (s *subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subscriptions, s.id)
}
