package event

import (
	"log/slog"
	"sync"
	"time"
)

// Handler receives published events. Handlers run synchronously on the
// publishing goroutine; long-running work should be handed off.
type Handler func(Event)

// Bus is an in-process publish/subscribe fan-out for lifecycle events.
// It is safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Kind]map[uint64]Handler
	nextID uint64
	logger *slog.Logger
}

// NewBus creates an empty event bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[Kind]map[uint64]Handler),
		logger: logger,
	}
}

// Subscription is a handle for one registration. Cancel detaches the
// handler; cancelling twice is a no-op.
type Subscription struct {
	bus  *Bus
	kind Kind
	id   uint64

	once sync.Once
}

// Cancel removes the subscription from the bus.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if handlers, ok := s.bus.subs[s.kind]; ok {
			delete(handlers, s.id)
		}
	})
}

// Subscribe registers fn for events of the given kind and returns the
// subscription handle.
func (b *Bus) Subscribe(kind Kind, fn Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{bus: b, kind: kind, id: b.nextID}
	if b.subs[kind] == nil {
		b.subs[kind] = make(map[uint64]Handler)
	}
	b.subs[kind][sub.id] = fn
	return sub
}

// Publish delivers e to every subscriber of its kind. Delivery order is
// unspecified. A panicking subscriber is logged and does not affect the
// others or the publisher.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[e.Kind]))
	for _, h := range b.subs[e.Kind] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, e)
	}
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				slog.String("kind", string(e.Kind)),
				slog.Any("panic", r),
			)
		}
	}()
	h(e)
}
