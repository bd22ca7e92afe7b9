package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/makemykankotri/kankotri/pkg/observability"
)

// Handler receives events. A returned error is logged and never propagated.
type Handler func(ctx context.Context, event Event) error

// Subscription identifies a registered handler for Off
type Subscription struct {
	id   uint64
	name string
}

// Name returns the event name the subscription listens to
func (s Subscription) Name() string {
	return s.name
}

type listener struct {
	id      uint64
	handler Handler
	once    bool
}

// Bus dispatches events synchronously, in subscription order, to the handlers
// registered for the event name and then to wildcard handlers.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]*listener
	nextID    uint64

	logger  observability.Logger
	metrics observability.MetricsClient
	now     func() time.Time
}

// NewBus creates an empty bus
func NewBus(logger observability.Logger, metrics observability.MetricsClient) *Bus {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &Bus{
		listeners: make(map[string][]*listener),
		logger:    logger.WithPrefix("events"),
		metrics:   metrics,
		now:       time.Now,
	}
}

// On registers a handler for every emission of name
func (b *Bus) On(name string, handler Handler) Subscription {
	return b.add(name, handler, false)
}

// Once registers a handler that is removed after its first invocation
func (b *Bus) Once(name string, handler Handler) Subscription {
	return b.add(name, handler, true)
}

func (b *Bus) add(name string, handler Handler, once bool) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	l := &listener{id: b.nextID, handler: handler, once: once}
	b.listeners[name] = append(b.listeners[name], l)
	return Subscription{id: l.id, name: name}
}

// Off removes a subscription. It reports whether anything was removed.
func (b *Bus) Off(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.listeners[sub.name]
	for i, l := range list {
		if l.id != sub.id {
			continue
		}
		next := make([]*listener, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		b.store(sub.name, next)
		return true
	}
	return false
}

// Clear removes every handler for the given names, or all handlers when none are given
func (b *Bus) Clear(names ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(names) == 0 {
		b.listeners = make(map[string][]*listener)
		return
	}
	for _, name := range names {
		delete(b.listeners, name)
	}
}

// ListenerCount returns the number of handlers registered for name
func (b *Bus) ListenerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}

// Emit delivers payload to the handlers of name and returns how many ran
func (b *Bus) Emit(ctx context.Context, name string, payload interface{}) int {
	targets := b.collect(name)
	if len(targets) == 0 {
		return 0
	}

	event := Event{
		ID:        uuid.NewString(),
		Name:      name,
		Payload:   payload,
		Timestamp: b.now().UTC(),
	}

	for _, l := range targets {
		b.invoke(ctx, l, event)
	}

	b.metrics.RecordCounter("events_emitted_total", 1, map[string]string{"event": name})
	return len(targets)
}

// collect snapshots the handlers to run and detaches once-handlers under the
// write lock, so each once-handler is claimed by exactly one Emit.
func (b *Bus) collect(name string) []*listener {
	b.mu.Lock()
	defer b.mu.Unlock()

	var targets []*listener
	take := func(key string) {
		list := b.listeners[key]
		if len(list) == 0 {
			return
		}
		kept := make([]*listener, 0, len(list))
		for _, l := range list {
			targets = append(targets, l)
			if !l.once {
				kept = append(kept, l)
			}
		}
		if len(kept) != len(list) {
			b.store(key, kept)
		}
	}

	take(name)
	if name != Wildcard {
		take(Wildcard)
	}
	return targets
}

// store replaces the listener slice for name; callers hold the write lock
func (b *Bus) store(name string, list []*listener) {
	if len(list) == 0 {
		delete(b.listeners, name)
		return
	}
	b.listeners[name] = list
}

func (b *Bus) invoke(ctx context.Context, l *listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.RecordCounter("event_handler_failures_total", 1, map[string]string{"event": event.Name})
			b.logger.Error("Event handler panicked", map[string]interface{}{
				"event": event.Name,
				"panic": fmt.Sprint(r),
			})
		}
	}()

	if err := l.handler(ctx, event); err != nil {
		b.metrics.RecordCounter("event_handler_failures_total", 1, map[string]string{"event": event.Name})
		b.logger.Error("Event handler failed", map[string]interface{}{
			"event": event.Name,
			"error": err.Error(),
		})
	}
}
