// Package dispatch fans inbound envelopes out to independently registered
// subscribers. Subscribers are isolated from each other: a panicking handler
// never prevents delivery to the rest, and an unregistered handler is never
// invoked again.
package dispatch

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Znerken/Omerta-RPG-sub001/internal/metrics"
	"github.com/Znerken/Omerta-RPG-sub001/internal/protocol"
)

// Handler receives every envelope arriving on the connection.
type Handler func(protocol.Envelope)

type subscription struct {
	id      uint64
	handler Handler
	active  atomic.Bool
}

// Registry is an explicit observer registry (handle -> callback). Envelopes
// dispatch in transport arrival order to a snapshot of the subscribers
// registered at dispatch time.
type Registry struct {
	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[uint64]*subscription)}
}

// Register adds a handler and returns its unregister function. Unregistering
// is idempotent; after it returns, the handler is guaranteed to receive zero
// further envelopes.
func (r *Registry) Register(handler Handler) func() {
	r.mu.Lock()
	r.nextID++
	sub := &subscription{id: r.nextID, handler: handler}
	sub.active.Store(true)
	r.subs[sub.id] = sub
	metrics.SubscribersCurrent.Set(float64(len(r.subs)))
	r.mu.Unlock()

	return func() {
		// Flip active before taking the lock so an in-flight dispatch that
		// already snapshotted this subscription skips it.
		sub.active.Store(false)
		r.mu.Lock()
		delete(r.subs, sub.id)
		metrics.SubscribersCurrent.Set(float64(len(r.subs)))
		r.mu.Unlock()
	}
}

// Dispatch delivers one envelope to every currently registered subscriber.
// The active flag is re-checked immediately before each invocation, so a
// handler unregistered mid-dispatch is skipped even if it was part of the
// snapshot.
func (r *Registry) Dispatch(env protocol.Envelope) {
	r.mu.Lock()
	snapshot := make([]*subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		snapshot = append(snapshot, sub)
	}
	r.mu.Unlock()

	// Deliver in registration order.
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].id < snapshot[j].id })

	metrics.EnvelopesDispatchedTotal.WithLabelValues(env.Type).Inc()
	for _, sub := range snapshot {
		if !sub.active.Load() {
			continue
		}
		r.invoke(sub, env)
	}
}

func (r *Registry) invoke(sub *subscription, env protocol.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.HandlerPanicsTotal.Inc()
			slog.Error("Subscriber panicked during dispatch",
				"envelope_type", env.Type,
				"subscription_id", sub.id,
				"panic", rec)
		}
	}()
	sub.handler(env)
}

// Len returns the number of registered subscribers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
