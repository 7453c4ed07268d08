// Package dispatch routes decoded envelopes to type-keyed handler sets,
// decoupling the channel from its consumers.
package dispatch

import (
	"log/slog"
	"sync"

	"github.com/kwindow/realtime/pkg/envelope"
)

// Handler consumes the payload of a dispatched envelope.
type Handler func(e envelope.Envelope)

// Subscription identifies one registered handler. Cancel removes it;
// cancelling twice is a no-op.
type Subscription struct {
	reg     *Registry
	msgType string
	id      uint64
}

// Cancel unregisters the handler. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s.reg == nil {
		return
	}
	s.reg.remove(s.msgType, s.id)
	s.reg = nil
}

type entry struct {
	id uint64
	fn Handler
}

// Registry maps message types to handler sets and dispatches inbound
// envelopes to them in registration order.
type Registry struct {
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string][]entry
	nextID   uint64

	// OnUnknown, when set, observes envelopes with no registered handler.
	// Unknown types are logged either way, never dropped without trace.
	OnUnknown func(e envelope.Envelope)
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		handlers: make(map[string][]entry),
	}
}

// On registers a handler for a message type. Multiple handlers per type are
// allowed and are invoked in registration order.
func (r *Registry) On(msgType string, fn Handler) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.handlers[msgType] = append(r.handlers[msgType], entry{id: r.nextID, fn: fn})
	return &Subscription{reg: r, msgType: msgType, id: r.nextID}
}

func (r *Registry) remove(msgType string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.handlers[msgType]
	for i, e := range entries {
		if e.id == id {
			r.handlers[msgType] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Dispatch invokes every handler registered for the envelope's type. A panic
// in one handler is recovered and logged and does not prevent the remaining
// handlers from running.
func (r *Registry) Dispatch(e envelope.Envelope) {
	r.mu.Lock()
	entries := r.handlers[e.Type]
	snapshot := make([]entry, len(entries))
	copy(snapshot, entries)
	r.mu.Unlock()

	if len(snapshot) == 0 {
		r.logger.Debug("no handler for message type", "type", e.Type)
		if r.OnUnknown != nil {
			r.OnUnknown(e)
		}
		return
	}

	for _, h := range snapshot {
		r.invoke(h.fn, e)
	}
}

func (r *Registry) invoke(fn Handler, e envelope.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("handler panicked", "type", e.Type, "panic", rec)
		}
	}()
	fn(e)
}

// HandlerCount reports how many handlers are registered for a type.
func (r *Registry) HandlerCount(msgType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[msgType])
}
