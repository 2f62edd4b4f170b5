package transport

import (
	"sync"

	"github.com/wrenfield/monome-core/internal/osc"
)

// Handler is a callback invoked for a dispatched OSC message.
type Handler func(msg osc.Message)

// Registry maps exact OSC address strings to ordered handler lists,
// plus a separate list of any-message handlers that see all traffic.
// Matching is exact-string only; there is no OSC pattern matching.
//
// Dispatch snapshots the handler list under a read lock and invokes the
// handlers outside it, so a handler may freely call On/Off on its own
// registry. Because each Receiver dispatches from a single goroutine,
// an Off-then-On swap performed inside a handler (prefix renegotiation)
// is atomic with respect to message delivery: no message can land
// between the two steps.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	any      []Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string][]Handler),
	}
}

// On registers a handler for an exact address. Handlers for the same
// address are invoked in registration order.
func (r *Registry) On(address string, h Handler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.handlers[address] = append(r.handlers[address], h)
	r.mu.Unlock()
}

// OnAny registers a handler that receives every dispatched message
// regardless of address.
func (r *Registry) OnAny(h Handler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.any = append(r.any, h)
	r.mu.Unlock()
}

// Off removes all handlers registered for the exact address.
func (r *Registry) Off(address string) {
	r.mu.Lock()
	delete(r.handlers, address)
	r.mu.Unlock()
}

// RemoveAll clears every registration, including any-message handlers.
func (r *Registry) RemoveAll() {
	r.mu.Lock()
	r.handlers = make(map[string][]Handler)
	r.any = nil
	r.mu.Unlock()
}

// Dispatch delivers a message to the exact-address handlers for its
// address and then to the any-message handlers.
func (r *Registry) Dispatch(msg osc.Message) {
	r.mu.RLock()
	exact := r.handlers[msg.Address]
	matched := make([]Handler, 0, len(exact)+len(r.any))
	matched = append(matched, exact...)
	matched = append(matched, r.any...)
	r.mu.RUnlock()

	for _, h := range matched {
		h(msg)
	}
}

// HandlerCount returns the number of handlers registered for an exact
// address, not counting any-message handlers.
func (r *Registry) HandlerCount(address string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[address])
}
