package webhook

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// HandlerFunc processes the envelope of one event. Returning an error wrapped
// with Terminal stops retries.
type HandlerFunc func(ctx context.Context, env Envelope) error

// Dispatcher routes events to handlers by type.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Handle registers fn for eventType, replacing any earlier handler.
func (d *Dispatcher) Handle(eventType string, fn HandlerFunc) {
	if eventType == "" || fn == nil {
		panic("webhook: Handle requires an event type and a handler")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = fn
}

// Types lists the registered event types in order.
func (d *Dispatcher) Types() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	types := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Dispatch calls the handler registered for env.Type.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) error {
	d.mu.RLock()
	fn, ok := d.handlers[env.Type]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, env.Type)
	}
	return fn(ctx, env)
}
