// Package eventbus is the in-process publish-subscribe bus carrying
// DesiredStateCalculated, IntentAccepted/Rejected/Modified,
// ReportedStateChanged, OverrideChanged, and InfrastructureFailure events.
// Per-device serialization is the responsibility of the State Calculator,
// not the bus — the bus only fans events out to subscribers.
package eventbus

import (
	"sync"

	"github.com/sentrygrid/twinctl/internal/model"
)

// Handler receives one event; handlers run synchronously on the
// publishing goroutine's call to Publish, in subscription order, and
// must not block for long — slow subscribers should hand off to their
// own worker.
type Handler func(model.Event)

// Bus is a simple type-keyed fan-out registry.
type Bus struct {
	mu       sync.RWMutex
	handlers map[model.EventType][]Handler
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{handlers: make(map[model.EventType][]Handler)}
}

// Subscribe registers fn to run for every event of type t.
func (b *Bus) Subscribe(t model.EventType, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], fn)
}

// Publish delivers evt to every handler subscribed to evt.Type.
func (b *Bus) Publish(evt model.Event) {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[evt.Type]...)
	b.mu.RUnlock()
	for _, h := range hs {
		h(evt)
	}
}
