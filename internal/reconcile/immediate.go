// Package reconcile implements the immediate reconciler and drift
// reconciler: the two paths that turn a computed desired state into an
// emitted DeviceCommand. The immediate reconciler's debounce-and-cancel
// semantics use a per-device sync.Map of *time.Timer: each recalculation
// cancels and reschedules its device's timer rather than firing
// immediately, coalescing a burst of updates into one dispatch.
package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sentrygrid/twinctl/internal/eventbus"
	"github.com/sentrygrid/twinctl/internal/health"
	"github.com/sentrygrid/twinctl/internal/logger"
	"github.com/sentrygrid/twinctl/internal/model"
	"github.com/sentrygrid/twinctl/internal/twin"
	"github.com/sentrygrid/twinctl/internal/wire"
)

// Counters tallies the immediate reconciler's observable outcomes.
type Counters struct {
	Debounced        int64
	SkippedUnhealthy int64
	SkippedConverged int64
	Sent             int64
}

func (c *Counters) snapshot() Counters {
	return Counters{
		Debounced:        atomic.LoadInt64(&c.Debounced),
		SkippedUnhealthy: atomic.LoadInt64(&c.SkippedUnhealthy),
		SkippedConverged: atomic.LoadInt64(&c.SkippedConverged),
		Sent:             atomic.LoadInt64(&c.Sent),
	}
}

// Immediate is the per-device debounced dispatcher: every
// DesiredStateCalculated event reschedules that device's pending dispatch
// window rather than firing immediately, so a burst of rapid changes to
// one device collapses into a single emitted command.
type Immediate struct {
	store  twin.Store
	gate   *health.Gate
	bus    *eventbus.Bus
	log    logger.ComponentLogger
	window time.Duration

	pending sync.Map // model.DeviceId -> *time.Timer
	locks   sync.Map // model.DeviceId -> *sync.Mutex

	counters Counters
}

// NewImmediate builds an Immediate reconciler with debounce window w.
func NewImmediate(store twin.Store, gate *health.Gate, bus *eventbus.Bus, w time.Duration, log logger.ComponentLogger) *Immediate {
	if log == nil {
		log = logger.NoOpLogger{}
	}
	return &Immediate{
		store:  store,
		gate:   gate,
		bus:    bus,
		window: w,
		log:    log.WithComponent("reconcile.immediate"),
	}
}

// Start subscribes to DesiredStateCalculated and begins debouncing.
func (ir *Immediate) Start(ctx context.Context) {
	ir.bus.Subscribe(model.EventDesiredStateCalculated, func(evt model.Event) {
		ir.schedule(ctx, evt.DeviceId)
	})
}

// Counters returns a point-in-time snapshot of IR's outcome tallies.
func (ir *Immediate) Counters() Counters {
	return ir.counters.snapshot()
}

func (ir *Immediate) lockFor(id model.DeviceId) *sync.Mutex {
	v, _ := ir.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// schedule cancels any pending timer for id and starts a new one at
// now+window, per the cancel-and-reschedule debounce protocol. The
// per-device lock makes cancellation atomic with respect to firing: a
// schedule() racing the previous timer's own fire callback either
// observes the callback hasn't started yet (Stop succeeds, the old
// timer is fully replaced) or waits for the callback to finish under
// the same lock before installing its own timer, so a device never
// gets two dispatches for events that land within one debounce window.
// CompareAndDelete guards against the callback removing a map entry a
// concurrent schedule() has since overwritten with a newer timer; a
// callback whose entry was overwritten returns without dispatching.
func (ir *Immediate) schedule(ctx context.Context, id model.DeviceId) {
	lock := ir.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if v, loaded := ir.pending.Load(id); loaded {
		v.(*time.Timer).Stop()
		atomic.AddInt64(&ir.counters.Debounced, 1)
	}

	var timer *time.Timer
	timer = time.AfterFunc(ir.window, func() {
		lock.Lock()
		defer lock.Unlock()
		if !ir.pending.CompareAndDelete(id, timer) {
			// A newer schedule() replaced this timer while this callback
			// waited on the lock; the newer timer dispatches instead.
			return
		}
		ir.fire(ctx, id)
	})
	ir.pending.Store(id, timer)
}

// fire runs the dispatch-time checks and emits a DeviceCommand if the
// device is still not converged and infrastructure is healthy.
func (ir *Immediate) fire(ctx context.Context, id model.DeviceId) {
	if !ir.gate.IsHealthy() {
		atomic.AddInt64(&ir.counters.SkippedUnhealthy, 1)
		ir.log.Debug("skipping dispatch: infrastructure unhealthy", map[string]interface{}{"device": id.String()})
		return
	}

	snap, err := ir.store.FindTwinSnapshot(ctx, id)
	if err != nil {
		ir.log.Warn("dispatch: reading twin snapshot failed", map[string]interface{}{"device": id.String(), "error": err.Error()})
		return
	}
	if snap.Desired == nil {
		return
	}
	if snap.IsConverged() {
		atomic.AddInt64(&ir.counters.SkippedConverged, 1)
		return
	}

	raw, err := wire.ToRawValue(snap.Desired.Value)
	if err != nil {
		ir.log.Error("dispatch: encoding desired value failed", map[string]interface{}{"device": id.String(), "error": err.Error()})
		return
	}
	cmd := model.DeviceCommand{Id: id, Type: snap.Desired.Type, RawValue: raw}

	atomic.AddInt64(&ir.counters.Sent, 1)
	ir.bus.Publish(model.Event{
		Type:     model.EventDeviceCommand,
		DeviceId: id,
		At:       time.Now(),
		Payload:  model.DeviceCommandPayload{Command: cmd},
	})
}
