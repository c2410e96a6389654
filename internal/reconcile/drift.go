package reconcile

import (
	"context"
	"time"

	"github.com/sentrygrid/twinctl/internal/eventbus"
	"github.com/sentrygrid/twinctl/internal/health"
	"github.com/sentrygrid/twinctl/internal/logger"
	"github.com/sentrygrid/twinctl/internal/model"
	"github.com/sentrygrid/twinctl/internal/twin"
)

// Drift is the periodic sweep over the active-output index, catching
// non-converged devices whose last DesiredStateCalculated event was
// missed, dropped, or never fired an actuator response — the backstop
// behind the immediate reconciler's event-driven path, run on a
// ticker-driven heartbeat goroutine.
type Drift struct {
	store  twin.Store
	gate   *health.Gate
	bus    *eventbus.Bus
	log    logger.ComponentLogger
	period time.Duration

	sweeps int64
}

// NewDrift builds a Drift reconciler sweeping every period.
func NewDrift(store twin.Store, gate *health.Gate, bus *eventbus.Bus, period time.Duration, log logger.ComponentLogger) *Drift {
	if log == nil {
		log = logger.NoOpLogger{}
	}
	return &Drift{store: store, gate: gate, bus: bus, period: period, log: log.WithComponent("reconcile.drift")}
}

// Start runs the sweep loop until ctx is cancelled.
func (dr *Drift) Start(ctx context.Context) {
	ticker := time.NewTicker(dr.period)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				dr.sweep(ctx)
			}
		}
	}()
}

func (dr *Drift) sweep(ctx context.Context) {
	if !dr.gate.IsHealthy() {
		dr.log.Debug("skipping drift sweep: infrastructure unhealthy", nil)
		return
	}

	ids, err := dr.store.GetAllIndexedDeviceKeys(ctx)
	if err != nil {
		dr.log.Warn("drift sweep: reading active-output index failed", map[string]interface{}{"error": err.Error()})
		return
	}

	dr.sweeps++
	for _, id := range ids {
		snap, err := dr.store.FindTwinSnapshot(ctx, id)
		if err != nil {
			dr.log.Warn("drift sweep: reading twin snapshot failed", map[string]interface{}{"device": id.String(), "error": err.Error()})
			continue
		}
		if snap.Desired == nil || snap.IsConverged() {
			continue
		}
		// Re-publish the same signal IR listens for: a non-converged
		// indexed device gets another chance to dispatch, going through
		// IR's own health/convergence checks again rather than emitting
		// a command directly from here.
		dr.bus.Publish(model.Event{
			Type:     model.EventDesiredStateCalculated,
			DeviceId: id,
			At:       time.Now(),
			Payload:  model.DesiredStateCalculatedPayload{Desired: *snap.Desired},
		})
	}
}
