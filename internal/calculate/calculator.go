// Package calculate implements the State Calculator: the pure
// (intent, resolvedOverride, relatedStates) → desired function, driven by
// any of intent change, override add/remove/expiry, related device state
// change, or fail-safe reload.
package calculate

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/sentrygrid/twinctl/internal/eventbus"
	"github.com/sentrygrid/twinctl/internal/logger"
	"github.com/sentrygrid/twinctl/internal/model"
	"github.com/sentrygrid/twinctl/internal/override"
	"github.com/sentrygrid/twinctl/internal/safety"
	"github.com/sentrygrid/twinctl/internal/systemreg"
	"github.com/sentrygrid/twinctl/internal/twin"
)

// RelatedPattern associates a regex over componentId with the devices a
// rule wants related state for; Calculator resolves one snapshot set per
// recalculation using the union of every built-in pattern it knows about.
// Real deployments derive this list from the loaded rule registry.
type RelatedPattern struct {
	Pattern *regexp.Regexp
}

// Calculator implements the state calculator.
type Calculator struct {
	store    twin.Store
	resolver *override.Resolver
	systems  systemreg.Registry
	matcher  *systemreg.RelatedDeviceMatcher
	engine   *safety.Engine
	bus      *eventbus.Bus
	log      logger.ComponentLogger

	related []RelatedPattern

	// locks serializes recalculation per device: reading inputs, running
	// the safety engine, writing desired state, and scheduling the
	// reconciler form a single logical critical section per device.
	locks sync.Map // model.DeviceId -> *sync.Mutex
}

// New builds a Calculator. related lists the componentId patterns whose
// matches are resolved into SafetyContext.RelatedDeviceStates for every
// recalculation — in production this is derived from the loaded rule
// registry's interlock patterns.
func New(
	store twin.Store,
	resolver *override.Resolver,
	systems systemreg.Registry,
	engine *safety.Engine,
	bus *eventbus.Bus,
	related []RelatedPattern,
	log logger.ComponentLogger,
) *Calculator {
	if log == nil {
		log = logger.NoOpLogger{}
	}
	return &Calculator{
		store:    store,
		resolver: resolver,
		systems:  systems,
		matcher:  systemreg.NewRelatedDeviceMatcher(systems),
		engine:   engine,
		bus:      bus,
		related:  related,
		log:      log.WithComponent("calculate"),
	}
}

func (c *Calculator) lockFor(id model.DeviceId) *sync.Mutex {
	v, _ := c.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Recalculate runs the full state-calculation algorithm for device d
// under d's per-device lock.
func (c *Calculator) Recalculate(ctx context.Context, d model.DeviceId, deviceType model.DeviceType) error {
	if deviceType == model.DeviceTypeTemperature {
		// "no desired state is ever computed" for sensors.
		return nil
	}

	lock := c.lockFor(d)
	lock.Lock()
	defer lock.Unlock()

	intent, err := c.store.FindUserIntent(ctx, d)
	if err != nil {
		return err
	}
	currentDesired, err := c.store.FindDesiredState(ctx, d)
	if err != nil {
		return err
	}

	systemId, err := c.systems.SystemOf(ctx, d)
	if err != nil {
		return err
	}

	related, err := c.resolveRelated(ctx, d)
	if err != nil {
		return err
	}

	resolved, err := c.resolver.Resolve(ctx, d, systemId)
	if err != nil {
		return err
	}

	candidate, sourceCategory, hasCandidate := c.candidateValue(ctx, d, deviceType, systemId, intent, resolved)
	if !hasCandidate {
		// No intent, no override, no fail-safe default: nothing to do.
		return nil
	}

	sctx := model.SafetyContext{
		DeviceId:            d,
		DeviceType:          deviceType,
		ProposedValue:       candidate,
		RelatedDeviceStates: related,
	}
	outcome := c.engine.Evaluate(ctx, sctx)

	if outcome.Result.Outcome == model.OutcomeRefused {
		c.publishIntentOutcome(d, model.EventIntentRejected, intent, outcome.Result.Reason)
		return nil
	}

	finalValue := outcome.FinalValue
	if currentDesired != nil && currentDesired.Value.Equal(finalValue) {
		if len(outcome.ModifiedBy) > 0 {
			c.publishIntentOutcome(d, model.EventIntentModified, intent, outcome.Result.Reason)
		}
		return nil
	}

	desired := model.DesiredDeviceState{
		Id:             d,
		Type:           deviceType,
		Value:          finalValue,
		Reason:         outcome.Result.Reason,
		CalculatedAt:   time.Now(),
		SourceCategory: sourceCategory,
	}
	if err := c.store.SaveDesiredState(ctx, desired); err != nil {
		return err
	}

	if len(outcome.ModifiedBy) > 0 {
		c.publishIntentOutcome(d, model.EventIntentModified, intent, outcome.Result.Reason)
	} else {
		c.publishIntentOutcome(d, model.EventIntentAccepted, intent, "")
	}

	c.bus.Publish(model.Event{
		Type:     model.EventDesiredStateCalculated,
		DeviceId: d,
		At:       time.Now(),
		Payload:  model.DesiredStateCalculatedPayload{Desired: desired},
	})
	return nil
}

func (c *Calculator) publishIntentOutcome(d model.DeviceId, evtType model.EventType, intent *model.UserIntent, reason string) {
	payload := model.IntentOutcomePayload{Reason: reason}
	if intent != nil {
		payload.Intent = *intent
	}
	c.bus.Publish(model.Event{Type: evtType, DeviceId: d, At: time.Now(), Payload: payload})
}

// candidateValue implements step 3: override wins, else intent, else
// fail-safe default, else no candidate at all.
func (c *Calculator) candidateValue(
	ctx context.Context,
	d model.DeviceId,
	deviceType model.DeviceType,
	systemId string,
	intent *model.UserIntent,
	resolved *model.ResolvedOverride,
) (model.DeviceValue, model.OverrideCategory, bool) {
	if resolved != nil {
		return resolved.Value, resolved.Category, true
	}
	if intent != nil {
		return intent.Value, model.CategoryUserIntent, true
	}
	if systemId != "" {
		if v, ok, _ := c.systems.FailSafeDefault(ctx, systemId, deviceType); ok {
			return v, model.CategoryUserIntent, true
		}
	}
	return model.DeviceValue{}, "", false
}

func (c *Calculator) resolveRelated(ctx context.Context, d model.DeviceId) (map[model.DeviceId]model.DeviceTwinSnapshot, error) {
	out := make(map[model.DeviceId]model.DeviceTwinSnapshot)
	for _, rp := range c.related {
		ids, err := c.matcher.RelatedIDs(ctx, d, rp.Pattern)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, seen := out[id]; seen {
				continue
			}
			snap, err := c.store.FindTwinSnapshot(ctx, id)
			if err != nil {
				return nil, err
			}
			out[id] = snap
		}
	}
	return out, nil
}
