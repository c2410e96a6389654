package safety

import (
	"regexp"

	"github.com/sentrygrid/twinctl/internal/model"
)

// FirePumpInterlockRule enforces an interlock contract: when the device is a
// pump relay and the proposed value is Relay(false), it searches
// ctx.RelatedDeviceStates for a device whose componentId matches the
// fire pattern (fire-related equipment); if that device's desired
// value is Relay(true), the rule modifies the proposal back to
// Relay(true).
type FirePumpInterlockRule struct {
	id               string
	priority         int
	pumpComponentID  *regexp.Regexp
	fireComponentID  *regexp.Regexp
}

// NewFirePumpInterlockRule builds the interlock rule; pumpPattern and
// firePattern match against DeviceId.ComponentId.
func NewFirePumpInterlockRule(id string, priority int, pumpPattern, firePattern string) (*FirePumpInterlockRule, error) {
	pumpRe, err := regexp.Compile(pumpPattern)
	if err != nil {
		return nil, err
	}
	fireRe, err := regexp.Compile(firePattern)
	if err != nil {
		return nil, err
	}
	return &FirePumpInterlockRule{id: id, priority: priority, pumpComponentID: pumpRe, fireComponentID: fireRe}, nil
}

func (r *FirePumpInterlockRule) ID() string                   { return r.id }
func (r *FirePumpInterlockRule) Name() string                 { return "fire-pump-interlock" }
func (r *FirePumpInterlockRule) Category() model.RuleCategory { return model.RuleSystemSafety }
func (r *FirePumpInterlockRule) Priority() int                { return r.priority }

// RelatedComponentPattern returns the fire-equipment pattern Evaluate
// searches ctx.RelatedDeviceStates for.
func (r *FirePumpInterlockRule) RelatedComponentPattern() *regexp.Regexp { return r.fireComponentID }

func (r *FirePumpInterlockRule) AppliesTo(ctx model.SafetyContext) bool {
	if ctx.DeviceType != model.DeviceTypeRelay {
		return false
	}
	if !r.pumpComponentID.MatchString(ctx.DeviceId.ComponentId) {
		return false
	}
	on, isRelay := ctx.ProposedValue.Relay()
	return isRelay && !on
}

func (r *FirePumpInterlockRule) Evaluate(ctx model.SafetyContext) model.ValidationResult {
	for id, snap := range ctx.RelatedDeviceStates {
		if !r.fireComponentID.MatchString(id.ComponentId) {
			continue
		}
		if snap.Desired == nil {
			continue
		}
		if on, ok := snap.Desired.Value.Relay(); ok && on {
			return model.ModifiedResult(
				r.id,
				model.NewRelayValue(false),
				model.NewRelayValue(true),
				"pump must remain ON while fire active",
			)
		}
	}
	return model.Accepted(r.id)
}

// HardcodedValueRangeRule enforces a fixed, non-configurable domain check
// for a device type — it exists even if the configuration document fails
// to load, satisfying "evaluated even if configuration-driven rules fail
// to load (layered resilience)".
type HardcodedValueRangeRule struct {
	id       string
	priority int
}

// NewHardcodedValueRangeRule builds the always-present FAN domain guard.
func NewHardcodedValueRangeRule(id string, priority int) *HardcodedValueRangeRule {
	return &HardcodedValueRangeRule{id: id, priority: priority}
}

func (r *HardcodedValueRangeRule) ID() string                  { return r.id }
func (r *HardcodedValueRangeRule) Name() string                { return "fan-domain-guard" }
func (r *HardcodedValueRangeRule) Category() model.RuleCategory { return model.RuleHardcodedSafety }
func (r *HardcodedValueRangeRule) Priority() int                { return r.priority }

func (r *HardcodedValueRangeRule) AppliesTo(ctx model.SafetyContext) bool {
	return ctx.DeviceType == model.DeviceTypeFan
}

func (r *HardcodedValueRangeRule) Evaluate(ctx model.SafetyContext) model.ValidationResult {
	speed, ok := ctx.ProposedValue.Fan()
	if !ok || speed < 0 || speed > 4 {
		return model.Refused(r.id, "fan speed outside domain", "expected 0..4")
	}
	return model.Accepted(r.id)
}
