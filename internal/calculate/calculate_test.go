package calculate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentrygrid/twinctl/internal/eventbus"
	"github.com/sentrygrid/twinctl/internal/model"
	"github.com/sentrygrid/twinctl/internal/override"
	"github.com/sentrygrid/twinctl/internal/safety"
	"github.com/sentrygrid/twinctl/internal/systemreg"
	"github.com/sentrygrid/twinctl/internal/twin"
)

func newCalculator(t *testing.T) (*Calculator, *twin.MemoryStore, *eventbus.Bus) {
	t.Helper()
	store := twin.NewMemoryStore(nil)
	bus := eventbus.New()
	resolver := override.NewResolver(override.NewMemoryStore(nil))
	systems := systemreg.NewMemoryRegistry()
	engine := safety.NewEngine(nil, 50*time.Millisecond, nil)
	return New(store, resolver, systems, engine, bus, nil, nil), store, bus
}

func TestRecalculateAppliesIntentWhenNoOverride(t *testing.T) {
	c, store, bus := newCalculator(t)
	ctx := context.Background()
	d := model.DeviceId{ControllerId: "c1", ComponentId: "relay1"}

	var calculated []model.Event
	bus.Subscribe(model.EventDesiredStateCalculated, func(e model.Event) { calculated = append(calculated, e) })

	require.NoError(t, store.SaveUserIntent(ctx, model.UserIntent{Id: d, Type: model.DeviceTypeRelay, Value: model.NewRelayValue(true), RequestedAt: time.Now()}))
	require.NoError(t, c.Recalculate(ctx, d, model.DeviceTypeRelay))

	desired, err := store.FindDesiredState(ctx, d)
	require.NoError(t, err)
	require.NotNil(t, desired)
	assert.True(t, desired.Value.Equal(model.NewRelayValue(true)))
	require.Len(t, calculated, 1)
}

func TestRecalculateSkipsWhenNoCandidate(t *testing.T) {
	c, store, _ := newCalculator(t)
	ctx := context.Background()
	d := model.DeviceId{ControllerId: "c1", ComponentId: "relay1"}

	require.NoError(t, c.Recalculate(ctx, d, model.DeviceTypeRelay))

	desired, err := store.FindDesiredState(ctx, d)
	require.NoError(t, err)
	assert.Nil(t, desired)
}

func TestRecalculateIsNoOpForTemperatureSensors(t *testing.T) {
	c, store, _ := newCalculator(t)
	ctx := context.Background()
	d := model.DeviceId{ControllerId: "c1", ComponentId: "temp1"}

	require.NoError(t, c.Recalculate(ctx, d, model.DeviceTypeTemperature))

	desired, err := store.FindDesiredState(ctx, d)
	require.NoError(t, err)
	assert.Nil(t, desired)
}

func TestRecalculateShortCircuitsWhenValueUnchanged(t *testing.T) {
	c, store, bus := newCalculator(t)
	ctx := context.Background()
	d := model.DeviceId{ControllerId: "c1", ComponentId: "relay1"}

	count := 0
	bus.Subscribe(model.EventDesiredStateCalculated, func(model.Event) { count++ })

	require.NoError(t, store.SaveUserIntent(ctx, model.UserIntent{Id: d, Type: model.DeviceTypeRelay, Value: model.NewRelayValue(true)}))
	require.NoError(t, c.Recalculate(ctx, d, model.DeviceTypeRelay))
	require.NoError(t, c.Recalculate(ctx, d, model.DeviceTypeRelay))

	assert.Equal(t, 1, count)
}

func TestRecalculateRejectsWhenSafetyRefuses(t *testing.T) {
	store := twin.NewMemoryStore(nil)
	bus := eventbus.New()
	resolver := override.NewResolver(override.NewMemoryStore(nil))
	systems := systemreg.NewMemoryRegistry()
	refuser := refusingRule{}
	engine := safety.NewEngine([]safety.Rule{refuser}, 50*time.Millisecond, nil)
	c := New(store, resolver, systems, engine, bus, nil, nil)

	ctx := context.Background()
	d := model.DeviceId{ControllerId: "c1", ComponentId: "relay1"}

	var rejected []model.Event
	bus.Subscribe(model.EventIntentRejected, func(e model.Event) { rejected = append(rejected, e) })

	require.NoError(t, store.SaveUserIntent(ctx, model.UserIntent{Id: d, Type: model.DeviceTypeRelay, Value: model.NewRelayValue(true)}))
	require.NoError(t, c.Recalculate(ctx, d, model.DeviceTypeRelay))

	desired, err := store.FindDesiredState(ctx, d)
	require.NoError(t, err)
	assert.Nil(t, desired)
	require.Len(t, rejected, 1)
}

func TestRecalculateUsesFailSafeDefaultWhenNoIntentOrOverride(t *testing.T) {
	store := twin.NewMemoryStore(nil)
	bus := eventbus.New()
	resolver := override.NewResolver(override.NewMemoryStore(nil))
	systems := systemreg.NewMemoryRegistry()
	engine := safety.NewEngine(nil, 50*time.Millisecond, nil)
	c := New(store, resolver, systems, engine, bus, nil, nil)

	ctx := context.Background()
	d := model.DeviceId{ControllerId: "c1", ComponentId: "relay1"}

	require.NoError(t, systems.Put(ctx, model.FunctionalSystem{
		Id:        "sys1",
		DeviceIds: []string{d.String()},
		FailSafeDefaults: map[model.DeviceType]model.DeviceValue{
			model.DeviceTypeRelay: model.NewRelayValue(false),
		},
	}))

	require.NoError(t, c.Recalculate(ctx, d, model.DeviceTypeRelay))

	desired, err := store.FindDesiredState(ctx, d)
	require.NoError(t, err)
	require.NotNil(t, desired)
	assert.True(t, desired.Value.Equal(model.NewRelayValue(false)))
}

type refusingRule struct{}

func (refusingRule) ID() string                          { return "refuse-all" }
func (refusingRule) Name() string                        { return "refuse-all" }
func (refusingRule) Category() model.RuleCategory         { return model.RuleSystemSafety }
func (refusingRule) Priority() int                        { return 100 }
func (refusingRule) AppliesTo(model.SafetyContext) bool   { return true }
func (refusingRule) Evaluate(model.SafetyContext) model.ValidationResult {
	return model.Refused("refuse-all", "not allowed", "test refusal")
}
