package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentrygrid/twinctl/internal/eventbus"
	"github.com/sentrygrid/twinctl/internal/model"
	"github.com/sentrygrid/twinctl/internal/twin"
)

func TestSweepSkipsWhenInfrastructureUnhealthy(t *testing.T) {
	store := twin.NewMemoryStore(nil)
	bus := eventbus.New()
	gate := newHealthyGate()
	gate.RecordFailure("kv_store", nil)
	gate.RecordFailure("kv_store", nil)
	gate.RecordFailure("kv_store", nil)
	require.False(t, gate.IsHealthy())

	dr := NewDrift(store, gate, bus, time.Minute, nil)
	var republished []model.Event
	bus.Subscribe(model.EventDesiredStateCalculated, func(e model.Event) { republished = append(republished, e) })

	dr.sweep(context.Background())
	assert.Empty(t, republished)
}

func TestSweepRepublishesNonConvergedIndexedDevices(t *testing.T) {
	store := twin.NewMemoryStore(nil)
	bus := eventbus.New()
	dr := NewDrift(store, newHealthyGate(), bus, time.Minute, nil)

	ctx := context.Background()
	d := model.DeviceId{ControllerId: "c1", ComponentId: "relay1"}
	require.NoError(t, store.SaveDesiredState(ctx, model.DesiredDeviceState{Id: d, Type: model.DeviceTypeRelay, Value: model.NewRelayValue(true)}))

	var republished []model.Event
	bus.Subscribe(model.EventDesiredStateCalculated, func(e model.Event) { republished = append(republished, e) })

	dr.sweep(ctx)

	require.Len(t, republished, 1)
	assert.Equal(t, d, republished[0].DeviceId)
}

func TestSweepSkipsConvergedDevices(t *testing.T) {
	store := twin.NewMemoryStore(nil)
	bus := eventbus.New()
	dr := NewDrift(store, newHealthyGate(), bus, time.Minute, nil)

	ctx := context.Background()
	d := model.DeviceId{ControllerId: "c1", ComponentId: "relay1"}
	require.NoError(t, store.SaveDesiredState(ctx, model.DesiredDeviceState{Id: d, Type: model.DeviceTypeRelay, Value: model.NewRelayValue(true)}))
	require.NoError(t, store.SaveReportedState(ctx, model.ReportedDeviceState{Id: d, Type: model.DeviceTypeRelay, Value: model.NewRelayValue(true), IsKnown: true}))

	var republished []model.Event
	bus.Subscribe(model.EventDesiredStateCalculated, func(e model.Event) { republished = append(republished, e) })

	dr.sweep(ctx)
	assert.Empty(t, republished)
}
