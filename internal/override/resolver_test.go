package override

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentrygrid/twinctl/internal/model"
)

func newResolverAt(t *testing.T, now time.Time, overrides ...model.Override) *Resolver {
	t.Helper()
	store := NewMemoryStore(nil)
	for _, ov := range overrides {
		require.NoError(t, store.Put(context.Background(), ov))
	}
	return NewResolver(store).WithClock(func() time.Time { return now })
}

func TestResolverReturnsNilWhenNoOverrides(t *testing.T) {
	r := newResolverAt(t, time.Now())
	resolved, err := r.Resolve(context.Background(), model.DeviceId{ControllerId: "c1", ComponentId: "relay1"}, "")
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestResolverPicksHighestPrecedenceCategory(t *testing.T) {
	deviceId := model.DeviceId{ControllerId: "c1", ComponentId: "relay1"}
	now := time.Now()

	r := newResolverAt(t, now,
		model.Override{TargetId: deviceId.String(), Scope: model.ScopeDevice, Category: model.CategoryManual, Value: model.NewRelayValue(false)},
		model.Override{TargetId: deviceId.String(), Scope: model.ScopeDevice, Category: model.CategoryEmergency, Value: model.NewRelayValue(true)},
	)

	resolved, err := r.Resolve(context.Background(), deviceId, "")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, model.CategoryEmergency, resolved.Category)
	assert.True(t, resolved.Value.Equal(model.NewRelayValue(true)))
}

func TestResolverDeviceScopeBeatsSystemScopeAtSameRank(t *testing.T) {
	deviceId := model.DeviceId{ControllerId: "c1", ComponentId: "relay1"}
	systemId := "hvac-zone-1"
	now := time.Now()

	r := newResolverAt(t, now,
		model.Override{TargetId: systemId, Scope: model.ScopeSystem, Category: model.CategoryScheduled, Value: model.NewRelayValue(false)},
		model.Override{TargetId: deviceId.String(), Scope: model.ScopeDevice, Category: model.CategoryScheduled, Value: model.NewRelayValue(true)},
	)

	resolved, err := r.Resolve(context.Background(), deviceId, systemId)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.False(t, resolved.IsFromSystem)
	assert.True(t, resolved.Value.Equal(model.NewRelayValue(true)))
}

func TestResolverIgnoresExpiredOverrides(t *testing.T) {
	deviceId := model.DeviceId{ControllerId: "c1", ComponentId: "relay1"}
	now := time.Now()
	expired := now.Add(-time.Minute)

	r := newResolverAt(t, now,
		model.Override{TargetId: deviceId.String(), Scope: model.ScopeDevice, Category: model.CategoryEmergency, Value: model.NewRelayValue(true), ExpiresAt: &expired},
	)

	resolved, err := r.Resolve(context.Background(), deviceId, "")
	require.NoError(t, err)
	assert.Nil(t, resolved)
}
