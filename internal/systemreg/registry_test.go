package systemreg

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentrygrid/twinctl/internal/model"
)

func TestPutRejectsDeviceAlreadyMemberOfAnotherSystem(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, model.FunctionalSystem{Id: "sys1", DeviceIds: []string{"c1:relay1"}}))

	err := r.Put(ctx, model.FunctionalSystem{Id: "sys2", DeviceIds: []string{"c1:relay1"}})
	assert.Error(t, err)
}

func TestPutEnforcesOptimisticConcurrency(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, model.FunctionalSystem{Id: "sys1", DeviceIds: []string{"c1:relay1"}}))

	err := r.Put(ctx, model.FunctionalSystem{Id: "sys1", DeviceIds: []string{"c1:relay1"}, Version: 0})
	assert.Error(t, err)

	got, err := r.Get(ctx, "sys1")
	require.NoError(t, err)
	err = r.Put(ctx, model.FunctionalSystem{Id: "sys1", DeviceIds: []string{"c1:relay1"}, Version: got.Version})
	assert.NoError(t, err)
}

func TestSystemOfReturnsEmptyForUnregisteredDevice(t *testing.T) {
	r := NewMemoryRegistry()
	id, err := r.SystemOf(context.Background(), model.DeviceId{ControllerId: "c1", ComponentId: "relay1"})
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestFailSafeDefaultReturnsConfiguredValue(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()
	require.NoError(t, r.Put(ctx, model.FunctionalSystem{
		Id:        "sys1",
		DeviceIds: []string{"c1:relay1"},
		FailSafeDefaults: map[model.DeviceType]model.DeviceValue{
			model.DeviceTypeRelay: model.NewRelayValue(false),
		},
	}))

	v, ok, err := r.FailSafeDefault(ctx, "sys1", model.DeviceTypeRelay)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, v.Equal(model.NewRelayValue(false)))

	_, ok, err = r.FailSafeDefault(ctx, "sys1", model.DeviceTypeFan)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRelatedDeviceMatcherFindsPatternMatchesWithinSameSystem(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()
	require.NoError(t, r.Put(ctx, model.FunctionalSystem{
		Id:        "sys1",
		DeviceIds: []string{"c1:pump-main", "c1:fire-detector-1", "c1:unrelated"},
	}))

	matcher := NewRelatedDeviceMatcher(r)
	pump := model.DeviceId{ControllerId: "c1", ComponentId: "pump-main"}
	ids, err := matcher.RelatedIDs(ctx, pump, regexp.MustCompile("^fire-.*$"))
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, "fire-detector-1", ids[0].ComponentId)
}

func TestRelatedDeviceMatcherReturnsNilForDeviceOutsideAnySystem(t *testing.T) {
	r := NewMemoryRegistry()
	matcher := NewRelatedDeviceMatcher(r)
	ids, err := matcher.RelatedIDs(context.Background(), model.DeviceId{ControllerId: "c1", ComponentId: "lonely"}, regexp.MustCompile(".*"))
	require.NoError(t, err)
	assert.Nil(t, ids)
}
