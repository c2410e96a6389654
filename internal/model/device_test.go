package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceIdRoundTrip(t *testing.T) {
	id := DeviceId{ControllerId: "esp32-01", ComponentId: "pump-relay"}
	parsed, err := ParseDeviceId(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseDeviceIdRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "no-colon", ":missing-controller", "missing-component:"} {
		_, err := ParseDeviceId(s)
		assert.Error(t, err, "expected parse error for %q", s)
	}
}

func TestNewFanValueValidatesDomain(t *testing.T) {
	for _, speed := range []int{0, 1, 2, 3, 4} {
		_, err := NewFanValue(speed)
		assert.NoError(t, err, "speed %d should be valid", speed)
	}
	for _, speed := range []int{-1, 5, 100} {
		_, err := NewFanValue(speed)
		assert.Error(t, err, "speed %d should be rejected", speed)
	}
}

func TestDeviceValueAgreesWithType(t *testing.T) {
	relay := NewRelayValue(true)
	fan, err := NewFanValue(2)
	require.NoError(t, err)

	assert.True(t, relay.AgreesWithType(DeviceTypeRelay))
	assert.False(t, relay.AgreesWithType(DeviceTypeFan))
	assert.True(t, fan.AgreesWithType(DeviceTypeFan))
	assert.False(t, fan.AgreesWithType(DeviceTypeRelay))
}

func TestDeviceValueEqual(t *testing.T) {
	a := NewRelayValue(true)
	b := NewRelayValue(true)
	c := NewRelayValue(false)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))

	f1, _ := NewFanValue(2)
	f2, _ := NewFanValue(2)
	f3, _ := NewFanValue(3)
	assert.True(t, f1.Equal(f2))
	assert.False(t, f1.Equal(f3))
	assert.False(t, a.Equal(f1))
}

func TestTwinSnapshotIsConverged(t *testing.T) {
	id := DeviceId{ControllerId: "c1", ComponentId: "relay1"}
	desired := DesiredDeviceState{Id: id, Type: DeviceTypeRelay, Value: NewRelayValue(true)}

	t.Run("converged when equal and known", func(t *testing.T) {
		snap := DeviceTwinSnapshot{
			Id:       id,
			Desired:  &desired,
			Reported: &ReportedDeviceState{Id: id, Type: DeviceTypeRelay, Value: NewRelayValue(true), IsKnown: true},
		}
		assert.True(t, snap.IsConverged())
	})

	t.Run("not converged when values differ", func(t *testing.T) {
		snap := DeviceTwinSnapshot{
			Id:       id,
			Desired:  &desired,
			Reported: &ReportedDeviceState{Id: id, Type: DeviceTypeRelay, Value: NewRelayValue(false), IsKnown: true},
		}
		assert.False(t, snap.IsConverged())
	})

	t.Run("not converged when reported unknown", func(t *testing.T) {
		snap := DeviceTwinSnapshot{
			Id:       id,
			Desired:  &desired,
			Reported: &ReportedDeviceState{Id: id, Type: DeviceTypeRelay, IsKnown: false},
		}
		assert.False(t, snap.IsConverged())
	})

	t.Run("not converged when reported missing", func(t *testing.T) {
		snap := DeviceTwinSnapshot{Id: id, Desired: &desired}
		assert.False(t, snap.IsConverged())
	})
}
