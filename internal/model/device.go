// Package model holds the data types shared by every control-plane
// component: device identity, the tri-state twin, overrides, functional
// systems, and the safety-rule evaluation types.
package model

import (
	"fmt"
	"time"
)

// DeviceId addresses a single actuator or sensor attached to a controller.
type DeviceId struct {
	ControllerId string
	ComponentId  string
}

// String renders the canonical "controller:component" form used as a map
// key throughout the stores and the wire protocol.
func (id DeviceId) String() string {
	return id.ControllerId + ":" + id.ComponentId
}

// ParseDeviceId splits a "controller:component" string back into a DeviceId.
func ParseDeviceId(s string) (DeviceId, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			if i == 0 || i == len(s)-1 {
				break
			}
			return DeviceId{ControllerId: s[:i], ComponentId: s[i+1:]}, nil
		}
	}
	return DeviceId{}, fmt.Errorf("model: malformed device id %q", s)
}

// DeviceType is the variant tag controlling which DeviceValue shape is legal.
type DeviceType string

const (
	DeviceTypeRelay       DeviceType = "RELAY"
	DeviceTypeFan         DeviceType = "FAN"
	DeviceTypeTemperature DeviceType = "TEMPERATURE_SENSOR"
)

// IsOutput reports whether a device of this type accepts desired state and
// therefore belongs in the active-output index.
func (t DeviceType) IsOutput() bool {
	return t == DeviceTypeRelay || t == DeviceTypeFan
}

// DeviceValue is a tagged union over the two actuator domains. Exactly one
// of the two fields is meaningful, selected by Type; all constructors
// below validate type/value agreement so an invalid DeviceValue cannot be
// constructed.
type DeviceValue struct {
	Type DeviceType
	relay bool
	fan   int
}

// NewRelayValue constructs a RELAY DeviceValue.
func NewRelayValue(on bool) DeviceValue {
	return DeviceValue{Type: DeviceTypeRelay, relay: on}
}

// NewFanValue constructs a FAN DeviceValue, validating speed is in [0,4].
func NewFanValue(speed int) (DeviceValue, error) {
	if speed < 0 || speed > 4 {
		return DeviceValue{}, fmt.Errorf("model: fan speed %d outside domain [0,4]", speed)
	}
	return DeviceValue{Type: DeviceTypeFan, fan: speed}, nil
}

// Relay returns the boolean payload and true if this value is a RELAY value.
func (v DeviceValue) Relay() (bool, bool) {
	return v.relay, v.Type == DeviceTypeRelay
}

// Fan returns the speed payload and true if this value is a FAN value.
func (v DeviceValue) Fan() (int, bool) {
	return v.fan, v.Type == DeviceTypeFan
}

// Equal compares two DeviceValues by type and payload.
func (v DeviceValue) Equal(other DeviceValue) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case DeviceTypeRelay:
		return v.relay == other.relay
	case DeviceTypeFan:
		return v.fan == other.fan
	default:
		return false
	}
}

// AgreesWithType reports whether the value's tag matches a device type,
// satisfying the data-model invariant that desired.value always agrees
// with the owning device's type.
func (v DeviceValue) AgreesWithType(t DeviceType) bool {
	switch t {
	case DeviceTypeRelay:
		return v.Type == DeviceTypeRelay
	case DeviceTypeFan:
		return v.Type == DeviceTypeFan
	default:
		return false
	}
}

func (v DeviceValue) String() string {
	switch v.Type {
	case DeviceTypeRelay:
		return fmt.Sprintf("Relay(%v)", v.relay)
	case DeviceTypeFan:
		return fmt.Sprintf("Fan(%d)", v.fan)
	default:
		return "DeviceValue(invalid)"
	}
}

// UserIntent is the user's requested value for a device, accepted verbatim
// from the REST boundary and never auto-deleted.
type UserIntent struct {
	Id          DeviceId
	Type        DeviceType
	Value       DeviceValue
	RequestedAt time.Time
	RequestedBy string
}

// DesiredDeviceState is the post-safety, post-override target value; it is
// recomputed wholesale on any relevant input change, never accumulated.
type DesiredDeviceState struct {
	Id             DeviceId
	Type           DeviceType
	Value          DeviceValue
	Reason         string
	CalculatedAt   time.Time
	SourceCategory OverrideCategory
}

// ReportedDeviceState is the last value the device itself reported.
type ReportedDeviceState struct {
	Id         DeviceId
	Type       DeviceType
	Value      DeviceValue
	ReceivedAt time.Time
	IsKnown    bool
}

// DeviceTwinSnapshot is an atomic read of the three twin facets.
type DeviceTwinSnapshot struct {
	Id       DeviceId
	Intent   *UserIntent
	Desired  *DesiredDeviceState
	Reported *ReportedDeviceState
}

// IsConverged holds iff both desired and reported are present, reported is
// known (IsKnown), and the two are equal by value and type.
func (s DeviceTwinSnapshot) IsConverged() bool {
	if s.Desired == nil || s.Reported == nil || !s.Reported.IsKnown {
		return false
	}
	return s.Desired.Value.Equal(s.Reported.Value)
}
