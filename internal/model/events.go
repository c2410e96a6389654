package model

import "time"

// EventType names the in-process events carried on the event bus, including
// the subset surfaced to the real-time channel.
type EventType string

const (
	EventDesiredStateCalculated EventType = "DesiredStateCalculated"
	EventIntentAccepted         EventType = "IntentAccepted"
	EventIntentRejected         EventType = "IntentRejected"
	EventIntentModified         EventType = "IntentModified"
	EventReportedStateChanged   EventType = "ReportedStateChanged"
	EventOverrideChanged        EventType = "OverrideChanged"
	EventInfrastructureFailure  EventType = "InfrastructureFailure"
	EventDeviceCommand          EventType = "DeviceCommand"
)

// Event is the envelope published on the event bus. Payload holds one of
// the concrete structs below depending on Type.
type Event struct {
	Type      EventType
	DeviceId  DeviceId
	At        time.Time
	Payload   interface{}
}

// DesiredStateCalculatedPayload accompanies EventDesiredStateCalculated.
type DesiredStateCalculatedPayload struct {
	Desired DesiredDeviceState
}

// IntentOutcomePayload accompanies IntentAccepted/Rejected/Modified.
type IntentOutcomePayload struct {
	Intent  UserIntent
	Reason  string
	Applied DeviceValue // the value actually applied to desired, when relevant
}

// OverrideChangedPayload accompanies EventOverrideChanged; TargetId is
// either a device id string or a system id depending on the override's
// scope, matching the store's (targetId, category) key.
type OverrideChangedPayload struct {
	TargetId string
	Category OverrideCategory
}

// InfrastructureFailurePayload accompanies EventInfrastructureFailure.
type InfrastructureFailurePayload struct {
	Component string
	Message   string
	FailedAt  time.Time
}

// DeviceCommand is the outbound instruction to an actuator; RawValue
// unwraps the tagged DeviceValue into the wire-native shape (bool for
// RELAY, int for FAN).
type DeviceCommand struct {
	Id       DeviceId
	Type     DeviceType
	RawValue interface{}
}

// DeviceCommandPayload accompanies EventDeviceCommand.
type DeviceCommandPayload struct {
	Command DeviceCommand
}
