package model

import "time"

// OverrideCategory is both the override precedence tag and, reused as
// DesiredDeviceState's SourceCategory, the provenance of a desired state.
// Strictly decreasing precedence for *override* categories is
// EMERGENCY > MAINTENANCE > SCHEDULED > MANUAL; USER_INTENT ranks below
// all of them and is used only to tag desired states with no effective
// override.
type OverrideCategory string

const (
	CategoryEmergency   OverrideCategory = "EMERGENCY"
	CategoryMaintenance OverrideCategory = "MAINTENANCE"
	CategoryScheduled   OverrideCategory = "SCHEDULED"
	CategoryManual      OverrideCategory = "MANUAL"
	CategoryUserIntent  OverrideCategory = "USER_INTENT"
)

// overrideRank orders the four override categories by precedence, highest
// first. USER_INTENT never appears as an override category and is ranked
// below everything so it never wins a comparison against a real override.
var overrideRank = map[OverrideCategory]int{
	CategoryEmergency:   4,
	CategoryMaintenance: 3,
	CategoryScheduled:   2,
	CategoryManual:      1,
	CategoryUserIntent:  0,
}

// Rank returns the override's precedence weight, higher binds first.
func (c OverrideCategory) Rank() int {
	return overrideRank[c]
}

// OverrideScope distinguishes a per-device override from one inherited via
// FunctionalSystem membership.
type OverrideScope string

const (
	ScopeDevice OverrideScope = "DEVICE"
	ScopeSystem OverrideScope = "SYSTEM"
)

// Override is a prioritized forced value keyed by (TargetId, Category);
// the key uniquely identifies it per the data-model invariant.
type Override struct {
	TargetId  string // a DeviceId.String() when Scope==DEVICE, a system id when Scope==SYSTEM
	Scope     OverrideScope
	Category  OverrideCategory
	Value     DeviceValue
	Reason    string
	ExpiresAt *time.Time
	CreatedAt time.Time
	CreatedBy string
	Version   int64
}

// IsExpired reports whether the override's TTL has elapsed as of at. An
// override with ExpiresAt exactly equal to at is treated as expired.
func (o Override) IsExpired(at time.Time) bool {
	return o.ExpiresAt != nil && !o.ExpiresAt.After(at)
}

// ResolvedOverride is the Override Resolver's output: a single effective
// override value with enough provenance to tag the resulting desired state.
type ResolvedOverride struct {
	Value        DeviceValue
	Category     OverrideCategory
	Reason       string
	IsFromSystem bool
}

// FunctionalSystem is a named group of devices sharing configuration and
// fail-safe defaults. Membership is exclusive: a device id appears in at
// most one system's DeviceIds.
type FunctionalSystem struct {
	Id               string
	Type             string
	Name             string
	DeviceIds        []string
	Configuration    map[string]string
	FailSafeDefaults map[DeviceType]DeviceValue
	Version          int64
}
