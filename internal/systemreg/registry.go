// Package systemreg implements the FunctionalSystem registry: device
// membership (exclusive — a device belongs to at most one system),
// fail-safe defaults, and the related-device-state resolution the Safety
// Rule Engine needs for cross-device rules. The only implementation is
// the in-memory MemoryRegistry, with versioned optimistic writes; there is
// no Redis-backed registry.
package systemreg

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/sentrygrid/twinctl/internal/model"
	"github.com/sentrygrid/twinctl/internal/twinerr"
)

// Registry is the FunctionalSystem store plus membership index.
type Registry interface {
	Put(ctx context.Context, sys model.FunctionalSystem) error
	Get(ctx context.Context, id string) (*model.FunctionalSystem, error)
	// SystemOf returns the system id a device belongs to, or "" if the
	// device is not a member of any system.
	SystemOf(ctx context.Context, deviceId model.DeviceId) (string, error)
	FailSafeDefault(ctx context.Context, systemId string, t model.DeviceType) (model.DeviceValue, bool, error)
}

// MemoryRegistry is an in-process Registry.
type MemoryRegistry struct {
	mu       sync.RWMutex
	systems  map[string]model.FunctionalSystem
	byDevice map[string]string // deviceId.String() -> systemId
}

// NewMemoryRegistry returns an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		systems:  make(map[string]model.FunctionalSystem),
		byDevice: make(map[string]string),
	}
}

// Put upserts sys under optimistic concurrency on Version, and enforces
// exclusive device membership: if any of sys.DeviceIds is already a
// member of a different system, Put fails with twinerr.ErrConflict.
func (r *MemoryRegistry) Put(_ context.Context, sys model.FunctionalSystem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.systems[sys.Id]; ok {
		if sys.Version != existing.Version {
			return twinerr.Conflict("systemreg.Put", sys.Id)
		}
		sys.Version = existing.Version + 1
		for _, d := range existing.DeviceIds {
			if owner := r.byDevice[d]; owner == sys.Id {
				delete(r.byDevice, d)
			}
		}
	} else {
		if sys.Version != 0 {
			return twinerr.Conflict("systemreg.Put", sys.Id)
		}
		sys.Version = 1
	}

	for _, d := range sys.DeviceIds {
		if owner, ok := r.byDevice[d]; ok && owner != sys.Id {
			return twinerr.New("systemreg.Put", twinerr.KindConflict, sys.Id,
				fmt.Errorf("%w: device %s already belongs to system %s", twinerr.ErrConflict, d, owner))
		}
	}
	for _, d := range sys.DeviceIds {
		r.byDevice[d] = sys.Id
	}
	r.systems[sys.Id] = sys
	return nil
}

func (r *MemoryRegistry) Get(_ context.Context, id string) (*model.FunctionalSystem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.systems[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (r *MemoryRegistry) SystemOf(_ context.Context, deviceId model.DeviceId) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byDevice[deviceId.String()], nil
}

func (r *MemoryRegistry) FailSafeDefault(_ context.Context, systemId string, t model.DeviceType) (model.DeviceValue, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sys, ok := r.systems[systemId]
	if !ok {
		return model.DeviceValue{}, false, nil
	}
	v, ok := sys.FailSafeDefaults[t]
	return v, ok, nil
}

var _ Registry = (*MemoryRegistry)(nil)

// RelatedDeviceMatcher resolves SafetyContext.RelatedDeviceStates: devices
// in the same FunctionalSystem as a rule's subject device whose
// componentId matches pattern, per Open Question (b).
type RelatedDeviceMatcher struct {
	registry Registry
}

// NewRelatedDeviceMatcher builds a matcher over registry.
func NewRelatedDeviceMatcher(registry Registry) *RelatedDeviceMatcher {
	return &RelatedDeviceMatcher{registry: registry}
}

// RelatedIDs returns the device ids in deviceId's system whose
// componentId matches pattern (compiled once by the caller and passed in,
// since different rules use different patterns).
func (m *RelatedDeviceMatcher) RelatedIDs(ctx context.Context, deviceId model.DeviceId, pattern *regexp.Regexp) ([]model.DeviceId, error) {
	systemId, err := m.registry.SystemOf(ctx, deviceId)
	if err != nil || systemId == "" {
		return nil, err
	}
	sys, err := m.registry.Get(ctx, systemId)
	if err != nil || sys == nil {
		return nil, err
	}
	var out []model.DeviceId
	for _, d := range sys.DeviceIds {
		id, perr := model.ParseDeviceId(d)
		if perr != nil {
			continue
		}
		if pattern.MatchString(id.ComponentId) {
			out = append(out, id)
		}
	}
	return out, nil
}
