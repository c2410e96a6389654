package override

import (
	"context"
	"time"

	"github.com/sentrygrid/twinctl/internal/model"
)

// Resolver implements the precedence and scope resolution algorithm over
// a Store.
type Resolver struct {
	store Store
	now   func() time.Time
}

// NewResolver builds a Resolver over store. now defaults to time.Now and
// is overridable for deterministic TTL-boundary tests.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store, now: time.Now}
}

// WithClock overrides the resolver's clock, for tests asserting the
// "override exactly at expiresAt is treated as expired" boundary.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve returns the single effective override for deviceId, optionally
// scoped to systemId, or nil if none applies.
//
// Algorithm: fetch non-expired DEVICE-scope overrides for the device and,
// if systemId != "", non-expired SYSTEM-scope overrides for the system;
// pick the maximum by category rank, and within the same rank DEVICE
// beats SYSTEM (more specific).
func (r *Resolver) Resolve(ctx context.Context, deviceId model.DeviceId, systemId string) (*model.ResolvedOverride, error) {
	now := r.now()

	deviceOverrides, err := r.store.ListForTarget(ctx, deviceId.String(), model.ScopeDevice, now)
	if err != nil {
		return nil, err
	}

	var systemOverrides []model.Override
	if systemId != "" {
		systemOverrides, err = r.store.ListForTarget(ctx, systemId, model.ScopeSystem, now)
		if err != nil {
			return nil, err
		}
	}

	var best *model.Override
	var bestFromSystem bool

	consider := func(ov model.Override, fromSystem bool) {
		if best == nil {
			c := ov
			best = &c
			bestFromSystem = fromSystem
			return
		}
		if ov.Category.Rank() > best.Category.Rank() {
			c := ov
			best = &c
			bestFromSystem = fromSystem
			return
		}
		if ov.Category.Rank() == best.Category.Rank() && !fromSystem && bestFromSystem {
			// DEVICE scope wins over SYSTEM scope within the same category.
			c := ov
			best = &c
			bestFromSystem = fromSystem
		}
	}

	for _, ov := range deviceOverrides {
		consider(ov, false)
	}
	for _, ov := range systemOverrides {
		consider(ov, true)
	}

	if best == nil {
		return nil, nil
	}
	return &model.ResolvedOverride{
		Value:        best.Value,
		Category:     best.Category,
		Reason:       best.Reason,
		IsFromSystem: bestFromSystem,
	}, nil
}
