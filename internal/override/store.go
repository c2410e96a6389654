// Package override implements the Override Store (versioned, TTL-expiring
// forced values keyed by (targetId, category)) and the Override Resolver
// (precedence + scope resolution for a single device).
package override

import (
	"context"
	"sync"
	"time"

	"github.com/sentrygrid/twinctl/internal/eventbus"
	"github.com/sentrygrid/twinctl/internal/model"
	"github.com/sentrygrid/twinctl/internal/twinerr"
)

// Store is the override store's operation set.
type Store interface {
	// Put upserts by (targetId, category) under optimistic concurrency:
	// if ov.Version does not match the stored version (0 for "must not
	// exist yet"), Put fails with a twinerr wrapping ErrConflict.
	Put(ctx context.Context, ov model.Override) error
	Get(ctx context.Context, targetId string, category model.OverrideCategory) (*model.Override, error)
	Delete(ctx context.Context, targetId string, category model.OverrideCategory) error
	// ListForTarget returns every non-expired override for targetId/scope.
	ListForTarget(ctx context.Context, targetId string, scope model.OverrideScope, now time.Time) ([]model.Override, error)
}

// MemoryStore is an in-process Store: a plain map guarded by one mutex,
// with the version-conflict check applied on every write.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]model.Override // key: targetId + "/" + category
	bus  *eventbus.Bus
}

// NewMemoryStore returns an empty MemoryStore. bus may be nil in tests
// that don't care about OverrideChanged events.
func NewMemoryStore(bus *eventbus.Bus) *MemoryStore {
	return &MemoryStore{data: make(map[string]model.Override), bus: bus}
}

func storeKey(targetId string, category model.OverrideCategory) string {
	return targetId + "/" + string(category)
}

func (s *MemoryStore) Put(_ context.Context, ov model.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(ov.TargetId, ov.Category)
	existing, exists := s.data[key]
	if exists {
		if ov.Version != existing.Version {
			return twinerr.Conflict("override.Put", key)
		}
		ov.Version = existing.Version + 1
	} else {
		if ov.Version != 0 {
			return twinerr.Conflict("override.Put", key)
		}
		ov.Version = 1
	}
	s.data[key] = ov

	if s.bus != nil {
		s.bus.Publish(model.Event{
			Type: model.EventOverrideChanged,
			At:   time.Now(),
			Payload: model.OverrideChangedPayload{
				TargetId: ov.TargetId,
				Category: ov.Category,
			},
		})
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, targetId string, category model.OverrideCategory) (*model.Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[storeKey(targetId, category)]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *MemoryStore) Delete(_ context.Context, targetId string, category model.OverrideCategory) error {
	s.mu.Lock()
	key := storeKey(targetId, category)
	_, existed := s.data[key]
	delete(s.data, key)
	s.mu.Unlock()

	if existed && s.bus != nil {
		s.bus.Publish(model.Event{
			Type: model.EventOverrideChanged,
			At:   time.Now(),
			Payload: model.OverrideChangedPayload{
				TargetId: targetId,
				Category: category,
			},
		})
	}
	return nil
}

func (s *MemoryStore) ListForTarget(_ context.Context, targetId string, scope model.OverrideScope, now time.Time) ([]model.Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Override
	for _, ov := range s.data {
		if ov.TargetId != targetId || ov.Scope != scope {
			continue
		}
		if ov.IsExpired(now) {
			continue
		}
		out = append(out, ov)
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
