package twin

import (
	"context"
	"sync"
	"time"

	"github.com/sentrygrid/twinctl/internal/logger"
	"github.com/sentrygrid/twinctl/internal/model"
	"github.com/sentrygrid/twinctl/internal/twinerr"
)

// MemoryStore is an in-process Store: every key lives in a plain Go map
// guarded by one RWMutex. Used for tests and single-process deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	intents  map[model.DeviceId]model.UserIntent
	reported map[model.DeviceId]model.ReportedDeviceState
	desired  map[model.DeviceId]model.DesiredDeviceState
	activity map[model.DeviceId]time.Time
	index    map[model.DeviceId]struct{}

	log logger.ComponentLogger
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(log logger.ComponentLogger) *MemoryStore {
	if log == nil {
		log = logger.NoOpLogger{}
	}
	return &MemoryStore{
		intents:  make(map[model.DeviceId]model.UserIntent),
		reported: make(map[model.DeviceId]model.ReportedDeviceState),
		desired:  make(map[model.DeviceId]model.DesiredDeviceState),
		activity: make(map[model.DeviceId]time.Time),
		index:    make(map[model.DeviceId]struct{}),
		log:      log.WithComponent("twin.memory"),
	}
}

func (s *MemoryStore) touch(id model.DeviceId) {
	s.activity[id] = time.Now()
}

func (s *MemoryStore) SaveUserIntent(_ context.Context, intent model.UserIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[intent.Id] = intent
	s.touch(intent.Id)
	return nil
}

func (s *MemoryStore) FindUserIntent(_ context.Context, id model.DeviceId) (*model.UserIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.intents[id]
	if !ok {
		return nil, nil
	}
	if !v.Value.AgreesWithType(v.Type) {
		return nil, twinerr.New("twin.FindUserIntent", twinerr.KindInternal, id.String(), twinerr.ErrCorruptState)
	}
	return &v, nil
}

func (s *MemoryStore) SaveReportedState(_ context.Context, state model.ReportedDeviceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reported[state.Id] = state
	s.touch(state.Id)
	return nil
}

func (s *MemoryStore) FindReportedState(_ context.Context, id model.DeviceId) (*model.ReportedDeviceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.reported[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *MemoryStore) SaveDesiredState(_ context.Context, desired model.DesiredDeviceState) error {
	if !desired.Value.AgreesWithType(desired.Type) {
		return twinerr.New("twin.SaveDesiredState", twinerr.KindInternal, desired.Id.String(), twinerr.ErrCorruptState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desired[desired.Id] = desired
	s.touch(desired.Id)
	if desired.Type.IsOutput() {
		s.index[desired.Id] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) FindDesiredState(_ context.Context, id model.DeviceId) (*model.DesiredDeviceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.desired[id]
	if !ok {
		return nil, nil
	}
	if !v.Value.AgreesWithType(v.Type) {
		return nil, twinerr.New("twin.FindDesiredState", twinerr.KindInternal, id.String(), twinerr.ErrCorruptState)
	}
	return &v, nil
}

func (s *MemoryStore) FindAllActiveOutputDevices(_ context.Context) ([]model.DesiredDeviceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.DesiredDeviceState, 0, len(s.index))
	for id := range s.index {
		if d, ok := s.desired[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MemoryStore) FindTwinSnapshot(_ context.Context, id model.DeviceId) (model.DeviceTwinSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := model.DeviceTwinSnapshot{Id: id}
	if v, ok := s.intents[id]; ok {
		intent := v
		snap.Intent = &intent
	}
	if v, ok := s.desired[id]; ok {
		desired := v
		snap.Desired = &desired
	}
	if v, ok := s.reported[id]; ok {
		reported := v
		snap.Reported = &reported
	}
	return snap, nil
}

func (s *MemoryStore) FindLastActivity(_ context.Context, id model.DeviceId) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.activity[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *MemoryStore) DeleteDevice(_ context.Context, id model.DeviceId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.intents, id)
	delete(s.reported, id)
	delete(s.desired, id)
	delete(s.activity, id)
	delete(s.index, id)
	return nil
}

func (s *MemoryStore) IndexOutputDevice(_ context.Context, id model.DeviceId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[id] = struct{}{}
	return nil
}

func (s *MemoryStore) RemoveFromIndex(_ context.Context, id model.DeviceId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.index, id)
	return nil
}

func (s *MemoryStore) GetAllIndexedDeviceKeys(_ context.Context) ([]model.DeviceId, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.DeviceId, 0, len(s.index))
	for id := range s.index {
		out = append(out, id)
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
