// Package twin is the facade over the persistent twin store: the
// per-device (intent, desired, reported, lastActivity) tuple plus the
// active-output index, backed by either an in-memory or Redis
// implementation of the same Store interface.
package twin

import (
	"context"
	"time"

	"github.com/sentrygrid/twinctl/internal/model"
)

// Store is the twin store's operation set.
type Store interface {
	SaveUserIntent(ctx context.Context, intent model.UserIntent) error
	FindUserIntent(ctx context.Context, id model.DeviceId) (*model.UserIntent, error)

	SaveReportedState(ctx context.Context, state model.ReportedDeviceState) error
	FindReportedState(ctx context.Context, id model.DeviceId) (*model.ReportedDeviceState, error)

	// SaveDesiredState persists a desired state. If desired.Type is RELAY
	// or FAN the device is also added to the active-output index.
	SaveDesiredState(ctx context.Context, desired model.DesiredDeviceState) error
	FindDesiredState(ctx context.Context, id model.DeviceId) (*model.DesiredDeviceState, error)
	FindAllActiveOutputDevices(ctx context.Context) ([]model.DesiredDeviceState, error)

	// FindTwinSnapshot is a best-effort atomic read of all three twin facets.
	FindTwinSnapshot(ctx context.Context, id model.DeviceId) (model.DeviceTwinSnapshot, error)
	FindLastActivity(ctx context.Context, id model.DeviceId) (*time.Time, error)

	// DeleteDevice removes all three state keys and the index entry.
	DeleteDevice(ctx context.Context, id model.DeviceId) error

	IndexOutputDevice(ctx context.Context, id model.DeviceId) error
	RemoveFromIndex(ctx context.Context, id model.DeviceId) error
	GetAllIndexedDeviceKeys(ctx context.Context) ([]model.DeviceId, error)
}
