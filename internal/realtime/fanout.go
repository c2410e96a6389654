// Package realtime implements the real-time channel: a Fanout port plus
// an in-memory broadcast test double and a gorilla/websocket-backed
// production adapter.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sentrygrid/twinctl/internal/eventbus"
	"github.com/sentrygrid/twinctl/internal/model"
)

// Fanout publishes a topic-scoped message to every connected subscriber.
type Fanout interface {
	Publish(ctx context.Context, topic string, message []byte) error
}

// Memory is an in-memory Fanout for tests: it records every publish and
// lets a test assert on what was broadcast without a live transport.
type Memory struct {
	mu        sync.Mutex
	published []Published
}

// Published is one recorded Memory.Publish call.
type Published struct {
	Topic   string
	Message []byte
}

// NewMemory returns an empty Memory fanout.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Publish(_ context.Context, topic string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, Published{Topic: topic, Message: append([]byte(nil), message...)})
	return nil
}

// All returns every message published so far.
func (m *Memory) All() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Published(nil), m.published...)
}

// eventPayload is the wire shape of an event bridged onto the real-time
// channel: observable events such as DesiredStateCalculated,
// IntentAccepted/Rejected/Modified, ReportedStateChanged, OverrideChanged,
// and InfrastructureFailure.
type eventPayload struct {
	Type     model.EventType `json:"type"`
	DeviceId string          `json:"deviceId,omitempty"`
	Payload  interface{}     `json:"payload"`
}

// Bridge subscribes to every observable event on bus and republishes it on
// fanout under a topic derived from the event type, so UI clients watching
// the real-time channel see twin changes as they happen.
type Bridge struct {
	fanout Fanout
}

// NewBridge wires fanout to receive bus events.
func NewBridge(fanout Fanout) *Bridge {
	return &Bridge{fanout: fanout}
}

// Attach subscribes to every event type the real-time channel surfaces.
func (b *Bridge) Attach(bus *eventbus.Bus) {
	for _, t := range []model.EventType{
		model.EventDesiredStateCalculated,
		model.EventIntentAccepted,
		model.EventIntentRejected,
		model.EventIntentModified,
		model.EventReportedStateChanged,
		model.EventOverrideChanged,
		model.EventInfrastructureFailure,
	} {
		bus.Subscribe(t, b.relay)
	}
}

func (b *Bridge) relay(evt model.Event) {
	msg, err := json.Marshal(eventPayload{
		Type:     evt.Type,
		DeviceId: deviceIdOrEmpty(evt),
		Payload:  evt.Payload,
	})
	if err != nil {
		return
	}
	_ = b.fanout.Publish(context.Background(), string(evt.Type), msg)
}

func deviceIdOrEmpty(evt model.Event) string {
	if evt.DeviceId.ControllerId == "" && evt.DeviceId.ComponentId == "" {
		return ""
	}
	return evt.DeviceId.String()
}
