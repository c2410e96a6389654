package health

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sentrygrid/twinctl/internal/eventbus"
	"github.com/sentrygrid/twinctl/internal/model"
)

func TestGateStartsHealthy(t *testing.T) {
	g := New(3, 2, nil, nil)
	assert.True(t, g.IsHealthy())
}

func TestGateTripsAfterConsecutiveFailureThreshold(t *testing.T) {
	g := New(3, 2, nil, nil)
	g.RecordFailure("kv_store", errors.New("boom"))
	g.RecordFailure("kv_store", errors.New("boom"))
	assert.True(t, g.IsHealthy())

	g.RecordFailure("kv_store", errors.New("boom"))
	assert.False(t, g.IsHealthy())
}

func TestGateRecoversAfterConsecutiveSuccessThreshold(t *testing.T) {
	g := New(1, 2, nil, nil)
	g.RecordFailure("kv_store", errors.New("boom"))
	assert.False(t, g.IsHealthy())

	g.RecordSuccess("kv_store")
	assert.False(t, g.IsHealthy())

	g.RecordSuccess("kv_store")
	assert.True(t, g.IsHealthy())
}

func TestGatePublishesInfrastructureFailureOnTrip(t *testing.T) {
	bus := eventbus.New()
	var received []model.Event
	bus.Subscribe(model.EventInfrastructureFailure, func(e model.Event) { received = append(received, e) })

	g := New(1, 1, bus, nil)
	g.RecordFailure("document_store", errors.New("unreachable"))

	assert.Len(t, received, 1)
	payload := received[0].Payload.(model.InfrastructureFailurePayload)
	assert.Equal(t, "document_store", payload.Component)
}

func TestGateTripsWhenAnyOneComponentReachesFailureThreshold(t *testing.T) {
	g := New(2, 1, nil, nil)
	g.RecordFailure("kv_store", errors.New("boom"))
	g.RecordFailure("document_store", errors.New("boom"))
	g.RecordFailure("document_store", errors.New("boom"))
	assert.False(t, g.IsHealthy())
}

func TestObserveRecordsSuccessOnNilError(t *testing.T) {
	g := New(1, 1, nil, nil)
	g.RecordFailure("kv_store", errors.New("boom"))
	assert.False(t, g.IsHealthy())

	err := Observe(g, "kv_store", func(error) bool { return true }, func() error { return nil })
	assert.NoError(t, err)
	assert.True(t, g.IsHealthy())
}

func TestObserveTripsGateOnlyForInfraClassifiedErrors(t *testing.T) {
	g := New(1, 1, nil, nil)
	boom := errors.New("not infra, e.g. a validation error")

	err := Observe(g, "kv_store", func(error) bool { return false }, func() error { return boom })
	assert.Equal(t, boom, err)
	assert.True(t, g.IsHealthy())

	err = Observe(g, "kv_store", func(error) bool { return true }, func() error { return boom })
	assert.Equal(t, boom, err)
	assert.False(t, g.IsHealthy())
}

func TestObserveWithNilGateIsANoOp(t *testing.T) {
	err := Observe(nil, "kv_store", func(error) bool { return true }, func() error { return errors.New("boom") })
	assert.Error(t, err)
}
