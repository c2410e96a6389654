package override

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sentrygrid/twinctl/internal/health"
	"github.com/sentrygrid/twinctl/internal/twinerr"
)

func TestRedisStoreWrapReportsFailureToGate(t *testing.T) {
	gate := health.New(1, 1, nil, nil)
	s := &RedisStore{gate: gate}

	err := s.wrap("override.Put", "c1:relay1", errors.New("dial tcp: connection refused"))
	assert.Error(t, err)
	assert.False(t, gate.IsHealthy())
}

func TestRedisStoreWrapReportsSuccessToGate(t *testing.T) {
	gate := health.New(1, 1, nil, nil)
	s := &RedisStore{gate: gate}
	gate.RecordFailure(healthComponent, errors.New("boom"))
	assert.False(t, gate.IsHealthy())

	err := s.wrap("override.Put", "c1:relay1", nil)
	assert.NoError(t, err)
	assert.True(t, gate.IsHealthy())
}

func TestRedisStoreWrapPassesThroughConflictWithoutTrippingGate(t *testing.T) {
	gate := health.New(1, 1, nil, nil)
	s := &RedisStore{gate: gate}

	err := s.wrap("override.Put", "c1:relay1", twinerr.Conflict("override.Put", "c1:relay1"))
	assert.True(t, twinerr.IsConflict(err))
	assert.True(t, gate.IsHealthy())
}
