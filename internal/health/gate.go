// Package health implements the infrastructure health gate: a
// consecutive-failure / consecutive-success state machine guarding
// command emission, tracked with plain counters rather than a sliding
// error-rate window.
package health

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sentrygrid/twinctl/internal/eventbus"
	"github.com/sentrygrid/twinctl/internal/logger"
	"github.com/sentrygrid/twinctl/internal/model"
)

// State is the gate's two-value health state.
type State int32

const (
	StateHealthy State = iota
	StateUnhealthy
)

func (s State) String() string {
	if s == StateUnhealthy {
		return "UNHEALTHY"
	}
	return "HEALTHY"
}

// Gate tracks reachability of the external stores (KV store and document
// store). It transitions to UNHEALTHY on FailureThreshold consecutive
// failures reported against any tracked component, and back to HEALTHY
// once no tracked component has an outstanding failure streak and the
// component reporting the latest success has RecoveryThreshold
// consecutive successes. IR and
// DR read IsHealthy before emitting a command (fail-stop); the gate never
// blocks a caller.
type Gate struct {
	failureThreshold  int
	recoveryThreshold int

	log logger.ComponentLogger
	bus *eventbus.Bus

	state int32 // atomic State

	mu         sync.Mutex
	consecFail map[string]int
	consecOK   map[string]int
}

// New builds a Gate starting HEALTHY.
func New(failureThreshold, recoveryThreshold int, bus *eventbus.Bus, log logger.ComponentLogger) *Gate {
	if log == nil {
		log = logger.NoOpLogger{}
	}
	return &Gate{
		failureThreshold:  failureThreshold,
		recoveryThreshold: recoveryThreshold,
		log:               log.WithComponent("health"),
		bus:               bus,
		consecFail:        make(map[string]int),
		consecOK:          make(map[string]int),
	}
}

// IsHealthy reports the gate's current state without side effects.
func (g *Gate) IsHealthy() bool {
	return State(atomic.LoadInt32(&g.state)) == StateHealthy
}

// State returns the gate's current state.
func (g *Gate) State() State {
	return State(atomic.LoadInt32(&g.state))
}

// RecordSuccess reports a successful operation against component
// (e.g. "kv_store", "document_store").
func (g *Gate) RecordSuccess(component string) {
	g.mu.Lock()
	g.consecFail[component] = 0
	g.consecOK[component]++
	recovered := g.allRecovered()
	ok := g.consecOK[component]
	g.mu.Unlock()

	if recovered && g.State() == StateUnhealthy && ok >= g.recoveryThreshold {
		g.transition(StateHealthy, component, "")
	}
}

// RecordFailure reports a failed operation against component and the
// error that caused it.
func (g *Gate) RecordFailure(component string, cause error) {
	g.mu.Lock()
	g.consecOK[component] = 0
	g.consecFail[component]++
	fails := g.consecFail[component]
	g.mu.Unlock()

	if g.State() == StateHealthy && fails >= g.failureThreshold {
		msg := "infrastructure component degraded"
		if cause != nil {
			msg = cause.Error()
		}
		g.transition(StateUnhealthy, component, msg)
	}
}

// allRecovered reports whether every component currently tracked has a
// clean failure streak, called with mu held.
func (g *Gate) allRecovered() bool {
	for _, f := range g.consecFail {
		if f > 0 {
			return false
		}
	}
	return true
}

func (g *Gate) transition(to State, component, message string) {
	atomic.StoreInt32(&g.state, int32(to))
	g.log.Warn("infrastructure health gate transition", map[string]interface{}{
		"to":        to.String(),
		"component": component,
	})
	if to == StateUnhealthy && g.bus != nil {
		g.bus.Publish(model.Event{
			Type: model.EventInfrastructureFailure,
			At:   time.Now(),
			Payload: model.InfrastructureFailurePayload{
				Component: component,
				Message:   message,
				FailedAt:  time.Now(),
			},
		})
	}
}

// Observe is a convenience wrapper: it runs fn against component and
// records success or failure on the gate based on whether fn returned an
// infrastructure-classified error versus a user/conflict/safety error
// (which must not trip the gate). A nil gate is a no-op observer, so
// callers that run without a configured gate (tests, CLIs) don't need a
// separate code path.
func Observe(g *Gate, component string, isInfra func(error) bool, fn func() error) error {
	err := fn()
	if g == nil {
		return err
	}
	if err == nil {
		g.RecordSuccess(component)
		return nil
	}
	if isInfra(err) {
		g.RecordFailure(component, err)
	}
	return err
}
