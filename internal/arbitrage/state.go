package arbitrage

import (
	"fmt"
	"sync"
)

// State is a monitored market's lifecycle phase.
type State string

const (
	StateIdle        State = "idle"
	StateSubscribing State = "subscribing"
	StateMonitoring  State = "monitoring"
	StateExecuting   State = "executing"
	StateRebalancing State = "rebalancing"
	StateStopping    State = "stopping"
)

// transitions is the legal edge set. Executing and rebalancing are mutually
// exclusive: both return to monitoring before the other can start.
//
//nolint:gochecknoglobals // static table
var transitions = map[State][]State{
	StateIdle:        {StateSubscribing},
	StateSubscribing: {StateMonitoring, StateStopping},
	StateMonitoring:  {StateExecuting, StateRebalancing, StateStopping},
	StateExecuting:   {StateMonitoring, StateStopping},
	StateRebalancing: {StateMonitoring, StateStopping},
	StateStopping:    {StateIdle},
}

// Machine tracks one market's state with transition validation.
type Machine struct {
	mu    sync.Mutex
	state State
}

// NewMachine starts in idle.
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// Current returns the present state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// To performs a validated transition.
func (m *Machine) To(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("illegal transition %s -> %s", m.state, next)
}

// TryTo attempts a transition and reports whether it happened. Used as the
// mutual-exclusion gate: entering executing fails while rebalancing and
// vice versa.
func (m *Machine) TryTo(next State) bool {
	return m.To(next) == nil
}
