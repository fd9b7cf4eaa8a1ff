package lifecycle

import (
	"fmt"
	"sync"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

// StateMachine guards the current ComponentState of one component and
// enforces the transition table in spec §3.2.
type StateMachine struct {
	mu       sync.RWMutex
	state    model.ComponentState
	onChange func(model.ComponentState)
}

// NewStateMachine starts a component in the Stopped state.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: model.StateStopped}
}

// OnChange installs a callback invoked (outside the lock) after every
// successful transition, used by the registry to mirror state into
// Prometheus gauges.
func (s *StateMachine) OnChange(f func(model.ComponentState)) {
	s.mu.Lock()
	s.onChange = f
	s.mu.Unlock()
}

func (s *StateMachine) notify(state model.ComponentState) {
	s.mu.RLock()
	f := s.onChange
	s.mu.RUnlock()
	if f != nil {
		f(state)
	}
}

// Current returns the current state.
func (s *StateMachine) Current() model.ComponentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Transition moves to `to`, failing if the move is not in the transition
// table. Returns (changed, error): changed is false (no error) when the
// transition is idempotent no-op (e.g. start while Running).
func (s *StateMachine) Transition(to model.ComponentState) (bool, error) {
	s.mu.Lock()
	if s.state == to {
		s.mu.Unlock()
		return false, nil
	}
	if !model.ValidTransition(s.state, to) {
		from := s.state
		s.mu.Unlock()
		return false, fmt.Errorf("invalid transition %s -> %s", from, to)
	}
	s.state = to
	s.mu.Unlock()

	s.notify(to)
	return true, nil
}

// Force sets the state unconditionally, used for the Failed transition
// which is reachable from any state per spec §3.2.
func (s *StateMachine) Force(to model.ComponentState) (from model.ComponentState, changed bool) {
	s.mu.Lock()
	from = s.state
	if from == to {
		s.mu.Unlock()
		return from, false
	}
	s.state = to
	s.mu.Unlock()

	s.notify(to)
	return from, true
}
