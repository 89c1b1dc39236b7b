package checkout

import (
	"sync"

	"github.com/blacknight/storefront/internal/domain"
	"github.com/cockroachdb/errors"
)

type State string

const (
	StateIdle       State = "idle"
	StateCreating   State = "creating"
	StateActive     State = "active"
	StateExpired    State = "expired"
	StateCancelled  State = "cancelled"
	StatePaying     State = "paying"
	StateApproved   State = "approved"
	StateRejected   State = "rejected"
	StatePending    State = "pending"
	StateUnresolved State = "unresolved"
)

var transitions = map[State][]State{
	StateIdle:     {StateCreating},
	StateCreating: {StateActive, StateIdle},
	StateActive:   {StateExpired, StateCancelled, StatePaying},
	StatePaying:   {StateApproved, StateRejected, StatePending, StateActive, StateExpired},
	StatePending:  {StateApproved, StateRejected, StateUnresolved},
}

func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal states accept no further transitions.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Machine tracks the checkout state of one reservation.
type Machine struct {
	mu    sync.Mutex
	state State
}

func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// Restore resumes a machine at a state recovered from storage.
func Restore(s State) *Machine {
	return &Machine{state: s}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) To(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !CanTransition(m.state, next) {
		return errors.Wrapf(domain.ErrInvalidTransition, "%s -> %s", m.state, next)
	}
	m.state = next
	return nil
}

// Walk applies a sequence of transitions, stopping at the first illegal one.
func (m *Machine) Walk(path ...State) error {
	for _, s := range path {
		if err := m.To(s); err != nil {
			return err
		}
	}
	return nil
}
