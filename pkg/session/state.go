package session

import (
	"fmt"
	"sync"
)

// State describes who holds control of the live session.
type State int

const (
	// StateInvalid means no session is live.
	StateInvalid State = iota
	// StateClosed means the session is being torn down.
	StateClosed
	// StateCommand means a queued command is executing.
	StateCommand
	// StateComputer means a background computation holds the turn.
	StateComputer
	// StateHuman means a local interactive player holds the turn.
	StateHuman
	// StateReplay means recorded history is being replayed.
	StateReplay
	// StateSelection means the user is making a modal selection.
	StateSelection
)

func (s State) String() string {
	switch s {
	case StateInvalid:
		return "Invalid"
	case StateClosed:
		return "Closed"
	case StateCommand:
		return "Command"
	case StateComputer:
		return "Computer"
	case StateHuman:
		return "Human"
	case StateReplay:
		return "Replay"
	case StateSelection:
		return "Selection"
	}
	return "Unknown"
}

// ErrStateMismatch indicates an operation's required session state
// precondition was violated. This is a programming error, not a user-facing
// condition.
type ErrStateMismatch struct {
	Expected []State
	Actual   State
}

func (e *ErrStateMismatch) Error() string {
	return fmt.Sprintf("session state is %s, expected one of %v", e.Actual, e.Expected)
}

func IsStateMismatch(err error) bool {
	_, ok := err.(*ErrStateMismatch)
	return ok
}

// Listener receives state change notifications. Listeners must assume they
// may be invoked from a different goroutine than the one that requested the
// change, because some transitions are requested by background computation.
type Listener func(old, new State)

// StateMachine holds the single current session state and broadcasts
// state-change notifications. It performs no side effects beyond
// notification; subsystems that care about a particular transition must
// register a listener.
type StateMachine struct {
	mu        sync.RWMutex
	state     State
	listeners []Listener
}

func NewStateMachine() *StateMachine {
	return &StateMachine{
		state: StateInvalid,
	}
}

// State returns the current session state.
func (m *StateMachine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Set unconditionally overwrites the current state and synchronously
// notifies all registered listeners with the old value.
func (m *StateMachine) Set(state State) {
	m.mu.Lock()
	old := m.state
	m.state = state
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, listener := range listeners {
		listener(old, state)
	}
}

// AddListener registers a listener for state changes.
func (m *StateMachine) AddListener(listener Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// RequireState fails with an ErrStateMismatch if the current state differs
// from expected. It never queues or retries.
func (m *StateMachine) RequireState(expected State) error {
	return m.RequireOneOf(expected)
}

// RequireOneOf fails with an ErrStateMismatch if the current state is
// absent from the expected set.
func (m *StateMachine) RequireOneOf(expected ...State) error {
	current := m.State()
	for _, state := range expected {
		if current == state {
			return nil
		}
	}
	return &ErrStateMismatch{
		Expected: expected,
		Actual:   current,
	}
}
