package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stratagem-engine/stratagem/pkg/command"
)

// Controller identifies who plays a faction.
type Controller int

const (
	ControllerNone Controller = iota
	ControllerHuman
	ControllerComputer
)

func (c Controller) String() string {
	switch c {
	case ControllerNone:
		return "None"
	case ControllerHuman:
		return "Human"
	case ControllerComputer:
		return "Computer"
	}
	return "Unknown"
}

// Session is the live aggregate of world state, player assignments, and
// control-flow bookkeeping for one game in progress. The world is mutated
// only by whichever goroutine currently holds the turn; the coordination
// layer guarantees at most one such mutator is active at a time.
type Session struct {
	ID         uuid.UUID
	Generation uint64
	Name       string
	CreatedAt  time.Time

	mu          sync.RWMutex
	world       command.WorldState
	initial     command.WorldState
	history     *command.History
	controllers []Controller
}

// InitialWorld returns the world as it was when the session opened, the
// starting point for replaying recorded history from the beginning.
func (s *Session) InitialWorld() command.WorldState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initial
}

// World returns the live world state.
func (s *Session) World() command.WorldState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.world
}

// SetWorld swaps the live world state, used when a snapshot is restored or
// a background computation delivers a new world.
func (s *Session) SetWorld(world command.WorldState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.world = world
}

// History returns the session's command history.
func (s *Session) History() *command.History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history
}

// Controller returns who plays the faction at index. Factions without an
// explicit assignment default to ControllerNone.
func (s *Session) Controller(faction int) Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if faction < 0 || faction >= len(s.controllers) {
		return ControllerNone
	}
	return s.controllers[faction]
}

// SetController assigns who plays the faction at index. Handing a computing
// faction to a local human is how background failures are resolved.
func (s *Session) SetController(faction int, controller Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for faction >= len(s.controllers) {
		s.controllers = append(s.controllers, ControllerNone)
	}
	s.controllers[faction] = controller
}

// Controllers returns a copy of the faction assignment table.
func (s *Session) Controllers() []Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Controller, len(s.controllers))
	copy(out, s.controllers)
	return out
}

// ControlState returns the session state that dispatching control to the
// faction's controller implies.
func (s *Session) ControlState(faction int) State {
	if s.Controller(faction) == ControllerComputer {
		return StateComputer
	}
	return StateHuman
}
