package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stratagem-engine/stratagem/pkg/command"
	"github.com/stratagem-engine/stratagem/pkg/dispatch"
	"github.com/stratagem-engine/stratagem/pkg/log"
)

// Runtime is the explicit per-process context for one live session at a
// time: the state machine, the task runner, and the current session. It
// replaces process-wide mutable singletons so multiple runtimes can coexist
// in tests.
type Runtime struct {
	machine *StateMachine
	runner  *dispatch.Runner

	mu         sync.RWMutex
	current    *Session
	generation uint64
}

type NewRuntimeOptions struct {
	Runner *dispatch.Runner
}

func NewRuntime(opts NewRuntimeOptions) *Runtime {
	return &Runtime{
		machine: NewStateMachine(),
		runner:  opts.Runner,
	}
}

func (r *Runtime) Machine() *StateMachine {
	return r.machine
}

func (r *Runtime) Runner() *dispatch.Runner {
	return r.runner
}

// Current returns the live session, or nil if none is open.
func (r *Runtime) Current() *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Generation returns the generation of the live session. Generations
// increase monotonically across session replacements, so a recorded
// generation compared by value detects "session replaced while an action
// was deferred" without relying on garbage-collection semantics.
func (r *Runtime) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

type OpenSessionOptions struct {
	Name    string
	World   command.WorldState
	History *command.History
	// Initial is the world replaying recorded history starts from. Left nil,
	// a snapshot of World is used, which is only correct when History is
	// empty; reopened saves must carry their original starting world.
	Initial     command.WorldState
	Controllers []Controller
}

// Open replaces the current session with a new one and dispatches control
// to the active faction's controller.
func (r *Runtime) Open(opts OpenSessionOptions) *Session {
	history := opts.History
	if history == nil {
		history = command.NewHistory()
	}
	initial := opts.Initial
	if initial == nil {
		initial = opts.World.Snapshot()
	}

	r.mu.Lock()
	r.generation++
	s := &Session{
		ID:          uuid.New(),
		Generation:  r.generation,
		Name:        opts.Name,
		CreatedAt:   time.Now().UTC(),
		world:       opts.World,
		initial:     initial,
		history:     history,
		controllers: append([]Controller(nil), opts.Controllers...),
	}
	r.current = s
	r.mu.Unlock()

	log.Info("Opened session %s (%s) at generation %d", s.Name, s.ID, s.Generation)
	r.machine.Set(s.ControlState(opts.World.ActiveFaction()))
	return s
}

// DispatchControl hands control to the faction acting next by validating
// and executing its begin-turn command and recording it in the history. A
// begin-turn failure means control cannot be dispatched to anyone, so the
// session is closed unconditionally.
func (r *Runtime) DispatchControl(beginTurn command.Command) error {
	s := r.Current()
	if s == nil {
		return fmt.Errorf("no session is open")
	}

	world := s.World()
	if err := beginTurn.Validate(world); err != nil {
		log.Error("Failed to dispatch control to faction %d: %v", beginTurn.Faction(), err)
		r.Close()
		return fmt.Errorf("failed to dispatch control: %v", err)
	}
	if err := beginTurn.Execute(&command.ExecContext{World: world, Faction: beginTurn.Faction()}); err != nil {
		log.Error("Failed to dispatch control to faction %d: %v", beginTurn.Faction(), err)
		r.Close()
		return fmt.Errorf("failed to dispatch control: %v", err)
	}

	s.History().Append(beginTurn)
	r.machine.Set(s.ControlState(beginTurn.Faction()))
	return nil
}

// Close tears down the current session. The state machine passes through
// Closed so listeners can flush per-session bookkeeping, then settles on
// Invalid.
func (r *Runtime) Close() {
	r.mu.Lock()
	s := r.current
	r.current = nil
	r.mu.Unlock()

	if s == nil {
		return
	}

	r.machine.Set(StateClosed)
	log.Info("Closed session %s (%s)", s.Name, s.ID)
	r.machine.Set(StateInvalid)
}
