package gate

import (
	"context"
	"sync"

	"github.com/stratagem-engine/stratagem/pkg/log"
	"github.com/stratagem-engine/stratagem/pkg/replay"
	"github.com/stratagem-engine/stratagem/pkg/session"
)

// Action is a user-requested operation: open a file, close the session,
// change player assignments. Actions run exactly once, either immediately
// on the calling goroutine or deferred onto a background goroutine once the
// system is no longer busy.
type Action func(ctx context.Context) error

// Gate serializes user-requested operations against automatic ones already
// in flight. Several automatic processes cannot be interrupted mid-step
// without corrupting shared game state, yet the user must be able to
// request actions at arbitrary times without the UI hanging, hence defer
// and retry rather than block or reject.
//
// The gate is strictly non-reentrant: a second TryRun while an accepted
// action is pending or executing is discarded, not queued.
type Gate struct {
	runtime *session.Runtime
	engine  *replay.Engine

	// onResume re-invokes the code that would otherwise have acted on a
	// background computation's completion, after a deferred action has run.
	onResume func(ctx context.Context)

	recheck chan struct{}

	mu                 sync.Mutex
	held               bool
	cleared            bool
	pending            Action
	generation         uint64
	resumePending      bool
	deferredCompletion Action
}

type NewGateOptions struct {
	Runtime *session.Runtime
	Engine  *replay.Engine
	// OnResume is invoked after a gated action has run, when the action
	// interrupted a computer-turn replay or deferred past an in-flight
	// computation, unless Clear was called or the session was replaced.
	OnResume func(ctx context.Context)
}

func NewGate(opts NewGateOptions) *Gate {
	g := &Gate{
		runtime:  opts.Runtime,
		engine:   opts.Engine,
		onResume: opts.OnResume,
		recheck:  make(chan struct{}, 1),
	}
	g.runtime.Machine().AddListener(func(old, new session.State) {
		g.signalRecheck()
	})
	g.runtime.Runner().OnIdle(g.signalRecheck)
	return g
}

// IsBusy reports whether an accepted action is pending or executing.
func (g *Gate) IsBusy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}

// TryRun returns false and discards action if another action is already
// pending or executing. Otherwise it returns true and action executes
// exactly once: immediately and synchronously when the system is not busy,
// or deferred until busy-ness clears.
//
// Before deferring, TryRun records the session generation so no
// session-dependent resumption happens if the session is replaced, stops a
// replay that is showing a completed computer turn so the action can run,
// and remembers an in-flight computation so its completion handling can be
// re-invoked afterwards.
func (g *Gate) TryRun(ctx context.Context, action Action) bool {
	g.mu.Lock()
	if g.held {
		g.mu.Unlock()
		return false
	}
	g.held = true
	g.cleared = false
	g.pending = nil
	g.resumePending = false
	g.deferredCompletion = nil
	g.generation = g.runtime.Generation()
	g.mu.Unlock()

	machine := g.runtime.Machine()

	if machine.State() == session.StateComputer {
		g.mu.Lock()
		g.resumePending = true
		g.mu.Unlock()
	}

	if g.engine != nil && g.engine.Active() {
		if g.engine.IsComputerTurn() {
			g.mu.Lock()
			g.resumePending = true
			g.mu.Unlock()
		}
		g.engine.Stop()
	}

	if !g.systemBusy() {
		g.execute(ctx, action)
		return true
	}

	g.mu.Lock()
	g.pending = action
	g.mu.Unlock()
	log.Debug("Action deferred until the system is no longer busy")

	go g.awaitTurn(ctx)
	return true
}

// systemBusy is true when a queued command or replay holds control, or any
// background work is outstanding.
func (g *Gate) systemBusy() bool {
	state := g.runtime.Machine().State()
	if state == session.StateCommand || state == session.StateReplay {
		return true
	}
	return g.runtime.Runner().Count() > 0
}

// awaitTurn waits for busy-ness to clear, re-checking on every state
// transition and on the runner going idle, then runs the stored action.
func (g *Gate) awaitTurn(ctx context.Context) {
	for {
		g.mu.Lock()
		action := g.pending
		g.mu.Unlock()
		if action == nil {
			return
		}

		if !g.systemBusy() {
			g.mu.Lock()
			g.pending = nil
			g.mu.Unlock()
			g.execute(ctx, action)
			return
		}

		// A replay that ignored the stop request (mid-skip) is asked again.
		if g.engine != nil && g.engine.Active() {
			g.engine.Stop()
		}

		select {
		case <-g.recheck:
		case <-ctx.Done():
			log.Debug("Discarding deferred action: %v", ctx.Err())
			g.release()
			return
		}
	}
}

// execute runs the action and then resumes whichever automatic operation
// was set aside, unless the action called Clear or the session changed.
func (g *Gate) execute(ctx context.Context, action Action) {
	if err := action(ctx); err != nil {
		log.Error("Gated action failed: %v", err)
	}

	g.mu.Lock()
	cleared := g.cleared
	resume := g.resumePending
	completion := g.deferredCompletion
	sameSession := g.runtime.Generation() == g.generation
	g.held = false
	g.pending = nil
	g.resumePending = false
	g.deferredCompletion = nil
	g.mu.Unlock()

	if cleared || !sameSession {
		return
	}
	if completion != nil {
		if err := completion(ctx); err != nil {
			log.Error("Deferred computation continuation failed: %v", err)
		}
		return
	}
	if resume && g.onResume != nil {
		g.onResume(ctx)
	}
}

// OnComputationComplete routes a background computation's completion
// continuation through the gate. If no action is pending the continuation
// runs immediately; otherwise it is remembered and invoked exactly once
// after the gate clears, unless Clear is called in the interim.
func (g *Gate) OnComputationComplete(ctx context.Context, continuation Action) {
	g.mu.Lock()
	if g.held {
		g.deferredCompletion = continuation
		g.mu.Unlock()
		log.Debug("Computation completion deferred behind a pending action")
		return
	}
	g.mu.Unlock()

	if err := continuation(ctx); err != nil {
		log.Error("Computation continuation failed: %v", err)
	}
}

// Clear unconditionally releases the gate and discards all recorded state
// without attempting resumption. It is the executing action's way of saying
// "do not resume anything", used when the action changed which faction or
// player is in control.
func (g *Gate) Clear() {
	g.mu.Lock()
	g.held = false
	g.cleared = true
	g.pending = nil
	g.resumePending = false
	g.deferredCompletion = nil
	g.mu.Unlock()
	g.signalRecheck()
}

func (g *Gate) release() {
	g.mu.Lock()
	g.held = false
	g.pending = nil
	g.resumePending = false
	g.deferredCompletion = nil
	g.mu.Unlock()
}

func (g *Gate) signalRecheck() {
	select {
	case g.recheck <- struct{}{}:
	default:
	}
}
