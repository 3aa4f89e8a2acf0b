package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stratagem-engine/stratagem/pkg/command"
	"github.com/stratagem-engine/stratagem/pkg/log"
	"github.com/stratagem-engine/stratagem/pkg/session"
)

const (
	// ProgressInterval throttles fast-forward progress messages.
	ProgressInterval = 500 * time.Millisecond
	// DefaultSpeed is the initial replay speed.
	DefaultSpeed = 3
)

// speedDelays maps replay speed (1-based) to the inter-command delay.
var speedDelays = []time.Duration{
	1600 * time.Millisecond,
	800 * time.Millisecond,
	400 * time.Millisecond,
	200 * time.Millisecond,
	100 * time.Millisecond,
	50 * time.Millisecond,
}

// SelectionStore exposes the presentation layer's pending site selection so
// replay can snapshot it at Start and restore it at Stop.
type SelectionStore interface {
	Selected() int
	SetSelected(site int)
}

// stepPhase is the explicit state of the step loop's show/execute split.
// Each command is first shown, then executed on a later iteration, so the
// user sees where a command originates before its effects appear.
type stepPhase int

const (
	phaseAwaiting stepPhase = iota
	phaseShowing
	phaseExecuting
	phaseDelaying
)

type skipTarget struct {
	turn    int
	faction int
}

// Engine drives step-by-step or fast-forward replay of recorded command
// history. Visible side effects are produced during Play and suppressed
// during Skip. The step loop runs on a background goroutine; all visible
// effects are marshaled back onto the control loop.
type Engine struct {
	runtime   *session.Runtime
	display   command.DisplaySink
	selection SelectionStore

	onStateChanged         func(state State)
	onFactionActivated     func(faction int)
	onMessage              func(msg string)
	onComputerTurnFinished func(ctx context.Context)

	abort        *Signal
	pauseRelease *Signal

	mu               sync.Mutex
	current          State
	requested        State
	active           bool
	sess             *session.Session
	generation       uint64
	cursor           int
	phase            stepPhase
	pending          command.Command
	target           *skipTarget
	isComputerTurn   bool
	restoreWorld     command.WorldState
	restoreState     session.State
	restoreSelection int
	speed            int
	lastProgress     time.Time
}

type NewEngineOptions struct {
	Runtime   *session.Runtime
	Display   command.DisplaySink
	Selection SelectionStore

	// OnStateChanged receives every CurrentState transition, used to update
	// transient UI indicators.
	OnStateChanged func(state State)
	// OnFactionActivated is invoked on the control loop when a command is
	// shown, so the presentation can center the acting faction.
	OnFactionActivated func(faction int)
	// OnMessage receives throttled fast-forward progress and replay error
	// reports.
	OnMessage func(msg string)
	// OnComputerTurnFinished is signaled exactly once per computer-turn
	// replay when it stops, normally or not, so control is handed to the
	// next faction exactly once.
	OnComputerTurnFinished func(ctx context.Context)
}

func NewEngine(opts NewEngineOptions) *Engine {
	return &Engine{
		runtime:                opts.Runtime,
		display:                opts.Display,
		selection:              opts.Selection,
		onStateChanged:         opts.OnStateChanged,
		onFactionActivated:     opts.OnFactionActivated,
		onMessage:              opts.OnMessage,
		onComputerTurnFinished: opts.OnComputerTurnFinished,
		abort:                  NewSignal(),
		pauseRelease:           NewSignal(),
		current:                StateStop,
		requested:              StateStop,
		cursor:                 -1,
		speed:                  DefaultSpeed,
	}
}

// CurrentState returns what the step loop is actually doing.
func (e *Engine) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// RequestedState returns what a caller last asked for.
func (e *Engine) RequestedState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requested
}

// Active reports whether a replay is in progress.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// IsComputerTurn reports whether the active replay is showing a background
// computation's turn.
func (e *Engine) IsComputerTurn() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active && e.isComputerTurn
}

// CommandIndex returns the history cursor, or -1 when no replay is active.
func (e *Engine) CommandIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

// SetSpeed sets the replay speed. Speeds are clamped to the configured
// delay table; higher is faster.
func (e *Engine) SetSpeed(speed int) {
	if speed < 1 {
		speed = 1
	}
	if speed > len(speedDelays) {
		speed = len(speedDelays)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speed = speed
}

func (e *Engine) stepDelay() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return speedDelays[e.speed-1]
}

// Start begins visible replay of the commands a background computation
// appended beyond what is currently displayed. newHistory is the computed
// history; its surplus over the session history is appended and replayed
// against the live world. The live world and session state at call time are
// recorded as the restore point that Stop reinstates; adopting the computed
// world afterwards is the computer-turn-finished continuation's business.
func (e *Engine) Start(ctx context.Context, newHistory *command.History, isComputerTurn bool) error {
	s := e.runtime.Current()
	if s == nil {
		return fmt.Errorf("no session is open")
	}

	if err := e.claim(); err != nil {
		return err
	}

	first := s.History().Len()
	if err := s.History().AddCommands(newHistory); err != nil {
		e.unclaim()
		return fmt.Errorf("failed to append computed history: %v", err)
	}
	if s.History().Len() == first {
		e.unclaim()
		return fmt.Errorf("computed history contains no new commands")
	}

	e.begin(s, first, nil, isComputerTurn, s.World().Snapshot())
	log.Debug("Replay started at command %d of %d (computer turn: %t)", first, s.History().Len(), isComputerTurn)
	e.launch(ctx)
	return nil
}

// StartAt begins replay of already-recorded history from the beginning,
// optionally fast-forwarding to the given turn and faction before becoming
// interactive. A negative turn starts interactive replay without skipping;
// the caller is expected to have determined a target externally when one is
// wanted.
func (e *Engine) StartAt(ctx context.Context, turn, faction int) error {
	s := e.runtime.Current()
	if s == nil {
		return fmt.Errorf("no session is open")
	}
	if turn > s.World().Turn() {
		return fmt.Errorf("requested turn %d exceeds current turn %d", turn, s.World().Turn())
	}

	if err := e.claim(); err != nil {
		return err
	}

	var target *skipTarget
	if turn >= 0 {
		target = &skipTarget{turn: turn, faction: faction}
	}

	restore := s.World()
	s.SetWorld(s.InitialWorld().Snapshot())
	e.begin(s, 0, target, false, restore)
	log.Debug("Replay of recorded history started (target turn %d, faction %d)", turn, faction)
	e.launch(ctx)
	return nil
}

// claim atomically marks a replay in progress, so two concurrent Start
// calls can never both pass the active check and both append history.
func (e *Engine) claim() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		return fmt.Errorf("replay is already in progress")
	}
	e.active = true
	return nil
}

// unclaim releases a claim whose Start failed before launching the loop.
func (e *Engine) unclaim() {
	e.mu.Lock()
	e.active = false
	e.mu.Unlock()
}

// begin records the restore point and replay bookkeeping under lock.
func (e *Engine) begin(s *session.Session, first int, target *skipTarget, isComputerTurn bool, restoreWorld command.WorldState) {
	restoreState := e.runtime.Machine().State()
	restoreSelection := 0
	if e.selection != nil {
		restoreSelection = e.selection.Selected()
	}

	e.mu.Lock()
	e.active = true
	e.sess = s
	e.generation = s.Generation
	e.cursor = first
	e.phase = phaseAwaiting
	e.pending = nil
	e.target = target
	e.isComputerTurn = isComputerTurn
	e.restoreWorld = restoreWorld
	e.restoreState = restoreState
	e.restoreSelection = restoreSelection
	e.requested = StatePlay
	if target != nil {
		e.requested = StateSkip
	}
	e.mu.Unlock()

	e.abort.Reset()
	e.pauseRelease.Reset()
	e.runtime.Machine().Set(session.StateReplay)
	e.setCurrent(StatePlay)
}

// launch runs the step loop on a background goroutine. BeginRun is used
// instead of Run because the loop ends with a non-blocking handoff of the
// stop sequence to the control loop; a blocking handoff would serialize the
// loop goroutine against the control loop for no benefit.
func (e *Engine) launch(ctx context.Context) {
	runner := e.runtime.Runner()
	runner.BeginRun(func() {
		e.playCommands(ctx)
		if err := runner.BeginInvoke(func(cctx context.Context) {
			e.finish(cctx)
		}); err != nil {
			log.Error("Failed to marshal replay stop onto the control loop: %v", err)
		}
		runner.EndRun()
	})
}

// RequestState records what the caller wants the step loop to do next. It
// is a no-op if state already equals the current or requested state, or if
// the engine is skipping or stopped: Skip runs to completion or decides to
// stop internally, and Stop requires a fresh Start. Unless the transition
// is into Pause, the pause gate is released and the abort signal fired so
// the loop re-evaluates promptly instead of waiting out its delay.
func (e *Engine) RequestState(state State) {
	e.mu.Lock()
	if state == e.current || state == e.requested {
		e.mu.Unlock()
		return
	}
	if e.current == StateSkip || e.current == StateStop {
		e.mu.Unlock()
		return
	}
	e.requested = state
	if state != StatePause {
		e.pauseRelease.Set()
		e.abort.Set()
	}
	e.mu.Unlock()
	log.Debug("Replay state %s requested", state)
}

// Stop cooperatively stops an active replay. The request takes effect at
// the next loop-top check, never mid-command; restoration happens on the
// control loop once the step loop exits.
func (e *Engine) Stop() {
	e.RequestState(StateStop)
}

// playCommands is the step loop. It runs on a background goroutine and
// marshals every visible effect onto the control loop.
func (e *Engine) playCommands(ctx context.Context) {
	s := e.session()
	if s == nil {
		return
	}
	history := s.History()

	for {
		if ctx.Err() != nil {
			return
		}

		e.mu.Lock()
		if e.current != StatePlay && e.current != StatePause {
			e.mu.Unlock()
			return
		}
		if e.phase == phaseAwaiting && e.cursor >= history.Len() {
			e.mu.Unlock()
			return
		}
		pauseWanted := e.requested == StatePause
		if pauseWanted {
			e.pauseRelease.Reset()
		}
		e.mu.Unlock()

		if pauseWanted {
			e.setCurrent(StatePause)
			select {
			case <-e.pauseRelease.Done():
			case <-ctx.Done():
				return
			}
		}

		e.mu.Lock()
		requested := e.requested
		target := e.target
		e.target = nil
		// Reset in the same critical section that consumes the request; a
		// concurrent RequestState is either observed now or leaves the
		// abort signal set for the next wait.
		e.abort.Reset()
		e.mu.Unlock()

		switch requested {
		case StateStop:
			return
		case StateSkip:
			e.setCurrent(StateSkip)
			if target == nil {
				world := s.World()
				target = &skipTarget{turn: world.Turn(), faction: world.ActiveFaction() + 1}
			}
			reached, err := e.SilentReplay(ctx, target.turn, target.faction)
			if err != nil {
				e.report("Replay aborted: %v", err)
				return
			}
			if !reached {
				return
			}
			e.mu.Lock()
			e.requested = StatePlay
			e.mu.Unlock()
			e.setCurrent(StatePlay)
			continue
		case StatePlay:
			e.setCurrent(StatePlay)
		}

		wait, done, err := e.step(ctx, s, history)
		if err != nil {
			e.report("Replay aborted: %v", err)
			return
		}
		if done {
			return
		}
		if wait {
			e.setPhase(phaseDelaying)
			e.waitDelay(ctx)
		}
	}
}

// step dispatches one phase of the show/execute cycle and reports whether
// the loop should delay afterwards.
func (e *Engine) step(ctx context.Context, s *session.Session, history *command.History) (wait bool, done bool, err error) {
	e.mu.Lock()
	phase := e.phase
	cursor := e.cursor
	pending := e.pending
	e.mu.Unlock()

	switch phase {
	case phaseAwaiting, phaseDelaying:
		if cursor >= history.Len() {
			return false, true, nil
		}
		if pending == nil {
			e.mu.Lock()
			e.pending = history.At(cursor)
			e.phase = phaseShowing
			e.mu.Unlock()
			return false, false, nil
		}
		e.setPhase(phaseExecuting)
		return false, false, nil

	case phaseShowing:
		cmd := pending
		invokeErr := e.runtime.Runner().Invoke(ctx, func(cctx context.Context) {
			if e.display != nil {
				e.display.ShowCommand(cmd)
			}
			if e.onFactionActivated != nil {
				e.onFactionActivated(cmd.Faction())
			}
		})
		if invokeErr != nil {
			return false, false, fmt.Errorf("failed to show command: %v", invokeErr)
		}
		e.setPhase(phaseExecuting)
		return true, false, nil

	case phaseExecuting:
		cmd := pending
		world := s.World()
		if err := cmd.Validate(world); err != nil {
			return false, false, err
		}
		ec := &command.ExecContext{
			World:   world,
			Faction: cmd.Faction(),
			Display: e.display,
		}
		if err := cmd.Execute(ec); err != nil {
			return false, false, err
		}
		if invokeErr := e.runtime.Runner().Invoke(ctx, func(cctx context.Context) {
			if e.display != nil {
				e.display.Refresh()
			}
		}); invokeErr != nil {
			return false, false, fmt.Errorf("failed to refresh display: %v", invokeErr)
		}

		e.mu.Lock()
		e.cursor++
		e.pending = nil
		e.phase = phaseAwaiting
		e.mu.Unlock()
		return true, false, nil
	}

	return false, false, nil
}

// SilentReplay executes commands from the current cursor without visible
// side effects until either the cursor reaches the command one before the
// last recorded one, or a turn-ending command leaves the world at or beyond
// the target turn and faction. A target faction beyond the number of
// surviving factions is treated as "any faction is acceptable". It reports
// whether a resumable point was reached. Valid only while a replay is
// active; callers own the Skip state transition.
func (e *Engine) SilentReplay(ctx context.Context, targetTurn, targetFaction int) (bool, error) {
	s := e.session()
	if s == nil {
		return false, fmt.Errorf("no replay is active")
	}
	history := s.History()
	world := s.World()

	if e.targetReached(world, targetTurn, targetFaction) {
		return true, nil
	}

	for {
		e.mu.Lock()
		cursor := e.cursor
		e.pending = nil
		e.phase = phaseAwaiting
		e.mu.Unlock()

		if cursor >= history.Len()-1 {
			return false, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		cmd := history.At(cursor)
		if err := cmd.Validate(world); err != nil {
			return false, err
		}
		ec := &command.ExecContext{
			World:   world,
			Faction: cmd.Faction(),
		}
		if err := cmd.Execute(ec); err != nil {
			return false, err
		}

		e.mu.Lock()
		e.cursor = cursor + 1
		e.mu.Unlock()

		e.reportProgress(cursor+1, history.Len())

		if cmd.EndsTurn() && e.targetReached(world, targetTurn, targetFaction) {
			return true, nil
		}
	}
}

// targetReached checks the fast-forward termination condition against the
// world's resulting turn and active faction.
func (e *Engine) targetReached(world command.WorldState, targetTurn, targetFaction int) bool {
	if world.Turn() < targetTurn {
		return false
	}
	if world.ActiveFaction() >= targetFaction {
		return true
	}
	surviving := 0
	for i := 0; i < world.FactionCount(); i++ {
		if world.FactionAlive(i) {
			surviving++
		}
	}
	return targetFaction >= surviving
}

// finish restores the restore point and resets replay bookkeeping. It runs
// on the control loop.
func (e *Engine) finish(cctx context.Context) {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return
	}
	e.active = false
	s := e.sess
	generation := e.generation
	restoreWorld := e.restoreWorld
	restoreState := e.restoreState
	restoreSelection := e.restoreSelection
	isComputerTurn := e.isComputerTurn
	e.sess = nil
	e.cursor = -1
	e.pending = nil
	e.phase = phaseAwaiting
	e.target = nil
	e.isComputerTurn = false
	e.restoreWorld = nil
	e.requested = StateStop
	e.mu.Unlock()

	sameSession := e.runtime.Current() == s && e.runtime.Generation() == generation
	if sameSession {
		s.SetWorld(restoreWorld)
		if e.selection != nil {
			e.selection.SetSelected(restoreSelection)
		}
	}

	e.setCurrent(StateStop)
	if sameSession {
		e.runtime.Machine().Set(restoreState)
	}
	log.Debug("Replay stopped")

	if isComputerTurn && e.onComputerTurnFinished != nil {
		e.onComputerTurnFinished(cctx)
	}
}

func (e *Engine) session() *session.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess
}

func (e *Engine) setPhase(phase stepPhase) {
	e.mu.Lock()
	e.phase = phase
	e.mu.Unlock()
}

// setCurrent updates CurrentState and fires the state-changed notification
// when the value actually changed.
func (e *Engine) setCurrent(state State) {
	e.mu.Lock()
	changed := e.current != state
	e.current = state
	e.mu.Unlock()
	if changed && e.onStateChanged != nil {
		e.onStateChanged(state)
	}
}

// waitDelay waits out the per-speed delay, cut short by the abort signal.
func (e *Engine) waitDelay(ctx context.Context) {
	select {
	case <-time.After(e.stepDelay()):
	case <-e.abort.Done():
	case <-ctx.Done():
	}
}

func (e *Engine) report(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Error("%s", msg)
	if e.onMessage != nil {
		e.onMessage(msg)
	}
}

// reportProgress surfaces a running counter during fast-forward, at most
// once per ProgressInterval.
func (e *Engine) reportProgress(done, total int) {
	if e.onMessage == nil {
		return
	}
	e.mu.Lock()
	now := time.Now()
	if now.Sub(e.lastProgress) < ProgressInterval {
		e.mu.Unlock()
		return
	}
	e.lastProgress = now
	e.mu.Unlock()
	e.onMessage(fmt.Sprintf("Replaying commands... %d/%d", done, total))
}
