package compute

import (
	"context"
	"fmt"

	"github.com/stratagem-engine/stratagem/pkg/command"
	"github.com/stratagem-engine/stratagem/pkg/gate"
	"github.com/stratagem-engine/stratagem/pkg/log"
	"github.com/stratagem-engine/stratagem/pkg/replay"
	"github.com/stratagem-engine/stratagem/pkg/session"
)

// Func computes a faction's turn against a world snapshot and returns the
// full history it produced, a compatible extension of the snapshot's
// history. It runs on a background goroutine and must not touch shared
// state.
type Func func(ctx context.Context, world command.WorldState, faction int) (*command.History, error)

// ErrBackgroundFailure wraps an error that escaped a background
// computation.
type ErrBackgroundFailure struct {
	Faction int
	Cause   error
}

func (e *ErrBackgroundFailure) Error() string {
	return fmt.Sprintf("computation for faction %d failed: %v", e.Faction, e.Cause)
}

func IsBackgroundFailure(err error) bool {
	_, ok := err.(*ErrBackgroundFailure)
	return ok
}

// Driver runs background turn computations and hands their results back to
// the control loop. Completions route through the action gate so a user
// action mid-defer is never raced; failures hand the computing faction to a
// local human player.
type Driver struct {
	runtime   *session.Runtime
	gate      *gate.Gate
	engine    *replay.Engine
	compute   Func
	onMessage func(msg string)
}

type NewDriverOptions struct {
	Runtime *session.Runtime
	Gate    *gate.Gate
	Engine  *replay.Engine
	Compute Func
	// OnMessage surfaces background failures to the user.
	OnMessage func(msg string)
}

func NewDriver(opts NewDriverOptions) *Driver {
	return &Driver{
		runtime:   opts.Runtime,
		gate:      opts.Gate,
		engine:    opts.Engine,
		compute:   opts.Compute,
		onMessage: opts.OnMessage,
	}
}

// Begin starts computing the faction's turn. The session must already be
// in the Computer state. The result is consumed by the control loop only
// after the computation goroutine has fully terminated: the goroutine ends
// with a non-blocking handoff, which is why it is tracked with BeginRun
// and closed with EndRun after the handoff is queued.
func (d *Driver) Begin(ctx context.Context, faction int) error {
	if err := d.runtime.Machine().RequireState(session.StateComputer); err != nil {
		return err
	}
	s := d.runtime.Current()
	if s == nil {
		return fmt.Errorf("no session is open")
	}

	snapshot := s.World().Snapshot()
	generation := s.Generation
	runner := d.runtime.Runner()

	runner.BeginRun(func() {
		history, err := d.computeSafely(ctx, snapshot, faction)
		if invokeErr := runner.BeginInvoke(func(cctx context.Context) {
			d.handleResult(cctx, generation, faction, history, err)
		}); invokeErr != nil {
			log.Error("Failed to hand computation result to the control loop: %v", invokeErr)
		}
		runner.EndRun()
	})
	return nil
}

// computeSafely converts a panicking computation into an error so control
// is always handed back.
func (d *Driver) computeSafely(ctx context.Context, world command.WorldState, faction int) (history *command.History, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &ErrBackgroundFailure{Faction: faction, Cause: fmt.Errorf("panic: %v", rec)}
		}
	}()

	history, err = d.compute(ctx, world, faction)
	if err != nil {
		err = &ErrBackgroundFailure{Faction: faction, Cause: err}
	}
	return history, err
}

// handleResult runs on the control loop once the computation goroutine has
// terminated.
func (d *Driver) handleResult(cctx context.Context, generation uint64, faction int, history *command.History, err error) {
	s := d.runtime.Current()
	if s == nil || s.Generation != generation {
		log.Debug("Discarding computation result for a replaced session")
		return
	}

	if err != nil {
		d.report("Computation for faction %d failed: %v", faction, err)
		// A local human stands in for the faction that was computing.
		s.SetController(faction, session.ControllerHuman)
		d.runtime.Machine().Set(session.StateHuman)
		return
	}

	d.gate.OnComputationComplete(cctx, func(ctx context.Context) error {
		return d.present(ctx, history)
	})
}

// present shows the computed turn by replaying its new commands visibly.
func (d *Driver) present(ctx context.Context, history *command.History) error {
	if err := d.engine.Start(ctx, history, true); err != nil {
		return fmt.Errorf("failed to start computer turn replay: %v", err)
	}
	return nil
}

func (d *Driver) report(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Error("%s", msg)
	if d.onMessage != nil {
		d.onMessage(msg)
	}
}
