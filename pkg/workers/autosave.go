package workers

import (
	"context"
	"time"

	"github.com/stratagem-engine/stratagem/pkg/log"
	"github.com/stratagem-engine/stratagem/pkg/repositories"
	"github.com/stratagem-engine/stratagem/pkg/savegame"
	"github.com/stratagem-engine/stratagem/pkg/session"
)

type AutosaveWorker struct {
	repository      repositories.Repository
	runtime         *session.Runtime
	saveRequestChan <-chan SaveRequest
	interval        time.Duration
}

type NewAutosaveWorkerOptions struct {
	Repository      repositories.Repository
	Runtime         *session.Runtime
	SaveRequestChan <-chan SaveRequest
	Interval        time.Duration
}

// SaveRequest asks the worker for an immediate save outside the periodic
// schedule.
type SaveRequest struct {
	Reason string
}

// NewAutosaveWorker creates a new AutosaveWorker.
// The worker processes save requests and periodically saves the current
// session to the repository.
func NewAutosaveWorker(opts NewAutosaveWorkerOptions) *AutosaveWorker {
	return &AutosaveWorker{
		repository:      opts.Repository,
		runtime:         opts.Runtime,
		saveRequestChan: opts.SaveRequestChan,
		interval:        opts.Interval,
	}
}

func (w *AutosaveWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case saveRequest := <-w.saveRequestChan:
			log.Debug("Saving session on request: %s", saveRequest.Reason)
			w.save(ctx)
		case <-ticker.C:
			w.save(ctx)
		}
	}
}

func (w *AutosaveWorker) save(ctx context.Context) {
	s := w.runtime.Current()
	if s == nil {
		return
	}

	var snapshot *savegame.Snapshot
	// The snapshot is captured on the control loop so it never observes a
	// world mid-mutation. While a replay or queued command holds control the
	// live world is transient and the save is skipped.
	err := w.runtime.Runner().Invoke(ctx, func(cctx context.Context) {
		state := w.runtime.Machine().State()
		if state != session.StateHuman && state != session.StateComputer {
			log.Debug("Skipping autosave in session state %s", state)
			return
		}
		var captureErr error
		snapshot, captureErr = savegame.FromSession(s)
		if captureErr != nil {
			log.Error("Failed to capture session snapshot: %v", captureErr)
		}
	})
	if err != nil {
		log.Error("Failed to capture session snapshot: %v", err)
		return
	}
	if snapshot == nil {
		return
	}

	if err := w.repository.SaveSnapshot(ctx, snapshot); err != nil {
		log.Error("Failed to save session: %v", err)
	}
}
