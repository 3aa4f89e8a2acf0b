package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stratagem-engine/stratagem/pkg/dispatch"
	"github.com/stratagem-engine/stratagem/pkg/game"
	"github.com/stratagem-engine/stratagem/pkg/repositories"
	"github.com/stratagem-engine/stratagem/pkg/savegame"
	"github.com/stratagem-engine/stratagem/pkg/session"
)

const waitTimeout = 10 * time.Second

type recordingRepository struct {
	mu    sync.Mutex
	saved []*savegame.Snapshot
	ch    chan struct{}
}

func newRecordingRepository() *recordingRepository {
	return &recordingRepository{
		ch: make(chan struct{}, 16),
	}
}

func (r *recordingRepository) Close(ctx context.Context) error { return nil }

func (r *recordingRepository) SaveSnapshot(ctx context.Context, snapshot *savegame.Snapshot) error {
	r.mu.Lock()
	r.saved = append(r.saved, snapshot)
	r.mu.Unlock()
	select {
	case r.ch <- struct{}{}:
	default:
	}
	return nil
}

func (r *recordingRepository) LoadSnapshot(ctx context.Context, sessionID uuid.UUID) (*savegame.Snapshot, error) {
	return nil, &repositories.ErrNotFound{}
}

func (r *recordingRepository) ListSaves(ctx context.Context) ([]repositories.SaveSummary, error) {
	return nil, nil
}

func (r *recordingRepository) DeleteSave(ctx context.Context, sessionID uuid.UUID) error {
	return nil
}

func (r *recordingRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func newWorkerFixture(t *testing.T) (*session.Runtime, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	runner := dispatch.NewRunner(dispatch.NewRunnerOptions{})
	runtime := session.NewRuntime(session.NewRuntimeOptions{
		Runner: runner,
	})
	go runner.RunControlLoop(ctx)
	return runtime, ctx
}

func openWorkerSession(runtime *session.Runtime) *session.Session {
	world := game.NewWorld(game.Faction{Name: "red", Alive: true})
	return runtime.Open(session.OpenSessionOptions{Name: "campaign", World: world})
}

func TestAutosaveWorker_SavesPeriodically(t *testing.T) {
	runtime, ctx := newWorkerFixture(t)
	s := openWorkerSession(runtime)
	repo := newRecordingRepository()

	worker := NewAutosaveWorker(NewAutosaveWorkerOptions{
		Repository:      repo,
		Runtime:         runtime,
		SaveRequestChan: make(chan SaveRequest),
		Interval:        20 * time.Millisecond,
	})
	go worker.Start(ctx)

	select {
	case <-repo.ch:
	case <-time.After(waitTimeout):
		t.Fatal("worker never saved")
	}

	repo.mu.Lock()
	snapshot := repo.saved[0]
	repo.mu.Unlock()
	assert.Equal(t, s.ID, snapshot.SessionID)
	assert.Equal(t, "campaign", snapshot.Name)
}

func TestAutosaveWorker_SavesOnRequest(t *testing.T) {
	runtime, ctx := newWorkerFixture(t)
	openWorkerSession(runtime)
	repo := newRecordingRepository()

	requests := make(chan SaveRequest)
	worker := NewAutosaveWorker(NewAutosaveWorkerOptions{
		Repository:      repo,
		Runtime:         runtime,
		SaveRequestChan: requests,
		Interval:        time.Hour,
	})
	go worker.Start(ctx)

	requests <- SaveRequest{Reason: "before quitting"}

	select {
	case <-repo.ch:
	case <-time.After(waitTimeout):
		t.Fatal("worker never saved")
	}
	require.Equal(t, 1, repo.count())
}

func TestAutosaveWorker_SkipsTransientStates(t *testing.T) {
	runtime, ctx := newWorkerFixture(t)
	openWorkerSession(runtime)
	runtime.Machine().Set(session.StateReplay)
	repo := newRecordingRepository()

	requests := make(chan SaveRequest)
	worker := NewAutosaveWorker(NewAutosaveWorkerOptions{
		Repository:      repo,
		Runtime:         runtime,
		SaveRequestChan: requests,
		Interval:        time.Hour,
	})
	go worker.Start(ctx)

	requests <- SaveRequest{Reason: "mid-replay"}

	select {
	case <-repo.ch:
		t.Fatal("saved while a replay held control")
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, 0, repo.count())
}

func TestAutosaveWorker_NoSessionIsNoop(t *testing.T) {
	runtime, ctx := newWorkerFixture(t)
	repo := newRecordingRepository()

	requests := make(chan SaveRequest)
	worker := NewAutosaveWorker(NewAutosaveWorkerOptions{
		Repository:      repo,
		Runtime:         runtime,
		SaveRequestChan: requests,
		Interval:        time.Hour,
	})
	go worker.Start(ctx)

	requests <- SaveRequest{Reason: "no session"}

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, repo.count())
}
