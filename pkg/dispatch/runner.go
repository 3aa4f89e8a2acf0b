package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/stratagem-engine/stratagem/pkg/log"
	"github.com/stratagem-engine/stratagem/pkg/queue"
)

const (
	// DefaultInboxSize is the capacity of the control-loop invocation inbox.
	DefaultInboxSize = 1024
)

// Action is a unit of work marshaled onto the control loop. The context it
// receives is the control context, so nested Invoke calls execute inline.
type Action func(ctx context.Context)

// invocation is a queued control-loop action. done is nil for BeginInvoke.
type invocation struct {
	action Action
	done   chan struct{}
}

// Runner moves work onto background goroutines and marshals results back
// onto a single control loop. It tracks the number of outstanding background
// operations so callers can use "no work in flight" as a barrier condition.
type Runner struct {
	inbox queue.Queue
	wake  chan struct{}

	mu        sync.Mutex
	count     int
	idleHooks []func()
}

type NewRunnerOptions struct {
	InboxSize int
}

func NewRunner(opts NewRunnerOptions) *Runner {
	inboxSize := opts.InboxSize
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	return &Runner{
		inbox: queue.NewInMemoryQueue(inboxSize),
		wake:  make(chan struct{}, 1),
	}
}

// Run submits work to a background goroutine. The outstanding count is
// incremented before the goroutine starts and decremented when work returns,
// unconditionally, even if work panics.
func (r *Runner) Run(work func()) {
	r.begin()
	go func() {
		defer r.end()
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("Recovered from panic in background task: %v", rec)
			}
		}()
		work()
	}()
}

// BeginRun submits work to a background goroutine without auto-decrementing
// the outstanding count. work must call EndRun itself, typically after a
// non-blocking handoff to the control loop via BeginInvoke. Using Run would
// force the handoff to block just to keep the count accurate.
func (r *Runner) BeginRun(work func()) {
	r.begin()
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("Recovered from panic in background task: %v", rec)
			}
		}()
		work()
	}()
}

// EndRun decrements the outstanding count for a task started with BeginRun.
func (r *Runner) EndRun() {
	r.end()
}

// Count returns the number of Run/BeginRun calls that have not yet been
// matched by their completion or EndRun.
func (r *Runner) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// OnIdle registers a hook invoked each time the outstanding count
// transitions to zero. Hooks run on the goroutine that completed the last
// operation.
func (r *Runner) OnIdle(hook func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idleHooks = append(r.idleHooks, hook)
}

func (r *Runner) begin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
}

func (r *Runner) end() {
	r.mu.Lock()
	if r.count == 0 {
		r.mu.Unlock()
		log.Error("Unbalanced EndRun: outstanding count is already zero")
		return
	}
	r.count--
	var hooks []func()
	if r.count == 0 {
		hooks = append(hooks, r.idleHooks...)
	}
	r.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
}

// Invoke marshals action onto the control loop and blocks until it has
// completed. If called from the control loop itself, action executes inline.
// If ctx is cancelled while waiting, Invoke returns the context error; the
// action may still run later when the control loop drains its inbox.
//
// Never call BeginInvoke from inside work submitted via Run when the caller
// needs Count to reach zero before the marshaled action runs; BeginInvoke
// returns before its target executes, so use Invoke there instead.
func (r *Runner) Invoke(ctx context.Context, action Action) error {
	if IsControlContext(ctx) {
		action(ctx)
		return nil
	}

	inv := &invocation{
		action: action,
		done:   make(chan struct{}),
	}
	if err := r.enqueue(inv); err != nil {
		return fmt.Errorf("failed to enqueue invocation: %v", err)
	}

	select {
	case <-inv.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BeginInvoke marshals action onto the control loop without blocking.
func (r *Runner) BeginInvoke(action Action) error {
	inv := &invocation{
		action: action,
	}
	if err := r.enqueue(inv); err != nil {
		return fmt.Errorf("failed to enqueue invocation: %v", err)
	}
	return nil
}

func (r *Runner) enqueue(inv *invocation) error {
	if err := r.inbox.Enqueue(inv); err != nil {
		return err
	}
	select {
	case r.wake <- struct{}{}:
	default:
	}
	return nil
}

// RunControlLoop runs the control loop until ctx is cancelled. Exactly one
// goroutine may run the control loop at a time; it owns all marshaled
// actions and all state those actions mutate.
func (r *Runner) RunControlLoop(ctx context.Context) {
	cctx := withControlContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
			r.drainInbox(cctx)
		}
	}
}

// drainInbox executes all pending invocations on the control goroutine.
func (r *Runner) drainInbox(cctx context.Context) {
	pending, err := r.inbox.ReadAllMessages()
	if err != nil {
		log.Error("Failed to read pending invocations: %v", err)
		return
	}
	for _, item := range pending {
		inv, ok := item.(*invocation)
		if !ok {
			log.Error("Failed to cast inbox item to invocation")
			continue
		}
		inv.action(cctx)
		if inv.done != nil {
			close(inv.done)
		}
	}
}
