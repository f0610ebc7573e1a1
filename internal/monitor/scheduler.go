package monitor

import (
	"context"
	"sync"
	"time"
)

// Scheduler runs a repeating task: one immediate invocation, then one per
// interval until stopped. It replaces ad hoc timer-id bookkeeping with an
// explicit start/stop/restart contract that is testable away from any UI.
//
// Invariant: Start tears down any previous run before arming the new one, so
// at most one timer loop exists per Scheduler.
type Scheduler struct {
	mu     sync.Mutex
	runCtx context.Context
	cancel context.CancelFunc
}

func NewScheduler() *Scheduler { return &Scheduler{} }

// Start launches the repeating task. task receives a context that is canceled
// by Stop or by a subsequent Start. The first invocation fires before the
// first tick.
//
// Safe to call from any goroutine, including from within the task itself.
func (s *Scheduler) Start(interval time.Duration, task func(ctx context.Context)) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.runCtx = ctx
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		task(ctx)
		if ctx.Err() != nil {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				task(ctx)
			}
		}
	}()
}

// Stop cancels the current run, if any. Idempotent. An in-flight task
// invocation is not interrupted mid-call; it observes ctx.Err on its next
// suspension point.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		s.runCtx = nil
	}
}

// StopRun cancels the scheduler only when ctx belongs to the currently armed
// run. A task invocation from a superseded run cannot tear down a loop armed
// after it; the stale run dies on its own canceled context instead.
func (s *Scheduler) StopRun(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil && s.runCtx == ctx {
		s.cancel()
		s.cancel = nil
		s.runCtx = nil
	}
}

// Running reports whether a run is currently armed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}
