package ioengine

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/cuemby/warren/pkg/log"
)

// Engine is the process-wide I/O core. A single Engine is normally shared
// across the scheduler, cluster transport and notification engine so that
// CPU-bound sections admitted by one subsystem are throttled against the
// others rather than each keeping its own private limit.
type Engine struct {
	cpuSem chan struct{}

	wg     sync.WaitGroup
	mu     sync.Mutex
	tasks  map[string]int
}

// New creates an Engine whose CPU-bound admission semaphore holds at most
// concurrency slots. concurrency <= 0 defaults to runtime.NumCPU().
func New(concurrency int) *Engine {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Engine{
		cpuSem: make(chan struct{}, concurrency),
		tasks:  make(map[string]int),
	}
}

// CPUBoundWork is a scope guard acquired before running CPU-bound work
// (parsing check output, evaluating thresholds, rendering templates) on an
// I/O goroutine. It blocks until a slot is free or ctx is done, mirroring
// CpuBoundWork's semaphore acquire in the constructor.
type CPUBoundWork struct {
	engine *Engine
	done   bool
}

// CPUBound blocks until a CPU-bound admission slot is available (or ctx is
// canceled) and returns a guard whose Done releases it. Callers must call
// Done exactly once; a deferred Done that is never reached leaks a slot.
func (e *Engine) CPUBound(ctx context.Context) (*CPUBoundWork, error) {
	select {
	case e.cpuSem <- struct{}{}:
		return &CPUBoundWork{engine: e}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done releases the admission slot. Safe to call more than once.
func (w *CPUBoundWork) Done() {
	if w.done {
		return
	}
	w.done = true
	<-w.engine.cpuSem
}

// Spawn launches fn in a new goroutine tracked by the engine's shutdown
// wait group, recovering and logging any panic instead of crashing the
// process — the same "one bad check plugin parse must not take down the
// daemon" contract the original's io_service exception handler enforces.
func (e *Engine) Spawn(name string, fn func(ctx context.Context)) {
	e.mu.Lock()
	e.tasks[name]++
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			e.tasks[name]--
			e.mu.Unlock()
			if r := recover(); r != nil {
				log.WithComponent("ioengine").Error().
					Str("task", name).
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("recovered panic in spawned task")
			}
		}()
		fn(context.Background())
	}()
}

// ActiveTasks returns the number of currently running goroutines spawned
// under the given name, for diagnostics and tests.
func (e *Engine) ActiveTasks(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tasks[name]
}

// Shutdown waits for all spawned tasks to finish or for ctx to expire,
// whichever comes first.
func (e *Engine) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ioengine shutdown: %w", ctx.Err())
	}
}
