// Package concurrency implements the shared multi-threaded task, stream,
// and channel runtime: an executor constructed once at interpreter start,
// TaskHandles with an advisory cancellation flag, bounded channels, and
// the uniform stream protocol. A weighted semaphore caps how many
// background tasks run at once, while each task still gets its own
// goroutine so Spawn returns at once even when every slot is taken; only
// TaskHandle.Await blocks the caller.
package concurrency

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/storylang/storylang/internal/runtime"
)

// defaultCapacity bounds how many background tasks may run concurrently;
// it is generous since each task is typically I/O- or scheduling-bound
// rather than CPU-bound.
const defaultCapacity = 64

// Executor is the process-wide shared runtime.
type Executor struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
	ctx context.Context
}

// New constructs an Executor with the default worker capacity.
func New() *Executor {
	return &Executor{sem: semaphore.NewWeighted(defaultCapacity), ctx: context.Background()}
}

// Spawn runs fn on a new goroutine, acquiring a semaphore slot first,
// and resolves handle with fn's result (or a Panic/TaskPanicked ErrorVal
// if fn panics). fn receives the handle's cancellation flag, not the
// handle itself, so it cannot re-Await its own result.
func (ex *Executor) Spawn(fn func(cancelled func() bool) (runtime.Value, error)) runtime.TaskHandle {
	handle := runtime.NewTaskHandle()
	ex.wg.Add(1)
	go func() {
		defer ex.wg.Done()
		_ = ex.sem.Acquire(ex.ctx, 1)
		defer ex.sem.Release(1)

		var result runtime.Value
		var rerr error
		func() {
			defer func() {
				if r := recover(); r != nil {
					// A panicked worker materializes as an ErrorVal on
					// Await rather than an error.
					result = runtime.ErrorVal{Category: string(runtime.KindPanic), Subtype: "TaskPanicked", Message: panicMessage(r)}
					rerr = nil
				}
			}()
			result, rerr = fn(handle.IsCancelled)
		}()
		handle.Resolve(result, rerr)
	}()
	return handle
}

func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("panic: %v", r)
}

// Wait blocks until every spawned task has returned. Used by the CLI
// front-end at program exit so background work is not abandoned
// mid-flight; not part of the language surface itself.
func (ex *Executor) Wait() { ex.wg.Wait() }

// WaitAll blocks until every handle resolves, returning results in
// order; the first error encountered is returned alongside.
func WaitAll(handles []runtime.TaskHandle) ([]runtime.Value, error) {
	results := make([]runtime.Value, len(handles))
	var firstErr error
	for i, h := range handles {
		v, err := h.Await()
		results[i] = v
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return results, firstErr
}

// WaitAny blocks until the first of handles resolves. Each handle is
// awaited on its own goroutine and the first result wins; the goroutines
// for the other handles keep waiting until those handles resolve.
func WaitAny(handles []runtime.TaskHandle) (int, runtime.Value, error) {
	type result struct {
		idx int
		v   runtime.Value
		err error
	}
	ch := make(chan result, len(handles))
	for i, h := range handles {
		go func(i int, h runtime.TaskHandle) {
			v, err := h.Await()
			ch <- result{i, v, err}
		}(i, h)
	}
	r := <-ch
	return r.idx, r.v, r.err
}
