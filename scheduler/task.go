package scheduler

import (
	"context"
	"sync/atomic"

	"github.com/chazu/loom/vm"
)

// Entry makes a Fiber's first dispatch. It runs on a worker goroutine and
// usually calls Fiber.Call or Fiber.HostCall once. Returning while the
// Fiber is suspended hands the rest of the run to the scheduler.
type Entry func(f *vm.Fiber) (vm.Value, error)

// Call returns an Entry invoking m on receiver.
func Call(m *vm.CompiledMethod, receiver vm.Value, args ...vm.Value) Entry {
	return func(f *vm.Fiber) (vm.Value, error) {
		return f.Call(m, receiver, args...)
	}
}

// Send returns an Entry dispatching name to target.
func Send(target vm.Value, name string, args ...vm.Value) Entry {
	return func(f *vm.Fiber) (vm.Value, error) {
		return f.HostCall(target, name, args...)
	}
}

// Task is one submitted Fiber run.
type Task struct {
	fiber *vm.Fiber
	entry Entry
	ctx   context.Context

	started    bool
	slices     atomic.Int64
	stopNotify func() bool

	done   chan struct{}
	result vm.Value
	err    error
}

func newTask(ctx context.Context, f *vm.Fiber, entry Entry) *Task {
	t := &Task{
		fiber: f,
		entry: entry,
		ctx:   ctx,
		done:  make(chan struct{}),
	}
	// Cancellation cuts the current slice short
	t.stopNotify = context.AfterFunc(ctx, f.Interrupt)
	return t
}

// Fiber returns the Fiber running the task. It must not be driven while
// the task is pending.
func (t *Task) Fiber() *vm.Fiber {
	return t.fiber
}

// Slices returns how many time slices the task has run so far.
func (t *Task) Slices() int {
	return int(t.slices.Load())
}

// Done is closed when the task completes, faults or is abandoned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (vm.Value, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Task) finish(result vm.Value, err error) {
	t.stopNotify()
	t.result = result
	t.err = err
	close(t.done)
}
