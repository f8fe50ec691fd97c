// Package scheduler runs Fibers on a pool of worker goroutines, preempting
// each at time-slice boundaries.
//
// A time slice arms a timer that interrupts the Fiber; the Fiber suspends
// at its next backward jump and goes to the back of the run queue, and a
// later Dispatch on whichever worker picks it up continues the run. Only
// one worker drives a given Fiber at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/loom/journal"
	"github.com/chazu/loom/vm"
)

var log = commonlog.GetLogger("loom.scheduler")

var (
	// ErrStopped is returned for work submitted to, or left in, a stopped pool.
	ErrStopped = errors.New("scheduler stopped")

	// ErrNotStarted is returned by Submit before Start.
	ErrNotStarted = errors.New("scheduler not started")

	// ErrRunning is returned by a second Start.
	ErrRunning = errors.New("scheduler already started")
)

// Option configures a Pool.
type Option func(*Pool)

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQuantum sets the time slice.
func WithQuantum(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.quantum = d
		}
	}
}

// WithJournal records lifecycle events of every task.
func WithJournal(j *journal.Journal) Option {
	return func(p *Pool) {
		p.journal = j
	}
}

// Stats counts pool activity.
type Stats struct {
	Submitted   uint64
	Completed   uint64
	Faulted     uint64
	Abandoned   uint64
	Slices      uint64
	Suspensions uint64
	Pending     int
}

// Pool is a fixed set of workers sharing one run queue.
type Pool struct {
	rt      *vm.Runtime
	workers int
	quantum time.Duration
	journal *journal.Journal

	mu      sync.Mutex
	runq    []*Task
	running bool
	stopped bool
	wake    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	unwatch func() bool
	group   *errgroup.Group

	submitted   atomic.Uint64
	completed   atomic.Uint64
	faulted     atomic.Uint64
	abandoned   atomic.Uint64
	slices      atomic.Uint64
	suspensions atomic.Uint64
}

// New creates a stopped pool running Fibers of rt.
func New(rt *vm.Runtime, opts ...Option) *Pool {
	p := &Pool{
		rt:      rt,
		workers: 4,
		quantum: 10 * time.Millisecond,
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Runtime returns the runtime whose Fibers the pool runs.
func (p *Pool) Runtime() *vm.Runtime {
	return p.rt
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Start launches the workers. They run until Stop is called or ctx is done;
// a done ctx stops the pool as Stop would.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	if p.running {
		return ErrRunning
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.unwatch = context.AfterFunc(p.ctx, func() {
		log.Info("context done, stopping")
		if err := p.Stop(); err != nil {
			log.Warningf("stop: %v", err)
		}
	})
	g, gctx := errgroup.WithContext(p.ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			return p.work(gctx)
		})
	}
	p.group = g
	p.running = true
	log.Infof("started %d workers, quantum %s", p.workers, p.quantum)
	return nil
}

// Running reports whether the workers are up and accepting work.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running && p.ctx.Err() == nil
}

// Stop shuts the workers down, waits for in-flight slices and fails every
// task still queued with ErrStopped.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	cancel, group, unwatch := p.cancel, p.group, p.unwatch
	p.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	var err error
	if cancel != nil {
		cancel()
		err = group.Wait()
	}

	p.mu.Lock()
	pending := p.runq
	p.runq = nil
	p.running = false
	p.mu.Unlock()

	for _, t := range pending {
		p.abandon(t, ErrStopped)
	}
	log.Infof("stopped, %d tasks abandoned", len(pending))
	return err
}

// Submit queues entry to run on a fresh Fiber. ctx bounds the task: once
// it is done the task is abandoned at the next slice boundary.
func (p *Pool) Submit(ctx context.Context, entry Entry) (*Task, error) {
	t := newTask(ctx, p.rt.NewFiber(), entry)

	p.mu.Lock()
	switch {
	case p.stopped:
		p.mu.Unlock()
		t.stopNotify()
		return nil, ErrStopped
	case !p.running:
		p.mu.Unlock()
		t.stopNotify()
		return nil, ErrNotStarted
	case p.ctx.Err() != nil:
		p.mu.Unlock()
		t.stopNotify()
		return nil, ErrStopped
	}
	p.runq = append(p.runq, t)
	p.mu.Unlock()

	p.submitted.Add(1)
	p.signal()
	return t, nil
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	pending := len(p.runq)
	p.mu.Unlock()
	return Stats{
		Submitted:   p.submitted.Load(),
		Completed:   p.completed.Load(),
		Faulted:     p.faulted.Load(),
		Abandoned:   p.abandoned.Load(),
		Slices:      p.slices.Load(),
		Suspensions: p.suspensions.Load(),
		Pending:     pending,
	}
}

func (p *Pool) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pool) requeue(t *Task) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.abandon(t, ErrStopped)
		return
	}
	p.runq = append(p.runq, t)
	p.mu.Unlock()
	p.signal()
}

// next pops the head of the run queue, or returns nil.
func (p *Pool) next() *Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.runq) == 0 {
		return nil
	}
	t := p.runq[0]
	p.runq[0] = nil
	p.runq = p.runq[1:]
	if len(p.runq) > 0 {
		p.signal()
	}
	return t
}

func (p *Pool) work(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if t := p.next(); t != nil {
			p.runSlice(t)
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-p.wake:
		}
	}
}

// runSlice gives t one time slice.
func (p *Pool) runSlice(t *Task) {
	if err := t.ctx.Err(); err != nil {
		p.abandon(t, err)
		return
	}

	f := t.fiber
	f.ClearInterrupt()
	timer := time.AfterFunc(p.quantum, f.Interrupt)
	result, err := p.execute(t)
	timer.Stop()

	t.slices.Add(1)
	p.slices.Add(1)

	switch {
	case err != nil:
		p.faulted.Add(1)
		if e, encErr := journal.FaultedEvent(f.ID().String(), err); encErr == nil {
			p.record(e)
		}
		f.Abandon()
		t.finish(nil, err)

	case f.Suspended():
		p.suspensions.Add(1)
		if e, encErr := journal.SuspendedEvent(f.Snapshot()); encErr == nil {
			p.record(e)
		}
		p.requeue(t)

	default:
		p.completed.Add(1)
		p.record(journal.Event{Fiber: f.ID().String(), Kind: journal.Completed, Detail: vm.FormatValue(result)})
		t.finish(result, nil)
	}
}

// execute runs the entry or resumes the Fiber, recovering from panics in
// host entry code.
func (p *Pool) execute(t *Task) (result vm.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	if !t.started {
		t.started = true
		p.record(journal.Event{Fiber: t.fiber.ID().String(), Kind: journal.Started})
		return t.entry(t.fiber)
	}
	p.record(journal.Event{Fiber: t.fiber.ID().String(), Kind: journal.Resumed})
	return t.fiber.Dispatch()
}

func (p *Pool) abandon(t *Task, cause error) {
	t.fiber.Abandon()
	p.abandoned.Add(1)
	p.record(journal.Event{Fiber: t.fiber.ID().String(), Kind: journal.Abandoned, Detail: cause.Error()})
	t.finish(nil, cause)
}

func (p *Pool) record(e journal.Event) {
	if p.journal == nil {
		return
	}
	if err := p.journal.Record(context.Background(), e); err != nil {
		log.Warningf("journal: %v", err)
	}
}
