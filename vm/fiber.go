package vm

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Fiber: one logical thread of script execution
// ---------------------------------------------------------------------------

// framePointer is what prepareCall saves and postCall restores: the
// caller's base in the locals array and the size of its local window.
type framePointer struct {
	base   int
	window int
}

// Fiber owns the mutable state of one logical script thread: a
// fixed-capacity frame-pointer stack, a flat locals array addressed by
// frame base + local index, a growable operand stack and the suspension
// queue.
//
// A Fiber must only be driven by one goroutine at a time. The interrupt
// flag is the one field that may be touched from anywhere.
type Fiber struct {
	id uuid.UUID
	rt *Runtime

	frames    []framePointer
	maxFrames int

	locals    []Value
	maxLocals int
	base      int // current frame's offset into locals
	window    int // current frame's local window size

	stack []Value // operand stack

	queue []Suspension // resume points, innermost first

	interrupt atomic.Bool

	active    int // dispatch entries in progress on this Fiber
	hostDepth int // host methods in progress on this Fiber

	stats FiberStats
}

// FiberStats counts what a Fiber has done since it was created.
type FiberStats struct {
	Prepares    uint64 // frames pushed (calls and re-entries)
	PostCalls   uint64 // frames popped
	Calls       uint64 // compiled method invocations
	HostCalls   uint64 // host method invocations
	Suspensions uint64 // dispatches that ended suspended
	Resumes     uint64 // Dispatch calls that resumed a suspension
	MaxDepth    int    // deepest frame-pointer stack observed
}

var (
	errFrameOverflow  = errors.New("frame-pointer stack exhausted")
	errStackUnderflow = errors.New("operand stack underflow")
)

// NewFiber creates an idle Fiber bound to rt.
func (rt *Runtime) NewFiber() *Fiber {
	return &Fiber{
		id:        uuid.New(),
		rt:        rt,
		frames:    make([]framePointer, 0, rt.opts.MaxFrames),
		maxFrames: rt.opts.MaxFrames,
		locals:    make([]Value, rt.opts.InitialLocals),
		maxLocals: rt.opts.MaxLocals,
		stack:     make([]Value, 0, 64),
	}
}

// ID returns the Fiber's identity.
func (f *Fiber) ID() uuid.UUID {
	return f.id
}

// Runtime returns the runtime the Fiber belongs to.
func (f *Fiber) Runtime() *Runtime {
	return f.rt
}

// Stats returns a copy of the Fiber's counters.
func (f *Fiber) Stats() FiberStats {
	return f.stats
}

// FrameDepth returns the number of frames currently pushed.
func (f *Fiber) FrameDepth() int {
	return len(f.frames)
}

// StackDepth returns the operand stack height.
func (f *Fiber) StackDepth() int {
	return len(f.stack)
}

// ---------------------------------------------------------------------------
// Frames and locals
// ---------------------------------------------------------------------------

// enterFrame pushes the current frame pointer and advances the base past
// the caller's window, making room for need slots.
func (f *Fiber) enterFrame(callerWindow, need int) error {
	if len(f.frames) >= f.maxFrames {
		return fmt.Errorf("%w: depth %d", errFrameOverflow, f.maxFrames)
	}
	newBase := f.base + callerWindow
	if err := f.ensureLocals(newBase + need); err != nil {
		return err
	}
	f.frames = append(f.frames, framePointer{base: f.base, window: f.window})
	f.base = newBase
	f.window = need
	f.stats.Prepares++
	if len(f.frames) > f.stats.MaxDepth {
		f.stats.MaxDepth = len(f.frames)
	}
	return nil
}

// prepareCall pushes a frame after the caller's window and pops argCount
// operands into its first slots, the deepest operand landing in slot 0.
func (f *Fiber) prepareCall(callerWindow, argCount int) error {
	if len(f.stack) < argCount {
		panic(errStackUnderflow)
	}
	if err := f.enterFrame(callerWindow, argCount); err != nil {
		return err
	}
	for i := argCount - 1; i >= 0; i-- {
		f.locals[f.base+i] = f.pop()
	}
	return nil
}

// postCall pops the frame-pointer stack, restoring the caller's frame.
func (f *Fiber) postCall() {
	fp := f.frames[len(f.frames)-1]
	f.frames = f.frames[:len(f.frames)-1]
	f.base = fp.base
	f.window = fp.window
	f.stats.PostCalls++
}

// ensureLocals grows the locals array by doubling until it holds n slots.
func (f *Fiber) ensureLocals(n int) error {
	if n <= len(f.locals) {
		return nil
	}
	if n > f.maxLocals {
		return fmt.Errorf("locals exhausted: need %d slots, limit %d", n, f.maxLocals)
	}
	size := len(f.locals)
	if size == 0 {
		size = 1
	}
	for size < n {
		size *= 2
	}
	if size > f.maxLocals {
		size = f.maxLocals
	}
	grown := make([]Value, size)
	copy(grown, f.locals)
	f.locals = grown
	return nil
}

// getLocal reads a slot of the current frame. Indices are trusted.
func (f *Fiber) getLocal(index int) Value {
	return f.locals[f.base+index]
}

// setLocal writes a slot of the current frame. Indices are trusted.
func (f *Fiber) setLocal(index int, v Value) {
	f.locals[f.base+index] = v
}

// ---------------------------------------------------------------------------
// Operand stack
// ---------------------------------------------------------------------------

func (f *Fiber) push(v Value) {
	f.stack = append(f.stack, v)
}

func (f *Fiber) pop() Value {
	n := len(f.stack)
	if n == 0 {
		panic(errStackUnderflow)
	}
	v := f.stack[n-1]
	f.stack[n-1] = nil
	f.stack = f.stack[:n-1]
	return v
}

func (f *Fiber) top() Value {
	return f.peek(0)
}

// peek returns the value depth entries below the top.
func (f *Fiber) peek(depth int) Value {
	n := len(f.stack)
	if depth >= n {
		panic(errStackUnderflow)
	}
	return f.stack[n-1-depth]
}

// popN pops n values and returns them in push order.
func (f *Fiber) popN(n int) []Value {
	sp := len(f.stack)
	if n > sp {
		panic(errStackUnderflow)
	}
	vals := make([]Value, n)
	copy(vals, f.stack[sp-n:])
	clear(f.stack[sp-n:])
	f.stack = f.stack[:sp-n]
	return vals
}

// ---------------------------------------------------------------------------
// Interrupts
// ---------------------------------------------------------------------------

// Interrupt asks the Fiber to suspend at its next safe point. It may be
// called from any goroutine.
func (f *Fiber) Interrupt() {
	f.interrupt.Store(true)
}

// Interrupted reports whether an interrupt is pending.
func (f *Fiber) Interrupted() bool {
	return f.interrupt.Load()
}

// ClearInterrupt withdraws a pending interrupt request.
func (f *Fiber) ClearInterrupt() {
	f.interrupt.Store(false)
}

// checkpoint consumes a pending interrupt. Inside a host method the flag is
// left set so the interpreter that owns the host call honors it instead.
func (f *Fiber) checkpoint() bool {
	if f.hostDepth > 0 {
		return false
	}
	return f.interrupt.Load() && f.interrupt.Swap(false)
}

// ---------------------------------------------------------------------------
// Host surface
// ---------------------------------------------------------------------------

// fiberMark records the state to return to when an entry point fails.
type fiberMark struct {
	frames int
	base   int
	window int
	sp     int
}

func (f *Fiber) mark() fiberMark {
	return fiberMark{frames: len(f.frames), base: f.base, window: f.window, sp: len(f.stack)}
}

func (f *Fiber) restore(m fiberMark) {
	if len(f.frames) > m.frames {
		f.frames = f.frames[:m.frames]
	}
	f.base = m.base
	f.window = m.window
	if len(f.stack) > m.sp {
		clear(f.stack[m.sp:])
		f.stack = f.stack[:m.sp]
	}
}

// checkEntry rejects entry while suspension records are pending, or while
// the Fiber is dispatching outside one of its own host methods.
func (f *Fiber) checkEntry(what string) error {
	if len(f.queue) > 0 {
		return &Fault{Kind: KindBusy, IP: -1,
			Message: fmt.Sprintf("%s: fiber %s is suspended; Dispatch or Abandon it first", what, f.id)}
	}
	if f.active > 0 && f.hostDepth == 0 {
		return &Fault{Kind: KindBusy, IP: -1,
			Message: fmt.Sprintf("%s: fiber %s is already dispatching", what, f.id)}
	}
	return nil
}

// enter runs body as one dispatch entry and collects its outcome. The
// result of a completed body is the top of the operand stack. A fault
// restores the Fiber to its state at entry; at the outermost level it also
// drops any suspension records.
func (f *Fiber) enter(body func() (outcome, error)) (result Value, err error) {
	nested := f.active > 0
	m := f.mark()
	f.active++
	defer func() {
		f.active--
		if r := recover(); r != nil {
			f.restore(m)
			if !nested {
				f.queue = f.queue[:0]
				f.hostDepth = 0
			}
			result = nil
			err = corruptFault(r)
			log.Errorf("fiber %s: %v", f.id, err)
		}
	}()

	out, err := body()
	if err != nil {
		f.restore(m)
		if !nested {
			f.queue = f.queue[:0]
		}
		log.Debugf("fiber %s: %v", f.id, err)
		return nil, err
	}
	if out == suspended {
		f.stats.Suspensions++
		log.Debugf("fiber %s suspended with %d resume points", f.id, len(f.queue))
		return nil, nil
	}
	return f.pop(), nil
}

// corruptFault converts a recovered interpreter panic into a fault.
func corruptFault(r any) *Fault {
	fault := &Fault{Kind: KindCorrupt, IP: -1}
	if err, ok := r.(error); ok {
		fault.Err = err
	} else {
		fault.Message = fmt.Sprint(r)
	}
	return fault
}

// Call invokes m with receiver in slot 0 and args in the following slots.
// It returns the method's result, or (nil, nil) if the Fiber suspended, in
// which case Suspended reports true and Dispatch continues the run.
func (f *Fiber) Call(m *CompiledMethod, receiver Value, args ...Value) (Value, error) {
	if err := f.checkEntry("call " + m.Signature()); err != nil {
		return nil, err
	}
	if len(args) != m.ArgCount {
		return nil, newFault(KindArityMismatch, m, -1, "expected %d arguments, got %d", m.ArgCount, len(args))
	}
	return f.enter(func() (outcome, error) {
		f.push(receiver)
		for _, a := range args {
			f.push(a)
		}
		if err := f.prepareCall(f.window, len(args)+1); err != nil {
			return completed, &Fault{Kind: KindStackOverflow, Method: m.Signature(), Module: m.module, IP: -1, Err: err}
		}
		out, err := f.run(m)
		f.postCall()
		return out, err
	})
}

// HostCall invokes name on target with args, the way a CALL instruction
// would. Host code may use it both on an idle Fiber and, from inside a
// host method, on the Fiber that is running that method. Arity is checked
// before any callee instruction runs.
func (f *Fiber) HostCall(target Value, name string, args ...Value) (Value, error) {
	if err := f.checkEntry("host call " + name); err != nil {
		return nil, err
	}
	return f.enter(func() (outcome, error) {
		f.push(target)
		for _, a := range args {
			f.push(a)
		}
		return f.invoke(nil, -1, name, len(args), false)
	})
}

// Dispatch continues a suspended Fiber. It returns the entry call's result
// once the run completes, or (nil, nil) if the Fiber suspended again.
func (f *Fiber) Dispatch() (Value, error) {
	if f.active > 0 {
		return nil, &Fault{Kind: KindBusy, IP: -1, Message: fmt.Sprintf("dispatch: fiber %s is already dispatching", f.id)}
	}
	if len(f.queue) == 0 {
		return nil, &Fault{Kind: KindNotRunnable, IP: -1, Message: fmt.Sprintf("dispatch: fiber %s has nothing to resume", f.id)}
	}
	f.stats.Resumes++
	return f.enter(func() (outcome, error) {
		return f.reenter(f.resumeFrame())
	})
}

// Suspended reports whether the Fiber holds resume points, meaning the last
// dispatch stopped early and Dispatch must be called to continue.
func (f *Fiber) Suspended() bool {
	return len(f.queue) > 0
}

// Abandon discards a suspended Fiber's resume points and frames. The Fiber
// can be reused for a fresh Call afterwards. Abandon must not be called
// while the Fiber is dispatching.
func (f *Fiber) Abandon() {
	if len(f.queue) > 0 {
		log.Debugf("fiber %s abandoned with %d resume points", f.id, len(f.queue))
	}
	clear(f.queue)
	f.queue = f.queue[:0]
	f.frames = f.frames[:0]
	f.base = 0
	f.window = 0
	clear(f.stack)
	f.stack = f.stack[:0]
	f.interrupt.Store(false)
}
