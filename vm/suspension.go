package vm

// ---------------------------------------------------------------------------
// Suspension protocol
// ---------------------------------------------------------------------------
//
// A frame that honors an interrupt records its own (method, ip) and returns
// the suspended outcome. Every enclosing frame that sees a callee come back
// suspended records its own (method, ip after the call) and returns
// suspended in turn, so the queue ends up holding exactly the frames that
// were live, innermost first. Nothing else unwinds: the operand stack and
// the locals array are left as they were.
//
// Dispatch pops the last record (the outermost frame), pushes a frame for
// it exactly where prepareCall originally put it, and re-enters the loop.
// Before running any instruction a re-entered frame pops the next record,
// which belongs to the frame it was calling, and re-enters that one first.
// Frame bases are derived from the methods' local windows, so the rebuilt
// frames line up with the locals that were left in place.

// outcome is how one interpreter frame ended.
type outcome uint8

const (
	completed outcome = iota // result is on the operand stack
	suspended                // resume points were queued
)

// Suspension is the resume point of one frame.
type Suspension struct {
	Method *CompiledMethod
	IP     int
}

// suspendFrame queues a resume point.
func (f *Fiber) suspendFrame(m *CompiledMethod, ip int) {
	f.queue = append(f.queue, Suspension{Method: m, IP: ip})
}

// resumeFrame pops the outermost remaining resume point.
func (f *Fiber) resumeFrame() Suspension {
	n := len(f.queue) - 1
	s := f.queue[n]
	f.queue[n] = Suspension{}
	f.queue = f.queue[:n]
	return s
}

// reenter rebuilds the frame for s after the current frame and resumes it.
func (f *Fiber) reenter(s Suspension) (outcome, error) {
	if err := f.enterFrame(f.window, frameSize(s.Method)); err != nil {
		return completed, &Fault{Kind: KindStackOverflow, Method: s.Method.Signature(), Module: s.Method.module, IP: s.IP, Err: err}
	}
	out, err := f.resume(s)
	f.postCall()
	return out, err
}

// resume continues s in the current frame, first draining the frames it
// was calling when it suspended.
func (f *Fiber) resume(s Suspension) (outcome, error) {
	if len(f.queue) > 0 {
		out, err := f.reenter(f.resumeFrame())
		if err != nil {
			return completed, err
		}
		if out == suspended {
			f.suspendFrame(s.Method, s.IP)
			return suspended, nil
		}
	}
	return f.loop(s.Method, s.IP)
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

// ResumePoint describes one queued frame.
type ResumePoint struct {
	Method string
	Module string
	IP     int
}

// Snapshot is a diagnostic view of a suspended Fiber. It is not enough to
// resume from: locals and operands stay with the Fiber.
type Snapshot struct {
	FiberID string
	Points  []ResumePoint // innermost first
	Stack   int           // operand stack height
}

// Snapshot returns the Fiber's current resume points.
func (f *Fiber) Snapshot() Snapshot {
	s := Snapshot{
		FiberID: f.id.String(),
		Points:  make([]ResumePoint, len(f.queue)),
		Stack:   len(f.stack),
	}
	for i, q := range f.queue {
		s.Points[i] = ResumePoint{Method: q.Method.Signature(), Module: q.Method.module, IP: q.IP}
	}
	return s
}
