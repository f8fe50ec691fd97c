package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Faults
// ---------------------------------------------------------------------------

// FaultKind classifies a fault. Kinds implement error so callers can test
// with errors.Is(err, vm.KindMethodNotFound).
type FaultKind uint8

const (
	// Program faults: the compiled program is malformed. Never retried.
	KindInvalidOpcode FaultKind = iota + 1
	KindMethodNotFound
	KindArityMismatch
	KindStackOverflow
	KindCorrupt

	// Host invocation faults: a host method returned an error or panicked.
	KindInvocationFailed

	// A host entry point was used on a Fiber that is mid-dispatch or still
	// holds pending suspension records.
	KindBusy

	// The Fiber has nothing to run (never bound, already finished, or abandoned).
	KindNotRunnable
)

// Sentinel errors for errors.Is.
var (
	ErrInvalidOpcode    error = KindInvalidOpcode
	ErrMethodNotFound   error = KindMethodNotFound
	ErrArityMismatch    error = KindArityMismatch
	ErrStackOverflow    error = KindStackOverflow
	ErrCorrupt          error = KindCorrupt
	ErrInvocationFailed error = KindInvocationFailed
	ErrBusy             error = KindBusy
	ErrNotRunnable      error = KindNotRunnable
)

var faultKindNames = map[FaultKind]string{
	KindInvalidOpcode:    "invalid opcode",
	KindMethodNotFound:   "method not found",
	KindArityMismatch:    "arity mismatch",
	KindStackOverflow:    "stack overflow",
	KindCorrupt:          "corrupt instruction stream",
	KindInvocationFailed: "host invocation failed",
	KindBusy:             "fiber busy",
	KindNotRunnable:      "fiber not runnable",
}

// Error implements error.
func (k FaultKind) Error() string {
	if name, ok := faultKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("fault(%d)", uint8(k))
}

// String implements the Stringer interface.
func (k FaultKind) String() string {
	return k.Error()
}

// IsProgramFault reports whether the kind indicates a malformed program.
func (k FaultKind) IsProgramFault() bool {
	switch k {
	case KindInvalidOpcode, KindMethodNotFound, KindArityMismatch, KindStackOverflow, KindCorrupt:
		return true
	}
	return false
}

// Fault is the error returned by every dispatch entry point. It carries the
// call-site diagnostics of the frame that raised it.
type Fault struct {
	Kind    FaultKind
	Method  string // signature of the method executing when the fault was raised
	Module  string
	IP      int    // instruction pointer of the faulting instruction, -1 if none
	Message string // human-readable detail
	Err     error  // wrapped cause (host error, recovered panic)
}

// Error implements error.
func (f *Fault) Error() string {
	var sb strings.Builder
	sb.WriteString(f.Kind.Error())
	if f.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(f.Message)
	}
	if f.Method != "" {
		sb.WriteString(" (in ")
		if f.Module != "" {
			sb.WriteString(f.Module)
			sb.WriteByte('.')
		}
		sb.WriteString(f.Method)
		if f.IP >= 0 {
			fmt.Fprintf(&sb, " at ip %d", f.IP)
		}
		sb.WriteByte(')')
	}
	if f.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(f.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the wrapped cause.
func (f *Fault) Unwrap() error {
	return f.Err
}

// Is matches a FaultKind target against the fault's kind.
func (f *Fault) Is(target error) bool {
	k, ok := target.(FaultKind)
	return ok && k == f.Kind
}

// newFault builds a fault located at (m, ip).
func newFault(kind FaultKind, m *CompiledMethod, ip int, format string, args ...any) *Fault {
	f := &Fault{Kind: kind, IP: ip, Message: fmt.Sprintf(format, args...)}
	if m != nil {
		f.Method = m.Signature()
		f.Module = m.module
	}
	return f
}

// HostPanic wraps a value recovered from a panicking host method.
type HostPanic struct {
	Value any
}

// Error implements error.
func (p *HostPanic) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// Unwrap exposes a panicked error value.
func (p *HostPanic) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}
