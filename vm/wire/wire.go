// Package wire encodes execution-core diagnostics (suspension snapshots and
// faults) as canonical CBOR, so equal values always produce equal bytes.
package wire

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/chazu/loom/vm"
	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Point is the wire form of vm.ResumePoint.
type Point struct {
	Method string `cbor:"1,keyasint"`
	Module string `cbor:"2,keyasint,omitempty"`
	IP     int    `cbor:"3,keyasint"`
}

// Snapshot is the wire form of vm.Snapshot.
type Snapshot struct {
	Fiber  string  `cbor:"1,keyasint"`
	Points []Point `cbor:"2,keyasint,omitempty"` // innermost first
	Stack  int     `cbor:"3,keyasint"`
}

// FromSnapshot converts a vm.Snapshot to its wire form.
func FromSnapshot(s vm.Snapshot) *Snapshot {
	w := &Snapshot{Fiber: s.FiberID, Stack: s.Stack}
	for _, p := range s.Points {
		w.Points = append(w.Points, Point{Method: p.Method, Module: p.Module, IP: p.IP})
	}
	return w
}

// VM converts the wire form back to a vm.Snapshot.
func (w *Snapshot) VM() vm.Snapshot {
	s := vm.Snapshot{FiberID: w.Fiber, Stack: w.Stack, Points: make([]vm.ResumePoint, len(w.Points))}
	for i, p := range w.Points {
		s.Points[i] = vm.ResumePoint{Method: p.Method, Module: p.Module, IP: p.IP}
	}
	return s
}

// MarshalSnapshot serializes a snapshot to CBOR bytes.
func MarshalSnapshot(s vm.Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(FromSnapshot(s))
}

// UnmarshalSnapshot deserializes a snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (vm.Snapshot, error) {
	var w Snapshot
	if err := cbor.Unmarshal(data, &w); err != nil {
		return vm.Snapshot{}, fmt.Errorf("wire: unmarshal snapshot: %w", err)
	}
	return w.VM(), nil
}

// Fault is the wire form of a *vm.Fault. The wrapped cause is flattened to
// its message.
type Fault struct {
	Kind    uint8  `cbor:"1,keyasint"`
	Method  string `cbor:"2,keyasint,omitempty"`
	Module  string `cbor:"3,keyasint,omitempty"`
	IP      int    `cbor:"4,keyasint"`
	Message string `cbor:"5,keyasint,omitempty"`
	Cause   string `cbor:"6,keyasint,omitempty"`
}

// MarshalFault serializes an error. A *vm.Fault anywhere in the chain keeps
// its diagnostics; any other error is recorded as an invocation failure.
func MarshalFault(err error) ([]byte, error) {
	if err == nil {
		return nil, errors.New("wire: marshal fault: nil error")
	}
	w := Fault{Kind: uint8(vm.KindInvocationFailed), IP: -1, Message: err.Error()}
	var f *vm.Fault
	if errors.As(err, &f) {
		w = Fault{Kind: uint8(f.Kind), Method: f.Method, Module: f.Module, IP: f.IP, Message: f.Message}
		if f.Err != nil {
			w.Cause = f.Err.Error()
		}
	}
	return cborEncMode.Marshal(&w)
}

// UnmarshalFault deserializes a fault. The cause, if any, comes back as a
// plain error carrying the original message.
func UnmarshalFault(data []byte) (*vm.Fault, error) {
	var w Fault
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("wire: unmarshal fault: %w", err)
	}
	f := &vm.Fault{Kind: vm.FaultKind(w.Kind), Method: w.Method, Module: w.Module, IP: w.IP, Message: w.Message}
	if w.Cause != "" {
		f.Err = errors.New(w.Cause)
	}
	return f, nil
}

// Digest returns the content hash of an encoding.
func Digest(data []byte) [32]byte {
	return sha256.Sum256(data)
}
