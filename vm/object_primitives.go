package vm

import (
	"errors"
	"fmt"
	"reflect"
)

// Errors returned by primitives. The dispatcher wraps them in a
// KindInvocationFailed fault.
var (
	ErrZeroDivide      = errors.New("division by zero")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrUnhashable      = errors.New("unhashable key")
)

// Guard types used for primitive overloads.
var (
	typeInt64   = reflect.TypeFor[int64]()
	typeFloat64 = reflect.TypeFor[float64]()
	typeString  = reflect.TypeFor[string]()
	typeBool    = reflect.TypeFor[bool]()
	typeList    = reflect.TypeFor[*List]()
	typeDict    = reflect.TypeFor[*Dict]()
)

// ---------------------------------------------------------------------------
// Object Primitives (catch-all)
// ---------------------------------------------------------------------------

func (rt *Runtime) registerObjectPrimitives() {
	c := rt.hosts.Object()

	c.Method1("eq", func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return identical(recv, arg), nil
	})

	c.Method0("isNil", func(_ *Fiber, recv Value) (Value, error) {
		return recv == nil, nil
	})

	c.Method0("typeName", func(f *Fiber, recv Value) (Value, error) {
		return f.rt.hosts.typeName(recv), nil
	})

	c.Method0("printString", func(_ *Fiber, recv Value) (Value, error) {
		return FormatValue(recv), nil
	})

	// perform - send a computed method name back through dispatch
	c.Method1("perform", func(f *Fiber, recv Value, name Value) (Value, error) {
		s, ok := name.(string)
		if !ok {
			return nil, fmt.Errorf("perform: method name must be a String, got %s", TypeName(name))
		}
		return f.HostCall(recv, s)
	})

	c.Method2("performWith", func(f *Fiber, recv Value, name, arg Value) (Value, error) {
		s, ok := name.(string)
		if !ok {
			return nil, fmt.Errorf("performWith: method name must be a String, got %s", TypeName(name))
		}
		return f.HostCall(recv, s, arg)
	})
}

// identical is the catch-all equality: equal comparable values, or the
// same reference.
func identical(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// hashable reports whether v can be used as a dictionary key.
func hashable(v Value) bool {
	return v == nil || reflect.TypeOf(v).Comparable()
}
