package vm

import (
	"reflect"
	"sync"
)

// ---------------------------------------------------------------------------
// Host methods
// ---------------------------------------------------------------------------

// HostFunc is a Go function implementing a method on a host type. args
// excludes the receiver. A returned error is wrapped by the dispatcher as a
// KindInvocationFailed fault.
type HostFunc func(f *Fiber, receiver Value, args []Value) (Value, error)

// Method0Func is a host method taking no arguments.
type Method0Func func(f *Fiber, receiver Value) (Value, error)

// Method1Func is a host method taking one argument.
type Method1Func func(f *Fiber, receiver Value, arg Value) (Value, error)

// Method2Func is a host method taking two arguments.
type Method2Func func(f *Fiber, receiver Value, arg1, arg2 Value) (Value, error)

// HostMethod is one callable entry of a host type.
type HostMethod struct {
	Name  string
	Arity int

	// Params optionally constrains argument types for overload selection.
	// A nil slice accepts any arguments; a nil element accepts any value
	// in that position.
	Params []reflect.Type

	Fn HostFunc

	owner *HostType
}

// Owner returns the host type the method was defined on.
func (m *HostMethod) Owner() *HostType {
	return m.owner
}

// String implements the Stringer interface.
func (m *HostMethod) String() string {
	if m.owner == nil {
		return m.Name
	}
	return m.owner.Name + ">>" + m.Name
}

func (m *HostMethod) accepts(args []Value) bool {
	if m.Params == nil {
		return true
	}
	for i, p := range m.Params {
		if p == nil {
			continue
		}
		if i >= len(args) || typeOf(args[i]) != p {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// HostType: methods attached to one Go type
// ---------------------------------------------------------------------------

// HostType holds the methods available on values of one Go type.
type HostType struct {
	Name   string
	GoType reflect.Type // nil for Nil and for the catch-all Object type

	mu      sync.RWMutex
	methods map[string][]*HostMethod
}

func newHostType(name string, goType reflect.Type) *HostType {
	return &HostType{
		Name:    name,
		GoType:  goType,
		methods: make(map[string][]*HostMethod),
	}
}

// Define adds a method. Overloads of the same name/arity are tried in
// definition order, so the most specific Params should come first.
func (t *HostType) Define(m *HostMethod) *HostType {
	t.mu.Lock()
	defer t.mu.Unlock()
	m.owner = t
	t.methods[m.Name] = append(t.methods[m.Name], m)
	return t
}

// MethodN defines a method taking arity arguments.
func (t *HostType) MethodN(name string, arity int, fn HostFunc) *HostType {
	return t.Define(&HostMethod{Name: name, Arity: arity, Fn: fn})
}

// Method0 defines a method taking no arguments.
func (t *HostType) Method0(name string, fn Method0Func) *HostType {
	return t.MethodN(name, 0, func(f *Fiber, recv Value, _ []Value) (Value, error) {
		return fn(f, recv)
	})
}

// Method1 defines a method taking one argument.
func (t *HostType) Method1(name string, fn Method1Func) *HostType {
	return t.MethodN(name, 1, func(f *Fiber, recv Value, args []Value) (Value, error) {
		return fn(f, recv, args[0])
	})
}

// Method2 defines a method taking two arguments.
func (t *HostType) Method2(name string, fn Method2Func) *HostType {
	return t.MethodN(name, 2, func(f *Fiber, recv Value, args []Value) (Value, error) {
		return fn(f, recv, args[0], args[1])
	})
}

// Overload1 defines a one-argument method selected only when the argument
// has type param.
func (t *HostType) Overload1(name string, param reflect.Type, fn Method1Func) *HostType {
	return t.Define(&HostMethod{
		Name:   name,
		Arity:  1,
		Params: []reflect.Type{param},
		Fn: func(f *Fiber, recv Value, args []Value) (Value, error) {
			return fn(f, recv, args[0])
		},
	})
}

// Lookup finds the method for name applied to args. nameSeen reports
// whether any method of that name exists, for arity diagnostics.
func (t *HostType) Lookup(name string, args []Value) (m *HostMethod, nameSeen bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	candidates := t.methods[name]
	for _, c := range candidates {
		if c.Arity == len(args) && c.accepts(args) {
			return c, true
		}
	}
	return nil, len(candidates) > 0
}

// hasArity reports whether some method named name takes arity arguments.
func (t *HostType) hasArity(name string, arity int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range t.methods[name] {
		if c.Arity == arity {
			return true
		}
	}
	return false
}

// Selectors returns the names of all defined methods.
func (t *HostType) Selectors() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.methods))
	for name := range t.methods {
		names = append(names, name)
	}
	return names
}

// ---------------------------------------------------------------------------
// HostTypes: registry keyed by Go type
// ---------------------------------------------------------------------------

// HostTypes maps Go types to their host methods. A catch-all Object type
// is consulted after the receiver's own type. Registration is expected to
// finish before Fibers dispatch; later definitions require a cache flush
// (Runtime.FlushCallCache) to become visible at already-cached call sites.
type HostTypes struct {
	mu     sync.RWMutex
	byType map[reflect.Type]*HostType
	byName map[string]*HostType
	object *HostType
}

// NewHostTypes creates a registry holding only the empty Object type.
func NewHostTypes() *HostTypes {
	return &HostTypes{
		byType: make(map[reflect.Type]*HostType),
		byName: make(map[string]*HostType),
		object: newHostType("Object", nil),
	}
}

// Register returns the host type for goType, creating it under name if it
// is not registered yet. A nil goType registers methods for nil receivers.
func (r *HostTypes) Register(goType reflect.Type, name string) *HostType {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.byType[goType]; ok {
		return t
	}
	t := newHostType(name, goType)
	r.byType[goType] = t
	r.byName[name] = t
	return t
}

// Object returns the catch-all type whose methods every host value
// understands.
func (r *HostTypes) Object() *HostType {
	return r.object
}

// LookupByType returns the host type registered for goType, or nil.
func (r *HostTypes) LookupByType(goType reflect.Type) *HostType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byType[goType]
}

// LookupByName returns the host type registered under name, or nil.
func (r *HostTypes) LookupByName(name string) *HostType {
	if name == r.object.Name {
		return r.object
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// Count returns the number of registered types, excluding Object.
func (r *HostTypes) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType)
}

// Resolve performs the full (uncached) lookup of name on receiver: the
// receiver's own type first, then Object.
func (r *HostTypes) Resolve(receiver Value, name string, args []Value) (m *HostMethod, nameSeen bool) {
	if t := r.LookupByType(typeOf(receiver)); t != nil {
		m, nameSeen = t.Lookup(name, args)
		if m != nil {
			return m, true
		}
	}
	om, objSeen := r.object.Lookup(name, args)
	return om, nameSeen || objSeen
}

// typeName returns the registered name for v's type, falling back to the
// generic diagnostic name.
func (r *HostTypes) typeName(v Value) string {
	if t := r.LookupByType(typeOf(v)); t != nil {
		return t.Name
	}
	return TypeName(v)
}
