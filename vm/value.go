package vm

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Value is any value the execution core moves between the operand stack,
// locals and fields.
//
// The script-level kinds are:
//   - nil, bool, int64, float64, string
//   - *List and *Dict (containers built by NEW_LIST / NEW_DICT)
//   - *Instance (script object) and *Class (class-side receiver)
//
// Anything else is an opaque host value. Host values, like the primitive
// kinds above, dispatch through the host type registry and the adaptive
// call cache; only *Instance and *Class dispatch to compiled methods.
type Value = any

// List is the growable sequence built by NEW_LIST.
type List struct {
	Elements []Value
}

// NewList creates a list holding a copy of elems.
func NewList(elems ...Value) *List {
	l := &List{Elements: make([]Value, len(elems))}
	copy(l.Elements, elems)
	return l
}

// Len returns the number of elements.
func (l *List) Len() int {
	return len(l.Elements)
}

// Dict is the associative container built by NEW_DICT.
// Keys must be comparable Go values.
type Dict struct {
	entries map[Value]Value
	order   []Value
}

// NewDict creates an empty dictionary.
func NewDict() *Dict {
	return &Dict{entries: make(map[Value]Value)}
}

// Get returns the value stored under key.
func (d *Dict) Get(key Value) (Value, bool) {
	v, ok := d.entries[key]
	return v, ok
}

// Set stores value under key, remembering first-insertion order.
func (d *Dict) Set(key, value Value) {
	if _, ok := d.entries[key]; !ok {
		d.order = append(d.order, key)
	}
	d.entries[key] = value
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	return len(d.entries)
}

// Keys returns keys in insertion order.
func (d *Dict) Keys() []Value {
	keys := make([]Value, len(d.order))
	copy(keys, d.order)
	return keys
}

// ---------------------------------------------------------------------------
// Type inspection
// ---------------------------------------------------------------------------

// IsTruthy reports whether v counts as true for conditional jumps.
// Only nil and false are false.
func IsTruthy(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	}
	return true
}

// TypeName returns the name used in diagnostics for the runtime type of v.
func TypeName(v Value) string {
	switch x := v.(type) {
	case nil:
		return "Nil"
	case bool:
		return "Boolean"
	case int64:
		return "Integer"
	case float64:
		return "Float"
	case string:
		return "String"
	case *List:
		return "List"
	case *Dict:
		return "Dictionary"
	case *Instance:
		if x.Class != nil {
			return x.Class.Name
		}
		return "Instance"
	case *Class:
		return x.Name + " class"
	}
	return reflect.TypeOf(v).String()
}

// typeOf returns the guard type recorded for v in call cache entries.
// nil has no reflect.Type; the zero Type stands for it.
func typeOf(v Value) reflect.Type {
	return reflect.TypeOf(v)
}

// FormatValue renders a value for disassembly and fault messages.
func FormatValue(v Value) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(x)
	case *List:
		parts := make([]string, len(x.Elements))
		for i, e := range x.Elements {
			parts[i] = FormatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Instance:
		return "a " + TypeName(x)
	case *Class:
		return x.Name
	}
	return fmt.Sprintf("%v", v)
}
