package vm

import (
	"fmt"
	"reflect"
)

// ---------------------------------------------------------------------------
// List Primitives
// ---------------------------------------------------------------------------

func (rt *Runtime) registerListPrimitives() {
	c := rt.hosts.Register(typeList, "List")

	// get / set use zero-based indices
	c.Overload1("get", typeInt64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		l := recv.(*List)
		i, err := listIndex(l, arg.(int64))
		if err != nil {
			return nil, err
		}
		return l.Elements[i], nil
	})

	c.Define(&HostMethod{
		Name:   "set",
		Arity:  2,
		Params: []reflect.Type{typeInt64, nil},
		Fn: func(_ *Fiber, recv Value, args []Value) (Value, error) {
			l := recv.(*List)
			i, err := listIndex(l, args[0].(int64))
			if err != nil {
				return nil, err
			}
			l.Elements[i] = args[1]
			return args[1], nil
		},
	})

	c.Method0("size", func(_ *Fiber, recv Value) (Value, error) {
		return int64(recv.(*List).Len()), nil
	})

	// add appends and answers the receiver
	c.Method1("add", func(_ *Fiber, recv Value, arg Value) (Value, error) {
		l := recv.(*List)
		l.Elements = append(l.Elements, arg)
		return l, nil
	})

	// collect answers a new list of each element's response to a method name
	c.Overload1("collect", typeString, func(f *Fiber, recv Value, arg Value) (Value, error) {
		l := recv.(*List)
		out := make([]Value, len(l.Elements))
		for i, e := range l.Elements {
			v, err := f.HostCall(e, arg.(string))
			if err != nil {
				return nil, fmt.Errorf("collect %s at %d: %w", arg.(string), i, err)
			}
			out[i] = v
		}
		return &List{Elements: out}, nil
	})
}

func listIndex(l *List, i int64) (int, error) {
	if i < 0 || i >= int64(len(l.Elements)) {
		return 0, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, len(l.Elements))
	}
	return int(i), nil
}
