package vm

import "fmt"

// ---------------------------------------------------------------------------
// String Primitives
// ---------------------------------------------------------------------------

func (rt *Runtime) registerStringPrimitives() {
	c := rt.hosts.Register(typeString, "String")

	// plus - concatenation
	c.Overload1("plus", typeString, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return recv.(string) + arg.(string), nil
	})

	c.Method0("size", func(_ *Fiber, recv Value) (Value, error) {
		return int64(len(recv.(string))), nil
	})

	c.Overload1("eq", typeString, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return recv.(string) == arg.(string), nil
	})

	c.Overload1("lt", typeString, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return recv.(string) < arg.(string), nil
	})

	// at - zero-based byte index, answering a one-byte string
	c.Overload1("at", typeInt64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		s, i := recv.(string), arg.(int64)
		if i < 0 || i >= int64(len(s)) {
			return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, len(s))
		}
		return s[i : i+1], nil
	})
}
