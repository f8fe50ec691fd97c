package vm

import "math"

// ---------------------------------------------------------------------------
// Float Primitives
// ---------------------------------------------------------------------------

// asFloat widens a number argument. Overload guards guarantee arg is int64
// or float64.
func asFloat(arg Value) float64 {
	if i, ok := arg.(int64); ok {
		return float64(i)
	}
	return arg.(float64)
}

func (rt *Runtime) registerFloatPrimitives() {
	c := rt.hosts.Register(typeFloat64, "Float")

	number := func(name string, fn func(a, b float64) (Value, error)) {
		impl := func(_ *Fiber, recv Value, arg Value) (Value, error) {
			return fn(recv.(float64), asFloat(arg))
		}
		c.Overload1(name, typeFloat64, impl)
		c.Overload1(name, typeInt64, impl)
	}

	// Arithmetic
	number("plus", func(a, b float64) (Value, error) { return a + b, nil })
	number("minus", func(a, b float64) (Value, error) { return a - b, nil })
	number("times", func(a, b float64) (Value, error) { return a * b, nil })
	number("div", func(a, b float64) (Value, error) {
		if b == 0 {
			return nil, ErrZeroDivide
		}
		return a / b, nil
	})
	number("mod", func(a, b float64) (Value, error) {
		if b == 0 {
			return nil, ErrZeroDivide
		}
		return math.Mod(a, b), nil
	})

	c.Method0("neg", func(_ *Fiber, recv Value) (Value, error) {
		return -recv.(float64), nil
	})

	// Comparison
	number("lt", func(a, b float64) (Value, error) { return a < b, nil })
	number("le", func(a, b float64) (Value, error) { return a <= b, nil })
	number("gt", func(a, b float64) (Value, error) { return a > b, nil })
	number("ge", func(a, b float64) (Value, error) { return a >= b, nil })
	number("eq", func(a, b float64) (Value, error) { return a == b, nil })

	c.Method0("truncated", func(_ *Fiber, recv Value) (Value, error) {
		return int64(recv.(float64)), nil
	})
}
