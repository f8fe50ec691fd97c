package vm

// ---------------------------------------------------------------------------
// Integer Primitives
// ---------------------------------------------------------------------------

func (rt *Runtime) registerIntegerPrimitives() {
	c := rt.hosts.Register(typeInt64, "Integer")

	// Arithmetic
	c.Overload1("plus", typeInt64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return recv.(int64) + arg.(int64), nil
	})
	c.Overload1("plus", typeFloat64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return float64(recv.(int64)) + arg.(float64), nil
	})

	c.Overload1("minus", typeInt64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return recv.(int64) - arg.(int64), nil
	})
	c.Overload1("minus", typeFloat64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return float64(recv.(int64)) - arg.(float64), nil
	})

	c.Overload1("times", typeInt64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return recv.(int64) * arg.(int64), nil
	})
	c.Overload1("times", typeFloat64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return float64(recv.(int64)) * arg.(float64), nil
	})

	// div truncates toward zero, like Go
	c.Overload1("div", typeInt64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		if arg.(int64) == 0 {
			return nil, ErrZeroDivide
		}
		return recv.(int64) / arg.(int64), nil
	})
	c.Overload1("div", typeFloat64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		if arg.(float64) == 0 {
			return nil, ErrZeroDivide
		}
		return float64(recv.(int64)) / arg.(float64), nil
	})

	c.Overload1("mod", typeInt64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		if arg.(int64) == 0 {
			return nil, ErrZeroDivide
		}
		return recv.(int64) % arg.(int64), nil
	})

	c.Method0("neg", func(_ *Fiber, recv Value) (Value, error) {
		return -recv.(int64), nil
	})

	// Comparison
	c.Overload1("lt", typeInt64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return recv.(int64) < arg.(int64), nil
	})
	c.Overload1("lt", typeFloat64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return float64(recv.(int64)) < arg.(float64), nil
	})

	c.Overload1("le", typeInt64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return recv.(int64) <= arg.(int64), nil
	})
	c.Overload1("le", typeFloat64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return float64(recv.(int64)) <= arg.(float64), nil
	})

	c.Overload1("gt", typeInt64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return recv.(int64) > arg.(int64), nil
	})
	c.Overload1("gt", typeFloat64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return float64(recv.(int64)) > arg.(float64), nil
	})

	c.Overload1("ge", typeInt64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return recv.(int64) >= arg.(int64), nil
	})
	c.Overload1("ge", typeFloat64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return float64(recv.(int64)) >= arg.(float64), nil
	})

	// eq with a non-number falls through to Object>>eq
	c.Overload1("eq", typeInt64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return recv.(int64) == arg.(int64), nil
	})
	c.Overload1("eq", typeFloat64, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return float64(recv.(int64)) == arg.(float64), nil
	})

	c.Method0("asFloat", func(_ *Fiber, recv Value) (Value, error) {
		return float64(recv.(int64)), nil
	})
}
