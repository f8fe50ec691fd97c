package vm

// ---------------------------------------------------------------------------
// Boolean Primitives
// ---------------------------------------------------------------------------

func (rt *Runtime) registerBooleanPrimitives() {
	c := rt.hosts.Register(typeBool, "Boolean")

	c.Method0("not", func(_ *Fiber, recv Value) (Value, error) {
		return !recv.(bool), nil
	})

	c.Overload1("eq", typeBool, func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return recv.(bool) == arg.(bool), nil
	})

	// and / or take an already evaluated operand; nil counts as false
	c.Method1("and", func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return recv.(bool) && IsTruthy(arg), nil
	})

	c.Method1("or", func(_ *Fiber, recv Value, arg Value) (Value, error) {
		return recv.(bool) || IsTruthy(arg), nil
	})
}
