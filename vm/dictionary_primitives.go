package vm

import "fmt"

// ---------------------------------------------------------------------------
// Dictionary Primitives
// ---------------------------------------------------------------------------

func (rt *Runtime) registerDictionaryPrimitives() {
	c := rt.hosts.Register(typeDict, "Dictionary")

	// get answers nil for a missing key
	c.Method1("get", func(_ *Fiber, recv Value, key Value) (Value, error) {
		if !hashable(key) {
			return nil, unhashable(key)
		}
		v, _ := recv.(*Dict).Get(key)
		return v, nil
	})

	// set answers the stored value
	c.Method2("set", func(_ *Fiber, recv Value, key, value Value) (Value, error) {
		if !hashable(key) {
			return nil, unhashable(key)
		}
		recv.(*Dict).Set(key, value)
		return value, nil
	})

	c.Method1("has", func(_ *Fiber, recv Value, key Value) (Value, error) {
		if !hashable(key) {
			return false, nil
		}
		_, ok := recv.(*Dict).Get(key)
		return ok, nil
	})

	c.Method0("size", func(_ *Fiber, recv Value) (Value, error) {
		return int64(recv.(*Dict).Len()), nil
	})

	// keys answers a list in insertion order
	c.Method0("keys", func(_ *Fiber, recv Value) (Value, error) {
		return &List{Elements: recv.(*Dict).Keys()}, nil
	})
}

func unhashable(key Value) error {
	return fmt.Errorf("%w: %s", ErrUnhashable, TypeName(key))
}
