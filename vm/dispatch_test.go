package vm

import (
	"errors"
	"reflect"
	"testing"
)

// buildBinary builds op(a, b) = a <op> b, one call site for every pair of
// argument types.
func buildBinary(op Opcode) *CompiledMethod {
	return NewCompiledMethodBuilder("binary", 2).
		LoadLocal(1).LoadLocal(2).Op(op).Op(OpReturn).Build()
}

func TestDispatchCacheSoundness(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()
	add := buildBinary(OpAdd)

	// Same call site, receiver/argument types changing between calls
	tests := []struct {
		a, b Value
		want Value
	}{
		{int64(1), int64(2), int64(3)},
		{int64(1), 2.5, 3.5},
		{1.5, int64(2), 3.5},
		{"ab", "cd", "abcd"},
		{int64(1), int64(2), int64(3)},
	}
	for _, tt := range tests {
		got, err := f.Call(add, nil, tt.a, tt.b)
		if err != nil {
			t.Fatalf("%v + %v: %v", tt.a, tt.b, err)
		}
		if got != tt.want {
			t.Errorf("%v + %v = %v (%T), want %v (%T)", tt.a, tt.b, got, got, tt.want, tt.want)
		}
	}

	stats := rt.CacheStats()
	if stats.GuardFailures == 0 {
		t.Error("expected guard failures when the receiver type changed")
	}
	if stats.Hits == 0 {
		t.Error("expected a hit on the repeated int64 + int64 call")
	}
}

func TestDispatchCacheParity(t *testing.T) {
	inputs := []struct{ a, b Value }{
		{int64(7), int64(3)},
		{int64(7), 3.0},
		{7.5, 2.5},
		{int64(-9), int64(4)},
		{"x", "y"},
	}
	ops := []Opcode{OpAdd, OpSub, OpMul, OpDiv, OpMod, OpLt, OpLe, OpGt, OpGe, OpEq}

	run := func(cache bool) []Value {
		rt := newTestRuntime(t, cache)
		f := rt.NewFiber()
		var out []Value
		for _, op := range ops {
			m := buildBinary(op)
			for i := 0; i < 3; i++ {
				for _, in := range inputs {
					v, err := f.Call(m, nil, in.a, in.b)
					if err != nil {
						out = append(out, "fault:"+err.(*Fault).Kind.String())
						continue
					}
					out = append(out, v)
				}
			}
		}
		return out
	}

	cached := run(true)
	uncached := run(false)
	if !reflect.DeepEqual(cached, uncached) {
		t.Errorf("results differ with caching:\ncached   %v\nuncached %v", cached, uncached)
	}
}

func TestDispatchCacheDisabled(t *testing.T) {
	rt := newTestRuntime(t, false)
	f := rt.NewFiber()
	if _, err := f.Call(buildBinary(OpAdd), nil, int64(1), int64(1)); err != nil {
		t.Fatal(err)
	}
	if stats := rt.CacheStats(); stats != (CacheStats{}) {
		t.Errorf("stats = %+v, want zero with caching disabled", stats)
	}
}

func TestDispatchMethodNotFound(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()

	m := NewCompiledMethodBuilder("bad", 0).
		PushConst(int64(1)).Call("frobnicate", 0).Op(OpReturn).Build()

	_, err := f.Call(m, nil)
	if !errors.Is(err, ErrMethodNotFound) {
		t.Fatalf("err = %v, want method not found", err)
	}
	var fault *Fault
	errors.As(err, &fault)
	if fault.Method != "bad/0" || fault.IP != 5 {
		t.Errorf("fault at %s ip %d, want bad/0 ip 5", fault.Method, fault.IP)
	}
	want := "Integer does not understand method frobnicate/0"
	if fault.Message != want {
		t.Errorf("message = %q, want %q", fault.Message, want)
	}
}

func TestDispatchHostArityMismatch(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()

	_, err := f.HostCall(int64(1), "plus")
	if !errors.Is(err, ErrArityMismatch) {
		t.Errorf("plus/0: err = %v, want arity mismatch", err)
	}

	// Right arity, no overload for the argument type
	_, err = f.HostCall(int64(1), "plus", "x")
	if !errors.Is(err, ErrMethodNotFound) {
		t.Errorf("plus(String): err = %v, want method not found", err)
	}
}

func TestDispatchArityCheckedBeforeExecution(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()

	counter := NewClass("Counter", "count")

	// bump(n): count := n. ^n
	bump := NewCompiledMethodBuilder("bump", 1)
	bump.LoadLocal(1).Bytecode().EmitByte(OpStoreField, 0)
	bump.LoadLocal(1).Op(OpReturn)
	counter.AddMethod(bump.Build())

	inst := counter.NewInstance()

	_, err := f.HostCall(inst, "bump")
	if !errors.Is(err, ErrArityMismatch) {
		t.Fatalf("err = %v, want arity mismatch", err)
	}
	_, err = f.HostCall(inst, "bump", int64(1), int64(2))
	if !errors.Is(err, ErrArityMismatch) {
		t.Fatalf("err = %v, want arity mismatch", err)
	}
	if inst.Fields[0] != nil {
		t.Errorf("count = %v, want nil (callee must not run)", inst.Fields[0])
	}
	if f.Stats().Calls != 0 {
		t.Errorf("calls = %d, want 0", f.Stats().Calls)
	}

	_, err = f.Call(counter.Methods[0], inst)
	if !errors.Is(err, ErrArityMismatch) {
		t.Fatalf("Call: err = %v, want arity mismatch", err)
	}
	if inst.Fields[0] != nil {
		t.Errorf("count = %v, want nil", inst.Fields[0])
	}

	got, err := f.HostCall(inst, "bump", int64(3))
	if err != nil || got != int64(3) || inst.Fields[0] != int64(3) {
		t.Errorf("bump(3) = %v, %v; count = %v", got, err, inst.Fields[0])
	}
}

func TestDispatchSharedMethods(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()

	class := NewClass("Config")
	class.AddSharedMethod(buildConst("defaultPort", int64(8080)))

	got, err := f.HostCall(class, "defaultPort")
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(8080) {
		t.Errorf("result = %v, want 8080", got)
	}

	// Instance side does not see shared methods
	if _, err := f.HostCall(class.NewInstance(), "defaultPort"); !errors.Is(err, ErrMethodNotFound) {
		t.Errorf("err = %v, want method not found", err)
	}
}

func TestDispatchObjectFallback(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()

	inst := NewClass("Thing").NewInstance()
	got, err := f.HostCall(inst, "eq", inst)
	if err != nil || got != true {
		t.Errorf("inst eq inst = %v, %v", got, err)
	}
	got, err = f.HostCall(nil, "isNil")
	if err != nil || got != true {
		t.Errorf("nil isNil = %v, %v", got, err)
	}
	got, err = f.HostCall(int64(1), "eq", "1")
	if err != nil || got != false {
		t.Errorf("1 eq \"1\" = %v, %v", got, err)
	}
}

type widget struct{ name string }

func TestDispatchHostPanicWrapped(t *testing.T) {
	rt := newTestRuntime(t, true)
	rt.HostTypes().Register(reflect.TypeFor[*widget](), "Widget").
		Method0("explode", func(_ *Fiber, _ Value) (Value, error) {
			panic("kaboom")
		})
	f := rt.NewFiber()

	m := NewCompiledMethodBuilder("boom", 1).LoadLocal(1).Call("explode", 0).Op(OpReturn).Build()
	_, err := f.Call(m, nil, &widget{})
	if !errors.Is(err, ErrInvocationFailed) {
		t.Fatalf("err = %v, want invocation failure", err)
	}
	var p *HostPanic
	if !errors.As(err, &p) || p.Value != "kaboom" {
		t.Errorf("err = %v, want wrapped panic kaboom", err)
	}
	if f.FrameDepth() != 0 || f.StackDepth() != 0 {
		t.Errorf("fiber not reset: frames=%d stack=%d", f.FrameDepth(), f.StackDepth())
	}
}

func TestDispatchNestedHostCall(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()

	class := NewClass("Answer")
	class.AddMethod(buildConst("value", int64(42)))
	inst := class.NewInstance()

	// [a, a, 1] collect: "value" -> host method calling back into the Fiber
	list := NewList(inst, inst)
	got, err := f.HostCall(list, "collect", "value")
	if err != nil {
		t.Fatal(err)
	}
	l, ok := got.(*List)
	if !ok || l.Len() != 2 || l.Elements[0] != int64(42) || l.Elements[1] != int64(42) {
		t.Errorf("collect = %s, want [42, 42]", FormatValue(got))
	}

	// perform from bytecode
	m := NewCompiledMethodBuilder("viaPerform", 1).
		LoadLocal(1).PushConst("value").Call("perform", 1).Op(OpReturn).Build()
	got, err = f.Call(m, nil, inst)
	if err != nil || got != int64(42) {
		t.Errorf("perform = %v, %v", got, err)
	}

	// A nested fault surfaces wrapped in the host method's failure
	_, err = f.HostCall(NewList(int64(1)), "collect", "value")
	if !errors.Is(err, ErrInvocationFailed) || !errors.Is(err, ErrMethodNotFound) {
		t.Errorf("err = %v, want invocation failure wrapping method not found", err)
	}
	if f.FrameDepth() != 0 || f.StackDepth() != 0 {
		t.Errorf("fiber not reset: frames=%d stack=%d", f.FrameDepth(), f.StackDepth())
	}
}

func TestDispatchOperatorFaultNamesOperator(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()

	m := NewCompiledMethodBuilder("neg", 0).PushConst("s").Op(OpNeg).Op(OpReturn).Build()
	_, err := f.Call(m, nil)
	var fault *Fault
	if !errors.As(err, &fault) || fault.Kind != KindMethodNotFound {
		t.Fatalf("err = %v, want method not found", err)
	}
	if want := "String does not understand operator neg/0"; fault.Message != want {
		t.Errorf("message = %q, want %q", fault.Message, want)
	}
}
