package vm

import (
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// Basic execution tests
// ---------------------------------------------------------------------------

func TestInterpreterReturnConstants(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()

	tests := []struct {
		op   Opcode
		want Value
	}{
		{OpPushNil, nil},
		{OpPushTrue, true},
		{OpPushFalse, false},
	}
	for _, tt := range tests {
		m := NewCompiledMethodBuilder("test", 0).Op(tt.op).Op(OpReturn).Build()
		got, err := f.Call(m, nil)
		if err != nil {
			t.Fatalf("%s: %v", tt.op, err)
		}
		if got != tt.want {
			t.Errorf("%s: result = %v, want %v", tt.op, got, tt.want)
		}
	}
}

func TestInterpreterImplicitReturnSelf(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()

	m := NewCompiledMethodBuilder("noop", 0).Op(OpNOP).Build()
	got, err := f.Call(m, "receiver")
	if err != nil {
		t.Fatal(err)
	}
	if got != "receiver" {
		t.Errorf("result = %v, want receiver", got)
	}
}

func TestInterpreterArithmetic(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()

	// (3 + 4) * 5 - 6
	m := NewCompiledMethodBuilder("calc", 0).
		PushConst(int64(3)).PushConst(int64(4)).Op(OpAdd).
		PushConst(int64(5)).Op(OpMul).
		PushConst(int64(6)).Op(OpSub).
		Op(OpReturn).Build()

	got, err := f.Call(m, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(29) {
		t.Errorf("result = %v, want 29", got)
	}
}

func TestInterpreterStackOps(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()

	// 10 2 SWAP SUB => 2 - 10; DUP ADD => -16
	m := NewCompiledMethodBuilder("stack", 0).
		PushConst(int64(10)).PushConst(int64(2)).Op(OpSWAP).Op(OpSub).
		Op(OpDUP).Op(OpAdd).
		Op(OpReturn).Build()

	got, err := f.Call(m, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(-16) {
		t.Errorf("result = %v, want -16", got)
	}
}

func TestInterpreterLocals(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()

	// add(a, b) with a temporary: t := a + b; ^t
	b := NewCompiledMethodBuilder("add", 2)
	tmp := b.AddLocal()
	b.LoadLocal(1).LoadLocal(2).Op(OpAdd).StoreLocal(tmp).LoadLocal(tmp).Op(OpReturn)
	m := b.Build()

	got, err := f.Call(m, nil, int64(40), int64(2))
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(42) {
		t.Errorf("result = %v, want 42", got)
	}
	if f.StackDepth() != 0 {
		t.Errorf("stack depth = %d, want 0", f.StackDepth())
	}
}

func TestInterpreterJumps(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()

	// pick(c): c ifTrue: [^1] ifFalse: [^2]
	build := func(op Opcode) *CompiledMethod {
		b := NewCompiledMethodBuilder("pick", 1)
		bc := b.Bytecode()
		other := bc.NewLabel()
		b.LoadLocal(1)
		bc.EmitJump(op, other)
		b.PushConst(int64(1)).Op(OpReturn)
		bc.Mark(other)
		b.PushConst(int64(2)).Op(OpReturn)
		return b.Build()
	}

	ifFalse := build(OpJumpIfFalse)
	ifTrue := build(OpJumpIfTrue)

	tests := []struct {
		cond        Value
		wantIfFalse int64
		wantIfTrue  int64
	}{
		{true, 1, 2},
		{false, 2, 1},
		{nil, 2, 1},
		{int64(0), 1, 2}, // only nil and false are false
		{"", 1, 2},
	}
	for _, tt := range tests {
		got, err := f.Call(ifFalse, nil, tt.cond)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.wantIfFalse {
			t.Errorf("JUMP_IF_FALSE %v: result = %v, want %d", tt.cond, got, tt.wantIfFalse)
		}
		got, err = f.Call(ifTrue, nil, tt.cond)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.wantIfTrue {
			t.Errorf("JUMP_IF_TRUE %v: result = %v, want %d", tt.cond, got, tt.wantIfTrue)
		}
	}
}

func TestInterpreterLoop(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()

	got, err := f.Call(buildSum(false), nil, int64(100))
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(4950) {
		t.Errorf("sum(100) = %v, want 4950", got)
	}
	if f.Suspended() {
		t.Error("fiber suspended without an interrupt")
	}
}

func TestInterpreterFibonacci(t *testing.T) {
	for _, cache := range []bool{true, false} {
		rt := newTestRuntime(t, cache)
		f := rt.NewFiber()

		class := NewClass("Math")
		class.AddMethod(buildFib())
		inst := class.NewInstance()

		got, err := f.HostCall(inst, "fib", int64(10))
		if err != nil {
			t.Fatalf("cache=%v: %v", cache, err)
		}
		if got != int64(55) {
			t.Errorf("cache=%v: fib(10) = %v, want 55", cache, got)
		}
	}
}

func TestInterpreterListGet(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()

	// [10, 20, 30] get: 1
	b := NewCompiledMethodBuilder("second", 0)
	b.PushConst(int64(10)).PushConst(int64(20)).PushConst(int64(30))
	b.Bytecode().EmitUint32(OpNewList, 3)
	b.PushConst(int64(1)).Call("get", 1).Op(OpReturn)
	m := b.Build()

	got, err := f.Call(m, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(20) {
		t.Errorf("result = %v, want 20", got)
	}
}

func TestInterpreterNewDict(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()

	// {"a": 1, "b": 2} get: "b"
	b := NewCompiledMethodBuilder("dict", 0)
	b.PushConst("a").PushConst(int64(1)).PushConst("b").PushConst(int64(2))
	b.Bytecode().EmitUint32(OpNewDict, 2)
	b.PushConst("b").Call("get", 1).Op(OpReturn)

	got, err := f.Call(b.Build(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(2) {
		t.Errorf("result = %v, want 2", got)
	}
}

func TestInterpreterFieldsAndNew(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()

	point := NewClass("Point", "x", "y")

	// setX(v): x := v. ^x
	setX := NewCompiledMethodBuilder("setX", 1)
	setX.LoadLocal(1).Bytecode().EmitByte(OpStoreField, 0)
	setX.Bytecode().EmitByte(OpLoadField, 0)
	setX.Op(OpReturn)
	point.AddMethod(setX.Build())

	// make: ^Point new setX: 7
	b := NewCompiledMethodBuilder("make", 0)
	b.Bytecode().EmitUint32(OpNew, uint32(b.AddConstant(point)))
	b.PushConst(int64(7)).Call("setX", 1).Op(OpReturn)

	got, err := f.Call(b.Build(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(7) {
		t.Errorf("result = %v, want 7", got)
	}
}

// ---------------------------------------------------------------------------
// Faults
// ---------------------------------------------------------------------------

func TestInterpreterInvalidOpcode(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()

	m := NewCompiledMethod("bad", 0)
	m.Code = []byte{byte(OpNOP), 0xEE}

	_, err := f.Call(m, nil)
	if !errors.Is(err, ErrInvalidOpcode) {
		t.Fatalf("err = %v, want invalid opcode", err)
	}
	var fault *Fault
	if !errors.As(err, &fault) {
		t.Fatalf("err is %T, want *Fault", err)
	}
	if fault.IP != 1 || fault.Method != "bad/0" {
		t.Errorf("fault at %s ip %d, want bad/0 ip 1", fault.Method, fault.IP)
	}
	if f.FrameDepth() != 0 || f.StackDepth() != 0 {
		t.Errorf("fiber not reset: frames=%d stack=%d", f.FrameDepth(), f.StackDepth())
	}
}

func TestInterpreterCorruptStream(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()

	// POP on an empty operand stack
	m := NewCompiledMethodBuilder("underflow", 0).Op(OpPOP).Build()
	_, err := f.Call(m, nil)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want corrupt", err)
	}

	// Truncated operand
	m = NewCompiledMethod("truncated", 0)
	m.Code = []byte{byte(OpPushConst), 0, 0}
	if _, err := f.Call(m, nil); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want corrupt", err)
	}

	// The fiber is still usable
	got, err := f.Call(buildConst("ok", int64(1)), nil)
	if err != nil || got != int64(1) {
		t.Errorf("after corrupt fault: got %v, %v", got, err)
	}
}

func TestInterpreterHostErrorWrapped(t *testing.T) {
	rt := newTestRuntime(t, true)
	f := rt.NewFiber()

	m := NewCompiledMethodBuilder("divide", 0).
		PushConst(int64(1)).PushConst(int64(0)).Op(OpDiv).Op(OpReturn).Build()

	_, err := f.Call(m, nil)
	if !errors.Is(err, ErrInvocationFailed) {
		t.Fatalf("err = %v, want invocation failure", err)
	}
	if !errors.Is(err, ErrZeroDivide) {
		t.Errorf("err = %v, want wrapped division by zero", err)
	}
}
