package vm

import (
	"reflect"
	"testing"
)

func newTestRuntime(t *testing.T, cache bool) *Runtime {
	t.Helper()
	opts := DefaultOptions()
	opts.DisableCache = !cache
	return NewRuntime(opts)
}

// ticker is a host value whose tick method requests an interrupt every
// `every` calls.
type ticker struct {
	every int
	count int
}

func registerTicker(rt *Runtime) {
	rt.HostTypes().Register(reflect.TypeFor[*ticker](), "Ticker").
		Method0("tick", func(f *Fiber, recv Value) (Value, error) {
			tk := recv.(*ticker)
			tk.count++
			if tk.every > 0 && tk.count%tk.every == 0 {
				f.Interrupt()
			}
			return nil, nil
		})
}

// runToCompletion calls m and keeps dispatching until the Fiber no longer
// suspends. It returns the result and the number of suspensions.
func runToCompletion(t *testing.T, f *Fiber, m *CompiledMethod, receiver Value, args ...Value) (Value, int) {
	t.Helper()
	v, err := f.Call(m, receiver, args...)
	if err != nil {
		t.Fatalf("Call %s: %v", m, err)
	}
	n := 0
	for f.Suspended() {
		n++
		if n > 100000 {
			t.Fatal("fiber never completed")
		}
		v, err = f.Dispatch()
		if err != nil {
			t.Fatalf("Dispatch %s: %v", m, err)
		}
	}
	return v, n
}

// buildSum builds sum(n) = 0 + 1 + ... + (n-1) as a counting loop.
// When ticked is true it takes a second argument and sends it tick on
// every iteration.
func buildSum(ticked bool) *CompiledMethod {
	argc := 1
	if ticked {
		argc = 2
	}
	b := NewCompiledMethodBuilder("sum", argc)
	i := b.AddLocal()
	acc := b.AddLocal()
	bc := b.Bytecode()

	b.PushConst(int64(0)).StoreLocal(i)
	b.PushConst(int64(0)).StoreLocal(acc)

	top := bc.NewLabel()
	done := bc.NewLabel()
	bc.Mark(top)
	b.LoadLocal(i).LoadLocal(1).Op(OpLt)
	bc.EmitJump(OpJumpIfFalse, done)
	if ticked {
		b.LoadLocal(2).Call("tick", 0).Op(OpPOP)
	}
	b.LoadLocal(acc).LoadLocal(i).Op(OpAdd).StoreLocal(acc)
	b.LoadLocal(i).PushConst(int64(1)).Op(OpAdd).StoreLocal(i)
	bc.EmitJump(OpJump, top)
	bc.Mark(done)
	b.LoadLocal(acc).Op(OpReturn)
	return b.Build()
}

// buildFib builds the recursive fib(n) as an instance method.
func buildFib() *CompiledMethod {
	b := NewCompiledMethodBuilder("fib", 1)
	bc := b.Bytecode()
	recurse := bc.NewLabel()

	b.LoadLocal(1).PushConst(int64(2)).Op(OpLt)
	bc.EmitJump(OpJumpIfFalse, recurse)
	b.LoadLocal(1).Op(OpReturn)

	bc.Mark(recurse)
	b.LoadLocal(0).LoadLocal(1).PushConst(int64(1)).Op(OpSub).Call("fib", 1)
	b.LoadLocal(0).LoadLocal(1).PushConst(int64(2)).Op(OpSub).Call("fib", 1)
	b.Op(OpAdd).Op(OpReturn)
	return b.Build()
}

// buildTickedFib builds fib(n, ticker): fib that first runs a one-iteration
// loop sending tick, so every frame passes a backward jump.
func buildTickedFib() *CompiledMethod {
	b := NewCompiledMethodBuilder("fib", 2)
	i := b.AddLocal()
	bc := b.Bytecode()

	b.PushConst(int64(0)).StoreLocal(i)
	top := bc.NewLabel()
	body := bc.NewLabel()
	recurse := bc.NewLabel()
	bc.Mark(top)
	b.LoadLocal(i).PushConst(int64(1)).Op(OpLt)
	bc.EmitJump(OpJumpIfFalse, body)
	b.LoadLocal(2).Call("tick", 0).Op(OpPOP)
	b.LoadLocal(i).PushConst(int64(1)).Op(OpAdd).StoreLocal(i)
	bc.EmitJump(OpJump, top)

	bc.Mark(body)
	b.LoadLocal(1).PushConst(int64(2)).Op(OpLt)
	bc.EmitJump(OpJumpIfFalse, recurse)
	b.LoadLocal(1).Op(OpReturn)

	bc.Mark(recurse)
	b.LoadLocal(0).LoadLocal(1).PushConst(int64(1)).Op(OpSub).LoadLocal(2).Call("fib", 2)
	b.LoadLocal(0).LoadLocal(1).PushConst(int64(2)).Op(OpSub).LoadLocal(2).Call("fib", 2)
	b.Op(OpAdd).Op(OpReturn)
	return b.Build()
}

// buildConst builds a zero-argument method answering v.
func buildConst(name string, v Value) *CompiledMethod {
	return NewCompiledMethodBuilder(name, 0).PushConst(v).Op(OpReturn).Build()
}
