package vm

import (
	"bytes"
	"strings"
	"testing"
)

func TestOpcodeInfo(t *testing.T) {
	tests := []struct {
		op       Opcode
		name     string
		operands int
	}{
		{OpNOP, "NOP", 0},
		{OpPushConst, "PUSH_CONST", 4},
		{OpLoadLocal, "LOAD_LOCAL", 1},
		{OpStoreField, "STORE_FIELD", 1},
		{OpCall, "CALL", 5},
		{OpJumpIfFalse, "JUMP_IF_FALSE", 4},
		{OpNewDict, "NEW_DICT", 4},
		{OpReturn, "RETURN", 0},
	}
	for _, tt := range tests {
		if got := tt.op.Name(); got != tt.name {
			t.Errorf("%#x Name() = %q, want %q", byte(tt.op), got, tt.name)
		}
		if got := tt.op.OperandBytes(); got != tt.operands {
			t.Errorf("%s OperandBytes() = %d, want %d", tt.name, got, tt.operands)
		}
		if !tt.op.Valid() {
			t.Errorf("%s should be valid", tt.name)
		}
	}

	bad := Opcode(0xEE)
	if bad.Valid() {
		t.Error("0xEE should be invalid")
	}
	if bad.String() != "UNKNOWN_EE" {
		t.Errorf("String() = %q, want UNKNOWN_EE", bad.String())
	}
}

func TestOperatorNames(t *testing.T) {
	for op, want := range map[Opcode]string{OpAdd: "plus", OpNeg: "neg", OpGe: "ge", OpMod: "mod"} {
		name, ok := op.OperatorName()
		if !ok || name != want {
			t.Errorf("%s OperatorName() = %q, %v, want %q", op, name, ok, want)
		}
	}
	if _, ok := OpCall.OperatorName(); ok {
		t.Error("CALL is not an operator")
	}
}

func TestBytecodeBuilderEncoding(t *testing.T) {
	b := NewBytecodeBuilder()
	b.EmitUint32(OpPushConst, 0x01020304)
	b.EmitByte(OpLoadLocal, 7)
	b.EmitCall(2, 9)
	b.Emit(OpReturn)

	want := []byte{
		byte(OpPushConst), 1, 2, 3, 4,
		byte(OpLoadLocal), 7,
		byte(OpCall), 2, 0, 0, 0, 9,
		byte(OpReturn),
	}
	if !bytes.Equal(b.Bytes(), want) {
		t.Errorf("bytes = %v, want %v", b.Bytes(), want)
	}
	if b.Len() != len(want) {
		t.Errorf("Len = %d, want %d", b.Len(), len(want))
	}
}

func TestBytecodeLabels(t *testing.T) {
	b := NewBytecodeBuilder()
	back := b.NewLabel()
	fwd := b.NewLabel()

	b.Mark(back)
	b.Emit(OpNOP)                  // 0
	b.EmitJump(OpJumpIfFalse, fwd) // 1
	b.EmitJump(OpJump, back)       // 6
	b.Mark(fwd)
	b.Emit(OpReturn) // 11

	r := NewBytecodeReader(b.Bytes())
	r.Skip(1)
	if op := r.ReadOpcode(); op != OpJumpIfFalse {
		t.Fatalf("opcode = %s", op)
	}
	if target := r.ReadUint32(); target != 11 {
		t.Errorf("forward target = %d, want 11", target)
	}
	r.ReadOpcode()
	if target := r.ReadUint32(); target != 0 {
		t.Errorf("backward target = %d, want 0", target)
	}
}

func TestBytecodeMarkTwicePanics(t *testing.T) {
	b := NewBytecodeBuilder()
	l := b.NewLabel()
	b.Mark(l)
	defer func() {
		if recover() == nil {
			t.Error("second Mark should panic")
		}
	}()
	b.Mark(l)
}

func TestBytecodeReaderUnderflow(t *testing.T) {
	r := NewBytecodeReader([]byte{1, 2})
	defer func() {
		if recover() == nil {
			t.Error("ReadUint32 past the end should panic")
		}
	}()
	r.ReadUint32()
}

func TestDisassemble(t *testing.T) {
	m := buildFib()
	m.module = "math"
	out := m.Disassemble()

	for _, want := range []string{
		"0000  LOAD_LOCAL 1",
		"PUSH_CONST 0 (2)",
		"JUMP_IF_FALSE ->",
		"LT (lt)",
		"CALL fib/1",
		"ADD (plus)",
		"RETURN",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}

	if got := Disassemble([]byte{byte(OpPushConst), 0, 0, 0, 9}, nil); got != "0000  PUSH_CONST 9" {
		t.Errorf("constant without pool = %q", got)
	}
	if got := Disassemble([]byte{byte(OpCall), 1, 0, 0, 0, 3}, nil); got != "0000  CALL name=3 argc=1" {
		t.Errorf("call without pool = %q", got)
	}
}
