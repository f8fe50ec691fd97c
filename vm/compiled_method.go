package vm

import (
	"fmt"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// CompiledMethod: Bytecode-based method implementation
// ---------------------------------------------------------------------------

// CompiledMethod is the immutable output of the front end for one method.
// It is shared across Fibers and holds no per-call state; every Fiber that
// runs it keeps its own locals and operand stack.
type CompiledMethod struct {
	id uint32 // process-unique identity, used to hash call sites

	name   string // method name
	module string // owning module (diagnostics only)

	// Method signature
	ArgCount  int // declared arguments, not counting the receiver
	NumLocals int // local window: receiver + arguments + temporaries

	// Compiled code
	Constants []Value // constant pool (numbers, strings, names, classes)
	Code      []byte  // the bytecode instructions
}

var methodIDs atomic.Uint32

// NewCompiledMethod creates a method with an empty body.
// The local window starts as receiver plus arguments.
func NewCompiledMethod(name string, argCount int) *CompiledMethod {
	return &CompiledMethod{
		id:        methodIDs.Add(1),
		name:      name,
		ArgCount:  argCount,
		NumLocals: argCount + 1,
		Constants: make([]Value, 0, 8),
		Code:      make([]byte, 0, 32),
	}
}

// Name returns the method name.
func (m *CompiledMethod) Name() string {
	return m.name
}

// Module returns the owning module name.
func (m *CompiledMethod) Module() string {
	return m.module
}

// ID returns the method's identity.
func (m *CompiledMethod) ID() uint32 {
	return m.id
}

// Signature returns "name/arity".
func (m *CompiledMethod) Signature() string {
	return fmt.Sprintf("%s/%d", m.name, m.ArgCount)
}

// String implements the Stringer interface.
func (m *CompiledMethod) String() string {
	if m.module == "" {
		return m.Signature()
	}
	return m.module + "." + m.Signature()
}

// Constant returns the constant at the given index.
// Panics if index is out of range.
func (m *CompiledMethod) Constant(index int) Value {
	if index < 0 || index >= len(m.Constants) {
		panic(fmt.Sprintf("CompiledMethod.Constant: index %d out of range (len=%d)", index, len(m.Constants)))
	}
	return m.Constants[index]
}

// Disassemble returns a listing of the method's code.
func (m *CompiledMethod) Disassemble() string {
	return Disassemble(m.Code, m.Constants)
}

// ---------------------------------------------------------------------------
// CompiledMethodBuilder: Helper for constructing methods
// ---------------------------------------------------------------------------

// CompiledMethodBuilder helps construct CompiledMethod instances.
type CompiledMethodBuilder struct {
	method   *CompiledMethod
	bytecode *BytecodeBuilder
	names    map[string]int
}

// NewCompiledMethodBuilder creates a new method builder.
func NewCompiledMethodBuilder(name string, argCount int) *CompiledMethodBuilder {
	return &CompiledMethodBuilder{
		method:   NewCompiledMethod(name, argCount),
		bytecode: NewBytecodeBuilder(),
		names:    make(map[string]int),
	}
}

// SetModule sets the owning module.
func (b *CompiledMethodBuilder) SetModule(module string) *CompiledMethodBuilder {
	b.method.module = module
	return b
}

// SetNumLocals sets the size of the local window.
func (b *CompiledMethodBuilder) SetNumLocals(n int) *CompiledMethodBuilder {
	b.method.NumLocals = n
	return b
}

// AddLocal grows the local window by 1 and returns the new slot index.
func (b *CompiledMethodBuilder) AddLocal() int {
	idx := b.method.NumLocals
	b.method.NumLocals++
	return idx
}

// AddConstant adds a constant and returns its index.
func (b *CompiledMethodBuilder) AddConstant(v Value) int {
	idx := len(b.method.Constants)
	b.method.Constants = append(b.method.Constants, v)
	return idx
}

// Name interns a call name in the constant pool and returns its index.
func (b *CompiledMethodBuilder) Name(name string) int {
	if idx, ok := b.names[name]; ok {
		return idx
	}
	idx := b.AddConstant(name)
	b.names[name] = idx
	return idx
}

// Bytecode returns the bytecode builder for direct emission.
func (b *CompiledMethodBuilder) Bytecode() *BytecodeBuilder {
	return b.bytecode
}

// PushConst emits PUSH_CONST for a new constant.
func (b *CompiledMethodBuilder) PushConst(v Value) *CompiledMethodBuilder {
	b.bytecode.EmitUint32(OpPushConst, uint32(b.AddConstant(v)))
	return b
}

// LoadLocal emits LOAD_LOCAL.
func (b *CompiledMethodBuilder) LoadLocal(idx int) *CompiledMethodBuilder {
	b.bytecode.EmitByte(OpLoadLocal, byte(idx))
	return b
}

// StoreLocal emits STORE_LOCAL.
func (b *CompiledMethodBuilder) StoreLocal(idx int) *CompiledMethodBuilder {
	b.bytecode.EmitByte(OpStoreLocal, byte(idx))
	return b
}

// Call emits a named CALL with argc explicit arguments.
func (b *CompiledMethodBuilder) Call(name string, argc int) *CompiledMethodBuilder {
	b.bytecode.EmitCall(uint8(argc), uint32(b.Name(name)))
	return b
}

// Op emits an operand-less opcode.
func (b *CompiledMethodBuilder) Op(op Opcode) *CompiledMethodBuilder {
	b.bytecode.Emit(op)
	return b
}

// Build finalizes and returns the compiled method.
func (b *CompiledMethodBuilder) Build() *CompiledMethod {
	b.method.Code = b.bytecode.Bytes()
	return b.method
}
