package vm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack Operations
const (
	OpNOP  Opcode = 0x00 // no operation
	OpPOP  Opcode = 0x01 // discard top of stack
	OpDUP  Opcode = 0x02 // duplicate top of stack
	OpSWAP Opcode = 0x03 // exchange the two topmost values
)

// Push Constants
const (
	OpPushNil   Opcode = 0x10 // push nil
	OpPushTrue  Opcode = 0x11 // push true
	OpPushFalse Opcode = 0x12 // push false
	OpPushConst Opcode = 0x13 // push constant (32-bit pool index)
)

// Variable Operations
const (
	OpLoadLocal  Opcode = 0x20 // push local (8-bit index)
	OpStoreLocal Opcode = 0x21 // pop into local (8-bit index)
	OpLoadField  Opcode = 0x22 // push field of self (8-bit index)
	OpStoreField Opcode = 0x23 // pop into field of self (8-bit index)
)

// Named dynamic call
const (
	OpCall Opcode = 0x30 // call (8-bit argc, 32-bit name index)
)

// Operators. Each is a named virtual call on the left operand; none of them
// compute anything inside the interpreter.
const (
	OpAdd Opcode = 0x40 // plus
	OpSub Opcode = 0x41 // minus
	OpMul Opcode = 0x42 // times
	OpDiv Opcode = 0x43 // div
	OpMod Opcode = 0x44 // mod
	OpNeg Opcode = 0x45 // neg
	OpNot Opcode = 0x46 // not
	OpEq  Opcode = 0x47 // eq
	OpLt  Opcode = 0x48 // lt
	OpLe  Opcode = 0x49 // le
	OpGt  Opcode = 0x4A // gt
	OpGe  Opcode = 0x4B // ge
)

// Control Flow
const (
	OpJump        Opcode = 0x60 // unconditional jump (32-bit absolute target)
	OpJumpIfFalse Opcode = 0x61 // pop, jump if nil or false
	OpJumpIfTrue  Opcode = 0x62 // pop, jump if neither nil nor false
)

// Returns
const (
	OpReturn Opcode = 0x70 // return top of stack
)

// Object Creation
const (
	OpNewList Opcode = 0x90 // create list from stack (32-bit size)
	OpNewDict Opcode = 0x91 // create dictionary from key/value pairs (32-bit pair count)
	OpNew     Opcode = 0x92 // instantiate class constant (32-bit pool index)
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
	StackEffect  int    // net effect on stack (-1 = variable)
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP:  {"NOP", 0, 0},
	OpPOP:  {"POP", 0, -1},
	OpDUP:  {"DUP", 0, 1},
	OpSWAP: {"SWAP", 0, 0},

	OpPushNil:   {"PUSH_NIL", 0, 1},
	OpPushTrue:  {"PUSH_TRUE", 0, 1},
	OpPushFalse: {"PUSH_FALSE", 0, 1},
	OpPushConst: {"PUSH_CONST", 4, 1},

	OpLoadLocal:  {"LOAD_LOCAL", 1, 1},
	OpStoreLocal: {"STORE_LOCAL", 1, -1},
	OpLoadField:  {"LOAD_FIELD", 1, 1},
	OpStoreField: {"STORE_FIELD", 1, -1},

	OpCall: {"CALL", 5, -1}, // pops receiver + args, pushes result

	OpAdd: {"ADD", 0, -1},
	OpSub: {"SUB", 0, -1},
	OpMul: {"MUL", 0, -1},
	OpDiv: {"DIV", 0, -1},
	OpMod: {"MOD", 0, -1},
	OpNeg: {"NEG", 0, 0},
	OpNot: {"NOT", 0, 0},
	OpEq:  {"EQ", 0, -1},
	OpLt:  {"LT", 0, -1},
	OpLe:  {"LE", 0, -1},
	OpGt:  {"GT", 0, -1},
	OpGe:  {"GE", 0, -1},

	OpJump:        {"JUMP", 4, 0},
	OpJumpIfFalse: {"JUMP_IF_FALSE", 4, -1},
	OpJumpIfTrue:  {"JUMP_IF_TRUE", 4, -1},

	OpReturn: {"RETURN", 0, 0},

	OpNewList: {"NEW_LIST", 4, -1},
	OpNewDict: {"NEW_DICT", 4, -1},
	OpNew:     {"NEW", 4, 1},
}

// operatorNames maps operator opcodes to the method name they dispatch to,
// and the number of explicit arguments they pass.
var operatorNames = map[Opcode]struct {
	Name string
	Argc int
}{
	OpAdd: {"plus", 1},
	OpSub: {"minus", 1},
	OpMul: {"times", 1},
	OpDiv: {"div", 1},
	OpMod: {"mod", 1},
	OpNeg: {"neg", 0},
	OpNot: {"not", 0},
	OpEq:  {"eq", 1},
	OpLt:  {"lt", 1},
	OpLe:  {"le", 1},
	OpGt:  {"gt", 1},
	OpGe:  {"ge", 1},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op)), OperandBytes: 0, StackEffect: 0}
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// OperandBytes returns the number of operand bytes for an opcode.
func (op Opcode) OperandBytes() int {
	return op.Info().OperandBytes
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// OperatorName returns the method name an operator opcode dispatches to.
func (op Opcode) OperatorName() (string, bool) {
	o, ok := operatorNames[op]
	return o.Name, ok
}

// ---------------------------------------------------------------------------
// BytecodeBuilder: Helper for constructing bytecode
// ---------------------------------------------------------------------------

// BytecodeBuilder helps construct bytecode sequences.
type BytecodeBuilder struct {
	bytes []byte
}

// NewBytecodeBuilder creates a new bytecode builder.
func NewBytecodeBuilder() *BytecodeBuilder {
	return &BytecodeBuilder{
		bytes: make([]byte, 0, 64),
	}
}

// Bytes returns the constructed bytecode.
func (b *BytecodeBuilder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length, which is also the address of the next
// instruction.
func (b *BytecodeBuilder) Len() int {
	return len(b.bytes)
}

// Emit appends an opcode with no operands.
func (b *BytecodeBuilder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitRaw appends a raw byte to the bytecode.
func (b *BytecodeBuilder) EmitRaw(data byte) {
	b.bytes = append(b.bytes, data)
}

// EmitByte appends an opcode with a single byte operand.
func (b *BytecodeBuilder) EmitByte(op Opcode, operand byte) {
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitUint32 appends an opcode with a 32-bit big-endian operand.
func (b *BytecodeBuilder) EmitUint32(op Opcode, operand uint32) {
	b.bytes = append(b.bytes, byte(op))
	b.bytes = binary.BigEndian.AppendUint32(b.bytes, operand)
}

// EmitCall appends a CALL instruction.
func (b *BytecodeBuilder) EmitCall(argc uint8, nameIndex uint32) {
	b.bytes = append(b.bytes, byte(OpCall), argc)
	b.bytes = binary.BigEndian.AppendUint32(b.bytes, nameIndex)
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label represents a jump target that may not be placed yet.
type Label struct {
	resolved bool
	position int   // target address once resolved
	refs     []int // operand positions waiting for the address
}

// NewLabel creates an unresolved label.
func (b *BytecodeBuilder) NewLabel() *Label {
	return &Label{resolved: false, refs: make([]int, 0, 2)}
}

// Mark resolves a label to the current position.
func (b *BytecodeBuilder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.bytes)

	// Patch all forward references
	for _, ref := range label.refs {
		binary.BigEndian.PutUint32(b.bytes[ref:], uint32(label.position))
	}
	label.refs = nil
}

// EmitJump emits a jump instruction with a label.
func (b *BytecodeBuilder) EmitJump(op Opcode, label *Label) {
	b.bytes = append(b.bytes, byte(op))
	if label.resolved {
		b.bytes = binary.BigEndian.AppendUint32(b.bytes, uint32(label.position))
		return
	}
	label.refs = append(label.refs, len(b.bytes))
	b.bytes = append(b.bytes, 0, 0, 0, 0) // placeholder
}

// EmitJumpAbsolute emits a jump to an absolute instruction index.
func (b *BytecodeBuilder) EmitJumpAbsolute(op Opcode, target int) {
	b.EmitUint32(op, uint32(target))
}

// ---------------------------------------------------------------------------
// Bytecode reader for disassembly
// ---------------------------------------------------------------------------

// BytecodeReader reads bytecode for disassembly.
type BytecodeReader struct {
	bytes []byte
	pos   int
}

// NewBytecodeReader creates a reader for bytecode.
func NewBytecodeReader(bc []byte) *BytecodeReader {
	return &BytecodeReader{bytes: bc, pos: 0}
}

// Position returns the current read position.
func (r *BytecodeReader) Position() int {
	return r.pos
}

// HasMore returns true if there are more bytes to read.
func (r *BytecodeReader) HasMore() bool {
	return r.pos < len(r.bytes)
}

// ReadOpcode reads and returns the next opcode.
func (r *BytecodeReader) ReadOpcode() Opcode {
	return Opcode(r.ReadByte())
}

// ReadByte reads a single byte operand.
func (r *BytecodeReader) ReadByte() byte {
	if r.pos >= len(r.bytes) {
		panic("bytecode underflow")
	}
	b := r.bytes[r.pos]
	r.pos++
	return b
}

// ReadUint32 reads a 32-bit big-endian operand.
func (r *BytecodeReader) ReadUint32() uint32 {
	if r.pos+4 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.BigEndian.Uint32(r.bytes[r.pos:])
	r.pos += 4
	return v
}

// Skip advances the position by n bytes.
func (r *BytecodeReader) Skip(n int) {
	r.pos += n
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction disassembles a single instruction at the reader's
// position. Constants, when non-nil, are used to show call names.
func DisassembleInstruction(r *BytecodeReader, constants []Value) string {
	pos := r.Position()
	op := r.ReadOpcode()
	info := op.Info()

	switch op {
	case OpLoadLocal, OpStoreLocal, OpLoadField, OpStoreField:
		idx := r.ReadByte()
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, idx)

	case OpPushConst, OpNew:
		idx := r.ReadUint32()
		if int(idx) < len(constants) {
			return fmt.Sprintf("%04d  %s %d (%s)", pos, info.Name, idx, FormatValue(constants[idx]))
		}
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, idx)

	case OpNewList, OpNewDict:
		n := r.ReadUint32()
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, n)

	case OpJump, OpJumpIfFalse, OpJumpIfTrue:
		target := r.ReadUint32()
		return fmt.Sprintf("%04d  %s -> %04d", pos, info.Name, target)

	case OpCall:
		argc := r.ReadByte()
		idx := r.ReadUint32()
		if int(idx) < len(constants) {
			if name, ok := constants[idx].(string); ok {
				return fmt.Sprintf("%04d  %s %s/%d", pos, info.Name, name, argc)
			}
		}
		return fmt.Sprintf("%04d  %s name=%d argc=%d", pos, info.Name, idx, argc)
	}

	if name, ok := op.OperatorName(); ok {
		return fmt.Sprintf("%04d  %s (%s)", pos, info.Name, name)
	}
	r.Skip(info.OperandBytes)
	return fmt.Sprintf("%04d  %s", pos, info.Name)
}

// Disassemble returns a full disassembly of bytecode.
func Disassemble(bc []byte, constants []Value) string {
	r := NewBytecodeReader(bc)
	var sb strings.Builder
	for r.HasMore() {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(DisassembleInstruction(r, constants))
	}
	return sb.String()
}
