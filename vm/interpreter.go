package vm

import (
	"encoding/binary"
	"reflect"
)

// ---------------------------------------------------------------------------
// Interpreter: bytecode execution
// ---------------------------------------------------------------------------

// frameSize returns the local window a frame of m occupies.
func frameSize(m *CompiledMethod) int {
	if n := m.ArgCount + 1; m.NumLocals < n {
		return n
	}
	return m.NumLocals
}

// run executes m from its first instruction in a frame prepareCall has
// already pushed with the receiver and arguments in place.
func (f *Fiber) run(m *CompiledMethod) (outcome, error) {
	n := frameSize(m)
	if err := f.ensureLocals(f.base + n); err != nil {
		return completed, &Fault{Kind: KindStackOverflow, Method: m.Signature(), Module: m.module, IP: 0, Err: err}
	}
	clear(f.locals[f.base+m.ArgCount+1 : f.base+n])
	f.window = n

	f.stats.Calls++
	if p := f.rt.profiler; p != nil {
		p.RecordMethodInvocation(m)
	}
	return f.loop(m, 0)
}

// loop is the dispatch loop. It runs m's code from ip in the current frame
// until RETURN (result left on the operand stack), a fault, or a
// suspension.
func (f *Fiber) loop(m *CompiledMethod, ip int) (outcome, error) {
	code := m.Code
	consts := m.Constants

	for {
		if ip >= len(code) {
			// Implicit return of self at end of code
			f.push(f.getLocal(0))
			return completed, nil
		}

		op := Opcode(code[ip])
		switch op {
		// --- Stack operations ---
		case OpNOP:
			ip++

		case OpPOP:
			f.pop()
			ip++

		case OpDUP:
			f.push(f.top())
			ip++

		case OpSWAP:
			n := len(f.stack)
			if n < 2 {
				panic(errStackUnderflow)
			}
			f.stack[n-1], f.stack[n-2] = f.stack[n-2], f.stack[n-1]
			ip++

		// --- Push constants ---
		case OpPushNil:
			f.push(nil)
			ip++

		case OpPushTrue:
			f.push(true)
			ip++

		case OpPushFalse:
			f.push(false)
			ip++

		case OpPushConst:
			f.push(consts[operand32(code, ip)])
			ip += 5

		// --- Variables ---
		case OpLoadLocal:
			f.push(f.getLocal(int(code[ip+1])))
			ip += 2

		case OpStoreLocal:
			f.setLocal(int(code[ip+1]), f.pop())
			ip += 2

		case OpLoadField:
			self, ok := f.getLocal(0).(*Instance)
			idx := int(code[ip+1])
			if !ok || idx >= len(self.Fields) {
				return completed, newFault(KindCorrupt, m, ip, "LOAD_FIELD %d on %s", idx, TypeName(f.getLocal(0)))
			}
			f.push(self.Fields[idx])
			ip += 2

		case OpStoreField:
			self, ok := f.getLocal(0).(*Instance)
			idx := int(code[ip+1])
			if !ok || idx >= len(self.Fields) {
				return completed, newFault(KindCorrupt, m, ip, "STORE_FIELD %d on %s", idx, TypeName(f.getLocal(0)))
			}
			self.Fields[idx] = f.pop()
			ip += 2

		// --- Calls ---
		case OpCall:
			argc := int(code[ip+1])
			name, ok := consts[operand32(code, ip+1)].(string)
			if !ok {
				return completed, newFault(KindCorrupt, m, ip, "CALL name constant is %s", TypeName(consts[operand32(code, ip+1)]))
			}
			site := ip
			ip += 6
			out, err := f.invoke(m, site, name, argc, false)
			if err != nil {
				return completed, err
			}
			if out == suspended {
				f.suspendFrame(m, ip)
				return suspended, nil
			}

		case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpNeg, OpNot, OpEq, OpLt, OpLe, OpGt, OpGe:
			o := operatorNames[op]
			site := ip
			ip++
			out, err := f.invoke(m, site, o.Name, o.Argc, true)
			if err != nil {
				return completed, err
			}
			if out == suspended {
				f.suspendFrame(m, ip)
				return suspended, nil
			}

		// --- Control flow ---
		case OpJump:
			target := operand32(code, ip)
			if target <= ip && f.checkpoint() {
				f.suspendFrame(m, target)
				return suspended, nil
			}
			ip = target

		case OpJumpIfFalse, OpJumpIfTrue:
			target := operand32(code, ip)
			if IsTruthy(f.pop()) == (op == OpJumpIfTrue) {
				if target <= ip && f.checkpoint() {
					f.suspendFrame(m, target)
					return suspended, nil
				}
				ip = target
			} else {
				ip += 5
			}

		// --- Returns ---
		case OpReturn:
			return completed, nil

		// --- Object creation ---
		case OpNewList:
			n := operand32(code, ip)
			f.push(&List{Elements: f.popN(n)})
			ip += 5

		case OpNewDict:
			n := operand32(code, ip)
			pairs := f.popN(2 * n)
			d := NewDict()
			for i := 0; i < len(pairs); i += 2 {
				if k := pairs[i]; k != nil && !reflect.TypeOf(k).Comparable() {
					return completed, newFault(KindCorrupt, m, ip, "unhashable dictionary key %s", TypeName(k))
				}
				d.Set(pairs[i], pairs[i+1])
			}
			f.push(d)
			ip += 5

		case OpNew:
			c, ok := consts[operand32(code, ip)].(*Class)
			if !ok {
				return completed, newFault(KindCorrupt, m, ip, "NEW of non-class constant")
			}
			f.push(c.NewInstance())
			ip += 5

		default:
			return completed, newFault(KindInvalidOpcode, m, ip, "opcode 0x%02X", byte(op))
		}
	}
}

// operand32 decodes the 4-byte operand following the opcode at ip.
func operand32(code []byte, ip int) int {
	return int(binary.BigEndian.Uint32(code[ip+1:]))
}
