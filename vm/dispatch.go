package vm

import (
	"fmt"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Call dispatch
// ---------------------------------------------------------------------------

// invoke dispatches name with argCount explicit arguments. The receiver
// sits argCount entries below the top of the operand stack, followed by the
// arguments. On completion the receiver and arguments have been replaced
// by the result. m and ip identify the call site for caching and
// diagnostics; m is nil for calls made by host code.
//
// Script instances resolve against their class and its trait delegates,
// classes against their shared methods; both are resolved fresh on every
// call. Everything else is a host value and goes through the call cache.
func (f *Fiber) invoke(m *CompiledMethod, ip int, name string, argCount int, isOperator bool) (outcome, error) {
	receiver := f.peek(argCount)

	switch r := receiver.(type) {
	case *Instance:
		res := ResolveInstance(r, name, argCount)
		if res.Method != nil {
			if res.Receiver != r {
				f.stack[len(f.stack)-1-argCount] = res.Receiver
			}
			return f.callCompiled(m, ip, res.Method, argCount)
		}
		if res.ArityMismatch {
			return completed, f.dispatchFault(KindArityMismatch, m, ip, receiver, name, argCount, isOperator)
		}

	case *Class:
		target, nameSeen := scanSlots(r.SharedMethods, name, argCount)
		if target != nil {
			return f.callCompiled(m, ip, target, argCount)
		}
		if nameSeen {
			return completed, f.dispatchFault(KindArityMismatch, m, ip, receiver, name, argCount, isOperator)
		}
	}

	return completed, f.callHost(m, ip, name, argCount, isOperator)
}

// callCompiled pushes a frame for target over the receiver and arguments,
// runs it and pops the frame on every exit path.
func (f *Fiber) callCompiled(m *CompiledMethod, ip int, target *CompiledMethod, argCount int) (outcome, error) {
	if err := f.prepareCall(f.window, argCount+1); err != nil {
		fault := newFault(KindStackOverflow, m, ip, "calling %s", target)
		fault.Err = err
		return completed, fault
	}
	out, err := f.run(target)
	f.postCall()
	return out, err
}

// callHost pops the receiver and arguments, resolves the host method
// (through the call cache when the call comes from a compiled method) and
// pushes its result.
func (f *Fiber) callHost(m *CompiledMethod, ip int, name string, argCount int, isOperator bool) error {
	args := f.popN(argCount)
	receiver := f.pop()

	cache := f.rt.cache
	if m == nil {
		cache = nil
	}

	var target *HostMethod
	if cache != nil {
		target = cache.Lookup(m.id, ip, receiver, args)
	}
	if target == nil {
		var nameSeen bool
		target, nameSeen = f.rt.hosts.Resolve(receiver, name, args)
		if target == nil {
			kind := KindMethodNotFound
			if nameSeen && !f.hostArityKnown(receiver, name, argCount) {
				kind = KindArityMismatch
			}
			return f.dispatchFault(kind, m, ip, receiver, name, argCount, isOperator)
		}
		if cache != nil {
			if cache.Insert(newCallCacheEntry(m.id, ip, receiver, args, target)) && log.AllowLevel(commonlog.Debug) {
				log.Debugf("call cache: evicted home slot for %s at ip %d", m, ip)
			}
		}
	}

	result, err := f.callHostMethod(target, receiver, args)
	if err != nil {
		fault := newFault(KindInvocationFailed, m, ip, "%s", target)
		fault.Err = err
		return fault
	}
	f.push(result)
	return nil
}

// callHostMethod runs a host method, converting a panic into an error.
func (f *Fiber) callHostMethod(target *HostMethod, receiver Value, args []Value) (result Value, err error) {
	f.stats.HostCalls++
	f.hostDepth++
	defer func() {
		f.hostDepth--
		if r := recover(); r != nil {
			result = nil
			err = &HostPanic{Value: r}
		}
	}()
	return target.Fn(f, receiver, args)
}

// hostArityKnown reports whether some host method named name takes arity
// arguments on receiver's type or on Object.
func (f *Fiber) hostArityKnown(receiver Value, name string, arity int) bool {
	if t := f.rt.hosts.LookupByType(typeOf(receiver)); t != nil && t.hasArity(name, arity) {
		return true
	}
	return f.rt.hosts.Object().hasArity(name, arity)
}

// dispatchFault builds a method-not-found or arity fault naming the
// receiver type and the requested signature.
func (f *Fiber) dispatchFault(kind FaultKind, m *CompiledMethod, ip int, receiver Value, name string, argCount int, isOperator bool) *Fault {
	what := "method"
	if isOperator {
		what = "operator"
	}
	msg := fmt.Sprintf("%s does not understand %s %s/%d", f.rt.hosts.typeName(receiver), what, name, argCount)
	if kind == KindArityMismatch {
		msg = fmt.Sprintf("%s %s on %s takes a different number of arguments than %d", what, name, f.rt.hosts.typeName(receiver), argCount)
	}
	fault := newFault(kind, m, ip, "%s", msg)
	if m == nil {
		fault.IP = -1
	}
	return fault
}
