package vm

// ---------------------------------------------------------------------------
// Trait delegation: method resolution for script instances
// ---------------------------------------------------------------------------

// maxTraitDepth bounds how far delegation chains are followed. A delegate
// field that (directly or indirectly) refers back to its owner would
// otherwise loop forever.
const maxTraitDepth = 16

// Resolution is the outcome of resolving a name/arity against an instance.
type Resolution struct {
	Method   *CompiledMethod // nil when nothing matched
	Receiver *Instance       // the instance that owns Method (the delegate for trait hits)
	Delegate int             // trait field index that supplied Method, or -1 for the class itself

	// ArityMismatch is set when no method matched but some method along the
	// lookup path had the requested name.
	ArityMismatch bool
}

// ResolveInstance resolves name/arity against inst: first the class's own
// instance slots, then each trait delegate in declaration order. Delegates
// are read from the instance's fields at call time, so replacing a delegate
// changes what is found without touching the class.
func ResolveInstance(inst *Instance, name string, arity int) Resolution {
	res := resolveInstance(inst, name, arity, 0)
	if res.Method == nil {
		res.Receiver = nil
		res.Delegate = -1
	}
	return res
}

func resolveInstance(inst *Instance, name string, arity int, depth int) Resolution {
	class := inst.Class
	m, nameSeen := scanSlots(class.Methods, name, arity)
	if m != nil {
		return Resolution{Method: m, Receiver: inst, Delegate: -1}
	}
	if depth >= maxTraitDepth {
		return Resolution{Delegate: -1, ArityMismatch: nameSeen}
	}

	for _, idx := range class.Traits {
		if idx < 0 || idx >= len(inst.Fields) {
			continue
		}
		delegate, ok := inst.Fields[idx].(*Instance)
		if !ok || delegate == nil {
			continue
		}
		res := resolveInstance(delegate, name, arity, depth+1)
		if res.Method != nil {
			if depth == 0 {
				res.Delegate = idx
			}
			return res
		}
		nameSeen = nameSeen || res.ArityMismatch
	}
	return Resolution{Delegate: -1, ArityMismatch: nameSeen}
}

// RespondsTo reports whether inst (or one of its delegates) handles
// name/arity.
func RespondsTo(inst *Instance, name string, arity int) bool {
	return ResolveInstance(inst, name, arity).Method != nil
}
