package vm

// Instance is a script object: a class reference plus its field slots.
// Field indices are fixed by the front end; the interpreter addresses them
// directly through LOAD_FIELD / STORE_FIELD.
type Instance struct {
	Class  *Class
	Fields []Value
}

// NumFields returns the number of field slots.
func (o *Instance) NumFields() int {
	return len(o.Fields)
}

// Field returns the value in the given slot.
func (o *Instance) Field(index int) Value {
	return o.Fields[index]
}

// SetField stores a value in the given slot.
func (o *Instance) SetField(index int, v Value) {
	o.Fields[index] = v
}

// FieldNamed returns the value of a field by name, or nil if absent.
func (o *Instance) FieldNamed(name string) Value {
	if idx := o.Class.FieldIndex(name); idx >= 0 {
		return o.Fields[idx]
	}
	return nil
}
