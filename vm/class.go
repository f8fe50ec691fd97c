package vm

import "sync"

// ---------------------------------------------------------------------------
// Class: script class descriptor
// ---------------------------------------------------------------------------

// Class describes a script class as produced by the front end: its field
// layout, instance and shared method slots, and the ordered list of fields
// that hold trait delegates.
//
// Classes are populated once (AddMethod, AddSharedMethod, AddTrait) before
// any Fiber dispatches against them and are read-only afterwards. There is
// no superclass: behavior is shared through trait delegates instead.
type Class struct {
	Name   string   // Class name
	Module string   // Owning module (empty for default)
	Fields []string // Field names; index = slot index

	Methods       []*CompiledMethod // instance-side method slots
	SharedMethods []*CompiledMethod // class-side method slots
	Traits        []int             // field indices of trait delegates, in lookup order
}

// NewClass creates a class with the given field layout.
func NewClass(name string, fields ...string) *Class {
	return &Class{
		Name:   name,
		Fields: fields,
	}
}

// AddMethod appends an instance-side method slot. The method is shared, not
// copied: its module is whatever its builder set.
func (c *Class) AddMethod(m *CompiledMethod) *Class {
	c.Methods = append(c.Methods, m)
	return c
}

// AddSharedMethod appends a class-side method slot.
func (c *Class) AddSharedMethod(m *CompiledMethod) *Class {
	c.SharedMethods = append(c.SharedMethods, m)
	return c
}

// AddTrait marks a field as a trait delegate. Delegates are consulted in
// the order they were added.
func (c *Class) AddTrait(fieldIndex int) *Class {
	c.Traits = append(c.Traits, fieldIndex)
	return c
}

// AddTraitField marks the named field as a trait delegate.
// Returns false if the class has no such field.
func (c *Class) AddTraitField(name string) bool {
	idx := c.FieldIndex(name)
	if idx < 0 {
		return false
	}
	c.AddTrait(idx)
	return true
}

// FieldIndex returns the slot index for a field by name.
// Returns -1 if the field is not found.
func (c *Class) FieldIndex(name string) int {
	for i, n := range c.Fields {
		if n == name {
			return i
		}
	}
	return -1
}

// NumFields returns the number of field slots an instance needs.
func (c *Class) NumFields() int {
	return len(c.Fields)
}

// NewInstance creates a new instance of this class with nil fields.
func (c *Class) NewInstance() *Instance {
	return &Instance{Class: c, Fields: make([]Value, len(c.Fields))}
}

// NewInstanceWithFields creates a new instance with initial field values.
// Missing trailing fields are nil; extra values are ignored.
func (c *Class) NewInstanceWithFields(values ...Value) *Instance {
	inst := c.NewInstance()
	copy(inst.Fields, values)
	return inst
}

// String implements the Stringer interface.
func (c *Class) String() string {
	if c.Module == "" {
		return c.Name
	}
	return c.Module + "." + c.Name
}

// scanSlots looks for name/arity in a method slot array. The second result
// reports whether some method had the name but a different arity.
func scanSlots(slots []*CompiledMethod, name string, arity int) (*CompiledMethod, bool) {
	nameSeen := false
	for _, m := range slots {
		if m.name != name {
			continue
		}
		if m.ArgCount == arity {
			return m, false
		}
		nameSeen = true
	}
	return nil, nameSeen
}

// LookupShared resolves a class-side method.
func (c *Class) LookupShared(name string, arity int) *CompiledMethod {
	m, _ := scanSlots(c.SharedMethods, name, arity)
	return m
}

// ---------------------------------------------------------------------------
// ClassTable: class registry
// ---------------------------------------------------------------------------

// ClassTable manages registered classes by name.
// It's thread-safe for concurrent access.
type ClassTable struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

// NewClassTable creates a new empty class table.
func NewClassTable() *ClassTable {
	return &ClassTable{
		classes: make(map[string]*Class),
	}
}

// Register adds a class to the table.
// Returns the previous class with this name, or nil.
func (ct *ClassTable) Register(c *Class) *Class {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	key := c.String()
	old := ct.classes[key]
	ct.classes[key] = c
	return old
}

// Lookup finds a class by (module-qualified) name.
func (ct *ClassTable) Lookup(name string) *Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.classes[name]
}

// Len returns the number of registered classes.
func (ct *ClassTable) Len() int {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.classes)
}
