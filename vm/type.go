package vm

// ---------------------------------------------------------------------------
// Type registry
// ---------------------------------------------------------------------------

// TypeID indexes the VM's type registry.
type TypeID uint32

// NoType is the base of the root type.
const NoType TypeID = ^TypeID(0)

// Finalizer runs once when the collector frees an object of the type.
type Finalizer func(vm *VM, obj *Object)

// TypeInfo describes a registered type.
type TypeInfo struct {
	ID        TypeID
	Name      string
	Base      TypeID
	Attrs     *Table // methods and class variables
	Finalizer Finalizer

	// newPayload builds the payload of plain instances; inherited from the
	// nearest base that sets it.
	newPayload func() any
	// dynamicAttrs is cleared for builtin value types: their direct
	// instances never carry an attribute table.
	dynamicAttrs bool
	// sealed types reject attribute assignment on the type itself.
	sealed bool
	// final types cannot be used as a base.
	final bool
	// object is the heap object standing for the type in guest code.
	object Value
}

// TypeRegistry maps TypeIDs to TypeInfos. Types are never unregistered.
type TypeRegistry struct {
	types  []*TypeInfo
	byName map[string]TypeID
}

// NewTypeRegistry creates an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		byName: make(map[string]TypeID),
	}
}

// Add registers a new type and returns it. Later registrations with the same
// name shadow earlier ones in Lookup but keep their IDs.
func (r *TypeRegistry) Add(name string, base TypeID) *TypeInfo {
	t := &TypeInfo{
		ID:           TypeID(len(r.types)),
		Name:         name,
		Base:         base,
		Attrs:        NewTable(0),
		dynamicAttrs: true,
	}
	if base != NoType {
		t.newPayload = r.Get(base).newPayload
	}
	r.types = append(r.types, t)
	r.byName[name] = t.ID
	return t
}

// Get returns the type for id. Panics on an unknown id: every object must
// carry a registered type.
func (r *TypeRegistry) Get(id TypeID) *TypeInfo {
	if int(id) >= len(r.types) {
		panic(&InvariantViolation{Reason: "unknown type id"})
	}
	return r.types[id]
}

// Lookup returns the type registered under name.
func (r *TypeRegistry) Lookup(name string) (*TypeInfo, bool) {
	id, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.types[id], true
}

// Len returns the number of registered types.
func (r *TypeRegistry) Len() int {
	return len(r.types)
}

// IsSubtype reports whether t is sub or descends from it.
func (r *TypeRegistry) IsSubtype(sub, t TypeID) bool {
	for c := sub; c != NoType; c = r.types[c].Base {
		if c == t {
			return true
		}
	}
	return false
}

// Resolve walks the base chain of t looking for n.
func (r *TypeRegistry) Resolve(t TypeID, n Name) (Value, bool) {
	for c := t; c != NoType; c = r.types[c].Base {
		if v, ok := r.types[c].Attrs.Get(n); ok {
			return v, true
		}
	}
	return Null, false
}

// Depth returns the inheritance depth (0 for the root type).
func (r *TypeRegistry) Depth(t TypeID) int {
	depth := 0
	for c := r.types[t].Base; c != NoType; c = r.types[c].Base {
		depth++
	}
	return depth
}

func (r *TypeRegistry) trace(mark func(Value)) {
	for _, t := range r.types {
		mark(t.object)
		t.Attrs.trace(mark)
	}
}
