package vm

// ---------------------------------------------------------------------------
// Interner: interned attribute/variable names
// ---------------------------------------------------------------------------

// Name is an interned identifier. The zero Name is never handed out and
// marks empty slots in a Table.
type Name uint32

// Interner maps identifier strings to unique Names. Each VM owns one; names
// are never released.
type Interner struct {
	byName map[string]Name // name -> ID
	byID   []string        // ID -> name
}

// NewInterner creates an interner with the zero Name reserved.
func NewInterner() *Interner {
	in := &Interner{
		byName: make(map[string]Name),
		byID:   make([]string, 1, 256),
	}
	return in
}

// Intern returns the Name for s, creating one if needed.
func (in *Interner) Intern(s string) Name {
	if n, ok := in.byName[s]; ok {
		return n
	}
	n := Name(len(in.byID))
	in.byName[s] = n
	in.byID = append(in.byID, s)
	return n
}

// Lookup returns the Name for s without interning it.
func (in *Interner) Lookup(s string) (Name, bool) {
	n, ok := in.byName[s]
	return n, ok
}

// String returns the text of n, or "" if n is unknown.
func (in *Interner) String(n Name) string {
	if n == 0 || int(n) >= len(in.byID) {
		return ""
	}
	return in.byID[n]
}

// Len returns the number of interned names.
func (in *Interner) Len() int {
	return len(in.byID) - 1
}

// wellKnown caches the names the core itself dispatches on.
type wellKnown struct {
	init, new, call           Name
	iter, next, len, bool     Name
	repr, str, name, class    Name
	getitem, setitem, delitem Name
	contains, eq, args        Name
	module, base              Name
	neg, invert               Name
}

func (in *Interner) wellKnown() wellKnown {
	return wellKnown{
		init:     in.Intern("__init__"),
		new:      in.Intern("__new__"),
		call:     in.Intern("__call__"),
		iter:     in.Intern("__iter__"),
		next:     in.Intern("__next__"),
		len:      in.Intern("__len__"),
		bool:     in.Intern("__bool__"),
		repr:     in.Intern("__repr__"),
		str:      in.Intern("__str__"),
		name:     in.Intern("__name__"),
		class:    in.Intern("__class__"),
		getitem:  in.Intern("__getitem__"),
		setitem:  in.Intern("__setitem__"),
		delitem:  in.Intern("__delitem__"),
		contains: in.Intern("__contains__"),
		eq:       in.Intern("__eq__"),
		args:     in.Intern("args"),
		module:   in.Intern("__module__"),
		base:     in.Intern("__base__"),
		neg:      in.Intern("__neg__"),
		invert:   in.Intern("__invert__"),
	}
}
