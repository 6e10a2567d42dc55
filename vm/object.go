package vm

// Object is the header of every heap-allocated kestrel value.
//
// Payload holds the type-specific data (one of the payload types below, a
// *TypeInfo for type objects, or an opaque host value for native types).
// Attrs is the dynamic attribute table; it is nil for objects whose type
// forbids dynamic attributes (most builtins).
type Object struct {
	Type    TypeID
	Attrs   *Table
	Payload any

	marked bool
}

// tracer is implemented by payloads that hold Values.
type tracer interface {
	trace(mark func(Value))
}

// ---------------------------------------------------------------------------
// Payload types
// ---------------------------------------------------------------------------

// String is the payload of str objects.
type String struct {
	S string
}

// List is the payload of list objects.
type List struct {
	Items []Value
}

func (l *List) trace(mark func(Value)) {
	for _, v := range l.Items {
		mark(v)
	}
}

// Tuple is the payload of tuple objects. Tuples never change after
// construction.
type Tuple struct {
	Items []Value
}

func (t *Tuple) trace(mark func(Value)) {
	for _, v := range t.Items {
		mark(v)
	}
}

// Closure is a chain of captured enclosing local tables, innermost first.
// A frame only reads through its closure.
type Closure struct {
	Locals *Table
	Outer  *Closure
}

func (c *Closure) lookup(n Name) (Value, bool) {
	for ; c != nil; c = c.Outer {
		if v, ok := c.Locals.Get(n); ok {
			return v, true
		}
	}
	return Null, false
}

func (c *Closure) trace(mark func(Value)) {
	for ; c != nil; c = c.Outer {
		c.Locals.trace(mark)
	}
}

// Function is the payload of guest function objects: shared immutable code
// plus the per-instance closure, default values and owning module.
type Function struct {
	Decl     *FuncDecl
	Defaults []Value
	Closure  *Closure
	Module   Value
}

func (f *Function) trace(mark func(Value)) {
	for _, v := range f.Defaults {
		mark(v)
	}
	f.Closure.trace(mark)
	mark(f.Module)
}

// NativeFunc is the body of a host-registered function. Raise guest
// exceptions with the VM's Raise helpers.
type NativeFunc func(vm *VM, args []Value, named []KwArg) Value

// NativeFunction is the payload of host-registered callables.
type NativeFunction struct {
	Name     string
	Arity    int // -1 for any number of positional arguments
	Fn       NativeFunc
	Keywords bool // accepts named arguments
}

// BoundMethod pairs a receiver with a callable found on its type.
type BoundMethod struct {
	Self Value
	Func Value
}

func (b *BoundMethod) trace(mark func(Value)) {
	mark(b.Self)
	mark(b.Func)
}

// Module is the payload of module objects. Globals live in the module
// object's Attrs table.
type Module struct {
	Name string
}

// Exception is the payload of exception objects.
type Exception struct {
	Message string
	Args    Value // tuple
	Trace   []TraceEntry
}

func (e *Exception) trace(mark func(Value)) {
	mark(e.Args)
}

// Property is a descriptor whose getter runs on attribute reads and whose
// setter runs on attribute writes.
type Property struct {
	Get Value
	Set Value
}

func (p *Property) trace(mark func(Value)) {
	mark(p.Get)
	mark(p.Set)
}

// Range is the payload of range objects.
type Range struct {
	Start, Stop, Step int64
}

func (r *Range) length() int64 {
	switch {
	case r.Step > 0 && r.Start < r.Stop:
		return (r.Stop - r.Start + r.Step - 1) / r.Step
	case r.Step < 0 && r.Start > r.Stop:
		return (r.Start - r.Stop - r.Step - 1) / -r.Step
	}
	return 0
}

func (r *Range) at(i int64) int64 { return r.Start + i*r.Step }
