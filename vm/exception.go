package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Error kinds
// ---------------------------------------------------------------------------

// ErrorKind classifies guest exceptions surfaced to the host.
type ErrorKind int

const (
	KindRuntime   ErrorKind = iota // catch-all, host-raised conditions
	KindName                       // name resolution failed
	KindAttribute                  // attribute lookup failed
	KindType                       // operand or callable type mismatch
	KindArgument                   // argument binding failed
	KindIndex                      // sequence index out of range
	KindKey                        // mapping key missing
	KindArithmetic                 // division by zero, overflow
	KindRecursion                  // recursion limit exceeded
	KindStopIteration              // iterator exhausted
	KindImmutable                  // attribute set on a type without dynamic attributes
	KindImport                     // unknown module
	KindValue                      // right type, unacceptable value
)

var kindNames = map[ErrorKind]string{
	KindRuntime:       "RuntimeError",
	KindName:          "NameError",
	KindAttribute:     "AttributeError",
	KindType:          "TypeError",
	KindArgument:      "ArgumentError",
	KindIndex:         "IndexError",
	KindKey:           "KeyError",
	KindArithmetic:    "ArithmeticError",
	KindRecursion:     "RecursionError",
	KindStopIteration: "StopIteration",
	KindImmutable:     "ImmutableError",
	KindImport:        "ImportError",
	KindValue:         "ValueError",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// exceptionTypes holds the builtin exception hierarchy.
type exceptionTypes struct {
	base          TypeID // BaseException
	exception     TypeID // Exception
	runtime       TypeID
	name          TypeID
	attribute     TypeID
	typeErr       TypeID
	argument      TypeID
	index         TypeID
	key           TypeID
	arithmetic    TypeID
	zeroDivision  TypeID
	overflow      TypeID
	recursion     TypeID
	stopIteration TypeID
	immutable     TypeID
	importErr     TypeID
	value         TypeID

	kinds map[TypeID]ErrorKind
}

// bootstrapExceptions registers the exception hierarchy. The object type
// must already exist.
func (vm *VM) bootstrapExceptions() {
	e := &vm.exc
	e.kinds = make(map[TypeID]ErrorKind)

	add := func(name string, base TypeID, kind ErrorKind) TypeID {
		t := vm.newType(name, base)
		e.kinds[t.ID] = kind
		return t.ID
	}

	base := vm.newType("BaseException", vm.tid.object)
	base.newPayload = func() any { return &Exception{} }
	e.base = base.ID
	e.kinds[e.base] = KindRuntime

	e.exception = add("Exception", e.base, KindRuntime)
	e.runtime = add("RuntimeError", e.exception, KindRuntime)
	e.name = add("NameError", e.exception, KindName)
	e.attribute = add("AttributeError", e.exception, KindAttribute)
	e.typeErr = add("TypeError", e.exception, KindType)
	e.argument = add("ArgumentError", e.typeErr, KindArgument)
	e.index = add("IndexError", e.exception, KindIndex)
	e.key = add("KeyError", e.exception, KindKey)
	e.arithmetic = add("ArithmeticError", e.exception, KindArithmetic)
	e.zeroDivision = add("ZeroDivisionError", e.arithmetic, KindArithmetic)
	e.overflow = add("OverflowError", e.arithmetic, KindArithmetic)
	e.recursion = add("RecursionError", e.runtime, KindRecursion)
	e.stopIteration = add("StopIteration", e.exception, KindStopIteration)
	e.immutable = add("ImmutableError", e.attribute, KindImmutable)
	e.importErr = add("ImportError", e.exception, KindImport)
	e.value = add("ValueError", e.exception, KindValue)

	bt := vm.types.Get(e.base)
	vm.defineMethod(bt, "__init__", -1, excInit)
	vm.defineMethod(bt, "__str__", 1, func(vm *VM, args []Value, _ []KwArg) Value {
		return vm.NewString(vm.exceptionPayload(args[0]).Message)
	})
	vm.defineProperty(bt, "args", func(vm *VM, args []Value, _ []KwArg) Value {
		return vm.exceptionPayload(args[0]).Args
	})
}

func excInit(vm *VM, args []Value, _ []KwArg) Value {
	if len(args) == 0 {
		vm.Raisef(vm.exc.argument, "__init__() missing self")
	}
	ex := vm.exceptionPayload(args[0])
	ex.Args = vm.NewTuple(args[1:]...)
	switch len(args) {
	case 1:
		ex.Message = ""
	case 2:
		ex.Message = vm.str(args[1])
	default:
		ex.Message = vm.repr(ex.Args)
	}
	return None
}

func (vm *VM) exceptionPayload(v Value) *Exception {
	if obj, ok := vm.heap.get(v); ok {
		if ex, ok := obj.Payload.(*Exception); ok {
			return ex
		}
	}
	vm.Raisef(vm.exc.typeErr, "expected an exception, got %s", vm.TypeName(v))
	return nil
}

// isException reports whether v is an instance of BaseException.
func (vm *VM) isException(v Value) bool {
	return v.IsRef() && vm.types.IsSubtype(vm.typeOf(v), vm.exc.base)
}

// kindOf maps an exception type to its ErrorKind.
func (vm *VM) kindOf(t TypeID) ErrorKind {
	for c := t; c != NoType; c = vm.types.Get(c).Base {
		if k, ok := vm.exc.kinds[c]; ok {
			return k
		}
	}
	return KindRuntime
}

// typeForKind returns the builtin exception type raised for kind.
func (vm *VM) typeForKind(kind ErrorKind) TypeID {
	switch kind {
	case KindName:
		return vm.exc.name
	case KindAttribute:
		return vm.exc.attribute
	case KindType:
		return vm.exc.typeErr
	case KindArgument:
		return vm.exc.argument
	case KindIndex:
		return vm.exc.index
	case KindKey:
		return vm.exc.key
	case KindArithmetic:
		return vm.exc.arithmetic
	case KindRecursion:
		return vm.exc.recursion
	case KindStopIteration:
		return vm.exc.stopIteration
	case KindImmutable:
		return vm.exc.immutable
	case KindImport:
		return vm.exc.importErr
	case KindValue:
		return vm.exc.value
	}
	return vm.exc.runtime
}

// ---------------------------------------------------------------------------
// Raising (Go panic/recover, recovered once per dispatch entry)
// ---------------------------------------------------------------------------

// raised is the panic value carrying a propagating guest exception.
type raised struct {
	exc Value
}

// InvariantViolation reports a bug in the VM or its host: a collection
// under the scope lock, a dangling reference, a corrupted frame stack. It
// is never converted into a guest exception.
type InvariantViolation struct {
	Reason string
}

func (iv *InvariantViolation) Error() string {
	return "kestrel: invariant violation: " + iv.Reason
}

// NewException creates an exception instance of type t.
func (vm *VM) NewException(t TypeID, msg string) Value {
	ti := vm.types.Get(t)
	if !vm.types.IsSubtype(t, vm.exc.base) {
		panic(&InvariantViolation{Reason: ti.Name + " is not an exception type"})
	}
	ex := &Exception{Message: msg}
	if msg == "" {
		ex.Args = vm.NewTuple()
	} else {
		ex.Args = vm.NewTuple(vm.NewString(msg))
	}
	return vm.heap.alloc(&Object{Type: t, Attrs: NewTable(0), Payload: ex})
}

// Raise propagates exc, which must be an exception instance or type.
func (vm *VM) Raise(exc Value) {
	if obj, ok := vm.heap.get(exc); ok {
		if ti, ok := obj.Payload.(*TypeInfo); ok && vm.types.IsSubtype(ti.ID, vm.exc.base) {
			exc = vm.NewException(ti.ID, "")
		}
	}
	if !vm.isException(exc) {
		vm.Raisef(vm.exc.typeErr, "exceptions must derive from BaseException, not %s", vm.TypeName(exc))
	}
	panic(&raised{exc: exc})
}

// Raisef raises a new exception of type t.
func (vm *VM) Raisef(t TypeID, format string, args ...any) {
	panic(&raised{exc: vm.NewException(t, fmt.Sprintf(format, args...))})
}

// RaiseKind raises the builtin exception type for kind.
func (vm *VM) RaiseKind(kind ErrorKind, format string, args ...any) {
	vm.Raisef(vm.typeForKind(kind), format, args...)
}

// Check raises err inside a native function. A *Error re-raises its
// exception when the value is still live; any other error becomes a
// RuntimeError.
func (vm *VM) Check(err error) {
	if err == nil {
		return
	}
	var e *Error
	if errors.As(err, &e) {
		if e.VMID == vm.id && vm.heap.valid(e.Value) && vm.isException(e.Value) {
			panic(&raised{exc: e.Value})
		}
		vm.Raisef(vm.typeForKind(e.Kind), "%s", e.Message)
	}
	vm.Raisef(vm.exc.runtime, "%v", err)
}

// ---------------------------------------------------------------------------
// Host-visible errors
// ---------------------------------------------------------------------------

// TraceEntry is one unwound frame: the Code it was executing and the
// instruction index of the failing instruction.
type TraceEntry struct {
	Code *Code
	IP   int
	Line int
}

func (t TraceEntry) String() string {
	name, file := "<unknown>", "<unknown>"
	if t.Code != nil {
		name = t.Code.Name
		if t.Code.Filename != "" {
			file = t.Code.Filename
		}
	}
	return fmt.Sprintf("File %q, line %d, in %s (ip %d)", file, t.Line, name, t.IP)
}

// Error is an unhandled guest exception returned to the host.
type Error struct {
	Kind    ErrorKind
	Type    string // guest type name
	Message string
	Trace   []TraceEntry // innermost frame first

	// Value is the exception object. It stays valid while it is the VM's
	// most recent unhandled exception or is otherwise reachable.
	Value Value
	VMID  uuid.UUID
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Type
	}
	return e.Type + ": " + e.Message
}

// Traceback renders the trace outermost frame first.
func (e *Error) Traceback() string {
	var sb strings.Builder
	sb.WriteString("Traceback (most recent call last):\n")
	for i := len(e.Trace) - 1; i >= 0; i-- {
		sb.WriteString("  ")
		sb.WriteString(e.Trace[i].String())
		sb.WriteString("\n")
	}
	sb.WriteString(e.Error())
	return sb.String()
}

// IsKind reports whether err is an unhandled guest exception of kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func (vm *VM) toError(exc Value) *Error {
	t := vm.typeOf(exc)
	e := &Error{
		Kind:  vm.kindOf(t),
		Type:  vm.types.Get(t).Name,
		Value: exc,
		VMID:  vm.id,
	}
	if obj, ok := vm.heap.get(exc); ok {
		if ex, ok := obj.Payload.(*Exception); ok {
			e.Message = ex.Message
			e.Trace = append([]TraceEntry(nil), ex.Trace...)
		}
	}
	vm.lastError = exc
	vm.log.Info("unhandled exception",
		"vm", vm.id.String(),
		"type", e.Type,
		"message", e.Message,
		"depth", len(e.Trace))
	return e
}

// protect runs fn and converts a propagating guest exception into an
// *Error. Frames pushed by fn are discarded on failure.
func (vm *VM) protect(fn func()) (err error) {
	depth := len(vm.frames)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		rs, ok := r.(*raised)
		if !ok {
			panic(r)
		}
		vm.frames = vm.frames[:depth]
		err = vm.toError(rs.exc)
	}()
	fn()
	return nil
}
