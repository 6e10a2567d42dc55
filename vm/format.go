package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// repr and str
// ---------------------------------------------------------------------------

// repr renders v the way the repr builtin does. Containers that reach
// themselves print as [...] or {...}.
func (vm *VM) repr(v Value) string {
	switch {
	case v.IsInt():
		return strconv.FormatInt(v.Int(), 10)
	case v.IsFloat():
		return formatFloat(v.Float())
	case v.IsSingleton():
		return v.String()
	}

	obj, _ := vm.heap.get(v)
	if m, ok := vm.types.Resolve(obj.Type, vm.wk.repr); ok {
		return vm.stringResult("__repr__", vm.call(m, []Value{v}, nil))
	}

	switch p := obj.Payload.(type) {
	case *String:
		return quoteString(p.S)
	case *List:
		if !vm.enterRepr(v) {
			return "[...]"
		}
		defer vm.leaveRepr(v)
		return "[" + vm.joinRepr(p.Items) + "]"
	case *Tuple:
		if len(p.Items) == 1 {
			return "(" + vm.repr(p.Items[0]) + ",)"
		}
		return "(" + vm.joinRepr(p.Items) + ")"
	case *Dict:
		if !vm.enterRepr(v) {
			return "{...}"
		}
		defer vm.leaveRepr(v)
		var sb strings.Builder
		sb.WriteByte('{')
		first := true
		p.Range(func(k, val Value) bool {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			sb.WriteString(vm.repr(k))
			sb.WriteString(": ")
			sb.WriteString(vm.repr(val))
			return true
		})
		sb.WriteByte('}')
		return sb.String()
	case *Range:
		if p.Step == 1 {
			return fmt.Sprintf("range(%d, %d)", p.Start, p.Stop)
		}
		return fmt.Sprintf("range(%d, %d, %d)", p.Start, p.Stop, p.Step)
	case *TypeInfo:
		return fmt.Sprintf("<class '%s'>", p.Name)
	case *Function:
		return fmt.Sprintf("<function %s>", p.Decl.Code.Name)
	case *NativeFunction:
		return fmt.Sprintf("<built-in function %s>", p.Name)
	case *BoundMethod:
		return fmt.Sprintf("<bound method %s of %s object>", vm.callableName(p.Func), vm.TypeName(p.Self))
	case *Module:
		return fmt.Sprintf("<module '%s'>", p.Name)
	case *Generator:
		return fmt.Sprintf("<generator object %s>", p.name)
	case *Exception:
		if args, ok := vm.tupleOf(p.Args); ok && len(args.Items) == 1 {
			return vm.types.Get(obj.Type).Name + "(" + vm.repr(args.Items[0]) + ")"
		}
		return vm.types.Get(obj.Type).Name + vm.repr(p.Args)
	}
	return fmt.Sprintf("<%s object at %#x>", vm.types.Get(obj.Type).Name, uint64(v))
}

// str renders v the way the str builtin does.
func (vm *VM) str(v Value) string {
	if obj, ok := vm.heap.get(v); ok {
		if s, ok := obj.Payload.(*String); ok {
			return s.S
		}
		if m, ok := vm.types.Resolve(obj.Type, vm.wk.str); ok {
			return vm.stringResult("__str__", vm.call(m, []Value{v}, nil))
		}
	}
	return vm.repr(v)
}

// Repr returns repr(v).
func (vm *VM) Repr(v Value) (s string, err error) {
	err = vm.protect(func() { s = vm.repr(v) })
	return s, err
}

// Str returns str(v).
func (vm *VM) Str(v Value) (s string, err error) {
	err = vm.protect(func() { s = vm.str(v) })
	return s, err
}

func (vm *VM) stringResult(method string, r Value) string {
	s, ok := vm.stringOf(r)
	if !ok {
		vm.Raisef(vm.exc.typeErr, "%s returned non-string (type %s)", method, vm.TypeName(r))
	}
	return s
}

func (vm *VM) joinRepr(items []Value) string {
	parts := make([]string, len(items))
	for i, x := range items {
		parts[i] = vm.repr(x)
	}
	return strings.Join(parts, ", ")
}

func (vm *VM) enterRepr(v Value) bool {
	if vm.reprActive == nil {
		vm.reprActive = make(map[Value]bool)
	}
	if vm.reprActive[v] {
		return false
	}
	vm.reprActive[v] = true
	return true
}

func (vm *VM) leaveRepr(v Value) { delete(vm.reprActive, v) }

func (vm *VM) callableName(v Value) string {
	obj, ok := vm.heap.get(v)
	if !ok {
		return "?"
	}
	switch p := obj.Payload.(type) {
	case *Function:
		return p.Decl.Code.Name
	case *NativeFunction:
		return p.Name
	case *TypeInfo:
		return p.Name
	}
	return vm.types.Get(obj.Type).Name
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	if abs := math.Abs(f); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// quoteString renders s as a single-quoted literal, switching to double
// quotes when that avoids escaping.
func quoteString(s string) string {
	q := '\''
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}
	var sb strings.Builder
	sb.WriteRune(q)
	for _, r := range s {
		switch {
		case r == q || r == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\r':
			sb.WriteString(`\r`)
		case r == '\t':
			sb.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&sb, `\x%02x`, r)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteRune(q)
	return sb.String()
}
