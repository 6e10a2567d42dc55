package vm

import (
	"math"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Builtin value constructors
// ---------------------------------------------------------------------------

// NewString allocates a str.
func (vm *VM) NewString(s string) Value {
	return vm.heap.alloc(&Object{Type: vm.tid.str, Payload: &String{S: s}})
}

// NewList allocates a list holding a copy of items.
func (vm *VM) NewList(items ...Value) Value {
	return vm.heap.alloc(&Object{Type: vm.tid.list, Payload: &List{Items: append([]Value(nil), items...)}})
}

// NewTuple allocates a tuple holding a copy of items.
func (vm *VM) NewTuple(items ...Value) Value {
	return vm.heap.alloc(&Object{Type: vm.tid.tuple, Payload: &Tuple{Items: append([]Value(nil), items...)}})
}

func (vm *VM) stringOf(v Value) (string, bool) {
	obj, ok := vm.heap.get(v)
	if !ok {
		return "", false
	}
	s, ok := obj.Payload.(*String)
	if !ok {
		return "", false
	}
	return s.S, true
}

func (vm *VM) tupleOf(v Value) (*Tuple, bool) {
	obj, ok := vm.heap.get(v)
	if !ok {
		return nil, false
	}
	t, ok := obj.Payload.(*Tuple)
	return t, ok
}

// StringValue returns the contents of a str value.
func (vm *VM) StringValue(v Value) (string, bool) {
	if v.IsRef() && !vm.heap.valid(v) {
		return "", false
	}
	return vm.stringOf(v)
}

// Items returns a copy of the items of a list or tuple value.
func (vm *VM) Items(v Value) ([]Value, bool) {
	if v.IsRef() && !vm.heap.valid(v) {
		return nil, false
	}
	obj, ok := vm.heap.get(v)
	if !ok {
		return nil, false
	}
	switch p := obj.Payload.(type) {
	case *List:
		return append([]Value(nil), p.Items...), true
	case *Tuple:
		return append([]Value(nil), p.Items...), true
	}
	return nil, false
}

// intOf returns v as an integer, treating booleans as 0 and 1.
func intOf(v Value) (int64, bool) {
	switch {
	case v.IsInt():
		return v.Int(), true
	case v == True:
		return 1, true
	case v == False:
		return 0, true
	}
	return 0, false
}

// floatOf returns any number as a float.
func floatOf(v Value) (float64, bool) {
	if v.IsFloat() {
		return v.Float(), true
	}
	if n, ok := intOf(v); ok {
		return float64(n), true
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Items
// ---------------------------------------------------------------------------

// seqIndex normalizes key as an index into a sequence of length n.
func (vm *VM) seqIndex(what string, key Value, n int) int {
	i, ok := intOf(key)
	if !ok {
		vm.Raisef(vm.exc.typeErr, "%s indices must be integers, not '%s'", what, vm.TypeName(key))
	}
	if i < 0 {
		i += int64(n)
	}
	if i < 0 || i >= int64(n) {
		vm.Raisef(vm.exc.index, "%s index out of range", what)
	}
	return int(i)
}

func (vm *VM) getItem(container, key Value) Value {
	obj, ok := vm.heap.get(container)
	if ok && !vm.overrides(obj, vm.wk.getitem) {
		switch p := obj.Payload.(type) {
		case *List:
			return p.Items[vm.seqIndex("list", key, len(p.Items))]
		case *Tuple:
			return p.Items[vm.seqIndex("tuple", key, len(p.Items))]
		case *String:
			runes := []rune(p.S)
			return vm.NewString(string(runes[vm.seqIndex("string", key, len(runes))]))
		case *Range:
			return FromInt(p.at(int64(vm.seqIndex("range object", key, int(p.length())))))
		case *Dict:
			v, found := p.get(vm, key)
			if !found {
				vm.Raisef(vm.exc.key, "%s", vm.repr(key))
			}
			return v
		}
	}
	if r, ok := vm.callSpecial(container, vm.wk.getitem, key); ok {
		return r
	}
	vm.Raisef(vm.exc.typeErr, "'%s' object is not subscriptable", vm.TypeName(container))
	return Null
}

func (vm *VM) setItem(container, key, value Value) {
	obj, ok := vm.heap.get(container)
	if ok && !vm.overrides(obj, vm.wk.setitem) {
		switch p := obj.Payload.(type) {
		case *List:
			p.Items[vm.seqIndex("list", key, len(p.Items))] = value
			return
		case *Dict:
			p.set(vm, key, value)
			return
		}
	}
	if _, ok := vm.callSpecial(container, vm.wk.setitem, key, value); ok {
		return
	}
	vm.Raisef(vm.exc.typeErr, "'%s' object does not support item assignment", vm.TypeName(container))
}

func (vm *VM) delItem(container, key Value) {
	obj, ok := vm.heap.get(container)
	if ok && !vm.overrides(obj, vm.wk.delitem) {
		switch p := obj.Payload.(type) {
		case *List:
			i := vm.seqIndex("list", key, len(p.Items))
			copy(p.Items[i:], p.Items[i+1:])
			p.Items[len(p.Items)-1] = Null
			p.Items = p.Items[:len(p.Items)-1]
			return
		case *Dict:
			if !p.delete(vm, key) {
				vm.Raisef(vm.exc.key, "%s", vm.repr(key))
			}
			return
		}
	}
	if _, ok := vm.callSpecial(container, vm.wk.delitem, key); ok {
		return
	}
	vm.Raisef(vm.exc.typeErr, "'%s' object does not support item deletion", vm.TypeName(container))
}

// length implements len().
func (vm *VM) length(v Value) int64 {
	if obj, ok := vm.heap.get(v); ok && !vm.overrides(obj, vm.wk.len) {
		switch p := obj.Payload.(type) {
		case *List:
			return int64(len(p.Items))
		case *Tuple:
			return int64(len(p.Items))
		case *String:
			return int64(utf8.RuneCountInString(p.S))
		case *Dict:
			return int64(p.Len())
		case *Range:
			return p.length()
		}
	}
	if r, ok := vm.callSpecial(v, vm.wk.len); ok {
		n, isInt := intOf(r)
		if !isInt {
			vm.Raisef(vm.exc.typeErr, "'%s' object cannot be interpreted as an integer", vm.TypeName(r))
		}
		if n < 0 {
			vm.Raisef(vm.exc.value, "__len__() should return >= 0")
		}
		return n
	}
	vm.Raisef(vm.exc.typeErr, "object of type '%s' has no len()", vm.TypeName(v))
	return 0
}

// ---------------------------------------------------------------------------
// Truthiness, membership, matching
// ---------------------------------------------------------------------------

func (vm *VM) truthy(v Value) bool {
	if t, ok := v.immediateTruth(); ok {
		return t
	}
	obj, _ := vm.heap.get(v)
	if !vm.overrides(obj, vm.wk.bool) && !vm.overrides(obj, vm.wk.len) {
		switch p := obj.Payload.(type) {
		case *String:
			return p.S != ""
		case *List:
			return len(p.Items) > 0
		case *Tuple:
			return len(p.Items) > 0
		case *Dict:
			return p.Len() > 0
		case *Range:
			return p.length() > 0
		}
	}
	if r, ok := vm.callSpecial(v, vm.wk.bool); ok {
		if !r.IsBool() {
			vm.Raisef(vm.exc.typeErr, "__bool__ should return bool, returned %s", vm.TypeName(r))
		}
		return r == True
	}
	if _, ok := vm.lookupSpecial(v, vm.wk.len); ok {
		return vm.length(v) > 0
	}
	return true
}

// Truthy reports the truth value of v.
func (vm *VM) Truthy(v Value) (t bool, err error) {
	err = vm.protect(func() { t = vm.truthy(v) })
	return t, err
}

// equals reports a == b the way membership tests use it: identity first.
func (vm *VM) equals(a, b Value) bool {
	if a == b && a.IsRef() {
		return true
	}
	return vm.truthy(vm.binaryOp(BinEQ, a, b))
}

func (vm *VM) contains(container, item Value) bool {
	obj, ok := vm.heap.get(container)
	if ok && !vm.overrides(obj, vm.wk.contains) {
		switch p := obj.Payload.(type) {
		case *List:
			for i := 0; i < len(p.Items); i++ {
				if vm.equals(p.Items[i], item) {
					return true
				}
			}
			return false
		case *Tuple:
			for _, x := range p.Items {
				if vm.equals(x, item) {
					return true
				}
			}
			return false
		case *String:
			s, isStr := vm.stringOf(item)
			if !isStr {
				vm.Raisef(vm.exc.typeErr, "'in <string>' requires string as left operand, not %s", vm.TypeName(item))
			}
			return strings.Contains(p.S, s)
		case *Dict:
			_, found := p.get(vm, item)
			return found
		case *Range:
			n, isInt := intOf(item)
			if !isInt {
				return false
			}
			length := p.length()
			if length == 0 || (n-p.Start)%p.Step != 0 {
				return false
			}
			i := (n - p.Start) / p.Step
			return i >= 0 && i < length
		}
	}
	if r, ok := vm.callSpecial(container, vm.wk.contains, item); ok {
		return vm.truthy(r)
	}
	if !vm.hasIter(container) {
		vm.Raisef(vm.exc.typeErr, "argument of type '%s' is not iterable", vm.TypeName(container))
	}
	found := false
	vm.rooted([]Value{container, item}, func() {
		it := vm.getIter(container)
		vm.rooted([]Value{it}, func() {
			for {
				x, more := vm.iterNext(it)
				if !more {
					return
				}
				if vm.equals(x, item) {
					found = true
					return
				}
			}
		})
	})
	return found
}

// overrides reports whether obj is an instance of a class derived from
// list or dict that defines the dunder n. The builtin list and dict types
// define no dunders themselves, so any hit on the chain is an override and
// takes precedence over the payload fast paths.
func (vm *VM) overrides(obj *Object, n Name) bool {
	switch obj.Payload.(type) {
	case *List, *Dict:
	default:
		return false
	}
	if obj.Type == vm.tid.list || obj.Type == vm.tid.dict {
		return false
	}
	_, ok := vm.types.Resolve(obj.Type, n)
	return ok
}

func (vm *VM) hasIter(v Value) bool {
	if !v.IsRef() {
		return false
	}
	_, ok := vm.lookupSpecial(v, vm.wk.iter)
	if !ok {
		_, ok = vm.lookupSpecial(v, vm.wk.next)
	}
	return ok || vm.isBuiltinIterator(v)
}

// exceptionMatches implements the except clause test. typ may be a type or
// a tuple of types.
func (vm *VM) exceptionMatches(exc, typ Value) bool {
	if obj, ok := vm.heap.get(typ); ok {
		if tup, ok := obj.Payload.(*Tuple); ok {
			for _, t := range tup.Items {
				if vm.exceptionMatches(exc, t) {
					return true
				}
			}
			return false
		}
	}
	t, ok := vm.typeInfoOf(typ)
	if !ok || !vm.types.IsSubtype(t.ID, vm.exc.base) {
		vm.Raisef(vm.exc.typeErr, "catching classes that do not inherit from BaseException is not allowed")
	}
	return vm.IsInstance(exc, t.ID)
}

// ---------------------------------------------------------------------------
// Unary operators
// ---------------------------------------------------------------------------

func (vm *VM) negate(v Value) Value {
	if n, ok := intOf(v); ok {
		return vm.checkInt(-n)
	}
	if v.IsFloat() {
		return FromFloat(-v.Float())
	}
	if r, ok := vm.callSpecial(v, vm.wk.neg); ok {
		return r
	}
	vm.Raisef(vm.exc.typeErr, "bad operand type for unary -: '%s'", vm.TypeName(v))
	return Null
}

func (vm *VM) invert(v Value) Value {
	if n, ok := intOf(v); ok {
		return FromInt(^n)
	}
	if r, ok := vm.callSpecial(v, vm.wk.invert); ok {
		return r
	}
	vm.Raisef(vm.exc.typeErr, "bad operand type for unary ~: '%s'", vm.TypeName(v))
	return Null
}

// ---------------------------------------------------------------------------
// Binary operators
// ---------------------------------------------------------------------------

// operatorNames holds the dunder names of every BinOp. Reflected names of
// comparisons are the mirrored comparison.
type operatorNames struct {
	forward   [numBinOps]Name
	reflected [numBinOps]Name
}

var binOpDunders = [numBinOps]string{
	"add", "sub", "mul", "truediv", "floordiv", "mod", "pow",
	"lshift", "rshift", "and", "or", "xor",
	"lt", "le", "eq", "ne", "gt", "ge",
}

var mirrored = [numBinOps]BinOp{
	BinLT: BinGT, BinLE: BinGE, BinEQ: BinEQ,
	BinNE: BinNE, BinGT: BinLT, BinGE: BinLE,
}

func (op BinOp) isComparison() bool { return op >= BinLT && op <= BinGE }

func (in *Interner) operatorNames() operatorNames {
	var on operatorNames
	for op := BinOp(0); op < numBinOps; op++ {
		on.forward[op] = in.Intern("__" + binOpDunders[op] + "__")
	}
	for op := BinOp(0); op < numBinOps; op++ {
		if op.isComparison() {
			on.reflected[op] = on.forward[mirrored[op]]
		} else {
			on.reflected[op] = in.Intern("__r" + binOpDunders[op] + "__")
		}
	}
	return on
}

// binaryOp evaluates a op b: numbers and builtin sequences first, then the
// operand dunders with NotImplemented falling through to the reflected
// method.
func (vm *VM) binaryOp(op BinOp, a, b Value) Value {
	if x, ok := intOf(a); ok {
		if y, ok := intOf(b); ok {
			if op == BinAnd || op == BinOr || op == BinXor {
				if a.IsBool() && b.IsBool() {
					return FromBool(vm.intOp(op, x, y) != FromInt(0))
				}
			}
			return vm.intOp(op, x, y)
		}
	}
	if a.IsFloat() || b.IsFloat() {
		x, okA := floatOf(a)
		y, okB := floatOf(b)
		if okA && okB {
			if r, ok := vm.floatOp(op, x, y); ok {
				return r
			}
		}
	}
	if vm.operandOverrides(a, vm.ops.forward[op]) || vm.operandOverrides(b, vm.ops.reflected[op]) {
		return vm.dunderOp(op, a, b)
	}
	if r, ok := vm.sequenceOp(op, a, b); ok {
		return r
	}
	return vm.dunderOp(op, a, b)
}

func (vm *VM) operandOverrides(v Value, n Name) bool {
	obj, ok := vm.heap.get(v)
	return ok && vm.overrides(obj, n)
}

// BinaryOp evaluates a op b for the host.
func (vm *VM) BinaryOp(op BinOp, a, b Value) (r Value, err error) {
	err = vm.protect(func() { r = vm.binaryOp(op, a, b) })
	return r, err
}

func (vm *VM) checkInt(n int64) Value {
	if n > MaxInt || n < MinInt {
		vm.Raisef(vm.exc.overflow, "integer result out of range")
	}
	return FromInt(n)
}

func (vm *VM) intOp(op BinOp, x, y int64) Value {
	switch op {
	case BinAdd:
		return vm.checkInt(x + y)
	case BinSub:
		return vm.checkInt(x - y)
	case BinMul:
		if x == 0 || y == 0 {
			return FromInt(0)
		}
		r := x * y
		if r/y != x {
			vm.Raisef(vm.exc.overflow, "integer result out of range")
		}
		return vm.checkInt(r)
	case BinTrueDiv:
		if y == 0 {
			vm.Raisef(vm.exc.zeroDivision, "division by zero")
		}
		return FromFloat(float64(x) / float64(y))
	case BinFloorDiv:
		if y == 0 {
			vm.Raisef(vm.exc.zeroDivision, "integer division by zero")
		}
		q := x / y
		if x%y != 0 && (x < 0) != (y < 0) {
			q--
		}
		return vm.checkInt(q)
	case BinMod:
		if y == 0 {
			vm.Raisef(vm.exc.zeroDivision, "integer modulo by zero")
		}
		r := x % y
		if r != 0 && (r < 0) != (y < 0) {
			r += y
		}
		return FromInt(r)
	case BinPow:
		if y < 0 {
			if x == 0 {
				vm.Raisef(vm.exc.zeroDivision, "0 cannot be raised to a negative power")
			}
			return FromFloat(math.Pow(float64(x), float64(y)))
		}
		return vm.intPow(x, y)
	case BinLShift:
		if y < 0 {
			vm.Raisef(vm.exc.value, "negative shift count")
		}
		if x == 0 {
			return FromInt(0)
		}
		if y >= 62 {
			vm.Raisef(vm.exc.overflow, "integer result out of range")
		}
		r := x << uint(y)
		if r>>uint(y) != x {
			vm.Raisef(vm.exc.overflow, "integer result out of range")
		}
		return vm.checkInt(r)
	case BinRShift:
		if y < 0 {
			vm.Raisef(vm.exc.value, "negative shift count")
		}
		if y > 63 {
			y = 63
		}
		return FromInt(x >> uint(y))
	case BinAnd:
		return FromInt(x & y)
	case BinOr:
		return FromInt(x | y)
	case BinXor:
		return FromInt(x ^ y)
	case BinLT:
		return FromBool(x < y)
	case BinLE:
		return FromBool(x <= y)
	case BinEQ:
		return FromBool(x == y)
	case BinNE:
		return FromBool(x != y)
	case BinGT:
		return FromBool(x > y)
	case BinGE:
		return FromBool(x >= y)
	}
	panic(&InvariantViolation{Reason: "unknown binary operator " + op.String()})
}

func (vm *VM) intPow(x, y int64) Value {
	result := int64(1)
	base := x
	for y > 0 {
		if y&1 == 1 {
			result = vm.checkInt(mulChecked(vm, result, base)).Int()
		}
		y >>= 1
		if y > 0 {
			base = vm.checkInt(mulChecked(vm, base, base)).Int()
		}
	}
	return FromInt(result)
}

func mulChecked(vm *VM, x, y int64) int64 {
	if x == 0 || y == 0 {
		return 0
	}
	r := x * y
	if r/y != x {
		vm.Raisef(vm.exc.overflow, "integer result out of range")
	}
	return r
}

func (vm *VM) floatOp(op BinOp, x, y float64) (Value, bool) {
	switch op {
	case BinAdd:
		return FromFloat(x + y), true
	case BinSub:
		return FromFloat(x - y), true
	case BinMul:
		return FromFloat(x * y), true
	case BinTrueDiv:
		if y == 0 {
			vm.Raisef(vm.exc.zeroDivision, "float division by zero")
		}
		return FromFloat(x / y), true
	case BinFloorDiv:
		if y == 0 {
			vm.Raisef(vm.exc.zeroDivision, "float floor division by zero")
		}
		return FromFloat(math.Floor(x / y)), true
	case BinMod:
		if y == 0 {
			vm.Raisef(vm.exc.zeroDivision, "float modulo")
		}
		r := math.Mod(x, y)
		if r != 0 && (r < 0) != (y < 0) {
			r += y
		}
		return FromFloat(r), true
	case BinPow:
		if x == 0 && y < 0 {
			vm.Raisef(vm.exc.zeroDivision, "0.0 cannot be raised to a negative power")
		}
		return FromFloat(math.Pow(x, y)), true
	case BinLT:
		return FromBool(x < y), true
	case BinLE:
		return FromBool(x <= y), true
	case BinEQ:
		return FromBool(x == y), true
	case BinNE:
		return FromBool(x != y), true
	case BinGT:
		return FromBool(x > y), true
	case BinGE:
		return FromBool(x >= y), true
	}
	return Null, false
}

// maxRepeat bounds the length of a repeated sequence.
const maxRepeat = 1 << 28

// sequenceOp handles str, list, tuple and dict operands.
func (vm *VM) sequenceOp(op BinOp, a, b Value) (Value, bool) {
	if s, ok := vm.stringOf(a); ok {
		if t, ok := vm.stringOf(b); ok {
			switch op {
			case BinAdd:
				return vm.NewString(s + t), true
			case BinLT:
				return FromBool(s < t), true
			case BinLE:
				return FromBool(s <= t), true
			case BinEQ:
				return FromBool(s == t), true
			case BinNE:
				return FromBool(s != t), true
			case BinGT:
				return FromBool(s > t), true
			case BinGE:
				return FromBool(s >= t), true
			}
			return Null, false
		}
	}
	if op == BinMul {
		seq, n := a, b
		if _, isInt := intOf(a); isInt {
			seq, n = b, a
		}
		if count, ok := intOf(n); ok {
			return vm.repeat(seq, count)
		}
		return Null, false
	}

	aobj, okA := vm.heap.get(a)
	bobj, okB := vm.heap.get(b)
	if !okA || !okB {
		return Null, false
	}
	switch x := aobj.Payload.(type) {
	case *List:
		if y, ok := bobj.Payload.(*List); ok {
			if op == BinAdd {
				items := make([]Value, 0, len(x.Items)+len(y.Items))
				items = append(items, x.Items...)
				items = append(items, y.Items...)
				return vm.heap.alloc(&Object{Type: vm.tid.list, Payload: &List{Items: items}}), true
			}
			return vm.compareItems(op, x.Items, y.Items)
		}
	case *Tuple:
		if y, ok := bobj.Payload.(*Tuple); ok {
			if op == BinAdd {
				items := make([]Value, 0, len(x.Items)+len(y.Items))
				items = append(items, x.Items...)
				items = append(items, y.Items...)
				return vm.heap.alloc(&Object{Type: vm.tid.tuple, Payload: &Tuple{Items: items}}), true
			}
			return vm.compareItems(op, x.Items, y.Items)
		}
	case *Dict:
		if y, ok := bobj.Payload.(*Dict); ok && (op == BinEQ || op == BinNE) {
			eq := vm.dictEqual(x, y)
			return FromBool(eq == (op == BinEQ)), true
		}
	}
	return Null, false
}

func (vm *VM) repeat(seq Value, n int64) (Value, bool) {
	obj, ok := vm.heap.get(seq)
	if !ok {
		return Null, false
	}
	if n < 0 {
		n = 0
	}
	var length int
	switch p := obj.Payload.(type) {
	case *String:
		length = len(p.S)
	case *List:
		length = len(p.Items)
	case *Tuple:
		length = len(p.Items)
	default:
		return Null, false
	}
	if length > 0 && n > maxRepeat/int64(length) {
		vm.Raisef(vm.exc.overflow, "repeated sequence is too long")
	}
	switch p := obj.Payload.(type) {
	case *String:
		return vm.NewString(strings.Repeat(p.S, int(n))), true
	case *List:
		return vm.heap.alloc(&Object{Type: vm.tid.list, Payload: &List{Items: repeatItems(p.Items, n)}}), true
	case *Tuple:
		return vm.heap.alloc(&Object{Type: vm.tid.tuple, Payload: &Tuple{Items: repeatItems(p.Items, n)}}), true
	}
	return Null, false
}

func repeatItems(items []Value, n int64) []Value {
	out := make([]Value, 0, len(items)*int(n))
	for i := int64(0); i < n; i++ {
		out = append(out, items...)
	}
	return out
}

// compareItems compares two sequences lexicographically.
func (vm *VM) compareItems(op BinOp, x, y []Value) (Value, bool) {
	if !op.isComparison() {
		return Null, false
	}
	i := 0
	for ; i < len(x) && i < len(y); i++ {
		if !vm.equals(x[i], y[i]) {
			break
		}
	}
	if i < len(x) && i < len(y) {
		switch op {
		case BinEQ:
			return False, true
		case BinNE:
			return True, true
		}
		return vm.binaryOp(op, x[i], y[i]), true
	}
	lx, ly := len(x), len(y)
	switch op {
	case BinLT:
		return FromBool(lx < ly), true
	case BinLE:
		return FromBool(lx <= ly), true
	case BinEQ:
		return FromBool(lx == ly), true
	case BinNE:
		return FromBool(lx != ly), true
	case BinGT:
		return FromBool(lx > ly), true
	default:
		return FromBool(lx >= ly), true
	}
}

func (vm *VM) dictEqual(x, y *Dict) bool {
	if x.Len() != y.Len() {
		return false
	}
	eq := true
	x.Range(func(k, v Value) bool {
		w, ok := y.get(vm, k)
		if !ok || !vm.equals(v, w) {
			eq = false
		}
		return eq
	})
	return eq
}

func (vm *VM) dunderOp(op BinOp, a, b Value) Value {
	if r, ok := vm.tryDunder(a, vm.ops.forward[op], b); ok {
		return r
	}
	if r, ok := vm.tryDunder(b, vm.ops.reflected[op], a); ok {
		return r
	}
	switch op {
	case BinEQ:
		return FromBool(a == b)
	case BinNE:
		return FromBool(!vm.truthy(vm.dunderOp(BinEQ, a, b)))
	}
	if op.isComparison() {
		vm.Raisef(vm.exc.typeErr, "'%s' not supported between instances of '%s' and '%s'",
			op.String(), vm.TypeName(a), vm.TypeName(b))
	}
	vm.Raisef(vm.exc.typeErr, "unsupported operand type(s) for %s: '%s' and '%s'",
		op.String(), vm.TypeName(a), vm.TypeName(b))
	return Null
}

// tryDunder calls self.n(other), reporting false when the method is
// missing or returns NotImplemented.
func (vm *VM) tryDunder(self Value, n Name, other Value) (Value, bool) {
	m, ok := vm.lookupSpecial(self, n)
	if !ok {
		return Null, false
	}
	r := vm.call(m, []Value{self, other}, nil)
	if r == NotImplemented {
		return Null, false
	}
	return r, true
}
