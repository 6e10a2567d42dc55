package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Bootstrap
// ---------------------------------------------------------------------------

// newType registers a type and allocates the object standing for it.
func (vm *VM) newType(name string, base TypeID) *TypeInfo {
	t := vm.types.Add(name, base)
	vm.attachTypeObject(t)
	return t
}

func (vm *VM) attachTypeObject(t *TypeInfo) {
	t.object = vm.heap.alloc(&Object{Type: vm.tid.typ, Payload: t})
}

// defineMethod adds a native method to t. arity counts the receiver.
func (vm *VM) defineMethod(t *TypeInfo, name string, arity int, fn NativeFunc) {
	t.Attrs.Set(vm.names.Intern(name), vm.NewNativeFunction(name, arity, fn))
}

// defineProperty adds a read-only native property to t.
func (vm *VM) defineProperty(t *TypeInfo, name string, get NativeFunc) {
	p := &Property{Get: vm.NewNativeFunction(name, 1, get), Set: None}
	t.Attrs.Set(vm.names.Intern(name), vm.heap.alloc(&Object{Type: vm.tid.property, Payload: p}))
}

// bootstrap builds the builtin types, the exception hierarchy and the
// builtins module.
func (vm *VM) bootstrap() {
	object := vm.types.Add("object", NoType)
	typ := vm.types.Add("type", object.ID)
	vm.tid.object, vm.tid.typ = object.ID, typ.ID
	vm.attachTypeObject(object)
	vm.attachTypeObject(typ)
	object.sealed = true
	typ.sealed, typ.final = true, true
	typ.dynamicAttrs = false

	builtin := func(name string, base TypeID, final bool) *TypeInfo {
		t := vm.newType(name, base)
		t.dynamicAttrs = false
		t.sealed = true
		t.final = final
		return t
	}
	vm.tid.none = builtin("NoneType", vm.tid.object, true).ID
	vm.tid.integer = builtin("int", vm.tid.object, true).ID
	vm.tid.boolean = builtin("bool", vm.tid.integer, true).ID
	vm.tid.float = builtin("float", vm.tid.object, true).ID
	vm.tid.str = builtin("str", vm.tid.object, true).ID
	vm.tid.tuple = builtin("tuple", vm.tid.object, true).ID
	vm.tid.function = builtin("function", vm.tid.object, true).ID
	vm.tid.native = builtin("native_function", vm.tid.object, true).ID
	vm.tid.bound = builtin("bound_method", vm.tid.object, true).ID
	vm.tid.module = builtin("module", vm.tid.object, true).ID
	vm.tid.generator = builtin("generator", vm.tid.object, true).ID
	vm.tid.iterator = builtin("iterator", vm.tid.object, true).ID
	vm.tid.rng = builtin("range", vm.tid.object, true).ID
	vm.tid.property = builtin("property", vm.tid.object, true).ID
	vm.tid.notImpl = builtin("NotImplementedType", vm.tid.object, true).ID

	// list and dict may be subclassed; instances of subclasses carry the
	// builtin payload and an attribute table.
	list := builtin("list", vm.tid.object, false)
	list.newPayload = func() any { return &List{} }
	vm.tid.list = list.ID
	dict := builtin("dict", vm.tid.object, false)
	dict.newPayload = func() any { return newDict() }
	vm.tid.dict = dict.ID

	vm.builtins = vm.NewModule("builtins")

	vm.bootstrapExceptions()
	for id := range vm.exc.kinds {
		vm.types.Get(id).sealed = true
	}

	vm.defineConstructors()
	vm.defineMethods()
	vm.defineBuiltinFunctions()

	for _, t := range vm.types.types {
		if t.Name != "NotImplementedType" {
			vm.setBuiltin(t.Name, t.object)
		}
	}
	vm.setBuiltin("NotImplemented", NotImplemented)
}

// ---------------------------------------------------------------------------
// Argument helpers for native bodies
// ---------------------------------------------------------------------------

// checkArgs enforces min <= len(args) <= max; max < 0 is unbounded.
func (vm *VM) checkArgs(name string, args []Value, min, max int) {
	n := len(args)
	switch {
	case n >= min && (max < 0 || n <= max):
		return
	case min == max:
		vm.Raisef(vm.exc.argument, "%s() takes exactly %d argument%s (%d given)", name, min, plural(min), n)
	case n < min:
		vm.Raisef(vm.exc.argument, "%s() takes at least %d argument%s (%d given)", name, min, plural(min), n)
	default:
		vm.Raisef(vm.exc.argument, "%s() takes at most %d argument%s (%d given)", name, max, plural(max), n)
	}
}

func (vm *VM) argString(fn string, v Value) string {
	s, ok := vm.stringOf(v)
	if !ok {
		vm.Raisef(vm.exc.typeErr, "%s() argument must be str, not '%s'", fn, vm.TypeName(v))
	}
	return s
}

func (vm *VM) argInt(fn string, v Value) int64 {
	n, ok := intOf(v)
	if !ok {
		vm.Raisef(vm.exc.typeErr, "'%s' object cannot be interpreted as an integer", vm.TypeName(v))
	}
	return n
}

// clsArg returns the class a __new__ was called with.
func (vm *VM) clsArg(fn string, args []Value) *TypeInfo {
	if len(args) == 0 {
		vm.Raisef(vm.exc.argument, "%s() missing class argument", fn)
	}
	t, ok := vm.typeInfoOf(args[0])
	if !ok {
		vm.Raisef(vm.exc.typeErr, "%s(X): X is not a type object (%s)", fn, vm.TypeName(args[0]))
	}
	return t
}

// catch runs fn and reports whether it raised an instance of t, which is
// then discarded. Other exceptions propagate.
func (vm *VM) catch(t TypeID, fn func()) (caught bool) {
	depth := len(vm.frames)
	defer func() {
		if r := recover(); r != nil {
			rs, ok := r.(*raised)
			if !ok || !vm.IsInstance(rs.exc, t) {
				panic(r)
			}
			vm.frames = vm.frames[:depth]
			caught = true
		}
	}()
	fn()
	return false
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

func (vm *VM) defineConstructors() {
	tt := vm.types.Get

	vm.defineMethod(tt(vm.tid.typ), "__new__", -1, func(vm *VM, args []Value, _ []KwArg) Value {
		vm.checkArgs("type", args, 2, 2)
		return vm.types.Get(vm.typeOf(args[1])).object
	})

	vm.defineMethod(tt(vm.tid.none), "__new__", 1, func(vm *VM, _ []Value, _ []KwArg) Value {
		return None
	})

	vm.defineMethod(tt(vm.tid.integer), "__new__", -1, func(vm *VM, args []Value, _ []KwArg) Value {
		vm.checkArgs("int", args, 1, 2)
		if len(args) == 1 {
			return FromInt(0)
		}
		return vm.toInt(args[1])
	})

	vm.defineMethod(tt(vm.tid.boolean), "__new__", -1, func(vm *VM, args []Value, _ []KwArg) Value {
		vm.checkArgs("bool", args, 1, 2)
		return FromBool(len(args) == 2 && vm.truthy(args[1]))
	})

	vm.defineMethod(tt(vm.tid.float), "__new__", -1, func(vm *VM, args []Value, _ []KwArg) Value {
		vm.checkArgs("float", args, 1, 2)
		if len(args) == 1 {
			return FromFloat(0)
		}
		return vm.toFloat(args[1])
	})

	vm.defineMethod(tt(vm.tid.str), "__new__", -1, func(vm *VM, args []Value, _ []KwArg) Value {
		vm.checkArgs("str", args, 1, 2)
		if len(args) == 1 {
			return vm.NewString("")
		}
		if _, ok := vm.stringOf(args[1]); ok {
			return args[1]
		}
		return vm.NewString(vm.str(args[1]))
	})

	vm.defineMethod(tt(vm.tid.tuple), "__new__", -1, func(vm *VM, args []Value, _ []KwArg) Value {
		vm.checkArgs("tuple", args, 1, 2)
		if len(args) == 1 {
			return vm.NewTuple()
		}
		if _, ok := vm.tupleOf(args[1]); ok {
			return args[1]
		}
		items := vm.collectItems(args[1])
		return vm.heap.alloc(&Object{Type: vm.tid.tuple, Payload: &Tuple{Items: items}})
	})

	vm.defineMethod(tt(vm.tid.list), "__new__", -1, func(vm *VM, args []Value, _ []KwArg) Value {
		cls := vm.clsArg("list", args)
		vm.checkArgs("list", args, 1, 2)
		var items []Value
		if len(args) == 2 {
			items = vm.collectItems(args[1])
		}
		inst := vm.allocInstance(cls)
		obj, _ := vm.heap.get(inst)
		obj.Payload.(*List).Items = items
		return inst
	})

	newDictFn := vm.NewKeywordFunction("__new__", -1, func(vm *VM, args []Value, named []KwArg) Value {
		cls := vm.clsArg("dict", args)
		vm.checkArgs("dict", args, 1, 2)
		inst := vm.allocInstance(cls)
		if len(args) == 1 && len(named) == 0 {
			return inst
		}
		vm.rooted([]Value{inst}, func() {
			obj, _ := vm.heap.get(inst)
			d := obj.Payload.(*Dict)
			if len(args) == 2 {
				vm.dictUpdate(d, args[1])
			}
			for _, kw := range named {
				d.set(vm, vm.NewString(vm.names.String(kw.Name)), kw.Value)
			}
		})
		return inst
	})
	tt(vm.tid.dict).Attrs.Set(vm.wk.new, newDictFn)

	vm.defineMethod(tt(vm.tid.rng), "__new__", -1, func(vm *VM, args []Value, _ []KwArg) Value {
		vm.checkArgs("range", args, 2, 4)
		r := &Range{Step: 1}
		switch len(args) {
		case 2:
			r.Stop = vm.argInt("range", args[1])
		case 3:
			r.Start, r.Stop = vm.argInt("range", args[1]), vm.argInt("range", args[2])
		default:
			r.Start, r.Stop, r.Step = vm.argInt("range", args[1]), vm.argInt("range", args[2]), vm.argInt("range", args[3])
		}
		if r.Step == 0 {
			vm.Raisef(vm.exc.value, "range() arg 3 must not be zero")
		}
		return vm.heap.alloc(&Object{Type: vm.tid.rng, Payload: r})
	})

	vm.defineMethod(tt(vm.tid.property), "__new__", -1, func(vm *VM, args []Value, _ []KwArg) Value {
		vm.checkArgs("property", args, 1, 3)
		p := &Property{Get: None, Set: None}
		if len(args) > 1 {
			p.Get = args[1]
		}
		if len(args) > 2 {
			p.Set = args[2]
		}
		return vm.heap.alloc(&Object{Type: vm.tid.property, Payload: p})
	})

	for _, id := range []TypeID{vm.tid.function, vm.tid.native, vm.tid.bound, vm.tid.module,
		vm.tid.generator, vm.tid.iterator, vm.tid.notImpl} {
		name := tt(id).Name
		vm.defineMethod(tt(id), "__new__", -1, func(vm *VM, _ []Value, _ []KwArg) Value {
			vm.Raisef(vm.exc.typeErr, "cannot create '%s' instances", name)
			return Null
		})
	}
}

// toInt implements int(x).
func (vm *VM) toInt(v Value) Value {
	if n, ok := intOf(v); ok {
		return FromInt(n)
	}
	if v.IsFloat() {
		f := v.Float()
		switch {
		case math.IsNaN(f):
			vm.Raisef(vm.exc.value, "cannot convert float NaN to integer")
		case math.IsInf(f, 0):
			vm.Raisef(vm.exc.overflow, "cannot convert float infinity to integer")
		}
		t := math.Trunc(f)
		if t > float64(MaxInt) || t < float64(MinInt) {
			vm.Raisef(vm.exc.overflow, "integer result out of range")
		}
		return FromInt(int64(t))
	}
	if s, ok := vm.stringOf(v); ok {
		n, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(s), "_", ""), 10, 64)
		if err != nil {
			vm.Raisef(vm.exc.value, "invalid literal for int() with base 10: %s", quoteString(s))
		}
		return vm.checkInt(n)
	}
	vm.Raisef(vm.exc.typeErr, "int() argument must be a string or a number, not '%s'", vm.TypeName(v))
	return Null
}

// toFloat implements float(x).
func (vm *VM) toFloat(v Value) Value {
	if f, ok := floatOf(v); ok {
		return FromFloat(f)
	}
	if s, ok := vm.stringOf(v); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			vm.Raisef(vm.exc.value, "could not convert string to float: %s", quoteString(s))
		}
		return FromFloat(f)
	}
	vm.Raisef(vm.exc.typeErr, "float() argument must be a string or a number, not '%s'", vm.TypeName(v))
	return Null
}

// dictUpdate merges a dict or an iterable of pairs into d.
func (vm *VM) dictUpdate(d *Dict, src Value) {
	defer vm.heap.Lock().Release()
	if obj, ok := vm.heap.get(src); ok {
		if other, ok := obj.Payload.(*Dict); ok {
			other.Range(func(k, v Value) bool {
				d.set(vm, k, v)
				return true
			})
			return
		}
	}
	for _, item := range vm.collectItems(src) {
		kv := vm.unpack(item, 2)
		d.set(vm, kv[0], kv[1])
	}
}

// ---------------------------------------------------------------------------
// Builtin functions
// ---------------------------------------------------------------------------

func (vm *VM) defineBuiltinFunctions() {
	printFn := vm.NewKeywordFunction("print", -1, builtinPrint)
	vm.setBuiltin("print", printFn)

	vm.RegisterNativeFunction("len", 1, func(vm *VM, args []Value, _ []KwArg) Value {
		return FromInt(vm.length(args[0]))
	})

	vm.RegisterNativeFunction("repr", 1, func(vm *VM, args []Value, _ []KwArg) Value {
		return vm.NewString(vm.repr(args[0]))
	})

	vm.RegisterNativeFunction("isinstance", 2, func(vm *VM, args []Value, _ []KwArg) Value {
		return FromBool(vm.isInstanceOf(args[0], args[1]))
	})

	vm.RegisterNativeFunction("getattr", -1, func(vm *VM, args []Value, _ []KwArg) Value {
		vm.checkArgs("getattr", args, 2, 3)
		n := vm.names.Intern(vm.attrName("getattr", args[1]))
		if len(args) == 2 {
			return vm.getAttr(args[0], n)
		}
		result := args[2]
		vm.catch(vm.exc.attribute, func() { result = vm.getAttr(args[0], n) })
		return result
	})

	vm.RegisterNativeFunction("setattr", 3, func(vm *VM, args []Value, _ []KwArg) Value {
		vm.setAttr(args[0], vm.names.Intern(vm.attrName("setattr", args[1])), args[2])
		return None
	})

	vm.RegisterNativeFunction("hasattr", 2, func(vm *VM, args []Value, _ []KwArg) Value {
		n := vm.names.Intern(vm.attrName("hasattr", args[1]))
		found := !vm.catch(vm.exc.attribute, func() { vm.getAttr(args[0], n) })
		return FromBool(found)
	})

	vm.RegisterNativeFunction("delattr", 2, func(vm *VM, args []Value, _ []KwArg) Value {
		vm.delAttr(args[0], vm.names.Intern(vm.attrName("delattr", args[1])))
		return None
	})

	vm.RegisterNativeFunction("iter", 1, func(vm *VM, args []Value, _ []KwArg) Value {
		return vm.getIter(args[0])
	})

	vm.RegisterNativeFunction("next", -1, func(vm *VM, args []Value, _ []KwArg) Value {
		vm.checkArgs("next", args, 1, 2)
		v, ok := vm.iterNext(args[0])
		if ok {
			return v
		}
		if len(args) == 2 {
			return args[1]
		}
		vm.Raisef(vm.exc.stopIteration, "")
		return Null
	})

	absName := vm.names.Intern("__abs__")
	vm.RegisterNativeFunction("abs", 1, func(vm *VM, args []Value, _ []KwArg) Value {
		v := args[0]
		if n, ok := intOf(v); ok {
			if n < 0 {
				return vm.checkInt(-n)
			}
			return FromInt(n)
		}
		if v.IsFloat() {
			return FromFloat(math.Abs(v.Float()))
		}
		if r, ok := vm.callSpecial(v, absName); ok {
			return r
		}
		vm.Raisef(vm.exc.typeErr, "bad operand type for abs(): '%s'", vm.TypeName(v))
		return Null
	})

	vm.RegisterNativeFunction("callable", 1, func(vm *VM, args []Value, _ []KwArg) Value {
		return FromBool(vm.isCallable(args[0]))
	})
}

func builtinPrint(vm *VM, args []Value, named []KwArg) Value {
	sep, end := " ", "\n"
	for _, kw := range named {
		var target *string
		switch vm.names.String(kw.Name) {
		case "sep":
			target = &sep
		case "end":
			target = &end
		default:
			vm.Raisef(vm.exc.argument, "print() got an unexpected keyword argument '%s'", vm.names.String(kw.Name))
		}
		if kw.Value == None {
			continue
		}
		s, ok := vm.stringOf(kw.Value)
		if !ok {
			vm.Raisef(vm.exc.typeErr, "%s must be None or a string, not %s", vm.names.String(kw.Name), vm.TypeName(kw.Value))
		}
		*target = s
	}
	var sb strings.Builder
	for i, a := range args {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(vm.str(a))
	}
	sb.WriteString(end)
	_, err := fmt.Fprint(vm.stdout, sb.String())
	vm.Check(err)
	return None
}

func (vm *VM) attrName(fn string, v Value) string {
	s, ok := vm.stringOf(v)
	if !ok {
		vm.Raisef(vm.exc.typeErr, "%s(): attribute name must be string, not '%s'", fn, vm.TypeName(v))
	}
	return s
}

// isInstanceOf implements isinstance; typ may be a tuple of types.
func (vm *VM) isInstanceOf(v, typ Value) bool {
	if tup, ok := vm.tupleOf(typ); ok {
		for _, t := range tup.Items {
			if vm.isInstanceOf(v, t) {
				return true
			}
		}
		return false
	}
	t, ok := vm.typeInfoOf(typ)
	if !ok {
		vm.Raisef(vm.exc.typeErr, "isinstance() arg 2 must be a type or tuple of types")
	}
	return vm.IsInstance(v, t.ID)
}

func (vm *VM) isCallable(v Value) bool {
	obj, ok := vm.heap.get(v)
	if !ok {
		return false
	}
	switch obj.Payload.(type) {
	case *Function, *NativeFunction, *BoundMethod, *TypeInfo:
		return true
	}
	_, ok = vm.types.Resolve(obj.Type, vm.wk.call)
	return ok
}
