package vm

import (
	"strings"
)

// ---------------------------------------------------------------------------
// Native methods of builtin types
// ---------------------------------------------------------------------------

func (vm *VM) defineMethods() {
	vm.defineListMethods(vm.types.Get(vm.tid.list))
	vm.defineDictMethods(vm.types.Get(vm.tid.dict))
	vm.defineStrMethods(vm.types.Get(vm.tid.str))

	prop := vm.types.Get(vm.tid.property)
	vm.defineMethod(prop, "setter", 2, func(vm *VM, args []Value, _ []KwArg) Value {
		p := vm.propertyPayload(args[0])
		return vm.heap.alloc(&Object{Type: vm.tid.property, Payload: &Property{Get: p.Get, Set: args[1]}})
	})
	vm.defineMethod(prop, "getter", 2, func(vm *VM, args []Value, _ []KwArg) Value {
		p := vm.propertyPayload(args[0])
		return vm.heap.alloc(&Object{Type: vm.tid.property, Payload: &Property{Get: args[1], Set: p.Set}})
	})

	nameOf := func(vm *VM, args []Value, _ []KwArg) Value {
		return vm.NewString(vm.callableName(args[0]))
	}
	vm.defineProperty(vm.types.Get(vm.tid.function), "__name__", nameOf)
	vm.defineProperty(vm.types.Get(vm.tid.native), "__name__", nameOf)

	bound := vm.types.Get(vm.tid.bound)
	vm.defineProperty(bound, "__self__", func(vm *VM, args []Value, _ []KwArg) Value {
		obj, _ := vm.heap.get(args[0])
		return obj.Payload.(*BoundMethod).Self
	})
	vm.defineProperty(bound, "__func__", func(vm *VM, args []Value, _ []KwArg) Value {
		obj, _ := vm.heap.get(args[0])
		return obj.Payload.(*BoundMethod).Func
	})
}

func (vm *VM) propertyPayload(v Value) *Property {
	if obj, ok := vm.heap.get(v); ok {
		if p, ok := obj.Payload.(*Property); ok {
			return p
		}
	}
	vm.Raisef(vm.exc.typeErr, "expected property, got '%s'", vm.TypeName(v))
	return nil
}

func (vm *VM) listPayload(v Value) *List {
	if obj, ok := vm.heap.get(v); ok {
		if l, ok := obj.Payload.(*List); ok {
			return l
		}
	}
	vm.Raisef(vm.exc.typeErr, "expected list, got '%s'", vm.TypeName(v))
	return nil
}

func (vm *VM) defineListMethods(t *TypeInfo) {
	vm.defineMethod(t, "append", 2, func(vm *VM, args []Value, _ []KwArg) Value {
		l := vm.listPayload(args[0])
		l.Items = append(l.Items, args[1])
		return None
	})

	vm.defineMethod(t, "extend", 2, func(vm *VM, args []Value, _ []KwArg) Value {
		items := vm.collectItems(args[1])
		l := vm.listPayload(args[0])
		l.Items = append(l.Items, items...)
		return None
	})

	vm.defineMethod(t, "insert", 3, func(vm *VM, args []Value, _ []KwArg) Value {
		l := vm.listPayload(args[0])
		n := int64(len(l.Items))
		i := vm.argInt("insert", args[1])
		if i < 0 {
			i += n
		}
		if i < 0 {
			i = 0
		}
		if i > n {
			i = n
		}
		l.Items = append(l.Items, Null)
		copy(l.Items[i+1:], l.Items[i:])
		l.Items[i] = args[2]
		return None
	})

	vm.defineMethod(t, "pop", -1, func(vm *VM, args []Value, _ []KwArg) Value {
		vm.checkArgs("pop", args, 1, 2)
		l := vm.listPayload(args[0])
		if len(l.Items) == 0 {
			vm.Raisef(vm.exc.index, "pop from empty list")
		}
		i := len(l.Items) - 1
		if len(args) == 2 {
			i = vm.seqIndex("pop", args[1], len(l.Items))
		}
		v := l.Items[i]
		copy(l.Items[i:], l.Items[i+1:])
		l.Items[len(l.Items)-1] = Null
		l.Items = l.Items[:len(l.Items)-1]
		return v
	})

	vm.defineMethod(t, "index", 2, func(vm *VM, args []Value, _ []KwArg) Value {
		l := vm.listPayload(args[0])
		for i := 0; i < len(l.Items); i++ {
			if vm.equals(l.Items[i], args[1]) {
				return FromInt(int64(i))
			}
		}
		vm.Raisef(vm.exc.value, "%s is not in list", vm.repr(args[1]))
		return Null
	})

	vm.defineMethod(t, "count", 2, func(vm *VM, args []Value, _ []KwArg) Value {
		l := vm.listPayload(args[0])
		n := int64(0)
		for i := 0; i < len(l.Items); i++ {
			if vm.equals(l.Items[i], args[1]) {
				n++
			}
		}
		return FromInt(n)
	})
}

func (vm *VM) defineDictMethods(t *TypeInfo) {
	vm.defineMethod(t, "get", -1, func(vm *VM, args []Value, _ []KwArg) Value {
		vm.checkArgs("get", args, 2, 3)
		if v, ok := vm.dictPayload(args[0]).get(vm, args[1]); ok {
			return v
		}
		if len(args) == 3 {
			return args[2]
		}
		return None
	})

	vm.defineMethod(t, "pop", -1, func(vm *VM, args []Value, _ []KwArg) Value {
		vm.checkArgs("pop", args, 2, 3)
		d := vm.dictPayload(args[0])
		v, ok := d.get(vm, args[1])
		if !ok {
			if len(args) == 3 {
				return args[2]
			}
			vm.Raisef(vm.exc.key, "%s", vm.repr(args[1]))
		}
		d.delete(vm, args[1])
		return v
	})

	vm.defineMethod(t, "setdefault", -1, func(vm *VM, args []Value, _ []KwArg) Value {
		vm.checkArgs("setdefault", args, 2, 3)
		d := vm.dictPayload(args[0])
		if v, ok := d.get(vm, args[1]); ok {
			return v
		}
		v := None
		if len(args) == 3 {
			v = args[2]
		}
		d.set(vm, args[1], v)
		return v
	})

	vm.defineMethod(t, "keys", 1, func(vm *VM, args []Value, _ []KwArg) Value {
		return vm.heap.alloc(&Object{Type: vm.tid.list, Payload: &List{Items: vm.dictPayload(args[0]).keys()}})
	})

	vm.defineMethod(t, "values", 1, func(vm *VM, args []Value, _ []KwArg) Value {
		d := vm.dictPayload(args[0])
		items := make([]Value, 0, d.Len())
		d.Range(func(_, v Value) bool {
			items = append(items, v)
			return true
		})
		return vm.heap.alloc(&Object{Type: vm.tid.list, Payload: &List{Items: items}})
	})

	vm.defineMethod(t, "items", 1, func(vm *VM, args []Value, _ []KwArg) Value {
		d := vm.dictPayload(args[0])
		items := make([]Value, 0, d.Len())
		d.Range(func(k, v Value) bool {
			items = append(items, vm.NewTuple(k, v))
			return true
		})
		return vm.heap.alloc(&Object{Type: vm.tid.list, Payload: &List{Items: items}})
	})

	vm.defineMethod(t, "update", 2, func(vm *VM, args []Value, _ []KwArg) Value {
		vm.dictUpdate(vm.dictPayload(args[0]), args[1])
		return None
	})
}

func (vm *VM) defineStrMethods(t *TypeInfo) {
	self := func(vm *VM, v Value) string {
		s, ok := vm.stringOf(v)
		if !ok {
			vm.Raisef(vm.exc.typeErr, "expected str, got '%s'", vm.TypeName(v))
		}
		return s
	}

	vm.defineMethod(t, "join", 2, func(vm *VM, args []Value, _ []KwArg) Value {
		sep := self(vm, args[0])
		items := vm.collectItems(args[1])
		parts := make([]string, len(items))
		for i, it := range items {
			s, ok := vm.stringOf(it)
			if !ok {
				vm.Raisef(vm.exc.typeErr, "sequence item %d: expected str instance, %s found", i, vm.TypeName(it))
			}
			parts[i] = s
		}
		return vm.NewString(strings.Join(parts, sep))
	})

	vm.defineMethod(t, "split", -1, func(vm *VM, args []Value, _ []KwArg) Value {
		vm.checkArgs("split", args, 1, 2)
		s := self(vm, args[0])
		var parts []string
		if len(args) == 1 || args[1] == None {
			parts = strings.Fields(s)
		} else {
			sep := vm.argString("split", args[1])
			if sep == "" {
				vm.Raisef(vm.exc.value, "empty separator")
			}
			parts = strings.Split(s, sep)
		}
		items := make([]Value, len(parts))
		for i, p := range parts {
			items[i] = vm.NewString(p)
		}
		return vm.heap.alloc(&Object{Type: vm.tid.list, Payload: &List{Items: items}})
	})

	vm.defineMethod(t, "upper", 1, func(vm *VM, args []Value, _ []KwArg) Value {
		return vm.NewString(strings.ToUpper(self(vm, args[0])))
	})

	vm.defineMethod(t, "lower", 1, func(vm *VM, args []Value, _ []KwArg) Value {
		return vm.NewString(strings.ToLower(self(vm, args[0])))
	})

	vm.defineMethod(t, "strip", 1, func(vm *VM, args []Value, _ []KwArg) Value {
		return vm.NewString(strings.TrimSpace(self(vm, args[0])))
	})

	vm.defineMethod(t, "startswith", 2, func(vm *VM, args []Value, _ []KwArg) Value {
		return FromBool(strings.HasPrefix(self(vm, args[0]), vm.argString("startswith", args[1])))
	})

	vm.defineMethod(t, "endswith", 2, func(vm *VM, args []Value, _ []KwArg) Value {
		return FromBool(strings.HasSuffix(self(vm, args[0]), vm.argString("endswith", args[1])))
	})

	vm.defineMethod(t, "replace", 3, func(vm *VM, args []Value, _ []KwArg) Value {
		s := self(vm, args[0])
		return vm.NewString(strings.ReplaceAll(s, vm.argString("replace", args[1]), vm.argString("replace", args[2])))
	})
}
