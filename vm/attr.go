package vm

// ---------------------------------------------------------------------------
// Type queries
// ---------------------------------------------------------------------------

// typeOf returns the type of any value without touching the heap for
// immediates.
func (vm *VM) typeOf(v Value) TypeID {
	switch {
	case v.IsInt():
		return vm.tid.integer
	case v.IsFloat():
		return vm.tid.float
	case v == True || v == False:
		return vm.tid.boolean
	case v == NotImplemented:
		return vm.tid.notImpl
	case v.IsSingleton():
		return vm.tid.none
	}
	obj, _ := vm.heap.get(v)
	return obj.Type
}

// TypeOf returns the type of v.
func (vm *VM) TypeOf(v Value) TypeID { return vm.typeOf(v) }

// TypeName returns the name of v's type.
func (vm *VM) TypeName(v Value) string {
	if v.IsRef() && !vm.heap.valid(v) {
		return "<freed>"
	}
	return vm.types.Get(vm.typeOf(v)).Name
}

// IsInstance reports whether v's type is t or derives from it.
func (vm *VM) IsInstance(v Value, t TypeID) bool {
	return vm.types.IsSubtype(vm.typeOf(v), t)
}

// typeInfoOf returns the TypeInfo if v is a type object.
func (vm *VM) typeInfoOf(v Value) (*TypeInfo, bool) {
	obj, ok := vm.heap.get(v)
	if !ok {
		return nil, false
	}
	t, ok := obj.Payload.(*TypeInfo)
	return t, ok
}

// ---------------------------------------------------------------------------
// Attribute access
// ---------------------------------------------------------------------------

// getAttr resolves obj.n: the object's own table first, then its type
// chain. Functions found on the type are bound to obj and properties run
// their getter. Neither path writes to obj's table.
func (vm *VM) getAttr(v Value, n Name) Value {
	obj, isRef := vm.heap.get(v)
	if isRef {
		if t, ok := obj.Payload.(*TypeInfo); ok {
			return vm.typeAttr(v, t, n)
		}
		if obj.Attrs != nil {
			if x, ok := obj.Attrs.Get(n); ok {
				return x
			}
		}
	}
	t := vm.typeOf(v)
	if attr, ok := vm.types.Resolve(t, n); ok {
		return vm.bindAttr(v, attr)
	}
	if n == vm.wk.class {
		return vm.types.Get(t).object
	}
	vm.Raisef(vm.exc.attribute, "'%s' object has no attribute '%s'", vm.types.Get(t).Name, vm.names.String(n))
	return Null
}

// typeAttr resolves an attribute on a type object. Class attributes come
// back unbound.
func (vm *VM) typeAttr(v Value, t *TypeInfo, n Name) Value {
	switch n {
	case vm.wk.name:
		return vm.NewString(t.Name)
	case vm.wk.class:
		return vm.types.Get(vm.tid.typ).object
	case vm.wk.base:
		if t.Base == NoType {
			return None
		}
		return vm.types.Get(t.Base).object
	}
	if attr, ok := vm.types.Resolve(t.ID, n); ok {
		return attr
	}
	if attr, ok := vm.types.Resolve(vm.tid.typ, n); ok {
		return vm.bindAttr(v, attr)
	}
	vm.Raisef(vm.exc.attribute, "type object '%s' has no attribute '%s'", t.Name, vm.names.String(n))
	return Null
}

// bindAttr turns a type-chain hit into the value seen through an
// instance.
func (vm *VM) bindAttr(self, attr Value) Value {
	obj, ok := vm.heap.get(attr)
	if !ok {
		return attr
	}
	switch p := obj.Payload.(type) {
	case *Function, *NativeFunction:
		return vm.heap.alloc(&Object{
			Type:    vm.tid.bound,
			Payload: &BoundMethod{Self: self, Func: attr},
		})
	case *Property:
		if p.Get == None {
			vm.Raisef(vm.exc.attribute, "property has no getter")
		}
		return vm.call(p.Get, []Value{self}, nil)
	}
	return attr
}

// findProperty returns the property named n on t's chain.
func (vm *VM) findProperty(t TypeID, n Name) (*Property, bool) {
	attr, ok := vm.types.Resolve(t, n)
	if !ok {
		return nil, false
	}
	obj, ok := vm.heap.get(attr)
	if !ok {
		return nil, false
	}
	p, ok := obj.Payload.(*Property)
	return p, ok
}

func (vm *VM) setAttr(v Value, n Name, val Value) {
	obj, isRef := vm.heap.get(v)
	if !isRef {
		vm.Raisef(vm.exc.immutable, "cannot set attribute '%s' of immutable '%s' object",
			vm.names.String(n), vm.TypeName(v))
	}
	if t, ok := obj.Payload.(*TypeInfo); ok {
		if t.sealed {
			vm.Raisef(vm.exc.immutable, "cannot set attribute '%s' of builtin type '%s'", vm.names.String(n), t.Name)
		}
		t.Attrs.Set(n, val)
		return
	}
	if p, ok := vm.findProperty(obj.Type, n); ok {
		if p.Set == None {
			vm.Raisef(vm.exc.attribute, "property '%s' of '%s' object has no setter",
				vm.names.String(n), vm.types.Get(obj.Type).Name)
		}
		vm.call(p.Set, []Value{v, val}, nil)
		return
	}
	if obj.Attrs == nil {
		vm.Raisef(vm.exc.immutable, "cannot set attribute '%s' of immutable '%s' object",
			vm.names.String(n), vm.types.Get(obj.Type).Name)
	}
	obj.Attrs.Set(n, val)
}

func (vm *VM) delAttr(v Value, n Name) {
	obj, isRef := vm.heap.get(v)
	if !isRef {
		vm.Raisef(vm.exc.immutable, "cannot delete attribute '%s' of immutable '%s' object",
			vm.names.String(n), vm.TypeName(v))
	}
	if t, ok := obj.Payload.(*TypeInfo); ok {
		if t.sealed {
			vm.Raisef(vm.exc.immutable, "cannot delete attribute '%s' of builtin type '%s'", vm.names.String(n), t.Name)
		}
		if !t.Attrs.Erase(n) {
			vm.Raisef(vm.exc.attribute, "type object '%s' has no attribute '%s'", t.Name, vm.names.String(n))
		}
		return
	}
	if _, ok := vm.findProperty(obj.Type, n); ok {
		vm.Raisef(vm.exc.attribute, "cannot delete property '%s'", vm.names.String(n))
	}
	if obj.Attrs == nil || !obj.Attrs.Erase(n) {
		vm.Raisef(vm.exc.attribute, "'%s' object has no attribute '%s'",
			vm.types.Get(obj.Type).Name, vm.names.String(n))
	}
}

// hasAttr reports whether getAttr would succeed, without running property
// getters.
func (vm *VM) hasAttr(v Value, n Name) bool {
	if obj, ok := vm.heap.get(v); ok {
		if t, ok := obj.Payload.(*TypeInfo); ok {
			if n == vm.wk.name || n == vm.wk.class || n == vm.wk.base {
				return true
			}
			_, found := vm.types.Resolve(t.ID, n)
			if !found {
				_, found = vm.types.Resolve(vm.tid.typ, n)
			}
			return found
		}
		if obj.Attrs != nil && obj.Attrs.Contains(n) {
			return true
		}
	}
	if n == vm.wk.class {
		return true
	}
	_, ok := vm.types.Resolve(vm.typeOf(v), n)
	return ok
}

// lookupSpecial resolves a dunder method on v's type chain only.
func (vm *VM) lookupSpecial(v Value, n Name) (Value, bool) {
	return vm.types.Resolve(vm.typeOf(v), n)
}

// callSpecial calls the dunder n of v with v prepended to args.
func (vm *VM) callSpecial(v Value, n Name, args ...Value) (Value, bool) {
	m, ok := vm.lookupSpecial(v, n)
	if !ok {
		return Null, false
	}
	full := make([]Value, 0, len(args)+1)
	full = append(full, v)
	full = append(full, args...)
	return vm.call(m, full, nil), true
}
