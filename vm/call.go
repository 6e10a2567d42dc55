package vm

import (
	"strings"
)

// ---------------------------------------------------------------------------
// Call protocol
// ---------------------------------------------------------------------------

// KwArg is one named argument of a call.
type KwArg struct {
	Name  Name
	Value Value
}

// declNames caches the interned parameter names of a FuncDecl.
type declNames struct {
	params    []Name
	defaults  []Name
	varArgs   Name
	varKwargs Name
}

func (vm *VM) declNamesOf(d *FuncDecl) *declNames {
	if dn, ok := vm.decls[d]; ok {
		return dn
	}
	dn := &declNames{
		params:   make([]Name, len(d.Params)),
		defaults: make([]Name, len(d.Defaults)),
	}
	for i, p := range d.Params {
		dn.params[i] = vm.names.Intern(p)
	}
	for i, kw := range d.Defaults {
		dn.defaults[i] = vm.names.Intern(kw.Name)
	}
	if d.VarArgs != "" {
		dn.varArgs = vm.names.Intern(d.VarArgs)
	}
	if d.VarKwargs != "" {
		dn.varKwargs = vm.names.Intern(d.VarKwargs)
	}
	vm.decls[d] = dn
	return dn
}

// call invokes callable synchronously and returns its result.
func (vm *VM) call(callable Value, args []Value, named []KwArg) Value {
	return vm.invoke(callable, args, named, false)
}

// invoke dispatches on the kind of callable. With tail set, a guest
// function is pushed as the new active frame and callPending is returned;
// the dispatch loop then continues in that frame instead of recursing.
func (vm *VM) invoke(callable Value, args []Value, named []KwArg, tail bool) Value {
	obj, ok := vm.heap.get(callable)
	if !ok {
		vm.Raisef(vm.exc.typeErr, "'%s' object is not callable", vm.TypeName(callable))
	}

	switch p := obj.Payload.(type) {
	case *Function:
		f := vm.bindFrame(callable, p, args, named)
		if p.Decl.Code.IsGenerator {
			return vm.newGenerator(f)
		}
		return vm.enter(f, tail)

	case *NativeFunction:
		if len(named) > 0 && !p.Keywords {
			vm.Raisef(vm.exc.argument, "%s() takes no keyword arguments", p.Name)
		}
		if p.Arity >= 0 && len(args) != p.Arity {
			vm.Raisef(vm.exc.argument, "%s() takes %d positional argument%s but %d %s given",
				p.Name, p.Arity, plural(p.Arity), len(args), wasWere(len(args)))
		}
		return p.Fn(vm, args, named)

	case *BoundMethod:
		full := make([]Value, 0, len(args)+1)
		full = append(full, p.Self)
		full = append(full, args...)
		return vm.invoke(p.Func, full, named, tail)

	case *TypeInfo:
		return vm.construct(p, args, named, tail)
	}

	if m, ok := vm.types.Resolve(obj.Type, vm.wk.call); ok {
		full := make([]Value, 0, len(args)+1)
		full = append(full, callable)
		full = append(full, args...)
		return vm.invoke(m, full, named, tail)
	}
	vm.Raisef(vm.exc.typeErr, "'%s' object is not callable", vm.TypeName(callable))
	return Null
}

// enter pushes f and either runs it to completion or, for tail calls,
// leaves it to the active dispatch loop.
func (vm *VM) enter(f *Frame, tail bool) Value {
	vm.pushFrame(f)
	if tail {
		return callPending
	}
	return vm.run(len(vm.frames) - 1)
}

// construct instantiates t. A __new__ on the type chain builds the
// instance; otherwise a plain instance is allocated. __init__ then runs
// with the same arguments and the instance is the result.
func (vm *VM) construct(t *TypeInfo, args []Value, named []KwArg, tail bool) Value {
	var inst Value
	if ctor, ok := vm.types.Resolve(t.ID, vm.wk.new); ok {
		full := make([]Value, 0, len(args)+1)
		full = append(full, t.object)
		full = append(full, args...)
		inst = vm.call(ctor, full, named)
		if !vm.IsInstance(inst, t.ID) {
			return inst
		}
	} else {
		inst = vm.allocInstance(t)
	}

	init, ok := vm.types.Resolve(t.ID, vm.wk.init)
	if !ok {
		if _, hasNew := vm.types.Resolve(t.ID, vm.wk.new); !hasNew && (len(args) > 0 || len(named) > 0) {
			vm.Raisef(vm.exc.argument, "%s() takes no arguments", t.Name)
		}
		return inst
	}

	full := make([]Value, 0, len(args)+1)
	full = append(full, inst)
	full = append(full, args...)

	obj, _ := vm.heap.get(init)
	if fn, ok := obj.Payload.(*Function); ok && !fn.Decl.Code.IsGenerator {
		f := vm.bindFrame(init, fn, full, named)
		f.construct = inst
		return vm.enter(f, tail)
	}
	r := None
	vm.rooted([]Value{inst}, func() { r = vm.call(init, full, named) })
	if r != None {
		vm.Raisef(vm.exc.typeErr, "__init__() should return None, not '%s'", vm.TypeName(r))
	}
	return inst
}

// allocInstance allocates a plain instance of t.
func (vm *VM) allocInstance(t *TypeInfo) Value {
	obj := &Object{Type: t.ID}
	if t.dynamicAttrs {
		obj.Attrs = NewTable(0)
	}
	if t.newPayload != nil {
		obj.Payload = t.newPayload()
	}
	if ex, ok := obj.Payload.(*Exception); ok {
		ex.Args = vm.NewTuple()
	}
	return vm.heap.alloc(obj)
}

// ---------------------------------------------------------------------------
// Argument binding
// ---------------------------------------------------------------------------

// bindFrame binds args and named to the parameters of fn and returns the
// frame that will run it.
//
// Required parameters take positional arguments in order. Surplus
// positional arguments fill defaulted parameters in order and then the
// *args tuple. Named arguments bind defaulted parameters; names left over
// go to the **kwargs dict.
func (vm *VM) bindFrame(fnVal Value, fn *Function, args []Value, named []KwArg) *Frame {
	d := fn.Decl
	dn := vm.declNamesOf(d)
	fname := d.Code.Name
	locals := NewTable(len(d.Params) + len(d.Defaults) + len(named) + 2)

	np := len(dn.params)
	if len(args) < np {
		missing := make([]string, 0, np-len(args))
		for _, p := range d.Params[len(args):] {
			missing = append(missing, "'"+p+"'")
		}
		vm.Raisef(vm.exc.argument, "%s() missing %d required positional argument%s: %s",
			fname, len(missing), plural(len(missing)), strings.Join(missing, ", "))
	}
	for i, n := range dn.params {
		locals.Set(n, args[i])
	}

	rest := args[np:]
	nd := len(dn.defaults)
	i := 0
	for ; i < nd && i < len(rest); i++ {
		locals.Set(dn.defaults[i], rest[i])
	}
	rest = rest[i:]

	if dn.varArgs != 0 {
		locals.Set(dn.varArgs, vm.NewTuple(rest...))
	} else if len(rest) > 0 {
		maxPos := np + nd
		vm.Raisef(vm.exc.argument, "%s() takes %d positional argument%s but %d %s given",
			fname, maxPos, plural(maxPos), len(args), wasWere(len(args)))
	}

	kwargs := Null
	var kwDict *Dict
	if dn.varKwargs != 0 {
		kwargs = vm.NewDict()
		kwDict = vm.dictPayload(kwargs)
		locals.Set(dn.varKwargs, kwargs)
	}

	for _, kw := range named {
		if vm.isParam(dn, kw.Name) {
			if locals.Contains(kw.Name) {
				vm.Raisef(vm.exc.argument, "%s() got multiple values for argument '%s'",
					fname, vm.names.String(kw.Name))
			}
			locals.Set(kw.Name, kw.Value)
			continue
		}
		if kwDict == nil {
			vm.Raisef(vm.exc.argument, "%s() got an unexpected keyword argument '%s'",
				fname, vm.names.String(kw.Name))
		}
		kwDict.set(vm, vm.NewString(vm.names.String(kw.Name)), kw.Value)
	}

	for j, n := range dn.defaults {
		if !locals.Contains(n) {
			locals.Set(n, fn.Defaults[j])
		}
	}

	cs := vm.mustLoadCode(d.Code)
	modObj, _ := vm.heap.get(fn.Module)
	return &Frame{
		code:      d.Code,
		state:     cs,
		locals:    locals,
		closure:   fn.Closure,
		module:    fn.Module,
		globals:   modObj.Attrs,
		fn:        fnVal,
		construct: Null,
	}
}

func (vm *VM) isParam(dn *declNames, n Name) bool {
	for _, p := range dn.params {
		if p == n {
			return true
		}
	}
	for _, p := range dn.defaults {
		if p == n {
			return true
		}
	}
	return false
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func wasWere(n int) string {
	if n == 1 {
		return "was"
	}
	return "were"
}
