package vm

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// run executes frames until the frame at index base returns, and returns
// its result. An exception that finds no handler at or above base pops
// every frame down to base and propagates to the caller of run.
func (vm *VM) run(base int) Value {
	for {
		result, exc, ok := vm.dispatch(base)
		if ok {
			return result
		}
		vm.unwind(base, exc)
	}
}

// dispatch runs the loop and recovers a raised exception. The recover is
// installed once per entry, not once per instruction.
func (vm *VM) dispatch(base int) (result Value, exc Value, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			rs, isRaised := r.(*raised)
			if !isRaised {
				panic(r)
			}
			result, exc, ok = Null, rs.exc, false
		}
	}()
	return vm.loop(base), Null, true
}

// unwind searches the frames at or above base for a try block. On success
// the handling frame's operand stack is cut back to the depth recorded at
// block entry, the exception is pushed, and execution continues at the
// handler. Frames without a handler are popped and recorded in the
// exception's trace.
func (vm *VM) unwind(base int, exc Value) {
	var ex *Exception
	if obj, ok := vm.heap.get(exc); ok {
		ex, _ = obj.Payload.(*Exception)
	}
	for len(vm.frames) > base {
		f := vm.frames[len(vm.frames)-1]
		if i := f.findHandler(); i >= 0 {
			b := f.blocks[i]
			f.blocks = f.blocks[:i]
			f.truncate(b.depth)
			f.restoreHandling(b.handling)
			f.handling = append(f.handling, exc)
			f.push(exc)
			f.jump(f.code.Blocks[b.index].Handler)
			return
		}
		if ex != nil {
			ex.Trace = append(ex.Trace, f.traceEntry())
		}
		vm.popFrame()
		if f.gen != nil {
			f.gen.finish()
		}
	}
	panic(&raised{exc: exc})
}

// finishFrame pops the active frame with result v. It reports whether the
// popped frame was the base frame, in which case v is the result of run.
func (vm *VM) finishFrame(base int, v Value) (Value, bool) {
	f := vm.frames[len(vm.frames)-1]
	if f.construct != Null {
		if v != None {
			// Raised while the __init__ frame is still active so that it
			// appears in the trace; its own try blocks are already left.
			f.blocks = f.blocks[:0]
			vm.Raisef(vm.exc.typeErr, "__init__() should return None, not '%s'", vm.TypeName(v))
		}
		v = f.construct
	}
	vm.popFrame()
	if f.gen != nil {
		f.gen.finish()
	}
	if len(vm.frames) <= base {
		return v, true
	}
	vm.frames[len(vm.frames)-1].push(v)
	return Null, false
}

func (vm *VM) loop(base int) Value {
	f := vm.frames[len(vm.frames)-1]
	maxStack := vm.cfg.MaxOperandStack

	for {
		if f.ip >= len(f.code.Instrs) {
			if r, done := vm.finishFrame(base, None); done {
				return r
			}
			f = vm.frames[len(vm.frames)-1]
			continue
		}
		if maxStack > 0 && len(f.stack) > maxStack {
			vm.Raisef(vm.exc.runtime, "operand stack overflow in %s", f.code.Name)
		}
		vm.safePoint()

		in := f.code.Instrs[f.ip]
		f.ip++
		a := in.Arg

		switch in.Op {
		// --- Stack operations ---
		case OpNOP:

		case OpPopTop:
			f.pop()

		case OpDupTop:
			f.push(f.top())

		case OpRotTwo:
			n := len(f.stack)
			if n < 2 {
				panic(&InvariantViolation{Reason: "operand stack underflow in " + f.code.Name})
			}
			f.stack[n-1], f.stack[n-2] = f.stack[n-2], f.stack[n-1]

		// --- Loads ---
		case OpLoadConst:
			f.push(f.state.consts[a])

		case OpLoadNone:
			f.push(None)

		case OpLoadTrue:
			f.push(True)

		case OpLoadFalse:
			f.push(False)

		case OpLoadInt:
			f.push(FromInt(int64(a)))

		case OpLoadName:
			f.push(vm.loadName(f, f.state.names[a]))

		case OpLoadFast:
			n := f.state.names[a]
			v, ok := f.locals.Get(n)
			if !ok {
				vm.Raisef(vm.exc.name, "local variable '%s' referenced before assignment", vm.names.String(n))
			}
			f.push(v)

		case OpLoadGlobal:
			f.push(vm.loadGlobal(f, f.state.names[a]))

		case OpLoadAttr:
			v := vm.getAttr(f.top(), f.state.names[a])
			f.stack[len(f.stack)-1] = v

		case OpLoadSubscr:
			v := vm.getItem(f.peek(1), f.peek(0))
			f.popN(2)
			f.push(v)

		// --- Stores and deletes ---
		case OpStoreName, OpStoreFast:
			f.locals.Set(f.state.names[a], f.pop())

		case OpStoreGlobal:
			f.globals.Set(f.state.names[a], f.pop())

		case OpStoreAttr:
			vm.setAttr(f.peek(0), f.state.names[a], f.peek(1))
			f.popN(2)

		case OpStoreSubscr:
			vm.setItem(f.peek(1), f.peek(0), f.peek(2))
			f.popN(3)

		case OpDeleteName:
			n := f.state.names[a]
			if !f.locals.Erase(n) {
				vm.Raisef(vm.exc.name, "name '%s' is not defined", vm.names.String(n))
			}

		case OpDeleteGlobal:
			n := f.state.names[a]
			if !f.globals.Erase(n) {
				vm.Raisef(vm.exc.name, "name '%s' is not defined", vm.names.String(n))
			}

		case OpDeleteAttr:
			vm.delAttr(f.top(), f.state.names[a])
			f.pop()

		case OpDeleteSubscr:
			vm.delItem(f.peek(1), f.peek(0))
			f.popN(2)

		// --- Containers ---
		case OpBuildList:
			v := vm.NewList(f.topN(int(a))...)
			f.popN(int(a))
			f.push(v)

		case OpBuildTuple:
			v := vm.NewTuple(f.topN(int(a))...)
			f.popN(int(a))
			f.push(v)

		case OpBuildDict:
			d := vm.NewDict()
			pairs := f.topN(2 * int(a))
			dict := vm.dictPayload(d)
			for i := 0; i < len(pairs); i += 2 {
				dict.set(vm, pairs[i], pairs[i+1])
			}
			f.popN(2 * int(a))
			f.push(d)

		case OpUnpackSequence:
			items := vm.unpack(f.top(), int(a))
			f.pop()
			for i := len(items) - 1; i >= 0; i-- {
				f.push(items[i])
			}

		// --- Operators ---
		case OpBinaryOp:
			v := vm.binaryOp(BinOp(a), f.peek(1), f.peek(0))
			f.popN(2)
			f.push(v)

		case OpIsOp:
			same := f.peek(1) == f.peek(0)
			f.popN(2)
			f.push(FromBool(same != (a != 0)))

		case OpContainsOp:
			found := vm.contains(f.peek(0), f.peek(1))
			f.popN(2)
			f.push(FromBool(found != (a != 0)))

		case OpUnaryNegative:
			v := vm.negate(f.top())
			f.stack[len(f.stack)-1] = v

		case OpUnaryNot:
			v := FromBool(!vm.truthy(f.top()))
			f.stack[len(f.stack)-1] = v

		case OpUnaryInvert:
			v := vm.invert(f.top())
			f.stack[len(f.stack)-1] = v

		// --- Control flow ---
		case OpJumpAbsolute:
			f.jump(a)

		case OpPopJumpIfFalse:
			t := vm.truthy(f.top())
			f.pop()
			if !t {
				f.jump(a)
			}

		case OpPopJumpIfTrue:
			t := vm.truthy(f.top())
			f.pop()
			if t {
				f.jump(a)
			}

		case OpJumpIfFalseOrPop:
			if !vm.truthy(f.top()) {
				f.jump(a)
			} else {
				f.pop()
			}

		case OpJumpIfTrueOrPop:
			if vm.truthy(f.top()) {
				f.jump(a)
			} else {
				f.pop()
			}

		case OpGetIter:
			it := vm.getIter(f.top())
			f.stack[len(f.stack)-1] = it

		case OpForIter:
			v, ok := vm.iterNext(f.top())
			if ok {
				f.push(v)
			} else {
				f.pop()
				f.jump(a)
			}

		case OpLoopBreak:
			i := f.findBlock(a)
			if i < 0 {
				panic(&InvariantViolation{Reason: "LOOP_BREAK outside its loop in " + f.code.Name})
			}
			b := f.blocks[i]
			f.blocks = f.blocks[:i]
			f.truncate(b.depth)
			f.restoreHandling(b.handling)
			f.jump(f.code.Blocks[a].End)

		case OpLoopContinue:
			i := f.findBlock(a)
			if i < 0 {
				panic(&InvariantViolation{Reason: "LOOP_CONTINUE outside its loop in " + f.code.Name})
			}
			if i+1 < len(f.blocks) {
				inner := f.blocks[i+1]
				f.truncate(inner.depth)
				f.restoreHandling(inner.handling)
				f.blocks = f.blocks[:i+1]
			}
			f.jump(f.code.Blocks[a].Start)

		// --- Blocks and exceptions ---
		case OpEnterBlock:
			f.enterBlock(a)

		case OpExitBlock:
			f.exitBlock()

		case OpExceptionMatch:
			match := vm.exceptionMatches(f.peek(1), f.peek(0))
			f.popN(2)
			f.push(FromBool(match))

		case OpRaise:
			vm.Raise(f.top())

		case OpReRaise:
			n := len(f.handling)
			if n == 0 {
				vm.Raisef(vm.exc.runtime, "no active exception to re-raise")
			}
			exc := f.handling[n-1]
			f.restoreHandling(n - 1)
			panic(&raised{exc: exc})

		case OpPopException:
			n := len(f.handling)
			if n == 0 {
				panic(&InvariantViolation{Reason: "POP_EXCEPTION without an active handler in " + f.code.Name})
			}
			f.restoreHandling(n - 1)

		// --- Definitions ---
		case OpMakeFunction:
			f.push(vm.makeFunction(f, f.code.Consts[a].Func))

		case OpBeginClass:
			t := vm.beginClass(vm.names.String(f.state.names[a]), f.top())
			f.pop()
			f.classes = append(f.classes, t)

		case OpStoreClassAttr:
			if len(f.classes) == 0 {
				panic(&InvariantViolation{Reason: "STORE_CLASS_ATTR outside a class body in " + f.code.Name})
			}
			f.classes[len(f.classes)-1].Attrs.Set(f.state.names[a], f.top())
			f.pop()

		case OpEndClass:
			n := len(f.classes)
			if n == 0 {
				panic(&InvariantViolation{Reason: "END_CLASS outside a class body in " + f.code.Name})
			}
			t := f.classes[n-1]
			f.classes[n-1] = nil
			f.classes = f.classes[:n-1]
			vm.endClass(t)
			f.push(t.object)

		case OpImportName:
			n := f.state.names[a]
			m, ok := vm.modules[vm.names.String(n)]
			if !ok {
				vm.Raisef(vm.exc.importErr, "no module named '%s'", vm.names.String(n))
			}
			f.push(m)

		// --- Calls and returns ---
		case OpCall:
			argc, kwc := int(a&0xFFFF), int(a>>16)
			total := 1 + argc + 2*kwc
			window := f.topN(total)
			args := append([]Value(nil), window[1:1+argc]...)
			named := vm.keywordPairs(window[1+argc:])
			r := vm.invoke(window[0], args, named, true)
			f.popN(total)
			if r == callPending {
				f = vm.frames[len(vm.frames)-1]
				continue
			}
			f.push(r)

		case OpReturnValue:
			v := f.pop()
			if r, done := vm.finishFrame(base, v); done {
				return r
			}
			f = vm.frames[len(vm.frames)-1]

		case OpYieldValue:
			v := f.pop()
			if f.gen == nil || len(vm.frames)-1 != base {
				panic(&InvariantViolation{Reason: "YIELD_VALUE outside a resumed generator in " + f.code.Name})
			}
			f.gen.state = GenSuspended
			vm.popFrame()
			return v

		default:
			panic(&InvariantViolation{Reason: "unknown opcode " + in.Op.String()})
		}
	}
}

// keywordPairs converts (name, value) pairs pushed by CALL.
func (vm *VM) keywordPairs(pairs []Value) []KwArg {
	if len(pairs) == 0 {
		return nil
	}
	named := make([]KwArg, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		s, ok := vm.stringOf(pairs[i])
		if !ok {
			vm.Raisef(vm.exc.typeErr, "keyword names must be strings, not '%s'", vm.TypeName(pairs[i]))
		}
		named = append(named, KwArg{Name: vm.names.Intern(s), Value: pairs[i+1]})
	}
	return named
}

// ---------------------------------------------------------------------------
// Name resolution: locals -> closure -> globals -> builtins
// ---------------------------------------------------------------------------

func (vm *VM) loadName(f *Frame, n Name) Value {
	if v, ok := f.locals.Get(n); ok {
		return v
	}
	if v, ok := f.closure.lookup(n); ok {
		return v
	}
	return vm.loadGlobal(f, n)
}

func (vm *VM) loadGlobal(f *Frame, n Name) Value {
	if v, ok := f.globals.Get(n); ok {
		return v
	}
	if v, ok := vm.builtinTable().Get(n); ok {
		return v
	}
	vm.Raisef(vm.exc.name, "name '%s' is not defined", vm.names.String(n))
	return Null
}

// ---------------------------------------------------------------------------
// Function and class construction
// ---------------------------------------------------------------------------

func (vm *VM) makeFunction(f *Frame, d *FuncDecl) Value {
	fn := &Function{
		Decl:   d,
		Module: f.module,
	}
	if len(d.Defaults) > 0 {
		fn.Defaults = make([]Value, len(d.Defaults))
		for i, kw := range d.Defaults {
			fn.Defaults[i] = vm.constValue(kw.Default)
		}
	}
	if !f.moduleLevel {
		fn.Closure = &Closure{Locals: f.locals, Outer: f.closure}
	}
	return vm.heap.alloc(&Object{Type: vm.tid.function, Attrs: NewTable(0), Payload: fn})
}

// beginClass registers a new user type deriving from base (None for
// object).
func (vm *VM) beginClass(name string, base Value) *TypeInfo {
	baseID := vm.tid.object
	if base != None {
		bt, ok := vm.typeInfoOf(base)
		if !ok {
			vm.Raisef(vm.exc.typeErr, "class base must be a type, not '%s'", vm.TypeName(base))
		}
		if bt.final {
			vm.Raisef(vm.exc.typeErr, "type '%s' is not an acceptable base type", bt.Name)
		}
		baseID = bt.ID
	}
	return vm.newType(name, baseID)
}

// endClass finishes a class body: the type dictionary becomes read-mostly.
func (vm *VM) endClass(t *TypeInfo) {
	collisions := t.Attrs.OptimizeHash()
	vm.log.Debugf("class %s: %d attributes, %d probe collisions", t.Name, t.Attrs.Len(), collisions)
}
