package vm

// ---------------------------------------------------------------------------
// Frame: one activation of a Code
// ---------------------------------------------------------------------------

// activeBlock is the runtime record pushed by ENTER_BLOCK.
type activeBlock struct {
	index    int32     // CodeBlock index
	kind     BlockKind //
	depth    int       // operand stack depth at entry
	handling int       // len(frame.handling) at entry
}

// Frame holds the state of one call. Frames of generator bodies are owned
// by their Generator and outlive the call stack between resumptions.
type Frame struct {
	code  *Code
	state *codeState
	ip    int
	stack []Value

	locals  *Table
	closure *Closure
	module  Value
	globals *Table

	blocks   []activeBlock
	handling []Value // exceptions whose handler is running, innermost last

	fn        Value       // running function, Null for module code
	construct Value       // instance returned instead of the result (__init__ frames)
	classes   []*TypeInfo // classes under construction
	gen       *Generator

	moduleLevel bool // locals and globals are the same table
}

func (vm *VM) newModuleFrame(code *Code, cs *codeState, module Value) *Frame {
	obj, _ := vm.heap.get(module)
	return &Frame{
		code:        code,
		state:       cs,
		locals:      obj.Attrs,
		module:      module,
		globals:     obj.Attrs,
		fn:          Null,
		construct:   Null,
		moduleLevel: true,
	}
}

// ---------------------------------------------------------------------------
// Operand stack
// ---------------------------------------------------------------------------

func (f *Frame) push(v Value) {
	f.stack = append(f.stack, v)
}

func (f *Frame) pop() Value {
	n := len(f.stack) - 1
	if n < 0 {
		panic(&InvariantViolation{Reason: "operand stack underflow in " + f.code.Name})
	}
	v := f.stack[n]
	f.stack = f.stack[:n]
	return v
}

func (f *Frame) top() Value {
	if len(f.stack) == 0 {
		panic(&InvariantViolation{Reason: "operand stack underflow in " + f.code.Name})
	}
	return f.stack[len(f.stack)-1]
}

// peek returns the value n slots below the top (0 is the top).
func (f *Frame) peek(n int) Value {
	i := len(f.stack) - 1 - n
	if i < 0 {
		panic(&InvariantViolation{Reason: "operand stack underflow in " + f.code.Name})
	}
	return f.stack[i]
}

// topN returns the n topmost values, oldest first, without popping them.
// The slice aliases the stack.
func (f *Frame) topN(n int) []Value {
	if n > len(f.stack) {
		panic(&InvariantViolation{Reason: "operand stack underflow in " + f.code.Name})
	}
	return f.stack[len(f.stack)-n:]
}

func (f *Frame) popN(n int) {
	if n > len(f.stack) {
		panic(&InvariantViolation{Reason: "operand stack underflow in " + f.code.Name})
	}
	f.stack = f.stack[:len(f.stack)-n]
}

// truncate drops every value above depth.
func (f *Frame) truncate(depth int) {
	if depth > len(f.stack) {
		panic(&InvariantViolation{Reason: "block depth above operand stack in " + f.code.Name})
	}
	for i := depth; i < len(f.stack); i++ {
		f.stack[i] = Null
	}
	f.stack = f.stack[:depth]
}

// Depth returns the operand stack depth.
func (f *Frame) Depth() int { return len(f.stack) }

func (f *Frame) jump(target int32) {
	f.ip = int(target)
}

// ---------------------------------------------------------------------------
// Block stack
// ---------------------------------------------------------------------------

func (f *Frame) enterBlock(index int32) {
	f.blocks = append(f.blocks, activeBlock{
		index:    index,
		kind:     f.code.Blocks[index].Kind,
		depth:    len(f.stack),
		handling: len(f.handling),
	})
}

func (f *Frame) exitBlock() activeBlock {
	n := len(f.blocks) - 1
	if n < 0 {
		panic(&InvariantViolation{Reason: "EXIT_BLOCK without an active block in " + f.code.Name})
	}
	b := f.blocks[n]
	f.blocks = f.blocks[:n]
	return b
}

// findBlock returns the position of the innermost active record of block
// index, or -1.
func (f *Frame) findBlock(index int32) int {
	for i := len(f.blocks) - 1; i >= 0; i-- {
		if f.blocks[i].index == index {
			return i
		}
	}
	return -1
}

// findHandler returns the position of the innermost active try block, or
// -1.
func (f *Frame) findHandler() int {
	for i := len(f.blocks) - 1; i >= 0; i-- {
		if f.blocks[i].kind == BlockTry {
			return i
		}
	}
	return -1
}

func (f *Frame) restoreHandling(n int) {
	for i := n; i < len(f.handling); i++ {
		f.handling[i] = Null
	}
	f.handling = f.handling[:n]
}

// line returns the source line of the instruction at ip.
func (f *Frame) line(ip int) int {
	if ip >= 0 && ip < len(f.code.Instrs) {
		return int(f.code.Instrs[ip].Line)
	}
	return 0
}

func (f *Frame) traceEntry() TraceEntry {
	ip := f.ip - 1
	if ip < 0 {
		ip = 0
	}
	return TraceEntry{Code: f.code, IP: ip, Line: f.line(ip)}
}

func (f *Frame) trace(mark func(Value)) {
	for _, v := range f.stack {
		mark(v)
	}
	f.locals.trace(mark)
	f.closure.trace(mark)
	mark(f.module)
	for _, v := range f.handling {
		mark(v)
	}
	mark(f.fn)
	mark(f.construct)
	for _, t := range f.classes {
		mark(t.object)
		t.Attrs.trace(mark)
	}
	if f.gen != nil {
		mark(f.gen.self)
	}
}

// ---------------------------------------------------------------------------
// Call stack
// ---------------------------------------------------------------------------

// pushFrame makes f the active frame, failing with RecursionError once the
// configured depth is reached.
func (vm *VM) pushFrame(f *Frame) {
	if len(vm.frames) >= vm.cfg.RecursionLimit {
		vm.Raisef(vm.exc.recursion, "maximum recursion depth exceeded (%d)", vm.cfg.RecursionLimit)
	}
	vm.frames = append(vm.frames, f)
}

func (vm *VM) popFrame() *Frame {
	n := len(vm.frames) - 1
	if n < 0 {
		panic(&InvariantViolation{Reason: "frame stack underflow"})
	}
	f := vm.frames[n]
	vm.frames[n] = nil
	vm.frames = vm.frames[:n]
	return f
}

func (vm *VM) currentFrame() *Frame {
	if len(vm.frames) == 0 {
		return nil
	}
	return vm.frames[len(vm.frames)-1]
}

// Depth returns the number of active frames.
func (vm *VM) Depth() int { return len(vm.frames) }
