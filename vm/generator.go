package vm

// GenState is the state of a Generator.
type GenState uint8

const (
	GenNotStarted GenState = iota
	GenSuspended
	GenRunning
	GenDone
)

func (s GenState) String() string {
	switch s {
	case GenNotStarted:
		return "not started"
	case GenSuspended:
		return "suspended"
	case GenRunning:
		return "running"
	default:
		return "done"
	}
}

// Generator is the payload of generator objects. It owns the frame of the
// generator body between resumptions.
type Generator struct {
	self  Value // the generator object; marked from the frame while it runs
	frame *Frame
	state GenState
	name  string
}

// State returns the generator's state.
func (g *Generator) State() GenState { return g.state }

func (g *Generator) finish() {
	g.state = GenDone
	g.frame = nil
}

func (g *Generator) trace(mark func(Value)) {
	if g.frame != nil {
		g.frame.trace(mark)
	}
}

func (vm *VM) newGenerator(f *Frame) Value {
	g := &Generator{frame: f, name: f.code.Name}
	v := vm.heap.alloc(&Object{Type: vm.tid.generator, Payload: g})
	g.self = v
	f.gen = g
	return v
}

func (vm *VM) generatorPayload(v Value) *Generator {
	if obj, ok := vm.heap.get(v); ok {
		if g, ok := obj.Payload.(*Generator); ok {
			return g
		}
	}
	vm.Raisef(vm.exc.typeErr, "'%s' object is not a generator", vm.TypeName(v))
	return nil
}

// resume runs g until it yields or returns. done reports a return; the
// result is then the generator's return value.
func (vm *VM) resume(g *Generator) (result Value, done bool) {
	switch g.state {
	case GenDone:
		return None, true
	case GenRunning:
		vm.Raisef(vm.exc.runtime, "generator %s already executing", g.name)
	}

	f := g.frame
	vm.pushFrame(f)
	if g.state == GenSuspended {
		// Value of the suspended YIELD_VALUE expression.
		f.push(None)
	}
	g.state = GenRunning
	base := len(vm.frames) - 1

	finished := false
	defer func() {
		if !finished {
			// An exception escaped the body; unwind already popped the
			// frame.
			g.finish()
		}
	}()
	result = vm.run(base)
	finished = true
	return result, g.state == GenDone
}

// next advances an iterator-like generator, reporting exhaustion.
func (vm *VM) nextGenerator(g *Generator) (Value, bool) {
	v, done := vm.resume(g)
	if done {
		return Null, false
	}
	return v, true
}
