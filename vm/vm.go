package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// VM: the kestrel virtual machine
// ---------------------------------------------------------------------------

// Config holds the tunables of a VM.
type Config struct {
	// RecursionLimit is the maximum number of active frames.
	RecursionLimit int
	// GCThreshold is the live object count that triggers the first
	// automatic collection, and the floor for later thresholds.
	GCThreshold int
	// GCGrowthFactor scales the live count after a collection into the
	// next threshold.
	GCGrowthFactor float64
	// MaxOperandStack bounds the operand stack of a single frame; 0 means
	// unbounded.
	MaxOperandStack int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		RecursionLimit:  1000,
		GCThreshold:     4096,
		GCGrowthFactor:  2.0,
		MaxOperandStack: 0,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.RecursionLimit <= 0 {
		c.RecursionLimit = d.RecursionLimit
	}
	if c.GCThreshold <= 0 {
		c.GCThreshold = d.GCThreshold
	}
	if c.GCGrowthFactor < 1 {
		c.GCGrowthFactor = d.GCGrowthFactor
	}
	if c.MaxOperandStack < 0 {
		c.MaxOperandStack = 0
	}
	return c
}

// Compiler turns source text into Code. The front end lives outside the
// VM; hosts inject one with WithCompiler.
type Compiler interface {
	Compile(source, filename string) (*Code, error)
}

// Option configures a VM.
type Option func(*VM)

// WithConfig replaces the configuration. Zero fields take their defaults.
func WithConfig(cfg Config) Option {
	return func(vm *VM) { vm.cfg = cfg.normalized() }
}

// WithStdout redirects the output of print.
func WithStdout(w io.Writer) Option {
	return func(vm *VM) { vm.stdout = w }
}

// WithCompiler installs the front end used by CompileAndRun.
func WithCompiler(c Compiler) Option {
	return func(vm *VM) { vm.compiler = c }
}

// WithLogger replaces the VM's logger.
func WithLogger(log commonlog.Logger) Option {
	return func(vm *VM) { vm.log = log }
}

// builtinTypes holds the IDs of the builtin types.
type builtinTypes struct {
	object    TypeID
	typ       TypeID
	none      TypeID
	boolean   TypeID
	integer   TypeID
	float     TypeID
	str       TypeID
	list      TypeID
	tuple     TypeID
	dict      TypeID
	function  TypeID
	native    TypeID
	bound     TypeID
	module    TypeID
	generator TypeID
	iterator  TypeID
	rng       TypeID
	property  TypeID
	notImpl   TypeID
}

// VM is one isolated interpreter instance. A VM is not safe for concurrent
// use; every method must be called from the goroutine running it.
type VM struct {
	id     uuid.UUID
	cfg    Config
	log    commonlog.Logger
	stdout io.Writer

	compiler Compiler

	names *Interner
	wk    wellKnown
	ops   operatorNames

	heap  *Heap
	types *TypeRegistry
	tid   builtinTypes
	exc   exceptionTypes

	builtins Value
	modules  map[string]Value

	frames []*Frame

	codes map[*Code]*codeState
	decls map[*FuncDecl]*declNames

	// extraRoots holds values a host call keeps alive for its duration.
	extraRoots []Value
	lastError  Value

	reprActive map[Value]bool
}

// New creates and bootstraps a VM.
func New(opts ...Option) *VM {
	vm := &VM{
		id:        uuid.New(),
		cfg:       DefaultConfig(),
		log:       commonlog.GetLogger("kestrel.vm"),
		stdout:    os.Stdout,
		names:     NewInterner(),
		types:     NewTypeRegistry(),
		modules:   make(map[string]Value),
		codes:     make(map[*Code]*codeState),
		decls:     make(map[*FuncDecl]*declNames),
		builtins:  Null,
		lastError: Null,
	}
	for _, opt := range opts {
		opt(vm)
	}
	vm.heap = newHeap(vm.cfg)
	vm.wk = vm.names.wellKnown()
	vm.ops = vm.names.operatorNames()
	vm.bootstrap()
	vm.log.Debug("vm created",
		"vm", vm.id.String(),
		"types", vm.types.Len(),
		"recursion_limit", vm.cfg.RecursionLimit,
		"gc_threshold", vm.cfg.GCThreshold)
	return vm
}

// ID returns the instance identifier used in logs and errors.
func (vm *VM) ID() uuid.UUID { return vm.id }

// Config returns the active configuration.
func (vm *VM) Config() Config { return vm.cfg }

// Heap returns the VM's heap, for scope locks.
func (vm *VM) Heap() *Heap { return vm.heap }

// Intern returns the Name for s.
func (vm *VM) Intern(s string) Name { return vm.names.Intern(s) }

// NameString returns the text of n.
func (vm *VM) NameString(n Name) string { return vm.names.String(n) }

// Stats returns heap statistics.
func (vm *VM) Stats() HeapStats { return vm.heap.Stats() }

// rooted runs fn with vals kept alive.
func (vm *VM) rooted(vals []Value, fn func()) {
	n := len(vm.extraRoots)
	vm.extraRoots = append(vm.extraRoots, vals...)
	defer func() {
		for i := n; i < len(vm.extraRoots); i++ {
			vm.extraRoots[i] = Null
		}
		vm.extraRoots = vm.extraRoots[:n]
	}()
	fn()
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// Run executes module-level code with module's attribute table as its
// globals. A None module runs in a fresh module named after the code.
func (vm *VM) Run(code *Code, module Value) (result Value, err error) {
	cs, err := vm.loadCode(code)
	if err != nil {
		return Null, err
	}
	if module == None || module == Null {
		module = vm.NewModule(code.Name)
	}
	if !vm.isModule(module) {
		return Null, fmt.Errorf("run %s: %s is not a module", code.Name, vm.TypeName(module))
	}
	result = None
	err = vm.protect(func() {
		vm.pushFrame(vm.newModuleFrame(code, cs, module))
		vm.rooted([]Value{module}, func() {
			result = vm.run(len(vm.frames) - 1)
		})
	})
	return result, err
}

// CompileAndRun compiles source with the installed Compiler and runs it
// in a new module.
func (vm *VM) CompileAndRun(source, filename string) (Value, error) {
	if vm.compiler == nil {
		return Null, fmt.Errorf("compile %s: no compiler installed", filename)
	}
	code, err := vm.compiler.Compile(source, filename)
	if err != nil {
		return Null, fmt.Errorf("compile %s: %w", filename, err)
	}
	return vm.Run(code, vm.NewModule(moduleName(filename)))
}

func moduleName(filename string) string {
	if filename == "" {
		return "__main__"
	}
	return filename
}

// Call invokes callable with positional and named arguments.
func (vm *VM) Call(callable Value, args []Value, named []KwArg) (result Value, err error) {
	roots := make([]Value, 0, len(args)+len(named)+1)
	roots = append(roots, callable)
	roots = append(roots, args...)
	for _, kw := range named {
		roots = append(roots, kw.Value)
	}
	result = None
	err = vm.protect(func() {
		vm.rooted(roots, func() {
			result = vm.call(callable, args, named)
		})
	})
	return result, err
}

// Resume advances a generator. done is true once the generator has
// returned; value is then its return value.
func (vm *VM) Resume(gen Value) (value Value, done bool, err error) {
	value = None
	err = vm.protect(func() {
		vm.rooted([]Value{gen}, func() {
			value, done = vm.resume(vm.generatorPayload(gen))
		})
	})
	return value, done, err
}

// ---------------------------------------------------------------------------
// Attributes
// ---------------------------------------------------------------------------

// GetAttr returns obj.name.
func (vm *VM) GetAttr(obj Value, name Name) (result Value, err error) {
	err = vm.protect(func() { result = vm.getAttr(obj, name) })
	return result, err
}

// SetAttr performs obj.name = v.
func (vm *VM) SetAttr(obj Value, name Name, v Value) error {
	return vm.protect(func() { vm.setAttr(obj, name, v) })
}

// DelAttr performs del obj.name.
func (vm *VM) DelAttr(obj Value, name Name) error {
	return vm.protect(func() { vm.delAttr(obj, name) })
}

// ---------------------------------------------------------------------------
// Host registration
// ---------------------------------------------------------------------------

// RegisterType registers a new type and publishes it as a builtin. base
// may be NoType to derive from object.
func (vm *VM) RegisterType(name string, base TypeID, fin Finalizer) TypeID {
	if base == NoType {
		base = vm.tid.object
	}
	t := vm.newType(name, base)
	t.Finalizer = fin
	vm.setBuiltin(name, t.object)
	return t.ID
}

// Type returns the registered type with the given id.
func (vm *VM) Type(id TypeID) *TypeInfo { return vm.types.Get(id) }

// TypeObject returns the guest value standing for type id.
func (vm *VM) TypeObject(id TypeID) Value { return vm.types.Get(id).object }

// DefineMethod adds a native method to a type.
func (vm *VM) DefineMethod(t TypeID, name string, arity int, fn NativeFunc) {
	vm.defineMethod(vm.types.Get(t), name, arity, fn)
}

// NewNativeFunction wraps fn as a callable value. arity counts positional
// arguments; -1 accepts any number.
func (vm *VM) NewNativeFunction(name string, arity int, fn NativeFunc) Value {
	return vm.heap.alloc(&Object{
		Type:    vm.tid.native,
		Payload: &NativeFunction{Name: name, Arity: arity, Fn: fn},
	})
}

// NewKeywordFunction is NewNativeFunction for bodies that accept named
// arguments.
func (vm *VM) NewKeywordFunction(name string, arity int, fn NativeFunc) Value {
	v := vm.NewNativeFunction(name, arity, fn)
	obj, _ := vm.heap.get(v)
	obj.Payload.(*NativeFunction).Keywords = true
	return v
}

// RegisterNativeFunction creates a native function and publishes it as a
// builtin.
func (vm *VM) RegisterNativeFunction(name string, arity int, fn NativeFunc) Value {
	v := vm.NewNativeFunction(name, arity, fn)
	vm.setBuiltin(name, v)
	return v
}

// NewNative allocates an instance of a host type carrying payload.
func (vm *VM) NewNative(t TypeID, payload any) Value {
	ti := vm.types.Get(t)
	obj := &Object{Type: t, Payload: payload}
	if ti.dynamicAttrs {
		obj.Attrs = NewTable(0)
	}
	return vm.heap.alloc(obj)
}

// Payload returns the payload of a heap value.
func (vm *VM) Payload(v Value) (any, bool) {
	obj, ok := vm.heap.get(v)
	if !ok {
		return nil, false
	}
	return obj.Payload, true
}

// ---------------------------------------------------------------------------
// Keep-alive table and collection
// ---------------------------------------------------------------------------

// Pin keeps v alive until the returned handle is unpinned.
func (vm *VM) Pin(v Value) Handle { return vm.heap.pin(v) }

// Unpin releases a handle returned by Pin.
func (vm *VM) Unpin(h Handle) { vm.heap.unpin(h) }

// PinCount returns the number of outstanding pins of v.
func (vm *VM) PinCount(v Value) int { return vm.heap.pinCount(v) }

// RunCollection runs a full collection and returns the number of objects
// freed. It panics with *InvariantViolation if a scope lock is held.
func (vm *VM) RunCollection() int {
	return vm.collect("explicit")
}

// ---------------------------------------------------------------------------
// Modules
// ---------------------------------------------------------------------------

// NewModule creates an unregistered module.
func (vm *VM) NewModule(name string) Value {
	m := vm.heap.alloc(&Object{
		Type:    vm.tid.module,
		Attrs:   NewTable(0),
		Payload: &Module{Name: name},
	})
	obj, _ := vm.heap.get(m)
	obj.Attrs.Set(vm.wk.name, vm.NewString(name))
	return m
}

// RegisterModule makes module importable under name.
func (vm *VM) RegisterModule(name string, module Value) {
	vm.modules[name] = module
}

// Module returns the module registered under name.
func (vm *VM) Module(name string) (Value, bool) {
	m, ok := vm.modules[name]
	return m, ok
}

// FreezeModule optimizes the hash of a module whose globals are expected
// to stay fixed.
func (vm *VM) FreezeModule(module Value) int {
	obj, ok := vm.heap.get(module)
	if !ok || obj.Attrs == nil {
		return 0
	}
	return obj.Attrs.OptimizeHash()
}

// Globals returns the attribute table of a module.
func (vm *VM) Globals(module Value) *Table {
	if !vm.isModule(module) {
		return nil
	}
	obj, _ := vm.heap.get(module)
	return obj.Attrs
}

func (vm *VM) isModule(v Value) bool {
	obj, ok := vm.heap.get(v)
	if !ok {
		return false
	}
	_, ok = obj.Payload.(*Module)
	return ok
}

// Builtin returns a builtin by name.
func (vm *VM) Builtin(name string) (Value, bool) {
	obj, _ := vm.heap.get(vm.builtins)
	return obj.Attrs.Get(vm.names.Intern(name))
}

func (vm *VM) setBuiltin(name string, v Value) {
	obj, _ := vm.heap.get(vm.builtins)
	obj.Attrs.Set(vm.names.Intern(name), v)
}

func (vm *VM) builtinTable() *Table {
	obj, _ := vm.heap.get(vm.builtins)
	return obj.Attrs
}
