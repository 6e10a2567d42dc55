package vm

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func newTestVM(t *testing.T, opts ...Option) *VM {
	t.Helper()
	return New(opts...)
}

// runCode runs c in a fresh module and fails the test on error.
func runCode(t *testing.T, vm *VM, c *Code) Value {
	t.Helper()
	v, err := vm.Run(c, None)
	if err != nil {
		t.Fatalf("Run(%s): %v", c.Name, err)
	}
	return v
}

// runError runs c and returns the unhandled exception it must raise.
func runError(t *testing.T, vm *VM, c *Code) *Error {
	t.Helper()
	_, err := vm.Run(c, None)
	if err == nil {
		t.Fatalf("Run(%s): expected an error", c.Name)
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("Run(%s): error %v is not a *Error", c.Name, err)
	}
	return e
}

// defineFunc runs module code binding d to name and returns the function.
func defineFunc(t *testing.T, vm *VM, name string, d *FuncDecl) Value {
	t.Helper()
	b := NewBuilder("<module>", "test.ks")
	b.MakeFunction(d)
	b.StoreName(name)
	b.Emit(OpLoadNone)
	b.Return()
	mod := vm.NewModule("test")
	if _, err := vm.Run(b.MustCode(), mod); err != nil {
		t.Fatalf("defining %s: %v", name, err)
	}
	fn, ok := vm.Globals(mod).Get(vm.Intern(name))
	if !ok {
		t.Fatalf("%s not bound after definition", name)
	}
	return fn
}

func mustStr(t *testing.T, vm *VM, v Value) string {
	t.Helper()
	s, ok := vm.StringValue(v)
	if !ok {
		t.Fatalf("value %v is a %s, want str", v, vm.TypeName(v))
	}
	return s
}

func mustRepr(t *testing.T, vm *VM, v Value) string {
	t.Helper()
	s, err := vm.Repr(v)
	if err != nil {
		t.Fatalf("Repr: %v", err)
	}
	return s
}

func dictItem(t *testing.T, vm *VM, d Value, key string) Value {
	t.Helper()
	v, ok, err := vm.DictGet(d, vm.NewString(key))
	if err != nil {
		t.Fatalf("DictGet(%q): %v", key, err)
	}
	if !ok {
		t.Fatalf("key %q missing", key)
	}
	return v
}

// ---------------------------------------------------------------------------
// VM construction and host API
// ---------------------------------------------------------------------------

func TestNewBootstrapsBuiltins(t *testing.T) {
	vm := newTestVM(t)
	for _, name := range []string{
		"object", "type", "int", "float", "str", "bool", "list", "tuple", "dict",
		"range", "property", "print", "len", "isinstance", "repr", "getattr",
		"setattr", "hasattr", "delattr", "iter", "next", "abs",
		"BaseException", "Exception", "TypeError", "ArgumentError", "ZeroDivisionError",
	} {
		if _, ok := vm.Builtin(name); !ok {
			t.Errorf("builtin %q missing", name)
		}
	}
}

func TestDistinctVMIDs(t *testing.T) {
	a, b := newTestVM(t), newTestVM(t)
	if a.ID() == b.ID() {
		t.Errorf("two VMs share ID %s", a.ID())
	}
}

func TestConfigDefaults(t *testing.T) {
	vm := newTestVM(t, WithConfig(Config{RecursionLimit: 10}))
	cfg := vm.Config()
	if cfg.RecursionLimit != 10 {
		t.Errorf("RecursionLimit = %d, want 10", cfg.RecursionLimit)
	}
	if cfg.GCThreshold != DefaultConfig().GCThreshold {
		t.Errorf("GCThreshold = %d, want default %d", cfg.GCThreshold, DefaultConfig().GCThreshold)
	}
	if cfg.GCGrowthFactor != 2.0 {
		t.Errorf("GCGrowthFactor = %v, want 2", cfg.GCGrowthFactor)
	}
}

func TestPrintWritesToStdout(t *testing.T) {
	var out bytes.Buffer
	vm := newTestVM(t, WithStdout(&out))

	b := NewBuilder("main", "print.ks")
	b.LoadName("print")
	b.LoadStr("a")
	b.LoadInt(1)
	b.LoadConst(FloatConst(2.5))
	b.LoadStr("sep")
	b.LoadStr("-")
	b.Call(3, 1)
	b.Return()
	runCode(t, vm, b.MustCode())

	if got, want := out.String(), "a-1-2.5\n"; got != want {
		t.Errorf("print output = %q, want %q", got, want)
	}
}

func TestRegisterNativeFunction(t *testing.T) {
	vm := newTestVM(t)
	vm.RegisterNativeFunction("double", 1, func(vm *VM, args []Value, _ []KwArg) Value {
		return vm.binaryOp(BinMul, args[0], FromInt(2))
	})

	b := NewBuilder("main", "native.ks")
	b.LoadName("double")
	b.LoadInt(21)
	b.Call(1, 0)
	b.Return()
	if got := runCode(t, vm, b.MustCode()); got != FromInt(42) {
		t.Errorf("double(21) = %v, want 42", got)
	}
}

func TestNativeArityChecked(t *testing.T) {
	vm := newTestVM(t)
	fn := vm.NewNativeFunction("one", 1, func(vm *VM, args []Value, _ []KwArg) Value { return args[0] })

	_, err := vm.Call(fn, []Value{FromInt(1), FromInt(2)}, nil)
	if !IsKind(err, KindArgument) {
		t.Fatalf("got %v, want ArgumentError", err)
	}
	_, err = vm.Call(fn, []Value{FromInt(1)}, []KwArg{{Name: vm.Intern("x"), Value: None}})
	if !IsKind(err, KindArgument) {
		t.Fatalf("got %v, want ArgumentError for keyword", err)
	}
}

func TestNativeCheckReraisesSameException(t *testing.T) {
	vm := newTestVM(t)
	fails := vm.NewNativeFunction("fails", 0, func(vm *VM, _ []Value, _ []KwArg) Value {
		vm.Raisef(vm.exc.key, "missing")
		return None
	})
	var inner Value
	wrapper := vm.NewNativeFunction("wrapper", 0, func(vm *VM, _ []Value, _ []KwArg) Value {
		_, err := vm.Call(fails, nil, nil)
		var e *Error
		if errors.As(err, &e) {
			inner = e.Value
		}
		vm.Check(err)
		return None
	})

	_, err := vm.Call(wrapper, nil, nil)
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("got %v, want *Error", err)
	}
	if e.Kind != KindKey {
		t.Errorf("kind = %v, want KeyError", e.Kind)
	}
	if e.Value != inner {
		t.Errorf("re-raised exception %v, want the original %v", e.Value, inner)
	}
}

func TestCheckWrapsPlainErrors(t *testing.T) {
	vm := newTestVM(t)
	fn := vm.NewNativeFunction("io", 0, func(vm *VM, _ []Value, _ []KwArg) Value {
		vm.Check(errors.New("disk on fire"))
		return None
	})
	_, err := vm.Call(fn, nil, nil)
	if !IsKind(err, KindRuntime) || !strings.Contains(err.Error(), "disk on fire") {
		t.Errorf("got %v, want RuntimeError: disk on fire", err)
	}
}

func TestImportRegisteredModule(t *testing.T) {
	vm := newTestVM(t)
	mod := vm.NewModule("config")
	vm.Globals(mod).Set(vm.Intern("answer"), FromInt(42))
	vm.RegisterModule("config", mod)

	b := NewBuilder("main", "import.ks")
	b.NameOp(OpImportName, "config")
	b.LoadAttr("answer")
	b.Return()
	if got := runCode(t, vm, b.MustCode()); got != FromInt(42) {
		t.Errorf("config.answer = %v, want 42", got)
	}

	b = NewBuilder("main", "import.ks")
	b.NameOp(OpImportName, "nope")
	b.Return()
	if e := runError(t, vm, b.MustCode()); e.Kind != KindImport {
		t.Errorf("kind = %v, want ImportError", e.Kind)
	}
}

func TestCompileAndRunWithoutCompiler(t *testing.T) {
	vm := newTestVM(t)
	if _, err := vm.CompileAndRun("x = 1", "x.ks"); err == nil {
		t.Error("expected an error without a compiler")
	}
}

type constCompiler struct{}

func (constCompiler) Compile(source, filename string) (*Code, error) {
	b := NewBuilder("<module>", filename)
	b.LoadStr(source)
	b.Return()
	return b.Code()
}

func TestCompileAndRunUsesCompiler(t *testing.T) {
	vm := newTestVM(t, WithCompiler(constCompiler{}))
	v, err := vm.CompileAndRun("hello", "h.ks")
	if err != nil {
		t.Fatalf("CompileAndRun: %v", err)
	}
	if got := mustStr(t, vm, v); got != "hello" {
		t.Errorf("result = %q, want %q", got, "hello")
	}
}

func TestInvalidCodeRejected(t *testing.T) {
	vm := newTestVM(t)
	c := &Code{Name: "bad", Instrs: []Instr{{Op: OpJumpAbsolute, Arg: 99, Block: -1}}}
	_, err := vm.Run(c, None)
	if !errors.Is(err, ErrInvalidCode) {
		t.Errorf("got %v, want ErrInvalidCode", err)
	}
}

func TestFreezeModule(t *testing.T) {
	vm := newTestVM(t)
	mod := vm.NewModule("m")
	g := vm.Globals(mod)
	for i, name := range []string{"a", "b", "c", "d", "e"} {
		g.Set(vm.Intern(name), FromInt(int64(i)))
	}
	vm.FreezeModule(mod)
	for i, name := range []string{"a", "b", "c", "d", "e"} {
		if v, ok := g.Get(vm.Intern(name)); !ok || v != FromInt(int64(i)) {
			t.Errorf("%s = %v (%v), want %d", name, v, ok, i)
		}
	}
}
