package vm

import (
	"testing"
)

// callBuiltin calls a builtin by name and fails the test on error.
func callBuiltin(t *testing.T, vm *VM, name string, args ...Value) Value {
	t.Helper()
	v, err := vm.Call(mustBuiltin(t, vm, name), args, nil)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return v
}

// callMethod calls recv.name(args...) and fails the test on error.
func callMethod(t *testing.T, vm *VM, recv Value, name string, args ...Value) Value {
	t.Helper()
	m, err := vm.GetAttr(recv, vm.Intern(name))
	if err != nil {
		t.Fatalf("getattr %s: %v", name, err)
	}
	v, err := vm.Call(m, args, nil)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return v
}

// ---------------------------------------------------------------------------
// Builtin functions
// ---------------------------------------------------------------------------

func TestLen(t *testing.T) {
	vm := newTestVM(t)
	tests := []struct {
		v    Value
		want int64
	}{
		{vm.NewString("héllo"), 5},
		{vm.NewList(None, None), 2},
		{vm.NewTuple(), 0},
		{callBuiltin(t, vm, "range", FromInt(0), FromInt(10), FromInt(3)), 4},
	}
	for i, tt := range tests {
		if got := callBuiltin(t, vm, "len", tt.v); got != FromInt(tt.want) {
			t.Errorf("#%d: len = %v, want %d", i, got, tt.want)
		}
	}
	_, err := vm.Call(mustBuiltin(t, vm, "len"), []Value{FromInt(1)}, nil)
	if !IsKind(err, KindType) {
		t.Errorf("len(1): got %v, want TypeError", err)
	}
}

func TestIsInstance(t *testing.T) {
	vm := newTestVM(t)
	intType := vm.TypeObject(vm.tid.integer)
	strType := vm.TypeObject(vm.tid.str)
	tests := []struct {
		v, typ Value
		want   Value
	}{
		{FromInt(1), intType, True},
		{True, intType, True},
		{vm.NewString("s"), intType, False},
		{vm.NewString("s"), vm.NewTuple(intType, strType), True},
		{vm.NewException(vm.exc.zeroDivision, ""), vm.TypeObject(vm.exc.arithmetic), True},
		{None, vm.TypeObject(vm.tid.object), True},
	}
	for i, tt := range tests {
		if got := callBuiltin(t, vm, "isinstance", tt.v, tt.typ); got != tt.want {
			t.Errorf("#%d: isinstance = %v, want %v", i, got, tt.want)
		}
	}
}

func TestTypeBuiltin(t *testing.T) {
	vm := newTestVM(t)
	if got := callBuiltin(t, vm, "type", FromFloat(1)); got != vm.TypeObject(vm.tid.float) {
		t.Errorf("type(1.0) = %s", mustRepr(t, vm, got))
	}
	if got := callBuiltin(t, vm, "type", True); got != vm.TypeObject(vm.tid.boolean) {
		t.Errorf("type(True) = %s", mustRepr(t, vm, got))
	}
}

func TestAttributeBuiltins(t *testing.T) {
	vm := newTestVM(t)
	mod := vm.NewModule("m")
	name := vm.NewString("x")

	if got := callBuiltin(t, vm, "hasattr", mod, name); got != False {
		t.Errorf("hasattr before set = %v", got)
	}
	if got := callBuiltin(t, vm, "getattr", mod, name, FromInt(-1)); got != FromInt(-1) {
		t.Errorf("getattr default = %v", got)
	}
	callBuiltin(t, vm, "setattr", mod, name, FromInt(5))
	if got := callBuiltin(t, vm, "getattr", mod, name); got != FromInt(5) {
		t.Errorf("getattr = %v, want 5", got)
	}
	callBuiltin(t, vm, "delattr", mod, name)
	if got := callBuiltin(t, vm, "hasattr", mod, name); got != False {
		t.Errorf("hasattr after delete = %v", got)
	}

	_, err := vm.Call(mustBuiltin(t, vm, "getattr"), []Value{mod, name}, nil)
	if !IsKind(err, KindAttribute) {
		t.Errorf("getattr without default: got %v, want AttributeError", err)
	}
}

func TestIterNext(t *testing.T) {
	vm := newTestVM(t)
	it := callBuiltin(t, vm, "iter", vm.NewList(FromInt(1)))
	h := vm.Pin(it)
	defer vm.Unpin(h)

	if got := callBuiltin(t, vm, "next", it); got != FromInt(1) {
		t.Errorf("next = %v, want 1", got)
	}
	if got := callBuiltin(t, vm, "next", it, None); got != None {
		t.Errorf("next with default = %v, want None", got)
	}
	_, err := vm.Call(mustBuiltin(t, vm, "next"), []Value{it}, nil)
	if !IsKind(err, KindStopIteration) {
		t.Errorf("next on exhausted iterator: got %v, want StopIteration", err)
	}
}

func TestAbs(t *testing.T) {
	vm := newTestVM(t)
	if got := callBuiltin(t, vm, "abs", FromInt(-3)); got != FromInt(3) {
		t.Errorf("abs(-3) = %v", got)
	}
	if got := callBuiltin(t, vm, "abs", FromFloat(-2.5)); got != FromFloat(2.5) {
		t.Errorf("abs(-2.5) = %v", got)
	}
}

func TestConversions(t *testing.T) {
	vm := newTestVM(t)
	tests := []struct {
		fn   string
		arg  Value
		want string
	}{
		{"int", vm.NewString(" 42 "), "42"},
		{"int", vm.NewString("1_000"), "1000"},
		{"int", FromFloat(-2.5), "-2"},
		{"int", True, "1"},
		{"float", vm.NewString("2.5"), "2.5"},
		{"float", FromInt(3), "3.0"},
		{"str", FromInt(7), "'7'"},
		{"bool", vm.NewList(), "False"},
		{"tuple", vm.NewList(FromInt(1), FromInt(2)), "(1, 2)"},
		{"list", vm.NewString("ab"), "['a', 'b']"},
	}
	for _, tt := range tests {
		got := callBuiltin(t, vm, tt.fn, tt.arg)
		if s := mustRepr(t, vm, got); s != tt.want {
			t.Errorf("%s(%s) = %s, want %s", tt.fn, mustRepr(t, vm, tt.arg), s, tt.want)
		}
	}
}

func TestIntParseErrors(t *testing.T) {
	vm := newTestVM(t)
	intFn := mustBuiltin(t, vm, "int")
	_, err := vm.Call(intFn, []Value{vm.NewString("4x")}, nil)
	if !IsKind(err, KindValue) {
		t.Fatalf("int('4x'): got %v, want ValueError", err)
	}
	if e := err.(*Error); e.Message != "invalid literal for int() with base 10: '4x'" {
		t.Errorf("message = %q", e.Message)
	}
	_, err = vm.Call(intFn, []Value{vm.NewString("9999999999999999999")}, nil)
	if err == nil {
		t.Error("int of a huge literal succeeded")
	}
}

func TestRangeStepZero(t *testing.T) {
	vm := newTestVM(t)
	_, err := vm.Call(mustBuiltin(t, vm, "range"), []Value{FromInt(0), FromInt(1), FromInt(0)}, nil)
	if !IsKind(err, KindValue) {
		t.Errorf("got %v, want ValueError", err)
	}
}

func TestUninstantiableTypes(t *testing.T) {
	vm := newTestVM(t)
	_, err := vm.Call(vm.TypeObject(vm.tid.function), nil, nil)
	if !IsKind(err, KindType) {
		t.Errorf("function(): got %v, want TypeError", err)
	}
}

// ---------------------------------------------------------------------------
// Methods of builtin types
// ---------------------------------------------------------------------------

func TestListMethods(t *testing.T) {
	vm := newTestVM(t)
	l := vm.NewList(FromInt(1), FromInt(2))
	h := vm.Pin(l)
	defer vm.Unpin(h)

	callMethod(t, vm, l, "append", FromInt(3))
	callMethod(t, vm, l, "insert", FromInt(0), FromInt(0))
	callMethod(t, vm, l, "insert", FromInt(100), FromInt(9))
	callMethod(t, vm, l, "extend", vm.NewTuple(FromInt(2)))
	if s := mustRepr(t, vm, l); s != "[0, 1, 2, 3, 9, 2]" {
		t.Fatalf("list = %s", s)
	}
	if got := callMethod(t, vm, l, "pop"); got != FromInt(2) {
		t.Errorf("pop() = %v, want 2", got)
	}
	if got := callMethod(t, vm, l, "pop", FromInt(0)); got != FromInt(0) {
		t.Errorf("pop(0) = %v, want 0", got)
	}
	if got := callMethod(t, vm, l, "index", FromInt(9)); got != FromInt(3) {
		t.Errorf("index(9) = %v, want 3", got)
	}
	if got := callMethod(t, vm, l, "count", FromInt(2)); got != FromInt(1) {
		t.Errorf("count(2) = %v, want 1", got)
	}

	m, _ := vm.GetAttr(l, vm.Intern("index"))
	if _, err := vm.Call(m, []Value{FromInt(42)}, nil); !IsKind(err, KindValue) {
		t.Errorf("index(42): got %v, want ValueError", err)
	}
	empty := vm.NewList()
	m, _ = vm.GetAttr(empty, vm.Intern("pop"))
	if _, err := vm.Call(m, nil, nil); !IsKind(err, KindIndex) {
		t.Errorf("[].pop(): got %v, want IndexError", err)
	}
}

func TestListItemAssignment(t *testing.T) {
	vm := newTestVM(t)
	b := NewBuilder("<module>", "items.ks")
	b.LoadInt(1)
	b.LoadInt(2)
	b.EmitArg(OpBuildList, 2)
	b.StoreName("l")
	b.LoadInt(7)
	b.LoadName("l")
	b.LoadInt(-1)
	b.Emit(OpStoreSubscr)
	b.LoadName("l")
	b.LoadInt(0)
	b.Emit(OpDeleteSubscr)
	b.LoadName("l")
	b.Return()

	if s := mustRepr(t, vm, runCode(t, vm, b.MustCode())); s != "[7]" {
		t.Errorf("l = %s, want [7]", s)
	}
}

func TestStrMethods(t *testing.T) {
	vm := newTestVM(t)
	s := vm.NewString("  Hello World  ")
	tests := []struct {
		method string
		args   []Value
		want   string
	}{
		{"strip", nil, "'Hello World'"},
		{"upper", nil, "'  HELLO WORLD  '"},
		{"lower", nil, "'  hello world  '"},
		{"split", nil, "['Hello', 'World']"},
		{"split", []Value{vm.NewString("o")}, "['  Hell', ' W', 'rld  ']"},
		{"replace", []Value{vm.NewString("l"), vm.NewString("L")}, "'  HeLLo WorLd  '"},
		{"startswith", []Value{vm.NewString("  He")}, "True"},
		{"endswith", []Value{vm.NewString("x")}, "False"},
	}
	for _, tt := range tests {
		got := callMethod(t, vm, s, tt.method, tt.args...)
		if r := mustRepr(t, vm, got); r != tt.want {
			t.Errorf("%s = %s, want %s", tt.method, r, tt.want)
		}
	}

	joined := callMethod(t, vm, vm.NewString("-"), "join", vm.NewList(vm.NewString("a"), vm.NewString("b")))
	if got := mustStr(t, vm, joined); got != "a-b" {
		t.Errorf("join = %q, want a-b", got)
	}
	m, _ := vm.GetAttr(vm.NewString(","), vm.Intern("join"))
	if _, err := vm.Call(m, []Value{vm.NewList(FromInt(1))}, nil); !IsKind(err, KindType) {
		t.Errorf("join of ints: got %v, want TypeError", err)
	}
}

func TestBoundMethodProperties(t *testing.T) {
	vm := newTestVM(t)
	l := vm.NewList()
	m, err := vm.GetAttr(l, vm.Intern("append"))
	if err != nil {
		t.Fatal(err)
	}
	self, err := vm.GetAttr(m, vm.Intern("__self__"))
	if err != nil || self != l {
		t.Errorf("__self__ = %v, %v", self, err)
	}
	fn, err := vm.GetAttr(m, vm.Intern("__func__"))
	if err != nil {
		t.Fatal(err)
	}
	name, err := vm.GetAttr(fn, vm.Intern("__name__"))
	if err != nil || mustStr(t, vm, name) != "append" {
		t.Errorf("__func__.__name__ = %v, %v", name, err)
	}
}
