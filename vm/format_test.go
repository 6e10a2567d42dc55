package vm

import (
	"math"
	"strings"
	"testing"
)

func TestRepr(t *testing.T) {
	vm := newTestVM(t)
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"int", FromInt(-12), "-12"},
		{"float", FromFloat(2), "2.0"},
		{"float fraction", FromFloat(0.25), "0.25"},
		{"float small", FromFloat(1.0 / 1024 / 1024), "9.5367431640625e-07"},
		{"inf", FromFloat(math.Inf(-1)), "-inf"},
		{"none", None, "None"},
		{"bool", True, "True"},
		{"str", vm.NewString("hi"), "'hi'"},
		{"str with quote", vm.NewString("it's"), `"it's"`},
		{"str with both quotes", vm.NewString(`a'b"c`), `'a\'b"c'`},
		{"str escapes", vm.NewString("a\nb\x01"), `'a\nb\x01'`},
		{"list", vm.NewList(FromInt(1), vm.NewString("x")), "[1, 'x']"},
		{"empty tuple", vm.NewTuple(), "()"},
		{"one tuple", vm.NewTuple(FromInt(1)), "(1,)"},
		{"type", vm.TypeObject(vm.tid.integer), "<class 'int'>"},
		{"builtin", mustBuiltin(t, vm, "len"), "<built-in function len>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustRepr(t, vm, tt.v); got != tt.want {
				t.Errorf("repr = %s, want %s", got, tt.want)
			}
		})
	}
}

func mustBuiltin(t *testing.T, vm *VM, name string) Value {
	t.Helper()
	v, ok := vm.Builtin(name)
	if !ok {
		t.Fatalf("builtin %q missing", name)
	}
	return v
}

func TestReprDictKeepsInsertionOrder(t *testing.T) {
	vm := newTestVM(t)
	d := vm.NewDict()
	for _, k := range []string{"z", "a", "m"} {
		if err := vm.DictSet(d, vm.NewString(k), FromInt(int64(len(k)))); err != nil {
			t.Fatal(err)
		}
	}
	if got := mustRepr(t, vm, d); got != "{'z': 1, 'a': 1, 'm': 1}" {
		t.Errorf("repr = %s", got)
	}
}

func TestReprSelfReference(t *testing.T) {
	vm := newTestVM(t)
	l := vm.NewList(FromInt(1))
	vm.listPayload(l).Items = append(vm.listPayload(l).Items, l)
	if got := mustRepr(t, vm, l); got != "[1, [...]]" {
		t.Errorf("repr = %s, want [1, [...]]", got)
	}
	// The guard is released afterwards.
	if got := mustRepr(t, vm, vm.NewList(l)); got != "[[1, [...]]]" {
		t.Errorf("repr = %s", got)
	}
}

func TestReprException(t *testing.T) {
	vm := newTestVM(t)
	e := vm.NewException(vm.exc.key, "k")
	if got := mustRepr(t, vm, e); got != "KeyError('k')" {
		t.Errorf("repr = %s, want KeyError('k')", got)
	}
	s, err := vm.Str(e)
	if err != nil || s != "k" {
		t.Errorf("str = %q, %v; want k", s, err)
	}
}

func TestReprDefaultObject(t *testing.T) {
	vm := newTestVM(t)
	tid := vm.RegisterType("Widget", NoType, nil)
	got := mustRepr(t, vm, vm.NewNative(tid, nil))
	if !strings.HasPrefix(got, "<Widget object at 0x") {
		t.Errorf("repr = %s", got)
	}
}

func TestStr(t *testing.T) {
	vm := newTestVM(t)
	tests := []struct {
		v    Value
		want string
	}{
		{vm.NewString("plain"), "plain"},
		{FromInt(3), "3"},
		{vm.NewList(vm.NewString("a")), "['a']"},
	}
	for _, tt := range tests {
		got, err := vm.Str(tt.v)
		if err != nil || got != tt.want {
			t.Errorf("Str = %q, %v; want %q", got, err, tt.want)
		}
	}
}

func TestUserRepr(t *testing.T) {
	vm := newTestVM(t)
	rep := NewBuilder("__repr__", "repr.ks")
	rep.LoadStr("<P>")
	rep.Return()
	bad := NewBuilder("__repr__", "repr.ks")
	bad.LoadInt(1)
	bad.Return()

	for _, tt := range []struct {
		body *FuncDecl
		want string
		err  bool
	}{
		{rep.Func("self"), "<P>", false},
		{bad.Func("self"), "", true},
	} {
		b := NewBuilder("<module>", "repr.ks")
		b.Emit(OpLoadNone)
		b.NameOp(OpBeginClass, "P")
		b.MakeFunction(tt.body)
		b.NameOp(OpStoreClassAttr, "__repr__")
		b.Emit(OpEndClass)
		b.Call(0, 0)
		b.Return()
		inst := runCode(t, vm, b.MustCode())

		got, err := vm.Repr(inst)
		if tt.err {
			if !IsKind(err, KindType) {
				t.Errorf("non-string __repr__: got %v, want TypeError", err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("repr = %q, %v; want %q", got, err, tt.want)
		}
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		f    float64
		want string
	}{
		{0, "0.0"},
		{-0.5, "-0.5"},
		{100, "100.0"},
		{1e16, "1e+16"},
		{math.NaN(), "nan"},
		{math.Inf(1), "inf"},
	}
	for _, tt := range tests {
		if got := formatFloat(tt.f); got != tt.want {
			t.Errorf("formatFloat(%v) = %q, want %q", tt.f, got, tt.want)
		}
	}
}
