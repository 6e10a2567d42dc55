package vm

import (
	"math"
	"testing"
)

func TestDictNumericKeysShareSlot(t *testing.T) {
	vm := newTestVM(t)
	d := vm.NewDict()
	if err := vm.DictSet(d, FromInt(1), vm.NewString("int")); err != nil {
		t.Fatal(err)
	}
	if err := vm.DictSet(d, FromFloat(1), vm.NewString("float")); err != nil {
		t.Fatal(err)
	}
	if err := vm.DictSet(d, True, vm.NewString("bool")); err != nil {
		t.Fatal(err)
	}
	if n := vm.dictPayload(d).Len(); n != 1 {
		t.Fatalf("Len = %d, want 1", n)
	}
	// The first key is kept, the last value wins.
	if got := mustRepr(t, vm, d); got != "{1: 'bool'}" {
		t.Errorf("repr = %s", got)
	}
}

func TestDictNaNKeys(t *testing.T) {
	vm := newTestVM(t)
	d := vm.NewDict()
	nan := math.NaN()
	if err := vm.DictSet(d, FromFloat(nan), FromInt(1)); err != nil {
		t.Fatal(err)
	}
	if err := vm.DictSet(d, FromFloat(-nan), FromInt(2)); err != nil {
		t.Fatal(err)
	}
	if n := vm.dictPayload(d).Len(); n != 1 {
		t.Fatalf("Len = %d, want 1", n)
	}
	v, ok, err := vm.DictGet(d, FromFloat(math.Float64frombits(0x7FF0000000000001)))
	if err != nil || !ok || v != FromInt(2) {
		t.Errorf("lookup by nan = %v, %v, %v", v, ok, err)
	}
}

func TestDictUnhashableKey(t *testing.T) {
	vm := newTestVM(t)
	d := vm.NewDict()
	err := vm.DictSet(d, vm.NewList(), None)
	if !IsKind(err, KindType) {
		t.Fatalf("got %v, want TypeError", err)
	}
	if e := err.(*Error); e.Message != "unhashable type: 'list'" {
		t.Errorf("message = %q", e.Message)
	}
}

func TestDictTupleKeys(t *testing.T) {
	vm := newTestVM(t)
	d := vm.NewDict()
	k1 := vm.NewTuple(FromInt(1), vm.NewString("a"))
	k2 := vm.NewTuple(FromInt(1), vm.NewString("a"))
	if err := vm.DictSet(d, k1, True); err != nil {
		t.Fatal(err)
	}
	v, ok, err := vm.DictGet(d, k2)
	if err != nil || !ok || v != True {
		t.Errorf("lookup by equal tuple = %v, %v, %v", v, ok, err)
	}
	// ("1a",) must not collide with (1, "a").
	if _, ok, _ := vm.DictGet(d, vm.NewTuple(vm.NewString("1a"))); ok {
		t.Error("distinct tuples share a key")
	}
}

func TestDictDeleteAndCompact(t *testing.T) {
	vm := newTestVM(t)
	d := vm.NewDict()
	dict := vm.dictPayload(d)
	for i := 0; i < 40; i++ {
		dict.set(vm, FromInt(int64(i)), FromInt(int64(i*i)))
	}
	for i := 0; i < 40; i += 2 {
		if !dict.delete(vm, FromInt(int64(i))) {
			t.Fatalf("delete(%d) reported missing", i)
		}
	}
	if dict.delete(vm, FromInt(0)) {
		t.Error("second delete reported present")
	}
	if dict.Len() != 20 {
		t.Fatalf("Len = %d, want 20", dict.Len())
	}
	keys := dict.keys()
	for i, k := range keys {
		if want := FromInt(int64(2*i + 1)); k != want {
			t.Errorf("keys[%d] = %v, want %v", i, k, want)
		}
		if v, ok := dict.get(vm, k); !ok || v != FromInt(k.Int()*k.Int()) {
			t.Errorf("get(%v) = %v, %v", k, v, ok)
		}
	}
}

func TestDictMethods(t *testing.T) {
	vm := newTestVM(t)

	// d = {'a': 1}; d.setdefault('b', 2); d.update({'c': 3}); d.pop('a')
	b := NewBuilder("<module>", "dict.ks")
	b.LoadStr("a")
	b.LoadInt(1)
	b.EmitArg(OpBuildDict, 1)
	b.StoreName("d")
	b.LoadName("d")
	b.LoadAttr("setdefault")
	b.LoadStr("b")
	b.LoadInt(2)
	b.Call(2, 0)
	b.Emit(OpPopTop)
	b.LoadName("d")
	b.LoadAttr("update")
	b.LoadStr("c")
	b.LoadInt(3)
	b.EmitArg(OpBuildDict, 1)
	b.Call(1, 0)
	b.Emit(OpPopTop)
	b.LoadName("d")
	b.LoadAttr("pop")
	b.LoadStr("a")
	b.Call(1, 0)
	b.LoadName("d")
	b.LoadAttr("items")
	b.Call(0, 0)
	b.LoadName("d")
	b.LoadAttr("get")
	b.LoadStr("zz")
	b.LoadInt(-1)
	b.Call(2, 0)
	b.EmitArg(OpBuildTuple, 3)
	b.Return()

	got := runCode(t, vm, b.MustCode())
	if s := mustRepr(t, vm, got); s != "(1, [('b', 2), ('c', 3)], -1)" {
		t.Errorf("result = %s", s)
	}
}

func TestDictConstructor(t *testing.T) {
	vm := newTestVM(t)
	dictType := vm.TypeObject(vm.tid.dict)
	pairs := vm.NewList(vm.NewTuple(vm.NewString("x"), FromInt(1)))

	d, err := vm.Call(dictType, []Value{pairs}, []KwArg{kw(vm, "y", FromInt(2))})
	if err != nil {
		t.Fatalf("dict(...): %v", err)
	}
	if s := mustRepr(t, vm, d); s != "{'x': 1, 'y': 2}" {
		t.Errorf("repr = %s", s)
	}

	_, err = vm.Call(dictType, []Value{vm.NewList(FromInt(1))}, nil)
	if err == nil {
		t.Error("dict([1]) succeeded")
	}
}

func TestDictPopMissing(t *testing.T) {
	vm := newTestVM(t)
	d := vm.NewDict()
	pop, err := vm.GetAttr(d, vm.Intern("pop"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := vm.Call(pop, []Value{vm.NewString("k")}, nil); !IsKind(err, KindKey) {
		t.Errorf("got %v, want KeyError", err)
	}
	v, err := vm.Call(pop, []Value{vm.NewString("k"), FromInt(0)}, nil)
	if err != nil || v != FromInt(0) {
		t.Errorf("pop with default = %v, %v", v, err)
	}
}
