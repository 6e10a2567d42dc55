package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/chazu/kestrel/vm"
)

// program builds: def add(a, b=10): return a + b; return add(5) + 0.5
func program() *vm.Code {
	fb := vm.NewBuilder("add", "prog.ks")
	fb.LoadFast("a")
	fb.LoadFast("b")
	fb.BinaryOp(vm.BinAdd)
	fb.Return()
	add := fb.Func("a")
	add.Defaults = []vm.KwParam{{Name: "b", Default: vm.IntConst(10)}}

	b := vm.NewBuilder("<module>", "prog.ks")
	b.Line(1)
	b.MakeFunction(add)
	b.StoreName("add")
	b.Line(2)
	b.LoadName("add")
	b.LoadInt(5)
	b.Call(1, 0)
	b.LoadConst(vm.FloatConst(0.5))
	b.BinaryOp(vm.BinAdd)
	b.Return()
	return b.MustCode()
}

func TestCode_CBORRoundTrip(t *testing.T) {
	c := program()
	data, err := MarshalCode(c)
	if err != nil {
		t.Fatalf("MarshalCode: %v", err)
	}
	got, err := UnmarshalCode(data)
	if err != nil {
		t.Fatalf("UnmarshalCode: %v", err)
	}

	if got.Name != c.Name || got.Filename != c.Filename {
		t.Errorf("header: got %q/%q, want %q/%q", got.Name, got.Filename, c.Name, c.Filename)
	}
	if len(got.Instrs) != len(c.Instrs) {
		t.Fatalf("Instrs: got %d, want %d", len(got.Instrs), len(c.Instrs))
	}
	for i := range c.Instrs {
		if got.Instrs[i] != c.Instrs[i] {
			t.Errorf("Instrs[%d]: got %+v, want %+v", i, got.Instrs[i], c.Instrs[i])
		}
	}
	fn := got.Consts[0].Func
	if fn == nil || len(fn.Defaults) != 1 || fn.Defaults[0].Default.Int != 10 {
		t.Fatalf("function constant not preserved: %+v", got.Consts[0])
	}

	machine := vm.New()
	v, err := machine.Run(got, vm.None)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !v.IsFloat() || v.Float() != 15.5 {
		t.Errorf("result: got %v, want 15.5", v)
	}
}

func TestMarshalCode_Deterministic(t *testing.T) {
	a, err := MarshalCode(program())
	if err != nil {
		t.Fatal(err)
	}
	b, err := MarshalCode(program())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("equal programs encoded differently")
	}

	ha, _ := Hash(program())
	other := program()
	other.Instrs[len(other.Instrs)-2].Line = 99
	hb, _ := Hash(other)
	if ha == hb {
		t.Error("Hash ignores line information")
	}
}

func TestMarshalCode_RejectsCycles(t *testing.T) {
	body := &vm.Code{Name: "f", Instrs: []vm.Instr{{Op: vm.OpLoadNone, Block: -1}, {Op: vm.OpReturnValue, Block: -1}}}
	body.Consts = []vm.Const{vm.FuncConst(&vm.FuncDecl{Code: body})}
	if _, err := MarshalCode(body); !errors.Is(err, ErrCyclicCode) {
		t.Errorf("got %v, want ErrCyclicCode", err)
	}

	// The same body referenced twice is a DAG, not a cycle.
	leaf := &vm.Code{Name: "leaf", Instrs: []vm.Instr{{Op: vm.OpLoadNone, Block: -1}, {Op: vm.OpReturnValue, Block: -1}}}
	shared := &vm.Code{Name: "m", Consts: []vm.Const{
		vm.FuncConst(&vm.FuncDecl{Code: leaf}),
		vm.FuncConst(&vm.FuncDecl{Code: leaf, Params: []string{"x"}}),
	}}
	if _, err := MarshalCode(shared); err != nil {
		t.Errorf("shared subtree: %v", err)
	}
}

func TestUnmarshalCode_Errors(t *testing.T) {
	wrongVersion, err := encMode.Marshal(&Image{Version: Version + 1, Code: program()})
	if err != nil {
		t.Fatal(err)
	}
	noCode, err := encMode.Marshal(&Image{Version: Version})
	if err != nil {
		t.Fatal(err)
	}
	invalid, err := MarshalCode(&vm.Code{Name: "bad", Instrs: []vm.Instr{{Op: vm.OpLoadConst, Arg: 3, Block: -1}}})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte{0xff, 0x00, 0x13}},
		{"empty", nil},
		{"wrong version", wrongVersion},
		{"no code", noCode},
		{"invalid code", invalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnmarshalCode(tt.data); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if _, err := UnmarshalCode(invalid); !errors.Is(err, vm.ErrInvalidCode) {
		t.Errorf("invalid code: got %v, want ErrInvalidCode", err)
	}
}
