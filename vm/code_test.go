package vm

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		code *Code
	}{
		{"unknown opcode", &Code{Name: "c", Instrs: []Instr{{Op: 0xEE, Block: -1}}}},
		{"const out of range", &Code{Name: "c", Instrs: []Instr{{Op: OpLoadConst, Arg: 0, Block: -1}}}},
		{"name out of range", &Code{Name: "c", Instrs: []Instr{{Op: OpLoadName, Arg: 2, Block: -1}}, Names: []string{"x"}}},
		{"jump out of range", &Code{Name: "c", Instrs: []Instr{{Op: OpJumpAbsolute, Arg: 5, Block: -1}}}},
		{"bad binop", &Code{Name: "c", Instrs: []Instr{{Op: OpBinaryOp, Arg: int32(numBinOps), Block: -1}}}},
		{"enclosing block out of range", &Code{Name: "c", Instrs: []Instr{{Op: OpNOP, Block: 3}}}},
		{"yield outside generator", &Code{Name: "c", Instrs: []Instr{{Op: OpYieldValue, Block: -1}}}},
		{
			"break of a try block",
			&Code{
				Name:   "c",
				Instrs: []Instr{{Op: OpLoopBreak, Arg: 0, Block: 0}, {Op: OpNOP, Block: -1}},
				Blocks: []CodeBlock{{Kind: BlockTry, Parent: -1, Start: 0, End: 1, Handler: 1}},
			},
		},
		{
			"try handler out of range",
			&Code{
				Name:   "c",
				Instrs: []Instr{{Op: OpNOP, Block: 0}},
				Blocks: []CodeBlock{{Kind: BlockTry, Parent: -1, Start: 0, End: 1, Handler: 9}},
			},
		},
		{
			"block region inverted",
			&Code{
				Name:   "c",
				Instrs: []Instr{{Op: OpNOP, Block: -1}},
				Blocks: []CodeBlock{{Kind: BlockLoop, Parent: -1, Start: 1, End: 0}},
			},
		},
		{"int const out of range", &Code{Name: "c", Consts: []Const{IntConst(MaxInt + 1)}}},
		{
			"duplicate parameter",
			&Code{Name: "c", Consts: []Const{FuncConst(&FuncDecl{Code: &Code{Name: "f"}, Params: []string{"a", "a"}})}},
		},
		{
			"function default",
			&Code{Name: "c", Consts: []Const{FuncConst(&FuncDecl{
				Code:     &Code{Name: "f"},
				Defaults: []KwParam{{Name: "a", Default: FuncConst(&FuncDecl{Code: &Code{Name: "g"}})}},
			})}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.code.Validate()
			if !errors.Is(err, ErrInvalidCode) {
				t.Errorf("Validate() = %v, want ErrInvalidCode", err)
			}
		})
	}
}

func TestValidateAcceptsRecursiveCode(t *testing.T) {
	// A function constant may reference its own body.
	body := &Code{Name: "f", Instrs: []Instr{{Op: OpLoadNone, Block: -1}, {Op: OpReturnValue, Block: -1}}}
	body.Consts = []Const{FuncConst(&FuncDecl{Code: body})}
	if err := body.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestBuilderUnterminatedBlock(t *testing.T) {
	b := NewBuilder("c", "c.ks")
	b.BeginBlock(BlockLoop)
	if _, err := b.Code(); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("Code() = %v, want ErrInvalidCode", err)
	}
}

func TestBuilderTagsBlocks(t *testing.T) {
	b := NewBuilder("c", "c.ks")
	b.Emit(OpNOP)
	outer := b.BeginBlock(BlockLoop)
	b.Emit(OpNOP)
	inner := b.BeginBlock(BlockTry)
	b.Emit(OpNOP)
	b.EndBlock(inner)
	b.MarkHandler(inner)
	b.Emit(OpNOP)
	b.EndBlock(outer)
	c := b.MustCode()

	if c.Blocks[inner].Parent != int32(outer) {
		t.Errorf("inner parent = %d, want %d", c.Blocks[inner].Parent, outer)
	}
	if c.Instrs[0].Block != -1 {
		t.Errorf("first instruction block = %d, want -1", c.Instrs[0].Block)
	}
	if c.Instrs[2].Block != int32(outer) {
		t.Errorf("instruction 2 block = %d, want %d", c.Instrs[2].Block, outer)
	}
	if c.Instrs[4].Block != int32(inner) {
		t.Errorf("instruction 4 block = %d, want %d", c.Instrs[4].Block, inner)
	}
}

func TestBuilderInterns(t *testing.T) {
	b := NewBuilder("c", "c.ks")
	if b.Name("x") != b.Name("x") {
		t.Error("Name does not reuse entries")
	}
	if b.Const(StrConst("s")) != b.Const(StrConst("s")) {
		t.Error("Const does not reuse equal constants")
	}
	if b.Const(IntConst(1)) == b.Const(FloatConst(1)) {
		t.Error("int and float constants share an entry")
	}
}

func TestDisassemble(t *testing.T) {
	inner := NewBuilder("inner", "d.ks")
	inner.LoadInt(1)
	inner.Return()

	b := NewBuilder("main", "d.ks")
	b.Line(3)
	b.MakeFunction(inner.Func("x"))
	b.StoreName("inner")
	b.LoadName("inner")
	b.LoadInt(2)
	b.Call(1, 0)
	b.BinaryOp(BinAdd)
	b.Return()
	out := b.MustCode().Disassemble()

	for _, want := range []string{
		"== main (d.ks) ==",
		"MAKE_FUNCTION",
		"<code inner>",
		"STORE_NAME",
		"0 (inner)",
		"argc=1 kwargc=0",
		"BINARY_OP",
		"== inner (d.ks) ==",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
	if !strings.HasPrefix(strings.Split(out, "\n")[1], "   3 0000") {
		t.Errorf("first instruction not tagged with line 3:\n%s", out)
	}
}
