package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Builder: programmatic Code assembly
// ---------------------------------------------------------------------------

// Builder assembles a Code. It is the counterpart of the external front
// end for hosts and tests: instructions are appended in order, jumps go
// through Labels, and block records are opened and closed explicitly.
//
// A for loop is assembled as:
//
//	loop := b.BeginBlock(BlockLoop)
//	<iterable>
//	b.Emit(OpGetIter)
//	b.LoopStart(loop)
//	b.Jump(OpForIter, exit)
//	<body>
//	b.JumpTo(OpJumpAbsolute, loop start)
//	b.Mark(exit)
//	b.EndBlock(loop)
//
// and a try statement as:
//
//	try := b.BeginBlock(BlockTry)
//	<body>
//	b.EndBlock(try)
//	b.Jump(OpJumpAbsolute, after)
//	b.MarkHandler(try)
//	<handler, finishing with OpPopException or OpReRaise>
//	b.Mark(after)
type Builder struct {
	code   *Code
	line   int32
	open   []int32 // open block indices, innermost last
	names  map[string]int32
	consts map[Const]int32
}

// NewBuilder starts a new Code.
func NewBuilder(name, filename string) *Builder {
	return &Builder{
		code:   &Code{Name: name, Filename: filename},
		names:  make(map[string]int32),
		consts: make(map[Const]int32),
	}
}

// Generator marks the Code as a generator body.
func (b *Builder) Generator() *Builder {
	b.code.IsGenerator = true
	return b
}

// Line sets the source line recorded on subsequent instructions.
func (b *Builder) Line(line int) *Builder {
	b.line = int32(line)
	return b
}

// Len returns the index of the next instruction.
func (b *Builder) Len() int {
	return len(b.code.Instrs)
}

func (b *Builder) innermost() int32 {
	if len(b.open) == 0 {
		return -1
	}
	return b.open[len(b.open)-1]
}

// EmitArg appends an instruction and returns its index.
func (b *Builder) EmitArg(op Opcode, arg int) int {
	b.code.Instrs = append(b.code.Instrs, Instr{
		Op:    op,
		Arg:   int32(arg),
		Line:  b.line,
		Block: b.innermost(),
	})
	return len(b.code.Instrs) - 1
}

// Emit appends an instruction without operand.
func (b *Builder) Emit(op Opcode) int {
	return b.EmitArg(op, 0)
}

// ---------------------------------------------------------------------------
// Pools
// ---------------------------------------------------------------------------

// Name returns the name table index of s, adding it if needed.
func (b *Builder) Name(s string) int {
	if i, ok := b.names[s]; ok {
		return int(i)
	}
	i := int32(len(b.code.Names))
	b.code.Names = append(b.code.Names, s)
	b.names[s] = i
	return int(i)
}

// Const returns the constant pool index of k. Scalar constants are
// deduplicated; function constants never are.
func (b *Builder) Const(k Const) int {
	if k.Kind == ConstFunc {
		b.code.Consts = append(b.code.Consts, k)
		return len(b.code.Consts) - 1
	}
	if i, ok := b.consts[k]; ok {
		return int(i)
	}
	i := int32(len(b.code.Consts))
	b.code.Consts = append(b.code.Consts, k)
	b.consts[k] = i
	return int(i)
}

// ---------------------------------------------------------------------------
// Shorthands
// ---------------------------------------------------------------------------

// LoadConst emits LOAD_CONST for k.
func (b *Builder) LoadConst(k Const) int { return b.EmitArg(OpLoadConst, b.Const(k)) }

// LoadInt pushes a small integer. Integers that do not fit the operand go
// through the constant pool.
func (b *Builder) LoadInt(n int64) int {
	if n >= -1<<31 && n < 1<<31 {
		return b.EmitArg(OpLoadInt, int(n))
	}
	return b.LoadConst(IntConst(n))
}

// LoadStr pushes a string constant.
func (b *Builder) LoadStr(s string) int { return b.LoadConst(StrConst(s)) }

// NameOp emits op with the name table index of name.
func (b *Builder) NameOp(op Opcode, name string) int { return b.EmitArg(op, b.Name(name)) }

// LoadName emits LOAD_NAME.
func (b *Builder) LoadName(name string) int { return b.NameOp(OpLoadName, name) }

// StoreName emits STORE_NAME.
func (b *Builder) StoreName(name string) int { return b.NameOp(OpStoreName, name) }

// LoadFast emits LOAD_FAST.
func (b *Builder) LoadFast(name string) int { return b.NameOp(OpLoadFast, name) }

// StoreFast emits STORE_FAST.
func (b *Builder) StoreFast(name string) int { return b.NameOp(OpStoreFast, name) }

// LoadAttr emits LOAD_ATTR.
func (b *Builder) LoadAttr(name string) int { return b.NameOp(OpLoadAttr, name) }

// StoreAttr emits STORE_ATTR.
func (b *Builder) StoreAttr(name string) int { return b.NameOp(OpStoreAttr, name) }

// BinaryOp emits BINARY_OP.
func (b *Builder) BinaryOp(op BinOp) int { return b.EmitArg(OpBinaryOp, int(op)) }

// Call emits CALL. Keyword arguments must already be pushed as
// (name string, value) pairs after the positional arguments.
func (b *Builder) Call(argc, kwargc int) int { return b.EmitArg(OpCall, CallArg(argc, kwargc)) }

// Return emits RETURN_VALUE.
func (b *Builder) Return() int { return b.Emit(OpReturnValue) }

// MakeFunction adds d to the constant pool and emits MAKE_FUNCTION.
func (b *Builder) MakeFunction(d *FuncDecl) int {
	return b.EmitArg(OpMakeFunction, b.Const(FuncConst(d)))
}

// ---------------------------------------------------------------------------
// Labels
// ---------------------------------------------------------------------------

// Label is a jump target that may be resolved after it is referenced.
type Label struct {
	resolved bool
	target   int
	refs     []int
}

// NewLabel creates an unresolved label.
func (b *Builder) NewLabel() *Label {
	return &Label{}
}

// Mark resolves l to the next instruction and patches earlier references.
func (b *Builder) Mark(l *Label) {
	if l.resolved {
		panic("label already resolved")
	}
	l.resolved = true
	l.target = b.Len()
	for _, ref := range l.refs {
		b.code.Instrs[ref].Arg = int32(l.target)
	}
	l.refs = nil
}

// Jump emits a jump-class instruction targeting l.
func (b *Builder) Jump(op Opcode, l *Label) int {
	if l.resolved {
		return b.EmitArg(op, l.target)
	}
	i := b.EmitArg(op, 0)
	l.refs = append(l.refs, i)
	return i
}

// JumpTo emits a jump-class instruction to an absolute instruction index.
func (b *Builder) JumpTo(op Opcode, target int) int {
	return b.EmitArg(op, target)
}

// ---------------------------------------------------------------------------
// Blocks
// ---------------------------------------------------------------------------

// BeginBlock opens a block record and emits its ENTER_BLOCK. Instructions
// emitted until the matching EndBlock are tagged with the new block.
func (b *Builder) BeginBlock(kind BlockKind) int {
	idx := int32(len(b.code.Blocks))
	b.EmitArg(OpEnterBlock, int(idx))
	b.code.Blocks = append(b.code.Blocks, CodeBlock{
		Kind:   kind,
		Parent: b.innermost(),
		Start:  int32(b.Len()),
		End:    -1,
	})
	b.open = append(b.open, idx)
	return int(idx)
}

// LoopStart records the next instruction as the continue target of loop.
func (b *Builder) LoopStart(block int) int {
	b.code.Blocks[block].Start = int32(b.Len())
	return b.Len()
}

// EndBlock emits EXIT_BLOCK and closes the innermost block, which must be
// block.
func (b *Builder) EndBlock(block int) {
	if len(b.open) == 0 || b.open[len(b.open)-1] != int32(block) {
		panic(fmt.Sprintf("EndBlock(%d): not the innermost open block", block))
	}
	b.Emit(OpExitBlock)
	b.open = b.open[:len(b.open)-1]
	b.code.Blocks[block].End = int32(b.Len())
}

// MarkHandler records the next instruction as the handler of a try block.
func (b *Builder) MarkHandler(block int) {
	b.code.Blocks[block].Handler = int32(b.Len())
}

// Break emits LOOP_BREAK for loop.
func (b *Builder) Break(loop int) int { return b.EmitArg(OpLoopBreak, loop) }

// Continue emits LOOP_CONTINUE for loop.
func (b *Builder) Continue(loop int) int { return b.EmitArg(OpLoopContinue, loop) }

// ---------------------------------------------------------------------------
// Finishing
// ---------------------------------------------------------------------------

// Code validates and returns the assembled Code.
func (b *Builder) Code() (*Code, error) {
	if len(b.open) > 0 {
		return nil, fmt.Errorf("%w: %s: %d unterminated blocks", ErrInvalidCode, b.code.Name, len(b.open))
	}
	if err := b.code.Validate(); err != nil {
		return nil, err
	}
	return b.code, nil
}

// MustCode is Code for callers that assemble known-good code.
func (b *Builder) MustCode() *Code {
	c, err := b.Code()
	if err != nil {
		panic(err)
	}
	return c
}

// Func wraps the assembled Code in a FuncDecl with the given positional
// parameters.
func (b *Builder) Func(params ...string) *FuncDecl {
	return &FuncDecl{Code: b.MustCode(), Params: params}
}
