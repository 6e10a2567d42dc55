package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Code: the immutable unit handed over by the front end
// ---------------------------------------------------------------------------

// Code is one compiled body (a module, a function or a class body). A Code
// is never mutated once it has been handed to a VM; every Function created
// from it shares it.
type Code struct {
	Name        string      `cbor:"1,keyasint"`
	Filename    string      `cbor:"2,keyasint,omitempty"`
	Instrs      []Instr     `cbor:"3,keyasint"`
	Consts      []Const     `cbor:"4,keyasint,omitempty"`
	Names       []string    `cbor:"5,keyasint,omitempty"`
	Blocks      []CodeBlock `cbor:"6,keyasint,omitempty"`
	IsGenerator bool        `cbor:"7,keyasint,omitempty"`
}

// Instr is a single instruction. Block is the index of the innermost
// enclosing CodeBlock, or -1.
type Instr struct {
	Op    Opcode `cbor:"1,keyasint"`
	Arg   int32  `cbor:"2,keyasint,omitempty"`
	Line  int32  `cbor:"3,keyasint,omitempty"`
	Block int32  `cbor:"4,keyasint"`
}

// BlockKind classifies a CodeBlock.
type BlockKind uint8

const (
	BlockOther BlockKind = iota
	BlockLoop
	BlockTry
)

func (k BlockKind) String() string {
	switch k {
	case BlockLoop:
		return "loop"
	case BlockTry:
		return "try"
	default:
		return "other"
	}
}

// CodeBlock describes a loop or try region. Start is the first instruction
// inside the region (the re-entry point for loop continue), End the first
// instruction after it. Handler is the handler target of try blocks.
type CodeBlock struct {
	Kind    BlockKind `cbor:"1,keyasint"`
	Parent  int32     `cbor:"2,keyasint"`
	Start   int32     `cbor:"3,keyasint"`
	End     int32     `cbor:"4,keyasint"`
	Handler int32     `cbor:"5,keyasint,omitempty"`
}

// ConstKind tags a Const.
type ConstKind uint8

const (
	ConstNone ConstKind = iota
	ConstBool
	ConstInt
	ConstFloat
	ConstStr
	ConstFunc
)

// Const is one constant pool entry. Only the field selected by Kind is
// meaningful.
type Const struct {
	Kind  ConstKind `cbor:"1,keyasint"`
	Bool  bool      `cbor:"2,keyasint,omitempty"`
	Int   int64     `cbor:"3,keyasint,omitempty"`
	Float float64   `cbor:"4,keyasint,omitempty"`
	Str   string    `cbor:"5,keyasint,omitempty"`
	Func  *FuncDecl `cbor:"6,keyasint,omitempty"`
}

// Constant constructors.
func NoneConst() Const { return Const{Kind: ConstNone} }
func BoolConst(b bool) Const { return Const{Kind: ConstBool, Bool: b} }
func IntConst(n int64) Const { return Const{Kind: ConstInt, Int: n} }
func FloatConst(f float64) Const { return Const{Kind: ConstFloat, Float: f} }
func StrConst(s string) Const { return Const{Kind: ConstStr, Str: s} }
func FuncConst(d *FuncDecl) Const { return Const{Kind: ConstFunc, Func: d} }

func (c Const) String() string {
	switch c.Kind {
	case ConstNone:
		return "None"
	case ConstBool:
		if c.Bool {
			return "True"
		}
		return "False"
	case ConstInt:
		return fmt.Sprintf("%d", c.Int)
	case ConstFloat:
		return fmt.Sprintf("%g", c.Float)
	case ConstStr:
		return fmt.Sprintf("%q", c.Str)
	case ConstFunc:
		if c.Func != nil && c.Func.Code != nil {
			return "<code " + c.Func.Code.Name + ">"
		}
		return "<code>"
	}
	return fmt.Sprintf("<const kind %d>", c.Kind)
}

// KwParam is a parameter with a default value.
type KwParam struct {
	Name    string `cbor:"1,keyasint"`
	Default Const  `cbor:"2,keyasint"`
}

// FuncDecl is the static part of a function: its body and its parameter
// list. Parameters bind in declaration order: Params, then Defaults, then
// *VarArgs, then **VarKwargs.
type FuncDecl struct {
	Code      *Code     `cbor:"1,keyasint"`
	Params    []string  `cbor:"2,keyasint,omitempty"`
	Defaults  []KwParam `cbor:"3,keyasint,omitempty"`
	VarArgs   string    `cbor:"4,keyasint,omitempty"`
	VarKwargs string    `cbor:"5,keyasint,omitempty"`
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// ErrInvalidCode is wrapped by every Validate failure.
var ErrInvalidCode = errors.New("invalid code")

func (c *Code) invalid(ip int, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if ip >= 0 {
		return fmt.Errorf("%w: %s: instruction %d: %s", ErrInvalidCode, c.Name, ip, msg)
	}
	return fmt.Errorf("%w: %s: %s", ErrInvalidCode, c.Name, msg)
}

// Validate checks every operand of c and of the function bodies it
// references. A Code that fails validation is never executed.
func (c *Code) Validate() error {
	return c.validate(make(map[*Code]bool))
}

func (c *Code) validate(seen map[*Code]bool) error {
	if seen[c] {
		return nil
	}
	seen[c] = true

	n := int32(len(c.Instrs))
	nb := int32(len(c.Blocks))
	for i, b := range c.Blocks {
		if b.Parent < -1 || b.Parent >= int32(i) {
			return c.invalid(-1, "block %d: parent %d out of range", i, b.Parent)
		}
		if b.Start < 0 || b.Start > b.End || b.End > n {
			return c.invalid(-1, "block %d: region [%d,%d) out of range", i, b.Start, b.End)
		}
		if b.Kind == BlockTry && (b.Handler < 0 || b.Handler >= n) {
			return c.invalid(-1, "block %d: handler %d out of range", i, b.Handler)
		}
	}
	for i, k := range c.Consts {
		if k.Kind > ConstFunc {
			return c.invalid(-1, "constant %d: unknown kind %d", i, k.Kind)
		}
		if k.Kind == ConstInt && (k.Int > MaxInt || k.Int < MinInt) {
			return c.invalid(-1, "constant %d: integer %d out of range", i, k.Int)
		}
		if k.Kind == ConstFunc {
			if err := k.Func.validate(seen); err != nil {
				return err
			}
		}
	}

	for ip, in := range c.Instrs {
		if !in.Op.Valid() {
			return c.invalid(ip, "unknown opcode 0x%02X", byte(in.Op))
		}
		if in.Block < -1 || in.Block >= nb {
			return c.invalid(ip, "enclosing block %d out of range", in.Block)
		}
		a := in.Arg
		switch in.Op.Info().Arg {
		case ArgConst:
			if a < 0 || int(a) >= len(c.Consts) {
				return c.invalid(ip, "%s: constant %d out of range", in.Op, a)
			}
		case ArgFunc:
			if a < 0 || int(a) >= len(c.Consts) || c.Consts[a].Kind != ConstFunc {
				return c.invalid(ip, "%s: constant %d is not a function", in.Op, a)
			}
		case ArgName:
			if a < 0 || int(a) >= len(c.Names) {
				return c.invalid(ip, "%s: name %d out of range", in.Op, a)
			}
		case ArgJump:
			if a < 0 || a > n {
				return c.invalid(ip, "%s: jump target %d out of range", in.Op, a)
			}
		case ArgBlock:
			if a < 0 || a >= nb {
				return c.invalid(ip, "%s: block %d out of range", in.Op, a)
			}
			if (in.Op == OpLoopBreak || in.Op == OpLoopContinue) && c.Blocks[a].Kind != BlockLoop {
				return c.invalid(ip, "%s: block %d is not a loop", in.Op, a)
			}
		case ArgBinOp:
			if a < 0 || BinOp(a) >= numBinOps {
				return c.invalid(ip, "unknown binary operator %d", a)
			}
		case ArgInt:
			if in.Op != OpLoadInt && a < 0 {
				return c.invalid(ip, "%s: negative count %d", in.Op, a)
			}
		case ArgCall:
			if a < 0 {
				return c.invalid(ip, "CALL: negative argument count")
			}
		}
		if in.Op == OpYieldValue && !c.IsGenerator {
			return c.invalid(ip, "YIELD_VALUE outside a generator")
		}
	}
	return nil
}

func (d *FuncDecl) validate(seen map[*Code]bool) error {
	if d == nil || d.Code == nil {
		return fmt.Errorf("%w: function constant without code", ErrInvalidCode)
	}
	names := make(map[string]bool)
	check := func(p string) error {
		if p == "" {
			return fmt.Errorf("%w: %s: empty parameter name", ErrInvalidCode, d.Code.Name)
		}
		if names[p] {
			return fmt.Errorf("%w: %s: duplicate parameter %q", ErrInvalidCode, d.Code.Name, p)
		}
		names[p] = true
		return nil
	}
	for _, p := range d.Params {
		if err := check(p); err != nil {
			return err
		}
	}
	for _, kw := range d.Defaults {
		if err := check(kw.Name); err != nil {
			return err
		}
		if kw.Default.Kind >= ConstFunc {
			return fmt.Errorf("%w: %s: default for %q is not a value constant", ErrInvalidCode, d.Code.Name, kw.Name)
		}
		if kw.Default.Kind == ConstInt && (kw.Default.Int > MaxInt || kw.Default.Int < MinInt) {
			return fmt.Errorf("%w: %s: default for %q out of range", ErrInvalidCode, d.Code.Name, kw.Name)
		}
	}
	for _, p := range []string{d.VarArgs, d.VarKwargs} {
		if p == "" {
			continue
		}
		if err := check(p); err != nil {
			return err
		}
	}
	return d.Code.validate(seen)
}

// ---------------------------------------------------------------------------
// Per-VM materialization
// ---------------------------------------------------------------------------

// codeState caches the VM-specific view of a Code: constants as Values and
// names as interned Names. It is a collector root.
type codeState struct {
	consts []Value
	names  []Name
}

// loadCode validates c on first use and materializes its constants.
func (vm *VM) loadCode(c *Code) (*codeState, error) {
	if cs, ok := vm.codes[c]; ok {
		return cs, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	cs := &codeState{
		consts: make([]Value, len(c.Consts)),
		names:  make([]Name, len(c.Names)),
	}
	for i, k := range c.Consts {
		cs.consts[i] = vm.constValue(k)
	}
	for i, s := range c.Names {
		cs.names[i] = vm.names.Intern(s)
	}
	vm.codes[c] = cs
	return cs, nil
}

// mustLoadCode is loadCode for code reached from already validated code.
func (vm *VM) mustLoadCode(c *Code) *codeState {
	cs, err := vm.loadCode(c)
	if err != nil {
		vm.Raisef(vm.exc.runtime, "%v", err)
	}
	return cs
}

// constValue converts a constant to a Value. Function constants have no
// Value of their own; MAKE_FUNCTION reads the declaration directly.
func (vm *VM) constValue(k Const) Value {
	switch k.Kind {
	case ConstBool:
		return FromBool(k.Bool)
	case ConstInt:
		return FromInt(k.Int)
	case ConstFloat:
		return FromFloat(k.Float)
	case ConstStr:
		return vm.NewString(k.Str)
	}
	return None
}
