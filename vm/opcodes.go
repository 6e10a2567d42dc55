package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode identifies one instruction of a Code.
type Opcode uint8

// Stack Operations
const (
	OpNOP    Opcode = 0x00 // no operation
	OpPopTop Opcode = 0x01 // discard top of stack
	OpDupTop Opcode = 0x02 // duplicate top of stack
	OpRotTwo Opcode = 0x03 // swap the two top entries
)

// Loads
const (
	OpLoadConst  Opcode = 0x10 // push constant (const index)
	OpLoadNone   Opcode = 0x11 // push None
	OpLoadTrue   Opcode = 0x12 // push True
	OpLoadFalse  Opcode = 0x13 // push False
	OpLoadInt    Opcode = 0x14 // push Arg as an integer
	OpLoadName   Opcode = 0x15 // locals -> closure -> globals -> builtins (name index)
	OpLoadFast   Opcode = 0x16 // locals only (name index)
	OpLoadGlobal Opcode = 0x17 // globals -> builtins (name index)
	OpLoadAttr   Opcode = 0x18 // replace TOS with TOS.name (name index)
	OpLoadSubscr Opcode = 0x19 // TOS1[TOS]
)

// Stores and deletes
const (
	OpStoreName    Opcode = 0x20 // locals (globals at module level)
	OpStoreFast    Opcode = 0x21 // locals
	OpStoreGlobal  Opcode = 0x22 // module globals
	OpStoreAttr    Opcode = 0x23 // TOS.name = TOS1
	OpStoreSubscr  Opcode = 0x24 // TOS1[TOS] = TOS2
	OpDeleteName   Opcode = 0x25
	OpDeleteGlobal Opcode = 0x26
	OpDeleteAttr   Opcode = 0x27 // del TOS.name
	OpDeleteSubscr Opcode = 0x28 // del TOS1[TOS]
)

// Containers
const (
	OpBuildList      Opcode = 0x30 // pop Arg items into a list
	OpBuildTuple     Opcode = 0x31 // pop Arg items into a tuple
	OpBuildDict      Opcode = 0x32 // pop Arg key/value pairs into a dict
	OpUnpackSequence Opcode = 0x33 // pop an iterable, push exactly Arg items
)

// Operators
const (
	OpBinaryOp      Opcode = 0x40 // Arg is a BinOp
	OpIsOp          Opcode = 0x41 // identity; Arg 1 inverts
	OpContainsOp    Opcode = 0x42 // TOS1 in TOS; Arg 1 inverts
	OpUnaryNegative Opcode = 0x43
	OpUnaryNot      Opcode = 0x44
	OpUnaryInvert   Opcode = 0x45
)

// Control flow
const (
	OpJumpAbsolute     Opcode = 0x50 // jump to Arg
	OpPopJumpIfFalse   Opcode = 0x51
	OpPopJumpIfTrue    Opcode = 0x52
	OpJumpIfFalseOrPop Opcode = 0x53
	OpJumpIfTrueOrPop  Opcode = 0x54
	OpGetIter          Opcode = 0x55 // replace TOS with an iterator over it
	OpForIter          Opcode = 0x56 // push next item of TOS, or jump to Arg when exhausted
	OpLoopBreak        Opcode = 0x57 // leave loop block Arg
	OpLoopContinue     Opcode = 0x58 // restart loop block Arg
)

// Blocks and exceptions
const (
	OpEnterBlock     Opcode = 0x60 // push runtime record for code block Arg
	OpExitBlock      Opcode = 0x61 // pop the innermost runtime block
	OpExceptionMatch Opcode = 0x62 // pop type, pop value, push isinstance(value, type)
	OpRaise          Opcode = 0x63 // raise TOS
	OpReRaise        Opcode = 0x64 // re-raise the exception being handled
	OpPopException   Opcode = 0x65 // leave the current handler
)

// Definitions
const (
	OpMakeFunction   Opcode = 0x70 // push function from Func const Arg
	OpBeginClass     Opcode = 0x71 // pop base (or None), start class named Arg
	OpStoreClassAttr Opcode = 0x72 // pop value into the class under construction
	OpEndClass       Opcode = 0x73 // finish the class and push it
	OpImportName     Opcode = 0x74 // push registered module (name index)
)

// Calls and returns
const (
	OpCall        Opcode = 0x80 // Arg = argc | kwargc<<16
	OpReturnValue Opcode = 0x81
	OpYieldValue  Opcode = 0x82
)

// BinOp selects the operator of OpBinaryOp.
type BinOp int32

// Binary operators.
const (
	BinAdd BinOp = iota
	BinSub
	BinMul
	BinTrueDiv
	BinFloorDiv
	BinMod
	BinPow
	BinLShift
	BinRShift
	BinAnd
	BinOr
	BinXor
	BinLT
	BinLE
	BinEQ
	BinNE
	BinGT
	BinGE
	numBinOps
)

var binOpSymbols = [numBinOps]string{
	"+", "-", "*", "/", "//", "%", "**", "<<", ">>", "&", "|", "^",
	"<", "<=", "==", "!=", ">", ">=",
}

func (op BinOp) String() string {
	if op < 0 || op >= numBinOps {
		return fmt.Sprintf("binop(%d)", int32(op))
	}
	return binOpSymbols[op]
}

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// ArgKind describes how an instruction's Arg is interpreted.
type ArgKind uint8

const (
	ArgNone  ArgKind = iota // Arg ignored
	ArgInt                  // immediate integer or count
	ArgConst                // constant pool index
	ArgName                 // name table index
	ArgJump                 // instruction index
	ArgBlock                // code block index
	ArgFunc                 // constant pool index of a Func constant
	ArgBinOp                // BinOp
	ArgCall                 // argc | kwargc<<16
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name string
	Arg  ArgKind
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP:    {"NOP", ArgNone},
	OpPopTop: {"POP_TOP", ArgNone},
	OpDupTop: {"DUP_TOP", ArgNone},
	OpRotTwo: {"ROT_TWO", ArgNone},

	OpLoadConst:  {"LOAD_CONST", ArgConst},
	OpLoadNone:   {"LOAD_NONE", ArgNone},
	OpLoadTrue:   {"LOAD_TRUE", ArgNone},
	OpLoadFalse:  {"LOAD_FALSE", ArgNone},
	OpLoadInt:    {"LOAD_INT", ArgInt},
	OpLoadName:   {"LOAD_NAME", ArgName},
	OpLoadFast:   {"LOAD_FAST", ArgName},
	OpLoadGlobal: {"LOAD_GLOBAL", ArgName},
	OpLoadAttr:   {"LOAD_ATTR", ArgName},
	OpLoadSubscr: {"LOAD_SUBSCR", ArgNone},

	OpStoreName:    {"STORE_NAME", ArgName},
	OpStoreFast:    {"STORE_FAST", ArgName},
	OpStoreGlobal:  {"STORE_GLOBAL", ArgName},
	OpStoreAttr:    {"STORE_ATTR", ArgName},
	OpStoreSubscr:  {"STORE_SUBSCR", ArgNone},
	OpDeleteName:   {"DELETE_NAME", ArgName},
	OpDeleteGlobal: {"DELETE_GLOBAL", ArgName},
	OpDeleteAttr:   {"DELETE_ATTR", ArgName},
	OpDeleteSubscr: {"DELETE_SUBSCR", ArgNone},

	OpBuildList:      {"BUILD_LIST", ArgInt},
	OpBuildTuple:     {"BUILD_TUPLE", ArgInt},
	OpBuildDict:      {"BUILD_DICT", ArgInt},
	OpUnpackSequence: {"UNPACK_SEQUENCE", ArgInt},

	OpBinaryOp:      {"BINARY_OP", ArgBinOp},
	OpIsOp:          {"IS_OP", ArgInt},
	OpContainsOp:    {"CONTAINS_OP", ArgInt},
	OpUnaryNegative: {"UNARY_NEGATIVE", ArgNone},
	OpUnaryNot:      {"UNARY_NOT", ArgNone},
	OpUnaryInvert:   {"UNARY_INVERT", ArgNone},

	OpJumpAbsolute:     {"JUMP_ABSOLUTE", ArgJump},
	OpPopJumpIfFalse:   {"POP_JUMP_IF_FALSE", ArgJump},
	OpPopJumpIfTrue:    {"POP_JUMP_IF_TRUE", ArgJump},
	OpJumpIfFalseOrPop: {"JUMP_IF_FALSE_OR_POP", ArgJump},
	OpJumpIfTrueOrPop:  {"JUMP_IF_TRUE_OR_POP", ArgJump},
	OpGetIter:          {"GET_ITER", ArgNone},
	OpForIter:          {"FOR_ITER", ArgJump},
	OpLoopBreak:        {"LOOP_BREAK", ArgBlock},
	OpLoopContinue:     {"LOOP_CONTINUE", ArgBlock},

	OpEnterBlock:     {"ENTER_BLOCK", ArgBlock},
	OpExitBlock:      {"EXIT_BLOCK", ArgNone},
	OpExceptionMatch: {"EXCEPTION_MATCH", ArgNone},
	OpRaise:          {"RAISE", ArgNone},
	OpReRaise:        {"RE_RAISE", ArgNone},
	OpPopException:   {"POP_EXCEPTION", ArgNone},

	OpMakeFunction:   {"MAKE_FUNCTION", ArgFunc},
	OpBeginClass:     {"BEGIN_CLASS", ArgName},
	OpStoreClassAttr: {"STORE_CLASS_ATTR", ArgName},
	OpEndClass:       {"END_CLASS", ArgNone},
	OpImportName:     {"IMPORT_NAME", ArgName},

	OpCall:        {"CALL", ArgCall},
	OpReturnValue: {"RETURN_VALUE", ArgNone},
	OpYieldValue:  {"YIELD_VALUE", ArgNone},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// CallArg packs the operand of OpCall.
func CallArg(argc, kwargc int) int {
	return argc | kwargc<<16
}
