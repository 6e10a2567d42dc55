package vm

import (
	"fmt"
	"strings"
)

// DisassembleInstruction renders the instruction at ip.
func (c *Code) DisassembleInstruction(ip int) string {
	in := c.Instrs[ip]
	info := in.Op.Info()
	a := in.Arg

	var operand string
	switch info.Arg {
	case ArgNone:
	case ArgConst, ArgFunc:
		operand = fmt.Sprintf("%d", a)
		if int(a) < len(c.Consts) {
			operand += " (" + c.Consts[a].String() + ")"
		}
	case ArgName:
		operand = fmt.Sprintf("%d", a)
		if int(a) < len(c.Names) {
			operand += " (" + c.Names[a] + ")"
		}
	case ArgJump:
		operand = fmt.Sprintf("-> %04d", a)
	case ArgBlock:
		operand = fmt.Sprintf("%d", a)
		if int(a) < len(c.Blocks) {
			operand += " (" + c.Blocks[a].Kind.String() + ")"
		}
	case ArgBinOp:
		operand = BinOp(a).String()
	case ArgCall:
		operand = fmt.Sprintf("argc=%d kwargc=%d", a&0xFFFF, a>>16)
	default:
		operand = fmt.Sprintf("%d", a)
	}

	line := "    "
	if in.Line > 0 {
		line = fmt.Sprintf("%4d", in.Line)
	}
	if operand == "" {
		return fmt.Sprintf("%s %04d  %s", line, ip, info.Name)
	}
	return fmt.Sprintf("%s %04d  %-20s %s", line, ip, info.Name, operand)
}

// Disassemble returns a listing of c followed by the listings of the
// function bodies in its constant pool.
func (c *Code) Disassemble() string {
	var sb strings.Builder
	c.disassemble(&sb, make(map[*Code]bool))
	return sb.String()
}

func (c *Code) disassemble(sb *strings.Builder, seen map[*Code]bool) {
	if seen[c] {
		return
	}
	seen[c] = true

	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	fmt.Fprintf(sb, "== %s", c.Name)
	if c.Filename != "" {
		fmt.Fprintf(sb, " (%s)", c.Filename)
	}
	if c.IsGenerator {
		sb.WriteString(" generator")
	}
	sb.WriteString(" ==\n")
	for ip := range c.Instrs {
		sb.WriteString(c.DisassembleInstruction(ip))
		sb.WriteString("\n")
	}
	for i, b := range c.Blocks {
		fmt.Fprintf(sb, "  block %d: %s [%04d, %04d)", i, b.Kind, b.Start, b.End)
		if b.Kind == BlockTry {
			fmt.Fprintf(sb, " handler %04d", b.Handler)
		}
		if b.Parent >= 0 {
			fmt.Fprintf(sb, " parent %d", b.Parent)
		}
		sb.WriteString("\n")
	}
	for _, k := range c.Consts {
		if k.Kind == ConstFunc && k.Func != nil && k.Func.Code != nil {
			k.Func.Code.disassemble(sb, seen)
		}
	}
}
