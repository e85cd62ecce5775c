package mirror

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// AssemblyFlavour is the syntax used to print disassembled code.
type AssemblyFlavour int

const (
	IntelFlavour AssemblyFlavour = iota
	GNUFlavour
	GoFlavour
)

// ParseFlavour returns the flavour named s, defaulting to Intel syntax.
func ParseFlavour(s string) AssemblyFlavour {
	switch strings.ToLower(s) {
	case "gnu", "att":
		return GNUFlavour
	case "go":
		return GoFlavour
	}
	return IntelFlavour
}

// InstructionKind classifies the instructions the bootstrap cares about.
type InstructionKind uint8

const (
	OtherInstruction InstructionKind = iota
	JmpInstruction
	CallInstruction
	RetInstruction
)

// AsmInstruction is one decoded 32-bit x86 instruction.
type AsmInstruction struct {
	PC    uint64
	Bytes []byte
	Kind  InstructionKind
	inst  *x86asm.Inst
}

// Text formats the instruction. symLookup, when not nil, names absolute
// addresses in operands.
func (inst *AsmInstruction) Text(flavour AssemblyFlavour, symLookup func(uint64) (string, uint64)) string {
	if inst.inst == nil {
		return "?"
	}
	switch flavour {
	case GNUFlavour:
		return x86asm.GNUSyntax(*inst.inst, inst.PC, symLookup)
	case GoFlavour:
		return x86asm.GoSyntax(*inst.inst, inst.PC, symLookup)
	default:
		return x86asm.IntelSyntax(*inst.inst, inst.PC, symLookup)
	}
}

// Disassemble decodes code as 32-bit x86 starting at pc. Undecodable bytes
// produce a one byte instruction with no text and decoding goes on.
func Disassemble(code []byte, pc uint64) []AsmInstruction {
	var out []AsmInstruction
	for len(code) > 0 {
		inst, err := x86asm.Decode(code, 32)
		if err != nil {
			out = append(out, AsmInstruction{PC: pc, Bytes: code[:1]})
			code = code[1:]
			pc++
			continue
		}
		patchPCRel(pc, &inst)
		ai := AsmInstruction{PC: pc, Bytes: code[:inst.Len], inst: &inst}
		switch inst.Op {
		case x86asm.JMP, x86asm.LJMP:
			ai.Kind = JmpInstruction
		case x86asm.CALL, x86asm.LCALL:
			ai.Kind = CallInstruction
		case x86asm.RET, x86asm.LRET:
			ai.Kind = RetInstruction
		}
		out = append(out, ai)
		code = code[inst.Len:]
		pc += uint64(inst.Len)
	}
	return out
}

// patchPCRel converts PC relative arguments to absolute addresses.
func patchPCRel(pc uint64, inst *x86asm.Inst) {
	for i := range inst.Args {
		rel, isrel := inst.Args[i].(x86asm.Rel)
		if isrel {
			inst.Args[i] = x86asm.Imm(int64(pc) + int64(rel) + int64(inst.Len))
		}
	}
}

// formatCode returns a one line Intel syntax rendition of code.
func formatCode(code []byte, pc uint64) string {
	insts := Disassemble(code, pc)
	text := make([]string, len(insts))
	for i := range insts {
		if insts[i].inst == nil {
			text[i] = fmt.Sprintf("(bad %#02x)", insts[i].Bytes[0])
			continue
		}
		text[i] = insts[i].Text(IntelFlavour, nil)
	}
	return strings.Join(text, "; ")
}
