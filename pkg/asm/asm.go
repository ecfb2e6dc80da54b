// Package asm parses the x86-64 Intel-syntax subset emitted by the orecc
// code generator into a resolved instruction list that pkg/cpu can execute.
package asm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// operandMask is a set of operand shapes an instruction slot accepts.
type operandMask uint8

const (
	maskReg64 operandMask = 1 << iota
	maskReg8
	maskImm
	maskMem
)

var zeroOperandOps = map[string]bool{
	"ret": true,
	"cqo": true,
	"nop": true,
}

var oneOperandOps = map[string]operandMask{
	"push":  maskReg64 | maskImm,
	"pop":   maskReg64,
	"idiv":  maskReg64,
	"neg":   maskReg64,
	"sete":  maskReg8,
	"setne": maskReg8,
	"setl":  maskReg8,
	"setle": maskReg8,
	"setg":  maskReg8,
	"setge": maskReg8,
}

var twoOperandOps = map[string][2]operandMask{
	"mov":   {maskReg64 | maskReg8 | maskMem, maskReg64 | maskReg8 | maskImm | maskMem},
	"lea":   {maskReg64, maskMem},
	"add":   {maskReg64, maskReg64 | maskImm | maskMem},
	"sub":   {maskReg64, maskReg64 | maskImm | maskMem},
	"imul":  {maskReg64, maskReg64 | maskMem},
	"cmp":   {maskReg64 | maskMem, maskReg64 | maskImm},
	"movzb": {maskReg64, maskReg8},
	"movzx": {maskReg64, maskReg8},
}

var jumpOps = map[string]bool{
	"jmp": true,
	"je":  true,
	"jne": true,
	"jl":  true,
	"jle": true,
	"jg":  true,
	"jge": true,
}

// OperandKind identifies the shape of an Operand.
type OperandKind int

const (
	Register OperandKind = iota
	Immediate
	Memory   // [Reg + Imm]
	LabelRef // jump target
)

// Operand is one decoded instruction argument.
type Operand struct {
	Kind   OperandKind
	Reg    Reg    // Register, or the base of Memory
	Size   int    // width in bytes of a Register operand
	Imm    int64  // Immediate value, or Memory displacement
	Label  string // LabelRef name
	Target int    // LabelRef instruction index
}

func (o Operand) mask() operandMask {
	switch o.Kind {
	case Register:
		if o.Size == 1 {
			return maskReg8
		}
		return maskReg64
	case Immediate:
		return maskImm
	case Memory:
		return maskMem
	}
	return 0
}

func (o Operand) String() string {
	switch o.Kind {
	case Register:
		if o.Size == 1 {
			return reg8Names[o.Reg]
		}
		return o.Reg.String()
	case Immediate:
		return strconv.FormatInt(o.Imm, 10)
	case Memory:
		switch {
		case o.Imm > 0:
			return fmt.Sprintf("[%s+%d]", o.Reg, o.Imm)
		case o.Imm < 0:
			return fmt.Sprintf("[%s%d]", o.Reg, o.Imm)
		}
		return fmt.Sprintf("[%s]", o.Reg)
	case LabelRef:
		return o.Label
	}
	return "?"
}

// Instruction is a decoded mnemonic with its operands and source line.
type Instruction struct {
	Mnemonic string
	Args     []Operand
	Line     int
}

func (in Instruction) String() string {
	if len(in.Args) == 0 {
		return in.Mnemonic
	}
	args := make([]string, len(in.Args))
	for i, a := range in.Args {
		args[i] = a.String()
	}
	return in.Mnemonic + " " + strings.Join(args, ", ")
}

// Program is an assembled translation unit. Labels map to the index of the
// instruction that follows them.
type Program struct {
	Instrs  []Instruction
	Labels  map[string]int
	Globals []string
}

// Entry returns the instruction index of the global symbol name.
func (p *Program) Entry(name string) (int, error) {
	global := false
	for _, g := range p.Globals {
		if g == name {
			global = true
			break
		}
	}
	if !global {
		return 0, fmt.Errorf("symbol '%s' is not declared global", name)
	}
	idx, ok := p.Labels[name]
	if !ok {
		return 0, fmt.Errorf("global symbol '%s' is not defined", name)
	}
	return idx, nil
}

type Assembler struct {
	labels  map[string]int
	globals []string
	intel   bool // .intel_syntax noprefix seen
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

func NewAssembler() *Assembler {
	return &Assembler{
		labels: make(map[string]int),
	}
}

// Assemble parses code and resolves every jump target.
func Assemble(code string) (*Program, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) (*Program, error) {
	lines := strings.Split(code, "\n")

	pending, err := a.pass1(lines)
	if err != nil {
		return nil, err
	}
	return a.pass2(pending)
}

// pass1 records label positions and directives and returns the lines that
// hold instructions.
func (a *Assembler) pass1(lines []string) ([]parsedLine, error) {
	var pending []parsedLine

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return nil, err
		}

		for _, lbl := range p.labels {
			if _, exists := a.labels[lbl]; exists {
				return nil, fmt.Errorf("duplicate label '%s' on line %d", lbl, lineNo)
			}
			a.labels[lbl] = len(pending)
		}

		if p.mnemonic == "" {
			continue
		}

		if strings.HasPrefix(p.mnemonic, ".") {
			if err := a.directive(p); err != nil {
				return nil, err
			}
			continue
		}

		if !a.intel {
			return nil, fmt.Errorf("instruction before .intel_syntax noprefix on line %d", lineNo)
		}
		pending = append(pending, p)
	}

	return pending, nil
}

func (a *Assembler) directive(p parsedLine) error {
	switch p.mnemonic {
	case ".intel_syntax":
		if len(p.operands) != 1 || strings.ToLower(p.operands[0]) != "noprefix" {
			return fmt.Errorf(".intel_syntax expects noprefix on line %d", p.lineNo)
		}
		a.intel = true
	case ".att_syntax":
		return fmt.Errorf("AT&T syntax is not supported (line %d)", p.lineNo)
	case ".globl", ".global":
		if len(p.operands) != 1 || !isIdentifier(p.operands[0]) {
			return fmt.Errorf("%s expects one symbol on line %d", p.mnemonic, p.lineNo)
		}
		a.globals = append(a.globals, p.operands[0])
	case ".text":
		if len(p.operands) != 0 {
			return fmt.Errorf(".text takes no operands on line %d", p.lineNo)
		}
	default:
		return fmt.Errorf("unknown directive %s on line %d", p.mnemonic, p.lineNo)
	}
	return nil
}

func (a *Assembler) pass2(pending []parsedLine) (*Program, error) {
	prog := &Program{
		Instrs:  make([]Instruction, 0, len(pending)),
		Labels:  a.labels,
		Globals: a.globals,
	}

	for _, g := range a.globals {
		if _, ok := a.labels[g]; !ok {
			return nil, fmt.Errorf("global symbol '%s' is not defined", g)
		}
	}

	for _, p := range pending {
		in, err := a.decode(p)
		if err != nil {
			return nil, err
		}
		prog.Instrs = append(prog.Instrs, in)
	}
	return prog, nil
}

// decode parses and validates the operands of one instruction line.
func (a *Assembler) decode(p parsedLine) (Instruction, error) {
	in := Instruction{Mnemonic: p.mnemonic, Line: p.lineNo}
	ops := p.operands

	if zeroOperandOps[p.mnemonic] {
		if len(ops) != 0 {
			return in, fmt.Errorf("%s expects 0 operands on line %d", p.mnemonic, p.lineNo)
		}
		return in, nil
	}

	if jumpOps[p.mnemonic] {
		if len(ops) != 1 {
			return in, fmt.Errorf("%s expects 1 operand on line %d", p.mnemonic, p.lineNo)
		}
		target, ok := a.labels[ops[0]]
		if !ok {
			if isIdentifier(ops[0]) {
				return in, fmt.Errorf("undefined label '%s' on line %d", ops[0], p.lineNo)
			}
			return in, fmt.Errorf("invalid jump target '%s' on line %d", ops[0], p.lineNo)
		}
		in.Args = []Operand{{Kind: LabelRef, Label: ops[0], Target: target}}
		return in, nil
	}

	var masks []operandMask
	if m, ok := oneOperandOps[p.mnemonic]; ok {
		masks = []operandMask{m}
	} else if m, ok := twoOperandOps[p.mnemonic]; ok {
		masks = m[:]
	} else {
		return in, fmt.Errorf("unknown instruction on line %d: %s", p.lineNo, p.mnemonic)
	}

	if len(ops) != len(masks) {
		return in, fmt.Errorf("%s expects %d operand(s) on line %d", p.mnemonic, len(masks), p.lineNo)
	}

	for i, tok := range ops {
		op, err := parseOperand(tok, p.lineNo)
		if err != nil {
			return in, err
		}
		if op.mask()&masks[i] == 0 {
			return in, fmt.Errorf("invalid operand '%s' for %s on line %d", tok, p.mnemonic, p.lineNo)
		}
		in.Args = append(in.Args, op)
	}

	return in, validateForm(in)
}

// validateForm rejects operand combinations x86-64 cannot encode.
func validateForm(in Instruction) error {
	if len(in.Args) != 2 {
		if len(in.Args) == 1 && in.Args[0].Kind == Immediate && !fitsInt32(in.Args[0].Imm) {
			return fmt.Errorf("immediate out of range for %s on line %d", in.Mnemonic, in.Line)
		}
		return nil
	}
	dst, src := in.Args[0], in.Args[1]
	if dst.Kind == Memory && src.Kind == Memory {
		return fmt.Errorf("%s cannot take two memory operands on line %d", in.Mnemonic, in.Line)
	}
	if dst.Kind == Register && src.Kind == Register && in.Mnemonic == "mov" && dst.Size != src.Size {
		return fmt.Errorf("operand size mismatch for mov on line %d", in.Line)
	}
	if src.Kind == Immediate && !fitsInt32(src.Imm) {
		// Only mov reg64, imm64 has a full-width immediate form.
		if !(in.Mnemonic == "mov" && dst.Kind == Register && dst.Size == 8) {
			return fmt.Errorf("immediate out of range for %s on line %d", in.Mnemonic, in.Line)
		}
	}
	return nil
}

func fitsInt32(v int64) bool {
	return v >= -1<<31 && v < 1<<31
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return p, nil
	}

	for {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}

		beforeColon := strings.TrimSpace(line[:colon])
		if strings.ContainsAny(beforeColon, " \t[") {
			break
		}

		if !isIdentifier(beforeColon) {
			return p, fmt.Errorf("invalid label '%s' on line %d", beforeColon, lineNo)
		}

		p.labels = append(p.labels, beforeColon)
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return p, nil
		}
	}

	mnemonic, rest := line, ""
	if sp := strings.IndexAny(line, " \t"); sp >= 0 {
		mnemonic, rest = line[:sp], strings.TrimSpace(line[sp+1:])
	}
	p.mnemonic = strings.ToLower(mnemonic)

	if rest == "" {
		return p, nil
	}
	for _, op := range strings.Split(rest, ",") {
		op = strings.TrimSpace(op)
		if op == "" {
			return p, fmt.Errorf("empty operand on line %d", lineNo)
		}
		p.operands = append(p.operands, op)
	}
	return p, nil
}

// stripComments drops everything from '#' on, the GNU as x86 comment
// character.
func stripComments(line string) string {
	if cut := strings.IndexByte(line, '#'); cut >= 0 {
		return line[:cut]
	}
	return line
}

func parseOperand(tok string, lineNo int) (Operand, error) {
	lower := strings.ToLower(tok)
	for _, prefix := range []string{"qword ptr", "byte ptr"} {
		if strings.HasPrefix(lower, prefix) {
			tok = strings.TrimSpace(tok[len(prefix):])
			break
		}
	}

	if strings.HasPrefix(tok, "[") {
		if !strings.HasSuffix(tok, "]") {
			return Operand{}, fmt.Errorf("unterminated memory operand '%s' on line %d", tok, lineNo)
		}
		return parseMemory(tok[1:len(tok)-1], lineNo)
	}

	if reg, size, ok := lookupRegister(tok); ok {
		return Operand{Kind: Register, Reg: reg, Size: size}, nil
	}

	if v, ok := parseInteger(tok); ok {
		return Operand{Kind: Immediate, Imm: v}, nil
	}

	return Operand{}, fmt.Errorf("invalid operand '%s' on line %d", tok, lineNo)
}

// parseMemory decodes "base", "base+disp" or "base-disp".
func parseMemory(inner string, lineNo int) (Operand, error) {
	inner = strings.TrimSpace(inner)
	split := strings.IndexAny(inner, "+-")
	baseText, dispText := inner, ""
	if split > 0 {
		baseText, dispText = strings.TrimSpace(inner[:split]), strings.TrimSpace(inner[split:])
	}

	reg, size, ok := lookupRegister(baseText)
	if !ok || size != 8 {
		return Operand{}, fmt.Errorf("invalid base register '%s' on line %d", baseText, lineNo)
	}

	op := Operand{Kind: Memory, Reg: reg}
	if dispText != "" {
		sign := int64(1)
		if dispText[0] == '-' {
			sign = -1
		}
		v, ok := parseInteger(strings.TrimSpace(dispText[1:]))
		if !ok || !fitsInt32(v) {
			return Operand{}, fmt.Errorf("invalid displacement '%s' on line %d", dispText, lineNo)
		}
		op.Imm = sign * v
	}
	return op, nil
}

// parseInteger accepts signed decimal or 0x-prefixed integers. Values up to
// 2^64-1 are accepted and reinterpreted as two's complement.
func parseInteger(tok string) (int64, bool) {
	if v, err := strconv.ParseInt(tok, 0, 64); err == nil {
		return v, true
	}
	if v, err := strconv.ParseUint(tok, 0, 64); err == nil {
		return int64(v), true
	}
	return 0, false
}

// isIdentifier reports whether s is a valid symbol name. GNU as allows '.'
// and '$' in addition to letters, digits and '_'.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' && r != '.' {
				return false
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' && r != '$' {
			return false
		}
	}

	return true
}
