package compiler

import (
	"fmt"
	"strings"
)

// registers is the virtual operand stack. r12..r15 are callee-saved and
// spilled in the prologue; r10 and r11 are scratch.
var registers = [...]string{"r10", "r11", "r12", "r13", "r14", "r15"}

// calleeSaved lists the pool registers the routine must restore, in spill
// order. Slot i lives at [rbp-8*(i+1)].
var calleeSaved = [...]string{"r12", "r13", "r14", "r15"}

const returnLabel = ".L.return"

// CodeGen walks a Program and emits x86-64 assembly in Intel syntax.
// The register cursor and label counter are private to one Generate call.
type CodeGen struct {
	prog      *Program
	out       strings.Builder
	top       int // number of live registers on the virtual stack
	nextLabel int
}

func newCodeGen(prog *Program) *CodeGen {
	return &CodeGen{prog: prog, nextLabel: 1}
}

func (cg *CodeGen) newLabel() int {
	seq := cg.nextLabel
	cg.nextLabel++
	return seq
}

func (cg *CodeGen) line(format string, args ...any) {
	fmt.Fprintf(&cg.out, format+"\n", args...)
}

func (cg *CodeGen) comment(format string, args ...any) {
	cg.line("    # "+format, args...)
}

func (cg *CodeGen) errorAt(node interface{ Pos() Token }, format string, args ...any) error {
	return errorAt(CodegenError, cg.prog.Src, node.Pos().Loc, format, args...)
}

// push claims the next register for node's value.
func (cg *CodeGen) push(node Expr) (string, error) {
	if cg.top >= len(registers) {
		return "", cg.errorAt(node, "expression too complex: needs more than %d registers", len(registers))
	}
	r := registers[cg.top]
	cg.top++
	return r, nil
}

// pop releases the top register and returns its name.
func (cg *CodeGen) pop(node interface{ Pos() Token }) (string, error) {
	if cg.top <= 0 {
		return "", cg.errorAt(node, "register stack underflow")
	}
	cg.top--
	return registers[cg.top], nil
}

// reg returns the register i slots below the top (0 is the top).
func (cg *CodeGen) reg(i int) string {
	return registers[cg.top-1-i]
}

// genAddr pushes the frame address of ref.
func (cg *CodeGen) genAddr(ref *VarRef) error {
	r, err := cg.push(ref)
	if err != nil {
		return err
	}
	cg.line("    lea %s, [rbp-%d]", r, ref.Var.Offset)
	return nil
}

// load replaces the address on top of the stack with the value it points to.
func (cg *CodeGen) load() {
	r := cg.reg(0)
	cg.line("    mov %s, [%s]", r, r)
}

// store writes the second register through the address on top and drops
// the address, leaving the stored value as the result.
func (cg *CodeGen) store(node Expr) error {
	addr, val := cg.reg(0), cg.reg(1)
	cg.line("    mov [%s], %s", addr, val)
	_, err := cg.pop(node)
	return err
}

func (cg *CodeGen) genExpr(e Expr) error {
	switch n := e.(type) {
	case *NumLit:
		r, err := cg.push(n)
		if err != nil {
			return err
		}
		cg.line("    mov %s, %d", r, n.Value)
		return nil

	case *VarRef:
		if err := cg.genAddr(n); err != nil {
			return err
		}
		cg.load()
		return nil

	case *AssignExpr:
		if err := cg.genExpr(n.Value); err != nil {
			return err
		}
		if err := cg.genAddr(n.Target); err != nil {
			return err
		}
		return cg.store(n)

	case *BinaryExpr:
		return cg.genBinary(n)
	}
	if e == nil {
		return errorAt(CodegenError, cg.prog.Src, -1, "missing expression")
	}
	return cg.errorAt(e, "invalid expression %T", e)
}

// genBinary evaluates Left then Right and combines them into Left's register.
func (cg *CodeGen) genBinary(n *BinaryExpr) error {
	if err := cg.genExpr(n.Left); err != nil {
		return err
	}
	if err := cg.genExpr(n.Right); err != nil {
		return err
	}

	rd, rs := cg.reg(1), cg.reg(0)
	if _, err := cg.pop(n); err != nil {
		return err
	}

	switch n.Op {
	case Add:
		cg.line("    add %s, %s", rd, rs)
	case Sub:
		cg.line("    sub %s, %s", rd, rs)
	case Mul:
		cg.line("    imul %s, %s", rd, rs)
	case Div:
		cg.line("    mov rax, %s", rd)
		cg.line("    cqo")
		cg.line("    idiv %s", rs)
		cg.line("    mov %s, rax", rd)
	case Eq, Ne, Lt, Le:
		cg.line("    cmp %s, %s", rd, rs)
		cg.line("    %s al", setcc[n.Op])
		cg.line("    movzb %s, al", rd)
	default:
		return cg.errorAt(n, "invalid operator %s", n.Op)
	}
	return nil
}

var setcc = map[BinOp]string{
	Eq: "sete",
	Ne: "setne",
	Lt: "setl",
	Le: "setle",
}

// genCond evaluates cond and branches to label when it is zero.
func (cg *CodeGen) genCond(cond Expr, label string) error {
	if err := cg.genExpr(cond); err != nil {
		return err
	}
	r, err := cg.pop(cond)
	if err != nil {
		return err
	}
	cg.line("    cmp %s, 0", r)
	cg.line("    je  %s", label)
	return nil
}

func (cg *CodeGen) genStmt(s Stmt) error {
	switch n := s.(type) {
	case *ExprStmt:
		if err := cg.genExpr(n.Expr); err != nil {
			return err
		}
		_, err := cg.pop(n)
		return err

	case *ReturnStmt:
		if err := cg.genExpr(n.Expr); err != nil {
			return err
		}
		r, err := cg.pop(n)
		if err != nil {
			return err
		}
		cg.line("    mov rax, %s", r)
		cg.line("    jmp %s", returnLabel)
		return nil

	case *IfStmt:
		seq := cg.newLabel()
		end := fmt.Sprintf(".L.end.%d", seq)
		if n.Else == nil {
			if err := cg.genCond(n.Cond, end); err != nil {
				return err
			}
			if err := cg.genStmt(n.Then); err != nil {
				return err
			}
			cg.line("%s:", end)
			return nil
		}

		els := fmt.Sprintf(".L.else.%d", seq)
		if err := cg.genCond(n.Cond, els); err != nil {
			return err
		}
		if err := cg.genStmt(n.Then); err != nil {
			return err
		}
		cg.line("    jmp %s", end)
		cg.line("%s:", els)
		if err := cg.genStmt(n.Else); err != nil {
			return err
		}
		cg.line("%s:", end)
		return nil

	case *ForStmt:
		seq := cg.newLabel()
		begin := fmt.Sprintf(".L.begin.%d", seq)
		end := fmt.Sprintf(".L.end.%d", seq)
		if n.Init != nil {
			if err := cg.genStmt(n.Init); err != nil {
				return err
			}
		}
		cg.line("%s:", begin)
		if n.Cond != nil {
			if err := cg.genCond(n.Cond, end); err != nil {
				return err
			}
		}
		if err := cg.genStmt(n.Body); err != nil {
			return err
		}
		if n.Inc != nil {
			if err := cg.genStmt(n.Inc); err != nil {
				return err
			}
		}
		cg.line("    jmp %s", begin)
		cg.line("%s:", end)
		return nil

	case *BlockStmt:
		for _, child := range n.Stmts {
			if err := cg.genStmt(child); err != nil {
				return err
			}
		}
		return nil
	}
	if s == nil {
		return errorAt(CodegenError, cg.prog.Src, -1, "missing statement")
	}
	return cg.errorAt(s, "invalid statement %T", s)
}

func (cg *CodeGen) prologue() {
	cg.line(".intel_syntax noprefix")
	cg.line(".globl main")
	cg.line("main:")
	cg.line("    push rbp")
	cg.line("    mov rbp, rsp")
	cg.line("    sub rsp, %d", cg.prog.StackSize)
	for i, r := range calleeSaved {
		cg.line("    mov [rbp-%d], %s", (i+1)*wordSize, r)
	}
}

func (cg *CodeGen) epilogue() {
	cg.line("%s:", returnLabel)
	for i, r := range calleeSaved {
		cg.line("    mov %s, [rbp-%d]", r, (i+1)*wordSize)
	}
	cg.line("    mov rsp, rbp")
	cg.line("    pop rbp")
	cg.line("    ret")
}

// Generate emits the assembly for prog. It fails with a *Error of kind
// CodegenError only when an internal invariant breaks: an unknown node,
// a variable outside the frame, or an expression deeper than the register
// pool.
func Generate(prog *Program) (string, error) {
	if err := verifyProgram(prog); err != nil {
		return "", err
	}

	cg := newCodeGen(prog)
	cg.prologue()
	for _, s := range prog.Body {
		cg.comment("%s", s)
		if err := cg.genStmt(s); err != nil {
			return "", err
		}
		if cg.top != 0 {
			return "", cg.errorAt(s, "register stack not empty after statement (depth %d)", cg.top)
		}
	}
	cg.epilogue()
	return cg.out.String(), nil
}
