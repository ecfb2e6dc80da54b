package compiler

import (
	"fmt"
	"strings"
)

const (
	// wordSize is the storage every variable gets in the frame.
	wordSize = 8
	// calleeSavedArea holds the spilled r12..r15, directly below the frame base.
	calleeSavedArea = 4 * wordSize
	// frameAlign is the stack alignment the SysV ABI requires at call boundaries.
	frameAlign = 16
)

// Var is a local variable. Offset is the distance in bytes below rbp and is
// zero until the frame is laid out.
type Var struct {
	Name   string
	Offset int
}

// SymbolTable is the single flat scope of the entry routine. Variables are
// declared on first use and never shadowed.
type SymbolTable struct {
	// locals is kept most-recently-declared first.
	locals []*Var
	byName map[string]*Var
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{byName: make(map[string]*Var)}
}

// Lookup returns the variable called name and whether it exists.
func (s *SymbolTable) Lookup(name string) (*Var, bool) {
	v, ok := s.byName[name]
	return v, ok
}

// Declare returns the variable called name, creating it if needed.
// The boolean reports whether it already existed.
func (s *SymbolTable) Declare(name string) (*Var, bool) {
	if v, ok := s.byName[name]; ok {
		return v, true
	}
	v := &Var{Name: name}
	s.locals = append([]*Var{v}, s.locals...)
	s.byName[name] = v
	return v, false
}

// Locals returns the declared variables, most recent first.
func (s *SymbolTable) Locals() []*Var {
	return s.locals
}

func (s *SymbolTable) Len() int {
	return len(s.locals)
}

// Program is the parsed entry routine with its frame laid out. Src is the
// source it was parsed from, kept for positioned diagnostics.
type Program struct {
	Body      []Stmt
	Locals    []*Var
	StackSize int
	Src       string
}

func alignTo(n, align int) int {
	return (n + align - 1) / align * align
}

// layoutFrame assigns every variable a distinct slot below the callee-saved
// area and returns the 16-byte aligned frame size.
func layoutFrame(locals []*Var) int {
	offset := calleeSavedArea
	for _, v := range locals {
		offset += wordSize
		v.Offset = offset
	}
	return alignTo(offset, frameAlign)
}

func newProgram(body []Stmt, syms *SymbolTable, src string) *Program {
	locals := syms.Locals()
	return &Program{
		Body:      body,
		Locals:    locals,
		StackSize: layoutFrame(locals),
		Src:       src,
	}
}

// String returns a dump of the statements and the frame layout.
func (p *Program) String() string {
	var sb strings.Builder
	sb.WriteString("Body:\n")
	for _, s := range p.Body {
		fmt.Fprintf(&sb, "  %s\n", s)
	}
	if len(p.Locals) == 0 {
		sb.WriteString("Locals: (empty)\n")
	} else {
		sb.WriteString("Locals:\n")
		for _, v := range p.Locals {
			fmt.Fprintf(&sb, "  %-20s  [rbp-%d]\n", v.Name, v.Offset)
		}
	}
	fmt.Fprintf(&sb, "Stack size: %d\n", p.StackSize)
	return sb.String()
}
