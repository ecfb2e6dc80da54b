package asm

import "strings"

// Reg numbers the sixteen x86-64 general-purpose registers in hardware
// encoding order.
type Reg uint8

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var reg64Names = [...]string{
	RAX: "rax", RCX: "rcx", RDX: "rdx", RBX: "rbx",
	RSP: "rsp", RBP: "rbp", RSI: "rsi", RDI: "rdi",
	R8: "r8", R9: "r9", R10: "r10", R11: "r11",
	R12: "r12", R13: "r13", R14: "r14", R15: "r15",
}

var reg8Names = [...]string{
	RAX: "al", RCX: "cl", RDX: "dl", RBX: "bl",
	RSP: "spl", RBP: "bpl", RSI: "sil", RDI: "dil",
	R8: "r8b", R9: "r9b", R10: "r10b", R11: "r11b",
	R12: "r12b", R13: "r13b", R14: "r14b", R15: "r15b",
}

func (r Reg) String() string {
	if int(r) < len(reg64Names) {
		return reg64Names[r]
	}
	return "?"
}

type regInfo struct {
	reg  Reg
	size int // width in bytes
}

// registerNames maps every accepted spelling to its register and width.
var registerNames = func() map[string]regInfo {
	m := make(map[string]regInfo, len(reg64Names)+len(reg8Names))
	for i, name := range reg64Names {
		m[name] = regInfo{Reg(i), 8}
	}
	for i, name := range reg8Names {
		m[name] = regInfo{Reg(i), 1}
	}
	return m
}()

// lookupRegister returns the register spelled by name (case-insensitive).
func lookupRegister(name string) (Reg, int, bool) {
	r, ok := registerNames[strings.ToLower(name)]
	return r.reg, r.size, ok
}
