package cpu

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"orecc/pkg/asm"
)

const (
	// StackSize is the number of bytes of addressable stack.
	StackSize = 64 * 1024
	// StackTop is the initial rsp; the stack grows down from here.
	StackTop uint64 = 0x7fff_0000
	// StackBase is the lowest valid stack address.
	StackBase = StackTop - StackSize

	// DefaultMaxSteps bounds Run when no explicit limit is given.
	DefaultMaxSteps = 1_000_000

	// returnSentinel is the return address pushed before entry. Returning
	// to it ends the run.
	returnSentinel uint64 = 0xfeed_face_cafe_0000
)

// calleeSaved are the registers a SysV routine must hand back unchanged.
var calleeSaved = []asm.Reg{asm.RBX, asm.RBP, asm.R12, asm.R13, asm.R14, asm.R15}

// Fault is a run-time error raised by an instruction.
type Fault struct {
	PC    int
	Line  int
	Instr string
	Msg   string
}

func (f *Fault) Error() string {
	if f.Instr == "" {
		return fmt.Sprintf("fault: %s", f.Msg)
	}
	return fmt.Sprintf("fault at line %d (%s): %s", f.Line, f.Instr, f.Msg)
}

// CPU executes an assembled program against a private stack.
type CPU struct {
	Regs [16]uint64

	ZF bool
	SF bool
	OF bool
	CF bool

	Stack [StackSize]byte

	PC     int
	Halted bool
	Steps  int

	// Trace, when set, receives one line per executed instruction.
	Trace io.Writer

	prog  *asm.Program
	seeds [16]uint64
}

func NewCPU(prog *asm.Program) *CPU {
	c := &CPU{prog: prog}
	for i, r := range calleeSaved {
		c.seeds[r] = 0x5a5a_0000_0000_0000 | uint64(i+1)<<8 | uint64(r)
	}
	return c
}

// Start resets the machine and positions it at the global symbol name, as
// if it had just been called.
func (c *CPU) Start(name string) error {
	entry, err := c.prog.Entry(name)
	if err != nil {
		return err
	}

	c.Regs = c.seeds
	c.Regs[asm.RSP] = StackTop
	c.ZF, c.SF, c.OF, c.CF = false, false, false, false
	c.Halted = false
	c.Steps = 0
	c.PC = entry

	return c.push(returnSentinel)
}

func (c *CPU) fault(format string, args ...any) *Fault {
	f := &Fault{PC: c.PC, Msg: fmt.Sprintf(format, args...)}
	if c.PC >= 0 && c.PC < len(c.prog.Instrs) {
		in := c.prog.Instrs[c.PC]
		f.Line, f.Instr = in.Line, in.String()
	}
	return f
}

func (c *CPU) Read64(addr uint64) (uint64, error) {
	if addr < StackBase || addr > StackTop-8 {
		return 0, c.fault("read of 0x%x outside the stack", addr)
	}
	off := addr - StackBase
	return binary.LittleEndian.Uint64(c.Stack[off : off+8]), nil
}

func (c *CPU) Write64(addr uint64, val uint64) error {
	if addr < StackBase || addr > StackTop-8 {
		return c.fault("write of 0x%x outside the stack", addr)
	}
	off := addr - StackBase
	binary.LittleEndian.PutUint64(c.Stack[off:off+8], val)
	return nil
}

func (c *CPU) Read8(addr uint64) (byte, error) {
	if addr < StackBase || addr >= StackTop {
		return 0, c.fault("read of 0x%x outside the stack", addr)
	}
	return c.Stack[addr-StackBase], nil
}

func (c *CPU) Write8(addr uint64, val byte) error {
	if addr < StackBase || addr >= StackTop {
		return c.fault("write of 0x%x outside the stack", addr)
	}
	c.Stack[addr-StackBase] = val
	return nil
}

func (c *CPU) push(val uint64) error {
	c.Regs[asm.RSP] -= 8
	return c.Write64(c.Regs[asm.RSP], val)
}

func (c *CPU) pop() (uint64, error) {
	val, err := c.Read64(c.Regs[asm.RSP])
	if err != nil {
		return 0, err
	}
	c.Regs[asm.RSP] += 8
	return val, nil
}

// effective returns the address a Memory operand names.
func (c *CPU) effective(op asm.Operand) uint64 {
	return c.Regs[op.Reg] + uint64(op.Imm)
}

// load reads op at the given width in bytes.
func (c *CPU) load(op asm.Operand, size int) (uint64, error) {
	switch op.Kind {
	case asm.Register:
		if op.Size == 1 {
			return c.Regs[op.Reg] & 0xff, nil
		}
		return c.Regs[op.Reg], nil
	case asm.Immediate:
		return uint64(op.Imm), nil
	case asm.Memory:
		if size == 1 {
			b, err := c.Read8(c.effective(op))
			return uint64(b), err
		}
		return c.Read64(c.effective(op))
	}
	return 0, c.fault("operand %s is not readable", op)
}

// store writes val to op at the given width; byte registers keep their upper
// bits.
func (c *CPU) store(op asm.Operand, size int, val uint64) error {
	switch op.Kind {
	case asm.Register:
		if op.Size == 1 {
			c.Regs[op.Reg] = c.Regs[op.Reg]&^0xff | val&0xff
			return nil
		}
		c.Regs[op.Reg] = val
		return nil
	case asm.Memory:
		if size == 1 {
			return c.Write8(c.effective(op), byte(val))
		}
		return c.Write64(c.effective(op), val)
	}
	return c.fault("operand %s is not writable", op)
}

// width is the access size of an instruction's data operands.
func width(args []asm.Operand) int {
	for _, a := range args {
		if a.Kind == asm.Register {
			return a.Size
		}
	}
	return 8
}

func (c *CPU) updateFlags(result uint64) {
	c.ZF = result == 0
	c.SF = int64(result) < 0
}

func (c *CPU) flagsAdd(a, b uint64) uint64 {
	res := a + b
	c.CF = res < a
	c.OF = (int64(a) < 0) == (int64(b) < 0) && (int64(res) < 0) != (int64(a) < 0)
	c.updateFlags(res)
	return res
}

func (c *CPU) flagsSub(a, b uint64) uint64 {
	res := a - b
	c.CF = a < b
	c.OF = (int64(a) < 0) != (int64(b) < 0) && (int64(res) < 0) != (int64(a) < 0)
	c.updateFlags(res)
	return res
}

func (c *CPU) condition(mnemonic string) bool {
	switch mnemonic {
	case "je", "sete":
		return c.ZF
	case "jne", "setne":
		return !c.ZF
	case "jl", "setl":
		return c.SF != c.OF
	case "jle", "setle":
		return c.ZF || c.SF != c.OF
	case "jg", "setg":
		return !c.ZF && c.SF == c.OF
	case "jge", "setge":
		return c.SF == c.OF
	}
	return true
}

// ret pops the return address. Returning to the entry sentinel halts the
// machine once the calling convention has been checked.
func (c *CPU) ret() error {
	target, err := c.pop()
	if err != nil {
		return err
	}
	if target != returnSentinel {
		return c.fault("return to unknown address 0x%x", target)
	}
	if rsp := c.Regs[asm.RSP]; rsp != StackTop {
		return c.fault("rsp not restored on return: 0x%x, want 0x%x", rsp, StackTop)
	}
	for _, r := range calleeSaved {
		if c.Regs[r] != c.seeds[r] {
			return c.fault("callee-saved register %s not restored", r)
		}
	}
	c.Halted = true
	return nil
}

// Step executes one instruction.
func (c *CPU) Step() error {
	if c.Halted {
		return nil
	}
	if c.PC < 0 || c.PC >= len(c.prog.Instrs) {
		return c.fault("execution ran past the end of the program")
	}

	in := c.prog.Instrs[c.PC]
	if c.Trace != nil {
		fmt.Fprintf(c.Trace, "%5d  line %-4d %s\n", c.Steps, in.Line, in)
	}
	c.Steps++
	next := c.PC + 1
	args := in.Args

	switch in.Mnemonic {
	case "nop":
		// No operation.

	case "push":
		val, err := c.load(args[0], 8)
		if err != nil {
			return err
		}
		if err := c.push(val); err != nil {
			return err
		}

	case "pop":
		val, err := c.pop()
		if err != nil {
			return err
		}
		c.Regs[args[0].Reg] = val

	case "mov":
		size := width(args)
		val, err := c.load(args[1], size)
		if err != nil {
			return err
		}
		if err := c.store(args[0], size, val); err != nil {
			return err
		}

	case "lea":
		c.Regs[args[0].Reg] = c.effective(args[1])

	case "add", "sub", "cmp":
		a, err := c.load(args[0], 8)
		if err != nil {
			return err
		}
		b, err := c.load(args[1], 8)
		if err != nil {
			return err
		}
		var res uint64
		if in.Mnemonic == "add" {
			res = c.flagsAdd(a, b)
		} else {
			res = c.flagsSub(a, b)
		}
		if in.Mnemonic != "cmp" {
			if err := c.store(args[0], 8, res); err != nil {
				return err
			}
		}

	case "imul":
		a := int64(c.Regs[args[0].Reg])
		bv, err := c.load(args[1], 8)
		if err != nil {
			return err
		}
		b := int64(bv)
		res := a * b
		overflow := a != 0 && (res/a != b || (a == -1 && b == math.MinInt64))
		c.CF, c.OF = overflow, overflow
		c.updateFlags(uint64(res))
		c.Regs[args[0].Reg] = uint64(res)

	case "neg":
		v := c.Regs[args[0].Reg]
		res := c.flagsSub(0, v)
		c.CF = v != 0
		c.Regs[args[0].Reg] = res

	case "cqo":
		if int64(c.Regs[asm.RAX]) < 0 {
			c.Regs[asm.RDX] = math.MaxUint64
		} else {
			c.Regs[asm.RDX] = 0
		}

	case "idiv":
		if err := c.idiv(int64(c.Regs[args[0].Reg])); err != nil {
			return err
		}

	case "sete", "setne", "setl", "setle", "setg", "setge":
		var v uint64
		if c.condition(in.Mnemonic) {
			v = 1
		}
		if err := c.store(args[0], 1, v); err != nil {
			return err
		}

	case "movzb", "movzx":
		c.Regs[args[0].Reg] = c.Regs[args[1].Reg] & 0xff

	case "jmp", "je", "jne", "jl", "jle", "jg", "jge":
		if c.condition(in.Mnemonic) {
			next = args[0].Target
		}

	case "ret":
		if err := c.ret(); err != nil {
			return err
		}

	default:
		return c.fault("unsupported instruction %s", in.Mnemonic)
	}

	c.PC = next
	return nil
}

// idiv divides rdx:rax by divisor, leaving the quotient in rax and the
// remainder in rdx. Only dividends that fit in 64 bits are supported.
func (c *CPU) idiv(divisor int64) error {
	if divisor == 0 {
		return c.fault("integer divide by zero")
	}
	dividend := int64(c.Regs[asm.RAX])
	var ext uint64
	if dividend < 0 {
		ext = math.MaxUint64
	}
	if c.Regs[asm.RDX] != ext {
		return c.fault("dividend in rdx:rax is wider than 64 bits")
	}
	if dividend == math.MinInt64 && divisor == -1 {
		return c.fault("integer divide overflow")
	}
	c.Regs[asm.RAX] = uint64(dividend / divisor)
	c.Regs[asm.RDX] = uint64(dividend % divisor)
	return nil
}

// Run steps until the entry routine returns and yields the process exit
// status, the low byte of rax. maxSteps <= 0 selects DefaultMaxSteps.
func (c *CPU) Run(maxSteps int) (int, error) {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	for !c.Halted {
		if c.Steps >= maxSteps {
			return 0, c.fault("step limit of %d exceeded", maxSteps)
		}
		if err := c.Step(); err != nil {
			return 0, err
		}
	}
	return int(c.Regs[asm.RAX] & 0xff), nil
}

// Exec assembles code, calls main and returns its exit status.
func Exec(code string, maxSteps int, trace io.Writer) (int, error) {
	prog, err := asm.Assemble(code)
	if err != nil {
		return 0, err
	}
	c := NewCPU(prog)
	c.Trace = trace
	if err := c.Start("main"); err != nil {
		return 0, err
	}
	return c.Run(maxSteps)
}
