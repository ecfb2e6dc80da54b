package compiler

import (
	"fmt"
	"testing"

	"orecc/pkg/cpu"
)

// runCode compiles source, runs main on the emulator and returns the exit
// status.
func runCode(t *testing.T, source string) int {
	t.Helper()
	assembly, prog, err := Compile(source)
	if err != nil {
		t.Fatalf("Compile(%q) failed: %v\nAssembly:\n%s", source, err, assembly)
	}

	vm := cpu.NewCPU(prog)
	if err := vm.Start("main"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status, err := vm.Run(10000)
	if err != nil {
		t.Fatalf("Run(%q) failed: %v\nAssembly:\n%s", source, err, assembly)
	}
	return status
}

func TestArithmetic_E2E(t *testing.T) {
	tests := []struct {
		expr     string
		expected int
	}{
		{"6 * 7", 42},
		{"100 / 10", 10},
		{"7 / 2", 3},
		{"0 - 7 / 2 + 10", 7},
		{"-7 / 2 + 10", 7},
		{"(-7) / 2 + 10", 7},
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 - 2 - 3", 5},
		{"100 / 5 / 2", 10},
		{"- -3", 3},
		{"+5", 5},
		{"1+(2+(3+(4+(5+6))))", 21},
	}
	for _, tt := range tests {
		src := fmt.Sprintf("return %s;", tt.expr)
		if got := runCode(t, src); got != tt.expected {
			t.Errorf("%s: expected %d, got %d", tt.expr, tt.expected, got)
		}
	}
}

func TestComparisons_E2E(t *testing.T) {
	tests := []struct {
		expr     string
		expected int
	}{
		{"1 == 1", 1},
		{"1 == 2", 0},
		{"1 != 2", 1},
		{"2 != 2", 0},
		{"2 < 1", 0},
		{"1 < 2", 1},
		{"2 <= 2", 1},
		{"3 <= 2", 0},
		{"3 > 2", 1},
		{"2 > 3", 0},
		{"2 >= 2", 1},
		{"1 >= 2", 0},
		{"0 - 1 < 1", 1},
		{"(1 < 2) + (2 < 3) + (3 == 3)", 3},
	}
	for _, tt := range tests {
		src := fmt.Sprintf("return %s;", tt.expr)
		if got := runCode(t, src); got != tt.expected {
			t.Errorf("%s: expected %d, got %d", tt.expr, tt.expected, got)
		}
	}
}

func TestStatements_E2E(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected int
	}{
		{"variable identity", "a = 3; a = a + 2; return a;", 5},
		{"chained assignment", "a = b = 3; return a + b;", 6},
		{"many variables", "a = 1; b = 2; c = 3; d = 4; e = 5; return a + b * c - d + e;", 8},
		{"if taken", "if (1) return 2; else return 1;", 2},
		{"else taken", "if (0) return 2; else return 1;", 1},
		{"if without else", "a = 1; if (0) a = 2; return a;", 1},
		{"for sum", "s = 0; for (i = 0; i < 5; i = i + 1) s = s + i; return s;", 10},
		{"for without init", "i = 3; s = 0; for (; i; i = i - 1) s = s + i; return s;", 6},
		{"endless for", "i = 0; for (;;) { i = i + 1; if (i == 4) return i; }", 4},
		{"while", "i = 0; while (i < 10) i = i + 1; return i;", 10},
		{"nested loops", "s = 0; for (i = 0; i < 3; i = i + 1) for (j = 0; j < 4; j = j + 1) s = s + 1; return s;", 12},
		{"first return wins", "return 1; return 2;", 1},
		{"return inside loop", "i = 0; while (1) { if (i == 7) return i; i = i + 1; }", 7},
		{"exit status wraps", "return 300;", 44},
		{"empty block", "{} return 9;", 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runCode(t, tt.src); got != tt.expected {
				t.Errorf("%q: expected %d, got %d", tt.src, tt.expected, got)
			}
		})
	}
}

func TestDivideByZero_E2E(t *testing.T) {
	_, prog, err := Compile("a = 0; return 1 / a;")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	vm := cpu.NewCPU(prog)
	if err := vm.Start("main"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := vm.Run(0); err == nil {
		t.Error("expected a divide fault")
	}
}
