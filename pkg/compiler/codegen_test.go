package compiler

import (
	"errors"
	"strings"
	"testing"
)

func assertContains(t *testing.T, code, expected string) {
	t.Helper()
	if !strings.Contains(code, expected) {
		t.Errorf("Expected code to contain %q, but it didn't.\nCode:\n%s", expected, code)
	}
}

func generate(t *testing.T, src string) string {
	t.Helper()
	code, err := Generate(parseSource(t, src))
	if err != nil {
		t.Fatalf("Generate(%q) failed: %v", src, err)
	}
	return code
}

func TestGenerate_FrameAndReturn(t *testing.T) {
	code := generate(t, "return 42;")

	for _, want := range []string{
		".intel_syntax noprefix\n.globl main\nmain:\n",
		"    push rbp\n    mov rbp, rsp\n    sub rsp, 32\n",
		"    mov [rbp-8], r12\n    mov [rbp-16], r13\n    mov [rbp-24], r14\n    mov [rbp-32], r15\n",
		"    mov r10, 42\n    mov rax, r10\n    jmp .L.return\n",
		".L.return:\n    mov r12, [rbp-8]\n    mov r13, [rbp-16]\n    mov r14, [rbp-24]\n    mov r15, [rbp-32]\n",
		"    mov rsp, rbp\n    pop rbp\n    ret\n",
	} {
		assertContains(t, code, want)
	}

	if strings.Count(code, ".L.return:") != 1 {
		t.Errorf("expected exactly one shared epilogue label:\n%s", code)
	}
}

func TestGenerate_Variables(t *testing.T) {
	code := generate(t, "a = 3; return a;")

	assertContains(t, code, "    sub rsp, 48\n")
	// a = 3: value in r10, address in r11
	assertContains(t, code, "    mov r10, 3\n    lea r11, [rbp-40]\n    mov [r11], r10\n")
	// return a: load through the address
	assertContains(t, code, "    lea r10, [rbp-40]\n    mov r10, [r10]\n    mov rax, r10\n")
}

func TestGenerate_Arithmetic(t *testing.T) {
	tests := []struct {
		src  string
		want []string
	}{
		{"return 1 + 2;", []string{"    add r10, r11\n"}},
		{"return 1 - 2;", []string{"    sub r10, r11\n"}},
		{"return 2 * 3;", []string{"    imul r10, r11\n"}},
		{"return 7 / 2;", []string{"    mov rax, r10\n    cqo\n    idiv r11\n    mov r10, rax\n"}},
		{"return 1 == 2;", []string{"    cmp r10, r11\n    sete al\n    movzb r10, al\n"}},
		{"return 1 != 2;", []string{"setne al"}},
		{"return 1 < 2;", []string{"setl al"}},
		{"return 1 <= 2;", []string{"setle al"}},
		{"return 1 > 2;", []string{"    mov r10, 2\n    mov r11, 1\n    cmp r10, r11\n    setl al\n"}},
		{"return -5;", []string{"    mov r10, 0\n    mov r11, 5\n    sub r10, r11\n"}},
	}

	for _, tt := range tests {
		code := generate(t, tt.src)
		for _, want := range tt.want {
			assertContains(t, code, want)
		}
	}
}

func TestGenerate_ControlFlow(t *testing.T) {
	t.Run("IfElse", func(t *testing.T) {
		code := generate(t, "if (1) return 1; else return 2; if (0) return 3;")
		assertContains(t, code, "    cmp r10, 0\n    je  .L.else.1\n")
		assertContains(t, code, "    jmp .L.end.1\n.L.else.1:\n")
		assertContains(t, code, ".L.end.1:\n")
		assertContains(t, code, "    je  .L.end.2\n")
		if strings.Contains(code, ".L.else.2") {
			t.Errorf("if without else should not mint an else label:\n%s", code)
		}
	})

	t.Run("For", func(t *testing.T) {
		code := generate(t, "for (i = 0; i < 3; i = i + 1) s = i;")
		assertContains(t, code, ".L.begin.1:\n")
		assertContains(t, code, "    je  .L.end.1\n")
		assertContains(t, code, "    jmp .L.begin.1\n.L.end.1:\n")
	})

	t.Run("ForWithoutCondition", func(t *testing.T) {
		code := generate(t, "for (;;) return 1;")
		assertContains(t, code, ".L.begin.1:\n")
		if strings.Contains(code, "je ") {
			t.Errorf("unconditional loop should not branch on a condition:\n%s", code)
		}
	})

	t.Run("LabelsAreUnique", func(t *testing.T) {
		code := generate(t, "while (a) if (b) c = 1; else while (c) c = 0; for (;;) { if (a) return 1; }")
		seen := map[string]bool{}
		for _, line := range strings.Split(code, "\n") {
			if !strings.HasSuffix(line, ":") {
				continue
			}
			if seen[line] {
				t.Errorf("label %s defined twice", line)
			}
			seen[line] = true
		}
	})
}

func TestGenerate_RegisterBalance(t *testing.T) {
	sources := []string{
		"a = 3; a = a + 2; return a;",
		"a = b = c = 1 + 2 * 3;",
		"s = 0; for (i = 0; i < 5; i = i + 1) s = s + i; return s;",
		"if (1 < 2) { x = (1 + 2) * (3 + 4); } else x = 0 - 1;",
		"while (x != 0) x = x - 1;",
		"return 1+(2+(3+(4+(5+6))));",
	}

	for _, src := range sources {
		prog := parseSource(t, src)
		cg := newCodeGen(prog)
		for _, s := range prog.Body {
			if err := cg.genStmt(s); err != nil {
				t.Fatalf("genStmt(%s) failed: %v", s, err)
			}
			if cg.top != 0 {
				t.Errorf("%q: register depth %d after %s", src, cg.top, s)
			}
		}
	}
}

func TestGenerate_RegisterExhaustion(t *testing.T) {
	src := "return 1+(2+(3+(4+(5+(6+7)))));"
	code, err := Generate(parseSource(t, src))
	if code != "" {
		t.Errorf("expected no assembly, got:\n%s", code)
	}

	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if cerr.Kind != CodegenError {
		t.Errorf("kind = %v, want CodegenError", cerr.Kind)
	}
	if !strings.Contains(cerr.Msg, "expression too complex") {
		t.Errorf("msg = %q", cerr.Msg)
	}
	if cerr.Loc != strings.Index(src, "7") {
		t.Errorf("loc = %d, want %d", cerr.Loc, strings.Index(src, "7"))
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	src := "i = 0; while (i < 3) { if (i == 1) j = i; i = i + 1; } return j;"
	if a, b := generate(t, src), generate(t, src); a != b {
		t.Errorf("two runs differ:\n%s\n---\n%s", a, b)
	}
}

func TestGenerate_Verify(t *testing.T) {
	tok := Token{Kind: IDENT, Lexeme: "ghost", Loc: 7, Len: 5}
	stray := &Var{Name: "ghost", Offset: 40}

	tests := []struct {
		name    string
		prog    *Program
		wantMsg string
	}{
		{
			name: "variable outside the frame",
			prog: &Program{
				Body:      []Stmt{&ReturnStmt{Expr: &VarRef{Tok: tok, Var: stray}}},
				StackSize: 32,
				Src:       "return ghost;",
			},
			wantMsg: `variable "ghost" is not in the frame`,
		},
		{
			name: "variable from another table",
			prog: &Program{
				Body:      []Stmt{&ReturnStmt{Expr: &VarRef{Tok: tok, Var: stray}}},
				Locals:    []*Var{{Name: "other"}},
				StackSize: 48,
				Src:       "return ghost;",
			},
			wantMsg: `variable "ghost" is not in the frame`,
		},
		{
			name: "unlaid-out frame",
			prog: func() *Program {
				v := &Var{Name: "ghost"}
				return &Program{
					Body:   []Stmt{&ReturnStmt{Expr: &VarRef{Tok: tok, Var: v}}},
					Locals: []*Var{v},
					Src:    "return ghost;",
				}
			}(),
			wantMsg: `variable "ghost" has no frame slot`,
		},
		{
			name:    "missing statement",
			prog:    &Program{Body: []Stmt{nil}},
			wantMsg: "missing statement",
		},
		{
			name:    "missing expression",
			prog:    &Program{Body: []Stmt{&ExprStmt{}}},
			wantMsg: "missing expression",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := Generate(tt.prog)
			if code != "" {
				t.Errorf("expected no assembly")
			}
			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if cerr.Kind != CodegenError || cerr.Msg != tt.wantMsg {
				t.Errorf("got %v %q, want codegen error %q", cerr.Kind, cerr.Msg, tt.wantMsg)
			}
		})
	}
}
