package compiler

import (
	"fmt"
	"io"
	"strings"
)

// ErrorKind classifies a compilation failure.
type ErrorKind int

const (
	LexError     ErrorKind = iota // byte that starts no token
	SyntaxError                   // expected token or construct missing
	CodegenError                  // internal invariant violated during generation
)

func (k ErrorKind) String() string {
	switch k {
	case LexError:
		return "lex error"
	case SyntaxError:
		return "syntax error"
	case CodegenError:
		return "codegen error"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the single fatal diagnostic a compilation stage can produce.
// Loc is a byte offset into Src, or -1 when the failure has no position.
type Error struct {
	Kind ErrorKind
	Src  string
	Loc  int
	Msg  string
}

func errorAt(kind ErrorKind, src string, loc int, format string, args ...any) *Error {
	return &Error{Kind: kind, Src: src, Loc: loc, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Loc < 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	line, col := e.Position()
	return fmt.Sprintf("%d:%d: %s: %s", line, col, e.Kind, e.Msg)
}

// Position returns the 1-based line and column of Loc.
func (e *Error) Position() (line, col int) {
	loc := min(max(e.Loc, 0), len(e.Src))
	line = 1 + strings.Count(e.Src[:loc], "\n")
	start := strings.LastIndexByte(e.Src[:loc], '\n') + 1
	return line, loc - start + 1
}

// Render writes the offending source line followed by a caret under Loc:
//
//	a = 1 +;
//	       ^ expected an expression
func (e *Error) Render(w io.Writer) {
	if e.Loc < 0 {
		fmt.Fprintf(w, "%s: %s\n", e.Kind, e.Msg)
		return
	}

	loc := min(e.Loc, len(e.Src))
	start := strings.LastIndexByte(e.Src[:loc], '\n') + 1
	end := strings.IndexByte(e.Src[loc:], '\n')
	if end < 0 {
		end = len(e.Src)
	} else {
		end += loc
	}

	// Keep tabs so the caret lines up with what a terminal shows.
	pad := []byte(e.Src[start:loc])
	for i, c := range pad {
		if c != '\t' {
			pad[i] = ' '
		}
	}

	fmt.Fprintf(w, "%s\n", e.Src[start:end])
	fmt.Fprintf(w, "%s^ %s: %s\n", pad, e.Kind, e.Msg)
}
