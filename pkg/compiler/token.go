package compiler

import "fmt"

// TokenKind identifies the category of a lexed token.
type TokenKind int

const (
	PUNCT TokenKind = iota // operators, delimiters and keywords
	IDENT                  // variable name
	NUM                    // decimal integer literal
	EOF                    // sentinel: end of input
)

var tokenKindNames = [...]string{
	PUNCT: "PUNCT",
	IDENT: "IDENT",
	NUM:   "NUM",
	EOF:   "EOF",
}

func (k TokenKind) String() string {
	if int(k) >= 0 && int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// keywords are reclassified from IDENT to PUNCT after scanning so the parser
// can match them by text, exactly like operators.
var keywords = map[string]bool{
	"return": true,
	"if":     true,
	"else":   true,
	"for":    true,
	"while":  true,
}

// Token is a single lexical unit produced by the Lexer.
//
// Lexeme is always the verbatim slice src[Loc:Loc+Len].
type Token struct {
	Kind   TokenKind
	Lexeme string
	Loc    int    // byte offset into the source
	Len    int    // byte length of the lexeme
	Val    uint64 // value when Kind == NUM
}

// Is reports whether the token's text is exactly op.
func (t Token) Is(op string) bool {
	return t.Kind != EOF && t.Lexeme == op
}

func (t Token) String() string {
	if t.Kind == NUM {
		return fmt.Sprintf("%-5s %-10q @%d (val %d)", t.Kind, t.Lexeme, t.Loc, t.Val)
	}
	return fmt.Sprintf("%-5s %-10q @%d", t.Kind, t.Lexeme, t.Loc)
}
