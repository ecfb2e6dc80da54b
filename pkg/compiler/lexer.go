package compiler

import (
	"strconv"
	"strings"
)

// twoByteOps must be tried before single-byte punctuation, otherwise "<="
// would scan as "<" followed by "=".
var twoByteOps = []string{"==", "!=", "<=", ">="}

const punctChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src string
	pos int // offset of the next byte to consume
}

func newLexer(src string) *Lexer {
	return &Lexer{src: src}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isIdentStart(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isPunct(c byte) bool {
	return strings.IndexByte(punctChars, c) >= 0
}

func (l *Lexer) token(kind TokenKind, start int) Token {
	return Token{Kind: kind, Lexeme: l.src[start:l.pos], Loc: start, Len: l.pos - start}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
}

// scanNumber collects a maximal run of decimal digits.
func (l *Lexer) scanNumber() (Token, error) {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	tok := l.token(NUM, start)
	val, err := strconv.ParseUint(tok.Lexeme, 10, 64)
	if err != nil {
		return Token{}, errorAt(LexError, l.src, start, "number %s does not fit in 64 bits", tok.Lexeme)
	}
	tok.Val = val
	return tok, nil
}

// scanIdent collects a maximal run of letters, digits and underscores.
// The first byte must be a letter or '_'.
func (l *Lexer) scanIdent() Token {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}
	return l.token(IDENT, start)
}

// nextToken skips whitespace and returns the next Token.
func (l *Lexer) nextToken() (Token, error) {
	l.skipWhitespace()
	if l.pos >= len(l.src) {
		return Token{Kind: EOF, Loc: l.pos}, nil
	}

	c := l.src[l.pos]
	switch {
	case isDigit(c):
		return l.scanNumber()
	case isIdentStart(c):
		return l.scanIdent(), nil
	}

	start := l.pos
	for _, op := range twoByteOps {
		if strings.HasPrefix(l.src[l.pos:], op) {
			l.pos += len(op)
			return l.token(PUNCT, start), nil
		}
	}

	if isPunct(c) {
		l.pos++
		return l.token(PUNCT, start), nil
	}

	return Token{}, errorAt(LexError, l.src, start, "invalid token")
}

// convertKeywords rewrites IDENT tokens spelling a keyword into PUNCT.
func convertKeywords(tokens []Token) {
	for i := range tokens {
		if tokens[i].Kind == IDENT && keywords[tokens[i].Lexeme] {
			tokens[i].Kind = PUNCT
		}
	}
}

// Lex tokenises src and returns all tokens including the final EOF token.
// On the first byte that starts no valid token it returns a *Error of kind
// LexError and no tokens.
func Lex(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == EOF {
			break
		}
	}
	convertKeywords(tokens)
	return tokens, nil
}
