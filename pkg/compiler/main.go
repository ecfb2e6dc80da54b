// Package compiler provides the lexer, parser, and code generator for the
// orecc language: integer expressions, implicitly declared locals,
// if/for/while, blocks, and return.
//
// Pipeline: source → Lex → Parse → Generate → x86-64 assembly text (Intel
// syntax, one global entry routine named main).
package compiler
