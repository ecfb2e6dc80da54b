package compiler

// Parser consumes the token slice produced by the Lexer and builds a Program.
//
// Grammar:
//
//	program    = statement* EOF
//	statement  = "return" expr ";"
//	           | "if" "(" expr ")" statement ("else" statement)?
//	           | "for" "(" expr? ";" expr? ";" expr? ")" statement
//	           | "while" "(" expr ")" statement
//	           | "{" statement* "}"
//	           | expr ";"
//	expr       = assign
//	assign     = equality ("=" assign)?
//	equality   = relational ("==" relational | "!=" relational)*
//	relational = add ("<" add | "<=" add | ">" add | ">=" add)*
//	add        = mul ("+" mul | "-" mul)*
//	mul        = unary ("*" unary | "/" unary)*
//	unary      = ("+" | "-") unary | primary
//	primary    = "(" expr ")" | IDENT | NUM
//
// The Parser itself holds no position. Every production takes the cursor it
// starts at and returns the cursor just past what it consumed.
type Parser struct {
	tokens []Token
	src    string
	syms   *SymbolTable
}

// cursor indexes the token slice.
type cursor int

func NewParser(tokens []Token, src string) *Parser {
	return &Parser{tokens: tokens, src: src, syms: NewSymbolTable()}
}

// tok returns the token at c. Past the end it returns EOF.
func (p *Parser) tok(c cursor) Token {
	if int(c) < len(p.tokens) {
		return p.tokens[c]
	}
	return Token{Kind: EOF, Loc: len(p.src)}
}

func (p *Parser) errorAt(c cursor, format string, args ...any) error {
	return errorAt(SyntaxError, p.src, p.tok(c).Loc, format, args...)
}

// skip consumes op at c, or fails naming what was expected.
func (p *Parser) skip(c cursor, op string) (cursor, error) {
	if !p.tok(c).Is(op) {
		return c, p.errorAt(c, "expected '%s'", op)
	}
	return c + 1, nil
}

// parseStatement dispatches on the leading token.
func (p *Parser) parseStatement(c cursor) (Stmt, cursor, error) {
	tok := p.tok(c)
	switch {
	case tok.Is("return"):
		return p.parseReturn(c)
	case tok.Is("if"):
		return p.parseIf(c)
	case tok.Is("for"):
		return p.parseFor(c)
	case tok.Is("while"):
		return p.parseWhile(c)
	case tok.Is("{"):
		return p.parseBlock(c)
	}

	expr, c, err := p.parseExpression(c)
	if err != nil {
		return nil, c, err
	}
	if c, err = p.skip(c, ";"); err != nil {
		return nil, c, err
	}
	return &ExprStmt{Tok: tok, Expr: expr}, c, nil
}

// parseReturn parses  return expr ;
func (p *Parser) parseReturn(c cursor) (Stmt, cursor, error) {
	tok := p.tok(c)
	expr, c, err := p.parseExpression(c + 1)
	if err != nil {
		return nil, c, err
	}
	if c, err = p.skip(c, ";"); err != nil {
		return nil, c, err
	}
	return &ReturnStmt{Tok: tok, Expr: expr}, c, nil
}

// parseCondition parses  ( expr )
func (p *Parser) parseCondition(c cursor) (Expr, cursor, error) {
	c, err := p.skip(c, "(")
	if err != nil {
		return nil, c, err
	}
	cond, c, err := p.parseExpression(c)
	if err != nil {
		return nil, c, err
	}
	if c, err = p.skip(c, ")"); err != nil {
		return nil, c, err
	}
	return cond, c, nil
}

// parseIf parses  if ( cond ) then [ else els ]
func (p *Parser) parseIf(c cursor) (Stmt, cursor, error) {
	node := &IfStmt{Tok: p.tok(c)}
	cond, c, err := p.parseCondition(c + 1)
	if err != nil {
		return nil, c, err
	}
	node.Cond = cond

	if node.Then, c, err = p.parseStatement(c); err != nil {
		return nil, c, err
	}
	if p.tok(c).Is("else") {
		if node.Else, c, err = p.parseStatement(c + 1); err != nil {
			return nil, c, err
		}
	}
	return node, c, nil
}

// parseFor parses  for ( init? ; cond? ; inc? ) body
func (p *Parser) parseFor(c cursor) (Stmt, cursor, error) {
	node := &ForStmt{Tok: p.tok(c)}
	c, err := p.skip(c+1, "(")
	if err != nil {
		return nil, c, err
	}

	if !p.tok(c).Is(";") {
		tok := p.tok(c)
		var initExpr Expr
		if initExpr, c, err = p.parseExpression(c); err != nil {
			return nil, c, err
		}
		node.Init = &ExprStmt{Tok: tok, Expr: initExpr}
	}
	if c, err = p.skip(c, ";"); err != nil {
		return nil, c, err
	}

	if !p.tok(c).Is(";") {
		if node.Cond, c, err = p.parseExpression(c); err != nil {
			return nil, c, err
		}
	}
	if c, err = p.skip(c, ";"); err != nil {
		return nil, c, err
	}

	if !p.tok(c).Is(")") {
		tok := p.tok(c)
		var inc Expr
		if inc, c, err = p.parseExpression(c); err != nil {
			return nil, c, err
		}
		node.Inc = &ExprStmt{Tok: tok, Expr: inc}
	}
	if c, err = p.skip(c, ")"); err != nil {
		return nil, c, err
	}

	if node.Body, c, err = p.parseStatement(c); err != nil {
		return nil, c, err
	}
	return node, c, nil
}

// parseWhile parses  while ( cond ) body  into a ForStmt with only a condition.
func (p *Parser) parseWhile(c cursor) (Stmt, cursor, error) {
	node := &ForStmt{Tok: p.tok(c)}
	cond, c, err := p.parseCondition(c + 1)
	if err != nil {
		return nil, c, err
	}
	node.Cond = cond
	if node.Body, c, err = p.parseStatement(c); err != nil {
		return nil, c, err
	}
	return node, c, nil
}

// parseBlock parses  { stmt* }
func (p *Parser) parseBlock(c cursor) (Stmt, cursor, error) {
	node := &BlockStmt{Tok: p.tok(c)}
	c++
	for !p.tok(c).Is("}") {
		if p.tok(c).Kind == EOF {
			return nil, c, p.errorAt(c, "expected '}'")
		}
		stmt, next, err := p.parseStatement(c)
		if err != nil {
			return nil, next, err
		}
		node.Stmts = append(node.Stmts, stmt)
		c = next
	}
	return node, c + 1, nil
}

// parseExpression is the entry point for expression parsing.
func (p *Parser) parseExpression(c cursor) (Expr, cursor, error) {
	return p.parseAssign(c)
}

// parseAssign handles right-associative =
func (p *Parser) parseAssign(c cursor) (Expr, cursor, error) {
	lhs, c, err := p.parseEquality(c)
	if err != nil {
		return nil, c, err
	}
	if !p.tok(c).Is("=") {
		return lhs, c, nil
	}

	tok := p.tok(c)
	target, ok := lhs.(*VarRef)
	if !ok {
		return nil, c, errorAt(SyntaxError, p.src, lhs.Pos().Loc, "not an lvalue")
	}
	rhs, c, err := p.parseAssign(c + 1)
	if err != nil {
		return nil, c, err
	}
	return &AssignExpr{Tok: tok, Target: target, Value: rhs}, c, nil
}

// binaryLevel parses a left-associative run of the operators in ops, each
// operand produced by operand. Rules with swap set build the node with its
// operands exchanged.
func (p *Parser) binaryLevel(c cursor, operand func(cursor) (Expr, cursor, error), ops []binaryRule) (Expr, cursor, error) {
	node, c, err := operand(c)
	if err != nil {
		return nil, c, err
	}

outer:
	for {
		tok := p.tok(c)
		for _, rule := range ops {
			if !tok.Is(rule.text) {
				continue
			}
			rhs, n, err := operand(c + 1)
			if err != nil {
				return nil, n, err
			}
			if rule.swap {
				node = &BinaryExpr{Tok: tok, Op: rule.op, Left: rhs, Right: node}
			} else {
				node = &BinaryExpr{Tok: tok, Op: rule.op, Left: node, Right: rhs}
			}
			c = n
			continue outer
		}
		return node, c, nil
	}
}

type binaryRule struct {
	text string
	op   BinOp
	swap bool
}

var (
	equalityOps   = []binaryRule{{"==", Eq, false}, {"!=", Ne, false}}
	relationalOps = []binaryRule{{"<", Lt, false}, {"<=", Le, false}, {">", Lt, true}, {">=", Le, true}}
	additiveOps   = []binaryRule{{"+", Add, false}, {"-", Sub, false}}
	multOps       = []binaryRule{{"*", Mul, false}, {"/", Div, false}}
)

// parseEquality handles == and !=
func (p *Parser) parseEquality(c cursor) (Expr, cursor, error) {
	return p.binaryLevel(c, p.parseRelational, equalityOps)
}

// parseRelational handles < <= > >=
func (p *Parser) parseRelational(c cursor) (Expr, cursor, error) {
	return p.binaryLevel(c, p.parseAdditive, relationalOps)
}

// parseAdditive handles + and -
func (p *Parser) parseAdditive(c cursor) (Expr, cursor, error) {
	return p.binaryLevel(c, p.parseMultiplicative, additiveOps)
}

// parseMultiplicative handles * and /
func (p *Parser) parseMultiplicative(c cursor) (Expr, cursor, error) {
	return p.binaryLevel(c, p.parseUnary, multOps)
}

// parseUnary handles prefix + and -. Unary minus becomes 0 - operand.
func (p *Parser) parseUnary(c cursor) (Expr, cursor, error) {
	tok := p.tok(c)
	if tok.Is("+") {
		return p.parseUnary(c + 1)
	}
	if tok.Is("-") {
		operand, c, err := p.parseUnary(c + 1)
		if err != nil {
			return nil, c, err
		}
		zero := &NumLit{Tok: tok, Value: 0}
		return &BinaryExpr{Tok: tok, Op: Sub, Left: zero, Right: operand}, c, nil
	}
	return p.parsePrimary(c)
}

// parsePrimary handles literals, variables, and parenthesised expressions.
// The first use of an identifier declares it.
func (p *Parser) parsePrimary(c cursor) (Expr, cursor, error) {
	tok := p.tok(c)
	switch {
	case tok.Is("("):
		expr, c, err := p.parseExpression(c + 1)
		if err != nil {
			return nil, c, err
		}
		if c, err = p.skip(c, ")"); err != nil {
			return nil, c, err
		}
		return expr, c, nil

	case tok.Kind == IDENT:
		v, _ := p.syms.Declare(tok.Lexeme)
		return &VarRef{Tok: tok, Var: v}, c + 1, nil

	case tok.Kind == NUM:
		return &NumLit{Tok: tok, Value: tok.Val}, c + 1, nil
	}
	return nil, c, p.errorAt(c, "expected an expression")
}

// Parse builds the Program for tokens and lays out its stack frame.
// It returns a *Error of kind SyntaxError on the first missing construct.
func Parse(tokens []Token, src string) (*Program, error) {
	p := NewParser(tokens, src)
	var body []Stmt
	c := cursor(0)
	for p.tok(c).Kind != EOF {
		stmt, next, err := p.parseStatement(c)
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
		c = next
	}
	return newProgram(body, p.syms, p.src), nil
}
