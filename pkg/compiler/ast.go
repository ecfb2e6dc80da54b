package compiler

import (
	"fmt"
	"strings"
)

//  Expression nodes

// Expr is implemented by every node that produces a value.
// genExpr leaves exactly one pushed register holding the result.
type Expr interface {
	exprNode()
	Pos() Token
	String() string
}

// NumLit is an integer constant.
//
//	return 42;
//	       ^^  NumLit{Value: 42}
type NumLit struct {
	Tok   Token
	Value uint64
}

func (*NumLit) exprNode()        {}
func (n *NumLit) Pos() Token     { return n.Tok }
func (n *NumLit) String() string { return fmt.Sprintf("%d", n.Value) }

// VarRef is a read of, or assignment target for, a local variable.
type VarRef struct {
	Tok Token
	Var *Var
}

func (*VarRef) exprNode()        {}
func (v *VarRef) Pos() Token     { return v.Tok }
func (v *VarRef) String() string { return v.Var.Name }

// BinOp is the operator of a BinaryExpr. There is no greater-than form:
// the parser swaps operands and uses Lt/Le instead.
type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Eq
	Ne
	Lt
	Le
)

var binOpNames = [...]string{
	Add: "+",
	Sub: "-",
	Mul: "*",
	Div: "/",
	Eq:  "==",
	Ne:  "!=",
	Lt:  "<",
	Le:  "<=",
}

func (op BinOp) String() string {
	if int(op) >= 0 && int(op) < len(binOpNames) {
		return binOpNames[op]
	}
	return fmt.Sprintf("BinOp(%d)", int(op))
}

// BinaryExpr represents Left Op Right.
//
//	x + 1
//	^ ^ ^
//	| | Right
//	| Op
//	Left
type BinaryExpr struct {
	Tok   Token
	Op    BinOp
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode()    {}
func (b *BinaryExpr) Pos() Token { return b.Tok }
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// AssignExpr represents Target = Value. Its result is the stored value, so
// assignments chain: a = b = 1.
type AssignExpr struct {
	Tok    Token
	Target *VarRef
	Value  Expr
}

func (*AssignExpr) exprNode()    {}
func (a *AssignExpr) Pos() Token { return a.Tok }
func (a *AssignExpr) String() string {
	return fmt.Sprintf("(%s = %s)", a.Target, a.Value)
}

//  Statement nodes

// Stmt is implemented by every node that does not produce a value.
type Stmt interface {
	stmtNode()
	Pos() Token
	String() string
}

// ExprStmt evaluates an expression and discards the result.
type ExprStmt struct {
	Tok  Token
	Expr Expr
}

func (*ExprStmt) stmtNode()        {}
func (e *ExprStmt) Pos() Token     { return e.Tok }
func (e *ExprStmt) String() string { return fmt.Sprintf("ExprStmt(%s)", e.Expr) }

// ReturnStmt represents return expr;
type ReturnStmt struct {
	Tok  Token
	Expr Expr
}

func (*ReturnStmt) stmtNode()        {}
func (r *ReturnStmt) Pos() Token     { return r.Tok }
func (r *ReturnStmt) String() string { return fmt.Sprintf("ReturnStmt(%s)", r.Expr) }

// IfStmt represents if (cond) then [else els]
type IfStmt struct {
	Tok  Token
	Cond Expr
	Then Stmt
	Else Stmt // may be nil
}

func (*IfStmt) stmtNode()    {}
func (i *IfStmt) Pos() Token { return i.Tok }
func (i *IfStmt) String() string {
	if i.Else != nil {
		return fmt.Sprintf("IfStmt(if %s then %s else %s)", i.Cond, i.Then, i.Else)
	}
	return fmt.Sprintf("IfStmt(if %s then %s)", i.Cond, i.Then)
}

// ForStmt represents for (init; cond; inc) body. A while loop is a ForStmt
// with only Cond set; a nil Cond loops forever.
type ForStmt struct {
	Tok  Token
	Init Stmt // may be nil
	Cond Expr // may be nil
	Inc  Stmt // may be nil
	Body Stmt
}

func (*ForStmt) stmtNode()    {}
func (f *ForStmt) Pos() Token { return f.Tok }
func (f *ForStmt) String() string {
	return fmt.Sprintf("ForStmt(init=%s, cond=%s, inc=%s, body=%s)",
		nodeString(f.Init), nodeString(f.Cond), nodeString(f.Inc), f.Body)
}

// BlockStmt represents { statement* }
type BlockStmt struct {
	Tok   Token
	Stmts []Stmt
}

func (*BlockStmt) stmtNode()    {}
func (b *BlockStmt) Pos() Token { return b.Tok }
func (b *BlockStmt) String() string {
	parts := make([]string, len(b.Stmts))
	for i, s := range b.Stmts {
		parts[i] = s.String()
	}
	return fmt.Sprintf("BlockStmt{%s}", strings.Join(parts, "; "))
}

// nodeString prints an optional child.
func nodeString(n fmt.Stringer) string {
	if n == nil {
		return "<nil>"
	}
	return n.String()
}
