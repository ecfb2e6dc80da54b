package compiler

// verifyProgram checks the invariants the code generator relies on before any
// assembly is emitted: every VarRef points into the program's variable table
// and has a frame slot, and every node is a kind Generate knows.
func verifyProgram(prog *Program) error {
	src := prog.Src
	known := make(map[*Var]bool, len(prog.Locals))
	for _, v := range prog.Locals {
		known[v] = true
	}
	for _, s := range prog.Body {
		if err := verifyStmt(s, known, src); err != nil {
			return err
		}
	}
	return nil
}

func verifyStmt(s Stmt, known map[*Var]bool, src string) error {
	switch n := s.(type) {
	case *ExprStmt:
		return verifyExpr(n.Expr, known, src)
	case *ReturnStmt:
		return verifyExpr(n.Expr, known, src)
	case *IfStmt:
		if err := verifyExpr(n.Cond, known, src); err != nil {
			return err
		}
		if err := verifyStmt(n.Then, known, src); err != nil {
			return err
		}
		if n.Else != nil {
			return verifyStmt(n.Else, known, src)
		}
		return nil
	case *ForStmt:
		if n.Init != nil {
			if err := verifyStmt(n.Init, known, src); err != nil {
				return err
			}
		}
		if n.Cond != nil {
			if err := verifyExpr(n.Cond, known, src); err != nil {
				return err
			}
		}
		if n.Inc != nil {
			if err := verifyStmt(n.Inc, known, src); err != nil {
				return err
			}
		}
		return verifyStmt(n.Body, known, src)
	case *BlockStmt:
		for _, child := range n.Stmts {
			if err := verifyStmt(child, known, src); err != nil {
				return err
			}
		}
		return nil
	case nil:
		return errorAt(CodegenError, src, -1, "missing statement")
	}
	return errorAt(CodegenError, src, s.Pos().Loc, "invalid statement %T", s)
}

func verifyExpr(e Expr, known map[*Var]bool, src string) error {
	switch n := e.(type) {
	case *NumLit:
		return nil
	case *VarRef:
		return verifyVar(n, known, src)
	case *BinaryExpr:
		if err := verifyExpr(n.Left, known, src); err != nil {
			return err
		}
		return verifyExpr(n.Right, known, src)
	case *AssignExpr:
		if n.Target == nil {
			return errorAt(CodegenError, src, n.Tok.Loc, "not an lvalue")
		}
		if err := verifyExpr(n.Value, known, src); err != nil {
			return err
		}
		return verifyVar(n.Target, known, src)
	case nil:
		return errorAt(CodegenError, src, -1, "missing expression")
	}
	return errorAt(CodegenError, src, e.Pos().Loc, "invalid expression %T", e)
}

func verifyVar(ref *VarRef, known map[*Var]bool, src string) error {
	if ref.Var == nil || !known[ref.Var] {
		return errorAt(CodegenError, src, ref.Tok.Loc, "variable %q is not in the frame", ref.Tok.Lexeme)
	}
	if ref.Var.Offset <= 0 {
		return errorAt(CodegenError, src, ref.Tok.Loc, "variable %q has no frame slot", ref.Var.Name)
	}
	return nil
}
