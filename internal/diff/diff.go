// Package diff implements the symbolic differentiation engine (spec.md
// §4.5): given a parsed Function and a dispatch registry, it produces the
// Function's Jacobian as a new, "d_"-prefixed Function over the same
// parameters.
//
// Differentiation is expression- and statement-recursive and threads two
// flags through the expression walk: leftEquality, true while
// differentiating the assignable side of an assignment (where a bare
// Variable or indexing expression resolves to, or creates, that variable's
// derivative slot rather than its value), and topStatement, true only for
// the expression directly under an ExpressionStatement (the one place a
// standalone declaration-with-no-initializer is allowed to mint its
// derivative).
package diff

import (
	"fmt"

	"github.com/agusespa/differentiator/internal/ast"
	"github.com/agusespa/differentiator/internal/context"
	"github.com/agusespa/differentiator/internal/registry"
	"github.com/agusespa/differentiator/internal/types"
)

// DifferentiationError reports an expression or statement this engine
// cannot differentiate (spec.md §7): an unsupported node kind, a reference
// to a variable with no derivative defined, an unresolvable call signature,
// or an operator used somewhere only indexing is allowed.
type DifferentiationError struct {
	Msg string
}

func (e *DifferentiationError) Error() string { return "differentiation error: " + e.Msg }

func errf(format string, args ...any) error {
	return &DifferentiationError{Msg: fmt.Sprintf(format, args...)}
}

const (
	derivativePrefix = "d_"
	returnVarName    = "_return"
)

func derivativeName(wrt, name string) string {
	return derivativePrefix + wrt + "_" + name
}

// DiffContext carries the state threaded through one function's
// differentiation: its parameter names, a scratch copy of its Context (so
// newly minted derivative variables never leak into the primal function's
// own scope), and the registry consulted for Call nodes.
type DiffContext struct {
	ArgumentNames    []string
	arguments        map[string]types.Variable
	FuncCtx          *context.Context
	Registry         *registry.FunctionDiffStorage
	derivedVariables map[string]types.Variable
}

// NewDiffContext builds the DiffContext for differentiating fn.
func NewDiffContext(fn *ast.Function, reg *registry.FunctionDiffStorage) *DiffContext {
	dc := &DiffContext{
		arguments:        make(map[string]types.Variable, len(fn.Declaration.Params)),
		FuncCtx:          fn.Ctx.Copy(),
		Registry:         reg,
		derivedVariables: make(map[string]types.Variable),
	}
	for _, p := range fn.Declaration.Params {
		dc.ArgumentNames = append(dc.ArgumentNames, p.Name)
		dc.arguments[p.Name] = p
	}
	return dc
}

// DiffExpr differentiates e with respect to the parameter named wrt.
// leftEquality must be true only while descending into the assignable side
// of an assignment; topStatement must be true only for the expression
// directly under an ExpressionStatement.
func DiffExpr(dc *DiffContext, e ast.Expression, wrt string, leftEquality, topStatement bool) (ast.Expression, error) {
	if leftEquality {
		switch e.(type) {
		case *ast.Variable, *ast.BinaryOperator:
		default:
			return nil, errf("only variables are allowed as assignable types in equalities")
		}
	}

	switch v := e.(type) {
	case *ast.Number:
		return ast.NewNumber(0), nil
	case *ast.Variable:
		return diffVariable(dc, v, wrt, leftEquality, topStatement)
	case *ast.UnaryOperator:
		return diffUnary(dc, v, wrt)
	case *ast.BinaryOperator:
		return diffBinary(dc, v, wrt, leftEquality)
	case *ast.Call:
		return diffCall(dc, v, wrt)
	default:
		return nil, errf("unsupported expression type %T", e)
	}
}

func diffVariable(dc *DiffContext, v *ast.Variable, wrt string, leftEquality, topStatement bool) (ast.Expression, error) {
	derName := derivativeName(wrt, v.Name)

	if v.Declaration {
		if !leftEquality && !topStatement {
			return nil, errf("variable declaration is only allowed on the left side of an assignment")
		}
		if existing, ok := dc.derivedVariables[derName]; ok {
			return ast.NewVariableRef(existing), nil
		}
		if existing, ok := dc.FuncCtx.GetVariable(derName); ok {
			return ast.NewVariableRef(existing), nil
		}

		dv := types.NewVariable(derName, v.Type)
		dc.derivedVariables[derName] = dv

		var ctorCall *ast.Call
		if v.ConstructorCall != nil {
			diffed, err := diffCall(dc, v.ConstructorCall, wrt)
			if err != nil {
				return nil, err
			}
			call, ok := diffed.(*ast.Call)
			if !ok {
				return nil, errf("constructor call derivative for %q did not produce a call", v.Name)
			}
			ctorCall = call
		}
		return ast.NewVariableDecl(dv, ctorCall), nil
	}

	if existing, ok := dc.derivedVariables[derName]; ok {
		return ast.NewVariableRef(existing), nil
	}
	if existing, ok := dc.FuncCtx.GetVariable(derName); ok {
		return ast.NewVariableRef(existing), nil
	}

	if v.Name == wrt {
		if leftEquality {
			dv := types.NewVariable(derName, v.Type)
			dc.derivedVariables[derName] = dv
			return ast.NewVariableDecl(dv, nil), nil
		}
		return ast.NewNumber(1), nil
	}

	if _, isArg := dc.arguments[v.Name]; isArg {
		if leftEquality {
			dv := types.NewVariable(derName, v.Type)
			dc.derivedVariables[derName] = dv
			return ast.NewVariableDecl(dv, nil), nil
		}
		return ast.NewNumber(0), nil
	}

	return nil, errf("variable %q has no derivative defined", v.Name)
}

func diffUnary(dc *DiffContext, u *ast.UnaryOperator, wrt string) (ast.Expression, error) {
	switch u.Op {
	case ast.OpUnaryPlus, ast.OpUnaryMinus, ast.OpBraces:
		inner, err := DiffExpr(dc, u.Operand, wrt, false, false)
		if err != nil {
			return nil, err
		}
		return ast.NewUnary(u.Op, inner, u.Suffix), nil
	case ast.OpIncrement, ast.OpDecrement:
		return DiffExpr(dc, u.Operand, wrt, false, false)
	default:
		return nil, errf("unsupported unary operator")
	}
}

func diffBinary(dc *DiffContext, b *ast.BinaryOperator, wrt string, leftEquality bool) (ast.Expression, error) {
	if leftEquality && b.Op != ast.OpIndex {
		return nil, errf("only variables are allowed on the left side of an assignment")
	}

	switch b.Op {
	case ast.OpAdd, ast.OpSub:
		l, err := DiffExpr(dc, b.Left, wrt, false, false)
		if err != nil {
			return nil, err
		}
		r, err := DiffExpr(dc, b.Right, wrt, false, false)
		if err != nil {
			return nil, err
		}
		return ast.NewBinary(b.Op, l, r), nil

	case ast.OpMul, ast.OpMulAssign:
		dl, err := DiffExpr(dc, b.Left, wrt, false, false)
		if err != nil {
			return nil, err
		}
		dr, err := DiffExpr(dc, b.Right, wrt, false, false)
		if err != nil {
			return nil, err
		}
		combined := ast.NewBinary(ast.OpAdd,
			ast.NewBinary(ast.OpMul, dl, b.Right),
			ast.NewBinary(ast.OpMul, b.Left, dr),
		)
		if b.Op == ast.OpMulAssign {
			target, err := DiffExpr(dc, b.Left, wrt, true, false)
			if err != nil {
				return nil, err
			}
			return ast.NewBinary(ast.OpAssign, target, combined), nil
		}
		return combined, nil

	case ast.OpDiv, ast.OpDivAssign:
		dl, err := DiffExpr(dc, b.Left, wrt, false, false)
		if err != nil {
			return nil, err
		}
		dr, err := DiffExpr(dc, b.Right, wrt, false, false)
		if err != nil {
			return nil, err
		}
		numerator := ast.NewBinary(ast.OpSub,
			ast.NewBinary(ast.OpMul, dl, b.Right),
			ast.NewBinary(ast.OpMul, b.Left, dr),
		)
		denominator := ast.NewBinary(ast.OpMul, b.Right, b.Right)
		combined := ast.NewBinary(ast.OpDiv, numerator, denominator)
		if b.Op == ast.OpDivAssign {
			target, err := DiffExpr(dc, b.Left, wrt, true, false)
			if err != nil {
				return nil, err
			}
			return ast.NewBinary(ast.OpAssign, target, combined), nil
		}
		return combined, nil

	case ast.OpAssign, ast.OpAddAssign, ast.OpSubAssign:
		l, err := DiffExpr(dc, b.Left, wrt, true, false)
		if err != nil {
			return nil, err
		}
		r, err := DiffExpr(dc, b.Right, wrt, false, false)
		if err != nil {
			return nil, err
		}
		return ast.NewBinary(b.Op, l, r), nil

	case ast.OpIndex:
		l, err := DiffExpr(dc, b.Left, wrt, false, false)
		if err != nil {
			return nil, err
		}
		return ast.NewBinary(ast.OpIndex, l, b.Right), nil

	default:
		return nil, errf("unsupported binary operator in this position")
	}
}

func diffCall(dc *DiffContext, call *ast.Call, wrt string) (ast.Expression, error) {
	argDerivatives := make([]ast.Expression, len(call.Args))
	for i, a := range call.Args {
		d, err := DiffExpr(dc, a, wrt, false, false)
		if err != nil {
			return nil, err
		}
		argDerivatives[i] = d
	}

	rule, ok := dc.Registry.FindRule(dc.FuncCtx, call.Signature)
	if !ok {
		return nil, &DifferentiationError{Msg: registry.UnknownFunctionError(call.Signature).Error()}
	}
	return rule.Differentiate(call, argDerivatives), nil
}

// diffStatementList differentiates s, returning the statements it expands
// to. oneRequired collapses a multi-statement expansion into a single
// BlockStatement, matching the single-statement slots of if/while/for
// bodies the input language allows without braces.
func diffStatementList(dc *DiffContext, s ast.Statement, oneRequired bool) ([]ast.Statement, error) {
	var out []ast.Statement

	switch v := s.(type) {
	case *ast.ExpressionStatement:
		for _, argName := range dc.ArgumentNames {
			d, err := DiffExpr(dc, v.Expr, argName, false, true)
			if err != nil {
				return nil, err
			}
			out = append(out, ast.NewExpressionStatement(d))
		}
		out = append(out, s)

	case *ast.BlockStatement:
		blk, err := diffBlock(dc, v)
		if err != nil {
			return nil, err
		}
		out = []ast.Statement{blk}

	case *ast.ReturnStatement:
		stmts, err := diffReturn(dc, v)
		if err != nil {
			return nil, err
		}
		out = stmts

	case *ast.ConditionalStatement:
		stmt, err := diffConditional(dc, v)
		if err != nil {
			return nil, err
		}
		out = []ast.Statement{stmt}

	case *ast.ForLoop:
		stmts, err := diffForLoop(dc, v)
		if err != nil {
			return nil, err
		}
		out = stmts

	case *ast.Comment, *ast.Include, *ast.BreakStatement:
		out = []ast.Statement{s}

	default:
		return nil, errf("statement type %T is not supported here", s)
	}

	if oneRequired {
		if len(out) == 0 {
			return nil, errf("differentiation produced no statement where one was required")
		}
		if len(out) > 1 {
			return []ast.Statement{ast.NewBlock(out...)}, nil
		}
	}
	return out, nil
}

func diffBlock(dc *DiffContext, block *ast.BlockStatement) (*ast.BlockStatement, error) {
	out := ast.NewBlock()
	for _, s := range block.Statements {
		stmts, err := diffStatementList(dc, s, false)
		if err != nil {
			return nil, err
		}
		out.Statements = append(out.Statements, stmts...)
	}
	return out, nil
}

func diffConditional(dc *DiffContext, v *ast.ConditionalStatement) (ast.Statement, error) {
	thenList, err := diffStatementList(dc, v.Then, true)
	if err != nil {
		return nil, err
	}
	var elseStmt ast.Statement
	if v.Else != nil {
		elseList, err := diffStatementList(dc, v.Else, true)
		if err != nil {
			return nil, err
		}
		elseStmt = elseList[0]
	}
	return &ast.ConditionalStatement{Repeat: v.Repeat, Condition: v.Condition, Then: thenList[0], Else: elseStmt}, nil
}

func diffForLoop(dc *DiffContext, v *ast.ForLoop) ([]ast.Statement, error) {
	var hoisted []ast.Statement
	var newInit ast.Statement
	if v.Init != nil {
		initList, err := diffStatementList(dc, v.Init, false)
		if err != nil {
			return nil, err
		}
		if len(initList) == 0 {
			return nil, errf("for-loop init differentiated to no statements")
		}
		hoisted = initList[:len(initList)-1]
		newInit = initList[len(initList)-1]
	}

	bodyList, err := diffStatementList(dc, v.Body, true)
	if err != nil {
		return nil, err
	}

	newFor := ast.NewForLoop(newInit, v.Condition, v.Step, bodyList[0])
	return append(hoisted, newFor), nil
}

func diffReturn(dc *DiffContext, v *ast.ReturnStatement) ([]ast.Statement, error) {
	if v.Expr == nil {
		return []ast.Statement{ast.NewReturn(nil)}, nil
	}

	if len(dc.ArgumentNames) <= 1 {
		var wrt string
		if len(dc.ArgumentNames) == 1 {
			wrt = dc.ArgumentNames[0]
		}
		d, err := DiffExpr(dc, v.Expr, wrt, false, false)
		if err != nil {
			return nil, err
		}
		return []ast.Statement{ast.NewReturn(d)}, nil
	}

	varExpr, ok := v.Expr.(*ast.Variable)
	if ok && varExpr.Declaration {
		ok = false
	}
	if !ok {
		return nil, errf("only a bare variable may be returned from a function with more than one parameter")
	}

	n := len(dc.ArgumentNames)
	returnType := types.NewGenericType("std::array", varExpr.Type, types.NewType(fmt.Sprintf("%d", n)))
	returnVar := types.NewVariable(returnVarName, returnType)
	dc.FuncCtx.AddVariable(returnVar)
	dc.derivedVariables[returnVarName] = returnVar

	out := []ast.Statement{ast.NewExpressionStatement(ast.NewVariableDecl(returnVar, nil))}
	for i, argName := range dc.ArgumentNames {
		left := ast.NewBinary(ast.OpIndex, ast.NewVariableRef(returnVar), ast.NewNumber(float64(i)))
		right, err := DiffExpr(dc, v.Expr, argName, false, false)
		if err != nil {
			return nil, err
		}
		out = append(out, ast.NewExpressionStatement(ast.NewBinary(ast.OpAssign, left, right)))
	}
	out = append(out, ast.NewReturn(ast.NewVariableRef(returnVar)))
	return out, nil
}

// DiffFunction differentiates fn into its Jacobian: the name prefixed with
// "d_", the same parameter list, a return type preserved for a single
// parameter or rewritten to std::array<originalReturn, nParameters> for
// more than one, and a body differentiated under a fresh DiffContext.
func DiffFunction(fn *ast.Function, reg *registry.FunctionDiffStorage) (*ast.Function, error) {
	dc := NewDiffContext(fn, reg)

	n := len(fn.Declaration.Params)
	returnType := fn.Declaration.ReturnType
	if n > 1 {
		returnType = types.NewGenericType("std::array", fn.Declaration.ReturnType, types.NewType(fmt.Sprintf("%d", n)))
	}

	decl := ast.NewFunctionDeclaration(derivativePrefix+fn.Declaration.Name, returnType, fn.Declaration.Params)

	body, err := diffBlock(dc, fn.Body)
	if err != nil {
		return nil, err
	}

	return ast.NewFunction(decl, body, dc.FuncCtx), nil
}

// DiffFunctionDeclaration differentiates a prototype: only its name and
// return type change, exactly as for a full Function.
func DiffFunctionDeclaration(decl *ast.FunctionDeclaration) *ast.FunctionDeclaration {
	n := len(decl.Params)
	returnType := decl.ReturnType
	if n > 1 {
		returnType = types.NewGenericType("std::array", decl.ReturnType, types.NewType(fmt.Sprintf("%d", n)))
	}
	return ast.NewFunctionDeclaration(derivativePrefix+decl.Name, returnType, decl.Params)
}

const arrayIncludeName = "array"

// DiffFile differentiates every function (or prototype) in file, producing
// a new file named "d_"+file.Name that unconditionally begins with
// "#include <array>" (de-duplicating one already present), passes Includes
// and Comments through unchanged, and rejects any other top-level
// statement.
func DiffFile(file *ast.FileNode, reg *registry.FunctionDiffStorage) (*ast.FileNode, error) {
	dName := derivativePrefix + file.Name

	dCtx := context.NewChild(file.Ctx)
	out := ast.NewFile(dName, dCtx)
	out.Statements = append(out.Statements, ast.NewInclude(arrayIncludeName, true))

	for _, s := range file.Statements {
		switch v := s.(type) {
		case *ast.Include:
			if v.Angled && v.Name == arrayIncludeName {
				continue
			}
			out.Statements = append(out.Statements, v)
		case *ast.Comment:
			out.Statements = append(out.Statements, v)
		case *ast.FunctionDeclaration:
			out.Statements = append(out.Statements, DiffFunctionDeclaration(v))
		case *ast.Function:
			dFn, err := DiffFunction(v, reg)
			if err != nil {
				return nil, err
			}
			out.Statements = append(out.Statements, dFn)
		default:
			return nil, errf("top-level statement type %T cannot be differentiated", s)
		}
	}

	return out, nil
}
