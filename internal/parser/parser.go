// Package parser implements the recursive-descent parser described in
// spec.md §4.1: a single-pass expression parser that climbs operator
// precedence by rotation rather than by separate grammar productions per
// precedence level, grounded on original_source/CppParser.cpp's
// FileReader-driven parseExpression/parseStatement/parseFunction/parseFile.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agusespa/differentiator/internal/ast"
	"github.com/agusespa/differentiator/internal/context"
	"github.com/agusespa/differentiator/internal/lexer"
	"github.com/agusespa/differentiator/internal/types"
)

// ParsingError reports a syntax error at a source position (spec.md §7).
type ParsingError struct {
	File string
	Pos  lexer.Position
	Err  error
}

func (e *ParsingError) Error() string {
	return fmt.Sprintf("%s:%s: %v", e.File, e.Pos, e.Err)
}

func (e *ParsingError) Unwrap() error { return e.Err }

// Parser drives a Lexer to build an *ast.FileNode.
type Parser struct {
	lex  *lexer.Lexer
	file string
}

// New builds a Parser over src, attributing errors to file.
func New(src, file string) *Parser {
	return &Parser{lex: lexer.New(src), file: file}
}

func (p *Parser) err(cause error) error {
	return &ParsingError{File: p.file, Pos: p.lex.Pos(), Err: cause}
}

// ParseFile parses a complete translation unit under ctx, registering
// every top-level function it declares into ctx as it goes so later
// statements can refer to earlier ones.
func (p *Parser) ParseFile(ctx *context.Context) (*ast.FileNode, error) {
	file := ast.NewFile(p.file, ctx)
	p.lex.SkipWhitespace()
	for !p.lex.AtEOF() {
		stmt, err := p.parseFileStatement(ctx)
		if err != nil {
			return nil, err
		}
		file.Statements = append(file.Statements, stmt)
		p.lex.SkipWhitespace()
	}
	return file, nil
}

func (p *Parser) parseFileStatement(ctx *context.Context) (ast.Statement, error) {
	switch p.lex.Peek() {
	case '#':
		return p.parseInclude()
	case '/':
		return p.parseComment()
	default:
		return p.parseFunction(ctx)
	}
}

func (p *Parser) parseInclude() (*ast.Include, error) {
	if err := p.lex.VerifyNextCharIs('#', false); err != nil {
		return nil, p.err(err)
	}
	kw, err := p.lex.ParseIdentifier(false, true)
	if err != nil {
		return nil, p.err(err)
	}
	if kw != "include" {
		return nil, p.err(fmt.Errorf("expected %q but found %q", "include", kw))
	}
	switch p.lex.Peek() {
	case '<':
		if err := p.lex.VerifyNextCharIs('<', false); err != nil {
			return nil, p.err(err)
		}
		name, err := p.lex.ReadUntil('>')
		if err != nil {
			return nil, p.err(err)
		}
		if err := p.lex.VerifyNextCharIs('>', true); err != nil {
			return nil, p.err(err)
		}
		return ast.NewInclude(name, true), nil
	case '"':
		if err := p.lex.VerifyNextCharIs('"', false); err != nil {
			return nil, p.err(err)
		}
		name, err := p.lex.ReadUntil('"')
		if err != nil {
			return nil, p.err(err)
		}
		if err := p.lex.VerifyNextCharIs('"', true); err != nil {
			return nil, p.err(err)
		}
		return ast.NewInclude(name, false), nil
	default:
		return nil, p.err(fmt.Errorf("expected '<' or '\"' after #include, found %q", p.lex.Peek()))
	}
}

func (p *Parser) parseComment() (*ast.Comment, error) {
	if err := p.lex.VerifyNextCharIs('/', false); err != nil {
		return nil, p.err(err)
	}
	if err := p.lex.VerifyNextCharIs('/', false); err != nil {
		return nil, p.err(err)
	}
	text, err := p.lex.ReadUntil('\n')
	if err != nil {
		return nil, p.err(err)
	}
	p.lex.SkipWhitespace()
	return ast.NewComment(strings.TrimPrefix(text, " ")), nil
}

// finishType resolves name against ctx and, if followed by '<', parses its
// generic argument list (types or numeric literal constants).
func (p *Parser) finishType(ctx *context.Context, name string) (types.Type, error) {
	base, ok := ctx.GetType(name)
	if !ok {
		return types.Type{}, p.err(fmt.Errorf("unknown type %q", name))
	}
	if p.lex.Peek() != '<' {
		return base, nil
	}
	if err := p.lex.VerifyNextCharIs('<', true); err != nil {
		return types.Type{}, p.err(err)
	}
	var generics []types.Type
	for {
		if lexer.IsDigit(p.lex.Peek()) {
			n := p.lex.ParseNumber()
			p.lex.SkipWhitespace()
			generics = append(generics, types.NewType(n))
		} else {
			gname, err := p.lex.ParseIdentifier(true, true)
			if err != nil {
				return types.Type{}, p.err(err)
			}
			gt, err := p.finishType(ctx, gname)
			if err != nil {
				return types.Type{}, err
			}
			generics = append(generics, gt)
		}
		if p.lex.Peek() == ',' {
			if err := p.lex.VerifyNextCharIs(',', true); err != nil {
				return types.Type{}, p.err(err)
			}
			continue
		}
		break
	}
	if err := p.lex.VerifyNextCharIs('>', true); err != nil {
		return types.Type{}, p.err(err)
	}
	return types.NewGenericType(base.Name, generics...), nil
}

func (p *Parser) parseType(ctx *context.Context) (types.Type, error) {
	name, err := p.lex.ParseIdentifier(true, true)
	if err != nil {
		return types.Type{}, p.err(err)
	}
	return p.finishType(ctx, name)
}

func (p *Parser) parseFunction(ctx *context.Context) (ast.Statement, error) {
	returnType, err := p.parseType(ctx)
	if err != nil {
		return nil, err
	}
	name, err := p.lex.ParseIdentifier(true, true)
	if err != nil {
		return nil, p.err(err)
	}
	if err := p.lex.VerifyNextCharIs('(', true); err != nil {
		return nil, p.err(err)
	}
	var params []types.Variable
	if p.lex.Peek() != ')' {
		for {
			pt, err := p.parseType(ctx)
			if err != nil {
				return nil, err
			}
			pname, err := p.lex.ParseIdentifier(false, true)
			if err != nil {
				return nil, p.err(err)
			}
			params = append(params, types.NewVariable(pname, pt))
			if p.lex.Peek() == ',' {
				if err := p.lex.VerifyNextCharIs(',', true); err != nil {
					return nil, p.err(err)
				}
				continue
			}
			break
		}
	}
	if err := p.lex.VerifyNextCharIs(')', true); err != nil {
		return nil, p.err(err)
	}

	decl := ast.NewFunctionDeclaration(name, returnType, params)
	ctx.AddFunction(decl.Signature())

	if p.lex.Peek() == ';' {
		if err := p.lex.VerifyNextCharIs(';', true); err != nil {
			return nil, p.err(err)
		}
		return decl, nil
	}

	fnCtx := context.NewChild(ctx)
	for _, prm := range params {
		fnCtx.AddVariable(prm)
	}
	if err := p.lex.VerifyNextCharIs('{', true); err != nil {
		return nil, p.err(err)
	}
	body, err := p.parseBlockBody(fnCtx)
	if err != nil {
		return nil, err
	}
	if err := p.lex.VerifyNextCharIs('}', true); err != nil {
		return nil, p.err(err)
	}
	return ast.NewFunction(decl, body, fnCtx), nil
}

func (p *Parser) parseBlockBody(ctx *context.Context) (*ast.BlockStatement, error) {
	block := ast.NewBlock()
	for p.lex.Peek() != '}' && !p.lex.AtEOF() {
		stmt, err := p.parseStatement(ctx)
		if err != nil {
			return nil, err
		}
		block.Statements = append(block.Statements, stmt)
		p.lex.SkipWhitespace()
	}
	return block, nil
}

func (p *Parser) parseBlock(ctx *context.Context) (*ast.BlockStatement, error) {
	if err := p.lex.VerifyNextCharIs('{', true); err != nil {
		return nil, p.err(err)
	}
	body, err := p.parseBlockBody(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.lex.VerifyNextCharIs('}', true); err != nil {
		return nil, p.err(err)
	}
	return body, nil
}

func (p *Parser) parseStatement(ctx *context.Context) (ast.Statement, error) {
	p.lex.SkipWhitespace()
	switch {
	case p.lex.Peek() == '{':
		return p.parseBlock(ctx)
	case p.lex.Peek() == '/':
		return p.parseComment()
	case lexer.IsIdentStart(p.lex.Peek()):
		kw, err := p.lex.ParseIdentifier(false, false)
		if err != nil {
			return nil, p.err(err)
		}
		switch kw {
		case "if":
			return p.parseIf(ctx)
		case "while":
			return p.parseWhile(ctx)
		case "for":
			return p.parseForLoop(ctx)
		case "return":
			return p.parseReturn(ctx)
		case "break":
			p.lex.SkipWhitespace()
			if err := p.lex.VerifyNextCharIs(';', true); err != nil {
				return nil, p.err(err)
			}
			return &ast.BreakStatement{}, nil
		default:
			if err := p.lex.StepBack(len(kw)); err != nil {
				return nil, p.err(err)
			}
			return p.parseExpressionStatement(ctx)
		}
	default:
		return p.parseExpressionStatement(ctx)
	}
}

func (p *Parser) parseExpressionStatement(ctx *context.Context) (ast.Statement, error) {
	expr, err := p.parseExpression(ctx, true)
	if err != nil {
		return nil, err
	}
	if err := p.lex.VerifyNextCharIs(';', true); err != nil {
		return nil, p.err(err)
	}
	return ast.NewExpressionStatement(expr), nil
}

func (p *Parser) parseIf(ctx *context.Context) (ast.Statement, error) {
	p.lex.SkipWhitespace()
	if err := p.lex.VerifyNextCharIs('(', true); err != nil {
		return nil, p.err(err)
	}
	cond, err := p.parseExpression(ctx, false)
	if err != nil {
		return nil, err
	}
	if err := p.lex.VerifyNextCharIs(')', true); err != nil {
		return nil, p.err(err)
	}
	then, err := p.parseStatement(ctx)
	if err != nil {
		return nil, err
	}
	p.lex.SkipWhitespace()
	if lexer.IsIdentStart(p.lex.Peek()) {
		kw, err := p.lex.ParseIdentifier(false, false)
		if err != nil {
			return nil, p.err(err)
		}
		if kw == "else" {
			p.lex.SkipWhitespace()
			elseStmt, err := p.parseStatement(ctx)
			if err != nil {
				return nil, err
			}
			return ast.NewIf(cond, then, elseStmt), nil
		}
		if err := p.lex.StepBack(len(kw)); err != nil {
			return nil, p.err(err)
		}
	}
	return ast.NewIf(cond, then, nil), nil
}

func (p *Parser) parseWhile(ctx *context.Context) (ast.Statement, error) {
	p.lex.SkipWhitespace()
	if err := p.lex.VerifyNextCharIs('(', true); err != nil {
		return nil, p.err(err)
	}
	cond, err := p.parseExpression(ctx, false)
	if err != nil {
		return nil, err
	}
	if err := p.lex.VerifyNextCharIs(')', true); err != nil {
		return nil, p.err(err)
	}
	body, err := p.parseStatement(ctx)
	if err != nil {
		return nil, err
	}
	return ast.NewWhile(cond, body), nil
}

func (p *Parser) parseForLoop(ctx *context.Context) (ast.Statement, error) {
	p.lex.SkipWhitespace()
	if err := p.lex.VerifyNextCharIs('(', true); err != nil {
		return nil, p.err(err)
	}
	var init ast.Statement
	if p.lex.Peek() == ';' {
		if err := p.lex.VerifyNextCharIs(';', true); err != nil {
			return nil, p.err(err)
		}
	} else {
		var err error
		init, err = p.parseStatement(ctx)
		if err != nil {
			return nil, err
		}
	}
	cond, err := p.parseExpression(ctx, false)
	if err != nil {
		return nil, err
	}
	if err := p.lex.VerifyNextCharIs(';', true); err != nil {
		return nil, p.err(err)
	}
	var step ast.Expression
	if p.lex.Peek() != ')' {
		step, err = p.parseExpression(ctx, false)
		if err != nil {
			return nil, err
		}
	}
	if err := p.lex.VerifyNextCharIs(')', true); err != nil {
		return nil, p.err(err)
	}
	body, err := p.parseStatement(ctx)
	if err != nil {
		return nil, err
	}
	return ast.NewForLoop(init, cond, step, body), nil
}

func (p *Parser) parseReturn(ctx *context.Context) (ast.Statement, error) {
	p.lex.SkipWhitespace()
	if p.lex.Peek() == ';' {
		if err := p.lex.VerifyNextCharIs(';', true); err != nil {
			return nil, p.err(err)
		}
		return ast.NewReturn(nil), nil
	}
	expr, err := p.parseExpression(ctx, false)
	if err != nil {
		return nil, err
	}
	if err := p.lex.VerifyNextCharIs(';', true); err != nil {
		return nil, p.err(err)
	}
	return ast.NewReturn(expr), nil
}

// exprType best-effort infers the static type of e, falling back to the
// unknown wildcard. Call carries no return type (spec.md §3), so a call
// result is always unknown; this only ever weakens signature matching to a
// coercion search, never breaks it, since Context.FindFunction already
// treats the wildcard as a candidate at every parameter position.
func exprType(e ast.Expression) types.Type {
	switch v := e.(type) {
	case *ast.Number:
		// A literal's type is left as the wildcard for signature matching: it
		// has no declared type of its own. Pinning it to "double" here would
		// leave calls like std::pow(x, 3) for a float x unresolved, because
		// the coercion search puts the wildcard at only one parameter
		// position at a time and double has no coercions of its own.
		return types.Unknown
	case *ast.Variable:
		return v.Type
	case *ast.UnaryOperator:
		return exprType(v.Operand)
	case *ast.BinaryOperator:
		if v.Op == ast.OpIndex {
			t := exprType(v.Left)
			if len(t.Generics) > 0 {
				return t.Generics[0]
			}
			return types.Unknown
		}
		return exprType(v.Left)
	default:
		return types.Unknown
	}
}

func (p *Parser) parseArgs(ctx *context.Context) ([]ast.Expression, []types.Type, error) {
	if err := p.lex.VerifyNextCharIs('(', true); err != nil {
		return nil, nil, p.err(err)
	}
	var args []ast.Expression
	var argTypes []types.Type
	if p.lex.Peek() != ')' {
		for {
			arg, err := p.parseExpression(ctx, false)
			if err != nil {
				return nil, nil, err
			}
			args = append(args, arg)
			argTypes = append(argTypes, exprType(arg))
			if p.lex.Peek() == ',' {
				if err := p.lex.VerifyNextCharIs(',', true); err != nil {
					return nil, nil, p.err(err)
				}
				continue
			}
			break
		}
	}
	if err := p.lex.VerifyNextCharIs(')', true); err != nil {
		return nil, nil, p.err(err)
	}
	return args, argTypes, nil
}

func unaryOpFor(op string) (ast.UnaryOp, bool) {
	switch op {
	case "+":
		return ast.OpUnaryPlus, true
	case "-":
		return ast.OpUnaryMinus, true
	case "!":
		return ast.OpNot, true
	case "++":
		return ast.OpIncrement, true
	case "--":
		return ast.OpDecrement, true
	}
	return 0, false
}

func binaryOpFor(op string) (ast.BinaryOp, bool) {
	switch op {
	case "+":
		return ast.OpAdd, true
	case "-":
		return ast.OpSub, true
	case "*":
		return ast.OpMul, true
	case "/":
		return ast.OpDiv, true
	case "==":
		return ast.OpEq, true
	case "!=":
		return ast.OpNeq, true
	case "<":
		return ast.OpLt, true
	case ">":
		return ast.OpGt, true
	case "<=":
		return ast.OpLe, true
	case ">=":
		return ast.OpGe, true
	case "&&":
		return ast.OpAnd, true
	case "||":
		return ast.OpOr, true
	case "=":
		return ast.OpAssign, true
	case "+=":
		return ast.OpAddAssign, true
	case "-=":
		return ast.OpSubAssign, true
	case "*=":
		return ast.OpMulAssign, true
	case "/=":
		return ast.OpDivAssign, true
	}
	return 0, false
}

// rotate implements the precedence-rotation described in spec.md §4.1: when
// the freshly parsed right operand is itself a BinaryOperator that binds
// looser than op, op is hung above right's former left child instead of
// above the whole of right, so that e.g. "a * b + c" parses as (a*b)+c
// rather than a*(b+c) even though both operators are discovered in a single
// top-down pass.
func rotate(op ast.BinaryOp, left, right ast.Expression) ast.Expression {
	if rightBin, ok := right.(*ast.BinaryOperator); ok {
		if ast.BinaryPrecedence(op) < ast.BinaryPrecedence(rightBin.Op) {
			rightBin.Left = ast.NewBinary(op, left, rightBin.Left)
			return rightBin
		}
	}
	return ast.NewBinary(op, left, right)
}

// resolveIdentifier dispatches on what name already means in ctx: a known
// variable becomes a reference, a known type starting a statement becomes a
// declaration, and anything else followed by '(' becomes a call resolved
// against ctx (spec.md §4.1 step 2).
func (p *Parser) resolveIdentifier(ctx *context.Context, name string, isFirst bool) (ast.Expression, error) {
	if v, ok := ctx.GetVariable(name); ok {
		return ast.NewVariableRef(v), nil
	}
	if isFirst && ctx.IsTypePresent(name) {
		t, err := p.finishType(ctx, name)
		if err != nil {
			return nil, err
		}
		varName, err := p.lex.ParseIdentifier(false, true)
		if err != nil {
			return nil, p.err(err)
		}
		var ctorCall *ast.Call
		if p.lex.Peek() == '(' {
			args, argTypes, err := p.parseArgs(ctx)
			if err != nil {
				return nil, err
			}
			sig := types.NewSignature(t.Name, argTypes...)
			resolved, ok := ctx.FindFunction(sig)
			if !ok {
				return nil, p.err(fmt.Errorf("no matching constructor for %s", sig))
			}
			ctorCall = ast.NewCall(resolved, args...)
		}
		v := types.NewVariable(varName, t)
		ctx.AddVariable(v)
		return ast.NewVariableDecl(v, ctorCall), nil
	}
	if p.lex.Peek() == '(' {
		args, argTypes, err := p.parseArgs(ctx)
		if err != nil {
			return nil, err
		}
		sig := types.NewSignature(name, argTypes...)
		resolved, ok := ctx.FindFunction(sig)
		if !ok {
			return nil, p.err(fmt.Errorf("no matching function for %s", sig))
		}
		return ast.NewCall(resolved, args...), nil
	}
	return nil, p.err(fmt.Errorf("unknown identifier %q", name))
}

// parseExpression parses a single expression (spec.md §4.1). isFirst gates
// whether a leading known type name may start a declaration; callers pass
// true at statement position, and the expression inside a parenthesized
// group is also parsed with isFirst true. Operands after an operator, call
// arguments, indexes and conditions are parsed with isFirst false.
func (p *Parser) parseExpression(ctx *context.Context, isFirst bool) (ast.Expression, error) {
	p.lex.SkipWhitespace()

	var left ast.Expression
	switch {
	case p.lex.Peek() == '(':
		if err := p.lex.VerifyNextCharIs('(', true); err != nil {
			return nil, p.err(err)
		}
		inner, err := p.parseExpression(ctx, true)
		if err != nil {
			return nil, err
		}
		if err := p.lex.VerifyNextCharIs(')', true); err != nil {
			return nil, p.err(err)
		}
		left = ast.NewUnary(ast.OpBraces, inner, false)
	case lexer.IsIdentStart(p.lex.Peek()):
		name, err := p.lex.ParseIdentifier(true, true)
		if err != nil {
			return nil, p.err(err)
		}
		left, err = p.resolveIdentifier(ctx, name, isFirst)
		if err != nil {
			return nil, err
		}
	case lexer.IsDigit(p.lex.Peek()):
		numText := p.lex.ParseNumber()
		p.lex.SkipWhitespace()
		val, err := strconv.ParseFloat(numText, 64)
		if err != nil {
			return nil, p.err(fmt.Errorf("invalid number %q: %w", numText, err))
		}
		left = ast.NewNumber(val)
	default:
		opText, err := p.lex.ParseOperator()
		if err != nil {
			return nil, p.err(err)
		}
		p.lex.SkipWhitespace()
		op, ok := unaryOpFor(opText)
		if !ok {
			return nil, p.err(fmt.Errorf("unexpected operator %q", opText))
		}
		operand, err := p.parseExpression(ctx, false)
		if err != nil {
			return nil, err
		}
		left = ast.NewUnary(op, operand, false)
	}

	for {
		p.lex.SkipWhitespace()
		c := p.lex.Peek()
		if p.lex.AtEOF() || c == ')' || c == ';' || c == ',' || c == ']' {
			return left, nil
		}
		if c == '.' {
			if err := p.lex.VerifyNextCharIs('.', true); err != nil {
				return nil, p.err(err)
			}
			methodName, err := p.lex.ParseIdentifier(false, true)
			if err != nil {
				return nil, p.err(err)
			}
			recvType := exprType(left)
			args, argTypes, err := p.parseArgs(ctx)
			if err != nil {
				return nil, err
			}
			sig := types.NewSignature(recvType.Name+"::"+methodName, argTypes...)
			resolved, ok := ctx.FindFunction(sig)
			if !ok {
				return nil, p.err(fmt.Errorf("no matching method for %s", sig))
			}
			left = ast.NewBinary(ast.OpDot, left, ast.NewCall(resolved, args...))
			continue
		}
		if c == '[' {
			if err := p.lex.VerifyNextCharIs('[', true); err != nil {
				return nil, p.err(err)
			}
			idx, err := p.parseExpression(ctx, false)
			if err != nil {
				return nil, err
			}
			if err := p.lex.VerifyNextCharIs(']', true); err != nil {
				return nil, p.err(err)
			}
			left = ast.NewBinary(ast.OpIndex, left, idx)
			continue
		}

		opText, err := p.lex.ParseOperator()
		if err != nil {
			return nil, p.err(err)
		}
		p.lex.SkipWhitespace()
		if opText == "++" || opText == "--" {
			op, _ := unaryOpFor(opText)
			left = ast.NewUnary(op, left, true)
			continue
		}
		binOp, ok := binaryOpFor(opText)
		if !ok {
			return nil, p.err(fmt.Errorf("unexpected operator %q", opText))
		}
		right, err := p.parseExpression(ctx, false)
		if err != nil {
			return nil, err
		}
		left = rotate(binOp, left, right)
	}
}
