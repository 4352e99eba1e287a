// Package printer renders an *ast.FileNode back to source text (spec.md
// §4.3): precedence-aware parenthesization shared with internal/parser via
// ast.BinaryPrecedence/UnaryPrecedence, block indentation, and a blank line
// between top-level function statements.
package printer

import (
	"strconv"
	"strings"

	"github.com/agusespa/differentiator/internal/ast"
)

const indentUnit = "    "

// Printer accumulates rendered source text.
type Printer struct {
	sb     strings.Builder
	indent int
}

// New builds an empty Printer.
func New() *Printer {
	return &Printer{}
}

// PrintFile renders every statement in file, with a blank line before every
// statement but the first that is a Function or FunctionDeclaration or that
// follows one.
func PrintFile(file *ast.FileNode) string {
	p := New()
	var prevWasFunc bool
	for i, s := range file.Statements {
		_, isFunc := s.(*ast.Function)
		_, isDecl := s.(*ast.FunctionDeclaration)
		if i > 0 && (isFunc || isDecl || prevWasFunc) {
			p.sb.WriteByte('\n')
		}
		p.statement(s)
		prevWasFunc = isFunc || isDecl
	}
	return p.sb.String()
}

func (p *Printer) writeIndent() {
	p.sb.WriteString(strings.Repeat(indentUnit, p.indent))
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func argsString(args []ast.Expression) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = exprString(a, 100)
	}
	return strings.Join(parts, ", ")
}

// ExprString renders a single expression in isolation, with no enclosing
// statement or precedence context. Useful for logging or tooling that wants
// to show one derivative term without printing a whole file.
func ExprString(e ast.Expression) string {
	return exprString(e, 100)
}

// exprString renders e, wrapping it in parentheses only when its top-level
// operator binds strictly looser than parentPrecedence. Equal precedence
// never gets parens: the grammar's own equal-precedence chains are always
// right-nested, so a flat reprint reparses to the same shape.
func exprString(e ast.Expression, parentPrecedence int) string {
	switch v := e.(type) {
	case *ast.Number:
		return formatNumber(v.Value)
	case *ast.Variable:
		if v.Declaration {
			s := v.Type.String() + " " + v.Name
			if v.ConstructorCall != nil {
				s += "(" + argsString(v.ConstructorCall.Args) + ")"
			}
			return s
		}
		return v.Name
	case *ast.UnaryOperator:
		return unaryString(v)
	case *ast.BinaryOperator:
		return binaryString(v, parentPrecedence)
	case *ast.Call:
		return v.Signature.Name + "(" + argsString(v.Args) + ")"
	default:
		return ""
	}
}

// methodCallString renders the right child of a "." expression. The parser
// resolves a method call's signature to its fully qualified receiver-typed
// name (e.g. "std::vector::size" for vec.size()), but only the last segment
// belongs after the dot; printing the full name would not reparse, because
// the identifier scan after "." stops at the first ':'.
func methodCallString(e ast.Expression) string {
	call, ok := e.(*ast.Call)
	if !ok {
		return exprString(e, 100)
	}
	name := call.Signature.Name
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}
	return name + "(" + argsString(call.Args) + ")"
}

func unaryString(u *ast.UnaryOperator) string {
	switch u.Op {
	case ast.OpBraces:
		return "(" + exprString(u.Operand, 100) + ")"
	case ast.OpUnaryPlus:
		return "+" + exprString(u.Operand, ast.UnaryPrecedence(u.Op))
	case ast.OpUnaryMinus:
		return "-" + exprString(u.Operand, ast.UnaryPrecedence(u.Op))
	case ast.OpNot:
		return "!" + exprString(u.Operand, ast.UnaryPrecedence(u.Op))
	case ast.OpIncrement, ast.OpDecrement:
		sym := "++"
		if u.Op == ast.OpDecrement {
			sym = "--"
		}
		operand := exprString(u.Operand, ast.UnaryPrecedence(u.Op))
		if u.Suffix {
			return operand + sym
		}
		return sym + operand
	default:
		return exprString(u.Operand, 100)
	}
}

func binaryOpSymbol(op ast.BinaryOp) string {
	switch op {
	case ast.OpAdd:
		return "+"
	case ast.OpSub:
		return "-"
	case ast.OpMul:
		return "*"
	case ast.OpDiv:
		return "/"
	case ast.OpEq:
		return "=="
	case ast.OpNeq:
		return "!="
	case ast.OpLt:
		return "<"
	case ast.OpGt:
		return ">"
	case ast.OpLe:
		return "<="
	case ast.OpGe:
		return ">="
	case ast.OpAnd:
		return "&&"
	case ast.OpOr:
		return "||"
	case ast.OpAssign:
		return "="
	case ast.OpAddAssign:
		return "+="
	case ast.OpSubAssign:
		return "-="
	case ast.OpMulAssign:
		return "*="
	case ast.OpDivAssign:
		return "/="
	default:
		return "?"
	}
}

func binaryString(b *ast.BinaryOperator, parentPrecedence int) string {
	var s string
	switch b.Op {
	case ast.OpDot:
		s = exprString(b.Left, ast.BinaryPrecedence(ast.OpDot)) + "." + methodCallString(b.Right)
	case ast.OpIndex:
		s = exprString(b.Left, ast.BinaryPrecedence(ast.OpIndex)) + "[" + exprString(b.Right, 100) + "]"
	default:
		own := ast.BinaryPrecedence(b.Op)
		left := exprString(b.Left, own)
		right := exprString(b.Right, own)
		s = left + " " + binaryOpSymbol(b.Op) + " " + right
	}
	// Same-precedence operators never gain parentheses, on either side: the
	// parser itself never produces a left-nested chain for equal-precedence
	// operators (rotate only fires when the new operator binds strictly
	// tighter), and a differentiation rule's explicitly built left-nested
	// chain is left exactly as flat on reprint, matching the reference
	// differentiator's own output.
	if ast.BinaryPrecedence(b.Op) > parentPrecedence {
		return "(" + s + ")"
	}
	return s
}

func (p *Printer) statement(s ast.Statement) {
	switch v := s.(type) {
	case *ast.Include:
		p.writeIndent()
		if v.Angled {
			p.sb.WriteString("#include <" + v.Name + ">\n")
		} else {
			p.sb.WriteString("#include \"" + v.Name + "\"\n")
		}
	case *ast.Comment:
		p.writeIndent()
		p.sb.WriteString("// " + v.Text + "\n")
	case *ast.ExpressionStatement:
		p.writeIndent()
		p.sb.WriteString(exprString(v.Expr, 100) + ";\n")
	case *ast.BlockStatement:
		p.writeIndent()
		p.sb.WriteString("{\n")
		p.indent++
		for _, inner := range v.Statements {
			p.statement(inner)
		}
		p.indent--
		p.writeIndent()
		p.sb.WriteString("}\n")
	case *ast.ConditionalStatement:
		p.writeIndent()
		p.conditional(v)
	case *ast.ForLoop:
		p.writeIndent()
		p.sb.WriteString("for (" + p.forClauseString(v) + ")\n")
		p.printBody(v.Body)
	case *ast.ReturnStatement:
		p.writeIndent()
		if v.Expr == nil {
			p.sb.WriteString("return;\n")
		} else {
			p.sb.WriteString("return " + exprString(v.Expr, 100) + ";\n")
		}
	case *ast.BreakStatement:
		p.writeIndent()
		p.sb.WriteString("break;\n")
	case *ast.FunctionDeclaration:
		p.writeIndent()
		p.sb.WriteString(functionHeader(v) + ";\n")
	case *ast.Function:
		p.writeIndent()
		p.sb.WriteString(functionHeader(v.Declaration) + "\n")
		p.statement(v.Body)
	}
}

// conditional writes v's header and body, assuming the caller has already
// placed the cursor at the right indent. A chained "else if" prints on the
// same line as "else" instead of nesting the next if as an indented body,
// so a long if/else-if/else ladder stays flat instead of drifting one
// indent level deeper per branch.
func (p *Printer) conditional(v *ast.ConditionalStatement) {
	if v.Repeat {
		p.sb.WriteString("while (" + exprString(v.Condition, 100) + ")\n")
	} else {
		p.sb.WriteString("if (" + exprString(v.Condition, 100) + ")\n")
	}
	p.printBody(v.Then)
	if v.Else == nil {
		return
	}
	p.writeIndent()
	p.sb.WriteString("else")
	if elseIf, ok := v.Else.(*ast.ConditionalStatement); ok && !elseIf.Repeat {
		p.sb.WriteString(" ")
		p.conditional(elseIf)
		return
	}
	p.sb.WriteString("\n")
	p.printBody(v.Else)
}

// printBody prints a block statement inline or, for a non-block single
// statement, wraps it in its own indented line without braces.
func (p *Printer) printBody(s ast.Statement) {
	if block, ok := s.(*ast.BlockStatement); ok {
		p.statement(block)
		return
	}
	p.indent++
	p.statement(s)
	p.indent--
}

func (p *Printer) forClauseString(f *ast.ForLoop) string {
	var initStr string
	if es, ok := f.Init.(*ast.ExpressionStatement); ok {
		initStr = exprString(es.Expr, 100)
	}
	var stepStr string
	if f.Step != nil {
		stepStr = exprString(f.Step, 100)
	}
	return initStr + "; " + exprString(f.Condition, 100) + "; " + stepStr
}

func functionHeader(decl *ast.FunctionDeclaration) string {
	params := make([]string, len(decl.Params))
	for i, prm := range decl.Params {
		params[i] = prm.Type.String() + " " + prm.Name
	}
	return decl.ReturnType.String() + " " + decl.Name + "(" + strings.Join(params, ", ") + ")"
}
