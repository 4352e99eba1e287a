package diff

import "github.com/agusespa/differentiator/internal/ast"

// Simplify applies the algebraic peephole rules of spec.md §4.6 to e:
// identity elimination (+e, 0+e, e+0, e-0, 0*e, e*0, 1*e, e*1, e/1),
// constant folding of two Number operands under +, -, *, and recursion into
// a Call's arguments and a declaring Variable's constructor call. It never
// introduces a free variable that was not already present in e, and is
// idempotent: Simplify(Simplify(e)) produces the same tree as Simplify(e).
//
// It is not applied automatically by DiffExpr or DiffFunction; callers that
// want a shortened derivative call it explicitly as a separate pass.
func Simplify(e ast.Expression) ast.Expression {
	switch v := e.(type) {
	case *ast.UnaryOperator:
		inner := Simplify(v.Operand)
		if v.Op == ast.OpUnaryPlus {
			return inner
		}
		return ast.NewUnary(v.Op, inner, v.Suffix)

	case *ast.BinaryOperator:
		left := Simplify(v.Left)
		right := Simplify(v.Right)
		leftNum, leftIsNum := left.(*ast.Number)
		rightNum, rightIsNum := right.(*ast.Number)
		leftZero := leftIsNum && leftNum.Value == 0
		rightZero := rightIsNum && rightNum.Value == 0
		leftOne := leftIsNum && leftNum.Value == 1
		rightOne := rightIsNum && rightNum.Value == 1

		switch v.Op {
		case ast.OpAdd:
			switch {
			case leftZero:
				return right
			case rightZero:
				return left
			case leftIsNum && rightIsNum:
				return ast.NewNumber(leftNum.Value + rightNum.Value)
			}
		case ast.OpSub:
			switch {
			case rightZero:
				return left
			case leftIsNum && rightIsNum:
				return ast.NewNumber(leftNum.Value - rightNum.Value)
			}
		case ast.OpMul:
			switch {
			case leftZero || rightZero:
				return ast.NewNumber(0)
			case leftOne:
				return right
			case rightOne:
				return left
			case leftIsNum && rightIsNum:
				return ast.NewNumber(leftNum.Value * rightNum.Value)
			}
		case ast.OpDiv:
			if rightOne {
				return left
			}
		}
		return ast.NewBinary(v.Op, left, right)

	case *ast.Variable:
		if v.Declaration && v.ConstructorCall != nil {
			simplified := Simplify(v.ConstructorCall)
			call, ok := simplified.(*ast.Call)
			if !ok {
				return v
			}
			return ast.NewVariableDecl(v.Variable, call)
		}
		return v

	case *ast.Call:
		if len(v.Args) == 0 {
			return v
		}
		args := make([]ast.Expression, len(v.Args))
		for i, a := range v.Args {
			args[i] = Simplify(a)
		}
		return ast.NewCall(v.Signature, args...)

	default:
		return e
	}
}
