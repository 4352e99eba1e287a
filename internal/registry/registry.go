// Package registry implements the dispatch table mapping a resolved
// function signature to the expression that computes its derivative
// (spec.md §4.4): FunctionDiffStorage, keyed the same way as
// internal/context's function table, canonicalized through
// Context.FindFunction before lookup so a call-site signature such as
// std::pow(float, ?) still finds the rule registered for std::pow(?, ?).
package registry

import (
	"fmt"

	"github.com/agusespa/differentiator/internal/ast"
	"github.com/agusespa/differentiator/internal/context"
	"github.com/agusespa/differentiator/internal/types"
)

// DifferentiatorRule computes the derivative of a call given the already
// -differentiated form of each of its arguments (same order as call.Args).
type DifferentiatorRule interface {
	Differentiate(call *ast.Call, argDerivatives []ast.Expression) ast.Expression
}

// RuleFunc adapts a plain function to DifferentiatorRule.
type RuleFunc func(call *ast.Call, argDerivatives []ast.Expression) ast.Expression

func (f RuleFunc) Differentiate(call *ast.Call, argDerivatives []ast.Expression) ast.Expression {
	return f(call, argDerivatives)
}

// FunctionDiffStorage holds one rule per known function signature.
type FunctionDiffStorage struct {
	rules map[string]DifferentiatorRule
}

// NewFunctionDiffStorage builds an empty registry.
func NewFunctionDiffStorage() *FunctionDiffStorage {
	return &FunctionDiffStorage{rules: make(map[string]DifferentiatorRule)}
}

// RegisterRule associates sig with rule.
func (s *FunctionDiffStorage) RegisterRule(sig types.FunctionSignature, rule DifferentiatorRule) {
	s.rules[sig.String()] = rule
}

// FindRule canonicalizes desired against ctx (so a caller-supplied,
// coerced signature still matches the wildcard signature a rule was
// registered under) and returns its rule.
func (s *FunctionDiffStorage) FindRule(ctx *context.Context, desired types.FunctionSignature) (DifferentiatorRule, bool) {
	sig := desired
	if resolved, ok := ctx.FindFunction(desired); ok {
		sig = resolved
	}
	rule, ok := s.rules[sig.String()]
	return rule, ok
}

func unary(op ast.UnaryOp, e ast.Expression) ast.Expression { return ast.NewUnary(op, e, false) }

func add(l, r ast.Expression) ast.Expression { return ast.NewBinary(ast.OpAdd, l, r) }
func sub(l, r ast.Expression) ast.Expression { return ast.NewBinary(ast.OpSub, l, r) }
func mul(l, r ast.Expression) ast.Expression { return ast.NewBinary(ast.OpMul, l, r) }
func div(l, r ast.Expression) ast.Expression { return ast.NewBinary(ast.OpDiv, l, r) }
func gt(l, r ast.Expression) ast.Expression  { return ast.NewBinary(ast.OpGt, l, r) }
func lt(l, r ast.Expression) ast.Expression  { return ast.NewBinary(ast.OpLt, l, r) }

func num(v float64) ast.Expression { return ast.NewNumber(v) }

// diffCos returns d(cos(u)) = -sin(u) * du.
func diffCos(call *ast.Call, argDerivatives []ast.Expression) ast.Expression {
	u := call.Args[0]
	sinCall := ast.NewCall(types.NewSignature("std::sin", types.Unknown), u)
	return mul(unary(ast.OpUnaryMinus, sinCall), argDerivatives[0])
}

// diffSin returns d(sin(u)) = cos(u) * du.
func diffSin(call *ast.Call, argDerivatives []ast.Expression) ast.Expression {
	u := call.Args[0]
	cosCall := ast.NewCall(types.NewSignature("std::cos", types.Unknown), u)
	return mul(cosCall, argDerivatives[0])
}

// diffPow returns the general-exponent derivative of pow(u, v):
// v * pow(u, v-1) * du + pow(u, v) * log(u) * dv.
func diffPow(call *ast.Call, argDerivatives []ast.Expression) ast.Expression {
	u, v := call.Args[0], call.Args[1]
	du, dv := argDerivatives[0], argDerivatives[1]

	powLower := ast.NewCall(call.Signature, u, sub(v, num(1)))
	left := mul(mul(v, powLower), du)

	logCall := ast.NewCall(types.NewSignature("std::log", types.Unknown), u)
	right := mul(mul(call, logCall), dv)

	return add(left, right)
}

// diffLog returns d(log(u)) = du / u.
func diffLog(call *ast.Call, argDerivatives []ast.Expression) ast.Expression {
	u := call.Args[0]
	return div(argDerivatives[0], u)
}

// diffExp returns d(exp(u)) = exp(u) * du.
func diffExp(call *ast.Call, argDerivatives []ast.Expression) ast.Expression {
	return mul(call, argDerivatives[0])
}

// diffAbs expands to the sign of the argument: ((u > 0) - (u < 0)) * du.
// abs has no derivative at zero; this rule leaves that boundary to the
// surrounding arithmetic, matching how the rest of the language has no
// notion of an undefined value.
func diffAbs(call *ast.Call, argDerivatives []ast.Expression) ast.Expression {
	u := call.Args[0]
	sign := sub(gt(u, num(0)), lt(u, num(0)))
	return mul(sign, argDerivatives[0])
}

// diffVectorConstruct differentiates std::vector(count, value): the size
// argument carries no derivative information, only the fill value does.
func diffVectorConstruct(call *ast.Call, argDerivatives []ast.Expression) ast.Expression {
	return ast.NewCall(call.Signature, call.Args[0], argDerivatives[1])
}

// diffVectorSize returns 0: a container's length is never itself a
// differentiable quantity.
func diffVectorSize(call *ast.Call, argDerivatives []ast.Expression) ast.Expression {
	return num(0)
}

// NewDefaultDispatchRegistry builds the registry backing the default
// environment (spec.md §6): the default-Context intrinsics that have a
// derivative rule. Every signature here mirrors the wildcard form the
// functions are registered under in context.NewDefaultContext.
func NewDefaultDispatchRegistry() *FunctionDiffStorage {
	s := NewFunctionDiffStorage()
	s.RegisterRule(types.NewSignature("std::cos", types.Unknown), RuleFunc(diffCos))
	s.RegisterRule(types.NewSignature("std::sin", types.Unknown), RuleFunc(diffSin))
	s.RegisterRule(types.NewSignature("std::pow", types.Unknown, types.Unknown), RuleFunc(diffPow))
	s.RegisterRule(types.NewSignature("std::log", types.Unknown), RuleFunc(diffLog))
	s.RegisterRule(types.NewSignature("std::exp", types.Unknown), RuleFunc(diffExp))
	s.RegisterRule(types.NewSignature("std::abs", types.Unknown), RuleFunc(diffAbs))
	s.RegisterRule(types.NewSignature("std::vector", types.Unknown, types.Unknown), RuleFunc(diffVectorConstruct))
	s.RegisterRule(types.NewSignature("std::vector::size"), RuleFunc(diffVectorSize))
	return s
}

// UnknownFunctionError builds the error internal/diff wraps into a
// DifferentiationError when a call's signature, even after coercion search,
// has no registered rule.
func UnknownFunctionError(sig types.FunctionSignature) error {
	return fmt.Errorf("no derivative rule registered for %s", sig.String())
}
