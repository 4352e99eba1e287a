// Package context implements the scoped name/type/function environment
// (spec.md §4.2): an immutable-parent, mutable-child Context supporting
// variable/type/function lookup through the parent chain and a
// coercion-aware function signature search.
package context

import "github.com/agusespa/differentiator/internal/types"

// Context is a scoped environment of types, variables, functions in scope,
// and the directed coercion graph used during signature search. A Context's
// own maps are mutated only by append; ancestors are never written to by a
// child's operations (Context.Copy's cloned maps notwithstanding).
type Context struct {
	types           map[string]types.Type
	variables       map[string]types.Variable
	functions       map[string]types.FunctionSignature // keyed by FunctionSignature.String(); slices make it non-comparable as a map key
	typeConversions map[string][]types.Type
	parent          *Context
}

// New creates a root Context with no parent.
func New() *Context {
	return &Context{
		types:           make(map[string]types.Type),
		variables:       make(map[string]types.Variable),
		functions:       make(map[string]types.FunctionSignature),
		typeConversions: make(map[string][]types.Type),
	}
}

// NewChild creates a Context scoped under parent.
func NewChild(parent *Context) *Context {
	child := New()
	child.parent = parent
	return child
}

// Parent returns the enclosing Context, or nil at the root.
func (c *Context) Parent() *Context {
	return c.parent
}

// AddType registers a type name in this scope.
func (c *Context) AddType(t types.Type) {
	c.types[t.Name] = t
}

// AddVariable registers a variable in this scope.
func (c *Context) AddVariable(v types.Variable) {
	c.variables[v.Name] = v
}

// AddFunction registers a function signature as available in this scope.
func (c *Context) AddFunction(sig types.FunctionSignature) {
	c.functions[sig.String()] = sig.Copy()
}

// AddTypeConversion records that typeFrom may be implicitly coerced to
// typeTo, appending to any conversions already recorded for typeFrom in this
// scope.
func (c *Context) AddTypeConversion(typeFrom, typeTo types.Type) {
	c.typeConversions[typeFrom.Name] = append(c.typeConversions[typeFrom.Name], typeTo)
}

// IsVariablePresent walks the parent chain for a variable named name.
func (c *Context) IsVariablePresent(name string) bool {
	if _, ok := c.variables[name]; ok {
		return true
	}
	if c.parent != nil {
		return c.parent.IsVariablePresent(name)
	}
	return false
}

// IsTypePresent walks the parent chain for a type named name.
func (c *Context) IsTypePresent(name string) bool {
	if _, ok := c.types[name]; ok {
		return true
	}
	if c.parent != nil {
		return c.parent.IsTypePresent(name)
	}
	return false
}

// GetVariable walks the parent chain for a variable named name.
func (c *Context) GetVariable(name string) (types.Variable, bool) {
	if v, ok := c.variables[name]; ok {
		return v, true
	}
	if c.parent != nil {
		return c.parent.GetVariable(name)
	}
	return types.Variable{}, false
}

// GetType walks the parent chain for a type named name.
func (c *Context) GetType(name string) (types.Type, bool) {
	if t, ok := c.types[name]; ok {
		return t, true
	}
	if c.parent != nil {
		return c.parent.GetType(name)
	}
	return types.Type{}, false
}

// findExact looks for an exact match of desired in this scope or any
// ancestor, without trying any coercion.
func (c *Context) findExact(desired types.FunctionSignature) (types.FunctionSignature, bool) {
	if sig, ok := c.functions[desired.String()]; ok {
		return sig, true
	}
	if c.parent != nil {
		return c.parent.findExact(desired)
	}
	return types.FunctionSignature{}, false
}

// conversionsFor returns the coercion targets recorded for t anywhere in the
// parent chain, preferring the closest scope that defines any.
func (c *Context) conversionsFor(t types.Type) []types.Type {
	if conv, ok := c.typeConversions[t.Name]; ok {
		return conv
	}
	if c.parent != nil {
		return c.parent.conversionsFor(t)
	}
	return nil
}

// findWithConversions performs the depth-first, left-to-right coercion
// search described in spec.md §4.2 starting at parameter index paramI. The
// caller-visible entry point (FindFunction) already copies desired, so this
// recursive helper is free to mutate its local desired.ParamTypes slice.
func (c *Context) findWithConversions(desired types.FunctionSignature, paramI int) (types.FunctionSignature, bool) {
	if paramI >= len(desired.ParamTypes) {
		return types.FunctionSignature{}, false
	}

	original := desired.ParamTypes[paramI]

	desired.ParamTypes[paramI] = types.Unknown
	if sig, ok := c.findExact(desired); ok {
		return sig, true
	}
	desired.ParamTypes[paramI] = original

	for _, conversion := range c.conversionsFor(original) {
		desired.ParamTypes[paramI] = conversion
		if sig, ok := c.findExact(desired); ok {
			return sig, true
		}
		if sig, ok := c.findWithConversions(desired, paramI+1); ok {
			return sig, true
		}
	}
	desired.ParamTypes[paramI] = original

	return c.findWithConversions(desired, paramI+1)
}

// FindFunction resolves a call-site signature against the functions visible
// in this scope and its ancestors, tolerating implicit coercions (spec.md
// §4.2): first an exact match, then a left-to-right, depth-first search that
// tries the unknown wildcard and each declared coercion at every parameter
// position. The first successful combination wins.
func (c *Context) FindFunction(desired types.FunctionSignature) (types.FunctionSignature, bool) {
	if sig, ok := c.findExact(desired); ok {
		return sig, true
	}
	if len(desired.ParamTypes) == 0 {
		return types.FunctionSignature{}, false
	}
	return c.findWithConversions(desired.Copy(), 0)
}

// Copy returns a shallow clone of this scope's local maps, retaining the
// same parent. Used by the differentiation engine when it needs a scratch
// context to register newly created derivative variables without mutating
// the primal function's context.
func (c *Context) Copy() *Context {
	clone := &Context{
		types:           make(map[string]types.Type, len(c.types)),
		variables:       make(map[string]types.Variable, len(c.variables)),
		functions:       make(map[string]types.FunctionSignature, len(c.functions)),
		typeConversions: make(map[string][]types.Type, len(c.typeConversions)),
		parent:          c.parent,
	}
	for k, v := range c.types {
		clone.types[k] = v
	}
	for k, v := range c.variables {
		clone.variables[k] = v
	}
	for k, v := range c.functions {
		clone.functions[k] = v
	}
	for k, v := range c.typeConversions {
		clone.typeConversions[k] = append([]types.Type(nil), v...)
	}
	return clone
}

// NewDefaultContext builds the default environment supplied to every parse
// (spec.md §6): the types int/float/double/long/std::vector/std::array, the intrinsic
// function signatures, and the standard coercions.
func NewDefaultContext() *Context {
	c := New()

	intType := types.NewType("int")
	floatType := types.NewType("float")
	doubleType := types.NewType("double")
	longType := types.NewType("long")
	vectorType := types.NewType("std::vector")
	arrayType := types.NewType("std::array")

	c.AddType(intType)
	c.AddType(floatType)
	c.AddType(doubleType)
	c.AddType(longType)
	c.AddType(vectorType)
	c.AddType(arrayType)

	c.AddFunction(types.NewSignature("std::cos", types.Unknown))
	c.AddFunction(types.NewSignature("std::sin", types.Unknown))
	c.AddFunction(types.NewSignature("std::pow", types.Unknown, types.Unknown))
	c.AddFunction(types.NewSignature("std::log", types.Unknown))
	c.AddFunction(types.NewSignature("std::exp", types.Unknown))
	c.AddFunction(types.NewSignature("std::abs", types.Unknown))
	c.AddFunction(types.NewSignature("std::vector::size"))
	c.AddFunction(types.NewSignature("std::vector", types.Unknown, types.Unknown))

	c.AddTypeConversion(intType, floatType)
	c.AddTypeConversion(intType, doubleType)
	c.AddTypeConversion(intType, longType)
	c.AddTypeConversion(longType, doubleType)
	c.AddTypeConversion(floatType, doubleType)
	c.AddTypeConversion(types.Unknown, doubleType)

	return c
}
