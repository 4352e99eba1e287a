// Package types defines the canonical value types shared by the parser,
// context, AST, and differentiation engine: Type, FunctionSignature, and
// Variable.
package types

import "strings"

// Type is either the unknown wildcard (used during signature matching) or a
// named type with an ordered list of type-parameter Types, e.g. "int",
// "std::vector<double>", "std::array<double, 4>". A numeric literal is a
// legal type name, used as a type-level constant in generics such as
// std::array<double, 4>.
type Type struct {
	Unknown  bool
	Name     string
	Generics []Type
}

// Unknown is the wildcard Type used during signature matching.
var Unknown = Type{Unknown: true}

// NewType builds a named, non-generic Type.
func NewType(name string) Type {
	return Type{Name: name}
}

// NewGenericType builds a named Type parameterized by the given generics.
func NewGenericType(name string, generics ...Type) Type {
	return Type{Name: name, Generics: generics}
}

// Equal reports structural equality. Two unknown types are equal; an unknown
// is never equal to a named type.
func (t Type) Equal(o Type) bool {
	if t.Unknown || o.Unknown {
		return t.Unknown && o.Unknown
	}
	if t.Name != o.Name || len(t.Generics) != len(o.Generics) {
		return false
	}
	for i := range t.Generics {
		if !t.Generics[i].Equal(o.Generics[i]) {
			return false
		}
	}
	return true
}

// String renders the type the way it would appear in source.
func (t Type) String() string {
	if t.Unknown {
		return "?"
	}
	if len(t.Generics) == 0 {
		return t.Name
	}
	parts := make([]string, len(t.Generics))
	for i, g := range t.Generics {
		parts[i] = g.String()
	}
	return t.Name + "<" + strings.Join(parts, ", ") + ">"
}

// FunctionSignature is a function's name plus its ordered parameter types,
// used as a dispatch key by Context.FindFunction and the dispatch registry.
type FunctionSignature struct {
	Name       string
	ParamTypes []Type
}

// NewSignature builds a FunctionSignature from a name and param types.
func NewSignature(name string, paramTypes ...Type) FunctionSignature {
	return FunctionSignature{Name: name, ParamTypes: append([]Type(nil), paramTypes...)}
}

// Equal reports structural equality.
func (s FunctionSignature) Equal(o FunctionSignature) bool {
	if s.Name != o.Name || len(s.ParamTypes) != len(o.ParamTypes) {
		return false
	}
	for i := range s.ParamTypes {
		if !s.ParamTypes[i].Equal(o.ParamTypes[i]) {
			return false
		}
	}
	return true
}

// Copy returns a deep copy of the signature, used whenever a search routine
// needs to mutate a parameter type in place without affecting the caller's
// copy (see Context.FindFunction).
func (s FunctionSignature) Copy() FunctionSignature {
	return FunctionSignature{Name: s.Name, ParamTypes: append([]Type(nil), s.ParamTypes...)}
}

// String renders the signature for diagnostics, e.g. "std::pow(double, int)".
func (s FunctionSignature) String() string {
	parts := make([]string, len(s.ParamTypes))
	for i, t := range s.ParamTypes {
		parts[i] = t.String()
	}
	return s.Name + "(" + strings.Join(parts, ", ") + ")"
}

// Variable is a named, typed slot: a function parameter, a local, or a
// reference to either. Declaration is true when the Variable node represents
// a fresh "Type name(args)" declaration rather than a bare reference.
type Variable struct {
	Name        string
	Type        Type
	Declaration bool
}

// NewVariable builds a non-declaring Variable reference.
func NewVariable(name string, t Type) Variable {
	return Variable{Name: name, Type: t}
}
