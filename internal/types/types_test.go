package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeEqual(t *testing.T) {
	double := NewType("double")
	otherDouble := NewType("double")
	float := NewType("float")
	array := NewGenericType("std::array", double, NewType("4"))
	arrayAgain := NewGenericType("std::array", NewType("double"), NewType("4"))

	assert.True(t, double.Equal(otherDouble))
	assert.False(t, double.Equal(float))
	assert.True(t, Unknown.Equal(Unknown))
	assert.False(t, Unknown.Equal(double))
	assert.False(t, double.Equal(Unknown))
	assert.True(t, array.Equal(arrayAgain))
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "double", NewType("double").String())
	assert.Equal(t, "?", Unknown.String())
	assert.Equal(t, "std::array<double, 4>", NewGenericType("std::array", NewType("double"), NewType("4")).String())
}

func TestFunctionSignatureString(t *testing.T) {
	sig := NewSignature("std::pow", Unknown, Unknown)
	assert.Equal(t, "std::pow(?, ?)", sig.String())

	noArgs := NewSignature("std::vector::size")
	assert.Equal(t, "std::vector::size()", noArgs.String())
}

func TestFunctionSignatureCopyIsIndependent(t *testing.T) {
	sig := NewSignature("std::pow", Unknown, Unknown)
	cpy := sig.Copy()
	cpy.ParamTypes[0] = NewType("double")

	assert.True(t, sig.ParamTypes[0].Unknown, "mutating the copy must not affect the original")
	assert.False(t, sig.Equal(cpy))
}

func TestFunctionSignatureEqual(t *testing.T) {
	a := NewSignature("std::pow", NewType("double"), NewType("double"))
	b := NewSignature("std::pow", NewType("double"), NewType("double"))
	c := NewSignature("std::pow", NewType("int"), NewType("double"))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
