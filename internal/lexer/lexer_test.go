package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentifier(t *testing.T) {
	l := New("std::pow(x")
	name, err := l.ParseIdentifier(true, true)
	require.NoError(t, err)
	assert.Equal(t, "std::pow", name)
	assert.Equal(t, '(', l.Peek())
}

func TestParseIdentifierRejectsColonWithoutAllow(t *testing.T) {
	l := New("std::pow")
	name, err := l.ParseIdentifier(false, false)
	require.NoError(t, err)
	assert.Equal(t, "std", name)
	assert.Equal(t, ':', l.Peek())
}

func TestParseNumberInteger(t *testing.T) {
	l := New("123;")
	assert.Equal(t, "123", l.ParseNumber())
	assert.Equal(t, ';', l.Peek())
}

func TestParseNumberDecimal(t *testing.T) {
	l := New("3.14)")
	assert.Equal(t, "3.14", l.ParseNumber())
	assert.Equal(t, ')', l.Peek())
}

func TestParseNumberExponent(t *testing.T) {
	l := New("1e-10;")
	assert.Equal(t, "1e-10", l.ParseNumber())
	assert.Equal(t, ';', l.Peek())
}

func TestParseNumberTrailingEIsNotExponent(t *testing.T) {
	// "1e" at end of line, not followed by digits, is not exponent notation:
	// the scan rewinds to just the digits it already had.
	l := New("1e")
	assert.Equal(t, "1", l.ParseNumber())
}

func TestReadUntil(t *testing.T) {
	l := New("array>")
	name, err := l.ReadUntil('>')
	require.NoError(t, err)
	assert.Equal(t, "array", name)
	assert.Equal(t, '>', l.Peek())
}

func TestReadUntilUnexpectedEOF(t *testing.T) {
	l := New("array")
	_, err := l.ReadUntil('>')
	assert.Error(t, err)
}

func TestVerifyNextCharIsMismatch(t *testing.T) {
	l := New("abc")
	err := l.VerifyNextCharIs('x', false)
	assert.Error(t, err)
}

func TestParseOperatorStopsAtDelimiters(t *testing.T) {
	l := New("+=(y")
	op, err := l.ParseOperator()
	require.NoError(t, err)
	assert.Equal(t, "+=", op)
	assert.Equal(t, '(', l.Peek())
}

func TestStepAcrossLineBoundary(t *testing.T) {
	l := New("a\nb")
	assert.Equal(t, 'a', l.Peek())
	l.SkipWhitespace() // no-op, 'a' is not whitespace
	// advance past 'a' manually via ParseIdentifier
	_, err := l.ParseIdentifier(false, false)
	require.NoError(t, err)
	assert.Equal(t, '\n', l.Peek())
	l.SkipWhitespace()
	assert.Equal(t, 'b', l.Peek())
}

func TestPositionTracksLineAndColumn(t *testing.T) {
	l := New("ab")
	assert.Equal(t, Position{Line: 1, Column: 1}, l.Pos())
}
