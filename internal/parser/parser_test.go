package parser

import (
	"testing"

	"github.com/agusespa/differentiator/internal/ast"
	"github.com/agusespa/differentiator/internal/context"
	"github.com/agusespa/differentiator/internal/printer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSrc(t *testing.T, src string) *ast.FileNode {
	t.Helper()
	ctx := context.NewDefaultContext()
	p := New(src, "test.cpp")
	file, err := p.ParseFile(ctx)
	require.NoError(t, err)
	return file
}

func TestParseSimpleFunction(t *testing.T) {
	file := parseSrc(t, "float function(float x) { return std::pow(x, 3); }")
	require.Len(t, file.Statements, 1)

	fn, ok := file.Statements[0].(*ast.Function)
	require.True(t, ok)
	assert.Equal(t, "function", fn.Declaration.Name)
	assert.Equal(t, "float", fn.Declaration.ReturnType.Name)
	require.Len(t, fn.Declaration.Params, 1)
	assert.Equal(t, "x", fn.Declaration.Params[0].Name)
}

func TestParsePrintRoundTrip(t *testing.T) {
	src := "float function(float x) { return std::pow(x, 3); }"
	file := parseSrc(t, src)
	rendered := printer.PrintFile(file)

	reparsed := parseSrc(t, rendered)
	assert.Equal(t, rendered, printer.PrintFile(reparsed))
}

func TestParseArithmeticPrecedence(t *testing.T) {
	file := parseSrc(t, "double f(double x) { return x + x * x; }")
	rendered := printer.PrintFile(file)
	assert.Contains(t, rendered, "x + x * x")
}

func TestParseExplicitParensPreserved(t *testing.T) {
	file := parseSrc(t, "double f(double x) { return (x + x) * x; }")
	rendered := printer.PrintFile(file)
	assert.Contains(t, rendered, "(x + x) * x")
}

func TestParseDeclarationWithConstructorCall(t *testing.T) {
	file := parseSrc(t, "double f(double n) { std::vector<double> v(n, 0); return n; }")
	fn := file.Statements[0].(*ast.Function)
	declStmt := fn.Body.Statements[0].(*ast.ExpressionStatement)
	v, ok := declStmt.Expr.(*ast.Variable)
	require.True(t, ok)
	assert.True(t, v.Declaration)
	assert.Equal(t, "v", v.Name)
	require.NotNil(t, v.ConstructorCall)
}

func TestParseMethodCallRoundTrips(t *testing.T) {
	src := "double f(std::vector<double> v) { return v.size(); }"
	file := parseSrc(t, src)
	rendered := printer.PrintFile(file)
	assert.Contains(t, rendered, "return v.size();")

	reparsed := parseSrc(t, rendered)
	assert.Equal(t, rendered, printer.PrintFile(reparsed))
}

func TestParseIfElse(t *testing.T) {
	src := "float g(float x) { if (x > 0) { return x; } else { return 0; } }"
	file := parseSrc(t, src)
	fn := file.Statements[0].(*ast.Function)
	cond, ok := fn.Body.Statements[0].(*ast.ConditionalStatement)
	require.True(t, ok)
	assert.False(t, cond.Repeat)
	require.NotNil(t, cond.Else)
}

func TestParseForLoop(t *testing.T) {
	src := "double f(double x) { for (int i = 0; i < 10; i++) { x = x + 1; } return x; }"
	file := parseSrc(t, src)
	fn := file.Statements[0].(*ast.Function)
	loop, ok := fn.Body.Statements[0].(*ast.ForLoop)
	require.True(t, ok)
	require.NotNil(t, loop.Init)
	require.NotNil(t, loop.Condition)
	require.NotNil(t, loop.Step)
}

func TestParseFunctionPrototype(t *testing.T) {
	file := parseSrc(t, "double helper(double x);")
	decl, ok := file.Statements[0].(*ast.FunctionDeclaration)
	require.True(t, ok)
	assert.Equal(t, "helper", decl.Name)
}

func TestParseIncludeAngled(t *testing.T) {
	file := parseSrc(t, "#include <cmath>\n")
	inc, ok := file.Statements[0].(*ast.Include)
	require.True(t, ok)
	assert.True(t, inc.Angled)
	assert.Equal(t, "cmath", inc.Name)
}

func TestParseUnknownIdentifierIsParsingError(t *testing.T) {
	ctx := context.NewDefaultContext()
	p := New("double f(double x) { return y; }", "bad.cpp")
	_, err := p.ParseFile(ctx)
	require.Error(t, err)

	var perr *ParsingError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "bad.cpp", perr.File)
}

func TestParseMultiParamVectorReturnFunction(t *testing.T) {
	src := `std::array<double,4> system(double x1, double x2, double x3, double u) {
    std::array<double,4> r;
    r[0] = x2 + std::pow(x3, 2);
    r[1] = u;
    return r;
}`
	file := parseSrc(t, src)
	fn := file.Statements[0].(*ast.Function)
	assert.Equal(t, "system", fn.Declaration.Name)
	assert.Equal(t, "std::array", fn.Declaration.ReturnType.Name)
	require.Len(t, fn.Declaration.Params, 4)
}
