package diff

import (
	"testing"

	"github.com/agusespa/differentiator/internal/ast"
	"github.com/agusespa/differentiator/internal/context"
	"github.com/agusespa/differentiator/internal/parser"
	"github.com/agusespa/differentiator/internal/printer"
	"github.com/agusespa/differentiator/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func differentiate(t *testing.T, src string) (*ast.FileNode, string) {
	t.Helper()
	ctx := context.NewDefaultContext()
	p := parser.New(src, "scenario.cpp")
	file, err := p.ParseFile(ctx)
	require.NoError(t, err)

	reg := registry.NewDefaultDispatchRegistry()
	dFile, err := DiffFile(file, reg)
	require.NoError(t, err)

	return dFile, printer.PrintFile(dFile)
}

// Scenario 1: polynomial, single argument.
func TestScenarioPolynomialSingleArgument(t *testing.T) {
	_, out := differentiate(t, "float function(float x) { return std::pow(x, 3); }")
	assert.Contains(t, out, "float d_function(float x)")
	assert.Contains(t, out, "return 3 * std::pow(x, 3 - 1) * 1 + std::pow(x, 3) * std::log(x) * 0;")
}

// Scenario 2: sum-of-products, single argument.
func TestScenarioSumOfProducts(t *testing.T) {
	_, out := differentiate(t, "float function3(float x) { return x * x * x * x; }")
	assert.Contains(t, out, "float d_function3(float x)")
	assert.Contains(t, out, "return 1 * x * x * x + x * (1 * x * x + x * (1 * x + x * 1));")
}

// Scenario 3: transcendental, chain rule.
func TestScenarioTranscendentalChainRule(t *testing.T) {
	_, out := differentiate(t, "double function4(double x) { return std::sin(x) * std::pow(x, 3); }")
	assert.Contains(t, out, "double d_function4(double x)")
	assert.Contains(t, out, "return std::cos(x) * 1 * std::pow(x, 3) + std::sin(x) * (3 * std::pow(x, 3 - 1) * 1 + std::pow(x, 3) * std::log(x) * 0);")
}

// Scenario 4: multi-parameter system returning a vector.
func TestScenarioMultiParameterSystem(t *testing.T) {
	src := `std::array<double,4> system(double x1,double x2,double x3,double u) {
    std::array<double,4> r;
    r[0] = x2 + std::pow(x3,2);
    r[1] = u;
    return r;
}`
	dFile, out := differentiate(t, src)

	var dFn *ast.Function
	for _, s := range dFile.Statements {
		if fn, ok := s.(*ast.Function); ok {
			dFn = fn
		}
	}
	require.NotNil(t, dFn)

	assert.Equal(t, "d_system", dFn.Declaration.Name)
	assert.Equal(t, "std::array<std::array<double, 4>, 4>", dFn.Declaration.ReturnType.String())

	for _, name := range []string{"d_x1_r", "d_x2_r", "d_x3_r", "d_u_r"} {
		assert.Contains(t, out, "std::array<double, 4> "+name+";")
	}
	assert.Contains(t, out, "_return[0] = d_x1_r;")
	assert.Contains(t, out, "_return[1] = d_x2_r;")
	assert.Contains(t, out, "_return[2] = d_x3_r;")
	assert.Contains(t, out, "_return[3] = d_u_r;")
	assert.Contains(t, out, "return _return;")
}

// Scenario 5: absolute value via sign expansion.
func TestScenarioAbsoluteValue(t *testing.T) {
	_, out := differentiate(t, "double f(double input) { return std::abs(input); }")
	assert.Contains(t, out, "return ((input > 0) - (input < 0)) * 1;")
}

// Scenario 6: control flow preserved.
func TestScenarioControlFlowPreserved(t *testing.T) {
	src := "float g(float x) { if (x > 0) { return std::pow(x,2); } else { return x; } }"
	_, out := differentiate(t, src)
	assert.Contains(t, out, "float d_g(float x)")
	assert.Contains(t, out, "if (x > 0)")
	assert.Contains(t, out, "return 2 * std::pow(x, 2 - 1) * 1 + std::pow(x, 2) * std::log(x) * 0;")
	assert.Contains(t, out, "else")
	assert.Contains(t, out, "return 1;")
}

// Boundary: empty function body differentiates to an empty derived body.
func TestBoundaryEmptyFunctionBody(t *testing.T) {
	_, out := differentiate(t, "double noop(double x) { }")
	assert.Contains(t, out, "double d_noop(double x)")
}

// Boundary: returning a bare parameter differentiates to 1 for that
// parameter, 0 for any other.
func TestBoundaryBareParameterReturn(t *testing.T) {
	_, out := differentiate(t, "double id(double x) { return x; }")
	assert.Contains(t, out, "return 1;")
}

// Boundary: a non-variable on the left of "=" is a DifferentiationError
// unless the operator is indexing. The grammar allows any expression on
// either side of "=", so this is caught during differentiation, not
// parsing.
func TestBoundaryNonVariableAssignmentTargetErrors(t *testing.T) {
	ctx := context.NewDefaultContext()
	p := parser.New("double f(double x) { x + 1 = x; }", "bad.cpp")
	file, err := p.ParseFile(ctx)
	require.NoError(t, err)

	reg := registry.NewDefaultDispatchRegistry()
	_, err = DiffFile(file, reg)
	require.Error(t, err)
	var diffErr *DifferentiationError
	require.ErrorAs(t, err, &diffErr)
}

// Fixture: grounded on original_source/d_function.h's d_function2, whose
// primal (reconstructed by hand-tracing the literal derivative text) is a
// nested if/else-if/else with a while loop accumulating a loop-carried
// derivative through a compound assignment.
func TestFixtureNestedConditionalWhileCompoundAssignment(t *testing.T) {
	src := `double function2(float x) {
	double a = std::pow(x, 2);
	if (a > 1) {
		return 0;
	} else if (a == 2 || a == 3) {
		a = a * x;
		return a * x;
	} else {
		int i = 0;
		while (i < 5) {
			a += a * i;
			i = i + 1;
		}
		return a;
	}
}`
	_, out := differentiate(t, src)
	assert.Contains(t, out, "double d_function2(float x)")
	assert.Contains(t, out, "double d_x_a = 2 * std::pow(x, 2 - 1) * 1 + std::pow(x, 2) * std::log(x) * 0;")
	assert.Contains(t, out, "double a = std::pow(x, 2);")
	assert.Contains(t, out, "if (a > 1)")
	assert.Contains(t, out, "return 0;")
	assert.Contains(t, out, "else if (a == 2 || a == 3)")
	assert.Contains(t, out, "d_x_a = d_x_a * x + a * 1;")
	assert.Contains(t, out, "a = a * x;")
	assert.Contains(t, out, "return d_x_a * x + a * 1;")
	assert.Contains(t, out, "int d_x_i = 0;")
	assert.Contains(t, out, "int i = 0;")
	assert.Contains(t, out, "while (i < 5)")
	assert.Contains(t, out, "d_x_a += d_x_a * i + a * d_x_i;")
	assert.Contains(t, out, "a += a * i;")
	assert.Contains(t, out, "d_x_i = d_x_i + 0;")
	assert.Contains(t, out, "i = i + 1;")
	assert.Contains(t, out, "return d_x_a;")
}

// Fixture: original_source/function.h's system, a 4-parameter vector system
// assigning every element of its return array.
func TestFixtureMultiOutputSystem(t *testing.T) {
	src := `std::array<double, 4> system(double x1, double x2, double x3, double u) {
	std::array<double, 4> result;
	result[0] = x2 + std::pow(x3, 2);
	result[1] = (1 - 2 * x3) * u + std::sin(x1) - x2 + x3 - x3 * x3;
	result[2] = u;
	result[3] = x1;
	return result;
}`
	dFile, out := differentiate(t, src)

	var dFn *ast.Function
	for _, s := range dFile.Statements {
		if fn, ok := s.(*ast.Function); ok {
			dFn = fn
		}
	}
	require.NotNil(t, dFn)
	assert.Equal(t, "std::array<std::array<double, 4>, 4>", dFn.Declaration.ReturnType.String())

	for _, name := range []string{"d_x1_result", "d_x2_result", "d_x3_result", "d_u_result"} {
		assert.Contains(t, out, "std::array<double, 4> "+name+";")
	}
	assert.Contains(t, out, "_return[0] = d_x1_result;")
	assert.Contains(t, out, "_return[1] = d_x2_result;")
	assert.Contains(t, out, "_return[2] = d_x3_result;")
	assert.Contains(t, out, "_return[3] = d_u_result;")
	assert.Contains(t, out, "return _return;")
}

// Fixture: original_source/function.h's spaceVehicleSystem, an 8-parameter
// vector system returning a 6-element array.
func TestFixtureSpaceVehicleSystem(t *testing.T) {
	src := `std::array<double, 6> spaceVehicleSystem(double x, double y, double vx, double vy, double theta, double vTheta, double a, double aTheta) {
	std::array<double, 6> result;
	result[0] = vx;
	result[1] = vy;
	result[2] = std::cos(theta) * a;
	result[3] = std::sin(theta) * a;
	result[4] = vTheta;
	result[5] = aTheta;
	return result;
}`
	dFile, out := differentiate(t, src)

	var dFn *ast.Function
	for _, s := range dFile.Statements {
		if fn, ok := s.(*ast.Function); ok {
			dFn = fn
		}
	}
	require.NotNil(t, dFn)
	assert.Equal(t, "std::array<std::array<double, 6>, 8>", dFn.Declaration.ReturnType.String())

	for _, name := range []string{
		"d_x_result", "d_y_result", "d_vx_result", "d_vy_result",
		"d_theta_result", "d_vTheta_result", "d_a_result", "d_aTheta_result",
	} {
		assert.Contains(t, out, "std::array<double, 6> "+name+";")
	}
	assert.Contains(t, out, "return _return;")
}

// Fixture: original_source/function.h's pendulumSystem, a std::vector-valued
// (not std::array) 2-parameter system.
func TestFixturePendulumSystem(t *testing.T) {
	src := `std::vector<double> pendulumSystem(double theta, double dTheta) {
	std::vector<double> result(2, 0);
	result[0] = dTheta;
	result[1] = 10 - std::sin(theta);
	return result;
}`
	dFile, out := differentiate(t, src)

	var dFn *ast.Function
	for _, s := range dFile.Statements {
		if fn, ok := s.(*ast.Function); ok {
			dFn = fn
		}
	}
	require.NotNil(t, dFn)
	assert.Equal(t, "std::array<std::vector<double>, 2>", dFn.Declaration.ReturnType.String())

	assert.Contains(t, out, "std::vector<double> d_theta_result(2, 0);")
	assert.Contains(t, out, "std::vector<double> d_dTheta_result(2, 0);")
	assert.Contains(t, out, "_return[0] = d_theta_result;")
	assert.Contains(t, out, "_return[1] = d_dTheta_result;")
	assert.Contains(t, out, "return _return;")
}

// Fixture: original_source/function.h's func2, exercising std::exp and
// std::abs together.
func TestFixtureExpAbsCombination(t *testing.T) {
	src := `double func2(double input) {
	double a = std::exp(2) + std::abs(input);
	return std::pow(input, 10) * a;
}`
	_, out := differentiate(t, src)
	assert.Contains(t, out, "double d_func2(double input)")
	assert.Contains(t, out, "double d_input_a = std::exp(2) * 0 + ((input > 0) - (input < 0)) * 1;")
	assert.Contains(t, out, "double a = std::exp(2) + std::abs(input);")
	assert.Contains(t, out, "std::pow(input, 10 - 1)")
	assert.Contains(t, out, "d_input_a")
}

func TestDiffFileIncludesArrayHeader(t *testing.T) {
	_, out := differentiate(t, "double f(double x) { return x; }")
	assert.Contains(t, out, "#include <array>")
}
