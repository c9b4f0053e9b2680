package autodiff

import (
	"fmt"

	"github.com/katalvlaran/fngen/artifact"
	"github.com/katalvlaran/fngen/tape"
)

// Func is one instantiation of a mapping body. xp holds the variables
// followed by the parameters; the result length must not depend on S.
type Func[S any] func(xp []S) []S

// Mapping pairs the two instantiations of one generic body. Go cannot store
// a generic function value, so the body is instantiated at the call site:
//
//	autodiff.Generic(f[tape.Real], f[tape.Var])
type Mapping struct {
	real   Func[tape.Real]
	traced Func[tape.Var]
}

// Generic builds a Mapping from a plain and a traceable instantiation of the
// same body. Passing two different bodies is a caller error and is not detected.
//
// The compiled Function follows the traced instantiation, whose graph folds
// cancelling forms (x/x, x-x, x*0, 0/x) into constants. At points where x is
// NaN, ±Inf or a zero divisor the Function may therefore return a finite value
// where Eval returns NaN; see package tape.
func Generic(plain Func[tape.Real], traced Func[tape.Var]) Mapping {
	return Mapping{real: plain, traced: traced}
}

// Eval runs the plain instantiation on float64 inputs.
func (m Mapping) Eval(xp []float64) []float64 {
	return tape.Floats(m.real(tape.Reals(xp)))
}

// Blueprint describes a mapping, its dimensions, its name and the derivatives
// to compile. It is immutable and performs no computation.
//
// The name keys the artifact cache: a name must identify one mapping per
// signature within a cache directory. Reusing a name for a different mapping
// with the same signature is a caller obligation and is not detected.
type Blueprint struct {
	mapping       Mapping
	variableSize  int
	parameterSize int
	name          string
	derivatives   DerivativeSet
}

// NewBlueprint validates its arguments and returns a Blueprint.
//
// Errors (all wrap ErrInvalidBlueprint):
//   - a nil instantiation in m;
//   - negative variableSize or parameterSize;
//   - a name that is not an identifier ([A-Za-z_][A-Za-z0-9_]*);
//   - unknown bits in d.
func NewBlueprint(m Mapping, variableSize, parameterSize int, name string, d DerivativeSet) (Blueprint, error) {
	switch {
	case m.real == nil || m.traced == nil:
		return Blueprint{}, fmt.Errorf("NewBlueprint(%s): nil mapping: %w", name, ErrInvalidBlueprint)
	case variableSize < 0 || parameterSize < 0:
		return Blueprint{}, fmt.Errorf("NewBlueprint(%s): sizes %d/%d: %w", name, variableSize, parameterSize, ErrInvalidBlueprint)
	case !d.Valid():
		return Blueprint{}, fmt.Errorf("NewBlueprint(%s): %s: %w", name, d, ErrInvalidBlueprint)
	}
	if err := artifact.ValidateName(name); err != nil {
		return Blueprint{}, fmt.Errorf("NewBlueprint: %v: %w", err, ErrInvalidBlueprint)
	}
	return Blueprint{
		mapping:       m,
		variableSize:  variableSize,
		parameterSize: parameterSize,
		name:          name,
		derivatives:   d,
	}, nil
}

// Name returns the cache key of the blueprint.
func (b Blueprint) Name() string { return b.name }

// VariableSize returns the number of differentiated inputs.
func (b Blueprint) VariableSize() int { return b.variableSize }

// ParameterSize returns the number of inputs held fixed under differentiation.
func (b Blueprint) ParameterSize() int { return b.parameterSize }

// InputSize returns VariableSize+ParameterSize.
func (b Blueprint) InputSize() int { return b.variableSize + b.parameterSize }

// Derivatives returns the requested derivative set.
func (b Blueprint) Derivatives() DerivativeSet { return b.derivatives }

// Mapping returns the mapping the blueprint describes.
func (b Blueprint) Mapping() Mapping { return b.mapping }

// Signature is the cache key companion of Name.
func (b Blueprint) Signature() artifact.Signature {
	return artifact.Signature{
		VariableSize:  b.variableSize,
		ParameterSize: b.parameterSize,
		Jacobian:      b.derivatives.Has(Jacobian),
		Hessian:       b.derivatives.Has(Hessian),
	}
}

func (b Blueprint) valid() bool { return b.mapping.real != nil && b.mapping.traced != nil }
