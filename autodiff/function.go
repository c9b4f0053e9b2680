package autodiff

import (
	"fmt"

	"github.com/katalvlaran/fngen/artifact"
	"github.com/katalvlaran/fngen/codegen"
	"github.com/katalvlaran/fngen/matrix"
	"github.com/katalvlaran/fngen/vm"
)

// Function is a compiled, loaded blueprint. It is immutable; every method is
// safe for concurrent use.
type Function struct {
	manifest artifact.Manifest
	module   *vm.Module
	value    *vm.Entry
	jacobian *vm.Entry // nil unless compiled
	hessian  *vm.Entry // nil unless compiled
	verify   VerifySettings
}

func newFunction(m artifact.Manifest, mod *vm.Module, vs VerifySettings) *Function {
	fn := &Function{manifest: m, module: mod, verify: vs}
	// Presence of each entry is guaranteed by the manifest/program consistency
	// check in artifact.Store.Load.
	fn.value, _ = mod.Entry(codegen.EntryValue)
	if m.Signature.Jacobian {
		fn.jacobian, _ = mod.Entry(codegen.EntryJacobian)
	}
	if m.Signature.Hessian {
		fn.hessian, _ = mod.Entry(codegen.EntryHessian)
	}
	return fn
}

// Name returns the blueprint name the function was compiled under.
func (fn *Function) Name() string { return fn.manifest.Name }

// VariableSize returns the number of differentiated inputs.
func (fn *Function) VariableSize() int { return fn.manifest.Signature.VariableSize }

// ParameterSize returns the number of fixed inputs.
func (fn *Function) ParameterSize() int { return fn.manifest.Signature.ParameterSize }

// InputSize returns the required length of every evaluation input.
func (fn *Function) InputSize() int { return fn.manifest.Signature.InputSize() }

// OutputSize returns the length of Evaluate's result.
func (fn *Function) OutputSize() int { return fn.manifest.OutputSize }

// Manifest returns the artifact manifest the function was loaded from.
func (fn *Function) Manifest() artifact.Manifest { return fn.manifest }

// VerifySettings returns the settings used by the Test* methods.
func (fn *Function) VerifySettings() VerifySettings { return fn.verify }

// Derivatives returns the compiled derivative set.
func (fn *Function) Derivatives() DerivativeSet {
	var d DerivativeSet
	if fn.jacobian != nil {
		d |= Jacobian
	}
	if fn.hessian != nil {
		d |= Hessian
	}
	return d
}

// WithVerifySettings returns a copy of fn using s. Panics on invalid settings.
func (fn *Function) WithVerifySettings(s VerifySettings) *Function {
	s.validate()
	cp := *fn
	cp.verify = s
	return &cp
}

func (fn *Function) checkInput(op string, xp []float64) error {
	if len(xp) != fn.InputSize() {
		return fmt.Errorf("%s(%s): got %d inputs, want %d: %w", op, fn.Name(), len(xp), fn.InputSize(), ErrDimension)
	}
	return nil
}

// Evaluate returns the OutputSize values of the mapping at xp.
func (fn *Function) Evaluate(xp []float64) ([]float64, error) {
	if err := fn.checkInput("Evaluate", xp); err != nil {
		return nil, err
	}
	out := make([]float64, fn.OutputSize())
	if err := fn.value.Call(xp, out); err != nil {
		return nil, fmt.Errorf("Evaluate(%s): %w", fn.Name(), err)
	}
	return out, nil
}

// Jacobian returns the OutputSize×VariableSize matrix ∂y_i/∂x_j at xp.
//
// Errors: ErrUnsupported when Jacobian was not enabled, ErrDimension on a
// wrong input length.
func (fn *Function) Jacobian(xp []float64) (*matrix.Dense, error) {
	if fn.jacobian == nil {
		return nil, fmt.Errorf("Jacobian(%s): not compiled: %w", fn.Name(), ErrUnsupported)
	}
	if err := fn.checkInput("Jacobian", xp); err != nil {
		return nil, err
	}
	out := make([]float64, fn.jacobian.Size())
	if err := fn.jacobian.Call(xp, out); err != nil {
		return nil, fmt.Errorf("Jacobian(%s): %w", fn.Name(), err)
	}
	return matrix.NewDenseFrom(fn.OutputSize(), fn.VariableSize(), out)
}

// Hessian returns the VariableSize×VariableSize matrix of second partials of
// a single-output function at xp. Multi-output functions use Hessians.
func (fn *Function) Hessian(xp []float64) (*matrix.Dense, error) {
	if fn.hessian != nil && fn.OutputSize() != 1 {
		return nil, fmt.Errorf("Hessian(%s): %d outputs, use Hessians: %w", fn.Name(), fn.OutputSize(), ErrUnsupported)
	}
	hs, err := fn.hessians("Hessian", xp)
	if err != nil {
		return nil, err
	}
	return hs[0], nil
}

// Hessians returns one VariableSize×VariableSize matrix per output at xp.
func (fn *Function) Hessians(xp []float64) ([]*matrix.Dense, error) {
	return fn.hessians("Hessians", xp)
}

func (fn *Function) hessians(op string, xp []float64) ([]*matrix.Dense, error) {
	if fn.hessian == nil {
		return nil, fmt.Errorf("%s(%s): not compiled: %w", op, fn.Name(), ErrUnsupported)
	}
	if err := fn.checkInput(op, xp); err != nil {
		return nil, err
	}
	out := make([]float64, fn.hessian.Size())
	if err := fn.hessian.Call(xp, out); err != nil {
		return nil, fmt.Errorf("%s(%s): %w", op, fn.Name(), err)
	}
	n := fn.VariableSize()
	hs := make([]*matrix.Dense, fn.OutputSize())
	for k := range hs {
		h, err := matrix.NewDenseFrom(n, n, out[k*n*n:(k+1)*n*n])
		if err != nil {
			return nil, fmt.Errorf("%s(%s): %w", op, fn.Name(), err)
		}
		hs[k] = h
	}
	return hs, nil
}
