package autodiff

import (
	"fmt"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"

	"github.com/katalvlaran/fngen/matrix"
)

// TestFunction evaluates fn and ref at xp and reports whether they agree
// component-wise within ValueATol (absolute) or ValueRTol (relative).
// A length mismatch between the two results is a disagreement, not an error.
//
// ref receives a copy of xp.
func (fn *Function) TestFunction(xp []float64, ref func([]float64) []float64) (bool, error) {
	got, err := fn.Evaluate(xp)
	if err != nil {
		return false, err
	}
	want := ref(append([]float64(nil), xp...))
	s := fn.verify
	return floats.EqualFunc(got, want, func(a, b float64) bool {
		return scalar.EqualWithinAbsOrRel(a, b, s.ValueATol, s.ValueRTol)
	}), nil
}

// TestJacobian compares the compiled Jacobian at xp with central finite
// differences over the variables (parameters held fixed), using
// JacobianStep and |a-b| ≤ JacobianATol + JacobianRTol·|b|.
func (fn *Function) TestJacobian(xp []float64) (bool, error) {
	got, err := fn.Jacobian(xp)
	if err != nil {
		return false, err
	}
	n := fn.VariableSize()
	if n == 0 {
		return true, nil
	}

	s := fn.verify
	approx := mat.NewDense(fn.OutputSize(), n, nil)
	fd.Jacobian(approx, fn.valueAt(xp), append([]float64(nil), xp[:n]...), &fd.JacobianSettings{
		Formula: fd.Central,
		Step:    s.JacobianStep,
	})
	return fn.compare(got, approx, s.JacobianRTol, s.JacobianATol)
}

// TestHessian compares every compiled Hessian at xp with second-order central
// differences of the corresponding output, using HessianStep and
// |a-b| ≤ HessianATol + HessianRTol·|b|.
func (fn *Function) TestHessian(xp []float64) (bool, error) {
	got, err := fn.Hessians(xp)
	if err != nil {
		return false, err
	}
	n := fn.VariableSize()
	if n == 0 {
		return true, nil
	}

	s := fn.verify
	for k, h := range got {
		approx := mat.NewSymDense(n, nil)
		fd.Hessian(approx, fn.component(xp, k), append([]float64(nil), xp[:n]...), &fd.Settings{
			Formula: fd.Central,
			Step:    s.HessianStep,
		})
		ok, err := fn.compare(h, approx, s.HessianRTol, s.HessianATol)
		if err != nil || !ok {
			return ok, err
		}
	}
	return true, nil
}

// valueAt returns y = value(x||p), where p is the parameter tail of xp.
func (fn *Function) valueAt(xp []float64) func(y, x []float64) {
	n := fn.VariableSize()
	buf := append([]float64(nil), xp...)
	return func(y, x []float64) {
		copy(buf[:n], x)
		_ = fn.value.Call(buf, y) // lengths are fixed by construction
	}
}

// component returns x ↦ y_k(x||p).
func (fn *Function) component(xp []float64, k int) func(x []float64) float64 {
	y := make([]float64, fn.OutputSize())
	f := fn.valueAt(xp)
	return func(x []float64) float64 {
		f(y, x)
		return y[k]
	}
}

func (fn *Function) compare(got *matrix.Dense, approx mat.Matrix, rtol, atol float64) (bool, error) {
	r, c := approx.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data = append(data, approx.At(i, j))
		}
	}
	want, err := matrix.NewDenseFrom(r, c, data)
	if err != nil {
		return false, fmt.Errorf("verify(%s): %w", fn.Name(), err)
	}
	ok, err := matrix.AllClose(got, want, rtol, atol)
	if err != nil {
		return false, fmt.Errorf("verify(%s): %w", fn.Name(), err)
	}
	return ok, nil
}
