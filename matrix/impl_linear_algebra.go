// SPDX-License-Identifier: MIT

// Package matrix - linear algebra kernels.
//
// Purpose:
//   - Provide the small set of kernels needed to compare derivative matrices
//     (Sub for residuals in IsApprox, Scale to build expected results).
//
// Determinism:
//   - Fixed loop orders; results are always freshly allocated.
//
// AI-Hints:
//   - Pass *Dense to unlock the flat-slice fast-path; any other Matrix takes the
//     bounds-checked At/Set fallback.

package matrix

import "fmt"

// operation tags used in error wrappers
const (
	opSub   = "Sub"
	opScale = "Scale"
)

// Sub computes the element-wise difference C = A - B and returns a fresh Dense result.
//
// Errors:
//   - ErrNilMatrix (nil input), ErrDimensionMismatch (shape mismatch).
//
// Complexity:
//   - Time O(r*c), Space O(r*c).
func Sub(a, b Matrix) (Matrix, error) {
	const op = opSub
	if err := ValidateNotNil(a); err != nil {
		return nil, matrixErrorf(op, err)
	}
	if err := ValidateNotNil(b); err != nil {
		return nil, matrixErrorf(op, err)
	}
	if err := ValidateSameShape(a, b); err != nil {
		return nil, matrixErrorf(op, err)
	}

	rows, cols := a.Rows(), a.Cols()
	res, err := NewDense(rows, cols)
	if err != nil {
		return nil, matrixErrorf(op, err)
	}

	// Fast-path for two Dense matrices: single flat loop.
	if da, okA := a.(*Dense); okA {
		if db, okB := b.(*Dense); okB {
			for idx := range res.data {
				res.data[idx] = da.data[idx] - db.data[idx]
			}
			return res, nil
		}
	}

	// Fallback: generic interface loop.
	var av, bv float64
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if av, err = a.At(i, j); err != nil {
				return nil, matrixErrorf(op, err)
			}
			if bv, err = b.At(i, j); err != nil {
				return nil, matrixErrorf(op, err)
			}
			res.data[i*cols+j] = av - bv
		}
	}

	return res, nil
}

// Scale returns a new matrix whose elements are alpha * m[i,j].
// The original matrix is never mutated.
// Complexity: O(r*c).
func Scale(m Matrix, alpha float64) (Matrix, error) {
	if err := ValidateNotNil(m); err != nil {
		return nil, matrixErrorf(opScale, err)
	}

	rows, cols := m.Rows(), m.Cols()
	res, err := NewDense(rows, cols)
	if err != nil {
		return nil, matrixErrorf(opScale, err)
	}

	if dm, ok := m.(*Dense); ok {
		for idx := range res.data {
			res.data[idx] = dm.data[idx] * alpha
		}
		return res, nil
	}

	var v float64
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v, err = m.At(i, j); err != nil {
				return nil, matrixErrorf(opScale, fmt.Errorf("At(%d,%d): %w", i, j, err))
			}
			res.data[i*cols+j] = v * alpha
		}
	}

	return res, nil
}
