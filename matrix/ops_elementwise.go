// SPDX-License-Identifier: MIT

// Package matrix - numeric comparisons.
//
// Purpose:
//   - AllClose: element-wise |a-b| ≤ atol + rtol*|b| (numpy semantics).
//   - IsApprox: norm-wise ‖a-b‖_F ≤ prec·min(‖a‖_F, ‖b‖_F), the usual
//     "fuzzy equality" for whole matrices.
//
// Policy:
//   - NaN never compares equal; +Inf equals +Inf and -Inf equals -Inf.
//   - Shapes must match; mismatches are errors, not a false result.

package matrix

import "math"

// closeEnough reports |a-b| ≤ atol + rtol*|b| with the NaN/Inf policy above.
func closeEnough(av, bv, rtol, atol float64) bool {
	if math.IsNaN(av) || math.IsNaN(bv) {
		return false
	}
	if av == bv { // covers equal infinities
		return true
	}

	return math.Abs(av-bv) <= atol+rtol*math.Abs(bv)
}

// AllClose checks element-wise |a-b| ≤ atol + rtol*|b| for identical shapes.
// Returns (true,nil) if all elements satisfy the relation; (false,nil) otherwise.
// Time: O(r*c). Space: O(1). Deterministic.
//
// Policy:
//   - a and b must be non-nil and have identical shapes.
//   - rtol, atol are treated as |rtol|, |atol|; NaN/Inf tolerances yield ErrNaNInf.
//
// AI-Hints:
//   - Verification of compiled derivatives against finite differences uses this
//     with the tolerances from autodiff.VerifySettings.
func AllClose(a, b Matrix, rtol, atol float64) (bool, error) {
	rtol, atol, err := ValidateTolerance(rtol, atol)
	if err != nil {
		return false, matrixErrorf("AllClose", err)
	}
	if err = ValidateNotNil(a); err != nil {
		return false, matrixErrorf("AllClose", err)
	}
	if err = ValidateNotNil(b); err != nil {
		return false, matrixErrorf("AllClose", err)
	}
	if err = ValidateSameShape(a, b); err != nil {
		return false, matrixErrorf("AllClose", err)
	}

	// Dense fast-path: operate over flat slices when both are *Dense.
	if da, okA := a.(*Dense); okA {
		if db, okB := b.(*Dense); okB {
			for idx := range da.data {
				if !closeEnough(da.data[idx], db.data[idx], rtol, atol) {
					return false, nil // early-exit on first violation
				}
			}
			return true, nil
		}
	}

	// Generic fallback via At (bounds-safe; still deterministic).
	var av, bv float64
	for i := 0; i < a.Rows(); i++ {
		for j := 0; j < a.Cols(); j++ {
			av, _ = a.At(i, j)
			bv, _ = b.At(i, j)
			if !closeEnough(av, bv, rtol, atol) {
				return false, nil
			}
		}
	}

	return true, nil
}

// FrobeniusNorm returns √(Σ m[i,j]²).
// Complexity: O(r*c).
func FrobeniusNorm(m Matrix) (float64, error) {
	if err := ValidateNotNil(m); err != nil {
		return 0, matrixErrorf("FrobeniusNorm", err)
	}
	var sum, v float64
	if dm, ok := m.(*Dense); ok {
		for _, v = range dm.data {
			sum += v * v
		}
		return math.Sqrt(sum), nil
	}
	for i := 0; i < m.Rows(); i++ {
		for j := 0; j < m.Cols(); j++ {
			v, _ = m.At(i, j)
			sum += v * v
		}
	}

	return math.Sqrt(sum), nil
}

// IsApprox reports ‖a-b‖_F ≤ prec·min(‖a‖_F, ‖b‖_F).
// Two zero matrices are approximately equal for any prec ≥ 0.
//
// Errors:
//   - ErrNilMatrix, ErrDimensionMismatch, ErrNaNInf (non-finite prec).
//
// Complexity: O(r*c).
func IsApprox(a, b Matrix, prec float64) (bool, error) {
	if math.IsNaN(prec) || math.IsInf(prec, 0) {
		return false, matrixErrorf("IsApprox", ErrNaNInf)
	}
	diff, err := Sub(a, b)
	if err != nil {
		return false, matrixErrorf("IsApprox", err)
	}
	nd, _ := FrobeniusNorm(diff)
	na, _ := FrobeniusNorm(a)
	nb, _ := FrobeniusNorm(b)
	if math.IsNaN(nd) {
		return false, nil
	}

	return nd <= math.Abs(prec)*math.Min(na, nb), nil
}
