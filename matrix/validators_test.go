// SPDX-License-Identifier: MIT
// Package matrix_test contains unit tests for the matrix validators.
package matrix_test

import (
	"errors"
	"math"
	"testing"

	"github.com/katalvlaran/fngen/matrix"
	"github.com/stretchr/testify/require"
)

// TestValidateSameShape covers matching and mismatched dimensions.
func TestValidateSameShape(t *testing.T) {
	t.Parallel()

	zeros := func(r, c int) matrix.Matrix {
		m, err := matrix.NewDense(r, c)
		require.NoError(t, err)
		return m
	}

	tests := []struct {
		name    string
		a, b    matrix.Matrix
		wantErr error
	}{
		{"equal 2x3", zeros(2, 3), zeros(2, 3), nil},
		{"row mismatch", zeros(2, 3), zeros(3, 3), matrix.ErrDimensionMismatch},
		{"col mismatch", zeros(2, 3), zeros(2, 4), matrix.ErrDimensionMismatch},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := matrix.ValidateSameShape(tc.a, tc.b)
			if tc.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.Truef(t, errors.Is(err, tc.wantErr),
					"expected errors.Is(%v, %v)", err, tc.wantErr)
			}
		})
	}
}

// TestValidateNotNil covers untyped and typed nil inputs.
func TestValidateNotNil(t *testing.T) {
	t.Parallel()

	var typedNil *matrix.Dense
	require.ErrorIs(t, matrix.ValidateNotNil(nil), matrix.ErrNilMatrix)
	require.ErrorIs(t, matrix.ValidateNotNil(typedNil), matrix.ErrNilMatrix)

	sq, err := matrix.NewIdentity(3)
	require.NoError(t, err)
	require.NoError(t, matrix.ValidateNotNil(sq))
}

// TestValidateTolerance normalizes signs and rejects non-finite values.
func TestValidateTolerance(t *testing.T) {
	t.Parallel()

	r, a, err := matrix.ValidateTolerance(-1e-3, 1e-6)
	require.NoError(t, err)
	require.Equal(t, 1e-3, r)
	require.Equal(t, 1e-6, a)

	_, _, err = matrix.ValidateTolerance(math.NaN(), 0)
	require.ErrorIs(t, err, matrix.ErrNaNInf)
}
