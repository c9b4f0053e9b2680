package autodiff_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/fngen/autodiff"
	"github.com/katalvlaran/fngen/tape"
)

func bowl[S tape.Scalar[S]](xp []S) []S {
	x, p := tape.Split(xp, 4)
	return []S{p[0].Mul(tape.SquaredNorm(x))}
}

var bowlMapping = autodiff.Generic(bowl[tape.Real], bowl[tape.Var])

func TestNewBlueprint(t *testing.T) {
	bp, err := autodiff.NewBlueprint(bowlMapping, 4, 1, "bowl", autodiff.Both)
	require.NoError(t, err)
	require.Equal(t, "bowl", bp.Name())
	require.Equal(t, 5, bp.InputSize())
	require.Equal(t, autodiff.Both, bp.Derivatives())
	sig := bp.Signature()
	require.True(t, sig.Jacobian)
	require.True(t, sig.Hessian)
	require.Equal(t, []float64{1.5 * 30}, bp.Mapping().Eval([]float64{1, 2, 3, 4, 1.5}))
}

func TestNewBlueprintInvalid(t *testing.T) {
	for _, tc := range []struct {
		name   string
		m      autodiff.Mapping
		vars   int
		params int
		bpName string
		derivs autodiff.DerivativeSet
	}{
		{"nil mapping", autodiff.Mapping{}, 4, 1, "bowl", autodiff.None},
		{"half mapping", autodiff.Generic(bowl[tape.Real], nil), 4, 1, "bowl", autodiff.None},
		{"negative variables", bowlMapping, -1, 1, "bowl", autodiff.None},
		{"negative parameters", bowlMapping, 4, -2, "bowl", autodiff.None},
		{"empty name", bowlMapping, 4, 1, "", autodiff.None},
		{"path name", bowlMapping, 4, 1, "../bowl", autodiff.None},
		{"unknown derivative", bowlMapping, 4, 1, "bowl", autodiff.DerivativeSet(8)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := autodiff.NewBlueprint(tc.m, tc.vars, tc.params, tc.bpName, tc.derivs)
			require.ErrorIs(t, err, autodiff.ErrInvalidBlueprint)
		})
	}
}

func TestDerivativeSet(t *testing.T) {
	require.Equal(t, "jacobian|hessian", autodiff.Both.String())
	require.Equal(t, "none", autodiff.None.String())
	require.True(t, autodiff.Both.Has(autodiff.Hessian))
	require.False(t, autodiff.Jacobian.Has(autodiff.Hessian))

	for in, want := range map[string]autodiff.DerivativeSet{
		"":                 autodiff.None,
		"none":             autodiff.None,
		"Jacobian":         autodiff.Jacobian,
		"hessian,jacobian": autodiff.Both,
		"both":             autodiff.Both,
		"jacobian|hessian": autodiff.Both,
	} {
		got, err := autodiff.ParseDerivativeSet(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := autodiff.ParseDerivativeSet("gradient")
	require.ErrorIs(t, err, autodiff.ErrInvalidBlueprint)
}

func TestVerifySettingsPanics(t *testing.T) {
	bad := autodiff.DefaultVerifySettings()
	bad.JacobianStep = 0
	require.Panics(t, func() { autodiff.WithVerifySettings(bad) })

	bad = autodiff.DefaultVerifySettings()
	bad.HessianRTol = -1
	require.Panics(t, func() { autodiff.WithVerifySettings(bad) })

	require.Panics(t, func() { autodiff.WithCacheDir("") })
	require.Panics(t, func() { autodiff.WithLogger(nil) })
	require.NotPanics(t, func() { autodiff.WithVerifySettings(autodiff.DefaultVerifySettings()) })
}
