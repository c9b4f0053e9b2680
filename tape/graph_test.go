package tape_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/katalvlaran/fngen/tape"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// mixed exercises every op so that Real and Var instantiations can be compared.
func mixed[S tape.Scalar[S]](xp []S) []S {
	x, p := tape.Split(xp, 3)
	r2 := tape.SquaredNorm(x)
	return []S{
		p[0].Mul(r2),
		x[0].Sin().Mul(x[1].Cos()).Add(x[2].Exp()),
		r2.Add(r2.Const(1)).Log().Sub(x[0].Div(x[1].Pow(2).Add(x[1].Const(2)))),
		r2.Add(r2.Const(0.5)).Sqrt().Neg(),
	}
}

func traceMixed(t *testing.T) (*tape.Graph, []tape.NodeID) {
	t.Helper()
	g := tape.NewGraph()
	ys := mixed(g.Inputs(4))
	require.NoError(t, g.Err())
	ids, err := tape.IDs(g, ys)
	require.NoError(t, err)
	return g, ids
}

func TestEvalMatchesReal(t *testing.T) {
	g, outs := traceMixed(t)
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 64; i++ {
		xp := []float64{rng.Float64()*2 - 1, rng.Float64()*2 - 1, rng.Float64()*2 - 1, rng.Float64()}
		got, err := g.Eval(xp, outs)
		require.NoError(t, err)
		want := tape.Floats(mixed(tape.Reals(xp)))
		require.InDeltaSlice(t, want, got, 1e-14)
	}
}

func TestSimplification(t *testing.T) {
	g := tape.NewGraph()
	in := g.Inputs(2)
	x, y := in[0], in[1]

	require.Equal(t, x.ID(), x.Add(x.Const(0)).ID(), "x+0 == x")
	require.Equal(t, x.ID(), x.Mul(x.Const(1)).ID(), "x*1 == x")
	require.Equal(t, x.ID(), x.Neg().Neg().ID(), "--x == x")
	require.Equal(t, x.Mul(y).ID(), y.Mul(x).ID(), "commutative sharing")
	require.Equal(t, x.Sin().ID(), x.Sin().ID(), "hash-consing")

	zero := x.Mul(y.Const(0))
	n, err := g.Node(zero.ID())
	require.NoError(t, err)
	require.Equal(t, tape.OpConst, n.Op)
	require.Equal(t, 0.0, n.Imm)

	folded := x.Const(2).Mul(x.Const(3)).Add(x.Const(1))
	n, err = g.Node(folded.ID())
	require.NoError(t, err)
	require.Equal(t, tape.OpConst, n.Op)
	require.Equal(t, 7.0, n.Imm)

	sub := x.Sub(x)
	n, _ = g.Node(sub.ID())
	require.Equal(t, tape.OpConst, n.Op)
}

// Cancelling forms fold to constants, so the graph stays finite at points
// where plain float64 arithmetic yields NaN.
func TestFoldingAtNonFinitePoints(t *testing.T) {
	g := tape.NewGraph()
	x := g.Inputs(1)[0]
	outs := []tape.NodeID{
		x.Div(x).ID(),
		x.Sub(x).ID(),
		x.Mul(x.Const(0)).ID(),
		x.Const(0).Div(x).ID(),
	}
	for _, id := range outs {
		n, err := g.Node(id)
		require.NoError(t, err)
		require.Equal(t, tape.OpConst, n.Op)
	}

	for _, v := range []float64{0, math.Inf(1), math.NaN()} {
		got, err := g.Eval([]float64{v}, outs)
		require.NoError(t, err)
		require.Equal(t, []float64{1, 0, 0, 0}, got, "x=%v", v)
	}

	r := tape.Real(0)
	require.True(t, math.IsNaN(float64(r.Div(r))))
	inf := tape.Real(math.Inf(1))
	require.True(t, math.IsNaN(float64(inf.Sub(inf))))
	require.True(t, math.IsNaN(float64(inf.Mul(0))))
}

func TestGradientAgainstFiniteDifferences(t *testing.T) {
	g, outs := traceMixed(t)
	vars := []tape.NodeID{g.InputID(0), g.InputID(1), g.InputID(2)}
	jac, err := g.Jacobian(outs, vars)
	require.NoError(t, err)

	xp := []float64{0.3, -0.7, 0.2, 1.5}
	approx := mat.NewDense(len(outs), len(vars), nil)
	fd.Jacobian(approx, func(y, x []float64) {
		copy(y, tape.Floats(mixed(tape.Reals(append(append([]float64{}, x...), xp[3])))))
	}, xp[:3], &fd.JacobianSettings{Formula: fd.Central})

	for i, row := range jac {
		got, err := g.Eval(xp, row)
		require.NoError(t, err)
		for j := range got {
			require.InDelta(t, approx.At(i, j), got[j], 1e-6, "J[%d][%d]", i, j)
		}
	}
}

func TestHessianIsExactAndSymmetric(t *testing.T) {
	g := tape.NewGraph()
	xp := g.Inputs(5)
	x, p := tape.Split(xp, 4)
	y := p[0].Mul(tape.SquaredNorm(x))

	vars := []tape.NodeID{0, 1, 2, 3}
	h, err := g.Hessian(y.ID(), vars)
	require.NoError(t, err)

	in := []float64{0.1, 0.2, -0.3, 0.4, -1.25}
	for i := range h {
		vals, err := g.Eval(in, h[i])
		require.NoError(t, err)
		for j, v := range vals {
			want := 0.0
			if i == j {
				want = 2 * in[4]
			}
			require.InDelta(t, want, v, 1e-15)
			require.Equal(t, h[i][j], h[j][i])
		}
	}
}

func TestGradientOfParameterIndependentOutput(t *testing.T) {
	g := tape.NewGraph()
	in := g.Inputs(2)
	y := in[1].Const(3).Mul(in[1])

	grad, err := g.Gradient(y.ID(), []tape.NodeID{in[0].ID(), in[1].ID()})
	require.NoError(t, err)
	vals, err := g.Eval([]float64{9, 9}, grad)
	require.NoError(t, err)
	require.Equal(t, []float64{0, 3}, vals)
}

func TestTracingErrors(t *testing.T) {
	g1, g2 := tape.NewGraph(), tape.NewGraph()
	a := g1.Inputs(1)[0]
	b := g2.Inputs(1)[0]

	_ = a.Add(b)
	require.ErrorIs(t, g1.Err(), tape.ErrForeignVar)

	_, err := tape.IDs(g2, []tape.Var{a})
	require.ErrorIs(t, err, tape.ErrForeignVar)

	_ = b.Sin()
	g2.Inputs(1)
	require.ErrorIs(t, g2.Err(), tape.ErrInputsSealed)

	_, err = g2.Gradient(99, nil)
	require.ErrorIs(t, err, tape.ErrUnknownNode)
}

func TestApplyDomain(t *testing.T) {
	require.True(t, math.IsNaN(tape.Apply(tape.OpLog, -1, 0, 0)))
	require.Equal(t, 8.0, tape.Apply(tape.OpPow, 2, 0, 3))
	require.Equal(t, "sqrt", tape.OpSqrt.String())
	require.Equal(t, 2, tape.OpDiv.Arity())
	require.False(t, tape.Op(200).Valid())
}
