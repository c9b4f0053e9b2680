package tape

import "math"

// Real is the plain floating-point representation of Scalar.
type Real float64

var _ Scalar[Real] = Real(0)

// Add returns r + o.
func (r Real) Add(o Real) Real { return r + o }

// Sub returns r - o.
func (r Real) Sub(o Real) Real { return r - o }

// Mul returns r * o.
func (r Real) Mul(o Real) Real { return r * o }

// Div returns r / o.
func (r Real) Div(o Real) Real { return r / o }

// Neg returns -r.
func (r Real) Neg() Real { return -r }

// Sin returns sin(r).
func (r Real) Sin() Real { return Real(math.Sin(float64(r))) }

// Cos returns cos(r).
func (r Real) Cos() Real { return Real(math.Cos(float64(r))) }

// Exp returns e**r.
func (r Real) Exp() Real { return Real(math.Exp(float64(r))) }

// Log returns the natural logarithm of r.
func (r Real) Log() Real { return Real(math.Log(float64(r))) }

// Sqrt returns the square root of r.
func (r Real) Sqrt() Real { return Real(math.Sqrt(float64(r))) }

// Pow returns r**p.
func (r Real) Pow(p float64) Real { return Real(math.Pow(float64(r), p)) }

// Const returns c as a Real; the receiver is ignored.
func (r Real) Const(c float64) Real { return Real(c) }

// Reals converts a float64 slice into Reals.
func Reals(xs []float64) []Real {
	out := make([]Real, len(xs))
	for i, x := range xs {
		out[i] = Real(x)
	}
	return out
}

// Floats converts Reals back into a float64 slice.
func Floats(rs []Real) []float64 {
	out := make([]float64, len(rs))
	for i, r := range rs {
		out[i] = float64(r)
	}
	return out
}

// Apply evaluates a single op on concrete operands. It is the numeric
// definition every backend (constant folding, Eval, the VM) must agree with.
func Apply(op Op, a, b, imm float64) float64 {
	switch op {
	case OpConst:
		return imm
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpDiv:
		return a / b
	case OpNeg:
		return -a
	case OpSin:
		return math.Sin(a)
	case OpCos:
		return math.Cos(a)
	case OpExp:
		return math.Exp(a)
	case OpLog:
		return math.Log(a)
	case OpSqrt:
		return math.Sqrt(a)
	case OpPow:
		return math.Pow(a, imm)
	default:
		return math.NaN()
	}
}
