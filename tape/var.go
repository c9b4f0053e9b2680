package tape

import "fmt"

// Var is the traceable representation of Scalar: every operation appends a
// node to the owning Graph instead of computing a number.
//
// The zero Var belongs to no graph; operations on it are recorded as
// ErrForeignVar on the other operand's graph (or dropped if there is none).
type Var struct {
	g  *Graph
	id NodeID
}

var _ Scalar[Var] = Var{}

// ID returns the node id of v.
func (v Var) ID() NodeID { return v.id }

// Graph returns the graph v was recorded on.
func (v Var) Graph() *Graph { return v.g }

func (v Var) binary(op Op, o Var) Var {
	if v.g == nil || v.g != o.g {
		if g := pick(v.g, o.g); g != nil {
			g.fail(fmt.Errorf("%s: %w", op, ErrForeignVar))
			return Var{g: g, id: g.Const(0)}
		}
		return Var{}
	}
	return Var{g: v.g, id: v.g.Binary(op, v.id, o.id)}
}

func (v Var) unary(op Op, imm float64) Var {
	if v.g == nil {
		return Var{}
	}
	return Var{g: v.g, id: v.g.Unary(op, v.id, imm)}
}

func pick(a, b *Graph) *Graph {
	if a != nil {
		return a
	}
	return b
}

// Add records v + o.
func (v Var) Add(o Var) Var { return v.binary(OpAdd, o) }

// Sub records v - o.
func (v Var) Sub(o Var) Var { return v.binary(OpSub, o) }

// Mul records v * o.
func (v Var) Mul(o Var) Var { return v.binary(OpMul, o) }

// Div records v / o.
func (v Var) Div(o Var) Var { return v.binary(OpDiv, o) }

// Neg records -v.
func (v Var) Neg() Var { return v.unary(OpNeg, 0) }

// Sin records sin(v).
func (v Var) Sin() Var { return v.unary(OpSin, 0) }

// Cos records cos(v).
func (v Var) Cos() Var { return v.unary(OpCos, 0) }

// Exp records e**v.
func (v Var) Exp() Var { return v.unary(OpExp, 0) }

// Log records the natural logarithm of v.
func (v Var) Log() Var { return v.unary(OpLog, 0) }

// Sqrt records the square root of v.
func (v Var) Sqrt() Var { return v.unary(OpSqrt, 0) }

// Pow records v**p for a constant exponent p.
func (v Var) Pow(p float64) Var { return v.unary(OpPow, p) }

// Const records c on v's graph.
func (v Var) Const(c float64) Var {
	if v.g == nil {
		return Var{}
	}
	return Var{g: v.g, id: v.g.Const(c)}
}

// IDs returns the node ids of vs, checking that all of them belong to g.
func IDs(g *Graph, vs []Var) ([]NodeID, error) {
	out := make([]NodeID, len(vs))
	for i, v := range vs {
		if v.g != g {
			return nil, fmt.Errorf("IDs[%d]: %w", i, ErrForeignVar)
		}
		out[i] = v.id
	}
	return out, nil
}
