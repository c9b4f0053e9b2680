package tape

import (
	"fmt"
	"math"
)

// nodeKey is the hash-consing key of a node. The constant is keyed by its bit
// pattern so that -0 and +0 stay distinct.
type nodeKey struct {
	op   Op
	a, b NodeID
	bits uint64
}

// Graph is an append-only expression DAG. It is not safe for concurrent
// mutation; tracing a mapping is a single-goroutine activity.
type Graph struct {
	nodes  []Node
	index  map[nodeKey]NodeID
	inputs int
	err    error
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{index: make(map[nodeKey]NodeID)}
}

// Len returns the number of recorded nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// NumInputs returns the number of declared inputs.
func (g *Graph) NumInputs() int { return g.inputs }

// Err returns the first error recorded while tracing, if any.
// Operations on Var cannot return errors, so misuse is sticky on the graph.
func (g *Graph) Err() error { return g.err }

func (g *Graph) fail(err error) {
	if g.err == nil {
		g.err = err
	}
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (Node, error) {
	if !g.has(id) {
		return Node{}, fmt.Errorf("Node(%d): %w", id, ErrUnknownNode)
	}
	return g.nodes[id], nil
}

func (g *Graph) has(id NodeID) bool { return id >= 0 && int(id) < len(g.nodes) }

// Inputs declares n input components and returns them as Vars. Inputs occupy
// node ids 0..n-1, so it must be called before any other node is recorded.
func (g *Graph) Inputs(n int) []Var {
	if len(g.nodes) != g.inputs {
		g.fail(ErrInputsSealed)
		return nil
	}
	out := make([]Var, n)
	for i := 0; i < n; i++ {
		id := g.intern(Node{Op: OpInput, A: NoNode, B: NoNode, Imm: float64(g.inputs)})
		g.inputs++
		out[i] = Var{g: g, id: id}
	}
	return out
}

// InputID returns the node id of input component i.
func (g *Graph) InputID(i int) NodeID { return NodeID(i) }

// Const records (or reuses) a constant node.
func (g *Graph) Const(c float64) NodeID {
	return g.intern(Node{Op: OpConst, A: NoNode, B: NoNode, Imm: c})
}

// constant reports the value of id when it is a constant node.
func (g *Graph) constant(id NodeID) (float64, bool) {
	if !g.has(id) {
		return 0, false
	}
	n := g.nodes[id]
	if n.Op != OpConst {
		return 0, false
	}
	return n.Imm, true
}

func (g *Graph) isConst(id NodeID, c float64) bool {
	v, ok := g.constant(id)
	return ok && v == c
}

// intern appends n unless an identical node already exists.
func (g *Graph) intern(n Node) NodeID {
	key := nodeKey{op: n.Op, a: n.A, b: n.B, bits: math.Float64bits(n.Imm)}
	if id, ok := g.index[key]; ok {
		return id
	}
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.index[key] = id
	return id
}

// Unary records op(a) after simplification.
func (g *Graph) Unary(op Op, a NodeID, imm float64) NodeID {
	if !g.has(a) {
		g.fail(fmt.Errorf("%s(%d): %w", op, a, ErrUnknownNode))
		return g.Const(math.NaN())
	}
	if av, ok := g.constant(a); ok {
		return g.Const(Apply(op, av, 0, imm))
	}
	switch op {
	case OpNeg:
		if n := g.nodes[a]; n.Op == OpNeg {
			return n.A
		}
	case OpPow:
		switch imm {
		case 0:
			return g.Const(1)
		case 1:
			return a
		}
	}
	return g.intern(Node{Op: op, A: a, B: NoNode, Imm: immFor(op, imm)})
}

// imm is only meaningful for OpPow; other unary ops normalize it for hashing.
func immFor(op Op, imm float64) float64 {
	if op == OpPow {
		return imm
	}
	return 0
}

// Binary records a op b after simplification.
func (g *Graph) Binary(op Op, a, b NodeID) NodeID {
	if !g.has(a) || !g.has(b) {
		g.fail(fmt.Errorf("%s(%d,%d): %w", op, a, b, ErrUnknownNode))
		return g.Const(math.NaN())
	}
	av, aConst := g.constant(a)
	bv, bConst := g.constant(b)
	if aConst && bConst {
		return g.Const(Apply(op, av, bv, 0))
	}

	switch op {
	case OpAdd:
		switch {
		case g.isConst(a, 0):
			return b
		case g.isConst(b, 0):
			return a
		case g.nodes[b].Op == OpNeg:
			return g.Binary(OpSub, a, g.nodes[b].A)
		case g.nodes[a].Op == OpNeg:
			return g.Binary(OpSub, b, g.nodes[a].A)
		}
		if a > b { // commutative: canonical operand order improves sharing
			a, b = b, a
		}
	case OpSub:
		switch {
		case a == b:
			return g.Const(0)
		case g.isConst(b, 0):
			return a
		case g.isConst(a, 0):
			return g.Unary(OpNeg, b, 0)
		case g.nodes[b].Op == OpNeg:
			return g.Binary(OpAdd, a, g.nodes[b].A)
		}
	case OpMul:
		switch {
		case g.isConst(a, 0), g.isConst(b, 0):
			return g.Const(0)
		case g.isConst(a, 1):
			return b
		case g.isConst(b, 1):
			return a
		case g.isConst(a, -1):
			return g.Unary(OpNeg, b, 0)
		case g.isConst(b, -1):
			return g.Unary(OpNeg, a, 0)
		}
		if a > b {
			a, b = b, a
		}
	case OpDiv:
		switch {
		case g.isConst(a, 0):
			return g.Const(0)
		case g.isConst(b, 1):
			return a
		case a == b:
			return g.Const(1)
		}
	}
	return g.intern(Node{Op: op, A: a, B: b})
}

// Nodes returns a copy of the nodes with ids 0..n-1.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}
