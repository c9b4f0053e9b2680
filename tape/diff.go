package tape

import "fmt"

// Gradient returns ∂out/∂wrt[i] for every i as new nodes of g.
//
// Implementation: symbolic reverse accumulation. Adjoints are graph nodes, so
// the result can itself be differentiated (Hessian) or lowered to code.
// Nodes are visited from out down to 0; because ids are topological, every
// adjoint is complete when its node is reached. Nodes appended while sweeping
// have ids > out and are never visited.
//
// wrt should name input nodes; a wrt id greater than out has derivative 0.
//
// Complexity: O(out) node visits, each appending O(1) nodes before simplification.
func (g *Graph) Gradient(out NodeID, wrt []NodeID) ([]NodeID, error) {
	if !g.has(out) {
		return nil, fmt.Errorf("Gradient(%d): %w", out, ErrUnknownNode)
	}
	for _, w := range wrt {
		if !g.has(w) {
			return nil, fmt.Errorf("Gradient(wrt %d): %w", w, ErrUnknownNode)
		}
	}

	adj := make([]NodeID, int(out)+1)
	for i := range adj {
		adj[i] = NoNode
	}
	adj[out] = g.Const(1)

	for k := out; k >= 0; k-- {
		a := adj[k]
		if a == NoNode {
			continue // k does not influence out
		}
		n := g.nodes[k]
		switch n.Op {
		case OpConst, OpInput:
			// leaves
		case OpAdd:
			g.accumulate(adj, n.A, a)
			g.accumulate(adj, n.B, a)
		case OpSub:
			g.accumulate(adj, n.A, a)
			g.accumulate(adj, n.B, g.Unary(OpNeg, a, 0))
		case OpMul:
			g.accumulate(adj, n.A, g.Binary(OpMul, a, n.B))
			g.accumulate(adj, n.B, g.Binary(OpMul, a, n.A))
		case OpDiv:
			// y = A/B: dA = a/B, dB = -a*y/B
			g.accumulate(adj, n.A, g.Binary(OpDiv, a, n.B))
			g.accumulate(adj, n.B, g.Unary(OpNeg, g.Binary(OpMul, a, g.Binary(OpDiv, k, n.B)), 0))
		case OpNeg:
			g.accumulate(adj, n.A, g.Unary(OpNeg, a, 0))
		case OpSin:
			g.accumulate(adj, n.A, g.Binary(OpMul, a, g.Unary(OpCos, n.A, 0)))
		case OpCos:
			g.accumulate(adj, n.A, g.Unary(OpNeg, g.Binary(OpMul, a, g.Unary(OpSin, n.A, 0)), 0))
		case OpExp:
			g.accumulate(adj, n.A, g.Binary(OpMul, a, k))
		case OpLog:
			g.accumulate(adj, n.A, g.Binary(OpDiv, a, n.A))
		case OpSqrt:
			// y = sqrt(A): dA = a / (2y)
			g.accumulate(adj, n.A, g.Binary(OpDiv, a, g.Binary(OpMul, g.Const(2), k)))
		case OpPow:
			// y = A^c: dA = a * c * A^(c-1)
			d := g.Binary(OpMul, g.Const(n.Imm), g.Unary(OpPow, n.A, n.Imm-1))
			g.accumulate(adj, n.A, g.Binary(OpMul, a, d))
		default:
			return nil, fmt.Errorf("Gradient: node %d has op %s: %w", k, n.Op, ErrUnknownNode)
		}
	}

	res := make([]NodeID, len(wrt))
	for i, w := range wrt {
		if w <= out && adj[w] != NoNode {
			res[i] = adj[w]
		} else {
			res[i] = g.Const(0)
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	return res, nil
}

func (g *Graph) accumulate(adj []NodeID, id, contribution NodeID) {
	if adj[id] == NoNode {
		adj[id] = contribution
		return
	}
	adj[id] = g.Binary(OpAdd, adj[id], contribution)
}

// Jacobian returns J[i][j] = ∂outs[i]/∂wrt[j].
func (g *Graph) Jacobian(outs, wrt []NodeID) ([][]NodeID, error) {
	jac := make([][]NodeID, len(outs))
	for i, out := range outs {
		row, err := g.Gradient(out, wrt)
		if err != nil {
			return nil, fmt.Errorf("Jacobian row %d: %w", i, err)
		}
		jac[i] = row
	}
	return jac, nil
}

// Hessian returns H[i][j] = ∂²out/∂wrt[i]∂wrt[j]. The upper triangle is
// derived and mirrored, so the result is exactly symmetric.
func (g *Graph) Hessian(out NodeID, wrt []NodeID) ([][]NodeID, error) {
	grad, err := g.Gradient(out, wrt)
	if err != nil {
		return nil, fmt.Errorf("Hessian: %w", err)
	}
	n := len(wrt)
	h := make([][]NodeID, n)
	for i := range h {
		h[i] = make([]NodeID, n)
	}
	for i := 0; i < n; i++ {
		row, err := g.Gradient(grad[i], wrt)
		if err != nil {
			return nil, fmt.Errorf("Hessian row %d: %w", i, err)
		}
		for j := i; j < n; j++ {
			h[i][j] = row[j]
			h[j][i] = row[j]
		}
	}
	return h, nil
}
