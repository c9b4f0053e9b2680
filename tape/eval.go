package tape

import "fmt"

// Live marks every node that roots depend on (roots included).
// Because operands precede their users, one descending pass suffices.
func (g *Graph) Live(roots []NodeID) ([]bool, error) {
	live := make([]bool, len(g.nodes))
	for _, r := range roots {
		if !g.has(r) {
			return nil, fmt.Errorf("Live(%d): %w", r, ErrUnknownNode)
		}
		live[r] = true
	}
	for k := len(g.nodes) - 1; k >= 0; k-- {
		if !live[k] {
			continue
		}
		n := g.nodes[k]
		if n.A != NoNode {
			live[n.A] = true
		}
		if n.B != NoNode {
			live[n.B] = true
		}
	}
	return live, nil
}

// Eval walks the graph and returns the values of roots for the given inputs.
// It is the reference backend: slow, allocation-heavy, obviously correct.
func (g *Graph) Eval(inputs []float64, roots []NodeID) ([]float64, error) {
	if len(inputs) != g.inputs {
		return nil, fmt.Errorf("Eval: got %d inputs, graph has %d", len(inputs), g.inputs)
	}
	live, err := g.Live(roots)
	if err != nil {
		return nil, err
	}
	vals := make([]float64, len(g.nodes))
	for k, n := range g.nodes {
		if !live[k] {
			continue
		}
		switch n.Op {
		case OpInput:
			vals[k] = inputs[int(n.Imm)]
		default:
			var a, b float64
			if n.A != NoNode {
				a = vals[n.A]
			}
			if n.B != NoNode {
				b = vals[n.B]
			}
			vals[k] = Apply(n.Op, a, b, n.Imm)
		}
	}
	out := make([]float64, len(roots))
	for i, r := range roots {
		out[i] = vals[r]
	}
	return out, nil
}
