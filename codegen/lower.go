package codegen

import (
	"fmt"
	"math"

	"github.com/katalvlaran/fngen/tape"
)

// Lower compiles the nodes roots depend on into a Routine named name whose
// outputs are roots in order, reshaped as rows×cols.
//
// Implementation:
//   - Stage 1: liveness from roots (tape.Graph.Live).
//   - Stage 2: last-use position of every live node; roots are never freed.
//   - Stage 3: walk live nodes in id order (already topological), read operand
//     registers, release registers whose last reader is this instruction, then
//     allocate the destination (possibly one of the released registers: the VM
//     reads operands before writing Dst).
//
// A root set of zero length yields an empty routine (e.g. a Jacobian with no
// variables); that is legal as long as rows*cols == 0.
func Lower(g *tape.Graph, name string, rows, cols int, roots []tape.NodeID) (*Routine, error) {
	if rows < 0 || cols < 0 || rows*cols != len(roots) {
		return nil, fmt.Errorf("Lower(%s): %d roots for shape %dx%d: %w", name, len(roots), rows, cols, ErrMalformedProgram)
	}
	live, err := g.Live(roots)
	if err != nil {
		return nil, fmt.Errorf("Lower(%s): %w", name, err)
	}
	nodes := g.Nodes()

	const forever = math.MaxInt
	lastUse := make([]int, len(nodes))
	pos := 0
	for k, n := range nodes {
		if !live[k] {
			continue
		}
		if n.A != tape.NoNode {
			lastUse[n.A] = pos
		}
		if n.B != tape.NoNode {
			lastUse[n.B] = pos
		}
		pos++
	}
	for _, r := range roots {
		lastUse[r] = forever
	}

	reg := make([]int32, len(nodes))
	var (
		free []int32
		next int32
		code = make([]Instr, 0, pos)
	)
	release := func(id tape.NodeID, at int) {
		if id != tape.NoNode && lastUse[id] == at {
			free = append(free, reg[id])
			lastUse[id] = -1 // release once even when A == B
		}
	}

	pos = 0
	for k, n := range nodes {
		if !live[k] {
			continue
		}
		in := Instr{Op: n.Op, A: -1, B: -1, Imm: n.Imm}
		switch n.Op {
		case tape.OpInput:
			in.A = int32(n.Imm)
			in.Imm = 0
		case tape.OpConst:
		default:
			if n.A != tape.NoNode {
				in.A = reg[n.A]
			}
			if n.B != tape.NoNode {
				in.B = reg[n.B]
			}
		}
		release(n.A, pos)
		release(n.B, pos)

		if l := len(free); l > 0 {
			in.Dst = free[l-1]
			free = free[:l-1]
		} else {
			in.Dst = next
			next++
		}
		reg[k] = in.Dst
		code = append(code, in)
		pos++
	}

	outs := make([]int32, len(roots))
	for i, r := range roots {
		outs[i] = reg[r]
	}

	return &Routine{
		Name:      name,
		Rows:      rows,
		Cols:      cols,
		Registers: int(next),
		Code:      code,
		Outputs:   outs,
	}, nil
}

// Flatten turns a matrix of node ids into a row-major root list.
func Flatten(m [][]tape.NodeID) []tape.NodeID {
	var out []tape.NodeID
	for _, row := range m {
		out = append(out, row...)
	}
	return out
}
