package codegen

import (
	"fmt"

	"github.com/katalvlaran/fngen/tape"
)

// Roots names the graph nodes every entry point must produce.
// A nil Jacobian or Hessians means the entry is not compiled.
type Roots struct {
	Value    []tape.NodeID
	Jacobian [][]tape.NodeID   // [output][variable]
	Hessians [][][]tape.NodeID // [output][variable][variable]
}

// Build lowers every requested entry point of g into one validated Program.
// The graph's inputs are the variables followed by the parameters.
func Build(g *tape.Graph, variableSize int, roots Roots) (*Program, error) {
	p := &Program{
		Format:       FormatVersion,
		InputSize:    g.NumInputs(),
		VariableSize: variableSize,
		OutputSize:   len(roots.Value),
	}

	add := func(name string, ids []tape.NodeID) error {
		rows, cols, _ := p.Shape(name)
		r, err := Lower(g, name, rows, cols, ids)
		if err != nil {
			return err
		}
		p.Routines = append(p.Routines, *r)
		return nil
	}

	if err := add(EntryValue, roots.Value); err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}
	if roots.Jacobian != nil {
		if err := add(EntryJacobian, Flatten(roots.Jacobian)); err != nil {
			return nil, fmt.Errorf("Build: %w", err)
		}
	}
	if roots.Hessians != nil {
		var ids []tape.NodeID
		for _, h := range roots.Hessians {
			ids = append(ids, Flatten(h)...)
		}
		if err := add(EntryHessian, ids); err != nil {
			return nil, fmt.Errorf("Build: %w", err)
		}
	}

	if err := Validate(p); err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}
	return p, nil
}
