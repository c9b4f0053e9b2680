// Package vm executes codegen Programs.
//
// A Module is built once from a validated Program and is then read-only: each
// entry keeps its routine plus a sync.Pool of scratch register files, so any
// number of goroutines may Call the same entry concurrently.
//
// Because codegen.Validate has already checked every register index, operand
// definition and input index, the interpreter loop performs no bounds logic
// of its own beyond what Go does for slices.
package vm

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/katalvlaran/fngen/codegen"
	"github.com/katalvlaran/fngen/tape"
)

// Sentinel errors.
var (
	// ErrUnknownEntry indicates the Module has no routine under the requested name.
	ErrUnknownEntry = errors.New("vm: unknown entry point")
	// ErrInputLength indicates xp does not have InputSize components.
	ErrInputLength = errors.New("vm: input length mismatch")
	// ErrOutputLength indicates out cannot hold Rows*Cols values.
	ErrOutputLength = errors.New("vm: output length mismatch")
)

// Entry is one callable routine of a Module.
type Entry struct {
	routine   codegen.Routine
	inputSize int
	scratch   sync.Pool
}

// Module is a loaded Program.
type Module struct {
	entries map[string]*Entry
}

// New validates p and prepares its routines for execution.
func New(p *codegen.Program) (*Module, error) {
	if err := codegen.Validate(p); err != nil {
		return nil, fmt.Errorf("vm.New: %w", err)
	}
	m := &Module{entries: make(map[string]*Entry, len(p.Routines))}
	for _, r := range p.Routines {
		e := &Entry{routine: r, inputSize: p.InputSize}
		n := r.Registers
		e.scratch.New = func() any {
			regs := make([]float64, n)
			return &regs
		}
		m.entries[r.Name] = e
	}
	return m, nil
}

// Has reports whether m exposes the named entry point.
func (m *Module) Has(name string) bool {
	_, ok := m.entries[name]
	return ok
}

// Entry returns the named entry point.
func (m *Module) Entry(name string) (*Entry, error) {
	e, ok := m.entries[name]
	if !ok {
		return nil, fmt.Errorf("Entry(%q): %w", name, ErrUnknownEntry)
	}
	return e, nil
}

// Call runs the named entry point; see Entry.Call.
func (m *Module) Call(name string, xp, out []float64) error {
	e, err := m.Entry(name)
	if err != nil {
		return err
	}
	return e.Call(xp, out)
}

// Name returns the entry point name.
func (e *Entry) Name() string { return e.routine.Name }

// Shape returns the output shape; Call writes Rows*Cols values row-major.
func (e *Entry) Shape() (rows, cols int) { return e.routine.Rows, e.routine.Cols }

// Size returns Rows*Cols.
func (e *Entry) Size() int { return len(e.routine.Outputs) }

// Call evaluates the routine at xp and writes its outputs into out.
// len(xp) must equal the program's input size and len(out) must equal Size.
func (e *Entry) Call(xp, out []float64) error {
	if len(xp) != e.inputSize {
		return fmt.Errorf("%s: got %d inputs, want %d: %w", e.routine.Name, len(xp), e.inputSize, ErrInputLength)
	}
	if len(out) != len(e.routine.Outputs) {
		return fmt.Errorf("%s: got %d outputs, want %d: %w", e.routine.Name, len(out), len(e.routine.Outputs), ErrOutputLength)
	}

	rp := e.scratch.Get().(*[]float64)
	r := *rp
	run(e.routine.Code, xp, r)
	for i, o := range e.routine.Outputs {
		out[i] = r[o]
	}
	e.scratch.Put(rp)
	return nil
}

func run(code []codegen.Instr, xp, r []float64) {
	for _, in := range code {
		var v float64
		switch in.Op {
		case tape.OpConst:
			v = in.Imm
		case tape.OpInput:
			v = xp[in.A]
		case tape.OpAdd:
			v = r[in.A] + r[in.B]
		case tape.OpSub:
			v = r[in.A] - r[in.B]
		case tape.OpMul:
			v = r[in.A] * r[in.B]
		case tape.OpDiv:
			v = r[in.A] / r[in.B]
		case tape.OpNeg:
			v = -r[in.A]
		case tape.OpSin:
			v = math.Sin(r[in.A])
		case tape.OpCos:
			v = math.Cos(r[in.A])
		case tape.OpExp:
			v = math.Exp(r[in.A])
		case tape.OpLog:
			v = math.Log(r[in.A])
		case tape.OpSqrt:
			v = math.Sqrt(r[in.A])
		case tape.OpPow:
			v = math.Pow(r[in.A], in.Imm)
		}
		r[in.Dst] = v
	}
}
