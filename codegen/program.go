// Package codegen turns derivative graphs into executable artifacts.
//
// Lower linearizes the live part of a tape.Graph into a Routine: straight-line
// three-address code over a small register file, with registers recycled once
// their last reader has executed. A Program bundles the routines of one
// function under fixed entry-point names (value, jacobian, hessian).
//
// The same Program is rendered two ways:
//
//	Marshal - deterministic CBOR, the loadable artifact executed by package vm.
//	EmitGo  - gofmt'd Go source, kept next to the artifact for inspection or
//	          for vendoring into a host program.
package codegen

import (
	"errors"

	"github.com/katalvlaran/fngen/tape"
)

// FormatVersion is bumped whenever the encoded Program layout changes.
const FormatVersion = 1

// Entry point names.
const (
	EntryValue    = "value"
	EntryJacobian = "jacobian"
	EntryHessian  = "hessian"
)

// ErrMalformedProgram is returned when a Program fails structural validation.
var ErrMalformedProgram = errors.New("codegen: malformed program")

// Instr is one three-address instruction: Dst = Op(A, B, Imm).
// For tape.OpInput, A is the input index; for tape.OpConst, Imm is the value.
type Instr struct {
	_   struct{} `cbor:",toarray"`
	Op  tape.Op
	Dst int32
	A   int32
	B   int32
	Imm float64
}

// Routine is a straight-line program writing Rows*Cols outputs (row-major).
type Routine struct {
	Name      string  `cbor:"name"`
	Rows      int     `cbor:"rows"`
	Cols      int     `cbor:"cols"`
	Registers int     `cbor:"registers"`
	Code      []Instr `cbor:"code"`
	Outputs   []int32 `cbor:"outputs"`
}

// Program is the complete compiled form of one function.
type Program struct {
	Format       int       `cbor:"format"`
	InputSize    int       `cbor:"input_size"`
	VariableSize int       `cbor:"variable_size"`
	OutputSize   int       `cbor:"output_size"`
	Routines     []Routine `cbor:"routines"`
}

// Routine returns the routine registered under name.
func (p *Program) Routine(name string) (*Routine, bool) {
	for i := range p.Routines {
		if p.Routines[i].Name == name {
			return &p.Routines[i], true
		}
	}
	return nil, false
}

// Instructions returns the instruction count per routine name.
func (p *Program) Instructions() map[string]int {
	out := make(map[string]int, len(p.Routines))
	for _, r := range p.Routines {
		out[r.Name] = len(r.Code)
	}
	return out
}
