package codegen

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/katalvlaran/fngen/tape"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Core deterministic encoding: identical programs give identical bytes,
	// so the artifact checksum is a function of the program alone.
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(fmt.Sprintf("codegen: cbor encoder: %v", err))
	}
	if decMode, err = (cbor.DecOptions{MaxArrayElements: 1 << 24}).DecMode(); err != nil {
		panic(fmt.Sprintf("codegen: cbor decoder: %v", err))
	}
}

// Marshal validates p and encodes it as deterministic CBOR.
func Marshal(p *Program) ([]byte, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	b, err := encMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("Marshal: %w", err)
	}
	return b, nil
}

// Unmarshal decodes and validates a Program. Decoding failures and structural
// problems both wrap ErrMalformedProgram.
func Unmarshal(b []byte) (*Program, error) {
	var p Program
	if err := decMode.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("Unmarshal: %v: %w", err, ErrMalformedProgram)
	}
	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Shape returns the expected rows×cols of the routine registered under entry.
// Hessians are stacked per output: routine row k*VariableSize+i is row i of
// the Hessian of output k.
func (p *Program) Shape(entry string) (rows, cols int, ok bool) {
	switch entry {
	case EntryValue:
		return p.OutputSize, 1, true
	case EntryJacobian:
		return p.OutputSize, p.VariableSize, true
	case EntryHessian:
		return p.OutputSize * p.VariableSize, p.VariableSize, true
	}
	return 0, 0, false
}

// Validate checks everything the VM relies on without re-checking at run time:
// known entries with the right shapes, valid ops, in-range registers and
// input indices, and that every register is written before it is read.
//
// Complexity: O(total instructions + total registers).
func Validate(p *Program) error {
	if p == nil {
		return fmt.Errorf("Validate: nil program: %w", ErrMalformedProgram)
	}
	if p.Format != FormatVersion {
		return fmt.Errorf("Validate: format %d, want %d: %w", p.Format, FormatVersion, ErrMalformedProgram)
	}
	if p.VariableSize < 0 || p.InputSize < p.VariableSize || p.OutputSize <= 0 {
		return fmt.Errorf("Validate: sizes in=%d var=%d out=%d: %w",
			p.InputSize, p.VariableSize, p.OutputSize, ErrMalformedProgram)
	}
	if _, ok := p.Routine(EntryValue); !ok {
		return fmt.Errorf("Validate: missing %q routine: %w", EntryValue, ErrMalformedProgram)
	}

	seen := make(map[string]bool, len(p.Routines))
	for i := range p.Routines {
		r := &p.Routines[i]
		if seen[r.Name] {
			return fmt.Errorf("Validate: duplicate routine %q: %w", r.Name, ErrMalformedProgram)
		}
		seen[r.Name] = true
		if err := p.validateRoutine(r); err != nil {
			return fmt.Errorf("Validate(%s): %w", r.Name, err)
		}
	}
	return nil
}

func (p *Program) validateRoutine(r *Routine) error {
	rows, cols, ok := p.Shape(r.Name)
	if !ok {
		return fmt.Errorf("unknown entry: %w", ErrMalformedProgram)
	}
	if r.Rows != rows || r.Cols != cols || len(r.Outputs) != rows*cols {
		return fmt.Errorf("shape %dx%d with %d outputs, want %dx%d: %w",
			r.Rows, r.Cols, len(r.Outputs), rows, cols, ErrMalformedProgram)
	}
	if r.Registers < 0 || (r.Registers == 0 && len(r.Code) > 0) {
		return fmt.Errorf("register file of %d: %w", r.Registers, ErrMalformedProgram)
	}

	defined := make([]bool, r.Registers)
	reg := func(at int, x int32, read bool) error {
		if x < 0 || int(x) >= r.Registers {
			return fmt.Errorf("instr %d: register r%d out of range: %w", at, x, ErrMalformedProgram)
		}
		if read && !defined[x] {
			return fmt.Errorf("instr %d: r%d read before write: %w", at, x, ErrMalformedProgram)
		}
		return nil
	}

	for k, in := range r.Code {
		if !in.Op.Valid() {
			return fmt.Errorf("instr %d: %s: %w", k, in.Op, ErrMalformedProgram)
		}
		switch in.Op {
		case tape.OpInput:
			if in.A < 0 || int(in.A) >= p.InputSize {
				return fmt.Errorf("instr %d: input %d out of range: %w", k, in.A, ErrMalformedProgram)
			}
		default:
			if in.Op.Arity() >= 1 {
				if err := reg(k, in.A, true); err != nil {
					return err
				}
			}
			if in.Op.Arity() == 2 {
				if err := reg(k, in.B, true); err != nil {
					return err
				}
			}
		}
		if err := reg(k, in.Dst, false); err != nil {
			return err
		}
		defined[in.Dst] = true
	}
	for i, o := range r.Outputs {
		if err := reg(len(r.Code), o, true); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
	}
	return nil
}
