// Package tape records arithmetic performed on a traceable scalar into an
// expression graph and differentiates that graph symbolically.
//
// A function body is written once, generic over Scalar:
//
//	func f[S tape.Scalar[S]](xp []S) []S {
//		return []S{xp[4].Mul(tape.SquaredNorm(xp[:4]))}
//	}
//
// Instantiated with Real it computes plain float64 values; instantiated with
// Var it appends nodes to a Graph. The body must not branch on the concrete
// type or keep hidden state, so both instantiations describe the same mapping.
//
// Graph nodes are hash-consed and constant-folded on insertion, which keeps
// derivative graphs (and therefore the generated code) small: x*0, x+0, x*1
// and repeated subexpressions never create new nodes.
//
// The rewrites are exact for finite operands only. x*0, 0/x, x-x and x/x
// become the constants 0, 0, 0 and 1 even where x is NaN, ±Inf or (for x/x)
// zero, so at such points a traced mapping can return a finite value where the
// Real instantiation returns NaN. Mappings meant for singular points should
// avoid forms that cancel symbolically.
//
// Errors:
//
//	ErrForeignVar    - an operation mixed Vars of two different graphs.
//	ErrUnknownNode   - a NodeID does not belong to the graph.
//	ErrInputsSealed  - Inputs was called after non-input nodes were recorded.
package tape

import (
	"errors"
	"fmt"
)

// Sentinel errors for tape operations.
var (
	// ErrForeignVar indicates an operation combined Vars recorded on different graphs.
	ErrForeignVar = errors.New("tape: variable belongs to another graph")

	// ErrUnknownNode indicates a NodeID outside the graph.
	ErrUnknownNode = errors.New("tape: unknown node")

	// ErrInputsSealed indicates Inputs was called after other nodes were recorded.
	ErrInputsSealed = errors.New("tape: inputs must be declared before any operation")
)

// NodeID identifies a node within one Graph. IDs are dense and topologically
// ordered: every operand has a smaller ID than the node using it.
type NodeID int32

// NoNode marks an absent operand.
const NoNode NodeID = -1

// Op enumerates the node kinds of the expression graph.
type Op uint8

const (
	OpConst Op = iota // constant Imm
	OpInput           // input component Imm (as integer)
	OpAdd             // A + B
	OpSub             // A - B
	OpMul             // A * B
	OpDiv             // A / B
	OpNeg             // -A
	OpSin             // sin(A)
	OpCos             // cos(A)
	OpExp             // exp(A)
	OpLog             // log(A)
	OpSqrt            // sqrt(A)
	OpPow             // A ** Imm
	opCount
)

var opNames = [...]string{
	OpConst: "const",
	OpInput: "input",
	OpAdd:   "add",
	OpSub:   "sub",
	OpMul:   "mul",
	OpDiv:   "div",
	OpNeg:   "neg",
	OpSin:   "sin",
	OpCos:   "cos",
	OpExp:   "exp",
	OpLog:   "log",
	OpSqrt:  "sqrt",
	OpPow:   "pow",
}

// String returns the lower-case mnemonic of the op.
func (o Op) String() string {
	if o < opCount {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Valid reports whether o is a known op.
func (o Op) Valid() bool { return o < opCount }

// Arity returns the number of node operands of o (0, 1 or 2).
func (o Op) Arity() int {
	switch o {
	case OpConst, OpInput:
		return 0
	case OpAdd, OpSub, OpMul, OpDiv:
		return 2
	case OpNeg, OpSin, OpCos, OpExp, OpLog, OpSqrt, OpPow:
		return 1
	default:
		return 0
	}
}

// Node is one recorded operation. Imm carries the constant value (OpConst),
// the input index (OpInput) or the exponent (OpPow).
type Node struct {
	Op   Op
	A, B NodeID
	Imm  float64
}

// Scalar is the numeric abstraction a mapping is written against.
// Every method returns a new value; receivers are never mutated.
type Scalar[T any] interface {
	Add(T) T
	Sub(T) T
	Mul(T) T
	Div(T) T
	Neg() T
	Sin() T
	Cos() T
	Exp() T
	Log() T
	Sqrt() T
	// Pow raises the receiver to a constant exponent.
	Pow(p float64) T
	// Const returns c in the receiver's representation.
	Const(c float64) T
}
