package codegen

import (
	"bytes"
	"fmt"
	"go/format"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/katalvlaran/fngen/tape"
)

// EmitGo renders p as a Go source file in package pkg. Every routine becomes
// func <Prefix><Entry>(xp, out []float64), where Prefix is name in CamelCase,
// so several generated files can share one package.
//
// The output is gofmt'd; a formatting failure means the emitter produced
// invalid Go and is reported as ErrMalformedProgram.
func EmitGo(pkg, name string, p *Program) ([]byte, error) {
	prefix := camel(name)
	usesMath := false
	for _, r := range p.Routines {
		for _, in := range r.Code {
			if needsMath(in) {
				usesMath = true
			}
		}
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "// Code generated by fngen from blueprint %q. DO NOT EDIT.\n\n", name)
	fmt.Fprintf(&b, "package %s\n\n", pkg)
	if usesMath {
		b.WriteString("import \"math\"\n\n")
	}
	fmt.Fprintf(&b, "// %s dimensions.\nconst (\n", prefix)
	fmt.Fprintf(&b, "%sInputSize = %d\n", prefix, p.InputSize)
	fmt.Fprintf(&b, "%sVariableSize = %d\n", prefix, p.VariableSize)
	fmt.Fprintf(&b, "%sOutputSize = %d\n)\n\n", prefix, p.OutputSize)

	for _, r := range p.Routines {
		fn := prefix + camel(r.Name)
		fmt.Fprintf(&b, "// %s writes the %dx%d %s result (row-major) into out.\n", fn, r.Rows, r.Cols, r.Name)
		fmt.Fprintf(&b, "func %s(xp, out []float64) {\n", fn)
		if r.Registers > 0 {
			regs := make([]string, r.Registers)
			for i := range regs {
				regs[i] = reg(int32(i))
			}
			fmt.Fprintf(&b, "var %s float64\n", strings.Join(regs, ", "))
		}
		for _, in := range r.Code {
			expr, err := expression(in)
			if err != nil {
				return nil, fmt.Errorf("EmitGo(%s.%s): %w", name, r.Name, err)
			}
			fmt.Fprintf(&b, "%s = %s\n", reg(in.Dst), expr)
		}
		for i, o := range r.Outputs {
			fmt.Fprintf(&b, "out[%d] = %s\n", i, reg(o))
		}
		b.WriteString("}\n\n")
	}

	src, err := format.Source(b.Bytes())
	if err != nil {
		return nil, fmt.Errorf("EmitGo(%s): %v: %w", name, err, ErrMalformedProgram)
	}
	return src, nil
}

func reg(r int32) string { return "r" + strconv.Itoa(int(r)) }

func needsMath(in Instr) bool {
	switch in.Op {
	case tape.OpSin, tape.OpCos, tape.OpExp, tape.OpLog, tape.OpSqrt, tape.OpPow:
		return true
	case tape.OpConst:
		return math.IsNaN(in.Imm) || math.IsInf(in.Imm, 0) || (in.Imm == 0 && math.Signbit(in.Imm))
	}
	return false
}

func literal(v float64) string {
	switch {
	case math.IsNaN(v):
		return "math.NaN()"
	case math.IsInf(v, 1):
		return "math.Inf(1)"
	case math.IsInf(v, -1):
		return "math.Inf(-1)"
	}
	if v == 0 && math.Signbit(v) {
		return "math.Copysign(0, -1)"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func expression(in Instr) (string, error) {
	a, b := reg(in.A), reg(in.B)
	switch in.Op {
	case tape.OpConst:
		return literal(in.Imm), nil
	case tape.OpInput:
		return fmt.Sprintf("xp[%d]", in.A), nil
	case tape.OpAdd:
		return a + " + " + b, nil
	case tape.OpSub:
		return a + " - " + b, nil
	case tape.OpMul:
		return a + " * " + b, nil
	case tape.OpDiv:
		return a + " / " + b, nil
	case tape.OpNeg:
		return "-" + a, nil
	case tape.OpSin:
		return "math.Sin(" + a + ")", nil
	case tape.OpCos:
		return "math.Cos(" + a + ")", nil
	case tape.OpExp:
		return "math.Exp(" + a + ")", nil
	case tape.OpLog:
		return "math.Log(" + a + ")", nil
	case tape.OpSqrt:
		return "math.Sqrt(" + a + ")", nil
	case tape.OpPow:
		return "math.Pow(" + a + ", " + literal(in.Imm) + ")", nil
	}
	return "", fmt.Errorf("op %s: %w", in.Op, ErrMalformedProgram)
}

// camel converts snake_case (or any non-alphanumeric separated) names to CamelCase.
func camel(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
