package autodiff

import (
	"fmt"
	"strings"
)

// DerivativeSet selects which derivative routines are compiled.
type DerivativeSet uint8

const (
	// None compiles the value routine only.
	None DerivativeSet = 0
	// Jacobian enables Function.Jacobian and TestJacobian.
	Jacobian DerivativeSet = 1 << 0
	// Hessian enables Function.Hessian(s) and TestHessian.
	Hessian DerivativeSet = 1 << 1
	// Both is Jacobian|Hessian.
	Both = Jacobian | Hessian
)

// Has reports whether every derivative in o is enabled in d.
func (d DerivativeSet) Has(o DerivativeSet) bool { return d&o == o }

// Valid reports whether d contains only known bits.
func (d DerivativeSet) Valid() bool { return d&^Both == 0 }

// String returns the manifest form: none, jacobian, hessian or jacobian|hessian.
func (d DerivativeSet) String() string {
	switch d {
	case None:
		return "none"
	case Jacobian:
		return "jacobian"
	case Hessian:
		return "hessian"
	case Both:
		return "jacobian|hessian"
	}
	return fmt.Sprintf("DerivativeSet(%d)", uint8(d))
}

// ParseDerivativeSet parses the String form. Components may be separated by
// '|' or ',' in any order; "both" is accepted as a shorthand.
func ParseDerivativeSet(s string) (DerivativeSet, error) {
	var d DerivativeSet
	for _, part := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return r == '|' || r == ',' }) {
		switch strings.TrimSpace(part) {
		case "none", "":
		case "jacobian":
			d |= Jacobian
		case "hessian":
			d |= Hessian
		case "both":
			d |= Both
		default:
			return None, fmt.Errorf("ParseDerivativeSet(%q): unknown derivative %q: %w", s, part, ErrInvalidBlueprint)
		}
	}
	return d, nil
}
