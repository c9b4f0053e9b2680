// Package artifact is the on-disk cache of compiled functions.
//
// Layout:
//
//	{root}/
//	  {name}/
//	    manifest.yaml  (signature, sizes, checksum, build id)
//	    program.cbor   (codegen.Program, loaded by package vm)
//	    source.go      (generated Go source, informational)
//	  .tmp-{name}-{uuid}/   (in-flight publishes)
//
// Entries are published by writing a temp directory and renaming it into
// place, so readers in this or any other process never observe a partial
// entry. An existing entry is never overwritten by Publish; a publisher that
// loses the rename race reads the winner's entry instead.
package artifact

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/katalvlaran/fngen/codegen"
)

// Sentinel errors.
var (
	// ErrNotFound indicates no published entry exists under the name.
	ErrNotFound = errors.New("artifact: entry not found")
	// ErrSignatureMismatch indicates the entry was built for another signature.
	ErrSignatureMismatch = errors.New("artifact: signature mismatch")
	// ErrCorrupt indicates an entry that cannot be trusted (decoding, checksum or consistency failure).
	ErrCorrupt = errors.New("artifact: corrupt entry")
	// ErrInvalidName indicates a name that is not an identifier.
	ErrInvalidName = errors.New("artifact: invalid name")
)

const (
	manifestFile = "manifest.yaml"
	programFile  = "program.cbor"
	sourceFile   = "source.go"
	tmpPrefix    = ".tmp-"
)

var nameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateName checks that name can serve as both a directory and a Go identifier.
func ValidateName(name string) error {
	if !nameRE.MatchString(name) {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return nil
}

// Signature identifies what an entry was compiled for. Two blueprints with
// the same name must agree on it to share an entry.
type Signature struct {
	VariableSize  int  `yaml:"variable_size"`
	ParameterSize int  `yaml:"parameter_size"`
	Jacobian      bool `yaml:"jacobian"`
	Hessian       bool `yaml:"hessian"`
}

// InputSize is VariableSize+ParameterSize.
func (s Signature) InputSize() int { return s.VariableSize + s.ParameterSize }

// Equal reports whether s and o describe the same compiled function shape.
func (s Signature) Equal(o Signature) bool { return s == o }

// String formats s for logs and errors, e.g. "vars=2 params=1 derivatives=jacobian".
func (s Signature) String() string {
	d := "none"
	switch {
	case s.Jacobian && s.Hessian:
		d = "jacobian|hessian"
	case s.Jacobian:
		d = "jacobian"
	case s.Hessian:
		d = "hessian"
	}
	return fmt.Sprintf("vars=%d params=%d derivatives=%s", s.VariableSize, s.ParameterSize, d)
}

// Manifest is the YAML descriptor stored with every entry.
type Manifest struct {
	Format       int            `yaml:"format"`
	Name         string         `yaml:"name"`
	Signature    Signature      `yaml:"signature"`
	OutputSize   int            `yaml:"output_size"`
	Checksum     string         `yaml:"checksum"`
	BuildID      string         `yaml:"build_id"`
	CreatedAt    time.Time      `yaml:"created_at"`
	Generator    string         `yaml:"generator"`
	Instructions map[string]int `yaml:"instructions"`
}

// Generator identifies the code generator that produced an entry.
var Generator = fmt.Sprintf("fngen codegen/v%d", codegen.FormatVersion)

// consistent checks that p is the program m describes.
func (m *Manifest) consistent(p *codegen.Program) error {
	s := m.Signature
	switch {
	case p.InputSize != s.InputSize(), p.VariableSize != s.VariableSize:
		return fmt.Errorf("program sizes in=%d var=%d disagree with %s", p.InputSize, p.VariableSize, s)
	case p.OutputSize != m.OutputSize:
		return fmt.Errorf("program output size %d, manifest %d", p.OutputSize, m.OutputSize)
	}
	for entry, enabled := range map[string]bool{
		codegen.EntryJacobian: s.Jacobian,
		codegen.EntryHessian:  s.Hessian,
	} {
		if _, ok := p.Routine(entry); ok != enabled {
			return fmt.Errorf("routine %q present=%t, signature wants %t", entry, ok, enabled)
		}
	}
	return nil
}
