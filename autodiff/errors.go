// SPDX-License-Identifier: MIT

package autodiff

import "errors"

// Sentinel errors. Callers match with errors.Is; call sites wrap them with
// context via fmt.Errorf("%s: %w", ...).
var (
	// ErrDimension indicates an input whose length is not VariableSize+ParameterSize.
	ErrDimension = errors.New("autodiff: dimension mismatch")

	// ErrUnsupported indicates a derivative that was not enabled on the blueprint,
	// or Hessian on a multi-output function.
	ErrUnsupported = errors.New("autodiff: unsupported operation")

	// ErrCompilation indicates a failure while tracing, deriving or generating code.
	ErrCompilation = errors.New("autodiff: compilation failed")

	// ErrCacheMismatch indicates a cached artifact whose signature disagrees with the blueprint.
	ErrCacheMismatch = errors.New("autodiff: cached artifact signature mismatch")

	// ErrInvalidBlueprint indicates invalid blueprint construction arguments.
	ErrInvalidBlueprint = errors.New("autodiff: invalid blueprint")
)
