// SPDX-License-Identifier: MIT

// Package autodiff compiles a mathematical mapping of a (variable, parameter)
// vector into a derivative-aware Function and verifies it numerically.
//
// A mapping is written once, generic over tape.Scalar:
//
//	func bowl[S tape.Scalar[S]](xp []S) []S {
//		x, p := tape.Split(xp, 4)
//		return []S{p[0].Mul(tape.SquaredNorm(x))}
//	}
//
//	bp, _ := autodiff.NewBlueprint(autodiff.Generic(bowl[tape.Real], bowl[tape.Var]),
//		4, 1, "bowl", autodiff.Jacobian|autodiff.Hessian)
//	fn, _ := autodiff.Make(bp, false)
//	h, _ := fn.Hessian([]float64{1, 2, 3, 4, 0.5}) // 1·I₄
//
// Pipeline (Factory.Make):
//
//	Blueprint ─trace─▶ tape.Graph ─derive─▶ Jacobian/Hessian roots
//	          ─codegen─▶ codegen.Program (+ Go source)
//	          ─publish─▶ artifact.Store ─load─▶ vm.Module ─▶ Function
//
// The artifact cache is keyed by the blueprint name and validated against its
// signature (sizes and derivative set): a hit skips tracing and code
// generation entirely; a mismatch is ErrCacheMismatch, never a stale reuse.
//
// Derivatives are taken with respect to the variable components only;
// parameters are inputs held fixed. Derivatives beyond second order and
// sparsity-aware code generation are out of scope.
//
// Hessian policy: one Hessian is compiled per output component. Hessian
// requires a single-output function; Hessians returns all of them.
//
// A Function is immutable and safe for concurrent use.
package autodiff
