// Package fngen turns a generic Go mapping into a compiled function with
// exact symbolic first and second derivatives, caches the compiled artifact
// on disk and checks it numerically against finite differences.
//
// 🚀 What is fngen?
//
//	A small pipeline that brings together:
//		• Tracing: run one generic mapping over recording scalars (tape)
//		• Symbolic derivatives: reverse-mode Jacobians and per-output Hessians
//		• Code generation: a register program plus readable Go source (codegen)
//		• Execution: a concurrency-safe interpreter over the program (vm)
//		• Caching: atomic, checksummed, name-keyed artifacts on disk (artifact)
//		• Verification: central finite differences via gonum (autodiff)
//
// Under the hood, everything is organized under these subpackages:
//
//	autodiff/ - Blueprint, Factory, Function and the verifier (public entry point)
//	tape/     - Scalar abstraction, expression graph, differentiation, evaluation
//	codegen/  - lowering to register programs, CBOR encoding, Go source emission
//	vm/       - program interpreter with pooled scratch registers
//	artifact/ - on-disk cache: manifests, checksums, atomic publish
//	matrix/   - dense row-major matrices returned for Jacobians and Hessians
//	cmd/fngen - CLI to list, inspect, evaluate and remove cached artifacts
//
// Quick start:
//
//	func bowl[S tape.Scalar[S]](xp []S) []S {
//		x, p := tape.Split(xp, 2)
//		return []S{p[0].Mul(tape.SquaredNorm(x))}
//	}
//
//	bp, _ := autodiff.NewBlueprint(autodiff.Generic(bowl[tape.Real], bowl[tape.Var]),
//		2, 1, "bowl", autodiff.Both)
//	fn, _ := autodiff.Make(bp, false)
//	h, _ := fn.Hessian([]float64{1, 2, 3}) // 6·I
//
// See each subpackage's doc.go for details.
package fngen
