// Package matrix provides the dense numeric container used across fngen.
//
// The package provides:
//
//   - Dense, a row-major float64 matrix with bounds-checked At/Set that return
//     sentinel errors instead of panicking.
//   - Thin kernels (Sub, Scale) with *Dense fast-paths.
//   - Tolerance comparisons (AllClose, IsApprox) used by derivative verification
//     and by tests to compare Jacobians and Hessians.
//
// Jacobians are returned as outputSize×variableSize matrices and Hessians as
// variableSize×variableSize matrices; both may legally have a zero dimension,
// which is why NewDense accepts zero rows or columns.
package matrix
