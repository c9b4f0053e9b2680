package tape

// Split separates a concatenated (variable, parameter) vector after n variables.
// The returned slices alias xp.
func Split[S any](xp []S, n int) (x, p []S) {
	return xp[:n:n], xp[n:]
}

// Square returns s*s.
func Square[S Scalar[S]](s S) S { return s.Mul(s) }

// Dot returns Σ a[i]*b[i] over the shorter of a and b, which must not be empty.
func Dot[S Scalar[S]](a, b []S) S {
	n := min(len(a), len(b))
	acc := a[0].Mul(b[0])
	for i := 1; i < n; i++ {
		acc = acc.Add(a[i].Mul(b[i]))
	}
	return acc
}

// SquaredNorm returns Σ v[i]². v must not be empty.
func SquaredNorm[S Scalar[S]](v []S) S { return Dot(v, v) }

// Norm returns √(Σ v[i]²). v must not be empty.
func Norm[S Scalar[S]](v []S) S { return SquaredNorm(v).Sqrt() }
