package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/fngen/artifact"
	"github.com/katalvlaran/fngen/autodiff"
	"github.com/katalvlaran/fngen/tape"
)

// pair maps (x0, x1; p) to (p*x0² + x1, x0*x1).
func pair[S tape.Scalar[S]](xp []S) []S {
	x, p := tape.Split(xp, 2)
	return []S{p[0].Mul(tape.Square(x[0])).Add(x[1]), x[0].Mul(x[1])}
}

// seed compiles pair into a fresh cache and returns the cache directory.
func seed(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	f, err := autodiff.NewFactory(autodiff.WithCacheDir(dir))
	require.NoError(t, err)
	bp, err := autodiff.NewBlueprint(autodiff.Generic(pair[tape.Real], pair[tape.Var]), 2, 1, "pair", autodiff.Both)
	require.NoError(t, err)
	_, err = f.Make(context.Background(), bp, false)
	require.NoError(t, err)
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestList(t *testing.T) {
	dir := seed(t)
	out, err := run(t, "--cache-dir", dir, "ls")
	require.NoError(t, err)
	require.Contains(t, out, "NAME")
	require.Regexp(t, `pair\s+2\s+1\s+2\s+jacobian\|hessian`, out)
}

func TestShowAndSource(t *testing.T) {
	dir := seed(t)

	out, err := run(t, "--cache-dir", dir, "show", "pair")
	require.NoError(t, err)
	require.Contains(t, out, "name: pair")

	out, err = run(t, "--cache-dir", dir, "source", "pair")
	require.NoError(t, err)
	require.Contains(t, out, "DO NOT EDIT")
	require.Contains(t, out, "func PairJacobian(")

	_, err = run(t, "--cache-dir", dir, "show", "missing")
	require.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestEval(t *testing.T) {
	dir := seed(t)
	out, err := run(t, "--cache-dir", dir, "eval", "pair", "--input", "3,2,2", "--jacobian", "--hessian")
	require.NoError(t, err)
	require.Equal(t, "value: [20 6]\n"+
		"jacobian:\n[12, 1]\n[2, 3]\n"+
		"hessian[0]:\n[4, 0]\n[0, 0]\n"+
		"hessian[1]:\n[0, 1]\n[1, 0]\n", out)

	_, err = run(t, "--cache-dir", dir, "eval", "pair", "--input", "3,2")
	require.ErrorIs(t, err, autodiff.ErrDimension)

	_, err = run(t, "--cache-dir", dir, "eval", "pair")
	require.Error(t, err)
}

func TestEnvAndConfig(t *testing.T) {
	dir := seed(t)

	t.Setenv("FNGEN_CACHE_DIR", dir)
	out, err := run(t, "ls")
	require.NoError(t, err)
	require.Contains(t, out, "pair")

	t.Setenv("FNGEN_CACHE_DIR", "")
	cfg := filepath.Join(t.TempDir(), "fngen.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("cache-dir: "+dir+"\nverbose: true\n"), 0o644))
	out, err = run(t, "--config", cfg, "ls")
	require.NoError(t, err)
	require.Contains(t, out, "pair")

	_, err = run(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "ls")
	require.Error(t, err)
}

func TestRemoveAndPurge(t *testing.T) {
	dir := seed(t)

	out, err := run(t, "--cache-dir", dir, "rm", "pair")
	require.NoError(t, err)
	require.Equal(t, "removed pair\n", out)
	require.NoDirExists(t, filepath.Join(dir, "pair"))

	_, err = run(t, "--cache-dir", dir, "rm", "pair")
	require.ErrorIs(t, err, artifact.ErrNotFound)

	dir = seed(t)
	out, err = run(t, "--cache-dir", dir, "purge")
	require.NoError(t, err)
	require.Contains(t, out, "removed 1 artifacts")

	out, err = run(t, "--cache-dir", dir, "ls")
	require.NoError(t, err)
	require.NotContains(t, out, "pair")
}
