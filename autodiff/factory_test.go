package autodiff_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/katalvlaran/fngen/autodiff"
	"github.com/katalvlaran/fngen/tape"
)

const lookupsHeader = `
# HELP fngen_factory_cache_lookups_total Artifact cache lookups by outcome (hit, miss, mismatch, corrupt).
# TYPE fngen_factory_cache_lookups_total counter
`

const compilationsHeader = `
# HELP fngen_factory_compilations_total Cold-path compilations by result.
# TYPE fngen_factory_compilations_total counter
`

func quadBlueprint(t *testing.T, name string, d autodiff.DerivativeSet) autodiff.Blueprint {
	t.Helper()
	bp, err := autodiff.NewBlueprint(autodiff.Generic(quadratics[tape.Real], quadratics[tape.Var]), 4, 1, name, d)
	require.NoError(t, err)
	return bp
}

func TestColdAndWarmPathsAgree(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	reg := prometheus.NewRegistry()
	opts := []autodiff.Option{autodiff.WithCacheDir(dir), autodiff.WithRegisterer(reg)}
	bp := quadBlueprint(t, "quadratics", autodiff.Both)

	cold, err := autodiff.NewFactory(opts...)
	require.NoError(t, err)
	fnCold, err := cold.Make(ctx, bp, false)
	require.NoError(t, err)

	// A second factory shares nothing in memory with the first.
	warm, err := autodiff.NewFactory(opts...)
	require.NoError(t, err)
	fnWarm, err := warm.Make(ctx, bp, false)
	require.NoError(t, err)

	require.Equal(t, fnCold.Manifest().BuildID, fnWarm.Manifest().BuildID)
	xp := []float64{0.5, -1, 2, 0.25, 3}
	for _, fn := range []func(*autodiff.Function) (any, error){
		func(f *autodiff.Function) (any, error) { return f.Evaluate(xp) },
		func(f *autodiff.Function) (any, error) { return f.Jacobian(xp) },
		func(f *autodiff.Function) (any, error) { return f.Hessians(xp) },
	} {
		a, err := fn(fnCold)
		require.NoError(t, err)
		b, err := fn(fnWarm)
		require.NoError(t, err)
		require.Equal(t, a, b)
	}

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(lookupsHeader+`
fngen_factory_cache_lookups_total{outcome="hit"} 1
fngen_factory_cache_lookups_total{outcome="miss"} 1
`), "fngen_factory_cache_lookups_total"))
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(compilationsHeader+`
fngen_factory_compilations_total{result="success"} 1
`), "fngen_factory_compilations_total"))
	n, err := testutil.GatherAndCount(reg, "fngen_factory_make_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 2, n, "one warm and one cold series")

	for _, f := range []string{"manifest.yaml", "program.cbor", "source.go"} {
		require.FileExists(t, filepath.Join(dir, "quadratics", f))
	}
}

func TestCacheMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFactory(t)
	_, err := f.Make(ctx, quadBlueprint(t, "quadratics", autodiff.Jacobian), false)
	require.NoError(t, err)

	_, err = f.Make(ctx, quadBlueprint(t, "quadratics", autodiff.Hessian), false)
	require.ErrorIs(t, err, autodiff.ErrCacheMismatch)

	other, err := autodiff.NewBlueprint(bowlMapping, 4, 0, "quadratics", autodiff.Jacobian)
	require.NoError(t, err)
	_, err = f.Make(ctx, other, false)
	require.ErrorIs(t, err, autodiff.ErrCacheMismatch)
}

func TestCorruptEntryIsRecompiled(t *testing.T) {
	ctx := context.Background()
	f := newFactory(t)
	bp := quadBlueprint(t, "quadratics", autodiff.Jacobian)
	first, err := f.Make(ctx, bp, false)
	require.NoError(t, err)

	path := filepath.Join(f.Store().Root(), "quadratics", "program.cbor")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	b[len(b)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, b, 0o644))

	second, err := f.Make(ctx, bp, false)
	require.NoError(t, err)
	require.NotEqual(t, first.Manifest().BuildID, second.Manifest().BuildID)
	require.Equal(t, first.Manifest().Checksum, second.Manifest().Checksum, "same program, same bytes")

	require.NoError(t, testutil.GatherAndCompare(f.Registry(), strings.NewReader(lookupsHeader+`
fngen_factory_cache_lookups_total{outcome="corrupt"} 1
fngen_factory_cache_lookups_total{outcome="miss"} 1
`), "fngen_factory_cache_lookups_total"))
}

func TestManifestlessEntryIsRecompiled(t *testing.T) {
	ctx := context.Background()
	f := newFactory(t)
	dir := filepath.Join(f.Store().Root(), "quadratics")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "program.cbor"), []byte("leftover"), 0o644))

	bp := quadBlueprint(t, "quadratics", autodiff.Jacobian)
	first, err := f.Make(ctx, bp, false)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, "manifest.yaml"))

	second, err := f.Make(ctx, bp, false)
	require.NoError(t, err)
	require.Equal(t, first.Manifest().BuildID, second.Manifest().BuildID)

	y, err := second.Evaluate([]float64{1, 2, 3, 4, 2})
	require.NoError(t, err)
	require.Equal(t, []float64{60, 2}, y)

	require.NoError(t, testutil.GatherAndCompare(f.Registry(), strings.NewReader(lookupsHeader+`
fngen_factory_cache_lookups_total{outcome="corrupt"} 1
fngen_factory_cache_lookups_total{outcome="hit"} 1
`), "fngen_factory_cache_lookups_total"))
}

func TestConcurrentMakeCompilesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFactory(t)
	bp := quadBlueprint(t, "quadratics", autodiff.Both)

	const n = 16
	fns := make([]*autodiff.Function, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fns[i], errs[i] = f.Make(ctx, bp, false)
		}()
	}
	wg.Wait()

	for i := range fns {
		require.NoError(t, errs[i])
		require.Equal(t, fns[0].Manifest().BuildID, fns[i].Manifest().BuildID)
	}
	require.NoError(t, testutil.GatherAndCompare(f.Registry(), strings.NewReader(compilationsHeader+`
fngen_factory_compilations_total{result="success"} 1
`), "fngen_factory_compilations_total"))
}

// Factories sharing a directory stand in for separate processes: both may
// compile, but only one entry is published and both end up using it.
func TestConcurrentFactoriesShareOneEntry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	bp := quadBlueprint(t, "quadratics", autodiff.Jacobian)

	const n = 4
	fns := make([]*autodiff.Function, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := autodiff.NewFactory(autodiff.WithCacheDir(dir))
			if err != nil {
				errs[i] = err
				return
			}
			fns[i], errs[i] = f.Make(ctx, bp, false)
		}()
	}
	wg.Wait()

	for i := range fns {
		require.NoError(t, errs[i])
		require.Equal(t, fns[0].Manifest().BuildID, fns[i].Manifest().BuildID)
	}
	des, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, des, 1)
}

func TestMalformedMappings(t *testing.T) {
	ctx := context.Background()
	f := newFactory(t)

	short := func(xp []tape.Real) []tape.Real { return xp[:1] }
	long := func(xp []tape.Var) []tape.Var { return xp[:2] }
	empty := func(xp []tape.Var) []tape.Var { return nil }
	emptyReal := func(xp []tape.Real) []tape.Real { return nil }
	oob := func(xp []tape.Var) []tape.Var { return []tape.Var{xp[7]} }
	other := tape.NewGraph().Inputs(1)[0]
	foreign := func(xp []tape.Var) []tape.Var { return []tape.Var{xp[0].Add(other)} }
	leaked := func(xp []tape.Var) []tape.Var { return []tape.Var{other} }

	for _, tc := range []struct {
		name string
		m    autodiff.Mapping
	}{
		{"inconsistent output size", autodiff.Generic(short, long)},
		{"empty output", autodiff.Generic(emptyReal, empty)},
		{"panicking mapping", autodiff.Generic(short, oob)},
		{"foreign variable", autodiff.Generic(short, foreign)},
		{"leaked variable", autodiff.Generic(short, leaked)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			bp, err := autodiff.NewBlueprint(tc.m, 2, 0, "bad", autodiff.Jacobian)
			require.NoError(t, err)
			_, err = f.Make(ctx, bp, false)
			require.ErrorIs(t, err, autodiff.ErrCompilation)
		})
	}
	_, err := f.Make(ctx, autodiff.Blueprint{}, false)
	require.ErrorIs(t, err, autodiff.ErrInvalidBlueprint)

	_, err = f.Store().Stat("bad")
	require.Error(t, err, "failed compilations publish nothing")
}

func TestVerboseOnlyChangesLogging(t *testing.T) {
	ctx := context.Background()
	var quiet, loud bytes.Buffer
	newLogged := func(buf *bytes.Buffer) *autodiff.Factory {
		return newFactory(t, autodiff.WithLogger(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))))
	}
	bp := quadBlueprint(t, "quadratics", autodiff.Both)

	a, err := newLogged(&quiet).Make(ctx, bp, false)
	require.NoError(t, err)
	b, err := newLogged(&loud).Make(ctx, bp, true)
	require.NoError(t, err)

	xp := []float64{1, 2, 3, 4, 5}
	ya, err := a.Evaluate(xp)
	require.NoError(t, err)
	yb, err := b.Evaluate(xp)
	require.NoError(t, err)
	require.Equal(t, ya, yb)
	require.Equal(t, a.Manifest().Checksum, b.Manifest().Checksum)

	require.Empty(t, quiet.String())
	for _, stage := range []string{"stage=lookup", "stage=trace", "stage=derive", "stage=codegen", "stage=publish"} {
		require.Contains(t, loud.String(), stage)
	}
	require.Contains(t, loud.String(), "name=quadratics")
}

func TestMakeEmitsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFactory(t, autodiff.WithTracerProvider(tp))
	_, err := f.Make(context.Background(), quadBlueprint(t, "quadratics", autodiff.Jacobian), false)
	require.NoError(t, err)

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	require.ElementsMatch(t, []string{"fngen.trace", "fngen.derive", "fngen.codegen", "fngen.publish", "fngen.load", "fngen.make"}, names)
}

func TestPackageLevelMake(t *testing.T) {
	t.Setenv(autodiff.CacheDirEnv, t.TempDir())
	require.Equal(t, os.Getenv(autodiff.CacheDirEnv), autodiff.DefaultCacheDir())

	bp, err := autodiff.NewBlueprint(bowlMapping, 4, 1, "bowl", autodiff.Hessian)
	require.NoError(t, err)
	fn, err := autodiff.Make(bp, false)
	require.NoError(t, err)
	y, err := fn.Evaluate([]float64{1, 1, 1, 1, 2})
	require.NoError(t, err)
	require.Equal(t, []float64{8}, y)
	require.FileExists(t, filepath.Join(os.Getenv(autodiff.CacheDirEnv), "bowl", "manifest.yaml"))
}
