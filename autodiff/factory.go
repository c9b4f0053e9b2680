package autodiff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/katalvlaran/fngen/artifact"
	"github.com/katalvlaran/fngen/codegen"
	"github.com/katalvlaran/fngen/tape"
	"github.com/katalvlaran/fngen/vm"
)

const tracerName = "github.com/katalvlaran/fngen/autodiff"

// CacheDirEnv overrides the cache directory of the package-level Make.
const CacheDirEnv = "FNGEN_CACHE_DIR"

// GeneratedPackage is the package clause of emitted Go source.
const GeneratedPackage = "fngenerated"

// Factory turns Blueprints into Functions through an artifact cache.
//
// Thread Safety:
//
//	A Factory is safe for concurrent use. Concurrent Make calls for the same
//	blueprint name and signature share one execution; calls from other
//	processes are kept consistent by the store's atomic publish.
type Factory struct {
	store    *artifact.Store
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *metrics
	registry *prometheus.Registry
	verify   VerifySettings
	flight   singleflight.Group
}

// NewFactory builds a Factory. Without WithStore or WithCacheDir, the cache
// directory is DefaultCacheDir().
func NewFactory(opts ...Option) (*Factory, error) {
	o := defaultFactoryOptions()
	for _, opt := range opts {
		opt(&o)
	}

	f := &Factory{logger: o.logger, verify: o.verify, store: o.store}
	if f.store == nil {
		dir := o.cacheDir
		if dir == "" {
			dir = DefaultCacheDir()
		}
		s, err := artifact.NewStore(dir, artifact.WithStoreLogger(o.logger))
		if err != nil {
			return nil, fmt.Errorf("NewFactory: %w", err)
		}
		f.store = s
	}

	tp := o.tracer
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	f.tracer = tp.Tracer(tracerName)

	reg := o.registerer
	if reg == nil {
		f.registry = prometheus.NewRegistry()
		reg = f.registry
	}
	m, err := newMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("NewFactory: metrics: %w", err)
	}
	f.metrics = m
	return f, nil
}

// DefaultCacheDir returns $FNGEN_CACHE_DIR, else <user cache dir>/fngen,
// else <temp dir>/fngen.
func DefaultCacheDir() string {
	if dir := os.Getenv(CacheDirEnv); dir != "" {
		return dir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "fngen")
	}
	return filepath.Join(os.TempDir(), "fngen")
}

// Store returns the artifact store backing f.
func (f *Factory) Store() *artifact.Store { return f.store }

// Registry returns the private metrics registry, or nil when WithRegisterer was used.
func (f *Factory) Registry() *prometheus.Registry { return f.registry }

var (
	defaultOnce    sync.Once
	defaultFactory *Factory
	defaultErr     error
)

// Make compiles bp with a lazily built package-level Factory rooted at
// DefaultCacheDir().
func Make(bp Blueprint, verbose bool) (*Function, error) {
	defaultOnce.Do(func() {
		defaultFactory, defaultErr = NewFactory()
	})
	if defaultErr != nil {
		return nil, defaultErr
	}
	return defaultFactory.Make(context.Background(), bp, verbose)
}

type made struct {
	fn   *Function
	path string
}

// Make returns the Function for bp, compiling it on a cache miss.
//
// Implementation:
//   - Stage 1: look up bp.Name() in the store, checking the signature.
//   - Stage 2 (miss): trace the mapping, derive the requested derivatives,
//     lower to a Program, emit Go source and publish both.
//   - Stage 3: load the entry from the store (cold and warm paths share it)
//     and wrap it in a Function.
//
// verbose promotes pipeline diagnostics from Debug to Info; it never changes
// results.
//
// Errors:
//   - ErrInvalidBlueprint for a zero Blueprint.
//   - ErrCacheMismatch when an entry exists for another signature.
//   - ErrCompilation when tracing, derivation or code generation fails.
func (f *Factory) Make(ctx context.Context, bp Blueprint, verbose bool) (*Function, error) {
	if !bp.valid() {
		return nil, fmt.Errorf("Make: zero Blueprint: %w", ErrInvalidBlueprint)
	}
	start := time.Now()
	key := bp.name + "\x00" + bp.Signature().String()
	v, err, shared := f.flight.Do(key, func() (any, error) {
		fn, path, err := f.make(ctx, bp, verbose)
		if err != nil {
			return nil, err
		}
		return made{fn: fn, path: path}, nil
	})
	if err != nil {
		return nil, err
	}
	m := v.(made)
	if !shared {
		f.metrics.duration.WithLabelValues(m.path).Observe(time.Since(start).Seconds())
	}
	return m.fn, nil
}

func (f *Factory) make(ctx context.Context, bp Blueprint, verbose bool) (*Function, string, error) {
	ctx, span := f.tracer.Start(ctx, "fngen.make", trace.WithAttributes(
		attribute.String("fngen.name", bp.name),
		attribute.String("fngen.signature", bp.Signature().String()),
	))
	defer span.End()

	level := slog.LevelDebug
	if verbose {
		level = slog.LevelInfo
	}
	log := f.logger.With("name", bp.name)
	sig := bp.Signature()

	entry, err := f.store.Load(ctx, bp.name, sig)
	path := pathWarm
	switch {
	case err == nil:
		f.metrics.lookups.WithLabelValues(outcomeHit).Inc()
		log.Log(ctx, level, "artifact cache hit", "stage", "lookup", "build_id", entry.Manifest.BuildID)
	case errors.Is(err, artifact.ErrNotFound):
		f.metrics.lookups.WithLabelValues(outcomeMiss).Inc()
		log.Log(ctx, level, "artifact cache miss", "stage", "lookup")
		path = pathCold
	case errors.Is(err, artifact.ErrSignatureMismatch):
		f.metrics.lookups.WithLabelValues(outcomeMismatch).Inc()
		return nil, "", fail(span, fmt.Errorf("Make(%s): %v: %w", bp.name, err, ErrCacheMismatch))
	case errors.Is(err, artifact.ErrCorrupt):
		f.metrics.lookups.WithLabelValues(outcomeCorrupt).Inc()
		log.Warn("discarding corrupt artifact", "stage", "lookup", "error", err)
		if rmErr := f.store.Remove(bp.name); rmErr != nil && !errors.Is(rmErr, artifact.ErrNotFound) {
			return nil, "", fail(span, fmt.Errorf("Make(%s): %w", bp.name, rmErr))
		}
		path = pathCold
	default:
		return nil, "", fail(span, fmt.Errorf("Make(%s): %w", bp.name, err))
	}

	if path == pathCold {
		t0 := time.Now()
		if err := f.compile(ctx, bp, log, level); err != nil {
			f.metrics.compilations.WithLabelValues(resultFailure).Inc()
			return nil, "", fail(span, err)
		}
		f.metrics.compilations.WithLabelValues(resultSuccess).Inc()
		log.Log(ctx, level, "compiled", "stage", "codegen", "duration", time.Since(t0))

		if entry, err = f.store.Load(ctx, bp.name, sig); err != nil {
			if errors.Is(err, artifact.ErrSignatureMismatch) {
				err = fmt.Errorf("%v: %w", err, ErrCacheMismatch)
			}
			return nil, "", fail(span, fmt.Errorf("Make(%s): %w", bp.name, err))
		}
	}

	fn, err := f.load(ctx, entry)
	if err != nil {
		return nil, "", fail(span, err)
	}
	span.SetAttributes(attribute.String("fngen.path", path))
	return fn, path, nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// compile runs trace, derive, codegen and publish.
func (f *Factory) compile(ctx context.Context, bp Blueprint, log *slog.Logger, level slog.Level) error {
	_, span := f.tracer.Start(ctx, "fngen.trace")
	g, outs, err := traceMapping(bp)
	span.End()
	if err != nil {
		return err
	}
	log.Log(ctx, level, "traced", "stage", "trace", "nodes", g.Len(), "outputs", len(outs))

	_, span = f.tracer.Start(ctx, "fngen.derive")
	roots, err := derive(g, bp, outs)
	span.End()
	if err != nil {
		return err
	}
	log.Log(ctx, level, "derived", "stage", "derive", "nodes", g.Len())

	_, span = f.tracer.Start(ctx, "fngen.codegen")
	p, err := codegen.Build(g, bp.variableSize, roots)
	var src []byte
	if err == nil {
		src, err = codegen.EmitGo(GeneratedPackage, bp.name, p)
	}
	span.End()
	if err != nil {
		return fmt.Errorf("codegen(%s): %w: %w", bp.name, ErrCompilation, err)
	}
	log.Log(ctx, level, "generated", "stage", "codegen", "instructions", p.Instructions())

	pctx, span := f.tracer.Start(ctx, "fngen.publish")
	defer span.End()
	e, published, err := f.store.Publish(pctx, bp.name, bp.Signature(), p, src)
	if err != nil {
		if errors.Is(err, artifact.ErrSignatureMismatch) {
			return fmt.Errorf("publish(%s): %v: %w", bp.name, err, ErrCacheMismatch)
		}
		return fmt.Errorf("publish(%s): %w", bp.name, err)
	}
	log.Log(ctx, level, "published", "stage", "publish", "published", published, "build_id", e.Manifest.BuildID)
	return nil
}

// traceMapping records the traced instantiation on a fresh graph and checks
// it against the plain one. A panicking mapping is a compilation error.
func traceMapping(bp Blueprint) (g *tape.Graph, outs []tape.NodeID, err error) {
	defer func() {
		if r := recover(); r != nil {
			g, outs, err = nil, nil, fmt.Errorf("trace(%s): mapping panicked: %v: %w", bp.name, r, ErrCompilation)
		}
	}()

	n := bp.InputSize()
	g = tape.NewGraph()
	ys := bp.mapping.traced(g.Inputs(n))
	if err := g.Err(); err != nil {
		return nil, nil, fmt.Errorf("trace(%s): %w: %w", bp.name, ErrCompilation, err)
	}
	outs, err = tape.IDs(g, ys)
	if err != nil {
		return nil, nil, fmt.Errorf("trace(%s): %w: %w", bp.name, ErrCompilation, err)
	}
	if len(outs) == 0 {
		return nil, nil, fmt.Errorf("trace(%s): empty output: %w", bp.name, ErrCompilation)
	}
	if m := len(bp.mapping.real(make([]tape.Real, n))); m != len(outs) {
		return nil, nil, fmt.Errorf("trace(%s): output size %d traced, %d evaluated: %w", bp.name, len(outs), m, ErrCompilation)
	}
	return g, outs, nil
}

// derive appends the requested derivative nodes to g. Only the first
// VariableSize inputs are differentiated; parameters stay fixed.
func derive(g *tape.Graph, bp Blueprint, outs []tape.NodeID) (codegen.Roots, error) {
	roots := codegen.Roots{Value: outs}
	vars := make([]tape.NodeID, bp.variableSize)
	for i := range vars {
		vars[i] = g.InputID(i)
	}
	if bp.derivatives.Has(Jacobian) {
		jac, err := g.Jacobian(outs, vars)
		if err != nil {
			return roots, fmt.Errorf("derive(%s): %w: %w", bp.name, ErrCompilation, err)
		}
		roots.Jacobian = jac
	}
	if bp.derivatives.Has(Hessian) {
		roots.Hessians = make([][][]tape.NodeID, len(outs))
		for k, o := range outs {
			h, err := g.Hessian(o, vars)
			if err != nil {
				return roots, fmt.Errorf("derive(%s): output %d: %w: %w", bp.name, k, ErrCompilation, err)
			}
			roots.Hessians[k] = h
		}
	}
	return roots, nil
}

// Open loads the cached Function published under name without a Blueprint,
// trusting the signature recorded in its manifest. It never compiles.
func (f *Factory) Open(ctx context.Context, name string) (*Function, error) {
	e, err := f.store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("Open(%s): %w", name, err)
	}
	return f.load(ctx, e)
}

func (f *Factory) load(ctx context.Context, e *artifact.Entry) (*Function, error) {
	_, span := f.tracer.Start(ctx, "fngen.load")
	defer span.End()
	mod, err := vm.New(e.Program)
	if err != nil {
		return nil, fmt.Errorf("load(%s): %w", e.Manifest.Name, err)
	}
	return newFunction(e.Manifest, mod, f.verify), nil
}
