// SPDX-License-Identifier: MIT

package autodiff

import (
	"log/slog"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/katalvlaran/fngen/artifact"
)

// ---------- Verification defaults (single source of truth) ----------

const (
	// DefaultValueRTol and DefaultValueATol bound TestFunction: compiled and
	// reference values agree when |a-b| ≤ atol or |a-b| ≤ rtol·max(|a|,|b|).
	DefaultValueRTol = 1e-9
	DefaultValueATol = 1e-12

	// DefaultJacobianStep is the central-difference step for TestJacobian.
	DefaultJacobianStep = 1e-6
	// DefaultJacobianRTol and DefaultJacobianATol bound TestJacobian (|a-b| ≤ atol + rtol·|b|).
	DefaultJacobianRTol = 1e-6
	DefaultJacobianATol = 1e-6

	// DefaultHessianStep is the step of the second-order central stencil used by
	// TestHessian. Second differences divide by step², so it is larger than the
	// Jacobian step and the tolerances are wider.
	DefaultHessianStep = 1e-4
	DefaultHessianRTol = 1e-4
	DefaultHessianATol = 1e-4
)

// VerifySettings holds the step sizes and tolerances of the Test* methods.
type VerifySettings struct {
	ValueRTol, ValueATol       float64
	JacobianStep               float64
	JacobianRTol, JacobianATol float64
	HessianStep                float64
	HessianRTol, HessianATol   float64
}

// DefaultVerifySettings returns the documented defaults.
func DefaultVerifySettings() VerifySettings {
	return VerifySettings{
		ValueRTol:    DefaultValueRTol,
		ValueATol:    DefaultValueATol,
		JacobianStep: DefaultJacobianStep,
		JacobianRTol: DefaultJacobianRTol,
		JacobianATol: DefaultJacobianATol,
		HessianStep:  DefaultHessianStep,
		HessianRTol:  DefaultHessianRTol,
		HessianATol:  DefaultHessianATol,
	}
}

// validate panics on settings no caller could mean: non-finite or negative
// tolerances and non-positive steps.
func (s VerifySettings) validate() {
	for _, v := range []float64{s.ValueRTol, s.ValueATol, s.JacobianRTol, s.JacobianATol, s.HessianRTol, s.HessianATol} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			panic("autodiff: VerifySettings: tolerance must be finite and non-negative")
		}
	}
	for _, h := range []float64{s.JacobianStep, s.HessianStep} {
		if !(h > 0) || math.IsInf(h, 0) {
			panic("autodiff: VerifySettings: step must be finite and positive")
		}
	}
}

// ---------- Factory options ----------

// Option configures a Factory.
type Option func(*factoryOptions)

type factoryOptions struct {
	cacheDir   string
	store      *artifact.Store
	logger     *slog.Logger
	registerer prometheus.Registerer
	tracer     trace.TracerProvider
	verify     VerifySettings
}

func defaultFactoryOptions() factoryOptions {
	return factoryOptions{
		logger: slog.New(slog.DiscardHandler),
		verify: DefaultVerifySettings(),
	}
}

// WithCacheDir sets the artifact cache directory. Panics on an empty path.
// Ignored when WithStore is also given.
func WithCacheDir(dir string) Option {
	if dir == "" {
		panic("autodiff: WithCacheDir(\"\")")
	}
	return func(o *factoryOptions) { o.cacheDir = dir }
}

// WithStore uses an already opened artifact store. Panics on nil.
func WithStore(s *artifact.Store) Option {
	if s == nil {
		panic("autodiff: WithStore(nil)")
	}
	return func(o *factoryOptions) { o.store = s }
}

// WithLogger sets the pipeline logger. Panics on nil. The default discards.
func WithLogger(l *slog.Logger) Option {
	if l == nil {
		panic("autodiff: WithLogger(nil)")
	}
	return func(o *factoryOptions) { o.logger = l }
}

// WithRegisterer registers the factory metrics with r. Panics on nil.
// By default metrics live in a private registry (see Factory.Registry).
func WithRegisterer(r prometheus.Registerer) Option {
	if r == nil {
		panic("autodiff: WithRegisterer(nil)")
	}
	return func(o *factoryOptions) { o.registerer = r }
}

// WithTracerProvider sets the OpenTelemetry provider for pipeline spans.
// Panics on nil. The default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	if tp == nil {
		panic("autodiff: WithTracerProvider(nil)")
	}
	return func(o *factoryOptions) { o.tracer = tp }
}

// WithVerifySettings sets the verification settings of every Function the
// factory makes. Panics on invalid settings.
func WithVerifySettings(s VerifySettings) Option {
	s.validate()
	return func(o *factoryOptions) { o.verify = s }
}
