package autodiff

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Label values.
const (
	outcomeHit      = "hit"
	outcomeMiss     = "miss"
	outcomeMismatch = "mismatch"
	outcomeCorrupt  = "corrupt"

	resultSuccess = "success"
	resultFailure = "failure"

	pathWarm = "warm"
	pathCold = "cold"
)

type metrics struct {
	lookups      *prometheus.CounterVec
	compilations *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// newMetrics creates the factory collectors and registers them with r.
// Collectors already registered by another factory on the same registry are
// shared rather than reported as an error.
func newMetrics(r prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fngen",
			Subsystem: "factory",
			Name:      "cache_lookups_total",
			Help:      "Artifact cache lookups by outcome (hit, miss, mismatch, corrupt).",
		}, []string{"outcome"}),
		compilations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fngen",
			Subsystem: "factory",
			Name:      "compilations_total",
			Help:      "Cold-path compilations by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fngen",
			Subsystem: "factory",
			Name:      "make_duration_seconds",
			Help:      "Duration of Make by path (warm, cold).",
			Buckets:   prometheus.ExponentialBuckets(1e-4, 4, 10),
		}, []string{"path"}),
	}

	var err error
	if m.lookups, err = register(r, m.lookups); err != nil {
		return nil, err
	}
	if m.compilations, err = register(r, m.compilations); err != nil {
		return nil, err
	}
	if m.duration, err = register(r, m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](r prometheus.Registerer, c C) (C, error) {
	if err := r.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}
