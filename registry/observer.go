package registry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer is the registry's compilation observer: borrowed, not owned
// (spec.md §3 "Registry"). The registry notifies it of every compile and
// every resolve outcome; it never affects resolution behavior.
type Observer interface {
	ObserveCompile(ns Namespace, d time.Duration, err error)
	ObserveResolve(ns Namespace, option ResolveOption, hit bool)
}

// NoopObserver discards all observations; used when the embedder doesn't
// care to wire metrics.
type NoopObserver struct{}

func (NoopObserver) ObserveCompile(Namespace, time.Duration, error)     {}
func (NoopObserver) ObserveResolve(Namespace, ResolveOption, bool)      {}

// PromObserver is a prometheus-backed Observer, in the style of
// GriffinCanCode-ArtificialOS's use of prometheus/client_golang for
// service-level metrics.
type PromObserver struct {
	compileSeconds *prometheus.HistogramVec
	compileErrors  *prometheus.CounterVec
	resolveTotal   *prometheus.CounterVec
}

// NewPromObserver registers the registry's metrics against reg and
// returns the Observer to pass to New via WithObserver.
func NewPromObserver(reg prometheus.Registerer) *PromObserver {
	o := &PromObserver{
		compileSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "modreg",
			Name:      "compile_seconds",
			Help:      "Time spent compiling a module artifact, by namespace.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"namespace"}),
		compileErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modreg",
			Name:      "compile_errors_total",
			Help:      "Compilation failures, by namespace.",
		}, []string{"namespace"}),
		resolveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modreg",
			Name:      "resolve_total",
			Help:      "Resolve attempts, by namespace, option, and hit/miss.",
		}, []string{"namespace", "option", "result"}),
	}
	reg.MustRegister(o.compileSeconds, o.compileErrors, o.resolveTotal)
	return o
}

func (o *PromObserver) ObserveCompile(ns Namespace, d time.Duration, err error) {
	o.compileSeconds.WithLabelValues(ns.String()).Observe(d.Seconds())
	if err != nil {
		o.compileErrors.WithLabelValues(ns.String()).Inc()
	}
}

func (o *PromObserver) ObserveResolve(ns Namespace, option ResolveOption, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	o.resolveTotal.WithLabelValues(ns.String(), optionLabel(option), result).Inc()
}

func optionLabel(option ResolveOption) string {
	switch option {
	case ResolveBuiltinOnly:
		return "builtin_only"
	case ResolveInternalOnly:
		return "internal_only"
	default:
		return "default"
	}
}
