package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus is a Recorder backed by promauto-registered collectors,
// served over the debug HTTP listener's /metrics handler. Each instance
// owns its own registry rather than reaching for the global default, so
// a process (or a test) can build more than one without a duplicate
// registration panic.
type Prometheus struct {
	registry *prometheus.Registry

	sessionsActive    prometheus.Gauge
	sessionsTotal     prometheus.Counter
	admissionRejected prometheus.Counter
	compileTotal      *prometheus.CounterVec
	compileDuration   *prometheus.HistogramVec
	runTotal          *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	runOutputBytes    *prometheus.HistogramVec
}

// NewPrometheus builds a fresh registry and registers every collector
// against it.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cattleshed_sessions_active",
			Help: "Number of sessions currently running.",
		}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cattleshed_sessions_total",
			Help: "Total number of sessions started.",
		}),
		admissionRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "cattleshed_admission_rejected_total",
			Help: "Total number of connections that gave up waiting for an admission permit.",
		}),
		compileTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cattleshed_compile_total",
			Help: "Total number of compile phases, by compiler and outcome.",
		}, []string{"compiler", "ok"}),
		compileDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cattleshed_compile_duration_seconds",
			Help:    "Compile phase wall-clock duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"compiler"}),
		runTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cattleshed_run_total",
			Help: "Total number of run phases, by compiler and verdict.",
		}, []string{"compiler", "verdict"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cattleshed_run_duration_seconds",
			Help:    "Run phase wall-clock duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"compiler"}),
		runOutputBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cattleshed_run_output_bytes",
			Help:    "Combined stdout+stderr bytes produced by a run phase.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"compiler"}),
	}
}

// Registry returns the registry this Prometheus instance registered its
// collectors against, for mounting under the debug HTTP server.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prometheus) ObserveSessionStart() {
	p.sessionsActive.Inc()
	p.sessionsTotal.Inc()
}

func (p *Prometheus) ObserveSessionEnd() {
	p.sessionsActive.Dec()
}

func (p *Prometheus) ObserveCompile(compiler string, ok bool, duration time.Duration) {
	p.compileTotal.WithLabelValues(compiler, boolLabel(ok)).Inc()
	p.compileDuration.WithLabelValues(compiler).Observe(duration.Seconds())
}

func (p *Prometheus) ObserveRun(compiler string, verdict string, duration time.Duration, outputBytes int64) {
	p.runTotal.WithLabelValues(compiler, verdict).Inc()
	p.runDuration.WithLabelValues(compiler).Observe(duration.Seconds())
	p.runOutputBytes.WithLabelValues(compiler).Observe(float64(outputBytes))
}

func (p *Prometheus) ObserveAdmissionRejected() {
	p.admissionRejected.Inc()
}

func boolLabel(ok bool) string {
	if ok {
		return "true"
	}
	return "false"
}

var _ Recorder = (*Prometheus)(nil)
