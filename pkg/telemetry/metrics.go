package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the verification pipeline.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Stage metrics
	stagesExecuted *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec

	// Adapter metrics
	adapterCalls    *prometheus.CounterVec
	adapterDuration *prometheus.HistogramVec
	adapterErrors   *prometheus.CounterVec

	// Policy gate metrics
	gateEvaluations *prometheus.CounterVec
	gateViolations  *prometheus.CounterVec

	// Bundle metrics
	bundlesCreated  *prometheus.CounterVec
	bundlesUploaded *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

	// System metrics
	activeRuns prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of verification runs started",
			},
			[]string{"kind", "depth"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of verification runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of verification runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		stagesExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_executed_total",
				Help:      "Total number of stages executed",
			},
			[]string{"stage", "status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of stage execution in seconds",
				Buckets:   buckets,
			},
			[]string{"stage"},
		),

		adapterCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "adapter_calls_total",
				Help:      "Total number of adapter invocations",
			},
			[]string{"adapter", "mode"},
		),
		adapterDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "adapter_call_duration_seconds",
				Help:      "Duration of adapter invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"adapter", "mode"},
		),
		adapterErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "adapter_errors_total",
				Help:      "Total number of adapter infrastructure errors",
			},
			[]string{"adapter", "mode"},
		),

		gateEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_evaluations_total",
				Help:      "Total number of policy gate evaluations",
			},
			[]string{"outcome"},
		),
		gateViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_violations_total",
				Help:      "Total number of policy gate violations",
			},
			[]string{"rule", "severity"},
		),

		bundlesCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bundles_created_total",
				Help:      "Total number of evidence bundles created",
			},
			[]string{"status"},
		),
		bundlesUploaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bundles_uploaded_total",
				Help:      "Total number of evidence bundles uploaded",
			},
			[]string{"status"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),

		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active verification runs",
			},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.stagesExecuted,
		m.stageDuration,
		m.adapterCalls,
		m.adapterDuration,
		m.adapterErrors,
		m.gateEvaluations,
		m.gateViolations,
		m.bundlesCreated,
		m.bundlesUploaded,
		m.errorsByClass,
		m.activeRuns,
	)

	return m, nil
}

// Run Metrics

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted(kind, depth string) {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.WithLabelValues(kind, depth).Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// Stage Metrics

// RecordStageExecution records one executed stage.
func (m *Metrics) RecordStageExecution(stage, status string, duration time.Duration) {
	if m.stagesExecuted == nil {
		return
	}
	m.stagesExecuted.WithLabelValues(stage, status).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// Adapter Metrics

// RecordAdapterCall records one adapter invocation with its duration.
func (m *Metrics) RecordAdapterCall(adapter, mode string, duration time.Duration) {
	if m.adapterCalls == nil {
		return
	}
	m.adapterCalls.WithLabelValues(adapter, mode).Inc()
	m.adapterDuration.WithLabelValues(adapter, mode).Observe(duration.Seconds())
}

// RecordAdapterError records an adapter infrastructure failure.
func (m *Metrics) RecordAdapterError(adapter, mode string) {
	if m.adapterErrors == nil {
		return
	}
	m.adapterErrors.WithLabelValues(adapter, mode).Inc()
}

// Policy Gate Metrics

// RecordGateEvaluation records one gate pass with its outcome.
func (m *Metrics) RecordGateEvaluation(allowed bool) {
	if m.gateEvaluations == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	m.gateEvaluations.WithLabelValues(outcome).Inc()
}

// RecordGateViolation records one rule violation.
func (m *Metrics) RecordGateViolation(rule, severity string) {
	if m.gateViolations == nil {
		return
	}
	m.gateViolations.WithLabelValues(rule, severity).Inc()
}

// Bundle Metrics

// RecordBundleCreated records a bundling attempt.
func (m *Metrics) RecordBundleCreated(ok bool) {
	if m.bundlesCreated == nil {
		return
	}
	m.bundlesCreated.WithLabelValues(boolStatus(ok)).Inc()
}

// RecordBundleUploaded records a bundle upload attempt.
func (m *Metrics) RecordBundleUploaded(ok bool) {
	if m.bundlesUploaded == nil {
		return
	}
	m.bundlesUploaded.WithLabelValues(boolStatus(ok)).Inc()
}

func boolStatus(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Error Metrics

// RecordError records an error by class.
func (m *Metrics) RecordError(errorClass string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
