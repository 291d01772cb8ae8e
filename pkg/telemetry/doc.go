// Package telemetry provides observability instrumentation for the verification pipeline.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into a unified system
// for monitoring and debugging pipeline runs.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Async event system for audit and notifications
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "proofrun"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context propagation:
//
//	logger := tel.Logger.NewComponentLogger("stage-runner")
//	logger = logger.WithRunID("run-123").WithStage("apply")
//	logger.Info("Starting apply stage")
//	logger.WithError(err).Error("Stage failed")
//
// Log levels: debug, info, warn, error
//
// # Distributed Tracing
//
// Tracing covers the full run lifecycle, each verification stage, and every
// adapter invocation:
//
//	ctx = telemetry.WithRunContext(ctx, runID, kind, depth)
//	defer telemetry.EndRunContext(ctx, runID, status, err)
//
//	ctx = telemetry.WithStageContext(ctx, runID, "apply")
//	defer telemetry.EndStageContext(ctx, runID, "apply", failed, err)
//
//	err := telemetry.RecordAdapterOperation(ctx, "network", "apply", func() error {
//	    return adapter.Apply(ctx, spec)
//	})
//
// # Metrics
//
// Prometheus metrics are exposed on the configured listen address:
//
//	tel.Metrics.RecordRunStarted("config-playbook", "all")
//	tel.Metrics.RecordStageExecution("apply", "passed", duration)
//	tel.Metrics.RecordGateEvaluation(true)
//	tel.Metrics.RecordBundleCreated(true)
//
// Key series (prefixed with the configured namespace):
//
//	runs_started_total{kind,depth}
//	runs_completed_total{status}
//	stages_executed_total{stage,status}
//	stage_duration_seconds{stage}
//	adapter_calls_total{adapter,mode}
//	gate_evaluations_total{outcome}
//	gate_violations_total{rule,severity}
//	bundles_created_total{status}
//	errors_by_class_total{class}
//	active_runs
//
// # Events
//
// The event publisher delivers run lifecycle events to subscribers:
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    fmt.Println(e.Type, e.Message)
//	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))
//
//	tel.Events.PublishStageCompleted(runID, "idempotency", false, duration)
//	tel.Events.PublishPolicyViolation(runID, "playbook-hosts-required", reason)
//
// Event filters: FilterByLevel, FilterByType, FilterByRunID, FilterByStage
//
// # Performance Considerations
//
//   - Event publishing is asynchronous by default; a full buffer drops events
//     rather than blocking the pipeline
//   - Trace sampling rate should be lowered in production
//   - Metrics use a dedicated registry, so tests never collide on series names
package telemetry
