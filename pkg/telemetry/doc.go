// Package telemetry provides observability for the fx toolkit.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry),
// metrics (Prometheus) and an in-process event publisher behind one
// Telemetry value.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Operations
//
// Top-level operations are wrapped in an OperationScope, which opens a span,
// tags the logger with the operation name and id, and records completion
// status:
//
//	scope := telemetry.StartOperation(ctx, "provision", op.ID)
//	err := run(scope.Ctx)
//	scope.End(err)
//
// Operations bound to an environment call scope.WithEnv, which adds the
// env to the logger and the span.
//
// # Events
//
// Events fan out synchronously unless events.enable_async is set.
// events.min_level and events.types in the config drop events before any
// subscriber sees them.
//
// # Plugin stages
//
// StageHook implements engine.StageHook. Installed on the orchestrator with
// engine.WithStageHooks, it produces one "plugin.<stage>" span per plugin
// call and the fx_plugin_stage_* metrics:
//
//	orch := engine.NewOrchestrator(reg, manifests,
//	    engine.WithStageHooks(telemetry.NewStageHook(tel)),
//	    engine.WithLogger(tel.Logger.Zerolog()),
//	)
//
// # Metrics
//
//   - fx_operations_started_total{operation}
//   - fx_operations_completed_total{operation,status}
//   - fx_operation_duration_seconds{operation,status}
//   - fx_active_operations
//   - fx_plugin_stage_calls_total{plugin,stage}
//   - fx_plugin_stage_duration_seconds{plugin,stage}
//   - fx_plugin_stage_errors_total{plugin,stage,kind}
//   - fx_errors_by_kind_total{kind}
//   - fx_errors_by_code_total{code}
//   - fx_policy_violations_total{policy}
//
// The registry is only served over HTTP when StartMetricsServer is called,
// which long-running commands such as "fx preview --watch" do.
package telemetry
