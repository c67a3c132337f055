package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

func newTestTelemetry(t *testing.T) (*Telemetry, *tracetest.SpanRecorder, *bytes.Buffer) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "debug"
	cfg.Tracing.Enabled = false

	var buf bytes.Buffer
	tel, err := NewTelemetryWithWriter(cfg, &buf)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	rec := tracetest.NewSpanRecorder()
	tel.Tracer = NewTracerFromProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)), "fx-test")
	return tel, rec, &buf
}

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Expected no gather error, got: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range metric.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue metrics
				}
			}
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "json", mutate: func(c *Config) { c.Logging.Format = "json" }},
		{name: "stdout exporter", mutate: func(c *Config) { c.Tracing.Exporter = "stdout" }},
		{name: "empty service", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: true},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{name: "bad exporter", mutate: func(c *Config) { c.Tracing.Exporter = "jaeger" }, wantErr: true},
		{name: "bad sampling", mutate: func(c *Config) { c.Tracing.SamplingRate = 2 }, wantErr: true},
		{name: "bad buffer", mutate: func(c *Config) { c.Events.BufferSize = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLogger_OperationFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "info", Format: "json"}, &buf)

	logger.WithOperation("provision", "op-1").WithPlugin("fx-resource-bot", "deploy").Info("hello")

	out := buf.String()
	for _, want := range []string{`"operation":"provision"`, `"operation_id":"op-1"`, `"plugin":"fx-resource-bot"`, `"stage":"deploy"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %s in %s", want, out)
		}
	}

	buf.Reset()
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected debug to be filtered, got %s", buf.String())
	}
}

func TestFromContext_DefaultsToNop(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("Expected a logger")
	}
	logger.Info("discarded")
}

func TestStageHook_RecordsSpansAndMetrics(t *testing.T) {
	tel, rec, _ := newTestTelemetry(t)
	hook := NewStageHook(tel)

	var failed []Event
	tel.Events.Subscribe(func(e Event) { failed = append(failed, e) }, FilterByType(EventTypeStageFailed))

	op := engine.NewOperation("provision")
	ctx := engine.WithOperation(context.Background(), op)

	sctx := hook.BeforeStage(ctx, engine.StageProvision, "fx-resource-sql")
	hook.AfterStage(sctx, engine.StageProvision, "fx-resource-sql", nil)

	sctx = hook.BeforeStage(ctx, engine.StageConfigure, "fx-resource-sql")
	hook.AfterStage(sctx, engine.StageConfigure, "fx-resource-sql",
		engine.NewUserError("fx-resource-sql", "SqlLoginFailed", "login failed"))

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("Expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "plugin.provisionResource" {
		t.Errorf("Expected span plugin.provisionResource, got %s", spans[0].Name())
	}

	if got := counterValue(t, tel.Metrics, "fx_plugin_stage_calls_total", map[string]string{"plugin": "fx-resource-sql"}); got != 2 {
		t.Errorf("Expected 2 stage calls, got %v", got)
	}
	if got := counterValue(t, tel.Metrics, "fx_plugin_stage_errors_total", map[string]string{"kind": "user"}); got != 1 {
		t.Errorf("Expected 1 user stage error, got %v", got)
	}

	if len(failed) != 1 || failed[0].OperationID != op.ID || failed[0].Plugin != "fx-resource-sql" {
		t.Errorf("Expected one stage failure event for the operation, got %+v", failed)
	}
}

func TestStageHook_WithOrchestrator(t *testing.T) {
	tel, rec, _ := newTestTelemetry(t)

	reg := engine.NewRegistry()
	reg.MustRegister(&provisioner{name: "fx-resource-frontend-hosting"})
	orch := engine.NewOrchestrator(reg, nil, engine.WithStageHooks(NewStageHook(tel)))

	pctx := &engine.Context{ProjectSettings: &engine.ProjectSettings{
		AppName: "app",
		Solution: engine.SolutionSettings{
			ActiveResourcePlugins: []string{"fx-resource-frontend-hosting"},
		},
	}}
	inputs := &engine.Inputs{Platform: engine.PlatformCLI, ProjectPath: t.TempDir(), EnvName: "dev"}
	if err := orch.Provision(context.Background(), pctx, inputs, &engine.EnvInfo{EnvName: "dev"}, nil); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(rec.Ended()) != 1 {
		t.Errorf("Expected one stage span, got %d", len(rec.Ended()))
	}
}

type provisioner struct{ name string }

func (p *provisioner) Descriptor() engine.Descriptor {
	return engine.Descriptor{Name: p.name, Kind: engine.KindResource}
}

func (p *provisioner) ProvisionResource(ctx context.Context, pctx *engine.Context, inputs *engine.Inputs, env *engine.EnvInfo, tokens engine.TokenProvider) (engine.CloudResource, error) {
	return engine.CloudResource{"endpoint": "https://app.z13.web.core.windows.net"}, nil
}

func TestOperationScope_End(t *testing.T) {
	tel, rec, buf := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())

	var events []string
	tel.Events.Subscribe(func(e Event) { events = append(events, e.Type) }, nil)

	scope := StartOperation(ctx, "deploy", "op-7")
	FromContext(scope.Ctx).Info("inside")
	scope.End(engine.CancelError("fx-solution-azure"))

	if got := counterValue(t, tel.Metrics, "fx_operations_completed_total", map[string]string{"status": "cancelled"}); got != 1 {
		t.Errorf("Expected a cancelled operation, got %v", got)
	}
	want := []string{EventTypeOperationStarted, EventTypeOperationFailed}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Errorf("Expected events %v, got %v", want, events)
	}
	if len(rec.Ended()) != 1 || rec.Ended()[0].Name() != "fx.deploy" {
		t.Errorf("Expected one fx.deploy span, got %d", len(rec.Ended()))
	}
	if !strings.Contains(buf.String(), `"operation_id":"op-7"`) {
		t.Errorf("Expected the context logger to carry the operation id, got %s", buf.String())
	}
}

func TestStartOperation_WithoutTelemetry(t *testing.T) {
	scope := StartOperation(context.Background(), "provision", "op-1")
	if scope.Ctx == nil || scope.Timer == nil {
		t.Fatal("Expected a usable scope")
	}
	scope.End(errors.New("boom"))
}

func TestEventPublisher_AsyncDeliversOnShutdown(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 8, MaxBatchSize: 4, EnableAsync: true})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got := make(chan Event, 8)
	ep.Subscribe(func(e Event) { got <- e }, FilterByLevel(EventLevelWarning))

	_ = ep.PublishOperationStarted("op-1", "provision")
	_ = ep.PublishPolicyViolation("no-public-storage", "storage account allows blob public access")

	if err := ep.Shutdown(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	close(got)

	var types []string
	for e := range got {
		types = append(types, e.Type)
	}
	if len(types) != 1 || types[0] != EventTypePolicyViolation {
		t.Errorf("Expected only the policy violation, got %v", types)
	}
}

func TestEventPublisher_Disabled(t *testing.T) {
	ep, _ := NewEventPublisher(EventsConfig{})
	called := false
	ep.Subscribe(func(Event) { called = true }, nil)
	_ = ep.PublishStatePersisted("dev", ".fx/states/state.dev.json")
	if called {
		t.Error("Expected no delivery when disabled")
	}
	if err := ep.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestOperationScope_WithEnv(t *testing.T) {
	tel, rec, buf := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())

	scope := StartOperation(ctx, "provision", "op-9")
	scope.WithEnv("dev")
	FromContext(scope.Ctx).Debug("inside")
	scope.End(nil)

	if !strings.Contains(buf.String(), `"env":"dev"`) {
		t.Errorf("Expected the context logger to carry the env, got %s", buf.String())
	}
	if len(rec.Ended()) != 1 {
		t.Fatalf("Expected one span, got %d", len(rec.Ended()))
	}
	found := false
	for _, kv := range rec.Ended()[0].Attributes() {
		if kv.Key == AttrEnv && kv.Value.AsString() == "dev" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected span attribute %s=dev, got %v", AttrEnv, rec.Ended()[0].Attributes())
	}
}

func TestEventPublisher_ConfigFilters(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{
		Enabled:  true,
		MinLevel: EventLevelWarning,
		Types:    []string{EventTypeStageFailed, EventTypeOperationStarted},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	var types []string
	ep.Subscribe(func(e Event) { types = append(types, e.Type) }, nil)

	_ = ep.PublishOperationStarted("op-1", "provision")
	_ = ep.PublishPolicyViolation("module-binding", "module 0 has no hosting plugin")
	_ = ep.PublishStageFailed("op-1", "fx-resource-sql", "provision", "quota")

	if len(types) != 1 || types[0] != EventTypeStageFailed {
		t.Errorf("Expected only the stage failure, got %v", types)
	}

	cfg := DefaultConfig()
	cfg.Events.MinLevel = "fatal"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for an unknown event level")
	}
}
