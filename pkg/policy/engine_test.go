package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

func testSettings() *engine.ProjectSettings {
	return &engine.ProjectSettings{
		AppName:   "todo-list",
		ProjectID: "2b1e5a3c-7d4f-4e8a-9b6c-1f2e3d4c5b6a",
		Solution: engine.SolutionSettings{
			Name: engine.SolutionNamespace,
			Modules: []engine.Module{
				{HostingPlugin: "fx-resource-frontend-hosting"},
			},
			ActiveResourcePlugins: []string{"fx-resource-aad-app-for-teams", "fx-resource-frontend-hosting"},
		},
	}
}

func testTemplate(t *testing.T, params map[string]interface{}, plugins ...string) *engine.CompositeTemplate {
	t.Helper()
	var fragments []engine.TemplateFragment
	for i, p := range plugins {
		rt := &engine.ResourceTemplate{Kind: engine.TemplateKindBicep}
		if i == 0 {
			rt.Parameters = params
		}
		fragments = append(fragments, engine.TemplateFragment{Plugin: p, Template: rt})
	}
	tpl, err := engine.MergeFragments(fragments)
	if err != nil {
		t.Fatalf("Failed to merge fragments: %v", err)
	}
	return tpl
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop(), opts...)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func TestNewEngine_BuiltinPolicies(t *testing.T) {
	eng := newTestEngine(t)

	policies := eng.ListPolicies()
	if len(policies) != len(GetBuiltinPolicies()) {
		t.Fatalf("Expected %d built-in policies, got %d", len(GetBuiltinPolicies()), len(policies))
	}
	for _, p := range policies {
		if !p.Builtin || !p.Enabled {
			t.Errorf("Expected %s to be an enabled built-in", p.Name)
		}
	}

	if got := newTestEngine(t, WithBuiltinPolicies(false)).ListPolicies(); len(got) != 0 {
		t.Errorf("Expected no policies, got %d", len(got))
	}
}

func TestEvaluateTemplate_Builtins(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		settings   func() *engine.ProjectSettings
		template   func(*testing.T) *engine.CompositeTemplate
		wantPolicy string
	}{
		{
			name:     "valid template",
			settings: testSettings,
			template: func(t *testing.T) *engine.CompositeTemplate {
				return testTemplate(t, map[string]interface{}{
					"frontendHostingStorageName": "todo",
					"botPassword":                "{{state.fx-resource-bot.botPassword}}",
				}, "fx-resource-frontend-hosting", "fx-resource-aad-app-for-teams")
			},
		},
		{
			name:     "parameter naming",
			settings: testSettings,
			template: func(t *testing.T) *engine.CompositeTemplate {
				return testTemplate(t, map[string]interface{}{"Storage_Name": "todo"}, "fx-resource-frontend-hosting")
			},
			wantPolicy: PolicyParameterNaming,
		},
		{
			name: "module hosted by inactive plugin",
			settings: func() *engine.ProjectSettings {
				s := testSettings()
				s.Solution.Modules[0].HostingPlugin = "fx-resource-bot"
				return s
			},
			template: func(t *testing.T) *engine.CompositeTemplate {
				return testTemplate(t, nil, "fx-resource-frontend-hosting")
			},
			wantPolicy: PolicyModuleBinding,
		},
		{
			name:     "fragment of inactive plugin",
			settings: testSettings,
			template: func(t *testing.T) *engine.CompositeTemplate {
				return testTemplate(t, nil, "fx-resource-azure-sql")
			},
			wantPolicy: PolicyFragmentOwner,
		},
		{
			name:     "plain text secret",
			settings: testSettings,
			template: func(t *testing.T) *engine.CompositeTemplate {
				return testTemplate(t, map[string]interface{}{"sqlAdminPassword": "hunter2"}, "fx-resource-frontend-hosting")
			},
			wantPolicy: PolicyPlaintextSecret,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eng.EvaluateTemplate(ctx, tt.settings(), tt.template(t))
			if tt.wantPolicy == "" {
				if err != nil {
					t.Fatalf("Expected no violation, got: %v", err)
				}
				return
			}
			if !errors.Is(err, engine.ErrPolicyViolation) {
				t.Fatalf("Expected PolicyViolation, got: %v", err)
			}
			var fe *engine.FxError
			if !errors.As(err, &fe) {
				t.Fatalf("Expected *FxError, got %T", err)
			}
			msgs, _ := fe.Details["violations"].([]string)
			if len(msgs) == 0 || msgs[0][:len(tt.wantPolicy)] != tt.wantPolicy {
				t.Errorf("Expected violation of %s, got %v", tt.wantPolicy, msgs)
			}
		})
	}
}

func TestEvaluate_WarningsDoNotBlock(t *testing.T) {
	eng := newTestEngine(t)
	settings := testSettings()
	settings.Solution.ActiveResourcePlugins = append(settings.Solution.ActiveResourcePlugins, engine.LocalDebugPlugin)

	result, err := eng.Evaluate(context.Background(), &PolicyInput{
		Settings: settings,
		Template: testTemplate(t, nil, engine.LocalDebugPlugin),
		Context:  &PolicyContext{Operation: "addResource"},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Expected warnings not to block, got %v", result.Violations)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Policy != PolicyLocalDebug {
		t.Errorf("Expected one local debug warning, got %v", result.Warnings)
	}
	if result.Warnings[0].Plugin != engine.LocalDebugPlugin {
		t.Errorf("Expected plugin in warning, got %q", result.Warnings[0].Plugin)
	}
}

func TestAddPolicy_CustomAndHandler(t *testing.T) {
	var seen []PolicyViolation
	eng := newTestEngine(t,
		WithBuiltinPolicies(false),
		WithViolationHandler(func(v PolicyViolation) { seen = append(seen, v) }),
	)
	ctx := context.Background()

	err := eng.AddPolicy(ctx, Policy{
		Name:    "operation-aware",
		Enabled: true,
		Rego: `package custom.ops

deny contains msg if {
	input.context.operation == "addResource"
	count(input.template.fragments) > 1
	msg := "add at most one plugin at a time"
}
`,
	})
	if err != nil {
		t.Fatalf("Failed to add policy: %v", err)
	}

	tpl := testTemplate(t, nil, "fx-resource-frontend-hosting", "fx-resource-aad-app-for-teams")
	opCtx := engine.WithOperation(ctx, engine.NewOperation("addResource"))

	err = eng.EvaluateTemplate(opCtx, testSettings(), tpl)
	if !errors.Is(err, engine.ErrPolicyViolation) {
		t.Fatalf("Expected PolicyViolation, got: %v", err)
	}
	var fe *engine.FxError
	if !errors.As(err, &fe) || fe.HelpLink == "" {
		t.Errorf("Expected a help link on the violation, got %+v", err)
	}
	if len(seen) != 1 || seen[0].Severity != SeverityError || seen[0].Message != "add at most one plugin at a time" {
		t.Errorf("Expected handler to see the violation, got %v", seen)
	}

	if err := eng.EvaluateTemplate(ctx, testSettings(), tpl); err != nil {
		t.Errorf("Expected no violation outside addResource, got: %v", err)
	}

	if err := eng.DisablePolicy("operation-aware"); err != nil {
		t.Fatal(err)
	}
	if err := eng.EvaluateTemplate(opCtx, testSettings(), tpl); err != nil {
		t.Errorf("Expected disabled policy to be skipped, got: %v", err)
	}

	if err := eng.EnablePolicy("operation-aware"); err != nil {
		t.Fatal(err)
	}
	if err := eng.EvaluateTemplate(opCtx, testSettings(), tpl); !errors.Is(err, engine.ErrPolicyViolation) {
		t.Errorf("Expected re-enabled policy to apply, got: %v", err)
	}
	if err := eng.DisablePolicy("missing"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestAddPolicy_Invalid(t *testing.T) {
	eng := newTestEngine(t, WithBuiltinPolicies(false))
	ctx := context.Background()

	if err := eng.AddPolicy(ctx, Policy{Name: "broken", Rego: "package x\n\ndeny contains"}); err == nil {
		t.Error("Expected compile error")
	}
	if err := eng.AddPolicy(ctx, Policy{Rego: "package x"}); err == nil {
		t.Error("Expected error for missing name")
	}
	if _, err := eng.GetPolicy("broken"); err == nil {
		t.Error("Expected broken policy not to be stored")
	}
}

func TestReplacePolicies_KeepsBuiltins(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	custom := Policy{Name: "custom", Enabled: true, Rego: "package custom\n\ndeny contains \"always\" if true\n"}
	if err := eng.ReplacePolicies(ctx, []Policy{custom}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := len(eng.ListPolicies()); got != len(GetBuiltinPolicies())+1 {
		t.Errorf("Expected built-ins plus custom, got %d", got)
	}

	if err := eng.ReplacePolicies(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.GetPolicy("custom"); err == nil {
		t.Error("Expected custom policy to be removed")
	}

	bad := Policy{Name: "bad", Rego: "package"}
	if err := eng.ReplacePolicies(ctx, []Policy{bad}); err == nil {
		t.Error("Expected compile error")
	}
	if got := len(eng.ListPolicies()); got != len(GetBuiltinPolicies()) {
		t.Errorf("Expected policies unchanged after failed replace, got %d", got)
	}
}
