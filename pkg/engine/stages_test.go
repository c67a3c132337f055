package engine

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func stageCalls(plugin string, stages ...Stage) []string {
	out := make([]string, 0, len(stages))
	for _, s := range stages {
		out = append(out, plugin+":"+string(s))
	}
	return out
}

func TestProvision_StageMajorOrder(t *testing.T) {
	log := &callLog{}
	p1 := newMockPlugin("p1", log)
	p1.outputs = CloudResource{"endpoint": "https://p1"}
	p2 := newMockPlugin("p2", log)
	reg := NewRegistry()
	reg.MustRegister(p1, p2, &basePlugin{name: "p3"})
	o := NewOrchestrator(reg, &memManifests{})

	env := &EnvInfo{EnvName: "dev"}
	err := o.Provision(context.Background(), newTestContext(0, "p1", "p2", "p3"), newTestInputs(), env, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	want := []string{
		"p1:" + string(StagePreProvision), "p2:" + string(StagePreProvision),
		"p1:" + string(StageProvision), "p2:" + string(StageProvision),
		"p1:" + string(StageConfigure), "p2:" + string(StageConfigure),
	}
	if !reflect.DeepEqual(log.list(), want) {
		t.Errorf("Expected calls %v, got %v", want, log.list())
	}
	if got := env.State["p1"]["endpoint"]; got != "https://p1" {
		t.Errorf("Expected p1 endpoint in state, got %v", got)
	}
}

func TestProvision_FailureStopsSequence(t *testing.T) {
	log := &callLog{}
	p1 := newMockPlugin("p1", log)
	p1.outputs = CloudResource{"resourceId": "rid"}
	p2 := newMockPlugin("p2", log)
	p2.errs[StageProvision] = errors.New("subscription disabled")
	p3 := newMockPlugin("p3", log)
	reg := NewRegistry()
	reg.MustRegister(p1, p2, p3)
	o := NewOrchestrator(reg, &memManifests{})

	env := &EnvInfo{EnvName: "dev"}
	err := o.Provision(context.Background(), newTestContext(0, "p1", "p2", "p3"), newTestInputs(), env, nil)
	if !errors.Is(err, ErrUnhandled) {
		t.Fatalf("Expected UnhandledError, got: %v", err)
	}
	if n := log.count("p3:" + string(StageProvision)); n != 0 {
		t.Errorf("Expected p3 not provisioned, got %d calls", n)
	}
	if n := log.count("p1:" + string(StageConfigure)); n != 0 {
		t.Errorf("Expected configure not reached, got %d calls", n)
	}
	if got := env.State["p1"]["resourceId"]; got != "rid" {
		t.Errorf("Expected outputs of earlier plugins kept, got %v", got)
	}
}

func TestProvision_CancellationPassesThrough(t *testing.T) {
	log := &callLog{}
	p1 := newMockPlugin("p1", log)
	cancel := CancelError("p1")
	p1.errs[StagePreProvision] = cancel
	reg := NewRegistry()
	reg.MustRegister(p1)
	o := NewOrchestrator(reg, &memManifests{})

	err := o.Provision(context.Background(), newTestContext(0, "p1"), newTestInputs(), &EnvInfo{EnvName: "dev"}, nil)
	if err != cancel {
		t.Errorf("Expected the cancellation error verbatim, got: %v", err)
	}
}

func TestConfigure_OnlyConfigureStage(t *testing.T) {
	log := &callLog{}
	reg := NewRegistry()
	reg.MustRegister(newMockPlugin("p1", log))
	o := NewOrchestrator(reg, &memManifests{})

	if err := o.Configure(context.Background(), newTestContext(0, "p1"), newTestInputs(), &EnvInfo{EnvName: "dev"}, nil); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if want := stageCalls("p1", StageConfigure); !reflect.DeepEqual(log.list(), want) {
		t.Errorf("Expected calls %v, got %v", want, log.list())
	}
}

func TestDeploy_Targets(t *testing.T) {
	tests := []struct {
		name    string
		modules []int
		want    []string
	}{
		{
			name: "all modules plus non hosting plugins",
			want: []string{
				"web:" + string(StagePreDeploy), "web:" + string(StagePreDeploy), "aad:" + string(StagePreDeploy),
				"web:" + string(StageDeploy), "web:" + string(StageDeploy), "aad:" + string(StageDeploy),
			},
		},
		{
			name:    "selected module only",
			modules: []int{1},
			want:    []string{"web:" + string(StagePreDeploy), "web:" + string(StageDeploy)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &callLog{}
			reg := NewRegistry()
			reg.MustRegister(newMockPlugin("web", log), newMockPlugin("aad", log))
			o := NewOrchestrator(reg, &memManifests{})

			pctx := newTestContext(2, "web", "aad")
			pctx.ProjectSettings.Solution.Modules[0].HostingPlugin = "web"
			pctx.ProjectSettings.Solution.Modules[1].HostingPlugin = "web"
			inputs := newTestInputs()
			inputs.Modules = tt.modules

			if err := o.Deploy(context.Background(), pctx, inputs, &EnvInfo{EnvName: "dev"}, nil); err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if !reflect.DeepEqual(log.list(), tt.want) {
				t.Errorf("Expected calls %v, got %v", tt.want, log.list())
			}
		})
	}
}

func TestDeploy_InvalidModule(t *testing.T) {
	reg := NewRegistry()
	o := NewOrchestrator(reg, &memManifests{})
	inputs := newTestInputs()
	inputs.Modules = []int{5}

	err := o.Deploy(context.Background(), newTestContext(1), inputs, &EnvInfo{EnvName: "dev"}, nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected InvalidInput, got: %v", err)
	}
}

func TestDeployableModules(t *testing.T) {
	log := &callLog{}
	reg := NewRegistry()
	reg.MustRegister(newMockPlugin("web", log), &basePlugin{name: "static"})
	o := NewOrchestrator(reg, &memManifests{})

	pctx := newTestContext(3)
	pctx.ProjectSettings.Solution.Modules[0].HostingPlugin = "static"
	pctx.ProjectSettings.Solution.Modules[2].HostingPlugin = "web"

	if got := o.DeployableModules(pctx); !reflect.DeepEqual(got, []int{2}) {
		t.Errorf("Expected [2], got %v", got)
	}
}

func TestProvisionLocal_WritesLocalSettingsAndState(t *testing.T) {
	log := &callLog{}
	dbg := newMockPlugin(LocalDebugPlugin, log)
	dbg.outputs = CloudResource{"trustDevCert": true}
	reg := NewRegistry()
	reg.MustRegister(dbg)
	o := NewOrchestrator(reg, &memManifests{})

	pctx := newTestContext(0, LocalDebugPlugin)
	env := &EnvInfo{EnvName: "dev"}
	if err := o.ProvisionLocal(context.Background(), pctx, newTestInputs(), env, nil); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if want := stageCalls(LocalDebugPlugin, StageLocalProvision, StageLocalConfigure); !reflect.DeepEqual(log.list(), want) {
		t.Errorf("Expected calls %v, got %v", want, log.list())
	}
	if pctx.LocalSettings[LocalDebugPlugin]["trustDevCert"] != true {
		t.Error("Expected local settings to hold the local debug outputs")
	}
	if env.State[LocalDebugPlugin]["trustDevCert"] != true {
		t.Error("Expected env state to hold the local debug outputs")
	}
}

func TestExecuteUserTask(t *testing.T) {
	log := &callLog{}
	p := newMockPlugin("fx-resource-function", log)
	p.taskValue = "done"
	reg := NewRegistry()
	reg.MustRegister(p, newMockPlugin("storage", log), &basePlugin{name: "plain"})
	o := NewOrchestrator(reg, &memManifests{})

	t.Run("plugin namespace", func(t *testing.T) {
		got, err := o.ExecuteUserTask(context.Background(), newTestContext(0), newTestInputs(),
			Func{Namespace: "fx-resource-function", Method: "build"}, nil, nil)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if got != "done" {
			t.Errorf("Expected done, got %v", got)
		}
	})

	t.Run("solution addResource", func(t *testing.T) {
		pctx := newTestContext(1)
		_, err := o.ExecuteUserTask(context.Background(), pctx, newTestInputs(),
			Func{Namespace: SolutionNamespace, Method: MethodAddResource, Params: map[string]interface{}{"resource": "storage"}}, nil, nil)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if !pctx.ProjectSettings.Solution.IsActive("storage") {
			t.Error("Expected storage to be active")
		}
	})

	t.Run("unsupported method", func(t *testing.T) {
		_, err := o.ExecuteUserTask(context.Background(), newTestContext(0), newTestInputs(),
			Func{Namespace: SolutionNamespace, Method: "rotate"}, nil, nil)
		if !errors.Is(err, ErrTaskNotSupported) {
			t.Errorf("Expected TaskNotSupported, got: %v", err)
		}
	})

	t.Run("plugin without tasks", func(t *testing.T) {
		_, err := o.ExecuteUserTask(context.Background(), newTestContext(0), newTestInputs(),
			Func{Namespace: "plain", Method: "x"}, nil, nil)
		if !errors.Is(err, ErrTaskNotSupported) {
			t.Errorf("Expected TaskNotSupported, got: %v", err)
		}
	})
}

type recordingHook struct {
	before, after []string
	errs          []error
}

func (h *recordingHook) BeforeStage(ctx context.Context, stage Stage, plugin string) context.Context {
	h.before = append(h.before, plugin+":"+string(stage))
	return ctx
}

func (h *recordingHook) AfterStage(ctx context.Context, stage Stage, plugin string, err error) {
	h.after = append(h.after, plugin+":"+string(stage))
	h.errs = append(h.errs, err)
}

func TestStageHooks_ObserveClassifiedErrors(t *testing.T) {
	log := &callLog{}
	p := newMockPlugin("p1", log)
	p.errs[StageConfigure] = errors.New("raw")
	reg := NewRegistry()
	reg.MustRegister(p)
	hook := &recordingHook{}
	o := NewOrchestrator(reg, &memManifests{}, WithStageHooks(hook))

	_ = o.Configure(context.Background(), newTestContext(0, "p1"), newTestInputs(), &EnvInfo{EnvName: "dev"}, nil)

	if !reflect.DeepEqual(hook.before, hook.after) || len(hook.before) != 1 {
		t.Fatalf("Expected one observed call, got before=%v after=%v", hook.before, hook.after)
	}
	if !errors.Is(hook.errs[0], ErrUnhandled) {
		t.Errorf("Expected hook to see UnhandledError, got: %v", hook.errs[0])
	}
}

func TestExecuteUserTask_SolutionParams(t *testing.T) {
	newOrchestrator := func(log *callLog) *Orchestrator {
		reg := NewRegistry()
		reg.MustRegister(newMockPlugin("a", log), newMockPlugin("b", log))
		return NewOrchestrator(reg, &memManifests{}, WithTemplateStore(&memTemplates{}))
	}
	update := func(plugins interface{}) Func {
		return Func{Namespace: SolutionNamespace, Method: MethodUpdateTemplates, Params: map[string]interface{}{"plugins": plugins}}
	}

	t.Run("single plugin update", func(t *testing.T) {
		log := &callLog{}
		got, err := newOrchestrator(log).ExecuteUserTask(context.Background(), newTestContext(0, "a", "b"), newTestInputs(), update("b"), nil, nil)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if n := log.count("a:" + string(StageGenerateTemplate)); n != 0 {
			t.Errorf("Expected a not regenerated, got %d calls", n)
		}
		if n := log.count("b:" + string(StageGenerateTemplate)); n != 1 {
			t.Errorf("Expected b regenerated once, got %d calls", n)
		}
		if tpl := got.(*CompositeTemplate); !reflect.DeepEqual(tpl.Plugins(), []string{"b"}) {
			t.Errorf("Expected only b's fragment, got %v", tpl.Plugins())
		}
	})

	t.Run("decoded list", func(t *testing.T) {
		log := &callLog{}
		_, err := newOrchestrator(log).ExecuteUserTask(context.Background(), newTestContext(0, "a", "b"), newTestInputs(), update([]interface{}{"a"}), nil, nil)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if n := log.count("b:" + string(StageGenerateTemplate)); n != 0 {
			t.Errorf("Expected b not regenerated, got %d calls", n)
		}
	})

	t.Run("invalid plugins", func(t *testing.T) {
		for _, v := range []interface{}{42, []interface{}{"a", 1}} {
			_, err := newOrchestrator(&callLog{}).ExecuteUserTask(context.Background(), newTestContext(0, "a", "b"), newTestInputs(), update(v), nil, nil)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Expected InvalidInput for %v, got: %v", v, err)
			}
		}
	})

	t.Run("module binding", func(t *testing.T) {
		for _, module := range []interface{}{"1", float64(1), 1} {
			pctx := newTestContext(2)
			fn := Func{Namespace: SolutionNamespace, Method: MethodAddResource, Params: map[string]interface{}{"resource": "a", "module": module}}
			if _, err := newOrchestrator(&callLog{}).ExecuteUserTask(context.Background(), pctx, newTestInputs(), fn, nil, nil); err != nil {
				t.Fatalf("Expected no error for %v, got: %v", module, err)
			}
			if got := pctx.ProjectSettings.Solution.Modules[1].HostingPlugin; got != "a" {
				t.Errorf("Expected module 1 hosted by a for %v, got %q", module, got)
			}
		}
	})

	t.Run("no module", func(t *testing.T) {
		pctx := newTestContext(1)
		fn := Func{Namespace: SolutionNamespace, Method: MethodAddResource, Params: map[string]interface{}{"resource": "a", "module": ModuleNone}}
		if _, err := newOrchestrator(&callLog{}).ExecuteUserTask(context.Background(), pctx, newTestInputs(), fn, nil, nil); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if got := pctx.ProjectSettings.Solution.Modules[0].HostingPlugin; got != "" {
			t.Errorf("Expected no module binding, got %q", got)
		}
	})

	t.Run("invalid module", func(t *testing.T) {
		for _, module := range []interface{}{"first", float64(0.5), true} {
			fn := Func{Namespace: SolutionNamespace, Method: MethodAddResource, Params: map[string]interface{}{"resource": "a", "module": module}}
			_, err := newOrchestrator(&callLog{}).ExecuteUserTask(context.Background(), newTestContext(1), newTestInputs(), fn, nil, nil)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Expected InvalidInput for %v, got: %v", module, err)
			}
		}
	})
}
