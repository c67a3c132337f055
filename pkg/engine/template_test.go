package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"pgregory.net/rapid"
)

func fragment(plugin string, params ...string) TemplateFragment {
	t := &ResourceTemplate{
		Kind:       TemplateKindBicep,
		Provision:  &TemplateSection{Orchestration: "// " + plugin},
		Parameters: map[string]interface{}{},
	}
	for _, p := range params {
		t.Parameters[p] = plugin
	}
	return TemplateFragment{Plugin: plugin, Template: t}
}

func TestMergeFragments_ParameterConflict(t *testing.T) {
	_, err := MergeFragments([]TemplateFragment{
		fragment("a", "location"),
		fragment("b", "location"),
	})
	if !errors.Is(err, ErrTemplateConflict) {
		t.Fatalf("Expected TemplateConflict, got: %v", err)
	}
}

func TestMergeFragments_ModuleAndOutputConflict(t *testing.T) {
	tests := []struct {
		name  string
		left  *TemplateSection
		right *TemplateSection
	}{
		{
			name:  "module",
			left:  &TemplateSection{Modules: map[string]string{"webApp": "a"}},
			right: &TemplateSection{Modules: map[string]string{"webApp": "b"}},
		},
		{
			name:  "output",
			left:  &TemplateSection{Reference: map[string]string{"endpoint": "a"}},
			right: &TemplateSection{Reference: map[string]string{"endpoint": "b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MergeFragments([]TemplateFragment{
				{Plugin: "a", Template: &ResourceTemplate{Provision: tt.left}},
				{Plugin: "b", Template: &ResourceTemplate{Provision: tt.right}},
			})
			if !errors.Is(err, ErrTemplateConflict) {
				t.Errorf("Expected TemplateConflict, got: %v", err)
			}
		})
	}
}

func TestMergeFragments_OrderAndContent(t *testing.T) {
	c, err := MergeFragments([]TemplateFragment{
		fragment("b", "bSku"),
		fragment("a", "aSku"),
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if got := c.ProvisionOrchestration(); got != "// b\n\n// a\n" {
		t.Errorf("Expected activation order, got %q", got)
	}
	if !reflect.DeepEqual(c.Plugins(), []string{"b", "a"}) {
		t.Errorf("Expected fragments [b a], got %v", c.Plugins())
	}
	if !reflect.DeepEqual(c.ParameterNames(), []string{"aSku", "bSku"}) {
		t.Errorf("Expected parameters [aSku bSku], got %v", c.ParameterNames())
	}
	if c.Kind != TemplateKindBicep {
		t.Errorf("Expected bicep kind, got %s", c.Kind)
	}
}

func TestMergeFragments_KindMismatch(t *testing.T) {
	_, err := MergeFragments([]TemplateFragment{
		{Plugin: "a", Template: &ResourceTemplate{Kind: TemplateKindBicep}},
		{Plugin: "b", Template: &ResourceTemplate{Kind: "arm"}},
	})
	if !errors.Is(err, ErrTemplateKindMismatch) {
		t.Errorf("Expected TemplateKindMismatch, got: %v", err)
	}
}

func TestMergeFragments_ConflictProperty(t *testing.T) {
	names := rapid.SampledFrom([]string{"location", "sku", "prefix", "tenant", "region"})
	rapid.Check(t, func(rt *rapid.T) {
		left := rapid.SliceOfDistinct(names, rapid.ID[string]).Draw(rt, "left")
		right := rapid.SliceOfDistinct(names, rapid.ID[string]).Draw(rt, "right")

		overlap := false
		for _, l := range left {
			for _, r := range right {
				overlap = overlap || l == r
			}
		}

		c, err := MergeFragments([]TemplateFragment{fragment("a", left...), fragment("b", right...)})
		if overlap {
			if !errors.Is(err, ErrTemplateConflict) {
				rt.Fatalf("expected conflict for %v and %v, got %v", left, right, err)
			}
			return
		}
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if len(c.Parameters) != len(left)+len(right) {
			rt.Fatalf("expected %d parameters, got %d", len(left)+len(right), len(c.Parameters))
		}
	})
}

func TestAggregator_Generate_SkipsPluginsWithoutTemplate(t *testing.T) {
	log := &callLog{}
	reg := NewRegistry()
	reg.MustRegister(newMockPlugin("a", log), &basePlugin{name: "plain"})

	agg := NewTemplateAggregator(reg)
	c, err := agg.Generate(context.Background(), &ContextWithManifest{Context: newTestContext(0)}, newTestInputs(),
		[]string{"plain", "a"}, []string{"a"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !reflect.DeepEqual(c.Plugins(), []string{"a"}) {
		t.Errorf("Expected fragments [a], got %v", c.Plugins())
	}
}

func TestAggregator_Generate_UpdatesExistingPlugins(t *testing.T) {
	log := &callLog{}
	existing := &updatingPlugin{mockPlugin: newMockPlugin("old", log)}
	existing.updated = &ResourceTemplate{Parameters: map[string]interface{}{"oldUpdated": true}}
	added := &updatingPlugin{mockPlugin: newMockPlugin("new", log)}

	reg := NewRegistry()
	reg.MustRegister(existing, added)

	c, err := NewTemplateAggregator(reg).Generate(context.Background(), &ContextWithManifest{Context: newTestContext(0)},
		newTestInputs(), []string{"old", "new"}, []string{"new"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	want := []string{"old:" + string(StageUpdateTemplate), "new:" + string(StageGenerateTemplate)}
	if !reflect.DeepEqual(log.list(), want) {
		t.Errorf("Expected calls %v, got %v", want, log.list())
	}
	if _, ok := c.Parameters["oldUpdated"]; !ok {
		t.Error("Expected updated fragment of old plugin")
	}
}

func TestAggregator_Update_PreservesOrder(t *testing.T) {
	log := &callLog{}
	reg := NewRegistry()
	var prev []TemplateFragment
	for _, id := range []string{"a", "b", "c"} {
		prev = append(prev, fragment(id, id+"Param"))
	}
	b := &updatingPlugin{mockPlugin: newMockPlugin("b", log)}
	b.updated = &ResourceTemplate{
		Provision:  &TemplateSection{Orchestration: "// b v2"},
		Parameters: map[string]interface{}{"bParam": "v2"},
	}
	d := newMockPlugin("d", log)
	reg.MustRegister(newMockPlugin("a", log), b, newMockPlugin("c", log), d)

	previous, err := MergeFragments(prev)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	c, err := NewTemplateAggregator(reg).Update(context.Background(), &ContextWithManifest{Context: newTestContext(0)},
		newTestInputs(), previous, []string{"b", "d"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !reflect.DeepEqual(c.Plugins(), []string{"a", "b", "c", "d"}) {
		t.Errorf("Expected fragments [a b c d], got %v", c.Plugins())
	}
	if got := c.Parameters["bParam"]; got != "v2" {
		t.Errorf("Expected bParam v2, got %v", got)
	}
	if got := c.Parameters["aParam"]; got != "a" {
		t.Errorf("Expected untouched aParam, got %v", got)
	}
	want := "// a\n\n// b v2\n\n// c\n\n// d\n"
	if got := c.ProvisionOrchestration(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
	if n := len(previous.Fragments); n != 3 {
		t.Errorf("Expected previous template untouched, got %d fragments", n)
	}
}

func TestAggregator_Generate_PluginErrorClassified(t *testing.T) {
	log := &callLog{}
	a := newMockPlugin("a", log)
	a.errs[StageGenerateTemplate] = fmt.Errorf("template engine crashed")

	reg := NewRegistry()
	reg.MustRegister(a)

	_, err := NewTemplateAggregator(reg).Generate(context.Background(), &ContextWithManifest{Context: newTestContext(0)},
		newTestInputs(), []string{"a"}, []string{"a"})
	if !errors.Is(err, ErrUnhandled) {
		t.Errorf("Expected UnhandledError, got: %v", err)
	}
}
