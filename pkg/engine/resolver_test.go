package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"pgregory.net/rapid"
)

func TestResolve_NoDependencies(t *testing.T) {
	log := &callLog{}
	reg := NewRegistry()
	reg.MustRegister(newMockPlugin("storage", log))

	got, err := NewDependencyResolver(reg).Resolve(context.Background(), newTestContext(1), newTestInputs(), []string{"storage"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"storage"}) {
		t.Errorf("Expected [storage], got %v", got)
	}
}

func TestResolve_Transitive(t *testing.T) {
	log := &callLog{}
	a := newMockPlugin("a", log)
	b := newMockPlugin("b", log)
	c := newMockPlugin("c", log)
	a.deps = []string{"b"}
	b.deps = []string{"c"}

	reg := NewRegistry()
	reg.MustRegister(a, b, c)

	got, err := NewDependencyResolver(reg).Resolve(context.Background(), newTestContext(0), newTestInputs(), []string{"a"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Expected [a b c], got %v", got)
	}
}

func TestResolve_SelfAndCyclicDependencies(t *testing.T) {
	log := &callLog{}
	a := newMockPlugin("a", log)
	b := newMockPlugin("b", log)
	a.deps = []string{"a", "b"}
	b.deps = []string{"a"}

	reg := NewRegistry()
	reg.MustRegister(a, b)

	got, err := NewDependencyResolver(reg).Resolve(context.Background(), newTestContext(0), newTestInputs(), []string{"a"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Expected [a b], got %v", got)
	}
}

func TestResolve_RecomputesEveryPass(t *testing.T) {
	log := &callLog{}
	a := newMockPlugin("a", log)
	b := newMockPlugin("b", log)
	a.deps = []string{"b"}

	reg := NewRegistry()
	reg.MustRegister(a, b)

	if _, err := NewDependencyResolver(reg).Resolve(context.Background(), newTestContext(0), newTestInputs(), []string{"a"}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	// Pass one discovers b, pass two adds nothing and ends resolution.
	if n := log.count("a:" + string(StageDependencies)); n != 2 {
		t.Errorf("Expected a to be queried twice, got %d", n)
	}
	if n := log.count("b:" + string(StageDependencies)); n != 1 {
		t.Errorf("Expected b to be queried once, got %d", n)
	}
}

func TestResolve_PluginWithoutDependencyQuery(t *testing.T) {
	log := &callLog{}
	a := newMockPlugin("a", log)
	a.deps = []string{"plain"}

	reg := NewRegistry()
	reg.MustRegister(a, &basePlugin{name: "plain"})

	got, err := NewDependencyResolver(reg).Resolve(context.Background(), newTestContext(0), newTestInputs(), []string{"a"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a", "plain"}) {
		t.Errorf("Expected [a plain], got %v", got)
	}
}

func TestResolve_QueryFailureAborts(t *testing.T) {
	log := &callLog{}
	a := newMockPlugin("a", log)
	b := newMockPlugin("b", log)
	a.deps = []string{"b"}
	b.errs[StageDependencies] = errors.New("network down")

	reg := NewRegistry()
	reg.MustRegister(a, b)

	got, err := NewDependencyResolver(reg).Resolve(context.Background(), newTestContext(0), newTestInputs(), []string{"a"})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if got != nil {
		t.Errorf("Expected no partial closure, got %v", got)
	}
	if !errors.Is(err, ErrUnhandled) {
		t.Errorf("Expected UnhandledError, got: %v", err)
	}
	var fe *FxError
	if !errors.As(err, &fe) || fe.Source != "b" {
		t.Errorf("Expected error sourced from b, got: %v", err)
	}
}

func TestResolve_UnknownDependency(t *testing.T) {
	log := &callLog{}
	a := newMockPlugin("a", log)
	a.deps = []string{"ghost"}

	reg := NewRegistry()
	reg.MustRegister(a)

	_, err := NewDependencyResolver(reg).Resolve(context.Background(), newTestContext(0), newTestInputs(), []string{"a"})
	if !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("Expected PluginNotFound, got: %v", err)
	}
}

func TestResolve_IdempotentProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(rt, "plugins")
		log := &callLog{}
		reg := NewRegistry()
		plugins := make([]*mockPlugin, n)
		for i := range plugins {
			plugins[i] = newMockPlugin(fmt.Sprintf("p%d", i), log)
			for _, d := range rapid.SliceOfN(rapid.IntRange(0, n-1), 0, 3).Draw(rt, fmt.Sprintf("deps%d", i)) {
				plugins[i].deps = append(plugins[i].deps, fmt.Sprintf("p%d", d))
			}
			reg.MustRegister(plugins[i])
		}
		seed := fmt.Sprintf("p%d", rapid.IntRange(0, n-1).Draw(rt, "seed"))

		r := NewDependencyResolver(reg)
		closure, err := r.Resolve(context.Background(), newTestContext(0), newTestInputs(), []string{seed})
		if err != nil {
			rt.Fatalf("resolve: %v", err)
		}
		again, err := r.Resolve(context.Background(), newTestContext(0), newTestInputs(), closure)
		if err != nil {
			rt.Fatalf("resolve closure: %v", err)
		}
		if !reflect.DeepEqual(closure, again) {
			rt.Fatalf("closure %v is not a fixed point, got %v", closure, again)
		}

		members := newOrderedSet(closure...)
		for _, p := range plugins {
			if !members.Has(p.name) {
				continue
			}
			for _, d := range p.deps {
				if !members.Has(d) {
					rt.Fatalf("closure %v misses dependency %s of %s", closure, d, p.name)
				}
			}
		}
	})
}
