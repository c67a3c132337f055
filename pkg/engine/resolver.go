package engine

import (
	"context"
)

// DependencyResolver computes the transitive closure of plugin dependencies.
type DependencyResolver struct {
	registry *Registry
	invoker  invoker
}

// NewDependencyResolver creates a resolver over the registry.
func NewDependencyResolver(registry *Registry, hooks ...StageHook) *DependencyResolver {
	return &DependencyResolver{
		registry: registry,
		invoker:  invoker{hooks: hooks},
	}
}

// Resolve returns requested plus every plugin they transitively depend on,
// requested ids first and dependencies in discovery order.
//
// Each pass queries the dependencies of every member again, since a plugin
// may answer differently as the context grows. Resolution stops at the
// first pass that adds nothing. Every id must be registered, which bounds
// the closure by the registry size. On error nothing is returned and the
// caller's state is untouched.
func (r *DependencyResolver) Resolve(ctx context.Context, pctx *Context, inputs *Inputs, requested []string) ([]string, error) {
	set := newOrderedSet()
	for _, id := range requested {
		if _, err := r.registry.Get(id); err != nil {
			return nil, err
		}
		set.Add(id)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		before := set.Len()
		for _, id := range set.Items() {
			deps, err := r.dependencies(ctx, pctx, inputs, id)
			if err != nil {
				return nil, err
			}
			for _, dep := range deps {
				if _, err := r.registry.Get(dep); err != nil {
					return nil, err
				}
				set.Add(dep)
			}
		}
		if set.Len() == before {
			return set.Items(), nil
		}
	}
}

func (r *DependencyResolver) dependencies(ctx context.Context, pctx *Context, inputs *Inputs, id string) ([]string, error) {
	p, err := r.registry.Get(id)
	if err != nil {
		return nil, err
	}
	dp, ok := p.(DependencyProvider)
	if !ok {
		return nil, nil
	}
	var deps []string
	err = r.invoker.call(ctx, StageDependencies, id, func(ctx context.Context) error {
		var callErr error
		deps, callErr = dp.PluginDependencies(ctx, pctx, inputs)
		return callErr
	})
	return deps, err
}
