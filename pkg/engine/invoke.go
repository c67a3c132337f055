package engine

import (
	"context"
	"fmt"
)

// invoker runs plugin calls through the stage hooks and classifies their errors.
type invoker struct {
	hooks []StageHook
}

// call executes fn as stage of plugin. Panics are recovered into an
// UnhandledError so a misbehaving plugin cannot skip state persistence.
func (iv invoker) call(ctx context.Context, stage Stage, plugin string, fn func(context.Context) error) (err error) {
	for _, h := range iv.hooks {
		ctx = h.BeforeStage(ctx, stage, plugin)
	}
	defer func() {
		if r := recover(); r != nil {
			err = UnhandledError(plugin, fmt.Errorf("panic in %s: %v", stage, r))
		}
		for i := len(iv.hooks) - 1; i >= 0; i-- {
			iv.hooks[i].AfterStage(ctx, stage, plugin, err)
		}
	}()
	return ClassifyPluginError(plugin, fn(ctx))
}
