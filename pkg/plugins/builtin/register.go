package builtin

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

// Options configures the built-in plugins.
type Options struct {
	// TaskDir holds the Starlark task scripts, relative to the project.
	TaskDir string

	// TaskDirFor, when set, returns the task directory of a project and
	// overrides TaskDir. An empty result falls back to TaskDir.
	TaskDirFor func(projectPath string) string

	// ScriptTimeout bounds a single task script run.
	ScriptTimeout time.Duration

	Logger zerolog.Logger
}

// All returns a new instance of every built-in plugin.
func All(opts Options) []engine.Plugin {
	return []engine.Plugin{
		NewFrontendHosting(),
		NewWebApp(),
		NewFunction(),
		NewSQL(),
		NewAPIM(),
		NewKeyVault(),
		NewSimpleAuth(),
		NewSPFx(),
		NewLocalDebug(),
		NewBot(),
		NewAAD(),
		NewTabScaffold(),
		NewScript(opts),
	}
}

// RegisterAll registers the built-in plugins in reg.
func RegisterAll(reg *engine.Registry, opts Options) error {
	for _, p := range All(opts) {
		if err := reg.Register(p); err != nil {
			return err
		}
	}
	return nil
}

var (
	defaultOnce sync.Once
	defaultErr  error
)

// RegisterDefault registers the built-in plugins in engine.DefaultRegistry.
// Only the first call registers; later calls return its result.
func RegisterDefault(opts Options) error {
	defaultOnce.Do(func() {
		defaultErr = RegisterAll(engine.DefaultRegistry(), opts)
	})
	return defaultErr
}
