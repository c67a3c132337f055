package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/thomyg/TeamsFx/pkg/config"
	"github.com/thomyg/TeamsFx/pkg/engine"
)

// ErrCodeScriptFailed is returned when a task script fails.
const ErrCodeScriptFailed = "ScriptFailed"

var taskName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

type scriptTasks struct {
	desc      engine.Descriptor
	dir       string
	dirFor    func(projectPath string) string
	evaluator *config.StarlarkEvaluator
}

var _ engine.UserTaskExecutor = (*scriptTasks)(nil)

// NewScript returns the plugin running user tasks written in Starlark.
// Method m runs <project>/<task dir>/m.star. The script sees the globals
// method, params, app, env, state and local; a global named outputs, when
// it is a dict, is merged into the plugin's environment state.
func NewScript(opts Options) engine.Plugin {
	dir := opts.TaskDir
	if dir == "" {
		dir = filepath.Join(".fx", "tasks")
	}
	return &scriptTasks{
		desc: engine.Descriptor{
			Name:        Script,
			DisplayName: "Task Scripts",
			Description: "Runs Starlark user tasks from the project",
			Kind:        engine.KindFeature,
		},
		dir:       dir,
		dirFor:    opts.TaskDirFor,
		evaluator: config.NewStarlarkEvaluator(opts.ScriptTimeout, opts.Logger),
	}
}

func (s *scriptTasks) Descriptor() engine.Descriptor {
	return s.desc
}

func (s *scriptTasks) taskDir(projectPath string) string {
	if s.dirFor != nil {
		if dir := s.dirFor(projectPath); dir != "" {
			return dir
		}
	}
	return s.dir
}

// ExecuteUserTask implements engine.UserTaskExecutor.
func (s *scriptTasks) ExecuteUserTask(ctx context.Context, pctx *engine.Context, inputs *engine.Inputs, fn engine.Func, local engine.LocalSettings, env *engine.EnvInfo, _ engine.TokenProvider) (interface{}, error) {
	if !taskName.MatchString(fn.Method) {
		return nil, engine.InvalidInputError(fmt.Sprintf("invalid task name %q", fn.Method))
	}
	path := filepath.Join(config.Resolve(inputs.ProjectPath, s.taskDir(inputs.ProjectPath)), fn.Method+".star")
	script, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, engine.NewUserError(Script, engine.ErrCodeTaskNotSupported,
				fmt.Sprintf("task %s is not defined", fn.Method)).
				WithHint(fmt.Sprintf("create %s", path))
		}
		return nil, engine.NewSystemError(Script, engine.ErrCodeReadFile,
			fmt.Sprintf("failed to read %s", path)).WithCause(err)
	}

	input := map[string]interface{}{
		"method": fn.Method,
		"params": fn.Params,
		"local":  map[string]map[string]interface{}(local),
	}
	if pctx.ProjectSettings != nil {
		input["app"] = pctx.ProjectSettings.AppName
	}
	if env != nil {
		input["env"] = env.EnvName
		input["state"] = map[string]map[string]interface{}(env.State)
	}

	res, err := s.evaluator.Evaluate(ctx, path, string(script), input)
	if err != nil {
		return nil, engine.NewUserError(Script, ErrCodeScriptFailed,
			fmt.Sprintf("task %s failed", fn.Method)).WithCause(err)
	}
	if outputs, ok := res.Output["outputs"].(map[string]interface{}); ok && env != nil {
		env.State.Merge(Script, outputs)
	}
	return res, nil
}
