package engine

import (
	"context"
	"fmt"
	"math"
	"strconv"
)

// provisionStages run in this order. Every plugin finishes a stage before
// any plugin starts the next one.
var provisionStages = []Stage{StagePreProvision, StageProvision, StageConfigure}

var deployStages = []Stage{StagePreDeploy, StageDeploy}

var localStages = []Stage{StageLocalProvision, StageLocalConfigure}

// Provision runs the provision stages over the active plugins. Outputs are
// merged into env.State under each plugin id as soon as a stage returns,
// so later stages observe them.
func (o *Orchestrator) Provision(ctx context.Context, pctx *Context, inputs *Inputs, env *EnvInfo, tokens TokenProvider) error {
	return o.runEnvStages(ctx, "provision", provisionStages, pctx, inputs, env, tokens)
}

// Configure runs only the configure stage over the active plugins.
func (o *Orchestrator) Configure(ctx context.Context, pctx *Context, inputs *Inputs, env *EnvInfo, tokens TokenProvider) error {
	return o.runEnvStages(ctx, "configure", []Stage{StageConfigure}, pctx, inputs, env, tokens)
}

func (o *Orchestrator) runEnvStages(ctx context.Context, name string, stages []Stage, pctx *Context, inputs *Inputs, env *EnvInfo, tokens TokenProvider) (err error) {
	ctx, op := operationFor(ctx, name)
	defer func() {
		if err != nil {
			op.Fail(err)
		}
	}()

	plugins, err := o.activePlugins(pctx)
	if err != nil {
		return err
	}
	if env == nil {
		return InvalidInputError("environment is not loaded")
	}
	if env.State == nil {
		env.State = make(EnvState)
	}

	for _, stage := range stages {
		o.logger.Debug().Str("operation", name).Str("stage", string(stage)).Msg("running stage")
		for _, p := range plugins {
			if err := o.runEnvStage(ctx, stage, p, pctx, inputs, env, tokens); err != nil {
				return err
			}
		}
	}
	if err := op.Transition(OperationPluginsInvoked); err != nil {
		return err
	}
	return op.Transition(OperationDone)
}

func (o *Orchestrator) runEnvStage(ctx context.Context, stage Stage, p Plugin, pctx *Context, inputs *Inputs, env *EnvInfo, tokens TokenProvider) error {
	id := p.Descriptor().Name
	switch stage {
	case StagePreProvision:
		s, ok := p.(PreProvisioner)
		if !ok {
			return nil
		}
		return o.invoker.call(ctx, stage, id, func(ctx context.Context) error {
			return s.PreProvision(ctx, pctx, inputs, env, tokens)
		})
	case StageProvision:
		s, ok := p.(ResourceProvisioner)
		if !ok {
			return nil
		}
		return o.invoker.call(ctx, stage, id, func(ctx context.Context) error {
			res, err := s.ProvisionResource(ctx, pctx, inputs, env, tokens)
			env.State.Merge(id, res)
			return err
		})
	case StageConfigure:
		s, ok := p.(ResourceConfigurer)
		if !ok {
			return nil
		}
		return o.invoker.call(ctx, stage, id, func(ctx context.Context) error {
			res, err := s.ConfigureResource(ctx, pctx, inputs, env, tokens)
			env.State.Merge(id, res)
			return err
		})
	}
	return fmt.Errorf("stage %s is not an environment stage", stage)
}

// deployTarget is one plugin call of the deploy stages.
type deployTarget struct {
	plugin Plugin
	inputs *DeployInputs
}

// Deploy runs preDeploy then deploy. Each selected module is deployed by
// its hosting plugin. Without a module selection, active plugins that host
// no module but implement a deploy stage take part too.
func (o *Orchestrator) Deploy(ctx context.Context, pctx *Context, inputs *Inputs, env *EnvInfo, tokens TokenProvider) (err error) {
	ctx, op := operationFor(ctx, "deploy")
	defer func() {
		if err != nil {
			op.Fail(err)
		}
	}()

	targets, err := o.deployTargets(pctx, inputs)
	if err != nil {
		return err
	}
	if env == nil {
		return InvalidInputError("environment is not loaded")
	}

	for _, stage := range deployStages {
		for _, t := range targets {
			if err := o.runDeployStage(ctx, stage, t, pctx, env, tokens); err != nil {
				return err
			}
		}
	}
	if err := op.Transition(OperationPluginsInvoked); err != nil {
		return err
	}
	return op.Transition(OperationDone)
}

func (o *Orchestrator) deployTargets(pctx *Context, inputs *Inputs) ([]deployTarget, error) {
	plugins, err := o.activePlugins(pctx)
	if err != nil {
		return nil, err
	}
	modules := pctx.ProjectSettings.Solution.Modules

	selected := make(map[int]bool, len(inputs.Modules))
	for _, i := range inputs.Modules {
		if i < 0 || i >= len(modules) {
			return nil, InvalidInputError(fmt.Sprintf("module %d does not exist", i))
		}
		selected[i] = true
	}

	var targets []deployTarget
	for _, p := range plugins {
		id := p.Descriptor().Name
		hosts := false
		for i, m := range modules {
			if m.HostingPlugin != id {
				continue
			}
			hosts = true
			if len(selected) > 0 && !selected[i] {
				continue
			}
			targets = append(targets, deployTarget{
				plugin: p,
				inputs: &DeployInputs{
					Inputs:     *inputs,
					Dir:        m.Dir,
					BuildPath:  m.BuildPath,
					DeployType: m.DeployType,
				},
			})
		}
		if hosts || len(selected) > 0 {
			continue
		}
		_, pre := p.(PreDeployer)
		_, dep := p.(Deployer)
		if pre || dep {
			targets = append(targets, deployTarget{plugin: p, inputs: &DeployInputs{Inputs: *inputs}})
		}
	}
	return targets, nil
}

func (o *Orchestrator) runDeployStage(ctx context.Context, stage Stage, t deployTarget, pctx *Context, env *EnvInfo, tokens TokenProvider) error {
	id := t.plugin.Descriptor().Name
	switch stage {
	case StagePreDeploy:
		s, ok := t.plugin.(PreDeployer)
		if !ok {
			return nil
		}
		return o.invoker.call(ctx, stage, id, func(ctx context.Context) error {
			return s.PreDeploy(ctx, pctx, t.inputs, env, tokens)
		})
	case StageDeploy:
		s, ok := t.plugin.(Deployer)
		if !ok {
			return nil
		}
		return o.invoker.call(ctx, stage, id, func(ctx context.Context) error {
			return s.Deploy(ctx, pctx, t.inputs, env, tokens)
		})
	}
	return fmt.Errorf("stage %s is not a deploy stage", stage)
}

// DeployableModules returns the indices of modules whose hosting plugin
// implements the deploy stage.
func (o *Orchestrator) DeployableModules(pctx *Context) []int {
	var out []int
	for i, m := range pctx.ProjectSettings.Solution.Modules {
		if m.HostingPlugin == "" {
			continue
		}
		p, err := o.registry.Get(m.HostingPlugin)
		if err != nil {
			continue
		}
		if _, ok := p.(Deployer); ok {
			out = append(out, i)
		}
	}
	return out
}

// ProvisionLocal runs the local debug stages. Outputs go to
// pctx.LocalSettings and, when env is given, to env.State.
func (o *Orchestrator) ProvisionLocal(ctx context.Context, pctx *Context, inputs *Inputs, env *EnvInfo, tokens TokenProvider) (err error) {
	ctx, op := operationFor(ctx, "localDebug")
	defer func() {
		if err != nil {
			op.Fail(err)
		}
	}()

	plugins, err := o.activePlugins(pctx)
	if err != nil {
		return err
	}
	if pctx.LocalSettings == nil {
		pctx.LocalSettings = make(LocalSettings)
	}
	if env != nil && env.State == nil {
		env.State = make(EnvState)
	}

	for _, stage := range localStages {
		for _, p := range plugins {
			id := p.Descriptor().Name
			switch stage {
			case StageLocalProvision:
				s, ok := p.(LocalProvisioner)
				if !ok {
					continue
				}
				err = o.invoker.call(ctx, stage, id, func(ctx context.Context) error {
					res, err := s.ProvisionLocalResource(ctx, pctx, inputs, pctx.LocalSettings, tokens)
					mergeLocal(pctx.LocalSettings, id, res)
					if env != nil {
						env.State.Merge(id, res)
					}
					return err
				})
			case StageLocalConfigure:
				s, ok := p.(LocalConfigurer)
				if !ok {
					continue
				}
				err = o.invoker.call(ctx, stage, id, func(ctx context.Context) error {
					return s.ConfigureLocalResource(ctx, pctx, inputs, pctx.LocalSettings, tokens)
				})
			}
			if err != nil {
				return err
			}
		}
	}
	if err := op.Transition(OperationPluginsInvoked); err != nil {
		return err
	}
	return op.Transition(OperationDone)
}

func mergeLocal(local LocalSettings, plugin string, res CloudResource) {
	if len(res) == 0 {
		return
	}
	entry, ok := local[plugin]
	if !ok {
		entry = make(map[string]interface{}, len(res))
		local[plugin] = entry
	}
	for k, v := range res {
		entry[k] = v
	}
}

// Solution user task methods.
const (
	MethodAddResource       = "addResource"
	MethodAddFeature        = "addFeature"
	MethodGenerateTemplates = "generateTemplates"
	MethodUpdateTemplates   = "updateTemplates"
)

// ExecuteUserTask runs fn. The solution namespace dispatches to the
// engine's own operations; any other namespace names the plugin to run.
func (o *Orchestrator) ExecuteUserTask(ctx context.Context, pctx *Context, inputs *Inputs, fn Func, env *EnvInfo, tokens TokenProvider) (result interface{}, err error) {
	if fn.Namespace == SolutionNamespace {
		return o.executeSolutionTask(ctx, pctx, inputs, fn)
	}

	ctx, op := operationFor(ctx, string(StageUserTask))
	defer func() {
		if err != nil {
			op.Fail(err)
		}
	}()

	p, err := o.registry.Get(fn.Namespace)
	if err != nil {
		return nil, err
	}
	ex, ok := p.(UserTaskExecutor)
	if !ok {
		return nil, NewUserError(SourceCore, ErrCodeTaskNotSupported,
			fmt.Sprintf("plugin %s does not support user tasks", fn.Namespace))
	}
	if pctx == nil {
		return nil, InvalidInputError("project settings are not loaded")
	}
	err = o.invoker.call(ctx, StageUserTask, fn.Namespace, func(ctx context.Context) error {
		var callErr error
		result, callErr = ex.ExecuteUserTask(ctx, pctx, inputs, fn, pctx.LocalSettings, env, tokens)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if err := op.Transition(OperationPluginsInvoked); err != nil {
		return nil, err
	}
	return result, op.Transition(OperationDone)
}

func (o *Orchestrator) executeSolutionTask(ctx context.Context, pctx *Context, inputs *Inputs, fn Func) (interface{}, error) {
	in := inputs.Clone()
	if v, ok := fn.Params["resource"].(string); ok && v != "" {
		in.Resource = v
	}
	if v, ok := fn.Params["feature"].(string); ok && v != "" {
		in.Feature = v
	}
	if v, ok := fn.Params["module"]; ok {
		module, err := moduleParam(v)
		if err != nil {
			return nil, err
		}
		in.Module = module
	}
	switch fn.Method {
	case MethodAddResource:
		return nil, o.AddResource(ctx, pctx, in)
	case MethodAddFeature:
		return nil, o.AddFeature(ctx, pctx, in)
	case MethodGenerateTemplates:
		return o.GenerateTemplates(ctx, pctx, in)
	case MethodUpdateTemplates:
		plugins, err := stringListParam("plugins", fn.Params["plugins"])
		if err != nil {
			return nil, err
		}
		return o.UpdateTemplates(ctx, pctx, in, plugins)
	}
	return nil, NewUserError(SourceCore, ErrCodeTaskNotSupported,
		fmt.Sprintf("method %s is not supported in namespace %s", fn.Method, fn.Namespace))
}

// moduleParam reads a module index given as an answer string or a number.
// A nil result selects no module.
func moduleParam(v interface{}) (*int, error) {
	var answer string
	switch m := v.(type) {
	case nil:
		return nil, nil
	case string:
		answer = m
	case int:
		answer = strconv.Itoa(m)
	case float64:
		if m != math.Trunc(m) {
			return nil, InvalidInputError(fmt.Sprintf("module %v is not an index", m))
		}
		answer = strconv.Itoa(int(m))
	default:
		return nil, InvalidInputError(fmt.Sprintf("module must be an index, got %T", v))
	}
	if answer == "" || answer == ModuleNone {
		return nil, nil
	}
	i, ok := ModuleIndex(answer)
	if !ok {
		return nil, InvalidInputError(fmt.Sprintf("module %q is not an index", answer))
	}
	return &i, nil
}

// stringListParam accepts a single string or a list of strings.
func stringListParam(name string, v interface{}) ([]string, error) {
	switch l := v.(type) {
	case nil:
		return nil, nil
	case string:
		if l == "" {
			return nil, nil
		}
		return []string{l}, nil
	case []string:
		return l, nil
	case []interface{}:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, InvalidInputError(fmt.Sprintf("%s must hold strings, got %T", name, item))
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, InvalidInputError(fmt.Sprintf("%s must be a string or a list of strings, got %T", name, v))
}

func (o *Orchestrator) activePlugins(pctx *Context) ([]Plugin, error) {
	if pctx == nil || pctx.ProjectSettings == nil {
		return nil, InvalidInputError("project settings are not loaded")
	}
	return o.registry.Lookup(pctx.ProjectSettings.Solution.ActiveResourcePlugins)
}
