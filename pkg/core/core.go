package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/thomyg/TeamsFx/pkg/config"
	"github.com/thomyg/TeamsFx/pkg/engine"
	"github.com/thomyg/TeamsFx/pkg/environment"
	"github.com/thomyg/TeamsFx/pkg/project"
	"github.com/thomyg/TeamsFx/pkg/stores"
	"github.com/thomyg/TeamsFx/pkg/telemetry"
)

// Operation names recorded in telemetry and history.
const (
	MethodCreateProject   = "createProject"
	MethodAddResource     = "addResource"
	MethodAddFeature      = "addFeature"
	MethodProvision       = "provision"
	MethodConfigure       = "configure"
	MethodDeploy          = "deploy"
	MethodLocalDebug      = "localDebug"
	MethodExecuteUserTask = "executeUserTask"
	MethodGetQuestions    = "getQuestions"
	MethodCreateEnv       = "createEnv"
	MethodScaffold        = "scaffold"
)

// DefaultEnvName is the environment created with a new project.
const DefaultEnvName = "dev"

// FxCore runs fx operations against projects on disk.
type FxCore struct {
	registry     *engine.Registry
	orchestrator *engine.Orchestrator
	templates    *project.FileTemplateStore
	policy       engine.TemplatePolicy
	validator    *config.Validator
	cfg          *config.CLIConfig
	tel          *telemetry.Telemetry
	tokens       engine.TokenProvider
	logger       zerolog.Logger

	mu      sync.Mutex
	history map[string]*stores.SQLiteStore
}

// Option configures an FxCore.
type Option func(*FxCore)

// WithRegistry sets the plugin registry. Defaults to engine.DefaultRegistry.
func WithRegistry(r *engine.Registry) Option {
	return func(c *FxCore) { c.registry = r }
}

// WithConfig sets the CLI configuration. Defaults to config.Default.
func WithConfig(cfg *config.CLIConfig) Option {
	return func(c *FxCore) { c.cfg = cfg }
}

// WithTelemetry reports operations and plugin calls to tel.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(c *FxCore) { c.tel = tel }
}

// WithTemplatePolicy vets templates of add operations and fx validate.
func WithTemplatePolicy(p engine.TemplatePolicy) Option {
	return func(c *FxCore) { c.policy = p }
}

// WithTokenProvider sets the credentials passed to provision and deploy.
func WithTokenProvider(t engine.TokenProvider) Option {
	return func(c *FxCore) { c.tokens = t }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *FxCore) { c.logger = logger }
}

// New creates an FxCore.
func New(opts ...Option) *FxCore {
	c := &FxCore{
		logger:  zerolog.Nop(),
		history: make(map[string]*stores.SQLiteStore),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = engine.DefaultRegistry()
	}
	if c.cfg == nil {
		c.cfg = config.Default()
	}
	if c.tel != nil {
		c.logger = c.tel.Logger.NewComponentLogger("core").Zerolog()
	}
	c.validator = config.NewValidator()
	c.templates = project.NewFileTemplateStore(c.logger)

	hooks := []engine.StageHook{NewHistoryHook(c.logger)}
	if c.tel != nil {
		hooks = append(hooks, telemetry.NewStageHook(c.tel))
	}
	orchOpts := []engine.Option{
		engine.WithTemplateStore(c.templates),
		engine.WithStageHooks(hooks...),
		engine.WithLogger(c.logger),
	}
	if c.policy != nil {
		orchOpts = append(orchOpts, engine.WithTemplatePolicy(c.policy))
	}
	c.orchestrator = engine.NewOrchestrator(c.registry, project.NewFileManifestProvider(), orchOpts...)
	return c
}

// Registry returns the plugin registry.
func (c *FxCore) Registry() *engine.Registry {
	return c.registry
}

// Close releases the history databases opened by the core.
func (c *FxCore) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for path, s := range c.history {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history %s: %w", path, err))
		}
		delete(c.history, path)
	}
	return errors.Join(errs...)
}

func (c *FxCore) middlewares() []engine.Middleware {
	return []engine.Middleware{
		Instrument(),
		RecordHistory(c.historyFor, c.logger),
		ProjectSettingsLoader(c.validator, c.logger),
		EnvInfoLoader(func(inv *engine.Invocation) (EnvInfoSource, error) { return c.envManager(inv) }),
		ProjectSettingsWriter(c.logger),
		EnvInfoWriter(func(inv *engine.Invocation) (EnvStateWriter, error) { return c.envManager(inv) }, c.logger),
		Recover(),
	}
}

// run executes h for inv through the middleware chain.
func (c *FxCore) run(ctx context.Context, inv *engine.Invocation, h engine.Handler) error {
	if err := c.validator.ValidateInputs(inv.Inputs); err != nil {
		return err
	}
	if c.tel != nil {
		ctx = c.tel.WithContext(ctx)
	}
	return engine.Chain(h, c.middlewares()...)(ctx, inv)
}

// envManager returns the environment manager of the invocation's project.
// Secrets are encrypted with a key derived from the project id.
func (c *FxCore) envManager(inv *engine.Invocation) (*environment.Manager, error) {
	var crypto environment.CryptoProvider
	if inv.Context != nil && inv.Context.ProjectSettings != nil && inv.Context.ProjectSettings.ProjectID != "" {
		lc, err := environment.NewLocalCrypto(inv.Context.ProjectSettings.ProjectID)
		if err != nil {
			return nil, err
		}
		crypto = lc
	}
	return environment.NewManager(inv.Inputs.ProjectPath, crypto, c.logger), nil
}

// historyFor opens the history database of the invocation's project once.
func (c *FxCore) historyFor(inv *engine.Invocation) (stores.HistoryStore, error) {
	if !c.cfg.History.Enabled || inv.Inputs == nil || inv.Inputs.ProjectPath == "" {
		return nil, nil
	}
	if !project.IsProject(inv.Inputs.ProjectPath) {
		return nil, nil
	}
	s, err := c.historyStore(inv.Inputs.ProjectPath)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c *FxCore) historyStore(projectPath string) (*stores.SQLiteStore, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := config.Resolve(projectPath, c.cfg.History.Path)
	if s, ok := c.history[path]; ok {
		if err := s.HealthCheck(context.Background()); err == nil {
			return s, nil
		}
		c.logger.Debug().Str("path", path).Msg("reopening history database")
		_ = s.Close()
		delete(c.history, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	s, err := stores.Open(context.Background(), stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	c.history[path] = s
	return s, nil
}

// CreateProject initializes a project at inputs.ProjectPath with the
// default environment.
func (c *FxCore) CreateProject(ctx context.Context, inputs *engine.Inputs, appName, language string) (*engine.ProjectSettings, error) {
	settings, err := project.NewSettings(appName, language)
	if err != nil {
		return nil, err
	}
	if err := c.validator.ValidateProjectSettings(ctx, settings); err != nil {
		return nil, err
	}

	// Init writes the settings; an existing project must never be overwritten.
	in := inputs.Clone()
	in.IgnoreEnvInfo = true
	in.IgnoreConfigPersist = true
	inv := &engine.Invocation{
		Method:  MethodCreateProject,
		Inputs:  in,
		Context: &engine.Context{ProjectSettings: settings, Logger: c.logger},
	}
	err = c.run(ctx, inv, func(ctx context.Context, inv *engine.Invocation) error {
		if err := project.Init(inv.Inputs.ProjectPath, inv.Context.ProjectSettings); err != nil {
			return err
		}
		mgr, err := c.envManager(inv)
		if err != nil {
			return err
		}
		for _, env := range []string{DefaultEnvName, engine.LocalEnvName} {
			if err := mgr.CreateEnv(env, nil); err != nil {
				return err
			}
		}
		return project.NewFileManifestProvider().SaveManifest(ctx, inv.Context, inv.Inputs, project.DefaultManifest(inv.Context.ProjectSettings))
	})
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// AddResource adds inputs.Resource and its dependencies to the project.
func (c *FxCore) AddResource(ctx context.Context, inputs *engine.Inputs) (*engine.ProjectSettings, error) {
	return c.add(ctx, MethodAddResource, inputs, c.orchestrator.AddResource)
}

// AddFeature adds inputs.Feature and its dependencies to the project.
func (c *FxCore) AddFeature(ctx context.Context, inputs *engine.Inputs) (*engine.ProjectSettings, error) {
	return c.add(ctx, MethodAddFeature, inputs, c.orchestrator.AddFeature)
}

func (c *FxCore) add(ctx context.Context, method string, inputs *engine.Inputs,
	fn func(context.Context, *engine.Context, *engine.Inputs) error) (*engine.ProjectSettings, error) {
	in := inputs.Clone()
	in.IgnoreEnvInfo = true
	inv := &engine.Invocation{Method: method, Inputs: in}
	err := c.run(ctx, inv, func(ctx context.Context, inv *engine.Invocation) error {
		return fn(ctx, inv.Context, inv.Inputs)
	})
	if err != nil {
		return nil, err
	}
	return inv.Context.ProjectSettings, nil
}

// Provision provisions and configures the active plugins in inputs.EnvName.
func (c *FxCore) Provision(ctx context.Context, inputs *engine.Inputs) error {
	return c.envOperation(ctx, MethodProvision, inputs, c.orchestrator.Provision)
}

// Configure reruns only the configure stage of the active plugins in
// inputs.EnvName.
func (c *FxCore) Configure(ctx context.Context, inputs *engine.Inputs) error {
	return c.envOperation(ctx, MethodConfigure, inputs, c.orchestrator.Configure)
}

// Deploy deploys the selected modules to inputs.EnvName.
func (c *FxCore) Deploy(ctx context.Context, inputs *engine.Inputs) error {
	return c.envOperation(ctx, MethodDeploy, inputs, c.orchestrator.Deploy)
}

type envStages func(context.Context, *engine.Context, *engine.Inputs, *engine.EnvInfo, engine.TokenProvider) error

func (c *FxCore) envOperation(ctx context.Context, method string, inputs *engine.Inputs, fn envStages) error {
	if inputs.EnvName == "" {
		return envNotSpecified()
	}
	inv := &engine.Invocation{Method: method, Inputs: inputs.Clone()}
	return c.run(ctx, inv, func(ctx context.Context, inv *engine.Invocation) error {
		if inv.EnvInfo == nil {
			return envNotSpecified()
		}
		return fn(ctx, inv.Context, inv.Inputs, inv.EnvInfo, c.tokens)
	})
}

// LocalDebug prepares local debugging in the local environment, creating
// it on first use.
func (c *FxCore) LocalDebug(ctx context.Context, inputs *engine.Inputs) error {
	in := inputs.Clone()
	in.EnvName = engine.LocalEnvName
	if err := c.ensureEnv(in, engine.LocalEnvName); err != nil {
		return err
	}
	return c.envOperation(ctx, MethodLocalDebug, in, c.orchestrator.ProvisionLocal)
}

func (c *FxCore) ensureEnv(inputs *engine.Inputs, env string) error {
	mgr := environment.NewManager(inputs.ProjectPath, nil, c.logger)
	envs, err := mgr.ListEnvs()
	if err != nil {
		return err
	}
	if slices.Contains(envs, env) {
		return nil
	}
	return mgr.CreateEnv(env, nil)
}

// ExecuteUserTask runs fn. Tasks run in inputs.EnvName when it is set.
func (c *FxCore) ExecuteUserTask(ctx context.Context, inputs *engine.Inputs, fn engine.Func) (interface{}, error) {
	inv := &engine.Invocation{Method: MethodExecuteUserTask, Inputs: inputs.Clone()}
	err := c.run(ctx, inv, func(ctx context.Context, inv *engine.Invocation) error {
		res, err := c.orchestrator.ExecuteUserTask(ctx, inv.Context, inv.Inputs, fn, inv.EnvInfo, c.tokens)
		inv.Result = res
		return err
	})
	return inv.Result, err
}

// QuestionsForAddResource returns the questions asked before addResource.
// Nothing is persisted.
func (c *FxCore) QuestionsForAddResource(ctx context.Context, inputs *engine.Inputs) (*engine.QTreeNode, error) {
	in := inputs.Clone()
	in.IgnoreEnvInfo = true
	in.IgnoreConfigPersist = true
	inv := &engine.Invocation{Method: MethodGetQuestions, Inputs: in}
	err := c.run(ctx, inv, func(ctx context.Context, inv *engine.Invocation) error {
		node, err := c.orchestrator.QuestionsForAddResource(ctx, inv.Context, inv.Inputs)
		inv.Result = node
		return err
	})
	if err != nil {
		return nil, err
	}
	node, _ := inv.Result.(*engine.QTreeNode)
	return node, nil
}

// Scaffold creates module code with a scaffold plugin. A nil
// inputs.Module appends a new module.
func (c *FxCore) Scaffold(ctx context.Context, inputs *engine.ScaffoldInputs, plugin string) error {
	in := inputs.Inputs.Clone()
	in.IgnoreEnvInfo = true
	inv := &engine.Invocation{Method: MethodScaffold, Inputs: in}
	return c.run(ctx, inv, func(ctx context.Context, inv *engine.Invocation) error {
		si := &engine.ScaffoldInputs{Inputs: *inv.Inputs, Template: inputs.Template, Language: inputs.Language}
		return c.orchestrator.Scaffold(ctx, inv.Context, si, plugin)
	})
}

// ScaffoldTemplates lists the templates of every scaffold plugin by plugin id.
func (c *FxCore) ScaffoldTemplates(ctx context.Context, inputs *engine.Inputs) (map[string][]engine.ScaffoldTemplate, error) {
	in := inputs.Clone()
	in.IgnoreEnvInfo = true
	in.IgnoreConfigPersist = true
	inv := &engine.Invocation{Method: MethodGetQuestions, Inputs: in}
	err := c.run(ctx, inv, func(ctx context.Context, inv *engine.Invocation) error {
		templates, err := c.orchestrator.ScaffoldTemplates(ctx, inv.Context, inv.Inputs)
		inv.Result = templates
		return err
	})
	if err != nil {
		return nil, err
	}
	templates, _ := inv.Result.(map[string][]engine.ScaffoldTemplate)
	return templates, nil
}

// DeployableModules returns the module indices that can be deployed.
func (c *FxCore) DeployableModules(projectPath string) ([]int, error) {
	settings, err := project.LoadSettings(projectPath)
	if err != nil {
		return nil, err
	}
	return c.orchestrator.DeployableModules(&engine.Context{ProjectSettings: settings, Logger: c.logger}), nil
}

// CreateEnv adds an environment to the project.
func (c *FxCore) CreateEnv(ctx context.Context, inputs *engine.Inputs, env string, cfg map[string]interface{}) error {
	in := inputs.Clone()
	in.IgnoreEnvInfo = true
	in.IgnoreConfigPersist = true
	inv := &engine.Invocation{Method: MethodCreateEnv, Inputs: in}
	return c.run(ctx, inv, func(ctx context.Context, inv *engine.Invocation) error {
		if cfg != nil {
			if err := c.validator.ValidateEnvConfig(ctx, cfg); err != nil {
				return err
			}
		}
		mgr, err := c.envManager(inv)
		if err != nil {
			return err
		}
		envs, err := mgr.ListEnvs()
		if err != nil {
			return err
		}
		if slices.Contains(envs, env) {
			return engine.InvalidInputError(fmt.Sprintf("environment %s already exists", env))
		}
		return mgr.CreateEnv(env, cfg)
	})
}

// ListEnvs returns the environments of a project.
func (c *FxCore) ListEnvs(projectPath string) ([]string, error) {
	return environment.NewManager(projectPath, nil, c.logger).ListEnvs()
}

// EnvState returns the persisted state of an environment with secret
// placeholders left in place.
func (c *FxCore) EnvState(projectPath, env string) (map[string]interface{}, error) {
	return environment.NewManager(projectPath, nil, c.logger).ReadEnvState(env)
}

// Validate checks the project settings and, when a policy is configured,
// the saved composite template.
func (c *FxCore) Validate(ctx context.Context, projectPath string) error {
	settings, err := project.LoadSettings(projectPath)
	if err != nil {
		return err
	}
	if err := c.validator.ValidateProjectSettings(ctx, settings); err != nil {
		return err
	}
	if c.policy == nil {
		return nil
	}
	tpl, err := c.templates.LoadTemplate(ctx, projectPath)
	if err != nil || tpl == nil {
		return err
	}
	return c.policy.EvaluateTemplate(ctx, settings, tpl)
}

// History lists recorded operations of a project, newest first.
func (c *FxCore) History(ctx context.Context, projectPath string, filter stores.OperationFilter) ([]*stores.OperationRecord, error) {
	s, err := c.openHistory(projectPath)
	if err != nil {
		return nil, err
	}
	return s.ListOperations(ctx, filter)
}

// Stages lists the plugin calls of a recorded operation.
func (c *FxCore) Stages(ctx context.Context, projectPath, operationID string) ([]*stores.StageRecord, error) {
	s, err := c.openHistory(projectPath)
	if err != nil {
		return nil, err
	}
	return s.ListStages(ctx, operationID)
}

// PruneHistory deletes operations recorded before cutoff.
func (c *FxCore) PruneHistory(ctx context.Context, projectPath string, cutoff time.Time) (int64, error) {
	s, err := c.openHistory(projectPath)
	if err != nil {
		return 0, err
	}
	return s.Prune(ctx, cutoff)
}

func (c *FxCore) openHistory(projectPath string) (*stores.SQLiteStore, error) {
	if !c.cfg.History.Enabled {
		return nil, engine.NewUserError(engine.SourceCore, engine.ErrCodeInvalidInput, "operation history is disabled").
			WithHint("set history.enabled in fx.yaml")
	}
	if !project.IsProject(projectPath) {
		return nil, engine.NewUserError(engine.SourceCore, engine.ErrCodeNotSupportedProjectType,
			fmt.Sprintf("%s is not an fx project", projectPath))
	}
	return c.historyStore(projectPath)
}

func envNotSpecified() *engine.FxError {
	return engine.NewUserError(engine.SourceCore, engine.ErrCodeEnvNotSpecified, "environment is not specified").
		WithHint("pass --env")
}
