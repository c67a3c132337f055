package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thomyg/TeamsFx/pkg/config"
	"github.com/thomyg/TeamsFx/pkg/core"
	"github.com/thomyg/TeamsFx/pkg/engine"
	"github.com/thomyg/TeamsFx/pkg/plugins/builtin"
	"github.com/thomyg/TeamsFx/pkg/policy"
	"github.com/thomyg/TeamsFx/pkg/telemetry"
)

// app holds what a command needs to run one core operation.
type app struct {
	core    *core.FxCore
	tel     *telemetry.Telemetry
	cfg     *config.CLIConfig
	project string
	out     io.Writer
	logger  zerolog.Logger

	// policy is nil when policies are disabled in fx.yaml.
	policy      *policy.Engine
	policyPaths []string
}

// newApp loads fx.yaml, builds telemetry and the template policy, and wires
// them into a core over the process-wide plugin registry.
func newApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()
	path, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project path: %w", err)
	}

	cfg, err := config.LoadForProject(path, configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if env, _ := cmd.Flags().GetString("env"); env != "" {
		cfg.Telemetry.Environment = env
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	logger := tel.Logger.NewComponentLogger("cli").Zerolog()
	tel.Events.Subscribe(func(e telemetry.Event) {
		logger.Debug().
			Str("event", e.Type).
			Str("operation_id", e.OperationID).
			Str("plugin", e.Plugin).
			Msg(e.Message)
	}, nil)

	if err := registerPlugins(); err != nil {
		return nil, err
	}

	opts := []core.Option{
		core.WithConfig(cfg),
		core.WithTelemetry(tel),
		core.WithTokenProvider(newEnvTokenProvider()),
	}
	a := &app{
		tel:     tel,
		cfg:     cfg,
		project: path,
		out:     cmd.OutOrStdout(),
		logger:  logger,
	}
	if cfg.Policy.Enabled {
		for _, p := range cfg.Policy.Paths {
			a.policyPaths = append(a.policyPaths, config.Resolve(path, p))
		}
		a.policy, err = newPolicyEngine(ctx, cfg, a.policyPaths, tel, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, core.WithTemplatePolicy(a.policy))
	}
	a.core = core.New(opts...)
	return a, nil
}

// registerPlugins fills the process-wide registry on first use. The task
// directory is read from each project's fx.yaml when a task runs.
func registerPlugins() error {
	return builtin.RegisterDefault(builtin.Options{
		TaskDirFor: func(project string) string {
			cfg, err := config.LoadForProject(project, configPath)
			if err != nil {
				return ""
			}
			return cfg.Tasks
		},
		Logger: log.Logger.With().Str("component", "plugins").Logger(),
	})
}

func newPolicyEngine(ctx context.Context, cfg *config.CLIConfig, paths []string, tel *telemetry.Telemetry, logger zerolog.Logger) (*policy.Engine, error) {
	pe, err := policy.NewEngine(logger,
		policy.WithBuiltinPolicies(cfg.Policy.Builtin),
		policy.WithViolationHandler(func(v policy.PolicyViolation) {
			tel.Metrics.RecordPolicyViolation(v.Policy)
			_ = tel.Events.PublishPolicyViolation(v.Policy, v.Message)
		}),
	)
	if err != nil {
		return nil, err
	}
	if err := pe.LoadPolicies(ctx, paths); err != nil {
		return nil, err
	}
	if err := togglePolicies(pe, &cfg.Policy); err != nil {
		return nil, err
	}
	return pe, nil
}

// togglePolicies applies the enable and disable lists of fx.yaml.
func togglePolicies(pe *policy.Engine, cfg *config.PolicyConfig) error {
	for _, name := range cfg.Enable {
		if err := pe.EnablePolicy(name); err != nil {
			return engine.InvalidInputError("policy.enable: " + err.Error())
		}
	}
	for _, name := range cfg.Disable {
		if err := pe.DisablePolicy(name); err != nil {
			return engine.InvalidInputError("policy.disable: " + err.Error())
		}
	}
	return nil
}

// inputs returns CLI inputs for the project.
func (a *app) inputs() *engine.Inputs {
	return &engine.Inputs{Platform: engine.PlatformCLI, ProjectPath: a.project}
}

// context attaches telemetry to ctx.
func (a *app) context(ctx context.Context) context.Context {
	return a.tel.WithContext(ctx)
}

func (a *app) close(ctx context.Context) {
	if err := a.core.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to close core")
	}
	if err := a.tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
		a.logger.Debug().Err(err).Msg("failed to shut down telemetry")
	}
}

// withApp runs fn with an app that is closed afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())
	return fn(a.context(cmd.Context()), a)
}
