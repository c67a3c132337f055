package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/thomyg/TeamsFx/pkg/config"
	"github.com/thomyg/TeamsFx/pkg/engine"
	"github.com/thomyg/TeamsFx/pkg/project"
	"github.com/thomyg/TeamsFx/pkg/telemetry"
)

// Recover turns a panic below it into an UnhandledError.
func Recover() engine.Middleware {
	return func(next engine.Handler) engine.Handler {
		return func(ctx context.Context, inv *engine.Invocation) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = engine.UnhandledError(engine.SourceCore, fmt.Errorf("panic in %s: %v", inv.Method, r))
				}
			}()
			return next(ctx, inv)
		}
	}
}

// Instrument starts an engine operation for the invocation and reports it
// through the telemetry found in ctx: span, metrics, events and logs.
func Instrument() engine.Middleware {
	return func(next engine.Handler) engine.Handler {
		return func(ctx context.Context, inv *engine.Invocation) (err error) {
			op, ok := engine.OperationFromContext(ctx)
			if !ok || op.Current() != engine.OperationIdle {
				op = engine.NewOperation(inv.Method)
			}
			scope := telemetry.StartOperation(ctx, inv.Method, op.ID)
			defer func() { scope.End(err) }()
			if inv.Inputs != nil && inv.Inputs.EnvName != "" {
				scope.WithEnv(inv.Inputs.EnvName)
			}

			return next(engine.WithOperation(scope.Ctx, op), inv)
		}
	}
}

// ProjectSettingsLoader fills inv.Context from the project on disk when the
// caller did not provide settings. Loaded settings are validated.
func ProjectSettingsLoader(validator *config.Validator, logger zerolog.Logger) engine.Middleware {
	return func(next engine.Handler) engine.Handler {
		return func(ctx context.Context, inv *engine.Invocation) error {
			if inv.Context == nil {
				inv.Context = &engine.Context{Logger: logger}
			}
			in := inv.Inputs
			if in == nil || in.ProjectPath == "" || in.Platform.IsStatic() {
				return next(ctx, inv)
			}

			if inv.Context.ProjectSettings == nil {
				settings, err := project.LoadSettings(in.ProjectPath)
				if err != nil {
					return err
				}
				if validator != nil {
					if err := validator.ValidateProjectSettings(ctx, settings); err != nil {
						return err
					}
				}
				inv.Context.ProjectSettings = settings
			}
			if inv.Context.LocalSettings == nil {
				local, err := project.LoadLocalSettings(in.ProjectPath)
				if err != nil {
					return err
				}
				inv.Context.LocalSettings = local
			}
			return next(ctx, inv)
		}
	}
}

// EnvInfoSource loads environment info.
type EnvInfoSource interface {
	LoadEnvInfo(env string) (*engine.EnvInfo, error)
}

// EnvSourceFunc returns the source used for an invocation.
type EnvSourceFunc func(inv *engine.Invocation) (EnvInfoSource, error)

// EnvInfoLoader fills inv.EnvInfo for invocations naming an environment.
func EnvInfoLoader(sourceFor EnvSourceFunc) engine.Middleware {
	return func(next engine.Handler) engine.Handler {
		return func(ctx context.Context, inv *engine.Invocation) error {
			in := inv.Inputs
			if inv.EnvInfo != nil || in == nil || in.IgnoreEnvInfo || in.EnvName == "" || in.ProjectPath == "" {
				return next(ctx, inv)
			}

			src, err := sourceFor(inv)
			if err != nil {
				return err
			}
			env, err := src.LoadEnvInfo(in.EnvName)
			if err != nil {
				return err
			}
			if env.State == nil {
				env.State = engine.EnvState{}
			}
			inv.EnvInfo = env
			return next(ctx, inv)
		}
	}
}

// ProjectSettingsWriter persists project and local settings after the
// wrapped handler returns, with the same error precedence as EnvInfoWriter.
func ProjectSettingsWriter(logger zerolog.Logger) engine.Middleware {
	return func(next engine.Handler) engine.Handler {
		return func(ctx context.Context, inv *engine.Invocation) error {
			opErr := next(ctx, inv)

			persistErr := writeProjectSettings(inv)
			if opErr != nil {
				if persistErr != nil {
					logger.Error().Err(persistErr).Str("method", inv.Method).Msg("failed to persist project settings")
				}
				return opErr
			}
			return persistErr
		}
	}
}

func writeProjectSettings(inv *engine.Invocation) error {
	in := inv.Inputs
	if in == nil || in.IgnoreConfigPersist || in.Platform.IsStatic() || in.ProjectPath == "" {
		return nil
	}
	if inv.Context == nil || inv.Context.ProjectSettings == nil {
		return nil
	}
	if err := project.SaveSettings(in.ProjectPath, inv.Context.ProjectSettings); err != nil {
		return err
	}
	return project.SaveLocalSettings(in.ProjectPath, inv.Context.LocalSettings)
}
