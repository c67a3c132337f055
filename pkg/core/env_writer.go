package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/thomyg/TeamsFx/pkg/engine"
	"github.com/thomyg/TeamsFx/pkg/telemetry"
)

// EnvStateWriter persists the state of one environment.
type EnvStateWriter interface {
	WriteEnvState(env string, state engine.EnvState) (string, error)
}

// EnvWriterFunc returns the writer used for an invocation.
type EnvWriterFunc func(inv *engine.Invocation) (EnvStateWriter, error)

// EnvInfoWriter persists inv.EnvInfo.State once after the wrapped handler
// returns, whether it succeeded, failed or was cancelled.
//
// The handler's error wins over a persistence error; the latter is only
// returned when the handler succeeded. State of the local debug plugin is
// dropped from what is written for any environment other than local. The
// in-memory state is left untouched.
func EnvInfoWriter(writerFor EnvWriterFunc, logger zerolog.Logger) engine.Middleware {
	return func(next engine.Handler) engine.Handler {
		return func(ctx context.Context, inv *engine.Invocation) error {
			opErr := next(ctx, inv)

			persistErr := writeEnvInfo(ctx, inv, writerFor, logger)
			if opErr != nil {
				if persistErr != nil {
					logger.Error().Err(persistErr).Str("method", inv.Method).Msg("failed to persist env state")
				}
				return opErr
			}
			return persistErr
		}
	}
}

func writeEnvInfo(ctx context.Context, inv *engine.Invocation, writerFor EnvWriterFunc, logger zerolog.Logger) error {
	if skipEnvPersist(inv) {
		return nil
	}

	env := inv.EnvInfo.EnvName
	state := persistableState(env, inv.EnvInfo.State)

	w, err := writerFor(inv)
	if err != nil {
		return err
	}
	path, err := w.WriteEnvState(env, state)
	if err != nil {
		return err
	}

	logger.Debug().Str("env", env).Str("path", path).Msg("persisted env state")
	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		_ = tel.Events.PublishStatePersisted(env, path)
	}
	return nil
}

func skipEnvPersist(inv *engine.Invocation) bool {
	in := inv.Inputs
	switch {
	case in == nil, in.IgnoreEnvInfo, in.IgnoreConfigPersist:
		return true
	case in.Platform.IsStatic(), in.ProjectPath == "":
		return true
	case inv.EnvInfo == nil, inv.EnvInfo.EnvName == "", inv.EnvInfo.State == nil:
		return true
	}
	return false
}

// persistableState returns the state to write for env. The local debug
// plugin entry only survives for the local environment.
func persistableState(env string, state engine.EnvState) engine.EnvState {
	if env == engine.LocalEnvName {
		return state
	}
	if _, ok := state[engine.LocalDebugPlugin]; !ok {
		return state
	}
	out := state.Clone()
	delete(out, engine.LocalDebugPlugin)
	return out
}
