package core

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/thomyg/TeamsFx/pkg/engine"
	"github.com/thomyg/TeamsFx/pkg/stores"
)

// HistoryFunc returns the history store of an invocation. A nil store
// disables recording for that invocation.
type HistoryFunc func(inv *engine.Invocation) (stores.HistoryStore, error)

type historyKey struct{}

func withHistory(ctx context.Context, store stores.HistoryStore) context.Context {
	return context.WithValue(ctx, historyKey{}, store)
}

func historyFrom(ctx context.Context) stores.HistoryStore {
	s, _ := ctx.Value(historyKey{}).(stores.HistoryStore)
	return s
}

// RecordHistory records every invocation and its outcome in the project
// history. History failures are logged and never fail the operation.
func RecordHistory(storeFor HistoryFunc, logger zerolog.Logger) engine.Middleware {
	return func(next engine.Handler) engine.Handler {
		return func(ctx context.Context, inv *engine.Invocation) error {
			store, err := storeFor(inv)
			if err != nil {
				logger.Warn().Err(err).Msg("operation history unavailable")
				return next(ctx, inv)
			}
			if store == nil {
				return next(ctx, inv)
			}

			op, ok := engine.OperationFromContext(ctx)
			if !ok {
				op = engine.NewOperation(inv.Method)
				ctx = engine.WithOperation(ctx, op)
			}

			rec := &stores.OperationRecord{
				ID:        op.ID,
				Name:      inv.Method,
				StartedAt: op.StartedAt,
			}
			if in := inv.Inputs; in != nil {
				rec.Env = in.EnvName
				rec.ProjectPath = in.ProjectPath
			}
			if err := store.StartOperation(ctx, rec); err != nil {
				logger.Warn().Err(err).Str("operation_id", op.ID).Msg("failed to record operation")
				return next(ctx, inv)
			}

			opErr := next(withHistory(ctx, store), inv)

			// Record even when the operation was cancelled.
			rctx := context.WithoutCancel(ctx)
			if plugins := activePlugins(inv); len(plugins) > 0 {
				if err := store.SetPlugins(rctx, op.ID, plugins); err != nil {
					logger.Warn().Err(err).Str("operation_id", op.ID).Msg("failed to record plugins")
				}
			}
			completion := stores.OperationCompletion{
				Status:      operationStatus(opErr),
				CompletedAt: time.Now(),
			}
			if opErr != nil {
				completion.ErrorCode = engine.Code(opErr)
				completion.ErrorMessage = opErr.Error()
			}
			if err := store.CompleteOperation(rctx, op.ID, completion); err != nil {
				logger.Warn().Err(err).Str("operation_id", op.ID).Msg("failed to record operation outcome")
			}
			return opErr
		}
	}
}

func activePlugins(inv *engine.Invocation) []string {
	if inv.Context == nil || inv.Context.ProjectSettings == nil {
		return nil
	}
	return slices.Clone(inv.Context.ProjectSettings.Solution.ActiveResourcePlugins)
}

func operationStatus(err error) stores.OperationStatus {
	switch {
	case err == nil:
		return stores.OperationStatusSucceeded
	case engine.IsCancellation(err):
		return stores.OperationStatusCancelled
	default:
		return stores.OperationStatusFailed
	}
}

// HistoryHook records each plugin stage call in the history store carried
// by the operation context.
type HistoryHook struct {
	logger zerolog.Logger
}

var _ engine.StageHook = (*HistoryHook)(nil)

// NewHistoryHook creates a stage hook writing to the operation's history.
func NewHistoryHook(logger zerolog.Logger) *HistoryHook {
	return &HistoryHook{logger: logger}
}

type stageStartKey struct{}

// BeforeStage implements engine.StageHook.
func (h *HistoryHook) BeforeStage(ctx context.Context, stage engine.Stage, plugin string) context.Context {
	if historyFrom(ctx) == nil {
		return ctx
	}
	return context.WithValue(ctx, stageStartKey{}, time.Now())
}

// AfterStage implements engine.StageHook.
func (h *HistoryHook) AfterStage(ctx context.Context, stage engine.Stage, plugin string, err error) {
	store := historyFrom(ctx)
	op, ok := engine.OperationFromContext(ctx)
	started, hasStart := ctx.Value(stageStartKey{}).(time.Time)
	if store == nil || !ok || !hasStart {
		return
	}

	rec := &stores.StageRecord{
		OperationID: op.ID,
		Plugin:      plugin,
		Stage:       string(stage),
		Status:      stageStatus(err),
		StartedAt:   started,
		Duration:    time.Since(started),
	}
	if err != nil {
		rec.ErrorCode = engine.Code(err)
		rec.Error = err.Error()
	}
	if err := store.RecordStage(context.WithoutCancel(ctx), rec); err != nil {
		h.logger.Warn().Err(err).Str("plugin", plugin).Str("stage", string(stage)).Msg("failed to record stage")
	}
}

func stageStatus(err error) stores.StageStatus {
	switch {
	case err == nil:
		return stores.StageStatusSucceeded
	case engine.IsCancellation(err):
		return stores.StageStatusCancelled
	default:
		return stores.StageStatusFailed
	}
}
