package core

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomyg/TeamsFx/pkg/engine"
	"github.com/thomyg/TeamsFx/pkg/stores"
)

func openHistory(t *testing.T) *stores.SQLiteStore {
	t.Helper()
	s, err := stores.Open(context.Background(), stores.Config{Path: filepath.Join(t.TempDir(), "history.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func historyInvocation() *engine.Invocation {
	return &engine.Invocation{
		Method: MethodProvision,
		Inputs: &engine.Inputs{Platform: engine.PlatformCLI, ProjectPath: "/work/todo", EnvName: "dev"},
		Context: &engine.Context{ProjectSettings: &engine.ProjectSettings{
			Solution: engine.SolutionSettings{ActiveResourcePlugins: []string{"fx-resource-bot", "fx-resource-aad-app-for-teams"}},
		}},
	}
}

func TestRecordHistory(t *testing.T) {
	store := openHistory(t)
	hook := NewHistoryHook(zerolog.Nop())
	op := engine.NewOperation(MethodProvision)
	ctx := engine.WithOperation(context.Background(), op)

	h := engine.Chain(func(ctx context.Context, inv *engine.Invocation) error {
		stageCtx := hook.BeforeStage(ctx, engine.StageProvision, "fx-resource-bot")
		hook.AfterStage(stageCtx, engine.StageProvision, "fx-resource-bot", nil)
		stageCtx = hook.BeforeStage(ctx, engine.StageConfigure, "fx-resource-bot")
		hook.AfterStage(stageCtx, engine.StageConfigure, "fx-resource-bot", engine.CancelError("fx-resource-bot"))
		return engine.CancelError("fx-resource-bot")
	}, RecordHistory(func(*engine.Invocation) (stores.HistoryStore, error) { return store, nil }, zerolog.Nop()))

	err := h(ctx, historyInvocation())
	require.ErrorIs(t, err, engine.ErrProvisionCancelled)

	rec, err := store.GetOperation(context.Background(), op.ID)
	require.NoError(t, err)
	assert.Equal(t, MethodProvision, rec.Name)
	assert.Equal(t, "dev", rec.Env)
	assert.Equal(t, stores.OperationStatusCancelled, rec.Status)
	assert.Equal(t, engine.ErrCodeCancelProvision, rec.ErrorCode)
	assert.Equal(t, []string{"fx-resource-bot", "fx-resource-aad-app-for-teams"}, rec.Plugins)
	require.NotNil(t, rec.CompletedAt)

	stages, err := store.ListStages(context.Background(), op.ID)
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, string(engine.StageProvision), stages[0].Stage)
	assert.Equal(t, stores.StageStatusSucceeded, stages[0].Status)
	assert.Equal(t, stores.StageStatusCancelled, stages[1].Status)
	assert.Equal(t, engine.ErrCodeCancelProvision, stages[1].ErrorCode)
}

func TestRecordHistory_StoreFailureDoesNotFailOperation(t *testing.T) {
	called := false
	h := engine.Chain(func(context.Context, *engine.Invocation) error {
		called = true
		return nil
	}, RecordHistory(func(*engine.Invocation) (stores.HistoryStore, error) {
		return nil, errors.New("disk full")
	}, zerolog.Nop()))

	require.NoError(t, h(context.Background(), historyInvocation()))
	assert.True(t, called)
}

func TestRecordHistory_ClosedStore(t *testing.T) {
	store := openHistory(t)
	require.NoError(t, store.Close())

	h := engine.Chain(func(context.Context, *engine.Invocation) error { return nil },
		RecordHistory(func(*engine.Invocation) (stores.HistoryStore, error) { return store, nil }, zerolog.Nop()))
	assert.NoError(t, h(context.Background(), historyInvocation()))
}

func TestHistoryHook_WithoutStoreIsNoop(t *testing.T) {
	hook := NewHistoryHook(zerolog.Nop())
	ctx := context.Background()
	assert.Equal(t, ctx, hook.BeforeStage(ctx, engine.StageDeploy, "fx-resource-bot"))
	hook.AfterStage(ctx, engine.StageDeploy, "fx-resource-bot", nil)
}

func TestOperationStatus(t *testing.T) {
	assert.Equal(t, stores.OperationStatusSucceeded, operationStatus(nil))
	assert.Equal(t, stores.OperationStatusCancelled, operationStatus(context.Canceled))
	assert.Equal(t, stores.OperationStatusFailed, operationStatus(errors.New("boom")))
	assert.Equal(t, stores.StageStatusFailed, stageStatus(engine.ErrUnhandled))
}
