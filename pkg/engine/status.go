package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stage is a lifecycle stage a plugin may take part in.
type Stage string

const (
	StageScaffold          Stage = "scaffold"
	StageAddResource       Stage = "addResource"
	StageAddFeature        Stage = "addFeature"
	StageAfterFeatureAdded Stage = "afterOtherFeaturesAdded"
	StageDependencies      Stage = "pluginDependencies"
	StageGenerateTemplate  Stage = "generateResourceTemplate"
	StageUpdateTemplate    Stage = "updateResourceTemplate"
	StagePreProvision      Stage = "preProvision"
	StageProvision         Stage = "provisionResource"
	StageConfigure         Stage = "configureResource"
	StagePreDeploy         Stage = "preDeploy"
	StageDeploy            Stage = "deploy"
	StageLocalProvision    Stage = "provisionLocalResource"
	StageLocalConfigure    Stage = "configureLocalResource"
	StageUserTask          Stage = "executeUserTask"
	StageQuestions         Stage = "questions"
)

// OperationState is the state of one top-level operation.
type OperationState string

const (
	// OperationIdle indicates the operation has not started.
	OperationIdle OperationState = "idle"

	// OperationDependencyResolved indicates the plugin closure is known.
	OperationDependencyResolved OperationState = "dependencyResolved"

	// OperationTemplateGenerated indicates the composite template was built.
	OperationTemplateGenerated OperationState = "templateGenerated"

	// OperationPluginsInvoked indicates every plugin call succeeded.
	OperationPluginsInvoked OperationState = "pluginsInvoked"

	// OperationManifestPersisted indicates the manifest and template were saved.
	OperationManifestPersisted OperationState = "manifestPersisted"

	// OperationDone indicates the operation completed successfully.
	OperationDone OperationState = "done"

	// OperationFailed indicates the operation stopped on an error.
	OperationFailed OperationState = "failed"
)

// IsTerminal returns true if the state is final.
func (s OperationState) IsTerminal() bool {
	return s == OperationDone || s == OperationFailed
}

// Validate checks if the operation state is valid.
func (s OperationState) Validate() error {
	if _, ok := operationTransitions[s]; ok {
		return nil
	}
	return fmt.Errorf("invalid operation state: %s", s)
}

// operationTransitions is the legal transition table. Failed is reachable
// from every non-terminal state.
var operationTransitions = map[OperationState][]OperationState{
	OperationIdle:               {OperationDependencyResolved, OperationTemplateGenerated, OperationPluginsInvoked, OperationFailed},
	OperationDependencyResolved: {OperationTemplateGenerated, OperationFailed},
	OperationTemplateGenerated:  {OperationPluginsInvoked, OperationManifestPersisted, OperationDone, OperationFailed},
	OperationPluginsInvoked:     {OperationManifestPersisted, OperationDone, OperationFailed},
	OperationManifestPersisted:  {OperationDone, OperationFailed},
	OperationDone:               {},
	OperationFailed:             {},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to OperationState) bool {
	for _, s := range operationTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Operation tracks one top-level orchestrator invocation.
type Operation struct {
	mu sync.Mutex

	ID        string
	Name      string
	State     OperationState
	History   []OperationState
	StartedAt time.Time
	EndedAt   time.Time
	Err       error
}

// NewOperation creates an idle operation.
func NewOperation(name string) *Operation {
	return &Operation{
		ID:        uuid.New().String(),
		Name:      name,
		State:     OperationIdle,
		History:   []OperationState{OperationIdle},
		StartedAt: time.Now(),
	}
}

// Transition moves the operation to the next state.
func (o *Operation) Transition(to OperationState) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !CanTransition(o.State, to) {
		return NewSystemError(SourceCore, ErrCodeIllegalTransition,
			fmt.Sprintf("operation %s: illegal transition %s -> %s", o.Name, o.State, to))
	}
	o.State = to
	o.History = append(o.History, to)
	if to.IsTerminal() {
		o.EndedAt = time.Now()
	}
	return nil
}

// Fail moves the operation to Failed and records err. A terminal
// operation is left untouched.
func (o *Operation) Fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.State.IsTerminal() {
		return
	}
	o.State = OperationFailed
	o.History = append(o.History, OperationFailed)
	o.Err = err
	o.EndedAt = time.Now()
}

// Current returns the current state.
func (o *Operation) Current() OperationState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.State
}

// Duration returns the elapsed time of the operation.
func (o *Operation) Duration() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.EndedAt.IsZero() {
		return time.Since(o.StartedAt)
	}
	return o.EndedAt.Sub(o.StartedAt)
}

type operationKey struct{}

// WithOperation stores the operation in the context.
func WithOperation(ctx context.Context, op *Operation) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

// OperationFromContext returns the operation stored in ctx, if any.
func OperationFromContext(ctx context.Context) (*Operation, bool) {
	op, ok := ctx.Value(operationKey{}).(*Operation)
	return op, ok
}

// operationFor reuses the operation in ctx or starts a new one.
func operationFor(ctx context.Context, name string) (context.Context, *Operation) {
	if op, ok := OperationFromContext(ctx); ok && op.Current() == OperationIdle {
		return ctx, op
	}
	op := NewOperation(name)
	return WithOperation(ctx, op), op
}
