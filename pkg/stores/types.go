package stores

import (
	"context"
	"time"
)

// OperationStatus is the outcome of a recorded operation.
type OperationStatus string

const (
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusSucceeded OperationStatus = "succeeded"
	OperationStatusFailed    OperationStatus = "failed"
	OperationStatusCancelled OperationStatus = "cancelled"
)

// StageStatus is the outcome of one plugin stage call.
type StageStatus string

const (
	StageStatusSucceeded StageStatus = "succeeded"
	StageStatusFailed    StageStatus = "failed"
	StageStatusCancelled StageStatus = "cancelled"
)

// OperationRecord is one top-level fx operation.
type OperationRecord struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Env         string          `json:"env,omitempty"`
	ProjectPath string          `json:"projectPath,omitempty"`
	Status      OperationStatus `json:"status"`

	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	// Plugins are the plugins called by the operation, in call order.
	Plugins []string `json:"plugins,omitempty"`

	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// StageRecord is one plugin stage call of an operation.
type StageRecord struct {
	ID          int64         `json:"id"`
	OperationID string        `json:"operationId"`
	Plugin      string        `json:"plugin"`
	Stage       string        `json:"stage"`
	Status      StageStatus   `json:"status"`
	ErrorCode   string        `json:"errorCode,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"duration"`
}

// OperationFilter narrows ListOperations. Zero fields match everything.
type OperationFilter struct {
	Name   string
	Env    string
	Status OperationStatus
	Limit  int
	Offset int
}

// OperationCompletion is the final state of an operation.
type OperationCompletion struct {
	Status       OperationStatus
	ErrorCode    string
	ErrorMessage string
	CompletedAt  time.Time
}

// HistoryStore persists the operation history of a project.
type HistoryStore interface {
	// StartOperation records a running operation.
	StartOperation(ctx context.Context, rec *OperationRecord) error

	// CompleteOperation records the outcome of a started operation.
	CompleteOperation(ctx context.Context, id string, c OperationCompletion) error

	// SetPlugins replaces the plugin list of an operation.
	SetPlugins(ctx context.Context, id string, plugins []string) error

	// RecordStage appends a stage call to an operation.
	RecordStage(ctx context.Context, rec *StageRecord) error

	GetOperation(ctx context.Context, id string) (*OperationRecord, error)
	ListOperations(ctx context.Context, filter OperationFilter) ([]*OperationRecord, error)
	ListStages(ctx context.Context, operationID string) ([]*StageRecord, error)

	// Prune deletes operations started before cutoff and returns how many.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}

// ErrNotFound is returned for unknown operation ids.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "operation not found" }
