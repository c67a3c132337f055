package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

// StageHook observes plugin stage calls made by the engine. It opens a
// span per call and records call counts, durations and failures.
type StageHook struct {
	tel *Telemetry
}

var _ engine.StageHook = (*StageHook)(nil)

// NewStageHook creates a hook reporting to tel.
func NewStageHook(tel *Telemetry) *StageHook {
	return &StageHook{tel: tel}
}

type stageCall struct {
	span  trace.Span
	timer *Timer
}

type stageCallKey struct{}

// BeforeStage implements engine.StageHook.
func (h *StageHook) BeforeStage(ctx context.Context, stage engine.Stage, plugin string) context.Context {
	ctx, span := h.tel.Tracer.StartStageSpan(ctx, plugin, string(stage))
	if op, ok := engine.OperationFromContext(ctx); ok {
		span.SetAttributes(AttrOperationID.String(op.ID))
	}
	h.tel.Logger.WithPlugin(plugin, string(stage)).Trace("stage started")
	return context.WithValue(ctx, stageCallKey{}, &stageCall{span: span, timer: NewTimer()})
}

// AfterStage implements engine.StageHook.
func (h *StageHook) AfterStage(ctx context.Context, stage engine.Stage, plugin string, err error) {
	call, ok := ctx.Value(stageCallKey{}).(*stageCall)
	if !ok {
		return
	}
	duration := call.timer.Duration()
	h.tel.Metrics.RecordStageCall(plugin, string(stage), duration)

	logger := h.tel.Logger.WithPlugin(plugin, string(stage))
	if err == nil {
		RecordSuccess(call.span)
		call.span.End()
		logger.Debugf("stage finished in %s", duration)
		return
	}

	kind := errorKind(err)
	call.span.SetAttributes(AttrErrorKind.String(kind), AttrErrorCode.String(engine.Code(err)))
	RecordError(call.span, err)
	call.span.End()

	h.tel.Metrics.RecordStageError(plugin, string(stage), kind)
	var opID string
	if op, ok := engine.OperationFromContext(ctx); ok {
		opID = op.ID
	}
	_ = h.tel.Events.PublishStageFailed(opID, plugin, string(stage), err.Error())
	if !engine.IsCancellation(err) {
		logger.WithError(err).Warn("stage failed")
	}
}
