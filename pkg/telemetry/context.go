package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/trace"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

// Telemetry combines logging, tracing, metrics and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return newTelemetry(cfg, logger)
}

// NewTelemetryWithWriter creates a telemetry instance that logs to w.
func NewTelemetryWithWriter(cfg *Config, w io.Writer) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newTelemetry(cfg, NewLoggerWithWriter(cfg.Logging, w))
}

func newTelemetry(cfg *Config, logger *Logger) (*Telemetry, error) {
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown gracefully shuts down all telemetry components.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}
	return t.Tracer.Shutdown(ctx)
}

// StartMetricsServer starts the metrics HTTP server if metrics are enabled.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer()
}

// OperationScope instruments one top-level operation.
type OperationScope struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer

	tel  *Telemetry
	name string
	id   string
}

// StartOperation begins an instrumented operation. Without telemetry in ctx
// the scope only carries a timer and the context logger.
func StartOperation(ctx context.Context, name, id string) *OperationScope {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &OperationScope{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
			name:   name,
			id:     id,
		}
	}

	spanCtx, span := tel.Tracer.StartOperationSpan(ctx, name, id)
	logger := tel.Logger.WithOperation(name, id)
	if span.SpanContext().IsValid() {
		logger = logger.WithField("trace_id", span.SpanContext().TraceID().String())
	}
	spanCtx = logger.WithContext(spanCtx)

	tel.Metrics.RecordOperationStarted(name)
	_ = tel.Events.PublishOperationStarted(id, name)
	logger.Debug("operation started")

	return &OperationScope{
		Ctx:    spanCtx,
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
		tel:    tel,
		name:   name,
		id:     id,
	}
}

// WithEnv tags the scope's logger, context and span with the target
// environment.
func (s *OperationScope) WithEnv(env string) {
	s.Logger = s.Logger.WithEnv(env)
	s.Ctx = s.Logger.WithContext(s.Ctx)
	if s.Span != nil {
		s.Span.SetAttributes(AttrEnv.String(env))
	}
}

// End finishes the operation, recording success or failure.
func (s *OperationScope) End(err error) {
	duration := s.Timer.Duration()
	if s.Span != nil {
		if err != nil {
			s.Span.SetAttributes(AttrErrorKind.String(errorKind(err)), AttrErrorCode.String(engine.Code(err)))
			RecordError(s.Span, err)
		} else {
			RecordSuccess(s.Span)
		}
		s.Span.End()
	}
	if s.tel == nil {
		return
	}

	status := statusOf(err)
	s.tel.Metrics.RecordOperationCompleted(s.name, status, duration)
	if err != nil {
		s.tel.Metrics.RecordError(errorKind(err), engine.Code(err))
		_ = s.tel.Events.PublishOperationFailed(s.id, s.name, engine.Code(err), err.Error())
		s.Logger.WithError(err).Debug("operation failed")
		return
	}
	_ = s.tel.Events.PublishOperationCompleted(s.id, s.name, duration)
	s.Logger.Debug("operation completed")
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case engine.IsCancellation(err):
		return "cancelled"
	default:
		return "failed"
	}
}

func errorKind(err error) string {
	if engine.IsUserError(err) {
		return string(engine.ErrorKindUser)
	}
	return string(engine.ErrorKindSystem)
}
