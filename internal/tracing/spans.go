package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys for algorithm runs.
const (
	AttrAlgorithmName    = "algorithm.name"
	AttrAlgorithmVersion = "algorithm.version"
	AttrHandleID         = "handle.id"
	AttrHandleKind       = "handle.kind"
	AttrRunID            = "run.id"
	AttrRunExecuted      = "run.executed"
)

// Span names.
const (
	SpanExecute      = "algorithm.execute"
	SpanExecuteAsync = "algorithm.execute_async"
)

// Event names.
const (
	EventCancelRequested = "cancel.requested"
)

// RunSpan describes the span opened around one handle run.
type RunSpan struct {
	Name     string
	Version  int
	HandleID uint64
	Kind     string
	RunID    string
}

// StartRun opens a run span. A nil tracer yields a non-recording span.
func StartRun(ctx context.Context, tracer trace.Tracer, spanName string, r RunSpan) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrAlgorithmName, r.Name),
			attribute.Int(AttrAlgorithmVersion, r.Version),
			attribute.Int64(AttrHandleID, int64(r.HandleID)), //nolint:gosec // ids stay far below MaxInt64
			attribute.String(AttrHandleKind, r.Kind),
			attribute.String(AttrRunID, r.RunID),
		),
	)
}

// EndRun records the outcome and ends span.
func EndRun(span trace.Span, executed bool, err error) {
	span.SetAttributes(attribute.Bool(AttrRunExecuted, executed))
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case !executed:
		span.SetStatus(codes.Error, "run did not complete")
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
