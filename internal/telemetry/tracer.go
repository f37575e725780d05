package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan creates a new internal span with the given name and attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartConsumerSpan creates a new consumer span for a message pulled off
// the queue, linking it to the producer's propagated trace context.
func StartConsumerSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
}

// SpanFromContext returns the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// SetSpanError marks the span as errored.
func SetSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span as successful.
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Common attribute keys attached to actor engine and worker spans.
var (
	AttrActorType    = attribute.Key("actorforge.actor.type")
	AttrActorID      = attribute.Key("actorforge.actor.id")
	AttrMessageID    = attribute.Key("actorforge.message.id")
	AttrActivityName = attribute.Key("actorforge.activity.name")
	AttrAttempt      = attribute.Key("actorforge.attempt")
	AttrDurationMs   = attribute.Key("actorforge.duration_ms")
	AttrSuspended    = attribute.Key("actorforge.suspended")
)
