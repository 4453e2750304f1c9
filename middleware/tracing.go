package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Jiyabhaviksadaria/smartqueue"
)

// tracerName is the instrumentation scope name for smartqueue tracing.
const tracerName = "github.com/Jiyabhaviksadaria/smartqueue"

// Tracing returns middleware that wraps each operation in an OpenTelemetry
// span using the global TracerProvider. Without a configured provider the
// noop tracer makes this a pass-through.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
//
// Span name is "smartqueue.<op>". Attributes: smartqueue.op,
// smartqueue.queue_id, smartqueue.token_id and smartqueue.actor.role when
// the caller is known.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, op *Op, next Handler) error {
		attrs := []attribute.KeyValue{
			attribute.String("smartqueue.op", op.Name),
		}
		if op.QueueID != "" {
			attrs = append(attrs, attribute.String("smartqueue.queue_id", op.QueueID))
		}
		if op.TokenID != "" {
			attrs = append(attrs, attribute.String("smartqueue.token_id", op.TokenID))
		}
		if a, ok := smartqueue.ActorFromContext(ctx); ok {
			attrs = append(attrs, attribute.String("smartqueue.actor.role", string(a.Role)))
		}

		ctx, span := tracer.Start(ctx, "smartqueue."+op.Name,
			trace.WithAttributes(attrs...),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}
