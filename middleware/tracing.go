package middleware

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/reverb-labs/tempo/job"
)

// tracerName is the instrumentation scope name for tempo tracing.
const tracerName = "github.com/reverb-labs/tempo"

// Tracing returns middleware that wraps job execution in an OpenTelemetry span.
// If no TracerProvider is configured globally, the default noop tracer is used
// and this middleware becomes a pass-through with zero overhead.
//
// Span attributes include: tempo.job.id, tempo.job.name, tempo.job.priority,
// tempo.job.attempt, and tempo.job.user_id.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (json.RawMessage, error) {
		ctx, span := tracer.Start(ctx, "tempo.job.execute",
			trace.WithAttributes(
				attribute.String("tempo.job.id", j.ID.String()),
				attribute.String("tempo.job.name", j.Name),
				attribute.String("tempo.job.priority", j.Priority.String()),
				attribute.Int("tempo.job.attempt", j.Attempts),
				attribute.String("tempo.job.user_id", j.UserID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		out, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return out, err
	}
}
