// Package observability wires OpenTelemetry tracing across a task's
// lifecycle: a scheduler-tick span that is the parent of an
// executor-execute span, itself the parent of an agent-adapter-run span.
package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "scheduler"

// Setup configures the global TracerProvider to export spans via OTLP/gRPC
// to endpoint. Call the returned shutdown function before process exit to
// flush any buffered spans. If endpoint is empty, a no-op provider is left
// in place and shutdown is a no-op.
func Setup(ctx context.Context, endpoint, serviceName string) (shutdown func(context.Context) error, err error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartTick opens the parent span for one scheduler poll tick.
func StartTick(ctx context.Context) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "scheduler.tick")
}

// StartExecute opens the executor span for a single task, as a child of
// whatever span is already in ctx (normally scheduler.tick).
func StartExecute(ctx context.Context, taskID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "executor.execute", trace.WithAttributes(
		attribute.String("task.id", taskID),
	))
}

// StartAgentRun opens the innermost span around a single Agent Adapter
// invocation.
func StartAgentRun(ctx context.Context, taskID, sessionID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("task.id", taskID)}
	if sessionID != "" {
		attrs = append(attrs, attribute.String("session.id", sessionID))
	}
	return Tracer().Start(ctx, "agent.run", trace.WithAttributes(attrs...))
}

// Logf emits a structured log line correlated with the active span's trace
// ID, bridging slog and OTel without pulling in a separate log-bridge
// dependency.
func Logf(ctx context.Context, msg string, args ...any) {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		args = append(args, "trace_id", span.SpanContext().TraceID().String())
	}
	slog.Info(msg, args...)
}
