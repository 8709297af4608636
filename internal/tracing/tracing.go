// Package tracing wraps OpenTelemetry span creation for the handful of
// hot paths called out in SPEC_FULL.md's ambient stack: one round of
// the Tape Scheduler, one agent's turn within that round, a pool
// connection dial, and a write-queue enqueue.
//
// Grounded on the pack's OTel setup pattern (intelligencedev-manifold's
// internal/telemetry/otel.go and kadirpekel-hector's
// pkg/observability/tracer.go): otlptracehttp exporter, a
// batching TracerProvider, and a Setup(ctx, cfg) (shutdown, error)
// constructor. When Endpoint is empty the provider is a no-op so spans
// cost nothing in tests and single-node dev runs.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the tracer provider. It mirrors
// config.TelemetryConfig so callers can pass that struct straight in.
type Config struct {
	Endpoint    string
	ServiceName string
}

// Setup installs a global TracerProvider and returns a shutdown func to
// defer at process exit. An empty Endpoint skips exporter construction
// entirely and leaves the existing (no-op by default) global provider
// in place.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "tape"
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// tracer is the package-wide Tracer; named like a library so spans group
// cleanly in any backend regardless of which component started them.
func tracer() trace.Tracer { return otel.Tracer("goclaw-tape") }

// StartRound opens the tape.round span for one Turn Scheduler sweep of a
// room (§4.I).
func StartRound(ctx context.Context, roomID int64) (context.Context, trace.Span) {
	return tracer().Start(ctx, "tape.round", trace.WithAttributes(attribute.Int64("room_id", roomID)))
}

// StartAgentTurn opens the agent.turn span for one agent's generation
// within a round (§4.H).
func StartAgentTurn(ctx context.Context, roomID, agentID int64, agentName string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "agent.turn", trace.WithAttributes(
		attribute.Int64("room_id", roomID),
		attribute.Int64("agent_id", agentID),
		attribute.String("agent_name", agentName),
	))
}

// StartPoolConnect opens the pool.connect span for acquiring a pooled
// runtime client (§4.F), whether that means dialing a new one or
// reusing an existing entry. Call SetPoolConnectReused once the
// outcome is known.
func StartPoolConnect(ctx context.Context, taskID string, reused bool) (context.Context, trace.Span) {
	return tracer().Start(ctx, "pool.connect", trace.WithAttributes(
		attribute.String("task_id", taskID),
		attribute.Bool("reused", reused),
	))
}

// SetPoolConnectReused records whether a pool.connect span ended up
// reusing an existing client rather than dialing a new one.
func SetPoolConnectReused(span trace.Span, reused bool) {
	span.SetAttributes(attribute.Bool("reused", reused))
}

// StartWriteQueueEnqueue opens the writequeue.enqueue span for a
// serialized persistence write (§4's write-queue component).
func StartWriteQueueEnqueue(ctx context.Context, roomID int64, kind string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "writequeue.enqueue", trace.WithAttributes(
		attribute.Int64("room_id", roomID),
		attribute.String("kind", kind),
	))
}
