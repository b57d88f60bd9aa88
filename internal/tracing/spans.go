package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	executorTracerName = "compeek-executor"
	agentTracerName    = "compeek-agent"
)

// TraceAction creates a span for one desktop action.
func TraceAction(ctx context.Context, executor, action string) (context.Context, trace.Span) {
	ctx, span := Tracer(executorTracerName).Start(ctx, "executor.action",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("executor", executor),
		attribute.String("action", action),
	)
	return ctx, span
}

// TraceBash creates a span for one shell command.
func TraceBash(ctx context.Context, executor string, commandLen int) (context.Context, trace.Span) {
	ctx, span := Tracer(executorTracerName).Start(ctx, "executor.bash",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("executor", executor),
		attribute.Int("command_length", commandLen),
	)
	return ctx, span
}

// TraceRun creates the root span of a workflow run.
func TraceRun(ctx context.Context, runID, model string, maxIterations int) (context.Context, trace.Span) {
	ctx, span := Tracer(agentTracerName).Start(ctx, "agent.run",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.String("model", model),
		attribute.Int("max_iterations", maxIterations),
	)
	return ctx, span
}

// TraceLLMCall creates a span for one model request.
func TraceLLMCall(ctx context.Context, model string, iteration int) (context.Context, trace.Span) {
	ctx, span := Tracer(agentTracerName).Start(ctx, "agent.llm_call",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("model", model),
		attribute.Int("iteration", iteration),
	)
	return ctx, span
}

// TraceLLMUsage records token usage on an LLM call span.
func TraceLLMUsage(span trace.Span, inputTokens, outputTokens int, stopReason string) {
	span.SetAttributes(
		attribute.Int("input_tokens", inputTokens),
		attribute.Int("output_tokens", outputTokens),
		attribute.String("stop_reason", stopReason),
	)
}

// EndWithError records err (if any) and ends the span.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// MarkFailed flags a span whose operation reported a failure without a Go error.
func MarkFailed(span trace.Span, message string) {
	span.SetStatus(codes.Error, message)
	span.SetAttributes(attribute.String("error.message", message))
}
