// Package tracing wraps oracle calls in OpenTelemetry spans.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kcexplore/pkg/oracle/llm"
	"kcexplore/pkg/oracle/llmerrors"
)

// SpanName is the name of the span opened around every completion.
const SpanName = "oracle.complete"

// Middleware opens a span per request on tracer. A nil tracer uses the global provider.
func Middleware(tracer trace.Tracer) llm.Middleware {
	if tracer == nil {
		tracer = otel.Tracer("kcexplore/oracle")
	}
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				ctx, span := tracer.Start(ctx, SpanName, trace.WithAttributes(
					attribute.String("oracle.model", next.GetModelName()),
					attribute.Int("oracle.messages", len(req.Messages)),
					attribute.Int("oracle.max_tokens", req.MaxTokens),
				))
				defer span.End()

				resp, err := next.Complete(ctx, req)
				if err != nil {
					span.RecordError(err)
					span.SetAttributes(attribute.String("oracle.error_type", llmerrors.TypeOf(err).String()))
					span.SetStatus(codes.Error, err.Error())
					return resp, err
				}
				span.SetAttributes(
					attribute.Int("oracle.prompt_tokens", resp.Usage.PromptTokens),
					attribute.Int("oracle.completion_tokens", resp.Usage.CompletionTokens),
					attribute.Bool("oracle.cached", resp.Cached),
				)
				span.SetStatus(codes.Ok, "")
				return resp, nil
			},
			next.GetModelName,
		)
	}
}
