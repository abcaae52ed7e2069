package runtime

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (e *Engine) startStageSpan(ctx context.Context, rc *runContext, sr *stageRun, attempt int) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "stage "+sr.key,
		trace.WithAttributes(
			attribute.String("stagecraft.run_id", rc.id),
			attribute.String("stagecraft.agent", sr.agent.Name),
			attribute.String("stagecraft.stage", sr.name),
			attribute.Int("stagecraft.index", sr.index),
			attribute.Int("stagecraft.attempt", attempt),
		))
}

func (e *Engine) startItemSpan(ctx context.Context, rc *runContext, sr *stageRun, key string, attempt int) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "item "+key,
		trace.WithAttributes(
			attribute.String("stagecraft.run_id", rc.id),
			attribute.String("stagecraft.agent", sr.agent.Name),
			attribute.String("stagecraft.stage", sr.key),
			attribute.String("stagecraft.item", key),
			attribute.Int("stagecraft.attempt", attempt),
		))
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
