package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "spendsight"

// StartCollectSpan starts a span for one account's cost collection run.
func StartCollectSpan(ctx context.Context, accountID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "collect",
		trace.WithAttributes(
			attribute.String("account.id", accountID),
		),
	)
}

// StartAnalyzeSpan starts a span for one account's anomaly analysis.
func StartAnalyzeSpan(ctx context.Context, accountID string, date time.Time) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "analyze",
		trace.WithAttributes(
			attribute.String("account.id", accountID),
			attribute.String("usage.date", date.Format("2006-01-02")),
		),
	)
}

// StartGenerateSpan starts a span for recommendation generation.
// An empty accountID means every active account.
func StartGenerateSpan(ctx context.Context, accountID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "generate",
		trace.WithAttributes(
			attribute.String("account.id", accountID),
		),
	)
}
