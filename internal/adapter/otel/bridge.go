package otel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/spendsight/spendsight/internal/port/messagequeue"
)

// EventMetrics feeds the metric instruments from the queue's domain events,
// so counters stay correct no matter which path (API, scheduler, CLI)
// triggered the work.
type EventMetrics struct {
	queue   messagequeue.Queue
	metrics *Metrics
}

// NewEventMetrics creates a bridge from queue events to metric instruments.
func NewEventMetrics(queue messagequeue.Queue, metrics *Metrics) *EventMetrics {
	return &EventMetrics{queue: queue, metrics: metrics}
}

// Start subscribes to the domain event subjects. The returned stop function
// cancels all subscriptions.
func (e *EventMetrics) Start(ctx context.Context) (func(), error) {
	handlers := map[string]messagequeue.Handler{
		messagequeue.SubjectCollectionCompleted:     e.onCollectionCompleted,
		messagequeue.SubjectAnomalyDetected:         e.onAnomalyDetected,
		messagequeue.SubjectRecommendationGenerated: e.onRecommendationGenerated,
	}

	var cancels []func()
	stop := func() {
		for _, cancel := range cancels {
			cancel()
		}
	}

	for subject, handler := range handlers {
		cancel, err := e.queue.Subscribe(ctx, subject, handler)
		if err != nil {
			stop()
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		cancels = append(cancels, cancel)
	}
	return stop, nil
}

func (e *EventMetrics) onCollectionCompleted(ctx context.Context, subject string, data []byte) error {
	var payload messagequeue.CollectionCompletedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Warn("dropping malformed event", "subject", subject, "error", err)
		return nil
	}

	attrs := metric.WithAttributes(attribute.String("provider", payload.Provider))
	e.metrics.Collections.Add(ctx, 1, attrs)
	if !payload.Success {
		e.metrics.CollectionFailures.Add(ctx, 1, attrs)
	}
	if payload.RecordsSaved > 0 {
		e.metrics.RecordsSaved.Add(ctx, int64(payload.RecordsSaved), attrs)
	}
	e.metrics.CollectionDuration.Record(ctx, float64(payload.DurationMS)/1000, attrs)
	return nil
}

func (e *EventMetrics) onAnomalyDetected(ctx context.Context, subject string, data []byte) error {
	var payload messagequeue.AnomalyDetectedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Warn("dropping malformed event", "subject", subject, "error", err)
		return nil
	}

	e.metrics.AnomaliesDetected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", payload.Provider),
		attribute.String("severity", payload.Severity),
	))
	return nil
}

func (e *EventMetrics) onRecommendationGenerated(ctx context.Context, subject string, data []byte) error {
	var payload messagequeue.RecommendationGeneratedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Warn("dropping malformed event", "subject", subject, "error", err)
		return nil
	}

	e.metrics.RecommendationsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", payload.Provider),
		attribute.String("type", payload.Type),
	))
	return nil
}
