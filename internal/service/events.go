package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/spendsight/spendsight/internal/port/messagequeue"
)

// publishEvent emits a domain event (best-effort, logs failures). A nil or
// disconnected queue, a marshal failure, or a publish failure never fails
// the originating work unit.
func publishEvent(ctx context.Context, q messagequeue.Queue, subject string, payload any) {
	if q == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal event payload", "subject", subject, "error", err)
		return
	}
	if err := messagequeue.Validate(subject, data); err != nil {
		slog.Error("event payload failed schema validation", "subject", subject, "error", err)
		return
	}
	if err := q.Publish(ctx, subject, data); err != nil {
		slog.Warn("failed to publish event", "subject", subject, "error", err)
	}
}
