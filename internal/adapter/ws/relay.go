package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spendsight/spendsight/internal/port/messagequeue"
)

// Relay forwards domain events from the message queue to connected
// dashboards. Every event payload carries a tenant_id, so the relay works
// no matter which process produced the event.
type Relay struct {
	queue messagequeue.Queue
	hub   *Hub
}

// NewRelay creates a relay between the queue and the hub.
func NewRelay(queue messagequeue.Queue, hub *Hub) *Relay {
	return &Relay{queue: queue, hub: hub}
}

// relaySubjects are the queue subjects pushed to dashboards.
var relaySubjects = []string{
	messagequeue.SubjectAnomalyDetected,
	messagequeue.SubjectCollectionCompleted,
	messagequeue.SubjectRecommendationGenerated,
}

// Start subscribes to all dashboard-relevant subjects. The returned stop
// function cancels every subscription.
func (r *Relay) Start(ctx context.Context) (stop func(), err error) {
	cancels := make([]func(), 0, len(relaySubjects))
	stop = func() {
		for _, c := range cancels {
			c()
		}
	}

	for _, subject := range relaySubjects {
		cancel, err := r.queue.Subscribe(ctx, subject, r.forward)
		if err != nil {
			stop()
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		cancels = append(cancels, cancel)
	}
	return stop, nil
}

// forward pushes one queue message to the owning tenant's connections.
// Malformed payloads are dropped rather than redelivered.
func (r *Relay) forward(ctx context.Context, subject string, data []byte) error {
	var env struct {
		TenantID string `json:"tenant_id"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Warn("ws relay: dropping malformed event", "subject", subject, "error", err)
		return nil
	}

	r.hub.BroadcastToTenant(ctx, env.TenantID, Message{
		Type:    subject,
		Payload: json.RawMessage(data),
	})
	return nil
}
