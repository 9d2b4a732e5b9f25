// Package messagequeue defines the event bus port. The NATS adapter is the
// production implementation; tests substitute in-memory stubs.
package messagequeue

import "context"

// Handler consumes one delivered message. The context carries the
// correlation ID recovered from the message headers.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue publishes and consumes domain events.
type Queue interface {
	// Publish sends data to subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe runs handler for every message on subject until the
	// returned cancel function is called.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain finishes in-flight deliveries, then closes the connection.
	Drain() error

	// Close drops the connection without waiting.
	Close() error

	// IsConnected reports whether the broker connection is up.
	IsConnected() bool
}

// Subject constants for the domain events SpendSight emits. Emission is
// best-effort: a publish failure never fails the originating work unit.
const (
	SubjectAnomalyDetected         = "cost.anomaly.detected"
	SubjectCollectionCompleted     = "cost.collection.completed"
	SubjectRecommendationGenerated = "recommendation.generated"
)
