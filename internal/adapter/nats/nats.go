// Package nats implements the message queue port using NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/spendsight/spendsight/internal/config"
	"github.com/spendsight/spendsight/internal/logger"
	"github.com/spendsight/spendsight/internal/port/messagequeue"
)

const (
	headerRequestID  = "Request-Id"
	headerRetryCount = "Retry-Count"

	// maxRetries is how many times a failing handler is retried before the
	// message is moved to the dead-letter subject.
	maxRetries = 3
)

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream string
}

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
func Connect(ctx context.Context, cfg config.NATS) (*Queue, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	// The stream captures cost events and recommendation events, including
	// their .dlq variants.
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{"cost.>", "recommendation.>"},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", cfg.URL, "stream", cfg.Stream)
	return &Queue{nc: nc, js: js, stream: cfg.Stream}, nil
}

// Publish sends a message to the given subject. The request ID from ctx, if
// any, travels in a header so subscribers can correlate their logs.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	if reqID := logger.RequestID(ctx); reqID != "" {
		msg.Header.Set(headerRequestID, reqID)
	}
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject.
// Messages failing schema validation go straight to the dead-letter subject.
// Handler failures are retried up to maxRetries times via republish with an
// incremented Retry-Count header, then dead-lettered.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		q.dispatch(msg, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

func (q *Queue) dispatch(msg jetstream.Msg, handler messagequeue.Handler) {
	subject := msg.Subject()
	data := msg.Data()

	if err := messagequeue.Validate(subject, data); err != nil {
		slog.Error("message failed validation", "subject", subject, "error", err)
		q.moveToDLQ(msg)
		return
	}

	// Messages published outside this process carry no correlation header.
	// Mint an ID in that case so handler logs are still traceable.
	reqID := msg.Headers().Get(headerRequestID)
	if reqID == "" {
		reqID = logger.NewRequestID()
	}
	ctx := logger.WithRequestID(context.Background(), reqID)

	if err := handler(ctx, subject, data); err != nil {
		retries := retryCount(msg.Headers())
		if retries >= maxRetries {
			slog.Error("handler retries exhausted", "subject", subject, "retries", retries, "error", err)
			q.moveToDLQ(msg)
			return
		}
		slog.Warn("message handler failed, requeueing", "subject", subject, "retry", retries+1, "error", err)
		q.requeue(msg, retries+1)
		return
	}

	if err := msg.Ack(); err != nil {
		slog.Error("nats ack failed", "subject", subject, "error", err)
	}
}

// requeue republishes the message with an incremented retry count and acks
// the original. If the republish fails the original is naked so JetStream
// redelivers it.
func (q *Queue) requeue(msg jetstream.Msg, retries int) {
	out := &nats.Msg{Subject: msg.Subject(), Data: msg.Data(), Header: nats.Header{}}
	for k, vals := range msg.Headers() {
		for _, v := range vals {
			out.Header.Add(k, v)
		}
	}
	out.Header.Set(headerRetryCount, strconv.Itoa(retries))

	if _, err := q.js.PublishMsg(context.Background(), out); err != nil {
		slog.Error("nats requeue failed", "subject", msg.Subject(), "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			slog.Error("nats nak failed", "error", nakErr)
		}
		return
	}
	if err := msg.Ack(); err != nil {
		slog.Error("nats ack failed", "subject", msg.Subject(), "error", err)
	}
}

// moveToDLQ publishes the message payload to <subject>.dlq and acks the
// original so it is not redelivered.
func (q *Queue) moveToDLQ(msg jetstream.Msg) {
	dlq := msg.Subject() + ".dlq"
	if _, err := q.js.Publish(context.Background(), dlq, msg.Data()); err != nil {
		slog.Error("nats DLQ publish failed", "subject", dlq, "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			slog.Error("nats nak failed", "error", nakErr)
		}
		return
	}
	if err := msg.Ack(); err != nil {
		slog.Error("nats ack failed", "subject", dlq, "error", err)
	}
}

func retryCount(h nats.Header) int {
	v := h.Get(headerRetryCount)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// KeyValue returns a handle to a JetStream KV bucket, creating it with the
// given TTL if it does not exist. Used for the shared L2 cache tier.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("nats keyvalue %s: %w", bucket, err)
	}
	return kv, nil
}

// Drain processes pending messages on all subscriptions, then closes the
// connection.
func (q *Queue) Drain() error {
	return q.nc.Drain()
}

// Close shuts down the NATS connection immediately.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the underlying NATS connection is up.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}
