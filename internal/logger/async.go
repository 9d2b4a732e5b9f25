package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// queuedRecord pairs a record with the handler it was enqueued through, so
// attributes added via WithAttrs or WithGroup survive the async hop.
type queuedRecord struct {
	dst slog.Handler
	rec slog.Record
}

// asyncCore is the fan-in state shared by every derivation of an
// AsyncHandler: one buffered channel drained by a fixed worker pool.
type asyncCore struct {
	ch      chan queuedRecord
	wg      sync.WaitGroup
	dropped atomic.Int64
}

func (c *asyncCore) drain() {
	defer c.wg.Done()
	for q := range c.ch {
		_ = q.dst.Handle(context.Background(), q.rec)
	}
}

// AsyncHandler decouples log emission from log writing. Handle enqueues and
// returns immediately; when the buffer is full the record is dropped and
// counted instead of blocking the request path.
type AsyncHandler struct {
	inner slog.Handler
	core  *asyncCore
}

// NewAsyncHandler starts workers goroutines draining a buffer of bufSize
// records into inner.
func NewAsyncHandler(inner slog.Handler, bufSize, workers int) *AsyncHandler {
	core := &asyncCore{ch: make(chan queuedRecord, bufSize)}
	for range workers {
		core.wg.Add(1)
		go core.drain()
	}
	return &AsyncHandler{inner: inner, core: core}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record for background writing, never blocking.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface passes records by value
	select {
	case h.core.ch <- queuedRecord{dst: h.inner, rec: rec}:
	default:
		h.core.dropped.Add(1)
	}
	return nil
}

// WithAttrs derives a handler feeding the same worker pool.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), core: h.core}
}

// WithGroup derives a handler feeding the same worker pool.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), core: h.core}
}

// DroppedCount reports how many records were discarded due to a full buffer.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.core.dropped.Load()
}

// Close stops accepting records and waits for the workers to flush the
// buffer. Only the handler that owns the worker pool should call it.
func (h *AsyncHandler) Close() {
	close(h.core.ch)
	h.core.wg.Wait()
}
