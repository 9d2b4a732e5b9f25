package logger

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// sink collects rendered log lines from any number of sinkHandler clones.
type sink struct {
	mu    sync.Mutex
	lines []string
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

// sinkHandler renders records as "msg attr=val ..." into a shared sink.
// WithAttrs produces a clone carrying its attrs, mirroring how real
// handlers behave.
type sinkHandler struct {
	out   *sink
	attrs string
	delay time.Duration
}

func (h *sinkHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *sinkHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // records arrive by value per the slog.Handler interface
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	line := rec.Message + h.attrs
	rec.Attrs(func(a slog.Attr) bool {
		line += " " + a.String()
		return true
	})
	h.out.mu.Lock()
	h.out.lines = append(h.out.lines, line)
	h.out.mu.Unlock()
	return nil
}

func (h *sinkHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	for _, a := range attrs {
		clone.attrs += " " + a.String()
	}
	return &clone
}

func (h *sinkHandler) WithGroup(string) slog.Handler { return h }

func emit(h slog.Handler, msg string) {
	_ = h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, msg, 0))
}

func TestAsyncHandlerDeliversInBackground(t *testing.T) {
	out := &sink{}
	ah := NewAsyncHandler(&sinkHandler{out: out}, 16, 1)

	emit(ah, "hello")
	ah.Close()

	if got := out.count(); got != 1 {
		t.Fatalf("delivered %d records, want 1", got)
	}
	if out.lines[0] != "hello" {
		t.Errorf("line = %q", out.lines[0])
	}
}

func TestAsyncHandlerKeepsDerivedAttrs(t *testing.T) {
	out := &sink{}
	ah := NewAsyncHandler(&sinkHandler{out: out}, 16, 1)

	lg := slog.New(ah).With("service", "spendsight-core")
	lg.Info("collector started", "interval", "6h")
	ah.Close()

	if got := out.count(); got != 1 {
		t.Fatalf("delivered %d records, want 1", got)
	}
	line := out.lines[0]
	if !strings.Contains(line, "service=spendsight-core") {
		t.Errorf("derived attr lost across the async hop: %q", line)
	}
	if !strings.Contains(line, "interval=6h") {
		t.Errorf("record attr missing: %q", line)
	}
}

func TestAsyncHandlerDropsWhenSaturated(t *testing.T) {
	const flood = 50

	out := &sink{}
	ah := NewAsyncHandler(&sinkHandler{out: out, delay: 10 * time.Millisecond}, 1, 1)

	for range flood {
		emit(ah, "flood")
	}
	ah.Close()

	dropped := ah.DroppedCount()
	if dropped == 0 {
		t.Fatal("a full buffer should drop records, none were dropped")
	}
	if delivered := int64(out.count()); delivered+dropped != flood {
		t.Errorf("delivered %d + dropped %d, want total %d", delivered, dropped, flood)
	}
}

func TestAsyncHandlerCloseFlushesBacklog(t *testing.T) {
	const total = 200

	out := &sink{}
	ah := NewAsyncHandler(&sinkHandler{out: out}, 1000, 2)

	for range total {
		emit(ah, "backlog")
	}
	ah.Close()

	if got := out.count(); got != total {
		t.Fatalf("flushed %d records on close, want %d", got, total)
	}
}

func TestAsyncHandlerParallelProducers(t *testing.T) {
	const producers = 100
	const perProducer = 100

	out := &sink{}
	ah := NewAsyncHandler(&sinkHandler{out: out}, producers*perProducer, 4)

	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perProducer {
				emit(ah, "parallel")
			}
		}()
	}
	wg.Wait()
	ah.Close()

	if got := out.count(); got != producers*perProducer {
		t.Fatalf("delivered %d records, want %d", got, producers*perProducer)
	}
}
