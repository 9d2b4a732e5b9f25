package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplay         = "X-Idempotency-Replay"
	maxIdempotencyBody   = 1 << 20
)

// idempotencyEntry is a cached HTTP response.
type idempotencyEntry struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
}

// Idempotency deduplicates mutating requests carrying an Idempotency-Key
// header, replaying the cached response on repeats. Entries live in a
// JetStream KV bucket whose TTL bounds the replay window. Cache keys are
// scoped per tenant so one tenant can never replay another's responses.
func Idempotency(kv jetstream.KeyValue) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			userKey := r.Header.Get(headerIdempotencyKey)
			if userKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := TenantIDFromContext(r.Context()) + "." + userKey

			if replayStored(r.Context(), kv, key, w) {
				return
			}

			rec := &responseRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           &bytes.Buffer{},
			}
			next.ServeHTTP(rec, r)

			storeResponse(r.Context(), kv, key, rec)
		})
	}
}

// replayStored writes the cached response for key if one exists. A corrupt
// entry counts as a miss so the request is served fresh.
func replayStored(ctx context.Context, kv jetstream.KeyValue, key string, w http.ResponseWriter) bool {
	entry, err := kv.Get(ctx, key)
	if err != nil {
		return false
	}

	var cached idempotencyEntry
	if err := json.Unmarshal(entry.Value(), &cached); err != nil {
		slog.Warn("idempotency: corrupt cache entry", "key", key)
		return false
	}

	for k, vals := range cached.Headers {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set(headerReplay, "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
	return true
}

// storeResponse caches the served response best-effort. Oversized bodies
// and invalid keys are simply never cached, so retries fall through to the
// handler again.
func storeResponse(ctx context.Context, kv jetstream.KeyValue, key string, rec *responseRecorder) {
	if rec.body.Len() > maxIdempotencyBody {
		return
	}

	data, err := json.Marshal(idempotencyEntry{
		StatusCode: rec.statusCode,
		Headers:    rec.Header().Clone(),
		Body:       rec.body.Bytes(),
	})
	if err != nil {
		return
	}
	if _, err := kv.Put(ctx, key, data); err != nil {
		slog.Warn("idempotency: failed to store response", "key", key, "error", err)
	}
}

// responseRecorder tees the response so it can be cached after serving.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
