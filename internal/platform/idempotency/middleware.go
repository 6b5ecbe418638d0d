package idempotency

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mealbridge/api/internal/platform/auth"
	"github.com/mealbridge/api/internal/platform/httpx"
)

const (
	headerKey    = "Idempotency-Key"
	headerReplay = "X-Idempotent-Replay"

	maxCapturedBody = 256 * 1024
)

type middlewareConfig struct {
	ttl    time.Duration
	clock  func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)
}

// MiddlewareOption customises middleware behaviour.
type MiddlewareOption func(*middlewareConfig)

// WithTTL configures how long completed records are retained.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// WithLogger injects a logger for store failures.
func WithLogger(logger func(ctx context.Context, event string, fields map[string]any)) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// Middleware enforces idempotency on the mutating requests it wraps. Requests
// without an Idempotency-Key header are rejected; replays of a completed key
// get the stored response with the replay header set.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	cfg := middlewareConfig{
		ttl:    DefaultTTL,
		clock:  time.Now,
		logger: func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			key := strings.TrimSpace(r.Header.Get(headerKey))
			if key == "" {
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", "Idempotency-Key header is required", http.StatusBadRequest))
				return
			}

			body, err := bufferBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}

			userID := ""
			if principal, ok := auth.PrincipalFrom(ctx); ok {
				userID = principal.UserID
			}
			scoped := key + "|" + userID
			fingerprint := fingerprintOf(r.Method, r.URL.Path, userID, body)
			now := cfg.clock().UTC()

			reservation, err := store.Reserve(ctx, scoped, fingerprint, now, cfg.ttl)
			if err != nil {
				if err == ErrFingerprintMismatch {
					httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key was already used for a different request", http.StatusConflict))
					return
				}
				cfg.logger(ctx, "idempotency.reserve.failed", map[string]any{"error": err.Error()})
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to process idempotency key", http.StatusInternalServerError))
				return
			}

			switch reservation.State {
			case ReservationCompleted:
				replayResponse(w, reservation.Record)
				return
			case ReservationInFlight:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request with this idempotency key is in progress", http.StatusConflict))
				return
			}

			recorder := &captureWriter{header: make(http.Header)}
			next.ServeHTTP(recorder, r)

			err = store.Complete(ctx, scoped, fingerprint, recorder.status(), sanitizeContentType(recorder.header), recorder.body.Bytes(), cfg.clock().UTC(), cfg.ttl)
			if err != nil {
				cfg.logger(ctx, "idempotency.complete.failed", map[string]any{"error": err.Error()})
				if releaseErr := store.Release(ctx, scoped); releaseErr != nil {
					cfg.logger(ctx, "idempotency.release.failed", map[string]any{"error": releaseErr.Error()})
				}
			}
			recorder.flush(w)
		})
	}
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxCapturedBody))
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func replayResponse(w http.ResponseWriter, record Record) {
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(headerReplay, "true")

	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(record.ResponseBody) > 0 {
		_, _ = w.Write(record.ResponseBody)
	}
}

// captureWriter buffers the handler's response so it can be stored before it
// is sent to the client.
type captureWriter struct {
	header     http.Header
	statusCode int
	body       bytes.Buffer
}

func (c *captureWriter) Header() http.Header { return c.header }

func (c *captureWriter) WriteHeader(status int) {
	if c.statusCode == 0 && status > 0 {
		c.statusCode = status
	}
}

func (c *captureWriter) Write(data []byte) (int, error) {
	if c.statusCode == 0 {
		c.statusCode = http.StatusOK
	}
	return c.body.Write(data)
}

func (c *captureWriter) status() int {
	if c.statusCode == 0 {
		return http.StatusOK
	}
	return c.statusCode
}

func (c *captureWriter) flush(w http.ResponseWriter) {
	dst := w.Header()
	for name, values := range c.header {
		for _, value := range values {
			dst.Add(name, value)
		}
	}
	w.WriteHeader(c.status())
	if c.body.Len() > 0 {
		_, _ = w.Write(c.body.Bytes())
	}
}
