package ratelimit

import (
	"encoding/json"
	"math"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MiddlewareConfig configures the ingress rate-limit middleware.
type MiddlewareConfig struct {
	// Bucket is the token bucket guarding the wrapped handler.
	Bucket *TokenBucket

	// ClientID extracts the client identity from a request. The default
	// uses the X-Client-Id header, then the remote IP, then a generated id.
	ClientID func(r *http.Request) string

	// Logger logs rejections. Default: no logging.
	Logger zerolog.Logger
}

// rejectionBody is the JSON payload of a 429 response.
type rejectionBody struct {
	Error             string  `json:"error"`
	Message           string  `json:"message"`
	RetryAfterSeconds float64 `json:"retry_after_seconds"`
	RetryAfterMs      int64   `json:"retry_after_ms"`
	ClientID          string  `json:"client_id"`
}

// Middleware wraps an HTTP handler with the token bucket. Admitted requests
// get the rate-limit headers and have their latency recorded; rejected
// requests get a 429 with Retry-After advice.
func Middleware(config MiddlewareConfig) func(http.Handler) http.Handler {
	clientID := config.ClientID
	if clientID == nil {
		clientID = defaultClientID
	}
	logger := config.Logger
	tb := config.Bucket

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := clientID(r)
			d := tb.TryAcquire(id)

			for k, v := range d.Headers {
				w.Header().Set(k, v)
			}
			w.Header().Set("X-Client-Id", id)

			if !d.Allowed {
				logger.Warn().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("client_id", id).
					Float64("retry_after", d.RetryAfter).
					Float64("backpressure", d.Backpressure).
					Msg("rate limit rejected request")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(rejectionBody{
					Error:             "rate_limit_exceeded",
					Message:           "too many requests, retry later",
					RetryAfterSeconds: d.RetryAfter,
					RetryAfterMs:      int64(math.Round(d.RetryAfter * 1000)),
					ClientID:          id,
				})
				return
			}

			start := tb.clk.Now()
			next.ServeHTTP(w, r)
			tb.RecordLatency(tb.clk.Since(start).Seconds())
		})
	}
}

func defaultClientID(r *http.Request) string {
	if id := r.Header.Get("X-Client-Id"); id != "" {
		return id
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}
