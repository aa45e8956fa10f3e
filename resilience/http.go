package resilience

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jonwraymond/failsafe/ratelimit"
)

// StatusForError maps the resilience error taxonomy to HTTP status codes:
// rate limiting to 429, capacity and availability rejections to 503,
// deadline expiries to 504 and disabled features to 403. Unrecognized
// errors map to 500.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ratelimit.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrCircuitOpen),
		errors.Is(err, ErrBulkheadFull),
		errors.Is(err, ErrAttemptsExceeded),
		errors.Is(err, ErrFailFastOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrHedgeTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrFeatureDisabled):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// errorCode returns the wire name for an error kind.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ratelimit.ErrRateLimitExceeded):
		return "rate_limit_exceeded"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_breaker_open"
	case errors.Is(err, ErrBulkheadFull):
		return "bulkhead_full"
	case errors.Is(err, ErrAttemptsExceeded):
		return "attempts_exceeded"
	case errors.Is(err, ErrFailFastOpen):
		return "failfast_open"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrHedgeTimeout):
		return "hedge_timeout"
	case errors.Is(err, ErrFeatureDisabled):
		return "feature_disabled"
	default:
		return "internal_error"
	}
}

// WriteHTTPError renders a guard rejection as the JSON error response the
// protected HTTP surface emits. Rate-limit rejections carry their advice
// headers and retry fields when the error is a *ratelimit.LimitError.
func WriteHTTPError(w http.ResponseWriter, err error) {
	status := StatusForError(err)

	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		for k, v := range limitErr.Headers {
			w.Header().Set(k, v)
		}
		if limitErr.ClientID != "" {
			w.Header().Set("X-Client-Id", limitErr.ClientID)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":               errorCode(err),
			"message":             err.Error(),
			"retry_after_seconds": limitErr.RetryAfter,
			"retry_after_ms":      int64(limitErr.RetryAfter * 1000),
			"client_id":           limitErr.ClientID,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode(err),
		"message": err.Error(),
	})
}
