package resilience

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonwraymond/failsafe/ratelimit"
)

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ratelimit.ErrRateLimitExceeded, http.StatusTooManyRequests},
		{&ratelimit.LimitError{RetryAfter: 1}, http.StatusTooManyRequests},
		{ErrCircuitOpen, http.StatusServiceUnavailable},
		{ErrBulkheadFull, http.StatusServiceUnavailable},
		{ErrFailFastOpen, http.StatusServiceUnavailable},
		{&AttemptsExceededError{Attempts: 3, Err: errBoom}, http.StatusServiceUnavailable},
		{ErrTimeout, http.StatusGatewayTimeout},
		{ErrHedgeTimeout, http.StatusGatewayTimeout},
		{ErrFeatureDisabled, http.StatusForbidden},
		{errBoom, http.StatusInternalServerError},
	}

	for _, c := range cases {
		if got := StatusForError(c.err); got != c.want {
			t.Errorf("StatusForError(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestWriteHTTPError_Plain(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteHTTPError(rec, ErrCircuitOpen)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "circuit_breaker_open" {
		t.Errorf("error = %q, want circuit_breaker_open", body["error"])
	}
	if body["message"] == "" {
		t.Error("message is empty")
	}
}

func TestWriteHTTPError_RateLimit(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteHTTPError(rec, &ratelimit.LimitError{
		RetryAfter:   1.5,
		Backpressure: 0.7,
		ClientID:     "tenant-1",
		Headers: map[string]string{
			"Retry-After":                "2",
			"X-RateLimit-Retry-After-Ms": "1500",
		},
	})

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want \"2\"", got)
	}
	if got := rec.Header().Get("X-Client-Id"); got != "tenant-1" {
		t.Errorf("X-Client-Id = %q, want \"tenant-1\"", got)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "rate_limit_exceeded" {
		t.Errorf("error = %v, want rate_limit_exceeded", body["error"])
	}
	if body["retry_after_seconds"] != 1.5 {
		t.Errorf("retry_after_seconds = %v, want 1.5", body["retry_after_seconds"])
	}
	if body["retry_after_ms"] != 1500.0 {
		t.Errorf("retry_after_ms = %v, want 1500", body["retry_after_ms"])
	}
	if body["client_id"] != "tenant-1" {
		t.Errorf("client_id = %v, want tenant-1", body["client_id"])
	}
}
