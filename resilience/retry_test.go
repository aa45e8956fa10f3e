package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/failsafe/registry"
)

func TestNewRetry_Defaults(t *testing.T) {
	r := NewRetry(RetryConfig{})

	cfg := r.Config()
	if cfg["attempts"] != 3 {
		t.Errorf("attempts = %v, want 3", cfg["attempts"])
	}
	if cfg["backoff"] != 2.0 {
		t.Errorf("backoff = %v, want 2.0", cfg["backoff"])
	}
	if cfg["delay"] != 0.1 {
		t.Errorf("delay = %v, want 0.1", cfg["delay"])
	}
}

// Literal scenario: fails twice then succeeds within the attempt budget.
func TestRetry_EventualSuccess(t *testing.T) {
	r := NewRetry(RetryConfig{
		Name:     "op",
		Attempts: 3,
		Delay:    10 * time.Millisecond,
		Backoff:  2,
	})

	calls := 0
	start := time.Now()
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Execute() error = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	// Full-jitter bounds: [5, 15]ms + [10, 30]ms.
	if elapsed < 15*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 15ms (jitter floor)", elapsed)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("elapsed = %v, want well under 500ms", elapsed)
	}
}

func TestRetry_AttemptsExceeded(t *testing.T) {
	r := NewRetry(RetryConfig{
		Attempts: 3,
		Delay:    time.Millisecond,
	})

	calls := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errBoom
	})

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("Execute() error = %v, want ErrAttemptsExceeded", err)
	}
	if !errors.Is(err, errBoom) {
		t.Error("Execute() error does not wrap the final cause")
	}

	var exceeded *AttemptsExceededError
	if !errors.As(err, &exceeded) {
		t.Fatal("Execute() error is not *AttemptsExceededError")
	}
	if exceeded.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", exceeded.Attempts)
	}
}

func TestRetry_NonRetryableSurfacesImmediately(t *testing.T) {
	fatal := errors.New("fatal")
	r := NewRetry(RetryConfig{
		Attempts: 5,
		Delay:    time.Millisecond,
		RetryIf: func(err error) bool {
			return !errors.Is(err, fatal)
		},
	})

	calls := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return fatal
	})

	if err != fatal {
		t.Errorf("Execute() error = %v, want the fatal error unwrapped", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_ContextCancelDuringBackoff(t *testing.T) {
	r := NewRetry(RetryConfig{
		Attempts: 3,
		Delay:    10 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- r.Execute(ctx, func(ctx context.Context) error {
			calls++
			return errBoom
		})
	}()

	waitFor(t, func() bool { return calls == 1 }, "first attempt never ran")
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Execute() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Execute did not abort backoff on cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no attempt after cancel)", calls)
	}
}

func TestRetry_OnRetryCallback(t *testing.T) {
	var attempts []int
	r := NewRetry(RetryConfig{
		Attempts: 3,
		Delay:    time.Millisecond,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			attempts = append(attempts, attempt)
		},
	})

	_ = r.Execute(context.Background(), failingOp)

	if len(attempts) != 2 {
		t.Fatalf("OnRetry calls = %d, want 2", len(attempts))
	}
	if attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", attempts)
	}
}

func TestBackoffDelay_Bounds(t *testing.T) {
	cfg := RetryConfig{
		Delay:    100 * time.Millisecond,
		Backoff:  2,
		MaxDelay: 150 * time.Millisecond,
	}

	for attempt := 1; attempt <= 5; attempt++ {
		for i := 0; i < 50; i++ {
			d := backoffDelay(cfg, attempt)
			// Base is capped at MaxDelay, jitter at 1.5x.
			if d > 225*time.Millisecond {
				t.Fatalf("backoffDelay(attempt=%d) = %v, want <= 225ms", attempt, d)
			}
			if d < 25*time.Millisecond {
				t.Fatalf("backoffDelay(attempt=%d) = %v, want >= 25ms", attempt, d)
			}
		}
	}
}

func TestRetry_DisabledPassesThrough(t *testing.T) {
	r := NewRetry(RetryConfig{Attempts: 5, Delay: time.Millisecond})
	r.Disable()

	calls := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errBoom
	})

	if err != errBoom {
		t.Errorf("Execute() error = %v, want errBoom unwrapped", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry when disabled)", calls)
	}
}

func TestRetry_UpdateConfig(t *testing.T) {
	r := NewRetry(RetryConfig{})

	err := r.UpdateConfig(map[string]any{
		"attempts":  5.0,
		"delay":     0.2,
		"backoff":   3.0,
		"max_delay": 10.0,
	})
	if err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}

	cfg := r.Config()
	if cfg["attempts"] != 5 {
		t.Errorf("attempts = %v, want 5", cfg["attempts"])
	}
	if cfg["delay"] != 0.2 {
		t.Errorf("delay = %v, want 0.2", cfg["delay"])
	}

	if err := r.UpdateConfig(map[string]any{"jitter": true}); !errors.Is(err, registry.ErrFieldNotAllowed) {
		t.Errorf("UpdateConfig(jitter) error = %v, want ErrFieldNotAllowed", err)
	}
}
