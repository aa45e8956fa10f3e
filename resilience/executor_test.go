package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/failsafe/clock"
	"github.com/jonwraymond/failsafe/ratelimit"
)

func TestExecutor_Empty(t *testing.T) {
	e := NewExecutor()

	if err := e.Execute(context.Background(), successOp); err != nil {
		t.Errorf("Execute() error = %v, want nil", err)
	}
}

func TestExecutor_RateLimiterOutermost(t *testing.T) {
	fc := clock.NewFake()
	tb := ratelimit.New(ratelimit.Config{
		Name:          "api",
		MaxExecutions: 1,
		PerTimeSecs:   1,
		BucketSize:    1,
		Strategy:      ratelimit.StrategyFixed,
		Clock:         fc,
	})
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 5})

	e := NewExecutor(
		WithRateLimiter(tb),
		WithCircuitBreaker(cb),
	)

	if err := e.Execute(context.Background(), successOp); err != nil {
		t.Fatalf("first Execute() error = %v, want nil", err)
	}

	err := e.Execute(context.Background(), successOp)
	if !errors.Is(err, ratelimit.ErrRateLimitExceeded) {
		t.Fatalf("second Execute() error = %v, want ErrRateLimitExceeded", err)
	}
}

func TestExecutor_RetryInsideCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2})
	r := NewRetry(RetryConfig{Attempts: 3, Delay: time.Millisecond})

	e := NewExecutor(
		WithCircuitBreaker(cb),
		WithRetry(r),
	)

	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errBoom
	})

	if !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("Execute() error = %v, want ErrAttemptsExceeded", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (retry inside breaker)", calls)
	}
	// The breaker saw one failure (the exhausted retry), not three.
	if cb.State() != StateWorking {
		t.Errorf("breaker state = %v, want working", cb.State())
	}
}

func TestExecutor_FallbackCatchesInnerRejections(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	cb.RecordFailure() // circuit open

	recovered := false
	fb := NewFallback(FallbackConfig{
		Handler: func(ctx context.Context, err error) error {
			if errors.Is(err, ErrCircuitOpen) {
				recovered = true
				return nil
			}
			return err
		},
	})

	e := NewExecutor(
		WithFallback(fb),
		WithCircuitBreaker(cb),
	)

	if err := e.Execute(context.Background(), successOp); err != nil {
		t.Fatalf("Execute() error = %v, want nil via fallback", err)
	}
	if !recovered {
		t.Error("fallback never saw the circuit-open rejection")
	}
}

func TestExecutor_FeatureToggleDenies(t *testing.T) {
	ft := NewFeatureToggle(FeatureToggleConfig{Name: "beta"})
	ft.Disable()

	e := NewExecutor(WithFeatureToggle(ft))

	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	if !errors.Is(err, ErrFeatureDisabled) {
		t.Errorf("Execute() error = %v, want ErrFeatureDisabled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestExecutor_TimeoutInnermost(t *testing.T) {
	r := NewRetry(RetryConfig{Attempts: 2, Delay: time.Millisecond})

	e := NewExecutor(
		WithRetry(r),
		WithTimeout(5*time.Millisecond),
	)

	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	// Each attempt timed out individually, then retry gave up.
	if !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("Execute() error = %v, want ErrAttemptsExceeded", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestExecutor_ClientIDReachesRateLimiter(t *testing.T) {
	fc := clock.NewFake()
	tb := ratelimit.New(ratelimit.Config{
		Name:              "api",
		MaxExecutions:     100,
		PerTimeSecs:       1,
		PerClientTracking: true,
		Strategy:          ratelimit.StrategyFixed,
		Clock:             fc,
	})

	type ctxKey struct{}
	e := NewExecutor(
		WithRateLimiter(tb),
		WithClientID(func(ctx context.Context) string {
			id, _ := ctx.Value(ctxKey{}).(string)
			return id
		}),
	)

	ctx := context.WithValue(context.Background(), ctxKey{}, "tenant-7")
	if err := e.Execute(ctx, successOp); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if tb.Clients() != 1 {
		t.Errorf("Clients() = %d, want 1 tracked sub-bucket", tb.Clients())
	}
}
