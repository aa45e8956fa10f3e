package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/failsafe/resilience"
)

func ExampleCircuitBreaker() {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "payments",
		FailureThreshold: 2,
		RecoveryTimeout:  time.Second,
	})

	ctx := context.Background()
	fail := func(ctx context.Context) error { return errors.New("connection refused") }

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)

	err := cb.Execute(ctx, func(ctx context.Context) error { return nil })
	fmt.Println(errors.Is(err, resilience.ErrCircuitOpen))
	fmt.Println(cb.State())
	// Output:
	// true
	// failing
}

func ExampleRetry() {
	r := resilience.NewRetry(resilience.RetryConfig{
		Name:     "flaky",
		Attempts: 3,
		Delay:    time.Millisecond,
	})

	calls := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	fmt.Println(err, calls)
	// Output: <nil> 2
}

func ExampleExecutor() {
	executor := resilience.NewExecutor(
		resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
			Name:          "orders",
			MaxConcurrent: 4,
			MaxQueued:     8,
		})),
		resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: "orders",
		})),
		resilience.WithTimeout(time.Second),
	)

	err := executor.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	fmt.Println(err)
	// Output: <nil>
}

func ExampleFeatureToggle_executeWith() {
	ft := resilience.NewFeatureToggle(resilience.FeatureToggleConfig{Name: "new-pricing"})
	ft.Disable()

	_ = ft.ExecuteWith(context.Background(),
		func(ctx context.Context) error {
			fmt.Println("new pricing")
			return nil
		},
		func(ctx context.Context) error {
			fmt.Println("legacy pricing")
			return nil
		},
	)
	// Output: legacy pricing
}
