// Package resilience provides composable protection patterns for guarded
// operations.
//
// Each pattern is a named, long-lived object with its own state, exposed as
// a guard around an operation. Guards compose by stacking: the outermost
// guard sees every call; inner guards see only calls that passed outer
// ones.
//
// # Patterns
//
//   - Circuit Breaker: Stops calls to a failing dependency after a run of
//     consecutive failures, probing for recovery after a cooldown.
//
//   - Bulkhead: Limits concurrent operations with a bounded FIFO wait
//     queue to prevent resource exhaustion.
//
//   - Retry: Re-runs failed operations with exponential backoff and full
//     jitter, surfacing AttemptsExceededError when the budget is spent.
//
//   - Timeout: Ensures operations complete within a time limit.
//
//   - Hedge: Launches staggered parallel copies of an idempotent read and
//     returns the first success.
//
//   - Fallback, FailFast, FeatureToggle: alternate-path routing, hard
//     failure budgets and runtime feature gating.
//
// Rate limiting lives in the sibling package ratelimit and composes here
// through the Executor.
//
// # Usage
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	    Name:             "orders-db",
//	    FailureThreshold: 3,
//	    RecoveryTimeout:  time.Second,
//	    HalfOpenRequests: 2,
//	})
//
//	retry := resilience.NewRetry(resilience.RetryConfig{
//	    Name:     "orders-db",
//	    Attempts: 3,
//	    Delay:    100 * time.Millisecond,
//	    Backoff:  2.0,
//	})
//
//	executor := resilience.NewExecutor(
//	    resilience.WithCircuitBreaker(cb),
//	    resilience.WithRetry(retry),
//	    resilience.WithTimeout(5*time.Second),
//	)
//
//	err := executor.Execute(ctx, func(ctx context.Context) error {
//	    return queryOrders(ctx)
//	})
//
// Every pattern implements registry.Pattern, so registering it exposes
// runtime introspection, config updates and enable/disable through the
// control plane (package controlplane).
package resilience
