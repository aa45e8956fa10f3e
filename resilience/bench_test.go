package resilience

import (
	"context"
	"testing"

	"github.com/jonwraymond/failsafe/ratelimit"
)

func BenchmarkCircuitBreaker_Execute(b *testing.B) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cb.Execute(ctx, successOp)
	}
}

func BenchmarkBulkhead_Execute(b *testing.B) {
	bh := NewBulkhead(BulkheadConfig{MaxConcurrent: 64})
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = bh.Execute(ctx, successOp)
		}
	})
}

func BenchmarkTokenBucket_TryAcquire(b *testing.B) {
	tb := ratelimit.New(ratelimit.Config{
		Name:          "bench",
		MaxExecutions: 1 << 30,
		PerTimeSecs:   1,
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tb.TryAcquire("")
	}
}

func BenchmarkExecutor_FullStack(b *testing.B) {
	e := NewExecutor(
		WithBulkhead(NewBulkhead(BulkheadConfig{MaxConcurrent: 64})),
		WithCircuitBreaker(NewCircuitBreaker(CircuitBreakerConfig{})),
		WithRetry(NewRetry(RetryConfig{})),
	)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.Execute(ctx, successOp)
	}
}
