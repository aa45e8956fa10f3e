// Package ratelimit implements an adaptive token-bucket rate limiter.
//
// The bucket refills lazily at max_executions/per_time_secs tokens per
// second up to a burst capacity, and can track an independent sub-bucket
// per client id (LRU-capped). On rejection, a pluggable strategy computes
// the Retry-After advice; the backpressure strategy derives it from recent
// operation latencies so clients slow down before the service saturates.
//
// # Backpressure
//
// Completed-operation latencies feed a sliding window. The stress score in
// [0, 1] is the worse of two signals:
//
//   - the fraction of recent samples over the adaptive P95 baseline
//   - the mean latency's excess over the intrinsic minimum (queue gradient)
//
// The score is exported on X-Backpressure so cooperating clients (see
// package client) can regulate their own call rate before hitting 429s.
//
// # Usage
//
//	bucket := ratelimit.New(ratelimit.Config{
//	    Name:          "orders",
//	    MaxExecutions: 100,
//	    PerTimeSecs:   1,
//	    Strategy:      ratelimit.StrategyBackpressure,
//	})
//
//	mux.Handle("/orders", ratelimit.Middleware(ratelimit.MiddlewareConfig{
//	    Bucket: bucket,
//	})(ordersHandler))
package ratelimit
