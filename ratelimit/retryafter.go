package ratelimit

import (
	"fmt"
	"math/rand/v2"
)

// Strategy selects how Retry-After is calculated on rejection.
type Strategy string

const (
	// StrategyBackpressure combines the time to the next token with a
	// latency-driven penalty and jitter. Default.
	StrategyBackpressure Strategy = "backpressure"

	// StrategyFixed waits exactly until the next full token.
	StrategyFixed Strategy = "fixed"

	// StrategyUtilization scales the wait with how empty the bucket is,
	// slowing clients down before the bucket is fully depleted.
	StrategyUtilization Strategy = "utilization"

	// StrategyJittered is fixed plus uniform random jitter to spread
	// retries out.
	StrategyJittered Strategy = "jittered"

	// StrategyProportional multiplies the fixed wait by a factor that grows
	// linearly from 1 for a full bucket to proportionalMaxMultiplier for an
	// empty one.
	StrategyProportional Strategy = "proportional"
)

// ParseStrategy validates a strategy name. The empty string maps to the
// default backpressure strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "":
		return StrategyBackpressure, nil
	case StrategyBackpressure, StrategyFixed, StrategyUtilization, StrategyJittered, StrategyProportional:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("ratelimit: unknown retry-after strategy %q", s)
	}
}

// retryAfterInput is the bucket state a strategy computes from.
type retryAfterInput struct {
	tokens     float64 // current tokens in the limiting bucket
	bucketSize float64
	refillRate float64 // tokens per second
	score      float64 // current backpressure 0..1
}

// jitterRangeSecs is the spread of the jittered strategy.
const jitterRangeSecs = 1.0

// proportionalMaxMultiplier is the empty-bucket multiplier of the
// proportional strategy.
const proportionalMaxMultiplier = 3.0

// retryAfter returns the advised wait in seconds for the given strategy.
func retryAfter(strategy Strategy, bp BackpressureConfig, in retryAfterInput) float64 {
	base := (1 - in.tokens) / in.refillRate

	switch strategy {
	case StrategyFixed:
		return base

	case StrategyUtilization:
		fill := 0.0
		if in.bucketSize > 0 {
			fill = in.tokens / in.bucketSize
		}
		return bp.MinRetryDelay + bp.MaxRetryPenalty*(1-fill)

	case StrategyJittered:
		return base + rand.Float64()*jitterRangeSecs

	case StrategyProportional:
		fill := 0.0
		if in.bucketSize > 0 {
			fill = in.tokens / in.bucketSize
		}
		return base * (1 + (1-fill)*(proportionalMaxMultiplier-1))

	default: // StrategyBackpressure
		penalty := bp.MaxRetryPenalty * in.score
		jitter := 0.8 + rand.Float64()*0.4
		return max(bp.MinRetryDelay, base+penalty) * jitter
	}
}
