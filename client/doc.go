// Package client provides an adaptive HTTP client that cooperates with
// server-side rate limiting.
//
// The client reads the rate-limit and backpressure headers the ratelimit
// middleware emits (Retry-After, X-RateLimit-Retry-After-Ms,
// X-Backpressure, RateLimit-Remaining) and regulates its own call rate:
// while the server says to back off, new calls either wait out the window
// (queue strategy) or fail fast with a RateLimitedError (reject strategy).
// With RespectBackpressure set, the client also slows down proactively
// before the server starts rejecting.
//
// # Usage
//
//	c := client.New(client.Config{
//	    BaseURL:    "https://api.example.com",
//	    Strategy:   client.StrategyQueue,
//	    MaxRetries: 2,
//	})
//
//	resp, err := c.Get(ctx, "/products/42")
package client
