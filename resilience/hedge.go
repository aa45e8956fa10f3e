package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/failsafe/clock"
	"github.com/jonwraymond/failsafe/events"
	"github.com/jonwraymond/failsafe/registry"
)

// KindHedge is the registry kind of hedge racers.
const KindHedge = "hedge"

// HedgeConfig configures the hedge racer.
type HedgeConfig struct {
	// Name identifies the racer in the registry and on the event bus.
	Name string

	// Attempts is the maximum number of staggered copies.
	// Default: 2
	Attempts int

	// Delay is the stagger between launches. Zero launches every copy at
	// once; a negative value is replaced by 1 second.
	Delay time.Duration

	// Timeout is the total wall budget for all attempts.
	// Default: 10 seconds
	Timeout time.Duration

	// Clock overrides the time source. Default: system clock.
	Clock clock.Clock

	// Bus receives metric events. Optional.
	Bus *events.Bus
}

// Hedge launches staggered parallel copies of an operation and returns the
// first success, cancelling the rest. Intended for idempotent reads.
type Hedge struct {
	registry.Toggle

	clk clock.Clock
	bus *events.Bus

	mu     sync.Mutex
	config HedgeConfig
}

// NewHedge creates a new hedge racer.
func NewHedge(config HedgeConfig) *Hedge {
	if config.Name == "" {
		config.Name = "hedge"
	}
	if config.Attempts < 2 {
		config.Attempts = 2
	}
	if config.Delay < 0 {
		config.Delay = time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Clock == nil {
		config.Clock = clock.System()
	}

	return &Hedge{
		clk:    config.Clock,
		bus:    config.Bus,
		config: config,
	}
}

// Execute races up to Attempts staggered copies of op. The first success
// wins and all in-flight siblings are cancelled. When every attempt fails
// the last error surfaces. When the total budget elapses without a success,
// the last error surfaces if any attempt has failed, and ErrHedgeTimeout
// otherwise.
func (h *Hedge) Execute(ctx context.Context, op func(context.Context) error) error {
	if !h.Enabled() {
		return op(ctx)
	}

	h.mu.Lock()
	cfg := h.config
	h.mu.Unlock()

	hctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan error, cfg.Attempts)
	launch := func() {
		go func() {
			results <- op(hctx)
		}()
	}

	launch()

	// Stagger ticker: one tick per additional attempt.
	stagger := make(chan struct{})
	go func() {
		defer close(stagger)
		for i := 1; i < cfg.Attempts; i++ {
			if h.clk.Sleep(hctx, cfg.Delay) != nil {
				return
			}
			select {
			case stagger <- struct{}{}:
			case <-hctx.Done():
				return
			}
		}
	}()

	budget := make(chan struct{})
	go func() {
		if h.clk.Sleep(hctx, cfg.Timeout) == nil {
			close(budget)
		}
	}()

	staggerC := stagger
	var lastErr error
	finished := 0

	for {
		select {
		case err := <-results:
			finished++
			if err == nil {
				return nil
			}
			lastErr = err
			if finished == cfg.Attempts {
				return lastErr
			}

		case _, ok := <-staggerC:
			if !ok {
				staggerC = nil
				continue
			}
			launch()
			h.bus.Emit(KindHedge, cfg.Name, "hedged")

		case <-budget:
			h.bus.Emit(KindHedge, cfg.Name, "timed_out")
			if lastErr != nil {
				return lastErr
			}
			return ErrHedgeTimeout

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Kind returns "hedge".
func (h *Hedge) Kind() string { return KindHedge }

// Name returns the racer name.
func (h *Hedge) Name() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.config.Name
}

// Config returns a snapshot of the hedge configuration.
func (h *Hedge) Config() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()

	return map[string]any{
		"enabled":  h.Enabled(),
		"attempts": h.config.Attempts,
		"delay":    h.config.Delay.Seconds(),
		"timeout":  h.config.Timeout.Seconds(),
	}
}

// UpdateConfig applies whitelisted fields: attempts and delay (seconds).
func (h *Hedge) UpdateConfig(fields map[string]any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for k, v := range fields {
		switch k {
		case "attempts":
			n, ok := registry.AsInt(v)
			if !ok || n < 2 {
				return fmt.Errorf("resilience: invalid attempts %v", v)
			}
			h.config.Attempts = n
		case "delay":
			f, ok := registry.AsFloat(v)
			if !ok || f < 0 {
				return fmt.Errorf("resilience: invalid delay %v", v)
			}
			h.config.Delay = time.Duration(f * float64(time.Second))
		default:
			return fmt.Errorf("%w: %s", registry.ErrFieldNotAllowed, k)
		}
	}
	return nil
}

// Ensure Hedge implements registry.Pattern
var _ registry.Pattern = (*Hedge)(nil)
