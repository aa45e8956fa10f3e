package resilience

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/jonwraymond/failsafe/events"
	"github.com/jonwraymond/failsafe/registry"
)

// KindBulkhead is the registry kind of bulkheads.
const KindBulkhead = "bulkhead"

// BulkheadConfig configures the bulkhead.
type BulkheadConfig struct {
	// Name identifies the bulkhead in the registry and on the event bus.
	Name string

	// MaxConcurrent is the maximum number of concurrent operations.
	// Default: 10
	MaxConcurrent int

	// MaxQueued is the maximum number of callers allowed to wait for a
	// slot. Callers beyond it fail with ErrBulkheadFull.
	// Default: 0 (no waiting, fail immediately)
	MaxQueued int

	// Bus receives metric events. Optional.
	Bus *events.Bus
}

// Bulkhead limits concurrent operations with a bounded FIFO wait queue.
type Bulkhead struct {
	registry.Toggle

	bus *events.Bus
	sem *semaphore.Weighted

	mu      sync.Mutex
	config  BulkheadConfig
	active  int
	waiting int
}

// NewBulkhead creates a new bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.Name == "" {
		config.Name = "bulkhead"
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	if config.MaxQueued < 0 {
		config.MaxQueued = 0
	}

	return &Bulkhead{
		bus:    config.Bus,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrent)),
		config: config,
	}
}

// Acquire claims a slot, queuing FIFO behind earlier waiters when all slots
// are busy. It returns ErrBulkheadFull when the queue is at capacity, and
// ctx.Err() if the caller is cancelled while queued (the queue entry is
// released atomically).
func (b *Bulkhead) Acquire(ctx context.Context) error {
	// Fast path. The semaphore refuses a non-blocking acquire whenever
	// waiters exist, which keeps admission strictly FIFO.
	if b.sem.TryAcquire(1) {
		b.mu.Lock()
		b.active++
		b.mu.Unlock()
		return nil
	}

	b.mu.Lock()
	if b.waiting >= b.config.MaxQueued {
		b.mu.Unlock()
		b.bus.Emit(KindBulkhead, b.config.Name, "rejected")
		return ErrBulkheadFull
	}
	b.waiting++
	b.mu.Unlock()

	err := b.sem.Acquire(ctx, 1)

	b.mu.Lock()
	b.waiting--
	if err == nil {
		b.active++
	}
	b.mu.Unlock()

	return err
}

// Release frees a slot, waking the head of the wait queue if any.
func (b *Bulkhead) Release() {
	b.mu.Lock()
	if b.active == 0 {
		b.mu.Unlock()
		return
	}
	b.active--
	b.mu.Unlock()

	b.sem.Release(1)
}

// Execute runs the operation within the bulkhead. The slot is released on
// every exit path.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if !b.Enabled() {
		return op(ctx)
	}

	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()

	b.bus.Emit(KindBulkhead, b.config.Name, "acquired")
	return op(ctx)
}

// InFlight returns the number of operations currently holding a slot.
func (b *Bulkhead) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Waiting returns the number of callers queued for a slot.
func (b *Bulkhead) Waiting() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waiting
}

// Kind returns "bulkhead".
func (b *Bulkhead) Kind() string { return KindBulkhead }

// Name returns the bulkhead name.
func (b *Bulkhead) Name() string { return b.config.Name }

// Config returns a snapshot of the bulkhead configuration and occupancy.
func (b *Bulkhead) Config() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	return map[string]any{
		"enabled":        b.Enabled(),
		"max_concurrent": b.config.MaxConcurrent,
		"max_queued":     b.config.MaxQueued,
		"in_flight":      b.active,
		"waiting":        b.waiting,
	}
}

// UpdateConfig rejects all fields: resizing the semaphore in flight cannot
// preserve the FIFO and capacity invariants, so capacity changes require a
// new bulkhead.
func (b *Bulkhead) UpdateConfig(fields map[string]any) error {
	for k := range fields {
		return fmt.Errorf("%w: %s", registry.ErrFieldNotAllowed, k)
	}
	return nil
}

// Ensure Bulkhead implements registry.Pattern
var _ registry.Pattern = (*Bulkhead)(nil)
