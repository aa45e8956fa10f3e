package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewTimeout_Defaults(t *testing.T) {
	to := NewTimeout(TimeoutConfig{})

	if cfg := to.Config(); cfg["seconds"] != 30.0 {
		t.Errorf("seconds = %v, want 30", cfg["seconds"])
	}
}

func TestTimeout_Success(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: time.Second})

	err := to.Execute(context.Background(), successOp)
	if err != nil {
		t.Errorf("Execute() error = %v, want nil", err)
	}
}

func TestTimeout_Expires(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Name: "slow", Timeout: 10 * time.Millisecond})

	err := to.Execute(context.Background(), func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Execute() error = %v, want ErrTimeout", err)
	}
}

func TestTimeout_OperationSeesDeadline(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: time.Second})

	err := to.Execute(context.Background(), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("operation context has no deadline")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Execute() error = %v, want nil", err)
	}
}

func TestTimeout_PropagatesOperationError(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: time.Second})

	if err := to.Execute(context.Background(), failingOp); err != errBoom {
		t.Errorf("Execute() error = %v, want errBoom", err)
	}
}

func TestTimeout_ParentCancellation(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- to.Execute(ctx, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Execute() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Execute did not return after parent cancellation")
	}
}

func TestTimeout_DisabledPassesThrough(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: time.Nanosecond})
	to.Disable()

	err := to.Execute(context.Background(), func(ctx context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Errorf("Execute() error = %v on disabled timeout, want nil", err)
	}
}

func TestTimeout_UpdateConfig(t *testing.T) {
	to := NewTimeout(TimeoutConfig{})

	if err := to.UpdateConfig(map[string]any{"seconds": 2.5}); err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}
	if cfg := to.Config(); cfg["seconds"] != 2.5 {
		t.Errorf("seconds = %v, want 2.5", cfg["seconds"])
	}

	if err := to.UpdateConfig(map[string]any{"seconds": -1.0}); err == nil {
		t.Error("UpdateConfig(-1) error = nil, want error")
	}
}
