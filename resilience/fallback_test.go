package resilience

import (
	"context"
	"errors"
	"testing"
)

func TestFallback_InvokedOnFailure(t *testing.T) {
	var caught error
	f := NewFallback(FallbackConfig{
		Name: "orders",
		Handler: func(ctx context.Context, err error) error {
			caught = err
			return nil
		},
	})

	err := f.Execute(context.Background(), failingOp)

	if err != nil {
		t.Errorf("Execute() error = %v, want nil from fallback", err)
	}
	if caught != errBoom {
		t.Errorf("fallback received %v, want errBoom", caught)
	}
}

func TestFallback_SkippedOnSuccess(t *testing.T) {
	invoked := false
	f := NewFallback(FallbackConfig{
		Handler: func(ctx context.Context, err error) error {
			invoked = true
			return nil
		},
	})

	if err := f.Execute(context.Background(), successOp); err != nil {
		t.Errorf("Execute() error = %v, want nil", err)
	}
	if invoked {
		t.Error("fallback invoked on success")
	}
}

func TestFallback_HandlerErrorSurfaces(t *testing.T) {
	alternate := errors.New("alternate failed too")
	f := NewFallback(FallbackConfig{
		Handler: func(ctx context.Context, err error) error {
			return alternate
		},
	})

	if err := f.Execute(context.Background(), failingOp); err != alternate {
		t.Errorf("Execute() error = %v, want alternate error", err)
	}
}

func TestFallback_DisabledPropagates(t *testing.T) {
	f := NewFallback(FallbackConfig{
		Handler: func(ctx context.Context, err error) error { return nil },
	})
	f.Disable()

	if err := f.Execute(context.Background(), failingOp); err != errBoom {
		t.Errorf("Execute() error = %v on disabled fallback, want errBoom", err)
	}
}

func TestFeatureToggle_EnabledRuns(t *testing.T) {
	ft := NewFeatureToggle(FeatureToggleConfig{Name: "beta"})

	ran := false
	err := ft.Execute(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Errorf("Execute() = (ran=%v, err=%v), want (true, nil)", ran, err)
	}
}

func TestFeatureToggle_DisabledDenies(t *testing.T) {
	ft := NewFeatureToggle(FeatureToggleConfig{Name: "beta"})
	ft.Disable()

	err := ft.Execute(context.Background(), successOp)
	if !errors.Is(err, ErrFeatureDisabled) {
		t.Errorf("Execute() error = %v, want ErrFeatureDisabled", err)
	}
}

func TestFeatureToggle_InitialStateOff(t *testing.T) {
	off := false
	ft := NewFeatureToggle(FeatureToggleConfig{Name: "beta", Enabled: &off})

	if ft.Enabled() {
		t.Error("Enabled() = true, want false for initial off state")
	}
}

func TestFeatureToggle_ExecuteWithRoutesToAlternate(t *testing.T) {
	ft := NewFeatureToggle(FeatureToggleConfig{Name: "beta"})
	ft.Disable()

	primary, alternate := false, false
	err := ft.ExecuteWith(context.Background(),
		func(ctx context.Context) error { primary = true; return nil },
		func(ctx context.Context) error { alternate = true; return nil },
	)

	if err != nil {
		t.Errorf("ExecuteWith() error = %v, want nil", err)
	}
	if primary || !alternate {
		t.Errorf("ExecuteWith() ran (primary=%v, alternate=%v), want alternate only", primary, alternate)
	}
}
