package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"reelsmith/internal/services"
)

func TestExponentialDelaySequence(t *testing.T) {
	policy := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		Multiplier:  2,
		Strategy:    StrategyExponential,
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, expected := range want {
		if got := policy.Delay(i + 1); got != expected {
			t.Fatalf("Delay(%d) = %v, want %v", i+1, got, expected)
		}
	}
}

func TestDelayCappedAtMax(t *testing.T) {
	policy := Policy{
		MaxAttempts: 20,
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		Multiplier:  2,
		Strategy:    StrategyExponential,
	}
	if got := policy.Delay(10); got != 60*time.Second {
		t.Fatalf("Delay(10) = %v, want cap of 60s", got)
	}
}

func TestLinearAndFixedDelays(t *testing.T) {
	policy := Policy{BaseDelay: 500 * time.Millisecond, MaxDelay: time.Minute, Strategy: StrategyLinear}
	if got := policy.Delay(3); got != 1500*time.Millisecond {
		t.Fatalf("linear Delay(3) = %v", got)
	}

	policy.Strategy = StrategyFixed
	if got := policy.Delay(7); got != 500*time.Millisecond {
		t.Fatalf("fixed Delay(7) = %v", got)
	}
}

func TestJitterStaysWithinBounds(t *testing.T) {
	policy := Policy{
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
		Multiplier: 2,
		Strategy:   StrategyFixed,
		Jitter:     true,
	}

	policy.randFloat = func() float64 { return 0 }
	if got := policy.Delay(1); got != 800*time.Millisecond {
		t.Fatalf("jitter floor = %v, want 800ms", got)
	}

	policy.randFloat = func() float64 { return 1 }
	if got := policy.Delay(1); got != 1200*time.Millisecond {
		t.Fatalf("jitter ceiling = %v, want 1200ms", got)
	}
}

func TestShouldRetryRespectsBudgetAndClassification(t *testing.T) {
	policy := Policy{MaxAttempts: 3}

	transient := services.Wrap(services.ErrTransient, "render", "draw", "", nil)
	if !policy.ShouldRetry(transient, 1) {
		t.Fatal("transient error within budget should retry")
	}
	if policy.ShouldRetry(transient, 3) {
		t.Fatal("attempt budget exhausted, should not retry")
	}

	critical := services.Wrap(services.ErrCritical, "publish", "move", "", nil)
	if policy.ShouldRetry(critical, 1) {
		t.Fatal("critical errors must never retry")
	}

	validation := services.Wrap(services.ErrValidation, "ingest", "check", "", nil)
	if policy.ShouldRetry(validation, 1) {
		t.Fatal("validation errors must never retry")
	}
}

func TestParseStrategy(t *testing.T) {
	for input, want := range map[string]Strategy{
		"fixed":        StrategyFixed,
		" LINEAR ":     StrategyLinear,
		"exponential":  StrategyExponential,
		"":             StrategyExponential,
	} {
		got, err := ParseStrategy(input)
		if err != nil || got != want {
			t.Fatalf("ParseStrategy(%q) = %v, %v", input, got, err)
		}
	}
	if _, err := ParseStrategy("quadratic"); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestWaitReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Wait(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait = %v, want context.Canceled", err)
	}
	if err := Wait(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Wait short delay = %v", err)
	}
}
