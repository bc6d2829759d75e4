// Package retry computes backoff schedules for failed stage executions.
//
// A Policy describes how many attempts a stage gets and how long to wait
// between them. The orchestration layer builds the default policy from
// configuration; individual stage handlers may override attempts and delay
// through their handler hooks.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"reelsmith/internal/config"
	"reelsmith/internal/services"
)

// Strategy selects the delay growth curve between attempts.
type Strategy string

const (
	// StrategyFixed waits the base delay between every attempt.
	StrategyFixed Strategy = "fixed"
	// StrategyLinear grows the delay linearly with the attempt number.
	StrategyLinear Strategy = "linear"
	// StrategyExponential multiplies the delay by a constant factor per attempt.
	StrategyExponential Strategy = "exponential"
)

// ParseStrategy converts a configuration string into a Strategy.
func ParseStrategy(value string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(value))) {
	case StrategyFixed:
		return StrategyFixed, nil
	case StrategyLinear:
		return StrategyLinear, nil
	case StrategyExponential, "":
		return StrategyExponential, nil
	default:
		return "", fmt.Errorf("unknown retry strategy %q", value)
	}
}

// Policy describes the retry behaviour applied to a failing stage.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Strategy    Strategy
	Jitter      bool

	// randFloat overrides the jitter source in tests.
	randFloat func() float64
}

// FromConfig builds the default policy from the [retry] config section.
// Invalid strategy strings fall back to exponential; Load validates them
// upstream so the fallback only matters for hand-built configs.
func FromConfig(cfg config.Retry) Policy {
	strategy, err := ParseStrategy(cfg.Strategy)
	if err != nil {
		strategy = StrategyExponential
	}
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay(),
		MaxDelay:    cfg.MaxDelay(),
		Multiplier:  cfg.Multiplier,
		Strategy:    strategy,
		Jitter:      cfg.Jitter,
	}
}

// ShouldRetry reports whether another attempt is permitted after the given
// 1-based attempt failed with err. Errors classified as permanent are never
// retried regardless of the attempt budget.
func (p Policy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	return services.Retryable(err)
}

// Delay returns how long to wait after the given 1-based attempt failed.
// The computed delay is capped at MaxDelay before jitter is applied.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(p.BaseDelay)

	var delay float64
	switch p.Strategy {
	case StrategyFixed:
		delay = base
	case StrategyLinear:
		delay = base * float64(attempt)
	default:
		multiplier := p.Multiplier
		if multiplier <= 1 {
			multiplier = 2
		}
		delay = base * math.Pow(multiplier, float64(attempt-1))
	}

	if limit := float64(p.MaxDelay); limit > 0 && delay > limit {
		delay = limit
	}

	if p.Jitter {
		// Scale by a factor in [0.8, 1.2] to avoid synchronized retries.
		random := rand.Float64
		if p.randFloat != nil {
			random = p.randFloat
		}
		delay *= 0.8 + 0.4*random()
	}

	if delay < 0 {
		delay = base
	}
	return time.Duration(delay)
}

// Wait sleeps for the given delay or returns early when the context ends.
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
