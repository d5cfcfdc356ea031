package safety

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/salehop/salehop-api/internal/pkg/logger"
)

// RetryConfig configures in-invocation retries of a classifier.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter is a fraction of the delay, e.g. 0.1 for +/-10%.
	Jitter float64
}

// DefaultRetryConfig returns conservative defaults that fit well inside a
// 60 second invocation deadline.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Retrying wraps a classifier with exponential backoff.
type Retrying struct {
	next   Classifier
	config RetryConfig
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps a classifier. A zero MaxRetries disables retrying.
func WithRetry(next Classifier, config RetryConfig) *Retrying {
	if config.InitialDelay == 0 {
		config.InitialDelay = 500 * time.Millisecond
	}
	if config.MaxDelay == 0 {
		config.MaxDelay = 5 * time.Second
	}
	if config.Multiplier == 0 {
		config.Multiplier = 2.0
	}
	return &Retrying{next: next, config: config, sleep: sleepContext}
}

func (r *Retrying) Classify(ctx context.Context, loc Locator) (Result, error) {
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		result, err := r.next.Classify(ctx, loc)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt >= r.config.MaxRetries || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}

		delay := r.delay(attempt)
		logger.FromContext(ctx).Warn().
			Err(err).
			Str("object", loc.String()).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Classifier call failed, retrying")

		if err := r.sleep(ctx, delay); err != nil {
			return Result{}, err
		}
	}
	return Result{}, lastErr
}

func (r *Retrying) delay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt))

	if r.config.Jitter > 0 {
		jitterRange := delay * r.config.Jitter
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
