package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLoc = Locator{Bucket: "uploads", Key: "pending/sale_item/a.jpg"}

func TestCheckerAssess(t *testing.T) {
	c := NewChecker(Static{Result: Result{Adult: VeryLikely}}, DefaultPolicy())

	v, err := c.Assess(context.Background(), testLoc)
	require.NoError(t, err)
	assert.True(t, v.Unsafe)
	assert.Equal(t, []Category{CategoryAdult}, v.Triggered)
}

func TestCheckerWrapsErrors(t *testing.T) {
	c := NewChecker(ClassifierFunc(func(context.Context, Locator) (Result, error) {
		return Result{}, errors.New("quota exceeded")
	}), DefaultPolicy())

	_, err := c.Assess(context.Background(), testLoc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func noSleep(calls *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*calls = append(*calls, d)
		return nil
	}
}

func TestRetryingRecovers(t *testing.T) {
	attempts := 0
	flaky := ClassifierFunc(func(context.Context, Locator) (Result, error) {
		attempts++
		if attempts < 3 {
			return Result{}, errors.New("transient")
		}
		return Result{Adult: Unlikely}, nil
	})

	var slept []time.Duration
	r := WithRetry(flaky, RetryConfig{MaxRetries: 2, InitialDelay: 100 * time.Millisecond, Multiplier: 2})
	r.sleep = noSleep(&slept)

	result, err := r.Classify(context.Background(), testLoc)
	require.NoError(t, err)
	assert.Equal(t, Unlikely, result.Adult)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, slept)
}

func TestRetryingGivesUp(t *testing.T) {
	attempts := 0
	broken := ClassifierFunc(func(context.Context, Locator) (Result, error) {
		attempts++
		return Result{}, errors.New("down")
	})

	var slept []time.Duration
	r := WithRetry(broken, RetryConfig{MaxRetries: 1})
	r.sleep = noSleep(&slept)

	_, err := r.Classify(context.Background(), testLoc)
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Len(t, slept, 1)
}

func TestRetryingStopsOnContextError(t *testing.T) {
	attempts := 0
	c := ClassifierFunc(func(context.Context, Locator) (Result, error) {
		attempts++
		return Result{}, context.DeadlineExceeded
	})

	var slept []time.Duration
	r := WithRetry(c, RetryConfig{MaxRetries: 5})
	r.sleep = noSleep(&slept)

	_, err := r.Classify(context.Background(), testLoc)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, slept)
}

func TestRetryDelayCapped(t *testing.T) {
	r := WithRetry(Static{}, RetryConfig{MaxRetries: 10, InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2})
	assert.Equal(t, time.Second, r.delay(0))
	assert.Equal(t, 2*time.Second, r.delay(1))
	assert.Equal(t, 3*time.Second, r.delay(5))
}
