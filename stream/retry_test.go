package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Backoff
// ---------------------------------------------------------------------------

func TestCalculateBackoff(t *testing.T) {
	config := RetryConfig{
		MaxAttempts:     5,
		InitialBackoff:  100 * time.Millisecond,
		MaxBackoff:      30 * time.Second,
		BackoffMultiple: 2.0,
	}

	tests := []struct {
		name    string
		attempt int
		minWant time.Duration
		maxWant time.Duration
	}{
		{
			name:    "first retry (attempt 0)",
			attempt: 0,
			minWant: 80 * time.Millisecond,
			maxWant: 100 * time.Millisecond,
		},
		{
			name:    "second retry (attempt 1)",
			attempt: 1,
			minWant: 160 * time.Millisecond,
			maxWant: 200 * time.Millisecond,
		},
		{
			name:    "third retry (attempt 2)",
			attempt: 2,
			minWant: 320 * time.Millisecond,
			maxWant: 400 * time.Millisecond,
		},
		{
			name:    "max backoff exceeded",
			attempt: 20,
			minWant: 24 * time.Second, // 80% of max
			maxWant: 30 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backoff := calculateBackoff(tt.attempt, config)
			if backoff < tt.minWant || backoff > tt.maxWant {
				t.Errorf("calculateBackoff(%d) = %v, want between %v and %v",
					tt.attempt, backoff, tt.minWant, tt.maxWant)
			}
		})
	}
}

func TestCalculateBackoff_DifferentMultiple(t *testing.T) {
	config := RetryConfig{
		MaxAttempts:     5,
		InitialBackoff:  100 * time.Millisecond,
		MaxBackoff:      10 * time.Second,
		BackoffMultiple: 3.0,
	}

	ratio := float64(calculateBackoff(1, config)) / float64(calculateBackoff(0, config))
	if ratio < 2.0 || ratio > 4.0 {
		t.Errorf("Expected backoff ratio between 2.0 and 4.0, got %.2f", ratio)
	}
}

// ---------------------------------------------------------------------------
// retryWithBackoff
// ---------------------------------------------------------------------------

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      5 * time.Millisecond,
		BackoffMultiple: 2.0,
	}
}

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetry(), "op", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_GivesUp(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetry(), "op", func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retryWithBackoff(ctx, fastRetry(), "op", func() error {
		calls++
		cancel()
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func BenchmarkCalculateBackoff(b *testing.B) {
	config := DefaultRetryConfig()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = calculateBackoff(i%10, config)
	}
}
