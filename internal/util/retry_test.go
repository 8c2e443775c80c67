package util

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialInterval: time.Millisecond, BackoffCoefficient: 2, MaxInterval: 5 * time.Millisecond}
}

func TestRetry_ImmediateSuccess(t *testing.T) {
	calls := 0
	out, err := Retry(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		calls++
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, out)
	assert.Equal(t, 1, calls)
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	calls := 0
	out, err := Retry(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", ErrRateLimited
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		calls++
		return 0, Transient(errors.New("timeout"))
	})
	require.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, 3, calls)
}

func TestRetry_ConfigErrorNotRetried(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(5), func(context.Context) (int, error) {
		calls++
		return 0, ErrDimensionMismatch
	})
	require.ErrorIs(t, err, ErrConfig)
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialInterval: 500 * time.Millisecond, BackoffCoefficient: 2}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := Retry(ctx, p, func(context.Context) (int, error) {
		return 0, ErrRateLimited
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{InitialInterval: time.Second, BackoffCoefficient: 2, MaxInterval: 3 * time.Second}
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 3*time.Second, p.Delay(3))
}
