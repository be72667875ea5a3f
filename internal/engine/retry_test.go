package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() *RetryPolicy {
	return &RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryWithBackoff_EventualSuccess(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("Throttling: rate exceeded")
		}
		return nil
	}, IsTransientError)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_NonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		attempts++
		return errors.New("ValidationError: template format error")
	}, IsTransientError)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_ExhaustsRetries(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		attempts++
		return errors.New("service unavailable")
	}, IsTransientError)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries")
	assert.Equal(t, 4, attempts) // initial try + 3 retries
}

func TestRetryWithBackoff_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, fastPolicy(), func() error {
		return errors.New("timeout")
	}, IsTransientError)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
}

func TestIsTransientError_APICodes(t *testing.T) {
	assert.True(t, IsTransientError(&smithy.GenericAPIError{Code: "Throttling", Message: "Rate exceeded"}))
	assert.True(t, IsTransientError(&smithy.GenericAPIError{Code: "RequestLimitExceeded"}))
	assert.False(t, IsTransientError(&smithy.GenericAPIError{Code: "ValidationError", Message: "bad template"}))
}

func TestIsTransientError_MessagePatterns(t *testing.T) {
	assert.True(t, IsTransientError(errors.New("read tcp: connection reset by peer")))
	assert.True(t, IsTransientError(errors.New("dial tcp: i/o timeout")))
	assert.False(t, IsTransientError(errors.New("stack does not exist")))
	assert.False(t, IsTransientError(nil))
}
