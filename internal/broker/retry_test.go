package broker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryNonRetryableFailsImmediately(t *testing.T) {
	attempts := 0
	permanent := errors.New("invalid order quantity")
	err := WithRetry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return permanent
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return errors.New("rate limit exceeded")
	})
	require.Error(t, err)
	assert.Equal(t, 4, attempts) // initial + 3 retries
	assert.Contains(t, err.Error(), "after 4 attempts")
}

func TestWithRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, fastRetryConfig(), func() error {
		return errors.New("timeout")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"timeout", errors.New("request timeout"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"too many requests", errors.New("too many requests"), true},
		{"validation", errors.New("quantity must be positive"), false},
		{"api 429", &alpaca.APIError{StatusCode: 429, Message: "too fast"}, true},
		{"api 503", &alpaca.APIError{StatusCode: 503, Message: "unavailable"}, true},
		{"api 404", &alpaca.APIError{StatusCode: 404, Message: "position does not exist"}, false},
		{"api 403", &alpaca.APIError{StatusCode: 403, Message: "forbidden"}, false},
		{"wrapped api error", fmt.Errorf("call failed: %w", &alpaca.APIError{StatusCode: 500}), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestBrokerErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := brokerError("submit_order", "AAPL", inner)

	var brokerErr *BrokerError
	require.True(t, errors.As(err, &brokerErr))
	assert.Equal(t, "submit_order", brokerErr.Op)
	assert.Equal(t, "AAPL", brokerErr.Symbol)
	assert.ErrorIs(t, err, inner)

	assert.Nil(t, brokerError("noop", "", nil))
}
