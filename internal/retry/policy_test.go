package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
		StepTimeout:     50 * time.Millisecond,
	}
}

func TestPolicy_Do_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), "navigate", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Do_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), "query", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("read tcp: connection reset by peer")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicy_Do_ExhaustedAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), "list-manuscripts", func(ctx context.Context) error {
		calls++
		return context.DeadlineExceeded
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var transient *TransientNetworkError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, "list-manuscripts", transient.Step)
	assert.Equal(t, 3, transient.Attempts)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPolicy_Do_StepTimeoutIsRetried(t *testing.T) {
	calls := 0
	err := fastPolicy(2).Do(context.Background(), "slow", func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	var transient *TransientNetworkError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, 2, calls)
}

func TestPolicy_Do_PermanentErrorNotRetried(t *testing.T) {
	sentinel := errors.New("selector not configured")
	calls := 0
	err := fastPolicy(5).Do(context.Background(), "query", func(ctx context.Context) error {
		calls++
		return sentinel
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, sentinel)

	var transient *TransientNetworkError
	assert.False(t, errors.As(err, &transient))
}

func TestPolicy_Do_ExplicitPermanent(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), "query", func(ctx context.Context) error {
		calls++
		return Permanent(errors.New("request timeout but do not retry"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "do not retry")
	assert.False(t, IsTransient(err))

	var transient *TransientNetworkError
	assert.False(t, errors.As(err, &transient))
}

func TestPolicy_Do_MissingSelectorKeepsItsError(t *testing.T) {
	missing := fmt.Errorf("no element matches %q", "#title")
	err := fastPolicy(3).Do(context.Background(), "read", func(ctx context.Context) error {
		return missing
	})
	require.Error(t, err)
	assert.Equal(t, missing, err)
	assert.False(t, IsTransient(err))
}

func TestPolicy_Do_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := fastPolicy(5).Do(ctx, "query", func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("timeout")
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", errors.Join(errors.New("navigate"), context.DeadlineExceeded), true},
		{"chrome net error", errors.New("page load error net::ERR_CONNECTION_TIMED_OUT"), true},
		{"plain", errors.New("no such selector"), false},
		{"permanent", Permanent(errors.New("timeout")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTransient(tt.err))
		})
	}
}
