package retry

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	out, err := Do(context.Background(), 3, "test", discard(), func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("always")
	calls := 0
	_, err := Do(context.Background(), 2, "test", discard(), func() (int, error) {
		calls++
		return 0, sentinel
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 2, calls)
}

func TestDoRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Do(ctx, 3, "test", discard(), func() (int, error) {
		t.Fatal("fn should not run after cancellation")
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDoubles(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, base, Backoff(base, 0))
	assert.Equal(t, 2*base, Backoff(base, 1))
	assert.Equal(t, 8*base, Backoff(base, 3))
}
