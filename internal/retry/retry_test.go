package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxAttempts int) Policy {
	return NewPolicy(maxAttempts, time.Millisecond, nil)
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestDoStopsOnPermanentError(t *testing.T) {
	boom := errors.New("bad request")
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		return Permanent(boom)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnRetryablePredicate(t *testing.T) {
	clientErr := errors.New("status 404")
	p := NewPolicy(5, time.Millisecond, func(err error) bool {
		return !errors.Is(err, clientErr)
	})

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return clientErr
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := NewPolicy(3, time.Hour, nil)
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func() error {
			calls++
			return errors.New("transient")
		})
	}()

	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestBackoffGrows(t *testing.T) {
	p := NewPolicy(3, 100*time.Millisecond, nil)
	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(errors.New("plain")))
}
