package firms

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Wait(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, time.Second, p.Wait(1))
	assert.Equal(t, 1500*time.Millisecond, p.Wait(2))
	assert.Equal(t, 2250*time.Millisecond, p.Wait(3))
	assert.Equal(t, 30*time.Second, p.Wait(20), "capped at MaxBackoff")
}

func TestRetryPolicy_Next(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3}
	tests := []struct {
		o       outcome
		attempt int
		want    attemptState
	}{
		{outcomeSuccess, 1, stateSucceeded},
		{outcomeNotFound, 3, stateSucceeded},
		{outcomeQuota, 1, stateFailedFatal},
		{outcomeCredential, 1, stateFailedFatal},
		{outcomeMalformed, 1, stateFailedFatal},
		{outcomeCanceled, 1, stateFailedFatal},
		{outcomeTimeout, 1, stateRetryWait},
		{outcomeTransport, 2, stateRetryWait},
		{outcomeTransport, 3, stateFailedExhausted},
	}
	for _, tt := range tests {
		t.Run(string(tt.o)+"/"+tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, p.next(tt.o, tt.attempt))
		})
	}
}

func TestRetryPolicy_RunWaitsBetweenAttempts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := DefaultRetryPolicy()
	errFlaky := errors.New("flaky")

	attempts := 0
	done := make(chan error, 1)
	go func() {
		_, err := p.run(context.Background(), clock, func(context.Context, int) (outcome, error) {
			attempts++
			return outcomeTransport, errFlaky
		})
		done <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(1500 * time.Millisecond)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errFlaky)
	case <-ctx.Done():
		t.Fatal("run did not finish")
	}
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicy_RunStopsOnCancelDuringWait(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := DefaultRetryPolicy()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := p.run(ctx, clock, func(context.Context, int) (outcome, error) {
			return outcomeTimeout, errors.New("slow")
		})
		done <- err
	}()

	wait, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(wait, 1))
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-wait.Done():
		t.Fatal("run ignored cancellation")
	}
}

func TestRetryPolicy_RunSucceedsAfterRetry(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BackoffBase: 1.5, BackoffUnit: time.Millisecond}
	calls := 0
	state, err := p.run(context.Background(), clockwork.NewRealClock(), func(context.Context, int) (outcome, error) {
		calls++
		if calls < 2 {
			return outcomeTransport, errors.New("boom")
		}
		return outcomeSuccess, nil
	})
	require.NoError(t, err)
	assert.Equal(t, stateSucceeded, state)
	assert.Equal(t, 2, calls)
}
