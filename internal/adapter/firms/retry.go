package firms

import (
	"context"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
)

// RetryPolicy bounds how often a single target is attempted and how long to
// wait between attempts. The wait after failed attempt n is
// min(MaxBackoff, BackoffUnit * BackoffBase^(n-1)).
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase float64
	BackoffUnit time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy waits 1s, then 1.5s, with three attempts in total.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BackoffBase: 1.5,
		BackoffUnit: time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

// Wait returns the pause after failed attempt n (1-based).
func (p RetryPolicy) Wait(attempt int) time.Duration {
	unit := p.BackoffUnit
	if unit <= 0 {
		unit = time.Second
	}
	d := time.Duration(float64(unit) * math.Pow(p.BackoffBase, float64(attempt-1)))
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// attemptState is where a target goes after an attempt: back to waiting for
// another attempt, or into one of the terminal states.
type attemptState int

const (
	stateRetryWait attemptState = iota
	stateSucceeded
	stateFailedFatal
	stateFailedExhausted
)

func (s attemptState) String() string {
	switch s {
	case stateRetryWait:
		return "retry_wait"
	case stateSucceeded:
		return "succeeded"
	case stateFailedFatal:
		return "failed_fatal"
	case stateFailedExhausted:
		return "failed_exhausted"
	}
	return "unknown"
}

// outcome classifies one attempt. It doubles as the metric label.
type outcome string

const (
	outcomeSuccess    outcome = "success"
	outcomeNotFound   outcome = "not_found"
	outcomeTimeout    outcome = "timeout"
	outcomeTransport  outcome = "transport"
	outcomeQuota      outcome = "quota"
	outcomeCredential outcome = "credential"
	outcomeMalformed  outcome = "malformed"
	outcomeCanceled   outcome = "canceled"
	outcomeInternal   outcome = "internal"
)

func (o outcome) retryable() bool {
	return o == outcomeTimeout || o == outcomeTransport
}

// next is the state transition taken after attempt n finished with o.
func (p RetryPolicy) next(o outcome, attempt int) attemptState {
	switch {
	case o == outcomeSuccess || o == outcomeNotFound:
		return stateSucceeded
	case !o.retryable():
		return stateFailedFatal
	case attempt >= p.attempts():
		return stateFailedExhausted
	default:
		return stateRetryWait
	}
}

// tryFunc performs attempt n. err is nil exactly when o is success or not_found.
type tryFunc func(ctx context.Context, attempt int) (o outcome, err error)

// run drives one target from pending to a terminal state and returns the
// error of the last attempt when it did not succeed. Cancellation of ctx
// ends the run immediately, including during a backoff wait.
func (p RetryPolicy) run(ctx context.Context, clock clockwork.Clock, try tryFunc) (attemptState, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return stateFailedFatal, err
		}
		o, err := try(ctx, attempt)
		state := p.next(o, attempt)
		switch state {
		case stateSucceeded:
			return state, nil
		case stateFailedFatal, stateFailedExhausted:
			return state, err
		}
		if err := sleepWithContext(ctx, clock, p.Wait(attempt)); err != nil {
			return stateFailedFatal, err
		}
	}
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	t := clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Chan():
		return nil
	}
}
