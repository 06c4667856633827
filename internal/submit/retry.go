package submit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxAttempts = 4
	DefaultBaseDelay   = 250 * time.Millisecond
	DefaultMaxDelay    = 4 * time.Second
	DefaultTimeout     = 20 * time.Second
)

// Attempt describes one failed try, passed to the OnAttempt hook.
type Attempt struct {
	Number    int
	Err       error
	Retryable bool
	Delay     time.Duration // zero when no further attempt follows
}

// Retrier retries transient transport failures with capped exponential
// backoff under a hard end-to-end timeout.
type Retrier struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Timeout        time.Duration // whole attempt chain
	AttemptTimeout time.Duration // one attempt; zero means bounded only by Timeout
	OnAttempt      func(Attempt)

	timer backoff.Timer // nil uses a real timer
}

func NewRetrier() *Retrier {
	return &Retrier{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Timeout:     DefaultTimeout,
	}
}

// Do calls fn until it succeeds, fails permanently, runs out of attempts
// or the timeout elapses.
func (r *Retrier) Do(parent context.Context, fn Operation) (any, error) {
	ctx := parent
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, r.Timeout)
		defer cancel()
	}

	maxAttempts := max(r.MaxAttempts, 1)

	var (
		n       int
		lastErr error
	)
	op := func() (any, error) {
		n++
		v, err := r.attempt(ctx, fn)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	notify := func(err error, delay time.Duration) {
		r.notify(Attempt{Number: n, Err: err, Retryable: true, Delay: delay})
	}

	b := backoff.WithContext(backoff.WithMaxRetries(r.policy(), uint64(maxAttempts-1)), ctx)
	v, err := backoff.RetryNotifyWithTimerAndData(op, b, notify, r.timer)
	if err == nil {
		return v, nil
	}
	if lastErr == nil {
		lastErr = err
	}

	switch {
	case parent.Err() != nil:
		return nil, parent.Err()
	case ctx.Err() != nil:
		r.notify(Attempt{Number: n, Err: lastErr})
		return nil, fmt.Errorf("%w: %w", ErrTimeout, lastErr)
	case !IsRetryable(lastErr):
		r.notify(Attempt{Number: n, Err: lastErr})
		return nil, lastErr
	}
	r.notify(Attempt{Number: n, Err: lastErr, Retryable: true})
	return nil, fmt.Errorf("%w (%d attempts): %w", ErrRetriesExhausted, n, lastErr)
}

// policy is the delay schedule: BaseDelay doubling up to MaxDelay, no jitter.
func (r *Retrier) policy() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.BaseDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	if r.MaxDelay > 0 {
		b.MaxInterval = r.MaxDelay
	}
	b.MaxElapsedTime = 0 // bounded by the Timeout context instead
	b.Reset()
	return b
}

func (r *Retrier) attempt(ctx context.Context, fn Operation) (any, error) {
	if r.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, r.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx)
}

func (r *Retrier) notify(a Attempt) {
	if r.OnAttempt != nil {
		r.OnAttempt(a)
	}
}

// retryable is implemented by transport errors that know whether the
// server fault is transient.
type retryable interface {
	Retryable() bool
}

// IsRetryable classifies err: network failures, attempt timeouts and
// server faults are transient; client faults and local rejections are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
