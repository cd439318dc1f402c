// Package poll provides a bounded wait-for-condition primitive.
//
// Until evaluates a predicate repeatedly until it reports true or the total
// wait time elapses. The predicate is checked before the first sleep, so a
// condition that already holds returns immediately.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default values for Until.
const (
	DefaultTimeout  = 5000 * time.Millisecond
	DefaultInterval = 10 * time.Millisecond
	DefaultMessage  = "condition not met within the specified time"
)

// ErrTimeout is matched by every *TimeoutError returned from Until.
var ErrTimeout = errors.New("poll: timed out")

// errNotMet marks an attempt where the condition was false; backoff retries it.
var errNotMet = errors.New("poll: condition not met")

// TimeoutError reports a condition that never became true.
type TimeoutError struct {
	Message  string
	Waited   time.Duration
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s (waited %s, %d attempts)", e.Message, e.Waited.Round(time.Millisecond), e.Attempts)
}

// Unwrap lets errors.Is(err, ErrTimeout) match.
func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

type options struct {
	timeout  time.Duration
	interval time.Duration
	message  string

	now   func() time.Time
	timer backoff.Timer // nil uses a real time.Timer
}

// Option configures a single Until call.
type Option func(*options)

// WithTimeout sets the total time to wait. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithInterval sets the time between evaluations. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithMessage sets the message carried by the TimeoutError.
func WithMessage(msg string) Option {
	return func(o *options) {
		if msg != "" {
			o.message = msg
		}
	}
}

// Until blocks until cond returns true, ctx is done, or the timeout elapses.
func Until(ctx context.Context, cond func() bool, opts ...Option) error {
	o := options{
		timeout:  DefaultTimeout,
		interval: DefaultInterval,
		message:  DefaultMessage,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	start := o.now()
	attempts := 0
	operation := func() error {
		attempts++
		if cond() {
			return nil
		}
		if waited := o.now().Sub(start); waited > o.timeout {
			return backoff.Permanent(&TimeoutError{Message: o.message, Waited: waited, Attempts: attempts})
		}
		return errNotMet
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(o.interval), ctx)
	err := backoff.RetryNotifyWithTimer(operation, b, nil, o.timer)
	if errors.Is(err, errNotMet) {
		// the schedule only stops early when ctx is done
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}
