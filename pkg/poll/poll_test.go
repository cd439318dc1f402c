package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a backoff.Timer that advances time instantly when started.
type fakeClock struct {
	now    time.Time
	sleeps int
	waits  []time.Duration
	fired  chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0), fired: make(chan time.Time, 1)}
}

func (c *fakeClock) Start(d time.Duration) {
	c.sleeps++
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	c.fired <- c.now
}

func (c *fakeClock) Stop() {}

func (c *fakeClock) C() <-chan time.Time { return c.fired }

func (c *fakeClock) option() Option {
	return func(o *options) {
		o.now = func() time.Time { return c.now }
		o.timer = c
	}
}

func TestUntil_AlreadyTrue(t *testing.T) {
	clock := newFakeClock()

	calls := 0
	err := Until(context.Background(), func() bool {
		calls++
		return true
	}, clock.option())

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Zero(t, clock.sleeps, "a satisfied condition must not sleep")
}

func TestUntil_AlreadyTrueRealClock(t *testing.T) {
	start := time.Now()
	err := Until(context.Background(), func() bool { return true })
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Millisecond)
}

func TestUntil_NeverTrue(t *testing.T) {
	tests := []struct {
		name     string
		timeout  time.Duration
		interval time.Duration
	}{
		{name: "defaults", timeout: DefaultTimeout, interval: DefaultInterval},
		{name: "short", timeout: 50 * time.Millisecond, interval: 5 * time.Millisecond},
		{name: "uneven", timeout: 95 * time.Millisecond, interval: 10 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			calls := 0

			err := Until(context.Background(), func() bool {
				calls++
				return false
			}, WithTimeout(tt.timeout), WithInterval(tt.interval), WithMessage("never"), clock.option())

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrTimeout))

			var timeoutErr *TimeoutError
			require.True(t, errors.As(err, &timeoutErr))
			assert.Equal(t, "never", timeoutErr.Message)
			assert.Equal(t, calls, timeoutErr.Attempts)
			assert.Greater(t, timeoutErr.Waited, tt.timeout)
			assert.GreaterOrEqual(t, calls, int(tt.timeout/tt.interval))
		})
	}
}

func TestUntil_BecomesTrue(t *testing.T) {
	clock := newFakeClock()
	calls := 0

	err := Until(context.Background(), func() bool {
		calls++
		return calls == 4
	}, clock.option())

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 3, clock.sleeps)
}

func TestUntil_WaitsAtConstantInterval(t *testing.T) {
	clock := newFakeClock()
	calls := 0

	err := Until(context.Background(), func() bool {
		calls++
		return calls == 6
	}, WithInterval(25*time.Millisecond), clock.option())

	require.NoError(t, err)
	require.Len(t, clock.waits, 5)
	for _, d := range clock.waits {
		assert.Equal(t, 25*time.Millisecond, d)
	}
}

func TestUntil_ContextCanceledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Until(ctx, func() bool {
		calls++
		if calls == 3 {
			cancel()
		}
		return false
	}, WithInterval(time.Millisecond))

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, 3, calls)
}

func TestUntil_ConditionSetConcurrently(t *testing.T) {
	var ready atomic.Bool
	go func() {
		time.Sleep(20 * time.Millisecond)
		ready.Store(true)
	}()

	err := Until(context.Background(), ready.Load, WithTimeout(2*time.Second), WithInterval(time.Millisecond))
	require.NoError(t, err)
}

func TestUntil_RealTimeout(t *testing.T) {
	start := time.Now()
	err := Until(context.Background(), func() bool { return false },
		WithTimeout(30*time.Millisecond), WithInterval(5*time.Millisecond))

	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestUntil_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Until(ctx, func() bool {
		calls++
		return false
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "the condition is evaluated before the context is checked")
}

func TestUntil_DefaultMessage(t *testing.T) {
	clock := newFakeClock()
	err := Until(context.Background(), func() bool { return false }, WithTimeout(time.Millisecond), clock.option())

	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, DefaultMessage, timeoutErr.Message)
	assert.Contains(t, err.Error(), DefaultMessage)
}

func TestOptions_IgnoreNonPositive(t *testing.T) {
	o := options{timeout: DefaultTimeout, interval: DefaultInterval, message: DefaultMessage}
	WithTimeout(0)(&o)
	WithInterval(-time.Second)(&o)
	WithMessage("")(&o)

	assert.Equal(t, DefaultTimeout, o.timeout)
	assert.Equal(t, DefaultInterval, o.interval)
	assert.Equal(t, DefaultMessage, o.message)
}
