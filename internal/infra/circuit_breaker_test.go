package infra

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

var errStore = errors.New("store down")

func newTestBreaker(clock *fakeClock) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      10 * time.Second,
		Now:              clock.Now,
	})
}

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := newTestBreaker(clock)
	fail := func() error { return errStore }

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(fail), errStore)
	}
	assert.Equal(t, CBClosed, cb.State())

	// a success resets the streak
	require.NoError(t, cb.Execute(func() error { return nil }))
	for i := 0; i < 2; i++ {
		_ = cb.Execute(fail)
	}
	assert.Equal(t, CBClosed, cb.State())

	_ = cb.Execute(fail)
	assert.Equal(t, CBOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := newTestBreaker(clock)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errStore })
	}
	require.Equal(t, CBOpen, cb.State())

	clock.Advance(9 * time.Second)
	assert.Equal(t, CBOpen, cb.State())
	clock.Advance(time.Second)
	assert.Equal(t, CBHalfOpen, cb.State())

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, CBHalfOpen, cb.State())
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, CBClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := newTestBreaker(clock)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errStore })
	}
	clock.Advance(10 * time.Second)
	require.Equal(t, CBHalfOpen, cb.State())

	_ = cb.Execute(func() error { return errStore })
	assert.Equal(t, CBOpen, cb.State())

	// the open timeout restarts from the failed trial call
	clock.Advance(5 * time.Second)
	assert.Equal(t, CBOpen, cb.State())
}

func TestCBState_String(t *testing.T) {
	assert.Equal(t, "closed", CBClosed.String())
	assert.Equal(t, "open", CBOpen.String())
	assert.Equal(t, "half-open", CBHalfOpen.String())
	assert.Equal(t, "unknown", CBState(42).String())
}
