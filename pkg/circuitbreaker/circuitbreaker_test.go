package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOpensAfterThreshold(t *testing.T) {
	cb := New(Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute})
	opened := false
	cb.OnOpen = func() { opened = true }

	fail := func() error { return errors.New("write failed") }
	for i := 0; i < 3; i++ {
		assert.Error(t, cb.Call(fail))
	}
	assert.Equal(t, StateOpen, cb.State())
	assert.True(t, opened)

	// While open, calls are rejected without running.
	ran := false
	err := cb.Call(func() error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, ran)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := New(Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})
	fail := func() error { return errors.New("x") }
	ok := func() error { return nil }

	assert.Error(t, cb.Call(fail))
	assert.NoError(t, cb.Call(ok))
	assert.Error(t, cb.Call(fail))
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenRecovery(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond})
	assert.Error(t, cb.Call(func() error { return errors.New("x") }))
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	ok := func() error { return nil }
	assert.NoError(t, cb.Call(ok))
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.NoError(t, cb.Call(ok))
	assert.Equal(t, StateClosed, cb.State())
}
