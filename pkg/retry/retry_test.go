package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	cfg := TransportConfig()
	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts == 1 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts, "one immediate retry")
}

func TestRetryGivesUp(t *testing.T) {
	cfg := TransportConfig()
	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return errors.New("down")
	})
	assert.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryDisabled(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), Config{Enabled: false}, func() error {
		attempts++
		return errors.New("nope")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, DefaultConfig(), func() error {
		return errors.New("never succeeds")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
