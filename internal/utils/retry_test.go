package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_GivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 2, func() error {
		calls++
		return errors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 3, calls)
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	bad := errors.New("bad request")
	err := Retry(context.Background(), 5, func() error {
		calls++
		return Permanent(bad)
	})
	assert.ErrorIs(t, err, bad)
	assert.Equal(t, 1, calls)
}
