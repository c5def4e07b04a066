package httpclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeNetError struct{ timeout bool }

func (e fakeNetError) Error() string   { return "fake" }
func (e fakeNetError) Timeout() bool   { return e.timeout }
func (e fakeNetError) Temporary() bool { return false }

func TestIsTimeoutError(t *testing.T) {
	assert.False(t, IsTimeoutError(nil))
	assert.False(t, IsTimeoutError(errors.New("other")))
	assert.True(t, IsTimeoutError(context.DeadlineExceeded))
	assert.True(t, IsTimeoutError(fakeNetError{timeout: true}))
	assert.False(t, IsTimeoutError(fakeNetError{timeout: false}))
}

func TestWrapTimeoutError(t *testing.T) {
	plain := errors.New("not a timeout")
	assert.Equal(t, plain, WrapTimeoutError(plain))

	wrapped := WrapTimeoutError(context.DeadlineExceeded)
	var timeoutErr *TimeoutError
	assert.True(t, errors.As(wrapped, &timeoutErr))

	// Wrapping an already wrapped error keeps the original wrapper.
	assert.Equal(t, wrapped, WrapTimeoutError(wrapped))
}

func TestWithTimeoutExpires(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}
