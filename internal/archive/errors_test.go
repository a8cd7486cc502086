package archive

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsForbidden(t *testing.T) {
	t.Parallel()

	require.True(t, IsForbidden(&StatusError{StatusCode: 403, URL: "u"}))
	require.True(t, IsForbidden(&StatusError{StatusCode: 429, URL: "u"}))
	require.True(t, IsForbidden(fmt.Errorf("probe: %w", &StatusError{StatusCode: 403})))
	require.False(t, IsForbidden(&StatusError{StatusCode: 500}))
	require.False(t, IsForbidden(errors.New("forbidden")))
	require.False(t, IsForbidden(nil))
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	require.True(t, IsTransient(syscall.ECONNRESET))
	require.True(t, IsTransient(fmt.Errorf("fetch: %w", syscall.EPIPE)))
	require.True(t, IsTransient(&StatusError{StatusCode: 503}))
	require.False(t, IsTransient(&StatusError{StatusCode: 403}))
	require.False(t, IsTransient(ErrContentMismatch))
	require.False(t, IsTransient(context.Canceled))
	require.False(t, IsTransient(context.DeadlineExceeded))
	require.False(t, IsTransient(nil))
}
