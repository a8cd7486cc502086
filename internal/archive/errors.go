package archive

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ErrContentMismatch means the declared content type disagrees with the
// expected content family. Never retried.
var ErrContentMismatch = errors.New("content type mismatch")

// StatusError carries a non-2xx HTTP status that is neither 200 nor 404.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// IsForbidden reports whether err represents a 403 or 429 response, which
// triggers an extended pause rather than normal retry.
func IsForbidden(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == 403 || se.StatusCode == 429
	}
	return false
}

// IsTransient reports whether err is a transient transport condition worth
// retrying with backoff: timeouts, connection resets, and 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return false
}
