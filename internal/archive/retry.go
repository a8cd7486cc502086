package archive

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// RetryPolicy bounds retries of transient transport failures with jittered
// exponential backoff. A failed final attempt is surfaced to the caller and
// never retried again within the run.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// NewRetryPolicy builds a policy with sane defaults for any zero field.
func NewRetryPolicy(maxAttempts int, base, max time.Duration) RetryPolicy {
	p := RetryPolicy{MaxAttempts: maxAttempts, BaseDelay: base, MaxDelay: max}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 250 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	return p
}

// ShouldRetry decides whether attempt (1-based) may be followed by another.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxAttempts {
		return false
	}
	return IsTransient(err)
}

// Backoff returns the wait before the attempt after the given one.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// Pacer inserts an inter-request delay with random jitter before each network
// call, respecting source politeness expectations. Wait returns early when the
// context finishes.
type Pacer struct {
	Base   time.Duration
	Jitter time.Duration
}

// Wait sleeps for base plus a random slice of jitter.
func (p Pacer) Wait(ctx context.Context) {
	sleepCtx(ctx, p.Base+randomJitter(p.Jitter))
}

// WaitFor sleeps for an explicit duration, still honoring the context. Used
// for the extended pause after a forbidden or rate-limited response.
func (p Pacer) WaitFor(ctx context.Context, d time.Duration) {
	sleepCtx(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
