package feeds

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/skywatch-data/skywatch/internal/timeutil"
)

// ErrRateLimited is returned by TryAcquire when no token is available.
var ErrRateLimited = errors.New("feeds: rate limited")

// TokenBucket enforces a per-source requests-per-minute budget. Tokens
// refill continuously at rate/60000 per millisecond up to the burst size.
type TokenBucket struct {
	mu         sync.Mutex
	perMinute  float64
	burst      float64
	tokens     float64
	lastRefill time.Time
	clock      timeutil.Clock
}

// NewTokenBucket creates a bucket allowing perMinute requests per minute
// with a burst of the same size. The bucket starts full.
func NewTokenBucket(perMinute int, clock timeutil.Clock) *TokenBucket {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &TokenBucket{
		perMinute:  float64(perMinute),
		burst:      float64(perMinute),
		tokens:     float64(perMinute),
		lastRefill: clock.Now(),
		clock:      clock,
	}
}

func (b *TokenBucket) refillLocked(now time.Time) {
	elapsedMS := float64(now.Sub(b.lastRefill)) / float64(time.Millisecond)
	if elapsedMS <= 0 {
		return
	}
	b.tokens += elapsedMS * b.perMinute / 60000
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.lastRefill = now
}

// TryAcquire consumes a token if one is available.
func (b *TokenBucket) TryAcquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(b.clock.Now())
	if b.tokens < 1 {
		return ErrRateLimited
	}
	b.tokens--
	return nil
}

// Wait blocks until a token is available or the context is cancelled. A
// cancelled wait consumes no token.
func (b *TokenBucket) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := b.clock.Now()
		b.refillLocked(now)
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		deficit := 1 - b.tokens
		b.mu.Unlock()

		// Sleep for the computed refill delay, honouring cancellation.
		delay := time.Duration(deficit / b.perMinute * 60000 * float64(time.Millisecond))
		if delay < time.Millisecond {
			delay = time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.clock.After(delay):
		}
	}
}
