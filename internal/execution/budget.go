// Package execution implements the outbound order pipeline: the
// order-state tracker, the priority batch scheduler, the nonce manager,
// the EIP-712 signer, the duplex session, and the per-market action
// budget.
package execution

import (
	"context"
	"sync"
	"time"
)

// Budget is a continuous-refill token bucket, one per market, rate-limiting
// new-order admission. Tokens are fractional and refill continuously rather
// than in fixed windows, so a burst right at a refill boundary is never
// double-counted.
type Budget struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	lastTime time.Time
	now      func() time.Time
}

// NewBudget creates a token bucket with the given burst capacity and
// refill rate (tokens per second).
func NewBudget(capacity, ratePerSecond float64) *Budget {
	return &Budget{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
		now:      time.Now,
	}
}

func (b *Budget) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastTime).Seconds()
	b.tokens += elapsed * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastTime = now
}

// TryTake attempts to take one token without blocking. Used at gate-check
// time, where the hot path must never await I/O or a timer.
func (b *Budget) TryTake() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Wait blocks until a token is available or ctx is cancelled. Because it
// may block, the synchronous gate chain does not use it; it takes tokens
// through TryTake.
func (b *Budget) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		b.refillLocked()
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
