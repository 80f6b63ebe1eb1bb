// Package idempotency narrows the race window between near-simultaneous
// deliveries of the same payment notification. It is a latency optimization,
// not a correctness mechanism: the uniqueness constraints on orders are the
// final arbiter.
package idempotency

import (
	"context"
	"time"

	"github.com/viveroverde/vivero/internal/cache"
	"github.com/viveroverde/vivero/internal/clock"
)

// Guard gates entry into webhook processing for a payment id.
type Guard interface {
	// TryBegin reports whether the caller may process the payment now.
	// False means another delivery for the same id started within the
	// window and is presumed in flight.
	TryBegin(ctx context.Context, paymentID string) bool
}

type localGuard struct {
	entries cache.Cache[string, time.Time]
	clk     clock.Clock
	window  time.Duration
}

// NewLocalGuard returns the in-process TTL-map guard. It only coordinates
// deliveries hitting the same process.
func NewLocalGuard(clk clock.Clock, window time.Duration) Guard {
	if window <= 0 {
		window = 4 * time.Second
	}
	return &localGuard{
		entries: cache.NewTTLCacheWithNow[string, time.Time](clk.Now),
		clk:     clk,
		window:  window,
	}
}

func (g *localGuard) TryBegin(_ context.Context, paymentID string) bool {
	if paymentID == "" {
		return false
	}
	return g.entries.Add(paymentID, g.clk.Now(), g.window)
}
