// Package ratelimit throttles inbound updates per user and outbound API calls
// globally.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/BatmanBruc/pdf-batch-bot/internal/metrics"
)

const defaultMaxUsers = 10000

// Window is a sliding log: timestamps older than now-window are pruned on
// every check.
type Window struct {
	mu     sync.Mutex
	events int
	window time.Duration
	now    func() time.Time
	// Idle users fall out once their newest event is older than the window.
	users *expirable.LRU[int64, []time.Time]
}

func NewWindow(events int, window time.Duration) *Window {
	return &Window{
		events: events,
		window: window,
		now:    time.Now,
		users:  expirable.NewLRU[int64, []time.Time](defaultMaxUsers, nil, window),
	}
}

// Allow records an event for userID when it fits in the window. A zero or
// negative limit disables the check.
func (w *Window) Allow(userID int64) bool {
	if w.events <= 0 || w.window <= 0 {
		return true
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.window)
	stamps, _ := w.users.Get(userID)

	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= w.events {
		w.users.Add(userID, kept)
		metrics.RateLimitedTotal.Inc()
		return false
	}
	w.users.Add(userID, append(kept, now))
	return true
}

// Pending reports how many events are currently counted for userID.
func (w *Window) Pending(userID int64) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	stamps, _ := w.users.Get(userID)
	cutoff := w.now().Add(-w.window)
	n := 0
	for _, ts := range stamps {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

// Outbound paces calls to the platform API.
type Outbound struct {
	limiter *rate.Limiter
}

// NewOutbound allows perSecond calls with a burst of the same size. A
// non-positive rate disables pacing.
func NewOutbound(perSecond float64) *Outbound {
	if perSecond <= 0 {
		return &Outbound{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &Outbound{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (o *Outbound) Wait(ctx context.Context) error {
	return o.limiter.Wait(ctx)
}
