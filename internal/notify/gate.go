package notify

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// gate enforces a channel's send rate: a minimum interval between sends and
// a cap on sends within any rolling one-hour window. Both checks happen
// atomically so a rejected send consumes neither budget.
type gate struct {
	mu         sync.Mutex
	interval   *rate.Limiter
	maxPerHour int
	sent       []time.Time

	// now is swapped in tests.
	now func() time.Time
}

// newGate builds a gate. minInterval <= 0 disables the interval limit and
// maxPerHour <= 0 disables the hourly cap; a nil gate allows everything.
func newGate(minInterval time.Duration, maxPerHour int) *gate {
	g := &gate{maxPerHour: maxPerHour, now: time.Now}
	if minInterval > 0 {
		g.interval = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return g
}

// allow reserves one send. bypassInterval skips the inter-send spacing but
// still counts against the hourly window (used by startup test sends).
func (g *gate) allow(bypassInterval bool) bool {
	if g == nil {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()

	if g.maxPerHour > 0 {
		cutoff := now.Add(-time.Hour)
		kept := g.sent[:0]
		for _, ts := range g.sent {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		g.sent = kept
		if len(g.sent) >= g.maxPerHour {
			return false
		}
	}

	if g.interval != nil && !bypassInterval {
		res := g.interval.ReserveN(now, 1)
		if !res.OK() || res.DelayFrom(now) > 0 {
			res.CancelAt(now)
			return false
		}
	}

	// The send is going through; only now does it count against the window.
	if g.maxPerHour > 0 {
		g.sent = append(g.sent, now)
	}
	return true
}
