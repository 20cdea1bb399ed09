package detector

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type oiSample struct {
	Time  time.Time
	Value decimal.Decimal
}

// OITracker keeps per-symbol open-interest history, same shape as the
// price series but informational only: an unavailable reading downgrades
// the alert's OI context, it never blocks the alert.
type OITracker struct {
	mu      sync.Mutex
	horizon time.Duration
	series  map[string][]oiSample
}

// NewOITracker retains the OI window plus a grace margin.
func NewOITracker(window, grace time.Duration) *OITracker {
	return &OITracker{
		horizon: window + grace,
		series:  make(map[string][]oiSample),
	}
}

// Record appends an open-interest reading, enforcing per-symbol ordering
// the same way the price store does.
func (t *OITracker) Record(symbol string, ts time.Time, value decimal.Decimal) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	samples := t.series[symbol]
	if n := len(samples); n > 0 {
		last := samples[n-1].Time
		if ts.Before(last) {
			return false
		}
		if ts.Equal(last) {
			samples[n-1].Value = value
			return true
		}
	}

	samples = append(samples, oiSample{Time: ts, Value: value})

	cutoff := ts.Add(-t.horizon)
	drop := 0
	for drop < len(samples)-1 && samples[drop].Time.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		samples = append(samples[:0], samples[drop:]...)
	}

	t.series[symbol] = samples
	return true
}

// ChangePct reports the percentage drift from the reading at or before
// now-window to the latest reading. ok=false means "no context", not an
// error.
func (t *OITracker) ChangePct(symbol string, window time.Duration, now time.Time) (OIChange, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	samples := t.series[symbol]
	if len(samples) == 0 {
		return OIChange{}, false
	}

	target := now.Add(-window)
	idx := sort.Search(len(samples), func(i int) bool {
		return samples[i].Time.After(target)
	})
	if idx == 0 {
		return OIChange{}, false
	}

	from := samples[idx-1]
	to := samples[len(samples)-1]
	if from.Value.Sign() <= 0 {
		return OIChange{}, false
	}

	pct := to.Value.Sub(from.Value).Div(from.Value).Mul(dec100)
	return OIChange{From: from.Value, To: to.Value, Pct: pct}, true
}
