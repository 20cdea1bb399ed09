package detector

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// VolumeSample is the aggregated quote volume of one minute bucket.
type VolumeSample struct {
	Bucket time.Time
	Volume decimal.Decimal
}

// VolumeTracker keeps minute-bucketed trade volume per symbol, fed by the
// kline collector. Re-polled buckets overwrite in place, so the in-progress
// minute converges to its final value.
type VolumeTracker struct {
	mu       sync.Mutex
	lookback time.Duration
	samples  map[string][]VolumeSample
}

// NewVolumeTracker retains lookback (plus one bucket of margin) per symbol.
func NewVolumeTracker(lookback time.Duration) *VolumeTracker {
	return &VolumeTracker{
		lookback: lookback + time.Minute,
		samples:  make(map[string][]VolumeSample),
	}
}

// Record stores the volume for the minute bucket containing ts.
func (t *VolumeTracker) Record(symbol string, ts time.Time, volume decimal.Decimal) {
	bucket := ts.Truncate(time.Minute)

	t.mu.Lock()
	defer t.mu.Unlock()

	samples := t.samples[symbol]
	n := len(samples)
	switch {
	case n > 0 && samples[n-1].Bucket.Equal(bucket):
		samples[n-1].Volume = volume
	case n > 0 && samples[n-1].Bucket.After(bucket):
		// Out-of-order refresh of an older bucket.
		for i := n - 1; i >= 0; i-- {
			if samples[i].Bucket.Equal(bucket) {
				samples[i].Volume = volume
				break
			}
			if samples[i].Bucket.Before(bucket) {
				samples = append(samples[:i+1], append([]VolumeSample{{Bucket: bucket, Volume: volume}}, samples[i+1:]...)...)
				break
			}
		}
	default:
		samples = append(samples, VolumeSample{Bucket: bucket, Volume: volume})
	}

	cutoff := bucket.Add(-t.lookback)
	drop := 0
	for drop < len(samples) && samples[drop].Bucket.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		samples = append(samples[:0], samples[drop:]...)
	}

	t.samples[symbol] = samples
}

// WindowVolume sums the trailing window of minute buckets, including the
// in-progress bucket.
func (t *VolumeTracker) WindowVolume(symbol string, now time.Time, window time.Duration) decimal.Decimal {
	edge := now.Truncate(time.Minute).Add(-window)

	t.mu.Lock()
	defer t.mu.Unlock()

	total := decimal.Zero
	for _, s := range t.samples[symbol] {
		if s.Bucket.After(edge) {
			total = total.Add(s.Volume)
		}
	}
	return total
}

// HistoricalAverage is the mean volume of a window-sized slice of the
// trailing lookback, computed from the buckets older than the current
// window (the in-progress bucket is excluded by construction). ok=false
// when no baseline buckets exist yet.
func (t *VolumeTracker) HistoricalAverage(symbol string, now time.Time, lookback, window time.Duration) (decimal.Decimal, bool) {
	current := now.Truncate(time.Minute)
	newest := current.Add(-window)
	oldest := current.Add(-lookback)

	t.mu.Lock()
	defer t.mu.Unlock()

	total := decimal.Zero
	count := 0
	for _, s := range t.samples[symbol] {
		if s.Bucket.After(oldest) && !s.Bucket.After(newest) {
			total = total.Add(s.Volume)
			count++
		}
	}
	if count == 0 {
		return decimal.Zero, false
	}

	perMinute := total.Div(decimal.NewFromInt(int64(count)))
	minutes := decimal.NewFromInt(int64(window / time.Minute))
	return perMinute.Mul(minutes), true
}

// SpikeRatio compares the current window volume against the historical
// average. A zero baseline with positive current volume is reported as
// unbounded (the spike gate passes); zero on both sides is ok=false, so
// the volume filter fails closed.
func (t *VolumeTracker) SpikeRatio(symbol string, now time.Time, lookback, window time.Duration) (ratio decimal.Decimal, unbounded, ok bool) {
	current := t.WindowVolume(symbol, now, window)
	average, haveBaseline := t.HistoricalAverage(symbol, now, lookback, window)

	if !haveBaseline || average.IsZero() {
		if current.Sign() > 0 {
			return decimal.Zero, true, true
		}
		return decimal.Zero, false, false
	}
	return current.Div(average), false, true
}
